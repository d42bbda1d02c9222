package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/launchpadhq/enrollhub/internal/pkg/authz"
)

// ActorLocalKey is the fiber locals key carrying the authenticated actor
// identity for audit purposes.
const ActorLocalKey = "ACTOR"

// AdminAuthMiddleware authenticates admin mutation requests. The caller
// supplies its actor identity in X-Actor; the injected policy decides
// whether that principal may perform the route's action.
func AdminAuthMiddleware(policy authz.Policy, action string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor := strings.TrimSpace(c.Get("X-Actor"))
		if actor == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing actor identity"})
		}
		if !policy.Allow(actor, action) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Actor not permitted"})
		}
		c.Locals(ActorLocalKey, actor)
		return c.Next()
	}
}

// GetActor returns the authenticated actor identity set by
// AdminAuthMiddleware.
func GetActor(c *fiber.Ctx) string {
	if actor, ok := c.Locals(ActorLocalKey).(string); ok {
		return actor
	}
	return ""
}
