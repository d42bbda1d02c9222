package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/launchpadhq/enrollhub/internal/pkg/authz"
)

// CronAuthMiddleware authenticates the external scheduler's trigger calls
// with a shared token. Unauthenticated invocation is rejected; an absent
// token configuration fails closed.
func CronAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractCronToken(c)
		if !authz.VerifyCronToken(token) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid cron token"})
		}
		return c.Next()
	}
}

func extractCronToken(c *fiber.Ctx) string {
	token := strings.TrimSpace(c.Get("X-Cron-Token"))
	if token != "" {
		return token
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
