package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/launchpadhq/enrollhub/internal/pkg/reconcile"
)

// HandleReconcileTrigger runs one reconciliation pass. Invoked by the
// external scheduler through CronAuthMiddleware; overlapping triggers
// collapse into sequential runs inside the monitor.
func HandleReconcileTrigger(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	res, err := reconcile.GetMonitor().RunOnce(ctx)
	if err != nil {
		log.Errorf("[Reconcile] triggered run failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reconcile_failed", "message": err.Error()})
	}
	return c.Status(fiber.StatusOK).JSON(res)
}
