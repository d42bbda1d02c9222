package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/launchpadhq/enrollhub/app/controllers"
	"github.com/launchpadhq/enrollhub/internal/pkg/authz"
	"github.com/launchpadhq/enrollhub/internal/pkg/middleware"
)

// WebhookRouter installs the processor webhook endpoint and the scheduled
// reconciliation trigger.
type WebhookRouter struct {
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	app.Post("/webhooks/payments", controllers.HandlePaymentWebhook)
	app.Post("/internal/reconcile", middleware.CronAuthMiddleware(), controllers.HandleReconcileTrigger)
}

func NewWebhookRouter() *WebhookRouter {
	return &WebhookRouter{}
}

// AdminRouter installs the admin mutation endpoints behind the injected
// authorization policy.
type AdminRouter struct {
	policy authz.Policy
}

func (h AdminRouter) InstallRouter(app *fiber.App) {
	admin := app.Group("/admin")
	admin.Post("/enrollments/:id/approve",
		middleware.AdminAuthMiddleware(h.policy, authz.ActionApproveEnrollment),
		controllers.HandleAdminApproveEnrollment)
	admin.Post("/enrollments/:id/cancel",
		middleware.AdminAuthMiddleware(h.policy, authz.ActionCancelEnrollment),
		controllers.HandleAdminCancelEnrollment)
	admin.Put("/enrollments/:id/contact",
		middleware.AdminAuthMiddleware(h.policy, authz.ActionEditContact),
		controllers.HandleAdminContactUpdate)
	admin.Post("/payers/:id/adjustments",
		middleware.AdminAuthMiddleware(h.policy, authz.ActionAdjustBalance),
		controllers.HandleAdminBalanceAdjustment)
	admin.Get("/enrollments",
		middleware.AdminAuthMiddleware(h.policy, authz.ActionViewRecords),
		controllers.HandleAdminListEnrollments)
	admin.Get("/enrollments/:id",
		middleware.AdminAuthMiddleware(h.policy, authz.ActionViewRecords),
		controllers.HandleAdminGetEnrollment)
	admin.Get("/payers/:id/balance",
		middleware.AdminAuthMiddleware(h.policy, authz.ActionViewRecords),
		controllers.HandleAdminPayerBalance)
	admin.Get("/audit",
		middleware.AdminAuthMiddleware(h.policy, authz.ActionViewRecords),
		controllers.HandleAdminListAuditLog)
}

func NewAdminRouter() *AdminRouter {
	return &AdminRouter{policy: authz.EnvAllowlistPolicy{}}
}

// PublicRouter installs the guardian-facing submission endpoint.
type PublicRouter struct {
}

func (h PublicRouter) InstallRouter(app *fiber.App) {
	app.Post("/enrollments", controllers.HandleEnrollmentSubmit)
}

func NewPublicRouter() *PublicRouter {
	return &PublicRouter{}
}
