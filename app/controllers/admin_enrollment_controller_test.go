package controllers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/launchpadhq/enrollhub/app/models"
	"github.com/launchpadhq/enrollhub/internal/pkg/authz"
	"github.com/launchpadhq/enrollhub/internal/pkg/middleware"
)

func newAdminApp() *fiber.App {
	policy := authz.StaticPolicy{Principals: map[string]bool{"admin@example.com": true}}
	app := fiber.New()
	admin := app.Group("/admin")
	admin.Post("/enrollments/:id/approve",
		middleware.AdminAuthMiddleware(policy, authz.ActionApproveEnrollment), HandleAdminApproveEnrollment)
	admin.Post("/enrollments/:id/cancel",
		middleware.AdminAuthMiddleware(policy, authz.ActionCancelEnrollment), HandleAdminCancelEnrollment)
	admin.Put("/enrollments/:id/contact",
		middleware.AdminAuthMiddleware(policy, authz.ActionEditContact), HandleAdminContactUpdate)
	admin.Post("/payers/:id/adjustments",
		middleware.AdminAuthMiddleware(policy, authz.ActionAdjustBalance), HandleAdminBalanceAdjustment)
	return app
}

func adminRequest(t *testing.T, app *fiber.App, method, target, actor, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set("X-Actor", actor)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func seedAdminEnrollment(t *testing.T, db *gorm.DB, status string) *models.Enrollment {
	t.Helper()
	e := &models.Enrollment{
		GuardianName:     "Dana Rivera",
		GuardianEmail:    "dana@example.com",
		ChildName:        "Sam Rivera",
		EmergencyContact: "Robin Rivera +1 555 0150",
		LocationID:       3,
		PlanType:         models.PlanTypeMonthly,
		Status:           status,
	}
	require.NoError(t, db.Create(e).Error)
	return e
}

func TestAdminAuth(t *testing.T) {
	setupControllerTest(t)
	app := newAdminApp()

	resp := adminRequest(t, app, http.MethodPost, "/admin/enrollments/1/approve", "", "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, "missing actor identity")

	resp = adminRequest(t, app, http.MethodPost, "/admin/enrollments/1/approve", "intruder@example.com", "")
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode, "actor not on the allowlist")
}

func TestHandleAdminApproveEnrollment(t *testing.T) {
	db := setupControllerTest(t)
	app := newAdminApp()
	enr := seedAdminEnrollment(t, db, models.EnrollmentStatusPendingPayment)

	resp := adminRequest(t, app, http.MethodPost,
		"/admin/enrollments/1/approve", "admin@example.com", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var got models.Enrollment
	require.NoError(t, db.First(&got, enr.ID).Error)
	assert.Equal(t, models.EnrollmentStatusApproved, got.Status)

	// The approval is attributed to the authenticated actor.
	var audits int64
	require.NoError(t, db.Model(&models.AuditLog{}).
		Where("actor = ? AND action = ?", "admin@example.com", "enrollment.transition").
		Count(&audits).Error)
	assert.EqualValues(t, 1, audits)
}

func TestHandleAdminCancelEnrollment_InvalidTransition(t *testing.T) {
	db := setupControllerTest(t)
	app := newAdminApp()
	seedAdminEnrollment(t, db, models.EnrollmentStatusCancelled)

	resp := adminRequest(t, app, http.MethodPost,
		"/admin/enrollments/1/cancel", "admin@example.com", "")
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode, "cancelled is terminal")
}

func TestAdminTransition_NotFound(t *testing.T) {
	setupControllerTest(t)
	app := newAdminApp()

	resp := adminRequest(t, app, http.MethodPost,
		"/admin/enrollments/999/approve", "admin@example.com", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp = adminRequest(t, app, http.MethodPost,
		"/admin/enrollments/abc/approve", "admin@example.com", "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHandleAdminBalanceAdjustment(t *testing.T) {
	db := setupControllerTest(t)
	app := newAdminApp()
	payer := &models.Payer{Name: "Dana Rivera", Email: "dana@example.com"}
	require.NoError(t, db.Create(payer).Error)

	resp := adminRequest(t, app, http.MethodPost, "/admin/payers/1/adjustments",
		"admin@example.com", `{"amount_cents": -2500, "description": "goodwill credit reversal"}`)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	entry, err := models.LatestBalanceTransaction(db, payer.ID)
	require.NoError(t, err)
	assert.EqualValues(t, -2500, entry.AmountCents)
	assert.Equal(t, models.TransactionTypeAdjustment, entry.Type)
	assert.Contains(t, entry.Reference, "adj:")

	// Zero adjustments are invariant violations, surfaced as 400.
	resp = adminRequest(t, app, http.MethodPost, "/admin/payers/1/adjustments",
		"admin@example.com", `{"amount_cents": 0}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = adminRequest(t, app, http.MethodPost, "/admin/payers/999/adjustments",
		"admin@example.com", `{"amount_cents": 100}`)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestHandleAdminContactUpdate_SyncsWaiver(t *testing.T) {
	db := setupControllerTest(t)
	app := newAdminApp()
	seedAdminEnrollment(t, db, models.EnrollmentStatusActive)
	require.NoError(t, db.Create(&models.Waiver{
		GuardianEmail:    "dana@example.com",
		ChildName:        "Sam Rivera",
		EmergencyContact: "Robin Rivera +1 555 0150",
	}).Error)

	resp := adminRequest(t, app, http.MethodPut, "/admin/enrollments/1/contact",
		"admin@example.com", `{"child_name": "Samuel Rivera", "emergency_contact": "Alex Chen +1 555 0122"}`)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Empty(t, body["warnings"])

	var w models.Waiver
	require.NoError(t, db.First(&w).Error)
	assert.Equal(t, "Samuel Rivera", w.ChildName)
	assert.Equal(t, "Alex Chen +1 555 0122", w.EmergencyContact)
}

func TestHandleAdminContactUpdate_WarnsWithoutWaiver(t *testing.T) {
	db := setupControllerTest(t)
	app := newAdminApp()
	enr := seedAdminEnrollment(t, db, models.EnrollmentStatusActive)

	resp := adminRequest(t, app, http.MethodPut, "/admin/enrollments/1/contact",
		"admin@example.com", `{"child_name": "Samuel Rivera"}`)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode, "sync problems never fail the edit")

	body := decodeBody(t, resp)
	assert.NotEmpty(t, body["warnings"])

	var got models.Enrollment
	require.NoError(t, db.First(&got, enr.ID).Error)
	assert.Equal(t, "Samuel Rivera", got.ChildName, "the enrollment edit itself is applied")
}
