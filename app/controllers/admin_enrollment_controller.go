package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/launchpadhq/enrollhub/app/models"
	"github.com/launchpadhq/enrollhub/internal/pkg/database"
	"github.com/launchpadhq/enrollhub/internal/pkg/enrollment"
	"github.com/launchpadhq/enrollhub/internal/pkg/middleware"
	"github.com/launchpadhq/enrollhub/internal/pkg/waiversync"
)

// HandleAdminApproveEnrollment applies the admin approval transition.
func HandleAdminApproveEnrollment(c *fiber.Ctx) error {
	return adminTransition(c, func(ctx context.Context, sm *enrollment.StateMachine, actor string, id uint) (*models.Enrollment, error) {
		return sm.Approve(ctx, actor, id)
	})
}

// HandleAdminCancelEnrollment applies the terminal cancellation transition.
func HandleAdminCancelEnrollment(c *fiber.Ctx) error {
	return adminTransition(c, func(ctx context.Context, sm *enrollment.StateMachine, actor string, id uint) (*models.Enrollment, error) {
		return sm.Cancel(ctx, actor, id)
	})
}

func adminTransition(c *fiber.Ctx, apply func(context.Context, *enrollment.StateMachine, string, uint) (*models.Enrollment, error)) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid enrollment id"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sm := newStateMachine(database.GetDB())
	enr, err := apply(ctx, sm, middleware.GetActor(c), uint(id))
	if err != nil {
		switch {
		case errors.Is(err, enrollment.ErrInvalidTransition):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "invalid_transition", "message": err.Error()})
		case errors.Is(err, gorm.ErrRecordNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Enrollment not found"})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": err.Error()})
		}
	}
	return c.Status(fiber.StatusOK).JSON(enr)
}

type balanceAdjustmentRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description"`
}

// HandleAdminBalanceAdjustment appends a manual adjustment to a payer's
// ledger. Invariant violations (zero amount, unknown payer) surface as
// structured errors, never silent coercion.
func HandleAdminBalanceAdjustment(c *fiber.Ctx) error {
	payerID, err := c.ParamsInt("id")
	if err != nil || payerID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid payer id"})
	}

	var req balanceAdjustmentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Malformed adjustment body"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db := database.GetDB()
	var payer models.Payer
	if err := db.First(&payer, payerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Payer not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": err.Error()})
	}

	reference := "adj:" + uuid.NewString()
	entry, err := newLedger(db).Append(ctx, middleware.GetActor(c), payer.ID,
		models.TransactionTypeAdjustment, req.AmountCents, strings.TrimSpace(req.Description), reference)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_adjustment", "message": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(entry)
}

type contactUpdateRequest struct {
	ChildName        string `json:"child_name"`
	EmergencyContact string `json:"emergency_contact"`
}

// HandleAdminContactUpdate edits an enrollment's child-identity and
// emergency-contact fields and propagates them to the paired waiver. Sync
// problems come back as warnings; they never fail the edit itself.
func HandleAdminContactUpdate(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid enrollment id"})
	}

	var req contactUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Malformed contact body"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db := database.GetDB()
	var enr models.Enrollment
	if err := db.First(&enr, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Enrollment not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": err.Error()})
	}

	previousChildName := enr.ChildName
	if name := strings.TrimSpace(req.ChildName); name != "" {
		enr.ChildName = name
	}
	if ec := strings.TrimSpace(req.EmergencyContact); ec != "" {
		enr.EmergencyContact = ec
	}
	if err := db.Save(&enr).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": err.Error()})
	}

	actor := middleware.GetActor(c)
	syncer := waiversync.NewSyncer(db, newAuditRecorder(db))
	warnings := syncer.SyncEnrollmentToWaiver(ctx, actor, enr.GuardianEmail, previousChildName, waiversync.ContactFields{
		ChildName:        enr.ChildName,
		EmergencyContact: enr.EmergencyContact,
	})
	if warnings == nil {
		warnings = []waiversync.SyncWarning{}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"enrollment": enr,
		"warnings":   warnings,
	})
}
