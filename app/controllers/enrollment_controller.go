package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/launchpadhq/enrollhub/app/repository"
	"github.com/launchpadhq/enrollhub/internal/pkg/database"
	"github.com/launchpadhq/enrollhub/internal/pkg/enrollment"
)

type enrollmentSubmissionRequest struct {
	GuardianName     string `json:"guardian_name"`
	GuardianEmail    string `json:"guardian_email"`
	GuardianPhone    string `json:"guardian_phone"`
	ChildName        string `json:"child_name"`
	EmergencyContact string `json:"emergency_contact"`
	LocationID       uint   `json:"location_id"`
	PlanType         string `json:"plan_type"`
	SignatureRef     string `json:"signature_ref"`
}

// HandleEnrollmentSubmit accepts a guardian's enrollment submission. A
// resubmission while a live non-active record exists for the same guardian,
// child and location updates that record in place instead of creating a
// duplicate.
func HandleEnrollmentSubmit(c *fiber.Ctx) error {
	var req enrollmentSubmissionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Malformed submission body"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sm := newStateMachine(database.GetDB())
	actor := "guardian:" + strings.ToLower(strings.TrimSpace(req.GuardianEmail))
	enr, err := sm.Submit(ctx, actor, enrollment.Submission{
		GuardianName:     req.GuardianName,
		GuardianEmail:    req.GuardianEmail,
		GuardianPhone:    req.GuardianPhone,
		ChildName:        req.ChildName,
		EmergencyContact: req.EmergencyContact,
		LocationID:       req.LocationID,
		PlanType:         req.PlanType,
		SignatureRef:     req.SignatureRef,
	})
	if err != nil {
		if errors.Is(err, enrollment.ErrInvalidTransition) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "invalid_transition", "message": err.Error()})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_submission", "message": err.Error()})
	}

	// Every guardian gets a payer account so checkout metadata can carry a
	// payer reference. Best-effort: a failure here does not undo the
	// submission.
	repos := repository.GetGlobalRepositories()
	if _, err := repos.Payer.GetOrCreateByEmail(enr.GuardianEmail, enr.GuardianName); err != nil {
		log.Warnf("[Enrollment] provisioning payer for %s failed: %v", enr.GuardianEmail, err)
	}

	return c.Status(fiber.StatusCreated).JSON(enr)
}
