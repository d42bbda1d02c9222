package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/launchpadhq/enrollhub/app/models"
	"github.com/launchpadhq/enrollhub/app/repository"
	"github.com/launchpadhq/enrollhub/internal/pkg/database"
	"github.com/launchpadhq/enrollhub/internal/pkg/ledger"
)

const defaultPageSize = 50

// HandleAdminListEnrollments lists enrollments, optionally filtered by
// status, newest first. A `session` query parameter instead resolves the one
// enrollment holding that checkout session reference, which is how support
// maps a processor session ID back to a family.
func HandleAdminListEnrollments(c *fiber.Ctx) error {
	repos := repository.GetGlobalRepositories()

	if session := strings.TrimSpace(c.Query("session")); session != "" {
		enr, err := repos.Enrollment.GetByCheckoutSessionID(session)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusOK).JSON(fiber.Map{"enrollments": []models.Enrollment{}, "total": 0})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": err.Error()})
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"enrollments": []models.Enrollment{*enr}, "total": 1})
	}

	statuses := models.LiveEnrollmentStatuses()
	if s := strings.TrimSpace(c.Query("status")); s != "" {
		statuses = strings.Split(s, ",")
	}
	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", defaultPageSize)
	if limit <= 0 || limit > 200 {
		limit = defaultPageSize
	}

	list, err := repos.Enrollment.ListByStatus(statuses, offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": err.Error()})
	}
	total, err := repos.Enrollment.Count()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": err.Error()})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"enrollments": list,
		"total":       total,
		"offset":      offset,
		"limit":       limit,
	})
}

// HandleAdminGetEnrollment returns one enrollment with its paired waiver (if
// any) and its audit trail.
func HandleAdminGetEnrollment(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid enrollment id"})
	}

	repos := repository.GetGlobalRepositories()
	enr, err := repos.Enrollment.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Enrollment not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": err.Error()})
	}

	// Pairing is best-effort; a missing waiver is represented as null, not
	// an error.
	var waiver *models.Waiver
	if w, err := repos.Waiver.FindByGuardianAndChild(enr.GuardianEmail, enr.ChildName); err == nil {
		waiver = w
	}

	trail, err := repos.AuditLog.ListByEntity("enrollment", enr.ID, defaultPageSize)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": err.Error()})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"enrollment": enr,
		"waiver":     waiver,
		"audit_log":  trail,
	})
}

// HandleAdminPayerBalance returns a payer's current balance and recent
// ledger entries. The balance is derived from the latest entry, never from a
// stored column.
func HandleAdminPayerBalance(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid payer id"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db := database.GetDB()
	repos := repository.GetGlobalRepositories()
	payer, err := repos.Payer.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Payer not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": err.Error()})
	}

	balance, err := newLedger(db).Balance(ctx, payer.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": err.Error()})
	}

	var entries []models.BalanceTransaction
	if err := db.Where("payer_id = ?", payer.ID).Order("id DESC").Limit(defaultPageSize).Find(&entries).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": err.Error()})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"payer":             payer,
		"balance_cents":     balance,
		"balance_formatted": ledger.FormatCents(balance),
		"transactions":      entries,
	})
}

// HandleAdminListAuditLog returns the most recent audit records written by
// one actor, newest first.
func HandleAdminListAuditLog(c *fiber.Ctx) error {
	actor := strings.TrimSpace(c.Query("actor"))
	if actor == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "actor query parameter is required"})
	}
	limit := c.QueryInt("limit", defaultPageSize)
	if limit <= 0 || limit > 200 {
		limit = defaultPageSize
	}

	repos := repository.GetGlobalRepositories()
	trail, err := repos.AuditLog.ListByActor(actor, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": err.Error()})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"actor":     actor,
		"audit_log": trail,
	})
}
