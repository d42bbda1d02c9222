package waiversync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/launchpadhq/enrollhub/app/models"
	"github.com/launchpadhq/enrollhub/internal/pkg/audit"
)

// SyncWarning is a non-fatal sync problem surfaced to the caller as a
// side-channel. Sync never fails the triggering request.
type SyncWarning struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ContactFields is the bounded field set propagated between the waiver and
// enrollment records for the same child.
type ContactFields struct {
	ChildName        string
	ChildBirthDate   *string // ISO date, nil to leave unchanged
	EmergencyContact string
}

// Syncer propagates child-identity and emergency-contact edits between the
// two loosely-coupled records. Pairing is best-effort: guardian email plus a
// match against the pre-change child name, since the name itself may be part
// of the edit. Renames with no surviving match produce a warning, not an
// error.
type Syncer struct {
	db    *gorm.DB
	audit *audit.Recorder
}

// NewSyncer builds a syncer over the given database.
func NewSyncer(db *gorm.DB, recorder *audit.Recorder) *Syncer {
	return &Syncer{db: db, audit: recorder}
}

// SyncEnrollmentToWaiver applies an enrollment contact edit to the paired
// waiver. previousChildName is the child name before the edit; fields carry
// the post-edit values. Idempotent: re-invoking with the same input finds
// the target already up to date and writes nothing.
func (s *Syncer) SyncEnrollmentToWaiver(ctx context.Context, actor, guardianEmail, previousChildName string, fields ContactFields) []SyncWarning {
	var warnings []SyncWarning

	waiver, warn := s.findWaiver(ctx, guardianEmail, previousChildName, fields.ChildName)
	if warn != nil {
		return append(warnings, *warn)
	}

	updates := map[string]interface{}{}
	if name := strings.TrimSpace(fields.ChildName); name != "" && waiver.ChildName != name {
		updates["child_name"] = name
	}
	if ec := strings.TrimSpace(fields.EmergencyContact); ec != "" && waiver.EmergencyContact != ec {
		updates["emergency_contact"] = ec
	}
	if bd, warn := birthDateUpdate(fields.ChildBirthDate, waiver.ChildBirthDate); warn != nil {
		warnings = append(warnings, *warn)
	} else if bd != nil {
		updates["child_birth_date"] = *bd
	}
	if len(updates) == 0 {
		return warnings
	}

	if err := s.db.WithContext(ctx).Model(&models.Waiver{}).Where("id = ?", waiver.ID).Updates(updates).Error; err != nil {
		log.Warnf("[WaiverSync] updating waiver %d failed: %v", waiver.ID, err)
		return append(warnings, SyncWarning{Message: fmt.Sprintf("waiver update failed: %v", err)})
	}
	s.audit.MustRecord(actor, "waiver.synced_from_enrollment", "waiver", waiver.ID, map[string]interface{}{
		"guardian_email": guardianEmail,
		"fields":         fieldNames(updates),
	})
	return warnings
}

// SyncWaiverToEnrollment applies a waiver contact edit to the paired live
// enrollment. Same pairing and failure semantics as the other direction.
func (s *Syncer) SyncWaiverToEnrollment(ctx context.Context, actor, guardianEmail, previousChildName string, fields ContactFields) []SyncWarning {
	var warnings []SyncWarning

	enr, warn := s.findEnrollment(ctx, guardianEmail, previousChildName, fields.ChildName)
	if warn != nil {
		return append(warnings, *warn)
	}

	updates := map[string]interface{}{}
	if name := strings.TrimSpace(fields.ChildName); name != "" && enr.ChildName != name {
		updates["child_name"] = name
	}
	if ec := strings.TrimSpace(fields.EmergencyContact); ec != "" && enr.EmergencyContact != ec {
		updates["emergency_contact"] = ec
	}
	if bd, warn := birthDateUpdate(fields.ChildBirthDate, enr.ChildBirthDate); warn != nil {
		warnings = append(warnings, *warn)
	} else if bd != nil {
		updates["child_birth_date"] = *bd
	}
	if len(updates) == 0 {
		return warnings
	}

	if err := s.db.WithContext(ctx).Model(&models.Enrollment{}).Where("id = ?", enr.ID).Updates(updates).Error; err != nil {
		log.Warnf("[WaiverSync] updating enrollment %d failed: %v", enr.ID, err)
		return append(warnings, SyncWarning{Message: fmt.Sprintf("enrollment update failed: %v", err)})
	}
	s.audit.MustRecord(actor, "enrollment.synced_from_waiver", "enrollment", enr.ID, map[string]interface{}{
		"guardian_email": guardianEmail,
		"fields":         fieldNames(updates),
	})
	return warnings
}

// findWaiver pairs by guardian email + pre-change name, falling back to the
// post-change name for retried requests whose first invocation already
// renamed the target.
func (s *Syncer) findWaiver(ctx context.Context, guardianEmail, previousName, newName string) (*models.Waiver, *SyncWarning) {
	email := strings.ToLower(strings.TrimSpace(guardianEmail))
	for _, name := range pairingNames(previousName, newName) {
		var w models.Waiver
		err := s.db.WithContext(ctx).
			Where("guardian_email = ? AND child_name = ?", email, name).
			First(&w).Error
		if err == nil {
			return &w, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &SyncWarning{Message: fmt.Sprintf("waiver lookup failed: %v", err)}
		}
	}
	return nil, &SyncWarning{
		Field:   "child_name",
		Message: fmt.Sprintf("no waiver found for %s / %q", email, previousName),
	}
}

func (s *Syncer) findEnrollment(ctx context.Context, guardianEmail, previousName, newName string) (*models.Enrollment, *SyncWarning) {
	email := strings.ToLower(strings.TrimSpace(guardianEmail))
	for _, name := range pairingNames(previousName, newName) {
		var e models.Enrollment
		err := s.db.WithContext(ctx).
			Where("guardian_email = ? AND child_name = ? AND status IN ?",
				email, name, models.LiveEnrollmentStatuses()).
			First(&e).Error
		if err == nil {
			return &e, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &SyncWarning{Message: fmt.Sprintf("enrollment lookup failed: %v", err)}
		}
	}
	return nil, &SyncWarning{
		Field:   "child_name",
		Message: fmt.Sprintf("no live enrollment found for %s / %q", email, previousName),
	}
}

// birthDateUpdate parses an ISO-date edit and reports whether the target
// needs it. A nil input leaves the target unchanged; an unparseable date is
// a warning, never a partial write.
func birthDateUpdate(input *string, current *time.Time) (*time.Time, *SyncWarning) {
	if input == nil {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", strings.TrimSpace(*input))
	if err != nil {
		return nil, &SyncWarning{
			Field:   "child_birth_date",
			Message: fmt.Sprintf("unparseable birth date %q", *input),
		}
	}
	if current != nil && current.Equal(parsed) {
		return nil, nil
	}
	return &parsed, nil
}

func pairingNames(previous, current string) []string {
	previous = strings.TrimSpace(previous)
	current = strings.TrimSpace(current)
	if current == "" || current == previous {
		return []string{previous}
	}
	return []string{previous, current}
}

func fieldNames(updates map[string]interface{}) []string {
	names := make([]string, 0, len(updates))
	for k := range updates {
		names = append(names, k)
	}
	return names
}
