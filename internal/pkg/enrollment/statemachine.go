package enrollment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/launchpadhq/enrollhub/app/models"
	"github.com/launchpadhq/enrollhub/internal/pkg/audit"
)

// ErrInvalidTransition is returned when a transition is attempted on a
// record not currently in a state that permits it. This is the system's
// defense against stale, out-of-order webhook delivery.
var ErrInvalidTransition = errors.New("invalid enrollment transition")

// Submission carries the fields a guardian provides when enrolling a child.
type Submission struct {
	GuardianName     string
	GuardianEmail    string
	GuardianPhone    string
	ChildName        string
	EmergencyContact string
	LocationID       uint
	PlanType         string
	SignatureRef     string
}

// StateMachine owns the enrollment aggregate's allowed states and
// transitions. It is invoked by webhook handlers, the reconciliation monitor
// and admin actions.
type StateMachine struct {
	db    *gorm.DB
	audit *audit.Recorder
}

// NewStateMachine builds a state machine over the given database.
func NewStateMachine(db *gorm.DB, recorder *audit.Recorder) *StateMachine {
	return &StateMachine{db: db, audit: recorder}
}

// allowed transitions; activation is additionally idempotent (active→active
// is a no-op rather than a rejection, see Activate).
var transitions = map[string][]string{
	models.EnrollmentStatusPending:        {models.EnrollmentStatusPendingPayment, models.EnrollmentStatusApproved, models.EnrollmentStatusActive, models.EnrollmentStatusCancelled},
	models.EnrollmentStatusPendingPayment: {models.EnrollmentStatusApproved, models.EnrollmentStatusActive, models.EnrollmentStatusCancelled},
	models.EnrollmentStatusApproved:       {models.EnrollmentStatusActive, models.EnrollmentStatusCancelled},
	models.EnrollmentStatusActive:         {models.EnrollmentStatusCancelled},
	models.EnrollmentStatusCancelled:      {},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to string) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Submit creates a new enrollment in pending_payment, or, when a live
// non-active record already exists for the same guardian email + child name
// + location, reuses it: editable fields are overwritten and the record is
// moved back to pending_payment. Cancelled rows never take part in the
// duplicate check and are never reused.
func (sm *StateMachine) Submit(ctx context.Context, actor string, sub Submission) (*models.Enrollment, error) {
	_ = ctx
	email := strings.ToLower(strings.TrimSpace(sub.GuardianEmail))
	child := strings.TrimSpace(sub.ChildName)
	if email == "" || child == "" || sub.LocationID == 0 {
		return nil, errors.New("guardian email, child name and location are required")
	}

	existing, err := models.FindLiveEnrollment(sm.db, email, child, sub.LocationID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if existing != nil {
		if existing.Status == models.EnrollmentStatusActive {
			return nil, fmt.Errorf("%w: enrollment %d is already active", ErrInvalidTransition, existing.ID)
		}
		// Resubmission: overwrite editable fields in place instead of
		// creating a duplicate live row.
		existing.GuardianName = strings.TrimSpace(sub.GuardianName)
		existing.GuardianPhone = strings.TrimSpace(sub.GuardianPhone)
		existing.EmergencyContact = strings.TrimSpace(sub.EmergencyContact)
		existing.PlanType = sub.PlanType
		existing.SignatureRef = sub.SignatureRef
		existing.Status = models.EnrollmentStatusPendingPayment
		if err := existing.Validate(); err != nil {
			return nil, err
		}
		if err := sm.db.Save(existing).Error; err != nil {
			return nil, err
		}
		sm.audit.MustRecord(actor, "enrollment.resubmitted", "enrollment", existing.ID, map[string]interface{}{
			"status": existing.Status,
		})
		return existing, nil
	}

	e := &models.Enrollment{
		GuardianName:     strings.TrimSpace(sub.GuardianName),
		GuardianEmail:    email,
		GuardianPhone:    strings.TrimSpace(sub.GuardianPhone),
		ChildName:        child,
		EmergencyContact: strings.TrimSpace(sub.EmergencyContact),
		LocationID:       sub.LocationID,
		PlanType:         sub.PlanType,
		SignatureRef:     sub.SignatureRef,
		Status:           models.EnrollmentStatusPendingPayment,
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if err := sm.db.Create(e).Error; err != nil {
		return nil, err
	}
	sm.audit.MustRecord(actor, "enrollment.submitted", "enrollment", e.ID, map[string]interface{}{
		"location_id": e.LocationID,
		"plan_type":   e.PlanType,
	})
	return e, nil
}

// Transition moves an enrollment to a target status, rejecting illegal moves
// with ErrInvalidTransition. The rejection is logged, never silently applied.
func (sm *StateMachine) Transition(ctx context.Context, actor string, id uint, to string) (*models.Enrollment, error) {
	_ = ctx
	var e models.Enrollment
	if err := sm.db.First(&e, id).Error; err != nil {
		return nil, err
	}

	if !CanTransition(e.Status, to) {
		log.Warnf("[Enrollment] rejected transition %s -> %s for enrollment %d", e.Status, to, e.ID)
		return nil, fmt.Errorf("%w: %s -> %s for enrollment %d", ErrInvalidTransition, e.Status, to, e.ID)
	}

	from := e.Status
	e.Status = to
	if err := sm.db.Save(&e).Error; err != nil {
		return nil, err
	}
	sm.audit.MustRecord(actor, "enrollment.transition", "enrollment", e.ID, map[string]interface{}{
		"from": from,
		"to":   to,
	})
	return &e, nil
}

// Approve is the admin approval action.
func (sm *StateMachine) Approve(ctx context.Context, actor string, id uint) (*models.Enrollment, error) {
	return sm.Transition(ctx, actor, id, models.EnrollmentStatusApproved)
}

// Cancel moves an enrollment to its terminal status. A cancelled record can
// only be reactivated by a fresh submission.
func (sm *StateMachine) Cancel(ctx context.Context, actor string, id uint) (*models.Enrollment, error) {
	return sm.Transition(ctx, actor, id, models.EnrollmentStatusCancelled)
}

// Activate confirms payment for an enrollment. Idempotent: re-applying to an
// already-active record is a no-op, which makes redelivered checkout events
// safe. A cancelled record is rejected.
func (sm *StateMachine) Activate(ctx context.Context, actor string, id uint, subscriptionID string) (*models.Enrollment, error) {
	_ = ctx
	var e models.Enrollment
	if err := sm.db.First(&e, id).Error; err != nil {
		return nil, err
	}

	if e.Status == models.EnrollmentStatusActive {
		return &e, nil
	}
	if !CanTransition(e.Status, models.EnrollmentStatusActive) {
		log.Warnf("[Enrollment] rejected activation of enrollment %d in status %s", e.ID, e.Status)
		return nil, fmt.Errorf("%w: %s -> active for enrollment %d", ErrInvalidTransition, e.Status, e.ID)
	}

	from := e.Status
	e.Status = models.EnrollmentStatusActive
	if subscriptionID != "" {
		e.SubscriptionID = subscriptionID
	}
	if err := sm.db.Save(&e).Error; err != nil {
		return nil, err
	}
	sm.audit.MustRecord(actor, "enrollment.activated", "enrollment", e.ID, map[string]interface{}{
		"from":            from,
		"subscription_id": subscriptionID,
	})
	return &e, nil
}

// AttachCheckoutSession records the payment-session reference created for an
// enrollment by the checkout flow (an external collaborator).
func (sm *StateMachine) AttachCheckoutSession(ctx context.Context, actor string, id uint, sessionID string) error {
	_ = ctx
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return errors.New("session id is required")
	}
	res := sm.db.Model(&models.Enrollment{}).Where("id = ?", id).Update("checkout_session_id", sessionID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	sm.audit.MustRecord(actor, "enrollment.checkout_session_attached", "enrollment", id, map[string]interface{}{
		"session_id": sessionID,
	})
	return nil
}
