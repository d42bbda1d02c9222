package enrollment

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/launchpadhq/enrollhub/app/models"
	"github.com/launchpadhq/enrollhub/internal/pkg/audit"
	"github.com/launchpadhq/enrollhub/internal/pkg/database"
)

func newTestStateMachine(t *testing.T) (*StateMachine, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "enrollhub.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	database.Migrate(db)
	return NewStateMachine(db, audit.NewRecorder(db)), db
}

func validSubmission() Submission {
	return Submission{
		GuardianName:  "Dana Rivera",
		GuardianEmail: "Dana@Example.com",
		GuardianPhone: "+1 555 0100",
		ChildName:     "Sam Rivera",
		LocationID:    3,
		PlanType:      models.PlanTypeMonthly,
		SignatureRef:  "sig_abc",
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{models.EnrollmentStatusPending, models.EnrollmentStatusPendingPayment, true},
		{models.EnrollmentStatusPendingPayment, models.EnrollmentStatusActive, true},
		{models.EnrollmentStatusApproved, models.EnrollmentStatusActive, true},
		{models.EnrollmentStatusActive, models.EnrollmentStatusCancelled, true},
		{models.EnrollmentStatusActive, models.EnrollmentStatusApproved, false},
		{models.EnrollmentStatusCancelled, models.EnrollmentStatusActive, false},
		{models.EnrollmentStatusCancelled, models.EnrollmentStatusPendingPayment, false},
		{models.EnrollmentStatusApproved, models.EnrollmentStatusPending, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Fatalf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestSubmit_CreatesPendingPayment(t *testing.T) {
	sm, db := newTestStateMachine(t)

	enr, err := sm.Submit(context.Background(), "guardian:dana@example.com", validSubmission())
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusPendingPayment, enr.Status)
	assert.Equal(t, "dana@example.com", enr.GuardianEmail, "email is normalized on submission")

	var audits int64
	require.NoError(t, db.Model(&models.AuditLog{}).
		Where("action = ?", "enrollment.submitted").Count(&audits).Error)
	assert.EqualValues(t, 1, audits)
}

func TestSubmit_MissingFields(t *testing.T) {
	sm, _ := newTestStateMachine(t)

	sub := validSubmission()
	sub.GuardianEmail = ""
	_, err := sm.Submit(context.Background(), "guardian:", sub)
	require.Error(t, err)

	sub = validSubmission()
	sub.LocationID = 0
	_, err = sm.Submit(context.Background(), "guardian:dana@example.com", sub)
	require.Error(t, err)
}

func TestSubmit_ResubmissionReusesLiveRow(t *testing.T) {
	sm, db := newTestStateMachine(t)

	first, err := sm.Submit(context.Background(), "guardian:dana@example.com", validSubmission())
	require.NoError(t, err)

	_, err = sm.Approve(context.Background(), "admin@example.com", first.ID)
	require.NoError(t, err)

	resub := validSubmission()
	resub.GuardianPhone = "+1 555 0199"
	resub.EmergencyContact = "Robin Rivera +1 555 0150"
	second, err := sm.Submit(context.Background(), "guardian:dana@example.com", resub)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "a live slot is reused, not duplicated")
	assert.Equal(t, models.EnrollmentStatusPendingPayment, second.Status)
	assert.Equal(t, "+1 555 0199", second.GuardianPhone)
	assert.Equal(t, "Robin Rivera +1 555 0150", second.EmergencyContact)

	var rows int64
	require.NoError(t, db.Model(&models.Enrollment{}).Count(&rows).Error)
	assert.EqualValues(t, 1, rows)
}

func TestSubmit_ActiveDuplicateRejected(t *testing.T) {
	sm, _ := newTestStateMachine(t)

	first, err := sm.Submit(context.Background(), "guardian:dana@example.com", validSubmission())
	require.NoError(t, err)
	_, err = sm.Activate(context.Background(), models.ActorSystem, first.ID, "sub_1")
	require.NoError(t, err)

	_, err = sm.Submit(context.Background(), "guardian:dana@example.com", validSubmission())
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSubmit_CancelledRowNeverReused(t *testing.T) {
	sm, db := newTestStateMachine(t)

	first, err := sm.Submit(context.Background(), "guardian:dana@example.com", validSubmission())
	require.NoError(t, err)
	_, err = sm.Cancel(context.Background(), "admin@example.com", first.ID)
	require.NoError(t, err)

	second, err := sm.Submit(context.Background(), "guardian:dana@example.com", validSubmission())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID, "cancelled rows stay out of the duplicate check")

	var rows int64
	require.NoError(t, db.Model(&models.Enrollment{}).Count(&rows).Error)
	assert.EqualValues(t, 2, rows)
}

func TestTransition_IllegalRejected(t *testing.T) {
	sm, db := newTestStateMachine(t)

	enr, err := sm.Submit(context.Background(), "guardian:dana@example.com", validSubmission())
	require.NoError(t, err)
	_, err = sm.Activate(context.Background(), models.ActorSystem, enr.ID, "sub_1")
	require.NoError(t, err)

	_, err = sm.Transition(context.Background(), "admin@example.com", enr.ID, models.EnrollmentStatusApproved)
	require.ErrorIs(t, err, ErrInvalidTransition)

	var got models.Enrollment
	require.NoError(t, db.First(&got, enr.ID).Error)
	assert.Equal(t, models.EnrollmentStatusActive, got.Status, "a rejected transition writes nothing")
}

func TestActivate_Idempotent(t *testing.T) {
	sm, _ := newTestStateMachine(t)

	enr, err := sm.Submit(context.Background(), "guardian:dana@example.com", validSubmission())
	require.NoError(t, err)

	first, err := sm.Activate(context.Background(), models.ActorSystem, enr.ID, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "sub_1", first.SubscriptionID)

	// Redelivered checkout events re-activate; that must be a no-op.
	second, err := sm.Activate(context.Background(), models.ActorSystem, enr.ID, "sub_other")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, second.Status)
	assert.Equal(t, "sub_1", second.SubscriptionID, "no-op activation must not overwrite the subscription link")
}

func TestActivate_CancelledRejected(t *testing.T) {
	sm, _ := newTestStateMachine(t)

	enr, err := sm.Submit(context.Background(), "guardian:dana@example.com", validSubmission())
	require.NoError(t, err)
	_, err = sm.Cancel(context.Background(), "admin@example.com", enr.ID)
	require.NoError(t, err)

	_, err = sm.Activate(context.Background(), models.ActorSystem, enr.ID, "sub_1")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAttachCheckoutSession(t *testing.T) {
	sm, db := newTestStateMachine(t)

	enr, err := sm.Submit(context.Background(), "guardian:dana@example.com", validSubmission())
	require.NoError(t, err)
	require.NoError(t, sm.AttachCheckoutSession(context.Background(), models.ActorSystem, enr.ID, "cs_1"))

	var got models.Enrollment
	require.NoError(t, db.First(&got, enr.ID).Error)
	assert.Equal(t, "cs_1", got.CheckoutSessionID)

	err = sm.AttachCheckoutSession(context.Background(), models.ActorSystem, 999, "cs_2")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	require.Error(t, sm.AttachCheckoutSession(context.Background(), models.ActorSystem, enr.ID, "  "))
}
