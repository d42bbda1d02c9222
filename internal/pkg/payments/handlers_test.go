package payments

import (
	"context"
	"fmt"
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
	"github.com/launchpadhq/enrollhub/internal/pkg/enrollment"
	"github.com/launchpadhq/enrollhub/internal/pkg/ledger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "enrollhub.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	database.Migrate(db)
	return db
}

func newTestHandlers(t *testing.T) (*Handlers, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	recorder := audit.NewRecorder(db)
	svc := NewServiceFromDB(db)
	sm := enrollment.NewStateMachine(db, recorder)
	lg := ledger.New(db, recorder)
	return NewHandlers(svc, sm, lg, nil), db
}

func seedEnrollment(t *testing.T, db *gorm.DB, status string) *models.Enrollment {
	t.Helper()
	e := &models.Enrollment{
		GuardianName:  "Dana Rivera",
		GuardianEmail: "dana@example.com",
		ChildName:     "Sam Rivera",
		LocationID:    3,
		PlanType:      models.PlanTypeMonthly,
		Status:        status,
	}
	require.NoError(t, db.Create(e).Error)
	return e
}

func seedPayer(t *testing.T, db *gorm.DB) *models.Payer {
	t.Helper()
	p := &models.Payer{Name: "Dana Rivera", Email: "dana@example.com"}
	require.NoError(t, db.Create(p).Error)
	return p
}

func seedPayment(t *testing.T, db *gorm.DB, payerID uint, amountCents int64, status string) *models.Payment {
	t.Helper()
	p := &models.Payment{
		PayerID:         payerID,
		PaymentIntentID: fmt.Sprintf("pi_%d_%s", payerID, status),
		AmountCents:     amountCents,
		Status:          status,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func eventOf(eventType, object string) *Event {
	ev := &Event{ID: "evt_" + eventType, Type: eventType}
	ev.Data.Object = []byte(object)
	return ev
}

func TestHandleCheckoutCompleted_ActivatesEnrollment(t *testing.T) {
	h, db := newTestHandlers(t)
	payer := seedPayer(t, db)
	enr := seedEnrollment(t, db, models.EnrollmentStatusPendingPayment)

	ev := eventOf(EventCheckoutSessionCompleted, fmt.Sprintf(`{
		"id": "cs_1", "mode": "subscription", "subscription": "sub_1", "amount_total": 12900,
		"metadata": {"enrollment_id": "%d", "payer_id": "%d", "location_id": "3", "plan_id": "plan_monthly"}
	}`, enr.ID, payer.ID))
	require.NoError(t, h.HandleCheckoutCompleted(context.Background(), ev))

	var got models.Enrollment
	require.NoError(t, db.First(&got, enr.ID).Error)
	assert.Equal(t, models.EnrollmentStatusActive, got.Status)
	assert.Equal(t, "sub_1", got.SubscriptionID)

	sub, err := h.svc.Repo().GetSubscriptionByExternalID("sub_1")
	require.NoError(t, err)
	assert.Equal(t, payer.ID, sub.PayerID)
	assert.Equal(t, enr.ID, sub.EnrollmentID)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
}

func TestHandleCheckoutCompleted_RedeliveryIsNoOp(t *testing.T) {
	h, db := newTestHandlers(t)
	payer := seedPayer(t, db)
	enr := seedEnrollment(t, db, models.EnrollmentStatusPendingPayment)

	ev := eventOf(EventCheckoutSessionCompleted, fmt.Sprintf(`{
		"id": "cs_1", "mode": "subscription", "subscription": "sub_1",
		"metadata": {"enrollment_id": "%d", "payer_id": "%d", "plan_id": "plan_monthly"}
	}`, enr.ID, payer.ID))

	require.NoError(t, h.HandleCheckoutCompleted(context.Background(), ev))
	require.NoError(t, h.HandleCheckoutCompleted(context.Background(), ev))

	var subCount int64
	require.NoError(t, db.Model(&models.PaymentSubscription{}).Count(&subCount).Error)
	assert.EqualValues(t, 1, subCount, "redelivery must not insert a second subscription row")

	var got models.Enrollment
	require.NoError(t, db.First(&got, enr.ID).Error)
	assert.Equal(t, models.EnrollmentStatusActive, got.Status)
}

func TestHandleCheckoutCompleted_OneTimeSynthesizesSubscription(t *testing.T) {
	h, db := newTestHandlers(t)
	payer := seedPayer(t, db)
	enr := seedEnrollment(t, db, models.EnrollmentStatusPendingPayment)

	ev := eventOf(EventCheckoutSessionCompleted, fmt.Sprintf(`{
		"id": "cs_prepaid", "mode": "payment",
		"metadata": {"enrollment_id": "%d", "payer_id": "%d", "plan_id": "plan_prepaid"}
	}`, enr.ID, payer.ID))
	require.NoError(t, h.HandleCheckoutCompleted(context.Background(), ev))

	sub, err := h.svc.Repo().GetSubscriptionByExternalID(SyntheticSubscriptionID("cs_prepaid"))
	require.NoError(t, err)
	require.NotNil(t, sub.CurrentPeriodStart)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.Equal(t, oneTimePeriod, sub.CurrentPeriodEnd.Sub(*sub.CurrentPeriodStart))

	var got models.Enrollment
	require.NoError(t, db.First(&got, enr.ID).Error)
	assert.Equal(t, SyntheticSubscriptionID("cs_prepaid"), got.SubscriptionID)
}

func TestHandleCheckoutCompleted_UnknownEnrollment(t *testing.T) {
	h, db := newTestHandlers(t)
	seedPayer(t, db)

	ev := eventOf(EventCheckoutSessionCompleted, `{
		"id": "cs_1", "subscription": "sub_1",
		"metadata": {"enrollment_id": "999", "payer_id": "1", "plan_id": "plan_monthly"}
	}`)
	err := h.HandleCheckoutCompleted(context.Background(), ev)
	require.ErrorIs(t, err, ErrUnknownReference)
	assert.True(t, IsBusinessRejection(err), "unknown references are acknowledged, not retried")
}

func TestHandleCheckoutCompleted_CancelledEnrollmentRejected(t *testing.T) {
	h, db := newTestHandlers(t)
	payer := seedPayer(t, db)
	enr := seedEnrollment(t, db, models.EnrollmentStatusCancelled)

	ev := eventOf(EventCheckoutSessionCompleted, fmt.Sprintf(`{
		"id": "cs_1", "subscription": "sub_1",
		"metadata": {"enrollment_id": "%d", "payer_id": "%d", "plan_id": "plan_monthly"}
	}`, enr.ID, payer.ID))
	err := h.HandleCheckoutCompleted(context.Background(), ev)
	require.ErrorIs(t, err, ErrInvalidTransition)

	var got models.Enrollment
	require.NoError(t, db.First(&got, enr.ID).Error)
	assert.Equal(t, models.EnrollmentStatusCancelled, got.Status, "cancelled is terminal")
}

func TestHandleCheckoutCompleted_DirectBalancePayment(t *testing.T) {
	h, db := newTestHandlers(t)
	payer := seedPayer(t, db)
	payment := seedPayment(t, db, payer.ID, 5000, models.PaymentStatusPending)

	ev := eventOf(EventCheckoutSessionCompleted, fmt.Sprintf(`{
		"id": "cs_direct", "mode": "payment", "payment_intent": "pi_direct", "amount_total": 5000,
		"metadata": {"payment_id": "%d", "payer_id": "%d"}
	}`, payment.ID, payer.ID))

	require.NoError(t, h.HandleCheckoutCompleted(context.Background(), ev))

	var got models.Payment
	require.NoError(t, db.First(&got, payment.ID).Error)
	assert.Equal(t, models.PaymentStatusSucceeded, got.Status)
	assert.Equal(t, "cs_direct", got.SessionID)

	balance, err := h.ledger.Balance(context.Background(), payer.ID)
	require.NoError(t, err)
	assert.EqualValues(t, -5000, balance, "a payment decreases the balance")

	// Redelivery must not double-append.
	require.NoError(t, h.HandleCheckoutCompleted(context.Background(), ev))
	var entries int64
	require.NoError(t, db.Model(&models.BalanceTransaction{}).Where("payer_id = ?", payer.ID).Count(&entries).Error)
	assert.EqualValues(t, 1, entries)
}

func TestHandleCheckoutCompleted_DirectBalancePaymentRecoversMissingEntry(t *testing.T) {
	h, db := newTestHandlers(t)
	payer := seedPayer(t, db)
	// Drift state left by a crash between the payment save and the ledger
	// append: the row says succeeded, the ledger has no entry.
	payment := seedPayment(t, db, payer.ID, 5000, models.PaymentStatusSucceeded)

	ev := eventOf(EventCheckoutSessionCompleted, fmt.Sprintf(`{
		"id": "cs_drift", "mode": "payment", "payment_intent": "pi_drift", "amount_total": 5000,
		"metadata": {"payment_id": "%d", "payer_id": "%d"}
	}`, payment.ID, payer.ID))

	// The redelivery must write the missing entry; gating on the payment
	// status would retire it and leave the drift permanent.
	require.NoError(t, h.HandleCheckoutCompleted(context.Background(), ev))

	balance, err := h.ledger.Balance(context.Background(), payer.ID)
	require.NoError(t, err)
	assert.EqualValues(t, -5000, balance)

	// Once the entry exists, further redeliveries are no-ops.
	require.NoError(t, h.HandleCheckoutCompleted(context.Background(), ev))
	var entries int64
	require.NoError(t, db.Model(&models.BalanceTransaction{}).Where("payer_id = ?", payer.ID).Count(&entries).Error)
	assert.EqualValues(t, 1, entries)
}

func TestHandleSubscriptionUpserted_PreservesLinkage(t *testing.T) {
	h, db := newTestHandlers(t)
	payer := seedPayer(t, db)
	enr := seedEnrollment(t, db, models.EnrollmentStatusPendingPayment)

	checkout := eventOf(EventCheckoutSessionCompleted, fmt.Sprintf(`{
		"id": "cs_1", "subscription": "sub_1",
		"metadata": {"enrollment_id": "%d", "payer_id": "%d", "location_id": "3", "plan_id": "plan_monthly"}
	}`, enr.ID, payer.ID))
	require.NoError(t, h.HandleCheckoutCompleted(context.Background(), checkout))

	// A later lifecycle update carries no metadata; the linkage set by the
	// checkout handler must survive.
	update := eventOf(EventSubscriptionUpdated, `{"id": "sub_1", "status": "past_due", "cancel_at_period_end": true}`)
	require.NoError(t, h.HandleSubscriptionUpserted(context.Background(), update))

	sub, err := h.svc.Repo().GetSubscriptionByExternalID("sub_1")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusPastDue, sub.Status)
	assert.True(t, sub.CancelAtPeriodEnd)
	assert.Equal(t, payer.ID, sub.PayerID)
	assert.Equal(t, enr.ID, sub.EnrollmentID)
	assert.Equal(t, uint(3), sub.LocationID)
}

func TestHandleSubscriptionUpserted_BeforeCheckout(t *testing.T) {
	h, _ := newTestHandlers(t)

	// Out-of-order delivery: the created event may arrive before checkout.
	created := eventOf(EventSubscriptionCreated, `{"id": "sub_early", "status": "active", "plan": "plan_monthly"}`)
	require.NoError(t, h.HandleSubscriptionUpserted(context.Background(), created))

	sub, err := h.svc.Repo().GetSubscriptionByExternalID("sub_early")
	require.NoError(t, err)
	assert.Zero(t, sub.PayerID, "linkage arrives later with the checkout event")
}

func TestHandleSubscriptionDeleted_DoesNotTouchEnrollment(t *testing.T) {
	h, db := newTestHandlers(t)
	payer := seedPayer(t, db)
	enr := seedEnrollment(t, db, models.EnrollmentStatusPendingPayment)

	checkout := eventOf(EventCheckoutSessionCompleted, fmt.Sprintf(`{
		"id": "cs_1", "subscription": "sub_1",
		"metadata": {"enrollment_id": "%d", "payer_id": "%d", "plan_id": "plan_monthly"}
	}`, enr.ID, payer.ID))
	require.NoError(t, h.HandleCheckoutCompleted(context.Background(), checkout))

	deleted := eventOf(EventSubscriptionDeleted, `{"id": "sub_1", "status": "canceled"}`)
	require.NoError(t, h.HandleSubscriptionDeleted(context.Background(), deleted))

	sub, err := h.svc.Repo().GetSubscriptionByExternalID("sub_1")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCanceled, sub.Status, "row is marked, never deleted")

	var got models.Enrollment
	require.NoError(t, db.First(&got, enr.ID).Error)
	assert.Equal(t, models.EnrollmentStatusActive, got.Status, "cancellation is an administrative decision, not a cascade")
}

func TestHandleSubscriptionDeleted_Unknown(t *testing.T) {
	h, _ := newTestHandlers(t)
	ev := eventOf(EventSubscriptionDeleted, `{"id": "sub_missing", "status": "canceled"}`)
	err := h.HandleSubscriptionDeleted(context.Background(), ev)
	require.ErrorIs(t, err, ErrUnknownReference)
}

func TestHandlePaymentIntentFailed_Stale(t *testing.T) {
	h, db := newTestHandlers(t)
	payer := seedPayer(t, db)
	payment := seedPayment(t, db, payer.ID, 5000, models.PaymentStatusSucceeded)

	ev := eventOf(EventPaymentIntentFailed, fmt.Sprintf(`{"id": %q, "failure_message": "card declined"}`, payment.PaymentIntentID))
	err := h.HandlePaymentIntentFailed(context.Background(), ev)
	require.ErrorIs(t, err, ErrInvalidTransition)

	var got models.Payment
	require.NoError(t, db.First(&got, payment.ID).Error)
	assert.Equal(t, models.PaymentStatusSucceeded, got.Status, "stale failure must not regress a succeeded payment")
}

func TestHandlePaymentIntentFailed_RecordsReason(t *testing.T) {
	h, db := newTestHandlers(t)
	payer := seedPayer(t, db)
	payment := seedPayment(t, db, payer.ID, 5000, models.PaymentStatusPending)

	ev := eventOf(EventPaymentIntentFailed, fmt.Sprintf(`{"id": %q, "failure_message": "card declined"}`, payment.PaymentIntentID))
	require.NoError(t, h.HandlePaymentIntentFailed(context.Background(), ev))

	var got models.Payment
	require.NoError(t, db.First(&got, payment.ID).Error)
	assert.Equal(t, models.PaymentStatusFailed, got.Status)
	assert.Equal(t, "card declined", got.FailureReason)

	// Redelivered failure is a no-op.
	require.NoError(t, h.HandlePaymentIntentFailed(context.Background(), ev))
}

func TestHandleChargeRefunded_RestoresBalance(t *testing.T) {
	h, db := newTestHandlers(t)
	payer := seedPayer(t, db)
	payment := seedPayment(t, db, payer.ID, 5000, models.PaymentStatusPending)

	checkout := eventOf(EventCheckoutSessionCompleted, fmt.Sprintf(`{
		"id": "cs_direct", "payment_intent": %q, "amount_total": 5000,
		"metadata": {"payment_id": "%d", "payer_id": "%d"}
	}`, payment.PaymentIntentID, payment.ID, payer.ID))
	require.NoError(t, h.HandleCheckoutCompleted(context.Background(), checkout))

	balance, err := h.ledger.Balance(context.Background(), payer.ID)
	require.NoError(t, err)
	require.EqualValues(t, -5000, balance)

	refund := eventOf(EventChargeRefunded, fmt.Sprintf(`{"id": "ch_1", "payment_intent": %q, "amount_refunded": 5000}`, payment.PaymentIntentID))
	require.NoError(t, h.HandleChargeRefunded(context.Background(), refund))

	balance, err = h.ledger.Balance(context.Background(), payer.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, balance, "a full refund restores the balance to zero")

	var got models.Payment
	require.NoError(t, db.First(&got, payment.ID).Error)
	assert.Equal(t, models.PaymentStatusRefunded, got.Status)

	// Redelivered refund appends nothing.
	require.NoError(t, h.HandleChargeRefunded(context.Background(), refund))
	var entries int64
	require.NoError(t, db.Model(&models.BalanceTransaction{}).
		Where("payer_id = ? AND type = ?", payer.ID, models.TransactionTypeRefund).Count(&entries).Error)
	assert.EqualValues(t, 1, entries)
}

func TestHandleChargeRefunded_UnknownIntent(t *testing.T) {
	h, _ := newTestHandlers(t)
	ev := eventOf(EventChargeRefunded, `{"id": "ch_x", "payment_intent": "pi_missing", "amount_refunded": 100}`)
	err := h.HandleChargeRefunded(context.Background(), ev)
	require.ErrorIs(t, err, ErrUnknownReference)
}

func TestSyntheticSubscriptionID(t *testing.T) {
	if SyntheticSubscriptionID("cs_1") != "onetime:cs_1" {
		t.Fatalf("unexpected synthetic id %q", SyntheticSubscriptionID("cs_1"))
	}
	// Derived, never generated: the same session always maps to the same ID.
	assert.Equal(t, SyntheticSubscriptionID("cs_1"), SyntheticSubscriptionID("cs_1"))
}
