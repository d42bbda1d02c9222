package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/launchpadhq/enrollhub/app/models"
	"github.com/launchpadhq/enrollhub/internal/pkg/enrollment"
	"github.com/launchpadhq/enrollhub/internal/pkg/ledger"
)

// oneTimePeriod is the synthetic billing period attached to non-recurring
// checkouts so downstream logic does not need a separate code path for them.
const oneTimePeriod = 90 * 24 * time.Hour

// Notifier sends the activation notice. Email rendering and delivery live
// outside this engine; handlers call it best-effort.
type Notifier interface {
	EnrollmentActivated(toEmail, childName string) error
}

// Handlers holds the webhook handler set and its collaborators.
type Handlers struct {
	svc         *Service
	enrollments *enrollment.StateMachine
	ledger      *ledger.Ledger
	notifier    Notifier
}

// NewHandlers wires the handler set. notifier may be nil.
func NewHandlers(svc *Service, sm *enrollment.StateMachine, lg *ledger.Ledger, notifier Notifier) *Handlers {
	return &Handlers{svc: svc, enrollments: sm, ledger: lg, notifier: notifier}
}

// NewDispatcherWithHandlers builds a dispatcher with all supported event
// types registered.
func NewDispatcherWithHandlers(h *Handlers) *Dispatcher {
	d := NewDispatcher()
	d.Register(EventCheckoutSessionCompleted, h.HandleCheckoutCompleted)
	d.Register(EventSubscriptionCreated, h.HandleSubscriptionUpserted)
	d.Register(EventSubscriptionUpdated, h.HandleSubscriptionUpserted)
	d.Register(EventSubscriptionDeleted, h.HandleSubscriptionDeleted)
	d.Register(EventPaymentIntentSucceeded, h.HandlePaymentIntentSucceeded)
	d.Register(EventPaymentIntentFailed, h.HandlePaymentIntentFailed)
	d.Register(EventChargeRefunded, h.HandleChargeRefunded)
	return d
}

// SyntheticSubscriptionID derives the stable external ID used for one-time
// checkouts. Derived from the session ID, not generated, so a redelivered
// event upserts the same row.
func SyntheticSubscriptionID(sessionID string) string {
	return "onetime:" + sessionID
}

// HandleCheckoutCompleted applies checkout.session.completed. New-enrollment
// sessions upsert a PaymentSubscription keyed by the subscription ID (or a
// synthetic one for one-time payments) and activate the matching enrollment.
// Direct balance payment sessions mark the referenced payment succeeded and
// append a ledger entry.
func (h *Handlers) HandleCheckoutCompleted(ctx context.Context, ev *Event) error {
	cs, err := ev.CheckoutSession()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownReference, err)
	}

	if cs.IsDirectBalancePayment() {
		return h.applyDirectBalancePayment(ctx, cs)
	}
	return h.applyNewEnrollmentCheckout(ctx, cs)
}

func (h *Handlers) applyNewEnrollmentCheckout(ctx context.Context, cs *CheckoutSession) error {
	externalID := cs.SubscriptionID
	var periodStart, periodEnd *time.Time
	if externalID == "" {
		// One-time payment: synthesize a subscription-shaped row with a
		// 90-day period.
		externalID = SyntheticSubscriptionID(cs.ID)
		start := time.Now().UTC()
		end := start.Add(oneTimePeriod)
		periodStart, periodEnd = &start, &end
	}

	sub := &models.PaymentSubscription{
		ExternalID:         externalID,
		PayerID:            cs.Metadata.PayerID,
		EnrollmentID:       cs.Metadata.EnrollmentID,
		LocationID:         cs.Metadata.LocationID,
		PlanID:             cs.Metadata.PlanID,
		Status:             models.SubscriptionStatusActive,
		CurrentPeriodStart: periodStart,
		CurrentPeriodEnd:   periodEnd,
	}
	if err := h.svc.Repo().UpsertSubscription(sub); err != nil {
		return Upstream(err)
	}

	enr, err := h.enrollments.Activate(ctx, models.ActorSystem, cs.Metadata.EnrollmentID, externalID)
	if err != nil {
		if errors.Is(err, enrollment.ErrInvalidTransition) {
			return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: enrollment %d", ErrUnknownReference, cs.Metadata.EnrollmentID)
		}
		return Upstream(err)
	}

	if h.notifier != nil {
		if err := h.notifier.EnrollmentActivated(enr.GuardianEmail, enr.ChildName); err != nil {
			log.Warnf("[Webhook] activation notice for enrollment %d failed: %v", enr.ID, err)
		}
	}
	return nil
}

func (h *Handlers) applyDirectBalancePayment(ctx context.Context, cs *CheckoutSession) error {
	payment, err := h.svc.Repo().GetPaymentByID(cs.Metadata.PaymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: payment %d", ErrUnknownReference, cs.Metadata.PaymentID)
		}
		return Upstream(err)
	}

	// The ledger reference is the redelivery gate, not the payment status:
	// a failure between SavePayment and Append leaves the row succeeded
	// with no entry, and a status guard would retire every retry before it
	// could write the missing entry.
	reference := "session:" + cs.ID
	applied, err := h.ledger.HasEntryForReference(ctx, payment.PayerID, reference)
	if err != nil {
		return Upstream(err)
	}
	if applied {
		return nil
	}

	amount := cs.AmountTotal
	if amount <= 0 {
		amount = payment.AmountCents
	}
	if payment.Status != models.PaymentStatusSucceeded && payment.Status != models.PaymentStatusRefunded {
		payment.Status = models.PaymentStatusSucceeded
		payment.SessionID = cs.ID
		if cs.PaymentIntentID != "" {
			payment.PaymentIntentID = cs.PaymentIntentID
		}
		payment.AmountCents = amount
		if err := h.svc.Repo().SavePayment(payment); err != nil {
			return Upstream(err)
		}
	}

	_, err = h.ledger.Append(ctx, models.ActorSystem, payment.PayerID,
		models.TransactionTypePayment, amount, "balance payment", reference)
	if err != nil {
		return Upstream(err)
	}
	return nil
}

// HandleSubscriptionUpserted applies customer.subscription.created and
// customer.subscription.updated. These fire repeatedly across a
// subscription's life, so the write is an upsert keyed by external ID with
// no ordering assumption. A row first seen here keeps zero payer linkage
// until the checkout event supplies it.
func (h *Handlers) HandleSubscriptionUpserted(ctx context.Context, ev *Event) error {
	_ = ctx
	sp, err := ev.Subscription()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownReference, err)
	}

	sub := &models.PaymentSubscription{
		ExternalID:         sp.ID,
		Status:             sp.Status,
		PlanID:             sp.PlanID,
		CurrentPeriodStart: sp.PeriodStart(),
		CurrentPeriodEnd:   sp.PeriodEnd(),
		CancelAtPeriodEnd:  sp.CancelAtPeriodEnd,
		RawPayloadJSON:     string(ev.Data.Object),
	}
	if existing, err := h.svc.Repo().GetSubscriptionByExternalID(sp.ID); err == nil {
		// Preserve linkage established by the checkout handler.
		sub.PayerID = existing.PayerID
		sub.EnrollmentID = existing.EnrollmentID
		sub.LocationID = existing.LocationID
		if sub.PlanID == "" {
			sub.PlanID = existing.PlanID
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Upstream(err)
	}

	if err := h.svc.Repo().UpsertSubscription(sub); err != nil {
		return Upstream(err)
	}
	return nil
}

// HandleSubscriptionDeleted applies customer.subscription.deleted: the row
// is marked canceled, never deleted, so history stays queryable. Enrollment
// status is deliberately not cascaded.
func (h *Handlers) HandleSubscriptionDeleted(ctx context.Context, ev *Event) error {
	_ = ctx
	sp, err := ev.Subscription()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownReference, err)
	}

	existing, err := h.svc.Repo().GetSubscriptionByExternalID(sp.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: subscription %s", ErrUnknownReference, sp.ID)
		}
		return Upstream(err)
	}

	existing.Status = models.SubscriptionStatusCanceled
	existing.RawPayloadJSON = string(ev.Data.Object)
	if err := h.svc.Repo().UpsertSubscription(existing); err != nil {
		return Upstream(err)
	}
	return nil
}

// HandlePaymentIntentSucceeded updates the matching one-off payment row. It
// does not touch the ledger: checkout.session.completed is the ledger's
// source of truth for new charges.
func (h *Handlers) HandlePaymentIntentSucceeded(ctx context.Context, ev *Event) error {
	_ = ctx
	pi, err := ev.PaymentIntent()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownReference, err)
	}

	payment, err := h.svc.Repo().GetPaymentByIntentID(pi.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: payment intent %s", ErrUnknownReference, pi.ID)
		}
		return Upstream(err)
	}

	if payment.Status == models.PaymentStatusSucceeded || payment.Status == models.PaymentStatusRefunded {
		return nil
	}
	payment.Status = models.PaymentStatusSucceeded
	payment.FailureReason = ""
	if err := h.svc.Repo().SavePayment(payment); err != nil {
		return Upstream(err)
	}
	return nil
}

// HandlePaymentIntentFailed records the failure reason on the matching
// payment row. A failure event arriving after the payment already succeeded
// is stale and rejected.
func (h *Handlers) HandlePaymentIntentFailed(ctx context.Context, ev *Event) error {
	_ = ctx
	pi, err := ev.PaymentIntent()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownReference, err)
	}

	payment, err := h.svc.Repo().GetPaymentByIntentID(pi.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: payment intent %s", ErrUnknownReference, pi.ID)
		}
		return Upstream(err)
	}

	switch payment.Status {
	case models.PaymentStatusFailed:
		return nil
	case models.PaymentStatusSucceeded, models.PaymentStatusRefunded:
		return fmt.Errorf("%w: stale failure for payment %d in status %s",
			ErrInvalidTransition, payment.ID, payment.Status)
	}

	payment.Status = models.PaymentStatusFailed
	payment.FailureReason = pi.FailureReason
	if payment.FailureReason == "" {
		payment.FailureReason = pi.LastError
	}
	if err := h.svc.Repo().SavePayment(payment); err != nil {
		return Upstream(err)
	}
	return nil
}

// HandleChargeRefunded locates the original payment by its payment-intent
// reference, marks it refunded and appends a refund ledger entry for the
// refunded portion. The new balance is computed from the latest ledger
// entry, never from a cached balance field.
func (h *Handlers) HandleChargeRefunded(ctx context.Context, ev *Event) error {
	ch, err := ev.Charge()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownReference, err)
	}

	payment, err := h.svc.Repo().GetPaymentByIntentID(ch.PaymentIntentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: payment intent %s", ErrUnknownReference, ch.PaymentIntentID)
		}
		return Upstream(err)
	}

	reference := "refund:" + ch.ID
	exists, err := h.ledger.HasEntryForReference(ctx, payment.PayerID, reference)
	if err != nil {
		return Upstream(err)
	}
	if exists {
		return nil
	}

	if payment.Status != models.PaymentStatusRefunded {
		payment.Status = models.PaymentStatusRefunded
		if err := h.svc.Repo().SavePayment(payment); err != nil {
			return Upstream(err)
		}
	}

	_, err = h.ledger.Append(ctx, models.ActorSystem, payment.PayerID,
		models.TransactionTypeRefund, ch.AmountRefunded, "charge refund", reference)
	if err != nil {
		return Upstream(err)
	}
	return nil
}
