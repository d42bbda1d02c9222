package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event types the engine understands. Anything else is acknowledged and
// ignored by the dispatcher.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventSubscriptionCreated      = "customer.subscription.created"
	EventSubscriptionUpdated      = "customer.subscription.updated"
	EventSubscriptionDeleted      = "customer.subscription.deleted"
	EventPaymentIntentSucceeded   = "payment_intent.succeeded"
	EventPaymentIntentFailed      = "payment_intent.payment_failed"
	EventChargeRefunded           = "charge.refunded"
)

// Checkout modes carried by the processor.
const (
	CheckoutModeSubscription = "subscription"
	CheckoutModePayment      = "payment"
)

// Event is the verified webhook envelope. The payload is decoded into a
// typed per-event struct at the boundary instead of optional-chaining through
// handler bodies; required fields are validated before dispatch.
type Event struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes a raw webhook body into an event envelope.
func ParseEvent(raw []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("malformed event payload: %w", err)
	}
	if strings.TrimSpace(ev.Type) == "" {
		return nil, errors.New("event type missing")
	}
	return &ev, nil
}

// CheckoutSession is the payload of checkout.session.completed. The metadata
// block distinguishes a new-enrollment checkout (EnrollmentID + PlanID set)
// from a legacy direct balance payment (PaymentID set).
type CheckoutSession struct {
	ID              string `json:"id"`
	Mode            string `json:"mode"`
	SubscriptionID  string `json:"subscription"`
	PaymentIntentID string `json:"payment_intent"`
	AmountTotal     int64  `json:"amount_total"` // minor units
	Metadata        struct {
		EnrollmentID uint   `json:"enrollment_id,string"`
		PayerID      uint   `json:"payer_id,string"`
		LocationID   uint   `json:"location_id,string"`
		PlanID       string `json:"plan_id"`
		PaymentID    uint   `json:"payment_id,string"`
	} `json:"metadata"`
}

// IsNewEnrollment reports whether the session carries the new-enrollment
// marker.
func (c *CheckoutSession) IsNewEnrollment() bool {
	return c.Metadata.EnrollmentID != 0 && c.Metadata.PlanID != ""
}

// IsDirectBalancePayment reports whether the session carries the legacy
// direct balance payment marker.
func (c *CheckoutSession) IsDirectBalancePayment() bool {
	return c.Metadata.PaymentID != 0
}

// CheckoutSession decodes and validates the checkout payload.
func (e *Event) CheckoutSession() (*CheckoutSession, error) {
	var cs CheckoutSession
	if err := json.Unmarshal(e.Data.Object, &cs); err != nil {
		return nil, fmt.Errorf("malformed checkout session: %w", err)
	}
	if strings.TrimSpace(cs.ID) == "" {
		return nil, errors.New("checkout session id missing")
	}
	if !cs.IsNewEnrollment() && !cs.IsDirectBalancePayment() {
		return nil, errors.New("checkout session carries no recognized marker")
	}
	return &cs, nil
}

// SubscriptionPayload is the payload of the customer.subscription.* events.
type SubscriptionPayload struct {
	ID                 string `json:"id"`
	Status             string `json:"status"`
	PlanID             string `json:"plan"`
	CustomerID         string `json:"customer"`
	CurrentPeriodStart int64  `json:"current_period_start"` // unix seconds
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
}

// PeriodStart returns the billing period start, or nil when unset.
func (s *SubscriptionPayload) PeriodStart() *time.Time {
	return unixPtr(s.CurrentPeriodStart)
}

// PeriodEnd returns the billing period end, or nil when unset.
func (s *SubscriptionPayload) PeriodEnd() *time.Time {
	return unixPtr(s.CurrentPeriodEnd)
}

// Subscription decodes and validates the subscription payload.
func (e *Event) Subscription() (*SubscriptionPayload, error) {
	var sp SubscriptionPayload
	if err := json.Unmarshal(e.Data.Object, &sp); err != nil {
		return nil, fmt.Errorf("malformed subscription payload: %w", err)
	}
	if strings.TrimSpace(sp.ID) == "" {
		return nil, errors.New("subscription id missing")
	}
	return &sp, nil
}

// PaymentIntentPayload is the payload of payment_intent.succeeded and
// payment_intent.payment_failed.
type PaymentIntentPayload struct {
	ID            string `json:"id"`
	AmountCents   int64  `json:"amount"`
	LastError     string `json:"last_payment_error,omitempty"`
	FailureReason string `json:"failure_message,omitempty"`
}

// PaymentIntent decodes and validates the payment intent payload.
func (e *Event) PaymentIntent() (*PaymentIntentPayload, error) {
	var pi PaymentIntentPayload
	if err := json.Unmarshal(e.Data.Object, &pi); err != nil {
		return nil, fmt.Errorf("malformed payment intent payload: %w", err)
	}
	if strings.TrimSpace(pi.ID) == "" {
		return nil, errors.New("payment intent id missing")
	}
	return &pi, nil
}

// ChargePayload is the payload of charge.refunded.
type ChargePayload struct {
	ID              string `json:"id"`
	PaymentIntentID string `json:"payment_intent"`
	AmountRefunded  int64  `json:"amount_refunded"` // minor units
}

// Charge decodes and validates the charge payload.
func (e *Event) Charge() (*ChargePayload, error) {
	var ch ChargePayload
	if err := json.Unmarshal(e.Data.Object, &ch); err != nil {
		return nil, fmt.Errorf("malformed charge payload: %w", err)
	}
	if strings.TrimSpace(ch.PaymentIntentID) == "" {
		return nil, errors.New("charge payment_intent missing")
	}
	if ch.AmountRefunded <= 0 {
		return nil, errors.New("charge refund amount must be positive")
	}
	return &ch, nil
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
