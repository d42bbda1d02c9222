package payments

import (
	"errors"
	"fmt"
)

// Error taxonomy for the webhook pipeline. Controllers and the dispatcher
// branch on these to decide between acknowledging an event (no processor
// retry) and failing the request (processor redelivers).
var (
	// ErrNotConfigured means the webhook shared secret is absent. The
	// system fails closed: every webhook is rejected until it is set.
	ErrNotConfigured = errors.New("webhook secret not configured")

	// ErrInvalidSignature means the signature header did not authenticate
	// the payload. No retry benefit; attacker or misconfiguration.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrInvalidTransition marks a business-rule rejection, typically a
	// stale event arriving out of order. Logged and acknowledged.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrUnknownReference marks an event pointing at a record this system
	// does not know. Logged and acknowledged.
	ErrUnknownReference = errors.New("unknown payment reference")
)

// UpstreamError wraps a transient persistence or network failure. The
// webhook controller maps it to a non-2xx response so the processor retries.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream unavailable: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Upstream wraps err as an UpstreamError. A nil err returns nil.
func Upstream(err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Err: err}
}

// IsBusinessRejection reports whether err is an expected rejection that
// should be acknowledged to the processor instead of retried.
func IsBusinessRejection(err error) bool {
	return errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrUnknownReference)
}

// IsUpstream reports whether err is a transient infrastructure failure.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
