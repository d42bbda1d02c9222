package payments

import (
	"context"

	"github.com/gofiber/fiber/v2/log"
)

// HandlerFunc processes one verified, typed event. Handlers must be
// idempotent: the processor delivers at least once and in no particular
// order.
type HandlerFunc func(ctx context.Context, ev *Event) error

// Dispatcher routes verified events to handlers by event type. Event types
// without a handler are logged and acknowledged so the processor does not
// retry indefinitely for events this system intentionally ignores.
type Dispatcher struct {
	handlers map[string]HandlerFunc
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

// Register installs a handler for an event type.
func (d *Dispatcher) Register(eventType string, h HandlerFunc) {
	d.handlers[eventType] = h
}

// Known reports whether a handler exists for the event type.
func (d *Dispatcher) Known(eventType string) bool {
	_, ok := d.handlers[eventType]
	return ok
}

// Dispatch runs the handler for the event. The returned bool is false when
// no handler exists (event acknowledged, ignored). Handler errors are
// returned as-is; callers use IsBusinessRejection / IsUpstream to decide
// between acknowledging and failing the delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *Event) (bool, error) {
	h, ok := d.handlers[ev.Type]
	if !ok {
		log.Infof("[Webhook] ignoring unhandled event type %s (id %s)", ev.Type, ev.ID)
		return false, nil
	}
	return true, h(ctx, ev)
}
