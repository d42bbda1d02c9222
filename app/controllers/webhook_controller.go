package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/launchpadhq/enrollhub/app/models"
	"github.com/launchpadhq/enrollhub/internal/pkg/database"
	"github.com/launchpadhq/enrollhub/internal/pkg/env"
	metrics "github.com/launchpadhq/enrollhub/internal/pkg/metrics/counter"
	"github.com/launchpadhq/enrollhub/internal/pkg/payments"
)

// HandlePaymentWebhook receives processor webhooks. The response is 2xx only
// after the event is durably recorded and applied (or intentionally
// acknowledged); any infrastructure failure answers non-2xx so the processor
// redelivers.
func HandlePaymentWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Payment-Signature"))
	secret := env.GetEnv("PAYMENT_WEBHOOK_SECRET", "")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	svc := payments.NewServiceFromDB(database.GetDB())

	if err := payments.VerifyWebhookSignature(rawBody, signature, secret, payments.DefaultSignatureTolerance); err != nil {
		if errors.Is(err, payments.ErrNotConfigured) {
			log.Error("[Webhook] rejecting delivery: webhook secret not configured")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "not_configured"})
		}
		// Unauthenticated input is logged, never persisted: anyone can
		// post here, and storing arbitrary bodies hands an attacker an
		// unbounded table.
		log.Warnf("[Webhook] rejected delivery with invalid signature (%d bytes)", len(rawBody))
		countOutcome(metrics.OutcomeRejected)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	ev, err := payments.ParseEvent(rawBody)
	if err != nil {
		recordForensics(ctx, svc, rawBody)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	created, stored, err := svc.RecordWebhookEvent(ctx, payments.WebhookEventInput{
		ProviderEventID: ev.ID,
		EventType:       ev.Type,
		PayloadJSON:     string(rawBody),
		SignatureValid:  true,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created {
		// Only deliveries that already concluded take the duplicate
		// short-circuit. A row left failed (or still received) by an
		// earlier attempt means we answered non-2xx and the processor
		// redelivered on purpose; the handlers are idempotent, so the
		// retry goes back through dispatch.
		switch stored.Status {
		case models.WebhookStatusSucceeded, models.WebhookStatusIgnored:
			countOutcome(metrics.OutcomeDuplicate)
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
		default:
			log.Infof("[Webhook] reprocessing redelivered event %s (%s), stored status %s", ev.ID, ev.Type, stored.Status)
		}
	}

	dispatcher := newWebhookDispatcher(database.GetDB())
	handled, dispatchErr := dispatcher.Dispatch(ctx, ev)
	if !handled {
		_ = svc.MarkWebhookIgnored(ctx, stored.ID)
		countOutcome(metrics.OutcomeIgnored)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}

	if markErr := svc.MarkWebhookProcessed(ctx, stored.ID, dispatchErr); markErr != nil {
		log.Errorf("[Webhook] marking event %d processed failed: %v", stored.ID, markErr)
	}

	if dispatchErr != nil {
		if payments.IsBusinessRejection(dispatchErr) {
			// Stale or unknown-reference events gain nothing from a
			// processor retry; acknowledge after logging.
			log.Warnf("[Webhook] acknowledged rejected event %s (%s): %v", ev.ID, ev.Type, dispatchErr)
			countOutcome(metrics.OutcomeIgnored)
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
		}
		log.Errorf("[Webhook] processing event %s (%s) failed: %v", ev.ID, ev.Type, dispatchErr)
		countOutcome(metrics.OutcomeFailed)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed"})
	}

	countOutcome(metrics.OutcomeProcessed)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// recordForensics stores a malformed delivery for inspection. Only called
// for bodies that passed signature verification; the row is retired as
// ignored so the reconcile monitor never tries to replay it. Best-effort;
// the response code is decided by the caller.
func recordForensics(ctx context.Context, svc *payments.Service, rawBody []byte) {
	_, stored, err := svc.RecordWebhookEvent(ctx, payments.WebhookEventInput{
		PayloadJSON:    string(rawBody),
		SignatureValid: true,
	})
	if err != nil {
		log.Errorf("[Webhook] persisting malformed delivery failed: %v", err)
		return
	}
	_ = svc.MarkWebhookIgnored(ctx, stored.ID)
}

func countOutcome(outcome string) {
	if err := metrics.AddWebhookOutcome(outcome); err != nil {
		log.Debugf("[Webhook] counter increment failed: %v", err)
	}
}
