package payments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/launchpadhq/enrollhub/app/models"
)

// Provider name for the payment processor. Kept as a column so a second
// processor can coexist without a schema change.
const Provider = "stripe"

// Service provides webhook-event persistence and subscription
// synchronization over an injected repository.
type Service struct {
	repo Repository
}

// NewService creates a payments service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a payments service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// Repo exposes the underlying repository to collaborators (handlers, the
// reconciliation monitor).
func (s *Service) Repo() Repository {
	return s.repo
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// RecordWebhookEvent persists a webhook payload idempotently. The returned
// bool is false when the event ID was already recorded (duplicate delivery).
// Events without a processor event ID are keyed by a payload hash.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.WebhookEvent, error) {
	_ = ctx
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.WebhookEvent{
		Provider:        Provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
		Status:          models.WebhookStatusReceived,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed finalizes an event row. A nil error marks it
// succeeded; a business rejection marks it ignored (no replay value); any
// other error marks it failed, which makes it a replay candidate for the
// reconciliation monitor.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}

	status := models.WebhookStatusSucceeded
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
		if IsBusinessRejection(processingErr) {
			status = models.WebhookStatusIgnored
		} else {
			status = models.WebhookStatusFailed
		}
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, status, errMsg)
}

// MarkWebhookIgnored finalizes an event the system intentionally does not
// handle.
func (s *Service) MarkWebhookIgnored(ctx context.Context, webhookEventID uint) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, models.WebhookStatusIgnored, "")
}
