package models

import "time"

// Webhook processing statuses. Failed events are candidates for replay by the
// reconciliation monitor.
const (
	WebhookStatusReceived  = "received"
	WebhookStatusSucceeded = "succeeded"
	WebhookStatusFailed    = "failed"
	WebhookStatusIgnored   = "ignored"
)

// WebhookEvent stores processor webhook payloads with deduplication metadata
// for idempotent processing. The unique (provider, provider_event_id) index
// is what makes repeated delivery of the same event a no-op.
type WebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_webhook_events_provider_event,unique,priority:1" json:"provider"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;default:'';index:ux_webhook_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	SignatureValid  bool       `gorm:"default:false;index" json:"signature_valid"`
	Status          string     `gorm:"type:varchar(16);not null;default:'received';index" json:"status"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
