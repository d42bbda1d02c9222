package models

import "time"

// Subscription statuses mirror the payment processor's vocabulary.
const (
	SubscriptionStatusActive     = "active"
	SubscriptionStatusTrialing   = "trialing"
	SubscriptionStatusPastDue    = "past_due"
	SubscriptionStatusCanceled   = "canceled"
	SubscriptionStatusIncomplete = "incomplete"
	SubscriptionStatusUnpaid     = "unpaid"
)

// PaymentSubscription mirrors the processor's subscription (or one-time
// payment) record. ExternalID is the idempotency key for upserts; a repeated
// webhook for the same ID must update in place, never insert a duplicate.
type PaymentSubscription struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	ExternalID         string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_payment_subscriptions_external_id" json:"external_id"`
	PayerID            uint       `gorm:"not null;index" json:"payer_id"`
	EnrollmentID       uint       `gorm:"index" json:"enrollment_id,omitempty"`
	LocationID         uint       `gorm:"index" json:"location_id,omitempty"`
	PlanID             string     `gorm:"type:varchar(191)" json:"plan_id"`
	Status             string     `gorm:"type:varchar(32);not null;default:'active';index" json:"status"`
	CurrentPeriodStart *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool       `gorm:"default:false" json:"cancel_at_period_end"`
	RawPayloadJSON     string     `gorm:"type:longtext" json:"raw_payload_json,omitempty"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
