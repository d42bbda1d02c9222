package models

import "time"

// One-off payment statuses.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

// Payment tracks a single one-off charge (direct balance payment or prepaid
// checkout). All amounts are integer minor units (cents).
type Payment struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	PayerID         uint      `gorm:"not null;index" json:"payer_id"`
	SessionID       string    `gorm:"type:varchar(191);index" json:"session_id,omitempty"`
	PaymentIntentID string    `gorm:"type:varchar(191);index" json:"payment_intent_id,omitempty"`
	AmountCents     int64     `gorm:"not null" json:"amount_cents"`
	Status          string    `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	FailureReason   string    `gorm:"type:text" json:"failure_reason,omitempty"`
	Description     string    `gorm:"type:varchar(255)" json:"description,omitempty"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
