package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Payer is the billed guardian account. Its current balance is never stored
// here; it is derived from the most recent BalanceTransaction to avoid lost
// updates under concurrent writers.
type Payer struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=2,max=150"`
	Email      string    `gorm:"type:varchar(200);not null;uniqueIndex" json:"email" validate:"required,email,max=200"`
	ExternalID string    `gorm:"type:varchar(191);index" json:"external_id,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Payer) Validate() error {
	v := validator.New()

	return v.Struct(p)
}
