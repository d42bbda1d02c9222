package models

import (
	"time"

	"gorm.io/gorm"
)

// Ledger entry types.
const (
	TransactionTypePayment    = "payment"
	TransactionTypeRefund     = "refund"
	TransactionTypeAdjustment = "adjustment"
)

// BalanceTransaction is one immutable ledger entry for a payer. Entries are
// append-only and never edited or deleted; the payer's current balance is the
// BalanceAfterCents of their most recent entry. Amounts are integer cents.
type BalanceTransaction struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	PayerID           uint      `gorm:"not null;index:idx_balance_transactions_payer" json:"payer_id"`
	Type              string    `gorm:"type:varchar(16);not null" json:"type"`
	AmountCents       int64     `gorm:"not null" json:"amount_cents"`
	BalanceAfterCents int64     `gorm:"not null" json:"balance_after_cents"`
	Description       string    `gorm:"type:varchar(255)" json:"description,omitempty"`
	Reference         string    `gorm:"type:varchar(191);index" json:"reference,omitempty"`
	CreatedAt         time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// LatestBalanceTransaction returns the payer's most recent ledger entry, or
// gorm.ErrRecordNotFound when the payer has none. Ordered by primary key:
// entries for one payer are appended serially, so ID order equals creation
// order even when CreatedAt timestamps collide.
func LatestBalanceTransaction(db *gorm.DB, payerID uint) (*BalanceTransaction, error) {
	var tx BalanceTransaction
	err := db.Where("payer_id = ?", payerID).Order("id DESC").First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}
