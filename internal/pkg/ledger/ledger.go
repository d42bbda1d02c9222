package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/launchpadhq/enrollhub/app/models"
	"github.com/launchpadhq/enrollhub/internal/pkg/audit"
)

// Ledger appends immutable balance transactions and derives payer balances
// from them. The running balance is never stored on the payer row; it is
// always the balance_after of the most recent entry, read inside the same
// transaction that appends the next one. That closes the read-then-write
// race a cached balance column would have.
type Ledger struct {
	db    *gorm.DB
	audit *audit.Recorder

	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

// New creates a ledger over the given database.
func New(db *gorm.DB, recorder *audit.Recorder) *Ledger {
	return &Ledger{
		db:    db,
		audit: recorder,
		locks: make(map[uint]*sync.Mutex),
	}
}

// payerLock serializes appends per payer within this process. The row lock
// inside the transaction protects against other processes.
func (l *Ledger) payerLock(payerID uint) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[payerID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[payerID] = m
	}
	return m
}

func signedAmount(txType string, amountCents int64) (int64, error) {
	switch txType {
	case models.TransactionTypePayment:
		if amountCents <= 0 {
			return 0, errors.New("payment amount must be positive")
		}
		return -amountCents, nil
	case models.TransactionTypeRefund:
		if amountCents <= 0 {
			return 0, errors.New("refund amount must be positive")
		}
		return amountCents, nil
	case models.TransactionTypeAdjustment:
		if amountCents == 0 {
			return 0, errors.New("adjustment amount must be non-zero")
		}
		return amountCents, nil
	default:
		return 0, fmt.Errorf("unknown transaction type %q", txType)
	}
}

// Append records one ledger entry for a payer and returns it. amountCents is
// the absolute amount in minor units; its sign is derived from the type
// (payments decrease the balance, refunds increase it, adjustments carry
// their own sign). The payer row is locked inside the same database
// transaction that reads the previous balance and inserts the new entry, so
// concurrent appends across processes serialize even for a payer with no
// entries yet.
func (l *Ledger) Append(ctx context.Context, actor string, payerID uint, txType string, amountCents int64, description, reference string) (*models.BalanceTransaction, error) {
	if payerID == 0 {
		return nil, errors.New("payer id is required")
	}
	signed, err := signedAmount(txType, amountCents)
	if err != nil {
		return nil, err
	}

	lock := l.payerLock(payerID)
	lock.Lock()
	defer lock.Unlock()

	var entry *models.BalanceTransaction
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Cross-process serialization happens on the payer row. Locking
		// the latest entry would leave a payer with no entries unguarded:
		// two writers appending the first entry would both read balance 0.
		var payer models.Payer
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&payer, payerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("payer %d not found", payerID)
			}
			return err
		}

		var prev models.BalanceTransaction
		var prevBalance int64
		err := tx.Where("payer_id = ?", payerID).
			Order("id DESC").
			First(&prev).Error
		switch {
		case err == nil:
			prevBalance = prev.BalanceAfterCents
		case errors.Is(err, gorm.ErrRecordNotFound):
			prevBalance = 0
		default:
			return err
		}

		entry = &models.BalanceTransaction{
			PayerID:           payerID,
			Type:              txType,
			AmountCents:       signed,
			BalanceAfterCents: prevBalance + signed,
			Description:       description,
			Reference:         reference,
		}
		return tx.Create(entry).Error
	})
	if err != nil {
		return nil, err
	}

	l.audit.MustRecord(actor, "ledger.append", "payer", payerID, map[string]interface{}{
		"type":          txType,
		"amount_cents":  signed,
		"balance_after": entry.BalanceAfterCents,
		"reference":     reference,
	})
	return entry, nil
}

// Balance returns the payer's current balance in minor units: the
// balance_after of their most recent entry, or zero when they have none.
func (l *Ledger) Balance(ctx context.Context, payerID uint) (int64, error) {
	latest, err := models.LatestBalanceTransaction(l.db.WithContext(ctx), payerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return latest.BalanceAfterCents, nil
}

// HasEntryForReference reports whether the payer already has an entry with
// the given reference. Handlers use it to keep redelivered webhooks from
// double-appending.
func (l *Ledger) HasEntryForReference(ctx context.Context, payerID uint, reference string) (bool, error) {
	if reference == "" {
		return false, nil
	}
	var count int64
	err := l.db.WithContext(ctx).Model(&models.BalanceTransaction{}).
		Where("payer_id = ? AND reference = ?", payerID, reference).
		Count(&count).Error
	return count > 0, err
}

// FormatCents renders a minor-unit amount in major units for display. The
// only place amounts leave integer cents is at formatting boundaries.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
