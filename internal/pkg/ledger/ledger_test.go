package ledger

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/launchpadhq/enrollhub/app/models"
	"github.com/launchpadhq/enrollhub/internal/pkg/audit"
	"github.com/launchpadhq/enrollhub/internal/pkg/database"
)

func newTestLedger(t *testing.T) (*Ledger, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "enrollhub.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	database.Migrate(db)
	return New(db, audit.NewRecorder(db)), db
}

func seedLedgerPayer(t *testing.T, db *gorm.DB, email string) *models.Payer {
	t.Helper()
	p := &models.Payer{Name: "Dana Rivera", Email: email}
	require.NoError(t, db.Create(p).Error)
	return p
}

func TestSignedAmount(t *testing.T) {
	tests := []struct {
		txType string
		amount int64
		want   int64
		ok     bool
	}{
		{models.TransactionTypePayment, 5000, -5000, true},
		{models.TransactionTypeRefund, 5000, 5000, true},
		{models.TransactionTypeAdjustment, -250, -250, true},
		{models.TransactionTypeAdjustment, 250, 250, true},
		{models.TransactionTypePayment, 0, 0, false},
		{models.TransactionTypePayment, -100, 0, false},
		{models.TransactionTypeRefund, -100, 0, false},
		{models.TransactionTypeAdjustment, 0, 0, false},
		{"transfer", 100, 0, false},
	}

	for _, tt := range tests {
		got, err := signedAmount(tt.txType, tt.amount)
		if tt.ok != (err == nil) {
			t.Fatalf("signedAmount(%q, %d): unexpected error state %v", tt.txType, tt.amount, err)
		}
		if err == nil && got != tt.want {
			t.Fatalf("signedAmount(%q, %d) = %d, want %d", tt.txType, tt.amount, got, tt.want)
		}
	}
}

func TestAppend_BalanceChain(t *testing.T) {
	lg, db := newTestLedger(t)
	ctx := context.Background()
	payerID := seedLedgerPayer(t, db, "dana@example.com").ID

	steps := []struct {
		txType string
		amount int64
		after  int64
	}{
		{models.TransactionTypePayment, 12900, -12900},
		{models.TransactionTypeRefund, 2900, -10000},
		{models.TransactionTypeAdjustment, -500, -10500},
		{models.TransactionTypeAdjustment, 10500, 0},
	}

	for _, s := range steps {
		entry, err := lg.Append(ctx, "admin@example.com", payerID, s.txType, s.amount, "test", "")
		require.NoError(t, err)
		assert.EqualValues(t, s.after, entry.BalanceAfterCents)
	}

	balance, err := lg.Balance(ctx, payerID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, balance)

	// Every entry's balance_after must equal its predecessor's plus its own
	// signed amount.
	var entries []models.BalanceTransaction
	require.NoError(t, db.Where("payer_id = ?", payerID).Order("id ASC").Find(&entries).Error)
	require.Len(t, entries, len(steps))
	var running int64
	for _, e := range entries {
		running += e.AmountCents
		assert.EqualValues(t, running, e.BalanceAfterCents)
	}
}

func TestAppend_Validation(t *testing.T) {
	lg, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := lg.Append(ctx, "admin@example.com", 0, models.TransactionTypePayment, 100, "", "")
	require.Error(t, err, "payer id is required")

	_, err = lg.Append(ctx, "admin@example.com", 1, models.TransactionTypeAdjustment, 0, "", "")
	require.Error(t, err, "zero adjustments are rejected, never coerced")

	_, err = lg.Append(ctx, "admin@example.com", 1, "transfer", 100, "", "")
	require.Error(t, err)
}

func TestAppend_UnknownPayer(t *testing.T) {
	lg, db := newTestLedger(t)
	ctx := context.Background()

	// The payer row is the lock target, so an append against a payer that
	// was never created must fail instead of writing an orphaned entry.
	_, err := lg.Append(ctx, "admin@example.com", 42, models.TransactionTypePayment, 100, "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payer 42 not found")

	var count int64
	require.NoError(t, db.Model(&models.BalanceTransaction{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestBalance_EmptyPayer(t *testing.T) {
	lg, _ := newTestLedger(t)
	balance, err := lg.Balance(context.Background(), 42)
	require.NoError(t, err)
	assert.EqualValues(t, 0, balance)
}

func TestHasEntryForReference(t *testing.T) {
	lg, db := newTestLedger(t)
	ctx := context.Background()
	seedLedgerPayer(t, db, "dana@example.com")

	_, err := lg.Append(ctx, models.ActorSystem, 1, models.TransactionTypePayment, 5000, "balance payment", "session:cs_1")
	require.NoError(t, err)

	exists, err := lg.HasEntryForReference(ctx, 1, "session:cs_1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = lg.HasEntryForReference(ctx, 1, "session:cs_other")
	require.NoError(t, err)
	assert.False(t, exists)

	// References are scoped per payer.
	exists, err = lg.HasEntryForReference(ctx, 2, "session:cs_1")
	require.NoError(t, err)
	assert.False(t, exists)

	// Empty references never match anything.
	exists, err = lg.HasEntryForReference(ctx, 1, "")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAppend_ConcurrentSamePayer(t *testing.T) {
	lg, db := newTestLedger(t)
	ctx := context.Background()
	payerID := seedLedgerPayer(t, db, "dana@example.com").ID
	const writers = 10

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := lg.Append(ctx, models.ActorSystem, payerID, models.TransactionTypePayment, 100, "concurrent", "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	balance, err := lg.Balance(ctx, payerID)
	require.NoError(t, err)
	assert.EqualValues(t, -100*writers, balance, "no lost updates under concurrent appends")

	var entries []models.BalanceTransaction
	require.NoError(t, db.Where("payer_id = ?", payerID).Order("id ASC").Find(&entries).Error)
	require.Len(t, entries, writers)
	var running int64
	for _, e := range entries {
		running += e.AmountCents
		require.EqualValues(t, running, e.BalanceAfterCents, "chain must stay consistent under concurrency")
	}
}

func TestFormatCents(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{12900, "129.00"},
		{-10050, "-100.50"},
		{-1, "-0.01"},
	}

	for _, tt := range tests {
		if got := FormatCents(tt.in); got != tt.want {
			t.Fatalf("FormatCents(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
