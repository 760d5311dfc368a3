package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"rental-receivables-recon/internal/models"
	"rental-receivables-recon/internal/services/matching"
	"rental-receivables-recon/internal/testutil"
)

type ledgerFixture struct {
	db      *gorm.DB
	ledger  *ReceivableRepository
	staging *StagedPaymentRepository
	client  models.Client
	recs    []models.Receivable
	payment models.StagedPayment
}

// newLedgerFixture seeds one client with the given balances (due one month
// apart, oldest first) and one claimed payment of amount resolved to it.
func newLedgerFixture(t *testing.T, amount string, balances ...string) *ledgerFixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	f := &ledgerFixture{
		db:      db,
		ledger:  NewReceivableRepository(db, matching.DefaultTolerance),
		staging: NewStagedPaymentRepository(db),
		client:  testutil.CreateClient(t, db, "C-001", "Arrendadora Norte"),
	}
	for i, b := range balances {
		f.recs = append(f.recs, testutil.CreateReceivable(t, db, f.client.ID, testutil.Day(2026, time.Month(i+1), 5), b))
	}

	_, rows := testutil.CreateBatch(t, db, testutil.Row{ClientRef: "C-001", Amount: amount})
	f.payment = rows[0]

	ctx := context.Background()
	ok, err := f.staging.Claim(ctx, f.payment.ID, uuid.New(), time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, f.staging.Annotate(ctx, f.payment.ID, &f.client.ID, len(f.recs)))
	return f
}

func (f *ledgerFixture) balance(t *testing.T, id uuid.UUID) string {
	t.Helper()
	rec, err := f.ledger.Get(context.Background(), id)
	require.NoError(t, err)
	return rec.Balance.StringFixed(2)
}

func (f *ledgerFixture) paymentStatus(t *testing.T) models.ProcessingStatus {
	t.Helper()
	p, err := f.staging.Get(context.Background(), f.payment.ID)
	require.NoError(t, err)
	return p.ProcessingStatus
}

func TestReceivableRepository_OutstandingOrder(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewReceivableRepository(db, matching.DefaultTolerance)
	client := testutil.CreateClient(t, db, "C-9", "Bodegas Sur")
	other := testutil.CreateClient(t, db, "C-10", "Otro")

	late := testutil.CreateReceivable(t, db, client.ID, testutil.Day(2026, 5, 1), "300.00")
	early := testutil.CreateReceivable(t, db, client.ID, testutil.Day(2026, 1, 1), "100.00")
	paid := testutil.CreateReceivable(t, db, client.ID, testutil.Day(2025, 12, 1), "50.00")
	require.NoError(t, db.Model(&paid).Updates(map[string]any{"balance": 0, "status": models.ReceivablePaid}).Error)
	testutil.CreateReceivable(t, db, other.ID, testutil.Day(2025, 1, 1), "10.00")

	recs, err := repo.Outstanding(context.Background(), client.ID)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, early.ID, recs[0].ID)
	assert.Equal(t, late.ID, recs[1].ID)
}

func TestReceivableRepository_ApplySettlesAndMarksProcessed(t *testing.T) {
	f := newLedgerFixture(t, "5000.20", "2500.00", "2500.00", "1000.00")
	ctx := context.Background()

	res, err := f.ledger.Apply(ctx, f.payment.ID, []uuid.UUID{f.recs[0].ID, f.recs[1].ID}, testutil.Money("5000.20"))
	require.NoError(t, err)
	assert.Equal(t, "5000.00", res.Settled.StringFixed(2))
	assert.Equal(t, "0.20", res.Adjustment.StringFixed(2))
	require.Len(t, res.Applied, 2)

	assert.Equal(t, "0.00", f.balance(t, f.recs[0].ID))
	assert.Equal(t, "0.00", f.balance(t, f.recs[1].ID))
	assert.Equal(t, "1000.00", f.balance(t, f.recs[2].ID))

	p, err := f.staging.Get(ctx, f.payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessed, p.ProcessingStatus)
	require.Len(t, p.AppliedMatch, 2)
	assert.Equal(t, f.recs[0].ID, p.AppliedMatch[0].ReceivableID)
	assert.Equal(t, "0.20", p.AdjustmentAmount.StringFixed(2))

	var trail []models.PaymentApplication
	require.NoError(t, f.db.Where("staged_payment_id = ?", f.payment.ID).Find(&trail).Error)
	assert.Len(t, trail, 2)

	remaining, err := f.ledger.Outstanding(ctx, f.client.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, f.recs[2].ID, remaining[0].ID)
}

func TestReceivableRepository_ApplyIsOneShot(t *testing.T) {
	f := newLedgerFixture(t, "100.00", "100.00")
	ctx := context.Background()

	_, err := f.ledger.Apply(ctx, f.payment.ID, []uuid.UUID{f.recs[0].ID}, testutil.Money("100.00"))
	require.NoError(t, err)

	_, err = f.ledger.Apply(ctx, f.payment.ID, []uuid.UUID{f.recs[0].ID}, testutil.Money("100.00"))
	assert.ErrorIs(t, err, ErrClaimLost)
}

func TestReceivableRepository_ApplyRejectsChangedBalances(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, f *ledgerFixture)
		ids    func(f *ledgerFixture) []uuid.UUID
		total  string
	}{
		{
			name: "receivable settled meanwhile",
			mutate: func(t *testing.T, f *ledgerFixture) {
				require.NoError(t, f.db.Model(&models.Receivable{}).Where("id = ?", f.recs[0].ID).
					Updates(map[string]any{"balance": 0, "status": models.ReceivablePaid}).Error)
			},
			ids:   func(f *ledgerFixture) []uuid.UUID { return []uuid.UUID{f.recs[0].ID} },
			total: "100.00",
		},
		{
			name: "balance reduced meanwhile",
			mutate: func(t *testing.T, f *ledgerFixture) {
				require.NoError(t, f.db.Model(&models.Receivable{}).Where("id = ?", f.recs[0].ID).
					Update("balance", testutil.Money("40.00")).Error)
			},
			ids:   func(f *ledgerFixture) []uuid.UUID { return []uuid.UUID{f.recs[0].ID} },
			total: "100.00",
		},
		{
			name: "balance cleared without status change",
			mutate: func(t *testing.T, f *ledgerFixture) {
				require.NoError(t, f.db.Model(&models.Receivable{}).Where("id = ?", f.recs[0].ID).
					Update("balance", testutil.Money("0")).Error)
			},
			ids:   func(f *ledgerFixture) []uuid.UUID { return []uuid.UUID{f.recs[0].ID} },
			total: "0.30",
		},
		{
			name:   "receivable of another client",
			mutate: func(t *testing.T, f *ledgerFixture) {},
			ids: func(f *ledgerFixture) []uuid.UUID {
				return []uuid.UUID{uuid.New()}
			},
			total: "100.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newLedgerFixture(t, tt.total, "100.00")
			tt.mutate(t, f)

			_, err := f.ledger.Apply(context.Background(), f.payment.ID, tt.ids(f), testutil.Money(tt.total))
			require.ErrorIs(t, err, ErrBalanceConflict)
			assert.Equal(t, models.StatusProcessing, f.paymentStatus(t))
		})
	}
}

func TestReceivableRepository_ApplyRollsBackOnFailure(t *testing.T) {
	f := newLedgerFixture(t, "300.00", "100.00", "200.00")

	boom := errors.New("disk full")
	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("test:fail_trail", func(tx *gorm.DB) {
		if tx.Statement.Table == "payment_applications" {
			_ = tx.AddError(boom)
		}
	}))

	_, err := f.ledger.Apply(context.Background(), f.payment.ID, []uuid.UUID{f.recs[0].ID, f.recs[1].ID}, testutil.Money("300.00"))
	require.ErrorIs(t, err, boom)

	assert.Equal(t, "100.00", f.balance(t, f.recs[0].ID))
	assert.Equal(t, "200.00", f.balance(t, f.recs[1].ID))
	assert.Equal(t, models.StatusProcessing, f.paymentStatus(t))

	var trail int64
	require.NoError(t, f.db.Model(&models.PaymentApplication{}).Count(&trail).Error)
	assert.Zero(t, trail)
}
