package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rental-receivables-recon/internal/models"
)

// ReceivableRepository is the receivable ledger: ordered outstanding
// balances per client and the transactional apply of a match.
type ReceivableRepository struct {
	db        *gorm.DB
	tolerance decimal.Decimal
	now       func() time.Time
}

func NewReceivableRepository(db *gorm.DB, tolerance decimal.Decimal) *ReceivableRepository {
	return &ReceivableRepository{
		db:        db,
		tolerance: tolerance,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (r *ReceivableRepository) Create(ctx context.Context, rec *models.Receivable) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Status == "" {
		rec.Status = models.ReceivableOpen
		if rec.Balance.IsZero() {
			rec.Balance = rec.Amount
		}
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *ReceivableRepository) Get(ctx context.Context, id uuid.UUID) (*models.Receivable, error) {
	var rec models.Receivable
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Outstanding lists the client's unsettled receivables, oldest due first.
func (r *ReceivableRepository) Outstanding(ctx context.Context, clientID uuid.UUID) ([]models.Receivable, error) {
	var recs []models.Receivable
	err := r.db.WithContext(ctx).
		Where("client_id = ? AND status <> ? AND balance > 0", clientID, models.ReceivablePaid).
		Order("due_date ASC, created_at ASC, id ASC").
		Find(&recs).Error
	return recs, err
}

// ApplyResult describes a committed apply.
type ApplyResult struct {
	Applied    []models.AppliedReceivable
	Settled    decimal.Decimal
	Adjustment decimal.Decimal
}

// Apply settles receivableIDs with a staged payment of total and marks the
// payment PROCESSED, all in one transaction. Nothing is written unless every
// receivable is still open for the payment's client and the balances still
// sum to within tolerance of total.
func (r *ReceivableRepository) Apply(
	ctx context.Context,
	stagedPaymentID uuid.UUID,
	receivableIDs []uuid.UUID,
	total decimal.Decimal,
) (*ApplyResult, error) {
	if len(receivableIDs) == 0 {
		return nil, fmt.Errorf("apply %s: no receivables", stagedPaymentID)
	}

	var result *ApplyResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		forUpdate := clause.Locking{Strength: "UPDATE"}

		var payment models.StagedPayment
		err := tx.Clauses(forUpdate).First(&payment, "id = ?", stagedPaymentID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if payment.ProcessingStatus != models.StatusProcessing {
			return ErrClaimLost
		}
		if payment.ClientID == nil {
			return fmt.Errorf("%w: payment has no resolved client", ErrBalanceConflict)
		}

		// Serializes every apply against the same client.
		var client models.Client
		if err := tx.Clauses(forUpdate).First(&client, "id = ?", *payment.ClientID).Error; err != nil {
			return fmt.Errorf("lock client %s: %w", *payment.ClientID, err)
		}

		var recs []models.Receivable
		if err := tx.Clauses(forUpdate).
			Where("id IN ? AND client_id = ?", receivableIDs, client.ID).
			Order("due_date ASC, created_at ASC, id ASC").
			Find(&recs).Error; err != nil {
			return err
		}
		if len(recs) != len(unique(receivableIDs)) {
			return fmt.Errorf("%w: %d of %d receivables found for client", ErrBalanceConflict, len(recs), len(receivableIDs))
		}

		settled := decimal.Zero
		for _, rec := range recs {
			if rec.Status == models.ReceivablePaid || rec.Settled() {
				return fmt.Errorf("%w: receivable %s already settled", ErrBalanceConflict, rec.ID)
			}
			settled = settled.Add(rec.Balance)
		}
		if total.Sub(settled).Abs().GreaterThan(r.tolerance) {
			return fmt.Errorf("%w: balances sum %s, payment %s", ErrBalanceConflict, settled.StringFixed(2), total.StringFixed(2))
		}

		now := r.now()
		applied := make([]models.AppliedReceivable, 0, len(recs))
		for _, rec := range recs {
			upd := tx.Model(&models.Receivable{}).
				Where("id = ? AND status <> ?", rec.ID, models.ReceivablePaid).
				Updates(map[string]any{
					"balance": decimal.Zero,
					"status":  models.ReceivablePaid,
					"paid_at": now,
				})
			if upd.Error != nil {
				return upd.Error
			}
			if upd.RowsAffected != 1 {
				return fmt.Errorf("%w: receivable %s", ErrBalanceConflict, rec.ID)
			}

			entry := models.PaymentApplication{
				ID:              uuid.New(),
				StagedPaymentID: payment.ID,
				ReceivableID:    rec.ID,
				RunID:           payment.RunID,
				Amount:          rec.Balance,
				BalanceBefore:   rec.Balance,
				BalanceAfter:    decimal.Zero,
				CreatedAt:       now,
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
			applied = append(applied, models.AppliedReceivable{ReceivableID: rec.ID, Amount: rec.Balance})
		}

		adjustment := total.Sub(settled)
		done := tx.Model(&models.StagedPayment{}).
			Where("id = ? AND processing_status = ?", payment.ID, models.StatusProcessing).
			Updates(map[string]any{
				"processing_status": models.StatusProcessed,
				"applied_match":     datatypes.JSONSlice[models.AppliedReceivable](applied),
				"adjustment_amount": adjustment,
				"last_error":        "",
				"processed_at":      now,
			})
		if done.Error != nil {
			return done.Error
		}
		if done.RowsAffected != 1 {
			return ErrClaimLost
		}

		result = &ApplyResult{Applied: applied, Settled: settled, Adjustment: adjustment}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func unique(ids []uuid.UUID) map[uuid.UUID]struct{} {
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
