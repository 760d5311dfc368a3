package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"rental-receivables-recon/internal/models"
)

// StagedPaymentRepository is the staging store.
type StagedPaymentRepository struct {
	db *gorm.DB
}

func NewStagedPaymentRepository(db *gorm.DB) *StagedPaymentRepository {
	return &StagedPaymentRepository{db: db}
}

// PendingIDs snapshots the rows of a batch currently in PENDING, in file order.
func (r *StagedPaymentRepository) PendingIDs(ctx context.Context, batchID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.StagedPayment{}).
		Where("upload_batch_id = ? AND processing_status = ?", batchID, models.StatusPending).
		Order("row_number ASC, id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// Claim moves a row from PENDING to PROCESSING for runID.
// It returns false when another run got there first.
func (r *StagedPaymentRepository) Claim(ctx context.Context, id, runID uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.StagedPayment{}).
		Where("id = ? AND processing_status = ?", id, models.StatusPending).
		Updates(map[string]any{
			"processing_status": models.StatusProcessing,
			"run_id":            runID,
			"claimed_at":        now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("claim staged payment %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *StagedPaymentRepository) Get(ctx context.Context, id uuid.UUID) (*models.StagedPayment, error) {
	var p models.StagedPayment
	err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Annotate records the resolved client and the size of its candidate set
// on a row being processed.
func (r *StagedPaymentRepository) Annotate(ctx context.Context, id uuid.UUID, clientID *uuid.UUID, pendingReceivables int) error {
	res := r.db.WithContext(ctx).
		Model(&models.StagedPayment{}).
		Where("id = ? AND processing_status = ?", id, models.StatusProcessing).
		Updates(map[string]any{
			"client_id":                 clientID,
			"pending_receivables_count": pendingReceivables,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrClaimLost
	}
	return nil
}

// Finish moves a PROCESSING row to a terminal status other than PROCESSED,
// which only the ledger apply may set.
func (r *StagedPaymentRepository) Finish(ctx context.Context, id uuid.UUID, status models.ProcessingStatus, reason string, now time.Time) error {
	if !status.IsTerminal() || status == models.StatusProcessed {
		return fmt.Errorf("finish staged payment %s: invalid status %s", id, status)
	}
	res := r.db.WithContext(ctx).
		Model(&models.StagedPayment{}).
		Where("id = ? AND processing_status = ?", id, models.StatusProcessing).
		Updates(map[string]any{
			"processing_status": status,
			"last_error":        reason,
			"processed_at":      now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrClaimLost
	}
	return nil
}

// ReleaseRun returns rows still PROCESSING under runID to PENDING.
func (r *StagedPaymentRepository) ReleaseRun(ctx context.Context, runID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.StagedPayment{}).
		Where("run_id = ? AND processing_status = ?", runID, models.StatusProcessing).
		Updates(map[string]any{
			"processing_status": models.StatusPending,
			"claimed_at":        nil,
		})
	return res.RowsAffected, res.Error
}

// ReclaimStale returns PROCESSING rows claimed before cutoff to PENDING.
// A nil batchID reclaims across all batches.
func (r *StagedPaymentRepository) ReclaimStale(ctx context.Context, batchID *uuid.UUID, cutoff time.Time) (int64, error) {
	q := r.db.WithContext(ctx).
		Model(&models.StagedPayment{}).
		Where("processing_status = ? AND claimed_at < ?", models.StatusProcessing, cutoff)
	if batchID != nil {
		q = q.Where("upload_batch_id = ?", *batchID)
	}
	res := q.Updates(map[string]any{
		"processing_status": models.StatusPending,
		"claimed_at":        nil,
	})
	return res.RowsAffected, res.Error
}

// Reset moves rows of the given statuses back to PENDING. PROCESSED rows are never touched.
func (r *StagedPaymentRepository) Reset(ctx context.Context, batchID uuid.UUID, statuses []models.ProcessingStatus) (int64, error) {
	var allowed []models.ProcessingStatus
	for _, s := range statuses {
		if s.Resettable() {
			allowed = append(allowed, s)
		}
	}
	if len(allowed) == 0 {
		return 0, nil
	}

	res := r.db.WithContext(ctx).
		Model(&models.StagedPayment{}).
		Where("upload_batch_id = ? AND processing_status IN ?", batchID, allowed).
		Updates(map[string]any{
			"processing_status": models.StatusPending,
			"last_error":        "",
			"run_id":            nil,
			"claimed_at":        nil,
			"processed_at":      nil,
		})
	return res.RowsAffected, res.Error
}

// StatusTally is one GROUP BY row of the staging store.
type StatusTally struct {
	Status models.ProcessingStatus
	Count  int64
	Sum    decimal.Decimal
}

func (r *StagedPaymentRepository) Tally(ctx context.Context, batchID uuid.UUID) ([]StatusTally, error) {
	var rows []StatusTally
	err := r.db.WithContext(ctx).
		Model(&models.StagedPayment{}).
		Where("upload_batch_id = ?", batchID).
		Select("processing_status AS status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS sum").
		Group("processing_status").
		Scan(&rows).Error
	return rows, err
}

// List pages through a batch by id. An empty status or "all" disables the filter.
func (r *StagedPaymentRepository) List(
	ctx context.Context,
	batchID uuid.UUID,
	status string,
	cursor string,
	limit int,
) ([]models.StagedPayment, string, bool, error) {
	var rows []models.StagedPayment
	query := r.db.WithContext(ctx).
		Where("upload_batch_id = ?", batchID).
		Order("id ASC").
		Limit(limit + 1)

	if status != "" && status != "all" {
		query = query.Where("processing_status = ?", status)
	}
	if cursor != "" {
		query = query.Where("id > ?", cursor)
	}

	if err := query.Find(&rows).Error; err != nil {
		return nil, "", false, err
	}

	hasMore := false
	var nextCursor string
	if len(rows) > limit {
		hasMore = true
		nextCursor = rows[limit-1].ID.String()
		rows = rows[:limit]
	}
	return rows, nextCursor, hasMore, nil
}
