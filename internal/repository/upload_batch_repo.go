package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"rental-receivables-recon/internal/models"
)

type UploadBatchRepository struct {
	db *gorm.DB
}

func NewUploadBatchRepository(db *gorm.DB) *UploadBatchRepository {
	return &UploadBatchRepository{db: db}
}

// Create stores a batch together with its staged rows.
func (r *UploadBatchRepository) Create(ctx context.Context, batch *models.UploadBatch, rows []models.StagedPayment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if batch.FileHash != "" {
			var n int64
			if err := tx.Model(&models.UploadBatch{}).Where("file_hash = ?", batch.FileHash).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return ErrDuplicateUpload
			}
		}

		if err := tx.Omit("StagedPayments").Create(batch).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		for i := range rows {
			rows[i].UploadBatchID = batch.ID
		}
		return tx.CreateInBatches(rows, 500).Error
	})
}

func (r *UploadBatchRepository) Get(ctx context.Context, id uuid.UUID) (*models.UploadBatch, error) {
	var batch models.UploadBatch
	err := r.db.WithContext(ctx).First(&batch, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// Delete removes a batch and its staged rows.
func (r *UploadBatchRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("upload_batch_id = ?", id).Delete(&models.StagedPayment{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.UploadBatch{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *UploadBatchRepository) MarkRunStarted(ctx context.Context, id uuid.UUID, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.UploadBatch{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":              models.BatchProcessing,
			"last_run_started_at": now,
		}).Error
}

// MarkRunFinished stores the processed count and the batch status derived from it.
func (r *UploadBatchRepository) MarkRunFinished(ctx context.Context, id uuid.UUID, processed int, resolved bool, now time.Time) error {
	status := models.BatchProcessing
	if resolved {
		status = models.BatchCompleted
	}
	return r.db.WithContext(ctx).
		Model(&models.UploadBatch{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":               status,
			"processed_count":      processed,
			"last_run_finished_at": now,
		}).Error
}

// MarkReopened flags a batch as having pending work again after a reset.
func (r *UploadBatchRepository) MarkReopened(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.UploadBatch{}).
		Where("id = ?", id).
		Update("status", models.BatchPending).Error
}
