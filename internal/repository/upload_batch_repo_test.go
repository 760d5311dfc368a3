package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-receivables-recon/internal/models"
	"rental-receivables-recon/internal/testutil"
)

func TestUploadBatchRepository_CreateRejectsDuplicateFile(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewUploadBatchRepository(db)
	ctx := context.Background()

	batch := &models.UploadBatch{ID: uuid.New(), Filename: "a.csv", FileHash: "abc", Status: models.BatchPending}
	rows := []models.StagedPayment{
		{ID: uuid.New(), RowNumber: 1, Amount: testutil.Money("10.00"), ProcessingStatus: models.StatusPending},
	}
	require.NoError(t, repo.Create(ctx, batch, rows))
	assert.Equal(t, batch.ID, rows[0].UploadBatchID)

	dup := &models.UploadBatch{ID: uuid.New(), Filename: "copy.csv", FileHash: "abc", Status: models.BatchPending}
	err := repo.Create(ctx, dup, nil)
	assert.ErrorIs(t, err, ErrDuplicateUpload)
}

func TestUploadBatchRepository_DeleteCascades(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewUploadBatchRepository(db)
	ctx := context.Background()

	batch, _ := testutil.CreateBatch(t, db, testutil.Row{Amount: "1.00"}, testutil.Row{Amount: "2.00"})
	keep, _ := testutil.CreateBatch(t, db, testutil.Row{Amount: "3.00"})

	require.NoError(t, repo.Delete(ctx, batch.ID))

	_, err := repo.Get(ctx, batch.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	var left int64
	require.NoError(t, db.Model(&models.StagedPayment{}).Count(&left).Error)
	assert.EqualValues(t, 1, left)

	_, err = repo.Get(ctx, keep.ID)
	assert.NoError(t, err)

	assert.ErrorIs(t, repo.Delete(ctx, batch.ID), ErrNotFound)
}

func TestUploadBatchRepository_RunMarkers(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewUploadBatchRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	batch, _ := testutil.CreateBatch(t, db, testutil.Row{Amount: "1.00"})

	require.NoError(t, repo.MarkRunStarted(ctx, batch.ID, now))
	got, err := repo.Get(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchProcessing, got.Status)
	assert.NotNil(t, got.LastRunStartedAt)

	require.NoError(t, repo.MarkRunFinished(ctx, batch.ID, 1, true, now))
	got, err = repo.Get(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchCompleted, got.Status)
	assert.Equal(t, 1, got.ProcessedCount)

	require.NoError(t, repo.MarkReopened(ctx, batch.ID))
	got, err = repo.Get(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchPending, got.Status)
}
