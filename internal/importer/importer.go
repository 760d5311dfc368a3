package importer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rental-receivables-recon/internal/models"
)

type BatchCreator interface {
	Create(ctx context.Context, batch *models.UploadBatch, rows []models.StagedPayment) error
}

// Importer stages a payment export as a new upload batch.
type Importer struct {
	batches BatchCreator
	log     *zap.Logger
}

func New(batches BatchCreator, log *zap.Logger) *Importer {
	return &Importer{batches: batches, log: log}
}

func (i *Importer) Import(ctx context.Context, filename string, data []byte) (*models.UploadBatch, error) {
	rows, err := Parse(filename, data)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	batch := &models.UploadBatch{
		ID:           uuid.New(),
		Filename:     filename,
		FileHash:     hex.EncodeToString(sum[:]),
		TotalRecords: len(rows),
		TotalAmount:  decimal.Zero,
		Status:       models.BatchPending,
	}
	unparsed := 0
	for _, r := range rows {
		batch.TotalAmount = batch.TotalAmount.Add(r.Amount)
		if !r.Amount.IsPositive() {
			unparsed++
		}
	}

	if err := i.batches.Create(ctx, batch, rows); err != nil {
		return nil, fmt.Errorf("stage %s: %w", filename, err)
	}

	i.log.Info("payment file staged",
		zap.String("batch_id", batch.ID.String()),
		zap.String("file", filename),
		zap.Int("rows", len(rows)),
		zap.Int("bad_amounts", unparsed),
		zap.String("total", batch.TotalAmount.StringFixed(2)))
	return batch, nil
}
