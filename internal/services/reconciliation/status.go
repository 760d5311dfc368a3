package reconciliation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rental-receivables-recon/internal/models"
	"rental-receivables-recon/internal/repository"
)

// StatusReport is the polling view of a batch. Counts always carries every
// status, and the counts sum to Total.
type StatusReport struct {
	BatchID     uuid.UUID                                   `json:"batch_id"`
	BatchStatus string                                      `json:"batch_status"`
	Total       int64                                       `json:"total"`
	TotalAmount decimal.Decimal                             `json:"total_amount"`
	Counts      map[models.ProcessingStatus]int64           `json:"counts"`
	Amounts     map[models.ProcessingStatus]decimal.Decimal `json:"amounts"`
	Pending     int64                                       `json:"pending"`
	Processing  int64                                       `json:"processing"`
	Resolved    bool                                        `json:"resolved"`
	Running     bool                                        `json:"running"`
	ActiveRuns  []RunSummary                                `json:"active_runs,omitempty"`
}

// Errors is the number of rows that ended in ERROR.
func (r *StatusReport) Errors() int64 {
	return r.Counts[models.StatusError]
}

// Status tallies a batch straight from the staging store.
func (s *ReconciliationService) Status(ctx context.Context, batchID uuid.UUID) (*StatusReport, error) {
	batch, err := s.batches.Get(ctx, batchID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBatchNotFound
		}
		return nil, fmt.Errorf("load batch %s: %w", batchID, err)
	}

	rows, err := s.staging.Tally(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("tally batch %s: %w", batchID, err)
	}

	report := &StatusReport{
		BatchID:     batchID,
		BatchStatus: batch.Status,
		TotalAmount: decimal.Zero,
		Counts:      make(map[models.ProcessingStatus]int64),
		Amounts:     make(map[models.ProcessingStatus]decimal.Decimal),
	}
	all := append([]models.ProcessingStatus{models.StatusPending, models.StatusProcessing}, models.TerminalStatuses...)
	for _, st := range all {
		report.Counts[st] = 0
		report.Amounts[st] = decimal.Zero
	}

	for _, r := range rows {
		report.Counts[r.Status] += r.Count
		report.Amounts[r.Status] = report.Amounts[r.Status].Add(r.Sum)
		report.Total += r.Count
		report.TotalAmount = report.TotalAmount.Add(r.Sum)
	}

	report.Pending = report.Counts[models.StatusPending]
	report.Processing = report.Counts[models.StatusProcessing]
	report.Resolved = report.Pending == 0 && report.Processing == 0
	report.ActiveRuns = s.ActiveRuns(batchID)
	_, starting := s.starting.Load(batchID)
	report.Running = starting || len(report.ActiveRuns) > 0
	return report, nil
}
