package reconciliation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rental-receivables-recon/internal/models"
	"rental-receivables-recon/internal/repository"
)

// Staging is the store of imported payment rows and their processing status.
type Staging interface {
	PendingIDs(ctx context.Context, batchID uuid.UUID) ([]uuid.UUID, error)
	Claim(ctx context.Context, id, runID uuid.UUID, now time.Time) (bool, error)
	Get(ctx context.Context, id uuid.UUID) (*models.StagedPayment, error)
	Annotate(ctx context.Context, id uuid.UUID, clientID *uuid.UUID, pendingReceivables int) error
	Finish(ctx context.Context, id uuid.UUID, status models.ProcessingStatus, reason string, now time.Time) error
	ReleaseRun(ctx context.Context, runID uuid.UUID) (int64, error)
	ReclaimStale(ctx context.Context, batchID *uuid.UUID, cutoff time.Time) (int64, error)
	Reset(ctx context.Context, batchID uuid.UUID, statuses []models.ProcessingStatus) (int64, error)
	Tally(ctx context.Context, batchID uuid.UUID) ([]repository.StatusTally, error)
}

// Ledger owns receivables. Apply must be atomic.
type Ledger interface {
	Outstanding(ctx context.Context, clientID uuid.UUID) ([]models.Receivable, error)
	Apply(ctx context.Context, stagedPaymentID uuid.UUID, receivableIDs []uuid.UUID, total decimal.Decimal) (*repository.ApplyResult, error)
}

type ClientResolver interface {
	Resolve(ctx context.Context, p *models.StagedPayment) (uuid.UUID, bool, error)
}

type Batches interface {
	Get(ctx context.Context, id uuid.UUID) (*models.UploadBatch, error)
	MarkRunStarted(ctx context.Context, id uuid.UUID, now time.Time) error
	MarkRunFinished(ctx context.Context, id uuid.UUID, processed int, resolved bool, now time.Time) error
	MarkReopened(ctx context.Context, id uuid.UUID) error
}
