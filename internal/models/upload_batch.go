package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UploadBatch groups the staged payments of one file import.
type UploadBatch struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Filename       string          `json:"filename"`
	FileHash       string          `gorm:"size:64;uniqueIndex" json:"file_hash"`
	TotalRecords   int             `json:"total_records"`
	TotalAmount    decimal.Decimal `gorm:"type:numeric(16,2);not null;default:0" json:"total_amount"`
	Status         string          `gorm:"index" json:"status"`
	ProcessedCount int             `json:"processed_count"`

	LastRunStartedAt  *time.Time `json:"last_run_started_at,omitempty"`
	LastRunFinishedAt *time.Time `json:"last_run_finished_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	StagedPayments []StagedPayment `gorm:"foreignKey:UploadBatchID;constraint:OnDelete:CASCADE" json:"-"`
}
