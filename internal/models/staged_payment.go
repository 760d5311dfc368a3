package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// StagedPayment is one imported payment line awaiting reconciliation.
type StagedPayment struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UploadBatchID uuid.UUID `gorm:"type:uuid;index;not null" json:"upload_batch_id"`
	RowNumber     int       `json:"row_number"`

	ClientRef            string          `json:"client_ref"`
	ClientID             *uuid.UUID      `gorm:"type:uuid;index" json:"client_id,omitempty"`
	Amount               decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"amount"`
	RawAmount            string          `json:"raw_amount"`
	AuthorizationDate    *time.Time      `json:"authorization_date,omitempty"`
	RawAuthorizationDate string          `json:"raw_authorization_date"`
	OrderRef             string          `gorm:"index" json:"order_ref"`
	ReceiverName         string          `json:"receiver_name"`
	SourceStatus         string          `json:"source_status"`

	ProcessingStatus        ProcessingStatus                     `gorm:"type:varchar(16);index;not null;default:PENDING" json:"processing_status"`
	PendingReceivablesCount int                                  `json:"pending_receivables_count"`
	AppliedMatch            datatypes.JSONSlice[AppliedReceivable] `json:"applied_match,omitempty"`
	AdjustmentAmount        decimal.Decimal                      `gorm:"type:numeric(14,2);not null;default:0" json:"adjustment_amount"`
	LastError               string                               `json:"last_error,omitempty"`

	RunID       *uuid.UUID `gorm:"type:uuid;index" json:"run_id,omitempty"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// AppliedReceivable records how much of a payment settled one receivable.
type AppliedReceivable struct {
	ReceivableID uuid.UUID       `json:"receivable_id"`
	Amount       decimal.Decimal `json:"amount"`
}
