package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentApplication is the ledger trail of a staged payment settling a receivable.
type PaymentApplication struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	StagedPaymentID uuid.UUID       `gorm:"type:uuid;index;not null" json:"staged_payment_id"`
	ReceivableID    uuid.UUID       `gorm:"type:uuid;index;not null" json:"receivable_id"`
	RunID           *uuid.UUID      `gorm:"type:uuid" json:"run_id,omitempty"`
	Amount          decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	BalanceBefore   decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"balance_before"`
	BalanceAfter    decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"balance_after"`
	CreatedAt       time.Time       `json:"created_at"`
}
