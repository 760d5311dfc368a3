package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Receivable is one outstanding obligation of a client under a rental contract.
type Receivable struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID    uuid.UUID       `gorm:"type:uuid;index:idx_receivable_client_due,priority:1;not null" json:"client_id"`
	ContractRef string          `gorm:"index" json:"contract_ref"`
	Description string          `json:"description"`
	DueDate     time.Time       `gorm:"index:idx_receivable_client_due,priority:2" json:"due_date"`
	Amount      decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Balance     decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"balance"`
	Status      string          `gorm:"index;not null;default:OPEN" json:"status"`
	PaidAt      *time.Time      `json:"paid_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Settled reports whether nothing remains outstanding.
func (r Receivable) Settled() bool {
	return !r.Balance.IsPositive()
}
