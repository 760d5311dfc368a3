package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Client struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Code           string    `gorm:"uniqueIndex" json:"code"`
	Name           string    `json:"name"`
	NormalizedName string    `gorm:"index" json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

func (c *Client) BeforeSave(_ *gorm.DB) error {
	c.NormalizedName = NormalizeName(c.Name)
	return nil
}

// NormalizeName folds a receiver or client name for comparison.
func NormalizeName(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "-", " ")
	return strings.Join(strings.Fields(s), " ")
}

// All lists the tables owned by this service, in migration order.
func All() []any {
	return []any{
		&Client{},
		&Receivable{},
		&UploadBatch{},
		&StagedPayment{},
		&PaymentApplication{},
	}
}
