package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"rental-receivables-recon/internal/models"
)

// ClientRepository resolves staged rows to known clients.
type ClientRepository struct {
	db *gorm.DB
}

func NewClientRepository(db *gorm.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

func (r *ClientRepository) Create(ctx context.Context, c *models.Client) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(c).Error
}

// Resolve ties a staged row to a client: first by an explicit id or code,
// otherwise by an unambiguous normalized receiver name.
func (r *ClientRepository) Resolve(ctx context.Context, p *models.StagedPayment) (uuid.UUID, bool, error) {
	db := r.db.WithContext(ctx)

	if p.ClientID != nil {
		var n int64
		if err := db.Model(&models.Client{}).Where("id = ?", *p.ClientID).Count(&n).Error; err != nil {
			return uuid.Nil, false, err
		}
		if n == 1 {
			return *p.ClientID, true, nil
		}
	}

	if ref := strings.TrimSpace(p.ClientRef); ref != "" {
		var c models.Client
		err := db.Where("LOWER(code) = ?", strings.ToLower(ref)).First(&c).Error
		switch {
		case err == nil:
			return c.ID, true, nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return uuid.Nil, false, err
		}
	}

	name := models.NormalizeName(p.ReceiverName)
	if name == "" {
		return uuid.Nil, false, nil
	}
	var hits []models.Client
	if err := db.Where("normalized_name = ?", name).Limit(2).Find(&hits).Error; err != nil {
		return uuid.Nil, false, err
	}
	if len(hits) != 1 {
		return uuid.Nil, false, nil
	}
	return hits[0].ID, true, nil
}
