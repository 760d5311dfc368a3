package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-receivables-recon/internal/models"
	"rental-receivables-recon/internal/testutil"
)

func TestClientRepository_Resolve(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewClientRepository(db)

	norte := testutil.CreateClient(t, db, "ARR-001", "Arrendadora del Norte, S.A.")
	testutil.CreateClient(t, db, "DUP-1", "Comercial Lopez")
	testutil.CreateClient(t, db, "DUP-2", "Comercial-Lopez")
	missing := uuid.New()

	tests := []struct {
		name    string
		payment models.StagedPayment
		want    uuid.UUID
		wantOK  bool
	}{
		{
			name:    "explicit client id",
			payment: models.StagedPayment{ClientID: &norte.ID},
			want:    norte.ID,
			wantOK:  true,
		},
		{
			name:    "code is case insensitive",
			payment: models.StagedPayment{ClientRef: "  arr-001 "},
			want:    norte.ID,
			wantOK:  true,
		},
		{
			name:    "receiver name normalized",
			payment: models.StagedPayment{ReceiverName: "arrendadora del norte s.a."},
			want:    norte.ID,
			wantOK:  true,
		},
		{
			name:    "unknown id falls back to name",
			payment: models.StagedPayment{ClientID: &missing, ReceiverName: "ARRENDADORA DEL NORTE SA"},
			want:    norte.ID,
			wantOK:  true,
		},
		{
			name:    "ambiguous name",
			payment: models.StagedPayment{ReceiverName: "comercial lopez"},
			wantOK:  false,
		},
		{
			name:    "nothing to go on",
			payment: models.StagedPayment{},
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := repo.Resolve(context.Background(), &tt.payment)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
