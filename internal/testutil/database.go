// Package testutil sets up throwaway databases and fixtures for tests.
package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"rental-receivables-recon/internal/models"
)

// SetupTestDB opens a migrated in-memory SQLite database closed on cleanup.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql handle: %v", err)
	}
	// Every connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

func Money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Day returns midnight UTC of the given date.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func CreateClient(t *testing.T, db *gorm.DB, code, name string) models.Client {
	t.Helper()
	c := models.Client{ID: uuid.New(), Code: code, Name: name}
	if err := db.Create(&c).Error; err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return c
}

func CreateReceivable(t *testing.T, db *gorm.DB, clientID uuid.UUID, due time.Time, balance string) models.Receivable {
	t.Helper()
	r := models.Receivable{
		ID:       uuid.New(),
		ClientID: clientID,
		DueDate:  due,
		Amount:   Money(balance),
		Balance:  Money(balance),
		Status:   models.ReceivableOpen,
	}
	if err := db.Create(&r).Error; err != nil {
		t.Fatalf("failed to create receivable: %v", err)
	}
	return r
}

// Row describes one staged payment fixture.
type Row struct {
	ClientRef string
	Receiver  string
	Amount    string
	Status    models.ProcessingStatus
}

// CreateBatch stores a batch with one staged payment per row, in order.
func CreateBatch(t *testing.T, db *gorm.DB, rows ...Row) (models.UploadBatch, []models.StagedPayment) {
	t.Helper()

	batch := models.UploadBatch{
		ID:          uuid.New(),
		Filename:    "payments.csv",
		FileHash:    uuid.NewString(),
		Status:      models.BatchPending,
		TotalAmount: decimal.Zero,
	}
	payments := make([]models.StagedPayment, len(rows))
	for i, r := range rows {
		status := r.Status
		if status == "" {
			status = models.StatusPending
		}
		amount := decimal.Zero
		if a, err := decimal.NewFromString(r.Amount); err == nil {
			amount = a
		}
		payments[i] = models.StagedPayment{
			ID:               uuid.New(),
			UploadBatchID:    batch.ID,
			RowNumber:        i + 1,
			ClientRef:        r.ClientRef,
			ReceiverName:     r.Receiver,
			Amount:           amount,
			RawAmount:        r.Amount,
			ProcessingStatus: status,
		}
		batch.TotalAmount = batch.TotalAmount.Add(amount)
	}
	batch.TotalRecords = len(rows)

	if err := db.Omit("StagedPayments").Create(&batch).Error; err != nil {
		t.Fatalf("failed to create batch: %v", err)
	}
	if len(payments) > 0 {
		if err := db.Create(&payments).Error; err != nil {
			t.Fatalf("failed to create staged payments: %v", err)
		}
	}
	return batch, payments
}
