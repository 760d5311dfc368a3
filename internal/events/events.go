// Package events publishes reconciliation outcomes for downstream consumers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	TypeRowResolved  = "row.resolved"
	TypeRunCompleted = "run.completed"
)

type Event struct {
	Type            string         `json:"type"`
	BatchID         uuid.UUID      `json:"batch_id"`
	RunID           uuid.UUID      `json:"run_id"`
	StagedPaymentID *uuid.UUID     `json:"staged_payment_id,omitempty"`
	Status          string         `json:"status,omitempty"`
	Reason          string         `json:"reason,omitempty"`
	Counts          map[string]int `json:"counts,omitempty"`
	OccurredAt      time.Time      `json:"occurred_at"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
