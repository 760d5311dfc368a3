package reconciliation

import (
	"errors"

	"rental-receivables-recon/internal/models"
)

// Row outcomes. Each maps to one terminal status.
var (
	ErrClientUnresolved = errors.New("client unresolved")
	ErrNoCandidates     = errors.New("client has no outstanding receivables")
	ErrNoMatchFound     = errors.New("no receivable combination matches the amount")
	ErrLedgerApply      = errors.New("ledger apply failed")
	ErrMalformedAmount  = errors.New("malformed amount")
)

var (
	ErrBatchNotFound = errors.New("upload batch not found")
	ErrRunInProgress = errors.New("reconciliation already running for batch")
	ErrInvalidStatus = errors.New("status cannot be reset")
)

// StatusForError maps a row outcome to the terminal status it leaves the row in.
// A nil error means the match was applied.
func StatusForError(err error) models.ProcessingStatus {
	switch {
	case err == nil:
		return models.StatusProcessed
	case errors.Is(err, ErrClientUnresolved):
		return models.StatusNoClient
	case errors.Is(err, ErrNoCandidates):
		return models.StatusNoCxC
	case errors.Is(err, ErrNoMatchFound):
		return models.StatusNoMatch
	default:
		return models.StatusError
	}
}
