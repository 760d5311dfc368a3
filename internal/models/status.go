package models

// ProcessingStatus is the reconciliation state of a staged payment row.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "PENDING"
	StatusProcessing ProcessingStatus = "PROCESSING"
	StatusProcessed  ProcessingStatus = "PROCESSED"
	StatusNoMatch    ProcessingStatus = "NO_MATCH"
	StatusNoCxC      ProcessingStatus = "NO_CXC"
	StatusNoClient   ProcessingStatus = "NO_CLIENT"
	StatusError      ProcessingStatus = "ERROR"
)

// TerminalStatuses lists every status a run can leave a row in.
var TerminalStatuses = []ProcessingStatus{
	StatusProcessed,
	StatusNoMatch,
	StatusNoCxC,
	StatusNoClient,
	StatusError,
}

// IsTerminal reports whether no further automatic transition happens from s.
func (s ProcessingStatus) IsTerminal() bool {
	for _, t := range TerminalStatuses {
		if s == t {
			return true
		}
	}
	return false
}

// Resettable reports whether an operator may move a row in s back to PENDING.
// Applied payments are never re-opened.
func (s ProcessingStatus) Resettable() bool {
	return s.IsTerminal() && s != StatusProcessed
}

// ParseProcessingStatus validates a status coming from the outside world.
func ParseProcessingStatus(raw string) (ProcessingStatus, bool) {
	s := ProcessingStatus(raw)
	switch s {
	case StatusPending, StatusProcessing:
		return s, true
	}
	return s, s.IsTerminal()
}

// Batch statuses.
const (
	BatchPending    = "PENDING"
	BatchProcessing = "PROCESSING"
	BatchCompleted  = "COMPLETED"
)

// Receivable statuses.
const (
	ReceivableOpen = "OPEN"
	ReceivablePaid = "PAID"
)
