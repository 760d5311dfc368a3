package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrClaimLost means the row is no longer PROCESSING for the caller.
	ErrClaimLost = errors.New("staged payment claim lost")
	// ErrBalanceConflict means the receivables changed between read and apply.
	ErrBalanceConflict = errors.New("receivable balances changed")
	ErrDuplicateUpload = errors.New("file already uploaded")
)
