package domain

import (
	"errors"
)

// Run statuses as written by the worker
const (
	RunStatusCompleted = "COMPLETED"
	RunStatusPartial   = "PARTIAL"
	RunStatusFailed    = "FAILED"
	RunStatusDropped   = "DROPPED"
)

var (
	ErrRunNotFound = errors.New("run not found")

	// ErrLedgerDisabled is returned by run queries when no database is configured
	ErrLedgerDisabled = errors.New("run ledger is disabled")

	ErrInvalidFile = errors.New("invalid upload")
)

// ValidStatus reports whether s is a run status
func ValidStatus(s string) bool {
	switch s {
	case RunStatusCompleted, RunStatusPartial, RunStatusFailed, RunStatusDropped:
		return true
	}
	return false
}
