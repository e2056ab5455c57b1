package syncmodel

import (
	"errors"
	"time"
)

// ErrorKind classifies a SyncError, per spec §3/§7.
type ErrorKind string

const (
	ErrorKindParse      ErrorKind = "parse"
	ErrorKindDatabase   ErrorKind = "database"
	ErrorKindConflict   ErrorKind = "conflict"
	ErrorKindUnknown    ErrorKind = "unknown"
	ErrorKindRollback   ErrorKind = "rollback"
	ErrorKindCancelled  ErrorKind = "cancelled"
	ErrorKindCapability ErrorKind = "capability"
	ErrorKindCheckpoint ErrorKind = "checkpoint"
)

// SyncError records one failure observed during an operation (spec §3).
// Invariant: Recoverable=false forces the owning operation to finalize as
// failed even if other work succeeded (enforced in engine finalization).
type SyncError struct {
	File        string
	Kind        ErrorKind
	Message     string
	Timestamp   time.Time
	Recoverable bool
}

func (e SyncError) Error() string { return e.Message }

// Sentinels so callers can errors.Is against a kind without string
// matching, per SPEC_FULL's ambient-error-handling section.
var (
	ErrParse      = errors.New("synccore: parse error")
	ErrDatabase   = errors.New("synccore: database error")
	ErrConflict   = errors.New("synccore: conflict detection error")
	ErrUnknown    = errors.New("synccore: unknown error")
	ErrRollback   = errors.New("synccore: rollback error")
	ErrCancelled  = errors.New("synccore: operation cancelled")
	ErrCapability = errors.New("synccore: missing optional store capability")
	ErrCheckpoint = errors.New("synccore: checkpoint enqueue failure")
)

func sentinelFor(k ErrorKind) error {
	switch k {
	case ErrorKindParse:
		return ErrParse
	case ErrorKindDatabase:
		return ErrDatabase
	case ErrorKindConflict:
		return ErrConflict
	case ErrorKindRollback:
		return ErrRollback
	case ErrorKindCancelled:
		return ErrCancelled
	case ErrorKindCapability:
		return ErrCapability
	case ErrorKindCheckpoint:
		return ErrCheckpoint
	default:
		return ErrUnknown
	}
}

// Unwrap lets errors.Is(syncErr, syncmodel.ErrDatabase) work directly on a
// SyncError value.
func (e SyncError) Unwrap() error { return sentinelFor(e.Kind) }

// NewError constructs a SyncError stamped with the current time.
func NewError(file string, kind ErrorKind, message string, recoverable bool) SyncError {
	return SyncError{File: file, Kind: kind, Message: message, Timestamp: time.Now(), Recoverable: recoverable}
}
