package syncmodel

// RollbackPoint is an opaque handle returned by the Rollback Engine (C5),
// owned by the operation that created it (spec §3).
type RollbackPoint struct {
	ID          string
	OperationID string
	Label       string
}

// RollbackError is one failure encountered while replaying a rollback
// point (spec §4.6).
type RollbackError struct {
	Action      string
	ID          string
	Error       string
	Recoverable bool
}

// RollbackResult is the outcome of rollbackToPoint.
type RollbackResult struct {
	Success bool
	Errors  []RollbackError
}
