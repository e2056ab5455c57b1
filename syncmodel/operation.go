// Package syncmodel defines the data types shared by every synchronization
// core component: the operation record and its lifecycle, error and
// conflict shapes, session/sequence state, checkpoint jobs, and the
// relationship shape the core writes to the graph store.
//
// Per spec §9's "Dynamic payload coupling" design note, SyncOperation does
// not carry the heterogeneous working buffers the original design attached
// to it (batchEntities, batchRelationships, _embedQueue, unresolvedRelationships).
// Those are owned exclusively by the worker executing a given flow (see
// engine.runFull, engine.runIncremental, engine.runPartial) and
// are never visible outside the engine package.
package syncmodel

import (
	"fmt"
	"sync"
	"time"
)

// OperationType identifies which of the three sync flows an operation runs.
type OperationType string

const (
	OperationFull        OperationType = "full"
	OperationIncremental OperationType = "incremental"
	OperationPartial     OperationType = "partial"
)

// OperationStatus is the lifecycle stage of a SyncOperation.
type OperationStatus string

const (
	StatusPending    OperationStatus = "pending"
	StatusRunning    OperationStatus = "running"
	StatusCompleted  OperationStatus = "completed"
	StatusFailed     OperationStatus = "failed"
	StatusRolledBack OperationStatus = "rolled_back"
)

// IsTerminal reports whether status is one that ends an operation's
// lifecycle (spec §8: "operation that reaches a terminal state").
func (s OperationStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusRolledBack:
		return true
	default:
		return false
	}
}

// ConflictResolution selects how the engine handles detected conflicts.
type ConflictResolution string

const (
	ConflictOverwrite ConflictResolution = "overwrite"
	ConflictMerge      ConflictResolution = "merge"
	ConflictSkip       ConflictResolution = "skip"
	ConflictManual     ConflictResolution = "manual"
)

// Options are the per-operation tunables accepted by startFull/Incremental/Partial.
type Options struct {
	Timeout            time.Duration
	RollbackOnError    bool
	ConflictResolution ConflictResolution
	IncludeEmbeddings  bool
	MaxConcurrency     int
	BatchSize          int
}

// DefaultOptions fills zero-valued fields with spec defaults: 30s timeout,
// manual-free conflict resolution (auto-resolve, overwrite-first), 12-way
// concurrency, batch size 60 (spec §4.1.1).
func DefaultOptions(o Options) Options {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.ConflictResolution == "" {
		o.ConflictResolution = ConflictOverwrite
	}
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = 12
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 60
	}
	return o
}

// FileChangeType enumerates incremental change kinds.
type FileChangeType string

const (
	ChangeCreate FileChangeType = "create"
	ChangeModify FileChangeType = "modify"
	ChangeDelete FileChangeType = "delete"
)

// FileChange is one entry of an incremental sync's change-set.
type FileChange struct {
	ID   string
	Type FileChangeType
	Path string
}

// PartialOpType enumerates partial sync update kinds.
type PartialOpType string

const (
	PartialOpCreate PartialOpType = "create"
	PartialOpUpdate PartialOpType = "update"
	PartialOpDelete PartialOpType = "delete"
)

// PartialUpdate is one entry of a partial sync's update-set.
type PartialUpdate struct {
	EntityID string
	Type     PartialOpType
	Changes  map[string]any
	NewValue any
}

// Payload is the tagged variant replacing the original's loosely-attached
// options/changes/updates fields (spec §9 design note). Exactly one
// concrete type is attached to a SyncOperation for its lifetime.
type Payload interface {
	OperationType() OperationType
	OperationOptions() Options
}

// FullPayload backs a full sync.
type FullPayload struct {
	Options Options
}

func (p FullPayload) OperationType() OperationType { return OperationFull }
func (p FullPayload) OperationOptions() Options     { return p.Options }

// IncrementalPayload backs an incremental sync.
type IncrementalPayload struct {
	Options Options
	Changes []FileChange
}

func (p IncrementalPayload) OperationType() OperationType { return OperationIncremental }
func (p IncrementalPayload) OperationOptions() Options     { return p.Options }

// PartialPayload backs a partial sync.
type PartialPayload struct {
	Options Options
	Updates []PartialUpdate
}

func (p PartialPayload) OperationType() OperationType { return OperationPartial }
func (p PartialPayload) OperationOptions() Options     { return p.Options }

// Counters tallies the effect of an operation, per spec §3.
type Counters struct {
	FilesProcessed        int
	EntitiesCreated       int
	EntitiesUpdated       int
	EntitiesDeleted       int
	RelationshipsCreated  int
	RelationshipsUpdated  int
	RelationshipsDeleted  int
}

// SyncOperation is the lifecycle record for one sync request (spec §3).
//
// Mutations are serialized by the engine's single-threaded queue processor;
// the mutex here only guards concurrent reads via GetStatus/GetActive
// against those writes, it is never held across a cooperative checkpoint.
type SyncOperation struct {
	mu sync.RWMutex

	ID            string
	Type          OperationType
	Status        OperationStatus
	StartTime     time.Time
	EndTime       *time.Time
	Counters      Counters
	Errors        []SyncError
	Conflicts     []Conflict
	RollbackPoint string // empty if none created
	Attempts      int
	Payload       Payload
}

// Snapshot returns a shallow copy safe for callers outside the engine to
// read (GetStatus/GetActive), without holding the operation's lock.
func (op *SyncOperation) Snapshot() SyncOperation {
	op.mu.RLock()
	defer op.mu.RUnlock()
	cp := *op
	cp.Errors = append([]SyncError(nil), op.Errors...)
	cp.Conflicts = append([]Conflict(nil), op.Conflicts...)
	return cp
}

// Mutate runs fn with the operation's write lock held. All lifecycle
// transitions go through Mutate so Snapshot never observes a torn update.
func (op *SyncOperation) Mutate(fn func(*SyncOperation)) {
	op.mu.Lock()
	defer op.mu.Unlock()
	fn(op)
}

// AppendError appends err under lock.
func (op *SyncOperation) AppendError(err SyncError) {
	op.Mutate(func(o *SyncOperation) {
		o.Errors = append(o.Errors, err)
	})
}

// HasNonRecoverableError reports whether any recorded error is
// non-recoverable (spec §3 invariant: forces the operation to fail).
func (op *SyncOperation) HasNonRecoverableError() bool {
	op.mu.RLock()
	defer op.mu.RUnlock()
	for _, e := range op.Errors {
		if !e.Recoverable {
			return true
		}
	}
	return false
}

// NewID builds an operation id from a prefix, the current time, and a
// monotonic counter, per spec §3 ("prefix+timestamp+counter").
func NewID(prefix string, now time.Time, counter uint64) string {
	return fmt.Sprintf("%s_%d_%d", prefix, now.UnixNano(), counter)
}
