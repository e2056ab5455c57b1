// Package engine implements the Operation Engine (C6): the single-threaded
// FIFO scheduler over full/incremental/partial sync operations, tuning,
// pause/resume, cancellation, and retry, per spec §4.1 and §5.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syncgraph/synccore/checkpoint"
	"github.com/syncgraph/synccore/conflict"
	"github.com/syncgraph/synccore/events"
	"github.com/syncgraph/synccore/internal/abortsignal"
	"github.com/syncgraph/synccore/internal/obslog"
	"github.com/syncgraph/synccore/resolver"
	"github.com/syncgraph/synccore/rollback"
	"github.com/syncgraph/synccore/sequence"
	"github.com/syncgraph/synccore/syncio"
	"github.com/syncgraph/synccore/syncmodel"
)

const maxRetryAttempts = 3

// Statistics implements getStatistics() (spec §8: "total == active + queued
// + completed + failed + cancelled", retried counted separately).
type Statistics struct {
	Total     int
	Active    int
	Queued    int
	Completed int
	Failed    int
	Cancelled int
	Retried   int64
}

// Engine is the Operation Engine. Construct with New; Close stops the
// queue driver goroutine.
type Engine struct {
	parser   syncio.Parser
	store    syncio.GraphStore
	resolver resolver.Resolver
	detector *conflict.Detector
	rollback *rollback.Engine
	ckpt     *checkpoint.Runner
	seqTrk   *sequence.Tracker
	hub      *events.Hub
	log      *obslog.Logger
	git      syncio.GitProvider
	modIdx   syncio.ModuleIndexer

	counter atomic.Uint64

	mu         sync.RWMutex
	operations map[string]*syncmodel.SyncOperation
	signals    map[string]*abortsignal.Signal
	tunings    map[string]*syncmodel.Tuning
	timeouts   map[string]*time.Timer
	queued     []string
	completed  int
	failed     int
	cancelled  int
	retried    atomic.Int64

	paused  atomic.Bool
	pauseMu sync.Mutex
	pauseCh chan struct{}

	queue  chan func()
	stopCh chan struct{}
}

// New returns an Engine wired to its collaborators.
func New(parser syncio.Parser, store syncio.GraphStore, git syncio.GitProvider, modIdx syncio.ModuleIndexer, hub *events.Hub, log *obslog.Logger) *Engine {
	if log == nil {
		log = obslog.Noop()
	}
	e := &Engine{
		parser:     parser,
		store:      store,
		resolver:   resolver.New(store),
		detector:   conflict.NewDetector(store),
		rollback:   rollback.New(store),
		seqTrk:     sequence.New(hub),
		hub:        hub,
		log:        log,
		git:        git,
		modIdx:     modIdx,
		operations: make(map[string]*syncmodel.SyncOperation),
		signals:    make(map[string]*abortsignal.Signal),
		tunings:    make(map[string]*syncmodel.Tuning),
		timeouts:   make(map[string]*time.Timer),
		queue:      make(chan func(), 4096),
		stopCh:     make(chan struct{}),
	}
	e.ckpt = checkpoint.New(store, hub, 1)
	go e.driver()
	return e
}

// driver is the single-threaded queue processor (spec §5): it runs queued
// flow closures one at a time, cooperatively pausing between them.
func (e *Engine) driver() {
	for {
		select {
		case fn := <-e.queue:
			e.waitIfPaused()
			fn()
		case <-e.stopCh:
			return
		}
	}
}

func (e *Engine) waitIfPaused() {
	for e.paused.Load() {
		e.pauseMu.Lock()
		ch := e.pauseCh
		e.pauseMu.Unlock()
		if ch == nil {
			return
		}
		<-ch
	}
}

// Close stops the queue driver. In-flight work is allowed to finish; no
// new queued closures run after Close returns.
func (e *Engine) Close() {
	close(e.stopCh)
	e.ckpt.Close()
}

func (e *Engine) nextID(prefix string) string {
	return syncmodel.NewID(prefix, time.Now(), e.counter.Add(1))
}

func (e *Engine) register(op *syncmodel.SyncOperation) {
	e.mu.Lock()
	e.operations[op.ID] = op
	e.signals[op.ID] = abortsignal.New()
	e.queued = append(e.queued, op.ID)
	e.mu.Unlock()
}

func (e *Engine) dequeue(opID string) {
	e.mu.Lock()
	for i, id := range e.queued {
		if id == opID {
			e.queued = append(e.queued[:i], e.queued[i+1:]...)
			break
		}
	}
	e.mu.Unlock()
}

func (e *Engine) signalFor(opID string) *abortsignal.Signal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.signals[opID]
}

func (e *Engine) emitProgress(opID string, phase syncmodel.OperationPhase, progress float64) {
	if e.hub != nil {
		e.hub.Progress.Emit(syncmodel.SyncProgressEvent{OperationID: opID, Phase: phase, Progress: progress})
	}
}

func (e *Engine) emitLifecycle(op *syncmodel.SyncOperation, phase string) {
	if e.hub != nil {
		e.hub.Operation.Emit(syncmodel.OperationEvent{Operation: op.Snapshot(), Phase: phase})
	}
}

// Cancel implements cancel(id) (spec §8: terminates within the next
// cooperative checkpoint; records exactly one cancelled error; no
// rollback). Returns true even when the operation already reached a
// terminal state (spec §8: "cancellation after completion ... is a
// no-op").
func (e *Engine) Cancel(opID string) bool {
	e.mu.RLock()
	op, ok := e.operations[opID]
	sig := e.signals[opID]
	e.mu.RUnlock()
	if !ok {
		return false
	}
	if op.Status.IsTerminal() {
		return true
	}
	if sig != nil {
		sig.Abort("cancel requested")
	}
	return true
}

// Pause implements pause(): idempotent (spec §8 round-trip law).
func (e *Engine) Pause() {
	e.pauseMu.Lock()
	defer e.pauseMu.Unlock()
	if e.paused.Load() {
		return
	}
	e.paused.Store(true)
	e.pauseCh = make(chan struct{})
}

// Resume implements resume(): idempotent; observable state always ends
// unpaused.
func (e *Engine) Resume() {
	e.pauseMu.Lock()
	defer e.pauseMu.Unlock()
	if !e.paused.Load() {
		return
	}
	e.paused.Store(false)
	close(e.pauseCh)
	e.pauseCh = nil
}

// IsPaused implements isPaused().
func (e *Engine) IsPaused() bool { return e.paused.Load() }

// UpdateTuning implements updateTuning(opId, {maxConcurrency?, batchSize?})
// (spec §8: clamped to [1,64]/[1,5000], non-finite inputs ignored).
func (e *Engine) UpdateTuning(opID string, maxConcurrency, batchSize int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tunings[opID]
	if !ok {
		t = &syncmodel.Tuning{}
		e.tunings[opID] = t
	}
	if maxConcurrency > 0 {
		t.MaxConcurrency = maxConcurrency
	}
	if batchSize > 0 {
		t.BatchSize = batchSize
	}
}

func (e *Engine) tuningFor(opID string) *syncmodel.Tuning {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tunings[opID]
}

// GetStatus implements getStatus(id).
func (e *Engine) GetStatus(opID string) (syncmodel.SyncOperation, bool) {
	e.mu.RLock()
	op, ok := e.operations[opID]
	e.mu.RUnlock()
	if !ok {
		return syncmodel.SyncOperation{}, false
	}
	return op.Snapshot(), true
}

// GetActive implements getActive(): every non-terminal operation.
func (e *Engine) GetActive() []syncmodel.SyncOperation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []syncmodel.SyncOperation
	for _, op := range e.operations {
		snap := op.Snapshot()
		if !snap.Status.IsTerminal() {
			out = append(out, snap)
		}
	}
	return out
}

// GetQueueDepth implements getQueueDepth().
func (e *Engine) GetQueueDepth() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.queued)
}

// GetStatistics implements getStatistics() (spec §8).
func (e *Engine) GetStatistics() Statistics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	active := 0
	for _, op := range e.operations {
		if !op.Snapshot().Status.IsTerminal() {
			active++
		}
	}
	return Statistics{
		Total:     len(e.operations),
		Active:    active,
		Queued:    len(e.queued),
		Completed: e.completed,
		Failed:    e.failed,
		Cancelled: e.cancelled,
		Retried:   e.retried.Load(),
	}
}

// createInitialRollbackPoint implements the rollbackOnError branch of the
// common lifecycle (spec §4.1 step 3): synchronously create a rollback
// point through C5 before the operation is ever enqueued. On failure the
// operation is marked failed immediately (kind=rollback, non-recoverable)
// and never enqueued, per spec. Returns false in that case.
func (e *Engine) createInitialRollbackPoint(ctx context.Context, op *syncmodel.SyncOperation, opts syncmodel.Options) bool {
	if !opts.RollbackOnError {
		return true
	}
	point, err := e.rollback.CreateRollbackPoint(ctx, op.ID, "initial", nil)
	if err != nil {
		now := time.Now()
		op.Mutate(func(o *syncmodel.SyncOperation) {
			o.StartTime = now
			o.EndTime = &now
			o.Status = syncmodel.StatusFailed
			o.Errors = append(o.Errors, syncmodel.NewError("", syncmodel.ErrorKindRollback, err.Error(), false))
		})
		e.mu.Lock()
		e.failed++
		e.mu.Unlock()
		e.dequeue(op.ID)
		e.emitLifecycle(op, "failed")
		return false
	}
	op.Mutate(func(o *syncmodel.SyncOperation) { o.RollbackPoint = point })
	return true
}

// pendingTimeoutReason marks an abort raised by the pending-timeout (as
// opposed to an explicit Cancel), so the flow's first cooperative
// checkpoint can tell the two apart and fail with the right error kind.
type pendingTimeoutReason struct{}

// armPendingTimeout implements the pending-timeout of spec §4.1 step 5 /
// §5 "Timeouts": abort a still-pending operation if options.timeout
// elapses before it starts running. The flow's own first cooperative
// checkpoint (checkInitialAbort) converts the abort into an unknown-kind
// failure; this only flags the signal, it never finalizes directly, so a
// flow already dequeued from the driver is never run twice.
func (e *Engine) armPendingTimeout(op *syncmodel.SyncOperation, opts syncmodel.Options) {
	timer := time.AfterFunc(opts.Timeout, func() {
		if op.Snapshot().Status != syncmodel.StatusPending {
			return
		}
		if sig := e.signalFor(op.ID); sig != nil {
			sig.Abort(pendingTimeoutReason{})
		}
	})
	e.mu.Lock()
	e.timeouts[op.ID] = timer
	e.mu.Unlock()
}

// disarmPendingTimeout cancels op's pending-timeout once it actually
// starts running, so the timer never fires after the flow has begun.
func (e *Engine) disarmPendingTimeout(opID string) {
	e.mu.Lock()
	timer := e.timeouts[opID]
	delete(e.timeouts, opID)
	e.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
}

// checkInitialAbort is the first cooperative checkpoint of every flow
// (spec §5), run immediately after the operation transitions to running.
// A pending-timeout abort fails the operation with an unknown, non-
// recoverable error so it still goes through the normal retry/rollback
// path; any other abort (an explicit Cancel) finalizes as cancelled.
// Reports whether it finalized the operation, in which case the caller
// must return without doing any further work.
func (e *Engine) checkInitialAbort(ctx context.Context, op *syncmodel.SyncOperation, opts syncmodel.Options, sig *abortsignal.Signal) bool {
	if err := sig.ThrowIfAborted(); err != nil {
		if _, ok := sig.Reason().(pendingTimeoutReason); ok {
			op.AppendError(syncmodel.NewError("", syncmodel.ErrorKindUnknown, "operation timed out while pending", false))
			e.finalize(ctx, op, opts, false)
		} else {
			op.AppendError(syncmodel.NewError("", syncmodel.ErrorKindCancelled, err.Error(), true))
			e.finalize(ctx, op, opts, true)
		}
		return true
	}
	return false
}

// upsertConflicts merges incoming into existing keyed by Signature (spec
// §8: "re-detection upserts, no duplicates in operation.conflicts"),
// replacing an existing entry sharing a signature in place.
func upsertConflicts(existing, incoming []syncmodel.Conflict) []syncmodel.Conflict {
	idx := make(map[string]int, len(existing))
	for i, c := range existing {
		idx[c.Signature] = i
	}
	for _, c := range incoming {
		if i, ok := idx[c.Signature]; ok {
			existing[i] = c
		} else {
			idx[c.Signature] = len(existing)
			existing = append(existing, c)
		}
	}
	return existing
}

// handleConflicts implements spec §4.3: when options.conflictResolution
// != "manual" it invokes conflict.ResolveAuto and logs any conflict the
// strategy set still left unresolved, then upserts the (possibly
// resolved) conflicts into op.Conflicts by signature and emits
// conflictDetected/conflictsDetected for observers (e.g. monitor.Sink).
func (e *Engine) handleConflicts(op *syncmodel.SyncOperation, opts syncmodel.Options, detected []syncmodel.Conflict, log *obslog.Logger) {
	if len(detected) == 0 {
		return
	}
	if opts.ConflictResolution != syncmodel.ConflictManual {
		detected = conflict.ResolveAuto(detected, opts.ConflictResolution)
		for _, c := range detected {
			if !c.Resolved && log != nil {
				log.Info().Log("conflict left unresolved by auto-resolution")
			}
		}
	}
	op.Mutate(func(o *syncmodel.SyncOperation) {
		o.Conflicts = upsertConflicts(o.Conflicts, detected)
	})
	if e.hub != nil {
		for _, c := range detected {
			e.hub.ConflictDetected.Emit(syncmodel.ConflictDetectedEvent{OperationID: op.ID, Conflict: c})
		}
		e.hub.ConflictsDetected.Emit(syncmodel.ConflictsDetectedEvent{OperationID: op.ID, Conflicts: detected})
	}
}

// finalize transitions op into a terminal state, running rollback if
// requested and recoverable-failure retry, per the "Retry policy" of
// spec §4.1.
func (e *Engine) finalize(ctx context.Context, op *syncmodel.SyncOperation, opts syncmodel.Options, cancelled bool) {
	now := time.Now()
	op.Mutate(func(o *syncmodel.SyncOperation) {
		o.EndTime = &now
	})

	switch {
	case cancelled:
		op.Mutate(func(o *syncmodel.SyncOperation) { o.Status = syncmodel.StatusFailed })
		e.mu.Lock()
		e.failed++
		e.cancelled++
		e.mu.Unlock()
		e.dequeue(op.ID)
		e.emitLifecycle(op, "cancelled")
		return
	case op.HasNonRecoverableError():
		op.Mutate(func(o *syncmodel.SyncOperation) { o.Status = syncmodel.StatusFailed })
		if opts.RollbackOnError && op.RollbackPoint != "" {
			result := e.rollback.RollbackToPoint(ctx, op.RollbackPoint)
			if !result.Success {
				op.Mutate(func(o *syncmodel.SyncOperation) {
					for _, rerr := range result.Errors {
						o.Errors = append(o.Errors, syncmodel.NewError("", syncmodel.ErrorKindRollback, rerr.Error, rerr.Recoverable))
					}
				})
			} else {
				op.Mutate(func(o *syncmodel.SyncOperation) { o.Status = syncmodel.StatusRolledBack })
			}
		}
		e.maybeRetry(ctx, op, opts)
		return
	default:
		op.Mutate(func(o *syncmodel.SyncOperation) { o.Status = syncmodel.StatusCompleted })
		e.mu.Lock()
		e.completed++
		e.mu.Unlock()
		e.dequeue(op.ID)
		e.emitLifecycle(op, "completed")
	}
}

// maybeRetry implements spec §4.1's retry policy: linear backoff of
// 5s*(attempts+1), capped at 3 attempts, then operationAbandoned.
func (e *Engine) maybeRetry(ctx context.Context, op *syncmodel.SyncOperation, opts syncmodel.Options) {
	if !op.HasNonRecoverableError() {
		e.mu.Lock()
		e.failed++
		e.mu.Unlock()
		e.dequeue(op.ID)
		e.emitLifecycle(op, "failed")
		return
	}

	attempts := op.Snapshot().Attempts
	if attempts >= maxRetryAttempts {
		e.mu.Lock()
		e.failed++
		e.mu.Unlock()
		e.dequeue(op.ID)
		e.emitLifecycle(op, "abandoned")
		return
	}

	delay := time.Duration(5*(attempts+1)) * time.Second
	e.retried.Add(1)
	op.Mutate(func(o *syncmodel.SyncOperation) {
		o.Attempts++
		o.Status = syncmodel.StatusPending
		o.EndTime = nil
		o.StartTime = time.Time{}
		o.Errors = nil
		o.Conflicts = nil
	})
	if opts.RollbackOnError {
		if point, err := e.rollback.CreateRollbackPoint(ctx, op.ID, "retry", nil); err == nil {
			op.Mutate(func(o *syncmodel.SyncOperation) { o.RollbackPoint = point })
		}
	}
	e.mu.Lock()
	e.signals[op.ID] = abortsignal.New()
	e.mu.Unlock()
	e.armPendingTimeout(op, opts)
	time.AfterFunc(delay, func() {
		e.enqueueRun(op.ID, func() { e.runByPayload(op, opts) })
	})
}

func (e *Engine) enqueueRun(opID string, fn func()) {
	select {
	case e.queue <- fn:
	case <-e.stopCh:
	}
}

func (e *Engine) runByPayload(op *syncmodel.SyncOperation, opts syncmodel.Options) {
	switch p := op.Payload.(type) {
	case syncmodel.FullPayload:
		e.runFull(op, p)
	case syncmodel.IncrementalPayload:
		e.runIncremental(op, p)
	case syncmodel.PartialPayload:
		e.runPartial(op, p)
	default:
		_ = opts
	}
}
