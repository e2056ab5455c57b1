// Package checkpoint implements the Checkpoint Job Runner (C4): a durable
// queue of checkpoint-materialization jobs with retry, dead-lettering, and
// optional persistence, per spec §4.5.
package checkpoint

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/syncgraph/synccore/events"
	"github.com/syncgraph/synccore/internal/config"
	"github.com/syncgraph/synccore/syncio"
	"github.com/syncgraph/synccore/syncmodel"
)

const defaultMaxAttempts = 3

// Runner is the Checkpoint Job Runner. The zero value is not usable;
// construct with New.
type Runner struct {
	store   syncio.GraphStore
	persist syncio.CheckpointStore // nil until attachPersistence
	hub     *events.Hub
	workers int

	mu          sync.Mutex
	jobs        chan *syncmodel.CheckpointJob
	sessionSeq  map[string]int64
	deadLetter  []syncmodel.CheckpointJob

	enqueued, completed, failed, retries, deadLettered atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

// New returns a Runner with workers background goroutines draining the
// queue (spec §4.5: "single worker by default, configurable >= 1").
func New(store syncio.GraphStore, hub *events.Hub, workers int) *Runner {
	if workers < 1 {
		workers = 1
	}
	r := &Runner{
		store:      store,
		hub:        hub,
		workers:    workers,
		jobs:       make(chan *syncmodel.CheckpointJob, 256),
		sessionSeq: make(map[string]int64),
		done:       make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go r.loop()
	}
	return r
}

// AttachPersistence implements attachPersistence: once a store is attached,
// later enqueues write through to it and every later state change of any
// job is written to it. Jobs already enqueued are not copied into the store
// when it is attached; such a job first appears there at its next state
// change.
func (r *Runner) AttachPersistence(ctx context.Context, store syncio.CheckpointStore) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.persist = store
	return nil
}

// HasPersistence implements hasPersistence.
func (r *Runner) HasPersistence() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.persist != nil
}

// Enqueue implements enqueue(payload) -> jobId (spec §4.5).
func (r *Runner) Enqueue(ctx context.Context, req syncmodel.CheckpointJobRequest) (string, error) {
	seeds := syncmodel.DedupeSeedIDs(req.SeedEntityIDs)
	if len(seeds) == 0 {
		return "", fmt.Errorf("checkpoint: seedEntityIds must be non-empty")
	}
	hopCount := config.Clamp(req.HopCount, 1, 5)

	r.mu.Lock()
	r.sessionSeq[req.SessionID]++
	seq := r.sessionSeq[req.SessionID]
	r.mu.Unlock()

	job := &syncmodel.CheckpointJob{
		JobID:          "ckpt_" + uuid.NewString(),
		SessionID:      req.SessionID,
		SeedEntityIDs:  seeds,
		Reason:         req.Reason,
		HopCount:       hopCount,
		SequenceNumber: seq,
		OperationID:    req.OperationID,
		EventID:        req.EventID,
		Actor:          req.Actor,
		Annotations:    req.Annotations,
		TriggeredBy:    req.TriggeredBy,
		Window:         req.Window,
		State:          syncmodel.CheckpointQueued,
	}

	if r.HasPersistence() {
		if err := r.persist.Put(ctx, toRecord(job)); err != nil {
			return "", err
		}
	}

	r.enqueued.Add(1)
	if r.hub != nil {
		r.hub.CheckpointJob.Emit(syncmodel.CheckpointJobEvent{JobID: job.JobID, Phase: "enqueued"})
		r.hub.CheckpointScheduled.Emit(syncmodel.CheckpointScheduledEvent{JobID: job.JobID, Payload: req})
	}

	select {
	case r.jobs <- job:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return job.JobID, nil
}

// loop is one worker draining the queue in FIFO order. Jobs leave the
// channel in the order they entered it, but execution order per session is
// not guaranteed: with more than one worker, jobs of one session can run
// concurrently, and a job re-queued after a failed attempt enters behind
// any job enqueued in the meantime.
func (r *Runner) loop() {
	for {
		select {
		case job := <-r.jobs:
			r.process(job)
		case <-r.done:
			return
		}
	}
}

func (r *Runner) process(job *syncmodel.CheckpointJob) {
	ctx := context.Background()
	job.State = syncmodel.CheckpointRunning
	r.persistQuiet(ctx, job)
	if r.hub != nil {
		r.hub.CheckpointJob.Emit(syncmodel.CheckpointJobEvent{JobID: job.JobID, Phase: "started"})
	}

	checkpointID, err := r.store.MaterializeCheckpoint(ctx, job.SeedEntityIDs, job.HopCount)
	if err == nil {
		job.State = syncmodel.CheckpointCompleted
		job.CheckpointID = checkpointID
		r.persistQuiet(ctx, job)
		r.completed.Add(1)
		if r.hub != nil {
			r.hub.CheckpointJob.Emit(syncmodel.CheckpointJobEvent{JobID: job.JobID, Phase: "completed", CheckpointID: checkpointID})
			r.hub.CheckpointMetrics.Emit(syncmodel.CheckpointMetricsUpdatedEvent{Metrics: r.snapshot()})
		}
		return
	}

	job.Attempts++
	job.LastError = err.Error()
	if r.hub != nil {
		r.hub.CheckpointJob.Emit(syncmodel.CheckpointJobEvent{JobID: job.JobID, Phase: "attempt_failed", Attempts: job.Attempts, Error: err.Error()})
	}

	if job.Attempts < defaultMaxAttempts {
		r.retries.Add(1)
		job.State = syncmodel.CheckpointQueued
		r.persistQuiet(ctx, job)
		delay := backoff(job.Attempts)
		time.AfterFunc(delay, func() {
			select {
			case r.jobs <- job:
			case <-r.done:
			}
		})
		return
	}

	job.State = syncmodel.CheckpointDeadLetter
	r.persistQuiet(ctx, job)
	r.failed.Add(1)
	r.deadLettered.Add(1)
	r.mu.Lock()
	r.deadLetter = append(r.deadLetter, *job)
	r.mu.Unlock()
	if r.hub != nil {
		r.hub.CheckpointJob.Emit(syncmodel.CheckpointJobEvent{JobID: job.JobID, Phase: "dead_lettered", Attempts: job.Attempts, Error: err.Error()})
		r.hub.CheckpointMetrics.Emit(syncmodel.CheckpointMetricsUpdatedEvent{Metrics: r.snapshot()})
	}
}

// backoff implements exponential backoff between retry attempts (spec
// §4.5). attempts is 1-indexed at call time.
func backoff(attempts int) time.Duration {
	base := 5 * time.Second
	for i := 1; i < attempts; i++ {
		base *= 2
	}
	return base
}

func (r *Runner) persistQuiet(ctx context.Context, job *syncmodel.CheckpointJob) {
	if !r.HasPersistence() {
		return
	}
	_ = r.persist.Put(ctx, toRecord(job))
}

func toRecord(job *syncmodel.CheckpointJob) syncio.CheckpointRecord {
	return syncio.CheckpointRecord{
		JobID:     job.JobID,
		State:     job.State,
		Attempts:  job.Attempts,
		LastError: job.LastError,
		Payload: syncmodel.CheckpointJobRequest{
			SessionID:     job.SessionID,
			SeedEntityIDs: job.SeedEntityIDs,
			Reason:        job.Reason,
			HopCount:      job.HopCount,
			OperationID:   job.OperationID,
			EventID:       job.EventID,
			Actor:         job.Actor,
			Annotations:   job.Annotations,
			TriggeredBy:   job.TriggeredBy,
			Window:        job.Window,
		},
	}
}

// GetMetrics implements getMetrics().
func (r *Runner) GetMetrics() syncmodel.CheckpointMetrics {
	return r.snapshot()
}

func (r *Runner) snapshot() syncmodel.CheckpointMetrics {
	return syncmodel.CheckpointMetrics{
		Enqueued:     r.enqueued.Load(),
		Completed:    r.completed.Load(),
		Failed:       r.failed.Load(),
		Retries:      r.retries.Load(),
		DeadLettered: r.deadLettered.Load(),
	}
}

// GetDeadLetterJobs implements getDeadLetterJobs().
func (r *Runner) GetDeadLetterJobs() []syncmodel.CheckpointJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]syncmodel.CheckpointJob(nil), r.deadLetter...)
}

// Close signals all workers to stop and returns without waiting for them.
// An attempt already in progress is not interrupted: its worker runs it to
// completion or failure before exiting. Jobs still in the channel are not
// guaranteed to run, and retries not yet re-queued are dropped.
func (r *Runner) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}
