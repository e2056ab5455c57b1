package syncmodel

import "time"

// The following are the emitted event payloads of spec §6. Each corresponds
// to one named event in the spec's "Emitted events" list; the eventbus.Bus
// they travel over is wired up per-consumer in the events package.

// OperationEvent covers operationStarted/Completed/Failed/Cancelled/
// RolledBack/Abandoned, distinguished by Phase.
type OperationEvent struct {
	Operation SyncOperation
	Phase     string // "started"|"completed"|"failed"|"cancelled"|"rolled_back"|"abandoned"
}

// SyncProgressEvent is syncProgress(op, {phase, progress}).
type SyncProgressEvent struct {
	OperationID string
	Phase       OperationPhase
	Progress    float64 // [0,1]
}

// ConflictDetectedEvent is conflictDetected, fired once per conflict.
type ConflictDetectedEvent struct {
	OperationID string
	Conflict    Conflict
}

// ConflictsDetectedEvent is conflictsDetected, fired once per batch.
type ConflictsDetectedEvent struct {
	OperationID string
	Conflicts   []Conflict
}

// SessionSequenceAnomalyEvent is sessionSequenceAnomaly (spec §4.4).
type SessionSequenceAnomalyEvent struct {
	SessionID    string
	Type         string
	Sequence     int64
	PrevSequence int64
	PrevType     string
	Reason       AnomalyReason
	EventID      string
	Timestamp    time.Time
}

// CheckpointScheduledEvent is checkpointScheduled / checkpointScheduleFailed,
// distinguished by Failed/Error.
type CheckpointScheduledEvent struct {
	JobID   string
	Payload CheckpointJobRequest
	Failed  bool
	Error   string
}

// CheckpointMetricsUpdatedEvent is checkpointMetricsUpdated.
type CheckpointMetricsUpdatedEvent struct {
	Metrics CheckpointMetrics
}

// CheckpointMetrics is getMetrics()'s return shape (spec §4.5).
type CheckpointMetrics struct {
	Enqueued  int64
	Completed int64
	Failed    int64
	Retries   int64
	DeadLettered int64
}

// CheckpointJobEvent covers jobEnqueued/jobStarted/jobCompleted/
// jobAttemptFailed/jobDeadLettered, distinguished by Phase.
type CheckpointJobEvent struct {
	JobID        string
	Phase        string
	Attempts     int
	CheckpointID string
	Error        string
}

// SessionCheckpointEvent is the session_checkpoint event (spec §4.5
// annotate-on-enqueue-failure, §4.7).
type SessionCheckpointEvent struct {
	SessionID string
	Status    string // "manual_intervention", etc
	Reason    CheckpointReason
	JobID     string
	Error     string
}

// HealthCheckEvent is healthCheck (spec §4.8).
type HealthCheckEvent struct {
	Status    HealthStatus
	Timestamp time.Time
}

// AlertEvent is alertTriggered (spec §4.8).
type AlertEvent struct {
	ID        string
	Severity  string
	Message   string
	Timestamp time.Time
}

// LogEvent is logEntry (spec §4.8).
type LogEvent struct {
	Level     string
	Message   string
	Fields    map[string]any
	Timestamp time.Time
}
