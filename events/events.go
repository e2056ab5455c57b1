// Package events is the synchronization core's event hub: one
// eventbus.Bus[T] per emitted event kind of spec §6, aggregated behind a
// single struct the Operation Engine, Session Stream, Checkpoint Job
// Runner, and Monitoring Sink all share.
package events

import (
	"github.com/syncgraph/synccore/internal/eventbus"
	"github.com/syncgraph/synccore/syncmodel"
)

// Hub fans out every emitted event kind to its registered listeners. The
// zero value is not usable; construct with New.
type Hub struct {
	Operation            *eventbus.Bus[syncmodel.OperationEvent]
	Progress             *eventbus.Bus[syncmodel.SyncProgressEvent]
	ConflictDetected     *eventbus.Bus[syncmodel.ConflictDetectedEvent]
	ConflictsDetected    *eventbus.Bus[syncmodel.ConflictsDetectedEvent]
	Session              *eventbus.Bus[syncmodel.SessionStreamEvent]
	SessionCheckpoint    *eventbus.Bus[syncmodel.SessionCheckpointEvent]
	SequenceAnomaly      *eventbus.Bus[syncmodel.SessionSequenceAnomalyEvent]
	CheckpointJob        *eventbus.Bus[syncmodel.CheckpointJobEvent]
	CheckpointScheduled  *eventbus.Bus[syncmodel.CheckpointScheduledEvent]
	CheckpointMetrics    *eventbus.Bus[syncmodel.CheckpointMetricsUpdatedEvent]
	Health               *eventbus.Bus[syncmodel.HealthCheckEvent]
	Alert                *eventbus.Bus[syncmodel.AlertEvent]
	Log                  *eventbus.Bus[syncmodel.LogEvent]
}

// New returns a Hub with every bus initialized and empty.
func New() *Hub {
	return &Hub{
		Operation:           eventbus.New[syncmodel.OperationEvent](),
		Progress:            eventbus.New[syncmodel.SyncProgressEvent](),
		ConflictDetected:    eventbus.New[syncmodel.ConflictDetectedEvent](),
		ConflictsDetected:   eventbus.New[syncmodel.ConflictsDetectedEvent](),
		Session:             eventbus.New[syncmodel.SessionStreamEvent](),
		SessionCheckpoint:   eventbus.New[syncmodel.SessionCheckpointEvent](),
		SequenceAnomaly:     eventbus.New[syncmodel.SessionSequenceAnomalyEvent](),
		CheckpointJob:       eventbus.New[syncmodel.CheckpointJobEvent](),
		CheckpointScheduled: eventbus.New[syncmodel.CheckpointScheduledEvent](),
		CheckpointMetrics:   eventbus.New[syncmodel.CheckpointMetricsUpdatedEvent](),
		Health:              eventbus.New[syncmodel.HealthCheckEvent](),
		Alert:               eventbus.New[syncmodel.AlertEvent](),
		Log:                 eventbus.New[syncmodel.LogEvent](),
	}
}
