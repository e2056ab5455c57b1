package syncio

import (
	"context"

	"github.com/syncgraph/synccore/syncmodel"
)

// CheckpointRecord is the durable representation of a CheckpointJob (spec §6).
type CheckpointRecord struct {
	JobID     string
	State     syncmodel.CheckpointState
	Attempts  int
	Payload   syncmodel.CheckpointJobRequest
	LastError string
}

// CheckpointStore is the optional relational-store collaborator used to
// persist checkpoint jobs (spec §6). When absent, the Checkpoint Job
// Runner operates in-memory only (spec §3, §4.5).
type CheckpointStore interface {
	Put(ctx context.Context, rec CheckpointRecord) error
	Get(ctx context.Context, jobID string) (CheckpointRecord, bool, error)
	Delete(ctx context.Context, jobID string) error
	ListQueued(ctx context.Context) ([]CheckpointRecord, error)
}
