package syncio

import (
	"context"
	"time"

	"github.com/syncgraph/synccore/syncmodel"
)

// CreateOptions controls per-entity write behavior.
type CreateOptions struct {
	SkipEmbedding bool
}

// BulkOptions controls bulk write validation.
type BulkOptions struct {
	SkipEmbedding bool
	Validate      bool
}

// EntityQueryOptions controls getEntitiesByFile.
type EntityQueryOptions struct {
	IncludeSymbols bool
}

// AppendVersionOptions accompanies appendVersion calls (spec §4.1.2).
type AppendVersionOptions struct {
	Timestamp   time.Time
	ChangeSetID string
}

// CheckpointAnnotation is the payload for annotateSessionRelationshipsWithCheckpoint.
type CheckpointAnnotation struct {
	Status      string
	Reason      syncmodel.CheckpointReason
	HopCount    int
	JobID       string
	Error       string
	TriggeredBy string
}

// GraphStore is the property-graph/vector-index collaborator the core
// writes derived state to (spec §6). All methods are safe for concurrent
// use; the core holds no locks of its own around them (spec §5).
type GraphStore interface {
	CreateEntity(ctx context.Context, e syncmodel.Entity, opts CreateOptions) error
	CreateEntitiesBulk(ctx context.Context, es []syncmodel.Entity, opts BulkOptions) error
	UpdateEntity(ctx context.Context, id string, patch map[string]any, opts CreateOptions) error
	DeleteEntity(ctx context.Context, id string) error
	GetEntity(ctx context.Context, id string) (syncmodel.Entity, bool, error)
	GetEntitiesByFile(ctx context.Context, path string, opts EntityQueryOptions) ([]syncmodel.Entity, error)

	CreateRelationship(ctx context.Context, r syncmodel.Relationship, opts BulkOptions) error
	CreateRelationshipsBulk(ctx context.Context, rs []syncmodel.Relationship, opts BulkOptions) error

	OpenEdge(ctx context.Context, from, to, edgeType string, at time.Time, changeID string) error
	CloseEdge(ctx context.Context, from, to, edgeType string, at time.Time, changeID string) error
	UpsertEdgeEvidenceBulk(ctx context.Context, rs []syncmodel.Relationship) error
	AppendVersion(ctx context.Context, e syncmodel.Entity, opts AppendVersionOptions) error

	FindSymbolInFile(ctx context.Context, path, name string) ([]syncmodel.Candidate, error)
	FindNearbySymbols(ctx context.Context, path, name string, k int) ([]syncmodel.Candidate, error)
	FindSymbolByKindAndName(ctx context.Context, kind, name string) ([]syncmodel.Candidate, error)
	FindSymbolsByName(ctx context.Context, name string) ([]syncmodel.Candidate, error)

	FinalizeScan(ctx context.Context, scanStart time.Time) error
	AnnotateSessionRelationshipsWithCheckpoint(ctx context.Context, sessionID string, seeds []string, annotation CheckpointAnnotation) error

	// MaterializeCheckpoint snapshots the bounded-hop neighborhood of seeds
	// into a checkpoint entity, returning its id. Consumed by the
	// Checkpoint Job Runner (spec §4.5).
	MaterializeCheckpoint(ctx context.Context, seeds []string, hopCount int) (checkpointID string, err error)
}

// EmbeddingStore is an optional capability; its absence is not an error on
// GraphStore itself, but triggers a `capability` SyncError wherever the
// engine attempts to use it (spec §4.1.1, §7).
type EmbeddingStore interface {
	CreateEmbeddingsBatch(ctx context.Context, es []syncmodel.Entity) error
}
