package syncmodel

import "time"

// ConflictType classifies what kind of disagreement was detected (spec §3).
type ConflictType string

const (
	ConflictEntityVersion        ConflictType = "entity_version"
	ConflictEntityDeletion       ConflictType = "entity_deletion"
	ConflictRelationshipConflict ConflictType = "relationship_conflict"
	ConflictConcurrentModified   ConflictType = "concurrent_modification"
)

// ConflictValues holds the two sides of a disagreement.
type ConflictValues struct {
	Current  any
	Incoming any
}

// Conflict is one detected disagreement between incoming and current graph
// state (spec §3). Signature is deterministic over a canonicalized diff so
// re-detection of the same disagreement upserts rather than duplicating.
type Conflict struct {
	ID                 string
	Type               ConflictType
	EntityID           string
	RelationshipID     string
	ConflictingValues  ConflictValues
	Diff               map[string][2]any // field -> {current, incoming}
	Signature          string
	Timestamp          time.Time
	Resolved           bool
	Resolution         *ConflictOutcome
	ResolutionStrategy ConflictResolution
}

// ConflictOutcome is attached once a Conflict is resolved, per spec §4.3.
type ConflictOutcome struct {
	Strategy         ConflictResolution
	ResolvedValue    any
	ManualResolution string
	Timestamp        time.Time
	ResolvedBy       string
}

// VolatileFields lists the fields the diff/signature algorithm ignores when
// canonicalizing an entity or relationship for comparison (SPEC_FULL
// "Conflict diff normalization" supplement). These fields change on every
// write regardless of semantic content, so including them would make
// signatures non-deterministic across re-detections of the same conflict.
var VolatileFields = map[string]bool{
	"lastModified": true,
	"version":      true,
	"updatedAt":    true,
	"cachedAt":     true,
}
