// Package syncio declares the external collaborators the synchronization
// core consumes (spec §6): the source parser, the graph/vector store, the
// optional checkpoint persistence store, and the optional git metadata
// provider and module indexer. These are interfaces only — their
// implementations (and the stores themselves) are out of scope (spec §1).
package syncio

import (
	"context"

	"github.com/syncgraph/synccore/syncmodel"
)

// ParseResult is the output of a full (non-incremental) parse.
type ParseResult struct {
	Entities      []syncmodel.Entity
	Relationships []syncmodel.Relationship
}

// IncrementalParseResult additionally reports which entities/relationships
// the parser determined changed relative to the previous parse of the same
// file (spec §6).
type IncrementalParseResult struct {
	ParseResult
	IsIncremental        bool
	UpdatedEntities      []syncmodel.Entity
	AddedEntities        []syncmodel.Entity
	RemovedEntities      []syncmodel.Entity
	AddedRelationships   []syncmodel.Relationship
	RemovedRelationships []syncmodel.Relationship
}

// Parser produces entities and relationships from a source file. The
// synchronization core treats it as a pure external collaborator.
type Parser interface {
	ParseFile(ctx context.Context, path string) (ParseResult, error)
	ParseFileIncremental(ctx context.Context, path string) (IncrementalParseResult, error)

	// ListFiles returns the file set a full sync should walk (spec §4.1.1
	// step 2).
	ListFiles(ctx context.Context) ([]string, error)
}
