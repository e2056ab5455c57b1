// Package synciotest provides in-memory fakes for the syncio collaborator
// interfaces, shared across package test suites the way the teacher's
// grpc-proxy tests share small function-field fakes rather than a mocking
// framework (see grpc-proxy/proxy/handler_error_test.go's mockClientConn).
package synciotest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/syncgraph/synccore/syncio"
	"github.com/syncgraph/synccore/syncmodel"
)

// GraphStore is an in-memory syncio.GraphStore, safe for concurrent use.
// Error injection hooks let a test force a specific method to fail.
type GraphStore struct {
	mu            sync.Mutex
	entities      map[string]syncmodel.Entity
	relationships map[string]syncmodel.Relationship
	symbols       []syncmodel.Candidate // (path,name) lookups scan this

	OnCreateEntity            func(e syncmodel.Entity) error
	OnCreateEntitiesBulk      func(es []syncmodel.Entity) error
	OnUpdateEntity            func(id string, patch map[string]any) error
	OnDeleteEntity            func(id string) error
	OnCreateRelationship      func(r syncmodel.Relationship) error
	OnCreateRelationshipsBulk func(rs []syncmodel.Relationship) error
	OnMaterializeCheckpoint   func(seeds []string, hopCount int) (string, error)

	MaterializeCalls []MaterializeCall
}

// MaterializeCall records one MaterializeCheckpoint invocation.
type MaterializeCall struct {
	Seeds    []string
	HopCount int
}

// NewGraphStore returns an empty GraphStore.
func NewGraphStore() *GraphStore {
	return &GraphStore{
		entities:      make(map[string]syncmodel.Entity),
		relationships: make(map[string]syncmodel.Relationship),
	}
}

// SeedEntity inserts an entity directly, bypassing CreateEntity, for test
// setup of "current graph state".
func (g *GraphStore) SeedEntity(e syncmodel.Entity) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entities[e.ID] = e
}

// SeedRelationship inserts a relationship directly, keyed by ID.
func (g *GraphStore) SeedRelationship(r syncmodel.Relationship) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.relationships[r.ID] = r
}

// Relationships returns a snapshot of every stored relationship, for
// assertions.
func (g *GraphStore) Relationships() []syncmodel.Relationship {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]syncmodel.Relationship, 0, len(g.relationships))
	for _, r := range g.relationships {
		out = append(out, r)
	}
	return out
}

// RelationshipByType returns the first stored relationship of the given
// type, for assertions that don't care about ordering.
func (g *GraphStore) RelationshipByType(typ string) (syncmodel.Relationship, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, r := range g.relationships {
		if r.Type == typ {
			return r, true
		}
	}
	return syncmodel.Relationship{}, false
}

// SeedSymbol registers a symbol candidate for the Find* lookups.
func (g *GraphStore) SeedSymbol(c syncmodel.Candidate) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.symbols = append(g.symbols, c)
}

func (g *GraphStore) CreateEntity(ctx context.Context, e syncmodel.Entity, opts syncio.CreateOptions) error {
	if g.OnCreateEntity != nil {
		if err := g.OnCreateEntity(e); err != nil {
			return err
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entities[e.ID] = e
	return nil
}

func (g *GraphStore) CreateEntitiesBulk(ctx context.Context, es []syncmodel.Entity, opts syncio.BulkOptions) error {
	if g.OnCreateEntitiesBulk != nil {
		if err := g.OnCreateEntitiesBulk(es); err != nil {
			return err
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range es {
		g.entities[e.ID] = e
	}
	return nil
}

func (g *GraphStore) UpdateEntity(ctx context.Context, id string, patch map[string]any, opts syncio.CreateOptions) error {
	if g.OnUpdateEntity != nil {
		if err := g.OnUpdateEntity(id, patch); err != nil {
			return err
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entities[id]
	if !ok {
		e = syncmodel.Entity{ID: id, Extra: map[string]any{}}
	}
	if e.Extra == nil {
		e.Extra = map[string]any{}
	}
	for k, v := range patch {
		switch k {
		case "name":
			e.Name = fmt.Sprint(v)
		case "path":
			e.Path = fmt.Sprint(v)
		case "kind":
			e.Kind = fmt.Sprint(v)
		case "type":
			e.Type = fmt.Sprint(v)
		default:
			e.Extra[k] = v
		}
	}
	g.entities[id] = e
	return nil
}

func (g *GraphStore) DeleteEntity(ctx context.Context, id string) error {
	if g.OnDeleteEntity != nil {
		if err := g.OnDeleteEntity(id); err != nil {
			return err
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entities, id)
	return nil
}

func (g *GraphStore) GetEntity(ctx context.Context, id string) (syncmodel.Entity, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entities[id]
	return e, ok, nil
}

func (g *GraphStore) GetEntitiesByFile(ctx context.Context, path string, opts syncio.EntityQueryOptions) ([]syncmodel.Entity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []syncmodel.Entity
	for _, e := range g.entities {
		if e.Path == path {
			out = append(out, e)
		}
	}
	return out, nil
}

func (g *GraphStore) CreateRelationship(ctx context.Context, r syncmodel.Relationship, opts syncio.BulkOptions) error {
	if g.OnCreateRelationship != nil {
		if err := g.OnCreateRelationship(r); err != nil {
			return err
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if r.ID == "" {
		r.ID = fmt.Sprintf("rel_%d", len(g.relationships))
	}
	g.relationships[r.ID] = r
	return nil
}

func (g *GraphStore) CreateRelationshipsBulk(ctx context.Context, rs []syncmodel.Relationship, opts syncio.BulkOptions) error {
	if g.OnCreateRelationshipsBulk != nil {
		if err := g.OnCreateRelationshipsBulk(rs); err != nil {
			return err
		}
	}
	for _, r := range rs {
		if err := g.CreateRelationship(ctx, r, opts); err != nil {
			return err
		}
	}
	return nil
}

func (g *GraphStore) OpenEdge(ctx context.Context, from, to, edgeType string, at time.Time, changeID string) error {
	return nil
}

func (g *GraphStore) CloseEdge(ctx context.Context, from, to, edgeType string, at time.Time, changeID string) error {
	return nil
}

func (g *GraphStore) UpsertEdgeEvidenceBulk(ctx context.Context, rs []syncmodel.Relationship) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, r := range rs {
		if r.ID == "" {
			r.ID = fmt.Sprintf("rel_%d", len(g.relationships))
		}
		g.relationships[r.ID] = r
	}
	return nil
}

func (g *GraphStore) AppendVersion(ctx context.Context, e syncmodel.Entity, opts syncio.AppendVersionOptions) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entities[e.ID] = e
	return nil
}

func (g *GraphStore) FindSymbolInFile(ctx context.Context, path, name string) ([]syncmodel.Candidate, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []syncmodel.Candidate
	for _, c := range g.symbols {
		if c.File == path && c.Name == name {
			out = append(out, c)
		}
	}
	return out, nil
}

func (g *GraphStore) FindNearbySymbols(ctx context.Context, path, name string, k int) ([]syncmodel.Candidate, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	dir := dirOf(path)
	var out []syncmodel.Candidate
	for _, c := range g.symbols {
		if c.Name == name && c.File != "" && dirOf(c.File) == dir {
			out = append(out, c)
			if len(out) >= k {
				break
			}
		}
	}
	return out, nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return ""
}

func (g *GraphStore) FindSymbolByKindAndName(ctx context.Context, kind, name string) ([]syncmodel.Candidate, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []syncmodel.Candidate
	for _, c := range g.symbols {
		if c.Kind == kind && c.Name == name {
			out = append(out, c)
		}
	}
	return out, nil
}

func (g *GraphStore) FindSymbolsByName(ctx context.Context, name string) ([]syncmodel.Candidate, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []syncmodel.Candidate
	for _, c := range g.symbols {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out, nil
}

func (g *GraphStore) FinalizeScan(ctx context.Context, scanStart time.Time) error { return nil }

func (g *GraphStore) AnnotateSessionRelationshipsWithCheckpoint(ctx context.Context, sessionID string, seeds []string, annotation syncio.CheckpointAnnotation) error {
	return nil
}

func (g *GraphStore) MaterializeCheckpoint(ctx context.Context, seeds []string, hopCount int) (string, error) {
	g.mu.Lock()
	g.MaterializeCalls = append(g.MaterializeCalls, MaterializeCall{Seeds: seeds, HopCount: hopCount})
	g.mu.Unlock()
	if g.OnMaterializeCheckpoint != nil {
		return g.OnMaterializeCheckpoint(seeds, hopCount)
	}
	return "checkpoint_" + seeds[0], nil
}

// Parser is a scripted syncio.Parser: each call returns whatever the test
// configured via the exported fields.
type Parser struct {
	Files              []string
	ListFilesErr       error
	ParseResults       map[string]syncio.ParseResult
	ParseErr           map[string]error
	IncrementalResults map[string]syncio.IncrementalParseResult
	IncrementalErr     map[string]error
}

func (p *Parser) ListFiles(ctx context.Context) ([]string, error) {
	if p.ListFilesErr != nil {
		return nil, p.ListFilesErr
	}
	return p.Files, nil
}

func (p *Parser) ParseFile(ctx context.Context, path string) (syncio.ParseResult, error) {
	if err, ok := p.ParseErr[path]; ok {
		return syncio.ParseResult{}, err
	}
	return p.ParseResults[path], nil
}

func (p *Parser) ParseFileIncremental(ctx context.Context, path string) (syncio.IncrementalParseResult, error) {
	if err, ok := p.IncrementalErr[path]; ok {
		return syncio.IncrementalParseResult{}, err
	}
	return p.IncrementalResults[path], nil
}

// GitProvider is a scripted syncio.GitProvider.
type GitProvider struct {
	CommitInfo syncio.CommitInfo
	CommitErr  error
	Diff       string
	DiffErr    error
}

func (g *GitProvider) GetLastCommitInfo(ctx context.Context, path string) (syncio.CommitInfo, error) {
	return g.CommitInfo, g.CommitErr
}

func (g *GitProvider) GetUnifiedDiff(ctx context.Context, path string, contextLines int) (string, error) {
	return g.Diff, g.DiffErr
}

// ModuleIndexer is a scripted syncio.ModuleIndexer.
type ModuleIndexer struct {
	Err   error
	Calls []string
}

func (m *ModuleIndexer) IndexModule(ctx context.Context, rootPackage string) error {
	m.Calls = append(m.Calls, rootPackage)
	return m.Err
}

// CheckpointStore is an in-memory syncio.CheckpointStore.
type CheckpointStore struct {
	mu      sync.Mutex
	records map[string]syncio.CheckpointRecord
	PutErr  error
}

func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{records: make(map[string]syncio.CheckpointRecord)}
}

func (c *CheckpointStore) Put(ctx context.Context, rec syncio.CheckpointRecord) error {
	if c.PutErr != nil {
		return c.PutErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[rec.JobID] = rec
	return nil
}

func (c *CheckpointStore) Get(ctx context.Context, jobID string) (syncio.CheckpointRecord, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[jobID]
	return rec, ok, nil
}

func (c *CheckpointStore) Delete(ctx context.Context, jobID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, jobID)
	return nil
}

func (c *CheckpointStore) ListQueued(ctx context.Context) ([]syncio.CheckpointRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []syncio.CheckpointRecord
	for _, rec := range c.records {
		if rec.State == syncmodel.CheckpointQueued {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Snapshot returns a copy of the current record map, for assertions.
func (c *CheckpointStore) Snapshot() map[string]syncio.CheckpointRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]syncio.CheckpointRecord, len(c.records))
	for k, v := range c.records {
		out[k] = v
	}
	return out
}

// EmbeddingGraphStore embeds GraphStore and additionally implements
// syncio.EmbeddingStore, for tests exercising the optional-capability path.
type EmbeddingGraphStore struct {
	*GraphStore
	Batches [][]syncmodel.Entity
	Err     error
}

func NewEmbeddingGraphStore() *EmbeddingGraphStore {
	return &EmbeddingGraphStore{GraphStore: NewGraphStore()}
}

func (e *EmbeddingGraphStore) CreateEmbeddingsBatch(ctx context.Context, es []syncmodel.Entity) error {
	e.Batches = append(e.Batches, es)
	return e.Err
}
