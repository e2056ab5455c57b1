package engine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/syncgraph/synccore/internal/obslog"
	"github.com/syncgraph/synccore/resolver"
	"github.com/syncgraph/synccore/syncio"
	"github.com/syncgraph/synccore/syncmodel"
)

// batchResult accumulates one worker-pool batch's output (spec §4.1.1
// step 4): batchEntities/batchRelationships are owned exclusively by the
// flow executing it, never exposed on SyncOperation (spec §9).
type batchResult struct {
	mu            sync.Mutex
	entities      []syncmodel.Entity
	relationships []syncmodel.Relationship
	conflicts     []syncmodel.Conflict
	embedQueue    []syncmodel.Entity
	errs          []syncmodel.SyncError
}

func (b *batchResult) addEntities(es []syncmodel.Entity) {
	b.mu.Lock()
	b.entities = append(b.entities, es...)
	b.mu.Unlock()
}

func (b *batchResult) addRelationships(rs []syncmodel.Relationship) {
	b.mu.Lock()
	b.relationships = append(b.relationships, rs...)
	b.mu.Unlock()
}

func (b *batchResult) addConflicts(cs []syncmodel.Conflict) {
	if len(cs) == 0 {
		return
	}
	b.mu.Lock()
	b.conflicts = append(b.conflicts, cs...)
	b.mu.Unlock()
}

func (b *batchResult) addErr(err syncmodel.SyncError) {
	b.mu.Lock()
	b.errs = append(b.errs, err)
	b.mu.Unlock()
}

// StartFull implements startFull(options) -> opId (spec §4.1.1).
func (e *Engine) StartFull(ctx context.Context, opts syncmodel.Options) string {
	opts = syncmodel.DefaultOptions(opts)
	op := &syncmodel.SyncOperation{
		ID:      e.nextID("op"),
		Type:    syncmodel.OperationFull,
		Status:  syncmodel.StatusPending,
		Payload: syncmodel.FullPayload{Options: opts},
	}
	e.register(op)
	if !e.createInitialRollbackPoint(ctx, op, opts) {
		return op.ID
	}
	e.armPendingTimeout(op, opts)
	e.enqueueRun(op.ID, func() { e.runFull(op, syncmodel.FullPayload{Options: opts}) })
	return op.ID
}

func (e *Engine) runFull(op *syncmodel.SyncOperation, payload syncmodel.FullPayload) {
	ctx := context.Background()
	opts := payload.Options
	op.Mutate(func(o *syncmodel.SyncOperation) {
		o.Status = syncmodel.StatusRunning
		o.StartTime = time.Now()
	})
	e.disarmPendingTimeout(op.ID)
	e.emitLifecycle(op, "started")
	sig := e.signalFor(op.ID)
	log := obslog.With(e.log, "operationId", op.ID)

	if e.modIdx != nil {
		_ = e.modIdx.IndexModule(ctx, ".")
	}

	if e.checkInitialAbort(ctx, op, opts, sig) {
		return
	}

	files, err := e.parser.ListFiles(ctx)
	if err != nil {
		op.AppendError(syncmodel.NewError("", syncmodel.ErrorKindParse, err.Error(), false))
		e.finalize(ctx, op, opts, false)
		return
	}

	localIndex := resolver.NewIndex()
	scanStart := time.Now()
	batchSize := syncmodel.EffectiveBatchSize(e.tuningFor(op.ID), opts.BatchSize, 60)
	if batchSize > 1000 {
		batchSize = 1000
	}

	var unresolved []syncmodel.Relationship
	var embedQueue []syncmodel.Entity

	for i := 0; i < len(files); i += batchSize {
		if err := sig.ThrowIfAborted(); err != nil {
			op.AppendError(syncmodel.NewError("", syncmodel.ErrorKindCancelled, err.Error(), true))
			e.finalize(ctx, op, opts, true)
			return
		}

		batch := files[i:min(i+batchSize, len(files))]
		maxConc := syncmodel.EffectiveMaxConcurrency(e.tuningFor(op.ID), opts.MaxConcurrency, 12, len(batch))

		result := e.parseBatch(ctx, batch, maxConc, localIndex, log)

		op.Mutate(func(o *syncmodel.SyncOperation) {
			for _, err := range result.errs {
				o.Errors = append(o.Errors, err)
			}
		})
		e.handleConflicts(op, opts, result.conflicts, log)

		if len(result.entities) > 0 {
			if err := e.store.CreateEntitiesBulk(ctx, result.entities, syncio.BulkOptions{SkipEmbedding: true}); err != nil {
				for _, ent := range result.entities {
					if ferr := e.store.CreateEntity(ctx, ent, syncio.CreateOptions{SkipEmbedding: true}); ferr != nil {
						op.AppendError(syncmodel.NewError(ent.Path, syncmodel.ErrorKindDatabase, ferr.Error(), true))
					} else {
						op.Mutate(func(o *syncmodel.SyncOperation) { o.Counters.EntitiesCreated++ })
					}
				}
			} else {
				op.Mutate(func(o *syncmodel.SyncOperation) { o.Counters.EntitiesCreated += len(result.entities) })
			}
		}

		resolved, batchUnresolved := e.resolveBatch(ctx, result.relationships, localIndex)
		unresolved = append(unresolved, batchUnresolved...)
		if len(resolved) > 0 {
			if err := e.store.CreateRelationshipsBulk(ctx, resolved, syncio.BulkOptions{Validate: false}); err != nil {
				for _, r := range resolved {
					if ferr := e.store.CreateRelationship(ctx, r, syncio.BulkOptions{Validate: false}); ferr != nil {
						op.AppendError(syncmodel.NewError("", syncmodel.ErrorKindDatabase, ferr.Error(), true))
					} else {
						op.Mutate(func(o *syncmodel.SyncOperation) { o.Counters.RelationshipsCreated++ })
					}
				}
			} else {
				op.Mutate(func(o *syncmodel.SyncOperation) { o.Counters.RelationshipsCreated += len(resolved) })
			}
		}

		if opts.IncludeEmbeddings {
			if emb, ok := e.store.(syncio.EmbeddingStore); ok {
				if err := emb.CreateEmbeddingsBatch(ctx, result.entities); err != nil {
					op.AppendError(syncmodel.NewError("", syncmodel.ErrorKindCapability, err.Error(), true))
				}
			} else {
				op.AppendError(syncmodel.NewError("", syncmodel.ErrorKindCapability, "embedding store capability not available", true))
			}
		} else {
			embedQueue = append(embedQueue, result.entities...)
		}

		op.Mutate(func(o *syncmodel.SyncOperation) { o.Counters.FilesProcessed += len(batch) })
		e.emitProgress(op.ID, syncmodel.PhaseParsing, 0.2+(float64(i+len(batch))/float64(len(files)))*0.8)
	}

	e.postResolution(ctx, op, unresolved, localIndex)
	_ = e.store.FinalizeScan(ctx, scanStart)

	if len(embedQueue) > 0 {
		go e.backgroundEmbed(embedQueue, log)
	}

	e.emitProgress(op.ID, syncmodel.PhaseCompleted, 1)
	e.finalize(ctx, op, opts, false)
}

// parseBatch runs the worker pool of spec §4.1.1 step 4: size
// maxConcurrency over files, each worker parsing, indexing symbols, and
// detecting conflicts. Parallelism is exclusively parsing/resolution
// lookups (spec §5); all writes happen after the pool joins.
func (e *Engine) parseBatch(ctx context.Context, files []string, maxConcurrency int, localIndex *resolver.Index, log *obslog.Logger) *batchResult {
	result := &batchResult{}
	sem := semaphore.NewWeighted(int64(maxConcurrency))
	g, gctx := errgroup.WithContext(ctx)

	for _, file := range files {
		file := file
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			parsed, err := e.parser.ParseFile(gctx, file)
			if err != nil {
				result.addErr(syncmodel.NewError(file, syncmodel.ErrorKindParse, err.Error(), true))
				return nil
			}
			for _, ent := range parsed.Entities {
				if ent.Type == "symbol" {
					localIndex.Put(ent.Path, ent.Name, ent.ID)
				}
			}
			conflicts, err := e.detector.DetectEntities(gctx, parsed.Entities)
			if err != nil {
				result.addErr(syncmodel.NewError(file, syncmodel.ErrorKindConflict, err.Error(), true))
			}
			result.addConflicts(conflicts)

			for i := range parsed.Relationships {
				parsed.Relationships[i].SourceFile = file
			}
			result.addEntities(parsed.Entities)
			result.addRelationships(parsed.Relationships)
			return nil
		})
	}
	_ = g.Wait()
	return result
}

// resolveBatch implements step 6: fast-path existing entities, else
// resolve via C1 consulting localIndex first (spec §4.2 step 2), splitting
// into resolved/unresolved sets.
func (e *Engine) resolveBatch(ctx context.Context, rels []syncmodel.Relationship, localIndex *resolver.Index) (resolved, unresolved []syncmodel.Relationship) {
	for _, r := range rels {
		if r.ToEntityID != "" {
			if _, ok, _ := e.store.GetEntity(ctx, r.ToEntityID); ok {
				resolved = append(resolved, r)
				continue
			}
		}
		target, err := e.resolver.Resolve(ctx, &r, r.SourceFile, localIndex)
		if err != nil || target == nil {
			unresolved = append(unresolved, r)
			continue
		}
		r.ToEntityID = target.ID
		resolved = append(resolved, r)
	}
	return resolved, unresolved
}

// postResolution implements §4.1.4: drain unresolvedRelationships, retry
// resolve+create against the same localIndex built during parsing,
// accumulate successes.
func (e *Engine) postResolution(ctx context.Context, op *syncmodel.SyncOperation, unresolved []syncmodel.Relationship, localIndex *resolver.Index) {
	if len(unresolved) == 0 {
		return
	}
	var retried []syncmodel.Relationship
	for _, r := range unresolved {
		target, err := e.resolver.Resolve(ctx, &r, r.SourceFile, localIndex)
		if err != nil || target == nil {
			continue
		}
		r.ToEntityID = target.ID
		retried = append(retried, r)
	}
	if len(retried) > 0 {
		if err := e.store.CreateRelationshipsBulk(ctx, retried, syncio.BulkOptions{Validate: false}); err == nil {
			op.Mutate(func(o *syncmodel.SyncOperation) { o.Counters.RelationshipsCreated += len(retried) })
		}
	}
	e.emitProgress(op.ID, syncmodel.PhaseResolving, 0.95)
}

// backgroundEmbed fires the deferred embedding pass of step 11, chunked
// 200-wide. Failures are logged but never affect operation status.
func (e *Engine) backgroundEmbed(queue []syncmodel.Entity, log *obslog.Logger) {
	ctx := context.Background()
	emb, ok := e.store.(syncio.EmbeddingStore)
	if !ok {
		return
	}
	for i := 0; i < len(queue); i += 200 {
		chunk := queue[i:min(i+200, len(queue))]
		if err := emb.CreateEmbeddingsBatch(ctx, chunk); err != nil {
			log.Info().Log("background embedding chunk failed")
		}
	}
}
