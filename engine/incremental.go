package engine

import (
	"context"
	"strings"
	"time"

	"github.com/syncgraph/synccore/internal/obslog"
	"github.com/syncgraph/synccore/resolver"
	"github.com/syncgraph/synccore/session"
	"github.com/syncgraph/synccore/syncio"
	"github.com/syncgraph/synccore/syncmodel"
)

const criticalChangeSnippetCap = 400

// StartIncremental implements startIncremental(changes, options) -> opId
// (spec §4.1.2).
func (e *Engine) StartIncremental(ctx context.Context, changes []syncmodel.FileChange, opts syncmodel.Options) string {
	opts = syncmodel.DefaultOptions(opts)
	op := &syncmodel.SyncOperation{
		ID:      e.nextID("op"),
		Type:    syncmodel.OperationIncremental,
		Status:  syncmodel.StatusPending,
		Payload: syncmodel.IncrementalPayload{Options: opts, Changes: changes},
	}
	e.register(op)
	if !e.createInitialRollbackPoint(ctx, op, opts) {
		return op.ID
	}
	e.armPendingTimeout(op, opts)
	e.enqueueRun(op.ID, func() { e.runIncremental(op, syncmodel.IncrementalPayload{Options: opts, Changes: changes}) })
	return op.ID
}

func (e *Engine) runIncremental(op *syncmodel.SyncOperation, payload syncmodel.IncrementalPayload) {
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

	if e.checkInitialAbort(ctx, op, opts, sig) {
		return
	}

	stream := session.New(op.ID, e.store, e.hub, e.seqTrk)
	stream.Start(len(payload.Changes), opts.BatchSize, opts.MaxConcurrency, opts.Timeout)
	seeds := map[string]bool{}
	var toEmbed []syncmodel.Entity

	finalStatus := "completed"
	defer func() {
		stream.Flush(ctx)
		stream.Teardown(finalStatus, op.Snapshot().Counters)
	}()

	for _, change := range payload.Changes {
		if err := sig.ThrowIfAborted(); err != nil {
			op.AppendError(syncmodel.NewError(change.Path, syncmodel.ErrorKindCancelled, err.Error(), true))
			finalStatus = "cancelled"
			e.finalize(ctx, op, opts, true)
			return
		}
		e.applyChange(ctx, op, opts, stream, change, seeds, &toEmbed, log)
		_ = stream.Flush(ctx)
	}

	e.postResolution(ctx, op, nil, resolver.NewIndex())

	if len(seeds) > 0 {
		seedIDs := make([]string, 0, len(seeds))
		for id := range seeds {
			seedIDs = append(seedIDs, id)
		}
		jobID, err := e.ckpt.Enqueue(ctx, syncmodel.CheckpointJobRequest{
			SessionID:     stream.SessionID(),
			SeedEntityIDs: seedIDs,
			Reason:        syncmodel.CheckpointManual,
			HopCount:      2,
			OperationID:   op.ID,
		})
		if err != nil {
			_ = e.store.AnnotateSessionRelationshipsWithCheckpoint(ctx, stream.SessionID(), seedIDs, syncio.CheckpointAnnotation{
				Status: "manual_intervention",
				Error:  err.Error(),
			})
			if e.hub != nil {
				e.hub.SessionCheckpoint.Emit(syncmodel.SessionCheckpointEvent{
					SessionID: stream.SessionID(),
					Status:    "manual_intervention",
					Error:     err.Error(),
				})
			}
		} else {
			_ = jobID
		}
	}

	if len(toEmbed) > 0 {
		if emb, ok := e.store.(syncio.EmbeddingStore); ok {
			if err := emb.CreateEmbeddingsBatch(ctx, toEmbed); err != nil {
				op.AppendError(syncmodel.NewError("", syncmodel.ErrorKindCapability, err.Error(), true))
			}
		}
	}

	_ = e.store.FinalizeScan(ctx, time.Now())
	e.emitProgress(op.ID, syncmodel.PhaseCompleted, 1)

	if op.HasNonRecoverableError() {
		finalStatus = "failed"
	}
	e.finalize(ctx, op, opts, false)
}

func (e *Engine) applyChange(ctx context.Context, op *syncmodel.SyncOperation, opts syncmodel.Options, stream *session.Stream, change syncmodel.FileChange, seeds map[string]bool, toEmbed *[]syncmodel.Entity, log *obslog.Logger) {
	switch change.Type {
	case syncmodel.ChangeDelete:
		entities, err := e.store.GetEntitiesByFile(ctx, change.Path, syncio.EntityQueryOptions{IncludeSymbols: true})
		if err != nil {
			op.AppendError(syncmodel.NewError(change.Path, syncmodel.ErrorKindDatabase, err.Error(), false))
			return
		}
		for _, ent := range entities {
			if err := e.store.DeleteEntity(ctx, ent.ID); err != nil {
				op.AppendError(syncmodel.NewError(change.Path, syncmodel.ErrorKindDatabase, err.Error(), false))
				continue
			}
			op.Mutate(func(o *syncmodel.SyncOperation) { o.Counters.EntitiesDeleted++ })
		}
		return

	case syncmodel.ChangeCreate, syncmodel.ChangeModify:
		parsed, err := e.parser.ParseFileIncremental(ctx, change.Path)
		if err != nil {
			op.AppendError(syncmodel.NewError(change.Path, syncmodel.ErrorKindParse, err.Error(), false))
			return
		}

		conflicts, _ := e.detector.DetectEntities(ctx, parsed.Entities)
		e.handleConflicts(op, opts, conflicts, log)

		updatedIDs := make(map[string]bool, len(parsed.UpdatedEntities))
		for _, u := range parsed.UpdatedEntities {
			updatedIDs[u.ID] = true
		}

		now := time.Now()
		for _, ent := range parsed.Entities {
			seeds[ent.ID] = true
			*toEmbed = append(*toEmbed, ent)
			if updatedIDs[ent.ID] {
				if err := e.store.AppendVersion(ctx, ent, syncio.AppendVersionOptions{Timestamp: now, ChangeSetID: change.ID}); err == nil {
					op.Mutate(func(o *syncmodel.SyncOperation) { o.Counters.EntitiesUpdated++ })
				}
				e.attachModifiedEdges(ctx, op, stream, ent, change, now)
			}
		}

		for _, added := range parsed.AddedEntities {
			seeds[added.ID] = true
			if err := e.store.CreateEntity(ctx, added, syncio.CreateOptions{SkipEmbedding: true}); err == nil {
				op.Mutate(func(o *syncmodel.SyncOperation) { o.Counters.EntitiesCreated++ })
			}
			stream.BufferEdge(syncmodel.Relationship{
				Type: "CREATED_IN", FromEntityID: added.ID, ToEntityID: change.ID,
				ChangeInfo: &syncmodel.ChangeInfo{ChangeID: change.ID},
			})
			stream.BufferEdge(syncmodel.Relationship{
				Type: "SESSION_IMPACTED", FromEntityID: added.ID, ToEntityID: stream.SessionID(),
				ChangeInfo: &syncmodel.ChangeInfo{ChangeID: change.ID, Severity: "low"},
			})
		}

		for _, removed := range parsed.RemovedEntities {
			seeds[removed.ID] = true
			stream.BufferEdge(syncmodel.Relationship{
				Type: "REMOVED_IN", FromEntityID: removed.ID, ToEntityID: change.ID,
				ChangeInfo: &syncmodel.ChangeInfo{ChangeID: change.ID},
			})
			stream.BufferEdge(syncmodel.Relationship{
				Type: "SESSION_IMPACTED", FromEntityID: removed.ID, ToEntityID: stream.SessionID(),
				ChangeInfo: &syncmodel.ChangeInfo{ChangeID: change.ID, Severity: "high"},
			})
			if err := e.store.DeleteEntity(ctx, removed.ID); err == nil {
				op.Mutate(func(o *syncmodel.SyncOperation) { o.Counters.EntitiesDeleted++ })
			}
		}

		idx := resolver.NewIndex()
		for _, rel := range parsed.Relationships {
			if target, err := e.resolver.Resolve(ctx, &rel, change.Path, idx); err == nil && target != nil {
				rel.ToEntityID = target.ID
			}
			if err := e.store.CreateRelationship(ctx, rel, syncio.BulkOptions{Validate: false}); err == nil {
				op.Mutate(func(o *syncmodel.SyncOperation) { o.Counters.RelationshipsCreated++ })
			}
		}
		for _, add := range parsed.AddedRelationships {
			if target, err := e.resolver.Resolve(ctx, &add, change.Path, idx); err == nil && target != nil {
				add.ToEntityID = target.ID
			}
			_ = e.store.OpenEdge(ctx, add.FromEntityID, add.ToEntityID, add.Type, now, change.ID)
			_ = e.store.UpsertEdgeEvidenceBulk(ctx, []syncmodel.Relationship{add})
		}
		for _, rem := range parsed.RemovedRelationships {
			_ = e.store.CloseEdge(ctx, rem.FromEntityID, rem.ToEntityID, rem.Type, now, change.ID)
		}
	}
}

// attachModifiedEdges implements the MODIFIED_IN/MODIFIED_BY/
// SESSION_MODIFIED edge construction of spec §4.1.2.
func (e *Engine) attachModifiedEdges(ctx context.Context, op *syncmodel.SyncOperation, stream *session.Stream, ent syncmodel.Entity, change syncmodel.FileChange, now time.Time) {
	stream.BufferEdge(syncmodel.Relationship{
		Type: "MODIFIED_IN", FromEntityID: ent.ID, ToEntityID: change.ID,
		ChangeInfo: &syncmodel.ChangeInfo{ChangeID: change.ID},
	})

	actor := "unknown"
	if e.git != nil {
		if info, err := e.git.GetLastCommitInfo(ctx, change.Path); err == nil {
			actor = info.Author
		}
	}
	stream.BufferEdge(syncmodel.Relationship{
		Type: "MODIFIED_BY", FromEntityID: ent.ID, ToEntityID: stream.SessionID(),
		Actor: actor,
	})

	transition := &syncmodel.StateTransition{From: "unknown", To: "working", VerifiedBy: "manual", Confidence: 0.5}
	if e.git != nil {
		if diff, err := e.git.GetUnifiedDiff(ctx, change.Path, 3); err == nil && diff != "" {
			before, after := firstHunkSnippets(diff)
			if before != "" || after != "" {
				transition.CriticalChange = &syncmodel.CriticalChange{Before: before, After: after}
			}
		}
	}
	stream.BufferEdge(syncmodel.Relationship{
		Type: "SESSION_MODIFIED", FromEntityID: ent.ID, ToEntityID: stream.SessionID(),
		ChangeInfo:      &syncmodel.ChangeInfo{ChangeID: change.ID, Severity: "medium"},
		StateTransition: transition,
	})
	stream.BufferEdge(syncmodel.Relationship{
		Type: "SESSION_IMPACTED", FromEntityID: ent.ID, ToEntityID: stream.SessionID(),
		ChangeInfo: &syncmodel.ChangeInfo{ChangeID: change.ID, Severity: "medium"},
	})
}

// firstHunkSnippets extracts length-capped before/after text from the
// first unified-diff hunk (spec §4.1.2), a best-effort line-prefix split.
func firstHunkSnippets(diff string) (before, after string) {
	lines := strings.Split(diff, "\n")
	var b, a []string
	inHunk := false
	for _, line := range lines {
		if strings.HasPrefix(line, "@@") {
			if inHunk {
				break
			}
			inHunk = true
			continue
		}
		if !inHunk {
			continue
		}
		switch {
		case strings.HasPrefix(line, "-"):
			b = append(b, line[1:])
		case strings.HasPrefix(line, "+"):
			a = append(a, line[1:])
		}
	}
	before = cap400(strings.Join(b, "\n"))
	after = cap400(strings.Join(a, "\n"))
	return before, after
}

func cap400(s string) string {
	if len(s) > criticalChangeSnippetCap {
		return s[:criticalChangeSnippetCap]
	}
	return s
}
