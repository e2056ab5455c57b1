package engine

import (
	"context"
	"time"

	"github.com/syncgraph/synccore/syncio"
	"github.com/syncgraph/synccore/syncmodel"
)

// StartPartial implements startPartial(updates, options) -> opId
// (spec §4.1.3).
func (e *Engine) StartPartial(ctx context.Context, updates []syncmodel.PartialUpdate, opts syncmodel.Options) string {
	opts = syncmodel.DefaultOptions(opts)
	op := &syncmodel.SyncOperation{
		ID:      e.nextID("op"),
		Type:    syncmodel.OperationPartial,
		Status:  syncmodel.StatusPending,
		Payload: syncmodel.PartialPayload{Options: opts, Updates: updates},
	}
	e.register(op)
	if !e.createInitialRollbackPoint(ctx, op, opts) {
		return op.ID
	}
	e.armPendingTimeout(op, opts)
	e.enqueueRun(op.ID, func() { e.runPartial(op, syncmodel.PartialPayload{Options: opts, Updates: updates}) })
	return op.ID
}

func (e *Engine) runPartial(op *syncmodel.SyncOperation, payload syncmodel.PartialPayload) {
	ctx := context.Background()
	opts := payload.Options
	op.Mutate(func(o *syncmodel.SyncOperation) {
		o.Status = syncmodel.StatusRunning
		o.StartTime = time.Now()
	})
	e.disarmPendingTimeout(op.ID)
	e.emitLifecycle(op, "started")
	sig := e.signalFor(op.ID)

	if e.checkInitialAbort(ctx, op, opts, sig) {
		return
	}

	total := len(payload.Updates)
	for i, u := range payload.Updates {
		if err := sig.ThrowIfAborted(); err != nil {
			op.AppendError(syncmodel.NewError(u.EntityID, syncmodel.ErrorKindCancelled, err.Error(), true))
			e.finalize(ctx, op, opts, true)
			return
		}

		switch u.Type {
		case syncmodel.PartialOpCreate:
			ent := syncmodel.Entity{ID: u.EntityID, Extra: u.Changes}
			if nv, ok := u.NewValue.(syncmodel.Entity); ok {
				ent = nv
			}
			if err := e.store.CreateEntity(ctx, ent, syncio.CreateOptions{}); err != nil {
				op.AppendError(syncmodel.NewError(u.EntityID, syncmodel.ErrorKindDatabase, err.Error(), true))
			} else {
				op.Mutate(func(o *syncmodel.SyncOperation) { o.Counters.EntitiesCreated++ })
			}
		case syncmodel.PartialOpUpdate:
			if err := e.store.UpdateEntity(ctx, u.EntityID, u.Changes, syncio.CreateOptions{}); err != nil {
				op.AppendError(syncmodel.NewError(u.EntityID, syncmodel.ErrorKindDatabase, err.Error(), true))
			} else {
				op.Mutate(func(o *syncmodel.SyncOperation) { o.Counters.EntitiesUpdated++ })
			}
		case syncmodel.PartialOpDelete:
			if err := e.store.DeleteEntity(ctx, u.EntityID); err != nil {
				op.AppendError(syncmodel.NewError(u.EntityID, syncmodel.ErrorKindDatabase, err.Error(), true))
			} else {
				op.Mutate(func(o *syncmodel.SyncOperation) { o.Counters.EntitiesDeleted++ })
			}
		}

		e.emitProgress(op.ID, syncmodel.PhaseWriting, (float64(i+1)/float64(max(total, 1)))*0.9)
	}

	e.emitProgress(op.ID, syncmodel.PhaseCompleted, 1)
	e.finalize(ctx, op, opts, false)
}
