// Package rollback implements the Rollback Engine (C5): capturing a
// logical snapshot before a write-heavy operation and reverting to it on
// failure, per spec §4.6.
package rollback

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/syncgraph/synccore/syncio"
	"github.com/syncgraph/synccore/syncmodel"
)

// snapshot is the captured pre-state for one rollback point: every entity
// touched by the operation, keyed by id, as it existed at capture time
// (a nil entry means "did not exist yet" and is reverted by deletion; ids
// not in the map are not touched).
type snapshot struct {
	point    syncmodel.RollbackPoint
	entities map[string]*syncmodel.Entity // nil value = entity did not exist
}

// Engine is the Rollback Engine. The zero value is not usable; construct
// with New.
type Engine struct {
	store syncio.GraphStore

	mu     sync.Mutex
	points map[string]*snapshot
}

// New returns an Engine backed by store.
func New(store syncio.GraphStore) *Engine {
	return &Engine{store: store, points: make(map[string]*snapshot)}
}

// CreateRollbackPoint implements createRollbackPoint(opId, label) ->
// rollbackId (spec §4.6). seedEntityIDs are the ids the caller knows will
// be touched; the engine captures their current state (or absence) before
// any write occurs.
func (e *Engine) CreateRollbackPoint(ctx context.Context, opID, label string, seedEntityIDs []string) (string, error) {
	entities := make(map[string]*syncmodel.Entity, len(seedEntityIDs))
	for _, id := range seedEntityIDs {
		ent, ok, err := e.store.GetEntity(ctx, id)
		if err != nil {
			return "", syncmodel.NewError("", syncmodel.ErrorKindRollback, fmt.Sprintf("rollback: capture %s: %v", id, err), false)
		}
		if ok {
			cp := ent
			entities[id] = &cp
		} else {
			entities[id] = nil
		}
	}

	id := "rb_" + uuid.NewString()
	e.mu.Lock()
	e.points[id] = &snapshot{
		point:    syncmodel.RollbackPoint{ID: id, OperationID: opID, Label: label},
		entities: entities,
	}
	e.mu.Unlock()
	return id, nil
}

// Track records that entityID was observed (and its pre-write state
// captured) mid-operation, for rollback points created before the full set
// of touched ids was known.
func (e *Engine) Track(ctx context.Context, rollbackID, entityID string) error {
	e.mu.Lock()
	snap, ok := e.points[rollbackID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("rollback: unknown point %s", rollbackID)
	}
	e.mu.Lock()
	_, already := snap.entities[entityID]
	e.mu.Unlock()
	if already {
		return nil
	}
	ent, found, err := e.store.GetEntity(ctx, entityID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	if found {
		cp := ent
		snap.entities[entityID] = &cp
	} else {
		snap.entities[entityID] = nil
	}
	e.mu.Unlock()
	return nil
}

// RollbackToPoint implements rollbackToPoint(rollbackId) -> {success,
// errors} (spec §4.6). Every captured entity is restored or deleted;
// per-entity failures are collected rather than aborting the whole
// replay, each preserving its Recoverable flag.
func (e *Engine) RollbackToPoint(ctx context.Context, rollbackID string) syncmodel.RollbackResult {
	e.mu.Lock()
	snap, ok := e.points[rollbackID]
	e.mu.Unlock()
	if !ok {
		return syncmodel.RollbackResult{
			Success: false,
			Errors:  []syncmodel.RollbackError{{Action: "lookup", ID: rollbackID, Error: "unknown rollback point", Recoverable: false}},
		}
	}

	var errs []syncmodel.RollbackError
	for id, prior := range snap.entities {
		if prior == nil {
			if err := e.store.DeleteEntity(ctx, id); err != nil {
				errs = append(errs, syncmodel.RollbackError{Action: "delete", ID: id, Error: err.Error(), Recoverable: true})
			}
			continue
		}
		patch := map[string]any{
			"name": prior.Name,
			"path": prior.Path,
			"kind": prior.Kind,
			"type": prior.Type,
		}
		for k, v := range prior.Extra {
			patch[k] = v
		}
		if err := e.store.UpdateEntity(ctx, id, patch, syncio.CreateOptions{SkipEmbedding: true}); err != nil {
			errs = append(errs, syncmodel.RollbackError{Action: "restore", ID: id, Error: err.Error(), Recoverable: true})
		}
	}

	return syncmodel.RollbackResult{Success: len(errs) == 0, Errors: errs}
}

// DeleteRollbackPoint implements deleteRollbackPoint(rollbackId): best
// effort cleanup of captured state (spec §4.6).
func (e *Engine) DeleteRollbackPoint(rollbackID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.points, rollbackID)
}
