package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncgraph/synccore/engine"
	"github.com/syncgraph/synccore/events"
	"github.com/syncgraph/synccore/internal/obslog"
	"github.com/syncgraph/synccore/internal/synciotest"
	"github.com/syncgraph/synccore/syncmodel"
)

func waitTerminalPartial(t *testing.T, e *engine.Engine, opID string) syncmodel.SyncOperation {
	t.Helper()
	var op syncmodel.SyncOperation
	require.Eventually(t, func() bool {
		var ok bool
		op, ok = e.GetStatus(opID)
		return ok && op.Status.IsTerminal()
	}, 2*time.Second, 10*time.Millisecond)
	return op
}

func TestStartPartial_DispatchesCreateUpdateDelete(t *testing.T) {
	store := synciotest.NewGraphStore()
	store.SeedEntity(syncmodel.Entity{ID: "e_update", Name: "Before"})
	store.SeedEntity(syncmodel.Entity{ID: "e_delete", Name: "ToDelete"})
	e := engine.New(&synciotest.Parser{}, store, nil, nil, events.New(), obslog.Noop())
	defer e.Close()

	opID := e.StartPartial(context.Background(), []syncmodel.PartialUpdate{
		{EntityID: "e_create", Type: syncmodel.PartialOpCreate, NewValue: syncmodel.Entity{ID: "e_create", Name: "Created"}},
		{EntityID: "e_update", Type: syncmodel.PartialOpUpdate, Changes: map[string]any{"name": "After"}},
		{EntityID: "e_delete", Type: syncmodel.PartialOpDelete},
	}, syncmodel.Options{})

	op := waitTerminalPartial(t, e, opID)
	assert.Equal(t, syncmodel.StatusCompleted, op.Status)
	assert.Equal(t, 1, op.Counters.EntitiesCreated)
	assert.Equal(t, 1, op.Counters.EntitiesUpdated)
	assert.Equal(t, 1, op.Counters.EntitiesDeleted)

	created, ok, err := store.GetEntity(context.Background(), "e_create")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Created", created.Name)

	updated, ok, err := store.GetEntity(context.Background(), "e_update")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "After", updated.Name)

	_, ok, err = store.GetEntity(context.Background(), "e_delete")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStartPartial_UpdateFailureIsRecordedAsRecoverable(t *testing.T) {
	store := synciotest.NewGraphStore()
	store.OnUpdateEntity = func(id string, patch map[string]any) error {
		return assert.AnError
	}
	e := engine.New(&synciotest.Parser{}, store, nil, nil, events.New(), obslog.Noop())
	defer e.Close()

	opID := e.StartPartial(context.Background(), []syncmodel.PartialUpdate{
		{EntityID: "e1", Type: syncmodel.PartialOpUpdate, Changes: map[string]any{"name": "x"}},
	}, syncmodel.Options{})

	op := waitTerminalPartial(t, e, opID)
	// the update error is recoverable, so the operation still completes
	// overall (only non-recoverable errors force a failed/retried status).
	assert.Equal(t, syncmodel.StatusCompleted, op.Status)
	require.Len(t, op.Errors, 1)
	assert.True(t, op.Errors[0].Recoverable)
	assert.Equal(t, 0, op.Counters.EntitiesUpdated)
}

func TestStartPartial_CooperativeCancelStopsBeforeRemainingUpdates(t *testing.T) {
	store := synciotest.NewGraphStore()
	e := engine.New(&synciotest.Parser{}, store, nil, nil, events.New(), obslog.Noop())
	defer e.Close()

	e.Pause()
	opID := e.StartPartial(context.Background(), []syncmodel.PartialUpdate{
		{EntityID: "e1", Type: syncmodel.PartialOpCreate, NewValue: syncmodel.Entity{ID: "e1", Name: "One"}},
		{EntityID: "e2", Type: syncmodel.PartialOpCreate, NewValue: syncmodel.Entity{ID: "e2", Name: "Two"}},
	}, syncmodel.Options{})
	require.True(t, e.Cancel(opID))
	e.Resume()

	op := waitTerminalPartial(t, e, opID)
	assert.Equal(t, syncmodel.StatusFailed, op.Status)
	require.Len(t, op.Errors, 1)
	assert.Equal(t, syncmodel.ErrorKindCancelled, op.Errors[0].Kind)

	_, ok, _ := store.GetEntity(context.Background(), "e1")
	assert.False(t, ok, "cancellation before the loop starts must not apply any update")
}

func TestStartPartial_ProgressReachesCompletedAtOne(t *testing.T) {
	store := synciotest.NewGraphStore()
	hub := events.New()
	e := engine.New(&synciotest.Parser{}, store, nil, nil, hub, obslog.Noop())
	defer e.Close()

	var mu sync.Mutex
	var last syncmodel.SyncProgressEvent
	hub.Progress.On(func(ev syncmodel.SyncProgressEvent) {
		mu.Lock()
		last = ev
		mu.Unlock()
	})

	opID := e.StartPartial(context.Background(), []syncmodel.PartialUpdate{
		{EntityID: "e1", Type: syncmodel.PartialOpCreate, NewValue: syncmodel.Entity{ID: "e1", Name: "One"}},
	}, syncmodel.Options{})
	waitTerminalPartial(t, e, opID)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return last.Phase == syncmodel.PhaseCompleted
	}, time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, float64(1), last.Progress)
	mu.Unlock()
}
