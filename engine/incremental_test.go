package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncgraph/synccore/engine"
	"github.com/syncgraph/synccore/events"
	"github.com/syncgraph/synccore/internal/obslog"
	"github.com/syncgraph/synccore/internal/synciotest"
	"github.com/syncgraph/synccore/syncio"
	"github.com/syncgraph/synccore/syncmodel"
)

func waitTerminalIncremental(t *testing.T, e *engine.Engine, opID string) syncmodel.SyncOperation {
	t.Helper()
	var op syncmodel.SyncOperation
	require.Eventually(t, func() bool {
		var ok bool
		op, ok = e.GetStatus(opID)
		return ok && op.Status.IsTerminal()
	}, 2*time.Second, 10*time.Millisecond)
	return op
}

func TestStartIncremental_DeleteChangeRemovesFileEntities(t *testing.T) {
	store := synciotest.NewGraphStore()
	store.SeedEntity(syncmodel.Entity{ID: "e1", Name: "A", Path: "a.go"})
	store.SeedEntity(syncmodel.Entity{ID: "e2", Name: "B", Path: "b.go"})
	parser := &synciotest.Parser{}
	e := engine.New(parser, store, nil, nil, events.New(), obslog.Noop())
	defer e.Close()

	opID := e.StartIncremental(context.Background(), []syncmodel.FileChange{
		{ID: "c1", Type: syncmodel.ChangeDelete, Path: "a.go"},
	}, syncmodel.Options{})

	op := waitTerminalIncremental(t, e, opID)
	assert.Equal(t, syncmodel.StatusCompleted, op.Status)
	assert.Equal(t, 1, op.Counters.EntitiesDeleted)

	_, ok, err := store.GetEntity(context.Background(), "e1")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = store.GetEntity(context.Background(), "e2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStartIncremental_ModifyChangeAppendsVersionAndEdges(t *testing.T) {
	store := synciotest.NewGraphStore()
	ent := syncmodel.Entity{ID: "e1", Name: "A", Path: "a.go"}
	store.SeedEntity(ent)
	gitProv := &synciotest.GitProvider{
		CommitInfo: syncio.CommitInfo{Author: "alice"},
		Diff:       "@@ -1,2 +1,2 @@\n-old line\n+new line\n",
	}
	parser := &synciotest.Parser{
		IncrementalResults: map[string]syncio.IncrementalParseResult{
			"a.go": {
				ParseResult:     syncio.ParseResult{Entities: []syncmodel.Entity{ent}},
				UpdatedEntities: []syncmodel.Entity{ent},
			},
		},
	}
	e := engine.New(parser, store, gitProv, nil, events.New(), obslog.Noop())
	defer e.Close()

	opID := e.StartIncremental(context.Background(), []syncmodel.FileChange{
		{ID: "c1", Type: syncmodel.ChangeModify, Path: "a.go"},
	}, syncmodel.Options{})

	op := waitTerminalIncremental(t, e, opID)
	assert.Equal(t, syncmodel.StatusCompleted, op.Status)
	assert.Equal(t, 1, op.Counters.EntitiesUpdated)

	rel, ok := store.RelationshipByType("MODIFIED_BY")
	require.True(t, ok)
	assert.Equal(t, "alice", rel.Actor)

	sessionModified, ok := store.RelationshipByType("SESSION_MODIFIED")
	require.True(t, ok)
	require.NotNil(t, sessionModified.StateTransition)
	require.NotNil(t, sessionModified.StateTransition.CriticalChange)
	assert.Equal(t, "old line", sessionModified.StateTransition.CriticalChange.Before)
	assert.Equal(t, "new line", sessionModified.StateTransition.CriticalChange.After)
}

func TestStartIncremental_CreateChangeBuffersCreatedAndImpactedEdges(t *testing.T) {
	store := synciotest.NewGraphStore()
	added := syncmodel.Entity{ID: "e_new", Name: "New", Path: "new.go"}
	parser := &synciotest.Parser{
		IncrementalResults: map[string]syncio.IncrementalParseResult{
			"new.go": {AddedEntities: []syncmodel.Entity{added}},
		},
	}
	e := engine.New(parser, store, nil, nil, events.New(), obslog.Noop())
	defer e.Close()

	opID := e.StartIncremental(context.Background(), []syncmodel.FileChange{
		{ID: "c1", Type: syncmodel.ChangeCreate, Path: "new.go"},
	}, syncmodel.Options{})

	op := waitTerminalIncremental(t, e, opID)
	assert.Equal(t, syncmodel.StatusCompleted, op.Status)
	assert.Equal(t, 1, op.Counters.EntitiesCreated)

	_, ok, err := store.GetEntity(context.Background(), "e_new")
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok = store.RelationshipByType("CREATED_IN")
	assert.True(t, ok)
}

func TestStartIncremental_EnqueuesCheckpointForTouchedSeeds(t *testing.T) {
	store := synciotest.NewGraphStore()
	parser := &synciotest.Parser{
		IncrementalResults: map[string]syncio.IncrementalParseResult{
			"new.go": {AddedEntities: []syncmodel.Entity{{ID: "e_new", Name: "New", Path: "new.go"}}},
		},
	}
	e := engine.New(parser, store, nil, nil, events.New(), obslog.Noop())
	defer e.Close()

	opID := e.StartIncremental(context.Background(), []syncmodel.FileChange{
		{ID: "c1", Type: syncmodel.ChangeCreate, Path: "new.go"},
	}, syncmodel.Options{})

	waitTerminalIncremental(t, e, opID)

	require.Eventually(t, func() bool {
		return len(store.MaterializeCalls) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"e_new"}, store.MaterializeCalls[0].Seeds)
}

func TestStartIncremental_ConflictsAreAutoResolvedAndEmitted(t *testing.T) {
	store := synciotest.NewGraphStore()
	store.SeedEntity(syncmodel.Entity{ID: "e1", Name: "Old", Path: "a.go"})
	parser := &synciotest.Parser{
		IncrementalResults: map[string]syncio.IncrementalParseResult{
			"a.go": {
				ParseResult: syncio.ParseResult{Entities: []syncmodel.Entity{{ID: "e1", Name: "New", Path: "a.go"}}},
			},
		},
	}
	hub := events.New()
	e := engine.New(parser, store, nil, nil, hub, obslog.Noop())
	defer e.Close()

	var batchEvents int
	hub.ConflictsDetected.On(func(syncmodel.ConflictsDetectedEvent) { batchEvents++ })

	opID := e.StartIncremental(context.Background(), []syncmodel.FileChange{
		{ID: "c1", Type: syncmodel.ChangeModify, Path: "a.go"},
	}, syncmodel.Options{ConflictResolution: syncmodel.ConflictOverwrite})

	op := waitTerminalIncremental(t, e, opID)
	assert.Equal(t, syncmodel.StatusCompleted, op.Status)

	require.Len(t, op.Conflicts, 1)
	assert.True(t, op.Conflicts[0].Resolved)
	assert.Equal(t, syncmodel.ConflictOverwrite, op.Conflicts[0].ResolutionStrategy)
	assert.Equal(t, 1, batchEvents)
}

func TestStartIncremental_CancelledBeforeProcessingIsRecordedAsCancelled(t *testing.T) {
	store := synciotest.NewGraphStore()
	parser := &synciotest.Parser{}
	e := engine.New(parser, store, nil, nil, events.New(), obslog.Noop())
	defer e.Close()

	e.Pause()
	opID := e.StartIncremental(context.Background(), []syncmodel.FileChange{
		{ID: "c1", Type: syncmodel.ChangeDelete, Path: "a.go"},
	}, syncmodel.Options{})
	require.True(t, e.Cancel(opID))
	e.Resume()

	op := waitTerminalIncremental(t, e, opID)
	assert.Equal(t, syncmodel.StatusFailed, op.Status)
	require.Len(t, op.Errors, 1)
	assert.Equal(t, syncmodel.ErrorKindCancelled, op.Errors[0].Kind)
}
