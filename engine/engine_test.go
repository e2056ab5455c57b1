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

func newTestEngine() (*engine.Engine, *synciotest.GraphStore, *synciotest.Parser, *events.Hub) {
	store := synciotest.NewGraphStore()
	parser := &synciotest.Parser{}
	hub := events.New()
	e := engine.New(parser, store, nil, nil, hub, obslog.Noop())
	return e, store, parser, hub
}

func waitForTerminal(t *testing.T, e *engine.Engine, opID string, timeout time.Duration) syncmodel.SyncOperation {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		op, ok := e.GetStatus(opID)
		require.True(t, ok)
		if op.Status.IsTerminal() {
			return op
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("operation %s did not reach a terminal state within %s", opID, timeout)
	return syncmodel.SyncOperation{}
}

func TestStartFull_EmptyFileListCompletes(t *testing.T) {
	e, _, parser, _ := newTestEngine()
	defer e.Close()
	parser.Files = nil

	opID := e.StartFull(context.Background(), syncmodel.Options{})
	op := waitForTerminal(t, e, opID, 2*time.Second)

	assert.Equal(t, syncmodel.StatusCompleted, op.Status)
	stats := e.GetStatistics()
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 0, stats.Failed)
}

func TestCancel_UnknownOperationReturnsFalse(t *testing.T) {
	e, _, _, _ := newTestEngine()
	defer e.Close()
	assert.False(t, e.Cancel("op_does_not_exist"))
}

func TestCancel_AlreadyTerminalIsNoOp(t *testing.T) {
	e, _, parser, _ := newTestEngine()
	defer e.Close()
	parser.Files = nil

	opID := e.StartFull(context.Background(), syncmodel.Options{})
	waitForTerminal(t, e, opID, 2*time.Second)

	assert.True(t, e.Cancel(opID))
}

func TestPauseResume_IsIdempotentAndBlocksDriver(t *testing.T) {
	e, _, parser, _ := newTestEngine()
	defer e.Close()

	e.Pause()
	e.Pause() // idempotent, must not panic or deadlock
	assert.True(t, e.IsPaused())

	parser.Files = []string{}
	opID := e.StartFull(context.Background(), syncmodel.Options{})

	// while paused, the queued flow must not run
	time.Sleep(100 * time.Millisecond)
	op, ok := e.GetStatus(opID)
	require.True(t, ok)
	assert.Equal(t, syncmodel.StatusPending, op.Status)

	e.Resume()
	e.Resume() // idempotent
	assert.False(t, e.IsPaused())

	waitForTerminal(t, e, opID, 2*time.Second)
}

func TestUpdateTuning_AcceptsOverridesWithoutAffectingOtherOperations(t *testing.T) {
	e, _, parser, _ := newTestEngine()
	defer e.Close()
	parser.Files = []string{"a.go", "b.go"}
	parser.ParseResults = map[string]syncio.ParseResult{
		"a.go": {Entities: []syncmodel.Entity{{ID: "a", Name: "A", Type: "symbol"}}},
		"b.go": {Entities: []syncmodel.Entity{{ID: "b", Name: "B", Type: "symbol"}}},
	}

	opID := e.StartFull(context.Background(), syncmodel.Options{})

	// ignored (non-positive) and then a real override; resolution clamps to
	// [1,64]/[1,5000] at use via syncmodel.EffectiveMaxConcurrency/EffectiveBatchSize.
	e.UpdateTuning(opID, 0, -5)
	e.UpdateTuning(opID, 999, 999999)

	op := waitForTerminal(t, e, opID, 2*time.Second)
	assert.Equal(t, syncmodel.StatusCompleted, op.Status)
}

func TestGetActive_OnlyListsNonTerminalOperations(t *testing.T) {
	e, _, parser, _ := newTestEngine()
	defer e.Close()
	parser.Files = nil

	opID := e.StartFull(context.Background(), syncmodel.Options{})
	waitForTerminal(t, e, opID, 2*time.Second)

	active := e.GetActive()
	for _, op := range active {
		assert.NotEqual(t, opID, op.ID)
	}
}

func TestGetQueueDepth_ReflectsRegisteredNotYetDequeued(t *testing.T) {
	e, _, parser, _ := newTestEngine()
	defer e.Close()
	parser.Files = nil

	opID := e.StartFull(context.Background(), syncmodel.Options{})
	waitForTerminal(t, e, opID, 2*time.Second)

	assert.Equal(t, 0, e.GetQueueDepth())
}

// TestMaybeRetry_RetriesThenAbandonsAfterMaxAttempts drives a full sync
// whose parser always fails ListFiles (a non-recoverable error, per
// fullsync.go), forcing every attempt through the linear-backoff retry
// path (5s, 10s, 15s) until it is abandoned after 3 attempts.
func TestMaybeRetry_RetriesThenAbandonsAfterMaxAttempts(t *testing.T) {
	e, _, parser, hub := newTestEngine()
	defer e.Close()
	parser.ListFilesErr = assert.AnError

	var abandoned bool
	done := make(chan struct{})
	hub.Operation.On(func(ev syncmodel.OperationEvent) {
		if ev.Phase == "abandoned" {
			abandoned = true
			close(done)
		}
	})

	opID := e.StartFull(context.Background(), syncmodel.Options{})

	select {
	case <-done:
	case <-time.After(45 * time.Second):
		t.Fatal("timed out waiting for operation to be abandoned")
	}

	require.True(t, abandoned)
	op, ok := e.GetStatus(opID)
	require.True(t, ok)
	assert.Equal(t, syncmodel.StatusFailed, op.Status)
	assert.Equal(t, 3, op.Attempts)

	stats := e.GetStatistics()
	assert.Equal(t, int64(3), stats.Retried)
	assert.Equal(t, 1, stats.Failed)
}
