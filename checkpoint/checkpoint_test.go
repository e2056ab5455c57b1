package checkpoint_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncgraph/synccore/checkpoint"
	"github.com/syncgraph/synccore/events"
	"github.com/syncgraph/synccore/internal/synciotest"
	"github.com/syncgraph/synccore/syncmodel"
)

func TestEnqueue_RejectsEmptySeeds(t *testing.T) {
	r := checkpoint.New(synciotest.NewGraphStore(), events.New(), 1)
	defer r.Close()

	_, err := r.Enqueue(context.Background(), syncmodel.CheckpointJobRequest{SessionID: "s1"})
	require.Error(t, err)
}

func TestEnqueue_SuccessUpdatesMetrics(t *testing.T) {
	store := synciotest.NewGraphStore()
	hub := events.New()
	r := checkpoint.New(store, hub, 1)
	defer r.Close()

	var completedEvt syncmodel.CheckpointJobEvent
	done := make(chan struct{})
	hub.CheckpointJob.On(func(e syncmodel.CheckpointJobEvent) {
		if e.Phase == "completed" {
			completedEvt = e
			close(done)
		}
	})

	jobID, err := r.Enqueue(context.Background(), syncmodel.CheckpointJobRequest{
		SessionID:     "s1",
		SeedEntityIDs: []string{"e1", "e2"},
		HopCount:      2,
	})
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for checkpoint completion")
	}

	assert.Equal(t, jobID, completedEvt.JobID)
	metrics := r.GetMetrics()
	assert.Equal(t, int64(1), metrics.Enqueued)
	assert.Equal(t, int64(1), metrics.Completed)
	require.Len(t, store.MaterializeCalls, 1)
	assert.ElementsMatch(t, []string{"e1", "e2"}, store.MaterializeCalls[0].Seeds)
	assert.Equal(t, 2, store.MaterializeCalls[0].HopCount)
}

func TestEnqueue_DeadLettersAfterMaxAttempts(t *testing.T) {
	store := synciotest.NewGraphStore()
	store.OnMaterializeCheckpoint = func(seeds []string, hopCount int) (string, error) {
		return "", errors.New("boom")
	}
	hub := events.New()
	r := checkpoint.New(store, hub, 1)
	defer r.Close()

	done := make(chan struct{})
	hub.CheckpointJob.On(func(e syncmodel.CheckpointJobEvent) {
		if e.Phase == "dead_lettered" {
			close(done)
		}
	})

	_, err := r.Enqueue(context.Background(), syncmodel.CheckpointJobRequest{
		SessionID:     "s1",
		SeedEntityIDs: []string{"e1"},
	})
	require.NoError(t, err)

	// backoff(1)=5s, backoff(2)=10s: the third (dead-lettering) attempt
	// fires roughly 15s after enqueue.
	select {
	case <-done:
	case <-time.After(20 * time.Second):
		t.Fatal("timed out waiting for dead-letter")
	}

	dead := r.GetDeadLetterJobs()
	require.Len(t, dead, 1)
	assert.Equal(t, syncmodel.CheckpointDeadLetter, dead[0].State)
	assert.Equal(t, 3, dead[0].Attempts)
}

func TestAttachPersistence_WritesThrough(t *testing.T) {
	store := synciotest.NewGraphStore()
	r := checkpoint.New(store, events.New(), 1)
	defer r.Close()

	assert.False(t, r.HasPersistence())
	persist := synciotest.NewCheckpointStore()
	require.NoError(t, r.AttachPersistence(context.Background(), persist))
	assert.True(t, r.HasPersistence())

	_, err := r.Enqueue(context.Background(), syncmodel.CheckpointJobRequest{
		SessionID:     "s1",
		SeedEntityIDs: []string{"e1"},
	})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.NotEmpty(t, persist.Snapshot())
}

func TestEnqueue_DedupesSeedsAndDefaultsHopCount(t *testing.T) {
	store := synciotest.NewGraphStore()
	r := checkpoint.New(store, events.New(), 1)
	defer r.Close()

	_, err := r.Enqueue(context.Background(), syncmodel.CheckpointJobRequest{
		SessionID:     "s1",
		SeedEntityIDs: []string{"e1", "e1", "e2"},
		HopCount:      0,
	})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	require.Len(t, store.MaterializeCalls, 1)
	assert.ElementsMatch(t, []string{"e1", "e2"}, store.MaterializeCalls[0].Seeds)
	assert.Equal(t, 1, store.MaterializeCalls[0].HopCount)
}
