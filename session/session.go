// Package session implements the Session Stream (C7): incremental-sync
// session lifecycle events, buffered relationship flushing, and keepalive,
// per spec §4.7.
package session

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syncgraph/synccore/events"
	"github.com/syncgraph/synccore/internal/config"
	"github.com/syncgraph/synccore/sequence"
	"github.com/syncgraph/synccore/syncio"
	"github.com/syncgraph/synccore/syncmodel"
)

const maxTeardownErrors = 5

// Stream drives one incremental operation's session lifecycle: a
// session_started event, periodic keepalives, buffered relationship
// flushes, and exactly one session_teardown.
type Stream struct {
	sessionID   string
	operationID string
	store       syncio.GraphStore
	hub         *events.Hub
	seqTracker  *sequence.Tracker

	seq atomic.Int64

	mu      sync.Mutex
	buffer  []syncmodel.Relationship
	errs    []syncmodel.SyncError

	keepaliveStop chan struct{}
	teardownOnce  sync.Once
}

// New returns a Stream for the given operation id, per spec §4.7's
// `sessionId = "session_<opId>"`.
func New(operationID string, store syncio.GraphStore, hub *events.Hub, seqTracker *sequence.Tracker) *Stream {
	return &Stream{
		sessionID:     "session_" + operationID,
		operationID:   operationID,
		store:         store,
		hub:           hub,
		seqTracker:    seqTracker,
		keepaliveStop: make(chan struct{}),
	}
}

// SessionID returns the generated session id.
func (s *Stream) SessionID() string { return s.sessionID }

// Start emits session_started and begins the keepalive timer at
// clamp(timeout/6, 3000..20000)ms.
func (s *Stream) Start(totalChanges, batchSize, maxConcurrency int, timeout time.Duration) {
	s.emit(syncmodel.SessionStarted, map[string]any{
		"totalChanges":   totalChanges,
		"batchSize":      batchSize,
		"maxConcurrency": maxConcurrency,
	})

	intervalMs := config.Clamp(int(timeout.Milliseconds()/6), 3000, 20000)
	go s.keepaliveLoop(time.Duration(intervalMs) * time.Millisecond)
}

func (s *Stream) keepaliveLoop(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.emit(syncmodel.SessionKeepalive, nil)
		case <-s.keepaliveStop:
			return
		}
	}
}

// NextEventID implements the `eventId = "evt_" + first16(sha1(sessionId|
// seq|type|toEntityId|timestamp))` formula of spec §4.7.
func (s *Stream) NextEventID(relType, toEntityID string, ts time.Time) (int64, string) {
	seq := s.seq.Add(1)
	raw := fmt.Sprintf("%s|%d|%s|%s|%d", s.sessionID, seq, relType, toEntityID, ts.UnixNano())
	sum := sha1.Sum([]byte(raw))
	return seq, "evt_" + hex.EncodeToString(sum[:])[:16]
}

// BufferEdge implements "C3 is consulted before each edge; skipped edges
// are not buffered." It returns false when the Sequence Tracker reports
// shouldSkip.
func (s *Stream) BufferEdge(rel syncmodel.Relationship) bool {
	seq, eventID := s.NextEventID(rel.Type, rel.ToEntityID, time.Now())
	result := s.seqTracker.Record(s.sessionID, rel.Type, seq, eventID, time.Now())
	if result.ShouldSkip {
		return false
	}
	rel.SessionID = s.sessionID
	rel.SequenceNumber = seq
	rel.EventID = eventID
	s.mu.Lock()
	s.buffer = append(s.buffer, rel)
	s.mu.Unlock()
	return true
}

// Flush bulk-writes the buffered relationships and emits
// session_relationships, per spec §4.7 ("buffered and bulk-flushed at
// change boundaries and at end of flow").
func (s *Stream) Flush(ctx context.Context) error {
	s.mu.Lock()
	batch := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := s.store.UpsertEdgeEvidenceBulk(ctx, batch); err != nil {
		s.recordError(syncmodel.NewError("", syncmodel.ErrorKindDatabase, err.Error(), true))
		return err
	}
	s.emit(syncmodel.SessionRelationships, batch)
	return nil
}

func (s *Stream) recordError(err syncmodel.SyncError) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

// Teardown emits session_teardown exactly once, per spec §4.7's "a
// finally block guarantees teardown on all paths". Safe to call multiple
// times; only the first has effect.
func (s *Stream) Teardown(status string, counters syncmodel.Counters) {
	s.teardownOnce.Do(func() {
		close(s.keepaliveStop)
		s.mu.Lock()
		errs := s.errs
		if len(errs) > maxTeardownErrors {
			errs = errs[len(errs)-maxTeardownErrors:]
		}
		s.mu.Unlock()
		s.emit(syncmodel.SessionTeardown, map[string]any{
			"status":   status,
			"counters": counters,
			"errors":   errs,
		})
		if s.seqTracker != nil {
			s.seqTracker.Reset(s.sessionID)
		}
	})
}

func (s *Stream) emit(typ syncmodel.SessionStreamEventType, payload any) {
	if s.hub == nil {
		return
	}
	s.hub.Session.Emit(syncmodel.SessionStreamEvent{
		Type:        typ,
		SessionID:   s.sessionID,
		OperationID: s.operationID,
		Timestamp:   time.Now(),
		Payload:     payload,
	})
}
