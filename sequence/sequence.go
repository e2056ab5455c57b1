// Package sequence implements the Sequence Tracker (C3): per-session
// monotonic sequence allocation and duplicate/out-of-order detection, per
// spec §4.4.
package sequence

import (
	"sync"
	"time"

	"github.com/syncgraph/synccore/events"
	"github.com/syncgraph/synccore/internal/config"
	"github.com/syncgraph/synccore/syncmodel"
)

// Tracker holds per-session sequence state for the lifetime of the process.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*syncmodel.SessionSequenceState
	hub      *events.Hub
}

// New returns an empty Tracker emitting anomalies on hub.
func New(hub *events.Hub) *Tracker {
	return &Tracker{sessions: make(map[string]*syncmodel.SessionSequenceState), hub: hub}
}

// Record implements recordSessionSequence (spec §4.4): advances lastSequence
// only when seq strictly increases, always updates perType[type], and
// reports shouldSkip per the configured ANOMALY_RESOLUTION_MODE.
func (t *Tracker) Record(sessionID, typ string, seq int64, eventID string, ts time.Time) syncmodel.SequenceResult {
	t.mu.Lock()
	state, ok := t.sessions[sessionID]
	if !ok {
		state = syncmodel.NewSessionSequenceState()
		t.sessions[sessionID] = state
	}

	prevSeq := state.LastSequence
	prevType := state.LastType
	prevTypeSeq, hadType := state.PerType[typ]

	var reason syncmodel.AnomalyReason
	if ok {
		switch {
		case seq == prevSeq || (hadType && seq == prevTypeSeq):
			reason = syncmodel.AnomalyDuplicate
		case seq < prevSeq:
			reason = syncmodel.AnomalyOutOfOrder
		}
	}

	if seq > state.LastSequence {
		state.LastSequence = seq
		state.LastType = typ
	}
	state.PerType[typ] = seq
	t.mu.Unlock()

	result := syncmodel.SequenceResult{Reason: reason}
	if reason == "" {
		return result
	}

	if t.hub != nil {
		t.hub.SequenceAnomaly.Emit(syncmodel.SessionSequenceAnomalyEvent{
			SessionID:    sessionID,
			Type:         typ,
			Sequence:     seq,
			PrevSequence: prevSeq,
			PrevType:     prevType,
			Reason:       reason,
			EventID:      eventID,
			Timestamp:    ts,
		})
	}

	result.ShouldSkip = config.AnomalyResolutionMode() == config.AnomalySkip
	return result
}

// Reset drops tracked state for sessionID, for use once a session tears
// down (spec §4.7: state is process-lifetime only for active sessions).
func (t *Tracker) Reset(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, sessionID)
}
