package syncmodel

import "time"

// SessionStreamEventType enumerates the event kinds the Session Stream (C7)
// emits, per spec §3/§6.
type SessionStreamEventType string

const (
	SessionStarted       SessionStreamEventType = "session_started"
	SessionKeepalive     SessionStreamEventType = "session_keepalive"
	SessionRelationships SessionStreamEventType = "session_relationships"
	SessionCheckpoint    SessionStreamEventType = "session_checkpoint"
	SessionTeardown      SessionStreamEventType = "session_teardown"
)

// SessionStreamEvent is one emission on the session event stream (spec §3).
type SessionStreamEvent struct {
	Type        SessionStreamEventType
	SessionID   string
	OperationID string
	Timestamp   time.Time
	Payload     any
}

// StateTransition describes the before/after state recorded on a
// SESSION_MODIFIED edge (spec §4.1.2).
type StateTransition struct {
	From           string
	To             string
	VerifiedBy     string
	Confidence     float64
	CriticalChange *CriticalChange
}

// CriticalChange carries a length-capped before/after snippet extracted
// from the first unified-diff hunk (spec §4.1.2).
type CriticalChange struct {
	Before string
	After  string
}

// ChangeInfo is attached to SESSION_MODIFIED/SESSION_IMPACTED edges.
type ChangeInfo struct {
	ChangeID string
	Severity string // "low" | "medium" | "high"
}
