// Package abortsignal provides cooperative cancellation primitives for the
// Operation Engine. It is adapted from the AbortController/AbortSignal pair
// in eventloop/abort.go, trimmed to the subset the engine's cooperative
// checkpoints need: Aborted/Reason/ThrowIfAborted and Abort, all on the
// single Signal type (there is no separate controller). Handler
// registration (OnAbort) and composition (AbortAny) are dropped — the engine
// keeps one Signal per operation id (see the Engine.signals map) and only
// needs that signal to short-circuit cooperative checkpoints.
package abortsignal

import "sync"

// Signal reports whether an operation has been cancelled.
type Signal struct {
	mu      sync.RWMutex
	aborted bool
	reason  any
}

// New returns a fresh, unaborted Signal.
func New() *Signal {
	return &Signal{}
}

// Aborted reports whether Abort has been called.
func (s *Signal) Aborted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aborted
}

// Reason returns the value passed to Abort, or nil if not aborted.
func (s *Signal) Reason() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reason
}

// Abort marks the signal aborted with the given reason. Subsequent calls
// are no-ops: the first reason sticks.
func (s *Signal) Abort(reason any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aborted {
		return
	}
	s.aborted = true
	s.reason = reason
}

// Err is the sentinel error cooperative checkpoints raise when a signal has
// been aborted. Components compare against it with errors.Is.
type Err struct{ Reason any }

func (e *Err) Error() string {
	if s, ok := e.Reason.(string); ok {
		return "operation cancelled: " + s
	}
	return "operation cancelled"
}

func (e *Err) Is(target error) bool {
	_, ok := target.(*Err)
	return ok
}

// ThrowIfAborted returns an *Err if the signal has been aborted, else nil.
// Components call this at every cooperative checkpoint named in spec §5.
func (s *Signal) ThrowIfAborted() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.aborted {
		return &Err{Reason: s.reason}
	}
	return nil
}
