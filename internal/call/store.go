package call

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrDuplicateSession is returned by [Store.Create] when a session already
// exists for the call ID. Duplicate webhook delivery should be deduplicated
// upstream; the store only enforces uniqueness.
var ErrDuplicateSession = errors.New("call: session already exists")

// ErrSessionNotFound is returned by [Store.Get] when no live session exists
// for the call ID — typically a late or duplicate telephony event.
var ErrSessionNotFound = errors.New("call: session not found")

// Store owns the collection of live sessions, keyed by call ID. Storage is
// purely in-memory: call state is transient and scoped to the lifetime of a
// single phone call.
//
// The store mutex guards only map membership; per-session state has its own
// lock, so turns on unrelated calls never serialize on each other.
type Store struct {
	mu            sync.RWMutex
	sessions      map[string]*Session
	historyWindow int
}

// NewStore creates an empty session store. historyWindow bounds the
// conversation history kept per session; zero or negative selects the
// package default.
func NewStore(historyWindow int) *Store {
	return &Store{
		sessions:      make(map[string]*Session),
		historyWindow: historyWindow,
	}
}

// Create registers a new session for callID. Returns [ErrDuplicateSession]
// if a live session already exists for that ID.
func (st *Store) Create(callID, callerNumber string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.sessions[callID]; ok {
		return nil, ErrDuplicateSession
	}

	s := newSession(callID, callerNumber, st.historyWindow)
	st.sessions[callID] = s

	slog.Info("call session created",
		"call_id", callID,
		"caller", callerNumber,
	)
	return s, nil
}

// Get returns the live session for callID, or [ErrSessionNotFound].
func (st *Store) Get(callID string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[callID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// End removes the session for callID, cancels its context (aborting any
// in-flight provider calls for the call), and returns the now-terminal
// session for hand-off to the audit recorder.
//
// Ending a session that does not exist is a no-op, reported via ok=false;
// call-end events may arrive after cleanup already occurred.
func (st *Store) End(callID string) (*Session, bool) {
	st.mu.Lock()
	s, exists := st.sessions[callID]
	if exists {
		delete(st.sessions, callID)
	}
	st.mu.Unlock()

	if !exists {
		slog.Debug("call end for unknown session (already cleaned up?)", "call_id", callID)
		return nil, false
	}

	s.end()
	slog.Info("call session ended",
		"call_id", callID,
		"turns", s.TurnCount(),
		"status", s.Status(),
	)
	return s, true
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
