// Package call owns the per-call session state: the conversation history fed
// to the LLM, the whole-call transcript handed to the audit recorder, the
// escalation counters, and the state machine guarding persona transitions.
//
// A [Session] lives exactly as long as one phone call. The telephony boundary
// delivers one utterance at a time and waits for the synchronous response, so
// turns within a call are strictly sequential; the session mutex exists to
// protect against the call-teardown path racing an in-flight turn, not
// against concurrent turns.
package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/voxdesk/voxdesk/pkg/types"
)

// defaultHistoryWindow bounds the number of conversation messages retained
// for prompt construction when no explicit window is configured.
const defaultHistoryWindow = 24

// ErrTerminal is returned by state transitions attempted on a session that
// has already reached Escalated or Ended.
var ErrTerminal = errors.New("call: session is in a terminal state")

// Status is the lifecycle phase of a session, layered on top of the active
// persona: a session is Active in exactly one department, and may terminally
// move to Escalated (handed to a human) or Ended (call completed).
type Status string

const (
	StatusActive    Status = "active"
	StatusEscalated Status = "escalated"
	StatusEnded     Status = "ended"
)

// Session is the state for one live phone call.
//
// All exported methods are safe for concurrent use, but callers must not
// retain a Session beyond the turn it was handed to them for.
type Session struct {
	// ID is the opaque call identifier supplied by the telephony boundary.
	ID string

	// CallerNumber is the caller's origin identifier. May be empty.
	CallerNumber string

	// StartTime is when the call-started event was processed.
	StartTime time.Time

	mu            sync.Mutex
	activeAgent   types.Department
	status        Status
	history       []types.Message
	historyWindow int
	transcript    []types.TranscriptEntry
	turnCount     int
	failedCount   int
	escalationReq bool

	// ctx is cancelled when the session is torn down, aborting any in-flight
	// provider, tool, or synthesis calls for this call.
	ctx    context.Context
	cancel context.CancelFunc
}

// newSession creates an Active session in the Receptionist state.
func newSession(callID, callerNumber string, historyWindow int) *Session {
	if historyWindow <= 0 {
		historyWindow = defaultHistoryWindow
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:            callID,
		CallerNumber:  callerNumber,
		StartTime:     time.Now(),
		activeAgent:   types.DeptReceptionist,
		status:        StatusActive,
		historyWindow: historyWindow,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Context returns a context that is cancelled when the session ends. Turn
// handlers derive their per-turn timeout contexts from it so that call
// teardown aborts in-flight provider calls.
func (s *Session) Context() context.Context {
	return s.ctx
}

// ActiveAgent returns the persona currently handling the call.
func (s *Session) ActiveAgent() types.Department {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeAgent
}

// Status returns the session's lifecycle phase.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// HandOff transitions the call from the Receptionist to the given specialist
// department and clears the conversation history so the specialist starts
// with a fresh context window. The transcript is untouched.
//
// Only the Receptionist may initiate a hand-off; specialist→specialist
// transitions and hand-offs on terminal sessions are rejected.
func (s *Session) HandOff(dept types.Department) error {
	if !dept.IsSpecialist() {
		return fmt.Errorf("call: hand-off target %q is not a specialist department", dept)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusActive {
		return ErrTerminal
	}
	if s.activeAgent != types.DeptReceptionist {
		return fmt.Errorf("call: only the receptionist may hand off (active agent %q)", s.activeAgent)
	}

	s.activeAgent = dept
	s.history = nil
	return nil
}

// Escalate moves the session to the terminal Escalated state. Valid from any
// persona. Calling Escalate on an already-escalated session is a no-op.
func (s *Session) Escalate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusActive {
		s.status = StatusEscalated
	}
}

// end moves the session to Ended and cancels its context. Called by the
// Store during teardown. A session that already escalated keeps Escalated as
// its final status.
func (s *Session) end() {
	s.mu.Lock()
	if s.status == StatusActive {
		s.status = StatusEnded
	}
	s.mu.Unlock()
	s.cancel()
}

// AppendCaller records a caller utterance in both the conversation history
// and the transcript.
func (s *Session) AppendCaller(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendHistory(types.Message{Role: types.RoleUser, Content: text})
	s.transcript = append(s.transcript, types.TranscriptEntry{
		Timestamp:  time.Now(),
		Speaker:    types.SpeakerCaller,
		Department: s.activeAgent,
		Text:       text,
	})
}

// AppendAgent records an agent reply in both the conversation history and
// the transcript.
func (s *Session) AppendAgent(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendHistory(types.Message{Role: types.RoleAssistant, Content: text})
	s.transcript = append(s.transcript, types.TranscriptEntry{
		Timestamp:  time.Now(),
		Speaker:    types.SpeakerAgent,
		Department: s.activeAgent,
		Text:       text,
	})
}

// AppendExchange records raw conversation messages (tool invocations and
// their results) without touching the transcript — tool traffic is prompt
// plumbing, not spoken dialogue.
func (s *Session) AppendExchange(msgs ...types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.appendHistory(m)
	}
}

// RecordSpoken appends an agent line to the transcript only, without adding
// it to the conversation history. Used for canned utterances (greetings,
// persona intros, apologies) that the LLM did not generate.
func (s *Session) RecordSpoken(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, types.TranscriptEntry{
		Timestamp:  time.Now(),
		Speaker:    types.SpeakerAgent,
		Department: s.activeAgent,
		Text:       text,
	})
}

// appendHistory appends m and prunes the oldest entries beyond the window.
// Must be called with s.mu held.
func (s *Session) appendHistory(m types.Message) {
	s.history = append(s.history, m)
	if over := len(s.history) - s.historyWindow; over > 0 {
		s.history = append([]types.Message(nil), s.history[over:]...)
	}
}

// History returns a copy of the bounded conversation history, ready to pass
// to the LLM provider.
func (s *Session) History() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Message, len(s.history))
	copy(out, s.history)
	return out
}

// Transcript returns a copy of the whole-call transcript.
func (s *Session) Transcript() []types.TranscriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.TranscriptEntry, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// BeginTurn increments the turn counter and returns its new value.
func (s *Session) BeginTurn() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnCount++
	return s.turnCount
}

// RecordFailure increments the failed-attempt counter and returns its new
// value. A correctly handled "not found" tool result is not a failure; only
// provider and protocol errors count.
func (s *Session) RecordFailure() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedCount++
	return s.failedCount
}

// TurnCount returns the number of caller turns processed so far.
func (s *Session) TurnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnCount
}

// FailedAttempts returns the number of failed turns so far.
func (s *Session) FailedAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failedCount
}

// RequestEscalation latches the caller's explicit request for a human. The
// flag is sticky for the remainder of the call.
func (s *Session) RequestEscalation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escalationReq = true
}

// EscalationRequested reports whether the caller has explicitly asked for a
// human at any point in the call.
func (s *Session) EscalationRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.escalationReq
}
