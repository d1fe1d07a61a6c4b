// Package router is the per-turn brain of a call: it applies the escalation
// policy, drives the dialogue engine under the active persona, and executes
// receptionist hand-offs.
//
// Exactly one persona is active per call at any time. The Receptionist
// answers every call and may hand off to one specialist; specialists keep the
// call until it ends or escalates. Escalation and call-end are terminal.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxdesk/voxdesk/internal/call"
	"github.com/voxdesk/voxdesk/internal/dialogue"
	"github.com/voxdesk/voxdesk/internal/escalate"
	"github.com/voxdesk/voxdesk/internal/observe"
	"github.com/voxdesk/voxdesk/pkg/types"
)

// Action tells the telephony boundary what to do with the turn's reply.
type Action string

const (
	// ActionSpeak plays the reply and waits for the next caller utterance.
	ActionSpeak Action = "speak"

	// ActionTransfer plays the reply, then bridges the call to a human
	// queue. The session is terminal afterwards.
	ActionTransfer Action = "transfer"

	// ActionHangup plays the reply (if any) and terminates the call.
	ActionHangup Action = "hangup"
)

// Canned lines spoken without consulting the LLM. They are also preseeded in
// the speech cache so they play even when the TTS provider is down.
const (
	// ApologyLine is spoken when a turn fails; the call stays with the
	// active persona.
	ApologyLine = "I'm sorry, I'm having a little trouble right now. Could you say that again?"

	// EscalationLine is spoken just before bridging to a human.
	EscalationLine = "Of course, let me connect you with one of our team members. Please hold the line."

	// GoodbyeLine is spoken when a turn arrives for a call that has already
	// ended or escalated.
	GoodbyeLine = "Thank you for calling Harbourlight Supply. Goodbye."
)

// TurnResult is the router's answer for one caller utterance.
type TurnResult struct {
	// Action is what the telephony boundary should do next.
	Action Action

	// Text is the reply to synthesize and play.
	Text string

	// Department is the persona that produced the reply, or the hand-off
	// target when a transfer within the AI happened this turn.
	Department types.Department

	// HandedOff reports that this turn moved the call to a specialist.
	HandedOff bool

	// EscalationReason is set when Action is ActionTransfer because the
	// escalation policy fired.
	EscalationReason escalate.Reason
}

// Router processes caller turns for live sessions.
type Router struct {
	engine   *dialogue.Engine
	policy   *escalate.Policy
	personas map[types.Department]dialogue.Persona
	metrics  *observe.Metrics
	logger   *slog.Logger
}

// Option configures a [Router].
type Option func(*Router)

// WithMetrics records turn, hand-off, and escalation metrics on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// New builds a Router. personas must contain an entry for the receptionist
// and for every specialist department.
func New(engine *dialogue.Engine, policy *escalate.Policy, personas map[types.Department]dialogue.Persona, opts ...Option) (*Router, error) {
	if engine == nil {
		return nil, errors.New("router: engine must not be nil")
	}
	if policy == nil {
		return nil, errors.New("router: policy must not be nil")
	}
	if _, ok := personas[types.DeptReceptionist]; !ok {
		return nil, errors.New("router: missing receptionist persona")
	}
	for _, d := range types.Specialists {
		if _, ok := personas[d]; !ok {
			return nil, fmt.Errorf("router: missing persona for department %q", d)
		}
	}
	r := &Router{
		engine:   engine,
		policy:   policy,
		personas: personas,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Greeting returns the receptionist's opening line for a new call.
func (r *Router) Greeting() string {
	return r.personas[types.DeptReceptionist].Intro
}

// HandleTurn processes one caller utterance against the session's active
// persona and returns what to play and do next. It never returns an error
// for provider or model misbehaviour; degraded turns produce an apology and
// leave the state machine where it was.
func (r *Router) HandleTurn(ctx context.Context, sess *call.Session, utterance string) *TurnResult {
	start := time.Now()
	res := r.handleTurn(ctx, sess, utterance)
	if r.metrics != nil {
		ok := res.Action != ActionSpeak || res.Text != ApologyLine
		r.metrics.RecordTurn(ctx, string(res.Department), time.Since(start), ok)
	}
	return res
}

func (r *Router) handleTurn(ctx context.Context, sess *call.Session, utterance string) *TurnResult {
	log := r.logger.With("call_id", sess.ID, "agent", sess.ActiveAgent())

	// Turns arriving after the call left AI handling get a polite goodbye.
	if sess.Status() != call.StatusActive {
		return &TurnResult{
			Action:     ActionHangup,
			Text:       GoodbyeLine,
			Department: sess.ActiveAgent(),
		}
	}

	sess.BeginTurn()

	// The escalation check runs before the LLM sees the utterance, so an
	// explicit human-request is honoured even when providers are down.
	if escalated, reason := r.policy.Decide(sess, utterance); escalated {
		if reason == escalate.ReasonExplicitRequest {
			sess.RequestEscalation()
		}
		sess.AppendCaller(utterance)
		sess.Escalate()
		sess.RecordSpoken(EscalationLine)
		log.Info("call escalated", "reason", string(reason))
		if r.metrics != nil {
			r.metrics.RecordEscalation(ctx, string(reason))
		}
		return &TurnResult{
			Action:           ActionTransfer,
			Text:             EscalationLine,
			Department:       sess.ActiveAgent(),
			EscalationReason: reason,
		}
	}

	active := sess.ActiveAgent()
	persona := r.personas[active]

	reply, err := r.engine.GenerateTurn(ctx, sess, utterance, persona)

	// Call teardown can race an in-flight turn: Store.End cancels the
	// session context and snapshots the transcript while the provider call
	// is still running. A result arriving after that must be discarded, not
	// committed to the destroyed session.
	if ctx.Err() != nil || sess.Status() != call.StatusActive {
		log.Info("discarding turn result, call torn down mid-turn")
		return &TurnResult{
			Action:     ActionHangup,
			Text:       GoodbyeLine,
			Department: sess.ActiveAgent(),
		}
	}

	if err != nil {
		failures := sess.RecordFailure()
		log.Warn("turn failed", "error", err, "failed_attempts", failures)
		sess.RecordSpoken(ApologyLine)
		return &TurnResult{
			Action:     ActionSpeak,
			Text:       ApologyLine,
			Department: active,
		}
	}

	if active == types.DeptReceptionist {
		if dept, cleaned, ok := ParseHandoff(reply); ok {
			return r.handOff(ctx, sess, dept, cleaned, log)
		} else if cleaned != "" {
			reply = cleaned
		}
	}

	sess.AppendAgent(reply)
	return &TurnResult{
		Action:     ActionSpeak,
		Text:       reply,
		Department: active,
	}
}

// handOff moves the call to the specialist, wipes the LLM context, and
// composes the connect sentence with the specialist's intro.
func (r *Router) handOff(ctx context.Context, sess *call.Session, dept types.Department, connectLine string, log *slog.Logger) *TurnResult {
	if err := sess.HandOff(dept); err != nil {
		// Anything other than a receptionist-to-specialist move is a model
		// protocol slip. Stay where we are and speak the reply as-is.
		log.Warn("hand-off rejected", "target", dept, "error", err)
		sess.AppendAgent(connectLine)
		return &TurnResult{
			Action:     ActionSpeak,
			Text:       connectLine,
			Department: sess.ActiveAgent(),
		}
	}

	if connectLine != "" {
		sess.RecordSpoken(connectLine)
	}
	intro := r.personas[dept].Intro
	sess.RecordSpoken(intro)
	log.Info("call handed off", "target", dept)
	if r.metrics != nil {
		r.metrics.RecordHandoff(ctx, string(dept))
	}

	text := intro
	if connectLine != "" {
		text = connectLine + " " + intro
	}
	return &TurnResult{
		Action:     ActionSpeak,
		Text:       text,
		Department: dept,
		HandedOff:  true,
	}
}
