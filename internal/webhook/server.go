// Package webhook is the telephony boundary: an HTTP API the phone platform
// calls with call lifecycle events and transcribed caller utterances.
//
// The platform drives three endpoints per call:
//
//	POST /v1/calls/started   — allocate a session, get the greeting
//	POST /v1/calls/utterance — one caller turn, get the reply and action
//	POST /v1/calls/ended     — tear down, persist the transcript
//
// Liveness, readiness, and Prometheus metrics are served alongside on
// /healthz, /readyz, and /metrics.
package webhook

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxdesk/voxdesk/internal/audit"
	"github.com/voxdesk/voxdesk/internal/call"
	"github.com/voxdesk/voxdesk/internal/health"
	"github.com/voxdesk/voxdesk/internal/observe"
	"github.com/voxdesk/voxdesk/internal/router"
	"github.com/voxdesk/voxdesk/internal/speech"
)

// secretHeader carries the shared webhook secret when one is configured.
const secretHeader = "X-Voxdesk-Secret"

// auditTimeout bounds the transcript write during call teardown.
const auditTimeout = 10 * time.Second

// Server wires the call store, turn router, speech renderer, and audit
// recorder behind the telephony HTTP API.
type Server struct {
	store    *call.Store
	router   *router.Router
	renderer *speech.Renderer
	recorder audit.Recorder
	health   *health.Handler
	metrics  *observe.Metrics
	logger   *slog.Logger
	secret   string
}

// Option configures a [Server].
type Option func(*Server)

// WithSecret requires the given shared secret in the X-Voxdesk-Secret header
// of every /v1 request. Empty disables the check.
func WithSecret(secret string) Option {
	return func(s *Server) { s.secret = secret }
}

// WithHealthCheckers installs readiness checkers for /readyz.
func WithHealthCheckers(checkers ...health.Checker) Option {
	return func(s *Server) { s.health = health.New(checkers...) }
}

// WithMetrics records HTTP and call metrics on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New builds a Server over the given collaborators.
func New(store *call.Store, rtr *router.Router, renderer *speech.Renderer, recorder audit.Recorder, opts ...Option) (*Server, error) {
	if store == nil || rtr == nil || renderer == nil || recorder == nil {
		return nil, errors.New("webhook: store, router, renderer, and recorder must not be nil")
	}
	s := &Server{
		store:    store,
		router:   rtr,
		renderer: renderer,
		recorder: recorder,
		health:   health.New(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler returns the fully routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	if s.metrics != nil {
		r.Use(observe.Middleware(s.metrics))
	}

	s.health.Register(r)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(s.authenticate)
	v1.HandleFunc("/calls/started", s.handleStarted).Methods(http.MethodPost)
	v1.HandleFunc("/calls/utterance", s.handleUtterance).Methods(http.MethodPost)
	v1.HandleFunc("/calls/ended", s.handleEnded).Methods(http.MethodPost)

	return r
}

// authenticate enforces the shared webhook secret when one is configured.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.secret != "" && r.Header.Get(secretHeader) != s.secret {
			writeError(w, http.StatusUnauthorized, "invalid or missing webhook secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type startedRequest struct {
	CallID       string `json:"call_id"`
	CallerNumber string `json:"caller_number"`
}

type utteranceRequest struct {
	CallID string `json:"call_id"`
	Text   string `json:"text"`
}

type endedRequest struct {
	CallID string `json:"call_id"`
}

// speechPayload is the rendered audio attached to every reply.
type speechPayload struct {
	// Audio is base64-encoded synthesized audio. Empty when Source is
	// "baseline"; the platform plays its pre-recorded prompt instead.
	Audio string `json:"audio,omitempty"`

	// Source is the cache tier that produced the audio.
	Source string `json:"source"`

	// VoiceID is the voice the audio was rendered with.
	VoiceID string `json:"voice_id"`
}

type startedResponse struct {
	CallID   string        `json:"call_id"`
	Greeting string        `json:"greeting"`
	Speech   speechPayload `json:"speech"`
}

type utteranceResponse struct {
	CallID           string        `json:"call_id"`
	Action           string        `json:"action"`
	Text             string        `json:"text"`
	Department       string        `json:"department"`
	EscalationReason string        `json:"escalation_reason,omitempty"`
	Speech           speechPayload `json:"speech"`
}

func (s *Server) handleStarted(w http.ResponseWriter, r *http.Request) {
	var req startedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.CallID == "" {
		writeError(w, http.StatusBadRequest, "call_id is required")
		return
	}

	sess, err := s.store.Create(req.CallID, req.CallerNumber)
	if err != nil {
		if errors.Is(err, call.ErrDuplicateSession) {
			writeError(w, http.StatusConflict, "call already in progress")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	if s.metrics != nil {
		s.metrics.CallStarted(r.Context())
	}

	greeting := s.router.Greeting()
	sess.RecordSpoken(greeting)
	rendered, err := s.renderer.Render(sess.Context(), greeting, sess.ActiveAgent())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to render greeting")
		return
	}

	s.logger.Info("call started", "call_id", req.CallID, "caller_number", req.CallerNumber)
	writeJSON(w, http.StatusCreated, startedResponse{
		CallID:   req.CallID,
		Greeting: greeting,
		Speech:   encodeSpeech(rendered),
	})
}

func (s *Server) handleUtterance(w http.ResponseWriter, r *http.Request) {
	var req utteranceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.CallID == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, "call_id and text are required")
		return
	}

	sess, err := s.store.Get(req.CallID)
	if err != nil {
		writeError(w, http.StatusNotFound, "no such call")
		return
	}

	// Provider work runs under the session context so that call teardown
	// aborts an in-flight turn.
	result := s.router.HandleTurn(sess.Context(), sess, req.Text)

	rendered, err := s.renderer.Render(sess.Context(), result.Text, result.Department)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to render reply")
		return
	}

	writeJSON(w, http.StatusOK, utteranceResponse{
		CallID:           req.CallID,
		Action:           string(result.Action),
		Text:             result.Text,
		Department:       string(result.Department),
		EscalationReason: string(result.EscalationReason),
		Speech:           encodeSpeech(rendered),
	})
}

func (s *Server) handleEnded(w http.ResponseWriter, r *http.Request) {
	var req endedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.CallID == "" {
		writeError(w, http.StatusBadRequest, "call_id is required")
		return
	}

	sess, ok := s.store.End(req.CallID)
	if !ok {
		// Teardown is idempotent; a repeated or stray event is not an error.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if s.metrics != nil {
		s.metrics.CallEnded(r.Context())
	}

	rec := audit.Record{
		CallID:       sess.ID,
		CallerNumber: sess.CallerNumber,
		StartedAt:    sess.StartTime,
		EndedAt:      time.Now(),
		FinalStatus:  string(sess.Status()),
		Transcript:   sess.Transcript(),
	}

	// Best-effort audit write. The platform has already hung up, so a
	// failed write is logged rather than surfaced. The session context is
	// cancelled at this point, so the write runs on its own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()
	if err := s.recorder.RecordCall(ctx, rec); err != nil {
		s.logger.Error("failed to record call transcript", "call_id", req.CallID, "error", err)
	}

	s.logger.Info("call ended", "call_id", req.CallID, "final_status", rec.FinalStatus, "lines", len(rec.Transcript))
	w.WriteHeader(http.StatusNoContent)
}

func encodeSpeech(res *speech.Result) speechPayload {
	p := speechPayload{
		Source:  string(res.Source),
		VoiceID: res.Voice.ID,
	}
	if len(res.Audio) > 0 {
		p.Audio = base64.StdEncoding.EncodeToString(res.Audio)
	}
	return p
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failure"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
