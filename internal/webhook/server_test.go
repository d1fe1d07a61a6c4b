package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/voxdesk/voxdesk/internal/audit"
	"github.com/voxdesk/voxdesk/internal/call"
	"github.com/voxdesk/voxdesk/internal/dialogue"
	"github.com/voxdesk/voxdesk/internal/escalate"
	"github.com/voxdesk/voxdesk/internal/router"
	"github.com/voxdesk/voxdesk/internal/speech"
	"github.com/voxdesk/voxdesk/pkg/provider/llm"
	llmmock "github.com/voxdesk/voxdesk/pkg/provider/llm/mock"
	ttsmock "github.com/voxdesk/voxdesk/pkg/provider/tts/mock"
	"github.com/voxdesk/voxdesk/pkg/types"
)

// memRecorder is an in-memory audit.Recorder capturing records for assertions.
type memRecorder struct {
	mu      sync.Mutex
	records []audit.Record
}

func (m *memRecorder) RecordCall(_ context.Context, rec audit.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memRecorder) Records() []audit.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]audit.Record, len(m.records))
	copy(out, m.records)
	return out
}

func newTestServer(t *testing.T, provider *llmmock.Provider, opts ...Option) (*httptest.Server, *memRecorder) {
	t.Helper()

	engine, err := dialogue.NewEngine(provider, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rtr, err := router.New(engine, escalate.New(), dialogue.DefaultPersonas())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	renderer, err := speech.NewRenderer(
		&ttsmock.Provider{SynthesizeResult: []byte("pcm")},
		map[types.Department]types.VoiceProfile{},
		types.VoiceProfile{ID: "voice-test"},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(renderer.Close)

	rec := &memRecorder{}
	srv, err := New(call.NewStore(0), rtr, renderer, rec, opts...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, rec
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body any, header map[string]string) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestCallLifecycle(t *testing.T) {
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "We open at nine every weekday."},
	}
	ts, rec := newTestServer(t, provider)

	resp := postJSON(t, ts, "/v1/calls/started", map[string]string{
		"call_id":       "call-1",
		"caller_number": "+15550100",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("started status = %d, want 201", resp.StatusCode)
	}
	started := decodeBody[startedResponse](t, resp)
	if started.CallID != "call-1" {
		t.Errorf("call_id = %q", started.CallID)
	}
	if !strings.Contains(started.Greeting, "Harbourlight") {
		t.Errorf("greeting = %q, want company name", started.Greeting)
	}
	if started.Speech.Source != string(speech.SourceRendered) {
		t.Errorf("speech source = %q, want rendered", started.Speech.Source)
	}
	if started.Speech.Audio == "" {
		t.Error("speech audio should not be empty")
	}

	resp = postJSON(t, ts, "/v1/calls/utterance", map[string]string{
		"call_id": "call-1",
		"text":    "What are your opening hours?",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("utterance status = %d, want 200", resp.StatusCode)
	}
	turn := decodeBody[utteranceResponse](t, resp)
	if turn.Action != string(router.ActionSpeak) {
		t.Errorf("action = %q, want speak", turn.Action)
	}
	if turn.Text != "We open at nine every weekday." {
		t.Errorf("text = %q", turn.Text)
	}
	if turn.Department != string(types.DeptReceptionist) {
		t.Errorf("department = %q, want receptionist", turn.Department)
	}

	resp = postJSON(t, ts, "/v1/calls/ended", map[string]string{"call_id": "call-1"}, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("ended status = %d, want 204", resp.StatusCode)
	}

	records := rec.Records()
	if len(records) != 1 {
		t.Fatalf("got %d audit records, want 1", len(records))
	}
	got := records[0]
	if got.CallID != "call-1" || got.CallerNumber != "+15550100" {
		t.Errorf("record identity = %q/%q", got.CallID, got.CallerNumber)
	}
	if got.FinalStatus != string(call.StatusEnded) {
		t.Errorf("final status = %q, want ended", got.FinalStatus)
	}
	// Greeting, caller utterance, agent reply.
	if len(got.Transcript) != 3 {
		t.Fatalf("transcript has %d lines, want 3", len(got.Transcript))
	}
	if got.Transcript[1].Speaker != types.SpeakerCaller {
		t.Errorf("transcript[1].Speaker = %q, want caller", got.Transcript[1].Speaker)
	}
}

func TestEscalatedCallAuditedAsEscalated(t *testing.T) {
	// The provider always fails; an explicit human request must still escalate.
	provider := &llmmock.Provider{CompleteErr: context.DeadlineExceeded}
	ts, rec := newTestServer(t, provider)

	postJSON(t, ts, "/v1/calls/started", map[string]string{"call_id": "call-2"}, nil)
	resp := postJSON(t, ts, "/v1/calls/utterance", map[string]string{
		"call_id": "call-2",
		"text":    "I want to talk to a human please",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("utterance status = %d, want 200", resp.StatusCode)
	}
	turn := decodeBody[utteranceResponse](t, resp)
	if turn.Action != string(router.ActionTransfer) {
		t.Errorf("action = %q, want transfer", turn.Action)
	}
	if turn.EscalationReason != string(escalate.ReasonExplicitRequest) {
		t.Errorf("escalation_reason = %q", turn.EscalationReason)
	}
	if len(provider.CompleteCalls) != 0 {
		t.Errorf("LLM was consulted %d times for an explicit escalation", len(provider.CompleteCalls))
	}

	postJSON(t, ts, "/v1/calls/ended", map[string]string{"call_id": "call-2"}, nil)
	records := rec.Records()
	if len(records) != 1 {
		t.Fatalf("got %d audit records, want 1", len(records))
	}
	if records[0].FinalStatus != string(call.StatusEscalated) {
		t.Errorf("final status = %q, want escalated", records[0].FinalStatus)
	}
}

func TestStartedErrors(t *testing.T) {
	ts, _ := newTestServer(t, &llmmock.Provider{})

	t.Run("duplicate call", func(t *testing.T) {
		postJSON(t, ts, "/v1/calls/started", map[string]string{"call_id": "dup"}, nil)
		resp := postJSON(t, ts, "/v1/calls/started", map[string]string{"call_id": "dup"}, nil)
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("status = %d, want 409", resp.StatusCode)
		}
	})

	t.Run("missing call_id", func(t *testing.T) {
		resp := postJSON(t, ts, "/v1/calls/started", map[string]string{"caller_number": "+1555"}, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		resp, err := ts.Client().Post(ts.URL+"/v1/calls/started", "application/json", strings.NewReader("{not json"))
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})
}

func TestUtteranceUnknownCall(t *testing.T) {
	ts, _ := newTestServer(t, &llmmock.Provider{})
	resp := postJSON(t, ts, "/v1/calls/utterance", map[string]string{
		"call_id": "ghost",
		"text":    "hello?",
	}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestEndedIdempotent(t *testing.T) {
	ts, rec := newTestServer(t, &llmmock.Provider{})
	postJSON(t, ts, "/v1/calls/started", map[string]string{"call_id": "call-3"}, nil)

	for i := 0; i < 2; i++ {
		resp := postJSON(t, ts, "/v1/calls/ended", map[string]string{"call_id": "call-3"}, nil)
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("ended #%d status = %d, want 204", i+1, resp.StatusCode)
		}
	}
	if got := len(rec.Records()); got != 1 {
		t.Errorf("got %d audit records after repeated teardown, want 1", got)
	}
}

func TestWebhookSecret(t *testing.T) {
	ts, _ := newTestServer(t, &llmmock.Provider{}, WithSecret("s3cret"))

	t.Run("missing secret rejected", func(t *testing.T) {
		resp := postJSON(t, ts, "/v1/calls/started", map[string]string{"call_id": "call-4"}, nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		resp := postJSON(t, ts, "/v1/calls/started", map[string]string{"call_id": "call-4"},
			map[string]string{secretHeader: "wrong"})
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
	})

	t.Run("correct secret accepted", func(t *testing.T) {
		resp := postJSON(t, ts, "/v1/calls/started", map[string]string{"call_id": "call-4"},
			map[string]string{secretHeader: "s3cret"})
		if resp.StatusCode != http.StatusCreated {
			t.Errorf("status = %d, want 201", resp.StatusCode)
		}
	})

	t.Run("health endpoints stay open", func(t *testing.T) {
		resp, err := ts.Client().Get(ts.URL + "/healthz")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("healthz status = %d, want 200", resp.StatusCode)
		}
	})
}
