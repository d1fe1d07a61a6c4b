package router

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/voxdesk/voxdesk/internal/call"
	"github.com/voxdesk/voxdesk/internal/dialogue"
	"github.com/voxdesk/voxdesk/internal/escalate"
	"github.com/voxdesk/voxdesk/pkg/provider/llm"
	llmmock "github.com/voxdesk/voxdesk/pkg/provider/llm/mock"
	"github.com/voxdesk/voxdesk/pkg/types"
)

func newTestRouter(t *testing.T, provider *llmmock.Provider, opts ...escalate.Option) *Router {
	t.Helper()
	engine, err := dialogue.NewEngine(provider, nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	r, err := New(engine, escalate.New(opts...), dialogue.DefaultPersonas())
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	return r
}

func newTestSession(t *testing.T) *call.Session {
	t.Helper()
	s, err := call.NewStore(0).Create("test-call", "+15550100")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return s
}

func TestRouter_Greeting(t *testing.T) {
	r := newTestRouter(t, &llmmock.Provider{})
	if g := r.Greeting(); !strings.Contains(g, "Harbourlight") {
		t.Errorf("greeting = %q", g)
	}
}

func TestRouter_HandleTurn_Speak(t *testing.T) {
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "We're open until five today."},
	}
	r := newTestRouter(t, provider)
	sess := newTestSession(t)

	res := r.HandleTurn(context.Background(), sess, "what are your hours")
	if res.Action != ActionSpeak {
		t.Fatalf("action = %q, want speak", res.Action)
	}
	if res.Text != "We're open until five today." {
		t.Errorf("text = %q", res.Text)
	}
	if res.Department != types.DeptReceptionist {
		t.Errorf("department = %q, want receptionist", res.Department)
	}

	// Both sides of the turn reached the history and the transcript.
	if h := sess.History(); len(h) != 2 {
		t.Errorf("history length = %d, want 2", len(h))
	}
	if tr := sess.Transcript(); len(tr) != 2 {
		t.Errorf("transcript length = %d, want 2", len(tr))
	}
}

func TestRouter_HandleTurn_Handoff(t *testing.T) {
	provider := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{Content: "Let me connect you to shipping. [[handoff:shipping]]"},
			{Content: "Your order shipped yesterday."},
		},
	}
	r := newTestRouter(t, provider)
	sess := newTestSession(t)

	res := r.HandleTurn(context.Background(), sess, "where is my order")
	if !res.HandedOff {
		t.Fatal("expected a hand-off")
	}
	if res.Action != ActionSpeak {
		t.Errorf("action = %q, want speak", res.Action)
	}
	if res.Department != types.DeptShipping {
		t.Errorf("department = %q, want shipping", res.Department)
	}
	if strings.Contains(res.Text, "[[") {
		t.Errorf("marker leaked into spoken text: %q", res.Text)
	}
	if !strings.Contains(res.Text, "You're through to shipping") {
		t.Errorf("text = %q, want the shipping intro appended", res.Text)
	}
	if got := sess.ActiveAgent(); got != types.DeptShipping {
		t.Errorf("active agent = %q, want shipping", got)
	}
	// The specialist starts with a clean context window.
	if h := sess.History(); len(h) != 0 {
		t.Errorf("history length = %d, want 0 after hand-off", len(h))
	}
	// The marker never reaches the transcript.
	for _, entry := range sess.Transcript() {
		if strings.Contains(entry.Text, "[[") {
			t.Errorf("marker leaked into transcript: %q", entry.Text)
		}
	}

	// The next turn runs under the shipping persona.
	res = r.HandleTurn(context.Background(), sess, "order two eight six three zero")
	if res.Department != types.DeptShipping || res.Text != "Your order shipped yesterday." {
		t.Errorf("second turn = %+v", res)
	}
}

func TestRouter_HandleTurn_ExplicitEscalation(t *testing.T) {
	// Provider failure proves the escalation check runs before the LLM.
	provider := &llmmock.Provider{CompleteErr: errors.New("provider down")}
	r := newTestRouter(t, provider)
	sess := newTestSession(t)

	res := r.HandleTurn(context.Background(), sess, "I want to speak to a human")
	if res.Action != ActionTransfer {
		t.Fatalf("action = %q, want transfer", res.Action)
	}
	if res.Text != EscalationLine {
		t.Errorf("text = %q, want the escalation line", res.Text)
	}
	if res.EscalationReason != escalate.ReasonExplicitRequest {
		t.Errorf("reason = %q", res.EscalationReason)
	}
	if got := sess.Status(); got != call.StatusEscalated {
		t.Errorf("status = %q, want escalated", got)
	}
	if len(provider.CompleteCalls) != 0 {
		t.Errorf("LLM consulted %d times, want 0", len(provider.CompleteCalls))
	}
	// The caller's request and the canned line are on the record.
	tr := sess.Transcript()
	if len(tr) != 2 || tr[1].Text != EscalationLine {
		t.Errorf("transcript = %+v", tr)
	}
}

func TestRouter_HandleTurn_ProviderFailure(t *testing.T) {
	provider := &llmmock.Provider{CompleteErr: errors.New("timeout")}
	r := newTestRouter(t, provider)
	sess := newTestSession(t)

	res := r.HandleTurn(context.Background(), sess, "do you sell drills")
	if res.Action != ActionSpeak || res.Text != ApologyLine {
		t.Fatalf("result = %+v, want the apology", res)
	}
	if got := sess.Status(); got != call.StatusActive {
		t.Errorf("status = %q, failed turn must not change the state machine", got)
	}
	if got := sess.FailedAttempts(); got != 1 {
		t.Errorf("failed attempts = %d, want 1", got)
	}
	if got := sess.ActiveAgent(); got != types.DeptReceptionist {
		t.Errorf("active agent = %q, want receptionist", got)
	}
}

func TestRouter_HandleTurn_FailureCeilingEscalates(t *testing.T) {
	provider := &llmmock.Provider{CompleteErr: errors.New("still down")}
	r := newTestRouter(t, provider, escalate.WithFailureCeiling(2))
	sess := newTestSession(t)

	var res *TurnResult
	for i := 0; i < 4; i++ {
		res = r.HandleTurn(context.Background(), sess, "hello?")
		if res.Action == ActionTransfer {
			break
		}
	}
	if res.Action != ActionTransfer {
		t.Fatalf("action = %q, want transfer after repeated failures", res.Action)
	}
	if res.EscalationReason != escalate.ReasonFailureCeiling {
		t.Errorf("reason = %q, want failure ceiling", res.EscalationReason)
	}
}

// blockingProvider parks Complete until released, ignoring cancellation, so
// a test can tear the call down while a turn is still in flight.
type blockingProvider struct {
	entered chan struct{}
	release chan struct{}
	err     error
}

func (p *blockingProvider) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	close(p.entered)
	<-p.release
	if p.err != nil {
		return nil, p.err
	}
	return &llm.CompletionResponse{Content: "Your order shipped yesterday."}, nil
}

func (p *blockingProvider) CountTokens([]types.Message) (int, error) { return 0, nil }

func (p *blockingProvider) Capabilities() types.ModelCapabilities { return types.ModelCapabilities{} }

func TestRouter_HandleTurn_TeardownMidTurn(t *testing.T) {
	run := func(t *testing.T, provider *blockingProvider) {
		engine, err := dialogue.NewEngine(provider, nil)
		if err != nil {
			t.Fatalf("engine: %v", err)
		}
		r, err := New(engine, escalate.New(), dialogue.DefaultPersonas())
		if err != nil {
			t.Fatalf("router: %v", err)
		}
		store := call.NewStore(0)
		sess, err := store.Create("test-call", "+15550100")
		if err != nil {
			t.Fatalf("create session: %v", err)
		}

		done := make(chan *TurnResult, 1)
		go func() { done <- r.HandleTurn(sess.Context(), sess, "where is my order") }()
		<-provider.entered

		// The call ends while the provider call is still running. The
		// transcript snapshot taken here is what the audit recorder sees.
		ended, ok := store.End("test-call")
		if !ok {
			t.Fatal("expected a live session to end")
		}
		lines := len(ended.Transcript())
		failures := ended.FailedAttempts()
		close(provider.release)

		res := <-done
		if res.Action != ActionHangup || res.Text != GoodbyeLine {
			t.Fatalf("result = %+v, want the goodbye hangup", res)
		}
		if got := len(ended.Transcript()); got != lines {
			t.Errorf("transcript grew from %d to %d lines after teardown", lines, got)
		}
		if got := ended.FailedAttempts(); got != failures {
			t.Errorf("failure counter moved from %d to %d after teardown", failures, got)
		}
	}

	t.Run("late reply discarded", func(t *testing.T) {
		run(t, &blockingProvider{entered: make(chan struct{}), release: make(chan struct{})})
	})

	t.Run("cancelled turn discarded", func(t *testing.T) {
		run(t, &blockingProvider{
			entered: make(chan struct{}),
			release: make(chan struct{}),
			err:     context.Canceled,
		})
	})
}

func TestRouter_HandleTurn_TerminalSession(t *testing.T) {
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "should not be consulted"},
	}
	r := newTestRouter(t, provider)
	sess := newTestSession(t)
	sess.Escalate()

	res := r.HandleTurn(context.Background(), sess, "hello again")
	if res.Action != ActionHangup || res.Text != GoodbyeLine {
		t.Fatalf("result = %+v, want the goodbye hangup", res)
	}
	if len(provider.CompleteCalls) != 0 {
		t.Errorf("LLM consulted %d times on a terminal session", len(provider.CompleteCalls))
	}
}

func TestRouter_HandleTurn_SpecialistIgnoresHandoffMarker(t *testing.T) {
	// Hand off first, then have the specialist emit a marker; specialists
	// may not transfer, so the marker is spoken through the normal path
	// without state change. ParseHandoff runs only for the receptionist,
	// so the raw reply is spoken as-is.
	provider := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{Content: "[[handoff:sales]]"},
			{Content: "I think sales can help. Anything else?"},
		},
	}
	r := newTestRouter(t, provider)
	sess := newTestSession(t)

	res := r.HandleTurn(context.Background(), sess, "I'd like to buy a drill")
	if !res.HandedOff || res.Department != types.DeptSales {
		t.Fatalf("first turn = %+v, want hand-off to sales", res)
	}

	res = r.HandleTurn(context.Background(), sess, "actually, about my bill")
	if res.HandedOff {
		t.Fatal("specialist turn reported a hand-off")
	}
	if got := sess.ActiveAgent(); got != types.DeptSales {
		t.Errorf("active agent = %q, want sales", got)
	}
}

func TestNew_Validation(t *testing.T) {
	engine, err := dialogue.NewEngine(&llmmock.Provider{}, nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	t.Run("missing receptionist", func(t *testing.T) {
		personas := dialogue.DefaultPersonas()
		delete(personas, types.DeptReceptionist)
		if _, err := New(engine, escalate.New(), personas); err == nil {
			t.Fatal("expected missing receptionist to be rejected")
		}
	})

	t.Run("missing specialist", func(t *testing.T) {
		personas := dialogue.DefaultPersonas()
		delete(personas, types.DeptAccounts)
		if _, err := New(engine, escalate.New(), personas); err == nil {
			t.Fatal("expected missing specialist to be rejected")
		}
	})

	t.Run("nil collaborators", func(t *testing.T) {
		if _, err := New(nil, escalate.New(), dialogue.DefaultPersonas()); err == nil {
			t.Fatal("expected nil engine to be rejected")
		}
		if _, err := New(engine, nil, dialogue.DefaultPersonas()); err == nil {
			t.Fatal("expected nil policy to be rejected")
		}
	})
}
