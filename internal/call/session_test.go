package call

import (
	"errors"
	"testing"

	"github.com/voxdesk/voxdesk/pkg/types"
)

func TestSession_HandOff(t *testing.T) {
	t.Run("receptionist to specialist clears history", func(t *testing.T) {
		s := newSession("c1", "+15550100", 0)
		s.AppendCaller("I need to track my order")
		s.AppendAgent("Let me connect you.")

		if err := s.HandOff(types.DeptShipping); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := s.ActiveAgent(); got != types.DeptShipping {
			t.Errorf("active agent = %q, want %q", got, types.DeptShipping)
		}
		if len(s.History()) != 0 {
			t.Errorf("history should be cleared on hand-off, got %d messages", len(s.History()))
		}
		// The transcript keeps everything spoken before the hand-off.
		if len(s.Transcript()) != 2 {
			t.Errorf("transcript should survive hand-off, got %d entries", len(s.Transcript()))
		}
	})

	t.Run("specialist cannot hand off again", func(t *testing.T) {
		s := newSession("c1", "", 0)
		if err := s.HandOff(types.DeptSales); err != nil {
			t.Fatalf("first hand-off: %v", err)
		}
		if err := s.HandOff(types.DeptSupport); err == nil {
			t.Fatal("expected specialist-to-specialist hand-off to be rejected")
		}
		if got := s.ActiveAgent(); got != types.DeptSales {
			t.Errorf("active agent changed on rejected hand-off: %q", got)
		}
	})

	t.Run("receptionist is not a hand-off target", func(t *testing.T) {
		s := newSession("c1", "", 0)
		if err := s.HandOff(types.DeptReceptionist); err == nil {
			t.Fatal("expected hand-off to receptionist to be rejected")
		}
	})

	t.Run("terminal session rejects hand-off", func(t *testing.T) {
		s := newSession("c1", "", 0)
		s.Escalate()
		if err := s.HandOff(types.DeptSales); !errors.Is(err, ErrTerminal) {
			t.Fatalf("error = %v, want ErrTerminal", err)
		}
	})
}

func TestSession_EscalatedIsFinal(t *testing.T) {
	s := newSession("c1", "", 0)
	s.Escalate()
	if got := s.Status(); got != StatusEscalated {
		t.Fatalf("status = %q, want %q", got, StatusEscalated)
	}

	// Teardown must not clobber the escalated status.
	s.end()
	if got := s.Status(); got != StatusEscalated {
		t.Errorf("status after end = %q, want %q", got, StatusEscalated)
	}

	// Double escalation is a no-op.
	s.Escalate()
	if got := s.Status(); got != StatusEscalated {
		t.Errorf("status after repeat escalate = %q, want %q", got, StatusEscalated)
	}
}

func TestSession_EndCancelsContext(t *testing.T) {
	s := newSession("c1", "", 0)
	ctx := s.Context()
	select {
	case <-ctx.Done():
		t.Fatal("context cancelled before end")
	default:
	}

	s.end()
	select {
	case <-ctx.Done():
	default:
		t.Fatal("context not cancelled after end")
	}
	if got := s.Status(); got != StatusEnded {
		t.Errorf("status = %q, want %q", got, StatusEnded)
	}
}

func TestSession_HistoryWindow(t *testing.T) {
	s := newSession("c1", "", 4)
	for i := 0; i < 6; i++ {
		s.AppendCaller("caller line")
		s.AppendAgent("agent line")
	}

	h := s.History()
	if len(h) != 4 {
		t.Fatalf("history length = %d, want 4", len(h))
	}
	// The newest messages survive pruning.
	if h[len(h)-1].Role != types.RoleAssistant {
		t.Errorf("last history role = %q, want %q", h[len(h)-1].Role, types.RoleAssistant)
	}

	// The transcript is never pruned.
	if len(s.Transcript()) != 12 {
		t.Errorf("transcript length = %d, want 12", len(s.Transcript()))
	}
}

func TestSession_RecordSpokenSkipsHistory(t *testing.T) {
	s := newSession("c1", "", 0)
	s.RecordSpoken("Thank you for calling Harbourlight Supply.")

	if len(s.History()) != 0 {
		t.Errorf("canned line leaked into history: %d messages", len(s.History()))
	}
	tr := s.Transcript()
	if len(tr) != 1 {
		t.Fatalf("transcript length = %d, want 1", len(tr))
	}
	if tr[0].Speaker != types.SpeakerAgent {
		t.Errorf("speaker = %q, want %q", tr[0].Speaker, types.SpeakerAgent)
	}
}

func TestSession_Counters(t *testing.T) {
	s := newSession("c1", "", 0)
	if got := s.BeginTurn(); got != 1 {
		t.Errorf("first turn = %d, want 1", got)
	}
	if got := s.BeginTurn(); got != 2 {
		t.Errorf("second turn = %d, want 2", got)
	}
	if got := s.RecordFailure(); got != 1 {
		t.Errorf("first failure = %d, want 1", got)
	}
	if s.EscalationRequested() {
		t.Error("escalation should not be requested yet")
	}
	s.RequestEscalation()
	if !s.EscalationRequested() {
		t.Error("escalation request did not latch")
	}
}

func TestStore(t *testing.T) {
	t.Run("create and get", func(t *testing.T) {
		st := NewStore(0)
		s, err := st.Create("c1", "+15550100")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if s.ID != "c1" || s.CallerNumber != "+15550100" {
			t.Errorf("session identity = (%q, %q)", s.ID, s.CallerNumber)
		}
		got, err := st.Get("c1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got != s {
			t.Error("Get returned a different session")
		}
		if st.Len() != 1 {
			t.Errorf("Len = %d, want 1", st.Len())
		}
	})

	t.Run("duplicate create", func(t *testing.T) {
		st := NewStore(0)
		if _, err := st.Create("c1", ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := st.Create("c1", ""); !errors.Is(err, ErrDuplicateSession) {
			t.Fatalf("error = %v, want ErrDuplicateSession", err)
		}
	})

	t.Run("get unknown", func(t *testing.T) {
		st := NewStore(0)
		if _, err := st.Get("nope"); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("error = %v, want ErrSessionNotFound", err)
		}
	})

	t.Run("end returns terminal session", func(t *testing.T) {
		st := NewStore(0)
		s, _ := st.Create("c1", "")
		s.AppendCaller("hello")

		ended, ok := st.End("c1")
		if !ok {
			t.Fatal("End returned ok=false for live session")
		}
		if ended != s {
			t.Error("End returned a different session")
		}
		if got := ended.Status(); got != StatusEnded {
			t.Errorf("status = %q, want %q", got, StatusEnded)
		}
		if _, err := st.Get("c1"); !errors.Is(err, ErrSessionNotFound) {
			t.Error("session still retrievable after End")
		}

		// Repeated end events are idempotent.
		if _, ok := st.End("c1"); ok {
			t.Error("second End reported ok=true")
		}
	})
}
