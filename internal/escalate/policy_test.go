package escalate

import "testing"

// fakeState is a minimal SessionState for driving the policy directly.
type fakeState struct {
	requested bool
	turns     int
	failures  int
}

func (f *fakeState) EscalationRequested() bool { return f.requested }
func (f *fakeState) TurnCount() int            { return f.turns }
func (f *fakeState) FailedAttempts() int       { return f.failures }

func TestPolicy_Decide(t *testing.T) {
	tests := []struct {
		name       string
		state      fakeState
		utterance  string
		wantEsc    bool
		wantReason Reason
	}{
		{
			name:       "ordinary turn stays with the AI",
			state:      fakeState{turns: 3},
			utterance:  "do you have cordless drills in stock",
			wantEsc:    false,
			wantReason: ReasonNone,
		},
		{
			name:       "explicit human request",
			state:      fakeState{turns: 1},
			utterance:  "I want to talk to a human",
			wantEsc:    true,
			wantReason: ReasonExplicitRequest,
		},
		{
			name:       "phrase entry matches as substring",
			state:      fakeState{turns: 1},
			utterance:  "can I speak to a person please",
			wantEsc:    true,
			wantReason: ReasonExplicitRequest,
		},
		{
			name:       "sticky request from a prior turn",
			state:      fakeState{requested: true, turns: 5},
			utterance:  "okay fine",
			wantEsc:    true,
			wantReason: ReasonSticky,
		},
		{
			name:       "turn ceiling",
			state:      fakeState{turns: 16},
			utterance:  "and another thing",
			wantEsc:    true,
			wantReason: ReasonTurnCeiling,
		},
		{
			name:       "turn count at ceiling does not fire",
			state:      fakeState{turns: 15},
			utterance:  "and another thing",
			wantEsc:    false,
			wantReason: ReasonNone,
		},
		{
			name:       "failure ceiling",
			state:      fakeState{turns: 4, failures: 4},
			utterance:  "hello?",
			wantEsc:    true,
			wantReason: ReasonFailureCeiling,
		},
		{
			name:       "explicit request beats the ceilings",
			state:      fakeState{turns: 30, failures: 10},
			utterance:  "give me an agent",
			wantEsc:    true,
			wantReason: ReasonExplicitRequest,
		},
	}

	p := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			esc, reason := p.Decide(&tt.state, tt.utterance)
			if esc != tt.wantEsc || reason != tt.wantReason {
				t.Errorf("Decide() = (%v, %q), want (%v, %q)", esc, reason, tt.wantEsc, tt.wantReason)
			}
		})
	}
}

func TestPolicy_MatchesLexicon_Phonetic(t *testing.T) {
	p := New()

	// Transcription slips that still sound like the lexicon word.
	for _, utterance := range []string{
		"let me talk to a humen",
		"I need an aygent",
		"connect me to an operater",
	} {
		if !p.MatchesLexicon(utterance) {
			t.Errorf("MatchesLexicon(%q) = false, want true", utterance)
		}
	}

	// Phonetically unrelated words must not trip the lexicon.
	for _, utterance := range []string{
		"do you sell hammers",
		"my tracking number is nine four two",
		"the paint is peeling",
	} {
		if p.MatchesLexicon(utterance) {
			t.Errorf("MatchesLexicon(%q) = true, want false", utterance)
		}
	}
}

func TestPolicy_MatchesLexicon_Punctuation(t *testing.T) {
	p := New()
	if !p.MatchesLexicon("Human! Now!!") {
		t.Error("punctuation should not block a lexicon match")
	}
	if p.MatchesLexicon("") {
		t.Error("empty utterance matched the lexicon")
	}
}

func TestPolicy_Options(t *testing.T) {
	t.Run("custom ceilings", func(t *testing.T) {
		p := New(WithTurnCeiling(2), WithFailureCeiling(1))
		if esc, reason := p.Decide(&fakeState{turns: 3}, "hello"); !esc || reason != ReasonTurnCeiling {
			t.Errorf("Decide() = (%v, %q), want turn ceiling", esc, reason)
		}
		if esc, reason := p.Decide(&fakeState{turns: 1, failures: 2}, "hello"); !esc || reason != ReasonFailureCeiling {
			t.Errorf("Decide() = (%v, %q), want failure ceiling", esc, reason)
		}
	})

	t.Run("custom lexicon replaces default", func(t *testing.T) {
		p := New(WithLexicon([]string{"supervisor"}))
		if !p.MatchesLexicon("get me your supervisor") {
			t.Error("custom lexicon word did not match")
		}
		if p.MatchesLexicon("I want to talk to a human") {
			t.Error("default lexicon still active after replacement")
		}
	})

	t.Run("sentiment signal only adds", func(t *testing.T) {
		p := New(WithSentimentSignal(func(u string) bool { return u == "this is hopeless" }))
		if esc, reason := p.Decide(&fakeState{turns: 1}, "this is hopeless"); !esc || reason != ReasonSentiment {
			t.Errorf("Decide() = (%v, %q), want sentiment", esc, reason)
		}
		// An explicit request still wins over the sentiment signal.
		if _, reason := p.Decide(&fakeState{turns: 1}, "human please"); reason != ReasonExplicitRequest {
			t.Errorf("reason = %q, want explicit request", reason)
		}
	})
}
