// Package escalate decides when a call should leave AI handling and be
// transferred to a human agent.
//
// The policy is deterministic by design: an explicit human-request in the
// caller's words always escalates, hard ceilings on turn count and failed
// attempts convert a degraded call into a hand-off, and nothing else does.
// A sentiment-based signal can be layered on as a clearly-labelled optional
// extension, but it may only add escalations — it can never veto an explicit
// request.
//
// Because the utterance arrives from a speech recognizer, lexicon words are
// matched with phonetic tolerance (Double Metaphone plus Jaro-Winkler), so
// "hewman" and "aygent" still count as asking for a human.
package escalate

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	// defaultTurnCeiling is the number of caller turns after which a long,
	// unresolved conversation escalates.
	defaultTurnCeiling = 15

	// defaultFailureCeiling is the number of failed turns after which the
	// degraded experience escalates.
	defaultFailureCeiling = 3

	// phoneticThreshold is the minimum Jaro-Winkler score required for a
	// phonetically-matched lexicon word to be accepted.
	phoneticThreshold = 0.84
)

// defaultLexicon lists words and phrases that count as an explicit request
// for a human. Single words are matched per-token with phonetic tolerance;
// entries containing a space are matched as substrings of the normalized
// utterance.
var defaultLexicon = []string{
	"human",
	"agent",
	"transfer",
	"representative",
	"operator",
	"speak to a person",
	"talk to a person",
	"real person",
	"speak to someone",
	"talk to someone",
}

// SessionState is the slice of per-call state the policy reads. Implemented
// by *call.Session.
type SessionState interface {
	// EscalationRequested reports whether the caller explicitly asked for a
	// human on a prior turn.
	EscalationRequested() bool

	// TurnCount is the number of caller turns processed so far.
	TurnCount() int

	// FailedAttempts is the number of failed turns so far.
	FailedAttempts() int
}

// Reason identifies which rule triggered an escalation decision.
type Reason string

const (
	// ReasonNone means the call stays with the AI.
	ReasonNone Reason = ""

	// ReasonExplicitRequest means the utterance matched the human-request
	// lexicon.
	ReasonExplicitRequest Reason = "explicit_request"

	// ReasonSticky means a prior turn already latched an explicit request.
	ReasonSticky Reason = "prior_request"

	// ReasonTurnCeiling means the conversation exceeded the turn ceiling.
	ReasonTurnCeiling Reason = "turn_ceiling"

	// ReasonFailureCeiling means repeated turn failures exceeded the ceiling.
	ReasonFailureCeiling Reason = "failure_ceiling"

	// ReasonSentiment means the optional sentiment extension fired.
	ReasonSentiment Reason = "sentiment"
)

// Option configures a [Policy] during construction.
type Option func(*Policy)

// WithTurnCeiling overrides the turn ceiling. Values ≤ 0 keep the default.
func WithTurnCeiling(n int) Option {
	return func(p *Policy) {
		if n > 0 {
			p.turnCeiling = n
		}
	}
}

// WithFailureCeiling overrides the failed-attempt ceiling. Values ≤ 0 keep
// the default.
func WithFailureCeiling(n int) Option {
	return func(p *Policy) {
		if n > 0 {
			p.failureCeiling = n
		}
	}
}

// WithLexicon replaces the human-request lexicon. An empty slice keeps the
// default.
func WithLexicon(words []string) Option {
	return func(p *Policy) {
		if len(words) > 0 {
			p.lexicon = words
		}
	}
}

// WithSentimentSignal installs the optional softer escalation signal. fn is
// consulted only after every deterministic rule has declined; it may add an
// escalation but can never suppress one. This is the clearly-labelled
// extension point for sentiment- or LLM-judged escalation.
func WithSentimentSignal(fn func(utterance string) bool) Option {
	return func(p *Policy) { p.sentiment = fn }
}

// Policy evaluates the escalation rules. It is read-only after construction
// and safe for concurrent use.
type Policy struct {
	lexicon        []string
	turnCeiling    int
	failureCeiling int
	sentiment      func(string) bool
}

// New creates a [Policy] with the default lexicon and ceilings, adjusted by
// the supplied options.
func New(opts ...Option) *Policy {
	p := &Policy{
		lexicon:        defaultLexicon,
		turnCeiling:    defaultTurnCeiling,
		failureCeiling: defaultFailureCeiling,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Decide reports whether the call should be handed to a human, and which
// rule made the decision. Rules are evaluated in priority order; the first
// match wins.
func (p *Policy) Decide(state SessionState, utterance string) (bool, Reason) {
	if p.MatchesLexicon(utterance) {
		return true, ReasonExplicitRequest
	}
	if state.EscalationRequested() {
		return true, ReasonSticky
	}
	if state.TurnCount() > p.turnCeiling {
		return true, ReasonTurnCeiling
	}
	if state.FailedAttempts() > p.failureCeiling {
		return true, ReasonFailureCeiling
	}
	if p.sentiment != nil && p.sentiment(utterance) {
		return true, ReasonSentiment
	}
	return false, ReasonNone
}

// MatchesLexicon reports whether utterance contains an explicit request for
// a human according to the configured lexicon.
func (p *Policy) MatchesLexicon(utterance string) bool {
	normalized := normalize(utterance)
	if normalized == "" {
		return false
	}
	tokens := strings.Fields(normalized)

	for _, entry := range p.lexicon {
		entry = strings.ToLower(entry)
		if strings.Contains(entry, " ") {
			if strings.Contains(normalized, entry) {
				return true
			}
			continue
		}
		for _, tok := range tokens {
			if tokenMatches(tok, entry) {
				return true
			}
		}
	}
	return false
}

// tokenMatches reports whether a spoken token matches a lexicon word, either
// exactly or through phonetic overlap backed by string similarity.
func tokenMatches(token, word string) bool {
	if token == word {
		return true
	}
	tp, ts := matchr.DoubleMetaphone(token)
	wp, ws := matchr.DoubleMetaphone(word)
	if tp == "" || wp == "" {
		return false
	}
	if tp != wp && tp != ws && ts != wp && (ts == "" || ts != ws) {
		return false
	}
	return matchr.JaroWinkler(token, word, false) >= phoneticThreshold
}

// normalize lowercases the utterance and strips punctuation so that token
// and substring matching see plain words.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ', r == '\'':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
