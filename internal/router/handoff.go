package router

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/voxdesk/voxdesk/pkg/types"
)

// handoffMarker matches the structured marker the receptionist is prompted
// to emit, e.g. "[[handoff:shipping]]". The department name is matched
// loosely and validated afterwards.
var handoffMarker = regexp.MustCompile(`(?i)\[\[\s*handoff\s*:\s*([a-z]+)\s*\]\]`)

// proseCues are receptionist phrasings that signal a hand-off when the model
// forgets the marker. A cue only counts when a department name (or something
// phonetically close to one) appears in the same reply.
var proseCues = []string{
	"connect you",
	"transfer you",
	"put you through",
	"hand you over",
	"passing you",
}

// deptSimilarityThreshold is the minimum Jaro-Winkler score for a prose word
// to count as a department name.
const deptSimilarityThreshold = 0.88

// wordPunct is trimmed off prose tokens before department matching.
const wordPunct = ".,!?;:'\""

// ParseHandoff inspects a receptionist reply for a hand-off intent. It
// returns the target department, the reply with any marker stripped, and
// whether a hand-off was detected.
//
// The structured marker always wins. When no marker is present, prose like
// "let me connect you to our shipping team" is recognised as a fallback, with
// phonetic tolerance on the department word. A marker naming an unknown
// department is stripped and ignored.
func ParseHandoff(reply string) (types.Department, string, bool) {
	if m := handoffMarker.FindStringSubmatch(reply); m != nil {
		cleaned := strings.TrimSpace(handoffMarker.ReplaceAllString(reply, ""))
		if dept, ok := matchDepartment(strings.ToLower(m[1])); ok {
			return dept, cleaned, true
		}
		return "", cleaned, false
	}

	lower := strings.ToLower(reply)
	cued := false
	for _, cue := range proseCues {
		if strings.Contains(lower, cue) {
			cued = true
			break
		}
	}
	if !cued {
		return "", strings.TrimSpace(reply), false
	}

	words := strings.Fields(lower)
	for i, word := range words {
		word = strings.Trim(word, wordPunct)
		if dept, ok := exactDepartment(word); ok {
			return dept, strings.TrimSpace(reply), true
		}
		// Phonetic tolerance absorbs typos and ASR slips ("suport"), but
		// ordinary English words can sound close to a department name
		// ("shopping" vs "shipping"). A fuzzy match only counts when the
		// word sits where a hand-off target would.
		if !handoffTargetPosition(words, i) {
			continue
		}
		if dept, ok := phoneticDepartment(word); ok {
			return dept, strings.TrimSpace(reply), true
		}
	}
	return "", strings.TrimSpace(reply), false
}

// matchDepartment resolves a single word to a specialist department, exactly
// or phonetically. Used for the structured marker, where the position already
// declares hand-off intent.
func matchDepartment(word string) (types.Department, bool) {
	if dept, ok := exactDepartment(word); ok {
		return dept, true
	}
	return phoneticDepartment(word)
}

func exactDepartment(word string) (types.Department, bool) {
	for _, d := range types.Specialists {
		if word == string(d) {
			return d, true
		}
	}
	return "", false
}

// phoneticDepartment resolves a misspelled or misheard department name. The
// word must share a Double Metaphone encoding with the department and sit
// above the similarity threshold; either test alone lets through too many
// unrelated words.
func phoneticDepartment(word string) (types.Department, bool) {
	wp, ws := matchr.DoubleMetaphone(word)
	if wp == "" {
		return "", false
	}
	for _, d := range types.Specialists {
		dp, ds := matchr.DoubleMetaphone(string(d))
		if wp != dp && wp != ds && ws != dp && (ws == "" || ws != ds) {
			continue
		}
		if matchr.JaroWinkler(word, string(d), false) >= deptSimilarityThreshold {
			return d, true
		}
	}
	return "", false
}

// handoffTargetPosition reports whether words[i] sits where a hand-off target
// is named: right after "our"/"the"/"to", or right before "team" or
// "department".
func handoffTargetPosition(words []string, i int) bool {
	if i > 0 {
		switch strings.Trim(words[i-1], wordPunct) {
		case "our", "the", "to":
			return true
		}
	}
	if i+1 < len(words) {
		switch strings.Trim(words[i+1], wordPunct) {
		case "team", "department":
			return true
		}
	}
	return false
}
