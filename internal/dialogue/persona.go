package dialogue

import (
	"fmt"
	"strings"

	"github.com/voxdesk/voxdesk/pkg/types"
)

// Persona is a named conversational role with its own instructions, allowed
// tools, and voice. The Receptionist answers every call and routes it; the
// specialist personas handle one department each.
type Persona struct {
	// Department is the persona's identity and router state.
	Department types.Department

	// SystemPrompt is the instruction block sent to the LLM for every turn
	// this persona handles.
	SystemPrompt string

	// Intro is the short utterance played immediately after a hand-off to
	// this persona, before the next caller turn.
	Intro string

	// AllowedTools names the registry tools offered to the LLM while this
	// persona is active.
	AllowedTools []string

	// VoiceID is the TTS voice for this persona. Empty falls back to the
	// receptionist/default voice.
	VoiceID string
}

// spokenStylePrompt is shared conversational guidance: replies become audio,
// so they must read naturally aloud.
const spokenStylePrompt = `You are speaking on a phone call. Keep replies to one or two short
sentences that sound natural when read aloud. Never use lists, markdown, or
symbols. Say prices exactly as the tool results spell them out in words.`

// handoffInstruction teaches the receptionist the structured hand-off
// marker. Free-text phrases like "connect you to our shipping team" are
// parsed as a fallback, but the marker is the contract.
var handoffInstruction = fmt.Sprintf(`When the caller needs a specific department, reply with a short
sentence telling them you are connecting them, and include the marker
[[handoff:<department>]] at the end of your reply, where <department> is one
of: %s. Use the marker only when you are certain of the department.`,
	joinDepartments())

// DefaultPersonas returns the built-in persona set, one per department.
// Config may override prompts, intros, tools, and voices.
func DefaultPersonas() map[types.Department]Persona {
	return map[types.Department]Persona{
		types.DeptReceptionist: {
			Department: types.DeptReceptionist,
			SystemPrompt: joinPrompt(
				`You are the receptionist for Harbourlight Supply, a mail-order
hardware retailer. Greet callers warmly, find out what they need, and route
them to the right department: sales for product questions and purchases,
shipping for order tracking and delivery, support for product problems, and
accounts for billing and payments. Answer simple questions yourself.`,
				handoffInstruction,
				spokenStylePrompt,
			),
			Intro: "Thank you for calling Harbourlight Supply. How can I help you today?",
		},
		types.DeptSales: {
			Department: types.DeptSales,
			SystemPrompt: joinPrompt(
				`You are a sales specialist for Harbourlight Supply. Help callers
find products, check prices and availability, and decide what to buy. Use the
catalog search tool for any product or price question rather than guessing.`,
				spokenStylePrompt,
			),
			Intro:        "You're through to sales. What can I help you find today?",
			AllowedTools: []string{"search_catalog"},
		},
		types.DeptShipping: {
			Department: types.DeptShipping,
			SystemPrompt: joinPrompt(
				`You are a shipping specialist for Harbourlight Supply. Help callers
track orders and answer delivery questions. Use the order tracking tool for
any order status question; ask for the order number if you don't have it. If
an order cannot be found, ask the caller to double-check the number.`,
				spokenStylePrompt,
			),
			Intro:        "You're through to shipping. Do you have an order number for me?",
			AllowedTools: []string{"track_order"},
		},
		types.DeptSupport: {
			Department: types.DeptSupport,
			SystemPrompt: joinPrompt(
				`You are a product support specialist for Harbourlight Supply. Help
callers troubleshoot problems with products they have bought. Ask one
question at a time and keep instructions simple enough to follow by ear.`,
				spokenStylePrompt,
			),
			Intro:        "You're through to product support. What seems to be the trouble?",
			AllowedTools: []string{"search_catalog"},
		},
		types.DeptAccounts: {
			Department: types.DeptAccounts,
			SystemPrompt: joinPrompt(
				`You are an accounts specialist for Harbourlight Supply. Help callers
with billing, invoices, and payment questions. Use the order tracking tool to
confirm order totals. Never ask for full card numbers over the phone.`,
				spokenStylePrompt,
			),
			Intro:        "You're through to accounts. How can I help with your billing?",
			AllowedTools: []string{"track_order"},
		},
	}
}

func joinPrompt(parts ...string) string {
	return strings.Join(parts, "\n\n")
}

func joinDepartments() string {
	names := make([]string, len(types.Specialists))
	for i, d := range types.Specialists {
		names[i] = string(d)
	}
	return strings.Join(names, ", ")
}
