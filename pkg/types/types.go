// Package types defines the shared types used across all VoxDesk packages.
//
// These types form the lingua franca between the LLM and TTS providers, the
// dialogue engine, the agent router, and the call session store. Each package
// defines its own domain types; cross-cutting data structures live here to
// avoid circular imports.
package types

import "time"

// Department identifies one of the conversational personas a call can be
// handled by. Receptionist answers every call; the remaining departments are
// reached through a hand-off.
type Department string

const (
	DeptReceptionist Department = "receptionist"
	DeptSales        Department = "sales"
	DeptShipping     Department = "shipping"
	DeptSupport      Department = "support"
	DeptAccounts     Department = "accounts"
)

// Specialists lists every department a Receptionist hand-off may target,
// in a stable order suitable for prompts and config validation.
var Specialists = []Department{DeptSales, DeptShipping, DeptSupport, DeptAccounts}

// IsSpecialist reports whether d is a hand-off target (i.e. any department
// other than the receptionist).
func (d Department) IsSpecialist() bool {
	for _, s := range Specialists {
		if d == s {
			return true
		}
	}
	return false
}

// IsValid reports whether d names a known department.
func (d Department) IsValid() bool {
	return d == DeptReceptionist || d.IsSpecialist()
}

// Message roles, following the OpenAI chat convention every supported
// provider understands.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of [RoleSystem], [RoleUser], [RoleAssistant], or [RoleTool].
	Role string

	// Content is the text content of the message.
	Content string

	// Name is an optional participant name.
	Name string

	// ToolCalls contains any tool invocations requested by the assistant.
	ToolCalls []ToolCall

	// ToolCallID is set when Role is "tool", identifying which tool call this
	// message responds to.
	ToolCallID string
}

// ToolCall represents a tool/function invocation requested by the LLM.
type ToolCall struct {
	// ID is the unique identifier for this tool call (provider-assigned).
	ID string

	// Name is the tool/function name.
	Name string

	// Arguments is the JSON-encoded arguments string.
	Arguments string
}

// ToolDefinition describes a tool that can be offered to an LLM.
type ToolDefinition struct {
	// Name is the tool's unique identifier.
	Name string

	// Description explains what the tool does (included in LLM prompts).
	Description string

	// Parameters is the JSON Schema describing the tool's input parameters.
	Parameters map[string]any
}

// VoiceProfile describes a TTS voice configuration for a department persona.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Metadata holds provider-specific voice attributes (gender, accent, etc.).
	Metadata map[string]string
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one
	// completion.
	MaxOutputTokens int

	// SupportsToolCalling indicates native function/tool calling support.
	SupportsToolCalling bool
}

// Speaker identifies who produced a transcript entry.
type Speaker string

const (
	// SpeakerCaller marks entries spoken by the person on the phone.
	SpeakerCaller Speaker = "caller"

	// SpeakerAgent marks entries spoken by an AI persona.
	SpeakerAgent Speaker = "agent"
)

// TranscriptEntry is one spoken line in the whole-call transcript. Unlike the
// conversation history fed to the LLM, the transcript spans the entire call —
// it survives department hand-offs and is handed to the audit recorder when
// the call ends.
type TranscriptEntry struct {
	// Timestamp is when the line was recorded.
	Timestamp time.Time

	// Speaker is who spoke the line.
	Speaker Speaker

	// Department is the persona active when the line was recorded.
	Department Department

	// Text is the spoken content.
	Text string
}
