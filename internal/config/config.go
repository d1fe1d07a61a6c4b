// Package config provides the configuration schema and loader for the
// VoxDesk call orchestrator.
package config

import "github.com/voxdesk/voxdesk/pkg/types"

// LogLevel controls log verbosity for the VoxDesk server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for VoxDesk. It is typically
// loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Dialogue   DialogueConfig   `yaml:"dialogue"`
	Escalation EscalationConfig `yaml:"escalation"`
	Personas   []PersonaConfig  `yaml:"personas"`
	Speech     SpeechConfig     `yaml:"speech"`
	Tools      ToolsConfig      `yaml:"tools"`
	Audit      AuditConfig      `yaml:"audit"`
}

// ServerConfig holds network and logging settings for the VoxDesk server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// WebhookSecret, when set, is required in the X-Voxdesk-Secret header of
	// every telephony webhook request.
	WebhookSecret string `yaml:"webhook_secret"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares the LLM and TTS backends. The first entry of each
// list is the primary; the rest are failover fallbacks in order.
type ProvidersConfig struct {
	LLM []ProviderEntry `yaml:"llm"`
	TTS []ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds.
type ProviderEntry struct {
	// Name selects the provider implementation (e.g., "openai", "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	// Supports ${ENV_VAR} expansion.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint. Leave empty to
	// use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// DialogueConfig tunes the turn engine.
type DialogueConfig struct {
	// TurnTimeoutSeconds bounds each LLM call within a turn. 0 uses the
	// built-in default.
	TurnTimeoutSeconds int `yaml:"turn_timeout_seconds"`

	// HistoryWindow is the maximum number of conversation messages kept for
	// prompt construction. 0 uses the built-in default.
	HistoryWindow int `yaml:"history_window"`
}

// EscalationConfig tunes the human-escalation policy.
type EscalationConfig struct {
	// TurnCeiling is the caller-turn count after which the call escalates.
	// 0 uses the built-in default.
	TurnCeiling int `yaml:"turn_ceiling"`

	// FailureCeiling is the failed-turn count after which the call
	// escalates. 0 uses the built-in default.
	FailureCeiling int `yaml:"failure_ceiling"`

	// Lexicon replaces the built-in human-request word list when non-empty.
	Lexicon []string `yaml:"lexicon"`
}

// PersonaConfig overrides a built-in department persona. Omitted fields keep
// the built-in values.
type PersonaConfig struct {
	// Department names the persona being overridden.
	Department types.Department `yaml:"department"`

	// SystemPrompt replaces the persona's LLM instructions.
	SystemPrompt string `yaml:"system_prompt"`

	// Intro replaces the line spoken when this persona takes the call.
	Intro string `yaml:"intro"`

	// Tools replaces the persona's allowed tool list.
	Tools []string `yaml:"tools"`

	// Voice configures the persona's TTS voice.
	Voice VoiceConfig `yaml:"voice"`
}

// VoiceConfig specifies the TTS voice for a persona.
type VoiceConfig struct {
	// Provider is the TTS provider name (e.g., "elevenlabs", "coqui").
	Provider string `yaml:"provider"`

	// VoiceID is the provider-specific voice identifier.
	VoiceID string `yaml:"voice_id"`
}

// SpeechConfig tunes the synthesis cache.
type SpeechConfig struct {
	// CacheTTLMinutes is how long on-demand renders stay cached. 0 uses the
	// built-in default.
	CacheTTLMinutes int `yaml:"cache_ttl_minutes"`

	// RenderTimeoutSeconds bounds each synthesis call. 0 uses the built-in
	// default.
	RenderTimeoutSeconds int `yaml:"render_timeout_seconds"`

	// Preseed lists extra lines rendered at startup in every persona voice,
	// in addition to the built-in canned lines.
	Preseed []string `yaml:"preseed"`
}

// ToolsConfig configures the business tool backends.
type ToolsConfig struct {
	Catalog CatalogConfig `yaml:"catalog"`
	Orders  OrdersConfig  `yaml:"orders"`
}

// CatalogConfig configures the product catalog search backend.
type CatalogConfig struct {
	// PostgresDSN is the connection string for the catalog database. When
	// empty, an in-memory demo catalog is used.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// OrdersConfig configures the order management client.
type OrdersConfig struct {
	// BaseURL is the order service endpoint. When empty, the track_order
	// tool is not registered.
	BaseURL string `yaml:"base_url"`

	// TimeoutSeconds bounds each order lookup. 0 uses the built-in default.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// AuditConfig configures call transcript persistence.
type AuditConfig struct {
	// PostgresDSN is the connection string for the transcript store. When
	// empty, transcripts are written to the structured log instead.
	PostgresDSN string `yaml:"postgres_dsn"`
}
