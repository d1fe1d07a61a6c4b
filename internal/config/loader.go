package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind. Used by
// [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "mock"},
	"tts": {"elevenlabs", "coqui", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate]. ${ENV_VAR} references in api_key fields are expanded from the
// environment.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	expandSecrets(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandSecrets resolves ${ENV_VAR} references in provider API keys so that
// credentials can stay out of the config file.
func expandSecrets(cfg *Config) {
	for i := range cfg.Providers.LLM {
		cfg.Providers.LLM[i].APIKey = os.ExpandEnv(cfg.Providers.LLM[i].APIKey)
	}
	for i := range cfg.Providers.TTS {
		cfg.Providers.TTS[i].APIKey = os.ExpandEnv(cfg.Providers.TTS[i].APIKey)
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	if len(cfg.Providers.LLM) == 0 {
		errs = append(errs, errors.New("providers.llm must list at least one provider"))
	}
	for i, p := range cfg.Providers.LLM {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm[%d].name is required", i))
			continue
		}
		warnUnknownProvider("llm", p.Name)
	}
	if len(cfg.Providers.TTS) == 0 {
		errs = append(errs, errors.New("providers.tts must list at least one provider"))
	}
	for i, p := range cfg.Providers.TTS {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("providers.tts[%d].name is required", i))
			continue
		}
		warnUnknownProvider("tts", p.Name)
	}

	if cfg.Dialogue.TurnTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("dialogue.turn_timeout_seconds %d must not be negative", cfg.Dialogue.TurnTimeoutSeconds))
	}
	if cfg.Dialogue.HistoryWindow < 0 {
		errs = append(errs, fmt.Errorf("dialogue.history_window %d must not be negative", cfg.Dialogue.HistoryWindow))
	}
	if cfg.Escalation.TurnCeiling < 0 {
		errs = append(errs, fmt.Errorf("escalation.turn_ceiling %d must not be negative", cfg.Escalation.TurnCeiling))
	}
	if cfg.Escalation.FailureCeiling < 0 {
		errs = append(errs, fmt.Errorf("escalation.failure_ceiling %d must not be negative", cfg.Escalation.FailureCeiling))
	}

	seen := make(map[string]int, len(cfg.Personas))
	for i, p := range cfg.Personas {
		prefix := fmt.Sprintf("personas[%d]", i)
		if !p.Department.IsValid() {
			errs = append(errs, fmt.Errorf("%s.department %q is invalid", prefix, p.Department))
			continue
		}
		if prev, ok := seen[string(p.Department)]; ok {
			errs = append(errs, fmt.Errorf("%s.department %q is a duplicate of personas[%d]", prefix, p.Department, prev))
		}
		seen[string(p.Department)] = i

		if p.Voice.Provider != "" && len(cfg.Providers.TTS) > 0 && p.Voice.Provider != cfg.Providers.TTS[0].Name {
			slog.Warn("persona voice provider does not match primary TTS provider",
				"department", string(p.Department),
				"voice_provider", p.Voice.Provider,
				"tts_provider", cfg.Providers.TTS[0].Name,
			)
		}
	}

	if cfg.Speech.CacheTTLMinutes < 0 {
		errs = append(errs, fmt.Errorf("speech.cache_ttl_minutes %d must not be negative", cfg.Speech.CacheTTLMinutes))
	}
	if cfg.Speech.RenderTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("speech.render_timeout_seconds %d must not be negative", cfg.Speech.RenderTimeoutSeconds))
	}
	if cfg.Tools.Orders.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("tools.orders.timeout_seconds %d must not be negative", cfg.Tools.Orders.TimeoutSeconds))
	}

	if cfg.Audit.PostgresDSN == "" {
		slog.Warn("audit.postgres_dsn is empty; transcripts will only be written to the log")
	}

	return errors.Join(errs...)
}

// warnUnknownProvider logs a warning if name is not in the
// [ValidProviderNames] list for the given kind.
func warnUnknownProvider(kind, name string) {
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
