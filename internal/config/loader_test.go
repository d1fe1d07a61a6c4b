package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/voxdesk/voxdesk/pkg/types"
)

const minimalYAML = `
server:
  listen_addr: ":8080"
  log_level: info
providers:
  llm:
    - name: openai
      api_key: sk-test
      model: gpt-4o-mini
  tts:
    - name: elevenlabs
      api_key: el-test
`

func TestLoadFromReader(t *testing.T) {
	t.Run("minimal valid config", func(t *testing.T) {
		cfg, err := LoadFromReader(strings.NewReader(minimalYAML))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Server.ListenAddr != ":8080" {
			t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
		}
		if len(cfg.Providers.LLM) != 1 || cfg.Providers.LLM[0].Model != "gpt-4o-mini" {
			t.Errorf("llm providers = %+v", cfg.Providers.LLM)
		}
	})

	t.Run("unknown fields rejected", func(t *testing.T) {
		const withTypo = `
server:
  listen_adress: ":8080"
providers:
  llm:
    - name: mock
  tts:
    - name: mock
`
		if _, err := LoadFromReader(strings.NewReader(withTypo)); err == nil {
			t.Fatal("expected unknown field to be rejected")
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		if _, err := LoadFromReader(strings.NewReader(": not yaml")); err == nil {
			t.Fatal("expected decode error")
		}
	})

	t.Run("api keys expand from environment", func(t *testing.T) {
		t.Setenv("TEST_VOXDESK_KEY", "sk-from-env")
		const withEnv = `
providers:
  llm:
    - name: openai
      api_key: ${TEST_VOXDESK_KEY}
  tts:
    - name: mock
`
		cfg, err := LoadFromReader(strings.NewReader(withEnv))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := cfg.Providers.LLM[0].APIKey; got != "sk-from-env" {
			t.Errorf("api_key = %q, want expanded value", got)
		}
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Providers: ProvidersConfig{
				LLM: []ProviderEntry{{Name: "mock"}},
				TTS: []ProviderEntry{{Name: "mock"}},
			},
		}
	}

	t.Run("valid", func(t *testing.T) {
		if err := Validate(valid()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("bad log level", func(t *testing.T) {
		cfg := valid()
		cfg.Server.LogLevel = "verbose"
		if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "log_level") {
			t.Fatalf("error = %v, want log_level complaint", err)
		}
	})

	t.Run("no providers", func(t *testing.T) {
		cfg := valid()
		cfg.Providers.LLM = nil
		cfg.Providers.TTS = nil
		err := Validate(cfg)
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "providers.llm") || !strings.Contains(err.Error(), "providers.tts") {
			t.Errorf("joined error %q should list both provider kinds", err)
		}
	})

	t.Run("provider without name", func(t *testing.T) {
		cfg := valid()
		cfg.Providers.LLM = []ProviderEntry{{Model: "gpt-4o"}}
		if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "name is required") {
			t.Fatalf("error = %v", err)
		}
	})

	t.Run("incomplete tls", func(t *testing.T) {
		cfg := valid()
		cfg.Server.TLS = &TLSConfig{CertFile: "cert.pem"}
		if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "key_file") {
			t.Fatalf("error = %v", err)
		}
	})

	t.Run("negative tunables", func(t *testing.T) {
		cfg := valid()
		cfg.Dialogue.TurnTimeoutSeconds = -1
		cfg.Speech.CacheTTLMinutes = -5
		err := Validate(cfg)
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "turn_timeout_seconds") || !strings.Contains(err.Error(), "cache_ttl_minutes") {
			t.Errorf("joined error %q should list both fields", err)
		}
	})

	t.Run("invalid persona department", func(t *testing.T) {
		cfg := valid()
		cfg.Personas = []PersonaConfig{{Department: "warehouse"}}
		if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "department") {
			t.Fatalf("error = %v", err)
		}
	})

	t.Run("duplicate persona department", func(t *testing.T) {
		cfg := valid()
		cfg.Personas = []PersonaConfig{
			{Department: types.DeptSales},
			{Department: types.DeptSales},
		}
		if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "duplicate") {
			t.Fatalf("error = %v", err)
		}
	})
}

func TestLoad(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Fatal("expected error for missing file")
		}
	})

	t.Run("round trip from disk", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte(minimalYAML), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Providers.TTS[0].Name != "elevenlabs" {
			t.Errorf("tts provider = %q", cfg.Providers.TTS[0].Name)
		}
	})
}
