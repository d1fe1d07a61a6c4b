// Command voxdesk is the main entry point for the VoxDesk call orchestrator.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/voxdesk/voxdesk/internal/audit"
	"github.com/voxdesk/voxdesk/internal/call"
	"github.com/voxdesk/voxdesk/internal/config"
	"github.com/voxdesk/voxdesk/internal/dialogue"
	"github.com/voxdesk/voxdesk/internal/escalate"
	"github.com/voxdesk/voxdesk/internal/health"
	"github.com/voxdesk/voxdesk/internal/observe"
	"github.com/voxdesk/voxdesk/internal/resilience"
	"github.com/voxdesk/voxdesk/internal/router"
	"github.com/voxdesk/voxdesk/internal/speech"
	"github.com/voxdesk/voxdesk/internal/tools"
	"github.com/voxdesk/voxdesk/internal/tools/catalog"
	"github.com/voxdesk/voxdesk/internal/tools/orders"
	"github.com/voxdesk/voxdesk/internal/webhook"
	"github.com/voxdesk/voxdesk/pkg/provider/llm"
	"github.com/voxdesk/voxdesk/pkg/provider/llm/anyllm"
	llmmock "github.com/voxdesk/voxdesk/pkg/provider/llm/mock"
	oaillm "github.com/voxdesk/voxdesk/pkg/provider/llm/openai"
	"github.com/voxdesk/voxdesk/pkg/provider/tts"
	"github.com/voxdesk/voxdesk/pkg/provider/tts/coqui"
	"github.com/voxdesk/voxdesk/pkg/provider/tts/elevenlabs"
	ttsmock "github.com/voxdesk/voxdesk/pkg/provider/tts/mock"
	"github.com/voxdesk/voxdesk/pkg/types"
)

// version is stamped by the release build via -ldflags.
var version = "dev"

const (
	defaultListenAddr = ":8080"
	shutdownTimeout   = 15 * time.Second
	prewarmTimeout    = 30 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// .env is optional; config ${ENV_VAR} expansion picks up anything loaded.
	_ = godotenv.Load()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxdesk: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxdesk: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	listenAddr := cfg.Server.ListenAddr
	if listenAddr == "" {
		listenAddr = defaultListenAddr
	}

	slog.Info("voxdesk starting",
		"version", version,
		"config", *configPath,
		"listen_addr", listenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	llmProvider, err := buildLLM(cfg.Providers.LLM)
	if err != nil {
		slog.Error("failed to build llm provider", "err", err)
		return 1
	}
	ttsProvider, err := buildTTS(cfg.Providers.TTS)
	if err != nil {
		slog.Error("failed to build tts provider", "err", err)
		return 1
	}

	// ── Tool registry ─────────────────────────────────────────────────────────
	var checkers []health.Checker
	var toolList []tools.Tool

	if dsn := cfg.Tools.Catalog.PostgresDSN; dsn != "" {
		backend, err := catalog.NewPostgres(ctx, dsn)
		if err != nil {
			slog.Error("failed to connect catalog database", "err", err)
			return 1
		}
		defer backend.Close()
		checkers = append(checkers, health.Checker{Name: "catalog", Check: backend.Ping})
		toolList = append(toolList, catalog.Tool(backend))
		slog.Info("catalog backend ready", "kind", "postgres")
	} else {
		toolList = append(toolList, catalog.Tool(catalog.NewMemory(catalog.DemoProducts())))
		slog.Info("catalog backend ready", "kind", "memory")
	}

	if base := cfg.Tools.Orders.BaseURL; base != "" {
		client, err := orders.NewHTTPClient(base, time.Duration(cfg.Tools.Orders.TimeoutSeconds)*time.Second)
		if err != nil {
			slog.Error("failed to create orders client", "err", err)
			return 1
		}
		toolList = append(toolList, orders.Tool(client))
		slog.Info("orders client ready", "base_url", base)
	} else {
		slog.Warn("orders base_url not configured — track_order tool disabled")
	}

	registry, err := tools.NewRegistry(toolList...)
	if err != nil {
		slog.Error("failed to build tool registry", "err", err)
		return 1
	}

	// ── Escalation policy ─────────────────────────────────────────────────────
	policy := escalate.New(
		escalate.WithTurnCeiling(cfg.Escalation.TurnCeiling),
		escalate.WithFailureCeiling(cfg.Escalation.FailureCeiling),
		escalate.WithLexicon(cfg.Escalation.Lexicon),
	)

	// ── Personas and dialogue ─────────────────────────────────────────────────
	personas, voices := buildPersonas(cfg.Personas)

	var engineOpts []dialogue.Option
	if cfg.Dialogue.TurnTimeoutSeconds > 0 {
		engineOpts = append(engineOpts, dialogue.WithTurnTimeout(time.Duration(cfg.Dialogue.TurnTimeoutSeconds)*time.Second))
	}
	engineOpts = append(engineOpts, dialogue.WithMetrics(metrics))
	engine, err := dialogue.NewEngine(llmProvider, registry, engineOpts...)
	if err != nil {
		slog.Error("failed to build dialogue engine", "err", err)
		return 1
	}

	rtr, err := router.New(engine, policy, personas, router.WithMetrics(metrics))
	if err != nil {
		slog.Error("failed to build agent router", "err", err)
		return 1
	}

	store := call.NewStore(cfg.Dialogue.HistoryWindow)

	// ── Speech renderer ───────────────────────────────────────────────────────
	var rendererOpts []speech.Option
	if cfg.Speech.CacheTTLMinutes > 0 {
		rendererOpts = append(rendererOpts, speech.WithTTL(time.Duration(cfg.Speech.CacheTTLMinutes)*time.Minute))
	}
	if cfg.Speech.RenderTimeoutSeconds > 0 {
		rendererOpts = append(rendererOpts, speech.WithRenderTimeout(time.Duration(cfg.Speech.RenderTimeoutSeconds)*time.Second))
	}
	rendererOpts = append(rendererOpts, speech.WithMetrics(metrics))

	renderer, err := speech.NewRenderer(ttsProvider, voices, voices[types.DeptReceptionist], rendererOpts...)
	if err != nil {
		slog.Error("failed to build speech renderer", "err", err)
		return 1
	}
	defer renderer.Close()

	prewarm(ctx, renderer, rtr, personas, cfg.Speech.Preseed)

	// ── Audit recorder ────────────────────────────────────────────────────────
	var recorder audit.Recorder
	if dsn := cfg.Audit.PostgresDSN; dsn != "" {
		pg, err := audit.NewPostgres(ctx, dsn)
		if err != nil {
			slog.Error("failed to connect audit database", "err", err)
			return 1
		}
		defer pg.Close()
		checkers = append(checkers, health.Checker{Name: "audit", Check: pg.Ping})
		recorder = pg
		slog.Info("audit recorder ready", "kind", "postgres")
	} else {
		recorder = audit.NewLogRecorder(logger)
		slog.Info("audit recorder ready", "kind", "log")
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv, err := webhook.New(store, rtr, renderer, recorder,
		webhook.WithSecret(cfg.Server.WebhookSecret),
		webhook.WithHealthCheckers(checkers...),
		webhook.WithMetrics(metrics),
	)
	if err != nil {
		slog.Error("failed to build webhook server", "err", err)
		return 1
	}

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", listenAddr)
		if tlsCfg := cfg.Server.TLS; tlsCfg != nil {
			errCh <- httpServer.ListenAndServeTLS(tlsCfg.CertFile, tlsCfg.KeyFile)
		} else {
			errCh <- httpServer.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			return 1
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyllmProviders are the LLM backends constructed through the any-llm
// multiplexer. OpenAI has a dedicated native client and is handled
// separately.
var anyllmProviders = map[string]bool{
	"anthropic": true, "gemini": true, "ollama": true, "deepseek": true,
	"mistral": true, "groq": true, "llamacpp": true, "llamafile": true,
}

// buildLLM instantiates the configured LLM chain: the first entry is the
// primary and the rest join as ordered fallbacks behind per-provider circuit
// breakers.
func buildLLM(entries []config.ProviderEntry) (llm.Provider, error) {
	if len(entries) == 0 {
		return nil, errors.New("no llm providers configured")
	}

	primary, err := newLLMProvider(entries[0])
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", entries[0].Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", entries[0].Name, "model", entries[0].Model)
	if len(entries) == 1 {
		return primary, nil
	}

	group := resilience.NewLLMFallback(primary, entries[0].Name, resilience.FallbackConfig{})
	for _, entry := range entries[1:] {
		p, err := newLLMProvider(entry)
		if err != nil {
			return nil, fmt.Errorf("create llm fallback %q: %w", entry.Name, err)
		}
		group.AddFallback(entry.Name, p)
		slog.Info("provider created", "kind", "llm", "name", entry.Name, "model", entry.Model, "role", "fallback")
	}
	return group, nil
}

func newLLMProvider(entry config.ProviderEntry) (llm.Provider, error) {
	switch {
	case entry.Name == "openai":
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)

	case anyllmProviders[entry.Name]:
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(entry.Name, entry.Model, opts...)

	case entry.Name == "mock":
		// Canned provider for local demo runs without any API key.
		return &llmmock.Provider{
			CompleteResponse: &llm.CompletionResponse{
				Content: "I can help with that. Could you tell me a little more?",
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", entry.Name)
}

// buildTTS mirrors buildLLM for the synthesis chain.
func buildTTS(entries []config.ProviderEntry) (tts.Provider, error) {
	if len(entries) == 0 {
		return nil, errors.New("no tts providers configured")
	}

	primary, err := newTTSProvider(entries[0])
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", entries[0].Name, err)
	}
	slog.Info("provider created", "kind", "tts", "name", entries[0].Name)
	if len(entries) == 1 {
		return primary, nil
	}

	group := resilience.NewTTSFallback(primary, entries[0].Name, resilience.FallbackConfig{})
	for _, entry := range entries[1:] {
		p, err := newTTSProvider(entry)
		if err != nil {
			return nil, fmt.Errorf("create tts fallback %q: %w", entry.Name, err)
		}
		group.AddFallback(entry.Name, p)
		slog.Info("provider created", "kind", "tts", "name", entry.Name, "role", "fallback")
	}
	return group, nil
}

func newTTSProvider(entry config.ProviderEntry) (tts.Provider, error) {
	switch entry.Name {
	case "elevenlabs":
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if format := optString(entry.Options, "output_format"); format != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(format))
		}
		return elevenlabs.New(entry.APIKey, opts...)

	case "coqui":
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		return coqui.New(entry.BaseURL, opts...)

	case "mock":
		return &ttsmock.Provider{}, nil
	}
	return nil, fmt.Errorf("unknown tts provider %q", entry.Name)
}

// ── Persona wiring ────────────────────────────────────────────────────────────

// buildPersonas merges the config overrides onto the built-in persona set and
// derives the per-department voice table for the renderer.
func buildPersonas(overrides []config.PersonaConfig) (map[types.Department]dialogue.Persona, map[types.Department]types.VoiceProfile) {
	personas := dialogue.DefaultPersonas()
	voices := make(map[types.Department]types.VoiceProfile)

	for _, pc := range overrides {
		p, ok := personas[pc.Department]
		if !ok {
			continue
		}
		if pc.SystemPrompt != "" {
			p.SystemPrompt = pc.SystemPrompt
		}
		if pc.Intro != "" {
			p.Intro = pc.Intro
		}
		if len(pc.Tools) > 0 {
			p.AllowedTools = pc.Tools
		}
		if pc.Voice.VoiceID != "" {
			p.VoiceID = pc.Voice.VoiceID
			voices[pc.Department] = types.VoiceProfile{
				ID:       pc.Voice.VoiceID,
				Provider: pc.Voice.Provider,
			}
		}
		personas[pc.Department] = p
	}
	return personas, voices
}

// prewarm renders every canned line in every persona voice so the hot path
// never waits on synthesis for them. Failures degrade to the telephony
// baseline prompt, so they only warrant a warning.
func prewarm(ctx context.Context, renderer *speech.Renderer, rtr *router.Router, personas map[types.Department]dialogue.Persona, extra []string) {
	lines := []string{
		rtr.Greeting(),
		router.ApologyLine,
		router.EscalationLine,
		router.GoodbyeLine,
	}
	for _, p := range personas {
		if p.Intro != "" {
			lines = append(lines, p.Intro)
		}
	}
	lines = append(lines, extra...)

	pctx, cancel := context.WithTimeout(ctx, prewarmTimeout)
	defer cancel()
	if err := renderer.Prewarm(pctx, lines); err != nil {
		slog.Warn("speech prewarm incomplete", "err", err)
		return
	}
	slog.Info("speech cache prewarmed", "lines", len(lines))
}

// ── Logger ────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
