// Package speech renders reply text to audio through a TTS provider, with a
// cache layered in front so canned lines play instantly and synthesis
// failures never silently drop a reply.
//
// Every render resolves through three tiers:
//
//  1. Preseeded entries: canned lines (greeting, intros, apology, escalation)
//     synthesized at startup via [Renderer.Prewarm]. They never expire and
//     keep playing even when the provider is down.
//  2. On-demand cache: live replies synthesized under a per-render timeout,
//     deduplicated with singleflight, and kept for a TTL.
//  3. Baseline: when synthesis fails, the render degrades to a
//     [SourceBaseline] result with no audio. The telephony boundary plays its
//     pre-recorded baseline prompt instead of dead air.
package speech

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/voxdesk/voxdesk/internal/observe"
	"github.com/voxdesk/voxdesk/pkg/provider/tts"
	"github.com/voxdesk/voxdesk/pkg/types"
)

// Source tells the caller which tier satisfied a render.
type Source string

const (
	// SourcePreseeded means the audio came from a startup-prewarmed entry.
	SourcePreseeded Source = "preseeded"

	// SourceCached means the audio came from the on-demand cache.
	SourceCached Source = "cached"

	// SourceRendered means the audio was freshly synthesized this call.
	SourceRendered Source = "rendered"

	// SourceBaseline means synthesis failed and the boundary should play
	// its pre-recorded baseline prompt. Audio is nil.
	SourceBaseline Source = "baseline"
)

const (
	defaultTTL           = time.Hour
	defaultRenderTimeout = 5 * time.Second
	janitorInterval      = 10 * time.Minute
)

// Result is one rendered utterance.
type Result struct {
	// Audio is the synthesized audio, nil when Source is [SourceBaseline].
	Audio []byte

	// Source is the tier that satisfied the render.
	Source Source

	// Voice is the voice profile the audio was (or would have been)
	// rendered with.
	Voice types.VoiceProfile
}

type cacheEntry struct {
	audio   []byte
	expires time.Time
}

// Renderer is the caching TTS front end. It is safe for concurrent use.
type Renderer struct {
	provider tts.Provider
	voices   map[types.Department]types.VoiceProfile
	fallback types.VoiceProfile

	mu        sync.Mutex
	preseeded map[string][]byte
	cache     map[string]cacheEntry

	group   singleflight.Group
	ttl     time.Duration
	timeout time.Duration
	metrics *observe.Metrics
	logger  *slog.Logger

	stopJanitor chan struct{}
	stopOnce    sync.Once
}

// Option configures a [Renderer].
type Option func(*Renderer)

// WithTTL overrides how long on-demand entries stay cached. Zero or negative
// keeps the default.
func WithTTL(d time.Duration) Option {
	return func(r *Renderer) {
		if d > 0 {
			r.ttl = d
		}
	}
}

// WithRenderTimeout bounds each synthesis call. Zero or negative keeps the
// default.
func WithRenderTimeout(d time.Duration) Option {
	return func(r *Renderer) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMetrics records synthesis latencies and cache sources on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Renderer) { r.metrics = m }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRenderer builds a renderer over the given provider. voices maps each
// department to its persona voice; fallback is used for departments without
// an entry. A background janitor evicts expired on-demand entries until
// [Renderer.Close] is called.
func NewRenderer(provider tts.Provider, voices map[types.Department]types.VoiceProfile, fallback types.VoiceProfile, opts ...Option) (*Renderer, error) {
	if provider == nil {
		return nil, errors.New("speech: provider must not be nil")
	}
	r := &Renderer{
		provider:    provider,
		voices:      voices,
		fallback:    fallback,
		preseeded:   make(map[string][]byte),
		cache:       make(map[string]cacheEntry),
		ttl:         defaultTTL,
		timeout:     defaultRenderTimeout,
		logger:      slog.Default(),
		stopJanitor: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.janitor()
	return r, nil
}

// Close stops the cache janitor. The renderer remains usable; entries are
// then only evicted lazily on lookup.
func (r *Renderer) Close() {
	r.stopOnce.Do(func() { close(r.stopJanitor) })
}

// Voice returns the voice profile used for the given department.
func (r *Renderer) Voice(dept types.Department) types.VoiceProfile {
	if v, ok := r.voices[dept]; ok && v.ID != "" {
		return v
	}
	return r.fallback
}

// Prewarm synthesizes every line in every department voice and stores the
// results as preseeded entries. Lines are rendered concurrently; the first
// provider error aborts the remaining work and is returned, leaving any
// already-finished entries in place.
func (r *Renderer) Prewarm(ctx context.Context, lines []string) error {
	seen := make(map[string]bool)
	g, gctx := errgroup.WithContext(ctx)

	prewarmOne := func(line string, voice types.VoiceProfile) {
		key := cacheKey(voice.ID, line)
		if seen[key] {
			return
		}
		seen[key] = true
		g.Go(func() error {
			audio, err := r.synthesize(gctx, line, voice)
			if err != nil {
				return err
			}
			r.mu.Lock()
			r.preseeded[key] = audio
			r.mu.Unlock()
			return nil
		})
	}

	for _, line := range lines {
		prewarmOne(line, r.fallback)
		for _, voice := range r.voices {
			prewarmOne(line, voice)
		}
	}
	return g.Wait()
}

// Render produces audio for text in the department's voice. It never returns
// an error for synthesis failure; the result degrades to [SourceBaseline]
// instead. The only error returned is ctx cancellation.
func (r *Renderer) Render(ctx context.Context, text string, dept types.Department) (*Result, error) {
	voice := r.Voice(dept)
	key := cacheKey(voice.ID, text)
	start := time.Now()

	r.mu.Lock()
	if audio, ok := r.preseeded[key]; ok {
		r.mu.Unlock()
		return r.finish(ctx, SourcePreseeded, audio, voice, start), nil
	}
	if e, ok := r.cache[key]; ok && time.Now().Before(e.expires) {
		r.mu.Unlock()
		return r.finish(ctx, SourceCached, e.audio, voice, start), nil
	}
	r.mu.Unlock()

	// Concurrent renders of the same line in the same voice collapse into
	// one synthesis call.
	v, err, _ := r.group.Do(key, func() (any, error) {
		audio, err := r.synthesize(ctx, text, voice)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.cache[key] = cacheEntry{audio: audio, expires: time.Now().Add(r.ttl)}
		r.mu.Unlock()
		return audio, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn("synthesis failed, degrading to baseline", "voice", voice.ID, "error", err)
		return r.finish(ctx, SourceBaseline, nil, voice, start), nil
	}
	return r.finish(ctx, SourceRendered, v.([]byte), voice, start), nil
}

func (r *Renderer) finish(ctx context.Context, source Source, audio []byte, voice types.VoiceProfile, start time.Time) *Result {
	if r.metrics != nil {
		r.metrics.RecordSynthesis(ctx, string(source), time.Since(start))
	}
	return &Result{Audio: audio, Source: source, Voice: voice}
}

func (r *Renderer) synthesize(ctx context.Context, text string, voice types.VoiceProfile) ([]byte, error) {
	sctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.provider.Synthesize(sctx, text, voice)
}

func (r *Renderer) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopJanitor:
			return
		case now := <-ticker.C:
			r.mu.Lock()
			for key, e := range r.cache {
				if now.After(e.expires) {
					delete(r.cache, key)
				}
			}
			r.mu.Unlock()
		}
	}
}

// cacheKey derives a fixed-size key from the voice and the exact text.
func cacheKey(voiceID, text string) string {
	sum := sha256.Sum256([]byte(voiceID + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
