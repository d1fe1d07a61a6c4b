// Package mock provides a mock implementation of the tts.Provider interface
// for testing. The mock records all calls and returns configurable responses.
package mock

import (
	"context"
	"sync"

	"github.com/voxdesk/voxdesk/pkg/provider/tts"
	"github.com/voxdesk/voxdesk/pkg/types"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// SynthesizeCall records the arguments of a single Synthesize invocation.
type SynthesizeCall struct {
	Ctx   context.Context
	Text  string
	Voice types.VoiceProfile
}

// Provider is a configurable mock TTS provider. The zero value is usable:
// Synthesize returns an empty buffer and ListVoices returns no voices.
//
// Configure behavior by setting the exported fields before use. All methods
// are safe for concurrent use.
type Provider struct {
	mu sync.Mutex

	// SynthesizeResult is returned by Synthesize when SynthesizeErr is nil.
	SynthesizeResult []byte

	// SynthesizeErr, if non-nil, is returned by Synthesize.
	SynthesizeErr error

	// ListVoicesResult is returned by ListVoices when ListVoicesErr is nil.
	ListVoicesResult []types.VoiceProfile

	// ListVoicesErr, if non-nil, is returned by ListVoices.
	ListVoicesErr error

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall

	// ListVoicesCalls counts calls to ListVoices.
	ListVoicesCalls int
}

// Synthesize records the call and returns the configured result.
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{
		Ctx:   ctx,
		Text:  text,
		Voice: voice,
	})

	if p.SynthesizeErr != nil {
		return nil, p.SynthesizeErr
	}
	// Copy so callers cannot mutate the configured buffer.
	out := make([]byte, len(p.SynthesizeResult))
	copy(out, p.SynthesizeResult)
	return out, nil
}

// ListVoices records the call and returns the configured voices.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ListVoicesCalls++
	if p.ListVoicesErr != nil {
		return nil, p.ListVoicesErr
	}
	return p.ListVoicesResult, nil
}

// Reset clears all recorded calls while leaving configured responses intact.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.SynthesizeCalls = nil
	p.ListVoicesCalls = 0
}
