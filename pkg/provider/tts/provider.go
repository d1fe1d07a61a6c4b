// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs or a
// self-hosted Coqui server) and renders a complete utterance into a single
// audio buffer. VoxDesk replies are short spoken sentences, so the render
// cache works with whole utterances rather than streaming fragments; the
// telephony boundary plays the buffer back to the caller.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/voxdesk/voxdesk/pkg/types"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text into a single audio buffer using the given
	// voice. The audio encoding is provider-configured (VoxDesk defaults to
	// 16 kHz mono PCM for telephony playback).
	//
	// Returns an error if the voice is unknown, the provider cannot be
	// reached, or ctx is cancelled or times out before synthesis completes.
	// An empty text input should return an error rather than silence.
	Synthesize(ctx context.Context, text string, voice types.VoiceProfile) ([]byte, error)

	// ListVoices returns all voice profiles available from this provider.
	// The list reflects the provider's current catalogue and may change
	// between calls.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)
}
