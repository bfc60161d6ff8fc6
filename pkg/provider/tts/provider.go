// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (OpenAI, ElevenLabs, a local
// Coqui server) and turns one translated sentence into one encoded audio clip
// that students' browsers can play directly.
//
// Implementations must be safe for concurrent use; the relay synthesises for
// several target languages in parallel.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text spoken in language (a BCP-47 tag) and returns the
	// encoded audio clip. The encoding is provider specific (MP3, WAV); clients
	// sniff it. A nil clip with a nil error means the provider chose not to
	// produce audio (the offline tier does this).
	Synthesize(ctx context.Context, text, language string) ([]byte, error)
}

// ProviderFunc adapts an ordinary function to the [Provider] interface.
type ProviderFunc func(ctx context.Context, text, language string) ([]byte, error)

// Synthesize calls f.
func (f ProviderFunc) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	return f(ctx, text, language)
}
