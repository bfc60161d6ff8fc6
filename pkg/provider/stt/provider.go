// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps one transcription service (OpenAI, Deepgram, a local
// whisper.cpp server) behind a single call: encoded audio in, text out. The
// classroom relay sends one teacher utterance per call, so there is no
// streaming session handle.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts one utterance of encoded audio (WAV, WebM/Opus, MP3,
	// whatever the client recorded) into text. language is a BCP-47 hint such
	// as "en-US"; an empty string lets the provider auto-detect.
	//
	// An empty transcript with a nil error means the audio contained no
	// recognisable speech.
	Transcribe(ctx context.Context, audio []byte, language string) (string, error)
}

// ProviderFunc adapts an ordinary function to the [Provider] interface.
type ProviderFunc func(ctx context.Context, audio []byte, language string) (string, error)

// Transcribe calls f.
func (f ProviderFunc) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	return f(ctx, audio, language)
}
