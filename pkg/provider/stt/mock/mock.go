// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to verify that the caller forwards the expected audio and
// language, and to script transcripts or failures.
//
// Example:
//
//	p := &mock.Provider{Text: "hello class"}
//	text, _ := p.Transcribe(ctx, audio, "en-US")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/aula/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Audio is a copy of the audio bytes passed to Transcribe.
	Audio []byte
	// Language is the language hint passed to Transcribe.
	Language string
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Text is returned from every successful call.
	Text string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Fn, if set, overrides Text and Err.
	Fn func(ctx context.Context, audio []byte, language string) (string, error)

	// Calls records every call to Transcribe.
	Calls []TranscribeCall
}

// Transcribe records the call and returns Text, Err.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	p.mu.Lock()
	cp := make([]byte, len(audio))
	copy(cp, audio)
	p.Calls = append(p.Calls, TranscribeCall{Audio: cp, Language: language})
	fn, text, err := p.Fn, p.Text, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, audio, language)
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// CallCount returns the number of recorded calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
