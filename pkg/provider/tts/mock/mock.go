// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to return a fixed clip and to verify which sentences and
// languages were passed to the TTS backend.
//
// Example:
//
//	p := &mock.Provider{Audio: []byte("clip")}
//	clip, _ := p.Synthesize(ctx, "hola", "es")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/aula/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Text is the text passed to Synthesize.
	Text string
	// Language is the language passed to Synthesize.
	Language string
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Audio is returned from every successful call.
	Audio []byte

	// Err, if non-nil, is returned as the error from Synthesize.
	Err error

	// Fn, if set, overrides Audio and Err.
	Fn func(ctx context.Context, text, language string) ([]byte, error)

	// Calls records every call to Synthesize.
	Calls []SynthesizeCall
}

// Synthesize records the call and returns Audio, Err.
func (p *Provider) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, SynthesizeCall{Text: text, Language: language})
	fn, audio, err := p.Fn, p.Audio, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, text, language)
	}
	if err != nil {
		return nil, err
	}
	return audio, nil
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

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
