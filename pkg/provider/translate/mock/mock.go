// Package mock provides a test double for the translate.Provider interface.
//
// Provider records every Translate call and answers either from Fn, from
// Err, or by tagging the text with the target language ("[es] hello").
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/aula/pkg/provider/translate"
)

// TranslateCall records a single invocation of Provider.Translate.
type TranslateCall struct {
	Text       string
	SourceLang string
	TargetLang string
}

// Provider is a mock implementation of translate.Provider.
type Provider struct {
	mu sync.Mutex

	// Fn, if set, computes the result of every call.
	Fn func(ctx context.Context, text, sourceLang, targetLang string) (string, error)

	// Err, if non-nil and Fn is nil, is returned from every call.
	Err error

	// Calls records every call to Translate.
	Calls []TranslateCall
}

// Translate records the call and returns the configured result.
func (p *Provider) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, TranslateCall{Text: text, SourceLang: sourceLang, TargetLang: targetLang})
	fn, err := p.Fn, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, text, sourceLang, targetLang)
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("[%s] %s", translate.BaseLanguage(targetLang), text), nil
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

// Ensure Provider implements translate.Provider at compile time.
var _ translate.Provider = (*Provider)(nil)
