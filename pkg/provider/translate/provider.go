// Package translate defines the Provider interface for text translation
// backends.
//
// Translation tiers range from LLM-backed translators (OpenAI, any-llm-go
// backends such as Anthropic, Gemini or Ollama) to the offline identity
// translator in package local.
//
// Implementations must be safe for concurrent use.
package translate

import (
	"context"
	"fmt"
	"strings"
)

// Provider is the abstraction over any translation backend.
type Provider interface {
	// Translate renders text from sourceLang into targetLang. Both languages are
	// BCP-47 tags ("en-US", "es", "zh-Hans"). Implementations must return text
	// unchanged when the two languages share the same base language.
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// ProviderFunc adapts an ordinary function to the [Provider] interface.
type ProviderFunc func(ctx context.Context, text, sourceLang, targetLang string) (string, error)

// Translate calls f.
func (f ProviderFunc) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	return f(ctx, text, sourceLang, targetLang)
}

// BaseLanguage returns the primary subtag of a BCP-47 language tag in lower
// case: "en-US" → "en", "pt_BR" → "pt".
func BaseLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}

// SameLanguage reports whether a and b share a base language. Empty tags never
// match.
func SameLanguage(a, b string) bool {
	ba, bb := BaseLanguage(a), BaseLanguage(b)
	return ba != "" && ba == bb
}

// SystemPrompt returns the instruction used by LLM-backed translators.
func SystemPrompt(sourceLang, targetLang string) string {
	return fmt.Sprintf("You are a classroom interpreter. Translate the user's message from %s to %s. "+
		"Reply with the translation only, without quotes, notes or explanations. "+
		"Keep names, numbers and technical terms intact.", sourceLang, targetLang)
}

// CleanOutput trims whitespace and a single pair of wrapping quotes that
// models sometimes add around a translation.
func CleanOutput(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}
