package resilience

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/aula/internal/observe"
	"github.com/MrWong99/aula/pkg/provider/stt"
	"github.com/MrWong99/aula/pkg/provider/translate"
	"github.com/MrWong99/aula/pkg/provider/tts"
)

// STTChain implements [stt.Provider] with automatic failover across STT tiers.
type STTChain struct {
	*Chain[stt.Provider]
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTChain)(nil)

// NewSTTChain creates an [STTChain]. cfg.Kind defaults to "stt".
func NewSTTChain(cfg ChainConfig, tiers ...Tier[stt.Provider]) (*STTChain, error) {
	if cfg.Kind == "" {
		cfg.Kind = "stt"
	}
	c, err := NewChain(cfg, tiers...)
	if err != nil {
		return nil, err
	}
	return &STTChain{Chain: c}, nil
}

// Transcribe runs the first healthy tier's Transcribe.
func (c *STTChain) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	start := time.Now()
	defer func() { c.metrics.STTDuration.Record(ctx, time.Since(start).Seconds()) }()

	return Execute(ctx, c.Chain, func(ctx context.Context, p stt.Provider) (string, error) {
		return p.Transcribe(ctx, audio, language)
	})
}

// TranslationChain implements [translate.Provider] with automatic failover
// across translation tiers.
type TranslationChain struct {
	*Chain[translate.Provider]
}

// Compile-time interface assertion.
var _ translate.Provider = (*TranslationChain)(nil)

// NewTranslationChain creates a [TranslationChain]. cfg.Kind defaults to
// "translation".
func NewTranslationChain(cfg ChainConfig, tiers ...Tier[translate.Provider]) (*TranslationChain, error) {
	if cfg.Kind == "" {
		cfg.Kind = "translation"
	}
	c, err := NewChain(cfg, tiers...)
	if err != nil {
		return nil, err
	}
	return &TranslationChain{Chain: c}, nil
}

// Translate runs the first healthy tier's Translate.
func (c *TranslationChain) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	start := time.Now()
	defer func() {
		c.metrics.TranslationDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(observe.Attr("target_language", translate.BaseLanguage(targetLang))))
	}()

	return Execute(ctx, c.Chain, func(ctx context.Context, p translate.Provider) (string, error) {
		return p.Translate(ctx, text, sourceLang, targetLang)
	})
}

// TTSChain implements [tts.Provider] with automatic failover across TTS tiers.
type TTSChain struct {
	*Chain[tts.Provider]
}

// Compile-time interface assertion.
var _ tts.Provider = (*TTSChain)(nil)

// NewTTSChain creates a [TTSChain]. cfg.Kind defaults to "tts".
func NewTTSChain(cfg ChainConfig, tiers ...Tier[tts.Provider]) (*TTSChain, error) {
	if cfg.Kind == "" {
		cfg.Kind = "tts"
	}
	c, err := NewChain(cfg, tiers...)
	if err != nil {
		return nil, err
	}
	return &TTSChain{Chain: c}, nil
}

// Synthesize runs the first healthy tier's Synthesize.
func (c *TTSChain) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	start := time.Now()
	defer func() { c.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds()) }()

	return Execute(ctx, c.Chain, func(ctx context.Context, p tts.Provider) ([]byte, error) {
		return p.Synthesize(ctx, text, language)
	})
}
