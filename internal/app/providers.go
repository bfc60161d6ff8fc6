package app

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/aula/internal/config"
	"github.com/MrWong99/aula/internal/observe"
	"github.com/MrWong99/aula/internal/resilience"
	"github.com/MrWong99/aula/pkg/provider/local"
	"github.com/MrWong99/aula/pkg/provider/stt"
	"github.com/MrWong99/aula/pkg/provider/translate"
	"github.com/MrWong99/aula/pkg/provider/tts"
)

// Providers holds the remote tiers of each capability in failover order.
// The offline tier is appended by [New]; it must not be listed here.
type Providers struct {
	STT         []resilience.Tier[stt.Provider]
	Translation []resilience.Tier[translate.Provider]
	TTS         []resilience.Tier[tts.Provider]
}

// BuildProviders instantiates every configured tier through reg. Tiers whose
// provider name has no registered factory are skipped with a warning; a
// factory error aborts startup.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{}
	var err error
	if ps.STT, err = buildTiers("stt", cfg.Providers.STT, reg.CreateSTT); err != nil {
		return nil, err
	}
	if ps.Translation, err = buildTiers("translation", cfg.Providers.Translation, reg.CreateTranslation); err != nil {
		return nil, err
	}
	if ps.TTS, err = buildTiers("tts", cfg.Providers.TTS, reg.CreateTTS); err != nil {
		return nil, err
	}
	return ps, nil
}

func buildTiers[P any](kind string, entries []config.ProviderEntry, create func(config.ProviderEntry) (P, error)) ([]resilience.Tier[P], error) {
	tiers := make([]resilience.Tier[P], 0, len(entries))
	for _, entry := range entries {
		name := config.TierName(entry)
		p, err := create(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("provider not available, skipping tier", "kind", kind, "name", entry.Name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create %s provider %q: %w", kind, name, err)
		}
		tiers = append(tiers, resilience.Tier[P]{Name: name, Provider: p})
		slog.Info("provider created", "kind", kind, "tier", name)
	}
	return tiers, nil
}

// chains is the set of failover chains the relay runs on.
type chains struct {
	stt         *resilience.STTChain
	translation *resilience.TranslationChain
	tts         *resilience.TTSChain
}

// buildChains appends the offline tier to each capability and constructs
// its chain.
func buildChains(cfg config.ResilienceConfig, ps *Providers, metrics *observe.Metrics, now func() time.Time) (*chains, error) {
	if ps == nil {
		ps = &Providers{}
	}
	cc := resilience.ChainConfig{
		BaseCooldown: cfg.BaseCooldown,
		MaxCooldown:  cfg.MaxCooldown,
		CallTimeout:  cfg.CallTimeout,
		Metrics:      metrics,
		Now:          now,
	}

	var (
		c    chains
		err  error
		errs []error
	)
	c.stt, err = resilience.NewSTTChain(cc, withLocal(ps.STT, stt.Provider(local.STT{}))...)
	errs = append(errs, err)
	c.translation, err = resilience.NewTranslationChain(cc, withLocal(ps.Translation, translate.Provider(local.Translator{}))...)
	errs = append(errs, err)
	c.tts, err = resilience.NewTTSChain(cc, withLocal(ps.TTS, tts.Provider(local.TTS{}))...)
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &c, nil
}

func withLocal[P any](remote []resilience.Tier[P], offline P) []resilience.Tier[P] {
	tiers := make([]resilience.Tier[P], 0, len(remote)+1)
	tiers = append(tiers, remote...)
	return append(tiers, resilience.Tier[P]{Name: config.LocalProviderName, Provider: offline, Local: true})
}

// states returns every chain's tier states keyed by capability.
func (c *chains) states() map[string][]resilience.TierState {
	return map[string][]resilience.TierState{
		c.stt.Kind():         c.stt.States(),
		c.translation.Kind(): c.translation.States(),
		c.tts.Kind():         c.tts.States(),
	}
}
