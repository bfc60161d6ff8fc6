package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/aula/internal/observe"
)

var (
	// ErrAllTiersFailed is returned when every tier of a [Chain] was either
	// cooling down or failed on this attempt.
	ErrAllTiersFailed = errors.New("resilience: all provider tiers failed")

	// ErrNoTiers is returned by [NewChain] when no tiers are given.
	ErrNoTiers = errors.New("resilience: chain has no tiers")

	// ErrNoLocalTier is returned by [NewChain] when the last tier is not
	// marked Local.
	ErrNoLocalTier = errors.New("resilience: last tier must be a local provider")
)

// Tier is one provider in a [Chain].
type Tier[T any] struct {
	// Name identifies the tier in logs, metrics and [Chain.States].
	Name string

	// Provider is the capability implementation.
	Provider T

	// Local marks an offline implementation without external dependencies.
	// Local tiers never trip their breaker and are not subject to
	// ChainConfig.CallTimeout.
	Local bool
}

// ChainConfig configures a [Chain].
type ChainConfig struct {
	// Kind is the capability name used in logs and metrics ("stt",
	// "translation", "tts").
	Kind string

	// BaseCooldown and MaxCooldown bound the per-tier exponential cooldown.
	BaseCooldown time.Duration
	MaxCooldown  time.Duration

	// CallTimeout bounds each non-local tier call. A timeout counts as a
	// retryable failure. Zero disables the per-call timeout.
	CallTimeout time.Duration

	// Metrics receives per-tier request, error and trip counts. Nil uses
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Now is the clock shared by all tier breakers. Default: time.Now.
	Now func() time.Time
}

// chainTier pairs a tier with its dedicated circuit breaker.
type chainTier[T any] struct {
	Tier[T]
	breaker *CircuitBreaker
}

// Chain tries an ordered list of provider tiers for one capability, skipping
// tiers that are cooling down. It fails only when every tier fails on the
// current attempt.
//
// Chain is safe for concurrent use; each tier's state is guarded by its own
// breaker mutex.
type Chain[T any] struct {
	kind        string
	tiers       []chainTier[T]
	callTimeout time.Duration
	metrics     *observe.Metrics
}

// NewChain creates a [Chain]. The last tier must be Local.
func NewChain[T any](cfg ChainConfig, tiers ...Tier[T]) (*Chain[T], error) {
	if len(tiers) == 0 {
		return nil, ErrNoTiers
	}
	if !tiers[len(tiers)-1].Local {
		return nil, fmt.Errorf("%w (%s chain ends with %q)", ErrNoLocalTier, cfg.Kind, tiers[len(tiers)-1].Name)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}

	c := &Chain[T]{
		kind:        cfg.Kind,
		callTimeout: cfg.CallTimeout,
		metrics:     cfg.Metrics,
	}
	for _, t := range tiers {
		c.tiers = append(c.tiers, chainTier[T]{
			Tier: t,
			breaker: NewCircuitBreaker(CircuitBreakerConfig{
				Name:         cfg.Kind + "/" + t.Name,
				BaseCooldown: cfg.BaseCooldown,
				MaxCooldown:  cfg.MaxCooldown,
				Now:          cfg.Now,
			}),
		})
	}
	return c, nil
}

// Kind returns the capability name of the chain.
func (c *Chain[T]) Kind() string { return c.kind }

// Execute runs fn against each tier of c in order until one succeeds,
// returning its result. This is a package-level function because Go does not
// support method-level type parameters.
//
// Tiers whose breaker is open are skipped. A retryable failure marks the tier
// down; other errors fall through to the next tier without penalty. If ctx is
// cancelled the chain stops without penalising the tier that was running.
func Execute[T, R any](ctx context.Context, c *Chain[T], fn func(ctx context.Context, p T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range c.tiers {
		t := &c.tiers[i]

		probe, ok := t.breaker.Allow()
		if !ok {
			slog.Debug("skipping provider tier (cooling down)", "kind", c.kind, "provider", t.Name)
			continue
		}

		result, err := callTier(ctx, c.callTimeout, t, fn)
		if err == nil {
			t.breaker.RecordSuccess(probe)
			c.metrics.RecordProviderRequest(ctx, t.Name, c.kind, "ok")
			return result, nil
		}

		c.metrics.RecordProviderRequest(ctx, t.Name, c.kind, "error")
		c.metrics.RecordProviderError(ctx, t.Name, c.kind)

		if ctx.Err() != nil {
			t.breaker.RecordLocalFailure(probe)
			return zero, fmt.Errorf("resilience: %s: %w", c.kind, ctx.Err())
		}

		lastErr = fmt.Errorf("%s: %w", t.Name, err)
		if !t.Local && IsRetryable(err) {
			cooldown := t.breaker.RecordFailure(probe)
			c.metrics.RecordBreakerTrip(ctx, t.Name, c.kind)
			slog.Warn("provider tier failed, marked down",
				"kind", c.kind, "provider", t.Name, "cooldown", cooldown, "err", err)
		} else {
			t.breaker.RecordLocalFailure(probe)
			slog.Warn("provider tier failed, trying next",
				"kind", c.kind, "provider", t.Name, "err", err)
		}
	}
	if lastErr == nil {
		lastErr = errors.New("every tier is cooling down")
	}
	return zero, fmt.Errorf("%w: %s: %w", ErrAllTiersFailed, c.kind, lastErr)
}

// callTier invokes fn for one tier, applying the per-call timeout to remote
// tiers.
func callTier[T, R any](ctx context.Context, timeout time.Duration, t *chainTier[T], fn func(context.Context, T) (R, error)) (R, error) {
	if timeout <= 0 || t.Local {
		return fn(ctx, t.Provider)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(callCtx, t.Provider)
}

// States returns a snapshot of every tier's breaker, in chain order.
func (c *Chain[T]) States() []TierState {
	out := make([]TierState, 0, len(c.tiers))
	for i := range c.tiers {
		s := c.tiers[i].breaker.Snapshot()
		s.Name = c.tiers[i].Name
		s.Local = c.tiers[i].Local
		out = append(out, s)
	}
	return out
}

// Degraded reports whether every remote tier is currently cooling down, so
// requests are served by the local tier only.
func (c *Chain[T]) Degraded() bool {
	remote := 0
	for i := range c.tiers {
		if c.tiers[i].Local {
			continue
		}
		remote++
		if c.tiers[i].breaker.State() != StateOpen {
			return false
		}
	}
	return remote > 0
}

// Reset closes the named tier's breaker. It reports whether the tier exists.
func (c *Chain[T]) Reset(name string) bool {
	for i := range c.tiers {
		if c.tiers[i].Name == name {
			c.tiers[i].breaker.Reset()
			return true
		}
	}
	return false
}
