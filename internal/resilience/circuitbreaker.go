// Package resilience provides circuit breaker and provider failover primitives.
//
// The central type is [Chain], an ordered list of interchangeable provider
// tiers for one capability. Every tier carries its own [CircuitBreaker]: a
// retryable failure marks the tier down for an exponentially growing
// cooldown, after which exactly one half-open probe is let through. The last
// tier of every chain is a local, offline provider so a request can always
// make progress.
//
// All types are safe for concurrent use.
package resilience

import (
	"log/slog"
	"sync"
	"time"
)

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed is the normal operating state: all calls are forwarded.
	StateClosed State = iota

	// StateOpen indicates the tier failed with a retryable error and is
	// cooling down. Calls skip it until the cooldown elapses.
	StateOpen

	// StateHalfOpen is the probe state entered after the cooldown. A single
	// call is allowed through; success closes the breaker, a retryable
	// failure re-opens it with a longer cooldown.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// BaseCooldown is the cooldown after the first retryable failure.
	// Default: 1m.
	BaseCooldown time.Duration

	// MaxCooldown caps the exponential cooldown. Default: 15m.
	MaxCooldown time.Duration

	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

// CircuitBreaker tracks the health of one provider tier.
// It is safe for concurrent use from multiple goroutines.
type CircuitBreaker struct {
	name         string
	baseCooldown time.Duration
	maxCooldown  time.Duration
	now          func() time.Time

	mu              sync.Mutex
	state           State
	consecutiveFail int
	lastFailure     time.Time
	probing         bool
}

// NewCircuitBreaker creates a [CircuitBreaker] with the supplied configuration.
// Zero-value config fields are replaced with sensible defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.BaseCooldown <= 0 {
		cfg.BaseCooldown = time.Minute
	}
	if cfg.MaxCooldown <= 0 {
		cfg.MaxCooldown = 15 * time.Minute
	}
	if cfg.MaxCooldown < cfg.BaseCooldown {
		cfg.MaxCooldown = cfg.BaseCooldown
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		baseCooldown: cfg.BaseCooldown,
		maxCooldown:  cfg.MaxCooldown,
		now:          cfg.Now,
		state:        StateClosed,
	}
}

// cooldown returns min(base * 2^(n-1), max). Must be called with cb.mu held.
func (cb *CircuitBreaker) cooldown() time.Duration {
	if cb.consecutiveFail <= 0 {
		return 0
	}
	d := cb.baseCooldown
	for i := 1; i < cb.consecutiveFail; i++ {
		d *= 2
		if d >= cb.maxCooldown {
			return cb.maxCooldown
		}
	}
	return min(d, cb.maxCooldown)
}

// Allow reports whether a call may be made now. probe is true when the call
// is the single half-open retry after a cooldown; the caller must then report
// the outcome with probe set so the probe slot is released.
func (cb *CircuitBreaker) Allow() (probe, ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailure) < cb.cooldown() {
			return false, false
		}
		cb.state = StateHalfOpen
		cb.probing = true
		slog.Info("circuit breaker transitioning to half-open",
			"name", cb.name, "consecutive_failures", cb.consecutiveFail)
		return true, true

	case StateHalfOpen:
		if cb.probing {
			return false, false
		}
		cb.probing = true
		return true, true
	}
	return false, true
}

// RecordSuccess resets the breaker after a successful call.
func (cb *CircuitBreaker) RecordSuccess(probe bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.probing = false
	}
	if cb.consecutiveFail == 0 && cb.state == StateClosed {
		return
	}
	cb.state = StateClosed
	cb.consecutiveFail = 0
	cb.lastFailure = time.Time{}
	slog.Info("circuit breaker closed after successful call", "name", cb.name)
}

// RecordFailure marks the tier down after a retryable failure and returns the
// cooldown that now applies.
func (cb *CircuitBreaker) RecordFailure(probe bool) time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.probing = false
	}
	cb.consecutiveFail++
	cb.lastFailure = cb.now()
	cb.state = StateOpen
	d := cb.cooldown()
	slog.Warn("circuit breaker opened",
		"name", cb.name,
		"consecutive_failures", cb.consecutiveFail,
		"cooldown", d)
	return d
}

// RecordLocalFailure handles a request-local error: the tier is not
// penalised. A half-open probe that fails this way leaves the tier usable
// but keeps its failure count, so the next retryable failure backs off
// further.
func (cb *CircuitBreaker) RecordLocalFailure(probe bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.probing = false
		cb.state = StateClosed
	}
}

// State returns the current [State] of the breaker. If the breaker is open and
// the cooldown has elapsed, the returned state is [StateHalfOpen] (the
// actual transition happens on the next [CircuitBreaker.Allow] call).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.lastFailure) >= cb.cooldown() {
		return StateHalfOpen
	}
	return cb.state
}

// TierState is a point-in-time view of a breaker, for observability.
type TierState struct {
	Name                string    `json:"name"`
	State               string    `json:"state"`
	Local               bool      `json:"local"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastFailureAt       time.Time `json:"lastFailureAt,omitzero"`
	RetryAt             time.Time `json:"retryAt,omitzero"`
}

// Snapshot returns the breaker's current [TierState].
func (cb *CircuitBreaker) Snapshot() TierState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	ts := TierState{
		Name:                cb.name,
		State:               cb.state.String(),
		ConsecutiveFailures: cb.consecutiveFail,
		LastFailureAt:       cb.lastFailure,
	}
	if cb.state == StateOpen {
		ts.RetryAt = cb.lastFailure.Add(cb.cooldown())
		if !cb.now().Before(ts.RetryAt) {
			ts.State = StateHalfOpen.String()
		}
	}
	return ts
}

// Reset manually forces the breaker back to [StateClosed], clearing all failure
// counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.consecutiveFail = 0
	cb.lastFailure = time.Time{}
	cb.probing = false
	slog.Info("circuit breaker manually reset", "name", cb.name)
}
