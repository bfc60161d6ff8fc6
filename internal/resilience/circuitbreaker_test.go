package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errTest = errors.New("test error")

// fakeClock is a manually advanced clock for cooldown tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test"})
	if cb.baseCooldown != time.Minute {
		t.Errorf("baseCooldown = %v, want 1m", cb.baseCooldown)
	}
	if cb.maxCooldown != 15*time.Minute {
		t.Errorf("maxCooldown = %v, want 15m", cb.maxCooldown)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_ClosedAllowsCalls(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test"})
	probe, ok := cb.Allow()
	if !ok || probe {
		t.Fatalf("Allow() = (%v, %v), want (false, true)", probe, ok)
	}
}

func TestCircuitBreaker_SingleFailureOpens(t *testing.T) {
	clk := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", BaseCooldown: time.Minute, Now: clk.Now})

	if d := cb.RecordFailure(false); d != time.Minute {
		t.Errorf("cooldown = %v, want 1m", d)
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}
	if _, ok := cb.Allow(); ok {
		t.Fatal("Allow() succeeded while cooling down")
	}
}

func TestCircuitBreaker_ExponentialCooldown(t *testing.T) {
	clk := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "test",
		BaseCooldown: time.Minute,
		MaxCooldown:  5 * time.Minute,
		Now:          clk.Now,
	})

	want := []time.Duration{time.Minute, 2 * time.Minute, 4 * time.Minute, 5 * time.Minute, 5 * time.Minute}
	for i, w := range want {
		if got := cb.RecordFailure(false); got != w {
			t.Errorf("failure %d: cooldown = %v, want %v", i+1, got, w)
		}
	}
}

func TestCircuitBreaker_HalfOpenSingleProbe(t *testing.T) {
	clk := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", BaseCooldown: time.Minute, Now: clk.Now})
	cb.RecordFailure(false)

	clk.Advance(time.Minute)
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after cooldown", cb.State())
	}

	probe, ok := cb.Allow()
	if !ok || !probe {
		t.Fatalf("first Allow() = (%v, %v), want probe", probe, ok)
	}
	if _, ok := cb.Allow(); ok {
		t.Fatal("second concurrent probe allowed")
	}

	cb.RecordSuccess(true)
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after successful probe", cb.State())
	}
	if s := cb.Snapshot(); s.ConsecutiveFailures != 0 {
		t.Errorf("consecutive failures = %d, want 0", s.ConsecutiveFailures)
	}
}

func TestCircuitBreaker_HalfOpenFailureReopensLonger(t *testing.T) {
	clk := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", BaseCooldown: time.Minute, Now: clk.Now})
	cb.RecordFailure(false)
	clk.Advance(time.Minute)

	probe, _ := cb.Allow()
	if d := cb.RecordFailure(probe); d != 2*time.Minute {
		t.Errorf("cooldown after failed probe = %v, want 2m", d)
	}
	clk.Advance(time.Minute)
	if _, ok := cb.Allow(); ok {
		t.Fatal("allowed before the doubled cooldown elapsed")
	}
}

func TestCircuitBreaker_LocalFailureDuringProbe(t *testing.T) {
	clk := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", BaseCooldown: time.Minute, Now: clk.Now})
	cb.RecordFailure(false)
	clk.Advance(time.Minute)

	probe, _ := cb.Allow()
	cb.RecordLocalFailure(probe)

	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed (usable) after local failure", cb.State())
	}
	if s := cb.Snapshot(); s.ConsecutiveFailures != 1 {
		t.Errorf("consecutive failures = %d, want 1 (kept)", s.ConsecutiveFailures)
	}
	if d := cb.RecordFailure(false); d != 2*time.Minute {
		t.Errorf("next cooldown = %v, want 2m", d)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", BaseCooldown: time.Hour})
	cb.RecordFailure(false)
	cb.Reset()

	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after reset", cb.State())
	}
	if _, ok := cb.Allow(); !ok {
		t.Fatal("Allow() rejected after reset")
	}
}

func TestCircuitBreaker_ConcurrentFailuresCounted(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", BaseCooldown: time.Millisecond, MaxCooldown: time.Hour})

	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() { cb.RecordFailure(false) })
	}
	wg.Wait()

	if got := cb.Snapshot().ConsecutiveFailures; got != 50 {
		t.Errorf("consecutive failures = %d, want 50", got)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}
