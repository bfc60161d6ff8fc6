// Package health provides the relay's liveness and readiness handlers.
//
// The package exposes two endpoints:
//
//   - /healthz: liveness probe; always returns 200 OK.
//   - /readyz: readiness probe; returns 200 unless a [Checker] fails.
//
// A checker may instead report that its dependency is degraded by returning
// an error wrapping [ErrDegraded]. Degraded checks keep the probe at 200 with
// status "degraded", because the relay still serves every request through its
// local provider tiers or in-memory session records.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// checkTimeout is the maximum time a single readiness check may take before
// the context is cancelled.
const checkTimeout = 5 * time.Second

// ErrDegraded marks a check result as degraded rather than failed.
var ErrDegraded = errors.New("degraded")

// Checker is a named readiness check.
type Checker struct {
	// Name is a short label for this check (e.g. "store", "translation").
	// It appears as a key in the JSON response.
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction time.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] that evaluates the given checkers sequentially on
// each /readyz request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz runs every checker with a [checkTimeout] deadline and reports 503
// if any of them failed.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	failed, degraded := false, false

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		switch {
		case err == nil:
			checks[c.Name] = "ok"
		case errors.Is(err, ErrDegraded):
			checks[c.Name] = err.Error()
			degraded = true
		default:
			checks[c.Name] = "fail: " + err.Error()
			failed = true
		}
	}

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	switch {
	case failed:
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	case degraded:
		res.Status = "degraded"
	}
	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Pinger is a dependency that can be probed, such as a session store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Store returns a checker for the session store. An unreachable store is
// degraded, not failed: sessions continue in memory.
func Store(p Pinger) Checker {
	return Checker{
		Name: "store",
		Check: func(ctx context.Context) error {
			if err := p.Ping(ctx); err != nil {
				return fmt.Errorf("%w: %v", ErrDegraded, err)
			}
			return nil
		},
	}
}

// Chain is a provider failover chain.
type Chain interface {
	Kind() string
	Degraded() bool
}

// Chains returns one checker per chain, named after its kind. A chain whose
// remote tiers are all cooling down is degraded.
func Chains(chains ...Chain) []Checker {
	out := make([]Checker, 0, len(chains))
	for _, c := range chains {
		out = append(out, Checker{
			Name: c.Kind(),
			Check: func(context.Context) error {
				if c.Degraded() {
					return fmt.Errorf("%w: all remote %s tiers are cooling down", ErrDegraded, c.Kind())
				}
				return nil
			},
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
