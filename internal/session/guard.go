package session

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MrWong99/aula/pkg/store"
)

// storeGuard wraps a [store.SessionStore] and makes writes non-fatal. A
// failing write is logged and swallowed, and the guard reports itself as
// degraded until the next successful call.
type storeGuard struct {
	store    store.SessionStore
	degraded atomic.Bool
}

func (g *storeGuard) observe(op, sessionID string, err error) {
	if err == nil {
		g.degraded.Store(false)
		return
	}
	g.degraded.Store(true)
	slog.Warn("session store unavailable, continuing in memory",
		"op", op,
		"session_id", sessionID,
		"err", err,
	)
}

func (g *storeGuard) create(ctx context.Context, s store.Session) {
	g.observe("create", s.ID, g.store.Create(ctx, s))
}

func (g *storeGuard) update(ctx context.Context, s store.Session) {
	err := g.store.Update(ctx, s)
	if errors.Is(err, store.ErrNotFound) {
		// Created while the store was down.
		s.IsActive = true
		err = g.store.Create(ctx, s)
	}
	g.observe("update", s.ID, err)
}

func (g *storeGuard) end(ctx context.Context, id string, at time.Time, q store.Quality, reason string) {
	err := g.store.End(ctx, id, at, q, reason)
	if errors.Is(err, store.ErrNotFound) {
		err = nil
	}
	g.observe("end", id, err)
}

// findActive returns the teacher's active session. A store failure is
// reported as not found.
func (g *storeGuard) findActive(ctx context.Context, teacherID string) (store.Session, bool) {
	s, err := g.store.FindActiveByTeacher(ctx, teacherID)
	if errors.Is(err, store.ErrNotFound) {
		g.degraded.Store(false)
		return store.Session{}, false
	}
	g.observe("find_active", "", err)
	return s, err == nil
}

// IsDegraded reports whether the last store call failed.
func (g *storeGuard) IsDegraded() bool {
	return g.degraded.Load()
}
