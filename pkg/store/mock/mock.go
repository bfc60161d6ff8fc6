// Package mock provides a test double for the store.SessionStore interface.
//
// SessionStore wraps an in-memory store, records every method name called,
// and can be switched into a failing mode to exercise degraded paths.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/aula/pkg/store"
	"github.com/MrWong99/aula/pkg/store/memstore"
)

// SessionStore is a mock implementation of store.SessionStore.
type SessionStore struct {
	mu    sync.Mutex
	inner *memstore.Store
	err   error
	calls []string
}

// Compile-time interface assertion.
var _ store.SessionStore = (*SessionStore)(nil)

// New returns a working mock backed by an empty in-memory store.
func New() *SessionStore {
	return &SessionStore{inner: memstore.New()}
}

// SetErr makes every subsequent call fail with err. nil restores normal
// operation.
func (m *SessionStore) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the names of every method called, in order.
func (m *SessionStore) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CallCount returns how many times method was called.
func (m *SessionStore) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (m *SessionStore) record(method string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, method)
	return m.err
}

// Create implements store.SessionStore.
func (m *SessionStore) Create(ctx context.Context, s store.Session) error {
	if err := m.record("Create"); err != nil {
		return err
	}
	return m.inner.Create(ctx, s)
}

// Get implements store.SessionStore.
func (m *SessionStore) Get(ctx context.Context, id string) (store.Session, error) {
	if err := m.record("Get"); err != nil {
		return store.Session{}, err
	}
	return m.inner.Get(ctx, id)
}

// FindActiveByTeacher implements store.SessionStore.
func (m *SessionStore) FindActiveByTeacher(ctx context.Context, teacherID string) (store.Session, error) {
	if err := m.record("FindActiveByTeacher"); err != nil {
		return store.Session{}, err
	}
	return m.inner.FindActiveByTeacher(ctx, teacherID)
}

// Update implements store.SessionStore.
func (m *SessionStore) Update(ctx context.Context, s store.Session) error {
	if err := m.record("Update"); err != nil {
		return err
	}
	return m.inner.Update(ctx, s)
}

// End implements store.SessionStore.
func (m *SessionStore) End(ctx context.Context, id string, endTime time.Time, quality store.Quality, reason string) error {
	if err := m.record("End"); err != nil {
		return err
	}
	return m.inner.End(ctx, id, endTime, quality, reason)
}

// ListActive implements store.SessionStore.
func (m *SessionStore) ListActive(ctx context.Context) ([]store.Session, error) {
	if err := m.record("ListActive"); err != nil {
		return nil, err
	}
	return m.inner.ListActive(ctx)
}

// Ping implements store.SessionStore.
func (m *SessionStore) Ping(ctx context.Context) error {
	if err := m.record("Ping"); err != nil {
		return err
	}
	return m.inner.Ping(ctx)
}
