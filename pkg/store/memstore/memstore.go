// Package memstore provides an in-memory [store.SessionStore].
//
// It is the default backend when no database is configured. Records live only
// as long as the process.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/aula/pkg/store"
)

// Compile-time interface assertion.
var _ store.SessionStore = (*Store)(nil)

// Store is a map-backed [store.SessionStore]. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]store.Session
}

// New creates an empty Store.
func New() *Store {
	return &Store{sessions: make(map[string]store.Session)}
}

// Create implements [store.SessionStore].
func (s *Store) Create(_ context.Context, sess store.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return fmt.Errorf("memstore: create %q: already exists", sess.ID)
	}
	s.sessions[sess.ID] = sess
	return nil
}

// Get implements [store.SessionStore].
func (s *Store) Get(_ context.Context, id string) (store.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return store.Session{}, store.ErrNotFound
	}
	return sess, nil
}

// FindActiveByTeacher implements [store.SessionStore].
func (s *Store) FindActiveByTeacher(_ context.Context, teacherID string) (store.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		best  store.Session
		found bool
	)
	for _, sess := range s.sessions {
		if sess.TeacherID != teacherID || !sess.IsActive {
			continue
		}
		if !found || sess.StartTime.After(best.StartTime) {
			best, found = sess, true
		}
	}
	if !found {
		return store.Session{}, store.ErrNotFound
	}
	return best, nil
}

// Update implements [store.SessionStore].
func (s *Store) Update(_ context.Context, sess store.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.sessions[sess.ID]
	if !ok {
		return store.ErrNotFound
	}
	cur.ClassroomCode = sess.ClassroomCode
	cur.LastActivityAt = sess.LastActivityAt
	cur.StudentCount = sess.StudentCount
	cur.TotalTranslations = sess.TotalTranslations
	cur.Quality = sess.Quality
	cur.QualityReason = sess.QualityReason
	s.sessions[sess.ID] = cur
	return nil
}

// End implements [store.SessionStore].
func (s *Store) End(_ context.Context, id string, endTime time.Time, quality store.Quality, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	cur.IsActive = false
	cur.EndTime = endTime
	cur.Quality = quality
	cur.QualityReason = reason
	s.sessions[id] = cur
	return nil
}

// ListActive implements [store.SessionStore].
func (s *Store) ListActive(_ context.Context) ([]store.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Session
	for _, sess := range s.sessions {
		if sess.IsActive {
			out = append(out, sess)
		}
	}
	return out, nil
}

// Ping implements [store.SessionStore]. It always succeeds.
func (s *Store) Ping(context.Context) error { return nil }
