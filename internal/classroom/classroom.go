// Package classroom issues and resolves the short join codes students use to
// find a teacher's session.
//
// A code is 6 characters from an alphabet without look-alike characters
// (no 0/O, 1/I). Codes expire after a TTL; expiry is checked whenever a code
// is read, and [Manager.Run] sweeps expired entries periodically.
package classroom

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Alphabet is the set of characters a classroom code is drawn from.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeLength is the number of characters in a classroom code.
const CodeLength = 6

const maxGenerateAttempts = 100

var (
	// ErrInvalidClassroom is returned for unknown, expired or malformed codes.
	ErrInvalidClassroom = errors.New("classroom: invalid or expired classroom code")

	// ErrCodeTaken is returned by [Manager.Restore] when the code belongs to
	// another live session.
	ErrCodeTaken = errors.New("classroom: code belongs to another session")

	// ErrCodeSpaceExhausted is returned when no unused code could be found.
	ErrCodeSpaceExhausted = errors.New("classroom: could not generate a unique code")
)

// Code is a live classroom code record.
type Code struct {
	Code      string
	SessionID string
	ExpiresAt time.Time
}

// expired reports whether c is past its expiry. A code is still valid at
// exactly ExpiresAt.
func (c *Code) expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Option configures a [Manager].
type Option func(*Manager)

// WithClock overrides the clock used for expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// withGenerator overrides random code generation. Used by tests to force
// collisions.
func withGenerator(gen func() (string, error)) Option {
	return func(m *Manager) { m.generate = gen }
}

// Manager maps classroom codes to session ids. Safe for concurrent use.
type Manager struct {
	now      func() time.Time
	generate func() (string, error)

	mu        sync.Mutex
	byCode    map[string]*Code
	bySession map[string]string
}

// New creates an empty [Manager].
func New(opts ...Option) *Manager {
	m := &Manager{
		now:       time.Now,
		generate:  GenerateCode,
		byCode:    make(map[string]*Code),
		bySession: make(map[string]string),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// GenerateCode returns a random code using crypto/rand.
func GenerateCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("classroom: generate code: %w", err)
	}
	// 256 is a multiple of len(Alphabet), so the modulo is unbiased.
	for i, b := range buf {
		buf[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return string(buf), nil
}

// Normalize upper-cases and trims code. It reports false when the result is
// not a well-formed code.
func Normalize(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != CodeLength {
		return "", false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", false
		}
	}
	return code, true
}

// CreateOrRefresh returns the live code of sessionID with its expiry pushed
// to now+ttl, or issues a new code if the session has none.
func (m *Manager) CreateOrRefresh(sessionID string, ttl time.Duration) (Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if code, ok := m.bySession[sessionID]; ok {
		if c := m.byCode[code]; c != nil && !c.expired(now) {
			c.ExpiresAt = now.Add(ttl)
			return *c, nil
		}
		m.removeLocked(code)
	}

	for range maxGenerateAttempts {
		code, err := m.generate()
		if err != nil {
			return Code{}, err
		}
		if existing, taken := m.byCode[code]; taken {
			if !existing.expired(now) {
				continue
			}
			m.removeLocked(code)
		}
		c := &Code{Code: code, SessionID: sessionID, ExpiresAt: now.Add(ttl)}
		m.byCode[code] = c
		m.bySession[sessionID] = code
		slog.Info("classroom code issued", "code", code, "session_id", sessionID, "expires_at", c.ExpiresAt)
		return *c, nil
	}
	return Code{}, ErrCodeSpaceExhausted
}

// Restore re-issues a specific code for sessionID, extending it to now+ttl.
// It is used when a session resumes after its code may have expired, so
// students keep using the code they were given. It fails with
// [ErrCodeTaken] if another session holds the code.
func (m *Manager) Restore(code, sessionID string, ttl time.Duration) (Code, error) {
	norm, ok := Normalize(code)
	if !ok {
		return Code{}, ErrInvalidClassroom
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if existing, ok := m.byCode[norm]; ok {
		if existing.SessionID != sessionID && !existing.expired(now) {
			return Code{}, ErrCodeTaken
		}
		m.removeLocked(norm)
	}
	if old, ok := m.bySession[sessionID]; ok && old != norm {
		m.removeLocked(old)
	}
	c := &Code{Code: norm, SessionID: sessionID, ExpiresAt: now.Add(ttl)}
	m.byCode[norm] = c
	m.bySession[sessionID] = norm
	return *c, nil
}

// Resolve returns the session id behind code. Expired codes are removed and
// reported as [ErrInvalidClassroom].
func (m *Manager) Resolve(code string) (string, error) {
	norm, ok := Normalize(code)
	if !ok {
		return "", ErrInvalidClassroom
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.byCode[norm]
	if !ok {
		return "", ErrInvalidClassroom
	}
	if c.expired(m.now()) {
		m.removeLocked(norm)
		return "", ErrInvalidClassroom
	}
	return c.SessionID, nil
}

// Lookup returns the live code of sessionID.
func (m *Manager) Lookup(sessionID string) (Code, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	code, ok := m.bySession[sessionID]
	if !ok {
		return Code{}, false
	}
	c := m.byCode[code]
	if c.expired(m.now()) {
		m.removeLocked(code)
		return Code{}, false
	}
	return *c, true
}

// Invalidate removes code. Unknown codes are ignored.
func (m *Manager) Invalidate(code string) {
	norm, ok := Normalize(code)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(norm)
}

// InvalidateSession removes the code of sessionID, if any.
func (m *Manager) InvalidateSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if code, ok := m.bySession[sessionID]; ok {
		m.removeLocked(code)
	}
}

// Sweep removes every expired code and returns how many were removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for code, c := range m.byCode {
		if c.expired(now) {
			m.removeLocked(code)
			n++
		}
	}
	return n
}

// Stats returns the number of codes held, including expired ones not yet
// swept.
func (m *Manager) Stats() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byCode)
}

// Run sweeps expired codes every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				slog.Debug("swept expired classroom codes", "count", n)
			}
		}
	}
}

// removeLocked must be called with m.mu held.
func (m *Manager) removeLocked(code string) {
	c, ok := m.byCode[code]
	if !ok {
		return
	}
	delete(m.byCode, code)
	if m.bySession[c.SessionID] == code {
		delete(m.bySession, c.SessionID)
	}
}
