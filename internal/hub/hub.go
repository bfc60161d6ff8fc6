// Package hub tracks live client connections and fans messages out to them.
//
// [Manager] is the single owner of connection metadata: role, language,
// session membership, settings and liveness. It keeps secondary indexes by
// role and by session so broadcasts to a session's students are O(students).
// The connections themselves are owned by the transport; the manager only
// holds references for sending.
//
// All methods are safe for concurrent use.
package hub

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/aula/internal/observe"
	"github.com/MrWong99/aula/internal/protocol"
	"github.com/MrWong99/aula/internal/transport"
)

var (
	// ErrNotFound is returned for operations on an unregistered connection id.
	ErrNotFound = errors.New("hub: connection not found")

	// ErrDuplicate is returned by [Manager.Register] for an id that is
	// already registered.
	ErrDuplicate = errors.New("hub: connection already registered")
)

// Meta is a snapshot of a connection's metadata.
type Meta struct {
	ID        string
	Role      protocol.Role
	Language  string
	SessionID string
	Name      string
	TeacherID string
	Settings  map[string]any
	Alive     bool

	// Registered is set once the client completed a register handshake.
	Registered bool

	ConnectedAt time.Time
}

// TTSEnabled reports whether the connection wants synthesised audio. The
// "ttsEnabled" setting defaults to true.
func (m Meta) TTSEnabled() bool {
	v, ok := m.Settings["ttsEnabled"].(bool)
	return !ok || v
}

type entry struct {
	conn transport.Conn
	meta Meta
}

// Option configures a [Manager].
type Option func(*Manager)

// WithMetrics sets the metrics recorder. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithClock overrides the clock used for ConnectedAt.
func WithClock(now func() time.Time) Option {
	return func(mgr *Manager) { mgr.now = now }
}

// Manager is the connection registry.
type Manager struct {
	metrics *observe.Metrics
	now     func() time.Time

	mu        sync.RWMutex
	conns     map[string]*entry
	byRole    map[protocol.Role]map[string]struct{}
	bySession map[string]map[string]struct{}
}

// New creates an empty [Manager].
func New(opts ...Option) *Manager {
	m := &Manager{
		now:       time.Now,
		conns:     make(map[string]*entry),
		byRole:    make(map[protocol.Role]map[string]struct{}),
		bySession: make(map[string]map[string]struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	return m
}

// Register adds conn with unset role and no session.
func (m *Manager) Register(conn transport.Conn) error {
	id := conn.ID()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conns[id]; ok {
		return ErrDuplicate
	}
	m.conns[id] = &entry{
		conn: conn,
		meta: Meta{ID: id, Alive: true, Settings: map[string]any{}, ConnectedAt: m.now()},
	}
	addIndex(m.byRole, protocol.RoleUnset, id)
	m.connGauge(protocol.RoleUnset, 1)
	return nil
}

// Unregister removes id from every index and returns its final metadata.
// It is idempotent.
func (m *Manager) Unregister(id string) (Meta, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.conns[id]
	if !ok {
		return Meta{}, false
	}
	delete(m.conns, id)
	removeIndex(m.byRole, e.meta.Role, id)
	if e.meta.SessionID != "" {
		removeIndex(m.bySession, e.meta.SessionID, id)
	}
	m.connGauge(e.meta.Role, -1)
	return e.meta, true
}

// SetRole changes the role of id, moving it between role indexes.
func (m *Manager) SetRole(id string, role protocol.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.conns[id]
	if !ok {
		return ErrNotFound
	}
	if e.meta.Role == role {
		return nil
	}
	removeIndex(m.byRole, e.meta.Role, id)
	m.connGauge(e.meta.Role, -1)
	e.meta.Role = role
	addIndex(m.byRole, role, id)
	m.connGauge(role, 1)
	return nil
}

// SetSession moves id into sessionID's index. An empty sessionID detaches it.
func (m *Manager) SetSession(id, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.conns[id]
	if !ok {
		return ErrNotFound
	}
	if e.meta.SessionID == sessionID {
		return nil
	}
	if e.meta.SessionID != "" {
		removeIndex(m.bySession, e.meta.SessionID, id)
	}
	e.meta.SessionID = sessionID
	if sessionID != "" {
		addIndex(m.bySession, sessionID, id)
	}
	return nil
}

// SetLanguage sets the language code of id.
func (m *Manager) SetLanguage(id, language string) error {
	return m.update(id, func(meta *Meta) { meta.Language = language })
}

// SetName sets the display name of id.
func (m *Manager) SetName(id, name string) error {
	return m.update(id, func(meta *Meta) { meta.Name = name })
}

// SetTeacherID records the teacher identity bound to id.
func (m *Manager) SetTeacherID(id, teacherID string) error {
	return m.update(id, func(meta *Meta) { meta.TeacherID = teacherID })
}

// MarkAlive records that id showed a sign of life.
func (m *Manager) MarkAlive(id string) {
	_ = m.update(id, func(meta *Meta) { meta.Alive = true })
}

// MarkRegistered flags id as registered and reports whether this was its
// first registration.
func (m *Manager) MarkRegistered(id string) (first bool, err error) {
	err = m.update(id, func(meta *Meta) {
		first = !meta.Registered
		meta.Registered = true
	})
	return first, err
}

// MergeSettings merges partial into the settings of id and returns a copy of
// the result. Keys absent from partial are kept.
func (m *Manager) MergeSettings(id string, partial map[string]any) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.conns[id]
	if !ok {
		return nil, ErrNotFound
	}
	maps.Copy(e.meta.Settings, partial)
	return maps.Clone(e.meta.Settings), nil
}

func (m *Manager) update(id string, fn func(*Meta)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.conns[id]
	if !ok {
		return ErrNotFound
	}
	fn(&e.meta)
	return nil
}

// Get returns a snapshot of id's metadata.
func (m *Manager) Get(id string) (Meta, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.conns[id]
	if !ok {
		return Meta{}, false
	}
	return snapshot(e), true
}

// Count returns the number of registered connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// ConnectionsByRole returns snapshots of every connection with role.
func (m *Manager) ConnectionsByRole(role protocol.Role) []Meta {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(m.byRole[role], nil)
}

// ConnectionsBySession returns snapshots of every connection in sessionID.
func (m *Manager) ConnectionsBySession(sessionID string) []Meta {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(m.bySession[sessionID], nil)
}

// StudentConnectionsAndLanguages returns the students of sessionID. Each
// snapshot carries the student's language and settings.
func (m *Manager) StudentConnectionsAndLanguages(sessionID string) []Meta {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(m.bySession[sessionID], func(meta *Meta) bool {
		return meta.Role == protocol.RoleStudent
	})
}

// StudentCount returns the number of students in sessionID.
func (m *Manager) StudentCount(sessionID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for id := range m.bySession[sessionID] {
		if m.conns[id].meta.Role == protocol.RoleStudent {
			n++
		}
	}
	return n
}

// collect must be called with m.mu held.
func (m *Manager) collect(ids map[string]struct{}, keep func(*Meta) bool) []Meta {
	out := make([]Meta, 0, len(ids))
	for id := range ids {
		e := m.conns[id]
		if keep != nil && !keep(&e.meta) {
			continue
		}
		out = append(out, snapshot(e))
	}
	return out
}

func (m *Manager) connGauge(role protocol.Role, delta int64) {
	m.metrics.ActiveConnections.Add(context.Background(), delta,
		metric.WithAttributes(observe.Attr("role", role.String())))
}

func snapshot(e *entry) Meta {
	meta := e.meta
	meta.Settings = maps.Clone(e.meta.Settings)
	return meta
}

func addIndex[K comparable](idx map[K]map[string]struct{}, key K, id string) {
	set, ok := idx[key]
	if !ok {
		set = make(map[string]struct{})
		idx[key] = set
	}
	set[id] = struct{}{}
}

func removeIndex[K comparable](idx map[K]map[string]struct{}, key K, id string) {
	set, ok := idx[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(idx, key)
	}
}
