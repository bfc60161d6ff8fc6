package hub

import (
	"context"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/aula/internal/observe"
	"github.com/MrWong99/aula/internal/protocol"
	"github.com/MrWong99/aula/internal/transport"
)

// Predicate selects broadcast recipients.
type Predicate func(Meta) bool

// All matches every connection.
func All() Predicate { return func(Meta) bool { return true } }

// WithRole matches connections with role.
func WithRole(role protocol.Role) Predicate {
	return func(m Meta) bool { return m.Role == role }
}

// InSession matches connections in sessionID.
func InSession(sessionID string) Predicate {
	return func(m Meta) bool { return m.SessionID == sessionID }
}

// RoleInSession matches connections with role in sessionID.
func RoleInSession(sessionID string, role protocol.Role) Predicate {
	return func(m Meta) bool { return m.SessionID == sessionID && m.Role == role }
}

// Report summarises a broadcast. Failed maps connection id to send error.
type Report struct {
	Sent   int
	Failed map[string]error
}

type target struct {
	id   string
	conn transport.Conn
}

// Broadcast sends payload to every connection matching pred. Sends run
// concurrently; a failed send is logged and recorded in the report without
// affecting the others. The failing connection stays registered until its
// own close path unregisters it.
func (m *Manager) Broadcast(ctx context.Context, pred Predicate, payload []byte) Report {
	m.mu.RLock()
	targets := make([]target, 0, len(m.conns))
	for id, e := range m.conns {
		if pred(e.meta) {
			targets = append(targets, target{id: id, conn: e.conn})
		}
	}
	m.mu.RUnlock()

	return m.sendAll(ctx, targets, func(string) []byte { return payload })
}

// BroadcastEach sends a per-recipient payload to every connection matching
// pred. A nil payload skips the recipient.
func (m *Manager) BroadcastEach(ctx context.Context, pred Predicate, payloadFor func(Meta) []byte) Report {
	m.mu.RLock()
	targets := make([]target, 0)
	payloads := make(map[string][]byte)
	for id, e := range m.conns {
		if !pred(e.meta) {
			continue
		}
		if p := payloadFor(snapshot(e)); p != nil {
			targets = append(targets, target{id: id, conn: e.conn})
			payloads[id] = p
		}
	}
	m.mu.RUnlock()

	return m.sendAll(ctx, targets, func(id string) []byte { return payloads[id] })
}

func (m *Manager) sendAll(ctx context.Context, targets []target, payloadFor func(id string) []byte) Report {
	var (
		g      errgroup.Group
		mu     sync.Mutex
		report = Report{Failed: map[string]error{}}
	)
	for _, t := range targets {
		g.Go(func() error {
			err := t.conn.Send(ctx, payloadFor(t.id))

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[t.id] = err
				slog.Warn("broadcast send failed", "conn_id", t.id, "err", err)
				m.metrics.BroadcastFailures.Add(ctx, 1, metric.WithAttributes(observe.Attr("reason", "send")))
				return nil
			}
			report.Sent++
			return nil
		})
	}
	_ = g.Wait()
	return report
}

// SendTo sends payload to a single connection.
func (m *Manager) SendTo(ctx context.Context, id string, payload []byte) error {
	m.mu.RLock()
	e, ok := m.conns[id]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return e.conn.Send(ctx, payload)
}

// Close closes the transport of id, if registered. Unregistration is left to
// the connection's close path.
func (m *Manager) Close(id string, code websocket.StatusCode, reason string) {
	m.mu.RLock()
	e, ok := m.conns[id]
	m.mu.RUnlock()
	if ok {
		go func() { _ = e.conn.Close(code, reason) }()
	}
}

// CloseAll closes every registered connection and returns how many were
// closed. Used on shutdown.
func (m *Manager) CloseAll(code websocket.StatusCode, reason string) int {
	m.mu.RLock()
	conns := make([]transport.Conn, 0, len(m.conns))
	for _, e := range m.conns {
		conns = append(conns, e.conn)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Go(func() { _ = c.Close(code, reason) })
	}
	wg.Wait()
	return len(conns)
}
