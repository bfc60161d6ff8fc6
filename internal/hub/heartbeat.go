package hub

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/aula/internal/transport"
)

// RunHeartbeat checks connection liveness every interval until ctx is
// cancelled.
//
// Each tick, connections that showed no sign of life since the previous tick
// are closed. All others are marked presumed-dead and pinged; a pong, or any
// inbound message reported through [Manager.MarkAlive], revives them before
// the next tick.
//
// pingTimeout bounds each ping; zero uses half the interval.
func (m *Manager) RunHeartbeat(ctx context.Context, interval, pingTimeout time.Duration) {
	if pingTimeout <= 0 {
		pingTimeout = interval / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.HeartbeatTick(ctx, pingTimeout)
		}
	}
}

// HeartbeatTick runs one liveness round and returns the ids that were
// terminated. pingTimeout bounds each ping.
func (m *Manager) HeartbeatTick(ctx context.Context, pingTimeout time.Duration) []string {
	var (
		dead  []transport.Conn
		probe []transport.Conn
	)
	m.mu.Lock()
	for _, e := range m.conns {
		if !e.meta.Alive {
			dead = append(dead, e.conn)
			continue
		}
		e.meta.Alive = false
		probe = append(probe, e.conn)
	}
	m.mu.Unlock()

	terminated := make([]string, 0, len(dead))
	for _, c := range dead {
		slog.Info("terminating unresponsive connection", "conn_id", c.ID())
		terminated = append(terminated, c.ID())
		go func() { _ = c.Close(transport.StatusHeartbeatTimeout, "heartbeat timeout") }()
	}

	var g errgroup.Group
	for _, c := range probe {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, pingTimeout)
			defer cancel()
			if err := c.Ping(pctx); err != nil {
				slog.Debug("heartbeat ping failed", "conn_id", c.ID(), "err", err)
				return nil
			}
			m.MarkAlive(c.ID())
			return nil
		})
	}
	_ = g.Wait()
	return terminated
}
