// Package mock provides a test double for the transport.Conn interface.
//
// Conn records every frame sent to it and every Ping and Close call. Errors
// can be injected per method.
package mock

import (
	"context"
	"sync"

	"github.com/coder/websocket"

	"github.com/MrWong99/aula/internal/transport"
)

// CloseCall records a single invocation of Conn.Close.
type CloseCall struct {
	Code   websocket.StatusCode
	Reason string
}

// Conn is a mock implementation of transport.Conn.
type Conn struct {
	mu sync.Mutex

	// ConnID is returned by ID.
	ConnID string

	// SendErr, if non-nil, is returned from every Send call.
	SendErr error

	// PingErr, if non-nil, is returned from every Ping call.
	PingErr error

	sent       [][]byte
	pings      int
	closeCalls []CloseCall
	done       chan struct{}
}

// Compile-time interface assertion.
var _ transport.Conn = (*Conn)(nil)

// New returns a mock connection with the given id.
func New(id string) *Conn {
	return &Conn{ConnID: id, done: make(chan struct{})}
}

// ID implements transport.Conn.
func (c *Conn) ID() string { return c.ConnID }

// Send implements transport.Conn. The payload is recorded even when SendErr
// is set.
func (c *Conn) Send(_ context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, append([]byte(nil), payload...))
	return c.SendErr
}

// Ping implements transport.Conn.
func (c *Conn) Ping(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	return c.PingErr
}

// Close implements transport.Conn.
func (c *Conn) Close(code websocket.StatusCode, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalls = append(c.closeCalls, CloseCall{Code: code, Reason: reason})
	if c.done == nil {
		c.done = make(chan struct{})
	}
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	return nil
}

// Done implements transport.Conn.
func (c *Conn) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		c.done = make(chan struct{})
	}
	return c.done
}

// Sent returns a copy of every payload passed to Send.
func (c *Conn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

// Pings returns the number of Ping calls.
func (c *Conn) Pings() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings
}

// CloseCalls returns a copy of every Close call.
func (c *Conn) CloseCalls() []CloseCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CloseCall, len(c.closeCalls))
	copy(out, c.closeCalls)
	return out
}

// SetSendErr changes SendErr. Thread-safe.
func (c *Conn) SetSendErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SendErr = err
}
