// Package transport adapts WebSocket connections to the message-oriented
// [Conn] interface used by the connection hub.
//
// Each [WSConn] owns a single writer goroutine fed by a bounded queue, so
// concurrent senders never interleave frames on the socket. Reads are done by
// the owner of the connection, one frame at a time, which keeps inbound
// messages in order.
package transport

import (
	"context"
	"errors"

	"github.com/coder/websocket"
)

// Close status codes used by the relay.
const (
	StatusNormal           = websocket.StatusNormalClosure
	StatusGoingAway        = websocket.StatusGoingAway
	StatusInvalidClassroom = websocket.StatusCode(4004)
	StatusHeartbeatTimeout = websocket.StatusCode(4008)
)

var (
	// ErrClosed is returned when sending on a closed connection.
	ErrClosed = errors.New("transport: connection closed")

	// ErrSendTimeout is returned when the outbound queue stays full for
	// longer than the write timeout.
	ErrSendTimeout = errors.New("transport: send queue full")
)

// Conn is a bidirectional message connection.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Conn interface {
	// ID returns the connection's unique identifier.
	ID() string

	// Send queues one text frame for delivery.
	Send(ctx context.Context, payload []byte) error

	// Ping sends a transport-level ping and waits for the pong.
	Ping(ctx context.Context) error

	// Close sends a close frame with the given status after flushing queued
	// frames. Safe to call more than once; only the first call has effect.
	Close(code websocket.StatusCode, reason string) error

	// Done is closed once the connection has stopped writing.
	Done() <-chan struct{}
}
