package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Default connection parameters.
const (
	defaultQueueSize       = 100
	defaultWriteTimeout    = 5 * time.Second
	defaultMaxMessageBytes = 4 << 20
)

// Options configures accepted connections.
type Options struct {
	// QueueSize is the outbound frame buffer. Default: 100.
	QueueSize int

	// WriteTimeout bounds each socket write and each wait for queue space.
	// Default: 5s.
	WriteTimeout time.Duration

	// MaxMessageBytes limits inbound frame size. Default: 4 MiB.
	MaxMessageBytes int64

	// OriginPatterns are host patterns allowed to connect cross-origin.
	// Empty allows same-origin only.
	OriginPatterns []string
}

func (o *Options) applyDefaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = defaultMaxMessageBytes
	}
}

// WSConn is a [Conn] backed by a coder/websocket connection.
type WSConn struct {
	id           string
	ws           *websocket.Conn
	send         chan []byte
	writeTimeout time.Duration

	closing    chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once

	// Written before closing is closed, read by the writer afterwards.
	closeCode   websocket.StatusCode
	closeReason string

	// Written by the writer before writerDone is closed.
	closeErr error
}

// Compile-time interface assertion.
var _ Conn = (*WSConn)(nil)

// Accept upgrades an HTTP request to a WebSocket connection and starts its
// writer goroutine.
func Accept(w http.ResponseWriter, r *http.Request, opts Options) (*WSConn, error) {
	opts.applyDefaults()
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: opts.OriginPatterns,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: accept: %w", err)
	}
	ws.SetReadLimit(opts.MaxMessageBytes)
	return newWSConn(ws, opts), nil
}

func newWSConn(ws *websocket.Conn, opts Options) *WSConn {
	c := &WSConn{
		id:           uuid.NewString(),
		ws:           ws,
		send:         make(chan []byte, opts.QueueSize),
		writeTimeout: opts.WriteTimeout,
		closing:      make(chan struct{}),
		writerDone:   make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// ID returns the connection id assigned at handshake.
func (c *WSConn) ID() string { return c.id }

// Done is closed when the writer goroutine has exited.
func (c *WSConn) Done() <-chan struct{} { return c.writerDone }

// Send queues payload for the writer goroutine. It blocks for at most the
// write timeout when the queue is full.
func (c *WSConn) Send(ctx context.Context, payload []byte) error {
	select {
	case <-c.closing:
		return ErrClosed
	case <-c.writerDone:
		return ErrClosed
	default:
	}

	timer := time.NewTimer(c.writeTimeout)
	defer timer.Stop()

	select {
	case c.send <- payload:
		return nil
	case <-c.closing:
		return ErrClosed
	case <-c.writerDone:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrSendTimeout
	}
}

// Read blocks until the next frame arrives. Only one goroutine may call Read.
func (c *WSConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.ws.Read(ctx)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Ping sends a WebSocket ping and waits for the pong. A concurrent Read must
// be in progress for the pong to be observed.
func (c *WSConn) Ping(ctx context.Context) error {
	return c.ws.Ping(ctx)
}

// Close flushes queued frames, then performs the WebSocket close handshake.
// It waits for the writer goroutine to finish.
func (c *WSConn) Close(code websocket.StatusCode, reason string) error {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.closing)
	})
	<-c.writerDone
	return c.closeErr
}

func (c *WSConn) writeLoop() {
	defer close(c.writerDone)

	for {
		select {
		case data := <-c.send:
			if err := c.write(data); err != nil {
				slog.Debug("websocket write failed", "conn_id", c.id, "err", err)
				c.closeErr = err
				_ = c.ws.CloseNow()
				return
			}
		case <-c.closing:
			c.flush()
			c.closeErr = c.ws.Close(c.closeCode, c.closeReason)
			return
		}
	}
}

// flush writes whatever is still queued. It stops at the first error.
func (c *WSConn) flush() {
	for {
		select {
		case data := <-c.send:
			if err := c.write(data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *WSConn) write(data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
	defer cancel()
	return c.ws.Write(ctx, websocket.MessageText, data)
}
