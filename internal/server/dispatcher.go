package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/coder/websocket"

	"github.com/MrWong99/aula/internal/hub"
	"github.com/MrWong99/aula/internal/observe"
	"github.com/MrWong99/aula/internal/pipeline"
	"github.com/MrWong99/aula/internal/protocol"
	"github.com/MrWong99/aula/internal/resilience"
	"github.com/MrWong99/aula/internal/transport"
)

// HandlerFunc handles one decoded message type. meta is the sender's state
// when the message arrived. A returned error is turned into an error reply;
// the connection stays open unless the error is a [closeError].
type HandlerFunc func(ctx context.Context, meta hub.Meta, raw []byte) error

// ActivityRecorder is told about every inbound message of a session.
type ActivityRecorder interface {
	RecordActivity(sessionID string)
}

// Dispatcher routes inbound frames by their "type" discriminator.
//
// Handlers must be registered before the first Dispatch; Dispatch itself is
// safe for concurrent use.
type Dispatcher struct {
	hub      *hub.Manager
	activity ActivityRecorder
	metrics  *observe.Metrics
	handlers map[string]HandlerFunc
}

// NewDispatcher returns a [Dispatcher] without handlers. activity may be nil.
func NewDispatcher(h *hub.Manager, activity ActivityRecorder, metrics *observe.Metrics) *Dispatcher {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Dispatcher{
		hub:      h,
		activity: activity,
		metrics:  metrics,
		handlers: make(map[string]HandlerFunc),
	}
}

// Handle registers h for msgType, replacing any previous handler.
func (d *Dispatcher) Handle(msgType string, h HandlerFunc) {
	d.handlers[msgType] = h
}

// Dispatch processes one frame received on connection connID.
//
// Malformed frames are dropped. Every well-formed frame marks the connection
// alive and counts as activity of its session, even when no handler exists
// for its type.
func (d *Dispatcher) Dispatch(ctx context.Context, connID string, raw []byte) {
	msgType, err := protocol.PeekType(raw)
	if err != nil {
		slog.Debug("dropping malformed message", "conn_id", connID, "err", err)
		return
	}
	d.metrics.RecordMessage(ctx, msgType)

	d.hub.MarkAlive(connID)
	meta, ok := d.hub.Get(connID)
	if !ok {
		return
	}
	if meta.SessionID != "" && d.activity != nil {
		d.activity.RecordActivity(meta.SessionID)
	}

	h, ok := d.handlers[msgType]
	if !ok {
		slog.Warn("ignoring unknown message type", "conn_id", connID, "type", msgType)
		return
	}

	ctx, span := observe.StartSessionSpan(ctx, "message."+msgType, meta.SessionID, connID)
	defer span.End()

	if err := h(ctx, meta, raw); err != nil {
		d.fail(ctx, connID, msgType, err)
	}
}

func (d *Dispatcher) fail(ctx context.Context, connID, msgType string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	log := observe.Logger(ctx)
	reply := replyFor(err)
	if reply.Code == protocol.CodeInternal {
		log.Error("message handler failed", "conn_id", connID, "type", msgType, "err", err)
	} else {
		log.Debug("message rejected", "conn_id", connID, "type", msgType, "code", reply.Code, "err", err)
	}

	payload, encErr := protocol.Encode(reply)
	if encErr == nil {
		if sendErr := d.hub.SendTo(ctx, connID, payload); sendErr != nil {
			log.Debug("error reply not delivered", "conn_id", connID, "err", sendErr)
		}
	}

	var ce *closeError
	if errors.As(err, &ce) {
		d.hub.Close(connID, ce.status, ce.reply.Message)
	}
}

// replyFor maps a handler error to its client-facing reply.
func replyFor(err error) *protocol.Error {
	if errors.Is(err, resilience.ErrAllTiersFailed) || errors.Is(err, pipeline.ErrNoTranslation) {
		return protocol.NewError(protocol.CodeProviderUnavailable, "speech services are unavailable, please try again shortly")
	}
	return protocol.ErrorReply(err)
}

// closeError is a client-facing error after which the server closes the
// connection with status.
type closeError struct {
	reply  *protocol.Error
	status websocket.StatusCode
}

func (e *closeError) Error() string { return e.reply.Error() }

func (e *closeError) Unwrap() error { return e.reply }

func errInvalidClassroom() error {
	return &closeError{
		reply:  protocol.NewError(protocol.CodeInvalidClassroom, "classroom code is invalid or expired"),
		status: transport.StatusInvalidClassroom,
	}
}
