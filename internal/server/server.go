// Package server exposes classroom sessions over WebSocket.
//
// A [Server] accepts connections on /ws, registers them with the connection
// hub and feeds every inbound frame through a [Dispatcher]. Teachers create
// or resume a session and receive a classroom code; students join with that
// code and receive the teacher's speech translated into their language.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrWong99/aula/internal/classroom"
	"github.com/MrWong99/aula/internal/hub"
	"github.com/MrWong99/aula/internal/observe"
	"github.com/MrWong99/aula/internal/pipeline"
	"github.com/MrWong99/aula/internal/protocol"
	"github.com/MrWong99/aula/internal/session"
	"github.com/MrWong99/aula/internal/transport"
)

// Config wires a [Server]. Hub, Classrooms, Sessions and Pipeline are
// required.
type Config struct {
	Hub        *hub.Manager
	Classrooms *classroom.Manager
	Sessions   *session.Lifecycle
	Pipeline   *pipeline.Pipeline

	// Transport configures accepted WebSocket connections.
	Transport transport.Options

	// DefaultLanguage is used for clients that register without a
	// languageCode. Default: "en-US".
	DefaultLanguage string

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Now defaults to time.Now.
	Now func() time.Time
}

// Server is the WebSocket front end of the relay.
type Server struct {
	hub        *hub.Manager
	classrooms *classroom.Manager
	sessions   *session.Lifecycle
	pipeline   *pipeline.Pipeline
	transport  transport.Options
	language   string
	dispatcher *Dispatcher
	now        func() time.Time
}

// New validates cfg and returns a [Server] with all message handlers
// registered.
func New(cfg Config) (*Server, error) {
	var errs []error
	if cfg.Hub == nil {
		errs = append(errs, errors.New("server: hub is required"))
	}
	if cfg.Classrooms == nil {
		errs = append(errs, errors.New("server: classroom manager is required"))
	}
	if cfg.Sessions == nil {
		errs = append(errs, errors.New("server: session lifecycle is required"))
	}
	if cfg.Pipeline == nil {
		errs = append(errs, errors.New("server: pipeline is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en-US"
	}

	s := &Server{
		hub:        cfg.Hub,
		classrooms: cfg.Classrooms,
		sessions:   cfg.Sessions,
		pipeline:   cfg.Pipeline,
		transport:  cfg.Transport,
		language:   cfg.DefaultLanguage,
		now:        cfg.Now,
	}
	s.dispatcher = NewDispatcher(cfg.Hub, cfg.Sessions, cfg.Metrics)
	s.dispatcher.Handle(protocol.TypeRegister, s.handleRegister)
	s.dispatcher.Handle(protocol.TypeTranscription, s.handleTranscription)
	s.dispatcher.Handle(protocol.TypeAudio, s.handleAudio)
	s.dispatcher.Handle(protocol.TypeSettings, s.handleSettings)
	s.dispatcher.Handle(protocol.TypePing, s.handlePing)
	s.dispatcher.Handle(protocol.TypeEndSession, s.handleEndSession)
	return s, nil
}

// Dispatcher returns the server's message dispatcher.
func (s *Server) Dispatcher() *Dispatcher { return s.dispatcher }

// Register adds the server's routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.ServeWS)
	mux.HandleFunc("GET /api/classroom/{code}", s.handleClassroomLookup)
}

// ServeWS upgrades the request and runs the connection until it closes.
//
// With a ?code= query parameter the connection is pre-associated with that
// classroom's session as a student. An unknown or expired code is answered
// with an INVALID_CLASSROOM error and the connection is closed.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := transport.Accept(w, r, s.transport)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	id := conn.ID()
	if err := s.hub.Register(conn); err != nil {
		slog.Error("failed to register connection", "conn_id", id, "err", err)
		_ = conn.Close(transport.StatusGoingAway, "internal error")
		return
	}
	defer s.disconnected(id, conn)

	ctx := r.Context()
	log := slog.With("conn_id", id)
	log.Debug("connection opened", "remote", r.RemoteAddr)

	if code := r.URL.Query().Get("code"); code != "" {
		sessionID, err := s.classrooms.Resolve(code)
		if err != nil {
			log.Info("rejecting connection with invalid classroom code", "code", code)
			s.dispatcher.fail(ctx, id, "connect", errInvalidClassroom())
			<-conn.Done()
			return
		}
		_ = s.hub.SetRole(id, protocol.RoleStudent)
		_ = s.hub.SetSession(id, sessionID)
	}

	frames := make(chan []byte, inboundQueueSize)
	go s.readFrames(ctx, conn, frames)
	for raw := range frames {
		s.dispatcher.Dispatch(ctx, id, raw)
	}
}

// inboundQueueSize is the number of frames read ahead of the dispatcher.
const inboundQueueSize = 32

// readFrames keeps a read pending on conn so that pongs are processed while
// a message is being handled, and hands every frame to the dispatch loop in
// order. It closes frames when the connection stops reading.
func (s *Server) readFrames(ctx context.Context, conn *transport.WSConn, frames chan<- []byte) {
	defer close(frames)
	for {
		raw, err := conn.Read(ctx)
		if err != nil {
			slog.Debug("connection read ended", "conn_id", conn.ID(), "err", err)
			return
		}
		s.hub.MarkAlive(conn.ID())
		select {
		case frames <- raw:
		case <-ctx.Done():
			return
		}
	}
}

// disconnected runs the close path of a connection: it leaves the hub,
// notifies the teacher when a student leaves and starts the teacher's grace
// window when the teacher leaves.
func (s *Server) disconnected(id string, conn transport.Conn) {
	_ = conn.Close(transport.StatusNormal, "")

	meta, ok := s.hub.Unregister(id)
	if !ok {
		return
	}
	slog.Debug("connection closed", "conn_id", id, "role", meta.Role, "session_id", meta.SessionID)

	switch meta.Role {
	case protocol.RoleTeacher:
		if meta.Registered && meta.TeacherID != "" {
			s.sessions.TeacherDisconnected(meta.TeacherID)
		}
	case protocol.RoleStudent:
		if !meta.Registered || meta.SessionID == "" {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		count := s.hub.StudentCount(meta.SessionID)
		s.notifyTeachers(ctx, meta.SessionID, protocol.NewStudentLeft(meta.Name, meta.Language, count))
	}
}

// notifyTeachers sends msg to the teacher connections of sessionID.
func (s *Server) notifyTeachers(ctx context.Context, sessionID string, msg any) {
	payload, err := protocol.Encode(msg)
	if err != nil {
		slog.Error("failed to encode teacher notification", "session_id", sessionID, "err", err)
		return
	}
	s.hub.Broadcast(ctx, hub.RoleInSession(sessionID, protocol.RoleTeacher), payload)
}

// reply sends msg to a single connection.
func (s *Server) reply(ctx context.Context, connID string, msg any) error {
	payload, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return s.hub.SendTo(ctx, connID, payload)
}

// CloseAll closes every open connection with a going-away status. Used on
// shutdown.
func (s *Server) CloseAll() int {
	return s.hub.CloseAll(transport.StatusGoingAway, "server shutting down")
}
