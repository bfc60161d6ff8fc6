package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MrWong99/aula/internal/classroom"
	"github.com/MrWong99/aula/internal/hub"
	"github.com/MrWong99/aula/internal/pipeline"
	"github.com/MrWong99/aula/internal/protocol"
	"github.com/MrWong99/aula/internal/session"
)

var (
	errInvalidRole    = protocol.NewError(protocol.CodeInvalidMessage, `role must be "teacher" or "student"`)
	errAlreadyTeacher = protocol.NewError(protocol.CodeInvalidMessage, "connection is already registered as teacher")
	errNotTeacher     = protocol.NewError(protocol.CodeNotRegistered, "only the registered teacher of a session can do this")
)

func invalidMessage(err error) error {
	return protocol.NewError(protocol.CodeInvalidMessage, err.Error())
}

func (s *Server) handleRegister(ctx context.Context, meta hub.Meta, raw []byte) error {
	var msg protocol.Register
	if err := protocol.Decode(raw, &msg); err != nil {
		return invalidMessage(err)
	}
	msg.LanguageCode = strings.TrimSpace(msg.LanguageCode)
	if msg.LanguageCode == "" {
		msg.LanguageCode = s.language
	}
	// A connection that joined through ?code= is already a student.
	if msg.Role == "" {
		msg.Role = meta.Role
	}

	switch msg.Role {
	case protocol.RoleTeacher:
		return s.registerTeacher(ctx, meta, msg)
	case protocol.RoleStudent:
		return s.registerStudent(ctx, meta, msg)
	default:
		return errInvalidRole
	}
}

func (s *Server) registerTeacher(ctx context.Context, meta hub.Meta, msg protocol.Register) error {
	// A teacher registering again on the same connection releases its
	// previous binding first so connection counts stay balanced.
	if meta.Role == protocol.RoleTeacher && meta.Registered {
		s.sessions.TeacherDisconnected(meta.TeacherID)
	}

	reg, err := s.sessions.RegisterTeacher(ctx, msg.TeacherID, msg.LanguageCode)
	if err != nil {
		return err
	}

	if err := s.bind(meta.ID, protocol.RoleTeacher, reg.SessionID, msg); err != nil {
		return err
	}
	if err := s.hub.SetTeacherID(meta.ID, reg.TeacherID); err != nil {
		return err
	}
	if _, err := s.hub.MarkRegistered(meta.ID); err != nil {
		return err
	}

	if err := s.reply(ctx, meta.ID, protocol.NewRegisterAck(reg.SessionID, protocol.RoleTeacher, msg.LanguageCode, reg.Resumed)); err != nil {
		return err
	}
	return s.reply(ctx, meta.ID, protocol.NewClassroomCode(reg.ClassroomCode, reg.SessionID, protocol.Timestamp(reg.CodeExpiresAt)))
}

func (s *Server) registerStudent(ctx context.Context, meta hub.Meta, msg protocol.Register) error {
	sessionID := meta.SessionID
	if msg.ClassroomCode != "" {
		sid, err := s.classrooms.Resolve(msg.ClassroomCode)
		if err != nil {
			slog.Info("student used invalid classroom code", "conn_id", meta.ID, "code", msg.ClassroomCode)
			return errInvalidClassroom()
		}
		sessionID = sid
	}
	if meta.Role == protocol.RoleTeacher && meta.Registered {
		return errAlreadyTeacher
	}
	if sessionID == "" {
		return errInvalidClassroom()
	}

	if err := s.bind(meta.ID, protocol.RoleStudent, sessionID, msg); err != nil {
		return err
	}
	first, err := s.hub.MarkRegistered(meta.ID)
	if err != nil {
		return err
	}
	joined := first || meta.SessionID != sessionID

	if err := s.reply(ctx, meta.ID, protocol.NewRegisterAck(sessionID, protocol.RoleStudent, msg.LanguageCode, false)); err != nil {
		return err
	}
	if joined {
		s.sessions.RecordStudentJoined(sessionID)
		count := s.hub.StudentCount(sessionID)
		slog.Info("student joined", "conn_id", meta.ID, "session_id", sessionID, "language", msg.LanguageCode, "students", count)
		s.notifyTeachers(ctx, sessionID, protocol.NewStudentJoined(msg.Name, msg.LanguageCode, count))
	}
	return nil
}

// bind applies the registration fields of msg to connection id.
func (s *Server) bind(id string, role protocol.Role, sessionID string, msg protocol.Register) error {
	if err := s.hub.SetRole(id, role); err != nil {
		return err
	}
	if err := s.hub.SetSession(id, sessionID); err != nil {
		return err
	}
	if err := s.hub.SetLanguage(id, msg.LanguageCode); err != nil {
		return err
	}
	if err := s.hub.SetName(id, msg.Name); err != nil {
		return err
	}
	if len(msg.Settings) > 0 {
		if _, err := s.hub.MergeSettings(id, msg.Settings); err != nil {
			return err
		}
	}
	return nil
}

// speaker reports whether meta may send speech. Speech from anyone else is
// dropped without a reply.
func speaker(meta hub.Meta) bool {
	return meta.Role == protocol.RoleTeacher && meta.Registered && meta.SessionID != ""
}

func (s *Server) handleTranscription(ctx context.Context, meta hub.Meta, raw []byte) error {
	if !speaker(meta) {
		return nil
	}
	receivedAt := s.now()
	var msg protocol.Transcription
	if err := protocol.Decode(raw, &msg); err != nil {
		return invalidMessage(err)
	}
	if strings.TrimSpace(msg.Text) == "" {
		return nil
	}
	_, err := s.pipeline.Relay(ctx, pipeline.Utterance{
		SessionID:      meta.SessionID,
		Text:           msg.Text,
		SourceLanguage: sourceLanguage(msg.LanguageCode, meta),
		IsFinal:        msg.Final(),
		Glossary:       glossaryOf(meta.Settings),
		ReceivedAt:     receivedAt,
	})
	return err
}

func (s *Server) handleAudio(ctx context.Context, meta hub.Meta, raw []byte) error {
	if !speaker(meta) {
		return nil
	}
	receivedAt := s.now()
	var msg protocol.Audio
	if err := protocol.Decode(raw, &msg); err != nil {
		return invalidMessage(err)
	}
	if len(msg.Data) == 0 {
		return nil
	}
	lang := sourceLanguage(msg.LanguageCode, meta)

	text, err := s.pipeline.Transcribe(ctx, msg.Data, lang)
	if err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	if err := s.reply(ctx, meta.ID, protocol.NewTranscriptionEcho(text, lang, msg.Final(), protocol.Timestamp(s.now()))); err != nil {
		slog.Debug("transcription echo not delivered", "conn_id", meta.ID, "err", err)
	}

	_, err = s.pipeline.Relay(ctx, pipeline.Utterance{
		SessionID:      meta.SessionID,
		Text:           text,
		SourceLanguage: lang,
		IsFinal:        msg.Final(),
		Glossary:       glossaryOf(meta.Settings),
		ReceivedAt:     receivedAt,
	})
	return err
}

func (s *Server) handleSettings(ctx context.Context, meta hub.Meta, raw []byte) error {
	var msg protocol.Settings
	if err := protocol.Decode(raw, &msg); err != nil {
		return invalidMessage(err)
	}
	merged, err := s.hub.MergeSettings(meta.ID, msg.Settings)
	if err != nil {
		return err
	}
	return s.reply(ctx, meta.ID, protocol.NewSettingsUpdate(merged))
}

func (s *Server) handlePing(ctx context.Context, meta hub.Meta, raw []byte) error {
	var msg protocol.Ping
	if err := protocol.Decode(raw, &msg); err != nil {
		return invalidMessage(err)
	}
	return s.reply(ctx, meta.ID, protocol.NewPong(msg.Timestamp, protocol.Timestamp(s.now())))
}

func (s *Server) handleEndSession(ctx context.Context, meta hub.Meta, _ []byte) error {
	if !speaker(meta) {
		return errNotTeacher
	}
	sessionID := meta.SessionID
	if err := s.sessions.EndSession(ctx, sessionID); err != nil && !errors.Is(err, session.ErrUnknownSession) {
		return err
	}

	payload, err := protocol.Encode(protocol.NewSessionEnded(sessionID))
	if err != nil {
		return err
	}
	s.hub.Broadcast(ctx, hub.InSession(sessionID), payload)

	// Connections stay open but no longer belong to the session.
	for _, m := range s.hub.ConnectionsBySession(sessionID) {
		_ = s.hub.SetSession(m.ID, "")
	}
	slog.Info("session ended by teacher", "session_id", sessionID, "teacher_id", meta.TeacherID)
	return nil
}

// classroomStatus is the body of GET /api/classroom/{code}.
type classroomStatus struct {
	Valid     bool   `json:"valid"`
	SessionID string `json:"sessionId,omitempty"`
}

func (s *Server) handleClassroomLookup(w http.ResponseWriter, r *http.Request) {
	var res classroomStatus
	sessionID, err := s.classrooms.Resolve(r.PathValue("code"))
	switch {
	case err == nil:
		res = classroomStatus{Valid: true, SessionID: sessionID}
	case errors.Is(err, classroom.ErrInvalidClassroom):
	default:
		slog.Error("classroom lookup failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if !res.Valid {
		status = http.StatusNotFound
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(res)
}

// sourceLanguage returns the language of an utterance: the message's own
// tag when present, otherwise the one the teacher registered with.
func sourceLanguage(msgLang string, meta hub.Meta) string {
	if l := strings.TrimSpace(msgLang); l != "" {
		return l
	}
	return meta.Language
}

// glossaryOf reads the "glossary" setting, a list of subject terms.
func glossaryOf(settings map[string]any) []string {
	switch v := settings["glossary"].(type) {
	case []string:
		return v
	case []any:
		terms := make([]string, 0, len(v))
		for _, t := range v {
			if s, ok := t.(string); ok && strings.TrimSpace(s) != "" {
				terms = append(terms, s)
			}
		}
		return terms
	case string:
		return strings.Split(v, ",")
	}
	return nil
}
