// Package protocol defines the JSON message envelope exchanged between the
// relay server and browser clients over WebSocket.
//
// Every message is a JSON object with a "type" discriminator. Inbound
// messages are decoded in two steps: [PeekType] reads the discriminator,
// then the payload is unmarshalled into the matching struct. Outbound
// messages are plain structs with a Type field set by their constructor.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Role is the part a connection plays in a classroom session.
type Role string

const (
	// RoleUnset is the role of a connection that has not registered yet.
	RoleUnset Role = ""
	// RoleTeacher is the single speaking connection of a session.
	RoleTeacher Role = "teacher"
	// RoleStudent receives translated speech in its own language.
	RoleStudent Role = "student"
)

// Valid reports whether r is a role a client may register as.
func (r Role) Valid() bool {
	return r == RoleTeacher || r == RoleStudent
}

// String returns the role name, or "unset".
func (r Role) String() string {
	if r == RoleUnset {
		return "unset"
	}
	return string(r)
}

// Message types.
const (
	TypeRegister       = "register"
	TypeTranscription  = "transcription"
	TypeAudio          = "audio"
	TypeSettings       = "settings"
	TypePing           = "ping"
	TypePong           = "pong"
	TypeEndSession     = "end_session"
	TypeClassroomCode  = "classroom_code"
	TypeStudentJoined  = "student_joined"
	TypeStudentLeft    = "student_left"
	TypeTranslation    = "translation"
	TypeSessionEnded   = "session_ended"
	TypeError          = "error"
	TypeRegisterStatus = "ok"
)

// ErrMalformed is returned by [PeekType] when a frame is not a JSON object
// with a non-empty string "type" field.
var ErrMalformed = errors.New("protocol: malformed message")

// PeekType returns the "type" discriminator of a raw inbound frame.
func PeekType(raw []byte) (string, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env.Type, nil
}

// Decode unmarshals a raw frame into v.
func Decode(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return nil
}

// Encode marshals an outbound message.
func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode: %w", err)
	}
	return b, nil
}

// Timestamp returns t as Unix milliseconds, the time unit used on the wire.
func Timestamp(t time.Time) int64 {
	return t.UnixMilli()
}
