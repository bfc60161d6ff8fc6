package protocol

// RegisterAck confirms a successful registration.
type RegisterAck struct {
	Type         string `json:"type"`
	Status       string `json:"status"`
	SessionID    string `json:"sessionId"`
	Role         Role   `json:"role"`
	LanguageCode string `json:"languageCode"`
	Resumed      bool   `json:"resumed"`
}

// NewRegisterAck returns a successful [RegisterAck].
func NewRegisterAck(sessionID string, role Role, language string, resumed bool) RegisterAck {
	return RegisterAck{
		Type:         TypeRegister,
		Status:       TypeRegisterStatus,
		SessionID:    sessionID,
		Role:         role,
		LanguageCode: language,
		Resumed:      resumed,
	}
}

// ClassroomCode tells the teacher the join code of its session.
type ClassroomCode struct {
	Type      string `json:"type"`
	Code      string `json:"code"`
	SessionID string `json:"sessionId"`
	ExpiresAt int64  `json:"expiresAt"`
}

// NewClassroomCode returns a [ClassroomCode] message. expiresAt is Unix ms.
func NewClassroomCode(code, sessionID string, expiresAt int64) ClassroomCode {
	return ClassroomCode{Type: TypeClassroomCode, Code: code, SessionID: sessionID, ExpiresAt: expiresAt}
}

// StudentPresence notifies teachers that a student joined or left.
type StudentPresence struct {
	Type         string `json:"type"`
	Name         string `json:"name,omitempty"`
	LanguageCode string `json:"languageCode,omitempty"`
	StudentCount int    `json:"studentCount"`
}

// NewStudentJoined returns a student_joined notification.
func NewStudentJoined(name, language string, count int) StudentPresence {
	return StudentPresence{Type: TypeStudentJoined, Name: name, LanguageCode: language, StudentCount: count}
}

// NewStudentLeft returns a student_left notification.
func NewStudentLeft(name, language string, count int) StudentPresence {
	return StudentPresence{Type: TypeStudentLeft, Name: name, LanguageCode: language, StudentCount: count}
}

// Translation delivers one utterance to a student in its language.
type Translation struct {
	Type           string `json:"type"`
	OriginalText   string `json:"originalText"`
	Text           string `json:"text"`
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
	AudioData      []byte `json:"audioData,omitempty"`
	IsFinal        bool   `json:"isFinal"`
	Timestamp      int64  `json:"timestamp"`
	// Latency is the server-side processing time in milliseconds.
	Latency int64 `json:"latency"`
}

// TranscriptionEcho returns recognised audio text to the teacher.
type TranscriptionEcho struct {
	Type         string `json:"type"`
	Text         string `json:"text"`
	LanguageCode string `json:"languageCode"`
	IsFinal      bool   `json:"isFinal"`
	Timestamp    int64  `json:"timestamp"`
}

// NewTranscriptionEcho returns a transcription message for the teacher.
func NewTranscriptionEcho(text, language string, final bool, ts int64) TranscriptionEcho {
	return TranscriptionEcho{Type: TypeTranscription, Text: text, LanguageCode: language, IsFinal: final, Timestamp: ts}
}

// SettingsUpdate returns the merged settings of a connection.
type SettingsUpdate struct {
	Type     string         `json:"type"`
	Settings map[string]any `json:"settings"`
}

// NewSettingsUpdate returns a settings message.
func NewSettingsUpdate(settings map[string]any) SettingsUpdate {
	return SettingsUpdate{Type: TypeSettings, Settings: settings}
}

// Pong answers a [Ping].
type Pong struct {
	Type            string `json:"type"`
	Timestamp       int64  `json:"timestamp"`
	ServerTimestamp int64  `json:"serverTimestamp"`
}

// NewPong returns a pong echoing the client timestamp.
func NewPong(clientTS, serverTS int64) Pong {
	return Pong{Type: TypePong, Timestamp: clientTS, ServerTimestamp: serverTS}
}

// SessionEnded tells every connection of a session that the teacher ended it.
type SessionEnded struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// NewSessionEnded returns a session_ended message.
func NewSessionEnded(sessionID string) SessionEnded {
	return SessionEnded{Type: TypeSessionEnded, SessionID: sessionID}
}
