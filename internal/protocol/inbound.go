package protocol

// Register is the first message every client sends.
type Register struct {
	Role          Role           `json:"role"`
	LanguageCode  string         `json:"languageCode"`
	TeacherID     string         `json:"teacherId,omitempty"`
	ClassroomCode string         `json:"classroomCode,omitempty"`
	Name          string         `json:"name,omitempty"`
	Settings      map[string]any `json:"settings,omitempty"`
}

// Transcription carries text the teacher's browser already recognised.
type Transcription struct {
	Text         string `json:"text"`
	IsFinal      *bool  `json:"isFinal,omitempty"`
	LanguageCode string `json:"languageCode,omitempty"`
}

// Final reports whether the transcription is final. Absent means final.
func (t Transcription) Final() bool {
	return t.IsFinal == nil || *t.IsFinal
}

// Audio carries a recorded speech chunk from the teacher. Data is base64 on
// the wire.
type Audio struct {
	Data         []byte `json:"data"`
	IsFinalChunk *bool  `json:"isFinalChunk,omitempty"`
	LanguageCode string `json:"languageCode,omitempty"`
}

// Final reports whether the chunk ends an utterance. Absent means final.
func (a Audio) Final() bool {
	return a.IsFinalChunk == nil || *a.IsFinalChunk
}

// Settings is a partial settings update, merged into the connection's
// existing settings.
type Settings struct {
	Settings map[string]any `json:"settings"`
}

// Ping is an application-level latency probe.
type Ping struct {
	Timestamp int64 `json:"timestamp"`
}
