// Package store defines persistence for classroom session records.
//
// The relay keeps all live state in memory; the store is a durable record of
// sessions used for teacher reconnection across restarts and for session
// quality reporting. Every implementation must be safe for concurrent use.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a session record does not exist.
var ErrNotFound = errors.New("store: session not found")

// Quality labels a session by how it was used.
type Quality string

const (
	// QualityUnclassified is the label of a session that is too young to judge.
	QualityUnclassified Quality = "unclassified"
	// QualityReal marks a session that had students and lasted long enough.
	QualityReal Quality = "real"
	// QualityTooShort marks a session that ended early without any student.
	QualityTooShort Quality = "too_short"
	// QualityDead marks a session abandoned for longer than the inactivity
	// threshold.
	QualityDead Quality = "dead"
)

// Session is the persisted record of one teacher session.
type Session struct {
	ID                string
	TeacherID         string
	ClassroomCode     string
	TeacherLanguage   string
	IsActive          bool
	StartTime         time.Time
	EndTime           time.Time // zero while active
	LastActivityAt    time.Time
	StudentCount      int
	TotalTranslations int
	Quality           Quality
	QualityReason     string
}

// SessionStore persists [Session] records.
type SessionStore interface {
	// Create inserts a new session record.
	Create(ctx context.Context, s Session) error

	// Get returns the session with id, or [ErrNotFound].
	Get(ctx context.Context, id string) (Session, error)

	// FindActiveByTeacher returns the most recent active session of
	// teacherID, or [ErrNotFound].
	FindActiveByTeacher(ctx context.Context, teacherID string) (Session, error)

	// Update overwrites the mutable fields of an existing session: classroom
	// code, activity time, counters and quality. Returns [ErrNotFound] when
	// the record is missing.
	Update(ctx context.Context, s Session) error

	// End marks the session inactive at endTime with the given quality.
	End(ctx context.Context, id string, endTime time.Time, quality Quality, reason string) error

	// ListActive returns every active session.
	ListActive(ctx context.Context) ([]Session, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}
