// Package session implements teacher session continuity and session quality
// bookkeeping.
//
// A teacher identity maps to at most one live session. When the teacher's
// connection drops, the session enters a grace window: registering again with
// the same teacher id inside the window resumes the same session and the same
// classroom code. After the window, the next registration starts a new
// session with a new code.
//
// The periodic cleanup pass labels sessions (real, too_short, dead) and marks
// abandoned ones inactive in the store. It never touches live connections.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/aula/internal/classroom"
	"github.com/MrWong99/aula/internal/observe"
	"github.com/MrWong99/aula/pkg/store"
	"github.com/MrWong99/aula/pkg/store/memstore"
)

// Default lifecycle parameters.
const (
	defaultCodeTTL             = 2 * time.Hour
	defaultGracePeriod         = 30 * time.Minute
	defaultInactivityThreshold = 2 * time.Hour
	defaultMinRealDuration     = 5 * time.Minute
)

// ErrUnknownSession is returned for operations on a session that is not held
// in memory.
var ErrUnknownSession = errors.New("session: unknown session")

// Config configures a [Lifecycle].
type Config struct {
	// Classrooms issues and resolves join codes. Required.
	Classrooms *classroom.Manager

	// Store persists session records. Default: an in-memory store.
	Store store.SessionStore

	// CodeTTL is the lifetime of a classroom code. It is extended while the
	// teacher is connected and active. Default: 2h.
	CodeTTL time.Duration

	// GracePeriod is how long a disconnected teacher can come back to the
	// same session. Default: 30m.
	GracePeriod time.Duration

	// InactivityThreshold is the idle time after which a session without a
	// connected teacher is considered dead. Default: 2h.
	InactivityThreshold time.Duration

	// MinRealDuration is the minimum active duration of a real session.
	// Default: 5m.
	MinRealDuration time.Duration

	// Metrics records the active session gauge. Default: observe.DefaultMetrics.
	Metrics *observe.Metrics

	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

// Registration is the outcome of [Lifecycle.RegisterTeacher].
type Registration struct {
	TeacherID     string
	SessionID     string
	ClassroomCode string
	CodeExpiresAt time.Time
	Resumed       bool
}

// binding ties a teacher identity to its live session.
type binding struct {
	teacherID      string
	sessionID      string
	code           string
	lastSeenAt     time.Time
	disconnectedAt time.Time
	connections    int
}

// activity is the in-memory activity record of a session.
type activity struct {
	sessionID          string
	teacherID          string
	language           string
	createdAt          time.Time
	lastActivityAt     time.Time
	studentsEverJoined int
	translations       int
}

func (a *activity) duration() time.Duration {
	return a.lastActivityAt.Sub(a.createdAt)
}

// Lifecycle owns teacher to session continuity. Safe for concurrent use.
type Lifecycle struct {
	cfg     Config
	store   *storeGuard
	codes   *classroom.Manager
	metrics *observe.Metrics
	now     func() time.Time

	mu       sync.Mutex
	bindings map[string]*binding  // teacherID -> binding
	sessions map[string]*activity // sessionID -> activity
}

// New creates a [Lifecycle]. Zero-value config fields get defaults.
func New(cfg Config) (*Lifecycle, error) {
	if cfg.Classrooms == nil {
		return nil, errors.New("session: classroom manager is required")
	}
	if cfg.Store == nil {
		cfg.Store = memstore.New()
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = defaultCodeTTL
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = defaultGracePeriod
	}
	if cfg.InactivityThreshold <= 0 {
		cfg.InactivityThreshold = defaultInactivityThreshold
	}
	if cfg.MinRealDuration <= 0 {
		cfg.MinRealDuration = defaultMinRealDuration
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Lifecycle{
		cfg:      cfg,
		store:    &storeGuard{store: cfg.Store},
		codes:    cfg.Classrooms,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
		bindings: make(map[string]*binding),
		sessions: make(map[string]*activity),
	}, nil
}

// StoreDegraded reports whether the last store write failed.
func (l *Lifecycle) StoreDegraded() bool {
	return l.store.IsDegraded()
}

// RegisterTeacher binds a teacher connection to a session.
//
//   - A teacher id with no live session gets a new session and code.
//   - A teacher id whose session is connected, or disconnected for less than
//     the grace period, resumes that session with the same code.
//   - A teacher id whose grace period elapsed gets a new session and code;
//     the old session is left for the cleanup pass.
//
// An empty teacherID is treated as a never-seen identity.
func (l *Lifecycle) RegisterTeacher(ctx context.Context, teacherID, language string) (Registration, error) {
	anonymous := teacherID == ""
	if anonymous {
		teacherID = "anon-" + uuid.NewString()
	}

	// After a restart the binding lives only in the store.
	var (
		persisted    store.Session
		hasPersisted bool
	)
	if !anonymous && !l.hasBinding(teacherID) {
		persisted, hasPersisted = l.store.findActive(ctx, teacherID)
	}

	l.mu.Lock()
	now := l.now()

	if b, ok := l.bindings[teacherID]; ok {
		if l.withinGrace(b, now) {
			reg, rec, err := l.resumeLocked(b, now)
			l.mu.Unlock()
			if err != nil {
				return Registration{}, err
			}
			l.store.update(ctx, rec)
			slog.Info("teacher resumed session",
				"teacher_id", teacherID, "session_id", reg.SessionID, "code", reg.ClassroomCode)
			return reg, nil
		}
		slog.Info("grace period elapsed, starting new session",
			"teacher_id", teacherID, "old_session_id", b.sessionID)
		l.codes.InvalidateSession(b.sessionID)
		delete(l.bindings, teacherID)
	}

	if hasPersisted && now.Sub(persisted.LastActivityAt) <= l.cfg.GracePeriod {
		reg, rec, err := l.adoptLocked(teacherID, persisted, now)
		l.mu.Unlock()
		if err != nil {
			return Registration{}, err
		}
		l.store.update(ctx, rec)
		slog.Info("teacher resumed persisted session",
			"teacher_id", teacherID, "session_id", reg.SessionID, "code", reg.ClassroomCode)
		return reg, nil
	}

	reg, rec, err := l.createLocked(teacherID, language, now)
	l.mu.Unlock()
	if err != nil {
		return Registration{}, err
	}
	l.metrics.ActiveSessions.Add(ctx, 1)
	l.store.create(ctx, rec)
	slog.Info("teacher session created",
		"teacher_id", teacherID, "session_id", reg.SessionID, "code", reg.ClassroomCode)
	return reg, nil
}

func (l *Lifecycle) hasBinding(teacherID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.bindings[teacherID]
	return ok
}

// withinGrace must be called with l.mu held.
func (l *Lifecycle) withinGrace(b *binding, now time.Time) bool {
	return b.connections > 0 || b.disconnectedAt.IsZero() || now.Sub(b.disconnectedAt) <= l.cfg.GracePeriod
}

// resumeLocked must be called with l.mu held.
func (l *Lifecycle) resumeLocked(b *binding, now time.Time) (Registration, store.Session, error) {
	code, err := l.issueCode(b.sessionID, b.code)
	if err != nil {
		return Registration{}, store.Session{}, err
	}
	b.code = code.Code
	b.lastSeenAt = now
	b.disconnectedAt = time.Time{}
	b.connections++

	a, ok := l.sessions[b.sessionID]
	if !ok {
		a = &activity{sessionID: b.sessionID, teacherID: b.teacherID, createdAt: now}
		l.sessions[b.sessionID] = a
	}
	a.lastActivityAt = now

	return Registration{
		TeacherID:     b.teacherID,
		SessionID:     b.sessionID,
		ClassroomCode: code.Code,
		CodeExpiresAt: code.ExpiresAt,
		Resumed:       true,
	}, l.recordLocked(a, code.Code), nil
}

// adoptLocked rebuilds in-memory state for a session found in the store.
// Must be called with l.mu held.
func (l *Lifecycle) adoptLocked(teacherID string, s store.Session, now time.Time) (Registration, store.Session, error) {
	l.sessions[s.ID] = &activity{
		sessionID:          s.ID,
		teacherID:          teacherID,
		language:           s.TeacherLanguage,
		createdAt:          s.StartTime,
		lastActivityAt:     now,
		studentsEverJoined: s.StudentCount,
		translations:       s.TotalTranslations,
	}
	b := &binding{teacherID: teacherID, sessionID: s.ID, code: s.ClassroomCode}
	l.bindings[teacherID] = b
	l.metrics.ActiveSessions.Add(context.Background(), 1)
	return l.resumeLocked(b, now)
}

// createLocked must be called with l.mu held.
func (l *Lifecycle) createLocked(teacherID, language string, now time.Time) (Registration, store.Session, error) {
	sessionID := uuid.NewString()
	code, err := l.codes.CreateOrRefresh(sessionID, l.cfg.CodeTTL)
	if err != nil {
		return Registration{}, store.Session{}, fmt.Errorf("session: register teacher: %w", err)
	}

	l.bindings[teacherID] = &binding{
		teacherID:   teacherID,
		sessionID:   sessionID,
		code:        code.Code,
		lastSeenAt:  now,
		connections: 1,
	}
	a := &activity{
		sessionID:      sessionID,
		teacherID:      teacherID,
		language:       language,
		createdAt:      now,
		lastActivityAt: now,
	}
	l.sessions[sessionID] = a

	return Registration{
		TeacherID:     teacherID,
		SessionID:     sessionID,
		ClassroomCode: code.Code,
		CodeExpiresAt: code.ExpiresAt,
	}, l.recordLocked(a, code.Code), nil
}

// issueCode re-installs prefer for sessionID, or issues a fresh code if prefer
// is empty or was taken by another session.
func (l *Lifecycle) issueCode(sessionID, prefer string) (classroom.Code, error) {
	if prefer != "" {
		c, err := l.codes.Restore(prefer, sessionID, l.cfg.CodeTTL)
		if err == nil {
			return c, nil
		}
		slog.Warn("could not restore classroom code, issuing a new one",
			"session_id", sessionID, "code", prefer, "err", err)
	}
	c, err := l.codes.CreateOrRefresh(sessionID, l.cfg.CodeTTL)
	if err != nil {
		return classroom.Code{}, fmt.Errorf("session: issue code: %w", err)
	}
	return c, nil
}

// recordLocked builds the persisted view of a. Must be called with l.mu held.
func (l *Lifecycle) recordLocked(a *activity, code string) store.Session {
	return store.Session{
		ID:                a.sessionID,
		TeacherID:         a.teacherID,
		ClassroomCode:     code,
		TeacherLanguage:   a.language,
		IsActive:          true,
		StartTime:         a.createdAt,
		LastActivityAt:    a.lastActivityAt,
		StudentCount:      a.studentsEverJoined,
		TotalTranslations: a.translations,
		Quality:           l.classifyLocked(a, l.now()).Quality,
	}
}

// TeacherDisconnected records that one connection of teacherID closed. When
// the last one closes, the grace period starts.
func (l *Lifecycle) TeacherDisconnected(teacherID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.bindings[teacherID]
	if !ok {
		return
	}
	if b.connections > 0 {
		b.connections--
	}
	if b.connections == 0 {
		b.disconnectedAt = l.now()
		slog.Info("teacher disconnected, grace period started",
			"teacher_id", teacherID, "session_id", b.sessionID, "grace", l.cfg.GracePeriod)
	}
}

// RecordActivity marks sessionID as active now. While the teacher is
// connected, the classroom code is kept alive.
func (l *Lifecycle) RecordActivity(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.sessions[sessionID]
	if !ok {
		return
	}
	a.lastActivityAt = l.now()
	if b, ok := l.bindings[a.teacherID]; ok && b.sessionID == sessionID && b.connections > 0 {
		if _, err := l.codes.Restore(b.code, sessionID, l.cfg.CodeTTL); err != nil {
			slog.Debug("could not extend classroom code", "session_id", sessionID, "err", err)
		}
	}
}

// RecordStudentJoined counts a student joining sessionID.
func (l *Lifecycle) RecordStudentJoined(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if a, ok := l.sessions[sessionID]; ok {
		a.studentsEverJoined++
		a.lastActivityAt = l.now()
	}
}

// RecordTranslation adds n delivered translations to sessionID.
func (l *Lifecycle) RecordTranslation(sessionID string, n int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if a, ok := l.sessions[sessionID]; ok {
		a.translations += n
	}
}

// Active reports whether sessionID is held in memory.
func (l *Lifecycle) Active(sessionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.sessions[sessionID]
	return ok
}

// ActiveCount returns the number of sessions held in memory.
func (l *Lifecycle) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

// EndSession tears sessionID down: its code is invalidated, the teacher
// binding is dropped, and the store record is marked inactive. Connections
// are left to the caller.
func (l *Lifecycle) EndSession(ctx context.Context, sessionID string) error {
	l.mu.Lock()
	a, ok := l.sessions[sessionID]
	if !ok {
		l.mu.Unlock()
		return ErrUnknownSession
	}
	now := l.now()
	quality, reason := l.finalQualityLocked(a, now), "ended by teacher"
	l.removeLocked(a)
	l.mu.Unlock()

	l.metrics.ActiveSessions.Add(ctx, -1)
	l.store.end(ctx, sessionID, now, quality, reason)
	slog.Info("session ended", "session_id", sessionID, "quality", quality)
	return nil
}

// removeLocked drops every in-memory trace of a. Must be called with l.mu held.
func (l *Lifecycle) removeLocked(a *activity) {
	delete(l.sessions, a.sessionID)
	if b, ok := l.bindings[a.teacherID]; ok && b.sessionID == a.sessionID {
		delete(l.bindings, a.teacherID)
	}
	l.codes.InvalidateSession(a.sessionID)
}

// Run performs [Lifecycle.Cleanup] every interval until ctx is cancelled.
func (l *Lifecycle) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := l.Cleanup(ctx)
			if report.Ended > 0 {
				slog.Info("session cleanup", "ended", report.Ended, "active", report.Active)
			}
		}
	}
}
