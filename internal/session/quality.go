package session

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/aula/pkg/store"
)

// Classification is the quality label of one session at a point in time.
type Classification struct {
	SessionID      string
	TeacherID      string
	Quality        store.Quality
	Reason         string
	Duration       time.Duration
	Idle           time.Duration
	StudentsJoined int
	Translations   int

	// Abandoned is true when no teacher is connected and the session has
	// been idle longer than the inactivity threshold.
	Abandoned bool
}

// CleanupReport summarises one cleanup pass.
type CleanupReport struct {
	Active  int
	Ended   int
	Expired int // bindings whose grace period elapsed
	Labels  map[store.Quality]int
}

// Classify labels every in-memory session as of now.
func (l *Lifecycle) Classify(now time.Time) []Classification {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Classification, 0, len(l.sessions))
	for _, a := range l.sessions {
		out = append(out, l.classifyLocked(a, now))
	}
	return out
}

// classifyLocked must be called with l.mu held.
//
// A session with no connected teacher and no students that lasted less than
// the minimum real duration is too_short. A session with no connected teacher
// idle for longer than the inactivity threshold is dead. A session with
// students that lasted at least the minimum real duration is real.
func (l *Lifecycle) classifyLocked(a *activity, now time.Time) Classification {
	c := Classification{
		SessionID:      a.sessionID,
		TeacherID:      a.teacherID,
		Quality:        store.QualityUnclassified,
		Duration:       a.duration(),
		Idle:           now.Sub(a.lastActivityAt),
		StudentsJoined: a.studentsEverJoined,
		Translations:   a.translations,
	}

	teacherPresent := false
	if b, ok := l.bindings[a.teacherID]; ok && b.sessionID == a.sessionID && b.connections > 0 {
		teacherPresent = true
	}
	c.Abandoned = !teacherPresent && c.Idle > l.cfg.InactivityThreshold

	switch {
	case !teacherPresent && a.studentsEverJoined == 0 && c.Duration < l.cfg.MinRealDuration:
		c.Quality = store.QualityTooShort
		c.Reason = fmt.Sprintf("no students joined, lasted %s", c.Duration.Round(time.Second))
	case c.Abandoned:
		c.Quality = store.QualityDead
		c.Reason = fmt.Sprintf("inactive for %s", c.Idle.Round(time.Second))
	case a.studentsEverJoined > 0 && c.Duration >= l.cfg.MinRealDuration:
		c.Quality = store.QualityReal
	}
	return c
}

// finalQualityLocked is the label stored for a session ended by its
// teacher. Must be called with l.mu held.
func (l *Lifecycle) finalQualityLocked(a *activity, now time.Time) store.Quality {
	d := now.Sub(a.createdAt)
	switch {
	case a.studentsEverJoined == 0 && d < l.cfg.MinRealDuration:
		return store.QualityTooShort
	case a.studentsEverJoined > 0 && d >= l.cfg.MinRealDuration:
		return store.QualityReal
	}
	return store.QualityUnclassified
}

// Cleanup labels every session, ends abandoned ones in the store, drops
// teacher bindings whose grace period elapsed, and persists the current
// counters of the rest. Live connections are never touched.
func (l *Lifecycle) Cleanup(ctx context.Context) CleanupReport {
	type ended struct {
		id      string
		quality store.Quality
		reason  string
	}
	var (
		toEnd    []ended
		toUpdate []store.Session
		report   = CleanupReport{Labels: map[store.Quality]int{}}
	)

	l.mu.Lock()
	now := l.now()
	for teacherID, b := range l.bindings {
		if !l.withinGrace(b, now) {
			delete(l.bindings, teacherID)
			l.codes.InvalidateSession(b.sessionID)
			report.Expired++
		}
	}
	for _, a := range l.sessions {
		c := l.classifyLocked(a, now)
		report.Labels[c.Quality]++
		if c.Abandoned {
			toEnd = append(toEnd, ended{id: a.sessionID, quality: c.Quality, reason: c.Reason})
			l.removeLocked(a)
			continue
		}
		code := ""
		if b, ok := l.bindings[a.teacherID]; ok && b.sessionID == a.sessionID {
			code = b.code
		}
		toUpdate = append(toUpdate, l.recordLocked(a, code))
	}
	report.Active = len(l.sessions)
	l.mu.Unlock()

	for _, e := range toEnd {
		l.metrics.ActiveSessions.Add(ctx, -1)
		l.store.end(ctx, e.id, now, e.quality, e.reason)
	}
	for _, rec := range toUpdate {
		l.store.update(ctx, rec)
	}
	report.Ended = len(toEnd)
	return report
}
