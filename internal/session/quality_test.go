package session

import (
	"context"
	"testing"
	"time"

	"github.com/MrWong99/aula/pkg/store"
)

func labelOf(t *testing.T, cs []Classification, sessionID string) Classification {
	t.Helper()
	for _, c := range cs {
		if c.SessionID == sessionID {
			return c
		}
	}
	t.Fatalf("session %s not classified", sessionID)
	return Classification{}
}

func TestClassify(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	live := f.register(t, "live")
	short := f.register(t, "short")
	full := f.register(t, "real")

	f.lc.RecordStudentJoined(full.SessionID)
	f.clk.Advance(10 * time.Minute)
	f.lc.RecordActivity(full.SessionID)
	f.lc.RecordActivity(live.SessionID)

	f.lc.TeacherDisconnected("short")

	cs := f.lc.Classify(f.clk.Now())
	if got := labelOf(t, cs, live.SessionID).Quality; got != store.QualityUnclassified {
		t.Errorf("live session = %s, want unclassified", got)
	}
	if got := labelOf(t, cs, short.SessionID).Quality; got != store.QualityTooShort {
		t.Errorf("short session = %s, want too_short", got)
	}
	if got := labelOf(t, cs, full.SessionID).Quality; got != store.QualityReal {
		t.Errorf("real session = %s, want real", got)
	}
}

func TestCleanup_EndsAbandonedSessions(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	dead := f.register(t, "gone")
	f.lc.RecordStudentJoined(dead.SessionID)
	f.clk.Advance(10 * time.Minute)
	f.lc.RecordActivity(dead.SessionID)
	f.lc.TeacherDisconnected("gone")

	present := f.register(t, "present")

	f.clk.Advance(2 * time.Hour)

	report := f.lc.Cleanup(ctx)
	if report.Ended != 1 || report.Active != 1 {
		t.Errorf("report = %+v, want 1 ended, 1 active", report)
	}
	if report.Labels[store.QualityDead] != 1 {
		t.Errorf("labels = %v, want one dead", report.Labels)
	}

	rec, err := f.store.Get(ctx, dead.SessionID)
	if err != nil {
		t.Fatalf("dead session record deleted: %v", err)
	}
	if rec.IsActive || rec.Quality != store.QualityDead || rec.QualityReason == "" {
		t.Errorf("dead record = %+v", rec)
	}

	// A connected teacher is never ended, however idle.
	if !f.lc.Active(present.SessionID) {
		t.Error("session with a connected teacher was cleaned up")
	}
}

func TestCleanup_PersistsCounters(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	reg := f.register(t, "teacher-1")
	f.lc.RecordStudentJoined(reg.SessionID)
	f.lc.RecordStudentJoined(reg.SessionID)
	f.lc.RecordTranslation(reg.SessionID, 5)

	f.lc.Cleanup(ctx)

	rec, _ := f.store.Get(ctx, reg.SessionID)
	if rec.StudentCount != 2 || rec.TotalTranslations != 5 {
		t.Errorf("persisted = %+v", rec)
	}
	if rec.ClassroomCode != reg.ClassroomCode {
		t.Errorf("persisted code = %q, want %q", rec.ClassroomCode, reg.ClassroomCode)
	}
}

func TestCleanup_ExpiresGraceBindings(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	reg := f.register(t, "teacher-1")
	f.lc.TeacherDisconnected("teacher-1")
	f.clk.Advance(11 * time.Minute)

	report := f.lc.Cleanup(context.Background())
	if report.Expired != 1 {
		t.Errorf("Expired = %d, want 1", report.Expired)
	}
	if _, err := f.codes.Resolve(reg.ClassroomCode); err == nil {
		t.Error("code still valid after grace expired")
	}
}
