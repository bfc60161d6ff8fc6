package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/aula/pkg/store"
)

func TestStore_Lifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()
	start := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	sess := store.Session{ID: "s1", TeacherID: "t1", ClassroomCode: "ABC234", IsActive: true, StartTime: start}
	if err := s.Create(ctx, sess); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(ctx, sess); err == nil {
		t.Error("duplicate Create succeeded")
	}

	got, err := s.FindActiveByTeacher(ctx, "t1")
	if err != nil || got.ID != "s1" {
		t.Fatalf("FindActiveByTeacher = (%+v, %v)", got, err)
	}

	sess.TotalTranslations = 7
	sess.TeacherID = "someone-else" // immutable, must be ignored
	if err := s.Update(ctx, sess); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ = s.Get(ctx, "s1")
	if got.TotalTranslations != 7 || got.TeacherID != "t1" {
		t.Errorf("after Update = %+v", got)
	}

	if err := s.End(ctx, "s1", start.Add(time.Hour), store.QualityReal, ""); err != nil {
		t.Fatalf("End: %v", err)
	}
	if _, err := s.FindActiveByTeacher(ctx, "t1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ended session still active: %v", err)
	}
	if active, _ := s.ListActive(ctx); len(active) != 0 {
		t.Errorf("ListActive = %d, want 0", len(active))
	}
}

func TestStore_FindActiveByTeacherPicksNewest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()
	base := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	_ = s.Create(ctx, store.Session{ID: "old", TeacherID: "t1", IsActive: true, StartTime: base})
	_ = s.Create(ctx, store.Session{ID: "new", TeacherID: "t1", IsActive: true, StartTime: base.Add(time.Hour)})

	got, err := s.FindActiveByTeacher(ctx, "t1")
	if err != nil || got.ID != "new" {
		t.Errorf("FindActiveByTeacher = (%q, %v), want new", got.ID, err)
	}
}

func TestStore_NotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	if _, err := s.Get(ctx, "x"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get err = %v", err)
	}
	if err := s.Update(ctx, store.Session{ID: "x"}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Update err = %v", err)
	}
	if err := s.End(ctx, "x", time.Now(), store.QualityDead, ""); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("End err = %v", err)
	}
}
