package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/aula/pkg/store"
	"github.com/MrWong99/aula/pkg/store/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if AULA_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("AULA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("AULA_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] with a clean schema.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS classroom_sessions CASCADE"); err != nil {
		t.Fatalf("drop schema: %v", err)
	}
	pool.Close()

	s, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestStore_CreateGetUpdateEnd(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Now().UTC().Truncate(time.Millisecond)

	sess := store.Session{
		ID:              "sess-1",
		TeacherID:       "teacher-1",
		ClassroomCode:   "ABC234",
		TeacherLanguage: "en-US",
		IsActive:        true,
		StartTime:       start,
		LastActivityAt:  start,
	}
	if err := s.Create(ctx, sess); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.TeacherID != "teacher-1" || got.Quality != store.QualityUnclassified || !got.EndTime.IsZero() {
		t.Errorf("Get = %+v", got)
	}

	sess.TotalTranslations = 12
	sess.StudentCount = 3
	sess.LastActivityAt = start.Add(time.Minute)
	if err := s.Update(ctx, sess); err != nil {
		t.Fatalf("Update: %v", err)
	}

	active, err := s.FindActiveByTeacher(ctx, "teacher-1")
	if err != nil {
		t.Fatalf("FindActiveByTeacher: %v", err)
	}
	if active.TotalTranslations != 12 || active.StudentCount != 3 {
		t.Errorf("after Update = %+v", active)
	}

	end := start.Add(time.Hour)
	if err := s.End(ctx, "sess-1", end, store.QualityDead, "inactive"); err != nil {
		t.Fatalf("End: %v", err)
	}
	got, _ = s.Get(ctx, "sess-1")
	if got.IsActive || got.Quality != store.QualityDead || !got.EndTime.Equal(end) {
		t.Errorf("after End = %+v", got)
	}
	if _, err := s.FindActiveByTeacher(ctx, "teacher-1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("FindActiveByTeacher after End: err = %v", err)
	}
}

func TestStore_ListActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, id := range []string{"a", "b", "c"} {
		if err := s.Create(ctx, store.Session{
			ID: id, TeacherID: "t", IsActive: true,
			StartTime: now.Add(time.Duration(i) * time.Minute), LastActivityAt: now,
		}); err != nil {
			t.Fatalf("Create(%s): %v", id, err)
		}
	}
	if err := s.End(ctx, "b", now, store.QualityTooShort, ""); err != nil {
		t.Fatalf("End: %v", err)
	}

	active, err := s.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 2 || active[0].ID != "a" || active[1].ID != "c" {
		t.Errorf("ListActive = %+v", active)
	}
}

func TestStore_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get err = %v", err)
	}
	if err := s.Update(ctx, store.Session{ID: "missing"}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Update err = %v", err)
	}
	if err := s.End(ctx, "missing", time.Now(), store.QualityDead, ""); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("End err = %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
