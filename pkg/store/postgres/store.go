package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/aula/pkg/store"
)

// Compile-time interface assertion.
var _ store.SessionStore = (*Store)(nil)

// Store is a [store.SessionStore] backed by the classroom_sessions table.
// All operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a connection pool for dsn, verifies connectivity, and runs
// [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping implements [store.SessionStore].
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres store: ping: %w", err)
	}
	return nil
}

const selectColumns = `
	id, teacher_id, classroom_code, teacher_language, is_active,
	start_time, end_time, last_activity_at, student_count,
	total_translations, quality, quality_reason`

// Create implements [store.SessionStore].
func (s *Store) Create(ctx context.Context, sess store.Session) error {
	const q = `
		INSERT INTO classroom_sessions
		    (id, teacher_id, classroom_code, teacher_language, is_active,
		     start_time, last_activity_at, student_count, total_translations,
		     quality, quality_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	quality := sess.Quality
	if quality == "" {
		quality = store.QualityUnclassified
	}
	_, err := s.pool.Exec(ctx, q,
		sess.ID,
		sess.TeacherID,
		sess.ClassroomCode,
		sess.TeacherLanguage,
		sess.IsActive,
		sess.StartTime,
		sess.LastActivityAt,
		sess.StudentCount,
		sess.TotalTranslations,
		string(quality),
		sess.QualityReason,
	)
	if err != nil {
		return fmt.Errorf("session store: create: %w", err)
	}
	return nil
}

// Get implements [store.SessionStore].
func (s *Store) Get(ctx context.Context, id string) (store.Session, error) {
	q := `SELECT` + selectColumns + `
		FROM classroom_sessions
		WHERE id = $1`
	return s.queryOne(ctx, "get", q, id)
}

// FindActiveByTeacher implements [store.SessionStore].
func (s *Store) FindActiveByTeacher(ctx context.Context, teacherID string) (store.Session, error) {
	q := `SELECT` + selectColumns + `
		FROM   classroom_sessions
		WHERE  teacher_id = $1 AND is_active
		ORDER  BY start_time DESC
		LIMIT  1`
	return s.queryOne(ctx, "find active by teacher", q, teacherID)
}

// Update implements [store.SessionStore].
func (s *Store) Update(ctx context.Context, sess store.Session) error {
	const q = `
		UPDATE classroom_sessions
		SET    classroom_code = $2,
		       last_activity_at = $3,
		       student_count = $4,
		       total_translations = $5,
		       quality = $6,
		       quality_reason = $7
		WHERE  id = $1`

	tag, err := s.pool.Exec(ctx, q,
		sess.ID,
		sess.ClassroomCode,
		sess.LastActivityAt,
		sess.StudentCount,
		sess.TotalTranslations,
		string(sess.Quality),
		sess.QualityReason,
	)
	if err != nil {
		return fmt.Errorf("session store: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// End implements [store.SessionStore].
func (s *Store) End(ctx context.Context, id string, endTime time.Time, quality store.Quality, reason string) error {
	const q = `
		UPDATE classroom_sessions
		SET    is_active = FALSE, end_time = $2, quality = $3, quality_reason = $4
		WHERE  id = $1`

	tag, err := s.pool.Exec(ctx, q, id, endTime, string(quality), reason)
	if err != nil {
		return fmt.Errorf("session store: end: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListActive implements [store.SessionStore].
func (s *Store) ListActive(ctx context.Context) ([]store.Session, error) {
	q := `SELECT` + selectColumns + `
		FROM   classroom_sessions
		WHERE  is_active
		ORDER  BY start_time`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("session store: list active: %w", err)
	}
	sessions, err := pgx.CollectRows(rows, scanSession)
	if err != nil {
		return nil, fmt.Errorf("session store: list active: %w", err)
	}
	return sessions, nil
}

func (s *Store) queryOne(ctx context.Context, op, q string, args ...any) (store.Session, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return store.Session{}, fmt.Errorf("session store: %s: %w", op, err)
	}
	sess, err := pgx.CollectExactlyOneRow(rows, scanSession)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Session{}, store.ErrNotFound
	}
	if err != nil {
		return store.Session{}, fmt.Errorf("session store: %s: %w", op, err)
	}
	return sess, nil
}

// scanSession scans one classroom_sessions row selected with selectColumns.
func scanSession(row pgx.CollectableRow) (store.Session, error) {
	var (
		sess    store.Session
		endTime *time.Time
		quality string
	)
	if err := row.Scan(
		&sess.ID,
		&sess.TeacherID,
		&sess.ClassroomCode,
		&sess.TeacherLanguage,
		&sess.IsActive,
		&sess.StartTime,
		&endTime,
		&sess.LastActivityAt,
		&sess.StudentCount,
		&sess.TotalTranslations,
		&quality,
		&sess.QualityReason,
	); err != nil {
		return store.Session{}, err
	}
	if endTime != nil {
		sess.EndTime = *endTime
	}
	sess.Quality = store.Quality(quality)
	return sess, nil
}
