// Package postgres provides a PostgreSQL-backed [store.SessionStore].
//
// Usage:
//
//	s, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer s.Close()
//
//	_ = s.Create(ctx, store.Session{ID: id, TeacherID: teacher, IsActive: true})
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSessions = `
CREATE TABLE IF NOT EXISTS classroom_sessions (
    id                 TEXT         PRIMARY KEY,
    teacher_id         TEXT         NOT NULL,
    classroom_code     TEXT         NOT NULL DEFAULT '',
    teacher_language   TEXT         NOT NULL DEFAULT '',
    is_active          BOOLEAN      NOT NULL DEFAULT TRUE,
    start_time         TIMESTAMPTZ  NOT NULL DEFAULT now(),
    end_time           TIMESTAMPTZ,
    last_activity_at   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    student_count      INTEGER      NOT NULL DEFAULT 0,
    total_translations INTEGER      NOT NULL DEFAULT 0,
    quality            TEXT         NOT NULL DEFAULT 'unclassified',
    quality_reason     TEXT         NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_classroom_sessions_teacher_active
    ON classroom_sessions (teacher_id, start_time DESC) WHERE is_active;

CREATE INDEX IF NOT EXISTS idx_classroom_sessions_active
    ON classroom_sessions (is_active);
`

// Migrate creates the session table and indexes. It is idempotent and safe
// to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlSessions); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
