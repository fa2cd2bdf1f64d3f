package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSessions = `
CREATE TABLE IF NOT EXISTS audit_sessions (
    id               TEXT         PRIMARY KEY,
    schema_name      TEXT         NOT NULL DEFAULT '',
    grammar_branch   TEXT         NOT NULL DEFAULT '',
    accepted         BOOLEAN      NOT NULL,
    output           TEXT         NOT NULL DEFAULT '',
    tokens_consumed  INT          NOT NULL DEFAULT 0,
    tokens_healed    INT          NOT NULL DEFAULT 0,
    started_at       TIMESTAMPTZ  NOT NULL,
    finished_at      TIMESTAMPTZ  NOT NULL,
    duration_ns      BIGINT       NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_audit_sessions_finished_at
    ON audit_sessions (finished_at DESC);
`

// Migrate creates the audit_sessions table if it does not already exist. It
// is idempotent and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlSessions); err != nil {
		return fmt.Errorf("audit migrate: %w", err)
	}
	return nil
}

// PostgresStore is a [Store] backed by a single PostgreSQL table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a connection pool to dsn, runs [Migrate], and
// returns a ready-to-use [PostgresStore].
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() { s.pool.Close() }

func (s *PostgresStore) RecordSession(ctx context.Context, sess Session) error {
	const q = `
		INSERT INTO audit_sessions
		    (id, schema_name, grammar_branch, accepted, output, tokens_consumed, tokens_healed, started_at, finished_at, duration_ns)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
		    accepted        = EXCLUDED.accepted,
		    output          = EXCLUDED.output,
		    tokens_consumed = EXCLUDED.tokens_consumed,
		    tokens_healed   = EXCLUDED.tokens_healed,
		    finished_at     = EXCLUDED.finished_at,
		    duration_ns     = EXCLUDED.duration_ns`

	_, err := s.pool.Exec(ctx, q,
		sess.ID,
		sess.SchemaName,
		sess.GrammarBranch,
		sess.Accepted,
		sess.Output,
		sess.TokensConsumed,
		sess.TokensHealed,
		sess.StartedAt,
		sess.FinishedAt,
		sess.Duration.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("audit: record session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentSessions(ctx context.Context, limit int) ([]Session, error) {
	const q = `
		SELECT id, schema_name, grammar_branch, accepted, output, tokens_consumed, tokens_healed, started_at, finished_at, duration_ns
		FROM   audit_sessions
		ORDER  BY finished_at DESC
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: recent sessions: %w", err)
	}
	sessions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Session, error) {
		var sess Session
		var durationNS int64
		if err := row.Scan(
			&sess.ID,
			&sess.SchemaName,
			&sess.GrammarBranch,
			&sess.Accepted,
			&sess.Output,
			&sess.TokensConsumed,
			&sess.TokensHealed,
			&sess.StartedAt,
			&sess.FinishedAt,
			&durationNS,
		); err != nil {
			return Session{}, err
		}
		sess.Duration = time.Duration(durationNS)
		return sess, nil
	})
	if err != nil {
		return nil, fmt.Errorf("audit: scan rows: %w", err)
	}
	if sessions == nil {
		sessions = []Session{}
	}
	return sessions, nil
}
