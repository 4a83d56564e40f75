package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS capture_sessions (
	id            uuid PRIMARY KEY,
	meeting_id    text NOT NULL DEFAULT '',
	platform      text NOT NULL,
	strategy      text NOT NULL,
	title         text NOT NULL DEFAULT '',
	state         text NOT NULL,
	reason        text NOT NULL DEFAULT '',
	status        text NOT NULL DEFAULT '',
	started_at    timestamptz NOT NULL,
	segments      bigint NOT NULL DEFAULT 0,
	chunks        bigint NOT NULL DEFAULT 0,
	bytes         bigint NOT NULL DEFAULT 0,
	updated_at    timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transcript_segments (
	session_id uuid NOT NULL REFERENCES capture_sessions(id) ON DELETE CASCADE,
	seq        integer NOT NULL,
	speaker    text NOT NULL DEFAULT '',
	text       text NOT NULL,
	start_at   double precision NOT NULL,
	end_at     double precision NOT NULL,
	PRIMARY KEY (session_id, seq)
);

CREATE INDEX IF NOT EXISTS capture_sessions_meeting_id_idx ON capture_sessions (meeting_id);
`

// EnsureSchema creates the tables used by this package if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
