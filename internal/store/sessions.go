package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/clerk/internal/session"
)

type SessionRow struct {
	ID        uuid.UUID
	MeetingID string
	Platform  string
	Strategy  string
	Title     string
	State     string
	Reason    string
	Status    string
	StartedAt time.Time
	Segments  int64
	Chunks    int64
	Bytes     int64
}

// UpsertSession records the current snapshot of a capture session.
func (s *Store) UpsertSession(ctx context.Context, snap session.Snapshot) error {
	id, err := uuid.Parse(snap.ID)
	if err != nil {
		return fmt.Errorf("session id: %w", err)
	}
	_, err = s.pool.Exec(ctx, upsertSessionSQL,
		id, snap.MeetingID, snap.Platform, snap.Strategy, snap.Title, string(snap.State), snap.Reason,
		snap.StartedAt, snap.Segments, snap.Chunks, snap.Bytes,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

const upsertSessionSQL = `
	INSERT INTO capture_sessions (id, meeting_id, platform, strategy, title, state, reason, started_at, segments, chunks, bytes, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
	ON CONFLICT (id) DO UPDATE SET
		title = EXCLUDED.title,
		state = EXCLUDED.state,
		reason = EXCLUDED.reason,
		segments = EXCLUDED.segments,
		chunks = EXCLUDED.chunks,
		bytes = EXCLUDED.bytes,
		updated_at = now()`

// Report stores the final outcome. It satisfies session.Reporter.
func (s *Store) Report(ctx context.Context, snap session.Snapshot, status session.Status) error {
	if err := s.UpsertSession(ctx, snap); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE capture_sessions SET status = $1, updated_at = now()
		WHERE id = $2`,
		string(status), snap.ID,
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// GetSession fetches a session by ID.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*SessionRow, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, meeting_id, platform, strategy, title, state, reason, status, started_at, segments, chunks, bytes
		FROM capture_sessions WHERE id = $1`, id)

	var r SessionRow
	err := row.Scan(&r.ID, &r.MeetingID, &r.Platform, &r.Strategy, &r.Title, &r.State, &r.Reason, &r.Status, &r.StartedAt, &r.Segments, &r.Chunks, &r.Bytes)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
