package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/clerk/internal/session"
	"github.com/MikeSquared-Agency/clerk/internal/transcript"
)

// SaveTranscript writes the session row and replaces its segments in one
// transaction.
func (s *Store) SaveTranscript(ctx context.Context, snap session.Snapshot, tr transcript.Transcript) error {
	id, err := uuid.Parse(snap.ID)
	if err != nil {
		return fmt.Errorf("session id: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, upsertSessionSQL,
		id, snap.MeetingID, snap.Platform, snap.Strategy, snap.Title, string(snap.State), snap.Reason,
		snap.StartedAt, snap.Segments, snap.Chunks, snap.Bytes,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM transcript_segments WHERE session_id = $1`, id); err != nil {
		return fmt.Errorf("clear segments: %w", err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"transcript_segments"},
		[]string{"session_id", "seq", "speaker", "text", "start_at", "end_at"},
		pgx.CopyFromSlice(len(tr.Segments), func(i int) ([]any, error) {
			seg := tr.Segments[i]
			return []any{id, i, seg.Speaker, seg.Text, seg.Start, seg.End}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy segments: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListSegments returns a session's segments in transcript order.
func (s *Store) ListSegments(ctx context.Context, sessionID uuid.UUID) ([]transcript.Segment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT speaker, text, start_at, end_at
		FROM transcript_segments WHERE session_id = $1
		ORDER BY seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []transcript.Segment
	for rows.Next() {
		var seg transcript.Segment
		if err := rows.Scan(&seg.Speaker, &seg.Text, &seg.Start, &seg.End); err != nil {
			return nil, err
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}
