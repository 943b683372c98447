package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PlayRepository handles listening-history database operations.
type PlayRepository struct {
	pool *pgxpool.Pool
}

// GetByTrackAndPlayedAt retrieves the play matching the (track_id, played_at)
// de-duplication key. Returns ErrNotFound when no such play exists.
func (r *PlayRepository) GetByTrackAndPlayedAt(ctx context.Context, trackID string, playedAt time.Time) (*Play, error) {
	query := `
		SELECT play_id, track_id, track_name, context_type, context_uri,
		       entry_type, played_at, created_at, updated_at
		FROM listening_history
		WHERE track_id = $1 AND played_at = $2
	`
	var play Play
	err := r.pool.QueryRow(ctx, query, trackID, playedAt).Scan(
		&play.ID,
		&play.TrackID,
		&play.TrackName,
		&play.ContextType,
		&play.ContextURI,
		&play.EntryType,
		&play.PlayedAt,
		&play.CreatedAt,
		&play.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying play: %w", err)
	}
	return &play, nil
}

// Create inserts a new play. Returns ErrDuplicate when a play with the same
// (track_id, played_at) pair already exists.
func (r *PlayRepository) Create(ctx context.Context, play *Play) error {
	query := `
		INSERT INTO listening_history (track_id, track_name, context_type, context_uri,
		                               entry_type, played_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING play_id, created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		play.TrackID,
		play.TrackName,
		play.ContextType,
		play.ContextURI,
		play.EntryType,
		play.PlayedAt,
	).Scan(&play.ID, &play.CreatedAt, &play.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("inserting play for track %s at %s: %w",
			play.TrackID, play.PlayedAt.Format(time.RFC3339), ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("inserting play: %w", err)
	}
	return nil
}

// LatestPlayedAt returns the most recent playback timestamp across all plays,
// or the zero time when the history is empty. The orchestrator uses it as the
// fetch cutoff.
func (r *PlayRepository) LatestPlayedAt(ctx context.Context) (time.Time, error) {
	query := `SELECT COALESCE(MAX(played_at), 'epoch'::timestamptz) FROM listening_history`

	var latest time.Time
	if err := r.pool.QueryRow(ctx, query).Scan(&latest); err != nil {
		return time.Time{}, fmt.Errorf("querying latest played_at: %w", err)
	}
	if latest.Equal(time.Unix(0, 0).UTC()) {
		return time.Time{}, nil
	}
	return latest, nil
}

// BackfillTrackNames fills the denormalized track_name column from the tracks
// table for rows where it is still NULL. Returns the number of rows updated.
func (r *PlayRepository) BackfillTrackNames(ctx context.Context) (int64, error) {
	query := `
		UPDATE listening_history
		SET track_name = t.name, updated_at = NOW()
		FROM tracks t
		WHERE listening_history.track_id = t.track_id
		  AND listening_history.track_name IS NULL
	`
	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("backfilling track names: %w", err)
	}
	return tag.RowsAffected(), nil
}
