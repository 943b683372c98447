package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TrackRepository handles track database operations, including the
// track_artists junction table.
type TrackRepository struct {
	pool *pgxpool.Pool
}

// Get retrieves a track by its Spotify ID.
func (r *TrackRepository) Get(ctx context.Context, id string) (*Track, error) {
	query := `
		SELECT track_id, name, duration_ms, explicit, popularity, disc_number,
		       track_number, is_playable, preview_url, external_url, href, uri,
		       spotify_type, album_id, created_at, updated_at
		FROM tracks
		WHERE track_id = $1
	`
	var track Track
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&track.ID,
		&track.Name,
		&track.DurationMS,
		&track.Explicit,
		&track.Popularity,
		&track.DiscNumber,
		&track.TrackNumber,
		&track.IsPlayable,
		&track.PreviewURL,
		&track.ExternalURL,
		&track.Href,
		&track.URI,
		&track.SpotifyType,
		&track.AlbumID,
		&track.CreatedAt,
		&track.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying track: %w", err)
	}
	return &track, nil
}

// Create inserts a new track. Returns ErrDuplicate if the ID already exists.
func (r *TrackRepository) Create(ctx context.Context, track *Track) error {
	query := `
		INSERT INTO tracks (track_id, name, duration_ms, explicit, popularity, disc_number,
		                    track_number, is_playable, preview_url, external_url, href, uri,
		                    spotify_type, album_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		track.ID,
		track.Name,
		track.DurationMS,
		track.Explicit,
		track.Popularity,
		track.DiscNumber,
		track.TrackNumber,
		track.IsPlayable,
		track.PreviewURL,
		track.ExternalURL,
		track.Href,
		track.URI,
		track.SpotifyType,
		track.AlbumID,
	).Scan(&track.CreatedAt, &track.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("inserting track %s: %w", track.ID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("inserting track: %w", err)
	}
	return nil
}

// ArtistIDs returns the IDs of all artists associated with a track.
func (r *TrackRepository) ArtistIDs(ctx context.Context, trackID string) ([]string, error) {
	query := `
		SELECT artist_id
		FROM track_artists
		WHERE track_id = $1
	`
	rows, err := r.pool.Query(ctx, query, trackID)
	if err != nil {
		return nil, fmt.Errorf("querying track artists: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning track artist: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddArtist associates an artist with a track. Returns ErrDuplicate if the
// pairing already exists.
func (r *TrackRepository) AddArtist(ctx context.Context, trackID, artistID string) error {
	query := `
		INSERT INTO track_artists (track_id, artist_id, created_at)
		VALUES ($1, $2, NOW())
	`
	_, err := r.pool.Exec(ctx, query, trackID, artistID)
	if isUniqueViolation(err) {
		return fmt.Errorf("associating artist %s with track %s: %w", artistID, trackID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("associating artist with track: %w", err)
	}
	return nil
}
