package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ArtistRepository handles artist database operations.
type ArtistRepository struct {
	pool *pgxpool.Pool
}

// Get retrieves an artist by its Spotify ID.
func (r *ArtistRepository) Get(ctx context.Context, id string) (*Artist, error) {
	query := `
		SELECT artist_id, name, popularity, followers, genres, images,
		       external_url, href, uri, spotify_type, created_at, updated_at
		FROM artists
		WHERE artist_id = $1
	`
	var artist Artist
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&artist.ID,
		&artist.Name,
		&artist.Popularity,
		&artist.Followers,
		&artist.Genres,
		&artist.Images,
		&artist.ExternalURL,
		&artist.Href,
		&artist.URI,
		&artist.SpotifyType,
		&artist.CreatedAt,
		&artist.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying artist: %w", err)
	}
	return &artist, nil
}

// Create inserts a new artist. Returns ErrDuplicate if the ID already exists.
func (r *ArtistRepository) Create(ctx context.Context, artist *Artist) error {
	query := `
		INSERT INTO artists (artist_id, name, popularity, followers, genres, images,
		                     external_url, href, uri, spotify_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		artist.ID,
		artist.Name,
		artist.Popularity,
		artist.Followers,
		jsonSlice(artist.Genres),
		jsonSlice(artist.Images),
		artist.ExternalURL,
		artist.Href,
		artist.URI,
		artist.SpotifyType,
	).Scan(&artist.CreatedAt, &artist.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("inserting artist %s: %w", artist.ID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("inserting artist: %w", err)
	}
	return nil
}

// jsonSlice normalizes a nil slice to an empty one so JSONB columns always
// hold an array rather than SQL NULL.
func jsonSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
