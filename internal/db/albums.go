package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AlbumRepository handles album database operations, including the
// album_artists junction table.
type AlbumRepository struct {
	pool *pgxpool.Pool
}

// Get retrieves an album by its Spotify ID.
func (r *AlbumRepository) Get(ctx context.Context, id string) (*Album, error) {
	query := `
		SELECT album_id, name, album_type, release_date, release_precision,
		       total_tracks, genres, label, popularity, images,
		       external_url, href, uri, spotify_type, created_at, updated_at
		FROM albums
		WHERE album_id = $1
	`
	var album Album
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&album.ID,
		&album.Name,
		&album.AlbumType,
		&album.ReleaseDate,
		&album.ReleasePrecision,
		&album.TotalTracks,
		&album.Genres,
		&album.Label,
		&album.Popularity,
		&album.Images,
		&album.ExternalURL,
		&album.Href,
		&album.URI,
		&album.SpotifyType,
		&album.CreatedAt,
		&album.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying album: %w", err)
	}
	return &album, nil
}

// Create inserts a new album. Returns ErrDuplicate if the ID already exists.
func (r *AlbumRepository) Create(ctx context.Context, album *Album) error {
	query := `
		INSERT INTO albums (album_id, name, album_type, release_date, release_precision,
		                    total_tracks, genres, label, popularity, images,
		                    external_url, href, uri, spotify_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		album.ID,
		album.Name,
		album.AlbumType,
		album.ReleaseDate,
		album.ReleasePrecision,
		album.TotalTracks,
		jsonSlice(album.Genres),
		album.Label,
		album.Popularity,
		jsonSlice(album.Images),
		album.ExternalURL,
		album.Href,
		album.URI,
		album.SpotifyType,
	).Scan(&album.CreatedAt, &album.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("inserting album %s: %w", album.ID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("inserting album: %w", err)
	}
	return nil
}

// ArtistIDs returns the IDs of all artists associated with an album.
func (r *AlbumRepository) ArtistIDs(ctx context.Context, albumID string) ([]string, error) {
	query := `
		SELECT artist_id
		FROM album_artists
		WHERE album_id = $1
	`
	rows, err := r.pool.Query(ctx, query, albumID)
	if err != nil {
		return nil, fmt.Errorf("querying album artists: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning album artist: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddArtist associates an artist with an album. Returns ErrDuplicate if the
// pairing already exists.
func (r *AlbumRepository) AddArtist(ctx context.Context, albumID, artistID string) error {
	query := `
		INSERT INTO album_artists (album_id, artist_id, created_at)
		VALUES ($1, $2, NOW())
	`
	_, err := r.pool.Exec(ctx, query, albumID, artistID)
	if isUniqueViolation(err) {
		return fmt.Errorf("associating artist %s with album %s: %w", artistID, albumID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("associating artist with album: %w", err)
	}
	return nil
}
