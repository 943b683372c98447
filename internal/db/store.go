package db

import (
	"context"
	"time"
)

// The flat method set below adapts DB to the storage interfaces consumed by
// the ingest and sync packages, so callers hold one explicit storage handle
// instead of reaching for individual repositories.

// ArtistByID retrieves an artist by Spotify ID.
func (db *DB) ArtistByID(ctx context.Context, id string) (*Artist, error) {
	return db.Artists().Get(ctx, id)
}

// CreateArtist inserts a new artist.
func (db *DB) CreateArtist(ctx context.Context, artist *Artist) error {
	return db.Artists().Create(ctx, artist)
}

// AlbumByID retrieves an album by Spotify ID.
func (db *DB) AlbumByID(ctx context.Context, id string) (*Album, error) {
	return db.Albums().Get(ctx, id)
}

// CreateAlbum inserts a new album.
func (db *DB) CreateAlbum(ctx context.Context, album *Album) error {
	return db.Albums().Create(ctx, album)
}

// AlbumArtistIDs lists the artist IDs associated with an album.
func (db *DB) AlbumArtistIDs(ctx context.Context, albumID string) ([]string, error) {
	return db.Albums().ArtistIDs(ctx, albumID)
}

// AddAlbumArtist associates an artist with an album.
func (db *DB) AddAlbumArtist(ctx context.Context, albumID, artistID string) error {
	return db.Albums().AddArtist(ctx, albumID, artistID)
}

// TrackByID retrieves a track by Spotify ID.
func (db *DB) TrackByID(ctx context.Context, id string) (*Track, error) {
	return db.Tracks().Get(ctx, id)
}

// CreateTrack inserts a new track.
func (db *DB) CreateTrack(ctx context.Context, track *Track) error {
	return db.Tracks().Create(ctx, track)
}

// TrackArtistIDs lists the artist IDs associated with a track.
func (db *DB) TrackArtistIDs(ctx context.Context, trackID string) ([]string, error) {
	return db.Tracks().ArtistIDs(ctx, trackID)
}

// AddTrackArtist associates an artist with a track.
func (db *DB) AddTrackArtist(ctx context.Context, trackID, artistID string) error {
	return db.Tracks().AddArtist(ctx, trackID, artistID)
}

// PlayByTrackAndPlayedAt retrieves the play matching the de-duplication key.
func (db *DB) PlayByTrackAndPlayedAt(ctx context.Context, trackID string, playedAt time.Time) (*Play, error) {
	return db.Plays().GetByTrackAndPlayedAt(ctx, trackID, playedAt)
}

// CreatePlay inserts a new play.
func (db *DB) CreatePlay(ctx context.Context, play *Play) error {
	return db.Plays().Create(ctx, play)
}

// LatestPlayedAt returns the most recent playback timestamp on record.
func (db *DB) LatestPlayedAt(ctx context.Context) (time.Time, error) {
	return db.Plays().LatestPlayedAt(ctx)
}

// CreateSyncLog inserts a new sync audit row.
func (db *DB) CreateSyncLog(ctx context.Context, log *SyncLog) error {
	return db.SyncLogs().Create(ctx, log)
}
