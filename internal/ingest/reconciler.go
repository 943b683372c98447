// Package ingest implements the reconciliation core: it decomposes raw play
// events into normalized artist, album and track records, resolving each to
// an existing or newly created row, and records each play at most once.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/corenest/spotilens/internal/db"
	"github.com/corenest/spotilens/internal/spotify"
)

// Event-local errors. The caller decides whether to skip the event and
// continue.
var (
	// ErrMalformedEvent is returned when an event lacks fields the core
	// cannot proceed without (track id, parseable timestamp, album id).
	ErrMalformedEvent = errors.New("malformed play event")

	// ErrIncompleteEvent is returned when an event resolves to zero track or
	// album artists.
	ErrIncompleteEvent = errors.New("incomplete play event")
)

// Placeholder names for records arriving without one.
const (
	unknownArtist = "Unknown Artist"
	unknownAlbum  = "Unknown Album"
	unknownTrack  = "Unknown Track"
)

// Store is the storage surface the reconciler needs: lookup by primary key,
// association listing, and single-row creates. Each call is its own committed
// unit; there is no transaction spanning a whole event.
type Store interface {
	ArtistByID(ctx context.Context, id string) (*db.Artist, error)
	CreateArtist(ctx context.Context, artist *db.Artist) error

	AlbumByID(ctx context.Context, id string) (*db.Album, error)
	CreateAlbum(ctx context.Context, album *db.Album) error
	AlbumArtistIDs(ctx context.Context, albumID string) ([]string, error)
	AddAlbumArtist(ctx context.Context, albumID, artistID string) error

	TrackByID(ctx context.Context, id string) (*db.Track, error)
	CreateTrack(ctx context.Context, track *db.Track) error
	TrackArtistIDs(ctx context.Context, trackID string) ([]string, error)
	AddTrackArtist(ctx context.Context, trackID, artistID string) error

	PlayByTrackAndPlayedAt(ctx context.Context, trackID string, playedAt time.Time) (*db.Play, error)
	CreatePlay(ctx context.Context, play *db.Play) error
}

// Reconciler resolves raw play events into normalized rows. It assumes at
// most one writer at a time: existence checks and creates are separate
// statements, so concurrent reconciliation of the same entity can surface a
// storage-level duplicate error, which is treated as fatal for that event.
type Reconciler struct {
	store  Store
	logger zerolog.Logger
}

// New creates a Reconciler backed by store.
func New(store Store, logger zerolog.Logger) *Reconciler {
	return &Reconciler{store: store, logger: logger}
}

// Process reconciles one raw event, returning the play row recorded for it.
// Re-processing an event whose (track id, played_at) pair is already on
// record returns the existing play without touching any entity. A failure
// partway through leaves earlier entity rows committed; re-processing later
// finds them and completes the event.
func (r *Reconciler) Process(ctx context.Context, item spotify.PlayHistoryItem, entryType string) (*db.Play, error) {
	if err := item.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	playedAt, err := item.PlayedAtTime()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	// Idempotency boundary: a known (track, timestamp) pair ends processing
	// before any entity work.
	existing, err := r.store.PlayByTrackAndPlayedAt(ctx, item.Track.ID, playedAt)
	if err == nil {
		r.logger.Debug().
			Str("track_id", item.Track.ID).
			Time("played_at", playedAt).
			Msg("play already recorded, skipping")
		return existing, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("checking for existing play: %w", err)
	}

	trackArtistIDs, err := r.resolveArtists(ctx, item.Track.Artists)
	if err != nil {
		return nil, err
	}
	if len(trackArtistIDs) == 0 {
		return nil, fmt.Errorf("%w: no valid track artists for track %s", ErrIncompleteEvent, item.Track.ID)
	}

	albumArtistIDs, err := r.resolveArtists(ctx, item.Track.Album.Artists)
	if err != nil {
		return nil, err
	}
	if len(albumArtistIDs) == 0 {
		return nil, fmt.Errorf("%w: no valid album artists for track %s", ErrIncompleteEvent, item.Track.ID)
	}

	if item.Track.Album.ID == "" {
		return nil, fmt.Errorf("%w: no album id for track %s", ErrMalformedEvent, item.Track.ID)
	}
	album, err := r.getOrCreateAlbum(ctx, item.Track.Album, albumArtistIDs)
	if err != nil {
		return nil, err
	}

	track, err := r.getOrCreateTrack(ctx, item.Track, album.ID, trackArtistIDs)
	if err != nil {
		return nil, err
	}

	play := &db.Play{
		TrackID:   track.ID,
		TrackName: &track.Name,
		EntryType: entryType,
		PlayedAt:  playedAt,
	}
	if item.Context != nil {
		if item.Context.Type != "" {
			play.ContextType = &item.Context.Type
		}
		if item.Context.URI != "" {
			play.ContextURI = &item.Context.URI
		}
	}
	if err := r.store.CreatePlay(ctx, play); err != nil {
		return nil, fmt.Errorf("creating play: %w", err)
	}

	r.logger.Info().
		Str("track_id", track.ID).
		Time("played_at", playedAt).
		Str("entry_type", entryType).
		Msg("recorded play")
	return play, nil
}

// resolveArtists resolves each artist sub-record to a normalized row and
// returns their IDs in first-seen order, de-duplicated. Sub-records without
// an id are skipped; a storage failure aborts the event.
func (r *Reconciler) resolveArtists(ctx context.Context, artists []spotify.Artist) ([]string, error) {
	var ids []string
	seen := make(map[string]bool)
	for _, data := range artists {
		if data.ID == "" || seen[data.ID] {
			continue
		}
		artist, err := r.getOrCreateArtist(ctx, data)
		if err != nil {
			return nil, err
		}
		seen[artist.ID] = true
		ids = append(ids, artist.ID)
	}
	return ids, nil
}

// getOrCreateArtist returns the artist row for data's id, creating it from
// the supplied fields when absent. Existing rows are returned unchanged, so
// the first write wins for all attributes.
func (r *Reconciler) getOrCreateArtist(ctx context.Context, data spotify.Artist) (*db.Artist, error) {
	existing, err := r.store.ArtistByID(ctx, data.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("looking up artist %s: %w", data.ID, err)
	}

	artist := &db.Artist{
		ID:          data.ID,
		Name:        data.Name,
		Popularity:  data.Popularity,
		Genres:      data.Genres,
		Images:      imageRows(data.Images),
		ExternalURL: spotifyURL(data.ExternalURLs),
		Href:        data.Href,
		URI:         data.URI,
		SpotifyType: data.Type,
	}
	if artist.Name == "" {
		artist.Name = unknownArtist
	}
	if data.Followers != nil {
		total := data.Followers.Total
		artist.Followers = &total
	}

	if err := r.store.CreateArtist(ctx, artist); err != nil {
		return nil, fmt.Errorf("creating artist %s: %w", data.ID, err)
	}
	r.logger.Info().Str("artist_id", artist.ID).Str("name", artist.Name).Msg("created artist")
	return artist, nil
}

// getOrCreateAlbum returns the album row for data's id. When the album
// already exists, any artist ids not yet associated are linked (association
// widening); existing links and album fields are left untouched.
func (r *Reconciler) getOrCreateAlbum(ctx context.Context, data spotify.Album, artistIDs []string) (*db.Album, error) {
	existing, err := r.store.AlbumByID(ctx, data.ID)
	if err == nil {
		if err := r.widenAlbumArtists(ctx, existing.ID, artistIDs); err != nil {
			return nil, err
		}
		return existing, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("looking up album %s: %w", data.ID, err)
	}

	album := &db.Album{
		ID:               data.ID,
		Name:             data.Name,
		AlbumType:        data.AlbumType,
		ReleaseDate:      data.ReleaseDate,
		ReleasePrecision: data.ReleaseDatePrecision,
		TotalTracks:      data.TotalTracks,
		Genres:           data.Genres,
		Label:            data.Label,
		Popularity:       data.Popularity,
		Images:           imageRows(data.Images),
		ExternalURL:      spotifyURL(data.ExternalURLs),
		Href:             data.Href,
		URI:              data.URI,
		SpotifyType:      data.Type,
	}
	if album.Name == "" {
		album.Name = unknownAlbum
	}

	if err := r.store.CreateAlbum(ctx, album); err != nil {
		return nil, fmt.Errorf("creating album %s: %w", data.ID, err)
	}
	r.logger.Info().Str("album_id", album.ID).Str("name", album.Name).Msg("created album")

	for _, artistID := range artistIDs {
		if err := r.store.AddAlbumArtist(ctx, album.ID, artistID); err != nil {
			return nil, fmt.Errorf("associating artist %s with album %s: %w", artistID, album.ID, err)
		}
	}
	return album, nil
}

// widenAlbumArtists links any artist ids missing from an existing album's
// associations.
func (r *Reconciler) widenAlbumArtists(ctx context.Context, albumID string, artistIDs []string) error {
	existingIDs, err := r.store.AlbumArtistIDs(ctx, albumID)
	if err != nil {
		return fmt.Errorf("listing album artists for %s: %w", albumID, err)
	}
	for _, artistID := range missingIDs(artistIDs, existingIDs) {
		if err := r.store.AddAlbumArtist(ctx, albumID, artistID); err != nil {
			return fmt.Errorf("associating artist %s with album %s: %w", artistID, albumID, err)
		}
		r.logger.Debug().Str("album_id", albumID).Str("artist_id", artistID).Msg("widened album artists")
	}
	return nil
}

// getOrCreateTrack returns the track row for data's id, creating it under
// albumID when absent. A track's album reference is fixed at first creation
// and never updated, even if a later event shows a different album context.
func (r *Reconciler) getOrCreateTrack(ctx context.Context, data spotify.Track, albumID string, artistIDs []string) (*db.Track, error) {
	existing, err := r.store.TrackByID(ctx, data.ID)
	if err == nil {
		if err := r.widenTrackArtists(ctx, existing.ID, artistIDs); err != nil {
			return nil, err
		}
		return existing, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("looking up track %s: %w", data.ID, err)
	}

	track := &db.Track{
		ID:          data.ID,
		Name:        data.Name,
		DurationMS:  data.DurationMS,
		Explicit:    data.Explicit,
		Popularity:  data.Popularity,
		DiscNumber:  data.DiscNumber,
		TrackNumber: data.TrackNumber,
		IsPlayable:  data.IsPlayable,
		PreviewURL:  data.PreviewURL,
		ExternalURL: spotifyURL(data.ExternalURLs),
		Href:        data.Href,
		URI:         data.URI,
		SpotifyType: data.Type,
		AlbumID:     albumID,
	}
	if track.Name == "" {
		track.Name = unknownTrack
	}

	if err := r.store.CreateTrack(ctx, track); err != nil {
		return nil, fmt.Errorf("creating track %s: %w", data.ID, err)
	}
	r.logger.Info().Str("track_id", track.ID).Str("name", track.Name).Msg("created track")

	for _, artistID := range artistIDs {
		if err := r.store.AddTrackArtist(ctx, track.ID, artistID); err != nil {
			return nil, fmt.Errorf("associating artist %s with track %s: %w", artistID, track.ID, err)
		}
	}
	return track, nil
}

// widenTrackArtists links any artist ids missing from an existing track's
// associations.
func (r *Reconciler) widenTrackArtists(ctx context.Context, trackID string, artistIDs []string) error {
	existingIDs, err := r.store.TrackArtistIDs(ctx, trackID)
	if err != nil {
		return fmt.Errorf("listing track artists for %s: %w", trackID, err)
	}
	for _, artistID := range missingIDs(artistIDs, existingIDs) {
		if err := r.store.AddTrackArtist(ctx, trackID, artistID); err != nil {
			return fmt.Errorf("associating artist %s with track %s: %w", artistID, trackID, err)
		}
		r.logger.Debug().Str("track_id", trackID).Str("artist_id", artistID).Msg("widened track artists")
	}
	return nil
}

// missingIDs returns the ids in want that are absent from have, preserving
// the order of want.
func missingIDs(want, have []string) []string {
	existing := make(map[string]bool, len(have))
	for _, id := range have {
		existing[id] = true
	}
	var missing []string
	for _, id := range want {
		if !existing[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

func imageRows(images []spotify.Image) []db.Image {
	if len(images) == 0 {
		return nil
	}
	rows := make([]db.Image, len(images))
	for i, img := range images {
		rows[i] = db.Image{URL: img.URL, Height: img.Height, Width: img.Width}
	}
	return rows
}

func spotifyURL(urls map[string]string) *string {
	if u, ok := urls["spotify"]; ok && u != "" {
		return &u
	}
	return nil
}
