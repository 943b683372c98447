package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/corenest/spotilens/internal/db"
	"github.com/corenest/spotilens/internal/spotify"
)

// memStore is an in-memory Store used to exercise the reconciler without a
// database. It enforces the same uniqueness rules as the real schema.
type memStore struct {
	artists      map[string]*db.Artist
	albums       map[string]*db.Album
	tracks       map[string]*db.Track
	albumArtists map[string][]string
	trackArtists map[string][]string
	plays        []*db.Play
	nextPlayID   int64

	// Error injection, applied once per failing call site.
	failCreatePlay  error
	failCreateTrack error
}

func newMemStore() *memStore {
	return &memStore{
		artists:      make(map[string]*db.Artist),
		albums:       make(map[string]*db.Album),
		tracks:       make(map[string]*db.Track),
		albumArtists: make(map[string][]string),
		trackArtists: make(map[string][]string),
	}
}

func (s *memStore) ArtistByID(ctx context.Context, id string) (*db.Artist, error) {
	if a, ok := s.artists[id]; ok {
		return a, nil
	}
	return nil, db.ErrNotFound
}

func (s *memStore) CreateArtist(ctx context.Context, artist *db.Artist) error {
	if _, ok := s.artists[artist.ID]; ok {
		return fmt.Errorf("inserting artist %s: %w", artist.ID, db.ErrDuplicate)
	}
	s.artists[artist.ID] = artist
	return nil
}

func (s *memStore) AlbumByID(ctx context.Context, id string) (*db.Album, error) {
	if a, ok := s.albums[id]; ok {
		return a, nil
	}
	return nil, db.ErrNotFound
}

func (s *memStore) CreateAlbum(ctx context.Context, album *db.Album) error {
	if _, ok := s.albums[album.ID]; ok {
		return fmt.Errorf("inserting album %s: %w", album.ID, db.ErrDuplicate)
	}
	s.albums[album.ID] = album
	return nil
}

func (s *memStore) AlbumArtistIDs(ctx context.Context, albumID string) ([]string, error) {
	return s.albumArtists[albumID], nil
}

func (s *memStore) AddAlbumArtist(ctx context.Context, albumID, artistID string) error {
	for _, id := range s.albumArtists[albumID] {
		if id == artistID {
			return fmt.Errorf("associating artist %s with album %s: %w", artistID, albumID, db.ErrDuplicate)
		}
	}
	s.albumArtists[albumID] = append(s.albumArtists[albumID], artistID)
	return nil
}

func (s *memStore) TrackByID(ctx context.Context, id string) (*db.Track, error) {
	if t, ok := s.tracks[id]; ok {
		return t, nil
	}
	return nil, db.ErrNotFound
}

func (s *memStore) CreateTrack(ctx context.Context, track *db.Track) error {
	if s.failCreateTrack != nil {
		err := s.failCreateTrack
		s.failCreateTrack = nil
		return err
	}
	if _, ok := s.tracks[track.ID]; ok {
		return fmt.Errorf("inserting track %s: %w", track.ID, db.ErrDuplicate)
	}
	s.tracks[track.ID] = track
	return nil
}

func (s *memStore) TrackArtistIDs(ctx context.Context, trackID string) ([]string, error) {
	return s.trackArtists[trackID], nil
}

func (s *memStore) AddTrackArtist(ctx context.Context, trackID, artistID string) error {
	for _, id := range s.trackArtists[trackID] {
		if id == artistID {
			return fmt.Errorf("associating artist %s with track %s: %w", artistID, trackID, db.ErrDuplicate)
		}
	}
	s.trackArtists[trackID] = append(s.trackArtists[trackID], artistID)
	return nil
}

func (s *memStore) PlayByTrackAndPlayedAt(ctx context.Context, trackID string, playedAt time.Time) (*db.Play, error) {
	for _, p := range s.plays {
		if p.TrackID == trackID && p.PlayedAt.Equal(playedAt) {
			return p, nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *memStore) CreatePlay(ctx context.Context, play *db.Play) error {
	if s.failCreatePlay != nil {
		err := s.failCreatePlay
		s.failCreatePlay = nil
		return err
	}
	for _, p := range s.plays {
		if p.TrackID == play.TrackID && p.PlayedAt.Equal(play.PlayedAt) {
			return fmt.Errorf("inserting play for track %s: %w", play.TrackID, db.ErrDuplicate)
		}
	}
	s.nextPlayID++
	play.ID = s.nextPlayID
	s.plays = append(s.plays, play)
	return nil
}

func testItem() spotify.PlayHistoryItem {
	return spotify.PlayHistoryItem{
		Track: spotify.Track{
			ID:   "T1",
			Name: "Song One",
			Album: spotify.Album{
				ID:      "AL1",
				Name:    "Album One",
				Artists: []spotify.Artist{{ID: "A1", Name: "X"}},
			},
			Artists: []spotify.Artist{{ID: "A1", Name: "X"}},
		},
		PlayedAt: "2025-06-10T08:00:00Z",
		Context:  &spotify.Context{Type: "playlist", URI: "spotify:playlist:P1"},
	}
}

func newTestReconciler(store Store) *Reconciler {
	return New(store, zerolog.Nop())
}

func TestProcessCreatesNormalizedRows(t *testing.T) {
	store := newMemStore()
	rec := newTestReconciler(store)

	play, err := rec.Process(context.Background(), testItem(), db.EntryTypeDailySync)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if len(store.artists) != 1 {
		t.Errorf("artists = %d, want 1", len(store.artists))
	}
	if a := store.artists["A1"]; a == nil || a.Name != "X" {
		t.Errorf("artist A1 = %+v", store.artists["A1"])
	}
	if len(store.albums) != 1 {
		t.Errorf("albums = %d, want 1", len(store.albums))
	}
	if got := store.albumArtists["AL1"]; len(got) != 1 || got[0] != "A1" {
		t.Errorf("album artists = %v, want [A1]", got)
	}
	if len(store.tracks) != 1 {
		t.Errorf("tracks = %d, want 1", len(store.tracks))
	}
	if tr := store.tracks["T1"]; tr == nil || tr.AlbumID != "AL1" {
		t.Errorf("track T1 = %+v", store.tracks["T1"])
	}
	if got := store.trackArtists["T1"]; len(got) != 1 || got[0] != "A1" {
		t.Errorf("track artists = %v, want [A1]", got)
	}

	if len(store.plays) != 1 {
		t.Fatalf("plays = %d, want 1", len(store.plays))
	}
	if play.TrackID != "T1" {
		t.Errorf("play track = %q, want T1", play.TrackID)
	}
	if play.EntryType != db.EntryTypeDailySync {
		t.Errorf("entry type = %q, want %q", play.EntryType, db.EntryTypeDailySync)
	}
	want := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	if !play.PlayedAt.Equal(want) {
		t.Errorf("played at = %v, want %v", play.PlayedAt, want)
	}
	if play.ContextType == nil || *play.ContextType != "playlist" {
		t.Errorf("context type = %v, want playlist", play.ContextType)
	}
	if play.ContextURI == nil || *play.ContextURI != "spotify:playlist:P1" {
		t.Errorf("context uri = %v", play.ContextURI)
	}
}

func TestProcessIsIdempotent(t *testing.T) {
	store := newMemStore()
	rec := newTestReconciler(store)
	ctx := context.Background()

	first, err := rec.Process(ctx, testItem(), db.EntryTypeDailySync)
	if err != nil {
		t.Fatalf("first Process() error = %v", err)
	}
	second, err := rec.Process(ctx, testItem(), db.EntryTypeDailySync)
	if err != nil {
		t.Fatalf("second Process() error = %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("second play id = %d, want %d", second.ID, first.ID)
	}
	if len(store.plays) != 1 {
		t.Errorf("plays = %d, want 1", len(store.plays))
	}
	if len(store.artists) != 1 || len(store.albums) != 1 || len(store.tracks) != 1 {
		t.Errorf("entity rows = %d/%d/%d, want 1/1/1",
			len(store.artists), len(store.albums), len(store.tracks))
	}
	if got := store.albumArtists["AL1"]; len(got) != 1 {
		t.Errorf("album artists = %v, want one row", got)
	}
}

func TestProcessMalformedEvents(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*spotify.PlayHistoryItem)
	}{
		{"missing track id", func(i *spotify.PlayHistoryItem) { i.Track.ID = "" }},
		{"unparseable timestamp", func(i *spotify.PlayHistoryItem) { i.PlayedAt = "not-a-time" }},
		{"missing album id", func(i *spotify.PlayHistoryItem) { i.Track.Album.ID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			rec := newTestReconciler(store)
			item := testItem()
			tt.mutate(&item)

			_, err := rec.Process(context.Background(), item, db.EntryTypeDailySync)
			if !errors.Is(err, ErrMalformedEvent) {
				t.Fatalf("Process() error = %v, want ErrMalformedEvent", err)
			}
			if len(store.plays) != 0 {
				t.Errorf("plays = %d, want 0", len(store.plays))
			}
		})
	}
}

func TestProcessIncompleteEvents(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*spotify.PlayHistoryItem)
	}{
		{"no track artists", func(i *spotify.PlayHistoryItem) { i.Track.Artists = nil }},
		{"track artists without ids", func(i *spotify.PlayHistoryItem) {
			i.Track.Artists = []spotify.Artist{{Name: "anonymous"}}
		}},
		{"no album artists", func(i *spotify.PlayHistoryItem) { i.Track.Album.Artists = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			rec := newTestReconciler(store)
			item := testItem()
			tt.mutate(&item)

			_, err := rec.Process(context.Background(), item, db.EntryTypeDailySync)
			if !errors.Is(err, ErrIncompleteEvent) {
				t.Fatalf("Process() error = %v, want ErrIncompleteEvent", err)
			}
			if len(store.plays) != 0 {
				t.Errorf("plays = %d, want 0", len(store.plays))
			}
		})
	}
}

func TestProcessWidensAlbumArtists(t *testing.T) {
	store := newMemStore()
	rec := newTestReconciler(store)
	ctx := context.Background()

	if _, err := rec.Process(ctx, testItem(), db.EntryTypeDailySync); err != nil {
		t.Fatalf("seed Process() error = %v", err)
	}

	item := testItem()
	item.PlayedAt = "2025-06-10T09:00:00Z"
	item.Track.Album.Artists = []spotify.Artist{{ID: "A1", Name: "X"}, {ID: "A2", Name: "Y"}}
	item.Track.Artists = []spotify.Artist{{ID: "A1", Name: "X"}, {ID: "A2", Name: "Y"}}

	if _, err := rec.Process(ctx, item, db.EntryTypeDailySync); err != nil {
		t.Fatalf("widening Process() error = %v", err)
	}

	got := store.albumArtists["AL1"]
	if len(got) != 2 || got[0] != "A1" || got[1] != "A2" {
		t.Errorf("album artists = %v, want [A1 A2]", got)
	}
	if got := store.trackArtists["T1"]; len(got) != 2 {
		t.Errorf("track artists = %v, want two rows", got)
	}
	if len(store.artists) != 2 {
		t.Errorf("artists = %d, want 2", len(store.artists))
	}
}

func TestProcessKeepsTrackAlbumFixed(t *testing.T) {
	store := newMemStore()
	rec := newTestReconciler(store)
	ctx := context.Background()

	if _, err := rec.Process(ctx, testItem(), db.EntryTypeDailySync); err != nil {
		t.Fatalf("seed Process() error = %v", err)
	}

	// Same track re-surfaces under a different album context.
	item := testItem()
	item.PlayedAt = "2025-06-11T08:00:00Z"
	item.Track.Album = spotify.Album{
		ID:      "AL2",
		Name:    "Compilation",
		Artists: []spotify.Artist{{ID: "A1", Name: "X"}},
	}

	if _, err := rec.Process(ctx, item, db.EntryTypeDailySync); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if store.tracks["T1"].AlbumID != "AL1" {
		t.Errorf("track album = %q, want AL1", store.tracks["T1"].AlbumID)
	}
	if _, ok := store.albums["AL2"]; !ok {
		t.Error("album AL2 not created")
	}
	if len(store.plays) != 2 {
		t.Errorf("plays = %d, want 2", len(store.plays))
	}
}

func TestProcessFirstWriteWinsForArtistFields(t *testing.T) {
	store := newMemStore()
	rec := newTestReconciler(store)
	ctx := context.Background()

	if _, err := rec.Process(ctx, testItem(), db.EntryTypeDailySync); err != nil {
		t.Fatalf("seed Process() error = %v", err)
	}

	item := testItem()
	item.PlayedAt = "2025-06-10T09:00:00Z"
	item.Track.Artists[0].Name = "Renamed"
	item.Track.Album.Artists[0].Name = "Renamed"

	if _, err := rec.Process(ctx, item, db.EntryTypeDailySync); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if store.artists["A1"].Name != "X" {
		t.Errorf("artist name = %q, want first-written %q", store.artists["A1"].Name, "X")
	}
}

func TestProcessDefaultsUnknownNames(t *testing.T) {
	store := newMemStore()
	rec := newTestReconciler(store)

	item := testItem()
	item.Track.Name = ""
	item.Track.Album.Name = ""
	item.Track.Artists[0].Name = ""
	item.Track.Album.Artists[0].Name = ""

	if _, err := rec.Process(context.Background(), item, db.EntryTypeDailySync); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if got := store.artists["A1"].Name; got != "Unknown Artist" {
		t.Errorf("artist name = %q", got)
	}
	if got := store.albums["AL1"].Name; got != "Unknown Album" {
		t.Errorf("album name = %q", got)
	}
	if got := store.tracks["T1"].Name; got != "Unknown Track" {
		t.Errorf("track name = %q", got)
	}
}

func TestProcessPartialFailureThenRetryCompletes(t *testing.T) {
	store := newMemStore()
	rec := newTestReconciler(store)
	ctx := context.Background()

	store.failCreatePlay = errors.New("connection reset")
	if _, err := rec.Process(ctx, testItem(), db.EntryTypeDailySync); err == nil {
		t.Fatal("Process() error = nil, want failure")
	}

	// Entities committed before the failure stay in place.
	if len(store.artists) != 1 || len(store.albums) != 1 || len(store.tracks) != 1 {
		t.Fatalf("entity rows = %d/%d/%d, want 1/1/1",
			len(store.artists), len(store.albums), len(store.tracks))
	}
	if len(store.plays) != 0 {
		t.Fatalf("plays = %d, want 0", len(store.plays))
	}

	// Re-processing finds the entities and completes the event.
	play, err := rec.Process(ctx, testItem(), db.EntryTypeDailySync)
	if err != nil {
		t.Fatalf("retry Process() error = %v", err)
	}
	if play == nil || len(store.plays) != 1 {
		t.Fatalf("plays = %d, want 1", len(store.plays))
	}
	if len(store.artists) != 1 || len(store.albums) != 1 || len(store.tracks) != 1 {
		t.Errorf("entity rows = %d/%d/%d after retry, want 1/1/1",
			len(store.artists), len(store.albums), len(store.tracks))
	}
}

func TestProcessWithoutContext(t *testing.T) {
	store := newMemStore()
	rec := newTestReconciler(store)

	item := testItem()
	item.Context = nil

	play, err := rec.Process(context.Background(), item, db.EntryTypeHistorical)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if play.ContextType != nil || play.ContextURI != nil {
		t.Errorf("context = %v/%v, want nil/nil", play.ContextType, play.ContextURI)
	}
	if play.EntryType != db.EntryTypeHistorical {
		t.Errorf("entry type = %q, want %q", play.EntryType, db.EntryTypeHistorical)
	}
}
