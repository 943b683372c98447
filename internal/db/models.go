package db

import (
	"time"
)

// Entry types recorded on listening history rows, distinguishing how a play
// was loaded.
const (
	EntryTypeDailySync  = "daily-sync"
	EntryTypeHistorical = "historical-data"
)

// Image is an artwork reference as returned by the Spotify API, stored as
// JSONB alongside the owning entity.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// Artist is a normalized artist row, keyed by the Spotify artist ID.
type Artist struct {
	ID          string
	Name        string
	Popularity  *int
	Followers   *int
	Genres      []string
	Images      []Image
	ExternalURL *string
	Href        *string
	URI         *string
	SpotifyType *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Album is a normalized album row, keyed by the Spotify album ID. Artists are
// linked through the album_artists junction table.
type Album struct {
	ID               string
	Name             string
	AlbumType        *string
	ReleaseDate      *string
	ReleasePrecision *string
	TotalTracks      *int
	Genres           []string
	Label            *string
	Popularity       *int
	Images           []Image
	ExternalURL      *string
	Href             *string
	URI              *string
	SpotifyType      *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Track is a normalized track row, keyed by the Spotify track ID. AlbumID
// references the album context the track was first seen in and is never
// updated afterwards. Artists are linked through the track_artists junction
// table.
type Track struct {
	ID          string
	Name        string
	DurationMS  *int
	Explicit    *bool
	Popularity  *int
	DiscNumber  *int
	TrackNumber *int
	IsPlayable  *bool
	PreviewURL  *string
	ExternalURL *string
	Href        *string
	URI         *string
	SpotifyType *string
	AlbumID     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Play is one listening-history row. The (TrackID, PlayedAt) pair is unique;
// it is the sole de-duplication key for plays. TrackName is denormalized
// from the tracks table; rows predating the column are filled in bulk.
type Play struct {
	ID          int64
	TrackID     string
	TrackName   *string
	ContextType *string
	ContextURI  *string
	EntryType   string
	PlayedAt    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SyncLog is one audit row per orchestration pass.
type SyncLog struct {
	ID        int64
	Source    string
	Status    bool
	Response  *string
	CreatedAt time.Time
}
