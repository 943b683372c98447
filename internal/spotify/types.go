package spotify

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Validation errors for raw play-history items.
var (
	// ErrMissingTrackID is returned when an item carries no track identifier.
	ErrMissingTrackID = errors.New("missing track id")

	// ErrBadTimestamp is returned when an item's played_at cannot be parsed.
	ErrBadTimestamp = errors.New("unparseable played_at timestamp")
)

// Image is an artwork reference.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// Followers is the follower count wrapper used by the API.
type Followers struct {
	Total int `json:"total"`
}

// Artist is a raw artist sub-record. Recently-played payloads carry the
// simplified shape, so popularity, followers and genres are usually absent.
type Artist struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Popularity   *int              `json:"popularity"`
	Followers    *Followers        `json:"followers"`
	Genres       []string          `json:"genres"`
	Images       []Image           `json:"images"`
	ExternalURLs map[string]string `json:"external_urls"`
	Href         *string           `json:"href"`
	URI          *string           `json:"uri"`
	Type         *string           `json:"type"`
}

// Album is a raw album sub-record nested in a track.
type Album struct {
	ID                   string            `json:"id"`
	Name                 string            `json:"name"`
	AlbumType            *string           `json:"album_type"`
	ReleaseDate          *string           `json:"release_date"`
	ReleaseDatePrecision *string           `json:"release_date_precision"`
	TotalTracks          *int              `json:"total_tracks"`
	Genres               []string          `json:"genres"`
	Label                *string           `json:"label"`
	Popularity           *int              `json:"popularity"`
	Images               []Image           `json:"images"`
	ExternalURLs         map[string]string `json:"external_urls"`
	Href                 *string           `json:"href"`
	URI                  *string           `json:"uri"`
	Type                 *string           `json:"type"`
	Artists              []Artist          `json:"artists"`
}

// Track is a raw track record with its nested album and artist sub-records.
type Track struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	DurationMS   *int              `json:"duration_ms"`
	Explicit     *bool             `json:"explicit"`
	Popularity   *int              `json:"popularity"`
	DiscNumber   *int              `json:"disc_number"`
	TrackNumber  *int              `json:"track_number"`
	IsPlayable   *bool             `json:"is_playable"`
	PreviewURL   *string           `json:"preview_url"`
	ExternalURLs map[string]string `json:"external_urls"`
	Href         *string           `json:"href"`
	URI          *string           `json:"uri"`
	Type         *string           `json:"type"`
	Album        Album             `json:"album"`
	Artists      []Artist          `json:"artists"`
}

// Context describes the playback context a track was played from.
type Context struct {
	Type string `json:"type"`
	URI  string `json:"uri"`
}

// PlayHistoryItem is one raw play event, either fetched live from the
// recently-played endpoint or loaded from a historical export file.
type PlayHistoryItem struct {
	Track    Track    `json:"track"`
	PlayedAt string   `json:"played_at"`
	Context  *Context `json:"context"`
}

// PlayedAtTime parses the item's playback timestamp.
func (i PlayHistoryItem) PlayedAtTime() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, i.PlayedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing played_at %q: %w", i.PlayedAt, ErrBadTimestamp)
	}
	return t, nil
}

// Validate checks the fields the ingestion core cannot proceed without: a
// track identifier and a parseable playback timestamp.
func (i PlayHistoryItem) Validate() error {
	if i.Track.ID == "" {
		return ErrMissingTrackID
	}
	if _, err := i.PlayedAtTime(); err != nil {
		return err
	}
	return nil
}

// SortByPlayedAt returns items ordered by playback timestamp ascending. Ties
// keep input order, and items with unparseable timestamps sort first so they
// surface early as validation failures.
func SortByPlayedAt(items []PlayHistoryItem) []PlayHistoryItem {
	sorted := make([]PlayHistoryItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti, erri := sorted[i].PlayedAtTime()
		tj, errj := sorted[j].PlayedAtTime()
		if erri != nil || errj != nil {
			return erri != nil && errj == nil
		}
		return ti.Before(tj)
	})
	return sorted
}

// Cursors is the pagination marker block of a recently-played response.
type Cursors struct {
	After  string `json:"after"`
	Before string `json:"before"`
}

// RecentlyPlayedPage is one page of raw play events. NextAfter is the opaque
// continuation marker; it is carried but unused by the current sync path.
type RecentlyPlayedPage struct {
	Items     []PlayHistoryItem `json:"items"`
	Cursors   Cursors           `json:"cursors"`
	NextAfter string            `json:"-"`
}
