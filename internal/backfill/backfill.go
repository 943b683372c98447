// Package backfill replays a pre-fetched batch of historical play events
// through the reconciler. It is meant for large one-time loads: logging is
// coarse, per-event failures are skipped, and no audit row is written.
package backfill

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/corenest/spotilens/internal/db"
	"github.com/corenest/spotilens/internal/spotify"
)

// defaultProgressEvery is how many events are processed between progress log
// lines.
const defaultProgressEvery = 100

// Reconciler resolves one raw event into normalized rows.
type Reconciler interface {
	Process(ctx context.Context, item spotify.PlayHistoryItem, entryType string) (*db.Play, error)
}

// Failure records one event that could not be reconciled.
type Failure struct {
	TrackID  string
	PlayedAt string
	Error    string
}

// Result summarizes a backfill run.
type Result struct {
	Total     int
	Processed int
	Failures  []Failure
}

// Service replays historical batches. The same at-most-one-writer constraint
// as the sync orchestrator applies.
type Service struct {
	reconciler    Reconciler
	logger        zerolog.Logger
	progressEvery int
}

// Option configures a Service.
type Option func(*Service)

// WithProgressEvery sets the progress-log interval in events.
func WithProgressEvery(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.progressEvery = n
		}
	}
}

// New creates a backfill Service.
func New(reconciler Reconciler, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		reconciler:    reconciler,
		logger:        logger,
		progressEvery: defaultProgressEvery,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run feeds items to the reconciler in playback-timestamp order with the
// historical provenance tag, continuing past per-event failures.
func (s *Service) Run(ctx context.Context, items []spotify.PlayHistoryItem) (*Result, error) {
	result := &Result{Total: len(items)}
	s.logger.Info().Int("total", result.Total).Msg("starting historical backfill")

	sorted := spotify.SortByPlayedAt(items)
	for i, item := range sorted {
		if _, err := s.reconciler.Process(ctx, item, db.EntryTypeHistorical); err != nil {
			s.logger.Warn().Err(err).
				Str("track_id", item.Track.ID).
				Str("played_at", item.PlayedAt).
				Msg("skipping event, continuing")
			result.Failures = append(result.Failures, Failure{
				TrackID:  item.Track.ID,
				PlayedAt: item.PlayedAt,
				Error:    err.Error(),
			})
			continue
		}
		result.Processed++

		if (i+1)%s.progressEvery == 0 {
			s.logger.Info().Int("done", i+1).Int("total", result.Total).Msg("backfill progress")
		}
	}

	s.logger.Info().
		Int("processed", result.Processed).
		Int("failed", len(result.Failures)).
		Msg("historical backfill complete")
	return result, nil
}

// LoadFile reads a local JSON array of raw play events in the same shape as
// the live API's items entries.
func LoadFile(path string) ([]spotify.PlayHistoryItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading backfill file: %w", err)
	}

	var items []spotify.PlayHistoryItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parsing backfill file: %w", err)
	}
	return items, nil
}
