// Package sync drives one synchronization pass: fetch a page of recent play
// events, feed them to the reconciler in deterministic order, and record a
// single audit row for the pass.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/corenest/spotilens/internal/db"
	"github.com/corenest/spotilens/internal/spotify"
)

// SourceRecentlyPlayed is the sync_source tag recorded on audit rows written
// by this orchestrator.
const SourceRecentlyPlayed = "recently-played-api"

// DefaultFetchLimit is the page size requested when none is configured.
const DefaultFetchLimit = spotify.DefaultFetchLimit

// EventSource fetches a page of raw play events.
type EventSource interface {
	RecentlyPlayed(ctx context.Context, limit int, after time.Time) (*spotify.RecentlyPlayedPage, error)
}

// Reconciler resolves one raw event into normalized rows.
type Reconciler interface {
	Process(ctx context.Context, item spotify.PlayHistoryItem, entryType string) (*db.Play, error)
}

// Store is the storage surface the orchestrator needs beyond the reconciler:
// the fetch cutoff and the audit log.
type Store interface {
	LatestPlayedAt(ctx context.Context) (time.Time, error)
	CreateSyncLog(ctx context.Context, log *db.SyncLog) error
}

// EventFailure records one event that could not be reconciled during a pass.
type EventFailure struct {
	TrackID  string `json:"track_id"`
	PlayedAt string `json:"played_at"`
	Error    string `json:"error"`
}

// Result summarizes one orchestration pass.
type Result struct {
	PassID    uuid.UUID
	Fetched   int
	Processed int
	Failures  []EventFailure
}

// report is the diagnostic payload persisted in the audit row's response
// column.
type report struct {
	PassID    string         `json:"pass_id"`
	Fetched   int            `json:"fetched,omitempty"`
	Processed int            `json:"processed,omitempty"`
	Error     string         `json:"error,omitempty"`
	Failures  []EventFailure `json:"failures,omitempty"`
}

// Service orchestrates sync passes. Passes must not run concurrently: the
// reconciler's existence checks and creates are separate commits, so a second
// writer can race them into duplicate-key failures.
type Service struct {
	store      Store
	source     EventSource
	reconciler Reconciler
	limit      int
	logger     zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithFetchLimit sets the page size requested from the event source.
func WithFetchLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.limit = n
		}
	}
}

// New creates a sync Service.
func New(store Store, source EventSource, reconciler Reconciler, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:      store,
		source:     source,
		reconciler: reconciler,
		limit:      DefaultFetchLimit,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes one pass: FETCH, PROCESS, AUDIT. Exactly one audit row is
// written per pass. A fetch or auth failure aborts the pass and returns an
// error; per-event failures are skipped, recorded in the audit payload, and
// do not produce a non-nil return error.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	result := &Result{PassID: uuid.New()}
	logger := s.logger.With().Str("pass_id", result.PassID.String()).Logger()

	// FETCH
	after, err := s.store.LatestPlayedAt(ctx)
	if err != nil {
		s.audit(ctx, logger, false, report{PassID: result.PassID.String(), Error: err.Error()})
		return nil, fmt.Errorf("determining fetch cutoff: %w", err)
	}

	page, err := s.source.RecentlyPlayed(ctx, s.limit, after)
	if err != nil {
		s.audit(ctx, logger, false, report{PassID: result.PassID.String(), Error: err.Error()})
		return nil, fmt.Errorf("fetching recent plays: %w", err)
	}
	result.Fetched = len(page.Items)
	logger.Info().Int("fetched", result.Fetched).Time("after", after).Msg("fetched recent plays")

	// PROCESS, earliest first so shared brand-new entities capture the
	// earliest event's snapshot.
	items := spotify.SortByPlayedAt(page.Items)
	for _, item := range items {
		if _, err := s.reconciler.Process(ctx, item, db.EntryTypeDailySync); err != nil {
			logger.Error().Err(err).
				Str("track_id", item.Track.ID).
				Str("played_at", item.PlayedAt).
				Msg("skipping event")
			result.Failures = append(result.Failures, EventFailure{
				TrackID:  item.Track.ID,
				PlayedAt: item.PlayedAt,
				Error:    err.Error(),
			})
			continue
		}
		result.Processed++
	}

	// AUDIT
	ok := len(result.Failures) == 0
	s.audit(ctx, logger, ok, report{
		PassID:    result.PassID.String(),
		Fetched:   result.Fetched,
		Processed: result.Processed,
		Failures:  result.Failures,
	})

	logger.Info().
		Int("processed", result.Processed).
		Int("failed", len(result.Failures)).
		Bool("status", ok).
		Msg("sync pass complete")
	return result, nil
}

// audit persists the single sync_logs row for this pass. An audit write
// failure is logged but never masks the pass outcome.
func (s *Service) audit(ctx context.Context, logger zerolog.Logger, status bool, rep report) {
	payload, err := json.Marshal(rep)
	if err != nil {
		logger.Error().Err(err).Msg("marshaling audit payload")
		payload = []byte(`{"error":"unserializable audit payload"}`)
	}
	response := string(payload)

	log := &db.SyncLog{
		Source:   SourceRecentlyPlayed,
		Status:   status,
		Response: &response,
	}
	if err := s.store.CreateSyncLog(ctx, log); err != nil {
		logger.Error().Err(err).Msg("writing sync audit row")
	}
}
