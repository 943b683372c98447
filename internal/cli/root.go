// Package cli wires the spotilens commands.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/corenest/spotilens/internal/backfill"
	"github.com/corenest/spotilens/internal/config"
	"github.com/corenest/spotilens/internal/db"
	"github.com/corenest/spotilens/internal/ingest"
	"github.com/corenest/spotilens/internal/logging"
	"github.com/corenest/spotilens/internal/retry"
	"github.com/corenest/spotilens/internal/spotify"
	syncsvc "github.com/corenest/spotilens/internal/sync"
)

// ExecuteContext runs the root CLI command. ctx cancels in-flight work when
// the process receives a shutdown signal.
func ExecuteContext(ctx context.Context) error {
	opts := newOptions()
	rootCmd := newRootCmd(opts)
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "spotilens",
		Short:         "Spotify listening history ingestion",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default "+config.DefaultPath+" if present)")

	cmd.AddCommand(newSyncCmd(opts))
	cmd.AddCommand(newBackfillCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newBackfillTrackNamesCmd(opts))

	return cmd
}

type syncRunner interface {
	Run(ctx context.Context) (*syncsvc.Result, error)
}

type backfillRunner interface {
	Run(ctx context.Context, items []spotify.PlayHistoryItem) (*backfill.Result, error)
}

type options struct {
	configPath string
	cfg        *config.Config
	logger     zerolog.Logger

	loadConfig        func(string) (*config.Config, error)
	newSyncRunner     func(context.Context, *config.Config, zerolog.Logger) (syncRunner, func(), error)
	newBackfillRunner func(context.Context, *config.Config, zerolog.Logger) (backfillRunner, func(), error)
	loadBackfillFile  func(string) ([]spotify.PlayHistoryItem, error)
	migrate           func(*config.Config) error
	backfillNames     func(context.Context, *config.Config) (int64, error)
}

func newOptions() *options {
	return &options{
		loadConfig:        config.Load,
		newSyncRunner:     newSyncService,
		newBackfillRunner: newBackfillService,
		loadBackfillFile:  backfill.LoadFile,
		migrate:           runMigrations,
		backfillNames:     backfillTrackNames,
	}
}

// setup loads configuration and builds the logger. Called by every RunE.
func (o *options) setup(cmd *cobra.Command) error {
	cfg, err := o.loadConfig(o.configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	o.cfg = cfg
	o.logger = logger
	return nil
}

func spotifyConfig(cfg *config.Config) spotify.Config {
	return spotify.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RefreshToken: cfg.Spotify.RefreshToken,
		TokenURL:     cfg.Spotify.TokenURL,
		BaseURL:      cfg.Spotify.BaseURL,
		Timeout:      cfg.Spotify.Timeout,
	}
}

func retryConfig(cfg *config.Config) retry.Config {
	return retry.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	}
}

func newSyncService(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (syncRunner, func(), error) {
	database, err := db.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}

	tokens := spotify.NewTokenManager(spotifyConfig(cfg), retryConfig(cfg), logger)
	client := spotify.NewClient(spotifyConfig(cfg), tokens, logger)
	reconciler := ingest.New(database, logger)
	svc := syncsvc.New(database, client, reconciler, logger,
		syncsvc.WithFetchLimit(cfg.Spotify.FetchLimit))

	return svc, database.Close, nil
}

func newBackfillService(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (backfillRunner, func(), error) {
	database, err := db.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}

	reconciler := ingest.New(database, logger)
	svc := backfill.New(reconciler, logger)

	return svc, database.Close, nil
}
