package cli

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/corenest/spotilens/db/migrations"
	"github.com/corenest/spotilens/internal/config"
	"github.com/corenest/spotilens/internal/db"
)

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.setup(cmd); err != nil {
				return err
			}
			if err := opts.migrate(opts.cfg); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			opts.logger.Info().Msg("migrations applied")
			return nil
		},
	}
}

func runMigrations(cfg *config.Config) error {
	sqldb, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer sqldb.Close()

	return migrations.Run(sqldb)
}

func newBackfillTrackNamesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "backfill-track-names",
		Short: "Fill missing track names on listening history rows from the tracks table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.setup(cmd); err != nil {
				return err
			}
			updated, err := opts.backfillNames(cmd.Context(), opts.cfg)
			if err != nil {
				return fmt.Errorf("backfill track names: %w", err)
			}
			opts.logger.Info().Int64("updated", updated).Msg("track names backfilled")
			return nil
		},
	}
}

func backfillTrackNames(ctx context.Context, cfg *config.Config) (int64, error) {
	database, err := db.New(ctx, cfg.Database.URL)
	if err != nil {
		return 0, fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()

	return database.Plays().BackfillTrackNames(ctx)
}
