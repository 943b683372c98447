package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newBackfillCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "backfill <file>",
		Short: "Load a JSON export of play events and reconcile them as historical data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackfill(cmd.Context(), cmd, opts, args[0])
		},
	}
}

func runBackfill(ctx context.Context, cmd *cobra.Command, opts *options, path string) error {
	if err := opts.setup(cmd); err != nil {
		return err
	}

	items, err := opts.loadBackfillFile(path)
	if err != nil {
		return fmt.Errorf("loading backfill file: %w", err)
	}

	runner, cleanup, err := opts.newBackfillRunner(ctx, opts.cfg, opts.logger)
	if err != nil {
		return fmt.Errorf("init backfill: %w", err)
	}
	defer cleanup()

	result, err := runner.Run(ctx, items)
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}

	opts.logger.Info().
		Str("file", path).
		Int("total", result.Total).
		Int("processed", result.Processed).
		Int("failed", len(result.Failures)).
		Msg("backfill complete")
	return nil
}
