package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch recently played tracks and reconcile them into the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), cmd, opts)
		},
	}
}

func runSync(ctx context.Context, cmd *cobra.Command, opts *options) error {
	if err := opts.setup(cmd); err != nil {
		return err
	}

	runner, cleanup, err := opts.newSyncRunner(ctx, opts.cfg, opts.logger)
	if err != nil {
		return fmt.Errorf("init sync: %w", err)
	}
	defer cleanup()

	result, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	opts.logger.Info().
		Str("pass_id", result.PassID.String()).
		Int("fetched", result.Fetched).
		Int("processed", result.Processed).
		Int("failed", len(result.Failures)).
		Msg("sync complete")
	return nil
}
