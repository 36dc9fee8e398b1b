package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/guildsnapshot/internal/snapshot"
)

func syncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run a single snapshot sync and exit non-zero unless it succeeds",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return syncRun(cmd.Context())
		},
	}
}

func syncRun(ctx context.Context) error {
	cfg, log, err := commonRun()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	// REST calls are enough for a one-shot run; the guild is resolved and
	// cached in session state on demand.
	result := snapshot.RunSnapshotSync(ctx, a.sync)
	log.Info("snapshot complete",
		zap.Bool("success", result.Success),
		zap.String("reason", string(result.Reason)),
		zap.Int("accolade_rows", result.AccoladeRowCount),
		zap.Int("officer_rows", result.OfficerRowCount),
	)

	if !result.Success {
		return fmt.Errorf("snapshot sync failed: %s", result.Reason)
	}
	return nil
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, log, err := commonRun()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			a.Close()
			return nil
		},
	}
}
