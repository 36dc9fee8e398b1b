// Package main is the entry point for the guild snapshot service. It mirrors
// a Discord guild's roster into the accolade and officer tables and serves
// them over a small read API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/guildsnapshot/internal/config"
	"github.com/parsascontentcorner/guildsnapshot/pkg/logger"
)

const programName = "guildsnapshot"

var globalFlags = struct {
	debug bool
}{}

// commonRun loads configuration and builds the logger shared by every command
func commonRun() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if globalFlags.debug {
		cfg.Logging.Level = "debug"
		cfg.Roster.DebugFetch = true
	}

	log, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Mirror a Discord guild roster into accolade and officer snapshots",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveRun(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging and member fetch instrumentation")

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(syncCommand())
	rootCmd.AddCommand(migrateCommand())

	if err := rootCmd.Execute(); err != nil {
		// cobra has already printed the error
		os.Exit(1)
	}
}
