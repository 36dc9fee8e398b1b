package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/guildsnapshot/internal/discord"
	httpserver "github.com/parsascontentcorner/guildsnapshot/internal/http"
	"github.com/parsascontentcorner/guildsnapshot/internal/snapshot"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the periodic snapshot job and the read API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serveRun(cmd.Context())
		},
	}
}

func serveRun(ctx context.Context) error {
	cfg, log, err := commonRun()
	if err != nil {
		return err
	}
	defer func() {
		// Sync errors on stdout/stderr are expected for non-syncable descriptors
		_ = log.Sync()
	}()

	log.Info("starting guild snapshot service",
		zap.String("environment", cfg.Server.Env),
		zap.String("http_port", cfg.Server.HTTPPort),
		zap.String("guild_id", cfg.Discord.GuildID),
		zap.Duration("snapshot_interval", cfg.Snapshot.Interval),
	)

	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	events := discord.NewEventHandlers(cfg.Discord.GuildID, a.cache, log.Named("gateway"))
	defer events.Register(a.session)()

	if err := a.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	job := snapshot.NewJob(a.sync, cfg.Snapshot.Interval, log.Named("snapshot_job"))
	job.Start(ctx)
	defer job.Stop()

	handlers := httpserver.NewHandlers(a.db, a.directory, cfg.Discord.GuildID, log.Named("http"))
	router := httpserver.NewRouter(handlers, promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}), log.Named("http"))
	httpServer := httpserver.NewServer(router, cfg.Server.HTTPPort, log)

	httpErrChan := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(); err != nil {
			httpErrChan <- err
		}
	}()

	select {
	case err := <-httpErrChan:
		log.Error("HTTP server error", zap.Error(err))
		cancel()
	case <-ctx.Done():
		log.Info("received shutdown signal")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown HTTP server gracefully", zap.Error(err))
	}

	log.Info("guild snapshot service stopped")
	return nil
}
