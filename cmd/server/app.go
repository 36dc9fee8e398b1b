package main

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/guildsnapshot/internal/config"
	"github.com/parsascontentcorner/guildsnapshot/internal/database"
	"github.com/parsascontentcorner/guildsnapshot/internal/discord"
	"github.com/parsascontentcorner/guildsnapshot/internal/ratelimit"
	"github.com/parsascontentcorner/guildsnapshot/internal/roster"
	"github.com/parsascontentcorner/guildsnapshot/internal/snapshot"
)

// app holds the wired components shared by the serve and sync commands
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *database.DB
	session   *discordgo.Session
	registry  *prometheus.Registry
	metrics   *snapshot.Metrics
	provider  *discord.Provider
	cache     *roster.Cache
	directory *roster.Directory
	sync      *snapshot.Synchronizer
}

// newApp connects to the database, applies migrations and wires the roster
// and snapshot components. The Discord session is created but not opened.
func newApp(cfg *config.Config, log *zap.Logger) (*app, error) {
	db, err := database.NewDB(&cfg.Database, log)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	session, err := discordgo.New("Bot " + cfg.Discord.BotToken)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
	session.State.TrackMembers = true
	session.State.TrackRoles = true

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := snapshot.NewMetrics(registry)

	pacer := ratelimit.NewPacer(cfg.Roster.PagesPerSecond, ratelimit.DefaultBurst, log.Named("pacer"))

	provider := discord.NewProvider(session, cfg.Roster.FetchTimeout, log.Named("discord"))
	provider.SetPacer(pacer)

	cache := roster.NewCache(provider, log.Named("roster_cache"),
		roster.WithDefaults(cfg.Roster.CacheTTL, cfg.Roster.FailureCooldown),
		roster.WithObserver(metrics.ObserveCacheOutcome),
	)
	fetcher := roster.NewFetcher(provider, log.Named("roster_fetcher"),
		roster.WithPacer(pacer),
		roster.WithPageObserver(metrics.ObservePage),
		roster.WithDebug(cfg.Roster.DebugFetch),
	)

	sync := snapshot.NewSynchronizer(
		snapshot.Config{
			GuildID:    cfg.Discord.GuildID,
			BatchSize:  cfg.Roster.PageSize,
			MaxBatches: cfg.Roster.MaxPages,
		},
		provider,
		fetcher,
		db,
		log.Named("snapshot"),
		snapshot.WithMetrics(metrics),
	)

	return &app{
		cfg:       cfg,
		logger:    log,
		db:        db,
		session:   session,
		registry:  registry,
		metrics:   metrics,
		provider:  provider,
		cache:     cache,
		directory: roster.NewDirectory(cache, provider, provider, log.Named("directory")),
		sync:      sync,
	}, nil
}

// Close releases the Discord session and the database
func (a *app) Close() {
	if err := a.session.Close(); err != nil {
		a.logger.Debug("failed to close discord session", zap.Error(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close database connection", zap.Error(err))
	}
}
