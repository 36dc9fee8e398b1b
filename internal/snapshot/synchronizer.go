// Package snapshot mirrors a guild's roster into the accolade recipient and
// officer profile tables.
package snapshot

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/parsascontentcorner/guildsnapshot/internal/models"
	"github.com/parsascontentcorner/guildsnapshot/internal/roster"
)

// Store persists the snapshot tables
type Store interface {
	ListAccolades(ctx context.Context) ([]models.AccoladeDefinition, error)
	DeleteAll(ctx context.Context, table models.Table) error
	BulkInsertAccoladeRecipients(ctx context.Context, rows []models.AccoladeRecipientRow) error
	BulkInsertOfficerProfiles(ctx context.Context, rows []models.OfficerProfileRow) error
}

// GuildSource resolves the guild and its roles
type GuildSource interface {
	ResolveGuild(ctx context.Context, guildID string) (*models.Guild, error)
	FetchRoles(ctx context.Context, guildID string) ([]models.RoleRecord, error)
}

// RosterFetcher returns the full member roster for a guild
type RosterFetcher interface {
	FetchAll(ctx context.Context, guildID string, batchSize, maxBatches int) []models.MemberRecord
}

var _ RosterFetcher = (*roster.Fetcher)(nil)

// Config selects the guild and the paging bounds of a sync
type Config struct {
	GuildID    string
	BatchSize  int
	MaxBatches int
}

// Synchronizer runs one snapshot sync cycle at a time
type Synchronizer struct {
	cfg     Config
	guilds  GuildSource
	fetcher RosterFetcher
	store   Store
	logger  *zap.Logger
	metrics *Metrics
	now     func() time.Time
}

// Option configures a Synchronizer
type Option func(*Synchronizer)

// WithMetrics records every sync result
func WithMetrics(m *Metrics) Option {
	return func(s *Synchronizer) { s.metrics = m }
}

// WithSyncClock replaces time.Now, mainly for tests
func WithSyncClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// NewSynchronizer creates a snapshot synchronizer
func NewSynchronizer(cfg Config, guilds GuildSource, fetcher RosterFetcher, store Store, logger *zap.Logger, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		cfg:     cfg,
		guilds:  guilds,
		fetcher: fetcher,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunSnapshotSync performs one sync with s and returns its outcome
func RunSnapshotSync(ctx context.Context, s *Synchronizer) models.SyncResult {
	return s.Run(ctx)
}

// Run performs one sync cycle. It never returns an error or panics; every
// failure is reflected in the result and the logs.
func (s *Synchronizer) Run(ctx context.Context) models.SyncResult {
	start := s.now()
	log := s.logger.With(
		zap.String("run_id", uuid.NewString()),
		zap.String("guild_id", s.cfg.GuildID),
	)

	result := s.run(ctx, log)
	s.metrics.observeSync(result, s.now())

	if result.Success {
		log.Info("guild snapshot sync complete",
			zap.Int("accolade_rows", result.AccoladeRowCount),
			zap.Int("officer_rows", result.OfficerRowCount),
			zap.Duration("duration", s.now().Sub(start)),
		)
	}
	return result
}

func (s *Synchronizer) run(ctx context.Context, log *zap.Logger) models.SyncResult {
	guildID := s.cfg.GuildID
	if guildID == "" {
		log.Warn("cannot sync guild snapshot without a configured guild id")
		return models.FailedSync(models.SyncReasonMissingGuildID)
	}

	if err := protect(func() error {
		_, err := s.guilds.ResolveGuild(ctx, guildID)
		return err
	}); err != nil {
		log.Error("failed to resolve guild for snapshot sync", zap.Error(err))
		return models.FailedSync(models.SyncReasonGuildUnavailable)
	}

	var roles []models.RoleRecord
	if err := protect(func() (err error) {
		roles, err = s.guilds.FetchRoles(ctx, guildID)
		return err
	}); err != nil {
		log.Error("failed to fetch roles for snapshot sync", zap.Error(err))
		return models.FailedSync(models.SyncReasonRoleFetchFailed)
	}

	var members []models.MemberRecord
	if err := protect(func() error {
		members = s.fetcher.FetchAll(ctx, guildID, s.cfg.BatchSize, s.cfg.MaxBatches)
		return nil
	}); err != nil {
		log.Error("member fetch panicked during snapshot sync", zap.Error(err))
		members = nil
	}
	if len(members) == 0 {
		log.Warn("member fetch returned no members, leaving snapshot tables untouched")
		return models.FailedSync(models.SyncReasonMemberFetchFailed)
	}

	syncedAt := s.now().Unix()

	var accoladeRows, officerRows int
	var g errgroup.Group
	g.Go(func() error {
		accoladeRows = s.branch(log, models.TableAccoladeRecipients, func() int {
			return s.snapshotAccolades(ctx, log, members, syncedAt)
		})
		return nil
	})
	g.Go(func() error {
		officerRows = s.branch(log, models.TableOfficerProfiles, func() int {
			return s.snapshotOfficers(ctx, log, members, roles, syncedAt)
		})
		return nil
	})
	_ = g.Wait()

	return models.SyncResult{
		Success:          true,
		Reason:           models.SyncReasonNone,
		AccoladeRowCount: accoladeRows,
		OfficerRowCount:  officerRows,
	}
}

func (s *Synchronizer) snapshotAccolades(ctx context.Context, log *zap.Logger, members []models.MemberRecord, syncedAt int64) int {
	accolades, err := s.store.ListAccolades(ctx)
	if err != nil {
		log.Error("failed to load accolades for snapshot", zap.Error(err))
		return 0
	}

	rows := DeriveAccoladeRecipients(accolades, members, syncedAt)
	return s.replace(ctx, log, models.TableAccoladeRecipients, len(rows), func() error {
		return s.store.BulkInsertAccoladeRecipients(ctx, rows)
	})
}

func (s *Synchronizer) snapshotOfficers(ctx context.Context, log *zap.Logger, members []models.MemberRecord, roles []models.RoleRecord, syncedAt int64) int {
	rows := DeriveOfficers(members, roles, syncedAt)
	return s.replace(ctx, log, models.TableOfficerProfiles, len(rows), func() error {
		return s.store.BulkInsertOfficerProfiles(ctx, rows)
	})
}

// replace clears table then inserts n rows. A failed insert leaves the
// table empty until the next cycle.
func (s *Synchronizer) replace(ctx context.Context, log *zap.Logger, table models.Table, n int, insert func() error) int {
	if err := s.store.DeleteAll(ctx, table); err != nil {
		log.Error("failed to clear snapshot table", zap.String("table", string(table)), zap.Error(err))
		return 0
	}
	if n == 0 {
		return 0
	}
	if err := insert(); err != nil {
		log.Error("failed to persist snapshot rows",
			zap.String("table", string(table)),
			zap.Int("rows", n),
			zap.Error(err),
		)
		return 0
	}
	return n
}

// branch runs one table replacement, turning a panic into a zero count
func (s *Synchronizer) branch(log *zap.Logger, table models.Table, fn func() int) (n int) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("snapshot branch panicked",
				zap.String("table", string(table)),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			n = 0
		}
	}()
	return fn()
}

func protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
