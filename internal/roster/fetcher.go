package roster

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/guildsnapshot/internal/models"
)

const (
	// DefaultBatchSize is the provider's maximum member page size
	DefaultBatchSize = 1000
	// DefaultMaxBatches bounds a single exhaustive walk
	DefaultMaxBatches = 200
)

// Pacer is waited on before every page request
type Pacer interface {
	Wait(ctx context.Context, key string) error
}

// PageObserver is told about every page request
type PageObserver func(guildID string, duration time.Duration, size int, err error)

// Fetcher walks the provider's paginated member listing to completion
type Fetcher struct {
	source  PageSource
	logger  *zap.Logger
	pacer   Pacer
	observe PageObserver
	debug   bool
}

// FetcherOption configures a Fetcher
type FetcherOption func(*Fetcher)

// WithPacer throttles page requests
func WithPacer(p Pacer) FetcherOption {
	return func(f *Fetcher) { f.pacer = p }
}

// WithPageObserver registers a per-page callback
func WithPageObserver(fn PageObserver) FetcherOption {
	return func(f *Fetcher) { f.observe = fn }
}

// WithDebug logs every page request with its parameters, duration and size
func WithDebug(enabled bool) FetcherOption {
	return func(f *Fetcher) { f.debug = enabled }
}

// NewFetcher creates a paged roster fetcher over source
func NewFetcher(source PageSource, logger *zap.Logger, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		source: source,
		logger: logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchAll requests pages of up to batchSize members strictly after the
// largest id seen so far until a short page, maxBatches, or a page error.
// The result is ordered by numeric id and has no duplicates. If nothing was
// collected, the provider's local member cache is returned instead.
//
// Page errors are logged and end the walk; they are never returned.
func (f *Fetcher) FetchAll(ctx context.Context, guildID string, batchSize, maxBatches int) []models.MemberRecord {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if maxBatches <= 0 {
		maxBatches = DefaultMaxBatches
	}

	var collected []models.MemberRecord
	seen := make(map[string]struct{})
	after := ""

	for batch := 0; batch < maxBatches; batch++ {
		if f.pacer != nil {
			if err := f.pacer.Wait(ctx, guildID); err != nil {
				f.logger.Error("member page pacing aborted",
					zap.String("guild_id", guildID),
					zap.Int("batch", batch),
					zap.Error(err),
				)
				break
			}
		}

		chunk, err := f.fetchPage(ctx, guildID, batchSize, after)
		if err != nil {
			f.logger.Error("failed to fetch member batch",
				zap.String("guild_id", guildID),
				zap.Int("batch", batch),
				zap.String("after", after),
				zap.Error(err),
			)
			break
		}
		if len(chunk) == 0 {
			break
		}

		SortMembers(chunk)
		for _, m := range chunk {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
			collected = append(collected, m)
		}

		if len(chunk) < batchSize {
			break
		}
		if last := chunk[len(chunk)-1].ID; CompareIDs(last, after) > 0 {
			after = last
		} else {
			// A full page that does not advance the cursor would repeat forever.
			f.logger.Warn("member cursor did not advance, stopping",
				zap.String("guild_id", guildID),
				zap.String("after", after),
			)
			break
		}
	}

	if len(collected) == 0 {
		if cached := f.source.CachedMembers(guildID); len(cached) > 0 {
			f.logger.Warn("paged member fetch returned nothing, falling back to cached members",
				zap.String("guild_id", guildID),
				zap.Int("cached_count", len(cached)),
			)
			out := make([]models.MemberRecord, len(cached))
			copy(out, cached)
			SortMembers(out)
			return out
		}
		return nil
	}

	SortMembers(collected)
	return collected
}

func (f *Fetcher) fetchPage(ctx context.Context, guildID string, limit int, after string) ([]models.MemberRecord, error) {
	start := time.Now()
	if f.debug {
		f.logger.Info("member fetch start",
			zap.String("guild_id", guildID),
			zap.Int("limit", limit),
			zap.String("after", after),
		)
	}

	chunk, err := f.source.FetchMembersPage(ctx, guildID, limit, after)
	duration := time.Since(start)

	if f.observe != nil {
		f.observe(guildID, duration, len(chunk), err)
	}
	if f.debug {
		if err != nil {
			f.logger.Error("member fetch failed",
				zap.String("guild_id", guildID),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
		} else {
			f.logger.Info("member fetch success",
				zap.String("guild_id", guildID),
				zap.Duration("duration", duration),
				zap.Int("size", len(chunk)),
			)
		}
	}
	return chunk, err
}

// CompareIDs orders decimal snowflake ids numerically without parsing them,
// so ids wider than 64 bits still compare correctly. The empty id sorts first.
func CompareIDs(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// SortMembers sorts members ascending by numeric id, in place
func SortMembers(members []models.MemberRecord) {
	sort.SliceStable(members, func(i, j int) bool {
		return CompareIDs(members[i].ID, members[j].ID) < 0
	})
}
