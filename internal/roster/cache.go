package roster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/guildsnapshot/internal/models"
)

const (
	// DefaultTTL is how long a successful bulk fetch is trusted
	DefaultTTL = 5 * time.Minute
	// DefaultFailureCooldown is how long to wait after a timeout before fetching again
	DefaultFailureCooldown = 60 * time.Second
)

// Outcome labels how a cache check was answered
type Outcome string

const (
	OutcomeCached   Outcome = "fresh_cached"
	OutcomeCooldown Outcome = "degraded_cooldown"
	OutcomeShared   Outcome = "shared"
	OutcomeFetched  Outcome = "fetched"
	OutcomeTimeout  Outcome = "timeout"
	OutcomeError    Outcome = "error"
)

// call is a bulk fetch shared by every caller that arrives while it runs
type call struct {
	done      chan struct{}
	freshness models.Freshness
	err       error
}

func (c *call) wait(ctx context.Context) (models.Freshness, error) {
	select {
	case <-c.done:
		return c.freshness, c.err
	case <-ctx.Done():
		return models.FreshnessDegraded, ctx.Err()
	}
}

// guildState is the bookkeeping for one guild. detached marks a state that
// was dropped from the registry; callers holding it must look up again.
type guildState struct {
	mu          sync.Mutex
	lastSuccess time.Time
	lastFailure time.Time
	inFlight    *call
	detached    bool
}

// Cache guards the expensive "fetch all members" call per guild with a TTL,
// a failure cooldown and in-flight de-duplication.
type Cache struct {
	fetcher  BulkFetcher
	logger   *zap.Logger
	now      func() time.Time
	ttl      time.Duration
	cooldown time.Duration
	observe  func(guildID string, outcome Outcome)

	guilds map[string]*guildState
	mu     sync.RWMutex
}

// CacheOption configures a Cache
type CacheOption func(*Cache)

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// WithDefaults sets the TTL and cooldown used when a caller passes zero
func WithDefaults(ttl, cooldown time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
		if cooldown > 0 {
			c.cooldown = cooldown
		}
	}
}

// WithObserver registers a callback invoked once per cache check outcome
func WithObserver(fn func(guildID string, outcome Outcome)) CacheOption {
	return func(c *Cache) { c.observe = fn }
}

// NewCache creates an isolated roster cache around fetcher
func NewCache(fetcher BulkFetcher, logger *zap.Logger, opts ...CacheOption) *Cache {
	c := &Cache{
		fetcher:  fetcher,
		logger:   logger,
		now:      time.Now,
		ttl:      DefaultTTL,
		cooldown: DefaultFailureCooldown,
		guilds:   make(map[string]*guildState),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// getState retrieves or creates the state for a guild
func (c *Cache) getState(guildID string) *guildState {
	c.mu.RLock()
	st, ok := c.guilds[guildID]
	c.mu.RUnlock()
	if ok {
		return st
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.guilds[guildID]; ok {
		return st
	}
	st = &guildState{}
	c.guilds[guildID] = st
	return st
}

// EnsureFresh makes sure the guild's member cache is hydrated without
// repeating full fetches. Zero ttl or failureCooldown selects the defaults.
//
// It returns FreshnessFresh when the cache is valid or a fetch just
// succeeded, and FreshnessDegraded after a timeout or during the cooldown
// that follows one. Any other fetch error drops the guild's state and is
// returned to every caller sharing that fetch.
func (c *Cache) EnsureFresh(ctx context.Context, guildID string, ttl, failureCooldown time.Duration) (models.Freshness, error) {
	if guildID == "" {
		return models.FreshnessDegraded, ErrMissingGuildID
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	if failureCooldown <= 0 {
		failureCooldown = c.cooldown
	}

	for {
		st := c.getState(guildID)
		st.mu.Lock()
		if st.detached {
			st.mu.Unlock()
			c.forget(guildID, st)
			continue
		}

		if pending := st.inFlight; pending != nil {
			st.mu.Unlock()
			c.record(guildID, OutcomeShared)
			return pending.wait(ctx)
		}

		now := c.now()
		view := models.RosterCacheState{LastSuccess: st.lastSuccess, LastFailure: st.lastFailure}
		if view.IsFresh(now, ttl) {
			st.mu.Unlock()
			c.record(guildID, OutcomeCached)
			c.logger.Debug("roster cache hit", zap.String("guild_id", guildID))
			return models.FreshnessFresh, nil
		}
		if view.InCooldown(now, failureCooldown) {
			st.mu.Unlock()
			c.record(guildID, OutcomeCooldown)
			c.logger.Debug("roster fetch in failure cooldown, serving cached members",
				zap.String("guild_id", guildID),
			)
			return models.FreshnessDegraded, nil
		}

		pending := &call{done: make(chan struct{})}
		st.inFlight = pending
		st.mu.Unlock()

		// The fetch outlives any single caller; the provider enforces its own timeout.
		go c.fetch(context.WithoutCancel(ctx), guildID, st, pending)
		return pending.wait(ctx)
	}
}

func (c *Cache) fetch(ctx context.Context, guildID string, st *guildState, pending *call) {
	start := c.now()
	err := c.runFetch(ctx, guildID)

	st.mu.Lock()
	settledAt := c.now()
	var outcome Outcome
	switch {
	case err == nil:
		if settledAt.After(st.lastSuccess) {
			st.lastSuccess = settledAt
		}
		st.lastFailure = time.Time{}
		pending.freshness = models.FreshnessFresh
		outcome = OutcomeFetched
	case IsTimeout(err):
		if settledAt.After(st.lastFailure) {
			st.lastFailure = settledAt
		}
		pending.freshness = models.FreshnessDegraded
		outcome = OutcomeTimeout
	default:
		st.detached = true
		pending.freshness = models.FreshnessDegraded
		pending.err = fmt.Errorf("failed to fetch guild members: %w", err)
		outcome = OutcomeError
	}
	st.inFlight = nil
	st.mu.Unlock()

	if outcome == OutcomeError {
		c.forget(guildID, st)
	}
	close(pending.done)
	c.record(guildID, outcome)

	duration := settledAt.Sub(start)
	switch outcome {
	case OutcomeFetched:
		c.logger.Info("guild members fetched",
			zap.String("guild_id", guildID),
			zap.Duration("duration", duration),
		)
	case OutcomeTimeout:
		c.logger.Warn("guild member fetch timed out, serving cached data",
			zap.String("guild_id", guildID),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
	default:
		c.logger.Error("guild member fetch failed, cache state cleared",
			zap.String("guild_id", guildID),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
	}
}

// runFetch calls the fetcher and turns a panic into an error so the
// in-flight marker is always cleared.
func (c *Cache) runFetch(ctx context.Context, guildID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("member fetch panicked: %v", r)
		}
	}()
	return c.fetcher.FetchAllMembers(ctx, guildID)
}

// forget removes st from the registry if it is still the current entry
func (c *Cache) forget(guildID string, st *guildState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.guilds[guildID] == st {
		delete(c.guilds, guildID)
	}
}

// Clear drops the cached state for one guild, or for all guilds when
// guildID is empty. The next check issues a fresh fetch. A guild with a
// fetch in progress keeps its state so new callers still share that fetch;
// only its timestamps are reset.
func (c *Cache) Clear(guildID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if guildID != "" {
		if st, ok := c.guilds[guildID]; ok {
			c.clearLocked(guildID, st)
		}
		return
	}
	for id, st := range c.guilds {
		c.clearLocked(id, st)
	}
}

// clearLocked resets or removes one guild's state; c.mu must be held
func (c *Cache) clearLocked(guildID string, st *guildState) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.inFlight != nil {
		st.lastSuccess = time.Time{}
		st.lastFailure = time.Time{}
		return
	}
	st.detached = true
	delete(c.guilds, guildID)
}

// State returns the current bookkeeping for a guild, if any exists
func (c *Cache) State(guildID string) (models.RosterCacheState, bool) {
	c.mu.RLock()
	st, ok := c.guilds[guildID]
	c.mu.RUnlock()
	if !ok {
		return models.RosterCacheState{}, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return models.RosterCacheState{
		GuildID:     guildID,
		LastSuccess: st.lastSuccess,
		LastFailure: st.lastFailure,
		InFlight:    st.inFlight != nil,
	}, true
}

func (c *Cache) record(guildID string, outcome Outcome) {
	if c.observe != nil {
		c.observe(guildID, outcome)
	}
}
