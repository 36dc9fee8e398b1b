package roster

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/guildsnapshot/internal/models"
)

// ============================================================================
// Test Doubles
// ============================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeBulk struct {
	calls atomic.Int32
	gate  chan struct{}
	mu    sync.Mutex
	err   error
	panic bool
}

func (f *fakeBulk) FetchAllMembers(ctx context.Context, _ string) error {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panic {
		panic("gateway closed")
	}
	return f.err
}

func (f *fakeBulk) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type outcomeCounter struct {
	mu     sync.Mutex
	counts map[Outcome]int
}

func newOutcomeCounter() *outcomeCounter {
	return &outcomeCounter{counts: make(map[Outcome]int)}
}

func (o *outcomeCounter) observe(_ string, outcome Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counts[outcome]++
}

func (o *outcomeCounter) get(outcome Outcome) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counts[outcome]
}

func timeoutErr() error {
	return fmt.Errorf("%w: %w", ErrFetchTimeout, context.DeadlineExceeded)
}

// ============================================================================
// Deduplication Tests
// ============================================================================

func TestEnsureFresh_ConcurrentCallersShareOneFetch(t *testing.T) {
	defer goleak.VerifyNone(t)

	bulk := &fakeBulk{gate: make(chan struct{})}
	outcomes := newOutcomeCounter()
	cache := NewCache(bulk, zap.NewNop(), WithObserver(outcomes.observe))

	const callers = 8
	var wg sync.WaitGroup
	results := make([]models.Freshness, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.EnsureFresh(context.Background(), "g1", 0, 0)
		}(i)
	}

	require.Eventually(t, func() bool {
		return outcomes.get(OutcomeShared) == callers-1
	}, time.Second, time.Millisecond)

	state, ok := cache.State("g1")
	require.True(t, ok)
	assert.True(t, state.InFlight)

	close(bulk.gate)
	wg.Wait()

	assert.Equal(t, int32(1), bulk.calls.Load())
	for i := 0; i < callers; i++ {
		assert.NoError(t, errs[i])
		assert.Equal(t, models.FreshnessFresh, results[i])
	}
}

func TestEnsureFresh_WaiterCancellationDoesNotCancelFetch(t *testing.T) {
	defer goleak.VerifyNone(t)

	bulk := &fakeBulk{gate: make(chan struct{})}
	outcomes := newOutcomeCounter()
	cache := NewCache(bulk, zap.NewNop(), WithObserver(outcomes.observe))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := cache.EnsureFresh(ctx, "g1", 0, 0)
		done <- err
	}()

	require.Eventually(t, func() bool { return bulk.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(bulk.gate)
	require.Eventually(t, func() bool { return outcomes.get(OutcomeFetched) == 1 }, time.Second, time.Millisecond)

	state, ok := cache.State("g1")
	require.True(t, ok)
	assert.False(t, state.InFlight)
	assert.False(t, state.LastSuccess.IsZero())
}

// ============================================================================
// TTL and Cooldown Tests
// ============================================================================

func TestEnsureFresh_TTLWindow(t *testing.T) {
	clock := newFakeClock()
	bulk := &fakeBulk{}
	cache := NewCache(bulk, zap.NewNop(), WithClock(clock.Now))
	ctx := context.Background()

	freshness, err := cache.EnsureFresh(ctx, "g1", time.Minute, 0)
	require.NoError(t, err)
	assert.Equal(t, models.FreshnessFresh, freshness)
	assert.Equal(t, int32(1), bulk.calls.Load())

	clock.Advance(59 * time.Second)
	freshness, err = cache.EnsureFresh(ctx, "g1", time.Minute, 0)
	require.NoError(t, err)
	assert.Equal(t, models.FreshnessFresh, freshness)
	assert.Equal(t, int32(1), bulk.calls.Load(), "within ttl should not refetch")

	clock.Advance(time.Second)
	_, err = cache.EnsureFresh(ctx, "g1", time.Minute, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(2), bulk.calls.Load(), "ttl boundary refetches")
}

func TestEnsureFresh_DefaultsFromOptions(t *testing.T) {
	clock := newFakeClock()
	bulk := &fakeBulk{}
	cache := NewCache(bulk, zap.NewNop(), WithClock(clock.Now), WithDefaults(10*time.Second, 5*time.Second))
	ctx := context.Background()

	_, err := cache.EnsureFresh(ctx, "g1", 0, 0)
	require.NoError(t, err)

	clock.Advance(11 * time.Second)
	_, err = cache.EnsureFresh(ctx, "g1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(2), bulk.calls.Load())
}

func TestEnsureFresh_TimeoutDegradesAndCoolsDown(t *testing.T) {
	clock := newFakeClock()
	bulk := &fakeBulk{err: timeoutErr()}
	outcomes := newOutcomeCounter()
	cache := NewCache(bulk, zap.NewNop(), WithClock(clock.Now), WithObserver(outcomes.observe))
	ctx := context.Background()

	freshness, err := cache.EnsureFresh(ctx, "g1", 0, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, models.FreshnessDegraded, freshness)

	state, ok := cache.State("g1")
	require.True(t, ok)
	assert.Equal(t, clock.Now(), state.LastFailure)
	assert.True(t, state.LastSuccess.IsZero())

	clock.Advance(59 * time.Second)
	freshness, err = cache.EnsureFresh(ctx, "g1", 0, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, models.FreshnessDegraded, freshness)
	assert.Equal(t, int32(1), bulk.calls.Load(), "cooldown should not refetch")
	assert.Equal(t, 1, outcomes.get(OutcomeCooldown))

	bulk.setErr(nil)
	clock.Advance(time.Second)
	freshness, err = cache.EnsureFresh(ctx, "g1", 0, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, models.FreshnessFresh, freshness)
	assert.Equal(t, int32(2), bulk.calls.Load())

	state, _ = cache.State("g1")
	assert.True(t, state.LastFailure.IsZero(), "success clears the failure")
	assert.Equal(t, clock.Now(), state.LastSuccess)
}

func TestEnsureFresh_FreshTakesPrecedenceOverCooldown(t *testing.T) {
	clock := newFakeClock()
	bulk := &fakeBulk{}
	cache := NewCache(bulk, zap.NewNop(), WithClock(clock.Now))
	ctx := context.Background()

	_, err := cache.EnsureFresh(ctx, "g1", time.Hour, time.Hour)
	require.NoError(t, err)

	freshness, err := cache.EnsureFresh(ctx, "g1", time.Hour, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, models.FreshnessFresh, freshness)
}

func TestEnsureFresh_GuildsAreIndependent(t *testing.T) {
	clock := newFakeClock()
	bulk := &fakeBulk{}
	cache := NewCache(bulk, zap.NewNop(), WithClock(clock.Now))
	ctx := context.Background()

	_, err := cache.EnsureFresh(ctx, "g1", 0, 0)
	require.NoError(t, err)
	_, err = cache.EnsureFresh(ctx, "g2", 0, 0)
	require.NoError(t, err)

	assert.Equal(t, int32(2), bulk.calls.Load())
}

// ============================================================================
// Failure Tests
// ============================================================================

func TestEnsureFresh_HardErrorClearsState(t *testing.T) {
	clock := newFakeClock()
	bulk := &fakeBulk{err: errors.New("missing access")}
	cache := NewCache(bulk, zap.NewNop(), WithClock(clock.Now))
	ctx := context.Background()

	_, err := cache.EnsureFresh(ctx, "g1", 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing access")
	assert.False(t, IsTimeout(err))

	_, ok := cache.State("g1")
	assert.False(t, ok, "state should be dropped after a hard failure")

	bulk.setErr(nil)
	freshness, err := cache.EnsureFresh(ctx, "g1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, models.FreshnessFresh, freshness)
	assert.Equal(t, int32(2), bulk.calls.Load(), "no cooldown after a hard failure")
}

func TestEnsureFresh_HardErrorSharedByAllWaiters(t *testing.T) {
	defer goleak.VerifyNone(t)

	bulk := &fakeBulk{gate: make(chan struct{}), err: errors.New("forbidden")}
	outcomes := newOutcomeCounter()
	cache := NewCache(bulk, zap.NewNop(), WithObserver(outcomes.observe))

	const callers = 4
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = cache.EnsureFresh(context.Background(), "g1", 0, 0)
		}(i)
	}

	require.Eventually(t, func() bool { return outcomes.get(OutcomeShared) == callers-1 }, time.Second, time.Millisecond)
	close(bulk.gate)
	wg.Wait()

	for _, err := range errs {
		assert.ErrorContains(t, err, "forbidden")
	}
	assert.Equal(t, int32(1), bulk.calls.Load())
}

func TestEnsureFresh_PanicBecomesError(t *testing.T) {
	bulk := &fakeBulk{panic: true}
	cache := NewCache(bulk, zap.NewNop())

	var err error
	require.NotPanics(t, func() {
		_, err = cache.EnsureFresh(context.Background(), "g1", 0, 0)
	})
	assert.ErrorContains(t, err, "panicked")

	_, ok := cache.State("g1")
	assert.False(t, ok)
}

func TestEnsureFresh_MissingGuildID(t *testing.T) {
	bulk := &fakeBulk{}
	cache := NewCache(bulk, zap.NewNop())

	_, err := cache.EnsureFresh(context.Background(), "", 0, 0)

	assert.ErrorIs(t, err, ErrMissingGuildID)
	assert.Zero(t, bulk.calls.Load())
}

// ============================================================================
// Clear Tests
// ============================================================================

func TestClear_SingleGuild(t *testing.T) {
	bulk := &fakeBulk{}
	cache := NewCache(bulk, zap.NewNop())
	ctx := context.Background()

	_, err := cache.EnsureFresh(ctx, "g1", 0, 0)
	require.NoError(t, err)
	_, err = cache.EnsureFresh(ctx, "g2", 0, 0)
	require.NoError(t, err)

	cache.Clear("g1")

	_, ok := cache.State("g1")
	assert.False(t, ok)
	_, ok = cache.State("g2")
	assert.True(t, ok)

	_, err = cache.EnsureFresh(ctx, "g1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(3), bulk.calls.Load())
}

func TestClear_AllGuilds(t *testing.T) {
	bulk := &fakeBulk{}
	cache := NewCache(bulk, zap.NewNop())
	ctx := context.Background()

	for _, id := range []string{"g1", "g2", "g3"} {
		_, err := cache.EnsureFresh(ctx, id, 0, 0)
		require.NoError(t, err)
	}

	cache.Clear("")

	for _, id := range []string{"g1", "g2", "g3"} {
		_, ok := cache.State(id)
		assert.False(t, ok)
	}
}

func TestClear_DuringFetchKeepsSharedCall(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := newFakeClock()
	bulk := &fakeBulk{gate: make(chan struct{})}
	outcomes := newOutcomeCounter()
	cache := NewCache(bulk, zap.NewNop(), WithClock(clock.Now), WithObserver(outcomes.observe))

	first := make(chan error, 1)
	go func() {
		_, err := cache.EnsureFresh(context.Background(), "g1", 0, 0)
		first <- err
	}()
	require.Eventually(t, func() bool { return bulk.calls.Load() == 1 }, time.Second, time.Millisecond)

	cache.Clear("g1")

	second := make(chan error, 1)
	go func() {
		_, err := cache.EnsureFresh(context.Background(), "g1", 0, 0)
		second <- err
	}()
	require.Eventually(t, func() bool { return outcomes.get(OutcomeShared) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), bulk.calls.Load(), "a cleared guild must not start a second fetch while one runs")

	state, ok := cache.State("g1")
	require.True(t, ok)
	assert.True(t, state.InFlight)

	close(bulk.gate)
	require.NoError(t, <-first)
	require.NoError(t, <-second)
	assert.Equal(t, int32(1), bulk.calls.Load())

	state, ok = cache.State("g1")
	require.True(t, ok)
	assert.False(t, state.InFlight)
	assert.Equal(t, clock.Now(), state.LastSuccess)
}

func TestClear_AllGuildsDuringFetch(t *testing.T) {
	defer goleak.VerifyNone(t)

	bulk := &fakeBulk{gate: make(chan struct{})}
	cache := NewCache(bulk, zap.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := cache.EnsureFresh(context.Background(), "g1", 0, 0)
		done <- err
	}()
	require.Eventually(t, func() bool { return bulk.calls.Load() == 1 }, time.Second, time.Millisecond)

	cache.Clear("")
	_, ok := cache.State("g1")
	assert.True(t, ok, "a guild with a fetch in progress stays registered")

	close(bulk.gate)
	require.NoError(t, <-done)
}
