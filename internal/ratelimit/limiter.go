// Package ratelimit paces paginated roster requests per guild.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultPagesPerSecond is the sustained page rate per guild
	DefaultPagesPerSecond = 2.0
	// DefaultBurst is how many pages may be issued back to back
	DefaultBurst = 1
)

// Bucket holds the token bucket and pause window for a single guild
type Bucket struct {
	limiter     *rate.Limiter
	PausedUntil time.Time // set after the provider asks us to back off
	Requests    int64
	mu          sync.Mutex
}

// Pacer manages one bucket per guild
type Pacer struct {
	buckets map[string]*Bucket // guild id -> bucket
	limit   rate.Limit
	burst   int
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewPacer creates a pacer allowing pagesPerSecond sustained requests per
// guild. A non-positive rate selects the default.
func NewPacer(pagesPerSecond float64, burst int, logger *zap.Logger) *Pacer {
	if pagesPerSecond <= 0 {
		pagesPerSecond = DefaultPagesPerSecond
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &Pacer{
		buckets: make(map[string]*Bucket),
		limit:   rate.Limit(pagesPerSecond),
		burst:   burst,
		logger:  logger,
	}
}

// getBucket retrieves or creates a bucket for a guild
func (p *Pacer) getBucket(key string) *Bucket {
	p.mu.RLock()
	bucket, exists := p.buckets[key]
	p.mu.RUnlock()
	if exists {
		return bucket
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if bucket, exists := p.buckets[key]; exists {
		return bucket
	}
	bucket = &Bucket{limiter: rate.NewLimiter(p.limit, p.burst)}
	p.buckets[key] = bucket
	return bucket
}

// Wait blocks until the next page for key may be requested or ctx ends
func (p *Pacer) Wait(ctx context.Context, key string) error {
	bucket := p.getBucket(key)

	bucket.mu.Lock()
	pausedUntil := bucket.PausedUntil
	bucket.Requests++
	limiter := bucket.limiter
	bucket.mu.Unlock()

	if wait := time.Until(pausedUntil); wait > 0 {
		p.logger.Warn("member paging paused, waiting",
			zap.String("guild_id", key),
			zap.Duration("wait_duration", wait),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("pacer wait cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pacer wait failed: %w", err)
	}
	return nil
}

// Pause stops paging for key until d has elapsed
func (p *Pacer) Pause(key string, d time.Duration) {
	if d <= 0 {
		return
	}
	bucket := p.getBucket(key)

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	until := time.Now().Add(d)
	if until.After(bucket.PausedUntil) {
		bucket.PausedUntil = until
	}
	p.logger.Warn("member paging paused",
		zap.String("guild_id", key),
		zap.Duration("retry_after", d),
	)
}

// GetStatus returns the number of requests paced for key and its pause window
func (p *Pacer) GetStatus(key string) (requests int64, pausedUntil time.Time) {
	bucket := p.getBucket(key)

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	return bucket.Requests, bucket.PausedUntil
}

// Reset clears all buckets
func (p *Pacer) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buckets = make(map[string]*Bucket)
	p.logger.Debug("member pacer reset")
}
