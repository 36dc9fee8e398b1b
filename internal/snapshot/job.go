package snapshot

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/guildsnapshot/internal/models"
)

// DefaultInterval is how often the job syncs when no interval is given
const DefaultInterval = 15 * time.Minute

// Runner performs one sync cycle
type Runner interface {
	Run(ctx context.Context) models.SyncResult
}

// Job runs a Runner immediately and then on a fixed interval. A tick that
// arrives while a run is still in progress is skipped.
type Job struct {
	runner   Runner
	interval time.Duration
	logger   *zap.Logger

	running atomic.Bool
	started atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewJob creates a periodic sync job
func NewJob(runner Runner, interval time.Duration, logger *zap.Logger) *Job {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Job{
		runner:   runner,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the job loop. It returns immediately; the loop ends when
// ctx is done or Stop is called. Starting twice is a no-op.
func (j *Job) Start(ctx context.Context) {
	if !j.started.CompareAndSwap(false, true) {
		return
	}
	ctx, j.cancel = context.WithCancel(ctx)

	j.logger.Info("starting guild snapshot job", zap.Duration("interval", j.interval))

	j.wg.Add(1)
	go j.loop(ctx)
}

// Stop cancels the loop and waits for it and any in-progress run to finish
func (j *Job) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()
}

func (j *Job) loop(ctx context.Context) {
	defer j.wg.Done()

	j.trigger(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("guild snapshot job stopped")
			return
		case <-ticker.C:
			j.trigger(ctx)
		}
	}
}

// trigger starts a run unless one is in progress
func (j *Job) trigger(ctx context.Context) bool {
	if !j.running.CompareAndSwap(false, true) {
		j.logger.Debug("previous snapshot run still in progress, skipping tick")
		return false
	}

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		defer j.running.Store(false)
		defer func() {
			if r := recover(); r != nil {
				j.logger.Error("guild snapshot job failed", zap.Any("panic", r))
			}
		}()

		result := j.runner.Run(ctx)
		if !result.Success {
			j.logger.Warn("guild snapshot run did not complete",
				zap.String("reason", string(result.Reason)),
			)
		}
	}()
	return true
}
