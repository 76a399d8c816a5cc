// Package janitor periodically purges finished pipelines older than the
// retention window.
package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSchedule runs the purge once an hour
const DefaultSchedule = "@every 1h"

// Purger deletes finished pipelines last updated before a cutoff.
// *pipeline.Service satisfies it.
type Purger interface {
	PurgeExpired(ctx context.Context, before time.Time) (int, error)
}

// Janitor runs Purger on a cron schedule
type Janitor struct {
	purger    Purger
	retention time.Duration
	cron      *cron.Cron
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a janitor that purges pipelines older than retention on the
// given schedule (standard five-field cron or a descriptor like "@every 1h").
func New(purger Purger, retention time.Duration, schedule string, logger *zap.Logger) (*Janitor, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %s", retention)
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &Janitor{
		purger:    purger,
		retention: retention,
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger.Named("janitor"),
		now:       time.Now,
	}
	// A slow purge must not overlap the next tick
	j.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	j.cron.Schedule(sched, cron.FuncJob(func() {
		_, _ = j.RunOnce(j.ctx)
	}))
	return j, nil
}

// Start begins running the schedule in the background
func (j *Janitor) Start() {
	j.logger.Info("janitor started", zap.Duration("retention", j.retention))
	j.cron.Start()
}

// Stop halts the schedule, cancels a purge in progress and waits for it to return
func (j *Janitor) Stop() {
	j.cancel()
	<-j.cron.Stop().Done()
	j.logger.Info("janitor stopped")
}

// RunOnce purges everything older than the retention window right now
func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-j.retention)
	start := time.Now()
	n, err := j.purger.PurgeExpired(ctx, cutoff)
	if err != nil {
		j.logger.Error("purge failed",
			zap.Time("cutoff", cutoff), zap.Int("purged", n), zap.Error(err))
		return n, err
	}
	if n > 0 {
		j.logger.Info("purged expired pipelines",
			zap.Int("purged", n), zap.Time("cutoff", cutoff), zap.Duration("elapsed", time.Since(start)))
	}
	return n, nil
}
