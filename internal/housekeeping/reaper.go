// Package housekeeping runs periodic maintenance jobs.
package housekeeping

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lumenbank/onboarding/internal/logging"
	"github.com/lumenbank/onboarding/internal/metrics"
)

// Purger removes pending signups last written before cutoff.
type Purger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Reaper deletes abandoned pending signups on a cron schedule.
type Reaper struct {
	purger    Purger
	retention time.Duration
	metrics   *metrics.Signup
	logger    *slog.Logger
	now       func() time.Time
	cron      *cron.Cron
}

// NewReaper schedules purges of signups older than retention.
func NewReaper(purger Purger, schedule string, retention time.Duration, m *metrics.Signup, logger *slog.Logger) (*Reaper, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("reaper retention must be positive")
	}
	logger = logging.OrDiscard(logger)
	r := &Reaper{
		purger:    purger,
		retention: retention,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
	cronLog := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	r.cron = cron.New(cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)))
	if _, err := r.cron.AddFunc(schedule, func() { r.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("schedule reaper %q: %w", schedule, err)
	}
	return r, nil
}

// Start runs the schedule in the background.
func (r *Reaper) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for a running purge until ctx is done.
func (r *Reaper) Stop(ctx context.Context) {
	select {
	case <-r.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// RunOnce performs a single purge.
func (r *Reaper) RunOnce(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.retention)
	n, err := r.purger.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		r.logger.Error("pending signup purge failed", "error", err)
		return 0, err
	}
	r.metrics.Reaped(n)
	if n > 0 {
		r.logger.Info("purged abandoned pending signups", "count", n, "cutoff", cutoff)
	}
	return n, nil
}
