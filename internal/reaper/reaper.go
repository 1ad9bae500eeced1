package reaper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/school-auth/internal/metrics"
	"github.com/ErlanBelekov/school-auth/internal/repository"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
)

const batchSize = 100

// Reaper removes tenants that never left the pending state, which happens
// when a registration's compensating rollback could not complete.
type Reaper struct {
	repo       repository.TenantRepository
	logger     *slog.Logger
	clock      clockwork.Clock
	schedule   cron.Schedule
	pendingTTL time.Duration
}

// New parses spec as a standard five-field cron expression.
func New(repo repository.TenantRepository, logger *slog.Logger, clock clockwork.Clock, spec string, pendingTTL time.Duration) (*Reaper, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse reaper schedule %q: %w", spec, err)
	}
	return &Reaper{
		repo:       repo,
		logger:     logger.With("component", "reaper"),
		clock:      clock,
		schedule:   schedule,
		pendingTTL: pendingTTL,
	}, nil
}

// Start runs a reap at every scheduled time until ctx is done.
func (r *Reaper) Start(ctx context.Context) {
	r.logger.Info("reaper started", "pending_ttl", r.pendingTTL)

	for {
		now := r.clock.Now()
		timer := r.clock.NewTimer(r.schedule.Next(now).Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.Info("reaper shut down")
			return
		case <-timer.Chan():
			if _, err := r.Reap(ctx); err != nil {
				r.logger.ErrorContext(ctx, "reap stale tenants", "error", err)
			}
		}
	}
}

// Reap deletes every pending tenant older than the TTL, in batches, and
// returns how many were removed.
func (r *Reaper) Reap(ctx context.Context) (int, error) {
	start := r.clock.Now()
	defer func() {
		metrics.ReaperCycleDuration.Observe(r.clock.Since(start).Seconds())
	}()

	cutoff := start.Add(-r.pendingTTL)
	total := 0
	for {
		n, err := r.repo.DeleteStalePending(ctx, cutoff, batchSize)
		total += n
		metrics.ReaperRemovedTotal.Add(float64(n))
		if err != nil {
			return total, err
		}
		if n < batchSize {
			break
		}
	}

	if total > 0 {
		r.logger.InfoContext(ctx, "removed stale pending tenants", "count", total)
	}
	return total, nil
}
