package services

import (
	"context"
	"log/slog"
	"time"

	"chamapay/monitoring"
)

// PendingExpirer expires pending rows older than the retention window.
// Terminal rows must never be touched.
type PendingExpirer interface {
	ExpireStalePending(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Sweeper garbage-collects abandoned pending transactions outside the
// synchronous request path.
type Sweeper struct {
	store     PendingExpirer
	retention time.Duration
	interval  time.Duration
}

func NewSweeper(store PendingExpirer, retention, interval time.Duration) *Sweeper {
	if retention <= 0 {
		retention = 5 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		store:     store,
		retention: retention,
		interval:  interval,
	}
}

// Run loops until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			n, err := s.store.ExpireStalePending(ctx, s.retention)
			if err != nil {
				slog.Error("sweeper: expire stale pending", "error", err)
				continue
			}
			if n > 0 {
				monitoring.TrackExpiredPending(n)
				slog.Info("sweeper: expired stale pending transactions", "count", n)
			}
		}
	}
}
