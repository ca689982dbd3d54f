package core

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// staleRequeuer is the slice of a store the reaper needs.
type staleRequeuer interface {
	RequeueStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// Reaper periodically returns rows orphaned in processing to the retry
// queue. Outcome writes survive an expired attempt context, so orphans
// only appear when a worker dies without writing at all (crash, kill);
// the reaper is the backstop that gets them claimed again.
type Reaper struct {
	stores     []staleRequeuer
	staleAfter time.Duration
	interval   time.Duration
	log        *slog.Logger
	wg         sync.WaitGroup
}

type ReaperConfig struct {
	// StaleAfter is how long a processing row may go without a write
	// before it is considered orphaned. Must comfortably exceed the
	// worker's per-job timeout.
	StaleAfter time.Duration
	Interval   time.Duration
}

func NewReaper(cfg ReaperConfig, logger *slog.Logger, stores ...staleRequeuer) *Reaper {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = time.Hour
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{stores: stores, staleAfter: cfg.StaleAfter, interval: cfg.Interval, log: logger}
}

func (r *Reaper) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep(ctx)
			}
		}
	}()
}

func (r *Reaper) Wait() {
	r.wg.Wait()
}

func (r *Reaper) sweep(ctx context.Context) {
	for _, store := range r.stores {
		n, err := store.RequeueStale(ctx, r.staleAfter)
		if err != nil {
			r.log.Error("reaper.sweep_failed", "error", err)
			continue
		}
		if n > 0 {
			r.log.Warn("reaper.requeued", "count", n)
		}
	}
}
