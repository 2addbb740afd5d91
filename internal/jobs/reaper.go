package jobs

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/byaboneka/byaboneka/internal/storage"
)

// Reaper lifetimes and batch bound.
const (
	// ItemIdleTTL is how long an untouched active item lives before
	// expiry.
	ItemIdleTTL = 30 * 24 * time.Hour
	// ClaimPendingTTL is how long a pending claim lives before expiry.
	ClaimPendingTTL = 7 * 24 * time.Hour
	// reapBatchSize bounds one sweep so a backlog cannot hold long
	// row locks.
	reapBatchSize = 500
)

// Reaper periodically expires idle items and stale pending claims in
// bounded batches.
type Reaper struct {
	db       *storage.DB
	logger   *slog.Logger
	interval time.Duration

	started    atomic.Bool
	cancelLoop context.CancelFunc
	done       chan struct{}
	once       sync.Once
}

// NewReaper creates a reaper sweeping at the given interval.
func NewReaper(db *storage.DB, logger *slog.Logger, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Reaper{
		db:       db,
		logger:   logger,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the sweep loop. Safe to call only once.
func (r *Reaper) Start(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		r.logger.Warn("reaper: Start called more than once, ignoring")
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancelLoop = cancel
	go r.loop(loopCtx)
}

// Stop signals the loop to exit and blocks until it does or ctx
// expires.
func (r *Reaper) Stop(ctx context.Context) {
	if r.cancelLoop != nil {
		r.cancelLoop()
	}
	select {
	case <-r.done:
	case <-ctx.Done():
		r.logger.Warn("reaper: stop timed out")
	}
}

func (r *Reaper) loop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.once.Do(func() { close(r.done) })
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			r.Sweep(sweepCtx)
			cancel()
		}
	}
}

// Sweep runs one bounded expiry pass. Exported so tests and operator
// tooling can trigger it directly.
func (r *Reaper) Sweep(ctx context.Context) {
	items, err := r.db.ExpireIdleItems(ctx, ItemIdleTTL, reapBatchSize)
	if err != nil {
		r.logger.Error("reaper: expire idle items failed", "error", err)
	}
	claims, err := r.db.ExpirePendingClaims(ctx, ClaimPendingTTL, reapBatchSize)
	if err != nil {
		r.logger.Error("reaper: expire pending claims failed", "error", err)
	}
	if items > 0 || claims > 0 {
		r.logger.Info("reaper: sweep complete", "expired_items", items, "expired_claims", claims)
	}
}
