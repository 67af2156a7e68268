package directory

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Refresher reloads a Cache on a fixed interval. It runs as a background
// goroutine and is stopped via its context or Stop.
//
// An interval of 0 disables periodic refresh; lookups still refresh on
// demand once the snapshot exceeds the cache's MaxAge.
type Refresher struct {
	cache    *Cache
	interval time.Duration
	log      *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewRefresher creates a refresher but does not start it.
func NewRefresher(c *Cache, interval time.Duration, log *zap.Logger) *Refresher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Refresher{
		cache:    c,
		interval: interval,
		log:      log.Named("directory"),
		done:     make(chan struct{}),
	}
}

// Start loads the cache immediately, then repeats on the interval until ctx
// is cancelled or Stop is called.
func (r *Refresher) Start(ctx context.Context) {
	if r.interval <= 0 {
		r.log.Info("directory refresher disabled (interval=0)")
		close(r.done)
		return
	}

	ctx, r.cancel = context.WithCancel(ctx)
	go r.loop(ctx)

	r.log.Info("directory refresher started", zap.Duration("interval", r.interval))
}

// Stop signals the loop to exit and waits for it. Safe to call more than once.
func (r *Refresher) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	<-r.done
}

func (r *Refresher) loop(ctx context.Context) {
	defer close(r.done)

	r.refresh(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	if err := r.cache.Refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		r.log.Warn("directory refresh error", zap.Error(err))
	}
}
