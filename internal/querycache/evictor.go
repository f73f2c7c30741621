package querycache

import (
	"context"
	"log/slog"
	"time"
)

// Evictor periodically drops expired entries from a cache.
type Evictor struct {
	cache    *Cache
	interval time.Duration
	logger   *slog.Logger
}

// NewEvictor creates an evictor running every interval.
func NewEvictor(c *Cache, interval time.Duration) *Evictor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Evictor{cache: c, interval: interval, logger: c.logger}
}

// Run starts the eviction loop. It blocks until ctx is cancelled.
func (ev *Evictor) Run(ctx context.Context) {
	ticker := time.NewTicker(ev.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := ev.cache.EvictExpired(); n > 0 {
				ev.logger.Info("evicted expired query cache entries", "count", n, "remaining", ev.cache.Len())
			}
		}
	}
}
