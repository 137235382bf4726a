package cleanup

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Purger removes completed sessions older than a retention window
type Purger interface {
	PurgeCompleted(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Cleaner periodically purges completed sessions past their retention.
// A zero retention disables it.
type Cleaner struct {
	purger    Purger
	interval  time.Duration
	retention time.Duration
	wg        sync.WaitGroup
}

// NewCleaner creates a new retention worker
func NewCleaner(purger Purger, interval, retention time.Duration) *Cleaner {
	if interval <= 0 {
		interval = time.Hour
	}

	return &Cleaner{
		purger:    purger,
		interval:  interval,
		retention: retention,
	}
}

// Enabled reports whether a retention window is configured
func (c *Cleaner) Enabled() bool {
	return c.retention > 0
}

// Start begins the worker in a goroutine. It returns immediately when disabled.
func (c *Cleaner) Start(ctx context.Context) {
	if !c.Enabled() {
		slog.Info("session retention disabled, cleanup worker not started")
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
}

// Wait blocks until a started worker has stopped
func (c *Cleaner) Wait() {
	c.wg.Wait()
}

// run is the main loop for the cleanup worker
func (c *Cleaner) run(ctx context.Context) {
	slog.Info("cleanup worker started", "interval", c.interval, "retention", c.retention)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Run immediately on start
	c.cleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

// cleanup removes completed sessions older than the retention window
func (c *Cleaner) cleanup(ctx context.Context) {
	slog.Debug("running cleanup cycle")

	removed, err := c.purger.PurgeCompleted(ctx, c.retention)
	if err != nil {
		slog.Error("failed to purge completed sessions", "error", err)
		return
	}

	if removed == 0 {
		slog.Debug("no expired sessions found")
		return
	}

	slog.Info("purged completed sessions", "count", removed, "retention", c.retention)
}
