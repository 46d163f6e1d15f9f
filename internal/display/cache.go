package display

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/bnema/radialmx/internal/logger"
)

// Cache keeps the latest layout so session-open never waits on a backend.
type Cache struct {
	layout   atomic.Pointer[Layout]
	backend  string
	interval time.Duration
	detect   func(ctx context.Context, preferred string) (*Layout, error)
}

// NewCache starts with the default layout until the first refresh.
func NewCache(backend string, interval time.Duration) *Cache {
	c := &Cache{
		backend:  backend,
		interval: interval,
		detect:   Detect,
	}
	c.layout.Store(DefaultLayout())
	return c
}

// Layout returns the current snapshot, never nil.
func (c *Cache) Layout() *Layout {
	return c.layout.Load()
}

// Store replaces the snapshot.
func (c *Cache) Store(l *Layout) {
	if l == nil {
		l = DefaultLayout()
	}
	c.layout.Store(l)
}

// Refresh re-detects the layout. The previous snapshot is kept on failure.
func (c *Cache) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	l, err := c.detect(ctx, c.backend)
	if err != nil {
		return err
	}
	c.layout.Store(l)
	return nil
}

// Run refreshes the layout periodically until ctx is done.
func (c *Cache) Run(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		logger.Warnf("display: using %s layout: %v", c.Layout().Source, err)
	}
	if c.interval <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				logger.Debugf("display: refresh failed: %v", err)
			}
		}
	}
}
