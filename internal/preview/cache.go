// Package preview holds computed diffs under expiring identifiers until
// they are executed or abandoned.
package preview

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BartekS5/caregap/pkg/logger"
	"github.com/BartekS5/caregap/pkg/models"
)

const (
	DefaultTTL           = 30 * time.Minute
	DefaultSweepInterval = time.Minute
)

// Cache is an in-process preview store. Expiry is checked against the clock
// on every read; the background sweep only reclaims memory.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*models.PreviewEntry
	inFlight map[string]struct{}

	now           func() time.Time
	defaultTTL    time.Duration
	sweepInterval time.Duration
	newID         func() string

	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

type Option func(*Cache)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithSweepInterval(d time.Duration) Option {
	return func(c *Cache) { c.sweepInterval = d }
}

// WithIDGenerator replaces the uuid generator.
func WithIDGenerator(gen func() string) Option {
	return func(c *Cache) { c.newID = gen }
}

func New(defaultTTL time.Duration, opts ...Option) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	c := &Cache{
		entries:       make(map[string]*models.PreviewEntry),
		inFlight:      make(map[string]struct{}),
		now:           time.Now,
		defaultTTL:    defaultTTL,
		sweepInterval: DefaultSweepInterval,
		newID:         uuid.NewString,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store saves e under a fresh identifier and returns it. A non-positive ttl
// uses the cache default.
func (c *Cache) Store(e models.PreviewEntry, ttl time.Duration) string {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.newID()
	for _, taken := c.entries[id]; taken; _, taken = c.entries[id] {
		id = c.newID()
	}
	now := c.now()
	e.ID = id
	e.CreatedAt = now
	e.ExpiresAt = now.Add(ttl)
	c.entries[id] = &e
	return id
}

// Get returns a copy of a live entry. Expired entries are absent even
// before the sweep removes them.
func (c *Cache) Get(id string) (*models.PreviewEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok || !c.now().Before(e.ExpiresAt) {
		return nil, false
	}
	cp := *e
	return &cp, true
}

// Delete removes id and reports whether it was present.
func (c *Cache) Delete(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[id]
	delete(c.entries, id)
	delete(c.inFlight, id)
	return ok
}

// Claim reserves a live entry for execution and returns a copy of it. Until
// Release or Delete, further claims fail with models.ErrPreviewInUse.
// Missing or expired entries yield models.ErrNotFound.
func (c *Cache) Claim(id string) (*models.PreviewEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok || !c.now().Before(e.ExpiresAt) {
		return nil, models.ErrNotFound
	}
	if _, busy := c.inFlight[id]; busy {
		return nil, models.ErrPreviewInUse
	}
	c.inFlight[id] = struct{}{}
	cp := *e
	return &cp, nil
}

// Release gives up a claim so the entry can be executed again.
func (c *Cache) Release(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, id)
}

// ExtendTTL moves a live entry's expiry to now+ttl. It returns false for
// missing or expired entries.
func (c *Cache) ExtendTTL(id string, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	now := c.now()
	if !ok || !now.Before(e.ExpiresAt) {
		return false
	}
	e.ExpiresAt = now.Add(ttl)
	return true
}

// Sweep drops expired entries and returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for id, e := range c.entries {
		if !now.Before(e.ExpiresAt) {
			delete(c.entries, id)
			delete(c.inFlight, id)
			removed++
		}
	}
	return removed
}

func (c *Cache) Stats() models.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	stats := models.CacheStats{TotalEntries: len(c.entries)}
	for _, e := range c.entries {
		if now.Before(e.ExpiresAt) {
			stats.ActiveEntries++
		} else {
			stats.ExpiredEntries++
		}
	}
	return stats
}

// Start runs the sweeper until ctx is done or Stop is called.
func (c *Cache) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stop:
				return
			case <-ticker.C:
				if n := c.Sweep(); n > 0 {
					logger.L().Debug().Int("removed", n).Msg("expired previews swept")
				}
			}
		}
	}()
}

// Stop ends the sweeper started by Start and waits for it to exit.
func (c *Cache) Stop() {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()

	c.stopOnce.Do(func() {
		close(c.stop)
		if started {
			<-c.done
		}
	})
}
