package validation

import (
	"sync"
	"time"

	"github.com/angelmondragon/packfinderz-cart/internal/catalog"
)

// DefaultCacheTTL is how long a catalog answer is trusted.
const DefaultCacheTTL = 5 * time.Minute

// entry is a cached catalog answer. A not-found answer is cached too so
// a vanished product is not re-fetched on every pass.
type entry struct {
	snapshot  catalog.Snapshot
	found     bool
	checkedAt time.Time
}

type cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry
}

func newCache(ttl time.Duration, now func() time.Time) *cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &cache{ttl: ttl, now: now, entries: make(map[string]entry)}
}

func (c *cache) get(productID string) (entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[productID]
	if !ok || c.now().Sub(e.checkedAt) >= c.ttl {
		return entry{}, false
	}
	return e, true
}

func (c *cache) put(productID string, e entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[productID] = e
}

func (c *cache) forget(productID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, productID)
}

// prune drops expired entries and returns how many were removed.
func (c *cache) prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for id, e := range c.entries {
		if now.Sub(e.checkedAt) >= c.ttl {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}

func (c *cache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

func (c *cache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
