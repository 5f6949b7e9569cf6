// Package verdictcache implements the bounded LRU verdict cache of
// spec.md §4.D: a LocationToken -> bool map with capacity-triggered
// eviction of the least-recently-used entry. It is orchestrator-thread
// only and therefore intentionally not safe for concurrent use — the
// owner (internal/orchestrator) never shares it outside its own
// goroutine, per spec.md §5.
package verdictcache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/malbeclabs/satgate/internal/s2cell"
)

// Cap is the verdict cache's fixed capacity, per spec.md §3.
const Cap = 50

// Cache is a bounded LRU from LocationToken to an allow/deny verdict.
type Cache struct {
	inner *lru.Cache[s2cell.LocationToken, bool]
}

// New constructs a Cache with the fixed capacity Cap.
func New() *Cache {
	inner, err := lru.New[s2cell.LocationToken, bool](Cap)
	if err != nil {
		// Cap is a positive compile-time constant; lru.New only
		// errors on size <= 0.
		panic(err)
	}
	return &Cache{inner: inner}
}

// Get returns the cached verdict for token, if present.
func (c *Cache) Get(token s2cell.LocationToken) (allowed bool, ok bool) {
	return c.inner.Get(token)
}

// Add records allowed for token, evicting the least-recently-used
// entry if the cache is at capacity.
func (c *Cache) Add(token s2cell.LocationToken, allowed bool) {
	c.inner.Add(token, allowed)
}

// Len returns the number of entries currently cached.
func (c *Cache) Len() int { return c.inner.Len() }

// Clear removes all entries, e.g. on ConfigUpdated (spec.md §4.F).
func (c *Cache) Clear() { c.inner.Purge() }
