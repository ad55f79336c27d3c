package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sells-group/editais-cli/internal/model"
)

// Cache defaults.
const (
	DefaultCacheEntries = 64
	DefaultCacheTTL     = 30 * time.Minute
)

// ResultCache is a concurrent-safe LRU cache of search results keyed by
// signature, with TTL expiration.
type ResultCache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	order      []string // LRU order: front=oldest, back=newest
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
	hits       atomic.Int64
	misses     atomic.Int64
}

type cacheEntry struct {
	result    *model.SearchResult
	createdAt time.Time
}

// CacheStats contains cache performance statistics.
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// NewResultCache creates a ResultCache. A non-positive ttl disables expiry.
func NewResultCache(maxEntries int, ttl time.Duration) *ResultCache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	return &ResultCache{
		entries:    make(map[string]*cacheEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Get returns the cached result for a signature, or nil on miss or expiry.
func (c *ResultCache) Get(signature string) *model.SearchResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[signature]
	if !ok {
		c.misses.Add(1)
		return nil
	}
	if c.ttl > 0 && c.now().Sub(entry.createdAt) > c.ttl {
		delete(c.entries, signature)
		c.removeFromOrder(signature)
		c.misses.Add(1)
		return nil
	}

	c.removeFromOrder(signature)
	c.order = append(c.order, signature)
	c.hits.Add(1)
	return entry.result
}

// Put stores a result, evicting the least recently used entry at capacity.
func (c *ResultCache) Put(signature string, result *model.SearchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[signature]; ok {
		c.entries[signature] = &cacheEntry{result: result, createdAt: c.now()}
		c.removeFromOrder(signature)
		c.order = append(c.order, signature)
		return
	}

	for len(c.entries) >= c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[signature] = &cacheEntry{result: result, createdAt: c.now()}
	c.order = append(c.order, signature)
}

// Invalidate drops one signature.
func (c *ResultCache) Invalidate(signature string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[signature]; ok {
		delete(c.entries, signature)
		c.removeFromOrder(signature)
	}
}

// Stats returns cache performance statistics.
func (c *ResultCache) Stats() CacheStats {
	c.mu.Lock()
	entries := len(c.entries)
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return CacheStats{
		Entries:    entries,
		MaxEntries: c.maxEntries,
		Hits:       hits,
		Misses:     misses,
		HitRate:    hitRate,
	}
}

func (c *ResultCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
