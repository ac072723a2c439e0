// Package cache provides a bounded TTL cache fronting expensive derived
// reads, with hit/miss accounting for the health report.
package cache

import (
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Default TTLs: short for derived API results, long for static bytes such
// as screenshot images.
const (
	DefaultResultTTL = 30 * time.Second
	DefaultStaticTTL = time.Hour
)

// Stats is a point-in-time snapshot of cache behaviour.
type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hit_rate"`
}

// Cache is a bounded key→value cache with a fixed per-cache TTL.
type Cache[V any] struct {
	lru    *expirable.LRU[string, V]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// New creates a cache holding at most size entries, each expiring after ttl.
func New[V any](size int, ttl time.Duration) *Cache[V] {
	if size <= 0 {
		size = 512
	}
	return &Cache[V]{lru: expirable.NewLRU[string, V](size, nil, ttl)}
}

// Get returns the cached value for key and whether it was present.
func (c *Cache[V]) Get(key string) (V, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Set stores value under key.
func (c *Cache[V]) Set(key string, value V) {
	c.lru.Add(key, value)
}

// Remove drops key if present.
func (c *Cache[V]) Remove(key string) {
	c.lru.Remove(key)
}

// Purge drops all entries. Counters are kept; they describe lifetime
// behaviour, not current contents.
func (c *Cache[V]) Purge() {
	c.lru.Purge()
}

// Stats reports hit/miss counters and the current size.
// The hit rate is 0 when nothing has been looked up yet.
func (c *Cache[V]) Stats() Stats {
	h := c.hits.Load()
	m := c.misses.Load()
	s := Stats{Hits: h, Misses: m, Size: c.lru.Len()}
	if h+m > 0 {
		s.HitRate = float64(h) / float64(h+m)
	}
	return s
}
