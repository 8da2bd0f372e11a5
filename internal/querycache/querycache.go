// Package querycache memoizes recent search_classes / search_classes_methods
// results so an editor re-issuing the same query on every keystroke
// doesn't re-walk the text index. It is a pure latency optimization: the
// cache is never consulted for correctness and is invalidated wholesale
// whenever a refresh or listener call commits.
package querycache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	// DefaultMaxEntries bounds memory use; oldest entry is evicted once
	// the cache grows past this count.
	DefaultMaxEntries = 256
	// DefaultTTL expires an entry even if no invalidation occurs in the
	// meantime, so a cache left running overnight doesn't serve results
	// from a build nobody reconciled.
	DefaultTTL = 10 * time.Minute
)

type entry struct {
	data     interface{}
	cachedAt int64
}

// Cache is a lock-free, TTL-bounded map keyed by an opaque query key
// (typically the verbatim query string plus the result-shape tag).
// Keys are hashed with xxhash before the sync.Map lookup, the same
// fast-equality-check role it plays for the teacher's content store:
// a 64-bit compare instead of a full string compare on every Get, and
// a fixed-size map key regardless of how long the query string is.
type Cache struct {
	entries sync.Map // map[uint64]*entry
	count   int64
	max     int
	ttl     int64 // nanoseconds

	hits   int64
	misses int64
}

func cacheKey(key string) uint64 {
	return xxhash.Sum64String(key)
}

// New creates a query cache with the given entry cap and TTL. A zero
// max or ttl falls back to the package defaults.
func New(max int, ttl time.Duration) *Cache {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{max: max, ttl: ttl.Nanoseconds()}
}

// Get returns the cached value for key, or nil if absent or expired.
func (c *Cache) Get(key string) (interface{}, bool) {
	hk := cacheKey(key)
	v, ok := c.entries.Load(hk)
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	e := v.(*entry)
	if time.Now().UnixNano()-e.cachedAt > c.ttl {
		c.entries.Delete(hk)
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	atomic.AddInt64(&c.hits, 1)
	return e.data, true
}

// Put stores a value for key, evicting the oldest entry if the cache is
// at capacity.
func (c *Cache) Put(key string, data interface{}) {
	hk := cacheKey(key)
	e := &entry{data: data, cachedAt: time.Now().UnixNano()}
	if _, loaded := c.entries.LoadOrStore(hk, e); !loaded {
		if atomic.AddInt64(&c.count, 1) > int64(c.max) {
			c.evictOldest()
		}
		return
	}
	c.entries.Store(hk, e)
}

// InvalidateAll drops every entry. Called after any operation that
// mutates the relational store or text index.
func (c *Cache) InvalidateAll() {
	c.entries.Range(func(key, _ interface{}) bool {
		c.entries.Delete(key)
		return true
	})
	atomic.StoreInt64(&c.count, 0)
}

func (c *Cache) evictOldest() {
	var oldestKey interface{}
	oldestAt := time.Now().UnixNano()
	c.entries.Range(func(key, value interface{}) bool {
		e := value.(*entry)
		if e.cachedAt < oldestAt {
			oldestAt = e.cachedAt
			oldestKey = key
		}
		return true
	})
	if oldestKey != nil {
		c.entries.Delete(oldestKey)
		atomic.AddInt64(&c.count, -1)
	}
}

// Stats reports hit/miss counters for observability.
type Stats struct {
	Hits   int64
	Misses int64
}

func (c *Cache) Stats() Stats {
	return Stats{Hits: atomic.LoadInt64(&c.hits), Misses: atomic.LoadInt64(&c.misses)}
}
