// Package cache is the dual-tier cache (C2): an in-process L1 TTL+LRU
// map and an optional L2 distributed tier, with singleflight-coalesced
// fetch-through and pattern invalidation. The L1 structure is grounded
// on the mutex-guarded map store + exact-match index + atomic hit/miss
// counters + evictOldest idiom found in the pack's semantic cache engine
// (Sergey-Bar-Alfred/services/gateway/caching/caching.go), restructured
// around TTL expiry and a byte budget instead of similarity search.
package cache

import (
	"container/list"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

type l1Entry struct {
	key        string
	value      []byte
	expiresAt  time.Time
	approxSize int
	elem       *list.Element
}

// l1 is an in-process LRU+TTL byte-value cache bounded by entry count and
// byte budget (spec.md §4.2 "L1").
type l1 struct {
	mu         sync.Mutex
	entries    map[string]*l1Entry
	lru        *list.List
	maxEntries int
	maxBytes   int
	curBytes   int

	hits   int64
	misses int64
}

func newL1(maxEntries, maxBytes int) *l1 {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	return &l1{
		entries:    make(map[string]*l1Entry),
		lru:        list.New(),
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
	}
}

// get returns the cached value for key, or ok=false on miss/expiry.
func (c *l1) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found || time.Now().After(e.expiresAt) {
		if found {
			c.removeLocked(e)
		}
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	c.lru.MoveToFront(e.elem)
	atomic.AddInt64(&c.hits, 1)
	return e.value, true
}

// set stores value under key with the given TTL, evicting the least
// recently used entries as needed to respect the entry-count and
// byte-budget bounds.
func (c *l1) set(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, found := c.entries[key]; found {
		c.removeLocked(existing)
	}

	e := &l1Entry{key: key, value: value, expiresAt: time.Now().Add(ttl), approxSize: len(value) + len(key)}
	e.elem = c.lru.PushFront(e)
	c.entries[key] = e
	c.curBytes += e.approxSize

	for (len(c.entries) > c.maxEntries || c.curBytes > c.maxBytes) && c.lru.Len() > 0 {
		c.evictOldestLocked()
	}
}

func (c *l1) evictOldestLocked() {
	back := c.lru.Back()
	if back == nil {
		return
	}
	c.removeLocked(back.Value.(*l1Entry))
}

func (c *l1) removeLocked(e *l1Entry) {
	c.lru.Remove(e.elem)
	delete(c.entries, e.key)
	c.curBytes -= e.approxSize
}

// invalidatePattern drops every entry whose key matches the glob pattern
// (e.g. `cache:fo:v1:latest:NIFTY:5min:*` or
// `cache:fo:v1:series:NIFTY:5min:*2025-11-06*`),
// per the canonical-key + exact-pattern invalidation design in spec.md §9.
func (c *l1) invalidatePattern(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toRemove []*l1Entry
	for k, e := range c.entries {
		if ok, _ := filepath.Match(pattern, k); ok {
			toRemove = append(toRemove, e)
		}
	}
	for _, e := range toRemove {
		c.removeLocked(e)
	}
	return len(toRemove)
}

// Stats reports L1 hit/miss counters for the health surface.
type Stats struct {
	Hits   int64
	Misses int64
}

func (c *l1) stats() Stats {
	return Stats{Hits: atomic.LoadInt64(&c.hits), Misses: atomic.LoadInt64(&c.misses)}
}
