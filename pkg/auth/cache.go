package auth

import (
	"context"
	"sync"
	"time"
)

// DefaultCacheMaxEntries bounds a TTLCache when no size is configured.
const DefaultCacheMaxEntries = 10000

type cacheEntry[V any] struct {
	value      V
	insertedAt time.Time
}

// TTLCache is a mutex-guarded map whose entries are usable only while
// now - insertedAt < ttl. Expiry is checked on read; [TTLCache.Sweep]
// reclaims memory for entries nobody reads again. When the cache is
// full, expired entries are dropped first and then the oldest insertion.
//
// Concurrent Put calls for the same key are last-write-wins.
type TTLCache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]cacheEntry[V]
	ttl     time.Duration
	maxSize int
	clock   Clock
}

// NewTTLCache creates a cache. A maxSize <= 0 uses
// [DefaultCacheMaxEntries]; a nil clock uses the wall clock.
func NewTTLCache[K comparable, V any](ttl time.Duration, maxSize int, clock Clock) *TTLCache[K, V] {
	if maxSize <= 0 {
		maxSize = DefaultCacheMaxEntries
	}
	return &TTLCache[K, V]{
		entries: make(map[K]cacheEntry[V]),
		ttl:     ttl,
		maxSize: maxSize,
		clock:   orSystemClock(clock),
	}
}

// Get returns the value for key if it was inserted less than one TTL ago.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || !c.fresh(entry, c.clock.Now()) {
		var zero V
		return zero, false
	}
	return entry.value, true
}

// Put stores value under key, stamped with the current time.
func (c *TTLCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.sweepLocked(now)
		if len(c.entries) >= c.maxSize {
			c.evictOldestLocked()
		}
	}
	c.entries[key] = cacheEntry[V]{value: value, insertedAt: now}
}

// Delete removes key.
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// DeleteFunc removes every entry for which fn returns true and reports
// how many were removed.
func (c *TTLCache[K, V]) DeleteFunc(fn func(K, V) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.entries {
		if fn(k, e.value) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, including expired ones not
// yet swept.
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// TTL returns the configured entry lifetime.
func (c *TTLCache[K, V]) TTL() time.Duration { return c.ttl }

// Sweep removes expired entries and returns how many were removed.
func (c *TTLCache[K, V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(c.clock.Now())
}

// RunSweeper calls Sweep every interval until ctx is done.
func (c *TTLCache[K, V]) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

func (c *TTLCache[K, V]) fresh(entry cacheEntry[V], now time.Time) bool {
	return now.Sub(entry.insertedAt) < c.ttl
}

func (c *TTLCache[K, V]) sweepLocked(now time.Time) int {
	removed := 0
	for k, e := range c.entries {
		if !c.fresh(e, now) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

func (c *TTLCache[K, V]) evictOldestLocked() {
	var (
		oldestKey  K
		oldestTime time.Time
		first      = true
	)
	for k, e := range c.entries {
		if first || e.insertedAt.Before(oldestTime) {
			oldestKey, oldestTime, first = k, e.insertedAt, false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}
