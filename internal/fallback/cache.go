package fallback

import (
	"sync"
	"time"
)

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is a thread-safe, TTL-based in-memory map. It serves both as a
// write-behind mirror of successful remote writes and as the exclusive
// store for sessions born while the backend was unavailable.
//
// Expired entries are not evicted on read; Cleanup must be invoked
// periodically by a caller. There is no background timer.
type Cache struct {
	mutex   sync.Mutex
	entries map[string]entry
}

func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]entry),
	}
}

// Get returns the value for key if present and unexpired.
func (c *Cache) Get(key string) (any, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	e, exists := c.entries[key]
	if !exists || time.Now().After(e.expiresAt) {
		return nil, false
	}

	return e.value, true
}

// Put upserts key with a fresh expiry of now+ttl.
func (c *Cache) Put(key string, value any, ttl time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries[key] = entry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
}

// Delete removes key, reporting whether an unexpired entry existed.
func (c *Cache) Delete(key string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	e, exists := c.entries[key]
	delete(c.entries, key)
	return exists && !time.Now().After(e.expiresAt)
}

// Range calls fn for every unexpired entry until fn returns false.
// The callback must not call back into the cache.
func (c *Cache) Range(fn func(key string, value any) bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := time.Now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			continue
		}
		if !fn(key, e.value) {
			return
		}
	}
}

// Cleanup sweeps out expired entries and returns how many were removed.
func (c *Cache) Cleanup() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := time.Now()
	removed := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}

	return removed
}

// Len returns the number of entries including any not yet swept.
func (c *Cache) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.entries)
}
