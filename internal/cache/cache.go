// Package cache keeps one in-memory copy per entity key. Readers, writers
// and change-feed invalidation all go through the same Cache so a key never
// has two competing local states.
package cache

import (
	"strings"
	"sync"
	"time"
)

// Key builds the cache key of a per-user row. key is empty for rows that
// exist once per user.
func Key(table, userID, key string) string {
	return table + ":" + userID + ":" + key
}

type entry[V any] struct {
	value   V
	expires time.Time
}

// Cache is a goroutine-safe map with optional expiry.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	ttl     time.Duration
	now     func() time.Time
}

// New creates a Cache. A zero ttl keeps entries until invalidated.
func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]entry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached value for key and whether it was present.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.expired(e) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	c.entries[key] = c.entry(value)
	c.mu.Unlock()
}

// Invalidate drops key.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// InvalidatePrefix drops every key starting with prefix and returns how many
// were removed.
func (c *Cache[V]) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len reports the number of stored entries, expired ones included.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Optimistic stores next under key before commit runs, so readers see the
// change immediately. When commit fails the previous state is restored and
// the error returned; on success the committed value replaces next.
func (c *Cache[V]) Optimistic(key string, next V, commit func() (V, error)) (V, error) {
	c.mu.Lock()
	prev, hadPrev := c.entries[key]
	c.entries[key] = c.entry(next)
	c.mu.Unlock()

	committed, err := commit()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if hadPrev {
			c.entries[key] = prev
		} else {
			delete(c.entries, key)
		}
		var zero V
		return zero, err
	}
	c.entries[key] = c.entry(committed)
	return committed, nil
}

func (c *Cache[V]) entry(value V) entry[V] {
	e := entry[V]{value: value}
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}
	return e
}

func (c *Cache[V]) expired(e entry[V]) bool {
	return !e.expires.IsZero() && c.now().After(e.expires)
}
