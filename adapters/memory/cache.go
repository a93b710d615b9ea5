// Package memory provides the in-process document cache. It stands in for
// an external cache tier; entries expire after a TTL and the working set is
// small enough (completed entity documents) that eviction beyond expiry is
// unnecessary.
package memory

import (
	"sync"
	"time"

	"github.com/sennetconsortium/entity-api/ports"
)

// Cache is a TTL-bounded in-memory implementation of ports.Cache.
type Cache struct {
	clock ports.Clock

	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]entry
}

type entry struct {
	doc     map[string]any
	expires time.Time
}

var _ ports.Cache = (*Cache)(nil)

// NewCache creates a cache whose entries expire after ttl.
func NewCache(ttl time.Duration, clock ports.Clock) *Cache {
	return &Cache{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]entry),
	}
}

// Get returns the cached document if present and unexpired.
func (c *Cache) Get(key string) (map[string]any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.clock.Now().After(e.expires) {
		return nil, false
	}
	return e.doc, true
}

// Set stores a document under the key, resetting its TTL.
func (c *Cache) Set(key string, doc map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{doc: doc, expires: c.clock.Now().Add(c.ttl)}
}

// SetTTL changes the expiry window for entries stored after the call.
// Existing entries keep the deadline they were stored with.
func (c *Cache) SetTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttl = ttl
}

// Delete evicts one key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Flush evicts everything.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Len reports the live entry count; expired entries still resident count.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
