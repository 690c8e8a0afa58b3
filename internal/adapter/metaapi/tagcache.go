package metaapi

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/H0onnn/InvokeAI/internal/metrics"
)

// tagCache caches decoded read responses under their cache tag with TTL
// expiration. Reads share tags with the mutations that invalidate them, and
// a push-channel reconnect drops everything (the backend may have changed
// arbitrarily while we were disconnected).
type tagCache struct {
	mu      sync.RWMutex
	entries map[string]*tagEntry
	ttl     time.Duration
	clock   clockwork.Clock
}

type tagEntry struct {
	value     any
	expiresAt time.Time
}

func newTagCache(ttl time.Duration, clock clockwork.Clock) *tagCache {
	return &tagCache{
		entries: make(map[string]*tagEntry),
		ttl:     ttl,
		clock:   clock,
	}
}

func (c *tagCache) get(tag string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[tag]
	if !ok || c.clock.Now().After(entry.expiresAt) {
		metrics.MetaTagCacheMisses.Inc()
		return nil, false
	}

	metrics.MetaTagCacheHits.Inc()
	return entry.value, true
}

func (c *tagCache) set(tag string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[tag] = &tagEntry{
		value:     value,
		expiresAt: c.clock.Now().Add(c.ttl),
	}
}

func (c *tagCache) invalidate(tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, tag)
}

func (c *tagCache) invalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*tagEntry)
}
