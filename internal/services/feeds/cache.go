package feeds

import (
	"sync"
	"time"
)

// entry is one cached feed value plus refresh bookkeeping.
type entry struct {
	value       any
	haveValue   bool
	lastAttempt time.Time
	lastSuccess time.Time
	nextDue     time.Time
	failures    int
}

// Cache holds the latest value per feed. Screens read through Lookup;
// only the refresher writes.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func NewCache() *Cache {
	return &Cache{entries: map[string]*entry{}}
}

// Lookup returns the latest value for a feed. ok is false until the first
// successful fetch; stale values stay readable through later failures.
func (c *Cache) Lookup(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	if !ok || !e.haveValue {
		return nil, false
	}
	return e.value, true
}

// LastSuccess reports when a feed last fetched successfully; zero if never.
func (c *Cache) LastSuccess(name string) time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[name]; ok {
		return e.lastSuccess
	}
	return time.Time{}
}

func (c *Cache) get(name string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[name]
	if !ok {
		e = &entry{}
		c.entries[name] = e
	}
	return e
}

// markAttempt stamps the attempt. The due time advances on failure too, so
// a broken upstream is retried on its schedule instead of every tick.
func (c *Cache) markAttempt(name string, value any, err error, now, due time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[name]
	if !ok {
		e = &entry{}
		c.entries[name] = e
	}
	e.lastAttempt = now
	e.nextDue = due
	if err != nil {
		e.failures++
		return
	}
	e.value = value
	e.haveValue = true
	e.lastSuccess = now
	e.failures = 0
}

func (c *Cache) due(name string, now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	if !ok {
		return true // never attempted
	}
	return !now.Before(e.nextDue)
}
