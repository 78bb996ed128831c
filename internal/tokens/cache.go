// Package tokens keeps the API tokens allowed to call the printer in memory.
package tokens

import "sync"

// Scope lists the route groups a token may use, e.g. "printer" or "ops".
type Scope map[string]bool

// Entry is one API token's settings.
type Entry struct {
	// RateLimit is requests per limiter interval; 0 disables the token limiter.
	RateLimit int
	Scope     Scope
}

// Cache is safe for concurrent use. It is not ready until the first Replace.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewCache returns an empty cache that is not ready.
func NewCache() *Cache { return &Cache{} }

// Replace swaps the whole token set.
func (c *Cache) Replace(m map[string]Entry) {
	entries := make(map[string]Entry, len(m))
	for k, v := range m {
		entries[k] = v
	}
	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
}

// Ready reports whether tokens were loaded at least once.
func (c *Cache) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries != nil
}

// Validate reports whether token is known.
func (c *Cache) Validate(token string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[token]
	return ok
}

// RateLimit returns the token's limit, or 0 for unknown tokens.
func (c *Cache) RateLimit(token string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[token].RateLimit
}

// Allows reports whether token carries scope. A token without any scope may use everything.
func (c *Cache) Allows(token, scope string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[token]
	if !ok {
		return false
	}
	return len(e.Scope) == 0 || e.Scope[scope]
}

// Len returns the number of loaded tokens.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
