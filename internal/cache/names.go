package cache

import "sync"

// NameCache maps server-announced names to numeric ids in both directions.
type NameCache struct {
	mu    sync.RWMutex
	ids   map[string]uint16
	names map[uint16]string
}

// NewNameCache creates a new NameCache
func NewNameCache() *NameCache {
	return &NameCache{
		ids:   make(map[string]uint16),
		names: make(map[uint16]string),
	}
}

// ID retrieves the id announced for name
func (c *NameCache) ID(name string) (uint16, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.ids[name]
	return id, ok
}

// Name retrieves the name announced for id
func (c *NameCache) Name(id uint16) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.names[id]
	return name, ok
}

// Replace swaps the whole table for m. Each table message is a full
// listing.
func (c *NameCache) Replace(m map[string]uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = make(map[string]uint16, len(m))
	c.names = make(map[uint16]string, len(m))
	for name, id := range m {
		c.ids[name] = id
		c.names[id] = name
	}
}

// Len returns the number of names
func (c *NameCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids)
}

// Reset clears all names from the cache
func (c *NameCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = make(map[string]uint16)
	c.names = make(map[uint16]string)
}
