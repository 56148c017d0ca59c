package resource

import "sync"

// Cache keeps values produced by idempotent accessors, keyed by the
// owner handle and the accessor name. Subscribe it to a Table to forget
// entries when the owner is dropped.
type Cache struct {
	entries map[Handle]map[string]any
	mu      sync.Mutex
}

// NewCache creates an empty accessor cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[Handle]map[string]any)}
}

// GetOrCreate returns the cached value for (owner, accessor) or stores the
// result of create. When two callers race, the first stored value wins.
func (c *Cache) GetOrCreate(owner Handle, accessor string, create func() (any, error)) (any, error) {
	c.mu.Lock()
	if v, ok := c.entries[owner][accessor]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	v, err := create()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	byName := c.entries[owner]
	if byName == nil {
		byName = make(map[string]any)
		c.entries[owner] = byName
	}
	if existing, ok := byName[accessor]; ok {
		return existing, nil
	}
	byName[accessor] = v
	return v, nil
}

// Forget drops every cached value of owner and returns them.
func (c *Cache) Forget(owner Handle) []any {
	c.mu.Lock()
	byName := c.entries[owner]
	delete(c.entries, owner)
	c.mu.Unlock()
	out := make([]any, 0, len(byName))
	for _, v := range byName {
		out = append(out, v)
	}
	return out
}

// Len returns the number of cached values.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, byName := range c.entries {
		n += len(byName)
	}
	return n
}

// OnResourceEvent forgets the cache of dropped owners.
func (c *Cache) OnResourceEvent(e Event) {
	if e.Type == EventDropped {
		c.Forget(e.Handle)
	}
}
