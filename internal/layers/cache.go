package layers

import (
	"fmt"
	"sync"

	"github.com/helioviz/solar-layer-engine/internal/domain"
)

// DefaultCacheCapacity bounds the layer cache when no capacity is configured.
const DefaultCacheCapacity = 5

// Key identifies a cached layer: the layer type plus the day-of-year it was
// rendered for (0 for layers that do not vary by day).
type Key struct {
	ID        domain.LayerID
	DayOfYear int
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d", k.ID, k.DayOfYear)
}

// Cache is a bounded layer cache with FIFO eviction: inserting past capacity
// removes the single oldest-inserted entry. This is deliberately not LRU:
// the showcase's access pattern is a short, forward-moving sequence where
// insertion order is the right eviction signal. Reuse as a general-purpose
// cache should not expect recency behavior.
//
// All mutation is mutex-guarded; the preloader hits the cache from several
// goroutines at once.
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[Key]domain.Layer
	order    []Key // insertion order, oldest first
}

// NewCache creates a cache. Non-positive capacities fall back to the default.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[Key]domain.Layer, capacity),
	}
}

// Get returns the cached layer for key, if present.
func (c *Cache) Get(key Key) (domain.Layer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	layer, ok := c.entries[key]
	return layer, ok
}

// Put inserts or replaces a layer. Replacing keeps the key's original
// insertion slot. The cache never exceeds capacity once Put returns.
func (c *Cache) Put(key Key, layer domain.Layer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.entries[key] = layer
		return
	}

	c.entries[key] = layer
	c.order = append(c.order, key)
	if len(c.entries) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

// Len reports the number of cached layers.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
