package pattern

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/easyscience/EasyDiffractionLib/internal/metrics"
)

// DefaultCacheCapacity bounds the number of cached reflection lists.
const DefaultCacheCapacity = 256

// Cache stores immutable reflection lists by key.
//
// Safe for concurrent use. Concurrent first lookups of one key run the
// build once; later lookups share the stored slice, which callers must
// not modify. When full, the oldest entry is evicted.
type Cache struct {
	mu       sync.RWMutex
	entries  map[string][]Reflection
	order    []string
	capacity int

	flight  singleflight.Group
	metrics *metrics.Metrics
}

// NewCache creates a cache holding at most capacity lists.
// A non-positive capacity selects DefaultCacheCapacity.
func NewCache(capacity int, m *metrics.Metrics) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Cache{
		entries:  make(map[string][]Reflection),
		capacity: capacity,
		metrics:  m,
	}
}

// Get returns the list stored under key, building and storing it on a
// miss. Build errors are not cached.
func (c *Cache) Get(key string, build func() ([]Reflection, error)) ([]Reflection, error) {
	c.mu.RLock()
	list, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		c.metrics.RecordCacheLookup(true)
		return list, nil
	}
	c.metrics.RecordCacheLookup(false)

	result, err, _ := c.flight.Do(key, func() (any, error) {
		list, err := build()
		if err != nil {
			return nil, err
		}
		return c.store(key, list), nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]Reflection), nil
}

// store adds list unless another goroutine stored key first, and returns
// the stored list.
func (c *Cache) store(key string, list []Reflection) []Reflection {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		return existing
	}
	for len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
		c.metrics.RecordCacheEviction()
	}
	c.entries[key] = list
	c.order = append(c.order, key)
	return list
}

// Len returns the number of cached lists.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
