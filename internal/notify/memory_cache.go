package notify

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-process Cache implementation: an LRU map with the
// TTL checked at read time. Exceeding capacity evicts the least recently
// used entry. Safe for concurrent use.
type MemoryCache[V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
}

type memoryEntry[V any] struct {
	key      string
	value    V
	storedAt time.Time
}

func NewMemoryCache[V any](capacity int, ttl time.Duration) *MemoryCache[V] {
	if capacity < 1 {
		capacity = 1
	}
	return &MemoryCache[V]{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *MemoryCache[V]) Get(_ context.Context, key string) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	entry := elem.Value.(*memoryEntry[V])
	if time.Since(entry.storedAt) > c.ttl {
		// expired entries are misses, drop eagerly
		c.order.Remove(elem)
		delete(c.entries, key)
		return zero, false
	}
	c.order.MoveToFront(elem)
	return entry.value, true
}

func (c *MemoryCache[V]) Set(_ context.Context, key string, value V) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*memoryEntry[V])
		entry.value = value
		entry.storedAt = time.Now()
		c.order.MoveToFront(elem)
		return nil
	}

	c.entries[key] = c.order.PushFront(&memoryEntry[V]{
		key:      key,
		value:    value,
		storedAt: time.Now(),
	})

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*memoryEntry[V]).key)
	}
	return nil
}

func (c *MemoryCache[V]) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.order.Remove(elem)
		delete(c.entries, key)
	}
	return nil
}

// Len returns the current entry count.
func (c *MemoryCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
