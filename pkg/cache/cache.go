// Package cache provides a small thread-safe LRU cache.
//
// It backs bounded keyed state on hot paths: per-source rate limiters at the
// ingress and the registry's recently-confirmed device set. Eviction is
// least-recently-used; statistics are always collected.
package cache

import (
	"container/list"
	"sync"
)

// EvictCallback is invoked with entries evicted by capacity, not by Delete.
type EvictCallback[V any] func(key string, value V)

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Size      int
}

type entry[V any] struct {
	key   string
	value V
}

// LRU is a fixed-capacity least-recently-used cache keyed by string.
type LRU[V any] struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List
	evictFn EvictCallback[V]

	hits      uint64
	misses    uint64
	evictions uint64
}

// Option configures an LRU.
type Option[V any] func(*LRU[V])

// WithEvictCallback sets a callback invoked for capacity evictions.
func WithEvictCallback[V any](fn EvictCallback[V]) Option[V] {
	return func(c *LRU[V]) { c.evictFn = fn }
}

// NewLRU creates an LRU holding at most maxSize entries. Sizes below 1 are
// clamped to 1.
func NewLRU[V any](maxSize int, opts ...Option[V]) *LRU[V] {
	if maxSize < 1 {
		maxSize = 1
	}
	c := &LRU[V]{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get retrieves a value by key and marks it as recently used.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.items[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.order.MoveToFront(element)
	return element.Value.(*entry[V]).value, true
}

// Set stores value under key, evicting the least recently used entry when
// the cache is full. Returns true when an existing entry was replaced.
func (c *LRU[V]) Set(key string, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.items[key]; ok {
		element.Value.(*entry[V]).value = value
		c.order.MoveToFront(element)
		return true
	}

	if len(c.items) >= c.maxSize {
		c.evictOldest()
	}
	c.items[key] = c.order.PushFront(&entry[V]{key: key, value: value})
	return false
}

// GetOrSet returns the existing value for key, or stores and returns value
// when absent. The boolean reports whether the value was already present.
func (c *LRU[V]) GetOrSet(key string, value V) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.items[key]; ok {
		c.hits++
		c.order.MoveToFront(element)
		return element.Value.(*entry[V]).value, true
	}
	c.misses++
	if len(c.items) >= c.maxSize {
		c.evictOldest()
	}
	c.items[key] = c.order.PushFront(&entry[V]{key: key, value: value})
	return value, false
}

// Delete removes key. Returns true when an entry was removed.
func (c *LRU[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.items[key]
	if !ok {
		return false
	}
	c.order.Remove(element)
	delete(c.items, key)
	return true
}

// Contains reports whether key is cached without updating recency.
func (c *LRU[V]) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

// Len returns the current number of entries.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Clear removes all entries without firing eviction callbacks.
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
}

// Stats returns a snapshot of the cache counters.
func (c *LRU[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      len(c.items),
	}
}

// evictOldest removes the least recently used entry. Caller holds the lock.
func (c *LRU[V]) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	ent := oldest.Value.(*entry[V])
	c.order.Remove(oldest)
	delete(c.items, ent.key)
	c.evictions++
	if c.evictFn != nil {
		c.evictFn(ent.key, ent.value)
	}
}
