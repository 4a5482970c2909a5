// Package cache provides a small LRU cache with per-entry expiry.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/23skdu/field/internal/metrics"
)

type entry[T any] struct {
	key       uint64
	value     T
	expiresAt time.Time
}

// TTLCache is a bounded LRU whose entries expire after a fixed TTL.
type TTLCache[T any] struct {
	mu       sync.RWMutex
	capacity int
	ttl      time.Duration
	items    map[uint64]*list.Element
	lru      *list.List
	now      func() time.Time

	// name labels the metrics
	name string
}

func NewTTLCache[T any](capacity int, ttl time.Duration, name string) *TTLCache[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &TTLCache[T]{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[uint64]*list.Element),
		lru:      list.New(),
		now:      time.Now,
		name:     name,
	}
}

// WithClock replaces the time source.
func (c *TTLCache[T]) WithClock(now func() time.Time) *TTLCache[T] {
	c.now = now
	return c
}

func (c *TTLCache[T]) Get(key uint64) (T, bool) {
	c.mu.RLock()
	elem, ok := c.items[key]
	if !ok {
		c.mu.RUnlock()
		metrics.CacheMissesTotal.WithLabelValues(c.name).Inc()
		var zero T
		return zero, false
	}

	item := elem.Value.(*entry[T])
	if !c.now().Before(item.expiresAt) {
		c.mu.RUnlock()
		metrics.CacheMissesTotal.WithLabelValues(c.name).Inc()
		var zero T
		return zero, false
	}

	// Reads skip the LRU update; expired entries are replaced lazily.
	metrics.CacheHitsTotal.WithLabelValues(c.name).Inc()
	c.mu.RUnlock()
	return item.value, true
}

func (c *TTLCache[T]) Put(key uint64, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.lru.MoveToFront(elem)
		item := elem.Value.(*entry[T])
		item.value = value
		item.expiresAt = c.now().Add(c.ttl)
		return
	}

	elem := c.lru.PushFront(&entry[T]{
		key:       key,
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	})
	c.items[key] = elem

	if c.lru.Len() > c.capacity {
		c.evictOldest()
	}
	metrics.CacheSize.WithLabelValues(c.name).Set(float64(c.lru.Len()))
}

// Delete drops key if present.
func (c *TTLCache[T]) Delete(key uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.lru.Remove(elem)
		delete(c.items, key)
		metrics.CacheSize.WithLabelValues(c.name).Set(float64(c.lru.Len()))
	}
}

func (c *TTLCache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Len()
}

func (c *TTLCache[T]) evictOldest() {
	elem := c.lru.Back()
	if elem != nil {
		c.lru.Remove(elem)
		delete(c.items, elem.Value.(*entry[T]).key)
		metrics.CacheEvictionsTotal.WithLabelValues(c.name).Inc()
	}
}

// Clear purges the cache
func (c *TTLCache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Init()
	c.items = make(map[uint64]*list.Element)
	metrics.CacheSize.WithLabelValues(c.name).Set(0)
}
