/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"container/list"
	"fmt"
	"sync"
)

type entry[K comparable, V any] struct {
	key   K
	value V
}

// LRUCache is a size-bounded map. When it is full, adding a key evicts the least recently used one.
// It is safe for concurrent use.
type LRUCache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front is the most recently used
	items    map[K]*list.Element
	metrics  MetricsCollector
}

// New creates an LRUCache holding up to capacity entries. metrics may be nil.
func New[K comparable, V any](capacity int, metrics MetricsCollector) (*LRUCache[K, V], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity must be positive, got %d", capacity)
	}
	if metrics == nil {
		metrics = disabledMetrics{}
	}
	return &LRUCache[K, V]{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[K]*list.Element, capacity),
		metrics:  metrics,
	}, nil
}

// Get returns the value stored for key and marks it as recently used.
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookup(key)
}

// Add stores the value for key, replacing the previous one.
func (c *LRUCache[K, V]) Add(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		elem.Value.(*entry[K, V]).value = value
		c.order.MoveToFront(elem)
		return
	}
	c.insert(key, value)
}

// GetOrAdd returns the value stored for key. If there is none, newValue is called under the lock
// and its result is stored, so concurrent callers for the same key always share one value.
func (c *LRUCache[K, V]) GetOrAdd(key K, newValue func() V) (value V, existed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if value, existed = c.lookup(key); existed {
		return value, true
	}
	value = newValue()
	c.insert(key, value)
	return value, false
}

// Remove deletes key and reports whether it was present.
func (c *LRUCache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key]
	if !ok {
		return false
	}
	c.order.Remove(elem)
	delete(c.items, key)
	c.metrics.SetAmount(len(c.items))
	return true
}

// Len returns the number of entries.
func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *LRUCache[K, V]) lookup(key K) (value V, ok bool) {
	elem, ok := c.items[key]
	if !ok {
		c.metrics.IncMisses()
		return value, false
	}
	c.metrics.IncHits()
	c.order.MoveToFront(elem)
	return elem.Value.(*entry[K, V]).value, true
}

func (c *LRUCache[K, V]) insert(key K, value V) {
	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: value})
	for len(c.items) > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*entry[K, V]).key)
		c.metrics.AddEvictions(1)
	}
	c.metrics.SetAmount(len(c.items))
}
