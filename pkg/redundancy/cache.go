// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package redundancy

import (
	"container/list"
	"sync"
	"time"
)

// =============================================================================
// TTL Cache
// =============================================================================

// Cache is a TTL key/value cache with lazy eviction on read.
//
// # Description
//
// Entries older than the cache TTL are removed the next time they are read;
// no background sweeper runs. An optional LRU bound caps entry count with
// deterministic oldest-first eviction. Callers are expected to key with
// bounded cardinality when the bound is unset.
//
// # Thread Safety
//
// All operations are serialized under one mutex; safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]*list.Element
	order      *list.List // front = most recently used
	clock      Clock
}

// cacheEntry is one stored key/value with its insertion time.
type cacheEntry struct {
	key        string
	value      any
	insertedAt time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithMaxEntries bounds the cache to n entries with LRU eviction.
// Zero (the default) means unbounded.
func WithMaxEntries(n int) CacheOption {
	return func(c *Cache) { c.maxEntries = n }
}

// WithCacheClock injects a clock, for tests.
func WithCacheClock(clock Clock) CacheOption {
	return func(c *Cache) { c.clock = clock }
}

// NewCache creates a cache whose entries expire ttl after insertion.
func NewCache(ttl time.Duration, opts ...CacheOption) *Cache {
	c := &Cache{
		ttl:     ttl,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		clock:   SystemClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value for key if it is still fresh.
//
// An expired entry is removed on this read and reported as absent.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if c.clock.Now().Sub(entry.insertedAt) >= c.ttl {
		c.removeLocked(elem)
		return nil, false
	}
	c.order.MoveToFront(elem)
	return entry.value, true
}

// Set stores value under key, overwriting any previous entry and resetting
// its insertion time.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.insertedAt = c.clock.Now()
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(&cacheEntry{
		key:        key,
		value:      value,
		insertedAt: c.clock.Now(),
	})
	c.entries[key] = elem

	if c.maxEntries > 0 && c.order.Len() > c.maxEntries {
		c.removeLocked(c.order.Back())
	}
}

// Delete removes key if present.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.removeLocked(elem)
	}
}

// Len returns the current entry count, including entries that have expired
// but not yet been read.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	c.order.Remove(elem)
	delete(c.entries, entry.key)
}
