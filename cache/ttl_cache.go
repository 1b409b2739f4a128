// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type TTLCacheItem[V any] struct {
	value     V
	timestamp time.Time
}

// Cache with per-key TTL tracking and single-flight fetch
type TTLCache[K comparable, V any] struct {
	data map[K]TTLCacheItem[V]
	// generations is bumped by Invalidate. A fetch stores its result only if
	// the generation it started under is still current.
	generations map[K]uint64
	ttl         time.Duration
	now     func() time.Time
	lock    sync.RWMutex
	sfGroup singleflight.Group
}

// NewTTLCache returns a cache whose entries are fresh for ttl. A zero ttl
// disables caching but keeps fetches deduplicated.
func NewTTLCache[K comparable, V any](ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		data:        make(map[K]TTLCacheItem[V]),
		generations: make(map[K]uint64),
		ttl:         ttl,
		now:         time.Now,
	}
}

// Get checks if the cached value is fresh for a given key, otherwise fetches
// the value using fetchFunc. Concurrent fetches for the same key are
// deduplicated and share the context of the first caller. Failed fetches are
// not cached.
func (c *TTLCache[K, V]) Get(ctx context.Context, key K, fetchFunc func(context.Context, K) (V, error)) (V, error) {
	c.lock.RLock()
	item, exists := c.data[key]
	c.lock.RUnlock()
	if exists && c.now().Sub(item.timestamp) < c.ttl {
		return item.value, nil
	}

	keyStr := keyToString(key)

	v, err, _ := c.sfGroup.Do(keyStr, func() (interface{}, error) {
		c.lock.RLock()
		generation := c.generations[key]
		c.lock.RUnlock()

		newValue, fetchErr := fetchFunc(ctx, key)
		if fetchErr != nil {
			return *new(V), fetchErr
		}

		if c.ttl > 0 {
			c.lock.Lock()
			// An Invalidate during the fetch means the value may predate it.
			if c.generations[key] == generation {
				c.data[key] = TTLCacheItem[V]{
					value:     newValue,
					timestamp: c.now(),
				}
			}
			c.lock.Unlock()
		}

		return newValue, nil
	})

	if err != nil {
		return *new(V), err
	}

	return v.(V), nil
}

// Invalidate clears keys so the next Get fetches. This is done explicitly
// instead of just overwriting the value to prevent other threads from
// reading the already stale value. A fetch already in flight is forgotten so
// later callers do not join it, and its result is not stored.
func (c *TTLCache[K, V]) Invalidate(keys ...K) {
	c.lock.Lock()
	defer c.lock.Unlock()

	for _, key := range keys {
		delete(c.data, key)
		c.generations[key]++
		c.sfGroup.Forget(keyToString(key))
	}
}

// Len is the number of cached entries, fresh or not.
func (c *TTLCache[K, V]) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return len(c.data)
}

// keyToString is defined to allow for both fmt.Stringer and primitive string types.
func keyToString[K comparable](key K) string {
	if s, ok := any(key).(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", key)
}
