// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package freelru wraps go-freelru.LRU and counts hits, misses, insertions
// and evictions so callers can export them as metrics.
package freelru // import "github.com/tracerbench/tracebench/libtb/freelru"

import (
	"sync/atomic"

	lru "github.com/elastic/go-freelru"
)

// LRU is a go-freelru.LRU with statistics. It is not safe for concurrent
// use; callers serialize access.
type LRU[K comparable, V any] struct {
	lru *lru.LRU[K, V]

	hit     atomic.Uint64
	miss    atomic.Uint64
	added   atomic.Uint64
	deleted atomic.Uint64
}

// Statistics is a snapshot of the LRU counters.
type Statistics struct {
	// Hit counts lookups that found an entry.
	Hit uint64
	// Miss counts lookups that found nothing.
	Miss uint64
	// Added counts insertions.
	Added uint64
	// Deleted counts evictions and removals.
	Deleted uint64
}

// New creates an LRU holding at most capacity entries.
func New[K comparable, V any](capacity uint32, hash lru.HashKeyCallback[K]) (*LRU[K, V], error) {
	cache, err := lru.New[K, V](capacity, hash)
	if err != nil {
		return nil, err
	}
	return &LRU[K, V]{lru: cache}, nil
}

func (c *LRU[K, V]) Add(key K, value V) (evicted bool) {
	evicted = c.lru.Add(key, value)
	if evicted {
		c.deleted.Add(1)
	}
	c.added.Add(1)
	return evicted
}

func (c *LRU[K, V]) Get(key K) (value V, ok bool) {
	value, ok = c.lru.Get(key)
	if ok {
		c.hit.Add(1)
	} else {
		c.miss.Add(1)
	}
	return value, ok
}

func (c *LRU[K, V]) Len() int {
	return c.lru.Len()
}

// GetAndResetStatistics returns the counters and resets them to 0.
func (c *LRU[K, V]) GetAndResetStatistics() Statistics {
	return Statistics{
		Hit:     c.hit.Swap(0),
		Miss:    c.miss.Swap(0),
		Added:   c.added.Swap(0),
		Deleted: c.deleted.Swap(0),
	}
}
