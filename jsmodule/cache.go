// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package jsmodule

import (
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/zeebo/xxh3"

	"github.com/tracerbench/tracebench/libtb/freelru"
	"github.com/tracerbench/tracebench/metrics"
)

// DefaultCacheSize is the number of parsed bundles kept by NewCache(0).
const DefaultCacheSize = 256

// fileKey identifies a bundle by url and content so that two different
// sources served under one url never share a ParsedFile.
type fileKey struct {
	url  string
	hash uint64
}

func hashFileKey(k fileKey) uint32 {
	return uint32(xxh3.HashString(k.url) ^ k.hash)
}

// Cache shares one ParsedFile per distinct bundle.
type Cache struct {
	mu    sync.Mutex
	files *freelru.LRU[fileKey, *ParsedFile]
}

// NewCache creates a cache holding up to size bundles.
func NewCache(size uint32) (*Cache, error) {
	if size == 0 {
		size = DefaultCacheSize
	}
	files, err := freelru.New[fileKey, *ParsedFile](size, hashFileKey)
	if err != nil {
		return nil, err
	}
	return &Cache{files: files}, nil
}

// Get returns the ParsedFile for url and source, creating it on first use.
func (c *Cache) Get(url, source string) *ParsedFile {
	key := fileKey{url: url, hash: xxh3.HashString(source)}

	c.mu.Lock()
	defer c.mu.Unlock()

	if pf, ok := c.files.Get(key); ok {
		return pf
	}
	log.Debugf("Parsing bundle %s (%d bytes)", url, len(source))
	pf := NewParsedFile(url, source)
	c.files.Add(key, pf)
	return pf
}

// Len returns the number of cached bundles.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.files.Len()
}

// ReportMetrics adds the hits and misses since the previous call to the
// module cache metrics and returns the counters it flushed.
func (c *Cache) ReportMetrics() freelru.Statistics {
	c.mu.Lock()
	stats := c.files.GetAndResetStatistics()
	c.mu.Unlock()

	metrics.AddSlice([]metrics.Metric{
		{ID: metrics.IDModuleCacheHit, Value: metrics.MetricValue(stats.Hit)},
		{ID: metrics.IDModuleCacheMiss, Value: metrics.MetricValue(stats.Miss)},
	})
	return stats
}
