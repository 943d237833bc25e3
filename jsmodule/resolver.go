// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package jsmodule

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/tracerbench/tracebench/libtb/freelru"
	"github.com/tracerbench/tracebench/libtb/xsync"
	"github.com/tracerbench/tracebench/metrics"
)

// SourceProvider fetches the text of a script by url.
type SourceProvider interface {
	Source(ctx context.Context, url string) (string, error)
}

// ModuleResolutionWarning reports that frames of URL could not be mapped to
// a module. Resolution continues with UnknownModule.
type ModuleResolutionWarning struct {
	URL string
	Err error
}

func (w *ModuleResolutionWarning) Error() string {
	return fmt.Sprintf("cannot resolve modules of %s: %v", w.URL, w.Err)
}

func (w *ModuleResolutionWarning) Unwrap() error {
	return w.Err
}

type resolvedURL struct {
	file *ParsedFile
	warn *ModuleResolutionWarning
}

// Resolver maps frames to module names, fetching each url at most once.
type Resolver struct {
	cache    *Cache
	provider SourceProvider

	mu   sync.Mutex
	urls map[string]*xsync.Once[resolvedURL]
}

// NewResolver creates a Resolver that parses bundles through cache.
func NewResolver(cache *Cache, provider SourceProvider) *Resolver {
	return &Resolver{
		cache:    cache,
		provider: provider,
		urls:     make(map[string]*xsync.Once[resolvedURL]),
	}
}

// Resolve returns the module name for frame. The name is always usable; a
// non-nil error is a *ModuleResolutionWarning explaining an UnknownModule.
func (r *Resolver) Resolve(ctx context.Context, frame CallFrame) (string, error) {
	res := r.lookup(ctx, frame.URL)
	if res.warn != nil {
		metrics.Add(metrics.IDUnresolvedFrames, 1)
		return UnknownModule, res.warn
	}
	name := res.file.ModuleNameFor(frame)
	if name == UnknownModule {
		metrics.Add(metrics.IDUnresolvedFrames, 1)
	}
	return name, nil
}

// ReportMetrics flushes the statistics of the underlying cache.
func (r *Resolver) ReportMetrics() freelru.Statistics {
	stats := r.cache.ReportMetrics()
	log.Debugf("Module cache: %d hits, %d misses, %d added, %d evicted",
		stats.Hit, stats.Miss, stats.Added, stats.Deleted)
	return stats
}

func (r *Resolver) lookup(ctx context.Context, url string) resolvedURL {
	r.mu.Lock()
	once, ok := r.urls[url]
	if !ok {
		once = &xsync.Once[resolvedURL]{}
		r.urls[url] = once
	}
	r.mu.Unlock()

	res, _ := once.GetOrInit(func() (resolvedURL, error) {
		source, err := r.provider.Source(ctx, url)
		if err != nil {
			log.Debugf("No source for %s: %v", url, err)
			return resolvedURL{warn: &ModuleResolutionWarning{URL: url, Err: err}}, nil
		}
		return resolvedURL{file: r.cache.Get(url, source)}, nil
	})
	return *res
}
