// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package xsync provides synchronization primitives that carry the data they guard.
package xsync // import "github.com/tracerbench/tracebench/libtb/xsync"

import (
	"sync"
	"sync/atomic"
)

// Once holds a value that is computed at most once successfully.
//
// The zero value is ready for use.
type Once[T any] struct {
	done atomic.Bool
	mu   sync.Mutex
	data T
}

// GetOrInit returns the guarded value, computing it with init on first use.
//
// Concurrent callers block until the running init returns. A failing init
// leaves the Once uninitialized so the next caller retries.
func (l *Once[T]) GetOrInit(init func() (T, error)) (*T, error) {
	if l.done.Load() {
		return &l.data, nil
	}
	return l.initSlow(init)
}

func (l *Once[T]) initSlow(init func() (T, error)) (*T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done.Load() {
		return &l.data, nil
	}

	data, err := init()
	if err != nil {
		return nil, err
	}
	l.data = data
	l.done.Store(true)
	return &l.data, nil
}

// Get returns the value if it was initialized, nil otherwise.
func (l *Once[T]) Get() *T {
	if !l.done.Load() {
		return nil
	}
	return &l.data
}
