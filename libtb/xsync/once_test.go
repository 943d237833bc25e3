// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package xsync_test

import (
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tracerbench/tracebench/libtb/xsync"
)

func TestOnceRetriesAfterError(t *testing.T) {
	attempt := 0 // guarded by the Once
	once := xsync.Once[string]{}
	scanErr := errors.New("scan failed")
	numOk := atomic.Uint32{}
	wg := sync.WaitGroup{}

	assert.Nil(t, once.Get())

	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			val, err := once.GetOrInit(func() (string, error) {
				if attempt == 2 {
					time.Sleep(10 * time.Millisecond)
					return strconv.Itoa(attempt), nil
				}
				attempt++
				return "", scanErr
			})

			switch {
			case errors.Is(err, scanErr):
				assert.Nil(t, val)
			case err == nil:
				numOk.Add(1)
				assert.Equal(t, "2", *val)
			default:
				assert.Fail(t, "unexpected error", err)
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, "2", *once.Get())
	assert.Equal(t, uint32(16-2), numOk.Load())
}

func TestOnceInitRunsOnce(t *testing.T) {
	once := xsync.Once[[]int]{}
	calls := atomic.Int32{}
	for range 3 {
		val, err := once.GetOrInit(func() ([]int, error) {
			calls.Add(1)
			return []int{1, 2}, nil
		})
		assert.NoError(t, err)
		assert.Equal(t, []int{1, 2}, *val)
	}
	assert.Equal(t, int32(1), calls.Load())
}
