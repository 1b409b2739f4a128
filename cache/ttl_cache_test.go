// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTTLCacheSingleKey(t *testing.T) {
	tests := []struct {
		name           string
		invalidate     bool
		waitBeforeNext time.Duration
		expectedCount  int
	}{
		{
			name:          "fresh cache, fetch",
			expectedCount: 1,
		},
		{
			name:          "use cache, no fetch",
			expectedCount: 1,
		},
		{
			name:          "invalidated, fetch",
			invalidate:    true,
			expectedCount: 2,
		},
		{
			name:           "ttl expired, fetch",
			waitBeforeNext: 2 * time.Second,
			expectedCount:  3,
		},
	}
	now := time.Unix(1_700_000_000, 0)
	cache := NewTTLCache[string, int](1 * time.Second)
	cache.now = func() time.Time { return now }
	fetchCount := 0
	fetchFunc := func(context.Context, string) (int, error) {
		fetchCount++
		return 42, nil
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			now = now.Add(tt.waitBeforeNext)
			if tt.invalidate {
				cache.Invalidate("test")
			}

			val, err := cache.Get(context.Background(), "test", fetchFunc)
			require.NoError(err)
			require.Equal(42, val)
			require.Equal(tt.expectedCount, fetchCount)
		})
	}
}

func TestTTLCacheErrorsNotCached(t *testing.T) {
	require := require.New(t)

	cache := NewTTLCache[uint64, string](time.Minute)
	errFetch := errors.New("fetch failed")
	calls := 0
	fetch := func(context.Context, uint64) (string, error) {
		calls++
		if calls == 1 {
			return "", errFetch
		}
		return "ok", nil
	}

	_, err := cache.Get(context.Background(), 1, fetch)
	require.ErrorIs(err, errFetch)
	require.Zero(cache.Len())

	v, err := cache.Get(context.Background(), 1, fetch)
	require.NoError(err)
	require.Equal("ok", v)
	require.Equal(1, cache.Len())
}

func TestTTLCacheZeroTTL(t *testing.T) {
	cache := NewTTLCache[int, int](0)
	calls := 0
	fetch := func(context.Context, int) (int, error) {
		calls++
		return calls, nil
	}
	for i := 1; i <= 3; i++ {
		v, err := cache.Get(context.Background(), 7, fetch)
		require.NoError(t, err)
		require.Equal(t, i, v)
	}
	require.Zero(t, cache.Len())
}

func TestTTLCacheSingleFlight(t *testing.T) {
	require := require.New(t)

	cache := NewTTLCache[string, int](time.Minute)
	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context, string) (int, error) {
		calls.Add(1)
		<-release
		return 5, nil
	}

	const callers = 8
	var (
		wg      sync.WaitGroup
		started sync.WaitGroup
	)
	results := make([]int, callers)
	wg.Add(callers)
	started.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			started.Done()
			v, err := cache.Get(context.Background(), "k", fetch)
			require.NoError(err)
			results[i] = v
		}(i)
	}
	started.Wait()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(int32(1), calls.Load())
	for _, v := range results {
		require.Equal(5, v)
	}
}

func TestTTLCacheInvalidateDuringFetch(t *testing.T) {
	require := require.New(t)

	cache := NewTTLCache[uint64, int](time.Minute)
	entered := make(chan struct{})
	release := make(chan struct{})
	stale := func(context.Context, uint64) (int, error) {
		close(entered)
		<-release
		return 0, nil
	}

	done := make(chan int, 1)
	go func() {
		v, err := cache.Get(context.Background(), 1, stale)
		require.NoError(err)
		done <- v
	}()
	<-entered
	cache.Invalidate(1)
	close(release)
	require.Equal(0, <-done)
	require.Zero(cache.Len())

	fetches := 0
	v, err := cache.Get(context.Background(), 1, func(context.Context, uint64) (int, error) {
		fetches++
		return 1, nil
	})
	require.NoError(err)
	require.Equal(1, v)
	require.Equal(1, fetches)

	// Fetches that start after the invalidation are cached again.
	v, err = cache.Get(context.Background(), 1, func(context.Context, uint64) (int, error) {
		fetches++
		return 2, nil
	})
	require.NoError(err)
	require.Equal(1, v)
	require.Equal(1, fetches)
}
