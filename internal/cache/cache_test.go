package cache_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/foaggregator/fo-aggregator/internal/cache"
)

func TestGetOrFetchCoalescesConcurrentMisses(t *testing.T) {
	c, err := cache.New(cache.Config{L1MaxEntries: 100, L1MaxBytes: 1 << 20}, zerolog.Nop())
	require.NoError(t, err)

	var calls int64
	fetcher := func(ctx context.Context) ([]byte, error) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return []byte("value"), nil
	}

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			_, _, err := c.GetOrFetch(context.Background(), "k", time.Second, fetcher)
			require.NoError(t, err)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	require.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestGetOrFetchCachesUntilInvalidated(t *testing.T) {
	c, err := cache.New(cache.Config{L1MaxEntries: 100, L1MaxBytes: 1 << 20}, zerolog.Nop())
	require.NoError(t, err)

	var calls int64
	fetcher := func(ctx context.Context) ([]byte, error) {
		atomic.AddInt64(&calls, 1)
		return []byte("v"), nil
	}

	key := cache.LatestKey("NIFTY", "5min", "iv", "2025-11-06")
	_, hit, err := c.GetOrFetch(context.Background(), key, time.Minute, fetcher)
	require.NoError(t, err)
	require.False(t, hit)

	_, hit, err = c.GetOrFetch(context.Background(), key, time.Minute, fetcher)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, int64(1), atomic.LoadInt64(&calls))

	c.InvalidatePattern(context.Background(), "cache:fo:v1:latest:NIFTY:5min:*")

	_, hit, err = c.GetOrFetch(context.Background(), key, time.Minute, fetcher)
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, int64(2), atomic.LoadInt64(&calls))
}
