package query

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/foaggregator/fo-aggregator/internal/cache"
	"github.com/foaggregator/fo-aggregator/internal/config"
	"github.com/foaggregator/fo-aggregator/internal/domain"
	"github.com/foaggregator/fo-aggregator/internal/testutil"
)

func newTestSurface(t *testing.T) (*Surface, func()) {
	t.Helper()
	st, cleanup := testutil.NewTestStore(t)
	ch, err := cache.New(cache.Config{L1MaxEntries: 100, L1MaxBytes: 1 << 20}, zerolog.Nop())
	require.NoError(t, err)
	return New(st, ch, config.CacheTTLs{}, zerolog.Nop()), cleanup
}

func TestGetStrikeDistributionUnknownSymbolReturnsEmptyNotError(t *testing.T) {
	s, cleanup := newTestSurface(t)
	defer cleanup()

	env := s.GetStrikeDistribution(context.Background(), DistributionRequest{
		Symbol: "NOSUCH", Timeframe: domain.Timeframe1Min, Indicator: "iv",
	})
	require.Equal(t, "ok", env.Status)
	require.Nil(t, env.Error)
}

func TestGetMoneynessSeriesRejectsUnknownIndicator(t *testing.T) {
	s, cleanup := newTestSurface(t)
	defer cleanup()

	env := s.GetMoneynessSeries(context.Background(), SeriesRequest{
		Symbol: "NIFTY", Timeframe: domain.Timeframe1Min, Indicator: "bogus",
		From: time.Now().Add(-time.Hour), To: time.Now(),
	})
	require.Equal(t, "error", env.Status)
	require.Equal(t, "validation_error", env.Error.Kind)
}

func TestGetStrikeDistributionCacheHitOnSecondCall(t *testing.T) {
	s, cleanup := newTestSurface(t)
	defer cleanup()

	req := DistributionRequest{Symbol: "NIFTY", Timeframe: domain.Timeframe1Min, Indicator: "iv"}
	first := s.GetStrikeDistribution(context.Background(), req)
	require.False(t, first.Meta.CacheHit)

	second := s.GetStrikeDistribution(context.Background(), req)
	require.True(t, second.Meta.CacheHit)
}

// TestCacheInvalidationSurfacesNewWrite exercises the same path the
// aggregator's flush step uses: invalidating a symbol/timeframe's
// pattern must make the next read miss cache and observe a row written
// after the first read populated it (P6).
func TestCacheInvalidationSurfacesNewWrite(t *testing.T) {
	st, cleanup := testutil.NewTestStore(t)
	defer cleanup()
	ch, err := cache.New(cache.Config{L1MaxEntries: 100, L1MaxBytes: 1 << 20}, zerolog.Nop())
	require.NoError(t, err)
	s := New(st, ch, config.CacheTTLs{}, zerolog.Nop())

	expiry := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	bucket := time.Now().UTC().Truncate(time.Minute)

	req := DistributionRequest{Symbol: "BANKNIFTY", Timeframe: domain.Timeframe1Min, Indicator: "iv"}

	first := s.GetStrikeDistribution(context.Background(), req)
	require.False(t, first.Meta.CacheHit)
	require.Empty(t, first.Data)

	iv := 12.5
	require.NoError(t, st.UpsertStrikeBars(context.Background(), []domain.StrikeBar{{
		Symbol: "BANKNIFTY", Expiry: expiry, Timeframe: domain.Timeframe1Min,
		BucketStart: bucket, Strike: 48000, CallIVAvg: &iv, MoneynessBucket: domain.MoneynessBucket("ATM"),
	}}))

	cached := s.GetStrikeDistribution(context.Background(), req)
	require.True(t, cached.Meta.CacheHit)
	require.Empty(t, cached.Data, "cache still serves the pre-write empty snapshot until invalidated")

	for _, p := range cache.InvalidationPatterns("BANKNIFTY", domain.Timeframe1Min, expiry.Format("2006-01-02")) {
		ch.InvalidatePattern(context.Background(), p)
	}

	fresh := s.GetStrikeDistribution(context.Background(), req)
	require.False(t, fresh.Meta.CacheHit)
	rows, ok := fresh.Data.([]domain.StrikeBar)
	require.True(t, ok)
	require.Len(t, rows, 1)
	require.Equal(t, 48000.0, rows[0].Strike)
}

// TestMoneynessSeriesInvalidationMatchesLiteralExpiry exercises the
// series-path invalidation pattern the aggregator issues after a flush
// (`series:{symbol}:{timeframe}:*{expiry}*`) against a cache key built
// by a request naming that same expiry. The expiry segment of the key
// must be a literal, human-readable date for the pattern to ever match
// it — a hashed segment never would.
func TestMoneynessSeriesInvalidationMatchesLiteralExpiry(t *testing.T) {
	st, cleanup := testutil.NewTestStore(t)
	defer cleanup()
	ch, err := cache.New(cache.Config{L1MaxEntries: 100, L1MaxBytes: 1 << 20}, zerolog.Nop())
	require.NoError(t, err)
	s := New(st, ch, config.CacheTTLs{}, zerolog.Nop())

	expiry := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	req := SeriesRequest{
		Symbol: "NIFTY", Timeframe: domain.Timeframe1Min, Indicator: "iv", Side: domain.Call,
		Expiries: []time.Time{expiry},
		From:     time.Now().Add(-time.Hour), To: time.Now(),
	}

	first := s.GetMoneynessSeries(context.Background(), req)
	require.False(t, first.Meta.CacheHit)

	cached := s.GetMoneynessSeries(context.Background(), req)
	require.True(t, cached.Meta.CacheHit)

	patterns := cache.InvalidationPatterns("NIFTY", domain.Timeframe1Min, expiry.Format("2006-01-02"))
	require.Len(t, patterns, 2)
	ch.InvalidatePattern(context.Background(), patterns[1]) // the series pattern

	afterInvalidate := s.GetMoneynessSeries(context.Background(), req)
	require.False(t, afterInvalidate.Meta.CacheHit, "series cache entry should have been invalidated by the literal-expiry pattern")
}
