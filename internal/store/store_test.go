package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/foaggregator/fo-aggregator/internal/domain"
	"github.com/foaggregator/fo-aggregator/internal/testutil"
)

func floatp(f float64) *float64 { return &f }

func TestUpsertStrikeBarsIdempotent(t *testing.T) {
	s, cleanup := testutil.NewTestStore(t)
	defer cleanup()

	ctx := context.Background()
	expiry := time.Date(2025, 11, 6, 0, 0, 0, 0, time.UTC)
	bucket := time.Date(2025, 11, 6, 10, 0, 0, 0, time.UTC)

	row := domain.StrikeBar{
		Symbol:      "NIFTY",
		Expiry:      expiry,
		Timeframe:   domain.Timeframe1Min,
		BucketStart: bucket,
		Strike:      25000,
		CallIVAvg:   floatp(0.208),
		CallVolume:  100,
		CallCount:   6,
	}

	require.NoError(t, s.UpsertStrikeBars(ctx, []domain.StrikeBar{row}))
	require.NoError(t, s.UpsertStrikeBars(ctx, []domain.StrikeBar{row}))

	got, err := s.FetchStrikeHistory(ctx, "NIFTY", 25000, expiry, domain.Timeframe1Min, bucket.Add(-time.Hour), bucket.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.InDelta(t, 0.208, *got[0].CallIVAvg, 1e-9)
	require.Equal(t, int64(6), got[0].CallCount)
}

func TestLatestBucketEmptyIsZero(t *testing.T) {
	s, cleanup := testutil.NewTestStore(t)
	defer cleanup()

	got, err := s.LatestBucket(context.Background(), "NIFTY", domain.Timeframe1Min)
	require.NoError(t, err)
	require.True(t, got.IsZero())
}
