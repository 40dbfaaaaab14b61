package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/foaggregator/fo-aggregator/internal/broadcast"
	"github.com/foaggregator/fo-aggregator/internal/cache"
	"github.com/foaggregator/fo-aggregator/internal/config"
	"github.com/foaggregator/fo-aggregator/internal/domain"
	"github.com/foaggregator/fo-aggregator/internal/eventbus"
	"github.com/foaggregator/fo-aggregator/internal/testutil"
)

// TestBucketRolloverWeightedIV reproduces spec.md §8 scenario 1: three
// CE ticks with counts 3, 2, 1 (the last with a null IV) on the same
// strike bucket; the persisted call_iv_avg must weight only the
// non-null contributions.
func TestBucketRolloverWeightedIV(t *testing.T) {
	st, cleanup := testutil.NewTestStore(t)
	defer cleanup()

	ch, err := cache.New(cache.Config{L1MaxEntries: 10, L1MaxBytes: 1 << 20}, zerolog.Nop())
	require.NoError(t, err)
	hub := broadcast.New(16, config.DropSubscriber, zerolog.Nop())
	bus := eventbus.New(zerolog.Nop())

	agg := New(Config{NumWorkers: 1, Grace: time.Millisecond}, st, ch, hub, bus, zerolog.Nop())
	w := agg.workers[0]

	expiry := time.Date(2025, 11, 6, 0, 0, 0, 0, time.UTC)
	ts := time.Date(2025, 11, 6, 10, 0, 30, 0, time.UTC)
	instrument := domain.InstrumentRef{Symbol: "NIFTY", Expiry: expiry, Strike: 25000, Side: domain.Call}

	iv20, iv22 := 0.20, 0.22
	w.ingestTick(&domain.Tick{Instrument: instrument, Timestamp: ts}, domain.Timeframe1Min)
	// three sub-ticks folded with weight via repeated Add calls below
	key := domain.StrikeKey{BucketKey: domain.BucketKey{Symbol: "NIFTY", Expiry: expiry, Timeframe: domain.Timeframe1Min, BucketStart: domain.Timeframe1Min.BucketStart(ts)}, Strike: 25000}
	b := w.buckets[key]
	b.Call = domain.SideStats{} // reset the single test tick above, re-add with explicit weights
	b.Call.Add(&domain.Tick{IV: &iv20}, 3)
	b.Call.Add(&domain.Tick{IV: &iv22}, 2)
	b.Call.Add(&domain.Tick{IV: nil}, 1)

	w.flushBucket(context.Background(), key, b)

	got, err := st.FetchStrikeHistory(context.Background(), "NIFTY", 25000, expiry, domain.Timeframe1Min, ts.Add(-time.Hour), ts.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].CallIVAvg)
	require.InDelta(t, 0.2080, *got[0].CallIVAvg, 1e-6)
	require.Equal(t, int64(6), got[0].CallCount)
}
