package aggregator

import (
	"context"
	"errors"
	"time"

	"github.com/foaggregator/fo-aggregator/internal/broadcast"
	"github.com/foaggregator/fo-aggregator/internal/cache"
	"github.com/foaggregator/fo-aggregator/internal/derived"
	"github.com/foaggregator/fo-aggregator/internal/domain"
	"github.com/foaggregator/fo-aggregator/internal/errs"
	"github.com/foaggregator/fo-aggregator/internal/eventbus"
)

// flushBucket materializes, persists, invalidates, and broadcasts one
// completed strike bucket (§4.3 "Flush"). On transient store failure the
// bucket state is retained for a later retry; on non-transient failure
// it is dropped and an alert is emitted.
func (w *worker) flushBucket(ctx context.Context, key domain.StrikeKey, b *domain.StrikeBucket) {
	row := materialize(key, b, w.agg.cfg.gapFor(key.Symbol))

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := w.agg.store.UpsertStrikeBars(writeCtx, []domain.StrikeBar{row}); err != nil {
		w.handleFlushError(key, err)
		return
	}

	delete(w.buckets, key)
	delete(w.retryQueue, key)

	w.rollUpExpiryMetrics(writeCtx, key)

	patterns := cache.InvalidationPatterns(key.Symbol, key.Timeframe, key.Expiry.Format("2006-01-02"))
	for _, p := range patterns {
		w.agg.cache.InvalidatePattern(writeCtx, p)
	}

	w.agg.hub.Broadcast(broadcast.BucketMessage{
		Type:        "bucket",
		Symbol:      key.Symbol,
		Expiry:      key.Expiry,
		Timeframe:   key.Timeframe,
		BucketStart: key.BucketStart,
		Strikes:     []domain.StrikeBar{row},
	})

	w.agg.bus.Emit(eventbus.BucketFlushed, "aggregator", row)
}

// handleFlushError applies §4.3 step (e): transient errors retain state
// for a scheduled retry after a backoff (see nextBackoff); non-transient
// errors drop the bucket and alert.
func (w *worker) handleFlushError(key domain.StrikeKey, err error) {
	if errors.Is(err, errs.ErrStoreRejected) {
		w.agg.log.Error().Err(err).
			Str("symbol", key.Symbol).Str("expiry", key.Expiry.Format("2006-01-02")).
			Float64("strike", key.Strike).
			Msg("bucket rejected by store, dropping")
		delete(w.buckets, key)
		delete(w.retryQueue, key)
		w.agg.bus.Emit(eventbus.StoreAlert, "aggregator", err.Error())
		return
	}

	backoff := nextBackoff(w.retryQueue[key])
	w.retryQueue[key] = time.Now().Add(backoff)
	w.agg.log.Warn().Err(err).
		Str("symbol", key.Symbol).Float64("strike", key.Strike).
		Dur("retry_in", backoff).Msg("transient store failure, will retry")
}

// nextBackoff returns 1s after a bucket's first failed flush and 5s after
// every later one; the delay does not grow beyond 5s.
func nextBackoff(prevDeadline time.Time) time.Duration {
	if prevDeadline.IsZero() {
		return time.Second
	}
	return 5 * time.Second
}

// rollUpExpiryMetrics recomputes PCR/max-pain from whichever strike
// partitions of this bucket have flushed to the store so far and
// upserts the expiry-metrics row (§4.4, C4).
func (w *worker) rollUpExpiryMetrics(ctx context.Context, key domain.StrikeKey) {
	bars, err := w.agg.store.FetchBucketStrikes(ctx, key.Symbol, key.Expiry, key.Timeframe, key.BucketStart)
	if err != nil {
		w.agg.log.Warn().Err(err).Msg("failed to fetch bucket siblings for expiry rollup")
		return
	}

	pcr, maxPain := derived.Compute(derived.StrikeVolumesFromBars(bars))

	var totalCall, totalPut float64
	for _, bar := range bars {
		totalCall += bar.CallVolume
		totalPut += bar.PutVolume
	}

	metrics := domain.ExpiryMetrics{
		Symbol:          key.Symbol,
		Expiry:          key.Expiry,
		Timeframe:       key.Timeframe,
		BucketStart:     key.BucketStart,
		TotalCallVolume: totalCall,
		TotalPutVolume:  totalPut,
		PCR:             pcr,
		MaxPainStrike:   maxPain,
	}

	if err := w.agg.store.UpsertExpiryMetrics(ctx, []domain.ExpiryMetrics{metrics}); err != nil {
		w.agg.log.Warn().Err(err).Msg("failed to upsert expiry metrics")
		return
	}
	w.agg.bus.Emit(eventbus.ExpiryMetricsReady, "aggregator", metrics)
}

// materialize builds the persisted bar row from in-flight bucket state
// (§4.3 "Flush" step a, I4, I5).
func materialize(key domain.StrikeKey, b *domain.StrikeBucket, gap int) domain.StrikeBar {
	row := domain.StrikeBar{
		Symbol:      key.Symbol,
		Expiry:      key.Expiry,
		Timeframe:   key.Timeframe,
		BucketStart: key.BucketStart,
		Strike:      key.Strike,

		UnderlyingClose: b.UnderlyingClose,

		CallIVAvg: b.Call.IVAvg(), PutIVAvg: b.Put.IVAvg(),
		CallDeltaAvg: b.Call.DeltaAvg(), PutDeltaAvg: b.Put.DeltaAvg(),
		CallGammaAvg: b.Call.GammaAvg(), PutGammaAvg: b.Put.GammaAvg(),
		CallThetaAvg: b.Call.ThetaAvg(), PutThetaAvg: b.Put.ThetaAvg(),
		CallVegaAvg: b.Call.VegaAvg(), PutVegaAvg: b.Put.VegaAvg(),

		CallVolume: b.Call.SumVolume, PutVolume: b.Put.SumVolume,
		CallCount: b.Call.Count, PutCount: b.Put.Count,
		CallOISum: b.Call.LastOI, PutOISum: b.Put.LastOI,
	}

	if b.UnderlyingClose != nil {
		row.MoneynessBucket = domain.ClassifyMoneyness(key.Strike, *b.UnderlyingClose, gap)
	}

	if b.Liquidity != nil && b.Liquidity.TotalCount > 0 {
		n := float64(b.Liquidity.TotalCount)
		avgScore := b.Liquidity.CompositeScoreSum / n
		minScore := b.Liquidity.CompositeScoreMin
		spreadAbsAvg := b.Liquidity.SpreadAbsSum / n
		spreadPctAvg := b.Liquidity.SpreadPctSum / n
		spreadPctMax := b.Liquidity.SpreadPctMax
		depthImb := b.Liquidity.DepthImbSum / n
		bookPressure := b.Liquidity.BookPressureSum / n
		bidAvg := b.Liquidity.TotalBidQtySum / n
		askAvg := b.Liquidity.TotalAskQtySum / n

		row.LiquidityScoreAvg = &avgScore
		row.LiquidityScoreMin = &minScore
		row.LiquidityTier = b.Liquidity.DominantTier()
		row.SpreadAbsAvg = &spreadAbsAvg
		row.SpreadPctAvg = &spreadPctAvg
		row.SpreadPctMax = &spreadPctMax
		row.DepthImbalancePct = &depthImb
		row.BookPressureAvg = &bookPressure
		row.TotalBidQtyAvg = &bidAvg
		row.TotalAskQtyAvg = &askAvg
		row.IsIlliquid = b.Liquidity.IsIlliquid()
		row.IlliquidTickCount = b.Liquidity.IlliquidCount
		row.TotalTickCount = b.Liquidity.TotalCount
	}

	return row
}
