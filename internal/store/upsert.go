package store

import (
	"context"
	"fmt"
	"time"

	"github.com/foaggregator/fo-aggregator/internal/domain"
)

const dateLayout = "2006-01-02"

// UpsertStrikeBars idempotently bulk-upserts rows keyed by
// (symbol,expiry,timeframe,bucket_start,strike): on conflict every
// column is overwritten and updated_at advances to now (I2, I3).
// Retried on transient failure per §4.1.
func (s *Store) UpsertStrikeBars(ctx context.Context, rows []domain.StrikeBar) error {
	if len(rows) == 0 {
		return nil
	}
	byTf := make(map[domain.Timeframe][]domain.StrikeBar)
	for _, r := range rows {
		byTf[r.Timeframe] = append(byTf[r.Timeframe], r)
	}
	for tf, group := range byTf {
		group := group
		tf := tf
		if err := withRetry(ctx, func() error { return s.upsertStrikeBarsTx(ctx, tf, group) }); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) upsertStrikeBarsTx(ctx context.Context, tf domain.Timeframe, rows []domain.StrikeBar) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
INSERT INTO %s (
	symbol, expiry, timeframe, bucket_time, strike,
	underlying_close,
	call_iv_avg, put_iv_avg, call_delta_avg, put_delta_avg,
	call_gamma_avg, put_gamma_avg, call_theta_avg, put_theta_avg,
	call_vega_avg, put_vega_avg,
	call_volume, put_volume, call_count, put_count,
	call_oi_sum, put_oi_sum,
	moneyness_bucket, premium_abs, premium_pct,
	liquidity_score_avg, liquidity_score_min, liquidity_tier,
	spread_abs_avg, spread_pct_avg, spread_pct_max,
	depth_imbalance_pct_avg, book_pressure_avg,
	total_bid_qty_avg, total_ask_qty_avg,
	is_illiquid, illiquid_tick_count, total_tick_count,
	created_at, updated_at
) VALUES (?,?,?,?,?, ?, ?,?,?,?, ?,?,?,?, ?,?, ?,?,?,?, ?,?, ?,?,?, ?,?,?, ?,?,?, ?,?, ?,?, ?,?,?, ?,?)
ON CONFLICT(symbol, expiry, timeframe, bucket_time, strike) DO UPDATE SET
	underlying_close=excluded.underlying_close,
	call_iv_avg=excluded.call_iv_avg, put_iv_avg=excluded.put_iv_avg,
	call_delta_avg=excluded.call_delta_avg, put_delta_avg=excluded.put_delta_avg,
	call_gamma_avg=excluded.call_gamma_avg, put_gamma_avg=excluded.put_gamma_avg,
	call_theta_avg=excluded.call_theta_avg, put_theta_avg=excluded.put_theta_avg,
	call_vega_avg=excluded.call_vega_avg, put_vega_avg=excluded.put_vega_avg,
	call_volume=excluded.call_volume, put_volume=excluded.put_volume,
	call_count=excluded.call_count, put_count=excluded.put_count,
	call_oi_sum=excluded.call_oi_sum, put_oi_sum=excluded.put_oi_sum,
	moneyness_bucket=excluded.moneyness_bucket,
	premium_abs=excluded.premium_abs, premium_pct=excluded.premium_pct,
	liquidity_score_avg=excluded.liquidity_score_avg, liquidity_score_min=excluded.liquidity_score_min,
	liquidity_tier=excluded.liquidity_tier,
	spread_abs_avg=excluded.spread_abs_avg, spread_pct_avg=excluded.spread_pct_avg, spread_pct_max=excluded.spread_pct_max,
	depth_imbalance_pct_avg=excluded.depth_imbalance_pct_avg, book_pressure_avg=excluded.book_pressure_avg,
	total_bid_qty_avg=excluded.total_bid_qty_avg, total_ask_qty_avg=excluded.total_ask_qty_avg,
	is_illiquid=excluded.is_illiquid,
	illiquid_tick_count=excluded.illiquid_tick_count, total_tick_count=excluded.total_tick_count,
	updated_at=excluded.updated_at
`, barsTable(tf))

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, r := range rows {
		_, err := stmt.ExecContext(ctx,
			r.Symbol, r.Expiry.Format(dateLayout), string(r.Timeframe), r.BucketStart.UTC().Format(time.RFC3339), r.Strike,
			nullFloat(r.UnderlyingClose),
			nullFloat(r.CallIVAvg), nullFloat(r.PutIVAvg), nullFloat(r.CallDeltaAvg), nullFloat(r.PutDeltaAvg),
			nullFloat(r.CallGammaAvg), nullFloat(r.PutGammaAvg), nullFloat(r.CallThetaAvg), nullFloat(r.PutThetaAvg),
			nullFloat(r.CallVegaAvg), nullFloat(r.PutVegaAvg),
			r.CallVolume, r.PutVolume, r.CallCount, r.PutCount,
			r.CallOISum, r.PutOISum,
			string(r.MoneynessBucket), nullFloat(r.PremiumAbs), nullFloat(r.PremiumPct),
			nullFloat(r.LiquidityScoreAvg), nullFloat(r.LiquidityScoreMin), r.LiquidityTier,
			nullFloat(r.SpreadAbsAvg), nullFloat(r.SpreadPctAvg), nullFloat(r.SpreadPctMax),
			nullFloat(r.DepthImbalancePct), nullFloat(r.BookPressureAvg),
			nullFloat(r.TotalBidQtyAvg), nullFloat(r.TotalAskQtyAvg),
			boolToInt(r.IsIlliquid), r.IlliquidTickCount, r.TotalTickCount,
			now, now,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UpsertExpiryMetrics idempotently bulk-upserts rows keyed by
// (symbol,expiry,timeframe,bucket_start).
func (s *Store) UpsertExpiryMetrics(ctx context.Context, rows []domain.ExpiryMetrics) error {
	if len(rows) == 0 {
		return nil
	}
	byTf := make(map[domain.Timeframe][]domain.ExpiryMetrics)
	for _, r := range rows {
		byTf[r.Timeframe] = append(byTf[r.Timeframe], r)
	}
	for tf, group := range byTf {
		group := group
		tf := tf
		if err := withRetry(ctx, func() error { return s.upsertExpiryMetricsTx(ctx, tf, group) }); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) upsertExpiryMetricsTx(ctx context.Context, tf domain.Timeframe, rows []domain.ExpiryMetrics) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
INSERT INTO %s (symbol, expiry, timeframe, bucket_time, total_call_volume, total_put_volume, pcr, max_pain_strike, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(symbol, expiry, timeframe, bucket_time) DO UPDATE SET
	total_call_volume=excluded.total_call_volume,
	total_put_volume=excluded.total_put_volume,
	pcr=excluded.pcr,
	max_pain_strike=excluded.max_pain_strike,
	updated_at=excluded.updated_at
`, metricsTable(tf))

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, r := range rows {
		_, err := stmt.ExecContext(ctx,
			r.Symbol, r.Expiry.Format(dateLayout), string(r.Timeframe), r.BucketStart.UTC().Format(time.RFC3339),
			r.TotalCallVolume, r.TotalPutVolume, nullFloat(r.PCR), nullFloat(r.MaxPainStrike),
			now, now,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func nullFloat(p *float64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
