package store

import (
	"context"
	"fmt"

	"github.com/foaggregator/fo-aggregator/internal/domain"
)

// allTimeframes is the set of aggregated timeframes the store carries
// native tables for (spec.md §6): every one materializes OI itself —
// there is never a base-1min-plus-JOIN shape.
var allTimeframes = []domain.Timeframe{
	domain.Timeframe1Min, domain.Timeframe5Min, domain.Timeframe15Min,
}

func barsTable(tf domain.Timeframe) string {
	return "fo_option_strike_bars_" + string(tf)
}

func metricsTable(tf domain.Timeframe) string {
	return "fo_expiry_metrics_" + string(tf)
}

// migrate creates the per-timeframe bar and expiry-metrics tables if
// absent. Column set follows spec.md §6 "Persistent store schema"
// verbatim, including the native OI columns per design rule (§4.1).
func (s *Store) migrate(ctx context.Context) error {
	for _, tf := range allTimeframes {
		barsDDL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	symbol TEXT NOT NULL,
	expiry TEXT NOT NULL,
	timeframe TEXT NOT NULL,
	bucket_time TEXT NOT NULL,
	strike REAL NOT NULL,
	underlying_close REAL,
	call_iv_avg REAL, put_iv_avg REAL,
	call_delta_avg REAL, put_delta_avg REAL,
	call_gamma_avg REAL, put_gamma_avg REAL,
	call_theta_avg REAL, put_theta_avg REAL,
	call_vega_avg REAL, put_vega_avg REAL,
	call_volume REAL NOT NULL DEFAULT 0,
	put_volume REAL NOT NULL DEFAULT 0,
	call_count INTEGER NOT NULL DEFAULT 0,
	put_count INTEGER NOT NULL DEFAULT 0,
	call_oi_sum REAL NOT NULL DEFAULT 0,
	put_oi_sum REAL NOT NULL DEFAULT 0,
	moneyness_bucket TEXT,
	premium_abs REAL, premium_pct REAL,
	liquidity_score_avg REAL, liquidity_score_min REAL, liquidity_tier TEXT,
	spread_abs_avg REAL, spread_pct_avg REAL, spread_pct_max REAL,
	depth_imbalance_pct_avg REAL, book_pressure_avg REAL,
	total_bid_qty_avg REAL, total_ask_qty_avg REAL,
	is_illiquid INTEGER NOT NULL DEFAULT 0,
	illiquid_tick_count INTEGER NOT NULL DEFAULT 0,
	total_tick_count INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (symbol, expiry, timeframe, bucket_time, strike)
)`, barsTable(tf))

		if _, err := s.db.ExecContext(ctx, barsDDL); err != nil {
			return fmt.Errorf("create %s: %w", barsTable(tf), err)
		}

		idxDDL := fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS idx_%s_lookup ON %s(symbol, timeframe, expiry, bucket_time)`,
			barsTable(tf), barsTable(tf))
		if _, err := s.db.ExecContext(ctx, idxDDL); err != nil {
			return fmt.Errorf("create index on %s: %w", barsTable(tf), err)
		}

		metricsDDL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	symbol TEXT NOT NULL,
	expiry TEXT NOT NULL,
	timeframe TEXT NOT NULL,
	bucket_time TEXT NOT NULL,
	total_call_volume REAL NOT NULL DEFAULT 0,
	total_put_volume REAL NOT NULL DEFAULT 0,
	pcr REAL,
	max_pain_strike REAL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (symbol, expiry, timeframe, bucket_time)
)`, metricsTable(tf))

		if _, err := s.db.ExecContext(ctx, metricsDDL); err != nil {
			return fmt.Errorf("create %s: %w", metricsTable(tf), err)
		}
	}
	return nil
}
