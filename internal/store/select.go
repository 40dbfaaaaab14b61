package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/foaggregator/fo-aggregator/internal/domain"
)

// StrikeRange optionally bounds a strike query around a center value.
type StrikeRange struct {
	Min, Max float64
}

// FetchLatestStrikes returns the latest-available row per (expiry,
// strike) for symbol/timeframe, or the row at a specific bucket if
// atBucket is non-nil. Reads hit the aggregated table directly — never
// a JOIN-backed view (§4.1 design rule).
func (s *Store) FetchLatestStrikes(ctx context.Context, symbol string, tf domain.Timeframe, expiries []time.Time, strikeRange *StrikeRange, atBucket *time.Time) ([]domain.StrikeBar, error) {
	var rows *sql.Rows
	err := withRetry(ctx, func() error {
		var err error
		rows, err = s.fetchLatestStrikesQuery(ctx, symbol, tf, expiries, strikeRange, atBucket)
		return err
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrikeBars(rows, tf)
}

func (s *Store) fetchLatestStrikesQuery(ctx context.Context, symbol string, tf domain.Timeframe, expiries []time.Time, strikeRange *StrikeRange, atBucket *time.Time) (*sql.Rows, error) {
	var b strings.Builder
	args := []interface{}{symbol}
	fmt.Fprintf(&b, "SELECT %s FROM %s WHERE symbol = ?", barColumns, barsTable(tf))

	if len(expiries) > 0 {
		placeholders := make([]string, len(expiries))
		for i, e := range expiries {
			placeholders[i] = "?"
			args = append(args, e.Format(dateLayout))
		}
		fmt.Fprintf(&b, " AND expiry IN (%s)", strings.Join(placeholders, ","))
	}
	if strikeRange != nil {
		b.WriteString(" AND strike BETWEEN ? AND ?")
		args = append(args, strikeRange.Min, strikeRange.Max)
	}
	if atBucket != nil {
		b.WriteString(" AND bucket_time = ?")
		args = append(args, atBucket.UTC().Format(time.RFC3339))
	} else {
		// latest-per-(expiry,strike): correlated max sub-select, no JOIN
		// against a second table — only self-filters on the same
		// aggregated table.
		b.WriteString(` AND bucket_time = (
			SELECT MAX(t2.bucket_time) FROM ` + barsTable(tf) + ` t2
			WHERE t2.symbol = ` + barsTable(tf) + `.symbol
			  AND t2.expiry = ` + barsTable(tf) + `.expiry
			  AND t2.strike = ` + barsTable(tf) + `.strike
		)`)
	}
	b.WriteString(" ORDER BY expiry, strike")

	return s.db.QueryContext(ctx, b.String(), args...)
}

// FetchStrikeSeries returns a time-bucketed series for the requested
// indicator/option_side, grouped by moneyness_bucket and expiry using
// the stored column (§4.8 / §9 "DESIGN DECISION").
func (s *Store) FetchStrikeSeries(ctx context.Context, symbol string, tf domain.Timeframe, expiries []time.Time, indicator string, side domain.OptionSide, from, to time.Time) ([]SeriesPoint, error) {
	col, err := indicatorColumn(indicator, side)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	args := []interface{}{symbol, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339)}
	fmt.Fprintf(&b, `SELECT bucket_time, expiry, moneyness_bucket, AVG(%s)
		FROM %s WHERE symbol = ? AND bucket_time >= ? AND bucket_time <= ?`, col, barsTable(tf))

	if len(expiries) > 0 {
		placeholders := make([]string, len(expiries))
		for i, e := range expiries {
			placeholders[i] = "?"
			args = append(args, e.Format(dateLayout))
		}
		fmt.Fprintf(&b, " AND expiry IN (%s)", strings.Join(placeholders, ","))
	}
	b.WriteString(" GROUP BY bucket_time, expiry, moneyness_bucket ORDER BY bucket_time")

	var rows *sql.Rows
	err = withRetry(ctx, func() error {
		var err error
		rows, err = s.db.QueryContext(ctx, b.String(), args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SeriesPoint
	for rows.Next() {
		var p SeriesPoint
		var bucketTime, expiry string
		var moneyness sql.NullString
		var value sql.NullFloat64
		if err := rows.Scan(&bucketTime, &expiry, &moneyness, &value); err != nil {
			return nil, err
		}
		p.BucketTime, _ = time.Parse(time.RFC3339, bucketTime)
		p.Expiry, _ = time.Parse(dateLayout, expiry)
		p.MoneynessBucket = domain.MoneynessBucket(moneyness.String)
		if value.Valid {
			v := value.Float64
			p.Value = &v
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SeriesPoint is one row of a moneyness time series.
type SeriesPoint struct {
	BucketTime      time.Time
	Expiry          time.Time
	MoneynessBucket domain.MoneynessBucket
	Value           *float64
}

func indicatorColumn(indicator string, side domain.OptionSide) (string, error) {
	prefix := "call"
	if side == domain.Put {
		prefix = "put"
	}
	switch indicator {
	case "iv":
		return prefix + "_iv_avg", nil
	case "delta":
		return prefix + "_delta_avg", nil
	case "gamma":
		return prefix + "_gamma_avg", nil
	case "theta":
		return prefix + "_theta_avg", nil
	case "vega":
		return prefix + "_vega_avg", nil
	case "volume":
		return prefix + "_volume", nil
	case "oi":
		return prefix + "_oi_sum", nil
	default:
		return "", fmt.Errorf("unknown indicator %q", indicator)
	}
}

// FetchStrikeHistory returns per-strike candle-like rows with Greeks,
// OI, and volume for one (symbol, strike, expiry, timeframe) over
// [from, to].
func (s *Store) FetchStrikeHistory(ctx context.Context, symbol string, strike float64, expiry time.Time, tf domain.Timeframe, from, to time.Time) ([]domain.StrikeBar, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE symbol = ? AND strike = ? AND expiry = ? AND bucket_time >= ? AND bucket_time <= ?
		ORDER BY bucket_time`, barColumns, barsTable(tf))

	var rows *sql.Rows
	err := withRetry(ctx, func() error {
		var err error
		rows, err = s.db.QueryContext(ctx, query, symbol, strike, expiry.Format(dateLayout), from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
		return err
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrikeBars(rows, tf)
}

// LatestBucket returns the most recent bucket_time persisted for symbol
// at timeframe tf — used by the backfill gap detector (§4.6).
func (s *Store) LatestBucket(ctx context.Context, symbol string, tf domain.Timeframe) (time.Time, error) {
	query := fmt.Sprintf("SELECT MAX(bucket_time) FROM %s WHERE symbol = ?", barsTable(tf))

	var raw sql.NullString
	err := withRetry(ctx, func() error {
		return s.db.QueryRowContext(ctx, query, symbol).Scan(&raw)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	if !raw.Valid {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse latest bucket: %w", err)
	}
	return t, nil
}

const barColumns = `symbol, expiry, timeframe, bucket_time, strike,
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
	created_at, updated_at`

func scanStrikeBars(rows *sql.Rows, tf domain.Timeframe) ([]domain.StrikeBar, error) {
	var out []domain.StrikeBar
	for rows.Next() {
		var r domain.StrikeBar
		var expiryStr, timeframeStr, bucketStr, createdStr, updatedStr string
		var moneyness, tier sql.NullString
		var isIlliquid int
		var underlyingClose, callIV, putIV, callDelta, putDelta, callGamma, putGamma, callTheta, putTheta, callVega, putVega,
			premiumAbs, premiumPct, liqAvg, liqMin, spreadAbsAvg, spreadPctAvg, spreadPctMax, depthImb, bookPressure,
			bidAvg, askAvg sql.NullFloat64

		err := rows.Scan(
			&r.Symbol, &expiryStr, &timeframeStr, &bucketStr, &r.Strike,
			&underlyingClose,
			&callIV, &putIV, &callDelta, &putDelta,
			&callGamma, &putGamma, &callTheta, &putTheta,
			&callVega, &putVega,
			&r.CallVolume, &r.PutVolume, &r.CallCount, &r.PutCount,
			&r.CallOISum, &r.PutOISum,
			&moneyness, &premiumAbs, &premiumPct,
			&liqAvg, &liqMin, &tier,
			&spreadAbsAvg, &spreadPctAvg, &spreadPctMax,
			&depthImb, &bookPressure,
			&bidAvg, &askAvg,
			&isIlliquid, &r.IlliquidTickCount, &r.TotalTickCount,
			&createdStr, &updatedStr,
		)
		if err != nil {
			return nil, err
		}

		r.Expiry, _ = time.Parse(dateLayout, expiryStr)
		r.Timeframe = domain.Timeframe(timeframeStr)
		r.BucketStart, _ = time.Parse(time.RFC3339, bucketStr)
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
		r.MoneynessBucket = domain.MoneynessBucket(moneyness.String)
		r.LiquidityTier = tier.String
		r.IsIlliquid = isIlliquid != 0

		r.UnderlyingClose = nullableFloat(underlyingClose)
		r.CallIVAvg = nullableFloat(callIV)
		r.PutIVAvg = nullableFloat(putIV)
		r.CallDeltaAvg = nullableFloat(callDelta)
		r.PutDeltaAvg = nullableFloat(putDelta)
		r.CallGammaAvg = nullableFloat(callGamma)
		r.PutGammaAvg = nullableFloat(putGamma)
		r.CallThetaAvg = nullableFloat(callTheta)
		r.PutThetaAvg = nullableFloat(putTheta)
		r.CallVegaAvg = nullableFloat(callVega)
		r.PutVegaAvg = nullableFloat(putVega)
		r.PremiumAbs = nullableFloat(premiumAbs)
		r.PremiumPct = nullableFloat(premiumPct)
		r.LiquidityScoreAvg = nullableFloat(liqAvg)
		r.LiquidityScoreMin = nullableFloat(liqMin)
		r.SpreadAbsAvg = nullableFloat(spreadAbsAvg)
		r.SpreadPctAvg = nullableFloat(spreadPctAvg)
		r.SpreadPctMax = nullableFloat(spreadPctMax)
		r.DepthImbalancePct = nullableFloat(depthImb)
		r.BookPressureAvg = nullableFloat(bookPressure)
		r.TotalBidQtyAvg = nullableFloat(bidAvg)
		r.TotalAskQtyAvg = nullableFloat(askAvg)

		out = append(out, r)
	}
	return out, rows.Err()
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
