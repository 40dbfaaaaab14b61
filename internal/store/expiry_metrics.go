package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/foaggregator/fo-aggregator/internal/domain"
)

// FetchLatestExpiryMetrics returns the latest expiry-metrics row for
// each requested expiry, read directly off the native aggregated table.
func (s *Store) FetchLatestExpiryMetrics(ctx context.Context, symbol string, tf domain.Timeframe, expiries []time.Time) ([]domain.ExpiryMetrics, error) {
	query := fmt.Sprintf(`SELECT symbol, expiry, timeframe, bucket_time, total_call_volume, total_put_volume, pcr, max_pain_strike, created_at, updated_at
		FROM %s t1 WHERE symbol = ? AND bucket_time = (
			SELECT MAX(t2.bucket_time) FROM %s t2 WHERE t2.symbol = t1.symbol AND t2.expiry = t1.expiry
		) ORDER BY expiry`, metricsTable(tf), metricsTable(tf))

	var rows *sql.Rows
	err := withRetry(ctx, func() error {
		var err error
		rows, err = s.db.QueryContext(ctx, query, symbol)
		return err
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ExpiryMetrics
	wanted := make(map[string]bool, len(expiries))
	for _, e := range expiries {
		wanted[e.Format(dateLayout)] = true
	}
	for rows.Next() {
		var m domain.ExpiryMetrics
		var expiryStr, tfStr, bucketStr, createdStr, updatedStr string
		var pcr, maxPain sql.NullFloat64
		if err := rows.Scan(&m.Symbol, &expiryStr, &tfStr, &bucketStr, &m.TotalCallVolume, &m.TotalPutVolume, &pcr, &maxPain, &createdStr, &updatedStr); err != nil {
			return nil, err
		}
		if len(wanted) > 0 && !wanted[expiryStr] {
			continue
		}
		m.Expiry, _ = time.Parse(dateLayout, expiryStr)
		m.Timeframe = domain.Timeframe(tfStr)
		m.BucketStart, _ = time.Parse(time.RFC3339, bucketStr)
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		m.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
		m.PCR = nullableFloat(pcr)
		m.MaxPainStrike = nullableFloat(maxPain)
		out = append(out, m)
	}
	return out, rows.Err()
}
