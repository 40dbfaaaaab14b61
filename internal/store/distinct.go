package store

import (
	"context"
	"fmt"
	"time"

	"github.com/foaggregator/fo-aggregator/internal/domain"
)

// SymbolExpiry identifies one (symbol, expiry) pair with persisted bars.
type SymbolExpiry struct {
	Symbol string
	Expiry time.Time
}

// DistinctSymbolExpiries lists every (symbol, expiry) pair with at least
// one bar persisted for day, used by the nightly archival sweep to know
// what to export without needing a separate instrument registry.
func (s *Store) DistinctSymbolExpiries(ctx context.Context, tf domain.Timeframe, day time.Time) ([]SymbolExpiry, error) {
	query := fmt.Sprintf(`SELECT DISTINCT symbol, expiry FROM %s
		WHERE bucket_time >= ? AND bucket_time < ?`, barsTable(tf))

	from := day.UTC().Format(time.RFC3339)
	to := day.UTC().Add(24 * time.Hour).Format(time.RFC3339)

	var out []SymbolExpiry
	err := withRetry(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, query, from, to)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			var se SymbolExpiry
			var expiryStr string
			if err := rows.Scan(&se.Symbol, &expiryStr); err != nil {
				return err
			}
			se.Expiry, _ = time.Parse(dateLayout, expiryStr)
			out = append(out, se)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
