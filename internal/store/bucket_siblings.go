package store

import (
	"context"
	"fmt"
	"time"

	"github.com/foaggregator/fo-aggregator/internal/domain"
)

// FetchBucketStrikes returns every strike row already persisted for one
// exact (symbol, expiry, timeframe, bucket_start) bucket. The derived-
// metric computer (C4) uses this to roll up PCR/max-pain from whichever
// strike partitions have flushed so far, since strikes of the same
// bucket are owned by different aggregator workers (§4.3 "Concurrency
// contract" partitions by strike, not by expiry).
func (s *Store) FetchBucketStrikes(ctx context.Context, symbol string, expiry time.Time, tf domain.Timeframe, bucketStart time.Time) ([]domain.StrikeBar, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE symbol = ? AND expiry = ? AND timeframe = ? AND bucket_time = ?`, barColumns, barsTable(tf))

	r, err := s.db.QueryContext(ctx, query, symbol, expiry.Format(dateLayout), string(tf), bucketStart.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, classify(err)
	}
	defer r.Close()
	return scanStrikeBars(r, tf)
}
