package reliability

import (
	"context"
	"time"

	"github.com/foaggregator/fo-aggregator/internal/domain"
)

// Start runs the archival sweep on the configured interval until ctx is
// cancelled. Each pass exports the previous day's finalized bars for
// every (symbol, expiry) pair discovered in the 1-minute table.
func (a *Archiver) Start(ctx context.Context) {
	if !a.Enabled() {
		return
	}
	interval := time.Duration(a.cfg.IntervalHours) * time.Hour
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sweep(ctx)
		}
	}
}

func (a *Archiver) sweep(ctx context.Context) {
	now := time.Now().UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(-24 * time.Hour)

	pairs, err := a.store.DistinctSymbolExpiries(ctx, domain.Timeframe1Min, day)
	if err != nil {
		a.log.Warn().Err(err).Msg("archival sweep: failed to list symbol/expiry pairs")
		return
	}

	for _, pair := range pairs {
		if err := a.Run(ctx, pair.Symbol, pair.Expiry, day); err != nil {
			a.log.Warn().Err(err).Str("symbol", pair.Symbol).Msg("archival sweep failed for pair")
		}
	}
}
