package aggregator

import "github.com/foaggregator/fo-aggregator/internal/domain"

// foldDepth computes the per-tick liquidity signals from an L2 snapshot
// and folds them into the bucket's running summary (§4.3 step 6).
func foldDepth(l *domain.LiquiditySummary, d *domain.Depth) {
	if len(d.Bids) == 0 || len(d.Asks) == 0 {
		l.TotalCount++
		l.IlliquidCount++
		return
	}

	bestBid := d.Bids[0].Price
	bestAsk := d.Asks[0].Price
	mid := (bestBid + bestAsk) / 2

	spreadAbs := bestAsk - bestBid
	spreadPct := 0.0
	if mid > 0 {
		spreadPct = spreadAbs / mid * 100
	}

	var bidQty, askQty float64
	for _, lvl := range d.Bids {
		bidQty += lvl.Quantity
	}
	for _, lvl := range d.Asks {
		askQty += lvl.Quantity
	}

	var imbalance float64
	if bidQty+askQty > 0 {
		imbalance = (bidQty - askQty) / (bidQty + askQty) * 100
	}
	pressure := imbalance

	score := 100.0 - spreadPct*10
	if score < 0 {
		score = 0
	}

	tier := liquidityTier(score)
	illiquid := score < 30

	l.SpreadAbsSum += spreadAbs
	l.SpreadPctSum += spreadPct
	if spreadPct > l.SpreadPctMax {
		l.SpreadPctMax = spreadPct
	}
	l.DepthImbSum += imbalance
	l.BookPressureSum += pressure
	l.TotalBidQtySum += bidQty
	l.TotalAskQtySum += askQty
	l.CompositeScoreSum += score
	if score < l.CompositeScoreMin {
		l.CompositeScoreMin = score
	}
	l.TierCounts[tier]++
	l.TotalCount++
	if illiquid {
		l.IlliquidCount++
	}
}

func liquidityTier(score float64) string {
	switch {
	case score >= 80:
		return "high"
	case score >= 50:
		return "medium"
	case score >= 30:
		return "low"
	default:
		return "illiquid"
	}
}
