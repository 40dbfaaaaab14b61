package backfill

import (
	"strings"
	"time"

	"github.com/foaggregator/fo-aggregator/internal/domain"
	"github.com/foaggregator/fo-aggregator/internal/historyapi"
)

// segmentKind classifies an instrument's segment per §4.6 "Instrument
// typing": INDICES (underlying index), *-FUT (futures), *-OPT (options).
type segmentKind int

const (
	segmentIndex segmentKind = iota
	segmentFuture
	segmentOption
)

func classifySegment(segment string) segmentKind {
	switch {
	case strings.EqualFold(segment, "INDICES"):
		return segmentIndex
	case strings.HasSuffix(strings.ToUpper(segment), "-FUT"):
		return segmentFuture
	default:
		return segmentOption
	}
}

// convertBars turns upstream history bars into persisted StrikeBar rows
// through the same columns the live aggregator materializes, so backfill
// writes are indistinguishable from live-flushed ones once upserted
// (§4.6 "Idempotency"). Index and futures instruments have no strike or
// option side; they are persisted at Strike 0 with only the
// volume/OI/moneyness-neutral columns populated, since the schema has no
// separate underlying-series table (documented design decision).
func convertBars(inst InstrumentRef, tf domain.Timeframe, bars []historyapi.Bar) []domain.StrikeBar {
	kind := classifySegment(inst.Segment)
	rows := make([]domain.StrikeBar, 0, len(bars))

	for _, b := range bars {
		bucketStart := tf.BucketStart(b.Timestamp)
		row := domain.StrikeBar{
			Symbol:      inst.Symbol,
			Timeframe:   tf,
			BucketStart: bucketStart,
			CreatedAt:   time.Now().UTC(),
			UpdatedAt:   time.Now().UTC(),
		}
		if inst.Expiry != nil {
			row.Expiry = *inst.Expiry
		}

		switch kind {
		case segmentIndex, segmentFuture:
			row.Strike = 0
			row.MoneynessBucket = "ATM"
			row.UnderlyingClose = &b.Close
			row.CallVolume = b.Volume
			row.CallOISum = b.OpenInterest
			row.CallCount = 1
		case segmentOption:
			row.Strike = strikeOf(inst)
			applySide(&row, inst.OptionSide, b)
		}
		rows = append(rows, row)
	}
	return rows
}

func strikeOf(inst InstrumentRef) float64 {
	if inst.Strike != nil {
		return *inst.Strike
	}
	return 0
}

func applySide(row *domain.StrikeBar, side *domain.OptionSide, b historyapi.Bar) {
	isPut := side != nil && *side == domain.Put
	close := b.Close
	if isPut {
		row.PutVolume = b.Volume
		row.PutOISum = b.OpenInterest
		row.PutCount = 1
		row.PutIVAvg = b.IV
		row.PutDeltaAvg = b.Delta
		row.PutGammaAvg = b.Gamma
		row.PutThetaAvg = b.Theta
		row.PutVegaAvg = b.Vega
		row.PremiumAbs = &close
		return
	}
	row.CallVolume = b.Volume
	row.CallOISum = b.OpenInterest
	row.CallCount = 1
	row.CallIVAvg = b.IV
	row.CallDeltaAvg = b.Delta
	row.CallGammaAvg = b.Gamma
	row.CallThetaAvg = b.Theta
	row.CallVegaAvg = b.Vega
	row.PremiumAbs = &close
}
