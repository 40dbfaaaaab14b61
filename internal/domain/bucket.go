package domain

import (
	"math"
	"time"
)

// Timeframe is one of the aggregated bar durations the pipeline supports.
type Timeframe string

const (
	Timeframe1Min  Timeframe = "1min"
	Timeframe5Min  Timeframe = "5min"
	Timeframe15Min Timeframe = "15min"
)

// Duration returns the wall-clock span of one bucket at this timeframe.
func (t Timeframe) Duration() time.Duration {
	switch t {
	case Timeframe1Min:
		return time.Minute
	case Timeframe5Min:
		return 5 * time.Minute
	case Timeframe15Min:
		return 15 * time.Minute
	default:
		return time.Minute
	}
}

// BucketStart floors ts to the start of the timeframe's bucket.
func (t Timeframe) BucketStart(ts time.Time) time.Time {
	d := t.Duration()
	return ts.Truncate(d)
}

// BucketKey identifies one in-flight strike bucket. Exactly one
// aggregator worker owns the key at a time (I2).
type BucketKey struct {
	Symbol      string
	Expiry      time.Time
	Timeframe   Timeframe
	BucketStart time.Time
}

// StrikeKey extends BucketKey with the strike, the unit the aggregator
// partitions ingest work on.
type StrikeKey struct {
	BucketKey
	Strike float64
}

// SideStats accumulates one option side's (call or put) contributions
// within a bucket: counts, weighted sums for each Greek, and the latest
// observed open interest.
type SideStats struct {
	Count      int64
	SumVolume  float64
	LastOI     float64
	SumIV      float64
	CountIV    int64
	SumDelta   float64
	CountDelta int64
	SumGamma   float64
	CountGamma int64
	SumTheta   float64
	CountTheta int64
	SumVega    float64
	CountVega  int64
}

// Add folds one tick's contribution into the side's running sums. weight
// is the tick's contribution count: 1 for single-tick ingestion, or the
// source row's count field when re-aggregating already-bucketed rows.
func (s *SideStats) Add(t *Tick, weight int64) {
	s.Count += weight
	s.SumVolume += t.VolumeCum
	s.LastOI = t.OpenInterest
	if t.IV != nil {
		s.SumIV += *t.IV * float64(weight)
		s.CountIV += weight
	}
	if t.Delta != nil {
		s.SumDelta += *t.Delta * float64(weight)
		s.CountDelta += weight
	}
	if t.Gamma != nil {
		s.SumGamma += *t.Gamma * float64(weight)
		s.CountGamma += weight
	}
	if t.Theta != nil {
		s.SumTheta += *t.Theta * float64(weight)
		s.CountTheta += weight
	}
	if t.Vega != nil {
		s.SumVega += *t.Vega * float64(weight)
		s.CountVega += weight
	}
}

// weightedAvg returns sum/count, or nil if count is zero (I4).
func weightedAvg(sum float64, count int64) *float64 {
	if count == 0 {
		return nil
	}
	v := sum / float64(count)
	return &v
}

// IVAvg, DeltaAvg, etc. materialize the side's weighted averages at flush
// time (I4: zero-count denominators yield null, never zero).
func (s *SideStats) IVAvg() *float64    { return weightedAvg(s.SumIV, s.CountIV) }
func (s *SideStats) DeltaAvg() *float64 { return weightedAvg(s.SumDelta, s.CountDelta) }
func (s *SideStats) GammaAvg() *float64 { return weightedAvg(s.SumGamma, s.CountGamma) }
func (s *SideStats) ThetaAvg() *float64 { return weightedAvg(s.SumTheta, s.CountTheta) }
func (s *SideStats) VegaAvg() *float64  { return weightedAvg(s.SumVega, s.CountVega) }

// LiquiditySummary is the optional per-bucket liquidity aggregate folded
// from per-tick depth snapshots.
type LiquiditySummary struct {
	SpreadAbsSum      float64
	SpreadPctSum      float64
	SpreadPctMax      float64
	DepthImbSum       float64
	BookPressureSum   float64
	TotalBidQtySum    float64
	TotalAskQtySum    float64
	CompositeScoreSum float64
	CompositeScoreMin float64
	TierCounts        map[string]int
	IlliquidCount     int64
	TotalCount        int64
}

// NewLiquiditySummary returns a zeroed summary ready to fold ticks into.
func NewLiquiditySummary() *LiquiditySummary {
	return &LiquiditySummary{TierCounts: make(map[string]int), CompositeScoreMin: math.MaxFloat64}
}

// IsIlliquid derives the bucket-level illiquidity flag: more than half
// of folded ticks were individually illiquid.
func (l *LiquiditySummary) IsIlliquid() bool {
	if l.TotalCount == 0 {
		return false
	}
	return float64(l.IlliquidCount)/float64(l.TotalCount) > 0.5
}

// DominantTier returns the most frequently observed liquidity tier.
func (l *LiquiditySummary) DominantTier() string {
	best, bestN := "", -1
	for tier, n := range l.TierCounts {
		if n > bestN {
			best, bestN = tier, n
		}
	}
	return best
}

// StrikeBucket is the in-flight aggregation state for one strike within
// one bucket. Owned exclusively by the aggregator worker holding its key
// until flush.
type StrikeBucket struct {
	Key              StrikeKey
	Call             SideStats
	Put              SideStats
	UnderlyingClose  *float64
	Liquidity        *LiquiditySummary
	LastTouch        time.Time
}

// NewStrikeBucket returns an empty bucket for key.
func NewStrikeBucket(key StrikeKey) *StrikeBucket {
	return &StrikeBucket{Key: key}
}
