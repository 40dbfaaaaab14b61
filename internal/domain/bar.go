package domain

import (
	"math"
	"strconv"
	"time"
)

// MoneynessBucket is the categorical label of a strike relative to spot
// (glossary "Moneyness bucket").
type MoneynessBucket string

const atm MoneynessBucket = "ATM"

// ClassifyMoneyness computes the moneyness label for a strike given the
// underlying close and the symbol's strike gap, per spec.md §4.3.
func ClassifyMoneyness(strike, underlyingClose float64, gap int) MoneynessBucket {
	if gap <= 0 {
		gap = 1
	}
	offset := strike - underlyingClose
	half := float64(gap) / 2
	if offset > -half && offset < half {
		return atm
	}
	if offset > 0 {
		n := int(math.Round(offset / float64(gap)))
		if n < 1 {
			n = 1
		}
		if n > 10 {
			n = 10
		}
		return MoneynessBucket(sprintfOTM(n))
	}
	n := int(math.Round(-offset / float64(gap)))
	if n < 1 {
		n = 1
	}
	if n > 10 {
		n = 10
	}
	return MoneynessBucket(sprintfITM(n))
}

func sprintfOTM(n int) string { return "OTM" + strconv.Itoa(n) }
func sprintfITM(n int) string { return "ITM" + strconv.Itoa(n) }

// StrikeBar is one flushed, persisted strike-bucket row — the full set
// of columns materialized at flush time (spec.md §3 "Persisted bar").
type StrikeBar struct {
	Symbol      string
	Expiry      time.Time
	Timeframe   Timeframe
	BucketStart time.Time
	Strike      float64

	UnderlyingClose *float64

	CallIVAvg    *float64
	PutIVAvg     *float64
	CallDeltaAvg *float64
	PutDeltaAvg  *float64
	CallGammaAvg *float64
	PutGammaAvg  *float64
	CallThetaAvg *float64
	PutThetaAvg  *float64
	CallVegaAvg  *float64
	PutVegaAvg   *float64

	CallVolume float64
	PutVolume  float64
	CallCount  int64
	PutCount   int64
	CallOISum  float64
	PutOISum   float64

	MoneynessBucket MoneynessBucket
	PremiumAbs      *float64
	PremiumPct      *float64

	LiquidityScoreAvg *float64
	LiquidityScoreMin *float64
	LiquidityTier     string
	SpreadAbsAvg      *float64
	SpreadPctAvg      *float64
	SpreadPctMax      *float64
	DepthImbalancePct *float64
	BookPressureAvg   *float64
	TotalBidQtyAvg    *float64
	TotalAskQtyAvg    *float64
	IsIlliquid        bool
	IlliquidTickCount int64
	TotalTickCount    int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ExpiryMetrics is one derived per-expiry rollup row (spec.md §3
// "Expiry metrics (derived)").
type ExpiryMetrics struct {
	Symbol          string
	Expiry          time.Time
	Timeframe       Timeframe
	BucketStart     time.Time
	TotalCallVolume float64
	TotalPutVolume  float64
	PCR             *float64
	MaxPainStrike   *float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SubscriptionEventType enumerates upstream lifecycle events. Removed and
// Deleted are aliases (spec.md §3).
type SubscriptionEventType string

const (
	SubscriptionCreated SubscriptionEventType = "subscription_created"
	SubscriptionRemoved SubscriptionEventType = "subscription_removed"
	SubscriptionDeleted SubscriptionEventType = "subscription_deleted"
)

// SubscriptionMetadata describes the instrument a subscription event
// refers to.
type SubscriptionMetadata struct {
	TradingSymbol string
	Segment       string
	Expiry        *time.Time
	Strike        *float64
	OptionSide    *OptionSide
}

// SubscriptionEvent is an inbound lifecycle notification from the
// upstream ticker service.
type SubscriptionEvent struct {
	EventType       SubscriptionEventType
	InstrumentToken int64
	Metadata        SubscriptionMetadata
	Timestamp       time.Time
}

// IsRemoval reports whether the event tears down a subscription —
// "removed" and "deleted" are aliases per spec.md §3.
func (e SubscriptionEvent) IsRemoval() bool {
	return e.EventType == SubscriptionRemoved || e.EventType == SubscriptionDeleted
}
