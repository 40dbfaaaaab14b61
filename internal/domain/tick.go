// Package domain holds the strongly-typed value objects shared by every
// pipeline component: ticks in, strike buckets in flight, and the bars
// and metrics rows that get persisted. Every optional field is an
// explicit pointer so absence is never confused with a zero value.
package domain

import "time"

// OptionSide is the side of an option instrument.
type OptionSide string

const (
	Call OptionSide = "CALL"
	Put  OptionSide = "PUT"
)

// DepthLevel is a single bid/ask level of an L2 order-book snapshot.
type DepthLevel struct {
	Price      float64
	Quantity   float64
	OrderCount int
}

// Depth is the L2 order-book snapshot carried on an option tick.
type Depth struct {
	Bids []DepthLevel
	Asks []DepthLevel
}

// InstrumentRef identifies the option instrument a tick belongs to.
type InstrumentRef struct {
	Symbol     string
	Expiry     time.Time // date-only, UTC midnight
	Strike     float64
	Side       OptionSide
}

// Tick is a single inbound option quote, per spec.md §3 "Tick (input)".
type Tick struct {
	Instrument   InstrumentRef
	LastPrice    float64
	VolumeCum    float64
	OpenInterest float64
	IV           *float64
	Delta        *float64
	Gamma        *float64
	Theta        *float64
	Vega         *float64
	Timestamp    time.Time
	IsMock       bool
	Depth        *Depth
}

// UnderlyingBar is an inbound underlying-price sample.
type UnderlyingBar struct {
	Symbol    string
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Timestamp time.Time
	IsMock    bool
}
