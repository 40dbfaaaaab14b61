// Package ingest is the pub/sub consumer (C5): durable subscription to
// the options/underlying/events channels, JSON decode + validation, and
// partitioned dispatch to the aggregator. The upstream WS client shape
// (HTTP/1.1-forced dialer, reconnect backoff) is grounded on the
// teacher's internal/clients/tradernet/websocket_client.go.
package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/foaggregator/fo-aggregator/internal/domain"
)

// wireTick is the JSON shape of an inbound options-channel message
// (spec.md §6 "options").
type wireTick struct {
	Symbol     string   `json:"symbol"`
	Expiry     string   `json:"expiry"`
	Strike     float64  `json:"strike"`
	OptionSide string   `json:"option_side"`
	LastPrice  float64  `json:"last_price"`
	Volume     float64  `json:"volume"`
	OI         *float64 `json:"oi"`
	IV         *float64 `json:"iv"`
	Delta      *float64 `json:"delta"`
	Gamma      *float64 `json:"gamma"`
	Theta      *float64 `json:"theta"`
	Vega       *float64 `json:"vega"`
	TS         int64    `json:"ts"`
	IsMock     bool     `json:"is_mock"`
	Depth      *wireDepth `json:"depth"`
}

type wireDepthLevel struct {
	Price      float64 `json:"price"`
	Quantity   float64 `json:"quantity"`
	OrderCount int     `json:"order_count"`
}

type wireDepth struct {
	Bids []wireDepthLevel `json:"bids"`
	Asks []wireDepthLevel `json:"asks"`
}

// decodeTick parses and validates one options-channel message.
func decodeTick(raw []byte) (*domain.Tick, error) {
	var w wireTick
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode tick: %w", err)
	}
	if w.Symbol == "" || w.Expiry == "" || w.TS == 0 {
		return nil, fmt.Errorf("validate tick: missing required field")
	}
	side := domain.Call
	switch w.OptionSide {
	case "CE":
		side = domain.Call
	case "PE":
		side = domain.Put
	default:
		return nil, fmt.Errorf("validate tick: unknown option_side %q", w.OptionSide)
	}
	expiry, err := time.Parse("2006-01-02", w.Expiry)
	if err != nil {
		return nil, fmt.Errorf("validate tick: bad expiry: %w", err)
	}

	t := &domain.Tick{
		Instrument: domain.InstrumentRef{
			Symbol: w.Symbol,
			Expiry: expiry,
			Strike: w.Strike,
			Side:   side,
		},
		LastPrice: w.LastPrice,
		VolumeCum: w.Volume,
		Timestamp: time.Unix(w.TS, 0).UTC(),
		IsMock:    w.IsMock,
		IV:        w.IV,
		Delta:     w.Delta,
		Gamma:     w.Gamma,
		Theta:     w.Theta,
		Vega:      w.Vega,
	}
	if w.OI != nil {
		t.OpenInterest = *w.OI
	}
	if w.Depth != nil {
		t.Depth = &domain.Depth{}
		for _, l := range w.Depth.Bids {
			t.Depth.Bids = append(t.Depth.Bids, domain.DepthLevel{Price: l.Price, Quantity: l.Quantity, OrderCount: l.OrderCount})
		}
		for _, l := range w.Depth.Asks {
			t.Depth.Asks = append(t.Depth.Asks, domain.DepthLevel{Price: l.Price, Quantity: l.Quantity, OrderCount: l.OrderCount})
		}
	}
	return t, nil
}

// wireUnderlying is the JSON shape of an inbound underlying-channel
// message.
type wireUnderlying struct {
	Symbol string  `json:"symbol"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
	TS     int64   `json:"ts"`
	IsMock bool    `json:"is_mock"`
}

func decodeUnderlying(raw []byte) (*domain.UnderlyingBar, error) {
	var w wireUnderlying
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode underlying: %w", err)
	}
	if w.Symbol == "" || w.TS == 0 {
		return nil, fmt.Errorf("validate underlying: missing required field")
	}
	return &domain.UnderlyingBar{
		Symbol: w.Symbol, Open: w.Open, High: w.High, Low: w.Low, Close: w.Close,
		Volume: w.Volume, Timestamp: time.Unix(w.TS, 0).UTC(), IsMock: w.IsMock,
	}, nil
}

// wireEvent is the JSON shape of an inbound events-channel message
// (spec.md §3 "Subscription event").
type wireEvent struct {
	EventType       string  `json:"event_type"`
	InstrumentToken int64   `json:"instrument_token"`
	TS              int64   `json:"timestamp"`
	Metadata        struct {
		TradingSymbol string   `json:"tradingsymbol"`
		Segment       string   `json:"segment"`
		Expiry        string   `json:"expiry"`
		Strike        *float64 `json:"strike"`
		OptionSide    string   `json:"option_side"`
	} `json:"metadata"`
}

func decodeEvent(raw []byte) (*domain.SubscriptionEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if w.EventType == "" || w.InstrumentToken == 0 {
		return nil, fmt.Errorf("validate event: missing required field")
	}

	e := &domain.SubscriptionEvent{
		EventType:       domain.SubscriptionEventType(w.EventType),
		InstrumentToken: w.InstrumentToken,
		Timestamp:       time.Unix(w.TS, 0).UTC(),
		Metadata: domain.SubscriptionMetadata{
			TradingSymbol: w.Metadata.TradingSymbol,
			Segment:       w.Metadata.Segment,
			Strike:        w.Metadata.Strike,
		},
	}
	if w.Metadata.Expiry != "" {
		if exp, err := time.Parse("2006-01-02", w.Metadata.Expiry); err == nil {
			e.Metadata.Expiry = &exp
		}
	}
	if w.Metadata.OptionSide != "" {
		side := domain.OptionSide(w.Metadata.OptionSide)
		e.Metadata.OptionSide = &side
	}
	return e, nil
}
