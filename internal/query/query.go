// Package query implements the read-side query surface (C8): three
// cache-through operations over the time-series store, each returning
// a uniform {status, data, metadata} envelope (spec.md §4.8).
package query

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/foaggregator/fo-aggregator/internal/cache"
	"github.com/foaggregator/fo-aggregator/internal/config"
	"github.com/foaggregator/fo-aggregator/internal/domain"
	"github.com/foaggregator/fo-aggregator/internal/errs"
	"github.com/foaggregator/fo-aggregator/internal/store"
)

// Surface is the C8 query surface.
type Surface struct {
	store *store.Store
	cache *cache.Cache
	ttl   config.CacheTTLs
	log   zerolog.Logger
}

// New builds the query surface over st, cache-through ch, using ttl as
// the cache TTL matrix (§4.2). Zero-valued fields fall back to the
// spec's defaults (5s/5s/60s/60s) so callers that don't thread config
// still get working TTLs.
func New(st *store.Store, ch *cache.Cache, ttl config.CacheTTLs, log zerolog.Logger) *Surface {
	if ttl.Latest <= 0 {
		ttl.Latest = 5 * time.Second
	}
	if ttl.SeriesRecent <= 0 {
		ttl.SeriesRecent = 5 * time.Second
	}
	if ttl.SeriesHistorical <= 0 {
		ttl.SeriesHistorical = 60 * time.Second
	}
	if ttl.Static <= 0 {
		ttl.Static = 60 * time.Second
	}
	return &Surface{store: st, cache: ch, ttl: ttl, log: log.With().Str("component", "query").Logger()}
}

// Metadata is the envelope's metadata block.
type Metadata struct {
	CacheHit  bool    `json:"cache_hit"`
	ElapsedMs float64 `json:"elapsed_ms"`
}

// Envelope is the uniform response shape for every query operation
// (§4.8 "Contract").
type Envelope struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data"`
	Meta   Metadata    `json:"metadata"`
	Error  *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody carries a validation/unavailable error in the envelope.
type ErrorBody struct {
	Kind         string `json:"kind"`
	Message      string `json:"message"`
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"`
}

func errorEnvelope(err error, elapsedMs float64) Envelope {
	if apiErr, ok := err.(*errs.APIError); ok {
		return Envelope{
			Status: "error",
			Meta:   Metadata{ElapsedMs: elapsedMs},
			Error:  &ErrorBody{Kind: string(apiErr.Kind), Message: apiErr.Message, RetryAfterMs: apiErr.RetryAfterMs},
		}
	}
	return Envelope{
		Status: "error",
		Meta:   Metadata{ElapsedMs: elapsedMs},
		Error:  &ErrorBody{Kind: string(errs.KindUnavailable), Message: err.Error()},
	}
}

func okEnvelope(data interface{}, cacheHit bool, elapsedMs float64) Envelope {
	return Envelope{Status: "ok", Data: data, Meta: Metadata{CacheHit: cacheHit, ElapsedMs: elapsedMs}}
}

// DistributionRequest parameters for GetStrikeDistribution.
type DistributionRequest struct {
	Symbol     string
	Timeframe  domain.Timeframe
	Indicator  string
	Expiries   []time.Time
	StrikeMin  *float64
	StrikeMax  *float64
}

// GetStrikeDistribution returns the latest per-expiry strike snapshot,
// optionally filtered around a strike range, cache-through with a 5s
// TTL (§4.8).
func (s *Surface) GetStrikeDistribution(ctx context.Context, req DistributionRequest) Envelope {
	t := newTimer("strike_distribution", s.log)

	if req.Symbol == "" {
		return errorEnvelope(errs.NewValidationError("symbol is required"), t.elapsedMs())
	}
	if !validIndicator(req.Indicator) {
		return errorEnvelope(errs.NewValidationError("unknown indicator: "+req.Indicator), t.elapsedMs())
	}

	var strikeRange *store.StrikeRange
	if req.StrikeMin != nil && req.StrikeMax != nil {
		strikeRange = &store.StrikeRange{Min: *req.StrikeMin, Max: *req.StrikeMax}
	}

	key := cache.LatestKey(req.Symbol, req.Timeframe, req.Indicator, expiryToken(req.Expiries))
	raw, hit, err := s.cache.GetOrFetch(ctx, key, s.ttl.Latest, func(ctx context.Context) ([]byte, error) {
		rows, err := s.store.FetchLatestStrikes(ctx, req.Symbol, req.Timeframe, req.Expiries, strikeRange, nil)
		if err != nil {
			return nil, err
		}
		return json.Marshal(rows)
	})
	if err != nil {
		return errorEnvelope(wrapStoreErr(err), t.elapsedMs())
	}

	var rows []domain.StrikeBar
	if err := json.Unmarshal(raw, &rows); err != nil {
		return errorEnvelope(errs.ErrDecode, t.elapsedMs())
	}
	return okEnvelope(rows, hit, t.elapsedMs())
}

// SeriesRequest parameters for GetMoneynessSeries.
type SeriesRequest struct {
	Symbol     string
	Timeframe  domain.Timeframe
	Indicator  string
	Side       domain.OptionSide
	Expiries   []time.Time
	From, To   time.Time
}

// GetMoneynessSeries returns a time-bucketed series grouped by
// moneyness bucket and expiry (§4.8). from/to are rounded to the
// nearest 5 minutes for cache-key stability.
func (s *Surface) GetMoneynessSeries(ctx context.Context, req SeriesRequest) Envelope {
	t := newTimer("moneyness_series", s.log)

	if req.Symbol == "" || req.Indicator == "" {
		return errorEnvelope(errs.NewValidationError("symbol and indicator are required"), t.elapsedMs())
	}
	if !validIndicator(req.Indicator) {
		return errorEnvelope(errs.NewValidationError("unknown indicator: "+req.Indicator), t.elapsedMs())
	}

	from := roundTo5Min(req.From)
	to := roundTo5Min(req.To)
	ttl := seriesTTL(to, s.ttl.SeriesRecent, s.ttl.SeriesHistorical)

	key := cache.SeriesKey(req.Symbol, req.Timeframe, req.Indicator+":"+string(req.Side), expiryToken(req.Expiries), hashWindow(from, to))
	raw, hit, err := s.cache.GetOrFetch(ctx, key, ttl, func(ctx context.Context) ([]byte, error) {
		points, err := s.store.FetchStrikeSeries(ctx, req.Symbol, req.Timeframe, req.Expiries, req.Indicator, req.Side, from, to)
		if err != nil {
			return nil, err
		}
		return json.Marshal(points)
	})
	if err != nil {
		return errorEnvelope(wrapStoreErr(err), t.elapsedMs())
	}

	var points []store.SeriesPoint
	if err := json.Unmarshal(raw, &points); err != nil {
		return errorEnvelope(errs.ErrDecode, t.elapsedMs())
	}
	return okEnvelope(points, hit, t.elapsedMs())
}

// HistoryRequest parameters for GetStrikeHistory.
type HistoryRequest struct {
	Symbol    string
	Strike    float64
	Expiry    time.Time
	Timeframe domain.Timeframe
	From, To  time.Time
}

// GetStrikeHistory returns a per-strike candle-like series, cache-through
// with a 60s TTL (§4.8).
func (s *Surface) GetStrikeHistory(ctx context.Context, req HistoryRequest) Envelope {
	t := newTimer("strike_history", s.log)

	if req.Symbol == "" {
		return errorEnvelope(errs.NewValidationError("symbol is required"), t.elapsedMs())
	}

	key := cache.SeriesKey(req.Symbol, req.Timeframe, "history", expiryToken([]time.Time{req.Expiry}), hashWindow(req.From, req.To)) + ":" + floatKey(req.Strike)
	raw, hit, err := s.cache.GetOrFetch(ctx, key, s.ttl.SeriesHistorical, func(ctx context.Context) ([]byte, error) {
		rows, err := s.store.FetchStrikeHistory(ctx, req.Symbol, req.Strike, req.Expiry, req.Timeframe, req.From, req.To)
		if err != nil {
			return nil, err
		}
		return json.Marshal(rows)
	})
	if err != nil {
		return errorEnvelope(wrapStoreErr(err), t.elapsedMs())
	}

	var rows []domain.StrikeBar
	if err := json.Unmarshal(raw, &rows); err != nil {
		return errorEnvelope(errs.ErrDecode, t.elapsedMs())
	}
	return okEnvelope(rows, hit, t.elapsedMs())
}

func wrapStoreErr(err error) error {
	return errs.NewUnavailable(err.Error(), int64(1000))
}
