package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/foaggregator/fo-aggregator/internal/domain"
	"github.com/foaggregator/fo-aggregator/internal/query"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.cache.Stats()
	total := stats.Hits + stats.Misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total)
	}
	s.writeJSON(w, http.StatusOK, s.health.Snapshot(hitRate))
}

func (s *Server) handleStrikeDistribution(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := query.DistributionRequest{
		Symbol:    q.Get("symbol"),
		Timeframe: domain.Timeframe(orDefault(q.Get("timeframe"), string(domain.Timeframe1Min))),
		Indicator: orDefault(q.Get("indicator"), "iv"),
		Expiries:  parseExpiries(q.Get("expiries")),
	}
	if v := q.Get("strike_min"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			req.StrikeMin = &f
		}
	}
	if v := q.Get("strike_max"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			req.StrikeMax = &f
		}
	}

	env := s.query.GetStrikeDistribution(r.Context(), req)
	s.writeJSON(w, statusFor(env), env)
}

func (s *Server) handleMoneynessSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	side := domain.Call
	if strings.EqualFold(q.Get("side"), "put") {
		side = domain.Put
	}

	req := query.SeriesRequest{
		Symbol:    q.Get("symbol"),
		Timeframe: domain.Timeframe(orDefault(q.Get("timeframe"), string(domain.Timeframe1Min))),
		Indicator: q.Get("indicator"),
		Side:      side,
		Expiries:  parseExpiries(q.Get("expiries")),
		From:      parseUnix(q.Get("from"), time.Now().Add(-time.Hour)),
		To:        parseUnix(q.Get("to"), time.Now()),
	}

	env := s.query.GetMoneynessSeries(r.Context(), req)
	s.writeJSON(w, statusFor(env), env)
}

func (s *Server) handleStrikeHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	strike, _ := strconv.ParseFloat(q.Get("strike"), 64)
	expiry, _ := time.Parse("2006-01-02", q.Get("expiry"))

	req := query.HistoryRequest{
		Symbol:    q.Get("symbol"),
		Strike:    strike,
		Expiry:    expiry,
		Timeframe: domain.Timeframe(orDefault(q.Get("timeframe"), string(domain.Timeframe1Min))),
		From:      parseUnix(q.Get("from"), time.Now().Add(-24*time.Hour)),
		To:        parseUnix(q.Get("to"), time.Now()),
	}

	env := s.query.GetStrikeHistory(r.Context(), req)
	s.writeJSON(w, statusFor(env), env)
}

func statusFor(env query.Envelope) int {
	if env.Error == nil {
		return http.StatusOK
	}
	switch env.Error.Kind {
	case "validation_error":
		return http.StatusBadRequest
	case "service_unavailable":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func parseExpiries(raw string) []time.Time {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]time.Time, 0, len(parts))
	for _, p := range parts {
		if t, err := time.Parse("2006-01-02", strings.TrimSpace(p)); err == nil {
			out = append(out, t)
		}
	}
	return out
}

func parseUnix(raw string, def time.Time) time.Time {
	if raw == "" {
		return def
	}
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return time.Unix(sec, 0).UTC()
}
