package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/foaggregator/fo-aggregator/internal/broadcast"
)

// handleBucketStream upgrades to a WebSocket and pushes every broadcast
// hub message matching the connection's filter (spec.md §4.7) until the
// client disconnects or the server shuts down.
func (s *Server) handleBucketStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.CloseNow()

	filter := parseFilter(r)
	sub := s.hub.Subscribe(filter)
	defer sub.Close()

	ctx := conn.CloseRead(r.Context())

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "subscriber closed")
				return
			}
			writeCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			err := wsjson.Write(writeCtx, conn, msg)
			cancel()
			if err != nil {
				s.log.Debug().Err(err).Msg("websocket write failed, closing")
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func parseFilter(r *http.Request) broadcast.Filter {
	q := r.URL.Query()
	filter := broadcast.Filter{}

	if raw := q.Get("symbols"); raw != "" {
		filter.Symbols = toSet(raw)
	}
	if raw := q.Get("expiries"); raw != "" {
		filter.Expiries = toSet(raw)
	}
	if v := q.Get("strike_min"); v != "" {
		if f, ok := parseFloatPtr(v); ok {
			filter.StrikeMin = f
		}
	}
	if v := q.Get("strike_max"); v != "" {
		if f, ok := parseFloatPtr(v); ok {
			filter.StrikeMax = f
		}
	}
	return filter
}

func toSet(raw string) map[string]bool {
	parts := strings.Split(raw, ",")
	out := make(map[string]bool, len(parts))
	for _, p := range parts {
		out[strings.TrimSpace(p)] = true
	}
	return out
}

func parseFloatPtr(v string) (*float64, bool) {
	var f float64
	if err := json.Unmarshal([]byte(v), &f); err != nil {
		return nil, false
	}
	return &f, true
}
