package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/foaggregator/fo-aggregator/internal/broadcast"
	"github.com/foaggregator/fo-aggregator/internal/cache"
	"github.com/foaggregator/fo-aggregator/internal/config"
	"github.com/foaggregator/fo-aggregator/internal/healthmetrics"
	"github.com/foaggregator/fo-aggregator/internal/query"
	"github.com/foaggregator/fo-aggregator/internal/testutil"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, cleanup := testutil.NewTestStore(t)
	t.Cleanup(cleanup)

	ch, err := cache.New(cache.Config{L1MaxEntries: 100, L1MaxBytes: 1 << 20}, zerolog.Nop())
	require.NoError(t, err)

	q := query.New(st, ch, config.CacheTTLs{}, zerolog.Nop())
	hub := broadcast.New(8, config.DropSubscriber, zerolog.Nop())
	health := healthmetrics.New()

	return New(Config{Port: 0, DevMode: true}, q, hub, ch, health, zerolog.Nop())
}

func TestHealthEndpointReturnsOK(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStrikeDistributionValidatesSymbol(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/strike-distribution", nil)
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStrikeDistributionUnknownSymbolIsEmptyOK(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/strike-distribution?symbol=NIFTY", nil)
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
