package backfill

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/foaggregator/fo-aggregator/internal/domain"
	"github.com/foaggregator/fo-aggregator/internal/historyapi"
	"github.com/foaggregator/fo-aggregator/internal/testutil"
)

func newFakeHistoryServer(t *testing.T, bars []historyapi.Bar) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Bars []historyapi.Bar `json:"bars"`
		}{Bars: bars})
	}))
}

func TestImmediateBackfillUpsertsAndIsIdempotent(t *testing.T) {
	st, cleanup := testutil.NewTestStore(t)
	defer cleanup()

	ts := time.Date(2025, 11, 6, 9, 15, 0, 0, time.UTC)
	srv := newFakeHistoryServer(t, []historyapi.Bar{
		{Timestamp: ts, Close: 120.5, Volume: 10, OpenInterest: 500},
	})
	defer srv.Close()

	client := historyapi.New(srv.URL, time.Second)
	engine := New(Config{NumWorkers: 1}, client, st, zerolog.Nop())

	expiry := time.Date(2025, 11, 6, 0, 0, 0, 0, time.UTC)
	strike := 24700.0
	side := domain.Call

	event := &domain.SubscriptionEvent{
		EventType:       domain.SubscriptionCreated,
		InstrumentToken: 1,
		Metadata: domain.SubscriptionMetadata{
			TradingSymbol: "NIFTY",
			Segment:       "NIFTY-OPT",
			Expiry:        &expiry,
			Strike:        &strike,
			OptionSide:    &side,
		},
		Timestamp: ts,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, engine.Start(ctx))
	defer engine.Stop()

	engine.HandleSubscriptionEvent(event)
	engine.HandleSubscriptionEvent(event) // duplicate immediate trigger, must stay idempotent

	require.Eventually(t, func() bool {
		rows, err := st.FetchStrikeHistory(ctx, "NIFTY", 24700.0, expiry, domain.Timeframe1Min,
			ts.Add(-time.Hour), ts.Add(time.Hour))
		return err == nil && len(rows) == 1
	}, time.Second, 10*time.Millisecond)

	rows, err := st.FetchStrikeHistory(ctx, "NIFTY", 24700.0, expiry, domain.Timeframe1Min,
		ts.Add(-time.Hour), ts.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 10.0, rows[0].CallVolume)
}

func TestSegmentClassification(t *testing.T) {
	require.Equal(t, segmentIndex, classifySegment("INDICES"))
	require.Equal(t, segmentFuture, classifySegment("NIFTY-FUT"))
	require.Equal(t, segmentOption, classifySegment("NIFTY-OPT"))
}
