package server

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/foaggregator/fo-aggregator/internal/broadcast"
)

// TestBucketStreamPushesMatchingMessages dials the /bucket-stream
// endpoint over a real websocket connection and asserts a broadcast
// bucket message for a subscribed symbol arrives, while one for an
// unsubscribed symbol does not (§4.7 filtering).
func TestBucketStreamPushesMatchingMessages(t *testing.T) {
	s := newTestServer(t)
	httpSrv := httptest.NewServer(s.router)
	defer httpSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/bucket-stream?symbols=NIFTY"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// give the handler a moment to register the subscription before
	// publishing, since Subscribe happens asynchronously relative to Dial.
	require.Eventually(t, func() bool { return s.hub.SubscriberCount() > 0 }, time.Second, 10*time.Millisecond)

	s.hub.Broadcast(broadcast.BucketMessage{Type: "bucket", Symbol: "BANKNIFTY"})
	s.hub.Broadcast(broadcast.BucketMessage{Type: "bucket", Symbol: "NIFTY"})

	var msg broadcast.BucketMessage
	readCtx, readCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer readCancel()
	require.NoError(t, wsjson.Read(readCtx, conn, &msg))
	require.Equal(t, "NIFTY", msg.Symbol)
}
