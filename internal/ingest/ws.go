package ingest

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

// Reconnect backoff constants, grounded on the teacher's
// websocket_client.go (baseReconnectDelay/maxReconnectDelay/
// maxReconnectAttempts).
const (
	baseReconnectDelay  = 2 * time.Second
	maxReconnectDelay   = 1 * time.Minute
	maxReconnectAttempts = 0 // 0 = unbounded; consumer is long-lived
)

// channelSocket holds one logical pub/sub channel's WS connection and
// feeds decoded raw frames to onMessage.
type channelSocket struct {
	url        string
	httpClient *http.Client
	log        zerolog.Logger
	onMessage  func(raw []byte)
}

// newHTTP1Client forces HTTP/1.1 ALPN, matching the teacher's Cloudflare-
// WS workaround (createHTTP1Client) for upstream pub/sub gateways that
// sit behind the same kind of proxy.
func newHTTP1Client() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{NextProtos: []string{"http/1.1"}},
			DialContext:     (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
		},
		Timeout: 30 * time.Second,
	}
}

func newChannelSocket(url string, log zerolog.Logger, onMessage func(raw []byte)) *channelSocket {
	return &channelSocket{url: url, httpClient: newHTTP1Client(), log: log, onMessage: onMessage}
}

// run dials and reads until ctx is cancelled, reconnecting with bounded
// exponential backoff on every read/dial failure.
func (c *channelSocket) run(ctx context.Context) {
	delay := baseReconnectDelay
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.connectAndRead(ctx); err != nil {
			c.log.Warn().Err(err).Str("url", c.url).Dur("retry_in", delay).Msg("channel socket disconnected")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (c *channelSocket) connectAndRead(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{HTTPClient: c.httpClient})
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "shutting down")

	for {
		readCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		_, raw, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			return err
		}
		c.onMessage(raw)
	}
}
