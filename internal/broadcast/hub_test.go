package broadcast_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/foaggregator/fo-aggregator/internal/broadcast"
	"github.com/foaggregator/fo-aggregator/internal/config"
)

func TestSlowSubscriberIsDroppedUnderDropSubscriberPolicy(t *testing.T) {
	hub := broadcast.New(4, config.DropSubscriber, zerolog.Nop())
	slow := hub.Subscribe(broadcast.Filter{})
	fast := hub.Subscribe(broadcast.Filter{})

	// fast reads each message as it arrives; slow never reads, so its
	// 4-deep queue fills and the fifth broadcast drops it.
	drained := 0
	for i := 0; i < 10; i++ {
		hub.Broadcast(broadcast.BucketMessage{Type: "bucket", Symbol: "NIFTY"})
		<-fast.C
		drained++
	}

	require.Equal(t, 1, hub.SubscriberCount())
	require.GreaterOrEqual(t, hub.DroppedTotal(), int64(1))

	// the 4 messages queued before the drop are still readable; after
	// them the channel reports closed.
	for i := 0; i < 4; i++ {
		<-slow.C
	}
	_, stillOpen := <-slow.C
	require.False(t, stillOpen)

	require.Equal(t, 10, drained)
}

func TestFilterMatchBySymbol(t *testing.T) {
	f := broadcast.Filter{Symbols: map[string]bool{"NIFTY": true}}
	require.True(t, f.Match(broadcast.BucketMessage{Symbol: "NIFTY"}))
	require.False(t, f.Match(broadcast.BucketMessage{Symbol: "BANKNIFTY"}))
}
