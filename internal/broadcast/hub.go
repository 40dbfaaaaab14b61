// Package broadcast is the broadcast hub (C7): an in-process pub/sub
// fan-out of bucket snapshots to many concurrent subscribers, each with
// a bounded queue and a configurable slow-consumer policy. Grounded on
// the teacher's SSE handler (internal/server/events_stream.go): a
// per-connection bounded channel fed by a non-blocking select, dropping
// or evicting on overflow rather than blocking the publisher.
package broadcast

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/foaggregator/fo-aggregator/internal/config"
	"github.com/foaggregator/fo-aggregator/internal/domain"
)

// BucketMessage is the payload broadcast on every bucket flush
// (spec.md §4.7).
type BucketMessage struct {
	Type          string
	Symbol        string
	Expiry        time.Time
	Timeframe     domain.Timeframe
	BucketStart   time.Time
	Strikes       []domain.StrikeBar
	ExpiryMetrics *domain.ExpiryMetrics
}

// SubscriptionMessage relays a subscription lifecycle event for
// auditing consumers (spec.md §4.7).
type SubscriptionMessage struct {
	Type  string
	Event domain.SubscriptionEvent
}

// Filter narrows which messages a subscriber receives.
type Filter struct {
	Symbols     map[string]bool
	Expiries    map[string]bool
	StrikeMin   *float64
	StrikeMax   *float64
	Indicators  map[string]bool
}

// Match reports whether msg passes the filter on symbol, expiry and
// strike range. A nil/empty field means unfiltered on that dimension.
// Indicators is not consulted: a message is never filtered or trimmed
// by indicator set.
func (f Filter) Match(msg BucketMessage) bool {
	if len(f.Symbols) > 0 && !f.Symbols[msg.Symbol] {
		return false
	}
	if len(f.Expiries) > 0 && !f.Expiries[msg.Expiry.Format("2006-01-02")] {
		return false
	}
	if f.StrikeMin == nil && f.StrikeMax == nil {
		return true
	}
	for _, s := range msg.Strikes {
		if f.StrikeMin != nil && s.Strike < *f.StrikeMin {
			continue
		}
		if f.StrikeMax != nil && s.Strike > *f.StrikeMax {
			continue
		}
		return true
	}
	return false
}

// Subscriber is a live handle returned by Subscribe. Consumers read
// from C until they choose to Close it; the hub reclaims resources
// deterministically on Close (§4.7).
type Subscriber struct {
	ID     string
	C      <-chan BucketMessage
	hub    *Hub
	ch     chan BucketMessage
	filter Filter

	mu     sync.Mutex
	closed bool
}

// Close unregisters the subscriber and releases its channel.
func (s *Subscriber) Close() {
	s.hub.unregister(s)
}

// Hub is the C7 broadcast hub.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	policy      config.SlowConsumerPolicy
	bufferSize  int
	log         zerolog.Logger

	dropped int64
}

// New builds a hub. bufferSize is the per-subscriber bounded-queue
// depth (default 256); policy selects drop_subscriber or drop_oldest
// behavior on overflow.
func New(bufferSize int, policy config.SlowConsumerPolicy, log zerolog.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if policy == "" {
		policy = config.DropSubscriber
	}
	return &Hub{
		subscribers: make(map[string]*Subscriber),
		policy:      policy,
		bufferSize:  bufferSize,
		log:         log.With().Str("component", "broadcast_hub").Logger(),
	}
}

// Subscribe registers a new subscriber with the given filter and
// returns its handle. Registration/deregistration hold the hub lock for
// O(1) only; delivery never holds it across a channel send (§5
// "Shared-resource policy").
func (h *Hub) Subscribe(filter Filter) *Subscriber {
	ch := make(chan BucketMessage, h.bufferSize)
	sub := &Subscriber{ID: uuid.NewString(), C: ch, hub: h, ch: ch, filter: filter}

	h.mu.Lock()
	h.subscribers[sub.ID] = sub
	h.mu.Unlock()

	return sub
}

func (h *Hub) unregister(sub *Subscriber) {
	h.mu.Lock()
	_, ok := h.subscribers[sub.ID]
	delete(h.subscribers, sub.ID)
	h.mu.Unlock()

	if !ok {
		return
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

// Broadcast delivers msg to every live subscriber whose filter matches.
// A subscriber whose queue is full is handled per the configured
// slow-consumer policy.
func (h *Hub) Broadcast(msg BucketMessage) {
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.subscribers))
	for _, s := range h.subscribers {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if !sub.filter.Match(msg) {
			continue
		}
		h.deliver(sub, msg)
	}
}

func (h *Hub) deliver(sub *Subscriber, msg BucketMessage) {
	select {
	case sub.ch <- msg:
		return
	default:
	}

	switch h.policy {
	case config.DropOldest:
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- msg:
		default:
		}
		h.recordDrop("slow")
	default: // DropSubscriber
		h.recordDrop("slow")
		h.unregister(sub)
		h.log.Warn().Str("subscriber_id", sub.ID).Msg("subscriber closed: queue full")
	}
}

func (h *Hub) recordDrop(reason string) {
	h.mu.Lock()
	h.dropped++
	h.mu.Unlock()
	h.log.Debug().Str("reason", reason).Msg("broadcast_dropped_total incremented")
}

// DroppedTotal reports the cumulative broadcast_dropped_total counter
// for the health surface (scenario 6).
func (h *Hub) DroppedTotal() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// SubscriberCount reports the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
