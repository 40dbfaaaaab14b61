// Package eventbus is the in-process typed publish/subscribe bus used
// for operational signaling between components (the aggregator emits
// bucket flushed, expiry metrics ready and store alert; BackfillCompleted
// and SubscriptionRelayed are defined but no component emits them). It
// generalizes the teacher's
// events.Manager/Event shape; the concrete Bus type itself was never
// present in the retrieved teacher source, so it is designed fresh here
// against the Manager.Emit / subscribe-handler call shape observed in
// the teacher's SSE stream handler.
package eventbus

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Type identifies the kind of event flowing through the bus.
type Type string

const (
	BucketFlushed       Type = "bucket_flushed"
	ExpiryMetricsReady  Type = "expiry_metrics_ready"
	StoreAlert          Type = "store_alert"
	BackfillCompleted   Type = "backfill_completed"
	SubscriptionRelayed Type = "subscription_relayed"
)

// Event is one bus message. Data carries the typed payload relevant to
// Type; handlers type-assert the field they expect.
type Event struct {
	Type      Type
	Module    string
	Timestamp time.Time
	Data      interface{}
}

// Handler receives events for the types it subscribed to. Handlers must
// not block — slow handlers are the caller's responsibility, mirroring
// the teacher's non-blocking-select convention at the subscriber edge.
type Handler func(*Event)

// Bus is a mutex-guarded fan-out registry: Emit calls every handler
// registered for the event's Type synchronously, in registration order.
// It has no delivery queue of its own; the broadcast hub (C7) keeps its
// bounded per-subscriber queues separately and does not go through the bus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	log      zerolog.Logger
}

// New returns an empty bus.
func New(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[Type][]Handler),
		log:      log.With().Str("component", "eventbus").Logger(),
	}
}

// Subscribe registers handler for eventType. Returns nothing to
// unsubscribe with; the bus's subscribers are long-lived components
// wired once at the composition root, not per-request.
func (b *Bus) Subscribe(eventType Type, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Emit constructs an Event and dispatches it to every subscriber of its
// type, logging at debug per the teacher's Manager.Emit convention.
func (b *Bus) Emit(eventType Type, module string, data interface{}) {
	event := &Event{Type: eventType, Module: module, Timestamp: time.Now(), Data: data}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[eventType]...)
	b.mu.RUnlock()

	b.log.Debug().Str("event_type", string(eventType)).Str("module", module).Msg("event emitted")
	for _, h := range handlers {
		h(event)
	}
}
