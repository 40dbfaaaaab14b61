package ingest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/foaggregator/fo-aggregator/internal/domain"
)

// TickSink receives decoded option ticks and underlying bars, dispatched
// for aggregation.
type TickSink interface {
	IngestTick(*domain.Tick)
	IngestUnderlying(*domain.UnderlyingBar)
}

// EventSink receives decoded subscription lifecycle events.
type EventSink interface {
	HandleSubscriptionEvent(*domain.SubscriptionEvent)
}

// Config configures the three logical channel URLs and buffer depth.
type Config struct {
	OptionsURL    string
	UnderlyingURL string
	EventsURL     string
	BufferSize    int
}

// Consumer is the C5 pub/sub consumer: one bounded buffer plus dispatch
// loop per logical channel (options/underlying/events).
type Consumer struct {
	cfg       Config
	ticks     TickSink
	events    EventSink
	log       zerolog.Logger

	optionsBuf    *ringBuffer
	underlyingBuf *ringBuffer
	eventsBuf     *ringBuffer

	decodeErrors   int64
	validationDrop int64

	wg sync.WaitGroup
}

// New builds the consumer against its downstream sinks.
func New(cfg Config, ticks TickSink, events EventSink, log zerolog.Logger) *Consumer {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	return &Consumer{
		cfg:           cfg,
		ticks:         ticks,
		events:        events,
		log:           log.With().Str("component", "ingest").Logger(),
		optionsBuf:    newRingBuffer(cfg.BufferSize),
		underlyingBuf: newRingBuffer(cfg.BufferSize),
		eventsBuf:     newRingBuffer(cfg.BufferSize),
	}
}

// Start dials all three channels and runs their dispatch loops until ctx
// is cancelled.
func (c *Consumer) Start(ctx context.Context) {
	options := newChannelSocket(c.cfg.OptionsURL, c.log, func(raw []byte) { c.optionsBuf.push(raw) })
	underlying := newChannelSocket(c.cfg.UnderlyingURL, c.log, func(raw []byte) { c.underlyingBuf.push(raw) })
	events := newChannelSocket(c.cfg.EventsURL, c.log, func(raw []byte) { c.eventsBuf.push(raw) })

	for _, fn := range []func(context.Context){
		options.run, underlying.run, events.run,
		c.dispatchOptions, c.dispatchUnderlying, c.dispatchEvents,
	} {
		c.wg.Add(1)
		go func(f func(context.Context)) {
			defer c.wg.Done()
			f(ctx)
		}(fn)
	}
}

// Stop waits for every channel goroutine to observe ctx cancellation and
// exit.
func (c *Consumer) Stop() { c.wg.Wait() }

func (c *Consumer) dispatchOptions(ctx context.Context) {
	for {
		raw, ok := c.optionsBuf.pop(ctx)
		if !ok {
			return
		}
		tick, err := decodeTick(raw)
		if err != nil {
			c.countError(err)
			continue
		}
		c.ticks.IngestTick(tick)
	}
}

func (c *Consumer) dispatchUnderlying(ctx context.Context) {
	for {
		raw, ok := c.underlyingBuf.pop(ctx)
		if !ok {
			return
		}
		bar, err := decodeUnderlying(raw)
		if err != nil {
			c.countError(err)
			continue
		}
		c.ticks.IngestUnderlying(bar)
	}
}

func (c *Consumer) dispatchEvents(ctx context.Context) {
	for {
		raw, ok := c.eventsBuf.pop(ctx)
		if !ok {
			return
		}
		event, err := decodeEvent(raw)
		if err != nil {
			c.countError(err)
			continue
		}
		c.events.HandleSubscriptionEvent(event)
	}
}

func (c *Consumer) countError(err error) {
	atomic.AddInt64(&c.decodeErrors, 1)
	c.log.Debug().Err(err).Msg("dropped unparseable message")
}

// Health reports decode-error and loss counters for the health surface.
func (c *Consumer) Health() Counters {
	return Counters{
		DecodeErrors:      atomic.LoadInt64(&c.decodeErrors),
		OptionsLoss:       c.optionsBuf.lossCount(),
		UnderlyingLoss:    c.underlyingBuf.lossCount(),
		EventsLoss:        c.eventsBuf.lossCount(),
	}
}

// Counters is the health snapshot for the ingest consumer.
type Counters struct {
	DecodeErrors   int64
	OptionsLoss    int64
	UnderlyingLoss int64
	EventsLoss     int64
}
