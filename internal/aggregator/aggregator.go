// Package aggregator is the bucket aggregator (C3): partitioned
// per-(symbol,expiry,strike,timeframe) sliding state, weighted Greek
// averaging, mock filtering, and flush-on-rollover persistence. Worker
// lifecycle (ticker-driven Start/stop/wg goroutines) is grounded on the
// teacher's internal/queue/scheduler.go; the trigger/retry shape is
// grounded on internal/work/processor.go.
package aggregator

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/foaggregator/fo-aggregator/internal/broadcast"
	"github.com/foaggregator/fo-aggregator/internal/cache"
	"github.com/foaggregator/fo-aggregator/internal/domain"
	"github.com/foaggregator/fo-aggregator/internal/eventbus"
	"github.com/foaggregator/fo-aggregator/internal/store"
)

// Config carries the knobs the aggregator needs from the resolved
// top-level config (spec.md §6).
type Config struct {
	NumWorkers int
	StrikeGap  map[string]int // per symbol; default applied if absent
	Grace      time.Duration
	Timeframes []domain.Timeframe
}

func (c Config) gapFor(symbol string) int {
	if g, ok := c.StrikeGap[symbol]; ok && g > 0 {
		return g
	}
	return 50
}

// Aggregator owns the sharded pool of bucket workers and the flush
// scheduler.
type Aggregator struct {
	cfg     Config
	store   *store.Store
	cache   *cache.Cache
	hub     *broadcast.Hub
	bus     *eventbus.Bus
	log     zerolog.Logger
	workers []*worker

	stop chan struct{}
	wg   sync.WaitGroup
}

// New wires the aggregator against its downstream collaborators. All
// are accepted as dependencies per the teacher's no-singletons
// convention (spec.md §9).
func New(cfg Config, st *store.Store, ch *cache.Cache, hub *broadcast.Hub, bus *eventbus.Bus, log zerolog.Logger) *Aggregator {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 4
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 15 * time.Second
	}
	if len(cfg.Timeframes) == 0 {
		cfg.Timeframes = []domain.Timeframe{domain.Timeframe1Min}
	}

	a := &Aggregator{
		cfg:   cfg,
		store: st,
		cache: ch,
		hub:   hub,
		bus:   bus,
		log:   log.With().Str("component", "aggregator").Logger(),
		stop:  make(chan struct{}),
	}

	a.workers = make([]*worker, cfg.NumWorkers)
	for i := 0; i < cfg.NumWorkers; i++ {
		a.workers[i] = newWorker(i, a)
	}
	return a
}

// Start launches every worker goroutine. ctx cancellation triggers
// cooperative shutdown per spec.md §5 "Cancellation".
func (a *Aggregator) Start(ctx context.Context) {
	for _, w := range a.workers {
		a.wg.Add(1)
		go func(w *worker) {
			defer a.wg.Done()
			w.run(ctx)
		}(w)
	}
}

// Stop signals every worker to flush remaining completed buckets and
// exit, then blocks until they do.
func (a *Aggregator) Stop() {
	close(a.stop)
	a.wg.Wait()
}

// IngestTick routes a decoded option tick to the worker that owns its
// (symbol,expiry,strike) partition, for every configured timeframe, so
// that I2's exactly-one-writer invariant holds (§4.3 "Concurrency
// contract").
func (a *Aggregator) IngestTick(tick *domain.Tick) {
	if tick.IsMock {
		// I1: mock ticks never reach bucket state.
		return
	}
	for _, tf := range a.cfg.Timeframes {
		w := a.workerFor(tick.Instrument.Symbol, tick.Instrument.Expiry, tick.Instrument.Strike)
		w.submit(tickJob{tick: tick, timeframe: tf})
	}
}

// IngestUnderlying updates underlying_close for every in-flight bucket
// of the given symbol across all its live strikes. Dispatched to every
// worker since the underlying touches every strike partition.
func (a *Aggregator) IngestUnderlying(bar *domain.UnderlyingBar) {
	if bar.IsMock {
		return
	}
	for _, w := range a.workers {
		w.submit(underlyingJob{bar: bar})
	}
}

func (a *Aggregator) workerFor(symbol string, expiry time.Time, strike float64) *worker {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	h.Write([]byte(expiry.Format("2006-01-02")))
	h.Write([]byte(strconv.FormatFloat(strike, 'f', -1, 64)))
	idx := int(h.Sum64() % uint64(len(a.workers)))
	return a.workers[idx]
}
