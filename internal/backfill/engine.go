// Package backfill is the backfill engine (C6): scheduled gap detection
// plus subscription-event-triggered immediate backfill, writing through
// the same idempotent upsert path as live aggregation. Cadence dispatch
// is grounded on the teacher's internal/queue/scheduler.go; the
// fire-and-forget immediate mode is grounded on internal/work/
// processor.go's ExecuteNow.
package backfill

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/foaggregator/fo-aggregator/internal/domain"
	"github.com/foaggregator/fo-aggregator/internal/historyapi"
	"github.com/foaggregator/fo-aggregator/internal/store"
)

// Config controls cadence, windows, and worker pool size.
type Config struct {
	WindowHours     int
	GapThreshold    time.Duration
	NumWorkers      int
	Timeframe       domain.Timeframe
}

// Engine is the C6 backfill engine.
type Engine struct {
	cfg     Config
	history *historyapi.Client
	store   *store.Store
	log     zerolog.Logger

	registry *registry
	tasks    chan task
	cron     *cron.Cron

	inFlightMu sync.Mutex
	inFlight   map[string]bool

	wg sync.WaitGroup
}

type task struct {
	id         string
	instrument InstrumentRef
	from, to   time.Time
}

// New builds the engine.
func New(cfg Config, history *historyapi.Client, st *store.Store, log zerolog.Logger) *Engine {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 4
	}
	if cfg.WindowHours <= 0 {
		cfg.WindowHours = 2
	}
	if cfg.GapThreshold <= 0 {
		cfg.GapThreshold = 2 * time.Minute
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = domain.Timeframe1Min
	}

	return &Engine{
		cfg:      cfg,
		history:  history,
		store:    st,
		log:      log.With().Str("component", "backfill").Logger(),
		registry: newRegistry(),
		tasks:    make(chan task, 1024),
		cron:     cron.New(),
		inFlight: make(map[string]bool),
	}
}

// Start launches the worker pool and the scheduled-mode cron job.
func (e *Engine) Start(ctx context.Context) error {
	for i := 0; i < e.cfg.NumWorkers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.runWorker(ctx)
		}()
	}

	_, err := e.cron.AddFunc("@every 5m", func() { e.runScheduledScan(ctx) })
	if err != nil {
		return err
	}
	e.cron.Start()
	return nil
}

// Stop halts the cron scheduler and drains the worker pool.
func (e *Engine) Stop() {
	stopCtx := e.cron.Stop()
	<-stopCtx.Done()
	close(e.tasks)
	e.wg.Wait()
}

// HandleSubscriptionEvent implements ingest.EventSink: on
// subscription_created it tracks the instrument and fires an immediate,
// non-blocking backfill task (§4.6 "Immediate"); on removal it untracks.
func (e *Engine) HandleSubscriptionEvent(event *domain.SubscriptionEvent) {
	if event.IsRemoval() {
		e.registry.remove(event.InstrumentToken)
		return
	}
	if event.EventType != domain.SubscriptionCreated {
		return
	}

	inst := InstrumentRef{
		Token:      event.InstrumentToken,
		Symbol:     event.Metadata.TradingSymbol,
		Segment:    event.Metadata.Segment,
		Expiry:     event.Metadata.Expiry,
		Strike:     event.Metadata.Strike,
		OptionSide: event.Metadata.OptionSide,
	}
	e.registry.upsert(inst)

	now := time.Now().UTC()
	from := now.Add(-time.Duration(e.cfg.WindowHours) * time.Hour)
	e.enqueue(task{id: uuid.NewString(), instrument: inst, from: from, to: now})
}

func (e *Engine) enqueue(t task) {
	select {
	case e.tasks <- t:
	default:
		e.log.Warn().Str("task_id", t.id).Msg("backfill task queue full, dropping")
	}
}

// runScheduledScan detects, for every tracked instrument, whether the
// gap since its latest persisted bucket exceeds the configured
// threshold, and enqueues a windowed fetch if so (§4.6 "Scheduled").
func (e *Engine) runScheduledScan(ctx context.Context) {
	now := time.Now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	for _, inst := range e.registry.all() {
		latest, err := e.store.LatestBucket(ctx, inst.Symbol, e.cfg.Timeframe)
		if err != nil {
			e.log.Warn().Err(err).Str("symbol", inst.Symbol).Msg("gap detector: LatestBucket failed")
			continue
		}
		baseline := latest
		if baseline.Before(startOfDay) {
			baseline = startOfDay
		}
		gap := now.Sub(baseline)
		if gap > e.cfg.GapThreshold {
			e.enqueue(task{id: uuid.NewString(), instrument: inst, from: baseline, to: now})
		}
	}
}

func (e *Engine) runWorker(ctx context.Context) {
	for t := range e.tasks {
		if e.markInFlight(t) {
			e.execute(ctx, t)
			e.clearInFlight(t)
		}
	}
}

// dedupeKey coalesces duplicate concurrent requests for the same
// (instrument, window) — P8 idempotence is additionally guaranteed by
// the upsert path itself, this just avoids redundant upstream fetches.
func dedupeKey(t task) string {
	return t.instrument.Symbol + "|" + t.from.String() + "|" + t.to.String()
}

func (e *Engine) markInFlight(t task) bool {
	e.inFlightMu.Lock()
	defer e.inFlightMu.Unlock()
	key := dedupeKey(t)
	if e.inFlight[key] {
		return false
	}
	e.inFlight[key] = true
	return true
}

func (e *Engine) clearInFlight(t task) {
	e.inFlightMu.Lock()
	delete(e.inFlight, dedupeKey(t))
	e.inFlightMu.Unlock()
}

func (e *Engine) execute(ctx context.Context, t task) {
	interval := historyapi.Interval(e.cfg.Timeframe)
	bars, err := e.history.FetchBars(ctx, t.instrument.Token, t.from, t.to, interval)
	if err != nil {
		e.log.Warn().Err(err).Str("task_id", t.id).Str("symbol", t.instrument.Symbol).
			Msg("history fetch failed, abandoning task; next scheduled tick will retry")
		return
	}

	rows := convertBars(t.instrument, e.cfg.Timeframe, bars)
	if len(rows) == 0 {
		return
	}
	if err := e.store.UpsertStrikeBars(ctx, rows); err != nil {
		e.log.Warn().Err(err).Str("task_id", t.id).Msg("backfill upsert failed")
		return
	}
	e.log.Info().Str("task_id", t.id).Str("symbol", t.instrument.Symbol).Int("rows", len(rows)).Msg("backfill task completed")
}
