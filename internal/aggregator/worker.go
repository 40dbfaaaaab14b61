package aggregator

import (
	"context"
	"time"

	"github.com/foaggregator/fo-aggregator/internal/domain"
)

type tickJob struct {
	tick      *domain.Tick
	timeframe domain.Timeframe
}

type underlyingJob struct {
	bar *domain.UnderlyingBar
}

// worker owns a disjoint partition of bucket keys (§4.3 "Concurrency
// contract"): its run loop is single-threaded, so the bucket map below
// needs no lock.
type worker struct {
	id      int
	agg     *Aggregator
	in      chan interface{}
	buckets map[domain.StrikeKey]*domain.StrikeBucket
	// retryQueue holds keys whose last flush attempt failed with a
	// transient store error, for retry on the next scan tick — mirrors
	// the teacher's work.Processor retryQueue.
	retryQueue map[domain.StrikeKey]time.Time
}

func newWorker(id int, agg *Aggregator) *worker {
	return &worker{
		id:         id,
		agg:        agg,
		in:         make(chan interface{}, 4096),
		buckets:    make(map[domain.StrikeKey]*domain.StrikeBucket),
		retryQueue: make(map[domain.StrikeKey]time.Time),
	}
}

// submit enqueues a job for this worker. Non-blocking send with a
// bounded buffer backs the per-channel backpressure policy in §5.
func (w *worker) submit(job interface{}) {
	select {
	case w.in <- job:
	default:
		w.agg.log.Warn().Int("worker", w.id).Msg("worker queue full, dropping job")
	}
}

func (w *worker) run(ctx context.Context) {
	scanTicker := time.NewTicker(time.Second)
	defer scanTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.flushAllOnShutdown(context.Background())
			return
		case <-w.agg.stop:
			w.flushAllOnShutdown(context.Background())
			return
		case job := <-w.in:
			w.handle(ctx, job)
		case <-scanTicker.C:
			w.scanAndFlush(ctx)
		}
	}
}

func (w *worker) handle(ctx context.Context, job interface{}) {
	switch j := job.(type) {
	case tickJob:
		w.ingestTick(j.tick, j.timeframe)
	case underlyingJob:
		w.ingestUnderlying(j.bar)
	}
}

// ingestTick folds one tick into its bucket's state (§4.3 "Ingest").
func (w *worker) ingestTick(t *domain.Tick, tf domain.Timeframe) {
	bucketStart := tf.BucketStart(t.Timestamp)
	key := domain.StrikeKey{
		BucketKey: domain.BucketKey{
			Symbol:      t.Instrument.Symbol,
			Expiry:      t.Instrument.Expiry,
			Timeframe:   tf,
			BucketStart: bucketStart,
		},
		Strike: t.Instrument.Strike,
	}

	b, ok := w.buckets[key]
	if !ok {
		b = domain.NewStrikeBucket(key)
		w.buckets[key] = b
	}

	switch t.Instrument.Side {
	case domain.Call:
		b.Call.Add(t, 1)
	case domain.Put:
		b.Put.Add(t, 1)
	}
	b.LastTouch = time.Now()

	if t.Depth != nil {
		if b.Liquidity == nil {
			b.Liquidity = domain.NewLiquiditySummary()
		}
		foldDepth(b.Liquidity, t.Depth)
	}
}

// ingestUnderlying updates underlying_close on every live bucket for the
// bar's symbol to the latest observed sample (§4.3 step 5).
func (w *worker) ingestUnderlying(bar *domain.UnderlyingBar) {
	for key, b := range w.buckets {
		if key.Symbol == bar.Symbol {
			close := bar.Close
			b.UnderlyingClose = &close
		}
	}
}

// scanAndFlush flushes every bucket past its grace deadline, and retries
// any bucket that previously failed with a transient store error once its
// backoff deadline has passed.
func (w *worker) scanAndFlush(ctx context.Context) {
	now := time.Now()
	for key, b := range w.buckets {
		if until, pending := w.retryQueue[key]; pending {
			if now.After(until) {
				w.flushBucket(ctx, key, b)
			}
			continue
		}
		bucketEnd := key.BucketStart.Add(key.Timeframe.Duration())
		if now.After(bucketEnd.Add(w.agg.cfg.Grace)) {
			w.flushBucket(ctx, key, b)
		}
	}
}

// flushAllOnShutdown makes a best-effort flush of every completed bucket
// on cooperative shutdown; incomplete (not-yet-due) buckets may be
// dropped per spec.md §5 "Cancellation".
func (w *worker) flushAllOnShutdown(ctx context.Context) {
	now := time.Now()
	for key, b := range w.buckets {
		bucketEnd := key.BucketStart.Add(key.Timeframe.Duration())
		if now.After(bucketEnd) {
			w.flushBucket(ctx, key, b)
		}
	}
}
