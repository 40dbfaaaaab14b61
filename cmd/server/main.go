// Command server is the composition root for the options F&O real-time
// aggregation pipeline: it wires config, storage, cache, aggregation,
// ingest, backfill, archival, and the HTTP/WS surface, then runs until a
// shutdown signal arrives. Startup/shutdown sequencing is grounded on
// the teacher's cmd/server/main.go (load config -> init logger -> wire
// dependencies -> start server goroutine -> wait on signal -> cancel
// contexts -> bounded Shutdown).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foaggregator/fo-aggregator/internal/aggregator"
	"github.com/foaggregator/fo-aggregator/internal/backfill"
	"github.com/foaggregator/fo-aggregator/internal/broadcast"
	"github.com/foaggregator/fo-aggregator/internal/cache"
	"github.com/foaggregator/fo-aggregator/internal/config"
	"github.com/foaggregator/fo-aggregator/internal/domain"
	"github.com/foaggregator/fo-aggregator/internal/eventbus"
	"github.com/foaggregator/fo-aggregator/internal/healthmetrics"
	"github.com/foaggregator/fo-aggregator/internal/historyapi"
	"github.com/foaggregator/fo-aggregator/internal/ingest"
	"github.com/foaggregator/fo-aggregator/internal/query"
	"github.com/foaggregator/fo-aggregator/internal/reliability"
	"github.com/foaggregator/fo-aggregator/internal/server"
	"github.com/foaggregator/fo-aggregator/internal/store"
	"github.com/foaggregator/fo-aggregator/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.Pretty})
	log.Info().Msg("starting fo-aggregator")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.New(ctx, store.Config{Path: cfg.StorePath}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	ch, err := cache.New(cache.Config{RedisURL: cfg.RedisURL}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init cache")
	}
	defer ch.Close()

	bus := eventbus.New(log)
	hub := broadcast.New(cfg.Buffers.Subscriber, cfg.SlowConsumerPolicy, log)
	health := healthmetrics.New()

	bus.Subscribe(eventbus.StoreAlert, func(e *eventbus.Event) { health.IncStoreRejections() })

	agg := aggregator.New(aggregator.Config{
		NumWorkers: cfg.Pool.Aggregators,
		StrikeGap:  cfg.StrikeGap,
		Grace:      cfg.GraceMs,
		Timeframes: []domain.Timeframe{domain.Timeframe1Min, domain.Timeframe5Min, domain.Timeframe15Min},
	}, st, ch, hub, bus, log)
	agg.Start(ctx)
	defer agg.Stop()

	historyClient := historyapi.New(cfg.HistoryAPIURL, cfg.Timeouts.History)

	backfillEngine := backfill.New(backfill.Config{
		WindowHours:  cfg.BackfillWindowHours,
		GapThreshold: time.Duration(cfg.BackfillGapThresholdSec) * time.Second,
		NumWorkers:   cfg.Pool.Backfillers,
		Timeframe:    domain.Timeframe1Min,
	}, historyClient, st, log)
	if err := backfillEngine.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start backfill engine")
	}
	defer backfillEngine.Stop()

	var eventSink ingest.EventSink = backfillEngine
	if !cfg.EnableSubscriptionEvents {
		eventSink = noopEventSink{}
	}

	consumer := ingest.New(ingest.Config{
		OptionsURL:    cfg.PubSubURL + "/" + cfg.PubSubPrefix + "/options",
		UnderlyingURL: cfg.PubSubURL + "/" + cfg.PubSubPrefix + "/underlying",
		EventsURL:     cfg.PubSubURL + "/" + cfg.PubSubPrefix + "/events",
		BufferSize:    cfg.Buffers.Channel,
	}, agg, eventSink, log)
	consumer.Start(ctx)
	defer consumer.Stop()

	go sampleHealthCounters(ctx, consumer, hub, health)

	archiver, err := reliability.New(ctx, reliability.Config{
		Bucket:        cfg.ArchiveS3Bucket,
		Endpoint:      cfg.ArchiveS3Endpoint,
		RetentionDays: cfg.ArchiveRetentionDays,
		IntervalHours: cfg.ArchiveIntervalHours,
	}, st, log)
	if err != nil {
		log.Warn().Err(err).Msg("archival disabled: failed to init")
	} else {
		go archiver.Start(ctx)
	}

	querySurface := query.New(st, ch, cfg.CacheTTL, log)
	srv := server.New(server.Config{Port: cfg.Port, DevMode: cfg.Pretty}, querySurface, hub, ch, health, log)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("shutdown complete")
}

type noopEventSink struct{}

func (noopEventSink) HandleSubscriptionEvent(*domain.SubscriptionEvent) {}

// sampleHealthCounters periodically folds the consumer's decode-error
// count and the broadcast hub's drop count into the shared health
// registry, since those components track their own cumulative totals
// independently.
func sampleHealthCounters(ctx context.Context, consumer *ingest.Consumer, hub *broadcast.Hub, health *healthmetrics.Registry) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			health.SetDecodeErrors(consumer.Health().DecodeErrors)
			health.SetBroadcastDropped(hub.DroppedTotal())
		}
	}
}
