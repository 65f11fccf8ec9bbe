package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/storm-risk-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/storm-risk-service/internal/adapter/kafka"
	"github.com/couchcryptid/storm-risk-service/internal/adapter/openmeteo"
	"github.com/couchcryptid/storm-risk-service/internal/adapter/usgs"
	"github.com/couchcryptid/storm-risk-service/internal/aggregator"
	"github.com/couchcryptid/storm-risk-service/internal/cache"
	"github.com/couchcryptid/storm-risk-service/internal/config"
	"github.com/couchcryptid/storm-risk-service/internal/domain"
	"github.com/couchcryptid/storm-risk-service/internal/observability"
	"github.com/couchcryptid/storm-risk-service/internal/ratelimit"
	"github.com/couchcryptid/storm-risk-service/internal/store"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, err := store.Open(ctx, cfg.StoreDriver, cfg.StoreDSN, clock, logger)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}

	gate := ratelimit.NewGate(clock, kv, logger)
	if err := gate.Load(ctx); err != nil {
		logger.Warn("rate limit state not restored", "error", err)
	}

	weather := openmeteo.NewClient(cfg.ForecastURL, cfg.GeocodingURL, cfg.RequestTimeout, metrics, logger)
	seismic := usgs.NewClient(cfg.USGSURL, cfg.RequestTimeout, metrics, logger)

	deps := aggregator.Deps{
		Weather:  weather,
		Seismic:  seismic,
		Geocoder: weather,
		Cache:    cache.New(kv, cfg.CacheL1Size, clock, metrics, logger),
		Gate:     gate,
		Noise:    domain.NewNoise(cfg.NoiseSeed),
		Clock:    clock,
		Metrics:  metrics,
		Logger:   logger,
	}

	// Kafka publication is feature-flagged via KAFKA_ENABLED / KAFKA_BROKERS.
	var publisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		publisher = kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, metrics, logger)
		deps.Publisher = publisher
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	agg := aggregator.New(deps, aggregator.OptionsFrom(cfg))
	sched := aggregator.NewScheduler(clock, metrics, logger,
		aggregator.Task{
			Name:     string(aggregator.StreamAtmospheric),
			Interval: cfg.AtmosphericRefreshInterval,
			Run:      func(ctx context.Context) { agg.RefreshAtmospheric(ctx) },
		},
		aggregator.Task{
			Name:     string(aggregator.StreamHotZones),
			Interval: cfg.HotZoneRefreshInterval,
			Run:      func(ctx context.Context) { agg.RefreshHotZones(ctx) },
		},
	)

	srv := httpadapter.NewServer(cfg.HTTPAddr, agg, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start refresh streams.
	sched.Start(ctx)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	sched.Stop()
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}
	if err := kv.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}
