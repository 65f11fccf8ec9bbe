// Command scan runs a single location scan against the live upstream APIs
// and prints the result as JSON. It shares the service's persistent store, so
// a rate-limit window opened by the service is honored here too.
//
// Usage:
//
//	go run ./cmd/scan -q "Anchorage"
//	go run ./cmd/scan -q "Reykjavik" -radius 150 -seed 42
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

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
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	query := flag.String("q", "", "place name to scan")
	radius := flag.Float64("radius", 0, "search radius in km (default SCAN_RADIUS_KM)")
	seed := flag.Uint64("seed", 0, "noise seed for a reproducible score (default NOISE_SEED)")
	flag.Parse()

	if *query == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -q")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *radius > 0 {
		cfg.ScanRadiusKm = *radius
	}
	if *seed != 0 {
		cfg.NoiseSeed = *seed
	}

	logger := observability.NewCLILogger(cfg)
	metrics := observability.NewMetricsForTesting() // unregistered, nothing scrapes a one-shot run
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, err := store.Open(ctx, cfg.StoreDriver, cfg.StoreDSN, clock, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer kv.Close() //nolint:errcheck // read-mostly, nothing to flush

	gate := ratelimit.NewGate(clock, kv, logger)
	if err := gate.Load(ctx); err != nil {
		logger.Warn("rate limit state not restored", "error", err)
	}

	weather := openmeteo.NewClient(cfg.ForecastURL, cfg.GeocodingURL, cfg.RequestTimeout, metrics, logger)
	agg := aggregator.New(aggregator.Deps{
		Weather:  weather,
		Seismic:  usgs.NewClient(cfg.USGSURL, cfg.RequestTimeout, metrics, logger),
		Geocoder: weather,
		Cache:    cache.New(kv, cfg.CacheL1Size, clock, metrics, logger),
		Gate:     gate,
		Noise:    domain.NewNoise(cfg.NoiseSeed),
		Clock:    clock,
		Metrics:  metrics,
		Logger:   logger,
	}, aggregator.OptionsFrom(cfg))

	res, err := agg.ScanLocation(ctx, *query)
	if err != nil {
		return fmt.Errorf("scan failed (%s): %w", domain.KindOf(err), err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
