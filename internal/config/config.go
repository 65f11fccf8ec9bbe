package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Persistence.
	StoreDriver string
	StoreDSN    string
	CacheL1Size int

	// Upstream endpoints.
	ForecastURL    string
	GeocodingURL   string
	USGSURL        string
	RequestTimeout time.Duration

	RateLimitBackoff time.Duration
	AtmosphericTTL   time.Duration
	HotZoneTTL       time.Duration
	HotZoneLimit     int
	FanoutDelay      time.Duration

	AtmosphericRefreshInterval time.Duration
	HotZoneRefreshInterval     time.Duration

	// Home location for the atmospheric stream.
	HomeLat float64
	HomeLon float64

	SeismicWindow       time.Duration
	SeismicMinMagnitude float64
	SeismicLimit        int
	ScanRadiusKm        float64
	ScanWindow          time.Duration
	NoiseSeed           uint64

	// Kafka publication of hot-zone snapshots.
	KafkaBrokers []string
	KafkaEnabled bool
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first when present; variables
// already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		StoreDriver: sharedcfg.EnvOrDefault("STORE_DRIVER", StoreSQLite),
		StoreDSN:    os.Getenv("STORE_DSN"),

		ForecastURL:  sharedcfg.EnvOrDefault("OPEN_METEO_FORECAST_URL", "https://api.open-meteo.com/v1/forecast"),
		GeocodingURL: sharedcfg.EnvOrDefault("OPEN_METEO_GEOCODING_URL", "https://geocoding-api.open-meteo.com/v1/search"),
		USGSURL:      sharedcfg.EnvOrDefault("USGS_EVENT_URL", "https://earthquake.usgs.gov/fdsnws/event/1/query"),

		KafkaTopic: sharedcfg.EnvOrDefault("KAFKA_TOPIC", "hot-zones"),
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"REQUEST_TIMEOUT", "10s", &cfg.RequestTimeout},
		{"RATE_LIMIT_BACKOFF", "30m", &cfg.RateLimitBackoff},
		{"ATMOSPHERIC_TTL", "10m", &cfg.AtmosphericTTL},
		{"HOTZONE_TTL", "15m", &cfg.HotZoneTTL},
		{"FANOUT_DELAY", "200ms", &cfg.FanoutDelay},
		{"ATMOSPHERIC_REFRESH_INTERVAL", "10m", &cfg.AtmosphericRefreshInterval},
		{"HOTZONE_REFRESH_INTERVAL", "15m", &cfg.HotZoneRefreshInterval},
		{"SEISMIC_WINDOW", "168h", &cfg.SeismicWindow},
		{"SCAN_WINDOW", "720h", &cfg.ScanWindow},
	}
	for _, d := range durations {
		v, err := parsePositiveDuration(d.key, d.def)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}

	if cfg.CacheL1Size, err = parsePositiveInt("CACHE_L1_SIZE", 256); err != nil {
		return nil, err
	}
	if cfg.HotZoneLimit, err = parsePositiveInt("HOTZONE_LIMIT", 8); err != nil {
		return nil, err
	}
	if cfg.SeismicLimit, err = parsePositiveInt("SEISMIC_LIMIT", 500); err != nil {
		return nil, err
	}
	if cfg.HomeLat, err = parseFloatInRange("HOME_LAT", 37.7749, -90, 90); err != nil {
		return nil, err
	}
	if cfg.HomeLon, err = parseFloatInRange("HOME_LON", -122.4194, -180, 180); err != nil {
		return nil, err
	}
	if cfg.SeismicMinMagnitude, err = parseFloatInRange("SEISMIC_MIN_MAGNITUDE", 2.5, -2, 10); err != nil {
		return nil, err
	}
	if cfg.ScanRadiusKm, err = parseFloatInRange("SCAN_RADIUS_KM", 300, 1, 20000); err != nil {
		return nil, err
	}
	if s := os.Getenv("NOISE_SEED"); s != "" {
		seed, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid NOISE_SEED: %q", s)
		}
		cfg.NoiseSeed = seed
	}

	if s := os.Getenv("KAFKA_BROKERS"); s != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(s)
	}
	cfg.KafkaEnabled = len(cfg.KafkaBrokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		cfg.KafkaEnabled = v == "true"
	}

	switch cfg.StoreDriver {
	case StoreMemory:
	case StoreSQLite:
		if cfg.StoreDSN == "" {
			cfg.StoreDSN = "storm-risk.db"
		}
	case StorePostgres:
		if cfg.StoreDSN == "" {
			return nil, errors.New("STORE_DSN is required when STORE_DRIVER is postgres")
		}
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER: %q (want memory, sqlite or postgres)", cfg.StoreDriver)
	}

	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required")
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	s := sharedcfg.EnvOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func parseFloatInRange(key string, def, lo, hi float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < lo || f > hi {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return f, nil
}
