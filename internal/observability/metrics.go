package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storm_risk"

// Metrics holds the Prometheus counters, histograms, and gauges for the risk service.
type Metrics struct {
	// Upstream fetch metrics.
	FetchRequests *prometheus.CounterVec   // labels: source={weather,seismic,geocode}, outcome={success,rate_limited,not_found,malformed,unavailable,cancelled}
	FetchDuration *prometheus.HistogramVec // labels: source

	CacheLookups *prometheus.CounterVec // labels: namespace={atmospheric,hotzones}, result={hit,miss,stale}

	// Rate-limit gate metrics.
	RateLimitTrips *prometheus.CounterVec // labels: source={open-meteo,usgs}
	RateLimitSkips *prometheus.CounterVec // labels: source

	// Orchestrator metrics.
	RefreshCycles    *prometheus.CounterVec // labels: stream={atmospheric,hotzones}, outcome={fresh,cached,stale,skipped}
	RefreshDuration  *prometheus.HistogramVec
	HotZones         prometheus.Gauge
	Scans            *prometheus.CounterVec // labels: outcome
	SchedulerRunning prometheus.Gauge
	PublishedZones   prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "Upstream requests by source and outcome.",
		}, []string{"source", "outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Upstream request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by namespace and result.",
		}, []string{"namespace", "result"}),
		RateLimitTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_trips_total",
			Help:      "Times an upstream answered 429 and the gate was closed.",
		}, []string{"source"}),
		RateLimitSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_skips_total",
			Help:      "Network calls skipped because the gate was closed.",
		}, []string{"source"}),
		RefreshCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_cycles_total",
			Help:      "Completed refresh cycles by stream and outcome.",
		}, []string{"stream", "outcome"}),
		RefreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a refresh cycle.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stream"}),
		HotZones: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hot_zones",
			Help:      "Number of hot zones in the current snapshot.",
		}),
		Scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "On-demand location scans by outcome.",
		}, []string{"outcome"}),
		SchedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_running",
			Help:      "1 when the refresh scheduler is active, 0 when stopped.",
		}),
		PublishedZones: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_zones_total",
			Help:      "Hot zones written to the Kafka topic.",
		}),
	}

	prometheus.MustRegister(
		m.FetchRequests,
		m.FetchDuration,
		m.CacheLookups,
		m.RateLimitTrips,
		m.RateLimitSkips,
		m.RefreshCycles,
		m.RefreshDuration,
		m.HotZones,
		m.Scans,
		m.SchedulerRunning,
		m.PublishedZones,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		FetchRequests:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "fetch_requests_total"}, []string{"source", "outcome"}),
		FetchDuration:    prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "fetch_duration_seconds"}, []string{"source"}),
		CacheLookups:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "cache_lookups_total"}, []string{"namespace", "result"}),
		RateLimitTrips:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_trips_total"}, []string{"source"}),
		RateLimitSkips:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_skips_total"}, []string{"source"}),
		RefreshCycles:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "refresh_cycles_total"}, []string{"stream", "outcome"}),
		RefreshDuration:  prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "refresh_duration_seconds"}, []string{"stream"}),
		HotZones:         prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "hot_zones"}),
		Scans:            prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "scans_total"}, []string{"outcome"}),
		SchedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "scheduler_running"}),
		PublishedZones:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "published_zones_total"}),
	}
}
