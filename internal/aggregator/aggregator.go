// Package aggregator coordinates the source clients, cache, rate-limit gate
// and scoring engine into three streams: the home atmospheric reading, the
// ranked hot-zone list and on-demand location scans.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-risk-service/internal/cache"
	"github.com/couchcryptid/storm-risk-service/internal/config"
	"github.com/couchcryptid/storm-risk-service/internal/domain"
	"github.com/couchcryptid/storm-risk-service/internal/observability"
	"github.com/couchcryptid/storm-risk-service/internal/ratelimit"
	"github.com/jonboulle/clockwork"
)

// WeatherSource fetches current conditions at a point.
type WeatherSource interface {
	FetchAtmospheric(ctx context.Context, lat, lon float64) (domain.AtmosphericSnapshot, error)
}

// SeismicSource fetches earthquakes matching a query.
type SeismicSource interface {
	FetchSeismicEvents(ctx context.Context, q domain.SeismicQuery) ([]domain.SeismicEvent, error)
}

// Geocoder resolves a free-text place name.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (domain.Location, error)
}

// Publisher receives every freshly computed hot-zone snapshot.
type Publisher interface {
	Publish(ctx context.Context, snap domain.HotZoneSnapshot) error
}

// Cache keys.
const hotZonesKey = "hotzones"

func atmosphericKey(lat, lon float64) string {
	return fmt.Sprintf("atmospheric:%.2f,%.2f", lat, lon)
}

// Deps are the collaborators of an Aggregator. Publisher and Noise may be nil.
type Deps struct {
	Weather   WeatherSource
	Seismic   SeismicSource
	Geocoder  Geocoder
	Cache     *cache.Cache
	Gate      *ratelimit.Gate
	Publisher Publisher
	Noise     domain.Noise
	Clock     clockwork.Clock
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

// Options tune the streams.
type Options struct {
	HomeLat float64
	HomeLon float64

	AtmosphericTTL   time.Duration
	HotZoneTTL       time.Duration
	HotZoneLimit     int
	FanoutDelay      time.Duration
	RateLimitBackoff time.Duration

	SeismicWindow       time.Duration
	SeismicMinMagnitude float64
	SeismicLimit        int
	ScanRadiusKm        float64
	ScanWindow          time.Duration
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		HomeLat:             37.7749,
		HomeLon:             -122.4194,
		AtmosphericTTL:      10 * time.Minute,
		HotZoneTTL:          15 * time.Minute,
		HotZoneLimit:        8,
		FanoutDelay:         200 * time.Millisecond,
		RateLimitBackoff:    ratelimit.DefaultBackoff,
		SeismicWindow:       7 * 24 * time.Hour,
		SeismicMinMagnitude: 2.5,
		SeismicLimit:        500,
		ScanRadiusKm:        300,
		ScanWindow:          30 * 24 * time.Hour,
	}
}

// OptionsFrom copies the stream settings out of the service configuration.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		HomeLat:             cfg.HomeLat,
		HomeLon:             cfg.HomeLon,
		AtmosphericTTL:      cfg.AtmosphericTTL,
		HotZoneTTL:          cfg.HotZoneTTL,
		HotZoneLimit:        cfg.HotZoneLimit,
		FanoutDelay:         cfg.FanoutDelay,
		RateLimitBackoff:    cfg.RateLimitBackoff,
		SeismicWindow:       cfg.SeismicWindow,
		SeismicMinMagnitude: cfg.SeismicMinMagnitude,
		SeismicLimit:        cfg.SeismicLimit,
		ScanRadiusKm:        cfg.ScanRadiusKm,
		ScanWindow:          cfg.ScanWindow,
	}
}

// Aggregator is safe for concurrent use. Each stream refreshes independently;
// a refresh requested while the same stream is running is dropped.
type Aggregator struct {
	deps Deps
	opts Options

	atmos stream
	zones stream
	scans stream

	mu           sync.RWMutex
	atmosSnap    *domain.AtmosphericSnapshot
	atmosLive    bool
	atmosUpdated time.Time
	zoneSnap     domain.HotZoneSnapshot
	zonesStale   bool
	zonesUpdated time.Time
	ready        atomic.Bool

	scanMu sync.Mutex
	scan   scanState
}

// New creates an Aggregator.
func New(deps Deps, opts Options) *Aggregator {
	return &Aggregator{deps: deps, opts: opts}
}

// Stage reports where a stream currently is.
func (a *Aggregator) Stage(s Stream) Stage {
	switch s {
	case StreamAtmospheric:
		return a.atmos.current()
	case StreamHotZones:
		return a.zones.current()
	case StreamScan:
		return a.scans.current()
	default:
		return StageIdle
	}
}

// CheckReadiness returns nil once the first hot-zone cycle has finished.
func (a *Aggregator) CheckReadiness(_ context.Context) error {
	if !a.ready.Load() {
		return errors.New("hot zone cycle has not completed yet")
	}
	return nil
}

// AtmosphericView is the query surface of the home atmospheric stream.
type AtmosphericView struct {
	Readings   []domain.Reading            `json:"readings"`
	Snapshot   *domain.AtmosphericSnapshot `json:"snapshot,omitempty"`
	IsLive     bool                        `json:"is_live"`
	Loading    bool                        `json:"loading"`
	LastUpdate time.Time                   `json:"last_update"`
	Stage      string                      `json:"stage"`
}

// Atmospheric returns the latest home reading.
func (a *Aggregator) Atmospheric() AtmosphericView {
	a.mu.RLock()
	defer a.mu.RUnlock()

	v := AtmosphericView{
		IsLive:     a.atmosLive,
		Loading:    a.atmos.loading(),
		LastUpdate: a.atmosUpdated,
		Stage:      a.atmos.current().String(),
		Readings:   []domain.Reading{},
	}
	if a.atmosSnap != nil {
		snap := *a.atmosSnap
		v.Snapshot = &snap
		v.Readings = domain.AtmosphericReadings(snap)
	}
	return v
}

// HotZonesView is the query surface of the hot-zone stream.
type HotZonesView struct {
	CycleID    string           `json:"cycle_id,omitempty"`
	Zones      []domain.HotZone `json:"zones"`
	Loading    bool             `json:"loading"`
	Stale      bool             `json:"stale"`
	LastUpdate time.Time        `json:"last_update"`
	Stage      string           `json:"stage"`
}

// HotZones returns the latest ranked hot-zone list.
func (a *Aggregator) HotZones() HotZonesView {
	a.mu.RLock()
	defer a.mu.RUnlock()

	zones := make([]domain.HotZone, len(a.zoneSnap.Zones))
	copy(zones, a.zoneSnap.Zones)
	return HotZonesView{
		CycleID:    a.zoneSnap.CycleID,
		Zones:      zones,
		Loading:    a.zones.loading(),
		Stale:      a.zonesStale,
		LastUpdate: a.zonesUpdated,
		Stage:      a.zones.current().String(),
	}
}

// tripped records a 429 from source and closes the gate.
func (a *Aggregator) tripped(ctx context.Context, source ratelimit.Source) {
	a.deps.Metrics.RateLimitTrips.WithLabelValues(string(source)).Inc()
	a.deps.Gate.Block(context.WithoutCancel(ctx), source, a.opts.RateLimitBackoff)
}

// allowed checks the gate before a network call and counts skips.
func (a *Aggregator) allowed(source ratelimit.Source) bool {
	if a.deps.Gate.IsBlocked(source) {
		a.deps.Metrics.RateLimitSkips.WithLabelValues(string(source)).Inc()
		return false
	}
	return true
}

func (a *Aggregator) finishCycle(s Stream, outcome string, start time.Time) {
	a.deps.Metrics.RefreshCycles.WithLabelValues(string(s), outcome).Inc()
	a.deps.Metrics.RefreshDuration.WithLabelValues(string(s)).Observe(a.deps.Clock.Since(start).Seconds())
}
