package aggregator

import (
	"context"
	"errors"
	"time"

	"github.com/couchcryptid/storm-risk-service/internal/domain"
	"github.com/couchcryptid/storm-risk-service/internal/ratelimit"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// RefreshHotZones recomputes the ranked hot-zone list. Seismic events are
// clustered by region, the top regions are enriched with weather one call at
// a time, and every region is scored. Weather is optional: a region whose
// weather could not be had is scored on seismic data alone. It returns false
// without doing anything when a refresh is already running.
func (a *Aggregator) RefreshHotZones(ctx context.Context) bool {
	if !a.zones.begin() {
		a.deps.Metrics.RefreshCycles.WithLabelValues(string(StreamHotZones), "skipped").Inc()
		return false
	}
	defer a.zones.end()
	defer a.ready.Store(true)

	start := a.deps.Clock.Now()

	var cached domain.HotZoneSnapshot
	if storedAt, ok := a.deps.Cache.GetAt(ctx, hotZonesKey, &cached); ok {
		a.setHotZones(cached, false, storedAt)
		a.finishCycle(StreamHotZones, "cached", start)
		return true
	}

	a.zones.set(StageCheckingRateLimit)
	if !a.allowed(ratelimit.SourceUSGS) {
		a.deps.Logger.Info("hot zone refresh skipped, usgs rate limited",
			"blocked_until", a.deps.Gate.BlockedUntil(ratelimit.SourceUSGS))
		a.hotZonesFallback(ctx, start)
		return true
	}

	a.zones.set(StageFetching)
	now := a.deps.Clock.Now()
	events, err := a.deps.Seismic.FetchSeismicEvents(ctx, domain.SeismicQuery{
		Start:        now.Add(-a.opts.SeismicWindow),
		End:          now,
		MinMagnitude: a.opts.SeismicMinMagnitude,
		Limit:        a.opts.SeismicLimit,
	})
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			a.tripped(ctx, ratelimit.SourceUSGS)
		}
		a.deps.Logger.Warn("seismic fetch failed", "error", err, "kind", domain.KindOf(err))
		a.hotZonesFallback(ctx, start)
		return true
	}

	clusters := domain.ClusterRegions(events, now)
	if len(clusters) > a.opts.HotZoneLimit {
		clusters = clusters[:a.opts.HotZoneLimit]
	}
	weather := a.regionWeather(ctx, clusters)

	a.zones.set(StageScoring)
	zones := make([]domain.HotZone, len(clusters))
	for i, c := range clusters {
		zones[i] = domain.HotZone{
			Region:      c.Region,
			Lat:         c.Lat,
			Lon:         c.Lon,
			Seismic:     c.Summary(),
			Atmospheric: weather[i],
			Assessment: domain.ScoreRegion(domain.RegionInput{
				Seismic:     c.Summary(),
				Atmospheric: weather[i],
				Now:         now,
			}, a.deps.Noise),
		}
	}

	snap := domain.HotZoneSnapshot{
		CycleID:     uuid.NewString(),
		GeneratedAt: now,
		Zones:       domain.RankHotZones(zones, a.opts.HotZoneLimit),
	}
	if err := a.deps.Cache.Set(ctx, hotZonesKey, snap, a.opts.HotZoneTTL); err != nil {
		a.deps.Logger.Warn("cache hot zones failed", "error", err)
	}
	a.setHotZones(snap, false, now)
	a.deps.Metrics.HotZones.Set(float64(len(snap.Zones)))
	a.finishCycle(StreamHotZones, "fresh", start)

	a.deps.Logger.Info("hot zones refreshed",
		"cycle_id", snap.CycleID,
		"events", len(events),
		"zones", len(snap.Zones),
	)

	if a.deps.Publisher != nil {
		if err := a.deps.Publisher.Publish(ctx, snap); err != nil {
			a.deps.Logger.Warn("publish hot zones failed", "cycle_id", snap.CycleID, "error", err)
		}
	}
	return true
}

// regionWeather returns one snapshot per cluster, nil where none could be
// had. Fresh cached readings are reused without a network call. Network calls
// are spaced by FanoutDelay, and once open-meteo answers 429 no further
// calls are made for the rest of the cycle.
func (a *Aggregator) regionWeather(ctx context.Context, clusters []domain.RegionCluster) []*domain.AtmosphericSnapshot {
	out := make([]*domain.AtmosphericSnapshot, len(clusters))
	limiter := rate.NewLimiter(rate.Every(a.opts.FanoutDelay), 1)
	halted := false

	for i, c := range clusters {
		key := atmosphericKey(c.Lat, c.Lon)
		var snap domain.AtmosphericSnapshot
		if a.deps.Cache.Get(ctx, key, &snap) {
			out[i] = &snap
			continue
		}
		if halted || !a.allowed(ratelimit.SourceOpenMeteo) {
			halted = true
			continue
		}
		if err := a.pace(ctx, limiter); err != nil {
			halted = true
			continue
		}

		snap, err := a.deps.Weather.FetchAtmospheric(ctx, c.Lat, c.Lon)
		if err != nil {
			a.deps.Logger.Warn("region weather fetch failed",
				"region", c.Region, "error", err, "kind", domain.KindOf(err))
			if errors.Is(err, domain.ErrRateLimited) {
				a.tripped(ctx, ratelimit.SourceOpenMeteo)
				halted = true
			}
			continue
		}
		if err := a.deps.Cache.Set(ctx, key, snap, a.opts.AtmosphericTTL); err != nil {
			a.deps.Logger.Warn("cache region weather failed", "region", c.Region, "error", err)
		}
		out[i] = &snap
	}
	return out
}

// pace blocks until limiter admits one more call, measured on the injected
// clock.
func (a *Aggregator) pace(ctx context.Context, limiter *rate.Limiter) error {
	now := a.deps.Clock.Now()
	r := limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}
	select {
	case <-a.deps.Clock.After(delay):
		return nil
	case <-ctx.Done():
		r.CancelAt(a.deps.Clock.Now())
		return ctx.Err()
	}
}

// hotZonesFallback serves the last stored snapshot, however old, flagged stale.
func (a *Aggregator) hotZonesFallback(ctx context.Context, start time.Time) {
	var snap domain.HotZoneSnapshot
	if storedAt, ok := a.deps.Cache.Stale(ctx, hotZonesKey, &snap); ok {
		a.setHotZones(snap, true, storedAt)
		a.finishCycle(StreamHotZones, "stale", start)
		return
	}

	a.mu.Lock()
	a.zonesStale = true
	a.mu.Unlock()
	a.finishCycle(StreamHotZones, "empty", start)
}

func (a *Aggregator) setHotZones(snap domain.HotZoneSnapshot, stale bool, updated time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.zoneSnap = snap
	a.zonesStale = stale
	a.zonesUpdated = updated
}
