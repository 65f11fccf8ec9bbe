package aggregator

import (
	"context"
	"errors"
	"time"

	"github.com/couchcryptid/storm-risk-service/internal/domain"
	"github.com/couchcryptid/storm-risk-service/internal/ratelimit"
)

// RefreshAtmospheric updates the home reading. A fresh cache entry is used
// as is; otherwise the forecast API is called unless the gate is closed. When
// no live reading can be had the last stored one is served with IsLive false.
// It returns false without doing anything when a refresh is already running.
func (a *Aggregator) RefreshAtmospheric(ctx context.Context) bool {
	if !a.atmos.begin() {
		a.deps.Metrics.RefreshCycles.WithLabelValues(string(StreamAtmospheric), "skipped").Inc()
		return false
	}
	defer a.atmos.end()

	start := a.deps.Clock.Now()
	key := atmosphericKey(a.opts.HomeLat, a.opts.HomeLon)

	var snap domain.AtmosphericSnapshot
	if storedAt, ok := a.deps.Cache.GetAt(ctx, key, &snap); ok {
		a.setAtmospheric(&snap, true, storedAt)
		a.finishCycle(StreamAtmospheric, "cached", start)
		return true
	}

	a.atmos.set(StageCheckingRateLimit)
	if !a.allowed(ratelimit.SourceOpenMeteo) {
		a.deps.Logger.Info("atmospheric refresh skipped, open-meteo rate limited",
			"blocked_until", a.deps.Gate.BlockedUntil(ratelimit.SourceOpenMeteo))
		a.atmosphericFallback(ctx, key, start)
		return true
	}

	a.atmos.set(StageFetching)
	snap, err := a.deps.Weather.FetchAtmospheric(ctx, a.opts.HomeLat, a.opts.HomeLon)
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			a.tripped(ctx, ratelimit.SourceOpenMeteo)
		}
		a.deps.Logger.Warn("atmospheric fetch failed", "error", err, "kind", domain.KindOf(err))
		a.atmosphericFallback(ctx, key, start)
		return true
	}

	a.atmos.set(StageScoring)
	if err := a.deps.Cache.Set(ctx, key, snap, a.opts.AtmosphericTTL); err != nil {
		a.deps.Logger.Warn("cache atmospheric snapshot failed", "error", err)
	}
	a.setAtmospheric(&snap, true, a.deps.Clock.Now())
	a.finishCycle(StreamAtmospheric, "fresh", start)
	return true
}

// atmosphericFallback serves the last stored reading, however old. With
// nothing stored the previous in-memory reading, if any, is kept.
func (a *Aggregator) atmosphericFallback(ctx context.Context, key string, start time.Time) {
	var snap domain.AtmosphericSnapshot
	if storedAt, ok := a.deps.Cache.Stale(ctx, key, &snap); ok {
		a.setAtmospheric(&snap, false, storedAt)
		a.finishCycle(StreamAtmospheric, "stale", start)
		return
	}

	a.mu.Lock()
	a.atmosLive = false
	a.mu.Unlock()
	a.finishCycle(StreamAtmospheric, "empty", start)
}

func (a *Aggregator) setAtmospheric(snap *domain.AtmosphericSnapshot, live bool, updated time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.atmosSnap = snap
	a.atmosLive = live
	a.atmosUpdated = updated
}
