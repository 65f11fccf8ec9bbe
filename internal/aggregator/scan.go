package aggregator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/storm-risk-service/internal/domain"
	"github.com/couchcryptid/storm-risk-service/internal/ratelimit"
	"golang.org/x/sync/errgroup"
)

// ScanResult is the outcome of one location scan. Degraded lists the inputs
// that could not be fetched.
type ScanResult struct {
	Query       string                      `json:"query"`
	Location    domain.Location             `json:"location"`
	Atmospheric *domain.AtmosphericSnapshot `json:"atmospheric,omitempty"`
	Nearby      []domain.NearbyEvent        `json:"nearby"`
	Assessment  domain.RiskAssessment       `json:"assessment"`
	ScannedAt   time.Time                   `json:"scanned_at"`
	Degraded    []string                    `json:"degraded,omitempty"`
}

// ScanStatus is the query surface of the scan stream.
type ScanStatus struct {
	IsScanning    bool             `json:"is_scanning"`
	Last          *ScanResult      `json:"last,omitempty"`
	LastErrorKind domain.ErrorKind `json:"last_error_kind,omitempty"`
	LastError     string           `json:"last_error,omitempty"`
	Stage         string           `json:"stage"`
}

type scanState struct {
	gen      uint64
	cancel   context.CancelFunc
	scanning bool
	last     *ScanResult
	lastErr  error
}

// ScanLocation geocodes query and scores the point from its current weather
// and the earthquakes within ScanRadiusKm over ScanWindow. Results are never
// cached. Starting a scan cancels any scan still running; the cancelled call
// returns an error wrapping context.Canceled and does not touch the status.
func (a *Aggregator) ScanLocation(ctx context.Context, query string) (ScanResult, error) {
	query = strings.TrimSpace(query)
	ctx, gen := a.startScan(ctx)

	res, err := a.runScan(ctx, query)
	if ctx.Err() != nil && !a.isCurrentScan(gen) {
		err = fmt.Errorf("scan %q superseded: %w", query, context.Canceled)
	}
	a.finishScan(gen, res, err)
	return res, err
}

func (a *Aggregator) runScan(ctx context.Context, query string) (ScanResult, error) {
	res := ScanResult{Query: query, Nearby: []domain.NearbyEvent{}}
	if query == "" {
		return res, fmt.Errorf("scan: %w: empty query", domain.ErrInvalidQuery)
	}

	if !a.allowed(ratelimit.SourceOpenMeteo) {
		return res, fmt.Errorf("scan %q: geocoding: %w", query, domain.ErrRateLimited)
	}

	a.scans.set(StageFetching)
	loc, err := a.deps.Geocoder.Geocode(ctx, query)
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			a.tripped(ctx, ratelimit.SourceOpenMeteo)
		}
		return res, fmt.Errorf("scan %q: %w", query, err)
	}
	res.Location = loc

	var (
		atmos  *domain.AtmosphericSnapshot
		events []domain.SeismicEvent
		atmErr error
		seiErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if !a.allowed(ratelimit.SourceOpenMeteo) {
			atmErr = domain.ErrRateLimited
			return nil
		}
		snap, err := a.deps.Weather.FetchAtmospheric(gctx, loc.Lat, loc.Lon)
		if err != nil {
			if errors.Is(err, domain.ErrRateLimited) {
				a.tripped(gctx, ratelimit.SourceOpenMeteo)
			}
			atmErr = err
			return nil
		}
		atmos = &snap
		return nil
	})
	g.Go(func() error {
		if !a.allowed(ratelimit.SourceUSGS) {
			seiErr = domain.ErrRateLimited
			return nil
		}
		now := a.deps.Clock.Now()
		bbox := domain.BoundingBoxAround(loc.Lat, loc.Lon, a.opts.ScanRadiusKm)
		evs, err := a.deps.Seismic.FetchSeismicEvents(gctx, domain.SeismicQuery{
			Start:        now.Add(-a.opts.ScanWindow),
			End:          now,
			MinMagnitude: a.opts.SeismicMinMagnitude,
			BBox:         &bbox,
			Limit:        a.opts.SeismicLimit,
		})
		if err != nil {
			if errors.Is(err, domain.ErrRateLimited) {
				a.tripped(gctx, ratelimit.SourceUSGS)
			}
			seiErr = err
			return nil
		}
		events = evs
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("scan %q: %w", query, err)
	}
	if atmErr != nil {
		a.deps.Logger.Warn("scan weather unavailable", "query", query, "error", atmErr, "kind", domain.KindOf(atmErr))
		res.Degraded = append(res.Degraded, "atmospheric")
	}
	if seiErr != nil {
		a.deps.Logger.Warn("scan seismic unavailable", "query", query, "error", seiErr, "kind", domain.KindOf(seiErr))
		res.Degraded = append(res.Degraded, "seismic")
	}

	a.scans.set(StageScoring)
	now := a.deps.Clock.Now()
	res.Atmospheric = atmos
	res.Nearby = domain.NearbyEvents(events, loc.Lat, loc.Lon, a.opts.ScanRadiusKm)
	res.Assessment = domain.ScorePoint(domain.PointInput{
		Nearby:      res.Nearby,
		Atmospheric: atmos,
		Now:         now,
	}, a.deps.Noise)
	res.ScannedAt = now
	return res, nil
}

// startScan cancels the running scan, if any, and claims the result slot.
func (a *Aggregator) startScan(parent context.Context) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(parent)

	a.scanMu.Lock()
	defer a.scanMu.Unlock()
	if a.scan.cancel != nil {
		a.scan.cancel()
	}
	a.scan.gen++
	a.scan.cancel = cancel
	a.scan.scanning = true
	a.scans.set(StageCheckingRateLimit)
	return ctx, a.scan.gen
}

func (a *Aggregator) isCurrentScan(gen uint64) bool {
	a.scanMu.Lock()
	defer a.scanMu.Unlock()
	return a.scan.gen == gen
}

// finishScan records the outcome unless a newer scan has started since.
func (a *Aggregator) finishScan(gen uint64, res ScanResult, err error) {
	kind := domain.KindOf(err)
	outcome := string(kind)
	if err == nil {
		outcome = "ok"
	}
	a.deps.Metrics.Scans.WithLabelValues(outcome).Inc()

	a.scanMu.Lock()
	defer a.scanMu.Unlock()
	if a.scan.gen != gen {
		return
	}
	a.scan.cancel()
	a.scan.cancel = nil
	a.scan.scanning = false
	a.scans.set(StageCachedReady)

	if err != nil {
		a.scan.lastErr = err
		a.deps.Logger.Info("scan failed", "query", res.Query, "kind", kind, "error", err)
		return
	}
	a.scan.last = &res
	a.scan.lastErr = nil
	a.deps.Logger.Info("scan completed",
		"query", res.Query,
		"location", res.Location.Name,
		"score", res.Assessment.Score,
		"level", res.Assessment.Level,
		"nearby", len(res.Nearby),
	)
}

// ScanStatus returns the state of the scan stream.
func (a *Aggregator) ScanStatus() ScanStatus {
	a.scanMu.Lock()
	defer a.scanMu.Unlock()

	st := ScanStatus{
		IsScanning: a.scan.scanning,
		Stage:      a.scans.current().String(),
	}
	if a.scan.last != nil {
		last := *a.scan.last
		st.Last = &last
	}
	if a.scan.lastErr != nil {
		st.LastErrorKind = domain.KindOf(a.scan.lastErr)
		st.LastError = a.scan.lastErr.Error()
	}
	return st
}
