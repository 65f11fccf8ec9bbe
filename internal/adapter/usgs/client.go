// Package usgs queries the USGS FDSN event service for earthquakes.
package usgs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/storm-risk-service/internal/domain"
	"github.com/couchcryptid/storm-risk-service/internal/observability"
)

const (
	source     = "seismic"
	timeLayout = "2006-01-02T15:04:05"
)

// Client implements the seismic source over the FDSN event API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a USGS client. timeout bounds each request.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// FetchSeismicEvents returns the events matching q, newest first. Features
// without a magnitude or with an incomplete position are dropped.
func (c *Client) FetchSeismicEvents(ctx context.Context, q domain.SeismicQuery) ([]domain.SeismicEvent, error) {
	if !q.End.IsZero() && q.End.Before(q.Start) {
		return nil, fmt.Errorf("seismic window ends before it starts: %w", domain.ErrInvalidQuery)
	}

	var resp featureCollection
	if err := c.doRequest(ctx, c.baseURL+"?"+queryParams(q).Encode(), &resp); err != nil {
		return nil, err
	}

	events := make([]domain.SeismicEvent, 0, len(resp.Features))
	dropped := 0
	for _, f := range resp.Features {
		ev, ok := f.event()
		if !ok {
			dropped++
			continue
		}
		events = append(events, ev)
	}
	if dropped > 0 {
		c.logger.Debug("dropped incomplete seismic features", "count", dropped)
	}
	return events, nil
}

func queryParams(q domain.SeismicQuery) url.Values {
	params := url.Values{
		"format":       {"geojson"},
		"starttime":    {q.Start.UTC().Format(timeLayout)},
		"minmagnitude": {strconv.FormatFloat(q.MinMagnitude, 'f', -1, 64)},
		"orderby":      {"time"},
	}
	if !q.End.IsZero() {
		params.Set("endtime", q.End.UTC().Format(timeLayout))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if b := q.BBox; b != nil {
		params.Set("minlatitude", formatCoord(b.MinLat))
		params.Set("maxlatitude", formatCoord(b.MaxLat))
		params.Set("minlongitude", formatCoord(b.MinLon))
		params.Set("maxlongitude", formatCoord(b.MaxLon))
	}
	return params
}

func (c *Client) doRequest(ctx context.Context, fullURL string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w: %w", domain.ErrUnavailable, err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.FetchDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	if err != nil {
		return c.fail(fmt.Errorf("usgs request: %w: %w", domain.ErrUnavailable, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return c.fail(fmt.Errorf("usgs: %w", domain.ErrRateLimited))
	case resp.StatusCode == http.StatusNoContent:
		// FDSN answers 204 when nothing matches.
		c.metrics.FetchRequests.WithLabelValues(source, "success").Inc()
		return nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return c.fail(fmt.Errorf("usgs: status %d: %s: %w", resp.StatusCode, body, domain.ErrUnavailable))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return c.fail(fmt.Errorf("decode usgs response: %w: %w", domain.ErrMalformed, err))
	}
	c.metrics.FetchRequests.WithLabelValues(source, "success").Inc()
	return nil
}

func (c *Client) fail(err error) error {
	kind := domain.KindOf(err)
	c.metrics.FetchRequests.WithLabelValues(source, string(kind)).Inc()
	c.logger.Debug("usgs request failed", "outcome", kind, "error", err)
	return err
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// GeoJSON response types.

type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	Properties struct {
		Mag   *float64 `json:"mag"`
		Place string   `json:"place"`
		Time  int64    `json:"time"`
	} `json:"properties"`
	Geometry *struct {
		Coordinates []float64 `json:"coordinates"` // [lon, lat, depth]
	} `json:"geometry"`
}

func (f feature) event() (domain.SeismicEvent, bool) {
	if f.Properties.Mag == nil || f.Geometry == nil || len(f.Geometry.Coordinates) < 2 {
		return domain.SeismicEvent{}, false
	}
	return domain.SeismicEvent{
		Magnitude: *f.Properties.Mag,
		TimeMs:    f.Properties.Time,
		Place:     f.Properties.Place,
		Lat:       f.Geometry.Coordinates[1],
		Lon:       f.Geometry.Coordinates[0],
	}, true
}
