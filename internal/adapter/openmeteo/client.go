// Package openmeteo fetches current conditions and geocoding matches from the
// Open-Meteo forecast and geocoding APIs.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/storm-risk-service/internal/domain"
	"github.com/couchcryptid/storm-risk-service/internal/observability"
)

// Open-Meteo reports local times without a zone; timezone=UTC makes them UTC.
const timeLayout = "2006-01-02T15:04"

const currentFields = "temperature_2m,relative_humidity_2m,surface_pressure,wind_speed_10m,precipitation,weather_code,cloud_cover"

// Client talks to both Open-Meteo endpoints. They share one rate limit.
type Client struct {
	httpClient   *http.Client
	forecastURL  string
	geocodingURL string
	metrics      *observability.Metrics
	logger       *slog.Logger
}

// NewClient creates an Open-Meteo client. timeout bounds each request.
func NewClient(forecastURL, geocodingURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		forecastURL:  forecastURL,
		geocodingURL: geocodingURL,
		metrics:      metrics,
		logger:       logger,
	}
}

// FetchAtmospheric returns current conditions and today's daylight window at a point.
func (c *Client) FetchAtmospheric(ctx context.Context, lat, lon float64) (domain.AtmosphericSnapshot, error) {
	params := url.Values{
		"latitude":      {formatCoord(lat)},
		"longitude":     {formatCoord(lon)},
		"current":       {currentFields},
		"daily":         {"sunrise,sunset"},
		"timezone":      {"UTC"},
		"forecast_days": {"1"},
	}

	var resp forecastResponse
	if err := c.doRequest(ctx, c.forecastURL+"?"+params.Encode(), "weather", &resp); err != nil {
		return domain.AtmosphericSnapshot{}, err
	}
	return resp.snapshot(lat, lon)
}

// Geocode resolves a free-text place name to its best match.
func (c *Client) Geocode(ctx context.Context, query string) (domain.Location, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.Location{}, domain.ErrInvalidQuery
	}

	params := url.Values{
		"name":     {query},
		"count":    {"1"},
		"language": {"en"},
		"format":   {"json"},
	}

	var resp geocodingResponse
	if err := c.doRequest(ctx, c.geocodingURL+"?"+params.Encode(), "geocode", &resp); err != nil {
		return domain.Location{}, err
	}
	if len(resp.Results) == 0 {
		c.observe("geocode", domain.ErrNotFound)
		return domain.Location{}, fmt.Errorf("geocode %q: %w", query, domain.ErrNotFound)
	}

	r := resp.Results[0]
	return domain.Location{
		Name:    r.Name,
		Admin:   r.Admin1,
		Country: r.Country,
		Lat:     r.Latitude,
		Lon:     r.Longitude,
	}, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL, source string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w: %w", domain.ErrUnavailable, err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.FetchDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	if err != nil {
		err = fmt.Errorf("%s request: %w: %w", source, domain.ErrUnavailable, err)
		c.observe(source, err)
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		err = fmt.Errorf("open-meteo %s: %w", source, domain.ErrRateLimited)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err = fmt.Errorf("open-meteo %s: status %d: %s: %w", source, resp.StatusCode, body, domain.ErrUnavailable)
	default:
		if decodeErr := json.NewDecoder(resp.Body).Decode(dest); decodeErr != nil {
			err = fmt.Errorf("decode %s response: %w: %w", source, domain.ErrMalformed, decodeErr)
		}
	}
	if err != nil {
		c.observe(source, err)
		return err
	}

	// Geocoding outcomes are recorded by the caller once it knows whether
	// there was a match.
	if source != "geocode" {
		c.observe(source, nil)
	}
	return nil
}

func (c *Client) observe(source string, err error) {
	outcome := "success"
	if err != nil {
		outcome = string(domain.KindOf(err))
		c.logger.Debug("open-meteo request failed", "source", source, "outcome", outcome, "error", err)
	}
	c.metrics.FetchRequests.WithLabelValues(source, outcome).Inc()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// Open-Meteo API response types.

type forecastResponse struct {
	Current *currentBlock `json:"current"`
	Daily   dailyBlock    `json:"daily"`
}

type currentBlock struct {
	Time          string  `json:"time"`
	Temperature   float64 `json:"temperature_2m"`
	Humidity      float64 `json:"relative_humidity_2m"`
	Pressure      float64 `json:"surface_pressure"`
	WindSpeed     float64 `json:"wind_speed_10m"`
	Precipitation float64 `json:"precipitation"`
	WeatherCode   int     `json:"weather_code"`
	CloudCover    float64 `json:"cloud_cover"`
}

type dailyBlock struct {
	Sunrise []string `json:"sunrise"`
	Sunset  []string `json:"sunset"`
}

func (r forecastResponse) snapshot(lat, lon float64) (domain.AtmosphericSnapshot, error) {
	if r.Current == nil {
		return domain.AtmosphericSnapshot{}, fmt.Errorf("forecast has no current block: %w", domain.ErrMalformed)
	}
	observed, err := time.Parse(timeLayout, r.Current.Time)
	if err != nil {
		return domain.AtmosphericSnapshot{}, fmt.Errorf("current time %q: %w", r.Current.Time, domain.ErrMalformed)
	}

	return domain.AtmosphericSnapshot{
		Lat:             lat,
		Lon:             lon,
		TemperatureC:    r.Current.Temperature,
		HumidityPct:     r.Current.Humidity,
		PressureHPa:     r.Current.Pressure,
		WindSpeedKmh:    r.Current.WindSpeed,
		PrecipitationMm: r.Current.Precipitation,
		CloudCoverPct:   r.Current.CloudCover,
		WeatherCode:     r.Current.WeatherCode,
		Sunrise:         firstTime(r.Daily.Sunrise),
		Sunset:          firstTime(r.Daily.Sunset),
		ObservedAt:      observed.UTC(),
	}, nil
}

// firstTime parses the first entry of a daily series. Polar day and night
// produce no usable value, which leaves daylight unknown.
func firstTime(values []string) *time.Time {
	if len(values) == 0 {
		return nil
	}
	t, err := time.Parse(timeLayout, values[0])
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

type geocodingResponse struct {
	Results []geocodingResult `json:"results"`
}

type geocodingResult struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Country   string  `json:"country"`
	Admin1    string  `json:"admin1"`
}
