package domain

import "time"

// AtmosphericSnapshot is a single weather observation for a coordinate.
type AtmosphericSnapshot struct {
	Lat             float64    `json:"lat"`
	Lon             float64    `json:"lon"`
	TemperatureC    float64    `json:"temperature_c"`
	HumidityPct     float64    `json:"humidity_pct"`
	PressureHPa     float64    `json:"pressure_hpa"`
	WindSpeedKmh    float64    `json:"wind_speed_kmh"`
	PrecipitationMm float64    `json:"precipitation_mm"`
	CloudCoverPct   float64    `json:"cloud_cover_pct"`
	WeatherCode     int        `json:"weather_code"`
	Sunrise         *time.Time `json:"sunrise,omitempty"`
	Sunset          *time.Time `json:"sunset,omitempty"`
	ObservedAt      time.Time  `json:"observed_at"`
}

// IsDark reports whether t falls outside the snapshot's daylight window.
// Sunrise and sunset are compared by UTC time of day; west of Greenwich the
// sunset reported for a UTC date comes before its sunrise, and the window
// wraps past midnight. Without both sunrise and sunset it reports false.
func (s AtmosphericSnapshot) IsDark(t time.Time) bool {
	if s.Sunrise == nil || s.Sunset == nil {
		return false
	}
	now, rise, set := utcTimeOfDay(t), utcTimeOfDay(*s.Sunrise), utcTimeOfDay(*s.Sunset)
	if rise <= set {
		return now < rise || now > set
	}
	return now > set && now < rise
}

func utcTimeOfDay(t time.Time) time.Duration {
	t = t.UTC()
	return t.Sub(t.Truncate(24 * time.Hour))
}

// SeismicEvent is one earthquake as reported by the seismic feed.
type SeismicEvent struct {
	Magnitude float64 `json:"magnitude"`
	TimeMs    int64   `json:"time_ms"`
	Place     string  `json:"place"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
}

// Time returns the event time in UTC.
func (e SeismicEvent) Time() time.Time {
	return time.UnixMilli(e.TimeMs).UTC()
}

// NearbyEvent is a seismic event annotated with its great-circle distance
// from a scanned location.
type NearbyEvent struct {
	SeismicEvent
	DistanceKm float64 `json:"distance_km"`
}

// BoundingBox limits a seismic query to a lat/lon rectangle.
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// SeismicQuery describes a request to the seismic feed.
type SeismicQuery struct {
	Start        time.Time
	End          time.Time
	MinMagnitude float64
	BBox         *BoundingBox
	Limit        int
}

// Location is a geocoding match.
type Location struct {
	Name    string  `json:"name"`
	Admin   string  `json:"admin,omitempty"`
	Country string  `json:"country,omitempty"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// RegionCluster groups the seismic events that share a canonical region name.
type RegionCluster struct {
	Region       string         `json:"region"`
	Lat          float64        `json:"lat"`
	Lon          float64        `json:"lon"`
	Events       []SeismicEvent `json:"events"`
	MaxMagnitude float64        `json:"max_magnitude"`
	EventCount   int            `json:"event_count"`
	RecentCount  int            `json:"recent_count"`
}

// Summary reduces the cluster to the figures used for scoring.
func (c RegionCluster) Summary() SeismicSummary {
	return SeismicSummary{
		EventCount:   c.EventCount,
		MaxMagnitude: c.MaxMagnitude,
		RecentCount:  c.RecentCount,
	}
}

// SeismicSummary is the seismic input to region scoring.
type SeismicSummary struct {
	EventCount   int     `json:"event_count"`
	MaxMagnitude float64 `json:"max_magnitude"`
	RecentCount  int     `json:"recent_count"`
}

// Level is the severity band of a risk score.
type Level string

const (
	LevelLow      Level = "LOW"
	LevelModerate Level = "MODERATE"
	LevelElevated Level = "ELEVATED"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

// RiskFactor is one weighted contributor to a score.
type RiskFactor struct {
	Name        string `json:"name"`
	Weight      int    `json:"weight"`
	Description string `json:"description"`
}

// RiskAssessment is the scored outcome for a region or a scanned point.
type RiskAssessment struct {
	Score   int          `json:"score"`
	Level   Level        `json:"level"`
	Factors []RiskFactor `json:"factors"`
}

// HotZone is a ranked region with its inputs and assessment.
type HotZone struct {
	Region      string               `json:"region"`
	Lat         float64              `json:"lat"`
	Lon         float64              `json:"lon"`
	Seismic     SeismicSummary       `json:"seismic"`
	Atmospheric *AtmosphericSnapshot `json:"atmospheric,omitempty"`
	Assessment  RiskAssessment       `json:"assessment"`
}

// Reading is one display-ready atmospheric value.
type Reading struct {
	Key      string  `json:"key"`
	Label    string  `json:"label"`
	Value    float64 `json:"value"`
	Unit     string  `json:"unit"`
	Elevated bool    `json:"elevated"`
}
