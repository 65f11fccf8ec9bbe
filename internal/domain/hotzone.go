package domain

import (
	"sort"
	"time"
)

// HotZoneSnapshot is one completed hot-zone cycle.
type HotZoneSnapshot struct {
	CycleID     string    `json:"cycle_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Zones       []HotZone `json:"zones"`
}

// RankHotZones orders zones by descending score and keeps the first n.
// Zones with equal scores keep their input order. n <= 0 keeps all zones.
func RankHotZones(zones []HotZone, n int) []HotZone {
	ranked := make([]HotZone, len(zones))
	copy(ranked, zones)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Assessment.Score > ranked[j].Assessment.Score
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// AtmosphericReadings flattens a snapshot into display readings. Each reading
// is flagged when it would trip the matching scoring rule.
func AtmosphericReadings(s AtmosphericSnapshot) []Reading {
	return []Reading{
		{
			Key: "temperature", Label: "Temperature", Value: s.TemperatureC, Unit: "°C",
			Elevated: s.TemperatureC < 0 || s.TemperatureC > 40,
		},
		{
			Key: "humidity", Label: "Relative Humidity", Value: s.HumidityPct, Unit: "%",
		},
		{
			Key: "pressure", Label: "Surface Pressure", Value: s.PressureHPa, Unit: "hPa",
			Elevated: s.PressureHPa < 990 || s.PressureHPa > 1030,
		},
		{
			Key: "wind", Label: "Wind Speed", Value: s.WindSpeedKmh, Unit: "km/h",
			Elevated: s.WindSpeedKmh > 30,
		},
		{
			Key: "precipitation", Label: "Precipitation", Value: s.PrecipitationMm, Unit: "mm",
			Elevated: s.WeatherCode >= 80,
		},
		{
			Key: "cloud_cover", Label: "Cloud Cover", Value: s.CloudCoverPct, Unit: "%",
			Elevated: s.CloudCoverPct > 80,
		},
	}
}
