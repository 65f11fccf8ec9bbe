package domain

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedNoise always draws the same value, capped to the requested range.
type fixedNoise int

func (f fixedNoise) IntN(n int) int { return min(int(f), n-1) }

var testNow = time.Date(2024, time.April, 26, 20, 0, 0, 0, time.UTC)

func daylight(sunriseHour, sunsetHour int) (*time.Time, *time.Time) {
	rise := time.Date(2024, time.April, 26, sunriseHour, 0, 0, 0, time.UTC)
	set := time.Date(2024, time.April, 26, sunsetHour, 0, 0, 0, time.UTC)
	return &rise, &set
}

func factorNames(a RiskAssessment) []string {
	names := make([]string, 0, len(a.Factors))
	for _, f := range a.Factors {
		names = append(names, f.Name)
	}
	return names
}

func TestLevelFor_Boundaries(t *testing.T) {
	tests := []struct {
		score int
		want  Level
	}{
		{100, LevelCritical},
		{80, LevelCritical},
		{79, LevelHigh},
		{60, LevelHigh},
		{59, LevelElevated},
		{40, LevelElevated},
		{39, LevelModerate},
		{25, LevelModerate},
		{24, LevelLow},
		{0, LevelLow},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelFor(tt.score), "score %d", tt.score)
	}
}

func TestScoreRegion_ScenarioThreeEventsOneRecent(t *testing.T) {
	events := []SeismicEvent{
		{Magnitude: 2.1, TimeMs: testNow.Add(-48 * time.Hour).UnixMilli(), Place: "12 km NE of Ridgecrest, CA"},
		{Magnitude: 4.2, TimeMs: testNow.Add(-30 * time.Hour).UnixMilli(), Place: "Northern California"},
		{Magnitude: 6.5, TimeMs: testNow.Add(-1 * time.Hour).UnixMilli(), Place: "Southern California"},
	}
	clusters := ClusterRegions(events, testNow)
	require.Len(t, clusters, 1)

	got := ScoreRegion(RegionInput{Seismic: clusters[0].Summary(), Now: testNow}, nil)

	assert.Equal(t, 46, got.Score)
	assert.Equal(t, LevelElevated, got.Level)
	assert.Equal(t, []string{"Baseline Activity", "Seismic Volume", "Major Magnitude Breach", "Recent Activity"}, factorNames(got))
	assert.Equal(t, 6, got.Factors[1].Weight)
	assert.Equal(t, 25, got.Factors[2].Weight)
	assert.Equal(t, 5, got.Factors[3].Weight)
}

func TestScoreRegion_MagnitudeTiersAreExclusive(t *testing.T) {
	tests := []struct {
		name   string
		mag    float64
		factor string
		weight int
	}{
		{"major", 6.0, "Major Magnitude Breach", 25},
		{"strong", 5.4, "Strong Magnitude", 18},
		{"moderate", 4.0, "Moderate Magnitude", 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreRegion(RegionInput{Seismic: SeismicSummary{EventCount: 1, MaxMagnitude: tt.mag}}, nil)
			require.Len(t, got.Factors, 3)
			assert.Equal(t, tt.factor, got.Factors[2].Name)
			assert.Equal(t, tt.weight, got.Factors[2].Weight)
			assert.Equal(t, 10+2+tt.weight, got.Score)
		})
	}

	below := ScoreRegion(RegionInput{Seismic: SeismicSummary{EventCount: 1, MaxMagnitude: 3.9}}, nil)
	assert.Equal(t, []string{"Baseline Activity", "Seismic Volume"}, factorNames(below))
}

func TestScoreRegion_VolumeAndRecentCaps(t *testing.T) {
	got := ScoreRegion(RegionInput{Seismic: SeismicSummary{EventCount: 40, MaxMagnitude: 2, RecentCount: 10}}, nil)
	assert.Equal(t, 10+25+15, got.Score)
}

func TestScoreRegion_NoInputsIsBaselineOnly(t *testing.T) {
	got := ScoreRegion(RegionInput{Now: testNow}, nil)
	assert.Equal(t, 10, got.Score)
	assert.Equal(t, LevelLow, got.Level)
	assert.Equal(t, []string{"Baseline Activity"}, factorNames(got))
}

func TestScoreRegion_AtmosphericRules(t *testing.T) {
	rise, set := daylight(6, 18)

	tests := []struct {
		name    string
		snap    AtmosphericSnapshot
		factors []string
		score   int
	}{
		{
			name:    "calm daylight",
			snap:    AtmosphericSnapshot{TemperatureC: 18, PressureHPa: 1012, WindSpeedKmh: 10, CloudCoverPct: 20, WeatherCode: 1, Sunrise: rise, Sunset: set},
			factors: []string{"Baseline Activity", "Darkness"},
			score:   18,
		},
		{
			name:    "showers freezing elevated wind",
			snap:    AtmosphericSnapshot{TemperatureC: -4, PressureHPa: 1000, WindSpeedKmh: 35, CloudCoverPct: 50, WeatherCode: 81},
			factors: []string{"Baseline Activity", "Precipitation Cells", "Freezing Conditions", "Elevated Winds"},
			score:   10 + 8 + 6 + 5,
		},
		{
			name:    "storm extreme heat low pressure gale overcast",
			snap:    AtmosphericSnapshot{TemperatureC: 42, PressureHPa: 985, WindSpeedKmh: 60, CloudCoverPct: 95, WeatherCode: 96},
			factors: []string{"Baseline Activity", "Severe Storm", "Extreme Temperature", "Pressure Distortion", "High Winds", "Dense Cloud Cover"},
			score:   10 + 18 + 12 + 8 + 10 + 4,
		},
		{
			name:    "deep cold counts as extreme only",
			snap:    AtmosphericSnapshot{TemperatureC: -12, PressureHPa: 1013},
			factors: []string{"Baseline Activity", "Extreme Temperature"},
			score:   22,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := tt.snap
			got := ScoreRegion(RegionInput{Atmospheric: &snap, Now: testNow}, nil)
			assert.Equal(t, tt.factors, factorNames(got))
			assert.Equal(t, tt.score, got.Score)
		})
	}
}

func TestScoreRegion_ClampsToHundred(t *testing.T) {
	rise, set := daylight(6, 18)
	snap := AtmosphericSnapshot{
		TemperatureC: 45, PressureHPa: 970, WindSpeedKmh: 80, CloudCoverPct: 100,
		WeatherCode: 99, Sunrise: rise, Sunset: set,
	}

	got := ScoreRegion(RegionInput{
		Seismic:     SeismicSummary{EventCount: 30, MaxMagnitude: 7.1, RecentCount: 9},
		Atmospheric: &snap,
		Now:         testNow,
	}, fixedNoise(4))

	assert.Equal(t, 100, got.Score)
	assert.Equal(t, LevelCritical, got.Level)
}

func TestScoreRegion_NoiseVisibilityThreshold(t *testing.T) {
	hidden := ScoreRegion(RegionInput{}, fixedNoise(2))
	assert.Equal(t, 12, hidden.Score)
	assert.NotContains(t, factorNames(hidden), "Unexplained Fluctuation")

	shown := ScoreRegion(RegionInput{}, fixedNoise(3))
	assert.Equal(t, 13, shown.Score)
	assert.Contains(t, factorNames(shown), "Unexplained Fluctuation")

	capped := ScoreRegion(RegionInput{}, fixedNoise(9))
	assert.Equal(t, 14, capped.Score, "region noise never exceeds 4")
}

func TestScorePoint_NoiseVisibilityThreshold(t *testing.T) {
	hidden := ScorePoint(PointInput{}, fixedNoise(3))
	assert.Equal(t, 18, hidden.Score)
	assert.Len(t, hidden.Factors, 1)

	shown := ScorePoint(PointInput{}, fixedNoise(7))
	assert.Equal(t, 22, shown.Score)
	assert.Equal(t, "Unexplained Fluctuation", shown.Factors[len(shown.Factors)-1].Name)
}

func TestScorePoint_SeismicRules(t *testing.T) {
	nearby := []NearbyEvent{
		{SeismicEvent: SeismicEvent{Magnitude: 3.5}, DistanceKm: 20},
		{SeismicEvent: SeismicEvent{Magnitude: 4.56}, DistanceKm: 80},
	}

	got := ScorePoint(PointInput{Nearby: nearby, Now: testNow}, nil)

	assert.Equal(t, []string{"Baseline Activity", "Seismic Volume", "Magnitude Breach"}, factorNames(got))
	assert.Equal(t, 15+10+16, got.Score)
	assert.Equal(t, LevelElevated, got.Level)
}

func TestScorePoint_MagnitudeBonusCapped(t *testing.T) {
	nearby := []NearbyEvent{{SeismicEvent: SeismicEvent{Magnitude: 8.2}}}
	got := ScorePoint(PointInput{Nearby: nearby}, nil)
	assert.Equal(t, 20, got.Factors[2].Weight)
	assert.Equal(t, 15+5+20, got.Score)
}

func TestScorePoint_VolumeCap(t *testing.T) {
	nearby := make([]NearbyEvent, 9)
	got := ScorePoint(PointInput{Nearby: nearby}, nil)
	assert.Equal(t, 15+30, got.Score)
}

func TestScorePoint_AtmosphericWeights(t *testing.T) {
	rise, set := daylight(6, 18)
	snap := AtmosphericSnapshot{
		TemperatureC: -15, PressureHPa: 1035, WindSpeedKmh: 55, CloudCoverPct: 85,
		WeatherCode: 95, Sunrise: rise, Sunset: set,
	}

	got := ScorePoint(PointInput{Atmospheric: &snap, Now: testNow}, nil)

	assert.Equal(t, 15+20+15+10+12+5+10, got.Score)
	assert.Equal(t, LevelCritical, got.Level)

	// Point mode has no elevated-wind tier.
	mild := AtmosphericSnapshot{PressureHPa: 1013, WindSpeedKmh: 40, TemperatureC: 10}
	got = ScorePoint(PointInput{Atmospheric: &mild, Now: testNow}, nil)
	assert.Equal(t, 15, got.Score)
}

func TestScore_DeterministicWithoutNoise(t *testing.T) {
	rise, set := daylight(6, 18)
	snap := AtmosphericSnapshot{TemperatureC: 41, PressureHPa: 1031, WindSpeedKmh: 45, CloudCoverPct: 81, WeatherCode: 82, Sunrise: rise, Sunset: set}
	in := RegionInput{Seismic: SeismicSummary{EventCount: 4, MaxMagnitude: 5.1, RecentCount: 2}, Atmospheric: &snap, Now: testNow}

	first := ScoreRegion(in, nil)
	second := ScoreRegion(in, nil)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("region scoring not deterministic (-first +second):\n%s", diff)
	}
}

func TestScore_NoiseOnlyShiftsScoreWithinRange(t *testing.T) {
	in := RegionInput{Seismic: SeismicSummary{EventCount: 3, MaxMagnitude: 4.4, RecentCount: 1}, Now: testNow}
	base := ScoreRegion(in, nil)
	noisy := NewNoise(42)

	for range 50 {
		got := ScoreRegion(in, noisy)
		assert.GreaterOrEqual(t, got.Score, base.Score)
		assert.LessOrEqual(t, got.Score, base.Score+4)
		assert.GreaterOrEqual(t, got.Score, 0)
		assert.LessOrEqual(t, got.Score, 100)
	}
}

func TestNewNoise_SeededIsReproducible(t *testing.T) {
	a, b := NewNoise(7), NewNoise(7)
	for range 20 {
		assert.Equal(t, a.IntN(8), b.IntN(8))
	}
}

func TestAtmosphericSnapshot_IsDark(t *testing.T) {
	rise, set := daylight(6, 18)
	snap := AtmosphericSnapshot{Sunrise: rise, Sunset: set}

	assert.True(t, snap.IsDark(time.Date(2024, time.April, 26, 5, 59, 0, 0, time.UTC)))
	assert.False(t, snap.IsDark(time.Date(2024, time.April, 26, 12, 0, 0, 0, time.UTC)))
	assert.True(t, snap.IsDark(time.Date(2024, time.April, 26, 18, 1, 0, 0, time.UTC)))
	assert.False(t, AtmosphericSnapshot{}.IsDark(testNow), "unknown daylight is never dark")
}

func TestAtmosphericSnapshot_IsDark_WindowWrapsMidnight(t *testing.T) {
	// San Francisco on a UTC calendar date: sunrise 14:20Z, sunset 01:30Z.
	rise := time.Date(2024, time.April, 26, 14, 20, 0, 0, time.UTC)
	set := time.Date(2024, time.April, 26, 1, 30, 0, 0, time.UTC)
	snap := AtmosphericSnapshot{Sunrise: &rise, Sunset: &set}

	assert.False(t, snap.IsDark(time.Date(2024, time.April, 26, 20, 0, 0, 0, time.UTC)), "local midday")
	assert.False(t, snap.IsDark(time.Date(2024, time.April, 27, 0, 45, 0, 0, time.UTC)), "local evening before sunset")
	assert.True(t, snap.IsDark(time.Date(2024, time.April, 26, 8, 0, 0, 0, time.UTC)), "local midnight")
	assert.True(t, snap.IsDark(time.Date(2024, time.April, 26, 14, 0, 0, 0, time.UTC)), "just before sunrise")
}

func TestAtmosphericSnapshot_IsDark_ComparesTimeOfDay(t *testing.T) {
	rise, set := daylight(6, 18)
	snap := AtmosphericSnapshot{Sunrise: rise, Sunset: set}

	nextDay := time.Date(2024, time.April, 27, 12, 0, 0, 0, time.UTC)
	assert.False(t, snap.IsDark(nextDay), "a cached snapshot still knows when the sun is up")
}
