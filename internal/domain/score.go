package domain

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Noise supplies the bounded random component of a score. IntN returns a
// value in [0, n).
type Noise interface {
	IntN(n int) int
}

// NewNoise returns the production noise source. A zero seed draws from the
// process-wide generator; any other seed yields a reproducible sequence.
func NewNoise(seed uint64) Noise {
	if seed == 0 {
		return globalNoise{}
	}
	return &seededNoise{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

type globalNoise struct{}

func (globalNoise) IntN(n int) int { return rand.IntN(n) }

// seededNoise guards a *rand.Rand, which is not safe for concurrent use.
type seededNoise struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (s *seededNoise) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

// RegionInput is everything region-mode scoring looks at.
type RegionInput struct {
	Seismic     SeismicSummary
	Atmospheric *AtmosphericSnapshot
	Now         time.Time
}

// PointInput is everything point-scan scoring looks at.
type PointInput struct {
	Nearby      []NearbyEvent
	Atmospheric *AtmosphericSnapshot
	Now         time.Time
}

// weights holds the per-mode values of the shared weather rules.
type weights struct {
	storm, showers          int
	tempExtreme, tempFreeze int
	pressure                int
	windHigh, windElevated  int
	cloud                   int
	darkness                int
	noiseRange, noiseShown  int
}

var (
	regionWeights = weights{
		storm: 18, showers: 8,
		tempExtreme: 12, tempFreeze: 6,
		pressure: 8,
		windHigh: 10, windElevated: 5,
		cloud:      4,
		darkness:   8,
		noiseRange: 5, noiseShown: 2,
	}
	pointWeights = weights{
		storm: 20, showers: 10,
		tempExtreme: 15, tempFreeze: 8,
		pressure: 10,
		windHigh: 12, windElevated: 0,
		cloud:      5,
		darkness:   10,
		noiseRange: 8, noiseShown: 3,
	}
)

// scorer accumulates a score and the factors that produced it.
type scorer struct {
	score   int
	factors []RiskFactor
}

func (s *scorer) add(name string, weight int, description string) {
	s.score += weight
	s.factors = append(s.factors, RiskFactor{Name: name, Weight: weight, Description: description})
}

func (s *scorer) result() RiskAssessment {
	score := max(0, min(100, s.score))
	return RiskAssessment{Score: score, Level: LevelFor(score), Factors: s.factors}
}

// ScoreRegion scores a hot-zone region. A nil noise source contributes zero.
func ScoreRegion(in RegionInput, noise Noise) RiskAssessment {
	var s scorer
	s.add("Baseline Activity", 10, "Ambient regional activity")

	q := in.Seismic
	if q.EventCount > 0 {
		s.add("Seismic Volume", min(25, q.EventCount*2),
			fmt.Sprintf("%d seismic events in the window", q.EventCount))
	}

	switch {
	case q.MaxMagnitude >= 6:
		s.add("Major Magnitude Breach", 25, fmt.Sprintf("Peak magnitude %.1f", q.MaxMagnitude))
	case q.MaxMagnitude >= 5:
		s.add("Strong Magnitude", 18, fmt.Sprintf("Peak magnitude %.1f", q.MaxMagnitude))
	case q.MaxMagnitude >= 4:
		s.add("Moderate Magnitude", 10, fmt.Sprintf("Peak magnitude %.1f", q.MaxMagnitude))
	}

	if q.RecentCount > 0 {
		s.add("Recent Activity", min(15, q.RecentCount*5),
			fmt.Sprintf("%d events in the last 24h", q.RecentCount))
	}

	s.applyAtmospheric(in.Atmospheric, in.Now, regionWeights)
	s.applyNoise(noise, regionWeights)
	return s.result()
}

// ScorePoint scores an on-demand location scan. A nil noise source contributes zero.
func ScorePoint(in PointInput, noise Noise) RiskAssessment {
	var s scorer
	s.add("Baseline Activity", 15, "Ambient activity at the scanned location")

	if n := len(in.Nearby); n > 0 {
		s.add("Seismic Volume", min(30, n*5), fmt.Sprintf("%d seismic events nearby", n))

		maxMag := in.Nearby[0].Magnitude
		for _, ev := range in.Nearby[1:] {
			maxMag = math.Max(maxMag, ev.Magnitude)
		}
		if maxMag >= 4 {
			bonus := min(20, int(math.Round((maxMag-3)*10)))
			s.add("Magnitude Breach", bonus, fmt.Sprintf("Peak nearby magnitude %.1f", maxMag))
		}
	}

	s.applyAtmospheric(in.Atmospheric, in.Now, pointWeights)
	s.applyNoise(noise, pointWeights)
	return s.result()
}

func (s *scorer) applyAtmospheric(a *AtmosphericSnapshot, now time.Time, w weights) {
	if a == nil {
		return
	}

	switch {
	case a.WeatherCode >= 95:
		s.add("Severe Storm", w.storm, fmt.Sprintf("Weather code %d", a.WeatherCode))
	case a.WeatherCode >= 80:
		s.add("Precipitation Cells", w.showers, fmt.Sprintf("Weather code %d", a.WeatherCode))
	}

	switch {
	case a.TemperatureC < -10 || a.TemperatureC > 40:
		s.add("Extreme Temperature", w.tempExtreme, fmt.Sprintf("%.1f°C", a.TemperatureC))
	case a.TemperatureC < 0:
		s.add("Freezing Conditions", w.tempFreeze, fmt.Sprintf("%.1f°C", a.TemperatureC))
	}

	if a.PressureHPa < 990 || a.PressureHPa > 1030 {
		s.add("Pressure Distortion", w.pressure, fmt.Sprintf("%.0f hPa", a.PressureHPa))
	}

	switch {
	case a.WindSpeedKmh > 50:
		s.add("High Winds", w.windHigh, fmt.Sprintf("%.0f km/h", a.WindSpeedKmh))
	case a.WindSpeedKmh > 30 && w.windElevated > 0:
		s.add("Elevated Winds", w.windElevated, fmt.Sprintf("%.0f km/h", a.WindSpeedKmh))
	}

	if a.CloudCoverPct > 80 {
		s.add("Dense Cloud Cover", w.cloud, fmt.Sprintf("%.0f%% cover", a.CloudCoverPct))
	}

	if a.IsDark(now) {
		s.add("Darkness", w.darkness, "Outside daylight hours")
	}
}

// applyNoise always adds the drawn value but only records it as a factor
// above the mode's visibility threshold.
func (s *scorer) applyNoise(noise Noise, w weights) {
	if noise == nil {
		return
	}
	n := noise.IntN(w.noiseRange)
	if n > w.noiseShown {
		s.add("Unexplained Fluctuation", n, "Unattributed signal variance")
		return
	}
	s.score += n
}

// LevelFor maps a score to its severity band.
func LevelFor(score int) Level {
	switch {
	case score >= 80:
		return LevelCritical
	case score >= 60:
		return LevelHigh
	case score >= 40:
		return LevelElevated
	case score >= 25:
		return LevelModerate
	default:
		return LevelLow
	}
}
