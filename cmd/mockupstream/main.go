// Command mockupstream serves canned Open-Meteo forecast, Open-Meteo
// geocoding and USGS event responses for local runs of the service. Every Nth
// request to an upstream can be answered with 429 to exercise the rate-limit
// gate.
//
// Usage:
//
//	go run ./cmd/mockupstream -addr :9090 -rate-limit-every 5
//
// then point the service at it:
//
//	OPEN_METEO_FORECAST_URL=http://localhost:9090/v1/forecast \
//	OPEN_METEO_GEOCODING_URL=http://localhost:9090/v1/search \
//	USGS_EVENT_URL=http://localhost:9090/fdsnws/event/1/query \
//	go run ./cmd/riskd
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

type place struct {
	name, admin, country string
	lat, lon             float64
}

var places = []place{
	{"Anchorage", "Alaska", "United States", 61.2181, -149.9003},
	{"Tokyo", "Tokyo", "Japan", 35.6895, 139.6917},
	{"Los Angeles", "California", "United States", 34.0522, -118.2437},
	{"Reykjavik", "Capital Region", "Iceland", 64.1355, -21.8954},
	{"Santiago", "Santiago Metropolitan", "Chile", -33.4569, -70.6483},
	{"Jakarta", "Jakarta", "Indonesia", -6.2146, 106.8451},
}

// epicenters seed the generated event feed.
var epicenters = []struct {
	place    string
	lat, lon float64
	maxMag   float64
}{
	{"Kodiak, Alaska", 57.79, -152.40, 5.8},
	{"Ridgecrest, CA", 35.62, -117.67, 4.1},
	{"Honshu, Japan", 37.50, 141.20, 6.2},
	{"Grindavik, Iceland", 63.84, -22.43, 3.9},
	{"Valparaiso, Chile", -33.05, -71.62, 4.7},
	{"Pelabuhanratu, Indonesia", -6.99, 106.55, 5.1},
}

type mock struct {
	every  int
	seed   uint64
	logger *slog.Logger

	mu     sync.Mutex
	counts map[string]int
}

func main() {
	addr := flag.String("addr", ":9090", "listen address")
	every := flag.Int("rate-limit-every", 0, "answer every Nth request per upstream with 429 (0 disables)")
	seed := flag.Uint64("seed", 1, "seed for generated data")
	logLevel := flag.String("log-level", "info", "debug logs every proxied query")
	flag.Parse()

	logger := sharedobs.NewLogger(*logLevel, "text")
	m := &mock{every: *every, seed: *seed, logger: logger, counts: map[string]int{}}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/forecast", m.limited("forecast", m.handleForecast))
	mux.HandleFunc("GET /v1/search", m.limited("geocoding", m.handleSearch))
	mux.HandleFunc("GET /fdsnws/event/1/query", m.limited("usgs", m.handleEvents))
	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())

	srv := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("mock upstream listening", "addr", *addr, "rate_limit_every", *every)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// limited wraps h so every Nth request to upstream is rejected with 429.
func (m *mock) limited(upstream string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.counts[upstream]++
		n := m.counts[upstream]
		m.mu.Unlock()

		if m.every > 0 && n%m.every == 0 {
			m.logger.Info("injecting 429", "upstream", upstream, "request", n)
			w.Header().Set("Retry-After", "60")
			sharedobs.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
				"error": true, "reason": "Too many requests",
			})
			return
		}
		m.logger.Debug("request", "upstream", upstream, "query", r.URL.RawQuery)
		h(w, r)
	}
}

func (m *mock) handleForecast(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("latitude"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("longitude"), 64)
	if errLat != nil || errLon != nil {
		sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]any{"error": true, "reason": "invalid coordinates"})
		return
	}

	// Same coordinate and hour give the same conditions.
	now := time.Now().UTC().Truncate(time.Hour)
	rng := rand.New(rand.NewPCG(m.seed, uint64(now.Unix())^uint64(int64(lat*1e4))^uint64(int64(lon*1e4))<<1))
	day := now.Truncate(24 * time.Hour)
	const layout = "2006-01-02T15:04"

	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{
		"latitude":  lat,
		"longitude": lon,
		"current": map[string]any{
			"time":                 now.Format(layout),
			"temperature_2m":       round1(-15 + rng.Float64()*50),
			"relative_humidity_2m": rng.IntN(100),
			"surface_pressure":     round1(980 + rng.Float64()*60),
			"wind_speed_10m":       round1(rng.Float64() * 70),
			"precipitation":        round1(rng.Float64() * 5),
			"weather_code":         []int{0, 1, 3, 45, 61, 80, 95}[rng.IntN(7)],
			"cloud_cover":          rng.IntN(101),
		},
		"daily": map[string]any{
			"sunrise": []string{day.Add(6 * time.Hour).Format(layout)},
			"sunset":  []string{day.Add(18 * time.Hour).Format(layout)},
		},
	})
}

func (m *mock) handleSearch(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("name")))
	body := map[string]any{"generationtime_ms": 0.5}
	for _, p := range places {
		if strings.HasPrefix(strings.ToLower(p.name), name) && name != "" {
			body["results"] = []map[string]any{{
				"name": p.name, "admin1": p.admin, "country": p.country,
				"latitude": p.lat, "longitude": p.lon,
			}}
			break
		}
	}
	sharedobs.WriteJSON(w, http.StatusOK, body)
}

func (m *mock) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minMag, _ := strconv.ParseFloat(q.Get("minmagnitude"), 64)
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = 500
	}
	minLat, maxLat := parseRange(q.Get("minlatitude"), q.Get("maxlatitude"), -90, 90)
	minLon, maxLon := parseRange(q.Get("minlongitude"), q.Get("maxlongitude"), -180, 180)

	now := time.Now().UTC()
	rng := rand.New(rand.NewPCG(m.seed, uint64(now.Truncate(time.Hour).Unix())))

	features := make([]map[string]any, 0, limit)
	for _, e := range epicenters {
		for i := range 3 + rng.IntN(6) {
			mag := round1(e.maxMag - rng.Float64()*2.5)
			if i == 0 {
				mag = e.maxMag
			}
			lat := e.lat + (rng.Float64()-0.5)*0.8
			lon := e.lon + (rng.Float64()-0.5)*0.8
			if mag < minMag || lat < minLat || lat > maxLat || lon < minLon || lon > maxLon {
				continue
			}
			at := now.Add(-time.Duration(rng.Int64N(int64(6 * 24 * time.Hour))))
			features = append(features, map[string]any{
				"type": "Feature",
				"properties": map[string]any{
					"mag":   mag,
					"place": strconv.Itoa(5+rng.IntN(60)) + " km NE of " + e.place,
					"time":  at.UnixMilli(),
				},
				"geometry": map[string]any{
					"type":        "Point",
					"coordinates": []float64{lon, lat, round1(rng.Float64() * 40)},
				},
			})
		}
	}
	if len(features) > limit {
		features = features[:limit]
	}

	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{
		"type":     "FeatureCollection",
		"metadata": map[string]any{"generated": now.UnixMilli(), "count": len(features)},
		"features": features,
	})
}

func parseRange(lo, hi string, defLo, defHi float64) (float64, float64) {
	a, err := strconv.ParseFloat(lo, 64)
	if err != nil {
		a = defLo
	}
	b, err := strconv.ParseFloat(hi, 64)
	if err != nil {
		b = defHi
	}
	return a, b
}

func round1(v float64) float64 {
	return float64(int(v*10)) / 10
}
