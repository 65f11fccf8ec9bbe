package domain

import (
	"math"
	"sort"
)

const earthRadiusKm = 6371.0

// kmPerDegreeLat is the length of one degree of latitude.
const kmPerDegreeLat = 111.32

// DistanceKm returns the great-circle (haversine) distance between two points.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	φ1 := lat1 * math.Pi / 180
	φ2 := lat2 * math.Pi / 180
	dφ := (lat2 - lat1) * math.Pi / 180
	dλ := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dφ/2)*math.Sin(dφ/2) +
		math.Cos(φ1)*math.Cos(φ2)*math.Sin(dλ/2)*math.Sin(dλ/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// BoundingBoxAround returns a box enclosing a circle of radiusKm around the
// point, clamped to valid latitudes and longitudes.
func BoundingBoxAround(lat, lon, radiusKm float64) BoundingBox {
	dLat := radiusKm / kmPerDegreeLat
	box := BoundingBox{
		MinLat: math.Max(-90, lat-dLat),
		MaxLat: math.Min(90, lat+dLat),
		MinLon: -180,
		MaxLon: 180,
	}
	// Near the poles the circle spans every meridian.
	if c := math.Cos(lat * math.Pi / 180); c > 0.01 {
		if dLon := radiusKm / (kmPerDegreeLat * c); dLon < 180 {
			box.MinLon = math.Max(-180, lon-dLon)
			box.MaxLon = math.Min(180, lon+dLon)
		}
	}
	return box
}

// NearbyEvents keeps the events within radiusKm of the point, nearest first.
func NearbyEvents(events []SeismicEvent, lat, lon, radiusKm float64) []NearbyEvent {
	nearby := make([]NearbyEvent, 0, len(events))
	for _, ev := range events {
		d := DistanceKm(lat, lon, ev.Lat, ev.Lon)
		if d > radiusKm {
			continue
		}
		nearby = append(nearby, NearbyEvent{SeismicEvent: ev, DistanceKm: d})
	}
	sort.SliceStable(nearby, func(i, j int) bool {
		return nearby[i].DistanceKm < nearby[j].DistanceKm
	})
	return nearby
}
