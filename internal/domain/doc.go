// Package domain models the seismic and atmospheric data behind the hot-zone
// risk metric, and holds the pure functions that turn raw measurements into
// ranked assessments.
//
// # Data Sources
//
// Seismic events come from the USGS FDSN event service
// (https://earthquake.usgs.gov/fdsnws/event/1/) as GeoJSON. Atmospheric
// snapshots come from the Open-Meteo forecast API, and free-text locations are
// resolved with the Open-Meteo geocoding API. Both Open-Meteo endpoints share a
// single upstream quota.
//
// # USGS Place Conventions
//
// Place strings are free text, usually relative to a named locality:
//
//	"10 km SSW of Ridgecrest, CA"  ->  region "California"
//	"Andreanof Islands, Aleutian Islands, Alaska"  ->  region "Alaska"
//	"south of the Fiji Islands"  ->  region "Fiji"
//
// The region is the text after the last " of ", folded through a fixed alias
// table so that regional variants ("Northern California", "Southern
// California", "Ridgecrest, CA") land in one cluster. See [CanonicalRegion].
//
// Event times are epoch milliseconds. Coordinates are [lon, lat, depth].
//
// # Weather Codes
//
// Open-Meteo reports WMO weather interpretation codes:
//
//	80-82  rain showers
//	85-86  snow showers
//	95     thunderstorm
//	96-99  thunderstorm with hail
//
// Codes of 95 and above count as a severe storm; 80 to 94 as precipitation
// cells.
//
// # Risk Scoring
//
// Scoring is a fixed rule table, not a statistical model. Each rule adds an
// integer weight and, when it fires, records a [RiskFactor] in evaluation
// order. Two variants exist: region mode for clustered hot zones and point
// mode for on-demand location scans.
//
//	Rule                      Region          Point
//	baseline                  +10             +15
//	seismic volume            min(25, n*2)    min(30, n*5)
//	magnitude                 6/5/4 -> 25/18/10   min(20, (max-3)*10) if max >= 4
//	recent (24h)              min(15, r*5)    -
//	storm (code >= 95)        +18             +20
//	showers (80 <= code < 95) +8              +10
//	temp < -10 or > 40        +12             +15
//	temp < 0                  +6              +8
//	pressure outside 990-1030 +8              +10
//	wind > 50 km/h            +10             +12
//	wind > 30 km/h            +5              -
//	cloud cover > 80%         +4              +5
//	darkness                  +8              +10
//	noise                     0..4 (shown >2) 0..7 (shown >3)
//
// Scores clamp to [0, 100] and map to levels at 80 CRITICAL, 60 HIGH,
// 40 ELEVATED and 25 MODERATE; anything lower is LOW.
package domain
