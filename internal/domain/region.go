package domain

import (
	"sort"
	"strings"
	"time"
)

// recentWindow is the trailing window counted as recent activity.
const recentWindow = 24 * time.Hour

// unknownRegion names events whose place string is empty.
const unknownRegion = "Unknown"

type regionAlias struct {
	pattern   string // lowercase substring
	canonical string
}

// stateCodes fold names ending in a US state abbreviation. They only match as
// a suffix so ", Cayman Islands" is not read as ", CA".
var stateCodes = []regionAlias{
	{", ca", "California"},
}

// regionAliases folds regional variants into one canonical name. Order
// matters: the first matching pattern wins, so longer names that contain a
// shorter one ("new mexico" vs "mexico") come first. Every canonical name must
// match its own entry before any other so folding stays idempotent.
var regionAliases = []regionAlias{
	{"new mexico", "New Mexico"},
	{"new zealand", "New Zealand"},
	{"papua new guinea", "Papua New Guinea"},
	{"mexico", "Mexico"},
	{"canada", "Canada"},
	{"california", "California"},
	{"alaska", "Alaska"},
	{"aleutian", "Alaska"},
	{"hawaii", "Hawaii"},
	{"nevada", "Nevada"},
	{"oregon", "Oregon"},
	{"washington", "Washington"},
	{"idaho", "Idaho"},
	{"montana", "Montana"},
	{"wyoming", "Wyoming"},
	{"yellowstone", "Wyoming"},
	{"utah", "Utah"},
	{"oklahoma", "Oklahoma"},
	{"texas", "Texas"},
	{"puerto rico", "Puerto Rico"},
	{"japan", "Japan"},
	{"indonesia", "Indonesia"},
	{"philippines", "Philippines"},
	{"chile", "Chile"},
	{"peru", "Peru"},
	{"tonga", "Tonga"},
	{"fiji", "Fiji"},
	{"vanuatu", "Vanuatu"},
	{"greece", "Greece"},
	{"turkey", "Turkey"},
	{"türkiye", "Turkey"},
	{"italy", "Italy"},
	{"iceland", "Iceland"},
	{"taiwan", "Taiwan"},
}

// CanonicalRegion derives the cluster name for a free-text place description.
func CanonicalRegion(place string) string {
	place = strings.TrimSpace(place)
	if place == "" {
		return unknownRegion
	}

	name := place
	if idx := strings.LastIndex(place, " of "); idx >= 0 {
		if tail := strings.TrimSpace(place[idx+len(" of "):]); tail != "" {
			name = tail
		}
	}
	return NormalizeRegion(name)
}

// NormalizeRegion applies the alias table to a region name. Names without an
// alias are returned trimmed but otherwise unchanged.
func NormalizeRegion(name string) string {
	name = strings.TrimSpace(name)
	lower := strings.ToLower(name)
	for _, a := range stateCodes {
		if strings.HasSuffix(lower, a.pattern) {
			return a.canonical
		}
	}
	for _, a := range regionAliases {
		if strings.Contains(lower, a.pattern) {
			return a.canonical
		}
	}
	return name
}

// ClusterRegions groups events by canonical region and ranks the groups by
// maxMagnitude*10 + eventCount, highest first. Groups with equal rank keep the
// order in which their region was first seen.
func ClusterRegions(events []SeismicEvent, now time.Time) []RegionCluster {
	order := make([]string, 0)
	groups := make(map[string]*RegionCluster)
	cutoff := now.Add(-recentWindow).UnixMilli()

	for _, ev := range events {
		region := CanonicalRegion(ev.Place)
		c, ok := groups[region]
		if !ok {
			c = &RegionCluster{
				Region:       region,
				Lat:          ev.Lat,
				Lon:          ev.Lon,
				MaxMagnitude: ev.Magnitude,
			}
			groups[region] = c
			order = append(order, region)
		} else if ev.Magnitude > c.MaxMagnitude {
			c.MaxMagnitude = ev.Magnitude
			c.Lat = ev.Lat
			c.Lon = ev.Lon
		}

		c.Events = append(c.Events, ev)
		c.EventCount++
		if ev.TimeMs >= cutoff {
			c.RecentCount++
		}
	}

	clusters := make([]RegionCluster, 0, len(order))
	for _, region := range order {
		c := groups[region]
		sort.SliceStable(c.Events, func(i, j int) bool {
			return c.Events[i].TimeMs < c.Events[j].TimeMs
		})
		clusters = append(clusters, *c)
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return regionRank(clusters[i]) > regionRank(clusters[j])
	})
	return clusters
}

func regionRank(c RegionCluster) float64 {
	return c.MaxMagnitude*10 + float64(c.EventCount)
}
