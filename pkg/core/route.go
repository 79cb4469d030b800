package core

import (
	"fmt"

	"github.com/NERVsystems/ecoroute/pkg/geo"
)

// RouteSummary is the provider-independent result of a routing request
type RouteSummary struct {
	Provider            string  `json:"provider"`
	DistanceMeters      float64 `json:"distance_m"`
	DurationSeconds     float64 `json:"duration_s"`
	TrafficDelaySeconds float64 `json:"traffic_delay_s"`
	Polyline            string  `json:"polyline,omitempty"`
	Summary             string  `json:"summary,omitempty"`
}

// DistanceKm returns the route length in kilometres
func (r RouteSummary) DistanceKm() float64 {
	return r.DistanceMeters / 1000
}

// DurationMinutes returns the travel time in minutes
func (r RouteSummary) DurationMinutes() float64 {
	return r.DurationSeconds / 60
}

// routeKey builds a cache key from the endpoints, rounded to roughly 10 cm
func routeKey(from, to geo.Location, extra string) string {
	return fmt.Sprintf("%.6f,%.6f;%.6f,%.6f|%s",
		from.Latitude, from.Longitude, to.Latitude, to.Longitude, extra)
}
