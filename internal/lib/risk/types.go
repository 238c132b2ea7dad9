package risk

import (
	"time"

	"github.com/saferoute/navigator/internal/lib/geo"
)

// Point is a known hazardous location near a route, annotated with the
// crime type recorded there and a 1-5 severity. Reference data supplied
// with the route; never mutated by the monitor.
type Point struct {
	ID        string    `json:"id"`
	Location  geo.Point `json:"location"`
	CrimeType string    `json:"crime_type"`
	Severity  int       `json:"severity"`
}

// Alert is an ephemeral proximity warning for a single risk point.
// Emitted as data only; the notification layer decides how to surface it.
type Alert struct {
	Point          Point     `json:"point"`
	DistanceMeters float64   `json:"distance_meters"`
	TriggeredAt    time.Time `json:"triggered_at"`
}

// MonitorConfig holds the alert distance policy
type MonitorConfig struct {
	MinLeadMeters        float64 // lead distance floor at low speed
	HighSpeedFloorMeters float64 // lead distance floor above the speed threshold
	SpeedThresholdKmh    float64 // boundary between the two regimes
	LeadSeconds          float64 // travel-time scaling factor
	RearmMarginMeters    float64 // hysteresis before a point may re-trigger
}

// DefaultMonitorConfig returns the standard alert distance policy:
// 200m floor, 500m floor above 40km/h, 15 seconds of travel time, 50m
// re-arm margin.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		MinLeadMeters:        200,
		HighSpeedFloorMeters: 500,
		SpeedThresholdKmh:    40,
		LeadSeconds:          15,
		RearmMarginMeters:    50,
	}
}
