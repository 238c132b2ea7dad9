// Package risk raises proximity alerts for known hazardous locations
// along a route, with de-duplication and re-arm hysteresis so the same
// point does not flap at the trigger boundary.
package risk

import (
	"math"
	"time"

	"github.com/saferoute/navigator/internal/lib/geo"
)

// Monitor tracks which risk points have already triggered during the
// current approach. Not safe for concurrent use; the owning session
// serializes access.
type Monitor struct {
	cfg       MonitorConfig
	triggered map[string]bool
}

// NewMonitor creates a monitor with the given alert distance policy.
func NewMonitor(cfg MonitorConfig) *Monitor {
	return &Monitor{
		cfg:       cfg,
		triggered: make(map[string]bool),
	}
}

// LeadDistance returns the alert lead distance in meters for a speed.
//
// The lead approximates the distance covered in LeadSeconds of travel,
// floored at MinLeadMeters, with a higher HighSpeedFloorMeters floor
// once the speed threshold is exceeded. Stopping distance grows with
// speed, so the lead is monotonically non-decreasing in it.
func (m *Monitor) LeadDistance(speedKmh float64) float64 {
	scaled := speedKmh * m.cfg.LeadSeconds
	if speedKmh > m.cfg.SpeedThresholdKmh {
		return math.Max(m.cfg.HighSpeedFloorMeters, scaled)
	}
	return math.Max(m.cfg.MinLeadMeters, scaled)
}

// Check evaluates the risk points against the current position and
// speed. It returns at most one alert, the most imminent by distance,
// or nil. Points that already triggered stay silent until the agent has
// moved beyond the trigger distance plus the re-arm margin.
func (m *Monitor) Check(pos geo.Point, speedKmh float64, points []Point) *Alert {
	lead := m.LeadDistance(speedKmh)

	var best *Alert
	for _, p := range points {
		d := geo.Distance(pos, p.Location)

		if m.triggered[p.ID] {
			if d > lead+m.cfg.RearmMarginMeters {
				delete(m.triggered, p.ID)
			}
			continue
		}

		if d > lead {
			continue
		}
		if best == nil || d < best.DistanceMeters {
			best = &Alert{Point: p, DistanceMeters: d}
		}
	}

	if best == nil {
		return nil
	}

	m.triggered[best.Point.ID] = true
	best.TriggeredAt = time.Now()
	return best
}

// Reset clears all trigger bookkeeping. Called when the route (and with
// it the risk point set) is replaced.
func (m *Monitor) Reset() {
	m.triggered = make(map[string]bool)
}
