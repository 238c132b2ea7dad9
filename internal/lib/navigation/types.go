package navigation

import (
	"context"
	"errors"
	"time"

	"github.com/saferoute/navigator/internal/lib/geo"
	"github.com/saferoute/navigator/internal/lib/guidance"
	"github.com/saferoute/navigator/internal/lib/risk"
)

// Preference is the user's route-type choice, preserved across every
// recalculation until explicitly changed.
type Preference string

const (
	PreferenceFastest Preference = "fastest"
	PreferenceSafest  Preference = "safest"
)

// State is the session lifecycle state. Recalculating is a sub-state of
// Active (guidance continues on the old route while a new one is
// fetched), tracked by the IsRecalculating flag rather than a separate
// state value.
type State string

const (
	StateIdle   State = "idle"
	StateActive State = "active"
	StateEnded  State = "ended"
)

// Route is a computed path with its guidance and risk annotations.
// Owned exclusively by the active session once navigation starts and
// replaced wholesale on recalculation.
type Route struct {
	ID               string                 `json:"id"`
	Polyline         []geo.Point            `json:"polyline"`
	DistanceMeters   float64                `json:"distance_meters"`
	DurationSeconds  float64                `json:"duration_seconds"`
	Instructions     []guidance.Instruction `json:"instructions"`
	RiskPoints       []risk.Point           `json:"risk_points"`
	MaxRiskIndex     float64                `json:"max_risk_index"`
	AverageRiskIndex float64                `json:"average_risk_index"`
}

// TrafficUpdate is the result of a periodic traffic re-check
type TrafficUpdate struct {
	HasUpdate        bool   `json:"has_update"`
	AlternativeRoute *Route `json:"alternative_route,omitempty"`
}

// RouteCalculator is the external routing capability the session invokes
// to obtain a new route or a traffic-based alternative. Both calls are
// fallible and retryable; the session gates re-invocation but never the
// call's own duration.
type RouteCalculator interface {
	CalculateRoute(ctx context.Context, origin, destination geo.Point, preferSafe bool) (*Route, error)
	CheckTrafficUpdate(ctx context.Context, sessionID string, position geo.Point) (*TrafficUpdate, error)
}

// Config holds the session's guidance thresholds and pacing intervals
type Config struct {
	DeviationThresholdMeters float64
	AdvanceThresholdMeters   float64
	NarrateThresholdMeters   float64
	RecalculationCooldown    time.Duration
	TrafficCheckInterval     time.Duration
	Monitor                  risk.MonitorConfig
}

/// DefaultConfig returns the standard guidance thresholds: 30m deviation,
// 10m instruction advance, 30m narrate window, 5s recalculation
// cooldown, 60s traffic check interval.
func DefaultConfig() Config {
	return Config{
		DeviationThresholdMeters: 30,
		AdvanceThresholdMeters:   10,
		NarrateThresholdMeters:   30,
		RecalculationCooldown:    5 * time.Second,
		TrafficCheckInterval:     60 * time.Second,
		Monitor:                  risk.DefaultMonitorConfig(),
	}
}

// Misuse errors signal programmer errors (calls against a session in the
// wrong state), distinct from the recoverable network errors returned by
// recalculation. Callers can tell them apart with errors.Is.
var (
	ErrSessionActive    = errors.New("navigation session already active")
	ErrSessionNotActive = errors.New("navigation session not active")
	ErrSessionEnded     = errors.New("navigation session has ended")
	ErrNoInstructions   = errors.New("route has no instructions")
	ErrNoAlternative    = errors.New("no alternative route pending")
)

// Tick is the derived state returned by UpdatePosition, consumed by the
// presentation layer. ShouldNarrate, Alert and WasRecalculated are
// one-shot signals the caller acknowledges via MarkNarrated,
// DismissAlert and AcknowledgeRecalculation.
type Tick struct {
	Index                    int                  `json:"instruction_index"`
	Instruction              guidance.Instruction `json:"instruction"`
	ShouldNarrate            bool                 `json:"should_narrate"`
	Alert                    *risk.Alert          `json:"alert,omitempty"`
	RemainingDistanceMeters  float64              `json:"remaining_distance_meters"`
	RemainingDurationSeconds float64              `json:"remaining_duration_seconds"`
	WasRecalculated          bool                 `json:"was_recalculated"`
}

// Snapshot is a read-only copy of the session state for presentation
type Snapshot struct {
	ID                       string      `json:"id"`
	State                    State       `json:"state"`
	RouteID                  string      `json:"route_id,omitempty"`
	Preference               Preference  `json:"preference"`
	Destination              geo.Point   `json:"destination"`
	Position                 *geo.Point  `json:"position,omitempty"`
	SpeedKmh                 float64     `json:"speed_kmh"`
	InstructionIndex         int         `json:"instruction_index"`
	RemainingDistanceMeters  float64     `json:"remaining_distance_meters"`
	RemainingDurationSeconds float64     `json:"remaining_duration_seconds"`
	IsRecalculating          bool        `json:"is_recalculating"`
	WasRecalculated          bool        `json:"was_recalculated"`
	ShouldNarrate            bool        `json:"should_narrate"`
	HasPendingAlternative    bool        `json:"has_pending_alternative"`
	PendingAlert             *risk.Alert `json:"pending_alert,omitempty"`
}
