// Package navigation owns the live guidance state machine: the active
// route, deviation detection, recalculation orchestration and periodic
// traffic re-checks.
package navigation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/saferoute/navigator/internal/lib/geo"
	"github.com/saferoute/navigator/internal/lib/guidance"
	"github.com/saferoute/navigator/internal/lib/risk"
)

// Session is the navigation state machine for a single agent.
//
// All state mutation is serialized by an internal mutex; UpdatePosition
// is a synchronous, non-blocking state transition, while
// CheckForRecalculation and CheckTrafficUpdate perform network I/O
// outside the lock and re-validate the session state before applying
// results, so ending the session mid-flight discards the eventual
// response instead of resurrecting it.
type Session struct {
	mu sync.Mutex

	id         string
	cfg        Config
	calculator RouteCalculator
	scheduler  guidance.Scheduler
	monitor    *risk.Monitor

	state            State
	route            *Route
	instructionIndex int
	remainingMeters  float64
	remainingSeconds float64
	position         *geo.Point
	speedKmh         float64

	preference  Preference
	destination geo.Point

	isRecalculating     bool
	lastRecalculationAt time.Time
	lastTrafficCheckAt  time.Time
	pendingAlternative  *Route
	wasRecalculated     bool

	shouldNarrate     bool
	lastNarratedIndex int

	pendingAlert *risk.Alert
}

// NewSession creates an idle session bound to a route calculator.
func NewSession(id string, calculator RouteCalculator, cfg Config) *Session {
	return &Session{
		id:                id,
		cfg:               cfg,
		calculator:        calculator,
		scheduler:         guidance.NewScheduler(cfg.AdvanceThresholdMeters, cfg.NarrateThresholdMeters),
		monitor:           risk.NewMonitor(cfg.Monitor),
		state:             StateIdle,
		lastNarratedIndex: -1,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Start transitions Idle (or Ended) to Active with the given route.
// When destination is nil it is derived from the final instruction's
// coordinates. The depart instruction is flagged for narration
// immediately so the voice layer can announce the start of guidance.
func (s *Session) Start(route *Route, preference Preference, destination *geo.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateActive {
		return ErrSessionActive
	}
	if route == nil || len(route.Instructions) == 0 {
		return ErrNoInstructions
	}

	if preference == "" {
		preference = PreferenceFastest
	}

	s.state = StateActive
	s.route = route
	s.preference = preference
	if destination != nil {
		s.destination = *destination
	} else {
		s.destination = route.Instructions[len(route.Instructions)-1].Coordinates
	}

	s.instructionIndex = 0
	s.remainingMeters = route.DistanceMeters
	s.remainingSeconds = route.DurationSeconds
	s.position = nil
	s.speedKmh = 0

	s.isRecalculating = false
	s.lastRecalculationAt = time.Time{}
	s.lastTrafficCheckAt = time.Time{}
	s.pendingAlternative = nil
	s.wasRecalculated = false

	s.shouldNarrate = true
	s.lastNarratedIndex = -1
	s.pendingAlert = nil
	s.monitor.Reset()

	return nil
}

// UpdatePosition applies one position sample: recomputes remaining
// distance and duration, runs the instruction scheduler and the risk
// monitor, and persists the sample. Pure state transition, no I/O.
func (s *Session) UpdatePosition(pos geo.Point, speedKmh float64) (Tick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireActive(); err != nil {
		return Tick{}, err
	}

	s.remainingMeters = s.remainingDistanceFrom(pos, s.instructionIndex)
	s.remainingSeconds = s.remainingDurationFor(s.remainingMeters, speedKmh)

	tick := s.scheduler.Advance(s.route.Instructions, s.instructionIndex, s.lastNarratedIndex, pos, s.routeStart())
	s.instructionIndex = tick.Index
	s.route.Instructions[tick.Index].DistanceMeters = tick.DistanceToTarget
	if tick.ShouldNarrate {
		s.shouldNarrate = true
	}

	if alert := s.monitor.Check(pos, speedKmh, s.route.RiskPoints); alert != nil && s.pendingAlert == nil {
		s.pendingAlert = alert
	}

	s.position = &pos
	s.speedKmh = speedKmh

	return Tick{
		Index:                    s.instructionIndex,
		Instruction:              s.route.Instructions[s.instructionIndex],
		ShouldNarrate:            s.shouldNarrate,
		Alert:                    s.pendingAlert,
		RemainingDistanceMeters:  s.remainingMeters,
		RemainingDurationSeconds: s.remainingSeconds,
		WasRecalculated:          s.wasRecalculated,
	}, nil
}

// CheckForRecalculation measures the deviation from the route polyline
// and, past the deviation threshold, fetches a replacement route from
// the calculator. No-ops while idle, without a position, within the
// cooldown of the last successful recalculation, or while another
// recalculation is in flight. A failed fetch leaves the old route
// active and does not stamp the cooldown, so a retry is allowed sooner.
func (s *Session) CheckForRecalculation(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateActive || s.position == nil || s.route == nil || s.isRecalculating {
		s.mu.Unlock()
		return nil
	}
	if time.Since(s.lastRecalculationAt) < s.cfg.RecalculationCooldown {
		s.mu.Unlock()
		return nil
	}

	match := geo.DistanceToPolyline(*s.position, s.route.Polyline)
	if match.DistanceMeters <= s.cfg.DeviationThresholdMeters {
		s.mu.Unlock()
		return nil
	}

	s.isRecalculating = true
	origin := *s.position
	destination := s.destination
	preferSafe := s.preference == PreferenceSafest
	s.mu.Unlock()

	newRoute, err := s.calculator.CalculateRoute(ctx, origin, destination, preferSafe)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.isRecalculating = false

	// The session may have ended while the call was in flight; the
	// result must not resurrect it.
	if s.state != StateActive {
		return nil
	}
	if err != nil {
		return fmt.Errorf("route recalculation failed: %w", err)
	}

	s.installRoute(newRoute)
	s.wasRecalculated = true
	s.lastRecalculationAt = time.Now()
	return nil
}

// CheckTrafficUpdate queries the calculator for a possibly-faster
// alternative without deviation having occurred. Rate-limited to one
// call per TrafficCheckInterval; the timestamp advances at call start so
// failures cannot hot-loop and overlapping calls are shed. A returned
// alternative is only stored, never installed: swapping mid-navigation
// requires an explicit AcceptAlternativeRoute.
func (s *Session) CheckTrafficUpdate(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateActive || s.position == nil || s.route == nil {
		s.mu.Unlock()
		return nil
	}
	if time.Since(s.lastTrafficCheckAt) < s.cfg.TrafficCheckInterval {
		s.mu.Unlock()
		return nil
	}
	s.lastTrafficCheckAt = time.Now()
	id := s.id
	position := *s.position
	s.mu.Unlock()

	update, err := s.calculator.CheckTrafficUpdate(ctx, id, position)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return nil
	}
	if err != nil {
		// Non-critical: guidance continues, the next interval retries.
		return nil
	}
	if update != nil && update.HasUpdate && update.AlternativeRoute != nil {
		s.pendingAlternative = update.AlternativeRoute
	}
	return nil
}

// AcceptAlternativeRoute installs the pending traffic alternative.
func (s *Session) AcceptAlternativeRoute() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireActive(); err != nil {
		return err
	}
	if s.pendingAlternative == nil {
		return ErrNoAlternative
	}

	s.installRoute(s.pendingAlternative)
	s.pendingAlternative = nil
	return nil
}

// RejectAlternativeRoute discards the pending traffic alternative.
func (s *Session) RejectAlternativeRoute() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingAlternative = nil
}

// MarkNarrated acknowledges the narration signal for the current
// instruction, preventing repeat delivery.
func (s *Session) MarkNarrated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastNarratedIndex = s.instructionIndex
	s.shouldNarrate = false
}

// DismissAlert acknowledges and clears the pending risk alert. The
// monitor's own bookkeeping still suppresses a re-trigger until the
// agent has moved away and re-approached.
func (s *Session) DismissAlert() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingAlert = nil
}

// AcknowledgeRecalculation clears the one-shot recalculation flag after
// the caller has notified the user.
func (s *Session) AcknowledgeRecalculation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wasRecalculated = false
}

// End transitions the session to Ended and resets all guidance state.
// Ending twice is a misuse error.
func (s *Session) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateEnded {
		return ErrSessionEnded
	}

	s.state = StateEnded
	s.route = nil
	s.instructionIndex = 0
	s.remainingMeters = 0
	s.remainingSeconds = 0
	s.position = nil
	s.speedKmh = 0
	s.isRecalculating = false
	s.pendingAlternative = nil
	s.wasRecalculated = false
	s.shouldNarrate = false
	s.lastNarratedIndex = -1
	s.pendingAlert = nil
	s.monitor.Reset()

	return nil
}

// Snapshot returns a read-only copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:                       s.id,
		State:                    s.state,
		Preference:               s.preference,
		Destination:              s.destination,
		SpeedKmh:                 s.speedKmh,
		InstructionIndex:         s.instructionIndex,
		RemainingDistanceMeters:  s.remainingMeters,
		RemainingDurationSeconds: s.remainingSeconds,
		IsRecalculating:          s.isRecalculating,
		WasRecalculated:          s.wasRecalculated,
		ShouldNarrate:            s.shouldNarrate,
		HasPendingAlternative:    s.pendingAlternative != nil,
		PendingAlert:             s.pendingAlert,
	}
	if s.route != nil {
		snap.RouteID = s.route.ID
	}
	if s.position != nil {
		pos := *s.position
		snap.Position = &pos
	}
	return snap
}

// installRoute replaces the active route wholesale and resets the
// derived guidance state. Preference and destination are deliberately
// untouched; only explicit user action changes them. Callers hold the
// mutex.
func (s *Session) installRoute(route *Route) {
	s.route = route
	s.instructionIndex = 0
	s.lastNarratedIndex = -1
	s.shouldNarrate = true
	s.pendingAlert = nil
	s.monitor.Reset()

	if s.position != nil {
		s.remainingMeters = s.remainingDistanceFrom(*s.position, 0)
		s.remainingSeconds = s.remainingDurationFor(s.remainingMeters, s.speedKmh)
	} else {
		s.remainingMeters = route.DistanceMeters
		s.remainingSeconds = route.DurationSeconds
	}
}

// remainingDistanceFrom computes the distance from pos to the current
// instruction's target plus the inter-instruction distances of every
// later instruction. Callers hold the mutex.
func (s *Session) remainingDistanceFrom(pos geo.Point, index int) float64 {
	instructions := s.route.Instructions
	if len(instructions) == 0 {
		return 0
	}
	if index >= len(instructions) {
		index = len(instructions) - 1
	}

	target := index
	if index < len(instructions)-1 {
		target = index + 1
	}

	total := geo.Distance(pos, instructions[target].Coordinates)
	for j := target; j < len(instructions)-1; j++ {
		total += geo.Distance(instructions[j].Coordinates, instructions[j+1].Coordinates)
	}
	return total
}

// remainingDurationFor derives the remaining travel time from live
// speed when one is available. Without a speed the original estimate is
// prorated by the remaining fraction of the route, which tracks partial
// progress better than the route's static total. Callers hold the mutex.
func (s *Session) remainingDurationFor(remainingMeters, speedKmh float64) float64 {
	if speedKmh > 0 {
		return remainingMeters / (speedKmh / 3.6)
	}
	if s.route.DistanceMeters > 0 {
		return s.route.DurationSeconds * (remainingMeters / s.route.DistanceMeters)
	}
	return s.route.DurationSeconds
}

// routeStart returns the anchor for the depart-instruction advance rule.
// Callers hold the mutex.
func (s *Session) routeStart() geo.Point {
	if len(s.route.Polyline) > 0 {
		return s.route.Polyline[0]
	}
	return s.route.Instructions[0].Coordinates
}

// requireActive maps the non-Active states to their misuse errors.
// Callers hold the mutex.
func (s *Session) requireActive() error {
	switch s.state {
	case StateActive:
		return nil
	case StateEnded:
		return ErrSessionEnded
	default:
		return ErrSessionNotActive
	}
}
