// Package services wires the guidance libraries, external clients and
// cache into the server's navigation API.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/google/uuid"

	"github.com/saferoute/navigator/internal/cache"
	"github.com/saferoute/navigator/internal/clients/riskfeed"
	"github.com/saferoute/navigator/internal/config"
	"github.com/saferoute/navigator/internal/lib/alerts"
	"github.com/saferoute/navigator/internal/lib/geo"
	"github.com/saferoute/navigator/internal/lib/navigation"
	"github.com/saferoute/navigator/internal/lib/risk"
)

// ErrSessionNotFound is returned for unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// NavigationService manages live navigation sessions.
type NavigationService struct {
	mu       sync.RWMutex
	sessions map[string]*navigation.Session

	calculator navigation.RouteCalculator
	riskFeed   *riskfeed.FeedParser
	enhancer   alerts.NarrationEnhancer // nil disables language-model narration
	cache      *cache.Cache
	config     *config.Config
}

// NewNavigationService creates a navigation service.
func NewNavigationService(calculator navigation.RouteCalculator, riskFeed *riskfeed.FeedParser, enhancer alerts.NarrationEnhancer, cacheInstance *cache.Cache, cfg *config.Config) *NavigationService {
	return &NavigationService{
		sessions:   make(map[string]*navigation.Session),
		calculator: calculator,
		riskFeed:   riskFeed,
		enhancer:   enhancer,
		cache:      cacheInstance,
		config:     cfg,
	}
}

// PositionUpdate is the result of applying one position sample: the
// guidance tick plus any narration output ready for text-to-speech.
type PositionUpdate struct {
	Tick           navigation.Tick           `json:"tick"`
	NarrationText  string                    `json:"narration_text,omitempty"`
	AlertNarration *alerts.EnhancedNarration `json:"alert_narration,omitempty"`
}

// StartSession calculates a route and begins guidance. Risk points from
// the hotspot feed are merged into the route before the session starts.
func (s *NavigationService) StartSession(ctx context.Context, origin, destination geo.Point, preference navigation.Preference) (navigation.Snapshot, error) {
	preferSafe := preference == navigation.PreferenceSafest

	route, err := s.calculator.CalculateRoute(ctx, origin, destination, preferSafe)
	if err != nil {
		return navigation.Snapshot{}, fmt.Errorf("failed to calculate route: %w", err)
	}

	route.RiskPoints = s.mergeRiskPoints(ctx, route.RiskPoints, route.Polyline)

	session := navigation.NewSession(uuid.NewString(), s.calculator, s.config.NavigationSettings())
	if err := session.Start(route, preference, &destination); err != nil {
		return navigation.Snapshot{}, err
	}

	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()

	logging.Infow(ctx, "Navigation session started",
		"session_id", session.ID(),
		"route_id", route.ID,
		"preference", string(preference),
		"risk_points", len(route.RiskPoints))

	return session.Snapshot(), nil
}

// UpdatePosition applies a position sample and assembles narration
// output for anything the tick flagged.
func (s *NavigationService) UpdatePosition(ctx context.Context, sessionID string, position geo.Point, speedKmh float64) (*PositionUpdate, error) {
	session, err := s.sessionByID(sessionID)
	if err != nil {
		return nil, err
	}

	tick, err := session.UpdatePosition(position, speedKmh)
	if err != nil {
		return nil, err
	}

	update := &PositionUpdate{Tick: tick}
	if tick.ShouldNarrate {
		update.NarrationText = tick.Instruction.Text
	}
	if tick.Alert != nil {
		update.AlertNarration = s.narrateAlert(ctx, tick.Alert)
	}
	return update, nil
}

// GetSession returns a read-only view of a session.
func (s *NavigationService) GetSession(sessionID string) (navigation.Snapshot, error) {
	session, err := s.sessionByID(sessionID)
	if err != nil {
		return navigation.Snapshot{}, err
	}
	return session.Snapshot(), nil
}

// EndSession ends guidance and removes the session.
func (s *NavigationService) EndSession(ctx context.Context, sessionID string) error {
	session, err := s.sessionByID(sessionID)
	if err != nil {
		return err
	}
	if err := session.End(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	logging.Infow(ctx, "Navigation session ended", "session_id", sessionID)
	return nil
}

// MarkNarrated acknowledges instruction narration for a session.
func (s *NavigationService) MarkNarrated(sessionID string) error {
	session, err := s.sessionByID(sessionID)
	if err != nil {
		return err
	}
	session.MarkNarrated()
	return nil
}

// DismissAlert acknowledges the pending risk alert for a session.
func (s *NavigationService) DismissAlert(sessionID string) error {
	session, err := s.sessionByID(sessionID)
	if err != nil {
		return err
	}
	session.DismissAlert()
	return nil
}

// AcknowledgeRecalculation clears the recalculation flag for a session.
func (s *NavigationService) AcknowledgeRecalculation(sessionID string) error {
	session, err := s.sessionByID(sessionID)
	if err != nil {
		return err
	}
	session.AcknowledgeRecalculation()
	return nil
}

// AcceptAlternativeRoute installs a pending traffic alternative.
func (s *NavigationService) AcceptAlternativeRoute(sessionID string) error {
	session, err := s.sessionByID(sessionID)
	if err != nil {
		return err
	}
	return session.AcceptAlternativeRoute()
}

// RejectAlternativeRoute discards a pending traffic alternative.
func (s *NavigationService) RejectAlternativeRoute(sessionID string) error {
	session, err := s.sessionByID(sessionID)
	if err != nil {
		return err
	}
	session.RejectAlternativeRoute()
	return nil
}

// RunChecks sweeps every session once: deviation-driven recalculation
// and the periodic traffic check. Sessions rate-limit themselves, so
// calling this on a short interval is safe.
func (s *NavigationService) RunChecks(ctx context.Context) {
	s.mu.RLock()
	sessions := make([]*navigation.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.RUnlock()

	for _, session := range sessions {
		if err := session.CheckForRecalculation(ctx); err != nil {
			logging.Warnw(ctx, "Recalculation failed, keeping current route",
				"session_id", session.ID(), "error", err)
		}
		if err := session.CheckTrafficUpdate(ctx); err != nil {
			logging.Warnw(ctx, "Traffic check failed",
				"session_id", session.ID(), "error", err)
		}
	}
}

// SessionCount returns the number of live sessions.
func (s *NavigationService) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *NavigationService) sessionByID(sessionID string) (*navigation.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// mergeRiskPoints combines the route's own risk points with hotspots
// from the municipal feed. Feed failures degrade to the route's points.
func (s *NavigationService) mergeRiskPoints(ctx context.Context, routePoints []risk.Point, polyline []geo.Point) []risk.Point {
	if s.riskFeed == nil {
		return routePoints
	}

	feedPoints, err := s.loadFeedPoints(ctx, polyline)
	if err != nil {
		logging.Warnw(ctx, "Risk feed unavailable, using route risk points only", "error", err)
		return routePoints
	}

	seen := make(map[string]bool, len(routePoints))
	for _, point := range routePoints {
		seen[point.ID] = true
	}

	merged := routePoints
	for _, point := range feedPoints {
		if !seen[point.ID] {
			merged = append(merged, point)
		}
	}
	return merged
}

// loadFeedPoints fetches hotspots near the polyline, serving from cache
// within the feed's refresh interval.
func (s *NavigationService) loadFeedPoints(ctx context.Context, polyline []geo.Point) ([]risk.Point, error) {
	cacheKey := "riskfeed:hotspots"

	var hotspots []riskfeed.Hotspot
	found, err := s.cache.Get(cacheKey, &hotspots)
	if err != nil {
		logging.Warnw(ctx, "Risk feed cache read failed", "error", err)
	}

	if !found {
		hotspots, err = s.riskFeed.ParseHotspots(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(cacheKey, hotspots, s.config.RiskFeed.RefreshInterval, "riskfeed"); err != nil {
			logging.Warnw(ctx, "Failed to cache risk feed hotspots", "error", err)
		}
	}

	var points []risk.Point
	for _, hotspot := range hotspots {
		for _, coord := range polyline {
			if geo.Distance(coord, hotspot.Location) <= s.config.RiskFeed.RadiusMeters {
				points = append(points, risk.Point{
					ID:        hotspot.ID,
					Location:  hotspot.Location,
					CrimeType: hotspot.CrimeType,
					Severity:  hotspot.Severity,
				})
				break
			}
		}
	}
	return points, nil
}

// narrateAlert produces a speakable narration for a risk alert. The
// language model is best-effort; on any failure the templated fallback
// is used so the traveler is never left without a warning.
func (s *NavigationService) narrateAlert(ctx context.Context, alert *risk.Alert) *alerts.EnhancedNarration {
	raw := alerts.RawAlert{
		ID:             alert.Point.ID,
		CrimeType:      alert.Point.CrimeType,
		Severity:       alert.Point.Severity,
		DistanceMeters: alert.DistanceMeters,
		Timestamp:      alert.TriggeredAt,
	}

	if s.enhancer != nil {
		enhanceCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if enhanced, err := s.enhancer.EnhanceAlert(enhanceCtx, raw); err == nil {
			return &enhanced
		} else {
			logging.Warnw(ctx, "Narration enhancement failed, using fallback",
				"alert_id", raw.ID, "error", err)
		}
	}

	return &alerts.EnhancedNarration{
		ID:          raw.ID,
		Text:        alerts.FallbackNarration(raw),
		Urgency:     alerts.UrgencyForSeverity(raw.Severity),
		ProcessedAt: time.Now(),
	}
}
