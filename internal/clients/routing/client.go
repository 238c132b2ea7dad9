// Package routing is the HTTP client for the route planning backend.
// The backend computes fastest and safest route candidates, annotates
// them with crime risk indices, and reports traffic-driven alternatives
// for in-progress sessions.
package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/saferoute/navigator/internal/lib/geo"
	"github.com/saferoute/navigator/internal/lib/guidance"
	"github.com/saferoute/navigator/internal/lib/navigation"
	"github.com/saferoute/navigator/internal/lib/risk"
)

// HTTPDoer abstracts the HTTP client for testability.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client calls the route planning backend. It implements
// navigation.RouteCalculator.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPDoer
}

// NewClient creates a routing client with a default HTTP client.
func NewClient(apiKey, baseURL string) *Client {
	return NewClientWithHTTPDoer(apiKey, baseURL, &http.Client{
		Timeout: 30 * time.Second,
	})
}

// NewClientWithHTTPDoer creates a routing client with a custom HTTP doer.
func NewClientWithHTTPDoer(apiKey, baseURL string, doer HTTPDoer) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: doer,
	}
}

// CalculateRoute requests a route between two points. preferSafe asks
// the backend to weigh crime risk indices over travel time when ranking
// candidates.
func (c *Client) CalculateRoute(ctx context.Context, origin, destination geo.Point, preferSafe bool) (*navigation.Route, error) {
	reqBody := computeRouteRequest{
		Origin:      origin,
		Destination: destination,
		PreferSafe:  preferSafe,
	}

	var response routeResponse
	if err := c.post(ctx, "/api/v1/routes", reqBody, &response); err != nil {
		return nil, err
	}
	if response.Route == nil {
		return nil, fmt.Errorf("no route found in response")
	}

	route, err := response.Route.toRoute()
	if err != nil {
		return nil, fmt.Errorf("failed to convert route: %w", err)
	}
	return route, nil
}

// CheckTrafficUpdate asks the backend whether traffic conditions have
// produced a meaningfully faster alternative for the session's remaining
// journey.
func (c *Client) CheckTrafficUpdate(ctx context.Context, sessionID string, position geo.Point) (*navigation.TrafficUpdate, error) {
	reqBody := trafficCheckRequest{
		SessionID: sessionID,
		Position:  position,
	}

	var response trafficCheckResponse
	if err := c.post(ctx, "/api/v1/routes/traffic-check", reqBody, &response); err != nil {
		return nil, err
	}

	update := &navigation.TrafficUpdate{HasUpdate: response.HasUpdate}
	if response.HasUpdate && response.AlternativeRoute != nil {
		route, err := response.AlternativeRoute.toRoute()
		if err != nil {
			return nil, fmt.Errorf("failed to convert alternative route: %w", err)
		}
		update.AlternativeRoute = route
	}
	return update, nil
}

// post executes a JSON POST against the backend and decodes the
// response into out.
func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 429 {
		return fmt.Errorf("rate limit exceeded")
	}
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type computeRouteRequest struct {
	Origin      geo.Point `json:"origin"`
	Destination geo.Point `json:"destination"`
	PreferSafe  bool      `json:"prefer_safe"`
}

type trafficCheckRequest struct {
	SessionID string    `json:"session_id"`
	Position  geo.Point `json:"position"`
}

type routeResponse struct {
	Route *routePayload `json:"route"`
}

type trafficCheckResponse struct {
	HasUpdate        bool          `json:"has_update"`
	AlternativeRoute *routePayload `json:"alternative_route,omitempty"`
}

// routePayload is the backend's wire representation of a route. The
// polyline arrives in Google encoded polyline format.
type routePayload struct {
	ID               string               `json:"id"`
	EncodedPolyline  string               `json:"encoded_polyline"`
	DistanceMeters   float64              `json:"distance_meters"`
	DurationSeconds  float64              `json:"duration_seconds"`
	Instructions     []instructionPayload `json:"instructions"`
	RiskPoints       []riskPointPayload   `json:"risk_points,omitempty"`
	MaxRiskIndex     float64              `json:"max_risk_index"`
	AverageRiskIndex float64              `json:"average_risk_index"`
}

type instructionPayload struct {
	Text           string    `json:"text"`
	Maneuver       string    `json:"maneuver"`
	DistanceMeters float64   `json:"distance_meters"`
	Location       geo.Point `json:"location"`
}

type riskPointPayload struct {
	ID        string    `json:"id"`
	Location  geo.Point `json:"location"`
	CrimeType string    `json:"crime_type"`
	Severity  int       `json:"severity"`
}

func (p *routePayload) toRoute() (*navigation.Route, error) {
	polyline, err := geo.DecodePolyline(p.EncodedPolyline)
	if err != nil {
		return nil, fmt.Errorf("failed to decode polyline: %w", err)
	}
	if len(p.Instructions) == 0 {
		return nil, fmt.Errorf("route has no instructions")
	}

	instructions := make([]guidance.Instruction, 0, len(p.Instructions))
	for _, instr := range p.Instructions {
		instructions = append(instructions, guidance.Instruction{
			Text:           instr.Text,
			Maneuver:       guidance.Maneuver(instr.Maneuver),
			DistanceMeters: instr.DistanceMeters,
			Coordinates:    instr.Location,
		})
	}

	var riskPoints []risk.Point
	for _, rp := range p.RiskPoints {
		riskPoints = append(riskPoints, risk.Point{
			ID:        rp.ID,
			Location:  rp.Location,
			CrimeType: rp.CrimeType,
			Severity:  rp.Severity,
		})
	}

	return &navigation.Route{
		ID:               p.ID,
		Polyline:         polyline,
		DistanceMeters:   p.DistanceMeters,
		DurationSeconds:  p.DurationSeconds,
		Instructions:     instructions,
		RiskPoints:       riskPoints,
		MaxRiskIndex:     p.MaxRiskIndex,
		AverageRiskIndex: p.AverageRiskIndex,
	}, nil
}
