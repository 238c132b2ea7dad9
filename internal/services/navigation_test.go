package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dpup/prefab/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/navigator/internal/cache"
	"github.com/saferoute/navigator/internal/clients/riskfeed"
	"github.com/saferoute/navigator/internal/config"
	"github.com/saferoute/navigator/internal/lib/geo"
	"github.com/saferoute/navigator/internal/lib/guidance"
	"github.com/saferoute/navigator/internal/lib/navigation"
)

type stubCalculator struct {
	route      *navigation.Route
	err        error
	calls      int
	preferSafe bool
}

func (s *stubCalculator) CalculateRoute(ctx context.Context, origin, destination geo.Point, preferSafe bool) (*navigation.Route, error) {
	s.calls++
	s.preferSafe = preferSafe
	return s.route, s.err
}

func (s *stubCalculator) CheckTrafficUpdate(ctx context.Context, sessionID string, position geo.Point) (*navigation.TrafficUpdate, error) {
	return &navigation.TrafficUpdate{}, nil
}

type stubFeedDoer struct {
	body string
}

func (s *stubFeedDoer) Do(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(strings.NewReader(s.body)),
		Header:     make(http.Header),
	}, nil
}

const nearbyHotspotKML = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
  <Document>
    <Placemark>
      <name>Transit stop</name>
      <description>Repeated assault reports.</description>
      <ExtendedData>
        <Data name="id"><value>hs-100</value></Data>
        <Data name="crime_type"><value>assault</value></Data>
        <Data name="severity"><value>4</value></Data>
      </ExtendedData>
      <Point><coordinates>-120.5000,38.0050,0</coordinates></Point>
    </Placemark>
    <Placemark>
      <name>Far away</name>
      <description>Theft cluster in another district.</description>
      <Point><coordinates>-121.9000,37.0000,0</coordinates></Point>
    </Placemark>
  </Document>
</kml>`

func serviceRoute() *navigation.Route {
	return &navigation.Route{
		ID: "route-1",
		Polyline: []geo.Point{
			{Latitude: 38.0000, Longitude: -120.5000},
			{Latitude: 38.0110, Longitude: -120.5000},
		},
		DistanceMeters:  1220,
		DurationSeconds: 600,
		Instructions: []guidance.Instruction{
			{Text: "Head north", Maneuver: guidance.ManeuverDepart, Coordinates: geo.Point{Latitude: 38.0000, Longitude: -120.5000}},
			{Text: "Arrive", Maneuver: guidance.ManeuverArrive, Coordinates: geo.Point{Latitude: 38.0110, Longitude: -120.5000}},
		},
	}
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Routing.APIKey = "test-key"
	cfg.RiskFeed.URL = "https://city.example.com/hotspots.kml"
	return cfg
}

func newTestService(calc navigation.RouteCalculator) *NavigationService {
	feed := riskfeed.NewFeedParserWithHTTPDoer("https://city.example.com/hotspots.kml",
		&stubFeedDoer{body: nearbyHotspotKML})
	return NewNavigationService(calc, feed, nil, cache.New(), testConfig())
}

func TestStartSession_MergesFeedRiskPoints(t *testing.T) {
	calc := &stubCalculator{route: serviceRoute()}
	svc := newTestService(calc)

	snapshot, err := svc.StartSession(logging.EnsureLogger(context.Background()),
		geo.Point{Latitude: 38.0000, Longitude: -120.5000},
		geo.Point{Latitude: 38.0110, Longitude: -120.5000},
		navigation.PreferenceSafest)

	require.NoError(t, err)
	assert.True(t, calc.preferSafe, "Safest preference reaches the calculator")
	assert.Equal(t, navigation.StateActive, snapshot.State)
	assert.NotEmpty(t, snapshot.ID)
	assert.Equal(t, 1, svc.SessionCount())

	// The nearby hotspot was merged; the distant one filtered out
	session, err := svc.GetSession(snapshot.ID)
	require.NoError(t, err)
	assert.Equal(t, snapshot.ID, session.ID)

	// Driving fast past the hotspot triggers the merged feed point
	update, err := svc.UpdatePosition(logging.EnsureLogger(context.Background()), snapshot.ID,
		geo.Point{Latitude: 38.0000, Longitude: -120.5000}, 60)
	require.NoError(t, err)
	require.NotNil(t, update.Tick.Alert)
	assert.Equal(t, "hs-100", update.Tick.Alert.Point.ID)
}

func TestStartSession_CalculatorFailure(t *testing.T) {
	calc := &stubCalculator{err: errors.New("backend unavailable")}
	svc := newTestService(calc)

	_, err := svc.StartSession(logging.EnsureLogger(context.Background()), geo.Point{}, geo.Point{}, navigation.PreferenceFastest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to calculate route")
	assert.Equal(t, 0, svc.SessionCount())
}

func TestUpdatePosition_NarrationFallback(t *testing.T) {
	calc := &stubCalculator{route: serviceRoute()}
	svc := newTestService(calc)

	snapshot, err := svc.StartSession(logging.EnsureLogger(context.Background()),
		geo.Point{Latitude: 38.0000, Longitude: -120.5000},
		geo.Point{Latitude: 38.0110, Longitude: -120.5000},
		navigation.PreferenceFastest)
	require.NoError(t, err)

	update, err := svc.UpdatePosition(logging.EnsureLogger(context.Background()), snapshot.ID,
		geo.Point{Latitude: 38.0000, Longitude: -120.5000}, 60)
	require.NoError(t, err)

	// Depart instruction is narrated at session start
	assert.True(t, update.Tick.ShouldNarrate)
	assert.Equal(t, "Head north", update.NarrationText)

	// No enhancer configured: alert narration uses the template
	require.NotNil(t, update.AlertNarration)
	assert.Contains(t, update.AlertNarration.Text, "assault")
	assert.Equal(t, "caution", update.AlertNarration.Urgency)
}

func TestUpdatePosition_UnknownSession(t *testing.T) {
	svc := newTestService(&stubCalculator{route: serviceRoute()})

	_, err := svc.UpdatePosition(logging.EnsureLogger(context.Background()), "nope", geo.Point{}, 0)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestEndSession_RemovesSession(t *testing.T) {
	calc := &stubCalculator{route: serviceRoute()}
	svc := newTestService(calc)

	snapshot, err := svc.StartSession(logging.EnsureLogger(context.Background()), geo.Point{}, geo.Point{Latitude: 38.0110, Longitude: -120.5000}, "")
	require.NoError(t, err)

	require.NoError(t, svc.EndSession(logging.EnsureLogger(context.Background()), snapshot.ID))
	assert.Equal(t, 0, svc.SessionCount())

	assert.ErrorIs(t, svc.EndSession(logging.EnsureLogger(context.Background()), snapshot.ID), ErrSessionNotFound)
}

func TestRunChecks_SweepsWithoutSessions(t *testing.T) {
	svc := newTestService(&stubCalculator{route: serviceRoute()})
	svc.RunChecks(logging.EnsureLogger(context.Background())) // no sessions, no panic
}

func TestHTTPHandler_SessionLifecycle(t *testing.T) {
	calc := &stubCalculator{route: serviceRoute()}
	svc := newTestService(calc)
	handler := svc.HTTPHandler()

	// Start
	rec := httptest.NewRecorder()
	handler(rec, testRequest("POST", "/api/v1/navigation/sessions",
		strings.NewReader(`{"origin":{"lat":38.0,"lng":-120.5},"destination":{"lat":38.011,"lng":-120.5},"preference":"fastest"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"active"`)

	var started navigation.Snapshot
	require.NoError(t, jsonDecode(rec.Body.String(), &started))

	// Snapshot
	rec = httptest.NewRecorder()
	handler(rec, testRequest("GET", "/api/v1/navigation/sessions/"+started.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	// Position update
	rec = httptest.NewRecorder()
	handler(rec, testRequest("POST", "/api/v1/navigation/sessions/"+started.ID+"/position",
		strings.NewReader(`{"position":{"lat":38.005,"lng":-120.5},"speed_kmh":20}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"tick"`)

	// Acknowledge narration
	rec = httptest.NewRecorder()
	handler(rec, testRequest("POST", "/api/v1/navigation/sessions/"+started.ID+"/narrated", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	// No pending alternative to accept
	rec = httptest.NewRecorder()
	handler(rec, testRequest("POST", "/api/v1/navigation/sessions/"+started.ID+"/alternative/accept", nil))
	require.Equal(t, http.StatusConflict, rec.Code)

	// End
	rec = httptest.NewRecorder()
	handler(rec, testRequest("POST", "/api/v1/navigation/sessions/"+started.ID+"/end", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Gone afterwards
	rec = httptest.NewRecorder()
	handler(rec, testRequest("GET", "/api/v1/navigation/sessions/"+started.ID, nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPHandler_Errors(t *testing.T) {
	svc := newTestService(&stubCalculator{err: errors.New("backend down")})
	handler := svc.HTTPHandler()

	// Calculation failure maps to 502
	rec := httptest.NewRecorder()
	handler(rec, testRequest("POST", "/api/v1/navigation/sessions",
		strings.NewReader(`{"origin":{"lat":38.0,"lng":-120.5},"destination":{"lat":38.011,"lng":-120.5}}`)))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	// Malformed body maps to 400
	rec = httptest.NewRecorder()
	handler(rec, testRequest("POST", "/api/v1/navigation/sessions", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown session maps to 404
	rec = httptest.NewRecorder()
	handler(rec, testRequest("POST", "/api/v1/navigation/sessions/nope/position",
		strings.NewReader(`{"position":{"lat":1,"lng":1},"speed_kmh":0}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Unknown action maps to 404
	rec = httptest.NewRecorder()
	handler(rec, testRequest("POST", "/api/v1/navigation/sessions/nope/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Wrong method on the collection
	rec = httptest.NewRecorder()
	handler(rec, testRequest("GET", "/api/v1/navigation/sessions", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func jsonDecode(body string, out interface{}) error {
	return json.Unmarshal([]byte(body), out)
}

func testRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	return req.WithContext(logging.EnsureLogger(req.Context()))
}
