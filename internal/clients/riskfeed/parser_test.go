package riskfeed

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/navigator/internal/lib/geo"
)

const hotspotFeedFixture = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
  <Document>
    <Folder>
      <name>Downtown</name>
      <Placemark>
        <name>5th and Main</name>
        <description><![CDATA[<b>Repeated assault reports</b> near the transit stop after dark.]]></description>
        <ExtendedData>
          <Data name="id"><value>hs-001</value></Data>
          <Data name="crime_type"><value>assault</value></Data>
          <Data name="severity"><value>5</value></Data>
        </ExtendedData>
        <Point><coordinates>-120.5000,38.0075,0</coordinates></Point>
      </Placemark>
      <Placemark>
        <name>Riverside Path</name>
        <description><![CDATA[Multiple <i>theft</i> incidents reported along the path.]]></description>
        <Point><coordinates>-120.4500,38.0500</coordinates></Point>
      </Placemark>
    </Folder>
    <Placemark>
      <name>Warehouse District</name>
      <description>Burglary cluster, severity not assessed.</description>
      <ExtendedData>
        <Data name="severity"><value>99</value></Data>
      </ExtendedData>
      <Point><coordinates>-120.5100,38.0020,0</coordinates></Point>
    </Placemark>
    <Placemark>
      <name>No geometry</name>
      <description>Area advisory without a point.</description>
    </Placemark>
  </Document>
</kml>`

type stubHTTPDoer struct {
	statusCode int
	body       string
	err        error
}

func (s *stubHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &http.Response{
		StatusCode: s.statusCode,
		Body:       io.NopCloser(strings.NewReader(s.body)),
		Header:     make(http.Header),
	}, nil
}

func TestParseHotspots(t *testing.T) {
	parser := NewFeedParserWithHTTPDoer("https://city.example.com/hotspots.kml",
		&stubHTTPDoer{statusCode: 200, body: hotspotFeedFixture})

	hotspots, err := parser.ParseHotspots(context.Background())
	require.NoError(t, err)
	require.Len(t, hotspots, 3, "Placemark without geometry is skipped")

	first := hotspots[0]
	assert.Equal(t, "hs-001", first.ID)
	assert.Equal(t, "5th and Main", first.Name)
	assert.Equal(t, "assault", first.CrimeType)
	assert.Equal(t, 5, first.Severity)
	assert.InDelta(t, 38.0075, first.Location.Latitude, 0.00001)
	assert.InDelta(t, -120.5000, first.Location.Longitude, 0.00001)
	assert.NotZero(t, first.LastFetched)
	assert.Equal(t, "Repeated assault reports near the transit stop after dark.", first.DescriptionText)

	// Crime type falls back to description scanning
	second := hotspots[1]
	assert.Equal(t, "theft", second.CrimeType)
	assert.Equal(t, defaultSeverity, second.Severity)
	assert.NotEmpty(t, second.ID, "ID synthesized when the feed omits one")

	// Out-of-range severity falls back to the default
	third := hotspots[2]
	assert.Equal(t, "burglary", third.CrimeType)
	assert.Equal(t, defaultSeverity, third.Severity)
}

func TestParseWithGeographicFilter(t *testing.T) {
	parser := NewFeedParserWithHTTPDoer("https://city.example.com/hotspots.kml",
		&stubHTTPDoer{statusCode: 200, body: hotspotFeedFixture})

	// Route runs north along -120.5; the riverside hotspot sits ~4.4km
	// east of it
	routePoints := []geo.Point{
		{Latitude: 38.0000, Longitude: -120.5000},
		{Latitude: 38.0075, Longitude: -120.5000},
		{Latitude: 38.0110, Longitude: -120.5000},
	}

	points, err := parser.ParseWithGeographicFilter(context.Background(), routePoints, 1000)
	require.NoError(t, err)
	require.Len(t, points, 2)

	ids := []string{points[0].ID, points[1].ID}
	assert.Contains(t, ids, "hs-001")
	for _, point := range points {
		assert.NotEqual(t, "Riverside Path", point.ID)
	}
}

func TestParseHotspots_HTTPError(t *testing.T) {
	parser := NewFeedParserWithHTTPDoer("https://city.example.com/hotspots.kml",
		&stubHTTPDoer{statusCode: 503, body: "unavailable"})

	hotspots, err := parser.ParseHotspots(context.Background())
	assert.Error(t, err)
	assert.Nil(t, hotspots)
	assert.Contains(t, err.Error(), "HTTP error 503")
}

func TestParseHotspots_MalformedXML(t *testing.T) {
	parser := NewFeedParserWithHTTPDoer("https://city.example.com/hotspots.kml",
		&stubHTTPDoer{statusCode: 200, body: "<kml><Document>"})

	hotspots, err := parser.ParseHotspots(context.Background())
	assert.Error(t, err)
	assert.Nil(t, hotspots)
	assert.Contains(t, err.Error(), "failed to parse KML")
}

func TestParseCoordinates(t *testing.T) {
	point, ok := parseCoordinates("-120.5,38.0075,12.5")
	require.True(t, ok)
	assert.Equal(t, 38.0075, point.Latitude)
	assert.Equal(t, -120.5, point.Longitude)

	_, ok = parseCoordinates("")
	assert.False(t, ok)

	_, ok = parseCoordinates("-120.5")
	assert.False(t, ok)

	_, ok = parseCoordinates("abc,def")
	assert.False(t, ok)

	// Latitude out of range (values are longitude-first)
	_, ok = parseCoordinates("-120.5,95.0")
	assert.False(t, ok)
}

func TestExtractCrimeType(t *testing.T) {
	assert.Equal(t, "robbery", extractCrimeType("Armed ROBBERY reported twice this month"))
	assert.Equal(t, "vandalism", extractCrimeType("ongoing vandalism of storefronts"))
	assert.Equal(t, "unspecified", extractCrimeType("general safety advisory"))
}
