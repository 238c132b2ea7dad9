// Package riskfeed processes municipal crime hotspot KML feeds. Feeds
// publish placemarks with a point geometry plus crime type and severity
// in extended data; descriptions are free-form HTML.
package riskfeed

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/saferoute/navigator/internal/lib/geo"
	"github.com/saferoute/navigator/internal/lib/risk"
)

// HTTPDoer abstracts the HTTP client for testability.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// FeedParser downloads and parses a crime hotspot KML feed.
type FeedParser struct {
	httpClient HTTPDoer
	feedURL    string
}

// Hotspot is a parsed crime hotspot placemark.
type Hotspot struct {
	ID              string
	Name            string
	DescriptionText string
	CrimeType       string
	Severity        int
	Location        geo.Point
	LastFetched     time.Time
}

// NewFeedParser creates a parser for the given feed URL.
func NewFeedParser(feedURL string) *FeedParser {
	return NewFeedParserWithHTTPDoer(feedURL, &http.Client{
		Timeout: 30 * time.Second,
	})
}

// NewFeedParserWithHTTPDoer creates a parser with a custom HTTP doer.
func NewFeedParserWithHTTPDoer(feedURL string, doer HTTPDoer) *FeedParser {
	return &FeedParser{
		httpClient: doer,
		feedURL:    feedURL,
	}
}

// ParseHotspots downloads the feed and returns every placemark with a
// valid point geometry.
func (p *FeedParser) ParseHotspots(ctx context.Context) ([]Hotspot, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", p.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download KML: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error %d downloading KML from %s", resp.StatusCode, p.feedURL)
	}

	kmlData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read KML response: %w", err)
	}

	var doc kmlDocument
	if err := xml.Unmarshal(kmlData, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse KML: %w", err)
	}

	var hotspots []Hotspot
	now := time.Now()
	for _, placemark := range doc.placemarks() {
		if hotspot := processPlacemark(placemark, now); hotspot != nil {
			hotspots = append(hotspots, *hotspot)
		}
	}
	return hotspots, nil
}

// ParseWithGeographicFilter parses the feed and keeps only hotspots
// within radiusMeters of at least one route point, converted to risk
// monitor points.
func (p *FeedParser) ParseWithGeographicFilter(ctx context.Context, routePoints []geo.Point, radiusMeters float64) ([]risk.Point, error) {
	hotspots, err := p.ParseHotspots(ctx)
	if err != nil {
		return nil, err
	}

	var points []risk.Point
	for _, hotspot := range hotspots {
		for _, coord := range routePoints {
			if geo.Distance(coord, hotspot.Location) <= radiusMeters {
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

// processPlacemark converts a KML placemark to a Hotspot. Placemarks
// without a parseable point geometry are skipped.
func processPlacemark(placemark kmlPlacemark, fetchTime time.Time) *Hotspot {
	location, ok := parseCoordinates(placemark.Point.Coordinates)
	if !ok {
		return nil
	}

	descriptionText := extractTextFromHTML(placemark.Description)

	crimeType := placemark.extendedValue("crime_type")
	if crimeType == "" {
		crimeType = extractCrimeType(descriptionText)
	}

	severity := defaultSeverity
	if raw := placemark.extendedValue("severity"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 1 && parsed <= 5 {
			severity = parsed
		}
	}

	id := placemark.extendedValue("id")
	if id == "" {
		id = fmt.Sprintf("%s@%.5f,%.5f", crimeType, location.Latitude, location.Longitude)
	}

	return &Hotspot{
		ID:              id,
		Name:            placemark.Name,
		DescriptionText: descriptionText,
		CrimeType:       crimeType,
		Severity:        severity,
		Location:        location,
		LastFetched:     fetchTime,
	}
}

const defaultSeverity = 3

// parseCoordinates parses a KML coordinate string. KML orders
// coordinates as "longitude,latitude[,altitude]".
func parseCoordinates(raw string) (geo.Point, bool) {
	parts := strings.Split(strings.TrimSpace(raw), ",")
	if len(parts) < 2 {
		return geo.Point{}, false
	}

	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return geo.Point{}, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return geo.Point{}, false
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return geo.Point{}, false
	}

	return geo.Point{Latitude: lat, Longitude: lng}, true
}

// extractTextFromHTML removes HTML tags and decodes HTML entities.
func extractTextFromHTML(htmlContent string) string {
	re := regexp.MustCompile(`<[^>]*>`)
	text := re.ReplaceAllString(htmlContent, " ")
	text = html.UnescapeString(text)
	text = regexp.MustCompile(`\s+`).ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// extractCrimeType scans description text for known crime categories
// when the feed omits structured extended data.
func extractCrimeType(text string) string {
	crimePatterns := []string{
		`(?i)(assault)`,
		`(?i)(robbery)`,
		`(?i)(burglary)`,
		`(?i)(theft)`,
		`(?i)(vandalism)`,
		`(?i)(harassment)`,
	}

	for _, pattern := range crimePatterns {
		re := regexp.MustCompile(pattern)
		if match := re.FindString(text); match != "" {
			return strings.ToLower(match)
		}
	}
	return "unspecified"
}

// Local KML document model. Only the elements the hotspot feeds use are
// mapped; unknown elements are ignored by the decoder.
type kmlDocument struct {
	XMLName  xml.Name    `xml:"kml"`
	Document kmlContents `xml:"Document"`
}

type kmlContents struct {
	Folders    []kmlFolder    `xml:"Folder"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlFolder struct {
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlPlacemark struct {
	Name         string          `xml:"name"`
	Description  string          `xml:"description"`
	Point        kmlPoint        `xml:"Point"`
	ExtendedData kmlExtendedData `xml:"ExtendedData"`
}

type kmlPoint struct {
	Coordinates string `xml:"coordinates"`
}

type kmlExtendedData struct {
	Data []kmlData `xml:"Data"`
}

type kmlData struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

// placemarks flattens folder and document-level placemarks.
func (d *kmlDocument) placemarks() []kmlPlacemark {
	var all []kmlPlacemark
	for _, folder := range d.Document.Folders {
		all = append(all, folder.Placemarks...)
	}
	all = append(all, d.Document.Placemarks...)
	return all
}

// extendedValue returns the named ExtendedData value, or "".
func (p *kmlPlacemark) extendedValue(name string) string {
	for _, data := range p.ExtendedData.Data {
		if data.Name == name {
			return strings.TrimSpace(data.Value)
		}
	}
	return ""
}
