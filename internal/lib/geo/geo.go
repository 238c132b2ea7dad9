// Package geo provides great-circle geometry for navigation guidance.
//
// All distance and bearing functions are total: they accept any numeric
// input and return a defined value rather than an error. Degenerate
// geometry (empty polylines, zero-length segments) collapses to the
// nearest meaningful point-to-point computation.
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/twpayne/go-polyline"
)

// Earth's mean radius in meters.
const earthRadius = 6371000

// Distance calculates the great-circle distance between two points in
// meters using the haversine formula.
func Distance(a, b Point) float64 {
	if a.Latitude == b.Latitude && a.Longitude == b.Longitude {
		return 0
	}

	lat1 := a.Latitude * math.Pi / 180
	lon1 := a.Longitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	lon2 := b.Longitude * math.Pi / 180

	dlat := lat2 - lat1
	dlon := lon2 - lon1

	h := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadius * c
}

// Bearing calculates the initial bearing from a to b in degrees,
// normalized to [0, 360).
func Bearing(a, b Point) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lon1 := a.Longitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	lon2 := b.Longitude * math.Pi / 180

	y := math.Sin(lon2-lon1) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(lon2-lon1)
	deg := math.Atan2(y, x) * 180 / math.Pi

	return math.Mod(deg+360, 360)
}

// DistanceToSegment calculates the distance in meters from p to the
// great-circle segment between segStart and segEnd. When the projection
// of p falls outside the segment, the distance to the nearer endpoint is
// returned.
func DistanceToSegment(p, segStart, segEnd Point) float64 {
	if segStart.Latitude == segEnd.Latitude && segStart.Longitude == segEnd.Longitude {
		return Distance(p, segStart)
	}

	distToStart := Distance(p, segStart)
	distToEnd := Distance(p, segEnd)
	segmentLength := Distance(segStart, segEnd)

	// Segments shorter than a meter carry no useful direction.
	if segmentLength < 1 {
		return math.Min(distToStart, distToEnd)
	}

	// Cross-track distance via spherical trigonometry. Accurate enough
	// for the street-scale segments this package works with.
	d13 := distToStart / earthRadius
	bearingToEnd := Bearing(segStart, segEnd) * math.Pi / 180
	bearingToPoint := Bearing(segStart, p) * math.Pi / 180
	relative := bearingToPoint - bearingToEnd

	// Projection falls behind the segment start.
	if math.Cos(relative) < 0 {
		return distToStart
	}

	dxt := math.Asin(math.Sin(d13) * math.Sin(relative))
	crossTrack := math.Abs(dxt) * earthRadius

	// Projection falls beyond the segment end.
	alongTrack := math.Acos(math.Cos(d13)/math.Cos(dxt)) * earthRadius
	if alongTrack > segmentLength {
		return distToEnd
	}

	return crossTrack
}

// DistanceToPolyline calculates the minimum distance in meters from p to
// the polyline, along with the index of the nearest segment. A polyline
// with zero or one points yields the distance to that point (zero for an
// empty polyline) and index 0.
func DistanceToPolyline(p Point, points []Point) PolylineMatch {
	if len(points) == 0 {
		return PolylineMatch{}
	}
	if len(points) == 1 {
		return PolylineMatch{DistanceMeters: Distance(p, points[0])}
	}

	minDistance := math.Inf(1)
	nearest := 0

	for i := 0; i < len(points)-1; i++ {
		d := DistanceToSegment(p, points[i], points[i+1])
		if d < minDistance {
			minDistance = d
			nearest = i
		}
	}

	return PolylineMatch{DistanceMeters: minDistance, NearestSegmentIndex: nearest}
}

// PolylineLength sums the segment distances of a polyline in meters.
func PolylineLength(points []Point) float64 {
	total := 0.0
	for i := 0; i < len(points)-1; i++ {
		total += Distance(points[i], points[i+1])
	}
	return total
}

// DecodePolyline decodes a Google-encoded polyline string into a point
// sequence. Encoded polylines are an external wire format, so unlike the
// pure geometry above this can fail on malformed input.
func DecodePolyline(encoded string) ([]Point, error) {
	if encoded == "" {
		return nil, errors.New("encoded polyline string is empty")
	}

	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to decode polyline: %w", err)
	}

	points := make([]Point, len(coords))
	for i, coord := range coords {
		points[i] = Point{Latitude: coord[0], Longitude: coord[1]}
		if !isValidCoordinate(points[i]) {
			return nil, errors.New("decoded polyline contains invalid coordinates")
		}
	}

	return points, nil
}

// isValidCoordinate validates latitude and longitude ranges
func isValidCoordinate(p Point) bool {
	return p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}
