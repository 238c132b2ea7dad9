package geo

// Point represents a geographic coordinate in WGS84 degrees
type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// PolylineMatch is the result of projecting a point onto a polyline
type PolylineMatch struct {
	DistanceMeters      float64 `json:"distance_meters"`
	NearestSegmentIndex int     `json:"nearest_segment_index"`
}
