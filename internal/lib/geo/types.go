package geo

// Point represents a geographic coordinate
type Point struct {
	Latitude  float64 `json:"lat" cbor:"1,keyasint"`
	Longitude float64 `json:"lng" cbor:"2,keyasint"`
}

// BoundingBox is an axis-aligned box in degrees
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

// GeoUtils interface defines geographic calculation utilities
type GeoUtils interface {
	// Calculate great-circle distance between two points in meters
	PointToPoint(p1, p2 Point) (float64, error)

	// Calculate distance from point to the segment a-b in meters
	PointToSegment(point, a, b Point) (float64, error)

	// Calculate minimum distance from point to a polyline in meters
	PointToPolyline(point Point, line []Point) (float64, error)

	// Sum of great-circle lengths of consecutive point pairs
	PolylineLength(points []Point) float64

	// Decode Google polyline string to point sequence
	DecodePolyline(encoded string) ([]Point, error)

	// Encode point sequence as a Google polyline string
	EncodePolyline(points []Point) string
}
