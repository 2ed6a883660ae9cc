package geo

import (
	"errors"
	"math"
)

const (
	// EarthRadiusMeters is the mean Earth radius used by every distance calculation
	EarthRadiusMeters = 6371000

	// MetersPerDegree is the rough length of one degree used for tolerance boxes
	MetersPerDegree = 111000.0
)

var errInvalidCoordinates = errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")

// geoUtils implements the GeoUtils interface
type geoUtils struct{}

// NewGeoUtils creates a new GeoUtils implementation
func NewGeoUtils() GeoUtils {
	return &geoUtils{}
}

// PointToPoint calculates great-circle distance between two points using Haversine formula
func (g *geoUtils) PointToPoint(p1, p2 Point) (float64, error) {
	if !isValidCoordinate(p1) || !isValidCoordinate(p2) {
		return 0, errInvalidCoordinates
	}
	return HaversineMeters(p1.Latitude, p1.Longitude, p2.Latitude, p2.Longitude), nil
}

// PointToSegment calculates distance from point to the segment a-b
func (g *geoUtils) PointToSegment(point, a, b Point) (float64, error) {
	if !isValidCoordinate(point) || !isValidCoordinate(a) || !isValidCoordinate(b) {
		return 0, errInvalidCoordinates
	}
	return PointToSegmentMeters(point, a, b), nil
}

// PointToPolyline calculates minimum distance from point to polyline
func (g *geoUtils) PointToPolyline(point Point, line []Point) (float64, error) {
	if !isValidCoordinate(point) {
		return 0, errors.New("invalid point coordinates")
	}

	if len(line) == 0 {
		return 0, errors.New("polyline has no points")
	}

	if len(line) == 1 {
		// Single point polyline - return point to point distance
		return g.PointToPoint(point, line[0])
	}

	minDistance := math.Inf(1)
	for i := 0; i < len(line)-1; i++ {
		distance := PointToSegmentMeters(point, line[i], line[i+1])
		if distance < minDistance {
			minDistance = distance
		}
	}

	return minDistance, nil
}

// PolylineLength sums the haversine length of each consecutive pair
func (g *geoUtils) PolylineLength(points []Point) float64 {
	total := 0.0
	for i := 0; i < len(points)-1; i++ {
		total += HaversineMeters(points[i].Latitude, points[i].Longitude, points[i+1].Latitude, points[i+1].Longitude)
	}
	return total
}

// DecodePolyline decodes Google polyline string to point sequence
func (g *geoUtils) DecodePolyline(encoded string) ([]Point, error) {
	return DecodePolyline(encoded)
}

// EncodePolyline encodes points as a Google polyline string
func (g *geoUtils) EncodePolyline(points []Point) string {
	return EncodePolyline(points)
}

// HaversineMeters returns the great-circle distance between two coordinates
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}

	// Convert degrees to radians
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dlat := (lat2 - lat1) * math.Pi / 180
	dlon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Asin(math.Sqrt(a))

	return EarthRadiusMeters * c
}

// PointToSegmentMeters projects point onto a-b using planar (lon, lat) differencing,
// clamps the projection to the segment, and returns the haversine distance to the
// clamped point. Only accurate over a few kilometers.
func PointToSegmentMeters(point, a, b Point) float64 {
	abx := b.Longitude - a.Longitude
	aby := b.Latitude - a.Latitude

	if abx == 0 && aby == 0 {
		return HaversineMeters(point.Latitude, point.Longitude, a.Latitude, a.Longitude)
	}

	apx := point.Longitude - a.Longitude
	apy := point.Latitude - a.Latitude

	t := (apx*abx + apy*aby) / (abx*abx + aby*aby)
	t = math.Max(0, math.Min(1, t))

	closestLon := a.Longitude + t*abx
	closestLat := a.Latitude + t*aby

	return HaversineMeters(point.Latitude, point.Longitude, closestLat, closestLon)
}

// Midpoint returns the coordinate average of a and b
func Midpoint(a, b Point) Point {
	return Point{
		Latitude:  (a.Latitude + b.Latitude) / 2,
		Longitude: (a.Longitude + b.Longitude) / 2,
	}
}

// MetersToDegrees converts a distance to the approximate number of degrees it spans
func MetersToDegrees(meters float64) float64 {
	return meters / MetersPerDegree
}

// BoundsOf computes the bounding box of points. ok is false for an empty slice.
func BoundsOf(points []Point) (box BoundingBox, ok bool) {
	if len(points) == 0 {
		return BoundingBox{}, false
	}
	box = BoundingBox{
		MinLat: points[0].Latitude,
		MaxLat: points[0].Latitude,
		MinLon: points[0].Longitude,
		MaxLon: points[0].Longitude,
	}
	for _, p := range points[1:] {
		box = box.Extend(p)
	}
	return box, true
}

// Extend grows the box to include p
func (b BoundingBox) Extend(p Point) BoundingBox {
	b.MinLat = math.Min(b.MinLat, p.Latitude)
	b.MaxLat = math.Max(b.MaxLat, p.Latitude)
	b.MinLon = math.Min(b.MinLon, p.Longitude)
	b.MaxLon = math.Max(b.MaxLon, p.Longitude)
	return b
}

// Union returns the smallest box covering b and o
func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	return BoundingBox{
		MinLat: math.Min(b.MinLat, o.MinLat),
		MaxLat: math.Max(b.MaxLat, o.MaxLat),
		MinLon: math.Min(b.MinLon, o.MinLon),
		MaxLon: math.Max(b.MaxLon, o.MaxLon),
	}
}

// Expand pads every side of the box by degrees
func (b BoundingBox) Expand(degrees float64) BoundingBox {
	return BoundingBox{
		MinLat: b.MinLat - degrees,
		MaxLat: b.MaxLat + degrees,
		MinLon: b.MinLon - degrees,
		MaxLon: b.MaxLon + degrees,
	}
}

// Intersects reports whether the boxes overlap, edges included
func (b BoundingBox) Intersects(o BoundingBox) bool {
	return !(b.MaxLat < o.MinLat || b.MinLat > o.MaxLat ||
		b.MaxLon < o.MinLon || b.MinLon > o.MaxLon)
}

// Contains reports whether p lies inside the box, edges included
func (b BoundingBox) Contains(p Point) bool {
	return p.Latitude >= b.MinLat && p.Latitude <= b.MaxLat &&
		p.Longitude >= b.MinLon && p.Longitude <= b.MaxLon
}

// LatitudeSpan is the north-south extent of the box in degrees
func (b BoundingBox) LatitudeSpan() float64 {
	return b.MaxLat - b.MinLat
}

// NewPoint creates a Point from latitude and longitude values with validation
func NewPoint(latitude, longitude float64) (Point, error) {
	point := Point{Latitude: latitude, Longitude: longitude}
	if !isValidCoordinate(point) {
		return Point{}, errInvalidCoordinates
	}
	return point, nil
}

// isValidCoordinate validates latitude and longitude values
func isValidCoordinate(point Point) bool {
	return point.Latitude >= -90 && point.Latitude <= 90 &&
		point.Longitude >= -180 && point.Longitude <= 180
}
