package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeoUtils_PointToPoint(t *testing.T) {
	// Highway 4: Angels Camp to Murphys
	angelscamp := Point{Latitude: 38.0675, Longitude: -120.5436}
	murphys := Point{Latitude: 38.1391, Longitude: -120.4561}

	geoUtils := NewGeoUtils()

	distance, err := geoUtils.PointToPoint(angelscamp, murphys)
	require.NoError(t, err)
	assert.InDelta(t, 11046, distance, 10, "Distance should be approximately 11.0km")

	// Symmetric
	back, err := geoUtils.PointToPoint(murphys, angelscamp)
	require.NoError(t, err)
	assert.InDelta(t, distance, back, 1e-6)

	invalidPoint := Point{Latitude: 200, Longitude: -300}
	_, err = geoUtils.PointToPoint(angelscamp, invalidPoint)
	assert.Error(t, err, "Should return error for invalid coordinates")
}

func TestHaversineMeters(t *testing.T) {
	assert.Equal(t, 0.0, HaversineMeters(38.1, -120.4, 38.1, -120.4))

	// One degree of longitude on the equator
	assert.InDelta(t, 111194.9, HaversineMeters(0, 0, 0, 1), 0.5)

	// 0.0001 degrees of latitude is about 11 meters
	assert.InDelta(t, 11.12, HaversineMeters(38.0, -120.0, 38.0001, -120.0), 0.01)
}

func TestPointToSegmentMeters(t *testing.T) {
	a := Point{Latitude: 38.0, Longitude: -120.01}
	b := Point{Latitude: 38.0, Longitude: -120.0}

	// Point beside the middle of the segment projects onto it
	beside := Point{Latitude: 38.0001, Longitude: -120.005}
	assert.InDelta(t, 11.12, PointToSegmentMeters(beside, a, b), 0.05)

	// Point beyond the end clamps to the endpoint
	beyond := Point{Latitude: 38.0, Longitude: -119.99}
	assert.InDelta(t, HaversineMeters(38.0, -119.99, 38.0, -120.0), PointToSegmentMeters(beyond, a, b), 1e-6)

	// Point before the start clamps to the start
	before := Point{Latitude: 38.0, Longitude: -120.02}
	assert.InDelta(t, HaversineMeters(38.0, -120.02, 38.0, -120.01), PointToSegmentMeters(before, a, b), 1e-6)

	// On the segment
	assert.InDelta(t, 0, PointToSegmentMeters(Point{Latitude: 38.0, Longitude: -120.003}, a, b), 1e-6)
}

func TestPointToSegmentMeters_DegenerateSegment(t *testing.T) {
	a := Point{Latitude: 38.2, Longitude: -120.3}
	p := Point{Latitude: 38.21, Longitude: -120.3}

	assert.InDelta(t, HaversineMeters(38.21, -120.3, 38.2, -120.3), PointToSegmentMeters(p, a, a), 1e-9)
}

func TestGeoUtils_PointToPolyline(t *testing.T) {
	geoUtils := NewGeoUtils()

	route := []Point{
		{Latitude: 38.0675, Longitude: -120.5436}, // Angels Camp
		{Latitude: 38.1391, Longitude: -120.4561}, // Murphys
	}

	testPoint := Point{Latitude: 38.1000, Longitude: -120.5000}
	distance, err := geoUtils.PointToPolyline(testPoint, route)
	require.NoError(t, err)
	assert.Greater(t, distance, 0.0)
	assert.Less(t, distance, 1000.0)

	onRoutePoint := Point{Latitude: 38.0675, Longitude: -120.5436}
	distance, err = geoUtils.PointToPolyline(onRoutePoint, route)
	require.NoError(t, err)
	assert.InDelta(t, 0, distance, 1e-6)

	_, err = geoUtils.PointToPolyline(testPoint, nil)
	assert.Error(t, err)

	// Single point polyline falls back to point distance
	distance, err = geoUtils.PointToPolyline(testPoint, route[:1])
	require.NoError(t, err)
	assert.InDelta(t, HaversineMeters(38.1, -120.5, 38.0675, -120.5436), distance, 1e-6)
}

func TestGeoUtils_PolylineLength(t *testing.T) {
	geoUtils := NewGeoUtils()

	points := []Point{
		{Latitude: 0, Longitude: 0},
		{Latitude: 0, Longitude: 1},
		{Latitude: 0, Longitude: 2},
	}
	assert.InDelta(t, 2*111194.9, geoUtils.PolylineLength(points), 1)
	assert.Equal(t, 0.0, geoUtils.PolylineLength(points[:1]))
	assert.Equal(t, 0.0, geoUtils.PolylineLength(nil))
}

func TestBoundingBox(t *testing.T) {
	box, ok := BoundsOf(nil)
	assert.False(t, ok)
	assert.Equal(t, BoundingBox{}, box)

	box, ok = BoundsOf([]Point{
		{Latitude: 38.1, Longitude: -120.5},
		{Latitude: 38.3, Longitude: -120.2},
		{Latitude: 38.2, Longitude: -120.4},
	})
	require.True(t, ok)
	assert.Equal(t, BoundingBox{MinLat: 38.1, MaxLat: 38.3, MinLon: -120.5, MaxLon: -120.2}, box)
	assert.InDelta(t, 0.2, box.LatitudeSpan(), 1e-9)

	assert.True(t, box.Contains(Point{Latitude: 38.2, Longitude: -120.3}))
	assert.True(t, box.Contains(Point{Latitude: 38.1, Longitude: -120.5}), "edges are inclusive")
	assert.False(t, box.Contains(Point{Latitude: 38.4, Longitude: -120.3}))

	other := BoundingBox{MinLat: 38.31, MaxLat: 38.5, MinLon: -120.5, MaxLon: -120.2}
	assert.False(t, box.Intersects(other))
	assert.True(t, box.Expand(MetersToDegrees(2000)).Intersects(other))

	union := box.Union(other)
	assert.Equal(t, 38.5, union.MaxLat)
	assert.Equal(t, 38.1, union.MinLat)
}

func TestMidpoint(t *testing.T) {
	m := Midpoint(Point{Latitude: 38.0, Longitude: -120.0}, Point{Latitude: 38.2, Longitude: -120.4})
	assert.InDelta(t, 38.1, m.Latitude, 1e-12)
	assert.InDelta(t, -120.2, m.Longitude, 1e-12)
}

func TestNewPoint(t *testing.T) {
	p, err := NewPoint(38.0675, -120.5436)
	require.NoError(t, err)
	assert.Equal(t, Point{Latitude: 38.0675, Longitude: -120.5436}, p)

	_, err = NewPoint(91, 0)
	assert.Error(t, err)
	_, err = NewPoint(0, math.Inf(1))
	assert.Error(t, err)
}
