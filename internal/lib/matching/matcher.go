package matching

import (
	"context"
	"math"

	"github.com/dpup/trailmiles/server/internal/lib/geo"
	"github.com/dpup/trailmiles/server/internal/lib/trails"
	"github.com/dpup/trailmiles/server/internal/logging"
)

// trailMatcher implements the Matcher interface
type trailMatcher struct {
	options Options
}

// trailEdge is a single trail edge with its tolerance-expanded bounding box
type trailEdge struct {
	a, b geo.Point
	box  geo.BoundingBox
}

// NewMatcher creates a Matcher. Zero-valued options fall back to DefaultOptions.
func NewMatcher(options Options) Matcher {
	defaults := DefaultOptions()
	if options.SampleSize <= 0 {
		options.SampleSize = defaults.SampleSize
	}
	if options.SampleMultiplier <= 0 {
		options.SampleMultiplier = defaults.SampleMultiplier
	}
	if options.SegmentStrideDivisor <= 0 {
		options.SegmentStrideDivisor = defaults.SegmentStrideDivisor
	}
	if options.PointStrideDivisor <= 0 {
		options.PointStrideDivisor = defaults.PointStrideDivisor
	}
	return &trailMatcher{options: options}
}

// Options returns the heuristics in effect
func (m *trailMatcher) Options() Options {
	return m.options
}

// Match runs bounding-box rejection, sampling rejection, then per-edge classification
func (m *trailMatcher) Match(ctx context.Context, activity []geo.Point, network *trails.Network, toleranceMeters float64) Result {
	if len(activity) == 0 || network.IsEmpty() {
		return Result{RejectedBy: RejectedEmpty}
	}

	toleranceDegrees := geo.MetersToDegrees(toleranceMeters)

	activityBox, _ := geo.BoundsOf(activity)
	trailBox, _ := network.Bounds()

	if limit := m.options.MaxLatitudeSpanDegrees; limit > 0 && activityBox.LatitudeSpan() > limit {
		logging.Warnw(ctx, "Activity spans more latitude than the planar approximation supports",
			"latitude_span", activityBox.LatitudeSpan(), "limit", limit)
	}

	// Stage A: bounding boxes
	if !activityBox.Expand(toleranceDegrees).Intersects(trailBox) {
		logging.Debugw(ctx, "Quick rejection: activity bounding box outside trail area")
		return Result{RejectedBy: RejectedBoundingBox}
	}

	// Stage B: sampling
	if !m.sampleNearTrail(activity, network, toleranceMeters*m.options.SampleMultiplier) {
		logging.Debugw(ctx, "Quick rejection: no sample points near trail",
			"sample_tolerance", toleranceMeters*m.options.SampleMultiplier)
		return Result{RejectedBy: RejectedSampling}
	}

	// Stage C: classify each activity edge by its midpoint
	edges := expandedEdges(network, toleranceDegrees)
	result := Result{RejectedBy: NotRejected}
	if m.options.RecordEdges {
		result.Edges = make([]Edge, 0, len(activity)-1)
	}

	for i := 0; i < len(activity)-1; i++ {
		start, end := activity[i], activity[i+1]
		length := geo.HaversineMeters(start.Latitude, start.Longitude, end.Latitude, end.Longitude)
		result.TotalDistance += length

		onTrail := nearAnyEdge(geo.Midpoint(start, end), edges, toleranceMeters)
		if onTrail {
			result.DistanceOnTrail += length
		}

		if m.options.RecordEdges {
			result.Edges = append(result.Edges, Edge{Start: start, End: end, Length: length, OnTrail: onTrail})
		}
	}

	// Stage D
	if result.TotalDistance > 0 {
		result.Ratio = math.Min(1, result.DistanceOnTrail/result.TotalDistance)
	}

	logging.Debugw(ctx, "Trail intersection calculated",
		"activity_points", len(activity),
		"trail_segments", len(network.Segments),
		"distance_on_trail", result.DistanceOnTrail,
		"total_distance", result.TotalDistance,
		"ratio", result.Ratio)

	return result
}

// sampleNearTrail checks up to SampleSize evenly spaced activity points against a
// strided subset of trail edges
func (m *trailMatcher) sampleNearTrail(activity []geo.Point, network *trails.Network, sampleTolerance float64) bool {
	n := len(activity)
	sampleSize := m.options.SampleSize
	if n < sampleSize {
		sampleSize = n
	}

	segmentStride := max(1, len(network.Segments)/m.options.SegmentStrideDivisor)

	for i := 0; i < sampleSize; i++ {
		point := activity[i*(n-1)/max(1, sampleSize-1)]

		for s := 0; s < len(network.Segments); s += segmentStride {
			segment := network.Segments[s].Points
			pointStride := max(1, len(segment)/m.options.PointStrideDivisor)

			for j := 0; j < len(segment)-1; j += pointStride {
				if geo.PointToSegmentMeters(point, segment[j], segment[j+1]) <= sampleTolerance {
					return true
				}
			}
		}
	}

	return false
}

// expandedEdges flattens the network into edges without joining segments.
// Consecutive points are only paired within a segment.
func expandedEdges(network *trails.Network, toleranceDegrees float64) []trailEdge {
	edges := make([]trailEdge, 0, network.EdgeCount())
	for _, segment := range network.Segments {
		for j := 0; j < len(segment.Points)-1; j++ {
			a, b := segment.Points[j], segment.Points[j+1]
			box, _ := geo.BoundsOf([]geo.Point{a, b})
			edges = append(edges, trailEdge{a: a, b: b, box: box.Expand(toleranceDegrees)})
		}
	}
	return edges
}

// nearAnyEdge stops at the first trail edge within tolerance of point
func nearAnyEdge(point geo.Point, edges []trailEdge, toleranceMeters float64) bool {
	for _, edge := range edges {
		if !edge.box.Contains(point) {
			continue
		}
		if geo.PointToSegmentMeters(point, edge.a, edge.b) <= toleranceMeters {
			return true
		}
	}
	return false
}
