package matching

import (
	"context"

	"github.com/dpup/trailmiles/server/internal/lib/geo"
	"github.com/dpup/trailmiles/server/internal/lib/trails"
)

// RejectionStage names the stage that ended a match before per-edge classification
type RejectionStage string

const (
	NotRejected         RejectionStage = "none"
	RejectedEmpty       RejectionStage = "empty"  // no activity points or no trail segments
	RejectedBoundingBox RejectionStage = "bbox"   // expanded bounding boxes do not overlap
	RejectedSampling    RejectionStage = "sample" // no sampled point near the trail
)

// Options holds the sampling heuristics. They bound cost, not correctness, and
// have varied between deployments, so every value is configurable.
type Options struct {
	// SampleSize is the number of evenly spaced activity points checked during sampling
	SampleSize int `yaml:"sample_size" validate:"min=1"`

	// SampleMultiplier scales the tolerance used during sampling
	SampleMultiplier float64 `yaml:"sample_multiplier" validate:"gte=1"`

	// SegmentStrideDivisor: sampling visits every len(segments)/divisor-th segment
	SegmentStrideDivisor int `yaml:"segment_stride_divisor" validate:"min=1"`

	// PointStrideDivisor: sampling visits every len(points)/divisor-th edge of a segment
	PointStrideDivisor int `yaml:"point_stride_divisor" validate:"min=1"`

	// MaxLatitudeSpanDegrees logs a warning above this activity extent; 0 disables
	MaxLatitudeSpanDegrees float64 `yaml:"max_latitude_span_degrees" validate:"gte=0"`

	// RecordEdges keeps the per-edge classification in the Result
	RecordEdges bool `yaml:"record_edges"`
}

// DefaultOptions returns the production heuristics
func DefaultOptions() Options {
	return Options{
		SampleSize:             20,
		SampleMultiplier:       5,
		SegmentStrideDivisor:   20,
		PointStrideDivisor:     10,
		MaxLatitudeSpanDegrees: 1,
	}
}

// Edge is one consecutive pair of activity points and its classification
type Edge struct {
	Start   geo.Point `json:"start"`
	End     geo.Point `json:"end"`
	Length  float64   `json:"length_meters"`
	OnTrail bool      `json:"on_trail"`
}

// Result is the outcome of matching one activity against the network
type Result struct {
	DistanceOnTrail float64        `json:"distance_on_trail"`
	TotalDistance   float64        `json:"total_distance"`
	Ratio           float64        `json:"ratio"`
	RejectedBy      RejectionStage `json:"rejected_by"`
	Edges           []Edge         `json:"edges,omitempty"`
}

// Matcher measures how much of an activity lies within tolerance of the trail network
type Matcher interface {
	// Match classifies every activity edge. It is pure CPU work; ctx only carries the logger.
	Match(ctx context.Context, activity []geo.Point, network *trails.Network, toleranceMeters float64) Result

	// Options returns the heuristics in effect
	Options() Options
}
