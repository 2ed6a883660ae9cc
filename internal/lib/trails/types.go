// Package trails assembles the reference trail network that activities are
// matched against. Segments from different features are kept separate so no
// distance is ever bridged across a gap between disjoint trail pieces.
package trails

import (
	"context"

	"github.com/dpup/trailmiles/server/internal/lib/geo"
)

// Default collection names, loaded in order
const (
	MainCollection  = "trails/main.geojson"
	SpursCollection = "trails/spurs.geojson"
)

// DefaultCollections lists the geometry collections that make up the network
var DefaultCollections = []string{MainCollection, SpursCollection}

// Segment is an ordered run of at least two points from a single trail feature
type Segment struct {
	Name       string      `json:"name,omitempty" cbor:"1,keyasint,omitempty"`
	Collection string      `json:"collection,omitempty" cbor:"2,keyasint,omitempty"`
	Points     []geo.Point `json:"points" cbor:"3,keyasint"`
}

// Network is the set of independent trail segments
type Network struct {
	Segments    []Segment `json:"segments" cbor:"1,keyasint"`
	Collections []string  `json:"collections,omitempty" cbor:"2,keyasint,omitempty"`
}

// Source fetches the raw bytes of a named geometry collection
type Source interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// NetworkProvider returns the trail network for one match invocation
type NetworkProvider interface {
	Network(ctx context.Context) (*Network, error)
}

// NewNetwork builds a network from segments, dropping any with fewer than two points
func NewNetwork(segments []Segment, collections ...string) *Network {
	n := &Network{Collections: collections}
	for _, s := range segments {
		if len(s.Points) >= 2 {
			n.Segments = append(n.Segments, s)
		}
	}
	return n
}

// IsEmpty reports whether the network has no segments
func (n *Network) IsEmpty() bool {
	return n == nil || len(n.Segments) == 0
}

// PointCount is the total number of points across all segments
func (n *Network) PointCount() int {
	if n == nil {
		return 0
	}
	total := 0
	for _, s := range n.Segments {
		total += len(s.Points)
	}
	return total
}

// EdgeCount is the total number of consecutive point pairs across all segments
func (n *Network) EdgeCount() int {
	if n == nil {
		return 0
	}
	total := 0
	for _, s := range n.Segments {
		total += max(0, len(s.Points)-1)
	}
	return total
}

// Bounds returns the bounding box of every trail point
func (n *Network) Bounds() (geo.BoundingBox, bool) {
	if n.IsEmpty() {
		return geo.BoundingBox{}, false
	}
	var box geo.BoundingBox
	found := false
	for _, s := range n.Segments {
		segBox, ok := geo.BoundsOf(s.Points)
		if !ok {
			continue
		}
		if !found {
			box, found = segBox, true
			continue
		}
		box = box.Union(segBox)
	}
	return box, found
}
