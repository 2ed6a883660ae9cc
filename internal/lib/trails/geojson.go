package trails

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/dpup/trailmiles/server/internal/lib/geo"
)

// ParseCollection converts a GeoJSON FeatureCollection into trail segments.
// LineString features become one segment and MultiLineString features one segment
// per line. Coordinates arrive as (lon, lat) and are flipped to (lat, lon).
// Other geometry types are ignored.
func ParseCollection(name string, data []byte) ([]Segment, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GeoJSON collection %s: %w", name, err)
	}

	var segments []Segment
	for _, feature := range fc.Features {
		if feature == nil || feature.Geometry == nil {
			continue
		}
		featureName := feature.Properties.MustString("name", "")

		switch g := feature.Geometry.(type) {
		case orb.LineString:
			if s, ok := lineToSegment(g, featureName, name); ok {
				segments = append(segments, s)
			}
		case orb.MultiLineString:
			for _, line := range g {
				if s, ok := lineToSegment(line, featureName, name); ok {
					segments = append(segments, s)
				}
			}
		}
	}

	return segments, nil
}

func lineToSegment(line orb.LineString, featureName, collection string) (Segment, bool) {
	if len(line) < 2 {
		return Segment{}, false
	}
	points := make([]geo.Point, len(line))
	for i, p := range line {
		points[i] = geo.Point{Latitude: p.Lat(), Longitude: p.Lon()}
	}
	return Segment{Name: featureName, Collection: collection, Points: points}, true
}
