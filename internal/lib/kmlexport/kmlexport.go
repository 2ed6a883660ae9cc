// Package kmlexport renders trail networks and match results as KML for
// inspection in Google Earth or similar viewers.
package kmlexport

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	kml "github.com/twpayne/go-kml"

	"github.com/dpup/trailmiles/server/internal/lib/geo"
	"github.com/dpup/trailmiles/server/internal/lib/matching"
	"github.com/dpup/trailmiles/server/internal/lib/trails"
)

var (
	trailColor    = color.RGBA{R: 0x8b, G: 0x45, B: 0x13, A: 0xff}
	onTrailColor  = color.RGBA{R: 0x00, G: 0xc8, B: 0x00, A: 0xff}
	offTrailColor = color.RGBA{R: 0xe0, G: 0x00, B: 0x00, A: 0xff}
)

// Track is an activity whose match result was computed with RecordEdges
type Track struct {
	Name   string
	Result matching.Result
}

// Write encodes the network, and the track if not nil, as an indented KML document
func Write(w io.Writer, network *trails.Network, track *Track) error {
	if network.IsEmpty() {
		return errors.New("no trail segments to export")
	}

	trailStyle := kml.SharedStyle("trail", kml.LineStyle(kml.Color(trailColor), kml.Width(3)))
	onStyle := kml.SharedStyle("on-trail", kml.LineStyle(kml.Color(onTrailColor), kml.Width(4)))
	offStyle := kml.SharedStyle("off-trail", kml.LineStyle(kml.Color(offTrailColor), kml.Width(4)))

	doc := kml.Document(
		kml.Name("Trail network"),
		trailStyle,
		onStyle,
		offStyle,
	)

	trailFolder := kml.Folder(kml.Name("Trails"))
	for i, segment := range network.Segments {
		name := segment.Name
		if name == "" {
			name = fmt.Sprintf("%s #%d", segment.Collection, i+1)
		}
		trailFolder.Add(kml.Placemark(
			kml.Name(name),
			kml.Description(segment.Collection),
			kml.StyleURL(trailStyle.URL()),
			kml.LineString(kml.Coordinates(coordinates(segment.Points)...)),
		))
	}
	doc.Add(trailFolder)

	if track != nil {
		if len(track.Result.Edges) == 0 {
			return errors.New("track has no recorded edges")
		}

		trackFolder := kml.Folder(
			kml.Name(track.Name),
			kml.Description(fmt.Sprintf("%.0f of %.0f m on trail (%.1f%%)",
				track.Result.DistanceOnTrail, track.Result.TotalDistance, track.Result.Ratio*100)),
		)
		for _, run := range runs(track.Result.Edges) {
			style, label := offStyle, "Off trail"
			if run.onTrail {
				style, label = onStyle, "On trail"
			}
			trackFolder.Add(kml.Placemark(
				kml.Name(fmt.Sprintf("%s (%.0f m)", label, run.length)),
				kml.StyleURL(style.URL()),
				kml.LineString(kml.Coordinates(coordinates(run.points)...)),
			))
		}
		doc.Add(trackFolder)
	}

	return kml.KML(doc).WriteIndent(w, "", "  ")
}

// run is a maximal sequence of consecutive edges with the same classification
type run struct {
	onTrail bool
	length  float64
	points  []geo.Point
}

func runs(edges []matching.Edge) []run {
	var result []run
	for i, edge := range edges {
		if i == 0 || edge.OnTrail != result[len(result)-1].onTrail {
			result = append(result, run{onTrail: edge.OnTrail, points: []geo.Point{edge.Start}})
		}
		current := &result[len(result)-1]
		current.length += edge.Length
		current.points = append(current.points, edge.End)
	}
	return result
}

func coordinates(points []geo.Point) []kml.Coordinate {
	coords := make([]kml.Coordinate, len(points))
	for i, p := range points {
		coords[i] = kml.Coordinate{Lon: p.Longitude, Lat: p.Latitude}
	}
	return coords
}
