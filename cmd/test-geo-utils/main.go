package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/dpup/trailmiles/server/internal/lib/geo"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	geoUtils := geo.NewGeoUtils()

	switch command {
	case "point-distance":
		handlePointDistance(geoUtils)
	case "segment-distance":
		handleSegmentDistance(geoUtils)
	case "polyline-distance":
		handlePolylineDistance(geoUtils)
	case "decode-polyline":
		handleDecodePolyline(geoUtils)
	case "encode-polyline":
		handleEncodePolyline(geoUtils)
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handlePointDistance(geoUtils geo.GeoUtils) {
	fs := pflag.NewFlagSet("point-distance", pflag.ExitOnError)
	lat1 := fs.Float64("lat1", 0, "Latitude of first point")
	lng1 := fs.Float64("lng1", 0, "Longitude of first point")
	lat2 := fs.Float64("lat2", 0, "Latitude of second point")
	lng2 := fs.Float64("lng2", 0, "Longitude of second point")

	fs.Parse(os.Args[2:])

	if *lat1 == 0 && *lng1 == 0 && *lat2 == 0 && *lng2 == 0 {
		fmt.Println("Example usage:")
		fmt.Println("  test-geo-utils point-distance --lat1 38.0675 --lng1 -120.5436 --lat2 38.1391 --lng2 -120.4561")
		os.Exit(1)
	}

	p1, err := geo.NewPoint(*lat1, *lng1)
	if err != nil {
		log.Fatalf("Invalid first point: %v", err)
	}
	p2, err := geo.NewPoint(*lat2, *lng2)
	if err != nil {
		log.Fatalf("Invalid second point: %v", err)
	}

	distance, err := geoUtils.PointToPoint(p1, p2)
	if err != nil {
		log.Fatalf("Error calculating distance: %v", err)
	}

	fmt.Printf("Distance between points:\n")
	fmt.Printf("  Point 1: (%.6f, %.6f)\n", p1.Latitude, p1.Longitude)
	fmt.Printf("  Point 2: (%.6f, %.6f)\n", p2.Latitude, p2.Longitude)
	fmt.Printf("  Distance: %.2f meters (%.2f km, %.2f miles)\n",
		distance, distance/1000, distance*0.000621371)
}

func handleSegmentDistance(geoUtils geo.GeoUtils) {
	fs := pflag.NewFlagSet("segment-distance", pflag.ExitOnError)
	point := fs.String("point", "", "Point as lat,lng")
	segment := fs.String("segment", "", "Segment endpoints as lat,lng;lat,lng")
	tolerance := fs.Float64("tolerance", 25, "Tolerance in meters")

	fs.Parse(os.Args[2:])

	if *point == "" || *segment == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-geo-utils segment-distance --point \"38.0001,-119.995\" --segment \"38.0,-120.0;38.0,-119.99\"")
		os.Exit(1)
	}

	p, err := parseCoordinatePairs(*point)
	if err != nil || len(p) != 1 {
		log.Fatalf("Error parsing point %q: %v", *point, err)
	}
	ends, err := parseCoordinatePairs(*segment)
	if err != nil || len(ends) != 2 {
		log.Fatalf("Error parsing segment %q: need exactly two points (%v)", *segment, err)
	}

	distance, err := geoUtils.PointToSegment(p[0], ends[0], ends[1])
	if err != nil {
		log.Fatalf("Error calculating distance to segment: %v", err)
	}

	fmt.Printf("Distance from point to segment:\n")
	fmt.Printf("  Point: (%.6f, %.6f)\n", p[0].Latitude, p[0].Longitude)
	fmt.Printf("  Segment: (%.6f, %.6f) to (%.6f, %.6f)\n",
		ends[0].Latitude, ends[0].Longitude, ends[1].Latitude, ends[1].Longitude)
	fmt.Printf("  Distance: %.2f meters\n", distance)
	fmt.Printf("  Midpoint of segment: %v\n", geo.Midpoint(ends[0], ends[1]))
	fmt.Printf("  Within %.0fm tolerance: %t\n", *tolerance, distance <= *tolerance)
}

func handlePolylineDistance(geoUtils geo.GeoUtils) {
	fs := pflag.NewFlagSet("polyline-distance", pflag.ExitOnError)
	lat := fs.Float64("lat", 0, "Latitude of point")
	lng := fs.Float64("lng", 0, "Longitude of point")
	polylineStr := fs.String("polyline", "", "Encoded polyline string")

	fs.Parse(os.Args[2:])

	if *polylineStr == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-geo-utils polyline-distance --lat 38.1000 --lng -120.5000 --polyline \"_p~iF~ps|U_ulLnnqC_mqNvxq`@\"")
		os.Exit(1)
	}

	points, err := geoUtils.DecodePolyline(*polylineStr)
	if err != nil {
		log.Fatalf("Error decoding polyline: %v", err)
	}

	point, err := geo.NewPoint(*lat, *lng)
	if err != nil {
		log.Fatalf("Invalid point: %v", err)
	}
	distance, err := geoUtils.PointToPolyline(point, points)
	if err != nil {
		log.Fatalf("Error calculating distance to polyline: %v", err)
	}

	fmt.Printf("Distance from point to polyline:\n")
	fmt.Printf("  Point: (%.6f, %.6f)\n", point.Latitude, point.Longitude)
	fmt.Printf("  Polyline: %d points, %.1f meters long\n", len(points), geoUtils.PolylineLength(points))
	fmt.Printf("  Distance: %.2f meters (%.2f km, %.2f miles)\n",
		distance, distance/1000, distance*0.000621371)
}

func handleDecodePolyline(geoUtils geo.GeoUtils) {
	fs := pflag.NewFlagSet("decode-polyline", pflag.ExitOnError)
	polylineStr := fs.String("polyline", "", "Encoded polyline string to decode")
	verbose := fs.Bool("verbose", false, "Show all decoded points")

	fs.Parse(os.Args[2:])

	if *polylineStr == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-geo-utils decode-polyline --polyline \"_p~iF~ps|U_ulLnnqC_mqNvxq`@\"")
		fmt.Println("  test-geo-utils decode-polyline --polyline \"encoded_string\" --verbose")
		os.Exit(1)
	}

	points, err := geoUtils.DecodePolyline(*polylineStr)
	if err != nil {
		log.Fatalf("Error decoding polyline: %v", err)
	}

	fmt.Printf("Polyline decoded successfully:\n")
	fmt.Printf("  Points: %d\n", len(points))
	fmt.Printf("  Length: %.1f meters\n", geoUtils.PolylineLength(points))
	fmt.Printf("  Start: (%.6f, %.6f)\n", points[0].Latitude, points[0].Longitude)
	fmt.Printf("  End: (%.6f, %.6f)\n", points[len(points)-1].Latitude, points[len(points)-1].Longitude)

	if box, ok := geo.BoundsOf(points); ok {
		fmt.Printf("  Bounds: lat %.6f..%.6f, lng %.6f..%.6f (%.4f degrees of latitude)\n",
			box.MinLat, box.MaxLat, box.MinLon, box.MaxLon, box.LatitudeSpan())
	}

	if *verbose {
		fmt.Printf("  All points:\n")
		for i, point := range points {
			fmt.Printf("    %d: (%.6f, %.6f)\n", i+1, point.Latitude, point.Longitude)
		}
	}
}

func handleEncodePolyline(geoUtils geo.GeoUtils) {
	fs := pflag.NewFlagSet("encode-polyline", pflag.ExitOnError)
	coords := fs.String("points", "", "Points as lat,lng;lat,lng;...")

	fs.Parse(os.Args[2:])

	if *coords == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-geo-utils encode-polyline --points \"38.5,-120.2;40.7,-120.95;43.252,-126.453\"")
		os.Exit(1)
	}

	points, err := parseCoordinatePairs(*coords)
	if err != nil {
		log.Fatalf("Error parsing points: %v", err)
	}

	fmt.Println(geoUtils.EncodePolyline(points))
}

func printUsage() {
	fmt.Printf(`test-geo-utils - Geographic utility testing tool

USAGE:
    test-geo-utils <command> [options]

COMMANDS:
    point-distance      Calculate great-circle distance between two points
    segment-distance    Calculate the clamped distance from a point to a segment
    polyline-distance   Calculate minimum distance from point to polyline
    decode-polyline     Decode Google polyline string to coordinates
    encode-polyline     Encode coordinates as a Google polyline string
    help                Show this help message

EXAMPLES:
    # Distance between Angels Camp and Murphys
    test-geo-utils point-distance --lat1 38.0675 --lng1 -120.5436 --lat2 38.1391 --lng2 -120.4561

    # Is a GPS fix within 25m of a trail edge?
    test-geo-utils segment-distance --point "38.0001,-119.995" --segment "38.0,-120.0;38.0,-119.99"

    # Decode an activity summary polyline
    test-geo-utils decode-polyline --polyline "encoded_string" --verbose
`)
}

// parseCoordinatePairs parses "lat,lng;lat,lng"
func parseCoordinatePairs(coordStr string) ([]geo.Point, error) {
	if coordStr == "" {
		return nil, fmt.Errorf("empty coordinate string")
	}

	pairs := strings.Split(coordStr, ";")
	points := make([]geo.Point, 0, len(pairs))

	for _, pair := range pairs {
		coords := strings.Split(strings.TrimSpace(pair), ",")
		if len(coords) != 2 {
			return nil, fmt.Errorf("invalid coordinate pair: %s", pair)
		}

		lat, err := strconv.ParseFloat(strings.TrimSpace(coords[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude: %s", coords[0])
		}

		lng, err := strconv.ParseFloat(strings.TrimSpace(coords[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude: %s", coords[1])
		}

		point, err := geo.NewPoint(lat, lng)
		if err != nil {
			return nil, fmt.Errorf("coordinate pair %q: %w", strings.TrimSpace(pair), err)
		}
		points = append(points, point)
	}

	return points, nil
}
