package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/dpup/trailmiles/server/internal/clients/trailfeed"
	"github.com/dpup/trailmiles/server/internal/lib/geo"
	"github.com/dpup/trailmiles/server/internal/lib/kmlexport"
	"github.com/dpup/trailmiles/server/internal/lib/matching"
	"github.com/dpup/trailmiles/server/internal/lib/trails"
	"github.com/dpup/trailmiles/server/internal/logging"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "match":
		handleMatch()
	case "inspect-network":
		handleInspectNetwork()
	case "validate-collection":
		handleValidateCollection()
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

// networkFlags selects where trail geometry is read from
type networkFlags struct {
	dir      *string
	snapshot *string
}

func addNetworkFlags(fs *pflag.FlagSet) networkFlags {
	return networkFlags{
		dir:      fs.String("trails-dir", "", "Directory holding trails/main.geojson and trails/spurs.geojson"),
		snapshot: fs.String("snapshot", "", "CBOR snapshot written by 'trailmatch snapshot'"),
	}
}

func (n networkFlags) load(ctx context.Context) *trails.Network {
	var provider trails.NetworkProvider
	switch {
	case *n.snapshot != "":
		provider = trails.NewSnapshotProvider(*n.snapshot)
	case *n.dir != "":
		provider = trails.NewLoader(trailfeed.NewFileSource(*n.dir), nil)
	default:
		log.Fatal("One of --trails-dir or --snapshot is required")
	}

	network, err := provider.Network(ctx)
	if err != nil {
		log.Fatalf("Error loading trail network: %v", err)
	}
	return network
}

func handleMatch() {
	fs := pflag.NewFlagSet("match", pflag.ExitOnError)
	network := addNetworkFlags(fs)
	polylineStr := fs.String("polyline", "", "Encoded activity polyline")
	tolerance := fs.Float64("tolerance", 25, "Tolerance in meters")
	sampleSize := fs.Int("sample-size", 0, "Sampled activity points (default 20)")
	multiplier := fs.Float64("sample-multiplier", 0, "Sampling tolerance multiplier (default 5)")
	kmlOut := fs.String("kml", "", "Write the network and classified activity to this KML file")
	verbose := fs.Bool("verbose", false, "Show debug logs and every classified edge")

	fs.Parse(os.Args[2:])

	if *polylineStr == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-trail-matcher match --trails-dir ./data --polyline \"encoded_string\"")
		fmt.Println("  test-trail-matcher match --snapshot trails.cbor --polyline \"encoded_string\" --tolerance 40 --verbose")
		fmt.Println("  test-trail-matcher match --trails-dir ./data --polyline \"encoded_string\" --kml match.kml")
		os.Exit(1)
	}

	ctx := context.Background()
	if *verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			log.Fatalf("Error creating logger: %v", err)
		}
		defer logger.Sync()
		ctx = logging.WithLogger(ctx, logger.Sugar())
	}

	activity, err := geo.DecodePolyline(*polylineStr)
	if err != nil {
		log.Fatalf("Error decoding polyline: %v", err)
	}

	trailNetwork := network.load(ctx)

	matcher := matching.NewMatcher(matching.Options{
		SampleSize:             *sampleSize,
		SampleMultiplier:       *multiplier,
		MaxLatitudeSpanDegrees: matching.DefaultOptions().MaxLatitudeSpanDegrees,
		RecordEdges:            true,
	})
	options := matcher.Options()

	if *verbose {
		fmt.Printf("ACTIVITY:\n")
		fmt.Printf("  Points: %d\n", len(activity))
		if box, ok := geo.BoundsOf(activity); ok {
			fmt.Printf("  Bounds: lat %.6f..%.6f, lng %.6f..%.6f\n", box.MinLat, box.MaxLat, box.MinLon, box.MaxLon)
		}
		fmt.Printf("\nTRAIL NETWORK:\n")
		fmt.Printf("  Segments: %d\n", len(trailNetwork.Segments))
		fmt.Printf("  Edges: %d\n", trailNetwork.EdgeCount())
		fmt.Printf("\nHEURISTICS:\n")
		fmt.Printf("  Tolerance: %.0fm (sampling %.0fm)\n", *tolerance, *tolerance*options.SampleMultiplier)
		fmt.Printf("  Sample size: %d\n", options.SampleSize)
		fmt.Printf("  Stride divisors: segments %d, points %d\n", options.SegmentStrideDivisor, options.PointStrideDivisor)
		fmt.Printf("\n")
	}

	result := matcher.Match(ctx, activity, trailNetwork, *tolerance)

	fmt.Printf("MATCH RESULT:\n")
	switch result.RejectedBy {
	case matching.RejectedBoundingBox:
		fmt.Printf("  🟢 Rejected: activity bounding box does not reach the trail area\n")
	case matching.RejectedSampling:
		fmt.Printf("  🟢 Rejected: no sampled point within %.0fm of the trail\n", *tolerance*options.SampleMultiplier)
	case matching.RejectedEmpty:
		fmt.Printf("  Rejected: nothing to compare\n")
	}
	fmt.Printf("  Distance on trail: %.1f meters (%.2f miles)\n", result.DistanceOnTrail, result.DistanceOnTrail*0.000621371)
	fmt.Printf("  Total distance: %.1f meters\n", result.TotalDistance)
	fmt.Printf("  Ratio: %.1f%%\n", result.Ratio*100)

	if *verbose && len(result.Edges) > 0 {
		fmt.Printf("\nEDGES:\n")
		for i, edge := range result.Edges {
			marker := "❌"
			if edge.OnTrail {
				marker = "✅"
			}
			fmt.Printf("  %s %d: (%.6f, %.6f) to (%.6f, %.6f) - %.1fm\n", marker, i+1,
				edge.Start.Latitude, edge.Start.Longitude, edge.End.Latitude, edge.End.Longitude, edge.Length)
		}
	}

	if *kmlOut != "" {
		writeKML(*kmlOut, trailNetwork, &kmlexport.Track{Name: "activity", Result: result})
	}
}

func handleInspectNetwork() {
	fs := pflag.NewFlagSet("inspect-network", pflag.ExitOnError)
	network := addNetworkFlags(fs)
	kmlOut := fs.String("kml", "", "Write the network to this KML file")

	fs.Parse(os.Args[2:])

	trailNetwork := network.load(context.Background())
	geoUtils := geo.NewGeoUtils()

	fmt.Printf("TRAIL NETWORK:\n")
	fmt.Printf("  Collections: %v\n", trailNetwork.Collections)
	fmt.Printf("  Segments: %d\n", len(trailNetwork.Segments))
	fmt.Printf("  Points: %d\n", trailNetwork.PointCount())
	fmt.Printf("  Edges: %d\n", trailNetwork.EdgeCount())
	if box, ok := trailNetwork.Bounds(); ok {
		fmt.Printf("  Bounds: lat %.6f..%.6f, lng %.6f..%.6f\n", box.MinLat, box.MaxLat, box.MinLon, box.MaxLon)
	}

	total := 0.0
	fmt.Printf("\nSEGMENTS:\n")
	for i, segment := range trailNetwork.Segments {
		length := geoUtils.PolylineLength(segment.Points)
		total += length
		name := segment.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Printf("  %d. %s [%s] %d points, %.1fm\n", i+1, name, segment.Collection, len(segment.Points), length)
	}
	fmt.Printf("\nTotal length: %.1f meters (%.2f miles)\n", total, total*0.000621371)

	if *kmlOut != "" {
		writeKML(*kmlOut, trailNetwork, nil)
	}
}

func handleValidateCollection() {
	fs := pflag.NewFlagSet("validate-collection", pflag.ExitOnError)
	file := fs.String("file", "", "Path to a GeoJSON FeatureCollection")

	fs.Parse(os.Args[2:])

	if *file == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-trail-matcher validate-collection --file data/trails/main.geojson")
		os.Exit(1)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("Error reading %s: %v", *file, err)
	}

	fmt.Printf("Validating collection %s...\n\n", filepath.Base(*file))

	segments, err := trails.ParseCollection(*file, data)
	if err != nil {
		fmt.Printf("  ❌ %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("  ✅ Valid GeoJSON FeatureCollection\n")

	if len(segments) == 0 {
		fmt.Printf("  ❌ No LineString or MultiLineString features with at least two points\n")
		os.Exit(1)
	}
	fmt.Printf("  ✅ %d usable segments\n", len(segments))

	network := trails.NewNetwork(segments)
	if box, ok := network.Bounds(); ok {
		if box.LatitudeSpan() > matching.DefaultOptions().MaxLatitudeSpanDegrees {
			fmt.Printf("  ⚠️  Collection spans %.2f degrees of latitude; distances will be approximate\n", box.LatitudeSpan())
		} else {
			fmt.Printf("  ✅ Latitude span %.4f degrees\n", box.LatitudeSpan())
		}
	}
}

func writeKML(path string, network *trails.Network, track *kmlexport.Track) {
	f, err := os.Create(path)
	if err != nil {
		log.Fatalf("Error creating %s: %v", path, err)
	}
	defer f.Close()

	if err := kmlexport.Write(f, network, track); err != nil {
		log.Fatalf("Error writing KML: %v", err)
	}
	fmt.Printf("\nWrote %s\n", path)
}

func printUsage() {
	fmt.Printf(`test-trail-matcher - Trail intersection testing tool

USAGE:
    test-trail-matcher <command> [options]

COMMANDS:
    match                 Match an encoded polyline against the trail network
    inspect-network       Summarize the trail network's segments and extent
    validate-collection   Check that a GeoJSON file yields usable trail segments
    help                  Show this help message

EXAMPLES:
    # How much of this activity was on the trail?
    test-trail-matcher match --trails-dir ./data --polyline "encoded_string" --verbose

    # Same check against a snapshot, with a KML for Google Earth
    test-trail-matcher match --snapshot trails.cbor --polyline "encoded_string" --kml match.kml

    # Summarize the network
    test-trail-matcher inspect-network --trails-dir ./data
`)
}
