// Command trailmatch measures how much of each stored activity was spent on
// the trail network and keeps the leaderboard aggregates in step.
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "match":
		handleMatch(args)
	case "handle":
		handleQueue(args)
	case "batch":
		handleBatch(args)
	case "reset":
		handleReset(args)
	case "recalculate":
		handleRecalculate(args)
	case "leaderboard":
		handleLeaderboard(args)
	case "snapshot":
		handleSnapshot(args)
	case "export-kml":
		handleExportKML(args)
	case "config":
		handleConfig(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("trailmatch - trail intersection matching and leaderboards")
	fmt.Println("")
	fmt.Println("Usage:")
	fmt.Println("  trailmatch <command> [flags]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  match         Match one activity by id")
	fmt.Println("  handle        Process queue messages read from stdin, one JSON object per line")
	fmt.Println("  batch         Match unmatched activities, newest first (--loop to keep sweeping, SIGHUP reloads trails)")
	fmt.Println("  reset         Clear last_matched so activities are matched again")
	fmt.Println("  recalculate   Rebuild every leaderboard aggregate from stored distances")
	fmt.Println("  leaderboard   Show the current standings for a window and bucket")
	fmt.Println("  snapshot      Load the trail network and write a CBOR snapshot")
	fmt.Println("  export-kml    Write the trail network, and optionally one activity, as KML")
	fmt.Println("  config        Print the effective configuration")
	fmt.Println("")
	fmt.Println("Common flags:")
	fmt.Println("  --config path        YAML configuration file")
	fmt.Println("  --set key=value      Override a configuration value, e.g. --set matching.tolerance_meters=30")
	fmt.Println("")
	fmt.Println("Environment variables prefixed with TRAILMATCH__ override the file, e.g.")
	fmt.Println("  TRAILMATCH__DATABASE__DSN=/var/lib/trailmiles.db")
}
