package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dpup/trailmiles/server/internal/lib/geo"
	"github.com/dpup/trailmiles/server/internal/lib/kmlexport"
	"github.com/dpup/trailmiles/server/internal/lib/leaderboard"
	"github.com/dpup/trailmiles/server/internal/lib/matching"
	"github.com/dpup/trailmiles/server/internal/lib/trails"
	"github.com/dpup/trailmiles/server/internal/services"
)

func handleMatch(args []string) {
	fs, common := newFlagSet("match")
	id := fs.Int64("activity", 0, "Activity id")
	fs.Parse(args)

	if *id == 0 {
		fmt.Println("Example usage:")
		fmt.Println("  trailmatch match --activity 12345")
		fmt.Println("  trailmatch match --activity 12345 --set matching.tolerance_meters=40")
		os.Exit(1)
	}

	a := newApp(signalContext(), common.load())
	defer a.close()

	result, err := a.orchestrator().Process(a.ctx, *id)
	if err != nil {
		a.fatal("Match failed", err)
	}
	printJSON(result)
}

func handleQueue(args []string) {
	fs, common := newFlagSet("handle")
	fs.Parse(args)

	a := newApp(signalContext(), common.load())
	defer a.close()

	var bodies [][]byte
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if line := scanner.Bytes(); len(line) > 0 {
			bodies = append(bodies, append([]byte(nil), line...))
		}
	}
	if err := scanner.Err(); err != nil {
		a.fatal("Failed to read messages", err)
	}

	report, err := a.orchestrator().HandleMessages(a.ctx, bodies)
	printJSON(report)
	if err != nil {
		a.fatal("Some messages failed", err)
	}
}

func handleBatch(args []string) {
	fs, common := newFlagSet("batch")
	loop := fs.Bool("loop", false, "Keep sweeping every batch.interval until interrupted")
	fs.Parse(args)

	a := newApp(signalContext(), common.load())
	defer a.close()

	driver := a.batchDriver()

	if !*loop {
		report, err := driver.RunOnce(a.ctx)
		if report != nil {
			printJSON(report)
		}
		if err != nil {
			a.fatal("Batch failed", err)
		}
		return
	}

	if err := services.NewNetworkWarmer(a.networks, a.cfg.Trails.FetchTimeout).Warm(a.ctx); err != nil {
		a.fatal("Trail network unavailable", err)
	}
	a.cache.StartPeriodicCleanup(a.ctx, a.cfg.Trails.CacheTTL)
	go a.reloadOnHangup()

	service := services.NewPeriodicMatchService(driver, a.cfg.Batch.Interval)
	if err := service.Start(a.ctx); err != nil {
		a.fatal("Failed to start periodic match", err)
	}

	<-a.ctx.Done()
	service.Stop()
	<-service.Done()
	a.logger.Info("Periodic match stopped")
}

func handleReset(args []string) {
	fs, common := newFlagSet("reset")
	athleteID := fs.Int64("athlete", 0, "Only reset this athlete's activities (default all)")
	fs.Parse(args)

	a := newApp(signalContext(), common.load())
	defer a.close()

	n, err := a.store.ResetLastMatched(a.ctx, *athleteID)
	if err != nil {
		a.fatal("Reset failed", err)
	}
	a.logger.Info("Activities queued for rematch", zap.Int64("athlete_id", *athleteID), zap.Int64("activities", n))
	fmt.Printf("Reset %d activities\n", n)
}

func handleRecalculate(args []string) {
	fs, common := newFlagSet("recalculate")
	sinceFlag := fs.String("since", "", "Earliest local start date to include (default leaderboard.recalculate_since)")
	fs.Parse(args)

	cfg := common.load()
	if *sinceFlag != "" {
		cfg.Leaderboard.RecalculateSince = *sinceFlag
	}
	since, err := cfg.Leaderboard.Since()
	if err != nil {
		log.Fatalf("%v", err)
	}

	a := newApp(signalContext(), cfg)
	defer a.close()

	report, err := leaderboard.NewRecalculator(a.store, cfg.Leaderboard.Metric).Recalculate(a.ctx, since)
	if err != nil {
		a.fatal("Recalculation failed", err)
	}
	printJSON(report)
}

func handleLeaderboard(args []string) {
	fs, common := newFlagSet("leaderboard")
	windowFlag := fs.String("window", "week", "week, month or year")
	bucket := fs.String("bucket", leaderboard.BucketAll, "all, foot or bike")
	athleteID := fs.Int64("athlete", 0, "Include this athlete's own standing")
	limit := fs.Int("limit", 10, "Number of standings")
	offset := fs.Int("offset", 0, "Standings to skip")
	fs.Parse(args)

	window, err := leaderboard.ParseWindow(*windowFlag)
	if err != nil {
		log.Fatalf("%v", err)
	}

	a := newApp(signalContext(), common.load())
	defer a.close()

	board, err := leaderboard.NewBoards(a.store, a.cfg.Leaderboard.Metric).Board(a.ctx, leaderboard.BoardRequest{
		Window:    window,
		Bucket:    *bucket,
		AthleteID: *athleteID,
		Limit:     *limit,
		Offset:    *offset,
	}, time.Now())
	if err != nil {
		a.fatal("Failed to read leaderboard", err)
	}
	printJSON(board)
}

func handleSnapshot(args []string) {
	fs, common := newFlagSet("snapshot")
	out := fs.String("out", "trails.cbor", "Snapshot file to write")
	fs.Parse(args)

	cfg := common.load()
	ctx, logger := newLogger(signalContext(), cfg)
	defer logger.Sync()

	provider, err := trailProvider(cfg.Trails)
	if err != nil {
		logger.Fatal("Failed to configure trail source", zap.Error(err))
	}

	network, err := provider.Network(ctx)
	if err != nil {
		logger.Fatal("Failed to load trail network", zap.Error(err))
	}

	if err := trails.WriteSnapshotFile(*out, network); err != nil {
		logger.Fatal("Failed to write snapshot", zap.String("path", *out), zap.Error(err))
	}

	fmt.Printf("Wrote %d segments (%d points) to %s\n", len(network.Segments), network.PointCount(), *out)
}

func handleExportKML(args []string) {
	fs, common := newFlagSet("export-kml")
	out := fs.String("out", "trails.kml", "KML file to write")
	id := fs.Int64("activity", 0, "Include this activity, colored by on/off trail")
	fs.Parse(args)

	a := newApp(signalContext(), common.load())
	defer a.close()

	network, err := a.networks.Network(a.ctx)
	if err != nil {
		a.fatal("Failed to load trail network", err)
	}

	var track *kmlexport.Track
	if *id != 0 {
		track, err = a.track(*id, network)
		if err != nil {
			a.fatal("Failed to build activity track", err)
		}
	}

	f, err := os.Create(*out)
	if err != nil {
		a.fatal("Failed to create output file", err)
	}
	defer f.Close()

	if err := kmlexport.Write(f, network, track); err != nil {
		a.fatal("Failed to write KML", err)
	}
	fmt.Printf("Wrote %s\n", *out)
}

// track matches an activity with edge recording, without persisting anything
func (a *app) track(id int64, network *trails.Network) (*kmlexport.Track, error) {
	activity, err := a.store.GetActivity(a.ctx, id)
	if err != nil {
		return nil, err
	}
	points, err := geo.DecodePolyline(activity.Polyline)
	if err != nil {
		return nil, err
	}

	options := a.matcher.Options()
	options.RecordEdges = true
	result := matching.NewMatcher(options).Match(a.ctx, points, network, a.cfg.Matching.ToleranceMeters)

	name := activity.Name
	if name == "" {
		name = fmt.Sprintf("activity %d", id)
	}
	return &kmlexport.Track{Name: name, Result: result}, nil
}

func handleConfig(args []string) {
	fs, common := newFlagSet("config")
	fs.Parse(args)

	out, err := common.load().YAML()
	if err != nil {
		log.Fatalf("Failed to render configuration: %v", err)
	}
	os.Stdout.Write(out)
}

// signalContext is cancelled on SIGINT or SIGTERM
// reloadOnHangup drops the cached trail network on SIGHUP so the next sweep
// picks up edited trail files
func (a *app) reloadOnHangup() {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-hup:
			a.networks.Invalidate()
			a.logger.Info("Trail network invalidated; reloading on next sweep")
		}
	}
}

func signalContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ctx
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("Failed to encode output: %v", err)
	}
}
