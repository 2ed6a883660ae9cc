package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/trailmiles/server/internal/cache"
	"github.com/dpup/trailmiles/server/internal/clients/trailfeed"
	"github.com/dpup/trailmiles/server/internal/lib/activities"
	"github.com/dpup/trailmiles/server/internal/lib/geo"
	"github.com/dpup/trailmiles/server/internal/lib/leaderboard"
	"github.com/dpup/trailmiles/server/internal/lib/matching"
	"github.com/dpup/trailmiles/server/internal/lib/trails"
	"github.com/dpup/trailmiles/server/internal/store"
)

const mainGeoJSON = `{"type":"FeatureCollection","features":[
	{"type":"Feature","properties":{"name":"Main Line"},
	 "geometry":{"type":"LineString","coordinates":[[-120.0,38.0],[-119.9943,38.0],[-119.9886,38.0]]}}]}`

const spursGeoJSON = `{"type":"FeatureCollection","features":[
	{"type":"Feature","properties":{"name":"North Spur"},
	 "geometry":{"type":"LineString","coordinates":[[-119.90,38.0],[-119.90,38.01]]}}]}`

func writeTrailFiles(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "trails"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, trails.MainCollection), []byte(mainGeoJSON), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, trails.SpursCollection), []byte(spursGeoJSON), 0o644))
	return dir
}

func TestPipeline_SQLiteEndToEnd(t *testing.T) {
	ctx := context.Background()

	db, err := store.Open(ctx, store.DriverSQLite, filepath.Join(t.TempDir(), "trailmiles.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.UpsertUser(ctx, store.User{AthleteID: 7, DisplayName: "Sam", ShowOnLeaderboards: true}))

	onTrail := activityWith(1, geo.EncodePolyline(line(38.00009, -119.9995, -119.9895, 21)))
	offTrail := activityWith(2, geo.EncodePolyline(line(39.0, -121.0, -120.99, 10)))
	offTrail.StartDate = onTrail.StartDate.Add(-time.Hour)
	require.NoError(t, db.InsertActivity(ctx, onTrail))
	require.NoError(t, db.InsertActivity(ctx, offTrail))

	provider := &countingNetworks{next: trails.NewLoader(trailfeed.NewFileSource(writeTrailFiles(t)), nil)}
	networks := cache.NewNetworkCache(provider, nil, time.Minute)
	updater := leaderboard.NewDeltaUpdater(db, db, leaderboard.MetricDistance)
	orchestrator := NewMatchOrchestrator(db, networks, matching.NewMatcher(matching.DefaultOptions()), updater, 25)

	report, err := NewBatchDriver(db, orchestrator, BatchOptions{Size: 10, Workers: 2}).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Selected)
	assert.Equal(t, 2, report.Outcomes[Matched])
	assert.Equal(t, 1, provider.calls, "network loaded once for the batch")

	stored, err := db.GetActivity(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, stored.DistanceOnTrail)
	assert.InDelta(t, 876, *stored.DistanceOnTrail, 5)
	assert.Equal(t, int64(1800), *stored.TimeOnTrail)

	stored, err = db.GetActivity(ctx, 2)
	require.NoError(t, err)
	assert.Zero(t, *stored.DistanceOnTrail)
	require.NotNil(t, stored.LastMatched)

	weekKey := leaderboard.Key{Window: leaderboard.Week, WindowKey: "week_2026-02-09", Metric: leaderboard.MetricDistance, Bucket: "foot", AthleteID: 7}
	value, ok, err := db.AggregateValue(ctx, weekKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 876, value, 5)

	// A rematch with identical geometry leaves the aggregates unchanged
	result, err := orchestrator.Process(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, result.LeaderboardRows)
	rematched, _, err := db.AggregateValue(ctx, weekKey)
	require.NoError(t, err)
	assert.Equal(t, value, rematched)

	// Nothing left to sweep
	ids, err := db.ListUnmatched(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

type countingNetworks struct {
	next  trails.NetworkProvider
	calls int
}

func (c *countingNetworks) Network(ctx context.Context) (*trails.Network, error) {
	c.calls++
	return c.next.Network(ctx)
}

var _ activities.Store = (*store.Store)(nil)
