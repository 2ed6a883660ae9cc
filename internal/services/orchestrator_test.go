package services

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/trailmiles/server/internal/lib/activities"
	"github.com/dpup/trailmiles/server/internal/lib/geo"
	"github.com/dpup/trailmiles/server/internal/lib/leaderboard"
	"github.com/dpup/trailmiles/server/internal/lib/matching"
	"github.com/dpup/trailmiles/server/internal/lib/trails"
)

// memActivities is an in-memory activities.Store and UnmatchedLister
type memActivities struct {
	mu        sync.Mutex
	rows      map[int64]*activities.Activity
	updates   int
	updateErr error
}

func newMemActivities(rows ...*activities.Activity) *memActivities {
	m := &memActivities{rows: make(map[int64]*activities.Activity)}
	for _, a := range rows {
		m.rows[a.ID] = a
	}
	return m
}

func (m *memActivities) GetActivity(ctx context.Context, id int64) (*activities.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return nil, activities.ErrNotFound
	}
	clone := *a
	return &clone, nil
}

func (m *memActivities) UpdateMatch(ctx context.Context, id int64, update activities.MatchUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	a, ok := m.rows[id]
	if !ok {
		return activities.ErrNotFound
	}
	m.updates++
	distance, moving, at := update.DistanceOnTrail, update.TimeOnTrail, update.MatchedAt
	a.DistanceOnTrail, a.TimeOnTrail, a.LastMatched = &distance, &moving, &at
	return nil
}

func (m *memActivities) ListUnmatched(ctx context.Context, limit int) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var unmatched []*activities.Activity
	for _, a := range m.rows {
		if a.LastMatched == nil {
			unmatched = append(unmatched, a)
		}
	}
	sort.Slice(unmatched, func(i, j int) bool { return unmatched[i].StartDate.After(unmatched[j].StartDate) })
	var ids []int64
	for _, a := range unmatched {
		if len(ids) == limit {
			break
		}
		ids = append(ids, a.ID)
	}
	return ids, nil
}

func (m *memActivities) get(id int64) *activities.Activity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

// staticNetwork returns a fixed network or error
type staticNetwork struct {
	network *trails.Network
	err     error
	calls   int
}

func (s *staticNetwork) Network(ctx context.Context) (*trails.Network, error) {
	s.calls++
	return s.network, s.err
}

// fixedMatcher returns a canned result
type fixedMatcher struct {
	result matching.Result
}

func (f fixedMatcher) Match(ctx context.Context, activity []geo.Point, network *trails.Network, toleranceMeters float64) matching.Result {
	return f.result
}

func (f fixedMatcher) Options() matching.Options { return matching.DefaultOptions() }

type deltaCall struct {
	athleteID      int64
	activityType   string
	newDistance    float64
	oldDistance    float64
	startDateLocal time.Time
}

// recordingDeltas records leaderboard updates
type recordingDeltas struct {
	mu    sync.Mutex
	calls []deltaCall
	err   error
}

func (r *recordingDeltas) ApplyDelta(ctx context.Context, athleteID int64, startDateLocal time.Time, activityType string, newDistance, oldDistance float64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, deltaCall{athleteID, activityType, newDistance, oldDistance, startDateLocal})
	if r.err != nil {
		return 0, r.err
	}
	return 6, nil
}

// line returns n evenly spaced points along a parallel
func line(lat, lonStart, lonEnd float64, n int) []geo.Point {
	points := make([]geo.Point, n)
	for i := range points {
		points[i] = geo.Point{Latitude: lat, Longitude: lonStart + (lonEnd-lonStart)*float64(i)/float64(n-1)}
	}
	return points
}

func kilometerTrail() *trails.Network {
	return trails.NewNetwork([]trails.Segment{
		{Name: "Main Line", Points: line(38.0, -120.0, -119.9886, 21)},
		{Name: "North Spur", Points: []geo.Point{{Latitude: 38.0, Longitude: -119.90}, {Latitude: 38.01, Longitude: -119.90}}},
	}, trails.DefaultCollections...)
}

var startDateLocal = time.Date(2026, 2, 11, 7, 30, 0, 0, time.UTC)

func activityWith(id int64, polyline string) *activities.Activity {
	return &activities.Activity{
		ID:             id,
		AthleteID:      7,
		Polyline:       polyline,
		MovingTime:     1800,
		Distance:       2000,
		StartDate:      startDateLocal.Add(8 * time.Hour),
		StartDateLocal: startDateLocal,
		Type:           activities.TypeRun,
	}
}

func fixedNow() time.Time {
	return time.Date(2026, 2, 11, 18, 0, 0, 0, time.UTC)
}

func newTestOrchestrator(store *memActivities, networks *staticNetwork, matcher matching.Matcher, deltas DeltaApplier) *MatchOrchestrator {
	o := NewMatchOrchestrator(store, networks, matcher, deltas, 25)
	o.now = fixedNow
	return o
}

func TestMatchOrchestrator_Matched(t *testing.T) {
	// About 10 m north of the trail for ~876 m
	polyline := geo.EncodePolyline(line(38.00009, -119.9995, -119.9895, 21))
	store := newMemActivities(activityWith(1, polyline))
	deltas := &recordingDeltas{}
	o := newTestOrchestrator(store, &staticNetwork{network: kilometerTrail()}, matching.NewMatcher(matching.DefaultOptions()), deltas)

	result, err := o.Process(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, Matched, result.Outcome)
	assert.InDelta(t, 1.0, result.Ratio, 1e-9)
	assert.InDelta(t, 876, result.DistanceOnTrail, 5)
	assert.Equal(t, int64(math.Floor(1800*result.Ratio)), result.TimeOnTrail)
	assert.Equal(t, 6, result.LeaderboardRows)
	assert.Contains(t, result.Message, "on trail")

	stored := store.get(1)
	require.NotNil(t, stored.LastMatched)
	assert.Equal(t, fixedNow(), *stored.LastMatched)
	assert.Equal(t, result.DistanceOnTrail, *stored.DistanceOnTrail)
	assert.Equal(t, result.TimeOnTrail, *stored.TimeOnTrail)

	require.Len(t, deltas.calls, 1)
	assert.Equal(t, deltaCall{7, activities.TypeRun, result.DistanceOnTrail, 0, startDateLocal}, deltas.calls[0])
}

func TestMatchOrchestrator_TimeOnTrailFloors(t *testing.T) {
	store := newMemActivities(activityWith(1, geo.EncodePolyline(line(38.0, -119.999, -119.99, 5))))
	matcher := fixedMatcher{result: matching.Result{DistanceOnTrail: 333, TotalDistance: 1000, Ratio: 0.333}}
	o := newTestOrchestrator(store, &staticNetwork{network: kilometerTrail()}, matcher, nil)

	result, err := o.Process(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(599), result.TimeOnTrail, "1800 * 0.333 = 599.4")
}

func TestMatchOrchestrator_EmptyPolyline(t *testing.T) {
	previous := 420.0
	a := activityWith(1, "")
	a.DistanceOnTrail = &previous
	store := newMemActivities(a)
	networks := &staticNetwork{network: kilometerTrail()}
	deltas := &recordingDeltas{}
	o := newTestOrchestrator(store, networks, matching.NewMatcher(matching.DefaultOptions()), deltas)

	result, err := o.Process(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, NoGeometry, result.Outcome)
	assert.Zero(t, result.DistanceOnTrail)
	assert.Zero(t, result.TimeOnTrail)
	assert.Zero(t, networks.calls, "no network load without geometry")

	stored := store.get(1)
	require.NotNil(t, stored.LastMatched)
	assert.Zero(t, *stored.DistanceOnTrail)
	assert.Zero(t, *stored.TimeOnTrail)

	// The stored distance is withdrawn from the leaderboards
	require.Len(t, deltas.calls, 1)
	assert.Equal(t, 0.0, deltas.calls[0].newDistance)
	assert.Equal(t, 420.0, deltas.calls[0].oldDistance)
}

func TestMatchOrchestrator_ZeroOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		polyline string
		networks *staticNetwork
		outcome  OutcomeKind
		message  string
	}{
		{"malformed polyline", "_p~iF", &staticNetwork{network: kilometerTrail()}, NoGeometry, "No geometry: "},
		{"trail network unavailable", geo.EncodePolyline(line(38.0, -119.999, -119.99, 5)), &staticNetwork{err: errors.New("collection trails/spurs.geojson not found")}, LoadFailed, "Match failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemActivities(activityWith(1, tt.polyline))
			o := newTestOrchestrator(store, tt.networks, matching.NewMatcher(matching.DefaultOptions()), &recordingDeltas{})

			result, err := o.Process(context.Background(), 1)
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, result.Outcome)
			assert.Zero(t, result.DistanceOnTrail)
			assert.Contains(t, result.Message, tt.message)
			if tt.outcome == NoGeometry {
				assert.Zero(t, tt.networks.calls, "undecodable geometry skips the network load")
			}

			stored := store.get(1)
			require.NotNil(t, stored.LastMatched)
			assert.Zero(t, *stored.DistanceOnTrail)
		})
	}
}

func TestMatchOrchestrator_NotFound(t *testing.T) {
	store := newMemActivities()
	deltas := &recordingDeltas{}
	o := newTestOrchestrator(store, &staticNetwork{network: kilometerTrail()}, matching.NewMatcher(matching.DefaultOptions()), deltas)

	_, err := o.Process(context.Background(), 404)
	assert.ErrorIs(t, err, activities.ErrNotFound)
	assert.Zero(t, store.updates)
	assert.Empty(t, deltas.calls)
}

func TestMatchOrchestrator_RematchWithSameDistance(t *testing.T) {
	previous := 100.0
	a := activityWith(1, geo.EncodePolyline(line(38.0, -119.999, -119.99, 5)))
	a.DistanceOnTrail = &previous
	store := newMemActivities(a)

	prefs := &optInStore{visible: true}
	updater := leaderboard.NewDeltaUpdater(prefs, prefs, leaderboard.MetricDistance)
	matcher := fixedMatcher{result: matching.Result{DistanceOnTrail: 100, TotalDistance: 200, Ratio: 0.5}}
	o := newTestOrchestrator(store, &staticNetwork{network: kilometerTrail()}, matcher, updater)

	result, err := o.Process(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, result.LeaderboardRows)
	assert.Empty(t, prefs.rows)

	// 100 -> 150 adds +50 to week_2026-02-09 in the all and foot buckets
	o.matcher = fixedMatcher{result: matching.Result{DistanceOnTrail: 150, TotalDistance: 200, Ratio: 0.75}}
	result, err = o.Process(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 6, result.LeaderboardRows)
	assert.Equal(t, 100.0, result.PreviousDistance)
	assert.Equal(t, 50.0, prefs.rows[leaderboard.Key{Window: leaderboard.Week, WindowKey: "week_2026-02-09", Metric: "distance", Bucket: "all", AthleteID: 7}])
	assert.Equal(t, 50.0, prefs.rows[leaderboard.Key{Window: leaderboard.Week, WindowKey: "week_2026-02-09", Metric: "distance", Bucket: "foot", AthleteID: 7}])
}

func TestMatchOrchestrator_LeaderboardFailureSwallowed(t *testing.T) {
	store := newMemActivities(activityWith(1, geo.EncodePolyline(line(38.0, -119.999, -119.99, 5))))
	deltas := &recordingDeltas{err: errors.New("aggregate table locked")}
	o := newTestOrchestrator(store, &staticNetwork{network: kilometerTrail()}, matching.NewMatcher(matching.DefaultOptions()), deltas)

	result, err := o.Process(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, Matched, result.Outcome)
	assert.Zero(t, result.LeaderboardRows)
	assert.NotNil(t, store.get(1).LastMatched, "metrics persist regardless")
}

func TestMatchOrchestrator_CancelledBeforeWrite(t *testing.T) {
	store := newMemActivities(activityWith(1, geo.EncodePolyline(line(38.0, -119.999, -119.99, 5))))
	o := newTestOrchestrator(store, &staticNetwork{network: kilometerTrail()}, matching.NewMatcher(matching.DefaultOptions()), &recordingDeltas{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Process(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, store.get(1).LastMatched, "a cancelled attempt is not stamped")
}

func TestMatchOrchestrator_WriteFailure(t *testing.T) {
	store := newMemActivities(activityWith(1, ""))
	store.updateErr = errors.New("disk full")
	deltas := &recordingDeltas{}
	o := newTestOrchestrator(store, &staticNetwork{network: kilometerTrail()}, matching.NewMatcher(matching.DefaultOptions()), deltas)

	_, err := o.Process(context.Background(), 1)
	assert.ErrorContains(t, err, "disk full")
	assert.Empty(t, deltas.calls)
}

// optInStore is a visible-or-not preference store with an in-memory aggregate table
type optInStore struct {
	visible bool
	rows    map[leaderboard.Key]float64
}

func (s *optInStore) ShowOnLeaderboards(ctx context.Context, athleteID int64) (bool, error) {
	return s.visible, nil
}

func (s *optInStore) ApplyIncrements(ctx context.Context, increments []leaderboard.Increment, at time.Time) error {
	if s.rows == nil {
		s.rows = make(map[leaderboard.Key]float64)
	}
	for _, inc := range increments {
		s.rows[inc.Key] += inc.Value
	}
	return nil
}
