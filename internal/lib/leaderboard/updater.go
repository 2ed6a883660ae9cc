package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/dpup/trailmiles/server/internal/logging"
)

// DeltaUpdater turns a change in an activity's trail distance into signed
// increments on every aggregate the activity counts towards.
type DeltaUpdater struct {
	prefs      PreferenceStore
	aggregates AggregateStore
	metric     string
	now        func() time.Time
}

// NewDeltaUpdater creates an updater for metric, defaulting to distance
func NewDeltaUpdater(prefs PreferenceStore, aggregates AggregateStore, metric string) *DeltaUpdater {
	if metric == "" {
		metric = MetricDistance
	}
	return &DeltaUpdater{
		prefs:      prefs,
		aggregates: aggregates,
		metric:     metric,
		now:        time.Now,
	}
}

// ApplyDelta adds newDistance-oldDistance to the athlete's aggregates and
// returns the number of rows touched. Opted-out athletes and zero deltas are no-ops.
func (u *DeltaUpdater) ApplyDelta(ctx context.Context, athleteID int64, startDateLocal time.Time, activityType string, newDistance, oldDistance float64) (int, error) {
	visible, err := u.prefs.ShowOnLeaderboards(ctx, athleteID)
	if err != nil {
		return 0, fmt.Errorf("failed to read leaderboard preference for athlete %d: %w", athleteID, err)
	}
	if !visible {
		logging.Debugw(ctx, "Athlete not on leaderboards, skipping update", "athlete_id", athleteID)
		return 0, nil
	}

	delta := newDistance - oldDistance
	if delta == 0 {
		logging.Debugw(ctx, "No leaderboard change", "athlete_id", athleteID)
		return 0, nil
	}

	increments := Increments(u.metric, athleteID, startDateLocal, activityType, delta)
	if err := u.aggregates.ApplyIncrements(ctx, increments, u.now().UTC()); err != nil {
		return 0, fmt.Errorf("failed to apply leaderboard increments: %w", err)
	}

	logging.Infow(ctx, "Leaderboard updated",
		"athlete_id", athleteID,
		"delta", delta,
		"rows", len(increments))

	return len(increments), nil
}
