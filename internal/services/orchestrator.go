package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dpup/trailmiles/server/internal/lib/activities"
	"github.com/dpup/trailmiles/server/internal/lib/geo"
	"github.com/dpup/trailmiles/server/internal/lib/matching"
	"github.com/dpup/trailmiles/server/internal/lib/trails"
	"github.com/dpup/trailmiles/server/internal/logging"
)

// OutcomeKind is how a match attempt ended. Every kind is persisted.
type OutcomeKind string

const (
	Matched    OutcomeKind = "matched"
	NoGeometry OutcomeKind = "no_geometry"
	LoadFailed OutcomeKind = "load_failed"
)

// Outcome is the evaluated result of one attempt, before persistence
type Outcome struct {
	Kind            OutcomeKind
	DistanceOnTrail float64
	TimeOnTrail     int64
	Ratio           float64
	Reason          string // why there was no geometry or the network failed to load
}

// MatchResult is the per-activity telemetry record
type MatchResult struct {
	ActivityID       int64       `json:"activity_id"`
	Outcome          OutcomeKind `json:"outcome"`
	DistanceOnTrail  float64     `json:"distance_on_trail"`
	TimeOnTrail      int64       `json:"time_on_trail"`
	Ratio            float64     `json:"ratio"`
	PreviousDistance float64     `json:"previous_distance"`
	LeaderboardRows  int         `json:"leaderboard_rows"`
	MatchedAt        time.Time   `json:"matched_at"`
	Message          string      `json:"message"`
}

// DeltaApplier propagates a change in trail distance to the leaderboards
type DeltaApplier interface {
	ApplyDelta(ctx context.Context, athleteID int64, startDateLocal time.Time, activityType string, newDistance, oldDistance float64) (int, error)
}

// MatchOrchestrator runs the load, match, persist, leaderboard workflow for one activity
type MatchOrchestrator struct {
	activities      activities.Store
	networks        trails.NetworkProvider
	matcher         matching.Matcher
	leaderboard     DeltaApplier
	toleranceMeters float64
	now             func() time.Time
}

// NewMatchOrchestrator creates an orchestrator. leaderboard may be nil.
func NewMatchOrchestrator(store activities.Store, networks trails.NetworkProvider, matcher matching.Matcher, leaderboard DeltaApplier, toleranceMeters float64) *MatchOrchestrator {
	return &MatchOrchestrator{
		activities:      store,
		networks:        networks,
		matcher:         matcher,
		leaderboard:     leaderboard,
		toleranceMeters: toleranceMeters,
		now:             time.Now,
	}
}

// Process matches one activity and always stamps it as attempted. Only a
// missing activity (activities.ErrNotFound), a failed read or write of the
// activity row, or ctx ending before the write returns an error; in those
// cases nothing is stamped.
func (o *MatchOrchestrator) Process(ctx context.Context, activityID int64) (*MatchResult, error) {
	ctx = logging.With(ctx, "activity_id", activityID)

	activity, err := o.activities.GetActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}

	// Read before the write so the leaderboard delta is taken against the stored value
	previous := activity.PreviousDistanceOnTrail()

	outcome := o.evaluate(ctx, activity)

	if err := ctx.Err(); err != nil {
		logging.Warnw(ctx, "Match abandoned before persisting", "error", err)
		return nil, err
	}

	matchedAt := o.now().UTC()
	if err := o.activities.UpdateMatch(ctx, activityID, activities.MatchUpdate{
		DistanceOnTrail: outcome.DistanceOnTrail,
		TimeOnTrail:     outcome.TimeOnTrail,
		MatchedAt:       matchedAt,
	}); err != nil {
		return nil, fmt.Errorf("failed to persist match: %w", err)
	}

	result := &MatchResult{
		ActivityID:       activityID,
		Outcome:          outcome.Kind,
		DistanceOnTrail:  outcome.DistanceOnTrail,
		TimeOnTrail:      outcome.TimeOnTrail,
		Ratio:            outcome.Ratio,
		PreviousDistance: previous,
		MatchedAt:        matchedAt,
		Message:          outcome.message(),
	}

	if o.leaderboard != nil {
		rows, err := o.leaderboard.ApplyDelta(ctx, activity.AthleteID, activity.StartDateLocal, activity.Type, outcome.DistanceOnTrail, previous)
		if err != nil {
			logging.Errorw(ctx, "Leaderboard update failed", "athlete_id", activity.AthleteID, "error", err)
		}
		result.LeaderboardRows = rows
	}

	logging.Infow(ctx, "Activity processed",
		"outcome", outcome.Kind,
		"distance_on_trail", outcome.DistanceOnTrail,
		"time_on_trail", outcome.TimeOnTrail,
		"previous_distance", previous)

	return result, nil
}

// evaluate decides the outcome without side effects on the activity row
func (o *MatchOrchestrator) evaluate(ctx context.Context, activity *activities.Activity) Outcome {
	if activity.Polyline == "" {
		return Outcome{Kind: NoGeometry, Reason: "activity has no polyline"}
	}

	coords, err := geo.DecodePolyline(activity.Polyline)
	if err != nil {
		logging.Warnw(ctx, "Polyline decode failed", "error", err)
		return Outcome{Kind: NoGeometry, Reason: err.Error()}
	}

	network, err := o.networks.Network(ctx)
	if err != nil {
		logging.Errorw(ctx, "Trail network unavailable", "error", err)
		return Outcome{Kind: LoadFailed, Reason: fmt.Sprintf("trail network unavailable: %v", err)}
	}

	result := o.matcher.Match(ctx, coords, network, o.toleranceMeters)

	return Outcome{
		Kind:            Matched,
		DistanceOnTrail: result.DistanceOnTrail,
		TimeOnTrail:     int64(math.Floor(float64(activity.MovingTime) * result.Ratio)),
		Ratio:           result.Ratio,
	}
}

func (o Outcome) message() string {
	switch o.Kind {
	case Matched:
		return fmt.Sprintf("%.1f m on trail (%.1f%%), %d s", o.DistanceOnTrail, o.Ratio*100, o.TimeOnTrail)
	case NoGeometry:
		return "No geometry: " + o.Reason
	default:
		return "Match failed: " + o.Reason
	}
}
