// Package activities defines the typed activity record shared by the matcher
// pipeline and its storage.
package activities

import (
	"context"
	"errors"
	"time"
)

// Activity types that map to leaderboard buckets. Other Strava types are stored as-is.
const (
	TypeRun  = "Run"
	TypeWalk = "Walk"
	TypeRide = "Ride"
)

// ErrNotFound is returned when no activity has the requested id
var ErrNotFound = errors.New("activity not found")

// Activity is a recorded workout. Rows are created upstream; matching only
// writes the trail fields and LastMatched.
type Activity struct {
	ID               int64     `json:"id"`
	AthleteID        int64     `json:"athlete_id"`
	StravaActivityID int64     `json:"strava_activity_id"`
	Name             string    `json:"name"`
	Polyline         string    `json:"polyline"`
	MovingTime       int64     `json:"moving_time"` // seconds
	Distance         float64   `json:"distance"`    // meters
	StartDate        time.Time `json:"start_date"`
	StartDateLocal   time.Time `json:"start_date_local"`
	Type             string    `json:"type"`

	DistanceOnTrail *float64   `json:"distance_on_trail,omitempty"`
	TimeOnTrail     *int64     `json:"time_on_trail,omitempty"`
	LastMatched     *time.Time `json:"last_matched,omitempty"`
}

// PreviousDistanceOnTrail is the stored distance, treating never-matched as zero
func (a *Activity) PreviousDistanceOnTrail() float64 {
	if a.DistanceOnTrail == nil {
		return 0
	}
	return *a.DistanceOnTrail
}

// MatchUpdate is written atomically after every match attempt
type MatchUpdate struct {
	DistanceOnTrail float64
	TimeOnTrail     int64
	MatchedAt       time.Time
}

// Store reads and writes activities by id
type Store interface {
	GetActivity(ctx context.Context, id int64) (*Activity, error)
	UpdateMatch(ctx context.Context, id int64, update MatchUpdate) error
}
