// Package leaderboard maintains per-athlete trail distance aggregates over
// weekly, monthly and yearly windows.
package leaderboard

import (
	"context"
	"time"
)

// Window is the kind of time window an aggregate covers
type Window string

const (
	Week  Window = "week"
	Month Window = "month"
	Year  Window = "year"
)

// Windows lists every window kind in update order
var Windows = []Window{Week, Month, Year}

// Activity type buckets
const (
	BucketAll  = "all"
	BucketFoot = "foot"
	BucketBike = "bike"
)

// MetricDistance aggregates meters on trail
const MetricDistance = "distance"

// Key identifies one aggregate row
type Key struct {
	Window    Window
	WindowKey string
	Metric    string
	Bucket    string
	AthleteID int64
}

// Increment is a signed change to one aggregate row
type Increment struct {
	Key
	Value float64
}

// Query selects a single ranking
type Query struct {
	WindowKey string
	Metric    string
	Bucket    string
}

// Standing is one ranked row
type Standing struct {
	Rank        int       `json:"rank"`
	AthleteID   int64     `json:"athlete_id"`
	DisplayName string    `json:"display_name"`
	Value       float64   `json:"value"`
	LastUpdated time.Time `json:"last_updated,omitempty"`
}

// Contribution is one matched activity counted by a full recalculation
type Contribution struct {
	ActivityID      int64
	AthleteID       int64
	DistanceOnTrail float64
	StartDateLocal  time.Time
	Type            string
}

// PreferenceStore reports whether an athlete appears on leaderboards.
// Unknown athletes are reported as not visible.
type PreferenceStore interface {
	ShowOnLeaderboards(ctx context.Context, athleteID int64) (bool, error)
}

// AggregateStore applies increments, creating absent rows with the increment as value
type AggregateStore interface {
	ApplyIncrements(ctx context.Context, increments []Increment, at time.Time) error
}

// RecalculationStore reads opted-in contributions and swaps the aggregate table contents
type RecalculationStore interface {
	ListContributions(ctx context.Context, since time.Time) ([]Contribution, error)
	ReplaceAggregates(ctx context.Context, rows []Increment, at time.Time) error
}

// StandingsStore answers ranking queries over opted-in athletes
type StandingsStore interface {
	TopStandings(ctx context.Context, q Query, limit, offset int) ([]Standing, error)
	AthleteRank(ctx context.Context, q Query, athleteID int64) (*Standing, error)
	CountAthletes(ctx context.Context, q Query) (int, error)
}
