package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dpup/trailmiles/server/internal/logging"
)

// RecalcReport summarizes a full recalculation
type RecalcReport struct {
	Activities int `json:"activities"`
	Athletes   int `json:"athletes"`
	Rows       int `json:"rows"`
}

// Recalculator rebuilds every aggregate from stored activity distances
type Recalculator struct {
	store  RecalculationStore
	metric string
	now    func() time.Time
}

// NewRecalculator creates a recalculator for metric, defaulting to distance
func NewRecalculator(store RecalculationStore, metric string) *Recalculator {
	if metric == "" {
		metric = MetricDistance
	}
	return &Recalculator{store: store, metric: metric, now: time.Now}
}

// Recalculate sums the trail distance of every opted-in activity starting at
// or after since and atomically replaces the aggregate table with the totals.
func (r *Recalculator) Recalculate(ctx context.Context, since time.Time) (*RecalcReport, error) {
	contributions, err := r.store.ListContributions(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}

	totals := make(map[Key]float64)
	athletes := make(map[int64]struct{})
	for _, c := range contributions {
		athletes[c.AthleteID] = struct{}{}
		for _, inc := range Increments(r.metric, c.AthleteID, c.StartDateLocal, c.Type, c.DistanceOnTrail) {
			totals[inc.Key] += inc.Value
		}
	}

	rows := make([]Increment, 0, len(totals))
	for key, value := range totals {
		rows = append(rows, Increment{Key: key, Value: value})
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].Key, rows[j].Key
		if a.WindowKey != b.WindowKey {
			return a.WindowKey < b.WindowKey
		}
		if a.Bucket != b.Bucket {
			return a.Bucket < b.Bucket
		}
		return a.AthleteID < b.AthleteID
	})

	if err := r.store.ReplaceAggregates(ctx, rows, r.now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to replace aggregates: %w", err)
	}

	report := &RecalcReport{
		Activities: len(contributions),
		Athletes:   len(athletes),
		Rows:       len(rows),
	}
	logging.Infow(ctx, "Leaderboard recalculated",
		"since", since.Format(time.DateOnly),
		"activities", report.Activities,
		"athletes", report.Athletes,
		"rows", report.Rows)

	return report, nil
}
