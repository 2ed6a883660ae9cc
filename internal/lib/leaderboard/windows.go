package leaderboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/dpup/trailmiles/server/internal/lib/activities"
)

// WeekStart returns the Monday on or before date, at midnight
func WeekStart(date time.Time) time.Time {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// WindowKey names the window of the given kind containing date:
// week_YYYY-MM-DD (the Monday), month_YYYY-MM or year_YYYY.
func WindowKey(window Window, date time.Time) string {
	switch window {
	case Week:
		return "week_" + WeekStart(date).Format(time.DateOnly)
	case Month:
		return "month_" + date.Format("2006-01")
	case Year:
		return "year_" + date.Format("2006")
	}
	return ""
}

// CurrentWindowKey is the window containing now
func CurrentWindowKey(window Window, now time.Time) string {
	return WindowKey(window, now)
}

// PreviousWindowKey returns the key of the window immediately before key
func PreviousWindowKey(window Window, key string) (string, error) {
	prefix := string(window) + "_"
	value, ok := strings.CutPrefix(key, prefix)
	if !ok {
		return "", fmt.Errorf("window key %q is not a %s key", key, window)
	}

	switch window {
	case Week:
		monday, err := time.Parse(time.DateOnly, value)
		if err != nil {
			return "", fmt.Errorf("invalid week key %q: %w", key, err)
		}
		return WindowKey(Week, monday.AddDate(0, 0, -7)), nil
	case Month:
		month, err := time.Parse("2006-01", value)
		if err != nil {
			return "", fmt.Errorf("invalid month key %q: %w", key, err)
		}
		return WindowKey(Month, month.AddDate(0, -1, 0)), nil
	case Year:
		year, err := time.Parse("2006", value)
		if err != nil {
			return "", fmt.Errorf("invalid year key %q: %w", key, err)
		}
		return WindowKey(Year, year.AddDate(-1, 0, 0)), nil
	}
	return "", fmt.Errorf("unknown window %q", window)
}

// ParseWindow validates a window name
func ParseWindow(s string) (Window, error) {
	for _, w := range Windows {
		if string(w) == s {
			return w, nil
		}
	}
	return "", fmt.Errorf("unknown window %q (want week, month or year)", s)
}

// Buckets returns the activity type buckets an activity counts towards
func Buckets(activityType string) []string {
	switch activityType {
	case activities.TypeRun, activities.TypeWalk:
		return []string{BucketAll, BucketFoot}
	case activities.TypeRide:
		return []string{BucketAll, BucketBike}
	}
	return []string{BucketAll}
}

// ValidBucket reports whether bucket is a known activity type bucket
func ValidBucket(bucket string) bool {
	return bucket == BucketAll || bucket == BucketFoot || bucket == BucketBike
}

// Increments expands a signed delta into one increment per (window, bucket)
func Increments(metric string, athleteID int64, startDateLocal time.Time, activityType string, delta float64) []Increment {
	buckets := Buckets(activityType)
	increments := make([]Increment, 0, len(Windows)*len(buckets))
	for _, window := range Windows {
		key := WindowKey(window, startDateLocal)
		for _, bucket := range buckets {
			increments = append(increments, Increment{
				Key: Key{
					Window:    window,
					WindowKey: key,
					Metric:    metric,
					Bucket:    bucket,
					AthleteID: athleteID,
				},
				Value: delta,
			})
		}
	}
	return increments
}
