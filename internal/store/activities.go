package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dpup/trailmiles/server/internal/lib/activities"
	"github.com/dpup/trailmiles/server/internal/lib/leaderboard"
)

const activityColumns = `id, athlete_id, strava_activity_id, name, polyline, moving_time, distance,
	start_date, start_date_local, type, distance_on_trail, time_on_trail, last_matched`

// GetActivity loads one activity, returning activities.ErrNotFound when absent
func (s *Store) GetActivity(ctx context.Context, id int64) (*activities.Activity, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+activityColumns+` FROM activities WHERE id = ?`), id)

	var (
		a               activities.Activity
		distanceOnTrail sql.NullFloat64
		timeOnTrail     sql.NullInt64
		lastMatched     sql.NullTime
	)
	err := row.Scan(&a.ID, &a.AthleteID, &a.StravaActivityID, &a.Name, &a.Polyline, &a.MovingTime, &a.Distance,
		&a.StartDate, &a.StartDateLocal, &a.Type, &distanceOnTrail, &timeOnTrail, &lastMatched)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", activities.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get activity %d: %w", id, err)
	}

	if distanceOnTrail.Valid {
		a.DistanceOnTrail = &distanceOnTrail.Float64
	}
	if timeOnTrail.Valid {
		a.TimeOnTrail = &timeOnTrail.Int64
	}
	if lastMatched.Valid {
		a.LastMatched = &lastMatched.Time
	}

	return &a, nil
}

// InsertActivity stores an activity row as received from upstream
func (s *Store) InsertActivity(ctx context.Context, a *activities.Activity) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO activities (`+activityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.AthleteID, a.StravaActivityID, a.Name, a.Polyline, a.MovingTime, a.Distance,
		a.StartDate.UTC(), a.StartDateLocal.UTC(), a.Type,
		nullFloat(a.DistanceOnTrail), nullInt(a.TimeOnTrail), nullTime(a.LastMatched))
	if err != nil {
		return fmt.Errorf("failed to insert activity %d: %w", a.ID, err)
	}
	return nil
}

// UpdateMatch writes the trail metrics and match stamp in a single statement
func (s *Store) UpdateMatch(ctx context.Context, id int64, update activities.MatchUpdate) error {
	result, err := s.db.ExecContext(ctx, s.rebind(`UPDATE activities
		SET distance_on_trail = ?, time_on_trail = ?, last_matched = ?
		WHERE id = ?`),
		update.DistanceOnTrail, update.TimeOnTrail, update.MatchedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update activity %d: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update activity %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", activities.ErrNotFound, id)
	}
	return nil
}

// ListUnmatched returns up to limit never-matched activity ids, newest first
func (s *Store) ListUnmatched(ctx context.Context, limit int) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id FROM activities
		WHERE last_matched IS NULL
		ORDER BY start_date DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unmatched activities: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan activity id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ResetLastMatched re-queues an athlete's activities for matching. athleteID 0
// resets every activity. Returns the number of rows reset.
func (s *Store) ResetLastMatched(ctx context.Context, athleteID int64) (int64, error) {
	query, args := `UPDATE activities SET last_matched = NULL`, []interface{}{}
	if athleteID != 0 {
		query += ` WHERE athlete_id = ?`
		args = append(args, athleteID)
	}

	result, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to reset last_matched: %w", err)
	}
	return result.RowsAffected()
}

// ListContributions returns matched activities of opted-in athletes starting
// at or after since
func (s *Store) ListContributions(ctx context.Context, since time.Time) ([]leaderboard.Contribution, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT a.id, a.athlete_id, a.distance_on_trail, a.start_date_local, a.type
		FROM activities a
		JOIN users u ON a.athlete_id = u.athlete_id
		WHERE u.show_on_leaderboards = TRUE
		  AND a.start_date_local >= ?
		  AND a.distance_on_trail IS NOT NULL
		ORDER BY a.athlete_id, a.start_date_local`), since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}
	defer rows.Close()

	var contributions []leaderboard.Contribution
	for rows.Next() {
		var c leaderboard.Contribution
		if err := rows.Scan(&c.ActivityID, &c.AthleteID, &c.DistanceOnTrail, &c.StartDateLocal, &c.Type); err != nil {
			return nil, fmt.Errorf("failed to scan contribution: %w", err)
		}
		contributions = append(contributions, c)
	}
	return contributions, rows.Err()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: v.UTC(), Valid: true}
}
