package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dpup/trailmiles/server/internal/lib/leaderboard"
)

const upsertAggregate = `INSERT INTO leaderboard_agg ("window", window_key, metric, activity_type, athlete_id, value, last_updated)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (window_key, metric, activity_type, athlete_id)
	DO UPDATE SET value = leaderboard_agg.value + excluded.value, last_updated = excluded.last_updated`

const insertAggregate = `INSERT INTO leaderboard_agg ("window", window_key, metric, activity_type, athlete_id, value, last_updated)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

// ApplyIncrements adds each increment to its row, creating absent rows, in one transaction
func (s *Store) ApplyIncrements(ctx context.Context, increments []leaderboard.Increment, at time.Time) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.insertAll(ctx, tx, upsertAggregate, increments, at)
	})
}

// ReplaceAggregates atomically swaps the aggregate table contents for rows
func (s *Store) ReplaceAggregates(ctx context.Context, rows []leaderboard.Increment, at time.Time) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM leaderboard_agg`); err != nil {
			return fmt.Errorf("failed to clear aggregates: %w", err)
		}
		return s.insertAll(ctx, tx, insertAggregate, rows, at)
	})
}

func (s *Store) insertAll(ctx context.Context, tx *sql.Tx, query string, rows []leaderboard.Increment, at time.Time) error {
	stmt, err := tx.PrepareContext(ctx, s.rebind(query))
	if err != nil {
		return fmt.Errorf("failed to prepare aggregate statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, string(row.Window), row.WindowKey, row.Metric, row.Bucket, row.AthleteID, row.Value, at.UTC()); err != nil {
			return fmt.Errorf("failed to write aggregate %s/%s/%d: %w", row.WindowKey, row.Bucket, row.AthleteID, err)
		}
	}
	return nil
}

// AggregateValue reads one row's value
func (s *Store) AggregateValue(ctx context.Context, key leaderboard.Key) (float64, bool, error) {
	var value float64
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT value FROM leaderboard_agg
		WHERE window_key = ? AND metric = ? AND activity_type = ? AND athlete_id = ?`),
		key.WindowKey, key.Metric, key.Bucket, key.AthleteID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read aggregate: %w", err)
	}
	return value, true, nil
}

// TopStandings ranks opted-in athletes by value, highest first
func (s *Store) TopStandings(ctx context.Context, q leaderboard.Query, limit, offset int) ([]leaderboard.Standing, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT l.athlete_id, u.display_name, l.value, l.last_updated
		FROM leaderboard_agg l
		JOIN users u ON l.athlete_id = u.athlete_id
		WHERE l.window_key = ?
		  AND l.metric = ?
		  AND l.activity_type = ?
		  AND u.show_on_leaderboards = TRUE
		ORDER BY l.value DESC, l.athlete_id
		LIMIT ? OFFSET ?`),
		q.WindowKey, q.Metric, q.Bucket, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query standings: %w", err)
	}
	defer rows.Close()

	var standings []leaderboard.Standing
	for rows.Next() {
		st := leaderboard.Standing{Rank: offset + len(standings) + 1}
		if err := rows.Scan(&st.AthleteID, &st.DisplayName, &st.Value, &st.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan standing: %w", err)
		}
		standings = append(standings, st)
	}
	return standings, rows.Err()
}

// AthleteRank returns the athlete's rank among opted-in athletes, or nil if unranked
func (s *Store) AthleteRank(ctx context.Context, q leaderboard.Query, athleteID int64) (*leaderboard.Standing, error) {
	var (
		rank int64
		st   = leaderboard.Standing{AthleteID: athleteID}
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`WITH ranked AS (
			SELECT l.athlete_id, u.display_name, l.value,
				ROW_NUMBER() OVER (ORDER BY l.value DESC, l.athlete_id) AS athlete_rank
			FROM leaderboard_agg l
			JOIN users u ON l.athlete_id = u.athlete_id
			WHERE l.window_key = ?
			  AND l.metric = ?
			  AND l.activity_type = ?
			  AND u.show_on_leaderboards = TRUE
		)
		SELECT athlete_rank, display_name, value FROM ranked WHERE athlete_id = ?`),
		q.WindowKey, q.Metric, q.Bucket, athleteID).Scan(&rank, &st.DisplayName, &st.Value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query rank for athlete %d: %w", athleteID, err)
	}
	st.Rank = int(rank)
	return &st, nil
}

// CountAthletes counts opted-in athletes with a row in the ranking
func (s *Store) CountAthletes(ctx context.Context, q leaderboard.Query) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*)
		FROM leaderboard_agg l
		JOIN users u ON l.athlete_id = u.athlete_id
		WHERE l.window_key = ?
		  AND l.metric = ?
		  AND l.activity_type = ?
		  AND u.show_on_leaderboards = TRUE`),
		q.WindowKey, q.Metric, q.Bucket).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count athletes: %w", err)
	}
	return count, nil
}
