package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// User holds the leaderboard-facing fields of an athlete
type User struct {
	AthleteID          int64
	DisplayName        string
	ShowOnLeaderboards bool
}

// ShowOnLeaderboards reports the athlete's visibility preference. Unknown
// athletes are not visible.
func (s *Store) ShowOnLeaderboards(ctx context.Context, athleteID int64) (bool, error) {
	var visible bool
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT show_on_leaderboards FROM users WHERE athlete_id = ?`), athleteID).Scan(&visible)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read preferences for athlete %d: %w", athleteID, err)
	}
	return visible, nil
}

// UpsertUser creates or updates an athlete's profile and preference
func (s *Store) UpsertUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO users (athlete_id, display_name, show_on_leaderboards)
		VALUES (?, ?, ?)
		ON CONFLICT (athlete_id) DO UPDATE SET
			display_name = excluded.display_name,
			show_on_leaderboards = excluded.show_on_leaderboards`),
		u.AthleteID, u.DisplayName, u.ShowOnLeaderboards)
	if err != nil {
		return fmt.Errorf("failed to upsert user %d: %w", u.AthleteID, err)
	}
	return nil
}
