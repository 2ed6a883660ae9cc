// Package store persists activities, leaderboard preferences and leaderboard
// aggregates with database/sql. SQLite is the default; Postgres is used
// through pgx's database/sql driver.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "github.com/mattn/go-sqlite3"    // registers "sqlite3"

	"github.com/dpup/trailmiles/server/internal/logging"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS activities (
		id BIGINT PRIMARY KEY,
		athlete_id BIGINT NOT NULL,
		strava_activity_id BIGINT NOT NULL DEFAULT 0,
		name TEXT NOT NULL DEFAULT '',
		polyline TEXT NOT NULL DEFAULT '',
		moving_time BIGINT NOT NULL DEFAULT 0,
		distance DOUBLE PRECISION NOT NULL DEFAULT 0,
		start_date TIMESTAMP NOT NULL,
		start_date_local TIMESTAMP NOT NULL,
		type TEXT NOT NULL DEFAULT '',
		distance_on_trail DOUBLE PRECISION,
		time_on_trail BIGINT,
		last_matched TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS activities_unmatched ON activities (last_matched, start_date)`,
	`CREATE INDEX IF NOT EXISTS activities_athlete ON activities (athlete_id, start_date_local)`,
	`CREATE TABLE IF NOT EXISTS users (
		athlete_id BIGINT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		show_on_leaderboards BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS leaderboard_agg (
		"window" TEXT NOT NULL,
		window_key TEXT NOT NULL,
		metric TEXT NOT NULL,
		activity_type TEXT NOT NULL,
		athlete_id BIGINT NOT NULL,
		value DOUBLE PRECISION NOT NULL DEFAULT 0,
		last_updated TIMESTAMP NOT NULL,
		PRIMARY KEY (window_key, metric, activity_type, athlete_id)
	)`,
}

// Store is a database handle. Queries are written with ? placeholders and
// rebound for drivers that use $n.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects, verifies the connection and creates missing tables
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single connection avoids "database is locked"
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logging.Debugw(ctx, "Database ready", "driver", driver)
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// rebind converts ? placeholders to $1, $2, ... for Postgres
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// inTx runs fn in a transaction, rolling back on error
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logging.Warnw(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
