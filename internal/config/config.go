package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dpup/trailmiles/server/internal/lib/matching"
	"github.com/dpup/trailmiles/server/internal/lib/trails"
	"github.com/dpup/trailmiles/server/internal/logging"
)

// Trail source kinds
const (
	SourceFile     = "file"
	SourceHTTP     = "http"
	SourceSnapshot = "snapshot"
)

// Config represents the complete trailmatch configuration
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Trails      TrailsConfig      `yaml:"trails"`
	Matching    MatchingConfig    `yaml:"matching"`
	Leaderboard LeaderboardConfig `yaml:"leaderboard"`
	Batch       BatchConfig       `yaml:"batch"`
	Logging     logging.Config    `yaml:"logging"`
}

// DatabaseConfig selects the SQL driver. sqlite3 takes a file path, pgx a Postgres URL.
type DatabaseConfig struct {
	Driver string `yaml:"driver" validate:"oneof=sqlite3 pgx"`
	DSN    string `yaml:"dsn" validate:"required"`
}

// TrailsConfig describes where the trail network comes from
type TrailsConfig struct {
	Source       string        `yaml:"source" validate:"oneof=file http snapshot"`
	Dir          string        `yaml:"dir" validate:"required_if=Source file"`
	BaseURL      string        `yaml:"base_url" validate:"required_if=Source http,omitempty,url"`
	SnapshotPath string        `yaml:"snapshot_path" validate:"required_if=Source snapshot"`
	Collections  []string      `yaml:"collections" validate:"min=1,dive,required"`
	CacheTTL     time.Duration `yaml:"cache_ttl" validate:"gt=0"`
	FetchTimeout time.Duration `yaml:"fetch_timeout" validate:"gt=0"`
}

// MatchingConfig holds the tolerance and sampling heuristics
type MatchingConfig struct {
	ToleranceMeters        float64 `yaml:"tolerance_meters" validate:"gt=0"`
	SampleSize             int     `yaml:"sample_size" validate:"min=1"`
	SampleMultiplier       float64 `yaml:"sample_multiplier" validate:"gte=1"`
	SegmentStrideDivisor   int     `yaml:"segment_stride_divisor" validate:"min=1"`
	PointStrideDivisor     int     `yaml:"point_stride_divisor" validate:"min=1"`
	MaxLatitudeSpanDegrees float64 `yaml:"max_latitude_span_degrees" validate:"gte=0"`
}

// LeaderboardConfig holds aggregate settings
type LeaderboardConfig struct {
	Metric           string `yaml:"metric" validate:"oneof=distance"`
	RecalculateSince string `yaml:"recalculate_since" validate:"datetime=2006-01-02"`
}

// BatchConfig controls the unmatched-activity sweep
type BatchConfig struct {
	Size            int           `yaml:"size" validate:"min=1"`
	Workers         int           `yaml:"workers" validate:"min=1"`
	Interval        time.Duration `yaml:"interval" validate:"gt=0"`
	ActivityTimeout time.Duration `yaml:"activity_timeout" validate:"gt=0"`
}

// MatcherOptions converts the matching section to matcher heuristics
func (m MatchingConfig) MatcherOptions() matching.Options {
	return matching.Options{
		SampleSize:             m.SampleSize,
		SampleMultiplier:       m.SampleMultiplier,
		SegmentStrideDivisor:   m.SegmentStrideDivisor,
		PointStrideDivisor:     m.PointStrideDivisor,
		MaxLatitudeSpanDegrees: m.MaxLatitudeSpanDegrees,
	}
}

// Since parses RecalculateSince as a UTC date
func (l LeaderboardConfig) Since() (time.Time, error) {
	since, err := time.Parse(time.DateOnly, l.RecalculateSince)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid recalculate_since %q: %w", l.RecalculateSince, err)
	}
	return since, nil
}

// YAML renders the configuration
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	options := matching.DefaultOptions()

	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "trailmiles.db",
		},
		Trails: TrailsConfig{
			Source:       SourceFile,
			Dir:          "data",
			Collections:  append([]string(nil), trails.DefaultCollections...),
			CacheTTL:     10 * time.Minute,
			FetchTimeout: 30 * time.Second,
		},
		Matching: MatchingConfig{
			ToleranceMeters:        25,
			SampleSize:             options.SampleSize,
			SampleMultiplier:       options.SampleMultiplier,
			SegmentStrideDivisor:   options.SegmentStrideDivisor,
			PointStrideDivisor:     options.PointStrideDivisor,
			MaxLatitudeSpanDegrees: options.MaxLatitudeSpanDegrees,
		},
		Leaderboard: LeaderboardConfig{
			Metric:           "distance",
			RecalculateSince: "2026-01-01",
		},
		Batch: BatchConfig{
			Size:            10,
			Workers:         4,
			Interval:        5 * time.Minute,
			ActivityTimeout: time.Minute,
		},
		Logging: logging.Config{
			Level: "info",
		},
	}
}
