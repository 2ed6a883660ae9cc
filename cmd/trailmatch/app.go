package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/dpup/trailmiles/server/internal/cache"
	"github.com/dpup/trailmiles/server/internal/clients/trailfeed"
	"github.com/dpup/trailmiles/server/internal/config"
	"github.com/dpup/trailmiles/server/internal/lib/leaderboard"
	"github.com/dpup/trailmiles/server/internal/lib/matching"
	"github.com/dpup/trailmiles/server/internal/lib/trails"
	"github.com/dpup/trailmiles/server/internal/logging"
	"github.com/dpup/trailmiles/server/internal/services"
	"github.com/dpup/trailmiles/server/internal/store"
)

// commonFlags are accepted by every subcommand
type commonFlags struct {
	configPath string
	overrides  map[string]string
}

func newFlagSet(name string) (*pflag.FlagSet, *commonFlags) {
	fs := pflag.NewFlagSet(name, pflag.ExitOnError)
	common := &commonFlags{}
	fs.StringVar(&common.configPath, "config", "", "YAML configuration file")
	fs.StringToStringVar(&common.overrides, "set", nil, "Override configuration values (key=value)")
	return fs, common
}

func (c *commonFlags) load() *config.Config {
	overrides := make(map[string]interface{}, len(c.overrides))
	for k, v := range c.overrides {
		overrides[strings.ToLower(k)] = v
	}

	cfg, err := config.Load(c.configPath, overrides)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	return cfg
}

// app holds the wired components for one command invocation
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	ctx      context.Context
	store    *store.Store
	cache    *cache.Cache
	networks *cache.NetworkCache
	matcher  matching.Matcher
}

// newApp builds the logger, opens the database and assembles the trail provider
func newApp(ctx context.Context, cfg *config.Config) *app {
	ctx, logger := newLogger(ctx, cfg)

	db, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("Failed to open database", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}

	provider, err := trailProvider(cfg.Trails)
	if err != nil {
		logger.Fatal("Failed to configure trail source", zap.Error(err))
	}

	shared := cache.NewCache()

	return &app{
		cfg:      cfg,
		logger:   logger,
		ctx:      ctx,
		store:    db,
		cache:    shared,
		networks: cache.NewNetworkCache(provider, shared, cfg.Trails.CacheTTL),
		matcher:  matching.NewMatcher(cfg.Matching.MatcherOptions()),
	}
}

// newLogger attaches the configured zap logger to ctx
func newLogger(ctx context.Context, cfg *config.Config) (context.Context, *zap.Logger) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	return logging.WithLogger(ctx, logger.Sugar()), logger
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func (a *app) fatal(msg string, err error) {
	a.logger.Error(msg, zap.Error(err))
	a.close()
	os.Exit(1)
}

func (a *app) orchestrator() *services.MatchOrchestrator {
	updater := leaderboard.NewDeltaUpdater(a.store, a.store, a.cfg.Leaderboard.Metric)
	return services.NewMatchOrchestrator(a.store, a.networks, a.matcher, updater, a.cfg.Matching.ToleranceMeters)
}

func (a *app) batchDriver() *services.BatchDriver {
	return services.NewBatchDriver(a.store, a.orchestrator(), services.BatchOptions{
		Size:            a.cfg.Batch.Size,
		Workers:         a.cfg.Batch.Workers,
		ActivityTimeout: a.cfg.Batch.ActivityTimeout,
	})
}

// trailProvider selects the configured source of trail geometry
func trailProvider(cfg config.TrailsConfig) (trails.NetworkProvider, error) {
	switch cfg.Source {
	case config.SourceFile:
		return trails.NewLoader(trailfeed.NewFileSource(cfg.Dir), cfg.Collections), nil
	case config.SourceHTTP:
		source, err := trailfeed.NewHTTPSource(cfg.BaseURL, cfg.FetchTimeout)
		if err != nil {
			return nil, err
		}
		return trails.NewLoader(source, cfg.Collections), nil
	case config.SourceSnapshot:
		return trails.NewSnapshotProvider(cfg.SnapshotPath), nil
	default:
		return nil, fmt.Errorf("unknown trail source %q", cfg.Source)
	}
}
