package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dpup/trailmiles/server/internal/cache"
	"github.com/dpup/trailmiles/server/internal/lib/trails"
	"github.com/dpup/trailmiles/server/internal/logging"
)

// NetworkWarmer loads the trail network ahead of the first match so a broken
// trail source is reported at startup rather than as a batch of load failures
type NetworkWarmer struct {
	networks trails.NetworkProvider
	timeout  time.Duration
}

// NewNetworkWarmer creates a warmer; a non-positive timeout defaults to 2 minutes
func NewNetworkWarmer(networks trails.NetworkProvider, timeout time.Duration) *NetworkWarmer {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &NetworkWarmer{networks: networks, timeout: timeout}
}

// Warm loads the network through the provider, filling any cache in front of it
func (w *NetworkWarmer) Warm(ctx context.Context) error {
	warmCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	network, err := w.networks.Network(warmCtx)
	if err != nil {
		return fmt.Errorf("failed to warm trail network: %w", err)
	}

	logging.Infow(ctx, "Trail network warm",
		"segments", len(network.Segments),
		"edges", network.EdgeCount(),
		"duration", time.Since(start))

	if stats, ok := w.networks.(interface{ Stats() cache.CacheStats }); ok {
		s := stats.Stats()
		logging.Infow(ctx, "Trail network cache",
			"entries", s.TotalEntries,
			"fresh", s.FreshEntries,
			"stale", s.StaleEntries,
			"newest", s.NewestEntry)
	}

	return nil
}
