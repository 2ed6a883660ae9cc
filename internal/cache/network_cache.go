package cache

import (
	"context"
	"sync"
	"time"

	"github.com/dpup/trailmiles/server/internal/lib/trails"
	"github.com/dpup/trailmiles/server/internal/logging"
)

const networkKey = "trail_network"

// NetworkCache is a trails.NetworkProvider that keeps the last loaded network
// for a TTL. Concurrent misses share a single load; failures are not cached.
type NetworkCache struct {
	provider trails.NetworkProvider
	cache    *Cache
	ttl      time.Duration
	loadMu   sync.Mutex
}

// NewNetworkCache wraps provider. A nil cache gets a private one.
func NewNetworkCache(provider trails.NetworkProvider, cache *Cache, ttl time.Duration) *NetworkCache {
	if cache == nil {
		cache = NewCache()
	}
	return &NetworkCache{provider: provider, cache: cache, ttl: ttl}
}

// Network returns the cached network, loading it when absent or stale
func (n *NetworkCache) Network(ctx context.Context) (*trails.Network, error) {
	if network, ok := n.cached(ctx); ok {
		return network, nil
	}

	n.loadMu.Lock()
	defer n.loadMu.Unlock()

	// Another caller may have loaded it while we waited
	if network, ok := n.cached(ctx); ok {
		return network, nil
	}

	if entry, exists, _ := n.cache.GetWithMetadata(networkKey, nil); exists {
		logging.Debugw(ctx, "Reloading stale trail network",
			"loaded_at", entry.CreatedAt,
			"expired_at", entry.ExpiresAt)
	}

	start := time.Now()
	network, err := n.provider.Network(ctx)
	if err != nil {
		return nil, err
	}

	if err := n.cache.Set(networkKey, network, n.ttl, "trail_network"); err != nil {
		logging.Warnw(ctx, "Failed to cache trail network", "error", err)
	}

	logging.Infow(ctx, "Trail network loaded",
		"segments", len(network.Segments),
		"points", network.PointCount(),
		"duration", time.Since(start),
		"ttl", n.ttl)

	return network, nil
}

// Stats reports the entries held by the underlying cache
func (n *NetworkCache) Stats() CacheStats {
	return n.cache.Stats()
}

// Invalidate drops the cached network so the next call reloads
func (n *NetworkCache) Invalidate() {
	n.cache.Delete(networkKey)
}

func (n *NetworkCache) cached(ctx context.Context) (*trails.Network, bool) {
	var network trails.Network
	found, err := n.cache.Get(networkKey, &network)
	if err != nil {
		logging.Warnw(ctx, "Discarding unreadable cached trail network", "error", err)
		n.cache.Delete(networkKey)
		return nil, false
	}
	if !found {
		return nil, false
	}
	return &network, true
}
