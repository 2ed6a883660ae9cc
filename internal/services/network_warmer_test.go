package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dpup/trailmiles/server/internal/cache"
	"github.com/dpup/trailmiles/server/internal/lib/trails"
	"github.com/dpup/trailmiles/server/internal/logging"
)

func TestNetworkWarmer_FillsCache(t *testing.T) {
	provider := &countingNetworks{next: &staticNetwork{network: kilometerTrail()}}
	networks := cache.NewNetworkCache(provider, nil, time.Minute)

	require.NoError(t, NewNetworkWarmer(networks, time.Second).Warm(context.Background()))
	assert.Equal(t, 1, provider.calls)

	_, err := networks.Network(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, provider.calls, "served from the warmed cache")
}

func TestNetworkWarmer_LogsCacheStats(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := logging.WithLogger(context.Background(), zap.New(core).Sugar())

	networks := cache.NewNetworkCache(&staticNetwork{network: kilometerTrail()}, nil, time.Minute)
	require.NoError(t, NewNetworkWarmer(networks, time.Second).Warm(ctx))

	entries := logs.FilterMessage("Trail network cache").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.EqualValues(t, 1, fields["entries"])
	assert.EqualValues(t, 1, fields["fresh"])
	assert.EqualValues(t, 0, fields["stale"])

	logs.TakeAll()
	require.NoError(t, NewNetworkWarmer(&staticNetwork{network: kilometerTrail()}, time.Second).Warm(ctx))
	assert.Empty(t, logs.FilterMessage("Trail network cache").All(), "uncached providers have no stats")
}

func TestNetworkWarmer_Failure(t *testing.T) {
	warmer := NewNetworkWarmer(&staticNetwork{err: trails.ErrNoSegments}, 0)
	assert.Equal(t, 2*time.Minute, warmer.timeout)

	err := warmer.Warm(context.Background())
	assert.True(t, errors.Is(err, trails.ErrNoSegments))
}

type deadlineNetworks struct {
	hasDeadline bool
}

func (d *deadlineNetworks) Network(ctx context.Context) (*trails.Network, error) {
	_, d.hasDeadline = ctx.Deadline()
	return kilometerTrail(), nil
}

func TestNetworkWarmer_BoundedByTimeout(t *testing.T) {
	provider := &deadlineNetworks{}
	require.NoError(t, NewNetworkWarmer(provider, time.Second).Warm(context.Background()))
	assert.True(t, provider.hasDeadline)
}
