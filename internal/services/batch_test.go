package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/trailmiles/server/internal/lib/activities"
	"github.com/dpup/trailmiles/server/internal/lib/matching"
)

// seededActivities creates n unmatched activities, one day apart, with ids 1..n oldest first
func seededActivities(n int) *memActivities {
	store := newMemActivities()
	for i := 1; i <= n; i++ {
		a := activityWith(int64(i), "")
		a.StartDate = startDateLocal.AddDate(0, 0, i)
		store.rows[a.ID] = a
	}
	return store
}

// slowProcessor tracks concurrency while delegating to another Processor
type slowProcessor struct {
	next     Processor
	delay    time.Duration
	active   atomic.Int32
	peak     atomic.Int32
	failIDs  map[int64]bool
	mu       sync.Mutex
	deadline []bool
}

func (p *slowProcessor) Process(ctx context.Context, id int64) (*MatchResult, error) {
	n := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	_, hasDeadline := ctx.Deadline()
	p.mu.Lock()
	p.deadline = append(p.deadline, hasDeadline)
	p.mu.Unlock()

	time.Sleep(p.delay)
	if p.failIDs[id] {
		return nil, errors.New("simulated failure")
	}
	return p.next.Process(ctx, id)
}

func TestBatchDriver_RunOnce(t *testing.T) {
	store := seededActivities(5)
	o := newTestOrchestrator(store, &staticNetwork{network: kilometerTrail()}, matching.NewMatcher(matching.DefaultOptions()), nil)
	processor := &slowProcessor{next: o, delay: 5 * time.Millisecond, failIDs: map[int64]bool{4: true}}

	driver := NewBatchDriver(store, processor, BatchOptions{Size: 3, Workers: 2, ActivityTimeout: time.Second})
	report, err := driver.RunOnce(context.Background())
	require.NoError(t, err)

	_, err = uuid.Parse(report.RunID)
	assert.NoError(t, err)

	// Newest first: 5, 4, 3
	assert.Equal(t, 3, report.Selected)
	assert.Equal(t, 2, report.Matched)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Outcomes[NoGeometry])
	require.Len(t, report.Results, 3)
	assert.Equal(t, int64(5), report.Results[0].ActivityID)
	assert.Nil(t, report.Results[1], "failed activity has no result")
	assert.Equal(t, int64(3), report.Results[2].ActivityID)

	assert.LessOrEqual(t, processor.peak.Load(), int32(2))
	for _, hasDeadline := range processor.deadline {
		assert.True(t, hasDeadline, "each activity gets its own timeout")
	}

	assert.NotNil(t, store.get(5).LastMatched)
	assert.Nil(t, store.get(4).LastMatched)
	assert.Nil(t, store.get(1).LastMatched, "outside the batch size")
}

func TestBatchDriver_NothingToDo(t *testing.T) {
	store := newMemActivities()
	driver := NewBatchDriver(store, &slowProcessor{}, BatchOptions{})

	report, err := driver.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Selected)
	assert.Empty(t, report.Results)
}

func TestBatchDriver_Defaults(t *testing.T) {
	driver := NewBatchDriver(newMemActivities(), &slowProcessor{}, BatchOptions{Workers: -1})
	assert.Equal(t, 10, driver.options.Size)
	assert.Equal(t, 1, driver.options.Workers)
	assert.Equal(t, time.Minute, driver.options.ActivityTimeout)
}

type failingLister struct{}

func (failingLister) ListUnmatched(ctx context.Context, limit int) ([]int64, error) {
	return nil, errors.New("database is locked")
}

func TestBatchDriver_SelectionFailure(t *testing.T) {
	driver := NewBatchDriver(failingLister{}, &slowProcessor{}, BatchOptions{})
	_, err := driver.RunOnce(context.Background())
	assert.ErrorContains(t, err, "database is locked")
}

func TestBatchDriver_Cancelled(t *testing.T) {
	store := seededActivities(4)
	o := newTestOrchestrator(store, &staticNetwork{network: kilometerTrail()}, matching.NewMatcher(matching.DefaultOptions()), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := NewBatchDriver(store, o, BatchOptions{Size: 4, Workers: 2}).RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Zero(t, report.Matched)
	for id := int64(1); id <= 4; id++ {
		assert.Nil(t, store.get(id).LastMatched)
	}
}

func TestPeriodicMatchService(t *testing.T) {
	store := seededActivities(3)
	o := newTestOrchestrator(store, &staticNetwork{network: kilometerTrail()}, matching.NewMatcher(matching.DefaultOptions()), nil)
	driver := NewBatchDriver(store, o, BatchOptions{Size: 1})

	service := NewPeriodicMatchService(driver, 10*time.Millisecond)
	require.NoError(t, service.Start(context.Background()))
	require.NoError(t, service.Start(context.Background()), "second start is a no-op")
	assert.True(t, service.IsRunning())

	assert.Eventually(t, func() bool {
		ids, _ := store.ListUnmatched(context.Background(), 10)
		return len(ids) == 0
	}, time.Second, 5*time.Millisecond)

	service.Stop()
	assert.False(t, service.IsRunning())

	select {
	case <-service.Done():
	default:
		t.Fatal("sweep loop still running after Stop")
	}

	// Stop is idempotent
	service.Stop()
}

func TestPeriodicMatchService_ContextCancel(t *testing.T) {
	driver := NewBatchDriver(newMemActivities(), &slowProcessor{}, BatchOptions{})
	service := NewPeriodicMatchService(driver, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, service.Start(ctx))
	done := service.Done()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweep loop did not exit on cancellation")
	}
	assert.False(t, service.IsRunning())
}

var _ activities.Store = (*memActivities)(nil)
