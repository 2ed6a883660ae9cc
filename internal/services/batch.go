package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dpup/trailmiles/server/internal/logging"
)

// UnmatchedLister selects activities that have never been attempted
type UnmatchedLister interface {
	ListUnmatched(ctx context.Context, limit int) ([]int64, error)
}

// Processor matches a single activity
type Processor interface {
	Process(ctx context.Context, activityID int64) (*MatchResult, error)
}

// BatchOptions bounds one sweep
type BatchOptions struct {
	Size            int
	Workers         int
	ActivityTimeout time.Duration
}

// BatchReport summarizes one sweep. Results are in selection order; failed
// activities have a nil result.
type BatchReport struct {
	RunID    string              `json:"run_id"`
	Selected int                 `json:"selected"`
	Matched  int                 `json:"matched"`
	Failed   int                 `json:"failed"`
	Outcomes map[OutcomeKind]int `json:"outcomes"`
	Results  []*MatchResult      `json:"results"`
	Duration time.Duration       `json:"duration"`
}

// BatchDriver sweeps unmatched activities through a bounded worker pool
type BatchDriver struct {
	lister    UnmatchedLister
	processor Processor
	options   BatchOptions
}

// NewBatchDriver creates a driver; non-positive options default to 10 activities, 1 worker, 1 minute
func NewBatchDriver(lister UnmatchedLister, processor Processor, options BatchOptions) *BatchDriver {
	if options.Size <= 0 {
		options.Size = 10
	}
	if options.Workers <= 0 {
		options.Workers = 1
	}
	if options.ActivityTimeout <= 0 {
		options.ActivityTimeout = time.Minute
	}
	return &BatchDriver{lister: lister, processor: processor, options: options}
}

type batchJob struct {
	index int
	id    int64
}

// RunOnce selects up to Size unmatched activities, newest first, and processes
// each with its own timeout. Per-activity failures are counted, not returned.
func (d *BatchDriver) RunOnce(ctx context.Context) (*BatchReport, error) {
	start := time.Now()
	report := &BatchReport{
		RunID:    uuid.NewString(),
		Outcomes: make(map[OutcomeKind]int),
	}
	ctx = logging.With(ctx, "run_id", report.RunID)

	ids, err := d.lister.ListUnmatched(ctx, d.options.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to select unmatched activities: %w", err)
	}

	report.Selected = len(ids)
	report.Results = make([]*MatchResult, len(ids))
	if len(ids) == 0 {
		logging.Debugw(ctx, "No unmatched activities")
		return report, nil
	}

	logging.Infow(ctx, "Matching unmatched activities", "count", len(ids), "workers", d.options.Workers)

	jobs := make(chan batchJob)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for w := 0; w < min(d.options.Workers, len(ids)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				result, err := d.processOne(ctx, job.id)

				mu.Lock()
				if err != nil {
					report.Failed++
					logging.Errorw(ctx, "Activity match failed", "activity_id", job.id, "error", err)
				} else {
					report.Matched++
					report.Outcomes[result.Outcome]++
					report.Results[job.index] = result
				}
				mu.Unlock()
			}
		}()
	}

dispatch:
	for i, id := range ids {
		select {
		case jobs <- batchJob{index: i, id: id}:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	report.Duration = time.Since(start)
	logging.Infow(ctx, "Batch complete",
		"selected", report.Selected,
		"matched", report.Matched,
		"failed", report.Failed,
		"duration", report.Duration)

	return report, ctx.Err()
}

func (d *BatchDriver) processOne(ctx context.Context, id int64) (*MatchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, d.options.ActivityTimeout)
	defer cancel()
	return d.processor.Process(ctx, id)
}
