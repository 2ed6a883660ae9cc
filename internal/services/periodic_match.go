package services

import (
	"context"
	"sync"
	"time"

	"github.com/dpup/trailmiles/server/internal/logging"
)

// PeriodicMatchService sweeps unmatched activities on a fixed interval
type PeriodicMatchService struct {
	driver   *BatchDriver
	interval time.Duration

	// Background sweep control
	mu       sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
	running  bool
}

// NewPeriodicMatchService creates a new periodic match service
func NewPeriodicMatchService(driver *BatchDriver, interval time.Duration) *PeriodicMatchService {
	return &PeriodicMatchService{
		driver:   driver,
		interval: interval,
	}
}

// Start runs a sweep immediately and then every interval until ctx ends or Stop is called
func (p *PeriodicMatchService) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil // Already running
	}

	p.running = true
	p.stopChan = make(chan struct{})
	p.done = make(chan struct{})

	logging.Infow(ctx, "Starting periodic match sweep", "interval", p.interval)

	go p.sweepLoop(ctx, p.stopChan, p.done)

	return nil
}

// Stop halts the sweep and waits for an in-flight batch to finish
func (p *PeriodicMatchService) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopChan)
	done := p.done
	p.mu.Unlock()

	<-done
}

// Done is closed when the sweep loop exits
func (p *PeriodicMatchService) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// IsRunning returns whether the sweep is active
func (p *PeriodicMatchService) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *PeriodicMatchService) sweepLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			logging.Infow(ctx, "Periodic match stopping due to context cancellation")
			p.mu.Lock()
			p.running = false
			p.mu.Unlock()
			return
		case <-stop:
			logging.Infow(ctx, "Periodic match stopping due to stop signal")
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *PeriodicMatchService) sweep(ctx context.Context) {
	report, err := p.driver.RunOnce(ctx)
	if err != nil {
		logging.Errorw(ctx, "Periodic match sweep failed", "error", err)
		return
	}
	if report.Selected > 0 {
		logging.Infow(ctx, "Periodic match sweep completed",
			"run_id", report.RunID,
			"matched", report.Matched,
			"failed", report.Failed)
	}
}
