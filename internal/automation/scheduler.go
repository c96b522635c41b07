package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/pipeline-automation/internal/pkg/logger"
)

const (
	// DefaultSweepInterval is how often the scheduler sweeps date triggers.
	DefaultSweepInterval = 24 * time.Hour

	// DefaultStartupDelay lets the rest of the process come up first.
	DefaultStartupDelay = 15 * time.Second
)

// Sweeper is the part of the engine the scheduler drives.
type Sweeper interface {
	SweepDateTriggers(ctx context.Context, asOf time.Time) (*SweepReport, error)
}

// Scheduler periodically sweeps date-offset rules. Stopping it mid-sweep
// cancels the sweep; the next sweep re-scans the same day safely.
type Scheduler struct {
	sweeper      Sweeper
	interval     time.Duration
	startupDelay time.Duration
	now          func() time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool

	lastRunAt  time.Time
	lastReport *SweepReport
	healthy    bool
}

// NewScheduler creates a scheduler. A non-positive interval uses
// DefaultSweepInterval.
func NewScheduler(sweeper Sweeper, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Scheduler{
		sweeper:      sweeper,
		interval:     interval,
		startupDelay: DefaultStartupDelay,
		now:          time.Now,
		healthy:      true,
	}
}

// SetStartupDelay overrides the delay before the first sweep.
func (s *Scheduler) SetStartupDelay(d time.Duration) { s.startupDelay = d }

// Start begins the sweep loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	logger.Info("date scheduler starting", "interval", s.interval.String())

	s.wg.Add(1)
	go s.loop()
	return nil
}

// Stop cancels any in-flight sweep and waits for the loop to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	logger.Info("date scheduler stopped")
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	select {
	case <-s.ctx.Done():
		return
	case <-time.After(s.startupDelay):
	}
	s.RunOnce(s.ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(s.ctx)
		}
	}
}

// RunOnce performs a single sweep for the current day.
func (s *Scheduler) RunOnce(ctx context.Context) {
	report, err := s.sweeper.SweepDateTriggers(ctx, s.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRunAt = s.now()
	s.lastReport = report
	s.healthy = err == nil
	if err != nil {
		logger.Error("date sweep failed", "error", err)
	}
}

// IsHealthy reports whether the last sweep completed without error.
func (s *Scheduler) IsHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthy
}

// LastRunAt returns when the last sweep finished.
func (s *Scheduler) LastRunAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRunAt
}

// LastReport returns the last sweep's report, if any.
func (s *Scheduler) LastReport() *SweepReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReport
}
