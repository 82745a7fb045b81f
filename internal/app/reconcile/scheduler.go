package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Scheduler re-runs ReconcileAll on a fixed interval.
type Scheduler struct {
	orch     *Orchestrator
	interval time.Duration
	log      logrus.FieldLogger

	mu      sync.RWMutex
	runs    int64
	partial int64
	lastRun time.Time
}

// SchedulerStats summarizes background activity.
type SchedulerStats struct {
	Runs     int64         `json:"runs"`
	Partial  int64         `json:"partial"`
	Interval time.Duration `json:"interval"`
	LastRun  time.Time     `json:"last_run,omitempty"`
}

// NewScheduler creates a scheduler. A non-positive interval means 30s.
func NewScheduler(orch *Orchestrator, interval time.Duration, log logrus.FieldLogger) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		orch:     orch,
		interval: interval,
		log:      log.WithField("component", "scheduler"),
	}
}

// Run performs a pass immediately and then once per interval until ctx is
// done. A pass that has started always runs to completion.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.WithField("interval", s.interval.String()).Info("auto-sync started")
	defer s.log.Info("auto-sync stopped")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	rep := s.orch.ReconcileAll(context.WithoutCancel(ctx))

	s.mu.Lock()
	s.runs++
	if rep.Partial() {
		s.partial++
	}
	s.lastRun = rep.CompletedAt
	s.mu.Unlock()
}

// Stats returns current scheduler statistics.
func (s *Scheduler) Stats() SchedulerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SchedulerStats{
		Runs:     s.runs,
		Partial:  s.partial,
		Interval: s.interval,
		LastRun:  s.lastRun,
	}
}
