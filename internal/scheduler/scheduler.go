package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/tracker"
	"github.com/robfig/cron/v3"
)

// Checker runs check-all for one tenant. *tracker.BudgetManager implements it.
type Checker interface {
	CheckAllAndAlert(ctx context.Context, tenantID string) (*tracker.BatchResult, error)
}

// Scheduler sweeps a fixed list of tenants through check-all on a cron
// schedule. A sweep that is still running when the next one is due is skipped.
type Scheduler struct {
	checker  Checker
	schedule string
	tenants  []string
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

// New creates a scheduler. An empty schedule makes Start a no-op.
func New(checker Checker, schedule string, tenants []string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		checker:  checker,
		schedule: schedule,
		tenants:  tenants,
		cron:     newCron(),
		logger:   logger.With("component", "scheduler"),
	}
}

func newCron() *cron.Cron {
	return cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
}

// Start registers the sweep and starts the cron loop. It stops when ctx is done.
// A stopped scheduler can be started again.
//
// Common schedules:
//   - "*/15 * * * *" - every 15 minutes
//   - "@hourly"      - top of every hour
//   - "0 6 * * *"    - daily at 6 AM
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("check schedule not configured, skipping scheduler")
		return nil
	}
	if s.running {
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}
	c := newCron()
	if _, err := c.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule budget checks: %w", err)
	}

	s.cron = c
	s.cron.Start()
	s.running = true
	s.logger.Info("budget check scheduler started",
		"schedule", s.schedule,
		"tenants", len(s.tenants),
	)

	go func() {
		<-ctx.Done()
		s.stop(c)
	}()
	return nil
}

// RunOnce checks every configured tenant in order. A failing tenant is logged
// and does not stop the sweep. It returns the number of alerts issued.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	start := time.Now()
	issued := 0
	for _, tenant := range s.tenants {
		if ctx.Err() != nil {
			s.logger.Warn("budget check sweep cancelled", "tenant_id", tenant)
			break
		}
		result, err := s.checker.CheckAllAndAlert(ctx, tenant)
		if err != nil {
			s.logger.Error("scheduled budget check failed", "tenant_id", tenant, "error", err)
			continue
		}
		issued += len(result.Alerts)
		s.logger.Debug("scheduled budget check completed",
			"tenant_id", tenant,
			"alerts", len(result.Alerts),
			"failures", len(result.Failures),
		)
	}
	s.logger.Info("budget check sweep finished",
		"tenants", len(s.tenants),
		"alerts", issued,
		"duration", time.Since(start),
	)
	return issued
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.mu.Unlock()
	s.stop(c)
}

// stop stops c if it is still the active loop.
func (s *Scheduler) stop(c *cron.Cron) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running && s.cron == c {
		<-c.Stop().Done()
		s.running = false
		s.logger.Info("budget check scheduler stopped")
	}
}

// IsRunning reports whether the cron loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled sweep, or nil when not scheduled.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
