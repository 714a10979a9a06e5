package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/charmbracelet/log"
)

// DefaultSchedule runs maintenance at the top of every hour.
const DefaultSchedule = "0 * * * *"

// Scheduler runs registry maintenance on a cron schedule: every loaded
// campaign is maintained, dirty campaigns are saved and idle ones discarded.
type Scheduler struct {
	registry *Registry
	expr     string
	now      func() time.Time
	loadAll  bool
	after    func(context.Context) error
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithLoadAll makes every pass first load all persisted campaigns, so a
// standalone daemon maintains campaigns it never served.
func WithLoadAll() SchedulerOption {
	return func(s *Scheduler) { s.loadAll = true }
}

// WithAfterPass runs fn after every pass, once all campaigns are saved.
func WithAfterPass(fn func(context.Context) error) SchedulerOption {
	return func(s *Scheduler) { s.after = fn }
}

// NewScheduler validates expr, a standard five-field cron expression.
func NewScheduler(registry *Registry, expr string, opts ...SchedulerOption) (*Scheduler, error) {
	if registry == nil {
		return nil, errors.New("scheduler requires a registry")
	}
	g := gronx.New()
	if !g.IsValid(expr) {
		return nil, fmt.Errorf("invalid maintenance schedule %q", expr)
	}
	s := &Scheduler{registry: registry, expr: expr, now: registry.now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Tick is the outcome of one scheduled pass.
type Tick struct {
	Maintained map[string]MaintenanceResult `json:"maintained"`
	Swept      []string                     `json:"swept"`
}

// RunOnce performs a single maintenance pass.
func (s *Scheduler) RunOnce(ctx context.Context) (Tick, error) {
	var loadErr error
	if s.loadAll {
		_, loadErr = s.registry.LoadAll(ctx)
	}
	t := Tick{Maintained: s.registry.MaintainAll()}
	saveErr := s.registry.SaveAll(ctx)
	swept, sweepErr := s.registry.SweepIdle(ctx)
	t.Swept = swept
	var afterErr error
	if s.after != nil {
		afterErr = s.after(ctx)
	}
	return t, errors.Join(loadErr, saveErr, sweepErr, afterErr)
}

// Next returns the first scheduled time strictly after from.
func (s *Scheduler) Next(from time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.expr, from, false)
}

// Run blocks, performing a pass at every scheduled time until ctx is done.
// Pass errors are logged and do not stop the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info("maintenance scheduler started", "schedule", s.expr)
	for {
		if err := ctx.Err(); err != nil {
			log.Info("maintenance scheduler stopped")
			return err
		}
		next, err := s.Next(s.now())
		if err != nil {
			return fmt.Errorf("next maintenance time: %w", err)
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			continue
		case <-timer.C:
		}

		tick, err := s.RunOnce(ctx)
		if err != nil {
			log.Error("maintenance pass failed", "err", err)
		}
		log.Debug("maintenance pass", "campaigns", len(tick.Maintained), "swept", len(tick.Swept))
	}
}
