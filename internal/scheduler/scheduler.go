// Package scheduler runs sets of templates once or on a recurring schedule
// with a single serial worker. Cancellation is checked before every template
// and during the sleep between passes; a template that has started always
// runs to completion.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/user/collector/internal/apperrors"
	"github.com/user/collector/internal/engine"
	"github.com/user/collector/internal/metrics"
)

// Runner executes one template
type Runner interface {
	Run(ctx context.Context, id int64) engine.Outcome
}

// Phase of the recurring worker
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseRunning  Phase = "running"
	PhaseSleeping Phase = "sleeping"
	PhaseStopping Phase = "stopping"
)

// Status is a snapshot of the scheduler
type Status struct {
	Phase     Phase     `json:"phase"`
	Templates []int64   `json:"templates,omitempty"`
	NextRun   time.Time `json:"next_run,omitzero"`
	LastPass  *Summary  `json:"last_pass,omitempty"`
}

// Options configures a Scheduler
type Options struct {
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	// OnPass is called after every pass, from the goroutine that ran it.
	OnPass func(Summary)
}

// Scheduler owns the single worker that writes to backing tables
type Scheduler struct {
	runner  Runner
	metrics *metrics.Metrics
	logger  *slog.Logger
	onPass  func(Summary)

	// passMu serializes passes so a manual run never overlaps the loop
	passMu sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	status Status
}

// New creates a new scheduler
func New(runner Runner, opts Options) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		runner:  runner,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		onPass:  opts.OnPass,
		status:  Status{Phase: PhaseIdle},
	}
}

// RunNow executes ids once, in order. Cancelling ctx stops the pass before
// the next template starts.
func (s *Scheduler) RunNow(ctx context.Context, ids []int64) Summary {
	return s.pass(ctx, ids)
}

// Start launches the recurring worker. Interval schedules run the first pass
// immediately; other schedules wait for their first activation.
func (s *Scheduler) Start(ctx context.Context, ids []int64, schedule cron.Schedule) error {
	if len(ids) == 0 {
		return fmt.Errorf("no templates to schedule")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return apperrors.ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.status = Status{Phase: PhaseRunning, Templates: append([]int64(nil), ids...), LastPass: s.status.LastPass}

	go s.loop(ctx, cancel, ids, schedule, s.done)

	s.logger.Info("auto-run started", "templates", ids)
	return nil
}

// Stop cancels the recurring worker and waits for it to exit. The wait is
// bounded by the template currently running, if any.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	if cancel == nil {
		s.mu.Unlock()
		return apperrors.ErrNotRunning
	}
	s.status.Phase = PhaseStopping
	cancel()
	s.mu.Unlock()

	<-done
	return nil
}

// Wait blocks until the recurring worker exits
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Status returns a snapshot of the scheduler
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.status
	st.Templates = append([]int64(nil), s.status.Templates...)
	return st
}

func (s *Scheduler) loop(ctx context.Context, cancel context.CancelFunc, ids []int64, schedule cron.Schedule, done chan struct{}) {
	defer func() {
		cancel()
		s.mu.Lock()
		s.cancel = nil
		s.status.Phase = PhaseIdle
		s.status.NextRun = time.Time{}
		s.mu.Unlock()
		close(done)
		s.logger.Info("auto-run stopped")
	}()

	if _, ok := schedule.(cron.ConstantDelaySchedule); !ok {
		if !s.sleepUntil(ctx, schedule.Next(time.Now())) {
			return
		}
	}

	for {
		s.setPhase(PhaseRunning)
		summary := s.pass(ctx, ids)
		if ctx.Err() != nil {
			return
		}

		next := schedule.Next(time.Now())
		s.logger.Info("auto-run pass finished",
			"run_id", summary.RunID,
			"result", summary.Ratio(),
			"next_run", next.Format(time.DateTime))

		if !s.sleepUntil(ctx, next) {
			return
		}
	}
}

// sleepUntil waits for next or cancellation and reports whether the worker
// should continue
func (s *Scheduler) sleepUntil(ctx context.Context, next time.Time) bool {
	s.mu.Lock()
	if s.status.Phase != PhaseStopping {
		s.status.Phase = PhaseSleeping
	}
	s.status.NextRun = next
	s.mu.Unlock()

	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Scheduler) setPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Phase != PhaseStopping {
		s.status.Phase = p
	}
}

func (s *Scheduler) pass(ctx context.Context, ids []int64) Summary {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	summary := Summary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Total:     len(ids),
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			summary.Cancelled = true
			break
		}

		// A dispatched template finishes even if cancellation arrives mid-run.
		out := s.runner.Run(context.WithoutCancel(ctx), id)
		summary.Outcomes = append(summary.Outcomes, out)
		s.metrics.ObserveRun(out.TemplateName, string(out.Status), out.Elapsed)
	}

	summary.FinishedAt = time.Now()
	s.metrics.ObservePass(summary.Succeeded(), summary.Total, summary.FinishedAt)

	s.mu.Lock()
	last := summary
	s.status.LastPass = &last
	s.mu.Unlock()

	if s.onPass != nil {
		s.onPass(summary)
	}

	return summary
}
