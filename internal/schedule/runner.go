// Package schedule triggers workflow executions from cron definitions.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/agentplate/agentplate/internal/store"
)

// WorkflowStarter starts a workflow execution. Satisfied by engine.Engine
// (interface kept here to avoid an import cycle).
type WorkflowStarter interface {
	Start(ctx context.Context, workflowID string, input map[string]any) (*store.WorkflowExecution, error)
}

// Runner polls the store for due scheduled runs and starts their
// workflows. A run already in flight is never triggered twice.
type Runner struct {
	store   store.Store
	starter WorkflowStarter
	parser  cron.Parser
	logger  *slog.Logger

	interval time.Duration
	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}

	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

// NewRunner creates a schedule runner polling at the given interval
// (default 60s when zero).
func NewRunner(s store.Store, starter WorkflowStarter, logger *slog.Logger, interval time.Duration) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Runner{
		store:    s,
		starter:  starter,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:   logger,
		interval: interval,
		inflight: make(map[string]struct{}),
	}
}

// Start launches the background polling loop.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.done != nil {
		r.mu.Unlock()
		return fmt.Errorf("schedule runner already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.mu.Unlock()

	go r.loop(loopCtx)
	r.logger.Info("schedule runner started", slog.Duration("interval", r.interval))
	return nil
}

// Stop shuts the loop down and waits for it to exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.cancel = nil
	r.done = nil
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick checks enabled runs and triggers those that are due. Exported so
// tests and admin endpoints can force a pass.
func (r *Runner) Tick(ctx context.Context) {
	enabled := true
	runs, err := r.store.ListScheduledRuns(ctx, store.ScheduledRunFilter{Enabled: &enabled})
	if err != nil {
		r.logger.Error("list scheduled runs", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	for _, run := range runs {
		if run.NextRunAt != nil && run.NextRunAt.After(now) {
			continue
		}
		if !r.acquire(run.ID) {
			continue
		}
		if err := r.trigger(ctx, run, now); err != nil {
			r.logger.Error("trigger scheduled run",
				slog.String("run_id", run.ID),
				slog.String("error", err.Error()))
		}
		r.release(run.ID)
	}
}

// trigger starts the workflow and records the outcome plus the next due
// time on the scheduled run.
func (r *Runner) trigger(ctx context.Context, run *store.ScheduledRun, now time.Time) error {
	r.logger.Info("triggering scheduled run",
		slog.String("run_id", run.ID),
		slog.String("workflow_id", run.WorkflowID))

	status := "completed"
	exec, err := r.starter.Start(ctx, run.WorkflowID, run.Input)
	if err != nil {
		status = "failed"
		r.logger.Error("scheduled workflow failed",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()))
	} else {
		status = string(exec.Status)
	}

	next, err := r.NextRun(run.CronExpression, now)
	if err != nil {
		return fmt.Errorf("compute next run for %q: %w", run.ID, err)
	}
	return r.store.UpdateScheduledRun(ctx, run.ID, store.ScheduledRunUpdate{
		LastRunAt:     &now,
		NextRunAt:     &next,
		LastRunStatus: &status,
	})
}

// NextRun computes the next due time for a cron expression.
func (r *Runner) NextRun(expr string, from time.Time) (time.Time, error) {
	schedule, err := r.parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return schedule.Next(from), nil
}

func (r *Runner) acquire(id string) bool {
	r.inflightMu.Lock()
	defer r.inflightMu.Unlock()
	if _, ok := r.inflight[id]; ok {
		return false
	}
	r.inflight[id] = struct{}{}
	return true
}

func (r *Runner) release(id string) {
	r.inflightMu.Lock()
	defer r.inflightMu.Unlock()
	delete(r.inflight, id)
}
