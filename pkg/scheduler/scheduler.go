// Package scheduler runs the control loops at fixed, independent rates.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

const instrumentationName = "github.com/teslashibe/go-mechros/pkg/scheduler"

// Task is one periodic loop body.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// TaskStats counts what a task has done so far.
type TaskStats struct {
	Name         string        `json:"name"`
	Interval     time.Duration `json:"interval"`
	Ticks        int64         `json:"ticks"`
	Errors       int64         `json:"errors"`
	Overruns     int64         `json:"overruns"`
	LastDuration time.Duration `json:"last_duration"`
	LastError    string        `json:"last_error,omitempty"`
}

type taskState struct {
	Task

	ticks    atomic.Int64
	errs     atomic.Int64
	overruns atomic.Int64
	lastDur  atomic.Int64

	mu      sync.Mutex
	lastErr string
}

// Scheduler drives a set of tasks until its context is cancelled.
type Scheduler struct {
	logger *slog.Logger

	mu      sync.Mutex
	tasks   []*taskState
	running bool

	overruns metric.Int64Counter
	failures metric.Int64Counter
}

// New creates an empty scheduler.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{logger: logger}

	m := otel.Meter(instrumentationName)
	var err error

	s.overruns, err = m.Int64Counter(
		"scheduler.task.overruns",
		metric.WithDescription("Task iterations that took longer than their interval"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating overrun counter: %w", err)
	}

	s.failures, err = m.Int64Counter(
		"scheduler.task.errors",
		metric.WithDescription("Task iterations that returned an error"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating error counter: %w", err)
	}

	return s, nil
}

// Add registers a task. Tasks cannot be added once Run has started.
func (s *Scheduler) Add(t Task) error {
	if t.Name == "" {
		return errors.New("scheduler: task name is required")
	}
	if t.Interval <= 0 {
		return fmt.Errorf("scheduler: task %s: interval must be positive", t.Name)
	}
	if t.Run == nil {
		return fmt.Errorf("scheduler: task %s: run func is required", t.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler: cannot add %s while running", t.Name)
	}
	for _, existing := range s.tasks {
		if existing.Name == t.Name {
			return fmt.Errorf("scheduler: duplicate task %s", t.Name)
		}
	}
	s.tasks = append(s.tasks, &taskState{Task: t})
	return nil
}

// Run starts every task and blocks until ctx is cancelled and all loops
// have finished their current iteration.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler: already running")
	}
	s.running = true
	tasks := append([]*taskState(nil), s.tasks...)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	g, ctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		g.Go(func() error {
			s.loop(ctx, t)
			return nil
		})
	}

	s.logger.Info("scheduler started", "tasks", len(tasks))
	err := g.Wait()
	s.logger.Info("scheduler stopped")
	return err
}

// loop runs t once immediately and then on every tick.
func (s *Scheduler) loop(ctx context.Context, t *taskState) {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		s.tick(ctx, t)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, t *taskState) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	var pc panics.Catcher
	var err error
	pc.Try(func() { err = t.Run(ctx) })
	if r := pc.Recovered(); r != nil {
		err = r.AsError()
	}
	elapsed := time.Since(start)

	t.ticks.Add(1)
	t.lastDur.Store(int64(elapsed))
	attrs := metric.WithAttributes(attribute.String("task", t.Name))

	if elapsed > t.Interval {
		t.overruns.Add(1)
		s.overruns.Add(ctx, 1, attrs)
		s.logger.Debug("task overran interval", "task", t.Name, "elapsed", elapsed, "interval", t.Interval)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		t.errs.Add(1)
		t.mu.Lock()
		t.lastErr = err.Error()
		t.mu.Unlock()
		s.failures.Add(ctx, 1, attrs)
		s.logger.Error("task failed", "task", t.Name, "error", err)
	}
}

// Stats returns a snapshot per task, sorted by name.
func (s *Scheduler) Stats() []TaskStats {
	s.mu.Lock()
	tasks := append([]*taskState(nil), s.tasks...)
	s.mu.Unlock()

	out := make([]TaskStats, 0, len(tasks))
	for _, t := range tasks {
		t.mu.Lock()
		lastErr := t.lastErr
		t.mu.Unlock()

		out = append(out, TaskStats{
			Name:         t.Name,
			Interval:     t.Interval,
			Ticks:        t.ticks.Load(),
			Errors:       t.errs.Load(),
			Overruns:     t.overruns.Load(),
			LastDuration: time.Duration(t.lastDur.Load()),
			LastError:    lastErr,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
