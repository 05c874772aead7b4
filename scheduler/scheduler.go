// Package scheduler runs named maintenance tasks on fixed intervals, such as
// purging used or expired password recovery links.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrUnknownTask is returned by RunNow for a name that is not registered.
var ErrUnknownTask = errors.New("scheduler: unknown task")

// TaskFn is the function signature for scheduled tasks. ctx is cancelled when
// the scheduler stops or the task is removed.
type TaskFn func(ctx context.Context) error

// TaskInfo is a snapshot of one registered task.
type TaskInfo struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	Runs      int64         `json:"runs"`
	Failures  int64         `json:"failures"`
	LastRun   time.Time     `json:"last_run,omitempty"`
	LastError string        `json:"last_error,omitempty"`
}

// Scheduler manages periodic tasks.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[string]*task
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

type task struct {
	name     string
	interval time.Duration
	fn       TaskFn
	cancel   context.CancelFunc
	runMu    sync.Mutex // serialises runs of the same task

	statsMu   sync.Mutex
	runs      int64
	failures  int64
	lastRun   time.Time
	lastError string
}

// New creates a new Scheduler.
func New(logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tasks:  make(map[string]*task),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// AddTicker registers a task to run on a fixed interval.
// If a task with the same name exists, it is replaced.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.tasks[name]; ok {
		old.cancel()
		delete(s.tasks, name)
	}
	if s.ctx.Err() != nil {
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	t := &task{name: name, interval: interval, fn: fn, cancel: cancel}
	s.tasks[name] = t

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.run(ctx, t)
			case <-ctx.Done():
				return
			}
		}
	}()
	s.logger.Info("scheduler task registered", zap.String("name", name), zap.Duration("interval", interval))
}

// RunNow executes a registered task immediately on the caller's goroutine.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownTask, name)
	}
	return s.run(ctx, t)
}

func (s *Scheduler) run(ctx context.Context, t *task) (err error) {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler task panicked",
				zap.String("task", t.name),
				zap.Any("recover", r))
			err = fmt.Errorf("scheduler: task %s panicked: %v", t.name, r)
		}
		t.record(err)
	}()
	if err = t.fn(ctx); err != nil {
		s.logger.Warn("scheduler task failed", zap.String("task", t.name), zap.Error(err))
	}
	return err
}

func (t *task) record(err error) {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	t.runs++
	t.lastRun = time.Now()
	t.lastError = ""
	if err != nil {
		t.failures++
		t.lastError = err.Error()
	}
}

// Remove stops and removes a task by name.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[name]; ok {
		t.cancel()
		delete(s.tasks, name)
	}
}

// Stop stops all tasks. Tasks registered afterwards are ignored.
func (s *Scheduler) Stop() {
	s.cancel()
}

// ListTickers returns the sorted names of all registered tasks.
func (s *Scheduler) ListTickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tasks returns a snapshot of every registered task ordered by name.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	tasks := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	out := make([]TaskInfo, 0, len(tasks))
	for _, t := range tasks {
		t.statsMu.Lock()
		out = append(out, TaskInfo{
			Name:      t.name,
			Interval:  t.interval,
			Runs:      t.runs,
			Failures:  t.failures,
			LastRun:   t.lastRun,
			LastError: t.lastError,
		})
		t.statsMu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
