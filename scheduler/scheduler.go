// Package scheduler runs the server's periodic maintenance jobs.
package scheduler

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

var errPanicked = errors.New("task panicked")

// TaskFn is the function signature for scheduled tasks. ctx is cancelled when
// the scheduler stops or the task is removed.
type TaskFn func(ctx context.Context) error

// TaskStatus describes a registered ticker.
type TaskStatus struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	Runs      int64         `json:"runs"`
	LastRun   time.Time     `json:"last_run,omitempty"`
	LastError string        `json:"last_error,omitempty"`
}

// Scheduler manages periodic and delayed tasks.
type Scheduler struct {
	mu      sync.Mutex
	tickers map[string]*tickerEntry
	timers  map[string]*time.Timer
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type tickerEntry struct {
	cancel context.CancelFunc
	status TaskStatus
}

// New creates a new Scheduler.
func New(logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tickers: make(map[string]*tickerEntry),
		timers:  make(map[string]*time.Timer),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddTicker registers a task to run on a fixed interval.
// If a task with the same name exists, it is replaced.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}
	if old, ok := s.tickers[name]; ok {
		old.cancel()
	}

	ctx, cancel := context.WithCancel(s.ctx)
	entry := &tickerEntry{cancel: cancel, status: TaskStatus{Name: name, Interval: interval}}
	s.tickers[name] = entry

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				err := s.run(ctx, name, fn)
				s.mu.Lock()
				entry.status.Runs++
				entry.status.LastRun = time.Now()
				entry.status.LastError = ""
				if err != nil {
					entry.status.LastError = err.Error()
				}
				s.mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()
	s.logger.Info("scheduler task registered", zap.String("name", name), zap.Duration("interval", interval))
}

// run calls fn, converting a panic into a logged failure.
func (s *Scheduler) run(ctx context.Context, name string, fn TaskFn) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler task panicked", zap.String("task", name), zap.Any("recover", r))
			err = errPanicked
		}
	}()
	if err = fn(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn("scheduler task failed", zap.String("task", name), zap.Error(err))
	}
	return err
}

// AddDelay runs fn once after the given delay.
func (s *Scheduler) AddDelay(name string, delay time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}
	if old, ok := s.timers[name]; ok && old.Stop() {
		s.wg.Done()
	}
	s.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		s.mu.Lock()
		if s.timers[name] == t {
			delete(s.timers, name)
		}
		s.mu.Unlock()
		_ = s.run(s.ctx, name, fn)
	})
	s.timers[name] = t
}

// Remove stops and removes a ticker or delay task by name.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.tickers[name]; ok {
		entry.cancel()
		delete(s.tickers, name)
	}
	if t, ok := s.timers[name]; ok {
		if t.Stop() {
			s.wg.Done()
		}
		delete(s.timers, name)
	}
}

// Stop cancels all tasks and waits for running ones to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.cancel()
	clear(s.tickers)
	for name, t := range s.timers {
		if t.Stop() {
			s.wg.Done()
		}
		delete(s.timers, name)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// ListTickers returns the registered ticker tasks sorted by name.
func (s *Scheduler) ListTickers() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskStatus, 0, len(s.tickers))
	for _, e := range s.tickers {
		out = append(out, e.status)
	}
	slices.SortFunc(out, func(a, b TaskStatus) int { return cmp.Compare(a.Name, b.Name) })
	return out
}
