// Package cron runs background jobs, such as the history cleanup, on cron
// expressions or at fixed times.
package cron

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// Logger interface shared across packages
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// JobConfig controls how a scheduled job runs. A failed attempt is retried
// up to MaxRetries times; Timeout bounds each attempt.
type JobConfig struct {
	Name       string
	Expression string
	Timeout    time.Duration
	MaxRetries int
}

// Scheduler owns the cron engine and the jobs scheduled on it.
type Scheduler struct {
	cron         *rcron.Cron
	location     *time.Location
	logger       Logger
	logLevel     LogLevel
	errorHandler func(error)

	mu     sync.Mutex
	jobs   map[*Job]struct{}
	ctx    context.Context
	cancel context.CancelFunc
	seq    int
}

// NewScheduler creates a scheduler. Jobs only fire after Start.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		location: time.Local,
		logLevel: LogLevelError,
		jobs:     make(map[*Job]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.cron = rcron.New(
		rcron.WithLocation(s.location),
		rcron.WithLogger(&engineLogger{logger: s.logger, level: s.logLevel}),
	)
	return s
}

// ScheduleCron runs handler on every tick of cfg.Expression until the job is
// canceled or the scheduler stops.
func (s *Scheduler) ScheduleCron(cfg JobConfig, handler any) (*Job, error) {
	if cfg.Expression == "" {
		return nil, fmt.Errorf("cron expression cannot be empty")
	}
	name := s.jobName(cfg)
	run, err := s.runner(name, cfg, handler)
	if err != nil {
		return nil, err
	}

	job := newJob(s, name, true)
	entryID, err := s.cron.AddFunc(cfg.Expression, func() { s.execute(job, run) })
	if err != nil {
		return nil, fmt.Errorf("failed to add job %s: %w", job.name, err)
	}
	job.entryID = entryID
	s.track(job)
	return job, nil
}

// ScheduleAfter runs handler once after delay.
func (s *Scheduler) ScheduleAfter(delay time.Duration, cfg JobConfig, handler any) (*Job, error) {
	if delay < 0 {
		delay = 0
	}
	return s.ScheduleAt(time.Now().Add(delay), cfg, handler)
}

// ScheduleAt runs handler once at at. It does not need Start.
func (s *Scheduler) ScheduleAt(at time.Time, cfg JobConfig, handler any) (*Job, error) {
	name := s.jobName(cfg)
	run, err := s.runner(name, cfg, handler)
	if err != nil {
		return nil, err
	}

	job := newJob(s, name, false)
	s.track(job)

	go func() {
		timer := time.NewTimer(max(time.Until(at), 0))
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-job.Done():
			return
		}
		s.execute(job, run)
		s.remove(job)
	}()
	return job, nil
}

// Start begins firing recurring jobs.
func (s *Scheduler) Start(_ context.Context) error {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}
	s.mu.Unlock()
	s.cron.Start()
	return nil
}

// Stop cancels running jobs, waits for them to return and marks every
// scheduled job stopped.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	s.cancel()
	jobs := s.jobs
	s.jobs = make(map[*Job]struct{})
	s.mu.Unlock()

	<-s.cron.Stop().Done()

	for job := range jobs {
		if job.recurring {
			s.cron.Remove(job.entryID)
		}
		job.end(StatusStopped)
	}
	return nil
}

// Entries reports how many recurring jobs are registered with the engine.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) execute(job *Job, run func(context.Context) (int, error)) {
	if !job.begin() {
		return
	}
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	started := time.Now()
	attempts, err := run(ctx)
	elapsed := time.Since(started)

	// report before record so Done observers see the report
	if err != nil {
		s.fail(fmt.Errorf("job %s: %w", job.name, err))
	} else {
		s.logf(LogLevelInfo, "job %s finished in %s", job.name, elapsed.Round(time.Millisecond))
	}
	job.record(Run{Started: started, Duration: elapsed, Attempts: attempts, Err: err})
}

// runner wraps handler with the retry and timeout policy of cfg. Supported
// handlers are func(), func() error and func(context.Context) error.
func (s *Scheduler) runner(name string, cfg JobConfig, handler any) (func(context.Context) (int, error), error) {
	var fn func(context.Context) error
	switch h := handler.(type) {
	case func():
		if h != nil {
			fn = func(context.Context) error {
				h()
				return nil
			}
		}
	case func() error:
		if h != nil {
			fn = func(context.Context) error { return h() }
		}
	case func(context.Context) error:
		fn = h
	default:
		return nil, fmt.Errorf("unsupported handler type: %T", handler)
	}
	if fn == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	return func(ctx context.Context) (int, error) {
		var err error
		attempts := 0
		for attempts <= cfg.MaxRetries {
			attempts++
			if err = attempt(ctx, cfg.Timeout, fn); err == nil || ctx.Err() != nil {
				return attempts, err
			}
			if attempts <= cfg.MaxRetries {
				s.logf(LogLevelInfo, "job %s attempt %d failed: %v", name, attempts, err)
			}
		}
		return attempts, err
	}, nil
}

// attempt runs fn once under timeout and turns a panic into an error.
func attempt(ctx context.Context, timeout time.Duration, fn func(context.Context) error) (err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panic: %v\n%s", v, debug.Stack())
		}
	}()
	return fn(ctx)
}

func (s *Scheduler) fail(err error) {
	if s.errorHandler != nil {
		s.errorHandler(err)
		return
	}
	if s.logger != nil && s.logLevel >= LogLevelError {
		s.logger.Error("%v", err)
	}
}

func (s *Scheduler) logf(level LogLevel, msg string, args ...any) {
	if s.logger != nil && s.logLevel >= level {
		s.logger.Info(msg, args...)
	}
}

// jobName returns cfg.Name, or a generated name for anonymous jobs.
func (s *Scheduler) jobName(cfg JobConfig) string {
	if cfg.Name != "" {
		return cfg.Name
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return fmt.Sprintf("job-%d", s.seq)
}

func (s *Scheduler) track(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job] = struct{}{}
}

func (s *Scheduler) remove(job *Job) {
	s.mu.Lock()
	_, ok := s.jobs[job]
	delete(s.jobs, job)
	s.mu.Unlock()
	if ok && job.recurring {
		s.cron.Remove(job.entryID)
	}
}
