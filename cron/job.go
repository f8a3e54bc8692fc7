package cron

import (
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// Status is the state of a scheduled job.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	// StatusIdle is a recurring job waiting for its next tick.
	StatusIdle      Status = "idle"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
	StatusStopped   Status = "stopped"
)

// Run records one execution of a job, retries included.
type Run struct {
	Started  time.Time
	Duration time.Duration
	Attempts int
	Err      error
}

// Job is a scheduled handler and the record of its executions. A recurring
// job stays scheduled after a failed run. Done closes on Cancel, on Stop, or
// once a one-shot job has run.
type Job struct {
	name      string
	scheduler *Scheduler
	entryID   rcron.EntryID
	recurring bool
	done      chan struct{}

	mu       sync.RWMutex
	status   Status
	finished bool
	runs     int
	failures int
	last     Run
}

func newJob(s *Scheduler, name string, recurring bool) *Job {
	return &Job{
		name:      name,
		scheduler: s,
		recurring: recurring,
		status:    StatusScheduled,
		done:      make(chan struct{}),
	}
}

func (j *Job) Name() string { return j.name }

func (j *Job) Status() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// Err returns the error of the last run.
func (j *Job) Err() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.last.Err
}

// Runs counts finished executions, failed ones included.
func (j *Job) Runs() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.runs
}

func (j *Job) Failures() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.failures
}

func (j *Job) LastRun() Run {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.last
}

func (j *Job) Done() <-chan struct{} { return j.done }

// Cancel unschedules the job. A run in progress is not interrupted.
func (j *Job) Cancel() {
	if j.scheduler != nil {
		j.scheduler.remove(j)
	}
	j.end(StatusCanceled)
}

// begin marks the job running unless it already ended.
func (j *Job) begin() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finished {
		return false
	}
	j.status = StatusRunning
	return true
}

func (j *Job) record(run Run) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runs++
	j.last = run
	if run.Err != nil {
		j.failures++
	}
	if j.finished {
		return
	}
	switch {
	case run.Err != nil:
		j.status = StatusFailed
	case j.recurring:
		j.status = StatusIdle
	default:
		j.status = StatusCompleted
	}
	if !j.recurring {
		j.finished = true
		close(j.done)
	}
}

// end closes the job with status unless it already ended.
func (j *Job) end(status Status) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finished {
		return
	}
	j.finished = true
	j.status = status
	close(j.done)
}
