package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-mutation/store"
)

const (
	// DefaultPruneSchedule runs history cleanup once a day.
	DefaultPruneSchedule = "@daily"
	// PruneJobName names the job SchedulePrune registers.
	PruneJobName = "history-prune"
)

// PruneConfig describes a recurring history cleanup.
type PruneConfig struct {
	Schedule   string
	Retention  time.Duration
	Timeout    time.Duration
	MaxRetries int
	Now        func() time.Time
}

// PruneJob returns a job that drops history entries older than retention.
func PruneJob(history store.HistoryStore, retention time.Duration, now func() time.Time, logger Logger) func(context.Context) error {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context) error {
		cutoff := now().Add(-retention)
		removed, err := history.PruneHistory(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("prune history before %s: %w", cutoff.Format(time.RFC3339), err)
		}
		if logger != nil {
			logger.Info("pruned %d history entries before %s", removed, cutoff.Format(time.RFC3339))
		}
		return nil
	}
}

// SchedulePrune registers a recurring PruneJob.
func (s *Scheduler) SchedulePrune(history store.HistoryStore, cfg PruneConfig) (*Job, error) {
	if history == nil {
		return nil, fmt.Errorf("history store cannot be nil")
	}
	if cfg.Retention <= 0 {
		return nil, fmt.Errorf("history retention must be positive, got %s", cfg.Retention)
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultPruneSchedule
	}
	job := PruneJob(history, cfg.Retention, cfg.Now, s.logger)
	return s.ScheduleCron(JobConfig{
		Name:       PruneJobName,
		Expression: cfg.Schedule,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
	}, job)
}
