package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-mutation/store"
)

type historyStub struct {
	mu      sync.Mutex
	cutoffs []time.Time
	removed int
	err     error
}

func (h *historyStub) History(context.Context, string, uuid.UUID) ([]store.HistoryEntry, error) {
	return nil, nil
}

func (h *historyStub) PruneHistory(_ context.Context, before time.Time) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cutoffs = append(h.cutoffs, before)
	return h.removed, h.err
}

type recordingLogger struct {
	mu    sync.Mutex
	infos []string
}

func (l *recordingLogger) Info(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, msg)
}

func (l *recordingLogger) Error(string, ...any) {}

func TestPruneJobUsesRetentionCutoff(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	history := &historyStub{removed: 4}
	logger := &recordingLogger{}

	job := PruneJob(history, 48*time.Hour, func() time.Time { return now }, logger)
	if err := job(context.Background()); err != nil {
		t.Fatalf("prune job: %v", err)
	}

	if len(history.cutoffs) != 1 {
		t.Fatalf("expected one prune call, got %d", len(history.cutoffs))
	}
	if want := now.Add(-48 * time.Hour); !history.cutoffs[0].Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, history.cutoffs[0])
	}
	if len(logger.infos) != 1 {
		t.Fatalf("expected one info log, got %d", len(logger.infos))
	}
}

func TestPruneJobWrapsStoreError(t *testing.T) {
	boom := errors.New("disk full")
	job := PruneJob(&historyStub{err: boom}, time.Hour, nil, nil)

	err := job(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestSchedulePruneValidation(t *testing.T) {
	scheduler := NewScheduler()

	if _, err := scheduler.SchedulePrune(nil, PruneConfig{Retention: time.Hour}); err == nil {
		t.Fatal("expected nil history error")
	}
	if _, err := scheduler.SchedulePrune(&historyStub{}, PruneConfig{}); err == nil {
		t.Fatal("expected retention error")
	}
	if _, err := scheduler.SchedulePrune(&historyStub{}, PruneConfig{Retention: time.Hour, Schedule: "not a schedule"}); err == nil {
		t.Fatal("expected invalid schedule error")
	}
}

func TestSchedulePruneDefaultsToDaily(t *testing.T) {
	scheduler := NewScheduler()

	job, err := scheduler.SchedulePrune(&historyStub{}, PruneConfig{Retention: time.Hour})
	if err != nil {
		t.Fatalf("schedule prune: %v", err)
	}
	if job.Name() != PruneJobName {
		t.Fatalf("expected job %s, got %s", PruneJobName, job.Name())
	}
	if got := scheduler.Entries(); got != 1 {
		t.Fatalf("expected one cron entry, got %d", got)
	}

	job.Cancel()
	if got := scheduler.Entries(); got != 0 {
		t.Fatalf("expected cancel to remove the entry, got %d", got)
	}
}

func TestSchedulePruneRuns(t *testing.T) {
	history := &historyStub{}
	scheduler := NewScheduler()

	job, err := scheduler.SchedulePrune(history, PruneConfig{Retention: time.Hour, Schedule: "@every 1s"})
	if err != nil {
		t.Fatalf("schedule prune: %v", err)
	}
	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("scheduler start: %v", err)
	}
	defer scheduler.Stop(context.Background())

	deadline := time.After(2500 * time.Millisecond)
	for {
		history.mu.Lock()
		calls := len(history.cutoffs)
		history.mu.Unlock()
		if calls > 0 && job.Runs() > 0 {
			if job.Status() != StatusIdle {
				t.Fatalf("expected idle job between runs, got %s", job.Status())
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("expected at least one prune run")
		default:
			time.Sleep(20 * time.Millisecond)
		}
	}
}
