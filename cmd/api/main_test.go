package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"pennywise/internal/jobs"
	"pennywise/internal/period"
)

type fakeRunner struct {
	name string
	now  time.Time
	err  error
}

func (f *fakeRunner) Run(_ context.Context, name string, now time.Time) (jobs.RunResult, error) {
	f.name, f.now = name, now
	return jobs.RunResult{Job: name}, f.err
}

func TestJobTask(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	fired := time.Date(2025, 4, 1, 0, 0, 0, 0, tokyo)
	clock := period.Clock(func() time.Time { return fired })

	t.Run("runs with the scheduler zone's time", func(t *testing.T) {
		runner := &fakeRunner{}
		if err := jobTask(runner, jobs.BudgetsJob, clock)(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if runner.name != jobs.BudgetsJob {
			t.Errorf("ran %q", runner.name)
		}
		want := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
		if got := period.MonthStart(runner.now); !got.Equal(want) {
			t.Errorf("month = %s, want %s", got, want)
		}
	})

	t.Run("propagates registry errors", func(t *testing.T) {
		runner := &fakeRunner{err: errors.New("unknown job")}
		if err := jobTask(runner, "reindex", clock)(context.Background()); err == nil {
			t.Error("expected error")
		}
	})
}
