// Package jobs holds the batch processors that run on a schedule or on
// demand: charging due subscriptions and snapshotting monthly budgets.
// Every item is processed on its own; one failure never stops the batch.
package jobs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	apperrors "pennywise/internal/errors"
)

// Job names, used by the registry, the scheduler and the pipeline endpoints.
const (
	SubscriptionsJob = "subscriptions"
	BudgetsJob       = "budget-allocations"
)

// maxListedFailures bounds the failures spelled out in a notification.
const maxListedFailures = 10

// Failure identifies one item that could not be processed.
type Failure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// RunResult summarises one run of a job.
type RunResult struct {
	Job       string    `json:"job"`
	Processed int       `json:"processed"`
	Failed    int       `json:"failed"`
	Failures  []Failure `json:"failures,omitempty"`
}

func (r *RunResult) fail(id string, err error) {
	r.Failed++
	r.Failures = append(r.Failures, Failure{ID: id, Error: err.Error()})
}

// Err returns a non-nil error when any item failed.
func (r RunResult) Err() error {
	if r.Failed == 0 {
		return nil
	}
	return fmt.Errorf("%s: %d item(s) failed", r.Job, r.Failed)
}

// Summary renders the result as a short human-readable message.
func (r RunResult) Summary(ranAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s* (%s): %d processed, %d failed", r.Job, ranAt.Format("2006-01-02"), r.Processed, r.Failed)
	for i, f := range r.Failures {
		if i == maxListedFailures {
			fmt.Fprintf(&b, "\n... and %d more", len(r.Failures)-maxListedFailures)
			break
		}
		fmt.Fprintf(&b, "\n- %s: %s", f.ID, f.Error)
	}
	return b.String()
}

// Job is a named batch that processes everything due at now.
type Job interface {
	Name() string
	Run(ctx context.Context, now time.Time) RunResult
}

// Registry looks jobs up by name.
type Registry struct {
	jobs map[string]Job
}

// NewRegistry indexes the given jobs by name.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{jobs: make(map[string]Job, len(jobs))}
	for _, j := range jobs {
		r.jobs[j.Name()] = j
	}
	return r
}

// Get returns the named job or ErrUnknownJob.
func (r *Registry) Get(name string) (Job, error) {
	j, ok := r.jobs[name]
	if !ok {
		return nil, apperrors.WithMessage(apperrors.ErrUnknownJob, fmt.Sprintf("unknown job %q", name))
	}
	return j, nil
}

// Run executes the named job once.
func (r *Registry) Run(ctx context.Context, name string, now time.Time) (RunResult, error) {
	j, err := r.Get(name)
	if err != nil {
		return RunResult{}, err
	}
	return j.Run(ctx, now), nil
}

// Names returns the registered job names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
