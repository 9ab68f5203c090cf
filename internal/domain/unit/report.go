package unit

import (
	"errors"
	"time"
)

// PassReport summarizes one bulk pass (init, unload, tick) over a side.
type PassReport struct {
	Side       Side
	Operation  string
	StartedAt  time.Time
	FinishedAt time.Time
	// Succeeded lists units whose hooks all completed, in processing order.
	Succeeded []string
	// Failed lists hook failures, in processing order.
	Failed []*HookError
	// Skipped lists units that were passed over and why.
	Skipped []Skip
}

// Skip records a unit that a pass did not process.
type Skip struct {
	Unit   string
	Reason string
}

// NewPassReport starts a report for op on side.
func NewPassReport(side Side, op string) *PassReport {
	return &PassReport{
		Side:      side,
		Operation: op,
		StartedAt: time.Now(),
	}
}

// Succeed records a unit that completed.
func (r *PassReport) Succeed(name string) {
	r.Succeeded = append(r.Succeeded, name)
}

// Fail records a hook failure.
func (r *PassReport) Fail(err *HookError) {
	r.Failed = append(r.Failed, err)
}

// Skip records a skipped unit.
func (r *PassReport) Skip(name, reason string) {
	r.Skipped = append(r.Skipped, Skip{Unit: name, Reason: reason})
}

// Finish stamps the end time and returns the report.
func (r *PassReport) Finish() *PassReport {
	r.FinishedAt = time.Now()
	return r
}

// Duration returns how long the pass took.
func (r *PassReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// HasFailures returns true if any hook failed.
func (r *PassReport) HasFailures() bool {
	return len(r.Failed) > 0
}

// FailedUnits returns the names of failed units.
func (r *PassReport) FailedUnits() []string {
	names := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		names = append(names, f.Unit)
	}
	return names
}

// Err joins every hook failure, or returns nil when the pass was clean.
func (r *PassReport) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}
