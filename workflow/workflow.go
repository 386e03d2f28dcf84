// Package workflow runs multi-step operations against external systems as an explicit list of steps.
// Each step declares what happens to the workflow when it fails and which of its side effects are
// left behind if a later step aborts the run
package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/weixuan0110/ctfbot/slog"
)

// Policy defines how a step failure affects the rest of the workflow
type Policy int

const (
	// Abort stops the workflow. Side effects of completed steps are left in place and logged when
	// their step declares an Orphan
	Abort Policy = iota
	// Continue records the failure and runs the next step
	Continue
	// Compensate stops the workflow and runs the Compensate function of every completed step, most
	// recent first
	Compensate
)

func (p Policy) String() string {
	switch p {
	case Abort:
		return "abort"
	case Continue:
		return "continue"
	case Compensate:
		return "compensate"
	}

	return "unknown"
}

// Step is a single operation of a workflow
type Step struct {
	Name   string
	Run    func(ctx context.Context) (err error)
	Policy Policy

	// Orphan describes the side effect left behind by this step if a later step aborts
	Orphan string

	// Compensate undoes this step when a later step with the Compensate policy fails
	Compensate func(ctx context.Context) (err error)
}

// Failure holds a failed step and its error
type Failure struct {
	Step string
	Err  error
}

// Report describes the outcome of a workflow run
type Report struct {
	Completed []string
	Failures  []Failure
	Orphans   []string

	// Stopped names the step that stopped the workflow, empty if all steps ran
	Stopped string
}

// Succeeded returns true if every step ran without error
func (r Report) Succeeded() bool {
	return r.Stopped == "" && len(r.Failures) == 0
}

// Err returns the error of the step that stopped the workflow, nil if it wasn't stopped
func (r Report) Err() error {
	if r.Stopped == "" {
		return nil
	}

	for _, f := range r.Failures {
		if f.Step == r.Stopped {
			return f.Err
		}
	}

	return nil
}

// Summary returns a human readable list of the failures
func (r Report) Summary() string {
	lines := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		lines = append(lines, fmt.Sprintf("- %s: %s", f.Step, f.Err))
	}

	return strings.Join(lines, "\n")
}

// Runner runs steps in sequence
type Runner struct {
	name   string
	logger slog.Logger
}

// NewRunner returns a new Runner logging under name
func NewRunner(name string, logger slog.Logger) (r *Runner) {
	r = new(Runner)
	r.name = name
	r.logger = logger

	return r
}

// Run executes the steps in order and applies the policy of the first failing step that isn't Continue.
// A cancelled context stops the workflow before the next step as if it had failed with Abort
func (r *Runner) Run(ctx context.Context, steps []Step) (report Report) {
	completed := make([]Step, 0, len(steps))

	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			report.Failures = append(report.Failures, Failure{Step: s.Name, Err: err})
			report.Stopped = s.Name
			r.collectOrphans(&report, completed)
			return report
		}

		r.logger.Debugf("[%s] Running step [%s]", r.name, s.Name)
		err := s.Run(ctx)
		if err == nil {
			completed = append(completed, s)
			report.Completed = append(report.Completed, s.Name)
			continue
		}

		report.Failures = append(report.Failures, Failure{Step: s.Name, Err: err})
		r.logger.Printf("[%s] Step [%s] failed with policy [%s]: %v", r.name, s.Name, s.Policy, err)

		switch s.Policy {
		case Continue:
			continue
		case Compensate:
			report.Stopped = s.Name
			r.compensate(ctx, &report, completed)
			return report
		default:
			report.Stopped = s.Name
			r.collectOrphans(&report, completed)
			return report
		}
	}

	return report
}

func (r *Runner) collectOrphans(report *Report, completed []Step) {
	for _, s := range completed {
		if s.Orphan != "" {
			r.logger.Printf("[%s] Leaving orphaned %s after step [%s] was aborted", r.name, s.Orphan, report.Stopped)
			report.Orphans = append(report.Orphans, s.Orphan)
		}
	}
}

func (r *Runner) compensate(ctx context.Context, report *Report, completed []Step) {
	for i := len(completed) - 1; i >= 0; i-- {
		s := completed[i]
		if s.Compensate == nil {
			if s.Orphan != "" {
				report.Orphans = append(report.Orphans, s.Orphan)
			}
			continue
		}

		if err := s.Compensate(ctx); err != nil {
			r.logger.Printf("[%s] Compensation of step [%s] failed: %v", r.name, s.Name, err)
			report.Failures = append(report.Failures, Failure{Step: s.Name + " (compensation)", Err: err})
			if s.Orphan != "" {
				report.Orphans = append(report.Orphans, s.Orphan)
			}
		}
	}
}
