package build

import (
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/sofmeright/verbuild/src/gitver"
)

// Status is the outcome of one version.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	// StatusCancelled marks a build interrupted because the run stopped.
	StatusCancelled Status = "cancelled"
)

// Report captures the outcome of a full run.
type Report struct {
	Steps    []StepResult
	Duration time.Duration
}

// StepResult captures the outcome of a single version.
type StepResult struct {
	Name     string
	Ref      string
	Revision *gitver.Revision // nil if the ref never resolved
	Output   string           // publish directory
	Status   Status
	Args     []string // toolchain argv, empty if it never ran
	ExitCode int
	Log      []byte // captured stdout followed by stderr
	Duration time.Duration
	Error    error
}

// Count returns the number of steps with status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, step := range r.Steps {
		if step.Status == s {
			n++
		}
	}
	return n
}

// Failed returns the failed steps in order.
func (r *Report) Failed() []StepResult {
	var out []StepResult
	for _, step := range r.Steps {
		if step.Status == StatusFailed {
			out = append(out, step)
		}
	}
	return out
}

// Err joins every failed step's error, or returns nil.
func (r *Report) Err() error {
	var errs *multierror.Error
	for _, step := range r.Failed() {
		errs = multierror.Append(errs, &StepError{Name: step.Name, Err: step.Error})
	}
	return errs.ErrorOrNil()
}

// StepError ties an error to the version it came from.
type StepError struct {
	Name string
	Err  error
}

func (e *StepError) Error() string {
	if e.Err == nil {
		return e.Name + ": failed"
	}
	return e.Name + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error { return e.Err }

// Tail returns the last n non-empty lines of log.
func Tail(log []byte, n int) []string {
	lines := strings.Split(strings.TrimRight(string(log), "\n"), "\n")
	var out []string
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, strings.TrimRight(l, "\r"))
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}
