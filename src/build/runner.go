package build

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sofmeright/verbuild/src/config"
	"github.com/sofmeright/verbuild/src/workspace"
)

// Runner builds every configured version from one workspace.
//
// With Jobs <= 1 versions are built in order in the shared working copy,
// each one reset to its ref before the toolchain runs. With Jobs > 1 every
// version gets its own copy of the workspace and up to Jobs builds run at
// once; the shared copy is never checked out in that mode.
type Runner struct {
	Workspace  *workspace.Workspace
	Toolchain  Toolchain
	OutputPath string // absolute; each version publishes to OutputPath/<name>
	Policy     config.FailurePolicy
	Jobs       int
	Timeout    time.Duration // per toolchain invocation, 0 for none

	// OnStep is called once per attempted version as soon as its outcome is
	// known. Calls are serialized.
	OnStep func(StepResult)

	mu sync.Mutex
}

// Run builds versions and returns the report. The report is never nil.
//
// A ref that cannot be checked out stops the run and returns its error.
// A failed build stops the run only under PolicyAbort; under PolicyFail the
// run continues and the joined failures are returned at the end. Builds cut
// short because the run stopped are StatusCancelled, not failures.
func (r *Runner) Run(ctx context.Context, versions []config.Version) (*Report, error) {
	start := time.Now()
	report := &Report{Steps: r.pending(versions)}

	var err error
	if r.Jobs > 1 && len(versions) > 1 {
		err = r.runParallel(ctx, versions, report.Steps)
	} else {
		err = r.runSequential(ctx, versions, report.Steps)
	}
	report.Duration = time.Since(start)

	if err == nil && r.Policy == config.PolicyFail {
		err = report.Err()
	}
	return report, err
}

func (r *Runner) pending(versions []config.Version) []StepResult {
	steps := make([]StepResult, len(versions))
	for i, v := range versions {
		steps[i] = StepResult{
			Name:     v.Name,
			Ref:      v.Ref,
			Output:   filepath.Join(r.OutputPath, v.Name),
			Status:   StatusSkipped,
			ExitCode: -1,
		}
	}
	return steps
}

func (r *Runner) runSequential(ctx context.Context, versions []config.Version, steps []StepResult) error {
	for i, v := range versions {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.step(ctx, r.Workspace, v, &steps[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runParallel(ctx context.Context, versions []config.Version, steps []StepResult) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.Jobs)

	for i, v := range versions {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			ws, err := r.Workspace.Isolate(v.Name)
			if err != nil {
				steps[i].Status = StatusFailed
				steps[i].Error = err
				r.emit(steps[i])
				return fmt.Errorf("build: %s: %w", v.Name, err)
			}
			defer func() { _ = ws.Close() }()
			return r.step(gctx, ws, v, &steps[i])
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// step checks v out in ws and publishes it. A returned error stops the run.
func (r *Runner) step(ctx context.Context, ws *workspace.Workspace, v config.Version, step *StepResult) error {
	rev, err := ws.Checkout(ctx, v.Ref)
	if err != nil && ctx.Err() != nil {
		// The run was stopped elsewhere; the error that stopped it is
		// already on its way out.
		step.Status = StatusCancelled
		step.Error = ctx.Err()
		r.emit(*step)
		return nil
	}
	if err != nil {
		step.Status = StatusFailed
		step.Error = err
		r.emit(*step)
		return fmt.Errorf("build: checking out %s at %q: %w", v.Name, v.Ref, err)
	}
	step.Revision = rev

	r.publish(ctx, ws, v, step)
	if step.Status == StatusFailed && ctx.Err() != nil {
		step.Status = StatusCancelled
	}
	r.emit(*step)

	if step.Status == StatusFailed && r.Policy == config.PolicyAbort {
		return fmt.Errorf("build: %s: %w", v.Name, step.Error)
	}
	return nil
}

func (r *Runner) publish(ctx context.Context, ws *workspace.Workspace, v config.Version, step *StepResult) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	req := PublishRequest{
		Version:  v.Name,
		Ref:      v.Ref,
		Revision: step.Revision,
		Dir:      ws.Dir,
		Output:   step.Output,
	}

	start := time.Now()
	res, err := r.Toolchain.Publish(ctx, req)
	step.Duration = time.Since(start)

	if res != nil {
		step.Args = res.Args
		step.ExitCode = res.ExitCode
		step.Log = append(append([]byte(nil), res.Stdout...), res.Stderr...)
	}
	if err != nil {
		step.Status = StatusFailed
		step.Error = err
		return
	}
	step.Status = StatusSuccess
}

func (r *Runner) emit(step StepResult) {
	if r.OnStep == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.OnStep(step)
}
