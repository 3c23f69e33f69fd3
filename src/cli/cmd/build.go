package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sofmeright/verbuild/src/build"
	"github.com/sofmeright/verbuild/src/config"
	"github.com/sofmeright/verbuild/src/gitver"
	"github.com/sofmeright/verbuild/src/output"
	"github.com/sofmeright/verbuild/src/version"
	"github.com/sofmeright/verbuild/src/workspace"
)

var (
	bOnly   []string
	bJobs   int
	bKeep   bool
	bPolicy string
	bJUnit  string
	bDryRun bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build every configured version",
	Long: `Clear output_path, clone repository_url with submodules into a temporary
directory, then for each version reset the clone to its ref and publish it
into output_path/<name>.

Versions are built in the order they appear in the config file.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringSliceVar(&bOnly, "only", nil, "build only these versions (comma-separated)")
	buildCmd.Flags().IntVar(&bJobs, "jobs", 0, "versions to build at once (default: config.jobs)")
	buildCmd.Flags().BoolVar(&bKeep, "keep-workspace", false, "leave the temporary clone in place")
	buildCmd.Flags().StringVar(&bPolicy, "on-build-failure", "", "continue, abort or fail (default: config.on_build_failure)")
	buildCmd.Flags().StringVar(&bJUnit, "junit", "", "write a JUnit report to this directory")
	buildCmd.Flags().BoolVar(&bDryRun, "dry-run", false, "show the plan without executing")

	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	color := output.UseColor()
	w := cmd.OutOrStdout()
	errw := cmd.ErrOrStderr()
	runStart := time.Now()

	// Apply CLI overrides and check them like the file.
	eff := *cfg
	if cmd.Flags().Changed("jobs") {
		eff.Settings.Jobs = bJobs
	}
	if bPolicy != "" {
		eff.Settings.OnBuildFailure = config.FailurePolicy(bPolicy)
	}
	versions, err := selectVersions(cfg, bOnly)
	if err != nil {
		return err
	}
	eff.Versions = versions
	if _, err := config.Validate(&eff); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	settings := eff.Settings
	timeout, _ := settings.Timeout()

	tc, err := build.Get(settings.Toolchain)
	if err != nil {
		return err
	}
	outputPath, err := filepath.Abs(settings.OutputPath)
	if err != nil {
		return fmt.Errorf("resolving output path: %w", err)
	}

	output.ContextBlock(w, runContextKV(settings, outputPath, tc, len(versions)))

	// --- Dry run ---
	if bDryRun {
		planSec := output.NewSection(w, "Plan", 0, color)
		for _, v := range versions {
			args := tc.Args(build.PublishRequest{
				Version: v.Name,
				Ref:     v.Ref,
				Output:  filepath.Join(outputPath, v.Name),
			})
			output.PlanRow(planSec, v.Name, v.Ref, args, color)
		}
		if len(versions) == 0 {
			planSec.Row("no versions configured")
		}
		planSec.Close()
		return nil
	}

	// --- Prepare ---
	output.SectionStartCollapsed(w, "vb_prepare", "Prepare")
	prepStart := time.Now()

	if err := workspace.PrepareOutput(outputPath); err != nil {
		output.SectionEnd(w, "vb_prepare")
		return err
	}

	opts := workspace.Options{Clean: settings.Clean, Keep: bKeep}
	if verbose {
		opts.Progress = errw
	}
	ws, err := workspace.Clone(ctx, settings.RepositoryURL, opts)
	if err != nil {
		output.SectionEnd(w, "vb_prepare")
		return err
	}
	defer func() {
		if err := ws.Close(); err != nil {
			fmt.Fprintf(errw, "warning: %v\n", err)
		} else if ws.Kept() {
			fmt.Fprintf(errw, "workspace kept at %s\n", ws.Dir)
		}
	}()

	prepSec := output.NewSection(w, "Prepare", time.Since(prepStart), color)
	prepSec.Row("%-16s→ %s", "output", outputPath)
	prepSec.Row("%-16s→ %s", "workspace", ws.Dir)
	if head, err := gitver.Resolve(ws.Repository(), "HEAD"); err == nil {
		prepSec.Row("%-16s→ %s", "HEAD", head)
	}
	prepSec.Close()
	output.SectionEnd(w, "vb_prepare")
	prepSummary := fmt.Sprintf("%s cloned", gitver.RepoName(settings.RepositoryURL))

	// --- Build ---
	// Streaming interleaves badly with parallel builds, so only sequential
	// runs forward toolchain output.
	if verbose && settings.Jobs <= 1 {
		if ex, ok := tc.(*build.Exec); ok {
			tc = ex.WithStream(errw)
		}
	}

	output.SectionStart(w, "vb_build", "Build")
	buildSec := output.NewSection(w, "Build", 0, color)
	runner := &build.Runner{
		Workspace:  ws,
		Toolchain:  tc,
		OutputPath: outputPath,
		Policy:     settings.OnBuildFailure,
		Jobs:       settings.Jobs,
		Timeout:    timeout,
		OnStep: func(step build.StepResult) {
			output.StepRow(buildSec, step, color)
		},
	}
	report, runErr := runner.Run(ctx, versions)
	for _, step := range report.Steps {
		if step.Status == build.StatusSkipped {
			output.StepRow(buildSec, step, color)
		}
	}
	if len(report.Steps) == 0 {
		buildSec.Row("no versions configured")
	}
	buildSec.Close()
	output.SectionEnd(w, "vb_build")

	if bJUnit != "" {
		if err := output.WriteBuildJUnit(bJUnit, report); err != nil {
			fmt.Fprintf(errw, "warning: junit report: %v\n", err)
		} else if verbose {
			fmt.Fprintf(errw, "junit report written to %s\n", filepath.Join(bJUnit, "build.xml"))
		}
	}

	// --- Summary ---
	built := report.Count(build.StatusSuccess)
	failed := report.Count(build.StatusFailed)
	skipped := report.Count(build.StatusSkipped) + report.Count(build.StatusCancelled)

	buildStatus := "success"
	switch {
	case failed > 0:
		buildStatus = "failed"
	case len(report.Steps) == 0 || built == 0:
		buildStatus = "skipped"
	}
	// The total follows the exit status: tolerated failures under
	// "continue" still end the run successfully.
	overall := "success"
	if runErr != nil {
		overall = "failed"
	}
	buildDetail := fmt.Sprintf("%d built, %d failed, %d skipped (%s)", built, failed, skipped, formatElapsed(report.Duration))
	if failed > 0 {
		buildDetail += fmt.Sprintf(", on_build_failure=%s", settings.OnBuildFailure)
	}

	sumSec := output.NewSection(w, "Summary", 0, color)
	output.SummaryRow(w, "prepare", "success", prepSummary, color)
	output.SummaryRow(w, "build", buildStatus, buildDetail, color)
	sumSec.Separator()
	output.SummaryTotal(w, time.Since(runStart), overall, color)
	sumSec.Close()

	return runErr
}

// selectVersions returns the versions named in only, in config order.
// An empty only selects every version.
func selectVersions(cfg *config.Config, only []string) ([]config.Version, error) {
	if len(only) == 0 {
		return cfg.Versions, nil
	}
	want := make(map[string]bool, len(only))
	var unknown []string
	for _, name := range only {
		name = strings.TrimSpace(name)
		if _, ok := cfg.Lookup(name); !ok {
			unknown = append(unknown, name)
			continue
		}
		want[name] = true
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown version(s): %s (configured: %s)",
			strings.Join(unknown, ", "), strings.Join(cfg.Names(), ", "))
	}

	var out []config.Version
	for _, v := range cfg.Versions {
		if want[v.Name] {
			out = append(out, v)
		}
	}
	return out, nil
}

func runContextKV(s config.Settings, outputPath string, tc build.Toolchain, n int) []output.KV {
	kv := []output.KV{
		{Key: "verbuild", Value: version.Version},
		{Key: "repository", Value: gitver.DisplayURL(s.RepositoryURL)},
		{Key: "output", Value: outputPath},
		{Key: "toolchain", Value: tc.Name()},
		{Key: "versions", Value: fmt.Sprintf("%d", n)},
		{Key: "policy", Value: string(s.OnBuildFailure)},
	}
	if s.Jobs > 1 {
		kv = append(kv, output.KV{Key: "jobs", Value: fmt.Sprintf("%d", s.Jobs)})
	}
	if pipe := os.Getenv("CI_PIPELINE_ID"); pipe != "" {
		kv = append(kv, output.KV{Key: "pipeline", Value: pipe})
	}
	if runner := os.Getenv("CI_RUNNER_DESCRIPTION"); runner != "" {
		kv = append(kv, output.KV{Key: "runner", Value: runner})
	}
	return kv
}

func formatElapsed(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
