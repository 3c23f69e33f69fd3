package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sofmeright/verbuild/src/testutil"
)

// execute runs the root command with args. Flag variables are package
// globals, so they are reset before every run.
func execute(t *testing.T, args ...string) (stdout string, err error) {
	t.Helper()

	cfgFile, verbose, cfg = "", false, nil
	bOnly, bJobs, bKeep, bPolicy, bJUnit, bDryRun = nil, 0, false, "", "", false
	listSort = false

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err = rootCmd.ExecuteContext(context.Background())
	if errOut.Len() > 0 {
		t.Logf("stderr:\n%s", errOut.String())
	}
	return out.String(), err
}

// buildEnv is a source repository tagged tag-a, tag-b, tag-c (VERSION = a,
// b, c), an output path, and a private TMPDIR that receives the clone.
type buildEnv struct {
	repo   *testutil.Repo
	out    string
	tmp    string
	config string
}

func newBuildEnv(t *testing.T) *buildEnv {
	t.Helper()
	testutil.RequireGit(t)
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found in PATH")
	}

	r := testutil.NewRepo(t)
	for _, name := range []string{"a", "b", "c"} {
		h := r.Commit(name, map[string]string{"VERSION": name})
		r.Tag("tag-"+name, h)
	}

	base := t.TempDir()
	env := &buildEnv{
		repo:   r,
		out:    filepath.Join(base, "out"),
		tmp:    filepath.Join(base, "tmp"),
		config: filepath.Join(base, ".versions.toml"),
	}
	if err := os.Mkdir(env.tmp, 0o755); err != nil {
		t.Fatal(err)
	}
	work := filepath.Join(base, "work")
	if err := os.Mkdir(work, 0o755); err != nil {
		t.Fatal(err)
	}

	t.Chdir(work)
	t.Setenv("TMPDIR", env.tmp)
	t.Setenv("NO_COLOR", "1")
	return env
}

// writeConfig writes a config whose toolchain copies VERSION into the
// output directory and fails for the snapshot named failOn.
func (e *buildEnv) writeConfig(t *testing.T, repoURL, policy, failOn string) {
	t.Helper()
	script := fmt.Sprintf(`test "$(cat VERSION)" != %s && mkdir -p "$0" && cp VERSION "$0"/`, failOn)
	content := fmt.Sprintf(`[versions.va]
ref = "tag-a"

[versions.vb]
ref = "tag-b"

[versions.vc]
ref = "tag-c"

[config]
output_path = '%s'
repository_url = '%s'
on_build_failure = "%s"

[config.toolchain]
kind = "command"
command = ["sh", "-c", '%s', "{output}"]
`, e.out, repoURL, policy, script)
	if err := os.WriteFile(e.config, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// published maps each output subdirectory to the VERSION it holds.
func (e *buildEnv) published(t *testing.T) map[string]string {
	t.Helper()
	entries, err := os.ReadDir(e.out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	got := map[string]string{}
	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(e.out, entry.Name(), "VERSION"))
		if err != nil {
			t.Fatalf("read %s: %v", entry.Name(), err)
		}
		got[entry.Name()] = string(data)
	}
	return got
}

func (e *buildEnv) clones(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(e.tmp)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "verbuild-") {
			names = append(names, entry.Name())
		}
	}
	return names
}

// totalLine returns the summary's total row, trimmed.
func totalLine(stdout string) string {
	for _, line := range strings.Split(stdout, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "│ total") {
			return strings.TrimSpace(line)
		}
	}
	return ""
}

func (e *buildEnv) writeStale(t *testing.T) string {
	t.Helper()
	stale := filepath.Join(e.out, "stale.txt")
	if err := os.MkdirAll(e.out, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	return stale
}

func TestBuildCommandPublishesEveryVersion(t *testing.T) {
	env := newBuildEnv(t)
	env.writeConfig(t, env.repo.Dir, "continue", "none")
	env.writeStale(t)

	stdout, err := execute(t, "build", "--config", env.config)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	want := map[string]string{"va": "a", "vb": "b", "vc": "c"}
	if diff := cmp.Diff(want, env.published(t)); diff != "" {
		t.Errorf("published (-want +got):\n%s", diff)
	}
	if !strings.Contains(stdout, "3 built, 0 failed, 0 skipped") {
		t.Errorf("summary missing counts:\n%s", stdout)
	}
	if left := env.clones(t); len(left) != 0 {
		t.Errorf("temporary clone left behind: %v", left)
	}
}

func TestBuildCommandFailurePolicies(t *testing.T) {
	tests := []struct {
		policy    string
		wantErr   bool
		want      map[string]string
		wantTotal string
	}{
		{policy: "continue", want: map[string]string{"va": "a", "vc": "c"}, wantTotal: "✓"},
		{policy: "fail", wantErr: true, want: map[string]string{"va": "a", "vc": "c"}, wantTotal: "✗"},
		{policy: "abort", wantErr: true, want: map[string]string{"va": "a"}, wantTotal: "✗"},
	}
	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			env := newBuildEnv(t)
			env.writeConfig(t, env.repo.Dir, tt.policy, "b")

			stdout, err := execute(t, "build", "--config", env.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, env.published(t)); diff != "" {
				t.Errorf("published (-want +got):\n%s", diff)
			}
			if !strings.Contains(stdout, "on_build_failure="+tt.policy) {
				t.Errorf("summary does not name the policy:\n%s", stdout)
			}
			if total := totalLine(stdout); !strings.HasSuffix(total, tt.wantTotal) {
				t.Errorf("total line = %q, want status %s", total, tt.wantTotal)
			}
			if left := env.clones(t); len(left) != 0 {
				t.Errorf("temporary clone left behind: %v", left)
			}
		})
	}
}

func TestBuildCommandPolicyFlagOverridesConfig(t *testing.T) {
	env := newBuildEnv(t)
	env.writeConfig(t, env.repo.Dir, "continue", "b")

	if _, err := execute(t, "build", "--config", env.config, "--on-build-failure", "abort"); err == nil {
		t.Fatal("expected abort to fail the run")
	}
	if diff := cmp.Diff(map[string]string{"va": "a"}, env.published(t)); diff != "" {
		t.Errorf("published (-want +got):\n%s", diff)
	}
}

func TestBuildCommandKeepWorkspace(t *testing.T) {
	env := newBuildEnv(t)
	env.writeConfig(t, env.repo.Dir, "continue", "none")

	if _, err := execute(t, "build", "--config", env.config, "--keep-workspace"); err != nil {
		t.Fatalf("build: %v", err)
	}
	if left := env.clones(t); len(left) != 1 {
		t.Errorf("clones in TMPDIR = %v, want exactly one", left)
	}
}

func TestBuildCommandInvalidConfigTouchesNothing(t *testing.T) {
	env := newBuildEnv(t)
	env.writeConfig(t, "", "continue", "none")
	stale := env.writeStale(t)

	_, err := execute(t, "build", "--config", env.config)
	if err == nil || !strings.Contains(err.Error(), "repository_url") {
		t.Fatalf("err = %v", err)
	}
	if _, err := os.Stat(stale); err != nil {
		t.Errorf("output path was modified: %v", err)
	}
	if left := env.clones(t); len(left) != 0 {
		t.Errorf("clone attempted: %v", left)
	}
}

func TestBuildCommandPreparesOutputBeforeClone(t *testing.T) {
	env := newBuildEnv(t)
	env.writeConfig(t, filepath.Join(env.tmp, "no-such-repo"), "continue", "none")
	env.writeStale(t)

	if _, err := execute(t, "build", "--config", env.config); err == nil {
		t.Fatal("expected clone error")
	}
	if got := env.published(t); len(got) != 0 {
		t.Errorf("output path not recreated empty: %v", got)
	}
	if left := env.clones(t); len(left) != 0 {
		t.Errorf("failed clone left behind: %v", left)
	}
}

func TestBuildCommandDryRun(t *testing.T) {
	env := newBuildEnv(t)
	env.writeConfig(t, env.repo.Dir, "continue", "none")
	stale := env.writeStale(t)

	stdout, err := execute(t, "build", "--config", env.config, "--dry-run")
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if _, err := os.Stat(stale); err != nil {
		t.Errorf("dry run modified the output path: %v", err)
	}
	if left := env.clones(t); len(left) != 0 {
		t.Errorf("dry run cloned: %v", left)
	}
	for _, name := range []string{"va", "vb", "vc"} {
		if !strings.Contains(stdout, filepath.Join(env.out, name)) {
			t.Errorf("plan missing output for %s:\n%s", name, stdout)
		}
	}
}

func TestListCommand(t *testing.T) {
	env := newBuildEnv(t)
	env.writeConfig(t, env.repo.Dir, "continue", "none")

	stdout, err := execute(t, "list", "--config", env.config)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := "NAME  REF\nva    tag-a\nvb    tag-b\nvc    tag-c\n"
	if stdout != want {
		t.Errorf("list = %q, want %q", stdout, want)
	}
}

func TestCommandsWithoutConfig(t *testing.T) {
	t.Chdir(t.TempDir())

	for _, args := range [][]string{
		{"version"},
		{"help", "build"},
		{"completion", "bash"},
	} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			stdout, err := execute(t, args...)
			if err != nil {
				t.Fatalf("%v: %v", args, err)
			}
			if stdout == "" {
				t.Errorf("%v printed nothing", args)
			}
		})
	}

	if _, err := execute(t, "list"); err == nil {
		t.Error("list should require a config file")
	}
}
