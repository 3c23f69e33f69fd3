package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const sampleTOML = `
[versions.v200100]
ref = "v200100"

[versions.legacy]
ref = "release/100"

[versions.v100370]
ref = "0a1b2c3"

[config]
output_path = "./out"
repository_url = "https://example.com/lib.git"
`

func TestLoadTOML(t *testing.T) {
	cfg, err := Load(writeConfig(t, ".versions.toml", sampleTOML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := []Version{
		{Name: "v200100", Ref: "v200100"},
		{Name: "legacy", Ref: "release/100"},
		{Name: "v100370", Ref: "0a1b2c3"},
	}
	if diff := cmp.Diff(want, cfg.Versions); diff != "" {
		t.Errorf("versions mismatch (-want +got):\n%s", diff)
	}
	if cfg.Settings.OutputPath != "./out" {
		t.Errorf("output_path = %q", cfg.Settings.OutputPath)
	}
	if cfg.Settings.RepositoryURL != "https://example.com/lib.git" {
		t.Errorf("repository_url = %q", cfg.Settings.RepositoryURL)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ".versions.toml", sampleTOML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if diff := cmp.Diff(DefaultSettings().Toolchain, cfg.Settings.Toolchain); diff != "" {
		t.Errorf("toolchain mismatch (-want +got):\n%s", diff)
	}
	if cfg.Settings.OnBuildFailure != PolicyContinue {
		t.Errorf("on_build_failure = %q, want continue", cfg.Settings.OnBuildFailure)
	}
	if cfg.Settings.Jobs != 1 {
		t.Errorf("jobs = %d, want 1", cfg.Settings.Jobs)
	}
	if !cfg.Settings.Clean {
		t.Error("clean should default to true")
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, ".versions.toml", `
[config]
output_path = "out"
repository_url = "git@example.com:lib.git"
on_build_failure = "fail"
jobs = 4
clean = false
build_timeout = "45m"

[config.toolchain]
kind = "command"
command = ["make", "OUT={output}"]

[config.toolchain.env]
CI = "true"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	s := cfg.Settings
	if s.OnBuildFailure != PolicyFail || s.Jobs != 4 || s.Clean {
		t.Errorf("settings not applied: %+v", s)
	}
	d, err := s.Timeout()
	if err != nil || d.Minutes() != 45 {
		t.Errorf("Timeout() = %v, %v", d, err)
	}
	if s.Toolchain.Kind != "command" {
		t.Errorf("toolchain.kind = %q", s.Toolchain.Kind)
	}
	if diff := cmp.Diff([]string{"make", "OUT={output}"}, s.Toolchain.Command); diff != "" {
		t.Errorf("toolchain.command (-want +got):\n%s", diff)
	}
	if s.Toolchain.Env["CI"] != "true" {
		t.Errorf("toolchain.env = %v", s.Toolchain.Env)
	}
	if len(cfg.Versions) != 0 {
		t.Errorf("expected no versions, got %v", cfg.Versions)
	}
}

func TestTOMLOrderAcrossKeyStyles(t *testing.T) {
	data := []byte(`
[versions]
zeta.ref = "z"
alpha = { ref = "a" }
"quoted name" = { ref = "q" }

[versions.mid]
ref = "m"

[config]
output_path = "out"
repository_url = "u"
`)
	cfg, err := Parse(data, FormatTOML)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := []string{"zeta", "alpha", "quoted name", "mid"}
	if diff := cmp.Diff(want, cfg.Names()); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "versions.yaml", `
versions:
  second:
    ref: tag-b
  first:
    ref: tag-a
config:
  output_path: out
  repository_url: https://example.com/lib.git
  jobs: 2
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := []Version{{Name: "second", Ref: "tag-b"}, {Name: "first", Ref: "tag-a"}}
	if diff := cmp.Diff(want, cfg.Versions); diff != "" {
		t.Errorf("versions mismatch (-want +got):\n%s", diff)
	}
	if cfg.Settings.Jobs != 2 {
		t.Errorf("jobs = %d", cfg.Settings.Jobs)
	}
	if cfg.Settings.Toolchain.Project != "Lib9c/Lib9c.csproj" {
		t.Errorf("toolchain default lost: %+v", cfg.Settings.Toolchain)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), ".versions.toml"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestLoadMalformed(t *testing.T) {
	_, err := Load(writeConfig(t, ".versions.toml", "[versions.v1\nref = 1"))
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFormatFor(t *testing.T) {
	tests := map[string]Format{
		".versions.toml":     FormatTOML,
		"versions.yml":       FormatYAML,
		"conf/VERSIONS.YAML": FormatYAML,
		"noext":              FormatTOML,
	}
	for path, want := range tests {
		if got := FormatFor(path); got != want {
			t.Errorf("FormatFor(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Versions: []Version{{Name: "v1", Ref: "tag-a"}},
			Settings: Settings{
				OutputPath:     "out",
				RepositoryURL:  "https://example.com/lib.git",
				OnBuildFailure: PolicyContinue,
				Jobs:           1,
				Toolchain:      DefaultToolchainConfig(),
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing output", mutate: func(c *Config) { c.Settings.OutputPath = "" }, wantErr: "output_path: is required"},
		{name: "missing url", mutate: func(c *Config) { c.Settings.RepositoryURL = "" }, wantErr: "repository_url: is required"},
		{name: "missing ref", mutate: func(c *Config) { c.Versions[0].Ref = "" }, wantErr: "versions.v1: ref is required"},
		{name: "separator in name", mutate: func(c *Config) { c.Versions[0].Name = "a/b" }, wantErr: "path separators"},
		{name: "dot name", mutate: func(c *Config) { c.Versions[0].Name = ".." }, wantErr: "not a valid directory name"},
		{name: "bad policy", mutate: func(c *Config) { c.Settings.OnBuildFailure = "retry" }, wantErr: "unknown policy"},
		{name: "zero jobs", mutate: func(c *Config) { c.Settings.Jobs = 0 }, wantErr: "jobs: must be at least 1"},
		{name: "bad timeout", mutate: func(c *Config) { c.Settings.BuildTimeout = "soon" }, wantErr: "build_timeout"},
		{name: "cwd output", mutate: func(c *Config) { c.Settings.OutputPath = "./" }, wantErr: "current directory"},
		{name: "root output", mutate: func(c *Config) { c.Settings.OutputPath = "/" }, wantErr: "filesystem root"},
		{name: "parent output", mutate: func(c *Config) { c.Settings.OutputPath = "../.." }, wantErr: "parent of the current directory"},
		{name: "empty toolchain", mutate: func(c *Config) { c.Settings.Toolchain.Kind = "" }, wantErr: "toolchain.kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			_, err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateOutputPathAroundWorkingDir(t *testing.T) {
	root := t.TempDir()
	work := filepath.Join(root, "work")
	if err := os.Mkdir(work, 0o755); err != nil {
		t.Fatal(err)
	}
	t.Chdir(work)

	tests := []struct {
		path    string
		wantErr string
	}{
		{path: work, wantErr: "current directory"},
		{path: work + "/", wantErr: "current directory"},
		{path: root, wantErr: "parent of the current directory"},
		{path: "../work", wantErr: "current directory"},
		{path: "..", wantErr: "parent of the current directory"},
		{path: filepath.Join(root, "out")},
		{path: filepath.Join(work, "out")},
		{path: "../work-out"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			errs := validateOutputPath(tt.path)
			if tt.wantErr == "" {
				if len(errs) != 0 {
					t.Fatalf("unexpected errors: %v", errs)
				}
				return
			}
			if len(errs) != 1 || !strings.Contains(errs[0], tt.wantErr) {
				t.Fatalf("errors = %v, want containing %q", errs, tt.wantErr)
			}
		})
	}
}

func TestValidateWarnsOnNoVersions(t *testing.T) {
	cfg := &Config{Settings: DefaultSettings()}
	cfg.Settings.OutputPath = "out"
	cfg.Settings.RepositoryURL = "u"

	warnings, err := Validate(cfg)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v", warnings)
	}
}

func TestSortedBySemver(t *testing.T) {
	in := []Version{
		{Name: "v1.10.0"},
		{Name: "main"},
		{Name: "v1.2.0"},
		{Name: "nightly"},
		{Name: "1.2.0-rc.1"},
	}
	got := SortedBySemver(in)

	var names []string
	for _, v := range got {
		names = append(names, v.Name)
	}
	want := []string{"1.2.0-rc.1", "v1.2.0", "v1.10.0", "main", "nightly"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}
