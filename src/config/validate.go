package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var validPolicies = map[FailurePolicy]bool{
	PolicyContinue: true,
	PolicyAbort:    true,
	PolicyFail:     true,
}

// Validate checks a loaded Config before anything touches the filesystem.
// Returns warnings (soft issues) and a hard error if the config is invalid.
func Validate(cfg *Config) (warnings []string, err error) {
	var errs []string
	s := cfg.Settings

	// ── Config ────────────────────────────────────────────────────────────

	if strings.TrimSpace(s.OutputPath) == "" {
		errs = append(errs, "config.output_path: is required")
	} else if perrs := validateOutputPath(s.OutputPath); len(perrs) > 0 {
		errs = append(errs, perrs...)
	}

	if strings.TrimSpace(s.RepositoryURL) == "" {
		errs = append(errs, "config.repository_url: is required")
	}

	if !validPolicies[s.OnBuildFailure] {
		errs = append(errs, fmt.Sprintf("config.on_build_failure: unknown policy %q (supported: continue, abort, fail)", s.OnBuildFailure))
	}

	if s.Jobs < 1 {
		errs = append(errs, fmt.Sprintf("config.jobs: must be at least 1, got %d", s.Jobs))
	}

	if _, terr := s.Timeout(); terr != nil {
		errs = append(errs, fmt.Sprintf("config.build_timeout: %v", terr))
	}

	if s.Toolchain.Kind == "" {
		errs = append(errs, "config.toolchain.kind: is required")
	}

	// ── Versions ──────────────────────────────────────────────────────────

	if len(cfg.Versions) == 0 {
		warnings = append(warnings, "versions: none configured, output_path will be left empty")
	}

	for _, v := range cfg.Versions {
		vpath := fmt.Sprintf("versions.%s", v.Name)
		if nerr := validateVersionName(v.Name); nerr != "" {
			errs = append(errs, fmt.Sprintf("%s: %s", vpath, nerr))
		}
		if strings.TrimSpace(v.Ref) == "" {
			errs = append(errs, fmt.Sprintf("%s: ref is required", vpath))
		}
	}

	if len(errs) > 0 {
		return warnings, fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return warnings, nil
}

// validateVersionName checks that name is usable as one directory component
// under output_path.
func validateVersionName(name string) string {
	switch {
	case strings.TrimSpace(name) == "":
		return "name is empty"
	case name == "." || name == "..":
		return fmt.Sprintf("name %q is not a valid directory name", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Sprintf("name %q must not contain path separators", name)
	}
	return ""
}

// validateOutputPath refuses paths whose removal would take out the working
// directory or a filesystem root. Relative paths are taken from the working
// directory, as PrepareOutput will take them.
func validateOutputPath(p string) []string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return []string{fmt.Sprintf("config.output_path: %v", err)}
	}
	abs = resolveLinks(abs)
	if abs == filepath.Dir(abs) {
		return []string{fmt.Sprintf("config.output_path: %q is a filesystem root", p)}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return []string{fmt.Sprintf("config.output_path: checking against the working directory: %v", err)}
	}
	rel, err := filepath.Rel(abs, resolveLinks(cwd))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil
	}
	if rel == "." {
		return []string{fmt.Sprintf("config.output_path: %q is the current directory", p)}
	}
	return []string{fmt.Sprintf("config.output_path: %q is a parent of the current directory", p)}
}

// resolveLinks returns p with symlinks resolved, or p itself if it does not
// exist yet.
func resolveLinks(p string) string {
	if r, err := filepath.EvalSymlinks(p); err == nil {
		return r
	}
	return p
}
