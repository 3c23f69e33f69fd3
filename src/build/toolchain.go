package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/sofmeright/verbuild/src/config"
	"github.com/sofmeright/verbuild/src/gitver"
)

// waitDelay bounds how long Publish waits for output pipes after the
// toolchain exits; build servers spawned by the toolchain can inherit them.
const waitDelay = 10 * time.Second

func init() {
	Register("dotnet", newDotnet)
	Register("command", newCommand)
}

// PublishResult is what the toolchain process left behind.
type PublishResult struct {
	Args     []string
	ExitCode int // -1 if the process never ran or was killed
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// Exec runs a toolchain as a subprocess. Output is captured; Stream, when
// set, also receives it as it is written.
type Exec struct {
	Kind   string
	Argv   []string // templated, see gitver.ResolveTemplate
	Vars   map[string]string
	Env    []string
	Stream io.Writer
}

// newDotnet returns `dotnet publish <project> -c <configuration> -o <output>`.
func newDotnet(cfg config.ToolchainConfig) (Toolchain, error) {
	def := config.DefaultToolchainConfig()
	bin := cfg.Binary
	if bin == "" {
		bin = def.Binary
	}
	if cfg.Project == "" {
		return nil, fmt.Errorf("build: toolchain dotnet requires project")
	}
	configuration := cfg.Configuration
	if configuration == "" {
		configuration = def.Configuration
	}

	return &Exec{
		Kind: "dotnet",
		Argv: []string{bin, "publish", "{project}", "-c", "{configuration}", "-o", "{output}"},
		Vars: map[string]string{"project": cfg.Project, "configuration": configuration},
		Env:  envList(cfg.Env),
	}, nil
}

// newCommand returns an arbitrary argv toolchain.
func newCommand(cfg config.ToolchainConfig) (Toolchain, error) {
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return nil, fmt.Errorf("build: toolchain command requires command")
	}
	return &Exec{
		Kind: "command",
		Argv: append([]string(nil), cfg.Command...),
		Vars: map[string]string{"project": cfg.Project, "configuration": cfg.Configuration},
		Env:  envList(cfg.Env),
	}, nil
}

// Name implements Toolchain.
func (e *Exec) Name() string { return e.Kind }

// Args implements Toolchain.
func (e *Exec) Args(req PublishRequest) []string {
	vars := make(map[string]string, len(e.Vars)+3)
	for k, v := range e.Vars {
		vars[k] = v
	}
	vars["output"] = req.Output
	vars["version"] = req.Version
	vars["ref"] = req.Ref
	return gitver.ResolveArgs(e.Argv, vars, req.Revision)
}

// Publish runs the toolchain in req.Dir. A non-zero exit is returned as an
// error together with the captured result.
func (e *Exec) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	args := e.Args(req)
	result := &PublishResult{Args: args, ExitCode: -1}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = req.Dir
	cmd.WaitDelay = waitDelay
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if e.Stream != nil {
		cmd.Stdout = io.MultiWriter(&stdout, e.Stream)
		cmd.Stderr = io.MultiWriter(&stderr, e.Stream)
	}
	if len(e.Env) > 0 {
		cmd.Env = append(os.Environ(), e.Env...)
	}

	start := time.Now()
	err := cmd.Run()
	result.Duration = time.Since(start)
	result.Stdout = stdout.Bytes()
	result.Stderr = stderr.Bytes()
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if errors.Is(err, exec.ErrWaitDelay) && result.ExitCode == 0 {
		err = nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, fmt.Errorf("%s: %w", e.Kind, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return result, fmt.Errorf("%s exited with status %d", e.Kind, result.ExitCode)
		}
		return result, fmt.Errorf("%s failed: %w", e.Kind, err)
	}
	return result, nil
}

// WithStream returns a copy of e that tees output to w.
func (e *Exec) WithStream(w io.Writer) *Exec {
	cp := *e
	cp.Stream = w
	return &cp
}

func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
