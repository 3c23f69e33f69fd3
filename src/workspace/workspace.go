// Package workspace owns the filesystem side of a run: the output directory
// that is wiped at start, and the temporary clone the versions are built
// from.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/otiai10/copy"

	"github.com/sofmeright/verbuild/src/gitver"
)

// Options controls how a workspace is created and released.
type Options struct {
	// Progress receives clone progress. Nil discards it.
	Progress io.Writer

	// Clean removes untracked files after each checkout.
	Clean bool

	// Keep leaves the temporary directory in place on Close.
	Keep bool

	// TempRoot is the parent of the temporary directory. Empty uses os.TempDir.
	TempRoot string
}

// Workspace is a working copy of the source repository in a directory owned
// by this process.
type Workspace struct {
	Dir string

	repo *git.Repository
	opts Options
}

// PrepareOutput makes path an empty directory. An existing path is removed
// recursively first; its parent must exist.
func PrepareOutput(path string) error {
	_, err := os.Lstat(path)
	switch {
	case err == nil:
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("removing %s: %w", path, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("checking %s: %w", path, err)
	}

	if err := os.Mkdir(path, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	return nil
}

// Clone creates a process-unique temporary directory and clones url into it
// with full history, all tags and submodules resolved recursively.
func Clone(ctx context.Context, url string, opts Options) (*Workspace, error) {
	dir, err := os.MkdirTemp(opts.TempRoot, tempPattern(gitver.RepoName(url)))
	if err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}

	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:               url,
		RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
		Tags:              git.AllTags,
		Progress:          opts.Progress,
	})
	if err != nil {
		if !opts.Keep {
			_ = os.RemoveAll(dir)
		}
		return nil, fmt.Errorf("cloning %s: %w", url, err)
	}

	return &Workspace{Dir: dir, repo: repo, opts: opts}, nil
}

// Open wraps an existing working copy. The directory is removed on Close
// unless opts.Keep is set.
func Open(dir string, opts Options) (*Workspace, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", dir, err)
	}
	return &Workspace{Dir: dir, repo: repo, opts: opts}, nil
}

// Repository returns the underlying go-git repository.
func (w *Workspace) Repository() *git.Repository {
	return w.repo
}

// Kept reports whether Close leaves the directory in place.
func (w *Workspace) Kept() bool {
	return w.opts.Keep
}

// Isolate copies the working copy into a new temporary directory so that a
// version can be checked out without touching w. The copy inherits Clean
// and TempRoot; it is always removed on Close, even when w is kept.
func (w *Workspace) Isolate(name string) (*Workspace, error) {
	dir, err := os.MkdirTemp(w.opts.TempRoot, tempPattern(name))
	if err != nil {
		return nil, fmt.Errorf("creating workspace for %s: %w", name, err)
	}

	if err := copy.Copy(w.Dir, dir); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("copying workspace for %s: %w", name, err)
	}

	iso, err := Open(dir, Options{Clean: w.opts.Clean, TempRoot: w.opts.TempRoot})
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	return iso, nil
}

// Close removes the temporary directory unless the workspace is kept.
func (w *Workspace) Close() error {
	if w == nil || w.opts.Keep {
		return nil
	}
	if err := os.RemoveAll(w.Dir); err != nil {
		return fmt.Errorf("removing workspace %s: %w", w.Dir, err)
	}
	return nil
}

// tempPattern builds an os.MkdirTemp pattern that is safe for any name.
func tempPattern(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" {
		return "verbuild-*"
	}
	return "verbuild-" + name + "-*"
}
