package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/sofmeright/verbuild/src/gitver"
)

// Checkout moves the current branch to ref with hard-reset semantics.
// After it returns, tracked files match the revision's snapshot and
// submodules sit at their recorded commits.
//
// With Clean, untracked and ignored files left by a previous build are
// removed as well (git clean -fdx). Without it they are left in place.
func (w *Workspace) Checkout(ctx context.Context, ref string) (*gitver.Revision, error) {
	rev, err := gitver.Resolve(w.repo, ref)
	if err != nil {
		return nil, err
	}

	wt, err := w.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("opening worktree: %w", err)
	}

	// A go-git hard reset rewrites every worktree path that differs from
	// the index, untracked ones included. Limiting it to tracked paths is
	// what keeps untracked files.
	opts := &git.ResetOptions{Commit: rev.Hash, Mode: git.HardReset}
	if !w.opts.Clean {
		files, err := w.trackedPaths(rev.Hash)
		if err != nil {
			return nil, fmt.Errorf("listing tracked files at %s: %w", ref, err)
		}
		if len(files) == 0 {
			opts.Mode = git.MixedReset
		}
		opts.Files = files
	}

	if err := wt.Reset(opts); err != nil {
		return nil, fmt.Errorf("resetting to %s (%s): %w", ref, rev.SHA, err)
	}

	if err := w.updateSubmodules(ctx, wt); err != nil {
		return nil, fmt.Errorf("updating submodules at %s: %w", ref, err)
	}

	// The reset removes untracked files; Clean also drops the directories
	// they leave empty.
	if w.opts.Clean {
		if err := wt.Clean(&git.CleanOptions{Dir: true}); err != nil {
			return nil, fmt.Errorf("cleaning worktree at %s: %w", ref, err)
		}
	}

	return rev, nil
}

// trackedPaths returns every path tracked now or at commit h, including
// submodule gitlinks.
func (w *Workspace) trackedPaths(h plumbing.Hash) ([]string, error) {
	seen := make(map[string]bool)

	idx, err := w.repo.Storer.Index()
	if err != nil {
		return nil, err
	}
	for _, e := range idx.Entries {
		seen[e.Name] = true
	}

	commit, err := w.repo.CommitObject(h)
	if err != nil {
		return nil, err
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, err
	}
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if entry.Mode != filemode.Dir {
			seen[name] = true
		}
	}

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

// updateSubmodules checks every submodule out at the commit recorded in the
// current tree, initializing ones the revision adds.
func (w *Workspace) updateSubmodules(ctx context.Context, wt *git.Worktree) error {
	subs, err := wt.Submodules()
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}
	return subs.UpdateContext(ctx, &git.SubmoduleUpdateOptions{
		Init:              true,
		RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
	})
}
