// Package testutil builds throwaway git repositories for tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Repo is a non-bare repository in a test temp dir.
type Repo struct {
	t    testing.TB
	Dir  string
	Repo *git.Repository
}

var signature = object.Signature{
	Name:  "verbuild test",
	Email: "test@verbuild.invalid",
	When:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
}

// NewRepo initializes an empty repository.
func NewRepo(t testing.TB) *Repo {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("git init: %v", err)
	}
	return &Repo{t: t, Dir: dir, Repo: repo}
}

// RequireGit skips the test when the git binary is unavailable. go-git's
// file transport shells out to git-upload-pack for local clones.
func RequireGit(t testing.TB) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH")
	}
}

// Commit writes files (path → content), stages them and commits.
func (r *Repo) Commit(msg string, files map[string]string) plumbing.Hash {
	r.t.Helper()

	wt := r.worktree()
	for name, content := range files {
		path := filepath.Join(r.Dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			r.t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			r.t.Fatalf("write %s: %v", name, err)
		}
		if _, err := wt.Add(name); err != nil {
			r.t.Fatalf("git add %s: %v", name, err)
		}
	}
	return r.commit(wt, msg)
}

// Delete removes files and commits the removal.
func (r *Repo) Delete(msg string, names ...string) plumbing.Hash {
	r.t.Helper()

	wt := r.worktree()
	for _, name := range names {
		if _, err := wt.Remove(name); err != nil {
			r.t.Fatalf("git rm %s: %v", name, err)
		}
	}
	return r.commit(wt, msg)
}

// Tag creates a lightweight tag.
func (r *Repo) Tag(name string, h plumbing.Hash) {
	r.t.Helper()
	if _, err := r.Repo.CreateTag(name, h, nil); err != nil {
		r.t.Fatalf("git tag %s: %v", name, err)
	}
}

// AnnotatedTag creates an annotated tag object.
func (r *Repo) AnnotatedTag(name string, h plumbing.Hash) {
	r.t.Helper()
	sig := signature
	if _, err := r.Repo.CreateTag(name, h, &git.CreateTagOptions{Tagger: &sig, Message: name}); err != nil {
		r.t.Fatalf("git tag -a %s: %v", name, err)
	}
}

// Branch points a local branch at h.
func (r *Repo) Branch(name string, h plumbing.Hash) {
	r.t.Helper()
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), h)
	if err := r.Repo.Storer.SetReference(ref); err != nil {
		r.t.Fatalf("git branch %s: %v", name, err)
	}
}

func (r *Repo) worktree() *git.Worktree {
	r.t.Helper()
	wt, err := r.Repo.Worktree()
	if err != nil {
		r.t.Fatalf("worktree: %v", err)
	}
	return wt
}

func (r *Repo) commit(wt *git.Worktree, msg string) plumbing.Hash {
	r.t.Helper()
	sig := signature
	h, err := wt.Commit(msg, &git.CommitOptions{Author: &sig, Committer: &sig})
	if err != nil {
		r.t.Fatalf("git commit: %v", err)
	}
	return h
}
