// Package gitver resolves revision references inside a cloned repository and
// describes the commit they point at. It is shared by the workspace (which
// resets to the resolved commit) and the build report (which shows it).
package gitver

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Revision is a ref resolved to a commit.
type Revision struct {
	Ref  string        // as configured: "v200100", "main", "0a1b2c3"
	Hash plumbing.Hash // commit the ref resolves to
	SHA  string        // short hash, 7 chars
	Tags []string      // tags pointing exactly at Hash, sorted
}

// Tag returns the first exact tag, or "".
func (r *Revision) Tag() string {
	if r == nil || len(r.Tags) == 0 {
		return ""
	}
	return r.Tags[0]
}

// String renders "sha (tag)" or "sha".
func (r *Revision) String() string {
	if r == nil {
		return ""
	}
	if t := r.Tag(); t != "" {
		return fmt.Sprintf("%s (%s)", r.SHA, t)
	}
	return r.SHA
}

// ErrUnresolved is returned when a ref names nothing in the repository.
var ErrUnresolved = errors.New("revision not found")

// Resolve looks up ref in repo. It tries the ref as given and then as a
// remote-tracking branch of origin, since a fresh clone only has the default
// branch locally.
func Resolve(repo *git.Repository, ref string) (*Revision, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, fmt.Errorf("resolving revision: empty ref: %w", ErrUnresolved)
	}

	candidates := []string{ref}
	if !strings.HasPrefix(ref, "origin/") {
		candidates = append(candidates, "origin/"+ref)
	}

	var firstErr error
	for _, c := range candidates {
		h, err := repo.ResolveRevision(plumbing.Revision(c))
		if err == nil {
			return &Revision{
				Ref:  ref,
				Hash: *h,
				SHA:  truncate(h.String(), 7),
				Tags: exactTags(repo, *h),
			}, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, fmt.Errorf("resolving %q: %w (%v)", ref, ErrUnresolved, firstErr)
}

// exactTags returns the tags whose target commit is h. Annotated tags are
// peeled to their commit.
func exactTags(repo *git.Repository, h plumbing.Hash) []string {
	iter, err := repo.Tags()
	if err != nil {
		return nil
	}
	defer iter.Close()

	var tags []string
	_ = iter.ForEach(func(ref *plumbing.Reference) error {
		target := ref.Hash()
		if obj, err := repo.TagObject(target); err == nil {
			if c, err := obj.Commit(); err == nil {
				target = c.Hash
			}
		}
		if target == h {
			tags = append(tags, ref.Name().Short())
		}
		return nil
	})
	sort.Strings(tags)
	return tags
}

// truncate returns the first n characters of s, or s if shorter.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
