// Package vcs reads the source revision a sweep measures.
package vcs

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// ErrNotRepository means the path is not inside a git work tree.
var ErrNotRepository = errors.New("not a git repository")

// ErrNoCommits means the repository has no HEAD commit yet.
var ErrNoCommits = errors.New("repository has no commits")

// Revision identifies the checked-out source.
type Revision struct {
	Hash   string
	Branch string
	Dirty  bool
}

// String is the hash, suffixed with "-dirty" when tracked files differ from HEAD.
func (r Revision) String() string {
	if r.Hash == "" {
		return ""
	}
	if r.Dirty {
		return r.Hash + "-dirty"
	}
	return r.Hash
}

// Detect opens the repository containing path and reads HEAD.
func Detect(path string) (Revision, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return Revision{}, ErrNotRepository
		}
		return Revision{}, fmt.Errorf("open repo: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return Revision{}, ErrNoCommits
		}
		return Revision{}, fmt.Errorf("get HEAD: %w", err)
	}

	rev := Revision{Hash: head.Hash().String()}
	if head.Name().IsBranch() {
		rev.Branch = head.Name().Short()
	}

	dirty, err := hasTrackedChanges(repo)
	if err != nil {
		return Revision{}, err
	}
	rev.Dirty = dirty
	return rev, nil
}

// hasTrackedChanges ignores untracked files; build output often lands next
// to the sources.
func hasTrackedChanges(repo *git.Repository) (bool, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("get worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("get status: %w", err)
	}
	for _, st := range status {
		if st.Worktree == git.Untracked && st.Staging == git.Untracked {
			continue
		}
		if st.Staging != git.Unmodified || st.Worktree != git.Unmodified {
			return true, nil
		}
	}
	return false, nil
}
