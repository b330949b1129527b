// Package vcs reads diffs and ignore rules from the git repository that
// holds the context root.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aymanbagabas/go-udiff"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/charmbracelet/codectx/internal/feature"
)

// ErrNotRepository is returned when no git repository contains the path.
var ErrNotRepository = errors.New("not a git repository")

// Repo is the git repository containing a working directory.
type Repo struct {
	repo *git.Repository
	root string
}

// Open finds the repository containing path.
func Open(path string) (*Repo, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotRepository, path)
		}
		return nil, fmt.Errorf("opening repository at %s: %w", path, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("opening worktree: %w", err)
	}
	return &Repo{repo: repo, root: wt.Filesystem.Root()}, nil
}

// Root returns the worktree root.
func (r *Repo) Root() string { return r.root }

// DiffContext holds the changes between a baseline revision and the working
// tree.
type DiffContext struct {
	baseline string
	hunks    map[string][]feature.Hunk
}

// Baseline returns the revision name the diff was taken against.
func (d *DiffContext) Baseline() string {
	if d == nil {
		return ""
	}
	return d.baseline
}

// Hunks returns the changes for an absolute path, or nil.
func (d *DiffContext) Hunks(path string) []feature.Hunk {
	if d == nil {
		return nil
	}
	return d.hunks[path]
}

// Changed reports whether path differs from the baseline.
func (d *DiffContext) Changed(path string) bool {
	if d == nil {
		return false
	}
	_, ok := d.hunks[path]
	return ok
}

// ChangedPaths returns the changed absolute paths, sorted.
func (d *DiffContext) ChangedPaths() []string {
	if d == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(d.hunks))
}

// Len returns the number of changed files.
func (d *DiffContext) Len() int {
	if d == nil {
		return 0
	}
	return len(d.hunks)
}

// Diff compares the working tree against baseline, any revision git
// understands. Files deleted from disk are not reported since there is no
// feature to annotate.
func (r *Repo) Diff(ctx context.Context, baseline string) (*DiffContext, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(baseline))
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", baseline, err)
	}
	commit, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("loading commit %s: %w", hash, err)
	}
	baseTree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("loading tree of %s: %w", hash, err)
	}

	candidates, err := r.candidatePaths(baseTree)
	if err != nil {
		return nil, err
	}

	d := &DiffContext{baseline: baseline, hunks: make(map[string][]feature.Hunk)}
	for _, rel := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		abs := filepath.Join(r.root, filepath.FromSlash(rel))
		after, err := os.ReadFile(abs)
		if err != nil {
			continue
		}
		before, err := blobContents(baseTree, rel)
		if err != nil {
			return nil, err
		}
		if before == string(after) {
			continue
		}
		hunks, err := lineHunks(before, string(after))
		if err != nil {
			return nil, fmt.Errorf("diffing %s: %w", rel, err)
		}
		if len(hunks) > 0 {
			d.hunks[abs] = hunks
		}
	}
	return d, nil
}

// candidatePaths lists paths that may differ from baseTree: worktree and
// index changes plus everything changed between the baseline and HEAD.
func (r *Repo) candidatePaths(baseTree *object.Tree) ([]string, error) {
	set := make(map[string]struct{})

	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("opening worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("reading worktree status: %w", err)
	}
	for path, st := range status {
		if st.Worktree == git.Unmodified && st.Staging == git.Unmodified {
			continue
		}
		set[path] = struct{}{}
	}

	head, err := r.repo.Head()
	if err == nil {
		headCommit, err := r.repo.CommitObject(head.Hash())
		if err != nil {
			return nil, fmt.Errorf("loading HEAD commit: %w", err)
		}
		headTree, err := headCommit.Tree()
		if err != nil {
			return nil, fmt.Errorf("loading HEAD tree: %w", err)
		}
		changes, err := object.DiffTree(baseTree, headTree)
		if err != nil {
			return nil, fmt.Errorf("diffing baseline against HEAD: %w", err)
		}
		for _, ch := range changes {
			if ch.To.Name != "" {
				set[ch.To.Name] = struct{}{}
			}
		}
	} else if !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}

	return slices.Sorted(maps.Keys(set)), nil
}

func blobContents(tree *object.Tree, rel string) (string, error) {
	f, err := tree.File(rel)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("reading %s from baseline: %w", rel, err)
	}
	contents, err := f.Contents()
	if err != nil {
		return "", fmt.Errorf("reading %s from baseline: %w", rel, err)
	}
	return contents, nil
}

// lineHunks converts a line diff into hunks positioned in the after text.
func lineHunks(before, after string) ([]feature.Hunk, error) {
	edits := udiff.Lines(before, after)
	if len(edits) == 0 {
		return nil, nil
	}
	ud, err := udiff.ToUnifiedDiff("baseline", "worktree", before, edits, 0)
	if err != nil {
		return nil, err
	}

	var out []feature.Hunk
	for _, h := range ud.Hunks {
		at := h.ToLine - 1
		cur := feature.Hunk{At: at}
		flush := func() {
			if len(cur.Deleted) > 0 || cur.Inserted > 0 {
				out = append(out, cur)
			}
		}
		for _, l := range h.Lines {
			content := strings.TrimSuffix(l.Content, "\n")
			switch l.Kind {
			case udiff.Delete:
				if cur.Inserted > 0 {
					flush()
					cur = feature.Hunk{At: at}
				}
				cur.Deleted = append(cur.Deleted, content)
			case udiff.Insert:
				cur.Inserted++
				at++
			default:
				flush()
				at++
				cur = feature.Hunk{At: at}
			}
		}
		flush()
	}
	return out, nil
}
