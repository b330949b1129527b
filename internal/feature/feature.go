// Package feature describes renderable units of repository context and how
// they turn into text.
package feature

import (
	"cmp"
	"encoding/hex"
	"path/filepath"
	"slices"

	"github.com/zeebo/xxh3"
)

// Feature is one renderable unit of context. Values are immutable once built;
// the With* helpers return modified copies.
type Feature struct {
	// Path is the absolute file path.
	Path string
	// RelPath is Path relative to the context root, slash separated.
	RelPath string
	Level   Level
	// Interval is set for Interval-level features and pinned ranges.
	Interval *Span
	// DiffRef names the diff baseline whose hunks annotate this feature.
	DiffRef string
	// UserIncluded marks features pinned by the user.
	UserIncluded bool
	// Checksum hashes the rendered text. Empty until rendered.
	Checksum string
}

// New returns a whole-file feature for path under root.
func New(root, path string, level Level) Feature {
	return Feature{Path: path, RelPath: relPath(root, path), Level: level}
}

// NewInterval returns an interval feature for path under root.
func NewInterval(root, path string, span Span) Feature {
	sp := span
	return Feature{Path: path, RelPath: relPath(root, path), Level: Interval, Interval: &sp}
}

func relPath(root, path string) string {
	if root == "" {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// WithLevel returns a copy rendered at l. The interval is kept only for
// Interval level and the checksum is cleared.
func (f Feature) WithLevel(l Level) Feature {
	f.Level = l
	if l != Interval {
		f.Interval = nil
	}
	f.Checksum = ""
	return f
}

// Key identifies the feature within an assembly: one per path, or one per
// path and range for intervals.
func (f Feature) Key() string {
	if f.Interval != nil {
		return f.Path + ":" + f.Interval.String()
	}
	return f.Path
}

func (f Feature) String() string {
	if f.Interval != nil {
		return f.RelPath + ":" + f.Interval.String() + " (" + f.Level.String() + ")"
	}
	return f.RelPath + " (" + f.Level.String() + ")"
}

// Checksum returns the hex xxh3-128 digest of text.
func Checksum(text string) string {
	sum := xxh3.HashString128(text).Bytes()
	return hex.EncodeToString(sum[:])
}

// Sort orders features by relative path, then interval start.
func Sort(fs []Feature) {
	slices.SortStableFunc(fs, func(a, b Feature) int {
		if c := cmp.Compare(a.RelPath, b.RelPath); c != 0 {
			return c
		}
		return cmp.Compare(startOf(a), startOf(b))
	})
}

func startOf(f Feature) int {
	if f.Interval == nil {
		return -1
	}
	return f.Interval.Start
}

// Symbol is one outline entry. Lines form a zero-based half-open span.
type Symbol struct {
	Name      string
	Kind      string
	Lines     Span
	Signature string
}

// Hunk is one change against the diff baseline, positioned in the current
// file. Deleted lines are rendered before line At; Inserted counts the current
// lines starting at At that were added.
type Hunk struct {
	At       int
	Deleted  []string
	Inserted int
}

// Span returns the current-file lines the hunk touches. Pure deletions touch
// the line they precede.
func (h Hunk) Span() Span {
	if h.Inserted == 0 {
		return Span{Start: h.At, End: h.At + 1}
	}
	return Span{Start: h.At, End: h.At + h.Inserted}
}
