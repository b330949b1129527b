package codectx

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"

	"github.com/charmbracelet/codectx/internal/feature"
	"github.com/charmbracelet/codectx/internal/pathspec"
	"github.com/charmbracelet/codectx/internal/vcs"
)

// walk lists the text files below dir that survive gitignore rules, session
// excludes and the configured exclude globs. Paths are absolute and sorted.
func (c *Context) walk(ctx context.Context, dir string) ([]string, error) {
	excludes := c.excludePatterns()

	var (
		mu    sync.Mutex
		files = make([]string, 0, 256)
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		rel, relErr := filepath.Rel(c.root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if c.ignore.ShouldIgnore(path, true) || pathspec.MatchAny(excludes, rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if c.ignore.ShouldIgnore(path, false) || pathspec.MatchAny(excludes, rel) {
			return nil
		}
		if ok, err := pathspec.IsText(path); err != nil || !ok {
			return nil
		}
		mu.Lock()
		files = append(files, path)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}

func (c *Context) excludePatterns() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := slices.Clone(c.excludes)
	return append(out, c.opts.FileExcludeGlobs...)
}

// candidatePaths lists the enumerable paths: the walked tree, or only the
// changed files when diffing, plus every pinned path that still exists.
func (c *Context) candidatePaths(ctx context.Context, pins *feature.IncludeSet, diff *vcs.DiffContext) ([]string, error) {
	walked, err := c.walk(ctx, c.root)
	if err != nil {
		return nil, err
	}
	paths := walked
	if diff != nil {
		paths = slices.DeleteFunc(walked, func(p string) bool { return !diff.Changed(p) })
	}
	for _, p := range pins.Paths() {
		if _, err := os.Stat(p); err == nil {
			paths = append(paths, p)
		}
	}
	slices.Sort(paths)
	return slices.Compact(paths), nil
}

// enumerate returns one feature per candidate path at level. Interval level
// splits files at symbol boundaries when maps are enabled.
func (c *Context) enumerate(ctx context.Context, r *feature.Renderer, pins *feature.IncludeSet, diff *vcs.DiffContext, level feature.Level) ([]feature.Feature, error) {
	paths, err := c.candidatePaths(ctx, pins, diff)
	if err != nil {
		return nil, err
	}
	out := make([]feature.Feature, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var feats []feature.Feature
		if level == feature.Interval {
			feats = c.intervals(ctx, r, pins, p)
		} else {
			feats = []feature.Feature{feature.New(c.root, p, level)}
		}
		for i := range feats {
			feats[i].UserIncluded = pins.Has(p)
			feats[i].DiffRef = diffRef(diff, feats[i])
		}
		out = append(out, feats...)
	}
	return out, nil
}

func (c *Context) intervals(ctx context.Context, r *feature.Renderer, pins *feature.IncludeSet, path string) []feature.Feature {
	whole := []feature.Feature{feature.New(c.root, path, feature.FullCode)}
	if c.opts.NoCodeMap || c.outliner == nil {
		return whole
	}
	lines, err := r.Lines(path)
	if err != nil {
		c.warn("Reading file failed", "path", path, "err", err)
		return whole
	}
	syms, err := r.Outline(ctx, path)
	if err != nil {
		c.warn("Symbol extraction failed, using full file", "path", path, "err", err)
		return whole
	}
	bounds := make([]int, 0, 2*len(syms))
	for _, s := range syms {
		bounds = append(bounds, s.Lines.Start, s.Lines.End)
	}
	spans := feature.SplitAt(feature.Span{Start: 0, End: len(lines)}, bounds, pins.Intervals(path))
	out := make([]feature.Feature, 0, len(spans))
	for _, sp := range spans {
		if sp.Len() == 0 {
			continue
		}
		out = append(out, feature.NewInterval(c.root, path, sp))
	}
	if len(out) == 0 {
		return whole
	}
	return out
}

// diffRef returns the baseline name when f overlaps a change.
func diffRef(diff *vcs.DiffContext, f feature.Feature) string {
	if diff == nil || !diff.Changed(f.Path) {
		return ""
	}
	if f.Interval == nil {
		return diff.Baseline()
	}
	for _, h := range diff.Hunks(f.Path) {
		if h.Span().Overlaps(*f.Interval) {
			return diff.Baseline()
		}
	}
	return ""
}

// Include pins the files named by raw and returns their relative paths.
// Invalid paths and non-text files are reported as warnings, not errors.
func (c *Context) Include(ctx context.Context, raw string) ([]string, error) {
	spec, err := pathspec.Parse(c.root, raw)
	if err != nil {
		c.warn("Cannot include path", "path", raw, "err", err)
		return nil, nil
	}

	var targets []string
	switch spec.Kind {
	case pathspec.File, pathspec.FileInterval:
		if ok, err := pathspec.IsText(spec.Path); err != nil || !ok {
			c.warn("Cannot include non-text file", "path", raw, "err", errors.Join(pathspec.ErrNotText, err))
			return nil, nil
		}
		targets = []string{spec.Path}
		if spec.Kind == pathspec.FileInterval {
			if spec.Spans, err = c.spansInFile(spec.Path, raw, spec.Spans); err != nil {
				return nil, err
			}
		}
	case pathspec.Directory:
		if targets, err = c.walk(ctx, spec.Path); err != nil {
			return nil, err
		}
	case pathspec.Glob:
		all, err := c.walk(ctx, c.root)
		if err != nil {
			return nil, err
		}
		targets = slices.DeleteFunc(all, func(p string) bool { return !pathspec.MatchGlob(spec.Path, p) })
	}

	c.mu.Lock()
	var added []string
	for _, p := range targets {
		if spec.Kind != pathspec.FileInterval {
			c.includes.AddFile(p, feature.FullCode)
			added = append(added, p)
			continue
		}
		for _, sp := range spec.Spans {
			if c.includes.AddInterval(p, sp) {
				added = append(added, p)
			} else {
				c.warn("Interval already included", "path", raw, "lines", sp.String())
			}
		}
	}
	c.mu.Unlock()

	if len(added) == 0 && spec.Kind != pathspec.FileInterval {
		c.warn("No files matched", "path", raw)
	}
	return c.relPaths(added), nil
}

// spansInFile drops, with a warning, the spans that start past the last
// line of path.
func (c *Context) spansInFile(path, raw string, spans []feature.Span) ([]feature.Span, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	lines := len(feature.SplitLines(string(data)))
	return slices.DeleteFunc(spans, func(sp feature.Span) bool {
		if sp.Start < lines {
			return false
		}
		c.warn("Interval outside file", "path", raw, "lines", sp.String(), "file_lines", lines)
		return true
	}), nil
}

// Exclude unpins whatever raw names and returns the affected relative
// paths. Interval excludes only drop exactly matching ranges.
func (c *Context) Exclude(_ context.Context, raw string) ([]string, error) {
	spec, err := pathspec.Parse(c.root, raw)
	if err != nil {
		c.warn("Cannot exclude path", "path", raw, "err", err)
		return nil, nil
	}

	c.mu.Lock()
	var removed []string
	switch spec.Kind {
	case pathspec.File:
		if c.includes.Remove(spec.Path) {
			removed = append(removed, spec.Path)
		}
	case pathspec.FileInterval:
		for _, sp := range spec.Spans {
			if c.includes.RemoveInterval(spec.Path, sp) {
				removed = append(removed, spec.Path)
			}
		}
	case pathspec.Directory:
		for _, p := range c.includes.Paths() {
			if within(spec.Path, p) && c.includes.Remove(p) {
				removed = append(removed, p)
			}
		}
	case pathspec.Glob:
		for _, p := range c.includes.Paths() {
			if pathspec.MatchGlob(spec.Path, p) && c.includes.Remove(p) {
				removed = append(removed, p)
			}
		}
	}
	c.mu.Unlock()

	if len(removed) == 0 {
		c.warn("Path not in context", "path", raw)
	}
	return c.relPaths(removed), nil
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (c *Context) relPaths(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := filepath.Rel(c.root, p)
		if err != nil {
			rel = p
		}
		out = append(out, filepath.ToSlash(rel))
	}
	slices.Sort(out)
	return slices.Compact(out)
}
