// Package pathspec parses the path arguments accepted by include and exclude:
// files, file line ranges, directories and glob patterns.
package pathspec

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/charmbracelet/codectx/internal/feature"
)

var (
	// ErrNotExist is returned when a pathspec names nothing on disk.
	ErrNotExist = errors.New("path does not exist")
	// ErrNotText is returned for files that are not text encoded.
	ErrNotText = errors.New("file is not text encoded")
	// ErrInvalid is returned for malformed pathspecs.
	ErrInvalid = errors.New("invalid pathspec")
)

// Kind classifies a pathspec.
type Kind int

const (
	File Kind = iota
	FileInterval
	Directory
	Glob
)

func (k Kind) String() string {
	switch k {
	case File:
		return "file"
	case FileInterval:
		return "interval"
	case Directory:
		return "directory"
	case Glob:
		return "glob"
	default:
		return "unknown"
	}
}

// Spec is a parsed pathspec. Path is absolute; for globs it is the absolute
// slash-separated pattern.
type Spec struct {
	Raw   string
	Kind  Kind
	Path  string
	Spans []feature.Span
}

// Parse resolves raw against cwd and classifies it. Files and intervals are
// checked for existence; text checks are left to the caller.
func Parse(cwd, raw string) (Spec, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Spec{}, fmt.Errorf("%w: empty path", ErrInvalid)
	}
	abs := trimmed
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(cwd, abs)
	}
	abs = filepath.Clean(abs)

	if info, err := os.Stat(abs); err == nil {
		if info.IsDir() {
			return Spec{Raw: raw, Kind: Directory, Path: abs}, nil
		}
		return Spec{Raw: raw, Kind: File, Path: abs}, nil
	}

	if idx := strings.LastIndex(abs, ":"); idx > 0 {
		filePart, rangePart := abs[:idx], abs[idx+1:]
		if info, err := os.Stat(filePart); err == nil && !info.IsDir() {
			spans, err := parseSpans(rangePart)
			if err != nil {
				return Spec{}, fmt.Errorf("%w: %s: %w", ErrInvalid, raw, err)
			}
			return Spec{Raw: raw, Kind: FileInterval, Path: filePart, Spans: spans}, nil
		}
	}

	pattern := filepath.ToSlash(abs)
	if hasMeta(pattern) && doublestar.ValidatePattern(pattern) {
		return Spec{Raw: raw, Kind: Glob, Path: pattern}, nil
	}
	return Spec{}, fmt.Errorf("%w: %s", ErrNotExist, raw)
}

func parseSpans(s string) ([]feature.Span, error) {
	parts := strings.Split(s, ",")
	out := make([]feature.Span, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		sp, err := feature.ParseSpan(p)
		if err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no line ranges in %q", s)
	}
	return out, nil
}

func hasMeta(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}

// MatchGlob reports whether the absolute path matches an absolute pattern.
func MatchGlob(pattern, path string) bool {
	return doublestar.MatchUnvalidated(pattern, filepath.ToSlash(path))
}

// MatchAny reports whether rel, a slash-separated relative path, matches any
// of patterns. A pattern also matches everything below a matching
// directory, and a pattern without a slash matches any path element.
func MatchAny(patterns []string, rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, p := range patterns {
		p = strings.TrimSuffix(filepath.ToSlash(strings.TrimSpace(p)), "/")
		if p == "" {
			continue
		}
		if doublestar.MatchUnvalidated(p, rel) || doublestar.MatchUnvalidated(p+"/**", rel) {
			return true
		}
		if !strings.Contains(p, "/") {
			for _, elem := range strings.Split(rel, "/") {
				if doublestar.MatchUnvalidated(p, elem) {
					return true
				}
			}
		}
	}
	return false
}
