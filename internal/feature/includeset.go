package feature

import (
	"maps"
	"slices"
)

// IncludeSet holds the user-pinned features, keyed by absolute path. A path
// maps either to one whole-file feature or to distinct interval features.
type IncludeSet struct {
	root    string
	entries map[string]*includeEntry
}

type includeEntry struct {
	whole     *Feature
	intervals []Feature
}

// NewIncludeSet returns an empty set rooted at root.
func NewIncludeSet(root string) *IncludeSet {
	return &IncludeSet{root: root, entries: make(map[string]*includeEntry)}
}

// AddFile pins the whole file at level, replacing any pinned intervals for
// the path. It reports false when the path was already pinned whole at the
// same level.
func (s *IncludeSet) AddFile(path string, level Level) bool {
	e, ok := s.entries[path]
	if ok && e.whole != nil && e.whole.Level == level {
		return false
	}
	f := New(s.root, path, level)
	f.UserIncluded = true
	s.entries[path] = &includeEntry{whole: &f}
	return true
}

// AddInterval pins one line range of path. Duplicate ranges and ranges of a
// whole-file entry are ignored and reported as false. Overlapping but
// unequal ranges are kept as separate entries.
func (s *IncludeSet) AddInterval(path string, span Span) bool {
	e, ok := s.entries[path]
	if !ok {
		e = &includeEntry{}
		s.entries[path] = e
	}
	if e.whole != nil {
		return false
	}
	for _, f := range e.intervals {
		if *f.Interval == span {
			return false
		}
	}
	f := NewInterval(s.root, path, span)
	f.UserIncluded = true
	e.intervals = append(e.intervals, f)
	return true
}

// Remove drops every entry for path.
func (s *IncludeSet) Remove(path string) bool {
	if _, ok := s.entries[path]; !ok {
		return false
	}
	delete(s.entries, path)
	return true
}

// RemoveInterval drops the exactly matching range of path. Whole-file
// entries and other ranges are left untouched.
func (s *IncludeSet) RemoveInterval(path string, span Span) bool {
	e, ok := s.entries[path]
	if !ok {
		return false
	}
	idx := slices.IndexFunc(e.intervals, func(f Feature) bool { return *f.Interval == span })
	if idx < 0 {
		return false
	}
	e.intervals = slices.Delete(e.intervals, idx, idx+1)
	if len(e.intervals) == 0 && e.whole == nil {
		delete(s.entries, path)
	}
	return true
}

// Has reports whether path has any pinned entry.
func (s *IncludeSet) Has(path string) bool {
	_, ok := s.entries[path]
	return ok
}

// Intervals returns the pinned ranges for path in insertion order.
func (s *IncludeSet) Intervals(path string) []Span {
	e, ok := s.entries[path]
	if !ok {
		return nil
	}
	out := make([]Span, 0, len(e.intervals))
	for _, f := range e.intervals {
		out = append(out, *f.Interval)
	}
	return out
}

// Entries returns the features pinned for path.
func (s *IncludeSet) Entries(path string) []Feature {
	e, ok := s.entries[path]
	if !ok {
		return nil
	}
	if e.whole != nil {
		return []Feature{*e.whole}
	}
	return slices.Clone(e.intervals)
}

// Paths returns the pinned paths, sorted.
func (s *IncludeSet) Paths() []string {
	return slices.Sorted(maps.Keys(s.entries))
}

// Features returns every pinned feature sorted by relative path.
func (s *IncludeSet) Features() []Feature {
	out := make([]Feature, 0, len(s.entries))
	for _, p := range s.Paths() {
		out = append(out, s.Entries(p)...)
	}
	Sort(out)
	return out
}

// Len returns the number of pinned paths.
func (s *IncludeSet) Len() int {
	return len(s.entries)
}

// Identity is a stable description of the set used in cache keys.
func (s *IncludeSet) Identity() []string {
	fs := s.Features()
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.Key()+"@"+f.Level.String())
	}
	return out
}

// Clone returns an independent copy of the set.
func (s *IncludeSet) Clone() *IncludeSet {
	out := NewIncludeSet(s.root)
	for p, e := range s.entries {
		ce := &includeEntry{intervals: slices.Clone(e.intervals)}
		if e.whole != nil {
			w := *e.whole
			ce.whole = &w
		}
		out.entries[p] = ce
	}
	return out
}
