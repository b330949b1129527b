package feature

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Span is a half-open, zero-based line range [Start, End).
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ParseSpan parses "start-end".
func ParseSpan(s string) (Span, error) {
	left, right, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Span{}, fmt.Errorf("invalid line range %q", s)
	}
	start, err := strconv.Atoi(strings.TrimSpace(left))
	if err != nil {
		return Span{}, fmt.Errorf("invalid range start %q: %w", left, err)
	}
	end, err := strconv.Atoi(strings.TrimSpace(right))
	if err != nil {
		return Span{}, fmt.Errorf("invalid range end %q: %w", right, err)
	}
	sp := Span{Start: start, End: end}
	if !sp.Valid() {
		return Span{}, fmt.Errorf("invalid line range %q", s)
	}
	return sp, nil
}

// Valid reports whether the span is non-empty and non-negative.
func (s Span) Valid() bool {
	return s.Start >= 0 && s.End > s.Start
}

// Len returns the number of lines covered.
func (s Span) Len() int {
	return max(s.End-s.Start, 0)
}

// Contains reports whether line falls inside the span.
func (s Span) Contains(line int) bool {
	return line >= s.Start && line < s.End
}

// Overlaps reports whether the two spans share at least one line.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// Covers reports whether o lies entirely inside s.
func (s Span) Covers(o Span) bool {
	return o.Start >= s.Start && o.End <= s.End
}

// Clamp limits the span to [0, lines).
func (s Span) Clamp(lines int) Span {
	return Span{Start: min(max(s.Start, 0), lines), End: min(max(s.End, 0), lines)}
}

func (s Span) String() string {
	return strconv.Itoa(s.Start) + "-" + strconv.Itoa(s.End)
}

// SplitAt cuts whole into consecutive spans at the given boundaries, keeping
// every pinned span intact. Boundaries that fall strictly inside a pinned span
// are dropped, so a pinned range never straddles two output spans.
func SplitAt(whole Span, boundaries []int, pinned []Span) []Span {
	cuts := make(map[int]struct{}, len(boundaries)+2*len(pinned))
	for _, b := range boundaries {
		cuts[b] = struct{}{}
	}
	for _, p := range pinned {
		cuts[p.Start] = struct{}{}
		cuts[p.End] = struct{}{}
	}

	points := make([]int, 0, len(cuts))
	for b := range cuts {
		if b <= whole.Start || b >= whole.End {
			continue
		}
		inside := false
		for _, p := range pinned {
			if b > p.Start && b < p.End {
				inside = true
				break
			}
		}
		if !inside {
			points = append(points, b)
		}
	}
	slices.Sort(points)

	out := make([]Span, 0, len(points)+1)
	start := whole.Start
	for _, b := range points {
		out = append(out, Span{Start: start, End: b})
		start = b
	}
	out = append(out, Span{Start: start, End: whole.End})
	return out
}
