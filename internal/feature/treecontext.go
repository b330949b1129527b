package feature

import (
	"slices"
	"strings"
)

// renderTreeContext emits the shown lines with a '│' prefix and collapses
// skipped stretches into '⋮'. Single-line gaps and blank lines adjacent to
// shown lines are filled in.
func renderTreeContext(lines []string, show map[int]struct{}) string {
	if len(lines) == 0 || len(show) == 0 {
		return ""
	}

	indexes := make([]int, 0, len(show))
	for idx := range show {
		if idx >= 0 && idx < len(lines) {
			indexes = append(indexes, idx)
		}
	}
	if len(indexes) == 0 {
		return ""
	}
	slices.Sort(indexes)

	closed := make(map[int]struct{}, len(indexes)*2)
	for _, idx := range indexes {
		closed[idx] = struct{}{}
	}
	for i := 1; i < len(indexes); i++ {
		if indexes[i]-indexes[i-1] == 2 {
			closed[indexes[i-1]+1] = struct{}{}
		}
	}

	for added := true; added; {
		added = false
		for idx := range closed {
			for _, n := range []int{idx - 1, idx + 1} {
				if n < 0 || n >= len(lines) {
					continue
				}
				if _, ok := closed[n]; !ok && strings.TrimSpace(lines[n]) == "" {
					closed[n] = struct{}{}
					added = true
				}
			}
		}
	}

	final := make([]int, 0, len(closed))
	for idx := range closed {
		final = append(final, idx)
	}
	slices.Sort(final)

	var b strings.Builder
	if final[0] > 0 {
		b.WriteString("⋮\n")
	}
	last := -1
	for _, idx := range final {
		if last >= 0 && idx-last > 1 {
			b.WriteString("⋮\n")
		}
		b.WriteString("│")
		b.WriteString(lines[idx])
		b.WriteByte('\n')
		last = idx
	}
	if last < len(lines)-1 {
		b.WriteString("⋮\n")
	}
	return b.String()
}
