package feature

import (
	"fmt"
	"strings"
)

// Level is how much of a file a Feature renders.
type Level int

const (
	// FileName renders the relative path only.
	FileName Level = iota
	// SymbolMap renders the path plus one line per extracted symbol.
	SymbolMap
	// SymbolMapFull renders the path plus the definition header lines.
	SymbolMapFull
	// FullCode renders every line of the file.
	FullCode
	// Interval renders one line range at full-code detail.
	Interval
)

var levelNames = map[Level]string{
	FileName:      "file_name",
	SymbolMap:     "symbol_map",
	SymbolMapFull: "symbol_map_full",
	FullCode:      "full_code",
	Interval:      "interval",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel resolves a level by name. Dashes and case are ignored.
func ParseLevel(s string) (Level, error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for l, n := range levelNames {
		if n == name {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown detail level %q", s)
}

// IsCode reports whether the level renders source lines.
func (l Level) IsCode() bool {
	return l == FullCode || l == Interval
}

// NeedsOutline reports whether rendering requires symbol extraction.
func (l Level) NeedsOutline() bool {
	return l == SymbolMap || l == SymbolMapFull
}

// baselineLevels is searched in order by the allocator's baseline pass.
var baselineLevels = []Level{SymbolMapFull, SymbolMap, FileName}

// BaselineLevels returns the baseline search table, most detailed first.
// Symbol-map levels are left out when maps are disabled.
func BaselineLevels(mapsEnabled bool) []Level {
	out := make([]Level, 0, len(baselineLevels))
	for _, l := range baselineLevels {
		if !mapsEnabled && l.NeedsOutline() {
			continue
		}
		out = append(out, l)
	}
	return out
}
