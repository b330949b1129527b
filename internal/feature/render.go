package feature

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

const (
	// CodeHeader opens every assembled context.
	CodeHeader = "Code Files:\n"
	// ActiveChanges names the working tree side of a diff.
	ActiveChanges = "Active Changes"
)

// ErrNoOutliner is returned when a symbol-map level is rendered without a
// symbol extractor.
var ErrNoOutliner = errors.New("no symbol extractor configured")

// Outliner extracts the symbols defined in a file.
type Outliner interface {
	Outline(ctx context.Context, path string, content []byte) ([]Symbol, error)
}

// Annotator supplies diff hunks against a named baseline.
type Annotator interface {
	Baseline() string
	Hunks(path string) []Hunk
}

// DiffHeader returns the preamble that explains diff markers.
func DiffHeader(baseline string) string {
	return "Diff References:\n" +
		`"-" = ` + baseline + "\n" +
		`"+" = ` + ActiveChanges + "\n\n"
}

// Renderer turns features into text. It memoises file contents and rendered
// blocks for its lifetime, so one Renderer should serve one assembly pass.
type Renderer struct {
	outliner Outliner
	diff     Annotator

	mu       sync.Mutex
	contents map[string][]string
	outlines map[string][]Symbol
	rendered map[string]string
}

// NewRenderer returns a renderer. Either collaborator may be nil.
func NewRenderer(outliner Outliner, diff Annotator) *Renderer {
	return &Renderer{
		outliner: outliner,
		diff:     diff,
		contents: make(map[string][]string),
		outlines: make(map[string][]Symbol),
		rendered: make(map[string]string),
	}
}

// Render returns the text for f and a copy of f carrying its checksum.
func (r *Renderer) Render(ctx context.Context, f Feature) (string, Feature, error) {
	key := f.Key() + "@" + f.Level.String() + "#" + f.DiffRef
	r.mu.Lock()
	text, ok := r.rendered[key]
	r.mu.Unlock()
	if !ok {
		var err error
		text, err = r.render(ctx, f)
		if err != nil {
			return "", f, err
		}
		r.mu.Lock()
		r.rendered[key] = text
		r.mu.Unlock()
	}
	f.Checksum = Checksum(text)
	return text, f, nil
}

// RenderAll concatenates the rendered features and returns them with
// checksums filled in.
func (r *Renderer) RenderAll(ctx context.Context, fs []Feature) (string, []Feature, error) {
	var b strings.Builder
	out := make([]Feature, 0, len(fs))
	for _, f := range fs {
		text, rf, err := r.Render(ctx, f)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(text)
		out = append(out, rf)
	}
	return b.String(), out, nil
}

// Lines returns the file split into lines, without trailing newlines.
func (r *Renderer) Lines(path string) ([]string, error) {
	r.mu.Lock()
	lines, ok := r.contents[path]
	r.mu.Unlock()
	if ok {
		return lines, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	lines = SplitLines(string(data))
	r.mu.Lock()
	r.contents[path] = lines
	r.mu.Unlock()
	return lines, nil
}

// Outline returns the symbols of path, memoised.
func (r *Renderer) Outline(ctx context.Context, path string) ([]Symbol, error) {
	if r.outliner == nil {
		return nil, ErrNoOutliner
	}
	r.mu.Lock()
	syms, ok := r.outlines[path]
	r.mu.Unlock()
	if ok {
		return syms, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	syms, err = r.outliner.Outline(ctx, path, data)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.outlines[path] = syms
	r.mu.Unlock()
	return syms, nil
}

// SplitLines splits text into lines. A trailing newline does not produce an
// extra empty line.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

func (r *Renderer) render(ctx context.Context, f Feature) (string, error) {
	switch f.Level {
	case FileName:
		return f.RelPath + "\n", nil
	case FullCode:
		lines, err := r.Lines(f.Path)
		if err != nil {
			return "", err
		}
		return r.renderCode(f, lines, Span{Start: 0, End: len(lines)}), nil
	case Interval:
		if f.Interval == nil {
			return "", fmt.Errorf("interval feature %s has no range", f.RelPath)
		}
		lines, err := r.Lines(f.Path)
		if err != nil {
			return "", err
		}
		return r.renderCode(f, lines, f.Interval.Clamp(len(lines))), nil
	case SymbolMap:
		syms, err := r.Outline(ctx, f.Path)
		if err != nil {
			return "", err
		}
		return renderSymbolMap(f, syms), nil
	case SymbolMapFull:
		syms, err := r.Outline(ctx, f.Path)
		if err != nil {
			return "", err
		}
		lines, err := r.Lines(f.Path)
		if err != nil {
			return "", err
		}
		return renderSymbolMapFull(f, syms, lines), nil
	default:
		return "", fmt.Errorf("unknown level %v", f.Level)
	}
}

func (r *Renderer) renderCode(f Feature, lines []string, span Span) string {
	var hunks []Hunk
	if f.DiffRef != "" && r.diff != nil {
		hunks = r.diff.Hunks(f.Path)
	}
	deletedAt := make(map[int][]string)
	inserted := make(map[int]struct{})
	for _, h := range hunks {
		if len(h.Deleted) > 0 {
			deletedAt[h.At] = append(deletedAt[h.At], h.Deleted...)
		}
		for i := h.At; i < h.At+h.Inserted; i++ {
			inserted[i] = struct{}{}
		}
	}

	var b strings.Builder
	b.WriteString(f.RelPath)
	b.WriteByte('\n')
	for i := span.Start; i < span.End; i++ {
		for _, d := range deletedAt[i] {
			b.WriteString("-:")
			b.WriteString(d)
			b.WriteByte('\n')
		}
		if _, ok := inserted[i]; ok {
			b.WriteByte('+')
		}
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteByte(':')
		b.WriteString(lines[i])
		b.WriteByte('\n')
	}
	if span.End == len(lines) {
		for _, d := range deletedAt[len(lines)] {
			b.WriteString("-:")
			b.WriteString(d)
			b.WriteByte('\n')
		}
	}
	b.WriteByte('\n')
	return b.String()
}

func renderSymbolMap(f Feature, syms []Symbol) string {
	var b strings.Builder
	b.WriteString(f.RelPath)
	b.WriteByte('\n')
	for _, s := range syms {
		b.WriteString("  ")
		if s.Kind != "" {
			b.WriteString(s.Kind)
			b.WriteByte(' ')
		}
		b.WriteString(s.Name)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}

func renderSymbolMapFull(f Feature, syms []Symbol, lines []string) string {
	show := make(map[int]struct{}, len(syms))
	for _, s := range syms {
		show[s.Lines.Start] = struct{}{}
	}
	var b strings.Builder
	b.WriteString(f.RelPath)
	b.WriteByte('\n')
	b.WriteString(renderTreeContext(lines, show))
	b.WriteByte('\n')
	return b.String()
}
