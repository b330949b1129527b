// Package tokens prices text in model tokens.
package tokens

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// TokenCounter counts tokens for arbitrary text.
type TokenCounter interface {
	Count(ctx context.Context, model string, text string) (int, error)
}

// samplingMinRunes is the size above which counts are extrapolated from a
// line sample instead of tokenizing the whole text.
const samplingMinRunes = 64 * 1024

var charsPerToken = map[string]float64{
	"go":         3.2,
	"rust":       3.2,
	"c":          3.2,
	"cpp":        3.2,
	"python":     3.8,
	"ruby":       3.8,
	"java":       3.4,
	"javascript": 3.5,
	"typescript": 3.5,
	"json":       3.0,
	"yaml":       3.0,
	"html":       2.8,
	"default":    3.5,
}

var extLanguages = map[string]string{
	".go": "go", ".rs": "rust", ".c": "c", ".h": "c", ".cc": "cpp", ".cpp": "cpp",
	".py": "python", ".rb": "ruby", ".java": "java", ".js": "javascript",
	".ts": "typescript", ".json": "json", ".yaml": "yaml", ".yml": "yaml",
	".html": "html",
}

// EstimateTokens returns ceil(len(text)/ratio) using the character ratio for
// lang, or the default ratio for unknown languages.
func EstimateTokens(text, lang string) int {
	ratio := charsPerToken["default"]
	if r, ok := charsPerToken[strings.ToLower(strings.TrimSpace(lang))]; ok && r > 0 {
		ratio = r
	}
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len(text)) / ratio))
}

// LanguageForPath returns the estimator language key for a file path.
func LanguageForPath(path string) string {
	return extLanguages[strings.ToLower(filepath.Ext(path))]
}

// HeuristicCounter estimates tokens from character counts. It is used when
// no tokenizer encoding can be loaded.
type HeuristicCounter struct{}

// Count implements TokenCounter.
func (HeuristicCounter) Count(_ context.Context, _ string, text string) (int, error) {
	return EstimateTokens(text, ""), nil
}

// countWithSampling tokenizes short texts fully. Longer texts are sampled
// every Nth line (N = lines/100, min 1) and the count is extrapolated by rune
// length, rounded up.
func countWithSampling(ctx context.Context, counter TokenCounter, model, text string) (int, error) {
	runeLen := utf8.RuneCountInString(text)
	if runeLen < samplingMinRunes {
		return counter.Count(ctx, model, text)
	}

	lines := strings.SplitAfter(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	step := max(len(lines)/100, 1)
	var sample strings.Builder
	for i := 0; i < len(lines); i += step {
		sample.WriteString(lines[i])
	}
	sampleText := sample.String()
	sampleTokens, err := counter.Count(ctx, model, sampleText)
	if err != nil {
		return 0, err
	}
	sampleRuneLen := utf8.RuneCountInString(sampleText)
	if sampleRuneLen == 0 {
		return 0, nil
	}
	return int(math.Ceil(float64(sampleTokens) / float64(sampleRuneLen) * float64(runeLen))), nil
}
