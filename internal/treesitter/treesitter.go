// Package treesitter extracts symbol outlines from source files using
// tree-sitter tags queries.
package treesitter

import (
	"context"
	"errors"

	"github.com/charmbracelet/codectx/internal/feature"
)

// ErrUnsupportedLanguage is returned for files whose language has no grammar
// or no tags query.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Parser produces symbol outlines. It implements feature.Outliner.
type Parser interface {
	Outline(ctx context.Context, path string, content []byte) ([]feature.Symbol, error)
	Languages() []string
	SupportsLanguage(lang string) bool
	Close() error
}
