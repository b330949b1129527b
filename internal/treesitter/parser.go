package treesitter

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_c "github.com/tree-sitter/tree-sitter-c/bindings/go"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_ruby "github.com/tree-sitter/tree-sitter-ruby/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/charmbracelet/codectx/internal/feature"
)

// Config tunes parser resources.
type Config struct {
	// PoolSize bounds concurrent parses. Zero means one per CPU.
	PoolSize int
	// CacheEntries bounds the outline cache. Zero uses the default.
	CacheEntries int
}

type parser struct {
	pool      *Pool
	queries   *QueryLoader
	cache     *Cache
	grammars  map[string]*tree_sitter.Language
	languages []string
}

var _ feature.Outliner = (*parser)(nil)

// NewParser returns a Parser for every manifest language that has both a
// grammar and a tags query.
func NewParser(cfg Config) (Parser, error) {
	manifest, err := LoadManifest()
	if err != nil {
		return nil, err
	}
	p := &parser{
		pool:     NewPool(cfg.PoolSize),
		queries:  NewQueryLoader(),
		cache:    NewCache(cfg.CacheEntries),
		grammars: make(map[string]*tree_sitter.Language, len(manifest.Languages)),
	}
	for _, l := range manifest.Languages {
		grammar := GrammarFor(l.Name)
		if grammar == nil {
			slog.Warn("Manifest language has no grammar", "language", l.Name)
			continue
		}
		if !HasTagsQuery(l.QueryName()) {
			slog.Warn("Manifest language has no tags query", "language", l.Name)
			continue
		}
		p.grammars[l.Name] = grammar
		p.languages = append(p.languages, l.Name)
	}
	slices.Sort(p.languages)
	return p, nil
}

// Outline returns the definitions in content, ordered by start line.
func (p *parser) Outline(ctx context.Context, path string, content []byte) ([]feature.Symbol, error) {
	lang := MapPath(path)
	grammar := p.grammars[lang]
	if grammar == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, path)
	}

	key := cacheKey(path, content)
	if syms, ok := p.cache.Get(key); ok {
		return syms, nil
	}

	cq, err := p.queries.load(lang, grammar)
	if err != nil {
		return nil, err
	}

	pp, err := p.pool.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.pool.release(pp)

	if err := pp.parser.SetLanguage(grammar); err != nil {
		return nil, fmt.Errorf("set parser language %q: %w", lang, err)
	}
	tree := pp.parser.Parse(content, nil)
	if tree == nil {
		return nil, fmt.Errorf("tree-sitter parse returned nil for %s", path)
	}
	defer tree.Close()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	syms := cq.symbols(tree.RootNode(), content)
	p.cache.Put(key, syms)
	return syms, nil
}

// Languages returns the supported grammar names, sorted.
func (p *parser) Languages() []string {
	return slices.Clone(p.languages)
}

// SupportsLanguage reports whether lang can be outlined.
func (p *parser) SupportsLanguage(lang string) bool {
	_, ok := p.grammars[lang]
	return ok
}

// Close releases parsers and compiled queries.
func (p *parser) Close() error {
	if err := p.pool.Close(); err != nil {
		return err
	}
	return p.queries.Close()
}

// GrammarFor returns the compiled-in grammar for a language name, or nil.
func GrammarFor(name string) *tree_sitter.Language {
	switch name {
	case "c":
		return tree_sitter.NewLanguage(tree_sitter_c.Language())
	case "cpp":
		return tree_sitter.NewLanguage(tree_sitter_cpp.Language())
	case "go":
		return tree_sitter.NewLanguage(tree_sitter_go.Language())
	case "java":
		return tree_sitter.NewLanguage(tree_sitter_java.Language())
	case "javascript":
		return tree_sitter.NewLanguage(tree_sitter_javascript.Language())
	case "python":
		return tree_sitter.NewLanguage(tree_sitter_python.Language())
	case "ruby":
		return tree_sitter.NewLanguage(tree_sitter_ruby.Language())
	case "rust":
		return tree_sitter.NewLanguage(tree_sitter_rust.Language())
	case "typescript":
		return tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())
	case "tsx":
		return tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTSX())
	default:
		return nil
	}
}
