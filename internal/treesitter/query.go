package treesitter

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/charmbracelet/codectx/internal/feature"
)

const (
	nameCapturePrefix = "name.definition."
	defCapturePrefix  = "definition."
)

type compiledQuery struct {
	query    *tree_sitter.Query
	captures []string
}

// QueryLoader compiles tags queries once per grammar.
type QueryLoader struct {
	mu      sync.RWMutex
	queries map[string]*compiledQuery
}

// NewQueryLoader returns an empty loader.
func NewQueryLoader() *QueryLoader {
	return &QueryLoader{queries: make(map[string]*compiledQuery)}
}

func (q *QueryLoader) load(lang string, language *tree_sitter.Language) (*compiledQuery, error) {
	q.mu.RLock()
	cached := q.queries[lang]
	q.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	key := QueryKey(lang)
	src, err := LoadTagsQuery(key)
	if err != nil {
		return nil, fmt.Errorf("load tags query %q: %w", key, err)
	}
	query, qErr := tree_sitter.NewQuery(language, string(src))
	if qErr != nil {
		return nil, fmt.Errorf("compile tags query %q for %s: %w", key, lang, qErr)
	}
	compiled := &compiledQuery{query: query, captures: query.CaptureNames()}

	q.mu.Lock()
	defer q.mu.Unlock()
	if cached := q.queries[lang]; cached != nil {
		query.Close()
		return cached, nil
	}
	q.queries[lang] = compiled
	return compiled, nil
}

// Close releases the compiled queries.
func (q *QueryLoader) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, cq := range q.queries {
		cq.query.Close()
	}
	q.queries = make(map[string]*compiledQuery)
	return nil
}

// symbols runs the query over root. Each match yields one symbol named by
// its @name.definition.<kind> capture and spanning its @definition.<kind>
// node, or the name node when the pattern has no definition capture.
func (cq *compiledQuery) symbols(root *tree_sitter.Node, content []byte) []feature.Symbol {
	cursor := tree_sitter.NewQueryCursor()
	defer cursor.Close()

	var out []feature.Symbol
	matches := cursor.Matches(cq.query, root, content)
	for m := matches.Next(); m != nil; m = matches.Next() {
		if !m.SatisfiesTextPredicate(cq.query, nil, nil, content) {
			continue
		}
		var (
			sym     feature.Symbol
			defNode *tree_sitter.Node
			found   bool
		)
		for i := range m.Captures {
			c := &m.Captures[i]
			if int(c.Index) >= len(cq.captures) {
				continue
			}
			name := cq.captures[c.Index]
			if kind, ok := strings.CutPrefix(name, nameCapturePrefix); ok && kind != "" {
				sym.Name = strings.TrimSpace(c.Node.Utf8Text(content))
				sym.Kind = kind
				sym.Lines = nodeSpan(&c.Node)
				found = true
			} else if strings.HasPrefix(name, defCapturePrefix) {
				defNode = &c.Node
			}
		}
		if !found || sym.Name == "" {
			continue
		}
		if defNode != nil {
			sym.Lines = nodeSpan(defNode)
		}
		sym.Signature = firstLine(content, defNode)
		out = append(out, sym)
	}

	slices.SortFunc(out, func(a, b feature.Symbol) int {
		return cmp.Or(
			cmp.Compare(a.Lines.Start, b.Lines.Start),
			cmp.Compare(a.Name, b.Name),
			cmp.Compare(a.Kind, b.Kind),
		)
	})
	return slices.CompactFunc(out, func(a, b feature.Symbol) bool {
		return a.Name == b.Name && a.Kind == b.Kind && a.Lines == b.Lines
	})
}

// nodeSpan converts a node to a half-open line span.
func nodeSpan(n *tree_sitter.Node) feature.Span {
	start := n.StartPosition()
	end := n.EndPosition()
	last := int(end.Row) + 1
	if end.Column == 0 && end.Row > start.Row {
		last = int(end.Row)
	}
	return feature.Span{Start: int(start.Row), End: last}
}

func firstLine(content []byte, n *tree_sitter.Node) string {
	if n == nil {
		return ""
	}
	text := string(content[n.StartByte():n.EndByte()])
	line, _, _ := strings.Cut(text, "\n")
	return strings.TrimSpace(line)
}
