package codectx

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	"github.com/charmbracelet/codectx/internal/config"
	"github.com/charmbracelet/codectx/internal/embeddings"
	"github.com/charmbracelet/codectx/internal/feature"
	"github.com/charmbracelet/codectx/internal/tokens"
	"github.com/charmbracelet/codectx/internal/vectorstore"
)

const testModel = "gpt-4"

const (
	file1 = "def func_1(x, y):\n    return x + y\n\ndef func_2():\n    return 3\n"
	file2 = "def func_3(a, b, c):\n    return a * b ** c\n\ndef func_4(string):\n    print(string)\n"
)

// runeCounter prices one token per rune.
type runeCounter struct{}

func (runeCounter) Count(_ context.Context, _ string, text string) (int, error) {
	return utf8.RuneCountInString(text), nil
}

func newAccountant(t *testing.T, opts ...tokens.AccountantOption) *tokens.Accountant {
	t.Helper()
	opts = append([]tokens.AccountantOption{tokens.WithCounterLoader(func(string) (tokens.TokenCounter, error) {
		return runeCounter{}, nil
	})}, opts...)
	a, err := tokens.NewAccountant(opts...)
	require.NoError(t, err)
	return a
}

var errNotPython = errors.New("not a python file")

// lineOutliner treats every "def " line of a .py file as a function that
// runs until the next one.
type lineOutliner struct{}

func (lineOutliner) Outline(_ context.Context, path string, content []byte) ([]feature.Symbol, error) {
	if filepath.Ext(path) != ".py" {
		return nil, errNotPython
	}
	lines := feature.SplitLines(string(content))
	var syms []feature.Symbol
	for i, l := range lines {
		name, ok := strings.CutPrefix(l, "def ")
		if !ok {
			continue
		}
		name, _, _ = strings.Cut(name, "(")
		if n := len(syms); n > 0 {
			syms[n-1].Lines.End = i
		}
		syms = append(syms, feature.Symbol{
			Name:      name,
			Kind:      "function",
			Lines:     feature.Span{Start: i, End: len(lines)},
			Signature: l,
		})
	}
	return syms, nil
}

var keywords = []string{"alpha", "beta", "gamma"}

// keywordEmbedder embeds text as keyword counts plus a small constant.
type keywordEmbedder struct {
	calls atomic.Int32
	texts atomic.Int32
}

func (e *keywordEmbedder) Model() string { return "text-embedding-3-small" }

func (e *keywordEmbedder) Embed(ctx context.Context, texts []string) ([]embeddings.Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.calls.Add(1)
	e.texts.Add(int32(len(texts)))
	out := make([]embeddings.Vector, len(texts))
	for i, text := range texts {
		v := make(embeddings.Vector, len(keywords)+1)
		for j, k := range keywords {
			v[j] = float32(strings.Count(text, k))
		}
		v[len(keywords)] = 0.1
		out[i] = v
	}
	return out, nil
}

type recordingConfirmer struct {
	answer bool
	calls  atomic.Int32
}

func (c *recordingConfirmer) ConfirmCost(context.Context, float64, int) (bool, error) {
	c.calls.Add(1)
	return c.answer, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// initRepo writes files into a new repository and commits them.
func initRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	for name, content := range files {
		writeFile(t, dir, name, content)
		_, err := wt.Add(name)
		require.NoError(t, err)
	}
	_, err = wt.Commit("initial commit", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir
}

type fixture struct {
	ctx      *Context
	embedder *keywordEmbedder
	builds   atomic.Int32
}

// newFixture returns a Context over root with fake collaborators. mutate
// adjusts the default options before the Context is built.
func newFixture(t *testing.T, root string, mutate func(*config.Options), extra ...Option) *fixture {
	t.Helper()
	opts := config.DefaultOptions()
	if mutate != nil {
		mutate(&opts)
	}
	fx := &fixture{embedder: &keywordEmbedder{}}
	all := []Option{
		WithOptions(opts),
		WithAccountant(newAccountant(t)),
		WithOutliner(lineOutliner{}),
		WithEmbedder(fx.embedder),
		WithStore(vectorstore.NewMemory()),
	}
	c, err := New(context.Background(), root, append(all, extra...)...)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, c.Close()) })
	c.onBuild = func() { fx.builds.Add(1) }
	fx.ctx = c
	return fx
}

func (fx *fixture) assemble(t *testing.T, prompt string, ceiling int) Result {
	t.Helper()
	res, err := fx.ctx.Assemble(context.Background(), prompt, testModel, ceiling)
	require.NoError(t, err)
	return res
}

// renderText renders rel under root at level without diff annotations.
func renderText(t *testing.T, root, rel string, level feature.Level) string {
	t.Helper()
	r := feature.NewRenderer(lineOutliner{}, nil)
	text, _, err := r.Render(context.Background(), feature.New(root, filepath.Join(root, filepath.FromSlash(rel)), level))
	require.NoError(t, err)
	return text
}

func levelsByPath(fs []feature.Feature) map[string]feature.Level {
	out := make(map[string]feature.Level, len(fs))
	for _, f := range fs {
		out[f.RelPath] = f.Level
	}
	return out
}

func relPathsOf(fs []feature.Feature) []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.RelPath)
	}
	return out
}

func containsWarning(ws []string, substr string) bool {
	for _, w := range ws {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}
