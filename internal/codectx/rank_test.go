package codectx

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charmbracelet/codectx/internal/config"
	"github.com/charmbracelet/codectx/internal/feature"
	"github.com/charmbracelet/codectx/internal/tokens"
	"github.com/charmbracelet/codectx/internal/vectorstore"
)

func TestAssembleCostDeclined(t *testing.T) {
	t.Parallel()

	root := initRepo(t, map[string]string{"file_1.py": file1, "file_2.py": file2})
	confirmer := &recordingConfirmer{answer: false}
	fx := newFixture(t, root, func(o *config.Options) {
		o.UseEmbeddings = true
		o.CostConfirmThreshold = 1e-12
	}, WithConfirmer(confirmer))
	_, err := fx.ctx.Include(context.Background(), "file_1.py")
	require.NoError(t, err)

	res := fx.assemble(t, "what does func_3 compute", 1_000_000)
	require.Equal(t, int32(1), confirmer.calls.Load())
	require.Zero(t, fx.embedder.calls.Load())
	require.Equal(t, map[string]feature.Level{
		"file_1.py": feature.FullCode,
		"file_2.py": feature.SymbolMapFull,
	}, levelsByPath(res.Features))
	require.True(t, containsWarning(fx.ctx.Warnings(), "Embedding cost declined"))
}

func TestAssembleCostConfirmed(t *testing.T) {
	t.Parallel()

	root := initRepo(t, map[string]string{"file_1.py": file1, "file_2.py": file2})
	confirmer := &recordingConfirmer{answer: true}
	fx := newFixture(t, root, func(o *config.Options) {
		o.UseEmbeddings = true
		o.CostConfirmThreshold = 1e-12
	}, WithConfirmer(confirmer))

	res := fx.assemble(t, "what does func_3 compute", 1_000_000)
	require.Equal(t, int32(1), confirmer.calls.Load())
	require.Equal(t, map[string]feature.Level{
		"file_1.py": feature.FullCode,
		"file_2.py": feature.FullCode,
	}, levelsByPath(res.Features))
}

func TestUpgradeGreedyContinue(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "big.py", strings.Repeat("alpha\n", 40))
	writeFile(t, root, "small.py", "alpha beta\n")
	writeFile(t, root, "other.py", "gamma\n")
	fx := newFixture(t, root, func(o *config.Options) {
		o.UseEmbeddings = true
		o.NoCodeMap = true
	})

	names := len("big.py\nother.py\nsmall.py\n")
	deltaSmall := len(renderText(t, root, "small.py", feature.FullCode)) - len("small.py\n")
	deltaBig := len(renderText(t, root, "big.py", feature.FullCode)) - len("big.py\n")
	require.Greater(t, deltaBig, deltaSmall)

	res := fx.assemble(t, "alpha", len(feature.CodeHeader)+names+deltaSmall)
	// big.py ranks first but does not fit; the walk continues to small.py.
	require.Equal(t, map[string]feature.Level{
		"big.py":   feature.FileName,
		"other.py": feature.FileName,
		"small.py": feature.FullCode,
	}, levelsByPath(res.Features))
	require.Equal(t, len(res.Text), len(feature.CodeHeader)+names+deltaSmall)

	res = fx.assemble(t, "alpha", len(feature.CodeHeader)+names+deltaBig)
	require.Equal(t, feature.FullCode, levelsByPath(res.Features)["big.py"])
}

func TestSearch(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "a.py", "alpha alpha\n")
	writeFile(t, root, "b.py", "beta\n")
	writeFile(t, root, "c.py", "gamma gamma gamma\n")
	ctx := context.Background()

	fx := newFixture(t, root, func(o *config.Options) { o.UseEmbeddings = true })
	got, err := fx.ctx.Search(ctx, "gamma", feature.FullCode, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "c.py", got[0].Feature.RelPath)
	require.Greater(t, got[0].Score, got[1].Score)
	require.NotEmpty(t, got[0].Feature.Checksum)

	all, err := fx.ctx.Search(ctx, "gamma", feature.FullCode, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)

	disabled := newFixture(t, root, nil)
	none, err := disabled.ctx.Search(ctx, "gamma", feature.FullCode, 1)
	require.NoError(t, err)
	require.Empty(t, none)
	require.True(t, containsWarning(disabled.ctx.Warnings(), "Embeddings are disabled"))
	require.Zero(t, disabled.embedder.calls.Load())
}

const smallEmbeddingCatalog = `{
  "version": 1,
  "models": [
    {"name": "gpt-4", "context_window": 8192, "input_price_per_1k": 0.03},
    {"name": "text-embedding-3-small", "context_window": 8191, "input_price_per_1k": 0.00002, "embedding_max_tokens": 40}
  ]
}`

type rankerFixture struct {
	ranker   *Ranker
	embedder *keywordEmbedder
	store    *vectorstore.Memory
	warnings []string
	root     string
}

func newRankerFixture(t *testing.T, acc *tokens.Accountant, confirmer Confirmer) *rankerFixture {
	t.Helper()
	fx := &rankerFixture{
		embedder: &keywordEmbedder{},
		store:    vectorstore.NewMemory(),
		root:     t.TempDir(),
	}
	fx.ranker = NewRanker(RankerConfig{
		Embedder:   fx.embedder,
		Store:      fx.store,
		Accountant: acc,
		Confirmer:  confirmer,
		Warn:       func(msg string, _ ...any) { fx.warnings = append(fx.warnings, msg) },
	})
	return fx
}

func (fx *rankerFixture) features(t *testing.T, files map[string]string) []feature.Feature {
	t.Helper()
	var out []feature.Feature
	for name, content := range files {
		out = append(out, feature.New(fx.root, writeFile(t, fx.root, name, content), feature.FullCode))
	}
	feature.Sort(out)
	return out
}

func TestRankerSkipsOversized(t *testing.T) {
	t.Parallel()

	catalog, err := tokens.ParseCatalog([]byte(smallEmbeddingCatalog))
	require.NoError(t, err)
	fx := newRankerFixture(t, newAccountant(t, tokens.WithCatalog(catalog)), nil)
	fs := fx.features(t, map[string]string{
		"tiny.py":  "alpha\n",
		"large.py": strings.Repeat("alpha\n", 20),
	})

	got, err := fx.ranker.Score(context.Background(), feature.NewRenderer(nil, nil), "alpha", fs)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "tiny.py", got[0].Feature.RelPath)
	require.Greater(t, got[0].Score, 0.9)
	require.Equal(t, "large.py", got[1].Feature.RelPath)
	require.Zero(t, got[1].Score)
	require.Len(t, fx.warnings, 1)
	require.Equal(t, 1, fx.store.Len("text-embedding-3-small"))
}

func TestRankerReusesStoredEmbeddings(t *testing.T) {
	t.Parallel()

	fx := newRankerFixture(t, newAccountant(t), nil)
	fs := fx.features(t, map[string]string{"a.py": "alpha\n", "b.py": "beta\n"})
	r := feature.NewRenderer(nil, nil)
	ctx := context.Background()

	first, err := fx.ranker.Score(ctx, r, "beta", fs)
	require.NoError(t, err)
	require.Equal(t, "b.py", first[0].Feature.RelPath)
	require.Equal(t, int32(3), fx.embedder.texts.Load())

	second, err := fx.ranker.Score(ctx, r, "beta", fs)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, int32(4), fx.embedder.texts.Load())
}

func TestRankerQueryIsScoped(t *testing.T) {
	t.Parallel()

	fx := newRankerFixture(t, newAccountant(t), nil)
	ctx := context.Background()
	r := feature.NewRenderer(nil, nil)

	// Embeddings from another session live in the same store.
	others := fx.features(t, map[string]string{"x.py": "gamma gamma\n"})
	_, err := fx.ranker.Score(ctx, r, "gamma", others)
	require.NoError(t, err)

	mine := fx.features(t, map[string]string{"m.py": "alpha\n"})
	got, err := fx.ranker.Score(ctx, r, "gamma", mine)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "m.py", got[0].Feature.RelPath)
}

func TestRankerNoPromptOrNil(t *testing.T) {
	t.Parallel()

	fx := newRankerFixture(t, newAccountant(t), nil)
	fs := fx.features(t, map[string]string{"a.py": "alpha\n"})

	got, err := fx.ranker.Score(context.Background(), feature.NewRenderer(nil, nil), "  ", fs)
	require.NoError(t, err)
	require.Nil(t, got)

	var nilRanker *Ranker
	got, err = nilRanker.Score(context.Background(), feature.NewRenderer(nil, nil), "alpha", fs)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestRankerDeclineWithoutConfirmer(t *testing.T) {
	t.Parallel()

	fx := newRankerFixture(t, newAccountant(t), nil)
	fx.ranker.threshold = 1e-12
	fs := fx.features(t, map[string]string{"a.py": "alpha\n", "b.py": "beta\n"})

	got, ranked, err := fx.ranker.rank(context.Background(), feature.NewRenderer(nil, nil), "alpha", fs)
	require.NoError(t, err)
	require.False(t, ranked)
	require.Len(t, got, 2)
	for _, s := range got {
		require.Zero(t, s.Score)
	}
	require.Zero(t, fx.embedder.calls.Load())
	require.Equal(t, []string{"Embedding cost declined, ranking skipped"}, fx.warnings)
}

func TestRankerUnknownEmbeddingModel(t *testing.T) {
	t.Parallel()

	catalog, err := tokens.ParseCatalog([]byte(`{"version": 1, "models": [{"name": "gpt-4", "context_window": 8192}]}`))
	require.NoError(t, err)
	fx := newRankerFixture(t, newAccountant(t, tokens.WithCatalog(catalog)), nil)
	fs := fx.features(t, map[string]string{"a.py": "alpha\n"})

	_, err = fx.ranker.Score(context.Background(), feature.NewRenderer(nil, nil), "alpha", fs)
	require.ErrorIs(t, err, tokens.ErrUnknownModel)
}
