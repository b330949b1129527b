package codectx

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/charmbracelet/codectx/internal/embeddings"
	"github.com/charmbracelet/codectx/internal/feature"
	"github.com/charmbracelet/codectx/internal/tokens"
	"github.com/charmbracelet/codectx/internal/vectorstore"
)

// DefaultCostThreshold is the estimated embedding spend, in dollars, above
// which the Confirmer is consulted.
const DefaultCostThreshold = 1.0

// Confirmer approves paid embedding runs.
type Confirmer interface {
	ConfirmCost(ctx context.Context, dollars float64, texts int) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, dollars float64, texts int) (bool, error)

// ConfirmCost implements Confirmer.
func (f ConfirmFunc) ConfirmCost(ctx context.Context, dollars float64, texts int) (bool, error) {
	return f(ctx, dollars, texts)
}

// Scored is a feature with its similarity to a prompt.
type Scored struct {
	Feature feature.Feature
	Score   float64
}

// RankerConfig wires a Ranker.
type RankerConfig struct {
	Embedder   embeddings.Embedder
	Store      vectorstore.Store
	Accountant *tokens.Accountant
	Confirmer  Confirmer
	// Threshold defaults to DefaultCostThreshold.
	Threshold float64
	// BatchSize defaults to embeddings.DefaultBatchSize.
	BatchSize int
	// Warn receives user-facing warnings. Defaults to slog.Warn.
	Warn func(msg string, args ...any)
}

// Ranker scores features against a prompt by embedding similarity. Vectors
// are stored by rendered-text checksum and reused across sessions.
type Ranker struct {
	embedder   embeddings.Embedder
	store      vectorstore.Store
	accountant *tokens.Accountant
	confirmer  Confirmer
	threshold  float64
	batch      embeddings.BatchOptions
	warn       func(msg string, args ...any)
}

// NewRanker returns a Ranker for cfg.
func NewRanker(cfg RankerConfig) *Ranker {
	rk := &Ranker{
		embedder:   cfg.Embedder,
		store:      cfg.Store,
		accountant: cfg.Accountant,
		confirmer:  cfg.Confirmer,
		threshold:  cmp.Or(cfg.Threshold, DefaultCostThreshold),
		batch:      embeddings.BatchOptions{BatchSize: cmp.Or(cfg.BatchSize, embeddings.DefaultBatchSize)},
		warn:       cfg.Warn,
	}
	if rk.warn == nil {
		rk.warn = slog.Warn
	}
	return rk
}

type candidate struct {
	idx  int
	key  string
	text string
}

// Score returns every candidate with its similarity to prompt, most similar
// first. Candidates too large to embed, or empty, score zero. A declined
// cost confirmation scores everything zero without an error.
func (rk *Ranker) Score(ctx context.Context, r tokens.FeatureRenderer, prompt string, fs []feature.Feature) ([]Scored, error) {
	scored, _, err := rk.rank(ctx, r, prompt, fs)
	return scored, err
}

// rank is Score that also reports whether similarity was computed, which is
// false when the cost confirmation was declined.
func (rk *Ranker) rank(ctx context.Context, r tokens.FeatureRenderer, prompt string, fs []feature.Feature) ([]Scored, bool, error) {
	if rk == nil || strings.TrimSpace(prompt) == "" || len(fs) == 0 {
		return nil, false, nil
	}
	model := rk.embedder.Model()
	catalog := rk.accountant.Catalog()
	m, err := catalog.Lookup(model)
	if err != nil {
		return nil, false, err
	}
	price, err := catalog.PricePer1K(model)
	if err != nil {
		return nil, false, err
	}

	scored := make([]Scored, len(fs))
	tokensOf := make(map[string]int, len(fs))
	var (
		cands   []candidate
		skipped []string
	)
	for i, f := range fs {
		text, rf, err := r.Render(ctx, f)
		if err != nil {
			return nil, false, err
		}
		scored[i] = Scored{Feature: rf}
		n, err := rk.accountant.Count(ctx, model, text)
		if err != nil {
			return nil, false, err
		}
		if n == 0 || (m.EmbeddingMaxTokens > 0 && n > m.EmbeddingMaxTokens) {
			skipped = append(skipped, f.RelPath)
			continue
		}
		cands = append(cands, candidate{idx: i, key: rf.Checksum, text: text})
		tokensOf[rf.Checksum] = n
	}
	if len(skipped) > 0 {
		rk.warn("Some features could not be embedded and score zero", "count", len(skipped), "paths", strings.Join(skipped, ", "))
	}
	if len(cands) == 0 {
		return sortScored(scored), true, nil
	}

	keys := make([]string, 0, len(cands))
	textOf := make(map[string]string, len(cands))
	for _, c := range cands {
		if _, ok := textOf[c.key]; !ok {
			keys = append(keys, c.key)
			textOf[c.key] = c.text
		}
	}
	missing, err := rk.store.Missing(ctx, model, keys)
	if err != nil {
		return nil, false, fmt.Errorf("checking stored embeddings: %w", err)
	}

	if len(missing) > 0 {
		total := 0
		for _, k := range missing {
			total += tokensOf[k]
		}
		cost := price * float64(total) / 1000
		if cost > rk.threshold {
			ok, err := rk.confirm(ctx, cost, len(missing))
			if err != nil {
				return nil, false, err
			}
			if !ok {
				rk.warn("Embedding cost declined, ranking skipped", "cost", fmt.Sprintf("$%.2f", cost), "texts", len(missing))
				return sortScored(scored), false, nil
			}
		}
		if err := rk.embed(ctx, model, missing, textOf); err != nil {
			return nil, false, err
		}
	}

	qv, err := rk.embedder.Embed(ctx, []string{prompt})
	if err != nil {
		return nil, false, fmt.Errorf("embedding prompt: %w", err)
	}
	if len(qv) != 1 {
		return nil, false, fmt.Errorf("embedding prompt: got %d vectors", len(qv))
	}
	matches, err := rk.store.Query(ctx, model, qv[0], keys, 0)
	if err != nil {
		return nil, false, fmt.Errorf("querying embeddings: %w", err)
	}
	scoreOf := make(map[string]float64, len(matches))
	for _, mt := range matches {
		scoreOf[mt.Key] = mt.Score
	}
	for _, c := range cands {
		scored[c.idx].Score = scoreOf[c.key]
	}
	return sortScored(scored), true, nil
}

func (rk *Ranker) confirm(ctx context.Context, cost float64, texts int) (bool, error) {
	if rk.confirmer == nil {
		return false, nil
	}
	return rk.confirmer.ConfirmCost(ctx, cost, texts)
}

func (rk *Ranker) embed(ctx context.Context, model string, keys []string, textOf map[string]string) error {
	texts := make([]string, len(keys))
	for i, k := range keys {
		texts[i] = textOf[k]
	}
	vecs, err := embeddings.BatchEmbed(ctx, rk.embedder, texts, rk.batch)
	if err != nil {
		return fmt.Errorf("embedding %d texts: %w", len(texts), err)
	}
	records := make([]vectorstore.Record, len(keys))
	for i, k := range keys {
		records[i] = vectorstore.Record{Key: k, Vector: vecs[i]}
	}
	if err := rk.store.Upsert(ctx, model, records); err != nil {
		return fmt.Errorf("storing embeddings: %w", err)
	}
	slog.Debug("Embedded features", "model", model, "count", len(records))
	return nil
}

// sortScored orders by score, ties by relative path.
func sortScored(s []Scored) []Scored {
	slices.SortStableFunc(s, func(a, b Scored) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Feature.RelPath, b.Feature.RelPath)
	})
	return s
}
