package tokens

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/xxh3"

	"github.com/charmbracelet/codectx/internal/feature"
)

const defaultMemoSize = 8192

// FeatureRenderer renders a feature to the exact text that will be sent.
type FeatureRenderer interface {
	Render(ctx context.Context, f feature.Feature) (string, feature.Feature, error)
}

type countKey struct {
	model string
	hash  uint64
}

// Accountant prices text and features in tokens for catalog models. It is
// safe for concurrent use.
type Accountant struct {
	catalog     *Catalog
	loadCounter func(encoding string) (TokenCounter, error)

	mu       sync.Mutex
	counters map[string]TokenCounter // encoding -> counter
	memo     *lru.Cache[countKey, int]
}

// AccountantOption configures an Accountant.
type AccountantOption func(*Accountant)

// WithCatalog replaces the embedded model catalog.
func WithCatalog(c *Catalog) AccountantOption {
	return func(a *Accountant) { a.catalog = c }
}

// WithCounterLoader replaces the tiktoken loader, mainly for tests.
func WithCounterLoader(fn func(encoding string) (TokenCounter, error)) AccountantOption {
	return func(a *Accountant) { a.loadCounter = fn }
}

// NewAccountant returns an accountant over the embedded catalog using
// tiktoken encodings.
func NewAccountant(opts ...AccountantOption) (*Accountant, error) {
	a := &Accountant{
		counters: make(map[string]TokenCounter, 2),
		loadCounter: func(encoding string) (TokenCounter, error) {
			return NewTiktokenCounter(encoding)
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.catalog == nil {
		a.catalog = DefaultCatalog()
	}
	memo, err := lru.New[countKey, int](defaultMemoSize)
	if err != nil {
		return nil, fmt.Errorf("creating token memo: %w", err)
	}
	a.memo = memo
	return a, nil
}

// Catalog returns the model catalog in use.
func (a *Accountant) Catalog() *Catalog { return a.catalog }

// MaxContextTokens returns the context window of model.
func (a *Accountant) MaxContextTokens(model string) (int, error) {
	return a.catalog.MaxContextTokens(model)
}

// Count returns the token count of text under model's tokenizer.
func (a *Accountant) Count(ctx context.Context, model, text string) (int, error) {
	m, err := a.catalog.Lookup(model)
	if err != nil {
		return 0, err
	}
	if text == "" {
		return 0, nil
	}
	key := countKey{model: m.Name, hash: xxh3.HashString(text)}
	if n, ok := a.memo.Get(key); ok {
		return n, nil
	}
	n, err := countWithSampling(ctx, a.counterFor(m.Encoding), m.Name, text)
	if err != nil {
		return 0, fmt.Errorf("counting tokens for %s: %w", m.Name, err)
	}
	a.memo.Add(key, n)
	return n, nil
}

// CountFeature prices f by its full rendered text, diff annotations
// included.
func (a *Accountant) CountFeature(ctx context.Context, model string, r FeatureRenderer, f feature.Feature) (int, error) {
	text, _, err := r.Render(ctx, f)
	if err != nil {
		return 0, err
	}
	return a.Count(ctx, model, text)
}

// CountFeatures prices a batch as the sum of its members.
func (a *Accountant) CountFeatures(ctx context.Context, model string, r FeatureRenderer, fs []feature.Feature) (int, error) {
	total := 0
	for _, f := range fs {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := a.CountFeature(ctx, model, r, f)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func (a *Accountant) counterFor(encoding string) TokenCounter {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.counters[encoding]; ok {
		return c
	}
	c, err := a.loadCounter(encoding)
	if err != nil && encoding == EncodingO200kBase {
		slog.Warn("Failed to load o200k_base, falling back to cl100k_base", "err", err)
		c, err = a.loadCounter(EncodingCL100kBase)
	}
	if err != nil {
		slog.Warn("Failed to load tokenizer, estimating from characters", "encoding", encoding, "err", err)
		c = HeuristicCounter{}
	}
	a.counters[encoding] = c
	return c
}
