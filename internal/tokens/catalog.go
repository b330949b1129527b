package tokens

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

//go:embed models.v1.json
var defaultCatalogJSON []byte

// ErrUnknownModel is returned when a model is not in the catalog.
var ErrUnknownModel = errors.New("unknown model")

// ErrNoPricing is returned when a catalog entry has no input price.
var ErrNoPricing = errors.New("no pricing for model")

// Model describes one catalog entry.
type Model struct {
	Name               string  `json:"name"`
	Encoding           string  `json:"encoding"`
	ContextWindow      int     `json:"context_window"`
	InputPricePer1K    float64 `json:"input_price_per_1k,omitempty"`
	EmbeddingMaxTokens int     `json:"embedding_max_tokens,omitempty"`
	Dimensions         int     `json:"dimensions,omitempty"`
}

// IsEmbedding reports whether the model produces embeddings.
func (m Model) IsEmbedding() bool { return m.EmbeddingMaxTokens > 0 }

type catalogFile struct {
	Version int     `json:"version"`
	Models  []Model `json:"models"`
}

// Catalog maps model names to tokenizer and pricing metadata.
type Catalog struct {
	models map[string]Model
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogJSON)
	if err != nil {
		panic(fmt.Sprintf("embedded model catalog: %v", err))
	}
	return c
}

// ParseCatalog reads a catalog from JSON.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse model catalog: %w", err)
	}
	c := &Catalog{models: make(map[string]Model, len(f.Models))}
	for _, m := range f.Models {
		if m.Name == "" {
			return nil, errors.New("parse model catalog: entry without name")
		}
		if m.Encoding == "" {
			m.Encoding = EncodingCL100kBase
		}
		c.models[m.Name] = m
	}
	return c, nil
}

// Lookup resolves a model by exact name, then by the longest catalog name
// that prefixes it, so dated snapshots like "gpt-4o-2024-08-06" resolve.
// Provider prefixes such as "openai/" are stripped first.
func (c *Catalog) Lookup(model string) (Model, error) {
	name := model
	if _, after, ok := strings.Cut(model, "/"); ok {
		name = after
	}
	if m, ok := c.models[name]; ok {
		return m, nil
	}
	var best Model
	for key, m := range c.models {
		if strings.HasPrefix(name, key) && len(key) > len(best.Name) {
			best = m
		}
	}
	if best.Name != "" {
		return best, nil
	}
	return Model{}, fmt.Errorf("%w: %q", ErrUnknownModel, model)
}

// MaxContextTokens returns the model's context window.
func (c *Catalog) MaxContextTokens(model string) (int, error) {
	m, err := c.Lookup(model)
	if err != nil {
		return 0, err
	}
	return m.ContextWindow, nil
}

// PricePer1K returns the input price per 1000 tokens in dollars.
func (c *Catalog) PricePer1K(model string) (float64, error) {
	m, err := c.Lookup(model)
	if err != nil {
		return 0, err
	}
	if m.InputPricePer1K <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrNoPricing, model)
	}
	return m.InputPricePer1K, nil
}
