package vectorstore

import (
	"context"
	"sync"

	"github.com/charmbracelet/codectx/internal/embeddings"
)

// Memory is an in-process store, used for tests and when persistence is
// disabled.
type Memory struct {
	mu      sync.RWMutex
	records map[string]map[string]embeddings.Vector // model -> key -> vector
	closed  bool
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]map[string]embeddings.Vector)}
}

func (m *Memory) Missing(_ context.Context, model string, keys []string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var out []string
	for _, k := range keys {
		if _, ok := m.records[model][k]; !ok {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *Memory) Upsert(_ context.Context, model string, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	byKey, ok := m.records[model]
	if !ok {
		byKey = make(map[string]embeddings.Vector, len(records))
		m.records[model] = byKey
	}
	for _, r := range records {
		byKey[r.Key] = append(embeddings.Vector(nil), r.Vector...)
	}
	return nil
}

func (m *Memory) Query(ctx context.Context, model string, vec embeddings.Vector, restrict []string, k int) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	byKey := m.records[model]
	var out []Match
	score := func(key string, v embeddings.Vector) {
		if len(v) == len(vec) {
			out = append(out, Match{Key: key, Score: embeddings.Cosine(vec, v)})
		}
	}
	if restrict == nil {
		for key, v := range byKey {
			score(key, v)
		}
	} else {
		seen := make(map[string]struct{}, len(restrict))
		for _, key := range restrict {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if v, ok := byKey[key]; ok {
				score(key, v)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rank(out, k), nil
}

// Len returns the number of records for model.
func (m *Memory) Len(model string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records[model])
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
