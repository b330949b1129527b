// Package vectorstore persists embeddings keyed by embedding model and
// feature checksum and answers nearest-neighbour queries over them.
package vectorstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/charmbracelet/codectx/internal/embeddings"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("vector store is closed")

// Record is one stored embedding.
type Record struct {
	Key    string
	Vector embeddings.Vector
}

// Match is a query result.
type Match struct {
	Key   string
	Score float64
}

// Store is the embedding store access contract. Records are immutable once
// written and keyed by (model, key). Query scope is an argument, so
// concurrent queries never observe each other.
type Store interface {
	// Missing returns the keys, in input order, that have no record for
	// model.
	Missing(ctx context.Context, model string, keys []string) ([]string, error)
	// Upsert writes records for model, replacing existing ones.
	Upsert(ctx context.Context, model string, records []Record) error
	// Query returns up to k records most similar to vec, highest score
	// first. A nil restrict searches every record of model; a non-nil one
	// limits the search to those keys. k <= 0 returns every match.
	Query(ctx context.Context, model string, vec embeddings.Vector, restrict []string, k int) ([]Match, error)
	Close() error
}

// Backend names a store implementation.
type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendBolt   Backend = "bolt"
	BackendRedis  Backend = "redis"
	BackendMemory Backend = "memory"
)

// Config selects and configures a backend.
type Config struct {
	Backend  Backend
	Path     string
	RedisURL string
}

// Open returns the configured store. SQLite is the default backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cmp.Or(cfg.Backend, BackendSQLite) {
	case BackendSQLite:
		return OpenSQLite(ctx, cfg.Path)
	case BackendBolt:
		return OpenBolt(cfg.Path)
	case BackendRedis:
		return OpenRedis(ctx, cfg.RedisURL)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", cfg.Backend)
	}
}

// rank sorts matches by score, ties by key, and truncates to k.
func rank(matches []Match, k int) []Match {
	slices.SortFunc(matches, func(a, b Match) int {
		return cmp.Or(cmp.Compare(b.Score, a.Score), cmp.Compare(a.Key, b.Key))
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// chunks splits keys into groups of at most n.
func chunks(keys []string, n int) [][]string {
	var out [][]string
	for len(keys) > n {
		out = append(out, keys[:n])
		keys = keys[n:]
	}
	if len(keys) > 0 {
		out = append(out, keys)
	}
	return out
}
