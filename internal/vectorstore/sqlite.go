package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/codectx/internal/db"
	"github.com/charmbracelet/codectx/internal/embeddings"
)

// sqliteChunk keeps IN lists well under the bound-parameter limit.
const sqliteChunk = 500

// SQLite stores embeddings in a sqlite database and scores them with the
// cosine_similarity scalar function.
type SQLite struct {
	db     *sql.DB
	closed atomic.Bool
}

// OpenSQLite opens or creates the store at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite vector store: empty path")
	}
	sqlDB, err := db.Connect(ctx, path)
	if err != nil {
		return nil, err
	}
	return &SQLite{db: sqlDB}, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func (s *SQLite) Missing(ctx context.Context, model string, keys []string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	present := make(map[string]struct{}, len(keys))
	for _, chunk := range chunks(keys, sqliteChunk) {
		args := make([]any, 0, len(chunk)+1)
		args = append(args, model)
		for _, k := range chunk {
			args = append(args, k)
		}
		rows, err := s.db.QueryContext(ctx,
			"SELECT key FROM embeddings WHERE model = ? AND key IN ("+placeholders(len(chunk))+")",
			args...)
		if err != nil {
			return nil, fmt.Errorf("querying stored keys: %w", err)
		}
		for rows.Next() {
			var k string
			if err := rows.Scan(&k); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning stored key: %w", err)
			}
			present[k] = struct{}{}
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	var out []string
	for _, k := range keys {
		if _, ok := present[k]; !ok {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *SQLite) Upsert(ctx context.Context, model string, records []Record) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO embeddings (model, key, dims, vector) VALUES (?, ?, ?, ?)
		ON CONFLICT (model, key) DO UPDATE SET dims = excluded.dims, vector = excluded.vector`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, model, r.Key, len(r.Vector), r.Vector.Bytes()); err != nil {
			return fmt.Errorf("storing embedding %s: %w", r.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing upsert: %w", err)
	}
	return nil
}

func (s *SQLite) Query(ctx context.Context, model string, vec embeddings.Vector, restrict []string, k int) ([]Match, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	blob := vec.Bytes()
	base := "SELECT key, cosine_similarity(vector, ?) AS score FROM embeddings WHERE model = ? AND dims = ?"

	if restrict == nil {
		q := base + " ORDER BY score DESC, key"
		args := []any{blob, model, len(vec)}
		if k > 0 {
			q += " LIMIT ?"
			args = append(args, k)
		}
		return s.collect(ctx, q, args...)
	}

	var all []Match
	for _, chunk := range chunks(dedupe(restrict), sqliteChunk) {
		args := make([]any, 0, len(chunk)+3)
		args = append(args, blob, model, len(vec))
		for _, key := range chunk {
			args = append(args, key)
		}
		matches, err := s.collect(ctx, base+" AND key IN ("+placeholders(len(chunk))+")", args...)
		if err != nil {
			return nil, err
		}
		all = append(all, matches...)
	}
	return rank(all, k), nil
}

func (s *SQLite) collect(ctx context.Context, query string, args ...any) ([]Match, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var (
			m     Match
			score sql.NullFloat64
		)
		if err := rows.Scan(&m.Key, &score); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		if !score.Valid {
			continue
		}
		m.Score = score.Float64
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
