package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/charmbracelet/codectx/internal/embeddings"
)

// Bolt stores embeddings in a bbolt file, one bucket per model.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens or creates the store at path.
func OpenBolt(path string) (*Bolt, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt vector store: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt store: %w", err)
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Missing(_ context.Context, model string, keys []string) ([]string, error) {
	var out []string
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(model))
		for _, k := range keys {
			if bucket == nil || bucket.Get([]byte(k)) == nil {
				out = append(out, k)
			}
		}
		return nil
	})
	if err != nil {
		return nil, mapBoltErr(err)
	}
	return out, nil
}

func (b *Bolt) Upsert(_ context.Context, model string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(model))
		if err != nil {
			return err
		}
		for _, r := range records {
			if err := bucket.Put([]byte(r.Key), r.Vector.Bytes()); err != nil {
				return fmt.Errorf("storing embedding %s: %w", r.Key, err)
			}
		}
		return nil
	})
	return mapBoltErr(err)
}

func (b *Bolt) Query(ctx context.Context, model string, vec embeddings.Vector, restrict []string, k int) ([]Match, error) {
	var out []Match
	score := func(key string, raw []byte) error {
		v, err := embeddings.DecodeVector(raw)
		if err != nil {
			return fmt.Errorf("decoding %s: %w", key, err)
		}
		if len(v) == len(vec) {
			out = append(out, Match{Key: key, Score: embeddings.Cosine(vec, v)})
		}
		return nil
	}
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(model))
		if bucket == nil {
			return nil
		}
		if restrict == nil {
			return bucket.ForEach(func(k, v []byte) error {
				if err := ctx.Err(); err != nil {
					return err
				}
				return score(string(k), v)
			})
		}
		for _, key := range dedupe(restrict) {
			if raw := bucket.Get([]byte(key)); raw != nil {
				if err := score(key, raw); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, mapBoltErr(err)
	}
	return rank(out, k), nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

func mapBoltErr(err error) error {
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	return err
}
