package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/charmbracelet/codectx/internal/embeddings"
)

const (
	redisKeyPrefix = "codectx:emb:"
	redisChunk     = 500
)

// Redis stores embeddings as binary strings under
// "codectx:emb:<model>:<key>". Similarity is computed client side.
type Redis struct {
	client *redis.Client
}

// OpenRedis connects to url (redis://host:port/db) and verifies the
// connection.
func OpenRedis(ctx context.Context, url string) (*Redis, error) {
	if url == "" {
		url = "redis://localhost:6379/0"
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	opts.MaxRetries = 3
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &Redis{client: client}, nil
}

func redisKey(model, key string) string {
	return redisKeyPrefix + model + ":" + key
}

// fetch returns the stored blobs for keys; absent keys map to nil.
func (r *Redis) fetch(ctx context.Context, model string, keys []string) ([][]byte, error) {
	out := make([][]byte, 0, len(keys))
	for _, chunk := range chunks(keys, redisChunk) {
		full := make([]string, len(chunk))
		for i, k := range chunk {
			full[i] = redisKey(model, k)
		}
		vals, err := r.client.MGet(ctx, full...).Result()
		if err != nil {
			return nil, mapRedisErr(err)
		}
		for _, v := range vals {
			s, ok := v.(string)
			if !ok {
				out = append(out, nil)
				continue
			}
			out = append(out, []byte(s))
		}
	}
	return out, nil
}

func (r *Redis) Missing(ctx context.Context, model string, keys []string) ([]string, error) {
	vals, err := r.fetch(ctx, model, keys)
	if err != nil {
		return nil, err
	}
	var out []string
	for i, v := range vals {
		if v == nil {
			out = append(out, keys[i])
		}
	}
	return out, nil
}

func (r *Redis) Upsert(ctx context.Context, model string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, rec := range records {
			pipe.Set(ctx, redisKey(model, rec.Key), rec.Vector.Bytes(), 0)
		}
		return nil
	})
	return mapRedisErr(err)
}

func (r *Redis) Query(ctx context.Context, model string, vec embeddings.Vector, restrict []string, k int) ([]Match, error) {
	keys := restrict
	if keys == nil {
		var err error
		keys, err = r.scanKeys(ctx, model)
		if err != nil {
			return nil, err
		}
	} else {
		keys = dedupe(keys)
	}
	vals, err := r.fetch(ctx, model, keys)
	if err != nil {
		return nil, err
	}
	var out []Match
	for i, raw := range vals {
		if raw == nil {
			continue
		}
		v, err := embeddings.DecodeVector(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", keys[i], err)
		}
		if len(v) == len(vec) {
			out = append(out, Match{Key: keys[i], Score: embeddings.Cosine(vec, v)})
		}
	}
	return rank(out, k), nil
}

func (r *Redis) scanKeys(ctx context.Context, model string) ([]string, error) {
	prefix := redisKeyPrefix + model + ":"
	var keys []string
	iter := r.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[len(prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, mapRedisErr(err)
	}
	return keys, nil
}

func (r *Redis) Close() error {
	return mapRedisErr(r.client.Close())
}

func mapRedisErr(err error) error {
	if errors.Is(err, redis.ErrClosed) {
		return ErrClosed
	}
	return err
}
