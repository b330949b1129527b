// Package embeddings turns text into vectors for relevance ranking.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize is the number of texts sent per embedding request.
const DefaultBatchSize = 1000

// ErrDimensionMismatch is returned when vectors of different lengths are
// compared or stored together.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Vector is an embedding.
type Vector []float32

// Embedder embeds a batch of texts, returning one vector per text in input
// order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([]Vector, error)
	Model() string
}

// BatchOptions controls BatchEmbed.
type BatchOptions struct {
	// BatchSize is the number of texts per request. Zero uses
	// DefaultBatchSize.
	BatchSize int
	// Concurrency bounds in-flight requests. Zero means 4.
	Concurrency int
}

// BatchEmbed splits texts into batches, submits them concurrently and
// returns the vectors in input order. The first failing batch cancels the
// rest and nothing is returned.
func BatchEmbed(ctx context.Context, e Embedder, texts []string, opts BatchOptions) ([]Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	size := opts.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	limit := opts.Concurrency
	if limit <= 0 {
		limit = 4
	}

	out := make([]Vector, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		g.Go(func() error {
			vecs, err := e.Embed(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embedding batch %d-%d: %w", start, end, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embedding batch %d-%d: got %d vectors", start, end, len(vecs))
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or the lengths differ.
func Cosine(a, b Vector) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Normalize scales v to unit length in place and returns it.
func Normalize(v Vector) Vector {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	n := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / n)
	}
	return v
}
