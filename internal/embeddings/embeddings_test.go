package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// lengthEmbedder maps each text to a 2-d vector of its length and first byte.
type lengthEmbedder struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
	failOn   string
}

func (e *lengthEmbedder) Model() string { return "fake" }

func (e *lengthEmbedder) Embed(ctx context.Context, texts []string) ([]Vector, error) {
	e.calls.Add(1)
	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		p := e.peak.Load()
		if n <= p || e.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Millisecond):
	}
	out := make([]Vector, len(texts))
	for i, t := range texts {
		if t == e.failOn {
			return nil, errors.New("boom")
		}
		out[i] = Vector{float32(len(t)), float32(t[0])}
	}
	return out, nil
}

func TestBatchEmbedKeepsOrder(t *testing.T) {
	t.Parallel()

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	e := &lengthEmbedder{}
	vecs, err := BatchEmbed(context.Background(), e, texts, BatchOptions{BatchSize: 2, Concurrency: 2})
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	for i, v := range vecs {
		require.Equal(t, float32(len(texts[i])), v[0])
		require.Equal(t, float32(texts[i][0]), v[1])
	}
	require.Equal(t, int32(3), e.calls.Load())
	require.LessOrEqual(t, e.peak.Load(), int32(2))
}

func TestBatchEmbedFailureReturnsNothing(t *testing.T) {
	t.Parallel()

	e := &lengthEmbedder{failOn: "ccc"}
	vecs, err := BatchEmbed(context.Background(), e, []string{"a", "bb", "ccc", "dddd"}, BatchOptions{BatchSize: 1})
	require.Error(t, err)
	require.Nil(t, vecs)
}

func TestBatchEmbedEmpty(t *testing.T) {
	t.Parallel()

	vecs, err := BatchEmbed(context.Background(), &lengthEmbedder{}, nil, BatchOptions{})
	require.NoError(t, err)
	require.Nil(t, vecs)
}

func TestCosine(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 1.0, Cosine(Vector{1, 2}, Vector{2, 4}), 1e-9)
	require.InDelta(t, 0.0, Cosine(Vector{1, 0}, Vector{0, 1}), 1e-9)
	require.InDelta(t, -1.0, Cosine(Vector{1, 0}, Vector{-3, 0}), 1e-9)
	require.Zero(t, Cosine(Vector{0, 0}, Vector{1, 1}))
	require.Zero(t, Cosine(Vector{1}, Vector{1, 1}))
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	v := Normalize(Vector{3, 4})
	require.InDelta(t, 0.6, v[0], 1e-6)
	require.InDelta(t, 0.8, v[1], 1e-6)
	require.Equal(t, Vector{0, 0}, Normalize(Vector{0, 0}))
}

func TestOpenAIEmbed(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		body map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"))
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		_ = json.Unmarshal(data, &body)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"object": "list",
			"model": "text-embedding-3-small",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0, 1]},
				{"object": "embedding", "index": 0, "embedding": [1, 0]}
			],
			"usage": {"prompt_tokens": 2, "total_tokens": 2}
		}`)
	}))
	t.Cleanup(srv.Close)

	e, err := NewOpenAI(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)
	require.Equal(t, DefaultModel, e.Model())

	vecs, err := e.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Equal(t, []Vector{{1, 0}, {0, 1}}, vecs)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, DefaultModel, body["model"])
	require.Equal(t, []any{"first", "second"}, body["input"])
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := NewOpenAI(OpenAIConfig{})
	require.ErrorIs(t, err, ErrMissingAPIKey)
}
