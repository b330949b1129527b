package tokens

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

const (
	// EncodingCL100kBase is used by GPT-4 era models and as an approximation
	// for models without a public tokenizer.
	EncodingCL100kBase = "cl100k_base"
	// EncodingO200kBase is used by GPT-4o and later models.
	EncodingO200kBase = "o200k_base"

	downloadTimeout = 30 * time.Second
)

var initLoaderOnce sync.Once

// InitTiktokenLoader registers the caching BPE loader with tiktoken-go. Only
// the first call has any effect.
func InitTiktokenLoader(cacheDir string) {
	initLoaderOnce.Do(func() {
		tiktoken.SetBpeLoader(newCachingBpeLoader(cacheDir, defaultFetch))
	})
}

type fetchFunc func(ctx context.Context, url string) ([]byte, error)

// cachingBpeLoader implements tiktoken.BpeLoader. Rank files are read from
// the cache directory and downloaded on a miss.
type cachingBpeLoader struct {
	cacheDir string
	fetch    fetchFunc
	mu       sync.Mutex
}

func newCachingBpeLoader(cacheDir string, fetch fetchFunc) *cachingBpeLoader {
	return &cachingBpeLoader{cacheDir: cacheDir, fetch: fetch}
}

// LoadTiktokenBpe satisfies tiktoken.BpeLoader.
func (l *cachingBpeLoader) LoadTiktokenBpe(url string) (map[string]int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cacheFile := filepath.Join(l.cacheDir, path.Base(url))
	if data, err := os.ReadFile(cacheFile); err == nil {
		return parseBpeRanks(data)
	}

	ctx, cancel := context.WithTimeout(context.Background(), downloadTimeout)
	defer cancel()
	data, err := l.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", path.Base(url), err)
	}

	if mkErr := os.MkdirAll(l.cacheDir, 0o755); mkErr != nil {
		slog.Warn("Failed to create tiktoken cache directory", "path", l.cacheDir, "err", mkErr)
	} else if wErr := writeFileAtomic(cacheFile, data); wErr != nil {
		slog.Warn("Failed to persist tiktoken ranks", "path", cacheFile, "err", wErr)
	}
	return parseBpeRanks(data)
}

// parseBpeRanks parses the tiktoken rank file format: one base64 token and
// its integer rank per line.
func parseBpeRanks(data []byte) (map[string]int, error) {
	ranks := make(map[string]int, 100000)
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		tok, rank, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		token, err := base64.StdEncoding.DecodeString(tok)
		if err != nil {
			return nil, fmt.Errorf("decode BPE token: %w", err)
		}
		r, err := strconv.Atoi(rank)
		if err != nil {
			return nil, fmt.Errorf("parse BPE rank: %w", err)
		}
		ranks[string(token)] = r
	}
	return ranks, nil
}

func defaultFetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// TiktokenCounter implements TokenCounter with a tiktoken encoding.
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the named encoding. InitTiktokenLoader should be
// called first so rank files are cached.
func NewTiktokenCounter(encodingName string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q: %w", encodingName, err)
	}
	return &TiktokenCounter{encoding: enc}, nil
}

// Count returns the number of tokens in text. The encoding is bound at
// construction, so model is ignored.
func (t *TiktokenCounter) Count(_ context.Context, _ string, text string) (int, error) {
	return len(t.encoding.Encode(text, nil, nil)), nil
}

// CacheDir returns the directory for cached BPE rank files, under
// $XDG_CACHE_HOME or ~/.cache.
func CacheDir() string {
	cache := os.Getenv("XDG_CACHE_HOME")
	if cache == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
		cache = filepath.Join(home, ".cache")
	}
	return filepath.Join(cache, "codectx", "tiktoken")
}
