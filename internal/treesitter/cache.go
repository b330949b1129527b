package treesitter

import (
	"strconv"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/xxh3"

	"github.com/charmbracelet/codectx/internal/feature"
)

const defaultCacheEntries = 5000

// CacheStats tracks basic cache counters.
type CacheStats struct {
	Hits   int64
	Misses int64
}

// Cache memoises outlines by path and content so unchanged files are not
// reparsed across assemblies.
type Cache struct {
	entries *lru.Cache[string, []feature.Symbol]
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewCache returns a cache holding up to maxEntries outlines.
func NewCache(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = defaultCacheEntries
	}
	entries, _ := lru.New[string, []feature.Symbol](maxEntries)
	return &Cache{entries: entries}
}

// Get returns a copy of the cached outline.
func (c *Cache) Get(key string) ([]feature.Symbol, bool) {
	syms, ok := c.entries.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return append([]feature.Symbol(nil), syms...), true
}

// Put stores an outline.
func (c *Cache) Put(key string, syms []feature.Symbol) {
	c.entries.Add(key, append([]feature.Symbol(nil), syms...))
}

// Len returns the number of cached outlines.
func (c *Cache) Len() int { return c.entries.Len() }

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// cacheKey is "<path>:<len>:<xxh3 hex>".
func cacheKey(path string, content []byte) string {
	buf := make([]byte, 0, len(path)+1+19+1+16)
	buf = append(buf, path...)
	buf = append(buf, ':')
	buf = strconv.AppendInt(buf, int64(len(content)), 10)
	buf = append(buf, ':')
	buf = strconv.AppendUint(buf, xxh3.Hash(content), 16)
	return string(buf)
}
