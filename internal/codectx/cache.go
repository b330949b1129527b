package codectx

import (
	"encoding/json"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/charmbracelet/codectx/internal/feature"
)

// assemblyCache keeps the last completed assembly of one Context.
type assemblyCache struct {
	group singleflight.Group

	mu     sync.Mutex
	key    string
	result Result
	valid  bool
}

func newAssemblyCache() *assemblyCache {
	return &assemblyCache{}
}

func (ac *assemblyCache) get(key string) (Result, bool) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if !ac.valid || ac.key != key {
		return Result{}, false
	}
	return ac.result, true
}

func (ac *assemblyCache) put(key string, res Result) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	ac.key = key
	ac.result = res
	ac.valid = true
}

func (ac *assemblyCache) clear() {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	ac.key = ""
	ac.result = Result{}
	ac.valid = false
}

type cacheSettings struct {
	MapEnabled     bool     `json:"map_enabled"`
	AutoCap        int      `json:"auto_cap"`
	RankingEnabled bool     `json:"ranking_enabled"`
	TokenCeiling   int      `json:"token_ceiling"`
	Include        []string `json:"include_set_identity"`
}

// checksum keys the assembly on the contents of every pinned file and the
// settings that shape selection. The prompt, model and diff baseline are
// not part of it.
func (c *Context) checksum(ceiling int) string {
	c.mu.RLock()
	paths := c.includes.Paths()
	settings := cacheSettings{
		MapEnabled:     c.mapsEnabled(),
		AutoCap:        c.opts.AutoCap(),
		RankingEnabled: c.ranker != nil,
		TokenCeiling:   ceiling,
		Include:        c.includes.Identity(),
	}
	c.mu.RUnlock()

	var contents strings.Builder
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		contents.WriteString(feature.Checksum(string(data)))
	}
	bts, _ := json.Marshal(settings)
	return feature.Checksum(contents.String()) + feature.Checksum(string(bts))
}
