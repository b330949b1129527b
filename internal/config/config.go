// Package config loads codectx settings from the global and project JSON
// files.
package config

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
)

const (
	appName = "codectx"
	// ProjectFile is the per-repository config file name.
	ProjectFile = ".codectx.json"

	defaultEmbeddingModel       = "text-embedding-3-small"
	defaultEmbeddingBatchSize   = 1000
	defaultCostConfirmThreshold = 1.0
)

// StoreOptions selects the embedding store backend.
type StoreOptions struct {
	Backend  string `json:"backend,omitempty" jsonschema:"description=Embedding store backend,enum=sqlite,enum=bolt,enum=redis,enum=memory"`
	Path     string `json:"path,omitempty" jsonschema:"description=Database file for the sqlite and bolt backends"`
	RedisURL string `json:"redis_url,omitempty" jsonschema:"description=Connection URL for the redis backend"`
}

func (o StoreOptions) merge(t StoreOptions) StoreOptions {
	o.Backend = cmp.Or(t.Backend, o.Backend)
	o.Path = cmp.Or(t.Path, o.Path)
	o.RedisURL = cmp.Or(t.RedisURL, o.RedisURL)
	return o
}

// Options configures context assembly.
type Options struct {
	// AutoTokens caps the tokens spent on automatically selected features.
	// Nil means unlimited and zero disables auto-selection.
	AutoTokens *int `json:"auto_tokens,omitempty" jsonschema:"description=Token cap for automatically selected context (unset = unlimited; 0 = disabled)"`
	// NoCodeMap disables symbol-map levels.
	NoCodeMap bool `json:"no_code_map,omitempty" jsonschema:"description=Disable symbol-map detail levels"`
	// UseEmbeddings enables relevance ranking against the prompt.
	UseEmbeddings bool `json:"use_embeddings,omitempty" jsonschema:"description=Rank files against the prompt with embeddings"`
	// FileExcludeGlobs are excluded from enumeration and directory includes.
	FileExcludeGlobs []string `json:"file_exclude_globs,omitempty" jsonschema:"description=Glob patterns never enumerated or included from directories"`
	EmbeddingModel   string   `json:"embedding_model,omitempty" jsonschema:"description=Embedding model name,default=text-embedding-3-small"`
	// EmbeddingBatchSize is the number of texts per embedding request.
	EmbeddingBatchSize int `json:"embedding_batch_size,omitempty" jsonschema:"description=Texts per embedding request,default=1000"`
	// CostConfirmThreshold is the estimated spend in dollars above which
	// embedding requires confirmation.
	CostConfirmThreshold float64      `json:"cost_confirm_threshold,omitempty" jsonschema:"description=Estimated embedding cost in dollars that requires confirmation,default=1"`
	Store                StoreOptions `json:"store,omitzero" jsonschema:"description=Embedding store settings"`
	// DiffBaseline annotates and scopes context to changes since this
	// revision.
	DiffBaseline string `json:"diff_baseline,omitempty" jsonschema:"description=Git revision to diff the working tree against"`
	// ParserPoolSize sets tree-sitter parser pool capacity. Zero uses the
	// runtime default.
	ParserPoolSize int  `json:"parser_pool_size,omitempty" jsonschema:"description=Tree-sitter parser pool size (0 = runtime default)"`
	Debug          bool `json:"debug,omitempty" jsonschema:"description=Enable debug logging"`
}

func (o Options) merge(t Options) Options {
	if t.AutoTokens != nil {
		v := *t.AutoTokens
		o.AutoTokens = &v
	}
	o.NoCodeMap = o.NoCodeMap || t.NoCodeMap
	o.UseEmbeddings = o.UseEmbeddings || t.UseEmbeddings
	o.FileExcludeGlobs = sortedCompact(append(slices.Clone(o.FileExcludeGlobs), t.FileExcludeGlobs...))
	o.EmbeddingModel = cmp.Or(t.EmbeddingModel, o.EmbeddingModel)
	o.EmbeddingBatchSize = cmp.Or(t.EmbeddingBatchSize, o.EmbeddingBatchSize)
	o.CostConfirmThreshold = cmp.Or(t.CostConfirmThreshold, o.CostConfirmThreshold)
	o.Store = o.Store.merge(t.Store)
	o.DiffBaseline = cmp.Or(t.DiffBaseline, o.DiffBaseline)
	o.ParserPoolSize = cmp.Or(t.ParserPoolSize, o.ParserPoolSize)
	o.Debug = o.Debug || t.Debug
	return o
}

// DefaultOptions returns the defaults applied under every config file.
func DefaultOptions() Options {
	return Options{
		EmbeddingModel:       defaultEmbeddingModel,
		EmbeddingBatchSize:   defaultEmbeddingBatchSize,
		CostConfirmThreshold: defaultCostConfirmThreshold,
		Store: StoreOptions{
			Backend: "sqlite",
			Path:    filepath.Join(DataDir(), "embeddings.db"),
		},
	}
}

// AutoCap returns the auto-selection cap, or -1 for unlimited.
func (o Options) AutoCap() int {
	if o.AutoTokens == nil {
		return -1
	}
	return max(*o.AutoTokens, 0)
}

// Load reads the global config and the project config in workingDir, in
// that order, over the defaults. Missing files are skipped.
func Load(workingDir string) (*Options, error) {
	paths := []string{GlobalPath(), filepath.Join(workingDir, ProjectFile)}
	var data [][]byte
	for _, p := range paths {
		bts, err := os.ReadFile(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", p, err)
		}
		data = append(data, bts)
	}
	return loadFromBytes(data)
}

func loadFromBytes(data [][]byte) (*Options, error) {
	opts := DefaultOptions()
	for i, bts := range data {
		var o Options
		if err := json.Unmarshal(bts, &o); err != nil {
			return nil, fmt.Errorf("parsing config %d: %w", i, err)
		}
		opts = opts.merge(o)
	}
	return &opts, nil
}

// GlobalPath returns $XDG_CONFIG_HOME/codectx/codectx.json.
func GlobalPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, appName, appName+".json")
}

// DataDir returns $XDG_DATA_HOME/codectx.
func DataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, appName)
}

func sortedCompact(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	slices.Sort(s)
	return slices.Compact(s)
}
