package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseMerge(tb testing.TB, confs ...Options) *Options {
	tb.Helper()
	data := make([][]byte, 0, len(confs))
	for _, c := range confs {
		bts, err := json.Marshal(c)
		require.NoError(tb, err)
		data = append(data, bts)
	}
	result, err := loadFromBytes(data)
	require.NoError(tb, err)
	return result
}

func intPtr(v int) *int { return &v }

func TestOptionsMerging(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		c := exerciseMerge(t)
		require.Nil(t, c.AutoTokens)
		require.Equal(t, -1, c.AutoCap())
		require.Equal(t, "text-embedding-3-small", c.EmbeddingModel)
		require.Equal(t, 1000, c.EmbeddingBatchSize)
		require.InDelta(t, 1.0, c.CostConfirmThreshold, 1e-9)
		require.Equal(t, "sqlite", c.Store.Backend)
		require.NotEmpty(t, c.Store.Path)
	})

	t.Run("later files win", func(t *testing.T) {
		t.Parallel()
		c := exerciseMerge(t,
			Options{AutoTokens: intPtr(500), EmbeddingModel: "text-embedding-3-large", Store: StoreOptions{Backend: "bolt", Path: "/a"}},
			Options{AutoTokens: intPtr(0), Store: StoreOptions{Path: "/b"}, DiffBaseline: "main"},
		)
		require.Equal(t, 0, c.AutoCap())
		require.Equal(t, "text-embedding-3-large", c.EmbeddingModel)
		require.Equal(t, "bolt", c.Store.Backend)
		require.Equal(t, "/b", c.Store.Path)
		require.Equal(t, "main", c.DiffBaseline)
	})

	t.Run("unset auto tokens keeps earlier value", func(t *testing.T) {
		t.Parallel()
		c := exerciseMerge(t, Options{AutoTokens: intPtr(42)}, Options{})
		require.Equal(t, 42, c.AutoCap())
	})

	t.Run("flags are sticky", func(t *testing.T) {
		t.Parallel()
		c := exerciseMerge(t, Options{NoCodeMap: true, UseEmbeddings: true}, Options{})
		require.True(t, c.NoCodeMap)
		require.True(t, c.UseEmbeddings)
	})

	t.Run("exclude globs are unioned", func(t *testing.T) {
		t.Parallel()
		c := exerciseMerge(t,
			Options{FileExcludeGlobs: []string{"vendor/**", "*.min.js"}},
			Options{FileExcludeGlobs: []string{"*.min.js", "dist/**"}},
		)
		require.Equal(t, []string{"*.min.js", "dist/**", "vendor/**"}, c.FileExcludeGlobs)
	})

	t.Run("negative auto tokens disable", func(t *testing.T) {
		t.Parallel()
		c := exerciseMerge(t, Options{AutoTokens: intPtr(-5)})
		require.Equal(t, 0, c.AutoCap())
	})
}

func TestLoadInvalidJSON(t *testing.T) {
	t.Parallel()

	_, err := loadFromBytes([][]byte{[]byte("{nope")})
	require.Error(t, err)
}

func TestLoadReadsGlobalThenProject(t *testing.T) {
	cfgHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", cfgHome)
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	require.NoError(t, os.MkdirAll(filepath.Join(cfgHome, "codectx"), 0o755))
	require.NoError(t, os.WriteFile(GlobalPath(), []byte(`{"auto_tokens": 100, "embedding_model": "text-embedding-ada-002"}`), 0o644))

	project := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(project, ProjectFile), []byte(`{"auto_tokens": 300, "no_code_map": true}`), 0o644))

	c, err := Load(project)
	require.NoError(t, err)
	require.Equal(t, 300, c.AutoCap())
	require.True(t, c.NoCodeMap)
	require.Equal(t, "text-embedding-ada-002", c.EmbeddingModel)

	c, err = Load(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 100, c.AutoCap())
}

func TestSchema(t *testing.T) {
	t.Parallel()

	data, err := Schema()
	require.NoError(t, err)

	var s map[string]any
	require.NoError(t, json.Unmarshal(data, &s))
	props, ok := s["properties"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, props, "auto_tokens")
	require.Contains(t, props, "store")
	require.Contains(t, props, "file_exclude_globs")
}
