package treesitter

import (
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapPath(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"main.go":          "go",
		"pkg/app.PY":       "python",
		"web/index.jsx":    "javascript",
		"web/app.tsx":      "tsx",
		"lib/x.mts":        "typescript",
		"include/a.h":      "c",
		"src/a.hpp":        "cpp",
		"Rakefile.rake":    "ruby",
		"README.md":        "",
		"Makefile":         "",
		"archive.tar.gz":   "",
		"src/lib.rs":       "rust",
		"src/Main.java":    "java",
		"scripts/build.js": "javascript",
	}
	for path, want := range tests {
		require.Equal(t, want, MapPath(path), path)
	}
	require.Equal(t, "go", MapExtension(".go"))
	require.Equal(t, "go", MapExtension("GO"))
	require.Empty(t, MapExtension(""))
}

func TestQueryKey(t *testing.T) {
	t.Parallel()

	require.Equal(t, "typescript", QueryKey("tsx"))
	require.Equal(t, "go", QueryKey(" Go "))
}

func TestManifestMatchesQueriesAndGrammars(t *testing.T) {
	t.Parallel()

	m, err := LoadManifest()
	require.NoError(t, err)
	require.NotEmpty(t, m.Languages)

	used := map[string]bool{}
	for _, l := range m.Languages {
		require.NotNil(t, GrammarFor(l.Name), "grammar for %s", l.Name)
		require.True(t, HasTagsQuery(l.QueryName()), "query for %s", l.Name)
		used[l.QueryName()+"-tags.scm"] = true
		for _, ext := range l.Extensions {
			require.Equal(t, l.Name, MapExtension(ext), "extension %s", ext)
		}
	}

	files, err := QueryFiles()
	require.NoError(t, err)
	for _, f := range files {
		require.True(t, used[f], "query %s is not referenced by the manifest", f)
	}
	require.True(t, slices.ContainsFunc(files, func(f string) bool { return strings.HasPrefix(f, "go-") }))
}
