package treesitter

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"
)

//go:embed queries/* languages.json
var queriesFS embed.FS

// Manifest lists the languages with a grammar and a tags query.
type Manifest struct {
	Version   int                `json:"version"`
	Languages []ManifestLanguage `json:"languages"`
}

// ManifestLanguage describes one grammar.
type ManifestLanguage struct {
	Name          string   `json:"name"`
	GrammarModule string   `json:"grammar_module"`
	Query         string   `json:"query,omitempty"`
	Extensions    []string `json:"extensions,omitempty"`
}

// QueryName returns the tags query key, defaulting to the language name.
func (l ManifestLanguage) QueryName() string {
	if l.Query != "" {
		return l.Query
	}
	return l.Name
}

// LoadManifest loads the embedded languages manifest.
func LoadManifest() (Manifest, error) {
	data, err := queriesFS.ReadFile("languages.json")
	if err != nil {
		return Manifest{}, fmt.Errorf("read embedded languages manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse embedded languages manifest: %w", err)
	}
	return m, nil
}

// LoadTagsQuery returns the embedded tags query for a query key.
func LoadTagsQuery(key string) ([]byte, error) {
	name := strings.TrimSpace(key)
	if name == "" {
		return nil, fmt.Errorf("language key is empty")
	}
	return queriesFS.ReadFile("queries/" + name + "-tags.scm")
}

// HasTagsQuery reports whether a tags query exists for a query key.
func HasTagsQuery(key string) bool {
	_, err := LoadTagsQuery(key)
	return err == nil
}

// QueryFiles returns the names of the embedded query files.
func QueryFiles() ([]string, error) {
	entries, err := fs.ReadDir(queriesFS, "queries")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
