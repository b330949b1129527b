package treesitter

import (
	"path/filepath"
	"strings"
)

// extensions maps file extensions to grammar names.
var extensions = map[string]string{
	"go":   "go",
	"py":   "python",
	"pyw":  "python",
	"pyi":  "python",
	"js":   "javascript",
	"jsx":  "javascript", // the JS grammar parses JSX
	"mjs":  "javascript",
	"cjs":  "javascript",
	"ts":   "typescript",
	"mts":  "typescript",
	"cts":  "typescript",
	"tsx":  "tsx",
	"java": "java",
	"rs":   "rust",
	"c":    "c",
	"h":    "c",
	"cc":   "cpp",
	"cpp":  "cpp",
	"cxx":  "cpp",
	"hh":   "cpp",
	"hpp":  "cpp",
	"hxx":  "cpp",
	"rb":   "ruby",
	"rake": "ruby",
}

// queryAliases maps grammars that share another grammar's tags query.
var queryAliases = map[string]string{
	"tsx": "typescript",
}

// MapExtension returns the grammar name for a file extension, with or
// without the leading dot, or "" when unknown.
func MapExtension(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	return extensions[ext]
}

// MapPath returns the grammar name for a file path.
func MapPath(path string) string {
	return MapExtension(filepath.Ext(path))
}

// QueryKey returns the tags query name used for a grammar.
func QueryKey(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if alias, ok := queryAliases[lang]; ok {
		return alias
	}
	return lang
}
