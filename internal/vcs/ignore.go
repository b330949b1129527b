package vcs

import (
	"path/filepath"
	"strings"
	"sync"

	ignore "github.com/sabhiram/go-gitignore"
)

// IgnoreCache answers ignore queries against every .gitignore between a path
// and the root. Files are compiled lazily and the cache is safe for
// concurrent use.
type IgnoreCache struct {
	root string

	mu      sync.RWMutex
	cache   map[string]*ignore.GitIgnore // dir -> compiled rules, only dirs that have them
	visited map[string]struct{}
}

// NewIgnoreCache returns a cache rooted at root.
func NewIgnoreCache(root string) *IgnoreCache {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = filepath.Clean(root)
	}
	return &IgnoreCache{
		root:    absRoot,
		cache:   make(map[string]*ignore.GitIgnore),
		visited: make(map[string]struct{}),
	}
}

// Root returns the directory the cache answers for.
func (c *IgnoreCache) Root() string { return c.root }

func (c *IgnoreCache) load(dir string) *ignore.GitIgnore {
	c.mu.RLock()
	_, seen := c.visited[dir]
	gi := c.cache[dir]
	c.mu.RUnlock()
	if seen {
		return gi
	}

	gi, err := ignore.CompileIgnoreFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		gi = nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, seen := c.visited[dir]; seen {
		return c.cache[dir]
	}
	c.visited[dir] = struct{}{}
	if gi != nil {
		c.cache[dir] = gi
	}
	return gi
}

// ShouldIgnore reports whether absPath is ignored by any applicable
// .gitignore. Paths outside the root are never ignored.
func (c *IgnoreCache) ShouldIgnore(absPath string, isDir bool) bool {
	if filepath.Base(absPath) == ".git" {
		return true
	}
	rel, err := filepath.Rel(c.root, absPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}

	dir := filepath.Dir(absPath)
	for {
		if gi := c.load(dir); gi != nil {
			relToIgnore, _ := filepath.Rel(dir, absPath)
			relToIgnore = filepath.ToSlash(relToIgnore)
			if gi.MatchesPath(relToIgnore) || (isDir && gi.MatchesPath(relToIgnore+"/")) {
				return true
			}
		}
		if dir == c.root {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return false
}
