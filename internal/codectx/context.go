// Package codectx assembles token-bounded repository context for a prompt.
//
// A Context owns the user's pinned files, the diff baseline and the last
// assembled text. Assemble prices the pins, fills the remaining budget with a
// uniform baseline detail level and, when embeddings are enabled, upgrades
// the files most relevant to the prompt to full code.
package codectx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/charmbracelet/codectx/internal/config"
	"github.com/charmbracelet/codectx/internal/embeddings"
	"github.com/charmbracelet/codectx/internal/feature"
	"github.com/charmbracelet/codectx/internal/tokens"
	"github.com/charmbracelet/codectx/internal/treesitter"
	"github.com/charmbracelet/codectx/internal/vcs"
	"github.com/charmbracelet/codectx/internal/vectorstore"
)

// Result is one assembled context.
type Result struct {
	Text     string
	Features []feature.Feature
	// Tokens is the size of Text under the requested model.
	Tokens int
	// Empty is set when nothing was pinned or selected.
	Empty bool
}

// Context assembles context for one repository and session. It is safe for
// concurrent use; identical concurrent assemblies share one build.
type Context struct {
	id         string
	root       string
	opts       config.Options
	accountant *tokens.Accountant
	outliner   feature.Outliner
	ranker     *Ranker
	ignore     *vcs.IgnoreCache
	repo       *vcs.Repo
	cache      *assemblyCache

	closers []func() error

	mu       sync.RWMutex
	includes *feature.IncludeSet
	excludes []string
	baseline string

	warnMu   sync.Mutex
	warnings []string
	warned   map[string]bool

	onBuild func()
}

// Option configures a Context.
type Option func(*settings)

type settings struct {
	opts       *config.Options
	accountant *tokens.Accountant
	outliner   feature.Outliner
	embedder   embeddings.Embedder
	store      vectorstore.Store
	confirmer  Confirmer
	excludes   []string
}

// WithOptions sets the configuration. Without it, config.Load(root) is used.
func WithOptions(o config.Options) Option {
	return func(s *settings) { s.opts = &o }
}

// WithAccountant replaces the token accountant.
func WithAccountant(a *tokens.Accountant) Option {
	return func(s *settings) { s.accountant = a }
}

// WithOutliner replaces the tree-sitter symbol extractor.
func WithOutliner(o feature.Outliner) Option {
	return func(s *settings) { s.outliner = o }
}

// WithEmbedder replaces the OpenAI embedder used when embeddings are on.
func WithEmbedder(e embeddings.Embedder) Option {
	return func(s *settings) { s.embedder = e }
}

// WithStore replaces the configured embedding store. The Context does not
// close a store passed this way.
func WithStore(st vectorstore.Store) Option {
	return func(s *settings) { s.store = st }
}

// WithConfirmer asks before spending more than the cost threshold. Without
// one, expensive embedding runs are declined.
func WithConfirmer(c Confirmer) Option {
	return func(s *settings) { s.confirmer = c }
}

// WithExcludePatterns adds session exclude globs, matched against paths
// relative to the root.
func WithExcludePatterns(patterns ...string) Option {
	return func(s *settings) { s.excludes = append(s.excludes, patterns...) }
}

// New returns a Context rooted at root.
func New(ctx context.Context, root string, opts ...Option) (*Context, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root %s: %w", root, err)
	}
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	if s.opts == nil {
		loaded, err := config.Load(abs)
		if err != nil {
			return nil, err
		}
		s.opts = loaded
	}

	c := &Context{
		id:       uuid.NewString(),
		root:     abs,
		opts:     *s.opts,
		outliner: s.outliner,
		ignore:   vcs.NewIgnoreCache(abs),
		cache:    newAssemblyCache(),
		includes: feature.NewIncludeSet(abs),
		excludes: s.excludes,
		baseline: s.opts.DiffBaseline,
	}

	c.accountant = s.accountant
	if c.accountant == nil {
		if c.accountant, err = tokens.NewAccountant(); err != nil {
			return nil, err
		}
	}

	if c.outliner == nil && !c.opts.NoCodeMap {
		p, err := treesitter.NewParser(treesitter.Config{PoolSize: c.opts.ParserPoolSize})
		if err != nil {
			return nil, fmt.Errorf("creating symbol parser: %w", err)
		}
		c.outliner = p
		c.closers = append(c.closers, p.Close)
	}

	if repo, err := vcs.Open(abs); err == nil {
		c.repo = repo
	} else if c.baseline != "" {
		c.warn("Diff baseline ignored outside a git repository", "baseline", c.baseline, "err", err)
		c.baseline = ""
	}

	if c.opts.UseEmbeddings {
		if err := c.setupRanker(ctx, s); err != nil {
			_ = c.Close()
			return nil, err
		}
	}

	slog.Debug("Context created", "session", c.id, "root", abs, "embeddings", c.ranker != nil)
	return c, nil
}

func (c *Context) setupRanker(ctx context.Context, s settings) error {
	embedder := s.embedder
	if embedder == nil {
		oa, err := embeddings.NewOpenAI(embeddings.OpenAIConfigFromEnv(c.opts.EmbeddingModel))
		if err != nil {
			return fmt.Errorf("creating embedder: %w", err)
		}
		embedder = oa
	}
	store := s.store
	if store == nil {
		st, err := vectorstore.Open(ctx, vectorstore.Config{
			Backend:  vectorstore.Backend(c.opts.Store.Backend),
			Path:     c.opts.Store.Path,
			RedisURL: c.opts.Store.RedisURL,
		})
		if err != nil {
			return fmt.Errorf("opening embedding store: %w", err)
		}
		store = st
		c.closers = append(c.closers, st.Close)
	}
	c.ranker = NewRanker(RankerConfig{
		Embedder:   embedder,
		Store:      store,
		Accountant: c.accountant,
		Confirmer:  s.confirmer,
		Threshold:  c.opts.CostConfirmThreshold,
		BatchSize:  c.opts.EmbeddingBatchSize,
		Warn:       c.warn,
	})
	return nil
}

// ID returns the session id of the Context.
func (c *Context) ID() string { return c.id }

// Root returns the absolute root directory.
func (c *Context) Root() string { return c.root }

// Assemble returns the context text for prompt under model's tokenizer,
// bounded by ceiling tokens. Pinned features are always present, even over
// the ceiling. The result is reused while file contents and settings are
// unchanged, whatever the prompt.
func (c *Context) Assemble(ctx context.Context, prompt, model string, ceiling int) (Result, error) {
	if _, err := c.accountant.MaxContextTokens(model); err != nil {
		return Result{}, err
	}
	key := c.checksum(ceiling)
	if res, ok := c.cache.get(key); ok {
		return c.recount(ctx, model, res)
	}
	v, err, _ := c.cache.group.Do(key, func() (any, error) {
		if res, ok := c.cache.get(key); ok {
			return res, nil
		}
		res, err := c.build(ctx, prompt, model, ceiling)
		if err != nil {
			return Result{}, err
		}
		c.cache.put(key, res)
		return res, nil
	})
	if err != nil {
		return Result{}, err
	}
	return c.recount(ctx, model, v.(Result))
}

// recount prices a cached text under model, which may differ from the
// model it was built for.
func (c *Context) recount(ctx context.Context, model string, res Result) (Result, error) {
	if res.Empty {
		return res, nil
	}
	n, err := c.accountant.Count(ctx, model, res.Text)
	if err != nil {
		return Result{}, err
	}
	res.Tokens = n
	return res, nil
}

// MaxContextTokens returns the context window of model.
func (c *Context) MaxContextTokens(model string) (int, error) {
	return c.accountant.MaxContextTokens(model)
}

func (c *Context) build(ctx context.Context, prompt, model string, ceiling int) (Result, error) {
	if c.onBuild != nil {
		c.onBuild()
	}
	pins := c.snapshot()
	diff, err := c.loadDiff(ctx)
	if err != nil {
		return Result{}, err
	}
	r := feature.NewRenderer(c.outliner, diff)

	selected, err := c.allocate(ctx, r, pins, diff, prompt, model, ceiling)
	if err != nil {
		return Result{}, err
	}
	if len(selected) == 0 {
		return Result{Empty: true}, nil
	}
	body, rendered, err := r.RenderAll(ctx, selected)
	if err != nil {
		return Result{}, err
	}
	text := header(diff) + body
	n, err := c.accountant.Count(ctx, model, text)
	if err != nil {
		return Result{}, err
	}
	slog.Debug("Context assembled", "session", c.id, "features", len(rendered), "tokens", n, "ceiling", ceiling)
	return Result{Text: text, Features: rendered, Tokens: n}, nil
}

func header(diff *vcs.DiffContext) string {
	if diff.Len() > 0 {
		return feature.DiffHeader(diff.Baseline()) + feature.CodeHeader
	}
	return feature.CodeHeader
}

// Enumerate returns every discoverable feature at level, diff scoped when a
// baseline is set. Order is unspecified.
func (c *Context) Enumerate(ctx context.Context, level feature.Level) ([]feature.Feature, error) {
	diff, err := c.loadDiff(ctx)
	if err != nil {
		return nil, err
	}
	r := feature.NewRenderer(c.outliner, diff)
	return c.enumerate(ctx, r, c.snapshot(), diff, level)
}

// Search ranks every feature at level against query and returns at most
// maxResults of them. maxResults <= 0 returns all. With embeddings off the
// result is empty and a warning is recorded.
func (c *Context) Search(ctx context.Context, query string, level feature.Level, maxResults int) ([]Scored, error) {
	if c.ranker == nil {
		c.warn("Embeddings are disabled, enable use_embeddings to search")
		return nil, nil
	}
	diff, err := c.loadDiff(ctx)
	if err != nil {
		return nil, err
	}
	r := feature.NewRenderer(c.outliner, diff)
	fs, err := c.enumerate(ctx, r, c.snapshot(), diff, level)
	if err != nil {
		return nil, err
	}
	feature.Sort(fs)
	scored, err := c.ranker.Score(ctx, r, query, fs)
	if err != nil {
		return nil, err
	}
	if maxResults > 0 && len(scored) > maxResults {
		scored = scored[:maxResults]
	}
	return scored, nil
}

// SetDiffBaseline switches the revision diffs are taken against. An empty
// name disables diff annotations. The assembly cache does not track the
// baseline, so this forces a rebuild.
func (c *Context) SetDiffBaseline(name string) {
	c.mu.Lock()
	c.baseline = strings.TrimSpace(name)
	c.mu.Unlock()
	c.ForceRebuild()
}

// DiffBaseline returns the active baseline, or "".
func (c *Context) DiffBaseline() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseline
}

// ForceRebuild drops the cached assembly.
func (c *Context) ForceRebuild() {
	c.cache.clear()
}

// Pinned returns the pinned features sorted by relative path.
func (c *Context) Pinned() []feature.Feature {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.includes.Features()
}

// Warnings returns and clears the user-facing warnings collected so far.
func (c *Context) Warnings() []string {
	c.warnMu.Lock()
	defer c.warnMu.Unlock()
	out := c.warnings
	c.warnings = nil
	return out
}

// Close releases parsers and stores owned by the Context.
func (c *Context) Close() error {
	var errs []error
	for _, fn := range c.closers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Context) snapshot() *feature.IncludeSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.includes.Clone()
}

func (c *Context) loadDiff(ctx context.Context) (*vcs.DiffContext, error) {
	baseline := c.DiffBaseline()
	if baseline == "" || c.repo == nil {
		return nil, nil
	}
	d, err := c.repo.Diff(ctx, baseline)
	if err != nil {
		return nil, fmt.Errorf("diffing against %s: %w", baseline, err)
	}
	return d, nil
}

// warnOnce is warn, skipped when key has already been reported by this
// Context.
func (c *Context) warnOnce(key, msg string, args ...any) {
	c.warnMu.Lock()
	seen := c.warned[key]
	if !seen {
		if c.warned == nil {
			c.warned = make(map[string]bool)
		}
		c.warned[key] = true
	}
	c.warnMu.Unlock()
	if !seen {
		c.warn(msg, args...)
	}
}

// warn logs msg and keeps a formatted copy for Warnings.
func (c *Context) warn(msg string, args ...any) {
	slog.Warn(msg, args...)
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	c.warnMu.Lock()
	c.warnings = append(c.warnings, b.String())
	c.warnMu.Unlock()
}
