package codectx

import (
	"context"
	"log/slog"
	"os"
	"slices"

	"github.com/charmbracelet/codectx/internal/feature"
	"github.com/charmbracelet/codectx/internal/vcs"
)

// allocate returns the pinned features plus whatever automatic selection
// fits ceiling, sorted by relative path. Pins are never dropped, even when
// they alone exceed the ceiling.
func (c *Context) allocate(ctx context.Context, r *feature.Renderer, pins *feature.IncludeSet, diff *vcs.DiffContext, prompt, model string, ceiling int) ([]feature.Feature, error) {
	pinned := pins.Features()
	pinned = slices.DeleteFunc(pinned, func(f feature.Feature) bool {
		if _, err := os.Stat(f.Path); err != nil {
			c.warn("Pinned file is missing, skipping", "path", f.RelPath)
			return true
		}
		return false
	})
	for i := range pinned {
		pinned[i].DiffRef = diffRef(diff, pinned[i])
	}

	used, err := c.accountant.Count(ctx, model, header(diff))
	if err != nil {
		return nil, err
	}
	pinCost, err := c.accountant.CountFeatures(ctx, model, r, pinned)
	if err != nil {
		return nil, err
	}
	used += pinCost

	autoCap := c.opts.AutoCap()
	if ceiling <= 0 || used >= ceiling || autoCap == 0 {
		return pinned, nil
	}
	budget := ceiling - used
	if autoCap > 0 {
		budget = min(budget, autoCap)
	}

	selected, cost, err := c.fitBaseline(ctx, r, pins, diff, model, budget)
	if err != nil {
		return nil, err
	}
	if remaining := budget - cost; len(selected) > 0 && remaining > 0 && c.ranker != nil {
		if selected, err = c.upgrade(ctx, r, selected, prompt, model, remaining); err != nil {
			return nil, err
		}
	}

	out := append(pinned, selected...)
	feature.Sort(out)
	return out, nil
}

// fitBaseline commits the most detailed uniform level whose whole batch of
// unpinned candidates fits budget. Nothing fitting yields no selection.
func (c *Context) fitBaseline(ctx context.Context, r *feature.Renderer, pins *feature.IncludeSet, diff *vcs.DiffContext, model string, budget int) ([]feature.Feature, int, error) {
	for _, level := range feature.BaselineLevels(c.mapsEnabled()) {
		fs, err := c.enumerate(ctx, r, pins, diff, level)
		if err != nil {
			return nil, 0, err
		}
		fs = slices.DeleteFunc(fs, func(f feature.Feature) bool { return pins.Has(f.Path) })
		if len(fs) == 0 {
			return nil, 0, nil
		}
		fs, total, err := c.price(ctx, r, model, fs)
		if err != nil {
			return nil, 0, err
		}
		if total <= budget {
			slog.Debug("Baseline level selected", "level", level, "features", len(fs), "tokens", total, "budget", budget)
			return fs, total, nil
		}
		slog.Debug("Baseline level over budget", "level", level, "tokens", total, "budget", budget)
	}
	return nil, 0, nil
}

// price sums the cost of fs. Files whose outline cannot be extracted fall
// back to FileName at symbol-map levels.
func (c *Context) price(ctx context.Context, r *feature.Renderer, model string, fs []feature.Feature) ([]feature.Feature, int, error) {
	out := make([]feature.Feature, len(fs))
	total := 0
	for i, f := range fs {
		n, err := c.accountant.CountFeature(ctx, model, r, f)
		if err != nil && f.Level.NeedsOutline() && ctx.Err() == nil {
			c.warnOnce("outline:"+f.Path, "Symbol extraction failed, using file name", "path", f.RelPath, "err", err)
			f = f.WithLevel(feature.FileName)
			n, err = c.accountant.CountFeature(ctx, model, r, f)
		}
		if err != nil {
			return nil, 0, err
		}
		out[i] = f
		total += n
	}
	return out, total, nil
}

// upgrade walks the ranked candidates and promotes each one to FullCode
// whenever the extra cost still fits. A candidate that does not fit is
// skipped and the walk continues, so a cheaper, less relevant file can
// still be upgraded after a costly one was passed over.
func (c *Context) upgrade(ctx context.Context, r *feature.Renderer, selected []feature.Feature, prompt, model string, remaining int) ([]feature.Feature, error) {
	full := make([]feature.Feature, len(selected))
	at := make(map[string]int, len(selected))
	for i, f := range selected {
		full[i] = f.WithLevel(feature.FullCode)
		at[f.Path] = i
	}
	scored, ranked, err := c.ranker.rank(ctx, r, prompt, full)
	if err != nil {
		return nil, err
	}
	if !ranked {
		return selected, nil
	}

	out := slices.Clone(selected)
	upgraded := 0
	for _, s := range scored {
		i, ok := at[s.Feature.Path]
		if !ok {
			continue
		}
		fullCost, err := c.accountant.CountFeature(ctx, model, r, full[i])
		if err != nil {
			return nil, err
		}
		baseCost, err := c.accountant.CountFeature(ctx, model, r, selected[i])
		if err != nil {
			return nil, err
		}
		delta := fullCost - baseCost
		if remaining-delta < 0 {
			continue
		}
		out[i] = full[i]
		remaining -= delta
		upgraded++
	}
	slog.Debug("Upgraded ranked features", "upgraded", upgraded, "candidates", len(scored), "remaining", remaining)
	return out, nil
}

func (c *Context) mapsEnabled() bool {
	return !c.opts.NoCodeMap && c.outliner != nil
}
