package manager

import (
	"context"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/jward/thicket/internal/tree"
)

// preloadItem is one file Preload parses.
type preloadItem struct {
	path string
	name string
	pkg  bool
	t    *tree.Tree
	err  error
}

// Preload parses files in parallel and caches them. Parsing runs on a
// bounded worker pool; trees are committed to the cache serially in input
// order afterwards. Files that fail to parse are logged and skipped; the
// count of skipped files is reported in the returned error.
func (m *Manager) Preload(ctx context.Context, paths []string) error {
	items := make([]*preloadItem, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("manager: preload %s: %w", p, err)
		}
		name, pkg := m.ModuleName(abs)
		if _, ok := m.Module(name); ok {
			continue
		}
		items = append(items, &preloadItem{path: abs, name: name, pkg: pkg})
	}
	if len(items) == 0 {
		return nil
	}

	// Parse in parallel. Each item records its own error so one bad file
	// does not cancel the rest.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(m.workers, len(items)))
	for _, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			item.t, item.err = m.parsePath(gctx, item.name, item.path, item.pkg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("manager: preload: %w", err)
	}

	// Commit serially.
	var skipped []error
	for _, item := range items {
		if item.err != nil {
			m.logger.Warn("skipping file", "path", item.path, "error", item.err)
			skipped = append(skipped, item.err)
			continue
		}
		m.commit(item.t)
	}
	if len(skipped) > 0 {
		return fmt.Errorf("manager: preload skipped %d file(s): %w", len(skipped), skipped[0])
	}
	return nil
}
