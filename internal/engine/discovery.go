package engine

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/grumpy/internal/changes"
)

// Discover walks the engine root and returns the root-relative paths that
// filter accepts, sorted. Hidden directories and ignored directories are
// skipped.
func (e *Engine) Discover(filter *changes.Filter) ([]string, error) {
	e.logger.Info("starting discovery", "root", e.root)

	var paths []string
	err := filepath.WalkDir(e.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(e.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") || filter.IgnoredDir(rel) {
				e.logger.Debug("skipping directory", "path", rel)
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		if filter.Match(rel) {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover files in %s: %w", e.root, err)
	}

	sort.Strings(paths)
	e.logger.Info("discovery completed", "files", len(paths))
	return paths, nil
}
