package discovery

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// DefaultExcludes are skipped by every walk.
var DefaultExcludes = []string{
	"vendor/",
	"node_modules/",
	"__pycache__/",
}

// walker visits the files of a package root, skipping hidden entries and
// excluded paths.
type walker struct {
	root    string
	exclude []string
}

func newWalker(root string, exclude []string) *walker {
	if exclude == nil {
		exclude = DefaultExcludes
	}
	return &walker{root: root, exclude: exclude}
}

// walk calls visit for every regular file with its slash-separated path
// relative to the root. It stops early when ctx is done.
func (w *walker) walk(ctx context.Context, visit func(rel string, d fs.DirEntry) error) error {
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if w.shouldExclude(rel, d) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return visit(rel, d)
	})
	if err != nil {
		return fmt.Errorf("walking %s: %w", w.root, err)
	}
	return nil
}

// shouldExclude checks if a path should be left out of discovery.
func (w *walker) shouldExclude(rel string, d fs.DirEntry) bool {
	if rel == "." {
		return false
	}
	// Always exclude hidden files and directories
	if strings.HasPrefix(filepath.Base(rel), ".") {
		return true
	}
	for _, pattern := range w.exclude {
		if matchesPattern(rel, pattern, d.IsDir()) {
			return true
		}
	}
	return false
}

// matchesPattern checks if a path matches an exclude pattern.
func matchesPattern(path, pattern string, isDir bool) bool {
	// Directory patterns (e.g., "vendor/") match at any depth
	if strings.HasSuffix(pattern, "/") {
		dir := strings.TrimSuffix(pattern, "/")
		if isDir && (path == dir || strings.HasSuffix(path, "/"+dir)) {
			return true
		}
		return strings.HasPrefix(path, pattern) || strings.Contains(path, "/"+pattern)
	}

	// Glob patterns (e.g., "*.min.js") match the base name
	if strings.ContainsAny(pattern, "*?[") {
		matched, _ := filepath.Match(pattern, filepath.Base(path))
		return matched
	}

	// Exact match
	return path == pattern || strings.HasPrefix(path, pattern+"/")
}
