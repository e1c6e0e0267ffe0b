package pkggen

import (
	"cmp"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// WriteTree materializes the generated file map under root. Content already
// on disk is left untouched so file watchers stay quiet; generated .ncl
// files the map no longer produces are pruned, along with directories the
// pruning empties. Returned paths are relative to root and sorted.
func WriteTree(root string, files map[string]string) (written, removed []string, err error) {
	for _, rel := range slices.Sorted(maps.Keys(files)) {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return written, removed, err
		}
		if existing, err := os.ReadFile(abs); err == nil && string(existing) == files[rel] {
			continue
		}
		if err := os.WriteFile(abs, []byte(files[rel]), 0o644); err != nil {
			return written, removed, err
		}
		written = append(written, rel)
	}

	var stale []string
	var dirs []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." {
				dirs = append(dirs, path)
			}
			return nil
		}
		if strings.HasSuffix(rel, ".ncl") {
			if _, ok := files[rel]; !ok {
				stale = append(stale, rel)
			}
		}
		return nil
	})
	if walkErr != nil {
		if os.IsNotExist(walkErr) {
			return written, removed, nil
		}
		return written, removed, walkErr
	}

	for _, rel := range stale {
		if err := os.Remove(filepath.Join(root, filepath.FromSlash(rel))); err != nil {
			return written, removed, err
		}
		removed = append(removed, rel)
	}
	// Deepest directories first so emptied parents collapse too; Remove
	// refuses non-empty directories, which is the behavior wanted here.
	slices.SortFunc(dirs, func(a, b string) int { return cmp.Compare(len(b), len(a)) })
	for _, dir := range dirs {
		_ = os.Remove(dir)
	}
	slices.Sort(removed)
	return written, removed, nil
}
