package batch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/pogocls/internal/utils"
)

// filter decides which discovered files are classified. Patterns are shell
// globs matched against the base name and, for directory entries, against
// the path relative to the scanned directory.
type filter struct {
	include []string
	exclude []string
}

func newFilter(include, exclude []string) (filter, error) {
	for _, p := range append(append([]string(nil), include...), exclude...) {
		if _, err := filepath.Match(p, ""); err != nil {
			return filter{}, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
	}
	return filter{include: include, exclude: exclude}, nil
}

func (f filter) matches(patterns []string, names ...string) bool {
	for _, p := range patterns {
		for _, n := range names {
			if ok, _ := filepath.Match(p, n); ok {
				return true
			}
		}
	}
	return false
}

// keep applies exclude before include; no include patterns keeps everything.
func (f filter) keep(names ...string) bool {
	if f.matches(f.exclude, names...) {
		return false
	}
	return len(f.include) == 0 || f.matches(f.include, names...)
}

// DiscoverImageFiles expands files and directories into the list of image
// files to classify, in argument order and without duplicates. Files named
// explicitly are kept even with an unknown extension so that loading reports
// a clear error; directory entries need a supported image extension. Hidden
// subdirectories are skipped.
func DiscoverImageFiles(args []string, recursive bool, includePatterns, excludePatterns []string) ([]string, error) {
	f, err := newFilter(includePatterns, excludePatterns)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []string
	add := func(path string) {
		key := filepath.Clean(path)
		if !seen[key] {
			seen[key] = true
			out = append(out, path)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if !info.IsDir() {
			if f.keep(filepath.Base(arg)) {
				add(arg)
			}
			continue
		}

		files, err := scanDir(arg, recursive, f)
		if err != nil {
			return nil, err
		}
		for _, p := range files {
			add(p)
		}
	}

	return out, nil
}

// scanDir lists the image files under dir in lexical order.
func scanDir(dir string, recursive bool, f filter) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == dir {
				return nil
			}
			if !recursive || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !utils.IsSupportedImage(path) {
			return nil
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			rel = d.Name()
		}
		if f.keep(d.Name(), filepath.ToSlash(rel)) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	return files, nil
}
