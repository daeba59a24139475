// Package shard discovers the shards of a corpus and the documents inside
// each one. A shard is an immediate sub-directory of the corpus root; shards
// and documents are always returned in lexical order so document ids are
// assigned deterministically.
package shard

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// Shard is one independently indexed directory.
type Shard struct {
	Name string
	Dir  string
}

// List returns the shards under root, sorted by name.
func List(root string) ([]Shard, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading corpus root: %w", err)
	}
	shards := make([]Shard, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		shards = append(shards, Shard{
			Name: entry.Name(),
			Dir:  filepath.Join(root, entry.Name()),
		})
	}
	sort.Slice(shards, func(i, j int) bool {
		return shards[i].Name < shards[j].Name
	})
	return shards, nil
}

// Walker selects document files inside a shard with doublestar patterns
// matched against the slash-separated path relative to the shard.
type Walker struct {
	includes []string
	excludes []string
}

func NewWalker(includes, excludes []string) (*Walker, error) {
	if len(includes) == 0 {
		includes = []string{"**/*"}
	}
	for _, p := range append(append([]string{}, includes...), excludes...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid glob pattern %q", p)
		}
	}
	return &Walker{
		includes: includes,
		excludes: excludes,
	}, nil
}

// Files returns the document paths of s in lexical order.
func (w *Walker) Files(s Shard) ([]string, error) {
	var files []string
	err := filepath.WalkDir(s.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.Dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && w.match(w.excludes, rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if w.match(w.includes, rel) && !w.match(w.excludes, rel) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking shard %s: %w", s.Name, err)
	}
	sort.Strings(files)
	return files, nil
}

func (w *Walker) match(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}
