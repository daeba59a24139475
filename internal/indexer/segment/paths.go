package segment

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	shardPrefix    = "index_"
	termsSuffix    = "_terms.txt"
	postingsSuffix = "_postings.txt"
	mergedName     = "inverted_index"
	tmpSuffix      = ".tmp"
)

// Paths names the two files of one index store.
type Paths struct {
	Name     string
	Terms    string
	Postings string
}

// ShardPaths returns the file pair for a shard named name inside dir.
func ShardPaths(dir, name string) Paths {
	base := shardPrefix + name
	return Paths{
		Name:     name,
		Terms:    filepath.Join(dir, base+termsSuffix),
		Postings: filepath.Join(dir, base+postingsSuffix),
	}
}

// MergedPaths returns the file pair of the corpus-wide index inside dir.
func MergedPaths(dir string) Paths {
	return Paths{
		Name:     mergedName,
		Terms:    filepath.Join(dir, mergedName+termsSuffix),
		Postings: filepath.Join(dir, mergedName+postingsSuffix),
	}
}

// Exists reports whether both files are present.
func (p Paths) Exists() bool {
	for _, f := range []string{p.Terms, p.Postings} {
		if _, err := os.Stat(f); err != nil {
			return false
		}
	}
	return true
}

// Remove deletes both files, ignoring files that are already gone.
func (p Paths) Remove() error {
	for _, f := range []string{p.Terms, p.Postings} {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", f, err)
		}
	}
	return nil
}

// DiscoverShards lists the shard stores in dir, sorted by shard name.
// Stores with a missing postings file are skipped.
func DiscoverShards(dir string) ([]Paths, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading index directory: %w", err)
	}
	var shards []Paths
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, shardPrefix) || !strings.HasSuffix(name, termsSuffix) {
			continue
		}
		shardName := strings.TrimSuffix(strings.TrimPrefix(name, shardPrefix), termsSuffix)
		p := ShardPaths(dir, shardName)
		if _, err := os.Stat(p.Postings); err != nil {
			continue
		}
		shards = append(shards, p)
	}
	sort.Slice(shards, func(i, j int) bool {
		return shards[i].Name < shards[j].Name
	})
	return shards, nil
}
