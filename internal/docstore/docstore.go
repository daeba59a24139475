// Package docstore persists the document metadata table produced by the
// registry and serves id lookups to the retrieval engine.
package docstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/registry"
	apperrors "github.com/Adithya-Monish-Kumar-K/shardidx/pkg/errors"
)

// FileName is the metadata file written next to the merged index.
const FileName = "docs_meta_data.txt"

// Lookup resolves document ids to their metadata.
type Lookup interface {
	Lookup(id index.DocID) (registry.DocMeta, bool, error)
}

// Table is an in-memory metadata table loaded from the JSON file.
type Table map[index.DocID]registry.DocMeta

func (t Table) Lookup(id index.DocID) (registry.DocMeta, bool, error) {
	meta, ok := t[id]
	return meta, ok, nil
}

// Path returns the metadata file location inside dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// SaveJSON writes the table as a single JSON object keyed by decimal id.
func SaveJSON(path string, docs map[index.DocID]registry.DocMeta) error {
	data, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("marshaling document metadata: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing document metadata: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming document metadata: %w", err)
	}
	return nil
}

// LoadJSON reads a metadata file written by SaveJSON.
func LoadJSON(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Newf(apperrors.ErrIndexNotFound, "docstore.load", "%s", path)
		}
		return nil, fmt.Errorf("reading document metadata: %w", err)
	}
	table := make(Table)
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, apperrors.Corruptf("docstore.load", "%s: %v", path, err)
	}
	return table, nil
}

// Remove deletes the metadata file and its bolt mirror from dir. Missing
// files are not an error.
func Remove(dir string) error {
	for _, path := range []string{Path(dir), BoltPath(dir)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", path, err)
		}
	}
	return nil
}
