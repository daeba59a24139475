package segment

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/shardidx/pkg/errors"
)

// ManifestFile records which shard stores belong to the published index.
const ManifestFile = "index_manifest.json"

// Manifest is written last by a successful build. Shard stores in the
// output directory that it does not name are not part of the index.
type Manifest struct {
	Shards    []string  `json:"shards"`
	Documents int       `json:"documents"`
	BuiltAt   time.Time `json:"built_at"`
}

func ManifestPath(dir string) string {
	return filepath.Join(dir, ManifestFile)
}

// WriteManifest publishes m atomically.
func WriteManifest(dir string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	path := ManifestPath(dir)
	tmp := path + tmpSuffix
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publishing manifest: %w", err)
	}
	return nil
}

// ReadManifest loads the manifest of dir. A missing manifest means no
// complete build has been published there.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(ManifestPath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Newf(apperrors.ErrIndexNotFound, "segment.manifest", "no published index in %s", dir)
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, apperrors.Corruptf("segment.manifest", "%s: %v", ManifestPath(dir), err)
	}
	return &m, nil
}

// RemoveManifest unpublishes the index of dir.
func RemoveManifest(dir string) error {
	if err := os.Remove(ManifestPath(dir)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing manifest: %w", err)
	}
	return nil
}

// Stores returns the shard stores named by m, in manifest order. Every
// store must still be on disk.
func (m *Manifest) Stores(dir string) ([]Paths, error) {
	stores := make([]Paths, 0, len(m.Shards))
	for _, name := range m.Shards {
		p := ShardPaths(dir, name)
		if !p.Exists() {
			return nil, apperrors.Newf(apperrors.ErrIndexNotFound, "segment.manifest", "shard store %s is missing from %s", name, dir)
		}
		stores = append(stores, p)
	}
	return stores, nil
}
