package docstore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/registry"
	apperrors "github.com/Adithya-Monish-Kumar-K/shardidx/pkg/errors"
)

func sampleDocs() map[index.DocID]registry.DocMeta {
	return map[index.DocID]registry.DocMeta{
		1:   {Length: 3, Magnitude: 1.41, Path: "corpus/a/one.txt"},
		2:   {Length: 2, Magnitude: 1, Path: "corpus/a/two.txt"},
		300: {Length: 7, Magnitude: 2.65, Path: "corpus/b/three.html"},
	}
}

func TestJSONRoundTrip(t *testing.T) {
	path := Path(t.TempDir())
	if err := SaveJSON(path, sampleDocs()); err != nil {
		t.Fatalf("SaveJSON: %v", err)
	}
	table, err := LoadJSON(path)
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if len(table) != 3 {
		t.Fatalf("loaded %d docs", len(table))
	}
	for id, want := range sampleDocs() {
		got, ok, err := table.Lookup(id)
		if err != nil || !ok || got != want {
			t.Errorf("Lookup(%d) = %+v, %v, %v", id, got, ok, err)
		}
	}
	if _, ok, _ := table.Lookup(4); ok {
		t.Error("Lookup(4) found a document")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary metadata file left behind")
	}
}

func TestJSONKeysAreDecimalIDs(t *testing.T) {
	path := Path(t.TempDir())
	if err := SaveJSON(path, sampleDocs()); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	doc, ok := raw["300"]
	if !ok {
		t.Fatalf("key \"300\" missing from %s", data)
	}
	for _, field := range []string{"length", "magnitude", "path"} {
		if _, ok := doc[field]; !ok {
			t.Errorf("field %q missing", field)
		}
	}
}

func TestLoadJSONErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadJSON(filepath.Join(dir, "missing.txt")); !errors.Is(err, apperrors.ErrIndexNotFound) {
		t.Errorf("missing file error = %v, want ErrIndexNotFound", err)
	}
	bad := filepath.Join(dir, "bad.txt")
	if err := os.WriteFile(bad, []byte(`{"1": {"length": `), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadJSON(bad); !errors.Is(err, apperrors.ErrCorruptFormat) {
		t.Errorf("truncated file error = %v, want ErrCorruptFormat", err)
	}
}

func TestBoltStore(t *testing.T) {
	path := BoltPath(t.TempDir())
	store, err := OpenBolt(path, false)
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	if err := store.PutAll(sampleDocs()); err != nil {
		t.Fatal(err)
	}
	// A second PutAll replaces rather than extends the table.
	smaller := map[index.DocID]registry.DocMeta{1: {Length: 9, Path: "new.txt"}, 2: sampleDocs()[2]}
	if err := store.PutAll(smaller); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	ro, err := OpenBolt(path, true)
	if err != nil {
		t.Fatalf("OpenBolt read-only: %v", err)
	}
	defer ro.Close()
	n, err := ro.Len()
	if err != nil || n != 2 {
		t.Errorf("Len = %d, %v; want 2", n, err)
	}
	got, ok, err := ro.Lookup(1)
	if err != nil || !ok || got.Path != "new.txt" || got.Length != 9 {
		t.Errorf("Lookup(1) = %+v, %v, %v", got, ok, err)
	}
	if _, ok, err := ro.Lookup(300); ok || err != nil {
		t.Errorf("Lookup(300) = %v, %v after replace", ok, err)
	}

	var _ Lookup = ro
	var _ Lookup = Table{}
}

func TestIDKeyOrder(t *testing.T) {
	a, b := idKey(255), idKey(256)
	if string(a) >= string(b) {
		t.Errorf("idKey(255) sorts after idKey(256)")
	}
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	if err := SaveJSON(Path(dir), sampleDocs()); err != nil {
		t.Fatal(err)
	}
	store, err := OpenBolt(BoltPath(dir), false)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
	if err := Remove(dir); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	for _, path := range []string{Path(dir), BoltPath(dir)} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("%s still present: %v", filepath.Base(path), err)
		}
	}
	if err := Remove(dir); err != nil {
		t.Errorf("Remove on empty dir: %v", err)
	}
}
