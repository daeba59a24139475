package segment

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/shardidx/pkg/errors"
)

func sampleEntries() []index.TermEntry {
	return []index.TermEntry{
		{Term: "cat", Postings: index.PostingList{
			{DocID: 1, Frequency: 2, Positions: []int{0, 5}},
			{DocID: 2, Frequency: 1, Positions: []int{2}},
		}},
		{Term: "dog", Postings: index.PostingList{
			{DocID: 3, Frequency: 1, Positions: []int{1}},
		}},
	}
}

func TestWriteFileFormat(t *testing.T) {
	dir := t.TempDir()
	paths := ShardPaths(dir, "shard1")
	dict, err := Write(paths, sampleEntries())
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	terms, err := os.ReadFile(paths.Terms)
	if err != nil {
		t.Fatal(err)
	}
	if want := "cat, 0\ndog, 17\n"; string(terms) != want {
		t.Errorf("terms file = %q, want %q", terms, want)
	}
	postings, err := os.ReadFile(paths.Postings)
	if err != nil {
		t.Fatal(err)
	}
	if want := "2,1,2,0,5,2,1,2,\n1,3,1,1,\n"; string(postings) != want {
		t.Errorf("postings file = %q, want %q", postings, want)
	}
	if off, ok := dict.Lookup("dog"); !ok || off != 17 {
		t.Errorf("Lookup(dog) = %d, %v", off, ok)
	}
	wantEntries := []DictEntry{{Term: "cat", Offset: 0}, {Term: "dog", Offset: 17}}
	if !reflect.DeepEqual(dict.Entries(), wantEntries) {
		t.Errorf("Entries = %v, want %v", dict.Entries(), wantEntries)
	}
	if filepath.Base(paths.Terms) != "index_shard1_terms.txt" || filepath.Base(paths.Postings) != "index_shard1_postings.txt" {
		t.Errorf("unexpected file names %v", paths)
	}
	assertNoTemps(t, dir)
}

func TestWriterCounters(t *testing.T) {
	w, err := NewWriter(ShardPaths(t.TempDir(), "s"))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Abort()
	for _, e := range sampleEntries() {
		if err := w.Append(e.Term, e.Postings); err != nil {
			t.Fatal(err)
		}
	}
	if w.Offset() != 26 {
		t.Errorf("Offset = %d, want 26", w.Offset())
	}
	if w.Postings() != 3 {
		t.Errorf("Postings = %d, want 3", w.Postings())
	}
}

func TestStoreRoundTrip(t *testing.T) {
	paths := MergedPaths(t.TempDir())
	if _, err := Write(paths, sampleEntries()); err != nil {
		t.Fatal(err)
	}
	store, err := Open(paths)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	for _, e := range sampleEntries() {
		got, ok, err := store.Search(e.Term)
		if err != nil || !ok {
			t.Fatalf("Search(%q) = %v, %v", e.Term, ok, err)
		}
		if !got.Equal(e.Postings) {
			t.Errorf("Search(%q) = %v, want %v", e.Term, got, e.Postings)
		}
	}
	if _, ok, err := store.Search("elephant"); ok || err != nil {
		t.Errorf("missing term: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(store.Dictionary().Terms(), []string{"cat", "dog"}) {
		t.Errorf("Terms = %v", store.Dictionary().Terms())
	}
	if store.Terms() != 2 {
		t.Errorf("Terms() = %d", store.Terms())
	}
}

func TestEmptyStore(t *testing.T) {
	paths := ShardPaths(t.TempDir(), "empty")
	dict, err := Write(paths, nil)
	if err != nil {
		t.Fatal(err)
	}
	if dict.Len() != 0 {
		t.Errorf("dictionary has %d entries", dict.Len())
	}
	store, err := Open(paths)
	if err != nil {
		t.Fatalf("Open empty store: %v", err)
	}
	defer store.Close()
	if _, ok, err := store.Search("anything"); ok || err != nil {
		t.Errorf("Search on empty store: ok=%v err=%v", ok, err)
	}
}

func TestWriterRejectsUnsortedTerms(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(ShardPaths(dir, "s"))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Abort()
	list := index.PostingList{{DocID: 1, Frequency: 1, Positions: []int{0}}}
	if err := w.Append("dog", list); err != nil {
		t.Fatal(err)
	}
	for _, term := range []string{"cat", "dog"} {
		if err := w.Append(term, list); !errors.Is(err, apperrors.ErrUnsortedTerm) {
			t.Errorf("Append(%q) error = %v, want ErrUnsortedTerm", term, err)
		}
	}
}

func TestValidateTerm(t *testing.T) {
	for _, term := range []string{"", "a, b", "line\nbreak", "cr\r"} {
		if err := ValidateTerm(term); !errors.Is(err, apperrors.ErrInvalidTerm) {
			t.Errorf("ValidateTerm(%q) = %v, want ErrInvalidTerm", term, err)
		}
	}
	for _, term := range []string{"cat", "a,b", "x y"} {
		if err := ValidateTerm(term); err != nil {
			t.Errorf("ValidateTerm(%q) = %v", term, err)
		}
	}
}

func TestAbortLeavesNoFiles(t *testing.T) {
	dir := t.TempDir()
	paths := ShardPaths(dir, "s")
	w, err := NewWriter(paths)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Append("cat", index.PostingList{{DocID: 1, Frequency: 1, Positions: []int{0}}}); err != nil {
		t.Fatal(err)
	}
	w.Abort()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("abort left %d files", len(entries))
	}
	if paths.Exists() {
		t.Error("store exists after abort")
	}
}

func TestFailedWriteKeepsPreviousStore(t *testing.T) {
	dir := t.TempDir()
	paths := ShardPaths(dir, "s")
	if _, err := Write(paths, sampleEntries()); err != nil {
		t.Fatal(err)
	}
	bad := []index.TermEntry{
		{Term: "b", Postings: index.PostingList{{DocID: 1, Frequency: 1, Positions: []int{0}}}},
		{Term: "a", Postings: index.PostingList{{DocID: 1, Frequency: 1, Positions: []int{0}}}},
	}
	if _, err := Write(paths, bad); err == nil {
		t.Fatal("unsorted write succeeded")
	}
	store, err := Open(paths)
	if err != nil {
		t.Fatalf("previous store unreadable: %v", err)
	}
	defer store.Close()
	if store.Terms() != 2 {
		t.Errorf("previous store has %d terms", store.Terms())
	}
	assertNoTemps(t, dir)
}

func TestReadDictionaryCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no separator", "cat 0\n"},
		{"bad offset", "cat, x\n"},
		{"negative offset", "cat, -4\n"},
		{"missing newline", "cat, 0"},
		{"unsorted", "dog, 0\ncat, 10\n"},
		{"duplicate", "cat, 0\ncat, 10\n"},
		{"empty term", ", 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "terms.txt")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := ReadDictionary(path); !errors.Is(err, apperrors.ErrCorruptFormat) {
				t.Errorf("ReadDictionary error = %v, want ErrCorruptFormat", err)
			}
		})
	}
}

func TestReadDictionaryTermWithComma(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terms.txt")
	if err := os.WriteFile(path, []byte("a,b, 0\nc, 12\n"), 0644); err != nil {
		t.Fatal(err)
	}
	dict, err := ReadDictionary(path)
	if err != nil {
		t.Fatal(err)
	}
	if off, ok := dict.Lookup("a,b"); !ok || off != 0 {
		t.Errorf("Lookup(a,b) = %d, %v", off, ok)
	}
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(MergedPaths(t.TempDir()))
	if !errors.Is(err, apperrors.ErrIndexNotFound) {
		t.Errorf("Open error = %v, want ErrIndexNotFound", err)
	}
}

func TestReadPostingAtBadOffset(t *testing.T) {
	paths := MergedPaths(t.TempDir())
	if _, err := Write(paths, sampleEntries()); err != nil {
		t.Fatal(err)
	}
	r, err := OpenReader(paths.Postings)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	for _, off := range []int64{-1, r.Size(), r.Size() + 10} {
		if _, err := r.ReadPostingAt(off); !errors.Is(err, apperrors.ErrCorruptFormat) {
			t.Errorf("ReadPostingAt(%d) error = %v, want ErrCorruptFormat", off, err)
		}
	}
}

func TestDiscoverShards(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if _, err := Write(ShardPaths(dir, name), sampleEntries()); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := Write(MergedPaths(dir), sampleEntries()); err != nil {
		t.Fatal(err)
	}
	// A terms file without postings is ignored.
	if err := os.WriteFile(filepath.Join(dir, "index_orphan_terms.txt"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	shards, err := DiscoverShards(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, s := range shards {
		names = append(names, s.Name)
	}
	if want := []string{"alpha", "mid", "zeta"}; !reflect.DeepEqual(names, want) {
		t.Errorf("DiscoverShards = %v, want %v", names, want)
	}
}

func assertNoTemps(t *testing.T, dir string) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*"+tmpSuffix))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) > 0 {
		t.Errorf("temporary files left behind: %v", matches)
	}
}

func TestManifest(t *testing.T) {
	dir := t.TempDir()
	if _, err := ReadManifest(dir); !errors.Is(err, apperrors.ErrIndexNotFound) {
		t.Fatalf("ReadManifest on empty dir: %v, want ErrIndexNotFound", err)
	}
	for _, name := range []string{"a", "b", "stale"} {
		if _, err := Write(ShardPaths(dir, name), sampleEntries()); err != nil {
			t.Fatal(err)
		}
	}
	if err := WriteManifest(dir, Manifest{Shards: []string{"b", "a"}, Documents: 3}); err != nil {
		t.Fatal(err)
	}
	m, err := ReadManifest(dir)
	if err != nil {
		t.Fatal(err)
	}
	stores, err := m.Stores(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, s := range stores {
		names = append(names, s.Name)
	}
	if !reflect.DeepEqual(names, []string{"b", "a"}) || m.Documents != 3 {
		t.Errorf("Stores = %v, Documents = %d", names, m.Documents)
	}
	assertNoTemps(t, dir)

	if err := ShardPaths(dir, "a").Remove(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Stores(dir); !errors.Is(err, apperrors.ErrIndexNotFound) {
		t.Errorf("Stores with a missing shard: %v, want ErrIndexNotFound", err)
	}

	if err := RemoveManifest(dir); err != nil {
		t.Fatal(err)
	}
	if err := RemoveManifest(dir); err != nil {
		t.Errorf("second RemoveManifest: %v", err)
	}
	if _, err := ReadManifest(dir); !errors.Is(err, apperrors.ErrIndexNotFound) {
		t.Errorf("ReadManifest after remove: %v", err)
	}
}

func TestManifestCorrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(ManifestPath(dir), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadManifest(dir); !errors.Is(err, apperrors.ErrCorruptFormat) {
		t.Errorf("ReadManifest = %v, want ErrCorruptFormat", err)
	}
}
