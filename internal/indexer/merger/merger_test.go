package merger

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/shardidx/pkg/errors"
)

func posting(id index.DocID, positions ...int) index.Posting {
	return index.Posting{DocID: id, Frequency: len(positions), Positions: positions}
}

func writeShard(t *testing.T, dir, name string, entries []index.TermEntry) segment.Paths {
	t.Helper()
	p := segment.ShardPaths(dir, name)
	if _, err := segment.Write(p, entries); err != nil {
		t.Fatalf("writing shard %s: %v", name, err)
	}
	return p
}

// Shard A holds doc 1 "the cat sat" and doc 2 "cat cat"; shard B holds
// doc 3 "dog".
func catDogShards(t *testing.T, dir string) []segment.Paths {
	a := writeShard(t, dir, "a", []index.TermEntry{
		{Term: "cat", Postings: index.PostingList{posting(1, 1), posting(2, 0, 1)}},
		{Term: "sat", Postings: index.PostingList{posting(1, 2)}},
		{Term: "the", Postings: index.PostingList{posting(1, 0)}},
	})
	b := writeShard(t, dir, "b", []index.TermEntry{
		{Term: "dog", Postings: index.PostingList{posting(3, 0)}},
	})
	return []segment.Paths{a, b}
}

func TestMergeCatDog(t *testing.T) {
	dir := t.TempDir()
	out := segment.MergedPaths(dir)
	res, err := Merge(context.Background(), catDogShards(t, dir), out, Options{KeepTerms: true})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if want := []string{"cat", "dog", "sat", "the"}; !reflect.DeepEqual(res.Terms, want) {
		t.Errorf("Terms = %v, want %v", res.Terms, want)
	}
	if res.TermCount != 4 || res.Postings != 5 || res.SharedTerms != 0 || res.Sources != 2 {
		t.Errorf("unexpected result %+v", res)
	}

	terms, err := os.ReadFile(out.Terms)
	if err != nil {
		t.Fatal(err)
	}
	if want := "cat, 0\ndog, 17\nsat, 26\nthe, 35\n"; string(terms) != want {
		t.Errorf("terms file = %q, want %q", terms, want)
	}
	postings, err := os.ReadFile(out.Postings)
	if err != nil {
		t.Fatal(err)
	}
	if want := "2,1,1,1,2,2,0,1,\n1,3,1,0,\n1,1,1,2,\n1,1,1,0,\n"; string(postings) != want {
		t.Errorf("postings file = %q, want %q", postings, want)
	}
}

func TestMergeSharedTerms(t *testing.T) {
	dir := t.TempDir()
	inputs := []segment.Paths{
		writeShard(t, dir, "s1", []index.TermEntry{
			{Term: "apple", Postings: index.PostingList{posting(1, 0)}},
			{Term: "pear", Postings: index.PostingList{posting(2, 3)}},
		}),
		writeShard(t, dir, "s2", []index.TermEntry{
			{Term: "apple", Postings: index.PostingList{posting(4, 1), posting(5, 2)}},
		}),
		writeShard(t, dir, "s3", []index.TermEntry{
			{Term: "apple", Postings: index.PostingList{posting(3, 7)}},
			{Term: "zucchini", Postings: index.PostingList{posting(3, 0)}},
		}),
	}
	out := segment.MergedPaths(dir)
	for _, parallelism := range []int{0, 4} {
		res, err := Merge(context.Background(), inputs, out, Options{Parallelism: parallelism})
		if err != nil {
			t.Fatalf("parallelism %d: %v", parallelism, err)
		}
		if res.SharedTerms != 1 || res.TermCount != 3 {
			t.Errorf("parallelism %d: result %+v", parallelism, res)
		}
		store, err := segment.Open(out)
		if err != nil {
			t.Fatal(err)
		}
		got, ok, err := store.Search("apple")
		store.Close()
		if err != nil || !ok {
			t.Fatalf("Search(apple) = %v, %v", ok, err)
		}
		if want := []index.DocID{1, 3, 4, 5}; !reflect.DeepEqual(got.DocIDs(), want) {
			t.Errorf("parallelism %d: apple docs = %v, want %v", parallelism, got.DocIDs(), want)
		}
	}
}

func TestMergeNoInputs(t *testing.T) {
	dir := t.TempDir()
	out := segment.MergedPaths(dir)
	res, err := Merge(context.Background(), nil, out, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.TermCount != 0 {
		t.Errorf("TermCount = %d", res.TermCount)
	}
	if !out.Exists() {
		t.Error("empty merged store not written")
	}
}

func TestMergeDuplicateDoc(t *testing.T) {
	dir := t.TempDir()
	inputs := []segment.Paths{
		writeShard(t, dir, "a", []index.TermEntry{{Term: "x", Postings: index.PostingList{posting(1, 0)}}}),
		writeShard(t, dir, "b", []index.TermEntry{{Term: "x", Postings: index.PostingList{posting(1, 4)}}}),
	}
	out := segment.MergedPaths(dir)
	_, err := Merge(context.Background(), inputs, out, Options{})
	if !errors.Is(err, apperrors.ErrDuplicateDoc) {
		t.Fatalf("Merge error = %v, want ErrDuplicateDoc", err)
	}
	if out.Exists() {
		t.Error("failed merge published output")
	}
}

func TestMergeMissingShard(t *testing.T) {
	dir := t.TempDir()
	missing := segment.ShardPaths(dir, "gone")
	_, err := Merge(context.Background(), []segment.Paths{missing}, segment.MergedPaths(dir), Options{})
	if !errors.Is(err, apperrors.ErrIndexNotFound) {
		t.Errorf("Merge error = %v, want ErrIndexNotFound", err)
	}
}

func TestMergeCorruptShard(t *testing.T) {
	dir := t.TempDir()
	good := writeShard(t, dir, "good", []index.TermEntry{{Term: "a", Postings: index.PostingList{posting(1, 0)}}})
	bad := segment.ShardPaths(dir, "bad")
	if err := os.WriteFile(bad.Terms, []byte("b, 0\na, 9\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad.Postings, []byte("1,2,1,0,\n1,3,1,0,\n"), 0644); err != nil {
		t.Fatal(err)
	}
	out := segment.MergedPaths(dir)
	_, err := Merge(context.Background(), []segment.Paths{good, bad}, out, Options{})
	if !errors.Is(err, apperrors.ErrCorruptFormat) {
		t.Errorf("Merge error = %v, want ErrCorruptFormat", err)
	}
	if out.Exists() {
		t.Error("failed merge published output")
	}
}

func TestMergeCancelled(t *testing.T) {
	dir := t.TempDir()
	inputs := catDogShards(t, dir)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := segment.MergedPaths(dir)
	_, err := Merge(ctx, inputs, out, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Merge error = %v, want context.Canceled", err)
	}
	if out.Exists() {
		t.Error("cancelled merge published output")
	}
}

func TestMergeOnTerm(t *testing.T) {
	dir := t.TempDir()
	var seen []string
	_, err := Merge(context.Background(), catDogShards(t, dir), segment.MergedPaths(dir), Options{
		OnTerm: func(term string, postings int) { seen = append(seen, term) },
	})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"cat", "dog", "sat", "the"}; !reflect.DeepEqual(seen, want) {
		t.Errorf("OnTerm saw %v, want %v", seen, want)
	}
}

func BenchmarkMerge(b *testing.B) {
	dir := b.TempDir()
	var inputs []segment.Paths
	for s := 0; s < 4; s++ {
		entries := make([]index.TermEntry, 0, 500)
		for i := 0; i < 500; i++ {
			entries = append(entries, index.TermEntry{
				Term:     termName(i),
				Postings: index.PostingList{posting(index.DocID(s*1000+i+1), 0, 3)},
			})
		}
		p := segment.ShardPaths(dir, termName(s))
		if _, err := segment.Write(p, entries); err != nil {
			b.Fatal(err)
		}
		inputs = append(inputs, p)
	}
	out := segment.MergedPaths(dir)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Merge(context.Background(), inputs, out, Options{Parallelism: 4}); err != nil {
			b.Fatal(err)
		}
	}
}

func termName(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return string([]byte{letters[i/676%26], letters[i/26%26], letters[i%26]})
}
