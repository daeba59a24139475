package registry

import (
	"reflect"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/index"
)

func TestRegisterAssignsSequentialIDs(t *testing.T) {
	r := New()
	if r.Last() != 0 {
		t.Fatalf("Last = %d on empty registry", r.Last())
	}
	a := r.Register("a.txt", 3, map[string][]int{"cat": {0, 2}})
	b := r.Register("b.txt", 1, map[string][]int{"dog": {0}})
	if a != 1 || b != 2 {
		t.Errorf("ids = %d, %d; want 1, 2", a, b)
	}
	meta, ok := r.Lookup(1)
	if !ok {
		t.Fatal("doc 1 missing")
	}
	if meta != (DocMeta{Length: 3, Magnitude: 2, Path: "a.txt"}) {
		t.Errorf("meta = %+v", meta)
	}
	if _, ok := r.Lookup(3); ok {
		t.Error("Lookup(3) found a document")
	}
	if !reflect.DeepEqual(r.IDs(), []index.DocID{1, 2}) {
		t.Errorf("IDs = %v", r.IDs())
	}
}

func TestNewFromContinues(t *testing.T) {
	r := NewFrom(41)
	if id := r.Register("x", 1, nil); id != 42 {
		t.Errorf("id = %d, want 42", id)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d", r.Len())
	}
}

func TestMetadataIsCopy(t *testing.T) {
	r := New()
	r.Register("a", 1, nil)
	m := r.Metadata()
	delete(m, 1)
	if _, ok := r.Lookup(1); !ok {
		t.Error("mutating Metadata changed the registry")
	}
}

func TestMagnitude(t *testing.T) {
	tests := []struct {
		name  string
		terms map[string][]int
		want  float64
	}{
		{"empty", nil, 0},
		{"single", map[string][]int{"a": {0}}, 1},
		{"three four", map[string][]int{"a": {0, 1, 2}, "b": {3, 4, 5, 6}}, 5},
		{"rounded", map[string][]int{"a": {0}, "b": {1}}, 1.41},
		{"rounded up", map[string][]int{"a": {0, 1}, "b": {2}}, 2.24},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Magnitude(tt.terms); got != tt.want {
				t.Errorf("Magnitude = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConcurrentReads(t *testing.T) {
	r := New()
	for i := 0; i < 100; i++ {
		r.Register("doc", 1, nil)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := index.DocID(1); id <= 100; id++ {
				if _, ok := r.Lookup(id); !ok {
					t.Errorf("doc %d missing", id)
				}
			}
		}()
	}
	wg.Wait()
}
