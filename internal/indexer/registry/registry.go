// Package registry assigns document ids and keeps per-document metadata.
package registry

import (
	"math"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/index"
)

// DocMeta is the metadata persisted for every indexed document. Magnitude
// is kept for scoring even though retrieval does not use it yet.
type DocMeta struct {
	Length    int     `json:"length"`
	Magnitude float64 `json:"magnitude"`
	Path      string  `json:"path"`
}

// Registry owns the document id counter. It must have a single writer; the
// table itself is safe to read concurrently.
type Registry struct {
	mu   sync.RWMutex
	last index.DocID
	docs map[index.DocID]DocMeta
}

// New returns a registry whose first id is 1.
func New() *Registry {
	return NewFrom(0)
}

// NewFrom returns a registry that continues after last.
func NewFrom(last index.DocID) *Registry {
	return &Registry{
		last: last,
		docs: make(map[index.DocID]DocMeta),
	}
}

// Register assigns the next id to a successfully analysed document.
func (r *Registry) Register(path string, length int, termPositions map[string][]int) index.DocID {
	meta := DocMeta{
		Length:    length,
		Magnitude: Magnitude(termPositions),
		Path:      path,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last++
	r.docs[r.last] = meta
	return r.last
}

func (r *Registry) Lookup(id index.DocID) (DocMeta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.docs[id]
	return meta, ok
}

// Metadata returns a copy of the whole table.
func (r *Registry) Metadata() map[index.DocID]DocMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[index.DocID]DocMeta, len(r.docs))
	for id, meta := range r.docs {
		out[id] = meta
	}
	return out
}

// IDs returns every registered id in ascending order.
func (r *Registry) IDs() []index.DocID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]index.DocID, 0, len(r.docs))
	for id := range r.docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Last returns the most recently assigned id, or 0.
func (r *Registry) Last() index.DocID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}

// Magnitude is the L2 norm of the term frequency vector, rounded to two
// decimals.
func Magnitude(termPositions map[string][]int) float64 {
	var sum float64
	for _, positions := range termPositions {
		f := float64(len(positions))
		sum += f * f
	}
	return math.Round(math.Sqrt(sum)*100) / 100
}
