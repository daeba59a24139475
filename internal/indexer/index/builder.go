// Package index holds the in-memory side of a shard index: posting types,
// the per-shard Builder and the DocID-ordered list merge used when shards
// are combined.
package index

import (
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/shardidx/pkg/errors"
)

// Builder accumulates posting lists for one shard. Documents must be added
// in ascending DocID order; each term's list then stays sorted without a
// sort step.
type Builder struct {
	mu       sync.RWMutex
	index    map[string]PostingList
	lastID   DocID
	docCount int
	size     int64
}

func NewBuilder() *Builder {
	return &Builder{
		index: make(map[string]PostingList),
	}
}

// Add appends a posting for every term of the document.
func (b *Builder) Add(id DocID, termPositions map[string][]int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.docCount > 0 && id <= b.lastID {
		return apperrors.Newf(apperrors.ErrOutOfOrder, "index.add",
			"doc %d added after doc %d", id, b.lastID)
	}
	for term, positions := range termPositions {
		if len(positions) == 0 {
			return apperrors.Newf(apperrors.ErrInvalidPosting, "index.add",
				"term %q in doc %d has no positions", term, id)
		}
		pos := make([]int, len(positions))
		copy(pos, positions)
		b.index[term] = append(b.index[term], Posting{
			DocID:     id,
			Frequency: len(pos),
			Positions: pos,
		})
		b.size += int64(len(term) + len(pos)*8 + 32)
	}
	b.lastID = id
	b.docCount++
	return nil
}

// Build adds every document in order and returns the sorted snapshot.
func (b *Builder) Build(docs []Document) ([]TermEntry, error) {
	for _, doc := range docs {
		if err := b.Add(doc.ID, doc.Terms); err != nil {
			return nil, fmt.Errorf("building shard index: %w", err)
		}
	}
	return b.Snapshot(), nil
}

// Snapshot returns the index with terms in lexicographic order.
func (b *Builder) Snapshot() []TermEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entries := make([]TermEntry, 0, len(b.index))
	for term, postings := range b.index {
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: postings,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}

// Search returns the posting list for a term, or nil.
func (b *Builder) Search(term string) PostingList {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index[term]
}

func (b *Builder) Terms() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.index)
}

func (b *Builder) Size() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

func (b *Builder) DocCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.docCount
}

// Reset clears the builder. The DocID ordering check restarts as well, so a
// reset builder may be reused for the next shard.
func (b *Builder) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.index = make(map[string]PostingList)
	b.lastID = 0
	b.docCount = 0
	b.size = 0
}
