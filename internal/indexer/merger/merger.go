// Package merger combines shard index stores into one corpus-wide store
// with an external k-way merge. Only the current dictionary line of each
// shard and the posting lists of the term being merged are held in memory.
package merger

import (
	"container/heap"
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/shardidx/pkg/logger"
)

// Options tunes a merge run.
type Options struct {
	// Parallelism bounds how many shard records are decoded at once for
	// a term found in several shards. Values below 2 decode sequentially.
	Parallelism int
	// KeepTerms collects every merged term into Result.Terms.
	KeepTerms bool
	// OnTerm, if set, is called after each term is written.
	OnTerm func(term string, postings int)
}

// Result summarises a merge.
type Result struct {
	Terms       []string
	TermCount   int
	Postings    int
	Sources     int
	SharedTerms int
	Duration    time.Duration
}

type source struct {
	id     int
	paths  segment.Paths
	cursor *segment.Cursor
	reader *segment.Reader
}

// Merge merges inputs into output. Output files are published only when the
// whole merge succeeds.
func Merge(ctx context.Context, inputs []segment.Paths, output segment.Paths, opts Options) (*Result, error) {
	log := logger.WithComponent("merger")
	start := time.Now()

	sources, err := openSources(inputs)
	defer closeSources(sources)
	if err != nil {
		return nil, err
	}

	w, err := segment.NewWriter(output)
	if err != nil {
		return nil, fmt.Errorf("creating merged store: %w", err)
	}
	defer w.Abort()

	h := &cursorHeap{}
	for _, src := range sources {
		if err := h.pushNext(src); err != nil {
			return nil, err
		}
	}

	res := &Result{Sources: len(sources)}
	group := make([]*source, 0, len(sources))
	for h.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("merge cancelled: %w", err)
		}

		// Pop every cursor positioned on the minimum term.
		group = group[:0]
		first := heap.Pop(h).(*source)
		term := first.cursor.Entry().Term
		group = append(group, first)
		for h.Len() > 0 && h.peekTerm() == term {
			group = append(group, heap.Pop(h).(*source))
		}

		lists, err := readGroup(ctx, group, opts.Parallelism)
		if err != nil {
			return nil, fmt.Errorf("merging term %q: %w", term, err)
		}
		merged, err := index.MergeAll(lists)
		if err != nil {
			return nil, fmt.Errorf("merging term %q: %w", term, err)
		}
		if err := w.Append(term, merged); err != nil {
			return nil, fmt.Errorf("writing merged term %q: %w", term, err)
		}

		for _, src := range group {
			if err := h.pushNext(src); err != nil {
				return nil, err
			}
		}

		res.TermCount++
		if len(group) > 1 {
			res.SharedTerms++
		}
		if opts.KeepTerms {
			res.Terms = append(res.Terms, term)
		}
		if opts.OnTerm != nil {
			opts.OnTerm(term, len(merged))
		}
	}

	res.Postings = w.Postings()
	size := w.Offset()
	if _, err := w.Commit(); err != nil {
		return nil, fmt.Errorf("publishing merged store: %w", err)
	}
	res.Duration = time.Since(start)
	log.Info("merge complete",
		"sources", res.Sources,
		"terms", res.TermCount,
		"shared_terms", res.SharedTerms,
		"postings", res.Postings,
		"postings_bytes", size,
		"duration", res.Duration,
	)
	return res, nil
}

// readGroup decodes the current record of every source in group. Results
// keep the group's order regardless of how decoding is scheduled.
func readGroup(ctx context.Context, group []*source, parallelism int) ([]index.PostingList, error) {
	lists := make([]index.PostingList, len(group))
	if parallelism < 2 || len(group) < 2 {
		for i, src := range group {
			l, err := src.read()
			if err != nil {
				return nil, err
			}
			lists[i] = l
		}
		return lists, nil
	}
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, src := range group {
		g.Go(func() error {
			l, err := src.read()
			if err != nil {
				return err
			}
			lists[i] = l
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lists, nil
}

func (s *source) read() (index.PostingList, error) {
	entry := s.cursor.Entry()
	postings, err := s.reader.ReadPostingAt(entry.Offset)
	if err != nil {
		return nil, fmt.Errorf("shard %s: %w", s.paths.Name, err)
	}
	return postings, nil
}

func openSources(inputs []segment.Paths) ([]*source, error) {
	sources := make([]*source, 0, len(inputs))
	for i, p := range inputs {
		cursor, err := segment.OpenCursor(p.Terms)
		if err != nil {
			return sources, fmt.Errorf("opening shard %s: %w", p.Name, err)
		}
		reader, err := segment.OpenReader(p.Postings)
		if err != nil {
			cursor.Close()
			return sources, fmt.Errorf("opening shard %s: %w", p.Name, err)
		}
		sources = append(sources, &source{
			id:     i,
			paths:  p,
			cursor: cursor,
			reader: reader,
		})
	}
	return sources, nil
}

func closeSources(sources []*source) {
	for _, s := range sources {
		s.cursor.Close()
		s.reader.Close()
	}
}

// cursorHeap orders sources by current term, then by shard position so tie
// groups come out in shard order.
type cursorHeap []*source

func (h cursorHeap) Len() int { return len(h) }

func (h cursorHeap) Less(i, j int) bool {
	ti, tj := h[i].cursor.Entry().Term, h[j].cursor.Entry().Term
	if ti != tj {
		return ti < tj
	}
	return h[i].id < h[j].id
}

func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *cursorHeap) Push(x interface{}) {
	*h = append(*h, x.(*source))
}

func (h *cursorHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func (h cursorHeap) peekTerm() string {
	return h[0].cursor.Entry().Term
}

// pushNext advances src and pushes it back unless its dictionary is
// exhausted.
func (h *cursorHeap) pushNext(src *source) error {
	if src.cursor.Next() {
		heap.Push(h, src)
		return nil
	}
	if err := src.cursor.Err(); err != nil {
		return fmt.Errorf("shard %s: %w", src.paths.Name, err)
	}
	return nil
}
