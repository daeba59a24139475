// Package executor evaluates query plans against an index store and
// resolves matching document ids to their source paths.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/shardidx/pkg/errors"
)

// Searcher returns the posting list of a term. segment.Store implements it.
type Searcher interface {
	Search(term string) (index.PostingList, bool, error)
}

// Result is the outcome of one query. A query that matches nothing has
// Count 0 and is not an error.
type Result struct {
	Query        string        `json:"query"`
	Terms        []string      `json:"terms"`
	MatchedTerms []string      `json:"matched_terms"`
	DocIDs       []index.DocID `json:"doc_ids"`
	Paths        []string      `json:"paths"`
	Count        int           `json:"count"`
}

type Option func(*options)

type options struct {
	sortPaths bool
}

// WithSortedPaths orders result paths lexically instead of by document id.
func WithSortedPaths(sorted bool) Option {
	return func(o *options) { o.sortPaths = sorted }
}

type Executor struct {
	searcher Searcher
	docs     docstore.Lookup
	opts     options
	logger   *slog.Logger
}

func New(searcher Searcher, docs docstore.Lookup, opts ...Option) *Executor {
	o := options{sortPaths: true}
	for _, opt := range opts {
		opt(&o)
	}
	return &Executor{
		searcher: searcher,
		docs:     docs,
		opts:     o,
		logger:   slog.Default().With("component", "query-executor"),
	}
}

// Execute returns every document containing at least one of the plan's
// terms.
func (e *Executor) Execute(ctx context.Context, plan *parser.QueryPlan) (*Result, error) {
	if plan.Empty() {
		return emptyResult(plan), nil
	}
	matches := roaring64.New()
	matched, err := collect(ctx, e.searcher, plan.Terms, matches)
	if err != nil {
		return nil, err
	}
	result, err := resolve(plan, matched, matches, e.docs, e.opts)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("query executed",
		"query", plan.RawQuery,
		"terms", plan.Terms,
		"matched_terms", len(matched),
		"results", result.Count,
	)
	return result, nil
}

// collect adds the document ids of every term found by s to matches and
// returns the terms that were present.
func collect(ctx context.Context, s Searcher, terms []string, matches *roaring64.Bitmap) ([]string, error) {
	matched := make([]string, 0, len(terms))
	for _, term := range terms {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		postings, ok, err := s.Search(term)
		if err != nil {
			return nil, fmt.Errorf("searching term %q: %w", term, err)
		}
		if !ok {
			continue
		}
		matched = append(matched, term)
		for _, p := range postings {
			matches.Add(uint64(p.DocID))
		}
	}
	return matched, nil
}

func resolve(plan *parser.QueryPlan, matched []string, matches *roaring64.Bitmap, docs docstore.Lookup, o options) (*Result, error) {
	result := emptyResult(plan)
	result.MatchedTerms = matched
	seen := make(map[string]struct{}, matches.GetCardinality())
	it := matches.Iterator()
	for it.HasNext() {
		id := index.DocID(it.Next())
		meta, ok, err := docs.Lookup(id)
		if err != nil {
			return nil, fmt.Errorf("looking up document %d: %w", id, err)
		}
		if !ok {
			return nil, apperrors.Newf(apperrors.ErrUnknownDoc, "executor.resolve", "document %d has no metadata", id)
		}
		result.DocIDs = append(result.DocIDs, id)
		if _, dup := seen[meta.Path]; dup {
			continue
		}
		seen[meta.Path] = struct{}{}
		result.Paths = append(result.Paths, meta.Path)
	}
	if o.sortPaths {
		sort.Strings(result.Paths)
	}
	result.Count = len(result.Paths)
	return result, nil
}

func emptyResult(plan *parser.QueryPlan) *Result {
	return &Result{
		Query:        plan.RawQuery,
		Terms:        plan.Terms,
		MatchedTerms: []string{},
		DocIDs:       []index.DocID{},
		Paths:        []string{},
	}
}
