package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/searcher/parser"
)

// ShardedExecutor answers queries from the per-shard stores directly,
// without a merged index. Its results are identical to Executor's over the
// merged store.
type ShardedExecutor struct {
	shards []Searcher
	docs   docstore.Lookup
	opts   options
	logger *slog.Logger
}

func NewSharded(shards []Searcher, docs docstore.Lookup, opts ...Option) *ShardedExecutor {
	o := options{sortPaths: true}
	for _, opt := range opts {
		opt(&o)
	}
	return &ShardedExecutor{
		shards: shards,
		docs:   docs,
		opts:   o,
		logger: slog.Default().With("component", "sharded-executor"),
	}
}

func (se *ShardedExecutor) Execute(ctx context.Context, plan *parser.QueryPlan) (*Result, error) {
	if plan.Empty() {
		return emptyResult(plan), nil
	}
	perShard := make([]*roaring64.Bitmap, len(se.shards))
	perShardTerms := make([][]string, len(se.shards))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range se.shards {
		g.Go(func() error {
			bm := roaring64.New()
			matched, err := collect(gctx, s, plan.Terms, bm)
			if err != nil {
				return fmt.Errorf("shard %d: %w", i, err)
			}
			perShard[i] = bm
			perShardTerms[i] = matched
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	matches := roaring64.New()
	found := make(map[string]struct{})
	for i := range se.shards {
		matches.Or(perShard[i])
		for _, term := range perShardTerms[i] {
			found[term] = struct{}{}
		}
	}
	matched := make([]string, 0, len(found))
	for _, term := range plan.Terms {
		if _, ok := found[term]; ok {
			matched = append(matched, term)
		}
	}
	result, err := resolve(plan, matched, matches, se.docs, se.opts)
	if err != nil {
		return nil, err
	}
	se.logger.Debug("sharded query executed",
		"query", plan.RawQuery,
		"shards_queried", len(se.shards),
		"results", result.Count,
	)
	return result, nil
}
