// Package handler runs queries end to end: normalisation, the optional
// result cache, execution and query metrics.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/shardidx/pkg/metrics"
)

type SearchExecutor interface {
	Execute(ctx context.Context, plan *parser.QueryPlan) (*executor.Result, error)
}

type Handler struct {
	tokenizer *tokenizer.Tokenizer
	executor  SearchExecutor
	cache     *cache.QueryCache
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New returns a Handler. queryCache and m may be nil.
func New(tok *tokenizer.Tokenizer, exec SearchExecutor, queryCache *cache.QueryCache, m *metrics.Metrics) *Handler {
	return &Handler{
		tokenizer: tok,
		executor:  exec,
		cache:     queryCache,
		metrics:   m,
		logger:    slog.Default().With("component", "search-handler"),
	}
}

// Search answers one query. cacheHit reports whether the result came from
// the cache.
func (h *Handler) Search(ctx context.Context, query string) (result *executor.Result, cacheHit bool, err error) {
	start := time.Now()
	plan := parser.Parse(query, h.tokenizer)

	switch {
	case plan.Empty():
		result, err = h.executor.Execute(ctx, plan)
	case h.cache != nil:
		result, cacheHit, err = h.cache.GetOrCompute(ctx, plan, func() (*executor.Result, error) {
			return h.executor.Execute(ctx, plan)
		})
	default:
		result, err = h.executor.Execute(ctx, plan)
	}
	latency := time.Since(start)

	if err != nil {
		h.observe("error", "", latency, 0)
		h.logger.Error("search execution failed", "query", query, "error", err)
		return nil, false, fmt.Errorf("query %q: %w", query, err)
	}

	cacheStatus := "disabled"
	if h.cache != nil && !plan.Empty() {
		cacheStatus = "miss"
		if cacheHit {
			cacheStatus = "hit"
		}
	}
	resultType := "match"
	if result.Count == 0 {
		resultType = "no_match"
	}
	h.observe(resultType, cacheStatus, latency, result.Count)

	h.logger.Info("search completed",
		"query", query,
		"terms", plan.Terms,
		"total_hits", result.Count,
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	return result, cacheHit, nil
}

// SearchAll answers queries in order, stopping at the first failure.
func (h *Handler) SearchAll(ctx context.Context, queries []string) ([]*executor.Result, error) {
	results := make([]*executor.Result, 0, len(queries))
	for _, q := range queries {
		result, _, err := h.Search(ctx, q)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

// InvalidateCache drops cached results; a no-op without a cache.
func (h *Handler) InvalidateCache(ctx context.Context) error {
	if h.cache == nil {
		return nil
	}
	return h.cache.Invalidate(ctx)
}

// CacheStats returns cache hits and misses since start.
func (h *Handler) CacheStats() (hits, misses int64, enabled bool) {
	if h.cache == nil {
		return 0, 0, false
	}
	hits, misses = h.cache.Stats()
	return hits, misses, true
}

func (h *Handler) observe(resultType, cacheStatus string, latency time.Duration, count int) {
	if h.metrics == nil {
		return
	}
	h.metrics.QueriesTotal.WithLabelValues(resultType).Inc()
	if resultType == "error" {
		return
	}
	h.metrics.QueryLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
	h.metrics.QueryResultsCount.Observe(float64(count))
	switch cacheStatus {
	case "hit":
		h.metrics.CacheHitsTotal.Inc()
	case "miss":
		h.metrics.CacheMissesTotal.Inc()
	}
}
