// Package cache stores query results in Redis (or memory) keyed by the
// normalised query terms.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/searcher/parser"
)

const keyPrefix = "shardidx:q:"

// Backend is the key-value store behind the cache. pkg/redis.Client
// implements it.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

type QueryCache struct {
	backend   Backend
	ttl       time.Duration
	namespace string
	group     singleflight.Group
	logger    *slog.Logger
	hits      atomic.Int64
	misses    atomic.Int64
}

// Namespace identifies results produced from the index in outputDir with
// the given path ordering. Sessions that order paths differently must not
// share cached results.
func Namespace(outputDir string, sortedPaths bool) string {
	order := "docid"
	if sortedPaths {
		order = "sorted"
	}
	return outputDir + "\x00order=" + order
}

// New returns a cache over backend. namespace separates results of
// different indexes sharing one backend; see Namespace.
func New(backend Backend, ttl time.Duration, namespace string) *QueryCache {
	return &QueryCache{
		backend:   backend,
		ttl:       ttl,
		namespace: namespace,
		logger:    slog.Default().With("component", "query-cache"),
	}
}

// Get returns a cached result. Backend failures are logged and reported as
// a miss.
func (c *QueryCache) Get(ctx context.Context, plan *parser.QueryPlan) (*executor.Result, bool) {
	key := c.buildKey(plan)
	data, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	var result executor.Result
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	result.Query = plan.RawQuery
	c.logger.Debug("cache hit", "query", plan.RawQuery, "key", key)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, plan *parser.QueryPlan, result *executor.Result) {
	key := c.buildKey(plan)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for plan, or computes and stores
// it. Concurrent callers for the same terms share one computation.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	plan *parser.QueryPlan,
	computeFn func() (*executor.Result, error),
) (*executor.Result, bool, error) {
	if result, ok := c.Get(ctx, plan); ok {
		return result, true, nil
	}
	key := c.buildKey(plan)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, plan, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	shared := *val.(*executor.Result)
	shared.Query = plan.RawQuery
	return &shared, false, nil
}

// Invalidate drops every cached result. Builds call it once the new index
// is in place.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.backend.DeletePrefix(ctx, keyPrefix)
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) buildKey(plan *parser.QueryPlan) string {
	hash := sha256.Sum256([]byte(c.namespace + "\x00" + plan.Key()))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
