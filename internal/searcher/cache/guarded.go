package cache

import (
	"context"
	"time"

	"github.com/Adithya-Monish-Kumar-K/shardidx/pkg/resilience"
)

// GuardedBackend routes calls through a circuit breaker so an unreachable
// Redis costs one timeout per reset window instead of one per query.
type GuardedBackend struct {
	backend Backend
	breaker *resilience.Breaker
}

func NewGuardedBackend(backend Backend, breaker *resilience.Breaker) *GuardedBackend {
	return &GuardedBackend{backend: backend, breaker: breaker}
}

func (g *GuardedBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		data  []byte
		found bool
	)
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		data, found, err = g.backend.Get(ctx, key)
		return err
	})
	return data, found, err
}

func (g *GuardedBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return g.breaker.Do(ctx, func(ctx context.Context) error {
		return g.backend.Set(ctx, key, value, ttl)
	})
}

func (g *GuardedBackend) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	var n int64
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		n, err = g.backend.DeletePrefix(ctx, prefix)
		return err
	})
	return n, err
}
