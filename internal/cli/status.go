package cli

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/shardidx/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/shardidx/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/shardidx/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/shardidx/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/shardidx/pkg/redis"
)

func newStatusCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check the index files and the configured services",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			report := a.checker().Run(ctx)
			var err error
			if asJSON {
				err = json.NewEncoder(a.stdout).Encode(report)
			} else {
				err = report.Write(a.stdout)
			}
			if err != nil {
				return err
			}
			if report.Status == health.StatusDown {
				return apperrors.New(apperrors.ErrIndexNotFound, "status", "index is not usable")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func (a *app) checker() *health.Checker {
	cfg := a.cfg
	out := cfg.Index.OutputDir
	c := health.NewChecker()

	c.Register("index", func(ctx context.Context) health.ComponentHealth {
		store, err := segment.Open(segment.MergedPaths(out))
		if err != nil {
			return health.Down(err)
		}
		defer store.Close()
		return health.Up("%d terms", store.Terms())
	})
	c.Register("shards", func(ctx context.Context) health.ComponentHealth {
		manifest, err := segment.ReadManifest(out)
		if err != nil {
			return health.Down(err)
		}
		if _, err := manifest.Stores(out); err != nil {
			return health.Degraded(err)
		}
		return health.Up("%d shard stores, built %s", len(manifest.Shards), manifest.BuiltAt.Format(time.RFC3339))
	})
	c.Register("metadata", func(ctx context.Context) health.ComponentHealth {
		table, err := docstore.LoadJSON(docstore.Path(out))
		if err != nil {
			return health.Down(err)
		}
		return health.Up("%d documents", len(table))
	})
	c.Register("bolt", func(ctx context.Context) health.ComponentHealth {
		if !cfg.Index.BoltMetadata {
			return health.Skipped()
		}
		store, err := docstore.OpenBolt(docstore.BoltPath(out), true)
		if err != nil {
			return health.Degraded(err)
		}
		defer store.Close()
		n, err := store.Len()
		if err != nil {
			return health.Degraded(err)
		}
		return health.Up("%d documents", n)
	})
	c.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if !cfg.Redis.Enabled {
			return health.Skipped()
		}
		client, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return health.Degraded(err)
		}
		defer client.Close()
		return health.Up("%s", cfg.Redis.Addr)
	})
	c.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if !cfg.Postgres.Enabled {
			return health.Skipped()
		}
		client, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return health.Degraded(err)
		}
		defer client.Close()
		return health.Up("%s", client.Target())
	})
	c.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		if !cfg.Kafka.Enabled {
			return health.Skipped()
		}
		if err := kafka.Ping(ctx, cfg.Kafka); err != nil {
			return health.Degraded(err)
		}
		return health.Up("topic %s", cfg.Kafka.IndexComplete)
	})
	return c
}
