package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/searcher/handler"
	apperrors "github.com/Adithya-Monish-Kumar-K/shardidx/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/shardidx/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/shardidx/pkg/resilience"
)

func newQueryCommand(a *app) *cobra.Command {
	var (
		interactive bool
		fromShards  bool
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "query [text]...",
		Short: "Find the documents containing any of the query terms",
		Long: `Each argument is one query. For every query the number of matching
documents and their paths are printed, or "No match found.".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !interactive && len(args) == 0 {
				return apperrors.New(apperrors.ErrInvalidInput, "query", "no query given (pass text or use --interactive)")
			}
			h, closeAll, err := a.openSearch(cmd.Context(), fromShards, interactive)
			if err != nil {
				return err
			}
			defer closeAll()
			if interactive {
				return a.repl(cmd.Context(), h)
			}
			for _, q := range args {
				result, _, err := h.Search(cmd.Context(), q)
				if err != nil {
					return err
				}
				if err := writeResult(a.stdout, result, asJSON); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "read queries from an interactive prompt")
	cmd.Flags().BoolVar(&fromShards, "shards", false, "query the shard stores instead of the merged index")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

// openSearch opens the index, the metadata table and the optional cache.
// The returned func releases all of them.
func (a *app) openSearch(ctx context.Context, fromShards, interactive bool) (*handler.Handler, func(), error) {
	out := a.cfg.Index.OutputDir
	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				slog.Warn("closing index resource", "error", err)
			}
		}
	}

	docs, err := a.openDocs()
	if err != nil {
		return nil, nil, err
	}
	if c, ok := docs.(io.Closer); ok {
		closers = append(closers, c.Close)
	}

	opts := []executor.Option{executor.WithSortedPaths(a.cfg.Query.SortResults)}
	var exec handler.SearchExecutor
	if fromShards {
		manifest, err := segment.ReadManifest(out)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		inputs, err := manifest.Stores(out)
		if err == nil && len(inputs) == 0 {
			err = apperrors.Newf(apperrors.ErrIndexNotFound, "query", "no shard stores in %s", out)
		}
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		searchers := make([]executor.Searcher, 0, len(inputs))
		for _, p := range inputs {
			store, err := segment.Open(p)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			closers = append(closers, store.Close)
			searchers = append(searchers, store)
		}
		exec = executor.NewSharded(searchers, docs, opts...)
	} else {
		store, err := segment.Open(segment.MergedPaths(out))
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, store.Close)
		exec = executor.New(store, docs, opts...)
	}

	qc, closeCache := a.openCache(ctx, interactive)
	closers = append(closers, func() error { closeCache(); return nil })

	tok := tokenizer.New(tokenizer.Options{HTML: a.cfg.Index.HTML})
	return handler.New(tok, exec, qc, a.metrics), closeAll, nil
}

func (a *app) openDocs() (docstore.Lookup, error) {
	out := a.cfg.Index.OutputDir
	if a.cfg.Query.MetadataBackend == "bolt" {
		path := docstore.BoltPath(out)
		if _, err := os.Stat(path); err != nil {
			return nil, apperrors.Newf(apperrors.ErrIndexNotFound, "query", "%s", path)
		}
		return docstore.OpenBolt(path, true)
	}
	return docstore.LoadJSON(docstore.Path(out))
}

// openCache returns the Redis-backed cache when enabled and reachable. An
// interactive session without Redis gets an in-memory cache. The cache may
// be nil.
func (a *app) openCache(ctx context.Context, interactive bool) (*cache.QueryCache, func()) {
	dir, err := filepath.Abs(a.cfg.Index.OutputDir)
	if err != nil {
		dir = a.cfg.Index.OutputDir
	}
	namespace := cache.Namespace(dir, a.cfg.Query.SortResults)
	if a.cfg.Redis.Enabled {
		client, err := pkgredis.NewClient(ctx, a.cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, query caching disabled", "error", err)
		} else {
			breaker := resilience.NewBreaker("redis", resilience.BreakerConfig{
				FailureThreshold: 3,
				ResetTimeout:     30 * time.Second,
				CallTimeout:      500 * time.Millisecond,
			})
			backend := cache.NewGuardedBackend(client, breaker)
			return cache.New(backend, a.cfg.Redis.CacheTTL, namespace), func() { client.Close() }
		}
	}
	if interactive {
		return cache.New(cache.NewMemoryBackend(), a.cfg.Redis.CacheTTL, namespace), func() {}
	}
	return nil, func() {}
}

func (a *app) repl(ctx context.Context, h *handler.Handler) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "shardidx> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdin:           a.stdin,
		Stdout:          a.stdout,
		Stderr:          a.stderr,
	})
	if err != nil {
		return fmt.Errorf("starting prompt: %w", err)
	}
	defer rl.Close()

	fmt.Fprintln(rl.Stdout(), `type a query, ":stats" for cache statistics or ":q" to quit`)
	for ctx.Err() == nil {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if line == "" {
				return nil
			}
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading query: %w", err)
		}
		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case ":q", "exit", "quit":
			return nil
		case ":stats":
			hits, misses, enabled := h.CacheStats()
			if !enabled {
				fmt.Fprintln(rl.Stdout(), "cache disabled")
				continue
			}
			fmt.Fprintf(rl.Stdout(), "cache hits %d, misses %d\n", hits, misses)
			continue
		}
		result, _, err := h.Search(ctx, line)
		if err != nil {
			fmt.Fprintf(rl.Stderr(), "error: %v\n", err)
			continue
		}
		if err := writeResult(rl.Stdout(), result, false); err != nil {
			return err
		}
	}
	return nil
}

func writeResult(w io.Writer, r *executor.Result, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(r)
	}
	if r.Count == 0 {
		_, err := fmt.Fprintf(w, "%s: No match found.\n", r.Query)
		return err
	}
	noun := "matches"
	if r.Count == 1 {
		noun = "match"
	}
	if _, err := fmt.Fprintf(w, "%s: %d %s\n", r.Query, r.Count, noun); err != nil {
		return err
	}
	for _, p := range r.Paths {
		if _, err := fmt.Fprintf(w, "  %s\n", p); err != nil {
			return err
		}
	}
	return nil
}
