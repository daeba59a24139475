package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/shardidx/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/shardidx/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/shardidx/pkg/resilience"
)

func newBuildCommand(a *app) *cobra.Command {
	var (
		workers    int
		noProgress bool
		dropShards bool
	)
	cmd := &cobra.Command{
		Use:   "build <corpus-root>",
		Short: "Index every shard of a corpus and merge the result",
		Long: `Build treats each immediate sub-directory of <corpus-root> as a shard,
writes one index store per shard into the output directory, saves the
document metadata and merges the shard stores into inverted_index_*.txt.
Documents that cannot be analysed are reported and skipped.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if workers > 0 {
				a.cfg.Index.AnalyzeWorkers = workers
			}
			if dropShards {
				a.cfg.Index.KeepShards = false
			}
			return a.runBuild(cmd.Context(), args[0], !noProgress)
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "documents analysed concurrently (overrides index.analyzeWorkers)")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the progress bar")
	cmd.Flags().BoolVar(&dropShards, "drop-shards", false, "delete shard stores once merged")
	return cmd
}

func newMergeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "merge",
		Short: "Re-merge the shard stores found in the output directory",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runMerge(cmd.Context())
		},
	}
}

func (a *app) runBuild(ctx context.Context, root string, showProgress bool) error {
	opts, cleanup := a.engineOptions(ctx)
	defer cleanup()
	var bar *buildProgress
	if showProgress {
		bar = &buildProgress{w: a.stderr}
		opts.OnProgress = bar.update
	}

	engine, err := indexer.NewEngine(opts)
	if err != nil {
		return err
	}
	report, err := engine.Build(ctx, root)
	if bar != nil {
		bar.finish()
	}
	if err != nil {
		return err
	}
	a.invalidateCache(ctx)
	printReport(a.stdout, report)
	for _, s := range report.Skipped {
		fmt.Fprintf(a.stderr, "skipped %s (%s): %s\n", s.Path, s.Reason, s.Error)
	}
	return nil
}

func (a *app) runMerge(ctx context.Context) error {
	opts, cleanup := a.engineOptions(ctx)
	defer cleanup()
	engine, err := indexer.NewEngine(opts)
	if err != nil {
		return err
	}
	report, err := engine.MergeOnly(ctx)
	if err != nil {
		return err
	}
	a.invalidateCache(ctx)
	printReport(a.stdout, report)
	return nil
}

// engineOptions wires the optional Kafka notifier and PostgreSQL exporter.
// An unreachable database disables the export rather than failing the
// build.
func (a *app) engineOptions(ctx context.Context) (indexer.Options, func()) {
	opts := indexer.Options{
		Config:  a.cfg.Index,
		Metrics: a.metrics,
		Retry:   resilience.DefaultPolicy(),
	}
	var closers []func() error
	if a.cfg.Kafka.Enabled {
		producer := kafka.NewProducer(a.cfg.Kafka, a.cfg.Kafka.IndexComplete)
		opts.Notifier = producer
		closers = append(closers, producer.Close)
	}
	if a.cfg.Postgres.Enabled {
		client, err := postgres.New(ctx, a.cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, metadata export disabled", "error", err)
		} else {
			slog.Debug("exporting metadata", "postgres", client.Target())
			opts.Exporter = docstore.NewPostgresSink(client)
			closers = append(closers, client.Close)
		}
	}
	return opts, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				slog.Warn("closing client", "error", err)
			}
		}
	}
}

// invalidateCache drops cached results of the previous index.
func (a *app) invalidateCache(ctx context.Context) {
	if !a.cfg.Redis.Enabled {
		return
	}
	qc, closeCache := a.openCache(ctx, false)
	defer closeCache()
	if qc == nil {
		return
	}
	if err := qc.Invalidate(ctx); err != nil {
		slog.Warn("query cache not invalidated", "error", err)
	}
}

func printReport(w io.Writer, r *indexer.Report) {
	fmt.Fprintf(w, "indexed %d documents from %d shards into %s\n", r.Documents, len(r.Shards), r.OutputDir)
	for _, s := range r.Shards {
		if s.Documents == 0 && s.Terms == 0 && s.Skipped == 0 {
			fmt.Fprintf(w, "  %s\n", s.Name)
			continue
		}
		fmt.Fprintf(w, "  %-20s %6d docs %8d terms %4d skipped\n", s.Name, s.Documents, s.Terms, s.Skipped)
	}
	fmt.Fprintf(w, "merged %d terms (%d shared), %d postings in %s\n",
		r.Terms, r.SharedTerms, r.Postings, r.Duration.Round(time.Millisecond))
	if n := len(r.Skipped); n > 0 {
		fmt.Fprintf(w, "%d documents skipped\n", n)
	}
}

// buildProgress renders one progress bar per build phase on w.
type buildProgress struct {
	w     io.Writer
	phase string
	bar   *progressbar.ProgressBar
}

func (p *buildProgress) update(pr indexer.Progress) {
	if p.bar == nil || pr.Phase != p.phase {
		p.finish()
		p.phase = pr.Phase
		total := pr.Total
		if pr.Phase == indexer.PhaseMerge {
			total = -1
		}
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetDescription(pr.Phase),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(p.w)
			}),
		)
	}
	_ = p.bar.Set(pr.Done)
}

func (p *buildProgress) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
}
