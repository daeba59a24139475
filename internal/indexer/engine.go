// Package indexer runs the corpus build: it walks the shards of a corpus,
// analyses and registers every document, writes one index store per shard,
// persists the document metadata and merges the shard stores into the
// corpus-wide index.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/merger"
	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/registry"
	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/shardidx/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/shardidx/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/shardidx/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/shardidx/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/shardidx/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/shardidx/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/shardidx/pkg/tracing"
)

// Build phases reported through Options.OnProgress.
const (
	PhaseAnalyze = "analyze"
	PhaseMerge   = "merge"
)

// Progress is a build progress update. Total is -1 when unknown.
type Progress struct {
	Phase string
	Shard string
	Done  int
	Total int
}

// Notifier publishes build events. pkg/kafka.Producer implements it.
type Notifier interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// MetadataExporter copies the document table to an external store.
// docstore.PostgresSink implements it.
type MetadataExporter interface {
	Export(ctx context.Context, docs map[index.DocID]registry.DocMeta) error
}

type Options struct {
	Config    config.IndexConfig
	Tokenizer *tokenizer.Tokenizer
	Metrics   *metrics.Metrics
	Notifier  Notifier
	Exporter  MetadataExporter
	// Retry applies to the notifier and exporter.
	Retry      resilience.Policy
	OnProgress func(Progress)
}

// SkippedDoc is a document that failed analysis. It consumed no id.
type SkippedDoc struct {
	Path   string `json:"path"`
	Shard  string `json:"shard"`
	Reason string `json:"reason"`
	Error  string `json:"error"`
}

type ShardReport struct {
	Name      string `json:"name"`
	Documents int    `json:"documents"`
	Terms     int    `json:"terms"`
	Skipped   int    `json:"skipped"`
}

// Report summarises a build or merge run.
type Report struct {
	OutputDir   string        `json:"output_dir"`
	Shards      []ShardReport `json:"shards"`
	Documents   int           `json:"documents"`
	Skipped     []SkippedDoc  `json:"skipped"`
	Terms       int           `json:"terms"`
	SharedTerms int           `json:"shared_terms"`
	Postings    int           `json:"postings"`
	Duration    time.Duration `json:"duration"`
}

// IndexCompleteEvent is published after the merged index is in place.
type IndexCompleteEvent struct {
	Event       string    `json:"event"`
	Terms       int       `json:"terms"`
	Documents   int       `json:"documents"`
	Shards      int       `json:"shards"`
	OutputDir   string    `json:"output_dir"`
	CompletedAt time.Time `json:"completed_at"`
}

type Engine struct {
	opts   Options
	walker *shard.Walker
	logger *slog.Logger
}

func NewEngine(opts Options) (*Engine, error) {
	if opts.Config.OutputDir == "" {
		return nil, apperrors.New(apperrors.ErrInvalidConfig, "indexer", "output directory is empty")
	}
	if opts.Config.AnalyzeWorkers < 1 {
		opts.Config.AnalyzeWorkers = 1
	}
	if opts.Tokenizer == nil {
		opts.Tokenizer = tokenizer.New(tokenizer.Options{HTML: opts.Config.HTML})
	}
	walker, err := shard.NewWalker(opts.Config.Includes, opts.Config.Excludes)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidConfig, "indexer", "%v", err)
	}
	return &Engine{
		opts:   opts,
		walker: walker,
		logger: logger.WithComponent("indexer"),
	}, nil
}

// Build indexes the corpus under root and merges the result. Document-level
// failures are recorded in the report; everything else aborts the build.
func (e *Engine) Build(ctx context.Context, root string) (*Report, error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "build")
	defer e.endTrace(span)
	info, err := os.Stat(root)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "indexer.build", "corpus root %s: %v", root, err)
	}
	if !info.IsDir() {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "indexer.build", "corpus root %s is not a directory", root)
	}
	out := e.opts.Config.OutputDir
	if err := os.MkdirAll(out, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	shards, err := shard.List(root)
	if err != nil {
		return nil, err
	}
	files := make([][]string, len(shards))
	total := 0
	for i, s := range shards {
		files[i], err = e.walker.Files(s)
		if err != nil {
			return nil, err
		}
		total += len(files[i])
	}
	e.logger.Info("build starting",
		"root", root,
		"output_dir", out,
		"shards", len(shards),
		"files", total,
	)
	if err := e.unpublish(shards); err != nil {
		return nil, err
	}

	report := &Report{OutputDir: out, Shards: make([]ShardReport, 0, len(shards))}
	reg := registry.New()
	inputs := make([]segment.Paths, 0, len(shards))
	done := 0
	for i, s := range shards {
		shardCtx, shardSpan := tracing.Start(ctx, "shard")
		shardSpan.SetAttr("shard", s.Name)
		sr, skipped, err := e.buildShard(shardCtx, s, files[i], reg, func() {
			done++
			e.progress(Progress{Phase: PhaseAnalyze, Shard: s.Name, Done: done, Total: total})
		})
		shardSpan.SetAttr("documents", sr.Documents)
		shardSpan.End()
		if err != nil {
			return nil, fmt.Errorf("building shard %s: %w", s.Name, err)
		}
		report.Shards = append(report.Shards, sr)
		report.Skipped = append(report.Skipped, skipped...)
		inputs = append(inputs, segment.ShardPaths(out, s.Name))
	}
	report.Documents = reg.Len()
	span.SetAttr("documents", report.Documents)

	if err := e.merge(ctx, inputs, report); err != nil {
		return nil, err
	}
	meta := reg.Metadata()
	if err := e.publish(ctx, meta, shards); err != nil {
		return nil, err
	}
	e.export(ctx, meta)
	if !e.opts.Config.KeepShards {
		for _, p := range inputs {
			if err := p.Remove(); err != nil {
				e.logger.Warn("removing shard store failed", "shard", p.Name, "error", err)
			}
		}
	}

	report.Duration = time.Since(start)
	if m := e.opts.Metrics; m != nil {
		m.BuildDuration.Observe(report.Duration.Seconds())
	}
	e.notify(ctx, report)
	e.logger.Info("build complete",
		"shards", len(report.Shards),
		"documents", report.Documents,
		"skipped", len(report.Skipped),
		"terms", report.Terms,
		"duration", report.Duration,
	)
	return report, nil
}

// MergeOnly re-merges the shard stores of the last published build. Stores
// the manifest does not name are ignored.
func (e *Engine) MergeOnly(ctx context.Context) (*Report, error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "merge-only")
	defer e.endTrace(span)
	out := e.opts.Config.OutputDir
	manifest, err := segment.ReadManifest(out)
	if err != nil {
		return nil, err
	}
	inputs, err := manifest.Stores(out)
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, apperrors.Newf(apperrors.ErrIndexNotFound, "indexer.merge", "no shard stores in %s", out)
	}
	table, err := docstore.LoadJSON(docstore.Path(out))
	if err != nil {
		return nil, err
	}
	if len(table) != manifest.Documents {
		return nil, apperrors.Corruptf("indexer.merge", "metadata has %d documents, manifest %d", len(table), manifest.Documents)
	}
	report := &Report{OutputDir: out, Documents: len(table), Shards: make([]ShardReport, 0, len(inputs))}
	for _, p := range inputs {
		report.Shards = append(report.Shards, ShardReport{Name: p.Name})
	}
	if err := e.merge(ctx, inputs, report); err != nil {
		return nil, err
	}
	report.Duration = time.Since(start)
	e.notify(ctx, report)
	return report, nil
}

type analyzed struct {
	analysis tokenizer.Analysis
	reason   string
	err      error
}

// buildShard analyses files concurrently in windows and registers the
// results strictly in file order, then writes the shard store.
func (e *Engine) buildShard(ctx context.Context, s shard.Shard, files []string, reg *registry.Registry, onDoc func()) (ShardReport, []SkippedDoc, error) {
	log := logger.WithShard("indexer", s.Name)
	sr := ShardReport{Name: s.Name}
	var skipped []SkippedDoc
	builder := index.NewBuilder()

	window := e.opts.Config.AnalyzeWorkers * 8
	for lo := 0; lo < len(files); lo += window {
		hi := min(lo+window, len(files))
		results, err := e.analyzeWindow(ctx, files[lo:hi])
		if err != nil {
			return sr, nil, err
		}
		for i, r := range results {
			path := files[lo+i]
			if r.err != nil {
				if !apperrors.IsDocumentError(r.err) {
					return sr, nil, fmt.Errorf("analysing %s: %w", path, r.err)
				}
				log.Warn("skipping document", "path", path, "reason", r.reason, "error", r.err)
				skipped = append(skipped, SkippedDoc{Path: path, Shard: s.Name, Reason: r.reason, Error: r.err.Error()})
				if m := e.opts.Metrics; m != nil {
					m.DocsSkippedTotal.WithLabelValues(r.reason).Inc()
				}
				onDoc()
				continue
			}
			id := reg.Register(path, r.analysis.TokenCount, r.analysis.Terms)
			if err := builder.Add(id, r.analysis.Terms); err != nil {
				return sr, nil, err
			}
			if m := e.opts.Metrics; m != nil {
				m.DocsIndexedTotal.Inc()
			}
			onDoc()
		}
	}

	paths := segment.ShardPaths(e.opts.Config.OutputDir, s.Name)
	dict, err := segment.Write(paths, builder.Snapshot())
	if m := e.opts.Metrics; m != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		m.ShardWritesTotal.WithLabelValues(status).Inc()
	}
	if err != nil {
		return sr, nil, fmt.Errorf("writing shard store: %w", err)
	}

	sr.Documents = builder.DocCount()
	sr.Terms = dict.Len()
	sr.Skipped = len(skipped)
	if m := e.opts.Metrics; m != nil {
		m.ShardTerms.WithLabelValues(s.Name).Set(float64(sr.Terms))
		m.ShardDocCount.WithLabelValues(s.Name).Set(float64(sr.Documents))
	}
	log.Info("shard written",
		"documents", sr.Documents,
		"terms", sr.Terms,
		"skipped", sr.Skipped,
	)
	return sr, skipped, nil
}

func (e *Engine) analyzeWindow(ctx context.Context, files []string) ([]analyzed, error) {
	results := make([]analyzed, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Config.AnalyzeWorkers)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.analyzeFile(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analysis cancelled: %w", err)
	}
	return results, nil
}

func (e *Engine) analyzeFile(path string) analyzed {
	data, err := os.ReadFile(path)
	if err != nil {
		return analyzed{reason: "read", err: fmt.Errorf("%w: %v", apperrors.ErrDocumentProcessing, err)}
	}
	a, err := e.opts.Tokenizer.Analyze(string(data))
	switch {
	case err == nil:
		return analyzed{analysis: a}
	case apperrors.Is(err, apperrors.ErrEmptyDocument):
		return analyzed{reason: "empty", err: err}
	default:
		return analyzed{reason: "analyze", err: err}
	}
}

// unpublish retracts the previous build before any of its files are
// overwritten: manifest first, then metadata, the merged store and shard
// stores that are not part of the new shard set. A failed build leaves no
// index rather than a merged store paired with the wrong metadata.
func (e *Engine) unpublish(shards []shard.Shard) error {
	out := e.opts.Config.OutputDir
	if err := segment.RemoveManifest(out); err != nil {
		return err
	}
	if err := docstore.Remove(out); err != nil {
		return err
	}
	if err := segment.MergedPaths(out).Remove(); err != nil {
		return err
	}
	current := make(map[string]bool, len(shards))
	for _, s := range shards {
		current[s.Name] = true
	}
	stale, err := segment.DiscoverShards(out)
	if err != nil {
		return err
	}
	for _, p := range stale {
		if current[p.Name] {
			continue
		}
		if err := p.Remove(); err != nil {
			return err
		}
		e.logger.Info("removed stale shard store", "shard", p.Name)
	}
	return nil
}

// publish writes the metadata of a merged index and then the manifest that
// marks the build complete.
func (e *Engine) publish(ctx context.Context, meta map[index.DocID]registry.DocMeta, shards []shard.Shard) error {
	_, span := tracing.Start(ctx, "metadata")
	defer span.End()
	out := e.opts.Config.OutputDir
	if e.opts.Config.BoltMetadata {
		store, err := docstore.OpenBolt(docstore.BoltPath(out), false)
		if err != nil {
			return err
		}
		err = store.PutAll(meta)
		if cerr := store.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("writing bolt metadata: %w", err)
		}
	}
	if err := docstore.SaveJSON(docstore.Path(out), meta); err != nil {
		return err
	}
	names := make([]string, len(shards))
	for i, s := range shards {
		names[i] = s.Name
	}
	return segment.WriteManifest(out, segment.Manifest{
		Shards:    names,
		Documents: len(meta),
		BuiltAt:   time.Now().UTC(),
	})
}

// export copies the metadata to the configured exporter. Failure is logged
// only.
func (e *Engine) export(ctx context.Context, meta map[index.DocID]registry.DocMeta) {
	if e.opts.Exporter == nil {
		return
	}
	err := resilience.Retry(ctx, "metadata-export", e.opts.Retry, func(ctx context.Context) error {
		return e.opts.Exporter.Export(ctx, meta)
	})
	if err != nil {
		e.logger.Error("metadata export failed", "error", err)
	}
}

func (e *Engine) merge(ctx context.Context, inputs []segment.Paths, report *Report) error {
	ctx, span := tracing.Start(ctx, "merge")
	defer span.End()
	span.SetAttr("sources", len(inputs))
	merged := 0
	res, err := merger.Merge(ctx, inputs, segment.MergedPaths(e.opts.Config.OutputDir), merger.Options{
		Parallelism: e.opts.Config.MergeParallelism,
		OnTerm: func(string, int) {
			merged++
			if merged%256 == 0 {
				e.progress(Progress{Phase: PhaseMerge, Done: merged, Total: -1})
			}
		},
	})
	if err != nil {
		return err
	}
	e.progress(Progress{Phase: PhaseMerge, Done: res.TermCount, Total: res.TermCount})
	span.SetAttr("terms", res.TermCount)
	report.Terms = res.TermCount
	report.SharedTerms = res.SharedTerms
	report.Postings = res.Postings
	if m := e.opts.Metrics; m != nil {
		m.MergeDuration.Observe(res.Duration.Seconds())
		m.MergedTermsTotal.Add(float64(res.TermCount))
		m.SharedTermsTotal.Add(float64(res.SharedTerms))
	}
	return nil
}

// notify publishes the index-complete event. Failure is logged only: the
// index on disk is already complete.
func (e *Engine) notify(ctx context.Context, report *Report) {
	if e.opts.Notifier == nil {
		return
	}
	event := kafka.Event{
		Key: report.OutputDir,
		Value: IndexCompleteEvent{
			Event:       "index.complete",
			Terms:       report.Terms,
			Documents:   report.Documents,
			Shards:      len(report.Shards),
			OutputDir:   report.OutputDir,
			CompletedAt: time.Now().UTC(),
		},
	}
	err := resilience.Retry(ctx, "index-complete-publish", e.opts.Retry, func(ctx context.Context) error {
		return e.opts.Notifier.Publish(ctx, event)
	})
	if err != nil {
		e.logger.Error("publishing index-complete event failed", "error", err)
	}
}

// endTrace closes the root span and logs the stage timings at debug level.
func (e *Engine) endTrace(span *tracing.Span) {
	span.End()
	span.Log(e.logger, slog.LevelDebug)
}

func (e *Engine) progress(p Progress) {
	if e.opts.OnProgress != nil {
		e.opts.OnProgress(p)
	}
}
