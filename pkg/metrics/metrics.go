// Package metrics defines the Prometheus collectors for index builds, merges
// and queries, and exposes them for scraping or as a textfile.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors, registered on their own registry so tests
// and repeated runs do not collide on the global one.
type Metrics struct {
	Registry *prometheus.Registry

	DocsIndexedTotal  prometheus.Counter
	DocsSkippedTotal  *prometheus.CounterVec
	ShardWritesTotal  *prometheus.CounterVec
	ShardTerms        *prometheus.GaugeVec
	ShardDocCount     *prometheus.GaugeVec
	MergedTermsTotal  prometheus.Counter
	SharedTermsTotal  prometheus.Counter
	MergeDuration     prometheus.Histogram
	BuildDuration     prometheus.Histogram
	QueriesTotal      *prometheus.CounterVec
	QueryLatency      *prometheus.HistogramVec
	QueryResultsCount prometheus.Histogram
	CacheHitsTotal    prometheus.Counter
	CacheMissesTotal  prometheus.Counter
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "shardidx_docs_indexed_total",
				Help: "Total documents registered and indexed.",
			},
		),
		DocsSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shardidx_docs_skipped_total",
				Help: "Documents skipped because analysis failed, by reason (empty, read, analyze).",
			},
			[]string{"reason"},
		),
		ShardWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shardidx_shard_writes_total",
				Help: "Shard index store writes by status.",
			},
			[]string{"status"},
		),
		ShardTerms: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shardidx_shard_terms",
				Help: "Distinct terms per shard index.",
			},
			[]string{"shard"},
		),
		ShardDocCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shardidx_shard_document_count",
				Help: "Documents indexed per shard.",
			},
			[]string{"shard"},
		),
		MergedTermsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "shardidx_merged_terms_total",
				Help: "Terms written to the merged index.",
			},
		),
		SharedTermsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "shardidx_merged_shared_terms_total",
				Help: "Merged terms that occurred in more than one shard.",
			},
		),
		MergeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shardidx_merge_duration_seconds",
				Help:    "Wall time of a k-way merge.",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
		),
		BuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shardidx_build_duration_seconds",
				Help:    "Wall time of a full corpus build.",
				Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
			},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shardidx_queries_total",
				Help: "Queries by result type (match, no_match, error).",
			},
			[]string{"result_type"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shardidx_query_latency_seconds",
				Help:    "Query latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		QueryResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shardidx_query_results_count",
				Help:    "Matching documents per query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "shardidx_cache_hits_total",
				Help: "Query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "shardidx_cache_misses_total",
				Help: "Query cache misses.",
			},
		),
	}

	m.Registry.MustRegister(
		m.DocsIndexedTotal,
		m.DocsSkippedTotal,
		m.ShardWritesTotal,
		m.ShardTerms,
		m.ShardDocCount,
		m.MergedTermsTotal,
		m.SharedTermsTotal,
		m.MergeDuration,
		m.BuildDuration,
		m.QueriesTotal,
		m.QueryLatency,
		m.QueryResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)
	return m
}

// Handler returns the scrape handler for m's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the current values in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
