// Package metrics provides Prometheus metrics for the chunking pipeline
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/ragchunk/internal/chunker"
	"github.com/dshills/ragchunk/pkg/types"
)

const namespace = "ragchunk"

// File outcomes recorded by FileProcessed.
const (
	OutcomeIndexed = "indexed"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Metrics holds all Prometheus metrics for indexing and chunking.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	FilesProcessed   *prometheus.CounterVec
	ChunksCreated    *prometheus.CounterVec
	ForcedChunks     prometheus.Counter
	FallbackChunks   *prometheus.CounterVec
	ChunkTokens      *prometheus.HistogramVec
	FileDuration     *prometheus.HistogramVec
	IndexRunDuration prometheus.Histogram
	ActiveRuns       prometheus.Gauge
}

// New creates and registers all metrics on reg. A nil reg uses the default
// Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		FilesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_processed_total",
			Help:      "Total number of files processed by outcome",
		}, []string{"outcome"}),
		ChunksCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_created_total",
			Help:      "Total number of chunks created by content class",
		}, []string{"class"}),
		ForcedChunks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forced_chunks_total",
			Help:      "Chunks produced by a forced character split",
		}),
		FallbackChunks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_chunks_total",
			Help:      "Chunks produced by line-based fallback chunking, by content class",
		}, []string{"class"}),
		ChunkTokens: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_tokens",
			Help:      "Estimated token count per chunk",
			Buckets:   prometheus.ExponentialBuckets(8, 2, 10), // 8 to 4096
		}, []string{"class"}),
		FileDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_processing_duration_seconds",
			Help:      "Duration of chunking and storing one file in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}, []string{"class"}),
		IndexRunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_run_duration_seconds",
			Help:      "Duration of project indexing runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7min
		}),
		ActiveRuns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_index_runs",
			Help:      "Number of indexing runs in progress",
		}),
	}
}

// FileProcessed records one file outcome and, for processed files, the time
// it took.
func (m *Metrics) FileProcessed(outcome, class string, d time.Duration) {
	if m == nil {
		return
	}
	m.FilesProcessed.WithLabelValues(outcome).Inc()
	if outcome != OutcomeSkipped {
		m.FileDuration.WithLabelValues(class).Observe(d.Seconds())
	}
}

// ObserveChunks records the chunks produced for one file of the given class.
func (m *Metrics) ObserveChunks(class string, chunks []*types.Chunk) {
	if m == nil {
		return
	}
	m.ChunksCreated.WithLabelValues(class).Add(float64(len(chunks)))
	for _, c := range chunks {
		m.ChunkTokens.WithLabelValues(class).Observe(float64(c.EstimatedTokenCount))
		if c.Flag(types.MetaIsForceChunked) {
			m.ForcedChunks.Inc()
		}
		if c.Metadata.Value(types.MetaChunkType) == chunker.ChunkTypeLineBased {
			m.FallbackChunks.WithLabelValues(class).Inc()
		}
	}
}

// RunStarted marks an indexing run as active and returns a func that ends it.
func (m *Metrics) RunStarted() func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	m.ActiveRuns.Inc()
	return func() {
		m.ActiveRuns.Dec()
		m.IndexRunDuration.Observe(time.Since(start).Seconds())
	}
}

// Handler serves the metrics of g, or of the default gatherer when g is nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
