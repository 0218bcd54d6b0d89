// Package metrics defines the Prometheus collectors of the retrieval service
// on a registry owned by the runtime.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collection outcomes.
const (
	OutcomeHit      = "hit"
	OutcomeMiss     = "miss"
	OutcomeFallback = "fallback"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

type Metrics struct {
	registry *prometheus.Registry

	QueriesTotal           *prometheus.CounterVec
	QueryDuration          prometheus.Histogram
	CollectionQueriesTotal *prometheus.CounterVec
	CacheHitsTotal         prometheus.Counter
	CacheMissesTotal       prometheus.Counter
	RetrieverFailuresTotal *prometheus.CounterVec
	LexicalIndexDocuments  *prometheus.GaugeVec
	ChunksIngestedTotal    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_queries_total",
				Help: "Total engine queries by outcome (ok, empty, error).",
			},
			[]string{"outcome"},
		),
		QueryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rag_query_duration_seconds",
				Help:    "Engine query latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		CollectionQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_collection_queries_total",
				Help: "Per-collection retrievals by outcome (hit, miss, fallback, skipped, failed).",
			},
			[]string{"collection", "outcome"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rag_cache_hits_total",
				Help: "Total number of query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rag_cache_misses_total",
				Help: "Total number of query cache misses.",
			},
		),
		RetrieverFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_retriever_failures_total",
				Help: "Sub-retriever failures tolerated during fusion.",
			},
			[]string{"retriever"},
		),
		LexicalIndexDocuments: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rag_lexical_index_documents",
				Help: "Number of chunks in each lexical index.",
			},
			[]string{"collection"},
		),
		ChunksIngestedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_chunks_ingested_total",
				Help: "Chunks written to the vector store by collection.",
			},
			[]string{"collection"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.QueriesTotal,
		m.QueryDuration,
		m.CollectionQueriesTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.RetrieverFailuresTotal,
		m.LexicalIndexDocuments,
		m.ChunksIngestedTotal,
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus scrape HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Helpers below accept a nil receiver so callers can run without metrics.

func (m *Metrics) ObserveQuery(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(outcome).Inc()
	m.QueryDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) CollectionOutcome(collection, outcome string) {
	if m == nil {
		return
	}
	m.CollectionQueriesTotal.WithLabelValues(collection, outcome).Inc()
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
}

func (m *Metrics) RetrieverFailed(retriever string) {
	if m == nil {
		return
	}
	m.RetrieverFailuresTotal.WithLabelValues(retriever).Inc()
}

func (m *Metrics) SetLexicalDocuments(collection string, n int) {
	if m == nil {
		return
	}
	m.LexicalIndexDocuments.WithLabelValues(collection).Set(float64(n))
}

func (m *Metrics) ChunksIngested(collection string, n int) {
	if m == nil {
		return
	}
	m.ChunksIngestedTotal.WithLabelValues(collection).Add(float64(n))
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, m *Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("metrics server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
