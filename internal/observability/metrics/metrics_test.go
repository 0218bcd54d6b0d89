package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gathered(t *testing.T, m *Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	total := 0.0
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				total += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				total += metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				total += float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return total
}

func TestMetrics_Recorders(t *testing.T) {
	m := New()
	m.ObserveQuery("ok", 20*time.Millisecond)
	m.CollectionOutcome("docs", OutcomeHit)
	m.CollectionOutcome("docs", OutcomeFallback)
	m.CacheHit()
	m.CacheMiss()
	m.CacheMiss()
	m.RetrieverFailed("vector")
	m.SetLexicalDocuments("docs", 42)
	m.ChunksIngested("docs", 3)

	assert.Equal(t, 1.0, gathered(t, m, "rag_queries_total"))
	assert.Equal(t, 1.0, gathered(t, m, "rag_query_duration_seconds"))
	assert.Equal(t, 2.0, gathered(t, m, "rag_collection_queries_total"))
	assert.Equal(t, 1.0, gathered(t, m, "rag_cache_hits_total"))
	assert.Equal(t, 2.0, gathered(t, m, "rag_cache_misses_total"))
	assert.Equal(t, 1.0, gathered(t, m, "rag_retriever_failures_total"))
	assert.Equal(t, 42.0, gathered(t, m, "rag_lexical_index_documents"))
	assert.Equal(t, 3.0, gathered(t, m, "rag_chunks_ingested_total"))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveQuery("ok", time.Second)
		m.CollectionOutcome("docs", OutcomeHit)
		m.CacheHit()
		m.CacheMiss()
		m.RetrieverFailed("lexical")
		m.SetLexicalDocuments("docs", 1)
		m.ChunksIngested("docs", 1)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.CacheHit()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "rag_cache_hits_total 1"))
}
