package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestHashEmbedder_Deterministic(t *testing.T) {
	ctx := context.Background()
	e := NewHashEmbedder(256)

	a, err := e.Embed(ctx, "tenancy deposit rules")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "Tenancy deposit rules")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 256)
	assert.InDelta(t, 1.0, cosine(a, a), 1e-5)

	related, err := e.Embed(ctx, "deposit rules for tenancy agreements")
	require.NoError(t, err)
	unrelated, err := e.Embed(ctx, "zebra quantum violin")
	require.NoError(t, err)
	assert.Greater(t, cosine(a, related), cosine(a, unrelated))

	empty, err := e.Embed(ctx, "")
	require.NoError(t, err)
	assert.Len(t, empty, 256)
}

type countingEmbedder struct {
	calls atomic.Int32
	texts atomic.Int32
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text))}, nil
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	c.texts.Add(int32(len(texts)))
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func (c *countingEmbedder) Dimension() int    { return 1 }
func (c *countingEmbedder) ModelName() string { return "counting" }

func TestCachedEmbedder(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, 10)

	v1, err := c.Embed(ctx, "hello")
	require.NoError(t, err)
	v2, err := c.Embed(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, int32(1), inner.calls.Load())

	vecs, err := c.EmbedBatch(ctx, []string{"hello", "abc", "de"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{5}, {3}, {2}}, vecs)
	assert.Equal(t, int32(2), inner.texts.Load(), "cached text is not re-embedded")
	assert.Equal(t, 3, c.Len())
}

func TestBreakerEmbedder_OpensAfterFailures(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{err: errors.New("backend down")}
	b := NewBreakerEmbedder(inner, 2, time.Minute)

	for i := 0; i < 2; i++ {
		_, err := b.Embed(ctx, "q")
		require.Error(t, err)
		assert.False(t, IsOpen(err))
	}

	_, err := b.Embed(ctx, "q")
	require.Error(t, err)
	assert.True(t, IsOpen(err))
	assert.Equal(t, int32(2), inner.calls.Load(), "open breaker does not call the backend")
}

func TestBreakerEmbedder_PassesThrough(t *testing.T) {
	b := NewBreakerEmbedder(&countingEmbedder{}, 0, 0)
	vec, err := b.Embed(context.Background(), "abcd")
	require.NoError(t, err)
	assert.Equal(t, []float32{4}, vec)
	assert.Equal(t, "counting", b.ModelName())
}

func TestOpenAIEmbedder_EmbedBatch(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		resp := embeddingResponse{}
		// answer in reverse order to exercise index mapping
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, embeddingData{Index: i, Embedding: []float32{float32(len(req.Input[i]))}})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	t.Setenv("TEST_EMBED_KEY", "test-key")
	e, err := NewOpenAICompatibleEmbedder("TEST_EMBED_KEY", "text-embedding-3-small", srv.URL)
	require.NoError(t, err)
	e.WithBatchSize(2)

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {2}, {3}}, vecs)
	assert.Equal(t, int32(2), requests.Load())
	assert.Equal(t, 1536, e.Dimension())

	vec, err := e.Embed(context.Background(), "dddd")
	require.NoError(t, err)
	assert.Equal(t, []float32{4}, vec)
}

func TestOpenAIEmbedder_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewOpenAICompatibleEmbedder("TEST_EMBED_KEY_UNSET", "m", srv.URL)
	assert.Error(t, err)

	e := NewOllamaEmbedder("all-minilm", srv.URL)
	assert.Equal(t, 384, e.Dimension())
	_, err = e.Embed(context.Background(), "q")
	assert.ErrorContains(t, err, "429")
}
