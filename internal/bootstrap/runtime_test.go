package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/config"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/adapter/cache"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/adapter/embedding"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/domain"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/port"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Embedding.Provider = "hash"
	cfg.Embedding.Dimension = 64
	return cfg
}

func seed(t *testing.T, rt *Runtime) {
	t.Helper()
	ctx := context.Background()
	texts := map[string]string{
		"d1": "the tenant pays rent monthly",
		"d2": "§ 573 covers termination by the landlord",
	}
	var records []port.VectorRecord
	for _, id := range []string{"d1", "d2"} {
		vec, err := rt.Embedder.Embed(ctx, texts[id])
		require.NoError(t, err)
		records = append(records, port.VectorRecord{ID: id, Text: texts[id], Vector: vec})
	}
	require.NoError(t, rt.Vectors.Upsert(ctx, "law", records))
	_, err := rt.Sync.SyncLexicalIndex(ctx, "law")
	require.NoError(t, err)
}

func TestRuntime_QueryAfterSync(t *testing.T) {
	dir := t.TempDir()
	rt, err := New(context.Background(), testConfig(), dir)
	require.NoError(t, err)
	defer rt.Close()

	seed(t, rt)

	cfg := rt.QueryConfig()
	cfg.ResultCount = 1
	got, err := rt.Engine.Query(context.Background(), "573", nil, cfg)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "law", got[0].CollectionName)
	assert.Contains(t, got[0].Content, "573")
}

func TestRuntime_LexicalIndexSurvivesRestart(t *testing.T) {
	for _, backend := range []string{"bolt", "file"} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()
			cfg := testConfig()
			cfg.Store.LexicalBackend = backend

			rt, err := New(context.Background(), cfg, dir)
			require.NoError(t, err)
			seed(t, rt)
			require.NoError(t, rt.Close())

			rt, err = New(context.Background(), cfg, dir)
			require.NoError(t, err)
			defer rt.Close()

			assert.Equal(t, 2, rt.Lexicon.Get(context.Background(), "law").Len())
		})
	}
}

func TestRuntime_CacheBackends(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Backend = "none"
	rt, err := New(context.Background(), cfg, t.TempDir())
	require.NoError(t, err)
	defer rt.Close()
	assert.IsType(t, cache.Nop{}, rt.Cache)

	cfg = testConfig()
	rt2, err := New(context.Background(), cfg, t.TempDir())
	require.NoError(t, err)
	defer rt2.Close()
	assert.IsType(t, &cache.QueryCache{}, rt2.Cache)
}

func TestRuntime_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Retrieval.MergeStrategy = "random"
	_, err := New(context.Background(), cfg, t.TempDir())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestNewEmbedder(t *testing.T) {
	ec := testConfig().Embedding
	e, err := NewEmbedder(ec)
	require.NoError(t, err)
	assert.IsType(t, &embedding.BreakerEmbedder{}, e)
	assert.Equal(t, 64, e.Dimension())

	ec.CacheSize, ec.BreakerFailures = 0, 0
	e, err = NewEmbedder(ec)
	require.NoError(t, err)
	assert.IsType(t, &embedding.HashEmbedder{}, e)

	ec.Provider = "word2vec"
	_, err = NewEmbedder(ec)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	t.Setenv("RAG_TEST_MISSING_KEY", "")
	ec.Provider = "openai"
	ec.APIKeyEnv = "RAG_TEST_MISSING_KEY"
	_, err = NewEmbedder(ec)
	assert.Error(t, err)

	ec.Provider = "ollama"
	ec.Model = "all-minilm"
	e, err = NewEmbedder(ec)
	require.NoError(t, err)
	assert.Equal(t, 384, e.Dimension())
}
