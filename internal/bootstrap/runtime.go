// Package bootstrap assembles the retrieval runtime from configuration. The
// Runtime owns every shared registry, so closing it releases all of them.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/config"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/adapter/analyzer"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/adapter/cache"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/adapter/chunker"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/adapter/embedding"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/adapter/fs"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/adapter/lexical"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/adapter/store"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/domain"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/observability/metrics"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/port"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/usecase"
)

type Runtime struct {
	Config   *config.Config
	Store    *store.BoltStore
	Vectors  *store.BoltVectorStore
	Blobs    port.BlobStore
	Lexicon  *lexical.Registry
	Cache    port.QueryCache
	Embedder port.Embedder
	Metrics  *metrics.Metrics

	Engine *usecase.QueryEngine
	Search *usecase.SearchUseCase
	Sync   *usecase.SyncUseCase

	redis *redis.Client
}

// New opens the stores under dir and wires the use cases.
func New(ctx context.Context, cfg *config.Config, dir string) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	embedder, err := NewEmbedder(cfg.Embedding)
	if err != nil {
		return nil, err
	}

	dbPath := cfg.Store.Path
	if dbPath == "" {
		if err := config.EnsureRAGDir(dir); err != nil {
			return nil, fmt.Errorf("failed to create .rag directory: %w", err)
		}
		dbPath = config.IndexDBPath(dir)
	}
	st, err := store.NewBoltStore(dbPath)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Config:   cfg,
		Store:    st,
		Embedder: embedder,
		Metrics:  metrics.New(),
	}

	rt.Vectors, err = store.NewBoltVectorStore(st.DB(), embedder.Dimension())
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	rt.Blobs, err = newBlobStore(cfg.Store, st, dir)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.Lexicon = lexical.NewRegistry(rt.Blobs, lexical.Config{K1: cfg.Lexical.K1, B: cfg.Lexical.B})
	rt.Lexicon.OnSize(rt.Metrics.SetLexicalDocuments)

	rt.Cache, rt.redis = newQueryCache(ctx, cfg.Cache)

	rc := cfg.Retrieval
	rt.Engine, err = usecase.NewQueryEngine(rt.Vectors, embedder, rt.Lexicon,
		usecase.WithWeights(rc.VectorWeight, rc.LexicalWeight),
		usecase.WithRRFK(rc.RRFK),
		usecase.WithCandidateFactor(rc.CandidateFactor),
		usecase.WithCollectionTimeout(rc.CollectionTimeout),
		usecase.WithCache(rt.Cache),
		usecase.WithMetrics(rt.Metrics),
	)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Search = usecase.NewSearchUseCase(rt.Vectors, embedder, rt.Lexicon, rt.Metrics)
	rt.Sync = usecase.NewSyncUseCase(rt.Vectors, rt.Lexicon)

	return rt, nil
}

// NewIngest returns an ingestion use case. Callers must Release it.
func (r *Runtime) NewIngest() (*usecase.IngestUseCase, error) {
	ic := r.Config.Ingest
	return usecase.NewIngestUseCase(
		fs.NewWalker(ic.Includes, ic.Excludes),
		chunker.NewLineChunker(ic.ChunkTokens, ic.ChunkOverlap, analyzer.NewTokenizer()),
		r.Embedder,
		r.Vectors,
		r.Sync,
		r.Metrics,
		ic.Workers,
		r.Config.Embedding.BatchSize,
	)
}

// QueryConfig returns the configured query defaults.
func (r *Runtime) QueryConfig() domain.QueryConfig {
	rc := r.Config.Retrieval
	return domain.QueryConfig{
		ResultCount:   rc.ResultCount,
		MinRelevance:  rc.MinRelevance,
		MergeStrategy: domain.MergeStrategy(rc.MergeStrategy),
		Fusion:        domain.FusionStrategy(rc.Fusion),
	}
}

func (r *Runtime) Close() error {
	var errs []error
	if r.redis != nil {
		errs = append(errs, r.redis.Close())
	}
	if r.Store != nil {
		errs = append(errs, r.Store.Close())
	}
	return errors.Join(errs...)
}

func newBlobStore(sc config.StoreConfig, st *store.BoltStore, dir string) (port.BlobStore, error) {
	switch sc.LexicalBackend {
	case "file":
		lexDir := sc.LexicalDir
		if lexDir == "" {
			lexDir = config.LexicalDir(dir)
		}
		return store.NewFileBlobStore(lexDir)
	default:
		return store.NewBoltBlobStore(st.DB())
	}
}

// newQueryCache falls back to the in-process cache when redis is unreachable.
func newQueryCache(ctx context.Context, cc config.CacheConfig) (port.QueryCache, *redis.Client) {
	switch cc.Backend {
	case "none":
		return cache.Nop{}, nil
	case "redis":
		client, err := cache.DialRedis(ctx, cc.RedisAddr, cc.RedisPassword, cc.RedisDB)
		if err == nil {
			return cache.NewRedisQueryCache(client, cc.TTL), client
		}
		slog.Warn("redis unavailable, using in-process query cache", "addr", cc.RedisAddr, "error", err)
	}
	return cache.NewQueryCache(cc.MaxEntries, cc.TTL), nil
}

// NewEmbedder builds the configured embedding backend, wrapped in an LRU
// cache and a circuit breaker.
func NewEmbedder(ec config.EmbeddingConfig) (port.Embedder, error) {
	var (
		embedder port.Embedder
		err      error
	)

	switch ec.Provider {
	case "openai", "deepseek", "jina":
		var hosted *embedding.OpenAIEmbedder
		hosted, err = hostedEmbedder(ec)
		if err == nil {
			embedder = hosted.WithBaseURL(ec.BaseURL).WithBatchSize(ec.BatchSize)
		}
	case "ollama":
		embedder = embedding.NewOllamaEmbedder(ec.Model, ec.BaseURL).WithBatchSize(ec.BatchSize)
	case "hash":
		embedder = embedding.NewHashEmbedder(ec.Dimension)
	default:
		return nil, fmt.Errorf("%w: unsupported embedding provider: %s", domain.ErrConfiguration, ec.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	if ec.CacheSize > 0 {
		embedder = embedding.NewCachedEmbedder(embedder, ec.CacheSize)
	}
	if ec.BreakerFailures > 0 {
		embedder = embedding.NewBreakerEmbedder(embedder, ec.BreakerFailures, ec.BreakerTimeout)
	}
	return embedder, nil
}

func hostedEmbedder(ec config.EmbeddingConfig) (*embedding.OpenAIEmbedder, error) {
	switch ec.Provider {
	case "deepseek":
		return embedding.NewDeepSeekEmbedder(ec.APIKeyEnv, ec.Model)
	case "jina":
		return embedding.NewJinaEmbedder(ec.APIKeyEnv, ec.Model)
	default:
		return embedding.NewOpenAIEmbedder(ec.APIKeyEnv, ec.Model)
	}
}
