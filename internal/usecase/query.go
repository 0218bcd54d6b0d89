package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/adapter/cache"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/adapter/embedding"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/adapter/lexical"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/adapter/retriever"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/domain"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/observability/logging"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/observability/metrics"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/port"
)

const (
	DefaultResultCount       = 5
	DefaultCandidateFactor   = 2
	DefaultCollectionTimeout = 30 * time.Second
)

// RetrieverFactory builds the retriever used for one collection.
type RetrieverFactory func(ctx context.Context, handle port.CollectionHandle, cfg domain.QueryConfig) (port.Retriever, error)

// QueryEngine answers queries across collections by fusing vector and lexical
// retrieval per collection and merging the per-collection lists.
type QueryEngine struct {
	driver   port.VectorStoreDriver
	embedder port.Embedder
	lexicon  *lexical.Registry
	cache    port.QueryCache
	metrics  *metrics.Metrics

	vectorWeight      float64
	lexicalWeight     float64
	rrfK              int
	candidateFactor   int
	collectionTimeout time.Duration
	newRetriever      RetrieverFactory
}

type EngineOption func(*QueryEngine)

func WithWeights(vector, lexical float64) EngineOption {
	return func(e *QueryEngine) {
		e.vectorWeight = vector
		e.lexicalWeight = lexical
	}
}

func WithRRFK(k int) EngineOption {
	return func(e *QueryEngine) { e.rrfK = k }
}

// WithCandidateFactor sets how many candidates per requested result each
// signal fetches before fusion.
func WithCandidateFactor(n int) EngineOption {
	return func(e *QueryEngine) {
		if n > 0 {
			e.candidateFactor = n
		}
	}
}

// WithCollectionTimeout bounds each collection's retrieval.
func WithCollectionTimeout(d time.Duration) EngineOption {
	return func(e *QueryEngine) {
		if d > 0 {
			e.collectionTimeout = d
		}
	}
}

func WithCache(c port.QueryCache) EngineOption {
	return func(e *QueryEngine) {
		if c != nil {
			e.cache = c
		}
	}
}

func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *QueryEngine) { e.metrics = m }
}

// WithRetrieverFactory replaces the default per-collection fusion retriever.
func WithRetrieverFactory(f RetrieverFactory) EngineOption {
	return func(e *QueryEngine) { e.newRetriever = f }
}

// NewQueryEngine returns an error wrapping domain.ErrConfiguration when the
// fusion weights are unusable.
func NewQueryEngine(
	driver port.VectorStoreDriver,
	embedder port.Embedder,
	lexicon *lexical.Registry,
	opts ...EngineOption,
) (*QueryEngine, error) {
	e := &QueryEngine{
		driver:            driver,
		embedder:          embedder,
		lexicon:           lexicon,
		cache:             cache.Nop{},
		vectorWeight:      retriever.DefaultVectorWeight,
		lexicalWeight:     retriever.DefaultLexicalWeight,
		rrfK:              retriever.DefaultRRFK,
		candidateFactor:   DefaultCandidateFactor,
		collectionTimeout: DefaultCollectionTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.vectorWeight < 0 || e.lexicalWeight < 0 {
		return nil, fmt.Errorf("%w: negative fusion weight", domain.ErrConfiguration)
	}
	if e.vectorWeight+e.lexicalWeight == 0 {
		return nil, fmt.Errorf("%w: fusion weights sum to zero", domain.ErrConfiguration)
	}
	if e.newRetriever == nil {
		e.newRetriever = e.fusionRetriever
	}
	return e, nil
}

// Query runs text against collections, or against every collection the
// vector store knows when none are given. Per-collection failures only shrink
// the result; the call itself fails only when the engine is not set up.
func (e *QueryEngine) Query(ctx context.Context, text string, collections []string, cfg domain.QueryConfig) ([]domain.QueryResult, error) {
	if e == nil || e.driver == nil || e.embedder == nil {
		return nil, domain.ErrNotInitialized
	}

	cfg = normalizeConfig(cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	start := time.Now()
	ctx = logging.WithRequestID(ctx, uuid.NewString())
	logger := logging.FromContext(ctx).With("component", "query_engine")

	targets, err := e.targets(ctx, collections)
	if err != nil {
		logger.Warn("collection discovery failed", "error", err)
		e.metrics.ObserveQuery("error", time.Since(start))
		return nil, nil
	}
	if len(targets) == 0 {
		logger.Info("no collections to query")
		e.metrics.ObserveQuery("empty", time.Since(start))
		return nil, nil
	}

	slots := make([][]domain.QueryResult, len(targets))
	var g errgroup.Group
	for i, name := range targets {
		i, name := i, name
		g.Go(func() error {
			results := e.queryWithTimeout(ctx, logger.With("collection", name), name, text, cfg)
			slots[i] = FilterByRelevance(results, cfg.MinRelevance)
			return nil // failures stay inside the collection
		})
	}
	_ = g.Wait()

	merged := MergeResults(slots, cfg.MergeStrategy, cfg.ResultCount)
	merged = FilterByRelevance(merged, cfg.MinRelevance)

	outcome := "ok"
	if len(merged) == 0 {
		outcome = "empty"
	}
	e.metrics.ObserveQuery(outcome, time.Since(start))
	logger.Info("query complete",
		"collections", len(targets),
		"results", len(merged),
		"strategy", cfg.MergeStrategy,
		"fusion", cfg.Fusion,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return merged, nil
}

func normalizeConfig(cfg domain.QueryConfig) domain.QueryConfig {
	if cfg.ResultCount <= 0 {
		cfg.ResultCount = DefaultResultCount
	}
	if cfg.MergeStrategy == "" {
		cfg.MergeStrategy = domain.MergeInterleave
	}
	if cfg.Fusion == "" {
		cfg.Fusion = domain.FusionRRF
	}
	return cfg
}

func validateConfig(cfg domain.QueryConfig) error {
	switch cfg.MergeStrategy {
	case domain.MergeInterleave, domain.MergeBest:
	default:
		return fmt.Errorf("%w: unknown merge strategy %q", domain.ErrConfiguration, cfg.MergeStrategy)
	}
	switch cfg.Fusion {
	case domain.FusionRRF, domain.FusionBlend:
	default:
		return fmt.Errorf("%w: unknown fusion strategy %q", domain.ErrConfiguration, cfg.Fusion)
	}
	return nil
}

// targets returns the deduplicated collection list in request order.
func (e *QueryEngine) targets(ctx context.Context, collections []string) ([]string, error) {
	if len(collections) == 0 {
		discovered, err := e.driver.ListCollections(ctx)
		if err != nil {
			return nil, err
		}
		collections = discovered
	}
	seen := make(map[string]struct{}, len(collections))
	targets := make([]string, 0, len(collections))
	for _, name := range collections {
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		targets = append(targets, name)
	}
	return targets, nil
}

// queryWithTimeout abandons a collection that does not answer in time.
func (e *QueryEngine) queryWithTimeout(ctx context.Context, logger *slog.Logger, name, text string, cfg domain.QueryConfig) []domain.QueryResult {
	ctx, cancel := context.WithTimeout(ctx, e.collectionTimeout)
	defer cancel()

	done := make(chan []domain.QueryResult, 1)
	go func() {
		done <- e.queryCollection(ctx, logger, name, text, cfg)
	}()

	select {
	case results := <-done:
		return results
	case <-ctx.Done():
		logger.Warn("collection query abandoned", "error", ctx.Err(), "timeout", e.collectionTimeout)
		e.metrics.CollectionOutcome(name, metrics.OutcomeFailed)
		return nil
	}
}

func (e *QueryEngine) queryCollection(ctx context.Context, logger *slog.Logger, name, text string, cfg domain.QueryConfig) []domain.QueryResult {
	key := port.CacheKey{
		Collection: name,
		Query:      text,
		K:          cfg.ResultCount,
		Filters:    cfg.Filters,
		Fusion:     cfg.Fusion,
	}
	if cached, ok := e.cache.Get(ctx, key); ok {
		logger.Debug("cache hit")
		e.metrics.CacheHit()
		e.metrics.CollectionOutcome(name, metrics.OutcomeHit)
		return cached
	}
	logger.Debug("cache miss")
	e.metrics.CacheMiss()

	handle, err := e.driver.GetCollection(ctx, name)
	switch {
	case errors.Is(err, domain.ErrCollectionNotFound):
		logger.Warn("skipping missing collection")
		e.metrics.CollectionOutcome(name, metrics.OutcomeSkipped)
		return nil
	case err != nil:
		logger.Warn("skipping unreachable collection", "error", err)
		e.metrics.CollectionOutcome(name, metrics.OutcomeFailed)
		return nil
	case handle.Count == 0:
		logger.Warn("skipping collection", "reason", domain.ErrEmptyCollection)
		e.metrics.CollectionOutcome(name, metrics.OutcomeSkipped)
		return nil
	}

	var degraded atomic.Bool
	chunks, err := e.retrieve(withDegradedFlag(ctx, &degraded), handle, text, cfg)
	if err != nil {
		logger.Warn("fusion retrieval failed, falling back to vector search", "error", err)
		return e.fallback(ctx, logger, handle, text, cfg)
	}

	results := ToQueryResults(name, chunks)
	switch {
	case ctx.Err() != nil:
		logger.Debug("not caching results of an abandoned query", "error", ctx.Err())
	case degraded.Load():
		logger.Debug("not caching results missing a retrieval signal")
	default:
		e.cache.Set(ctx, key, results)
	}
	e.metrics.CollectionOutcome(name, metrics.OutcomeMiss)
	return results
}

type degradedKey struct{}

// withDegradedFlag lets the retrievers of one collection query report that a
// sub-retriever failed.
func withDegradedFlag(ctx context.Context, flag *atomic.Bool) context.Context {
	return context.WithValue(ctx, degradedKey{}, flag)
}

func markDegraded(ctx context.Context) {
	if flag, ok := ctx.Value(degradedKey{}).(*atomic.Bool); ok {
		flag.Store(true)
	}
}

func (e *QueryEngine) retrieve(ctx context.Context, handle port.CollectionHandle, text string, cfg domain.QueryConfig) ([]domain.ScoredChunk, error) {
	r, err := e.newRetriever(ctx, handle, cfg)
	if err != nil {
		return nil, err
	}
	return r.Retrieve(ctx, text, cfg.ResultCount)
}

// fallback queries the vector store directly. Its results are not cached.
func (e *QueryEngine) fallback(ctx context.Context, logger *slog.Logger, handle port.CollectionHandle, text string, cfg domain.QueryConfig) []domain.QueryResult {
	vector := retriever.NewVectorRetriever(e.driver, e.embedder, handle, cfg.Filters)
	chunks, err := vector.Retrieve(ctx, text, cfg.ResultCount)
	if embedding.IsOpen(err) {
		logger.Warn("vector fallback skipped, embedding backend unavailable", "error", err)
		e.metrics.CollectionOutcome(handle.Name, metrics.OutcomeFailed)
		return nil
	}
	if err != nil {
		logger.Error("vector fallback failed", "error", err)
		e.metrics.CollectionOutcome(handle.Name, metrics.OutcomeFailed)
		return nil
	}
	e.metrics.CollectionOutcome(handle.Name, metrics.OutcomeFallback)
	return ToQueryResults(handle.Name, chunks)
}

// fusionRetriever is the default RetrieverFactory: vector and lexical signals
// of one collection combined by the configured fusion strategy.
func (e *QueryEngine) fusionRetriever(ctx context.Context, handle port.CollectionHandle, cfg domain.QueryConfig) (port.Retriever, error) {
	vector := retriever.NewVectorRetriever(e.driver, e.embedder, handle, cfg.Filters)
	var index *lexical.Index
	if e.lexicon != nil {
		index = e.lexicon.Get(ctx, handle.Name)
	}
	lex := retriever.NewLexicalRetriever(index, cfg.Filters)
	pool := cfg.ResultCount * e.candidateFactor
	onFailure := func(name string) {
		e.metrics.RetrieverFailed(name)
		markDegraded(ctx)
	}

	switch cfg.Fusion {
	case domain.FusionBlend:
		blend := retriever.NewBlendRetriever(vector, lex, pool)
		blend.OnFailure(onFailure)
		return blend, nil
	case domain.FusionRRF:
		return retriever.NewFusionRetriever(
			[]port.Retriever{vector, lex},
			[]float64{e.vectorWeight, e.lexicalWeight},
			retriever.WithRRFK(e.rrfK),
			retriever.WithCandidatePool(pool),
			retriever.WithFailureHook(onFailure),
		)
	default:
		return nil, fmt.Errorf("%w: unknown fusion strategy %q", domain.ErrConfiguration, cfg.Fusion)
	}
}

// ToQueryResults converts ranked chunks of one collection to results.
func ToQueryResults(collection string, chunks []domain.ScoredChunk) []domain.QueryResult {
	results := make([]domain.QueryResult, 0, len(chunks))
	for _, sc := range chunks {
		r := domain.QueryResult{
			Content:        sc.Chunk.Text,
			Metadata:       maps.Clone(sc.Chunk.Metadata),
			RelevanceScore: clamp01(sc.Score),
			CollectionName: collection,
			SourceType:     sc.Source,
			Contributions:  sc.Contributions,
		}
		for _, c := range sc.Contributions {
			switch c.Retriever {
			case string(domain.SourceVector):
				r.VectorScore = c.RawScore
			case string(domain.SourceLexical):
				r.LexicalScore = c.RawScore
			}
		}
		if len(sc.Contributions) == 0 {
			switch sc.Source {
			case domain.SourceVector:
				r.VectorScore = sc.Score
			case domain.SourceLexical:
				r.LexicalScore = sc.Score
			}
		}
		results = append(results, r)
	}
	return results
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// FilterByRelevance drops results below floor. A floor of 0 keeps everything.
func FilterByRelevance(results []domain.QueryResult, floor float64) []domain.QueryResult {
	if floor <= 0 || len(results) == 0 {
		return results
	}
	kept := make([]domain.QueryResult, 0, len(results))
	for _, r := range results {
		if r.RelevanceScore >= floor {
			kept = append(kept, r)
		}
	}
	return kept
}

// MergeResults combines per-collection lists into at most n results.
// Interleave takes one result from each list in turn, in list order, until n
// are taken or all lists are exhausted. Best sorts everything by relevance.
func MergeResults(lists [][]domain.QueryResult, strategy domain.MergeStrategy, n int) []domain.QueryResult {
	if n <= 0 {
		return nil
	}

	if strategy == domain.MergeBest {
		var all []domain.QueryResult
		for _, list := range lists {
			all = append(all, list...)
		}
		sort.SliceStable(all, func(i, j int) bool {
			return all[i].RelevanceScore > all[j].RelevanceScore
		})
		if len(all) > n {
			all = all[:n]
		}
		return all
	}

	merged := make([]domain.QueryResult, 0, n)
	for depth := 0; len(merged) < n; depth++ {
		progressed := false
		for _, list := range lists {
			if depth >= len(list) {
				continue
			}
			progressed = true
			merged = append(merged, list[depth])
			if len(merged) == n {
				break
			}
		}
		if !progressed {
			break
		}
	}
	return merged
}
