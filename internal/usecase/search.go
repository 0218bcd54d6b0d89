package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/adapter/lexical"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/adapter/retriever"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/domain"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/observability/logging"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/observability/metrics"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/port"
)

var ErrNoCollections = errors.New("at least one collection is required")

// SearchResponse is the result of a score-blend search.
type SearchResponse struct {
	Query           string               `json:"query"`
	Documents       []domain.QueryResult `json:"documents"`
	TotalFound      int                  `json:"total_found"`
	TotalCandidates int                  `json:"total_candidates"`
}

// SearchUseCase ranks documents by blending normalized vector and lexical
// scores, without rank fusion or caching.
type SearchUseCase struct {
	driver          port.VectorStoreDriver
	embedder        port.Embedder
	lexicon         *lexical.Registry
	metrics         *metrics.Metrics
	candidateFactor int
	logger          *slog.Logger
}

func NewSearchUseCase(
	driver port.VectorStoreDriver,
	embedder port.Embedder,
	lexicon *lexical.Registry,
	m *metrics.Metrics,
) *SearchUseCase {
	return &SearchUseCase{
		driver:          driver,
		embedder:        embedder,
		lexicon:         lexicon,
		metrics:         m,
		candidateFactor: DefaultCandidateFactor,
		logger:          logging.WithComponent("search"),
	}
}

// Search blends both signals per collection and returns the k best
// documents across all collections.
func (u *SearchUseCase) Search(ctx context.Context, query string, collections []string, k int, filters domain.Filter) (*SearchResponse, error) {
	if u.driver == nil || u.embedder == nil {
		return nil, domain.ErrNotInitialized
	}
	if len(collections) == 0 {
		return nil, ErrNoCollections
	}
	if k <= 0 {
		k = DefaultResultCount
	}

	start := time.Now()
	slots := make([][]domain.QueryResult, len(collections))
	var g errgroup.Group
	for i, name := range collections {
		i, name := i, name
		g.Go(func() error {
			results, err := u.searchCollection(ctx, name, query, k, filters)
			if err != nil {
				u.logger.Warn("failed to search collection", "collection", name, "error", err)
				return nil
			}
			slots[i] = results
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	for _, s := range slots {
		total += len(s)
	}
	documents := MergeResults(slots, domain.MergeBest, k)

	u.logger.Info("search complete",
		"documents", len(documents),
		"candidates", total,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &SearchResponse{
		Query:           query,
		Documents:       documents,
		TotalFound:      len(documents),
		TotalCandidates: total,
	}, nil
}

func (u *SearchUseCase) searchCollection(ctx context.Context, name, query string, k int, filters domain.Filter) ([]domain.QueryResult, error) {
	handle, err := u.driver.GetCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	if handle.Count == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrEmptyCollection, name)
	}

	var index *lexical.Index
	if u.lexicon != nil {
		index = u.lexicon.Get(ctx, name)
	}
	blend := retriever.NewBlendRetriever(
		retriever.NewVectorRetriever(u.driver, u.embedder, handle, filters),
		retriever.NewLexicalRetriever(index, filters),
		k*u.candidateFactor,
	)
	blend.OnFailure(u.metrics.RetrieverFailed)

	candidates, err := blend.Candidates(ctx, query, k)
	if err != nil {
		return nil, err
	}
	return ToQueryResults(name, candidates), nil
}
