package retriever

import (
	"context"
	"fmt"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/domain"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/port"
)

// VectorRetriever embeds the query and asks the vector store for the nearest
// chunks of one collection.
type VectorRetriever struct {
	driver   port.VectorStoreDriver
	embedder port.Embedder
	handle   port.CollectionHandle
	filter   domain.Filter
}

func NewVectorRetriever(
	driver port.VectorStoreDriver,
	embedder port.Embedder,
	handle port.CollectionHandle,
	filter domain.Filter,
) *VectorRetriever {
	return &VectorRetriever{
		driver:   driver,
		embedder: embedder,
		handle:   handle,
		filter:   filter,
	}
}

func (r *VectorRetriever) Name() string { return string(domain.SourceVector) }

func (r *VectorRetriever) Retrieve(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	if r.driver == nil || r.embedder == nil {
		return nil, fmt.Errorf("%w: vector search not configured", domain.ErrRetrieval)
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", domain.ErrRetrieval, err)
	}

	matches, err := r.driver.QueryByVector(ctx, r.handle, vec, k, r.filter)
	if err != nil {
		return nil, fmt.Errorf("%w: vector query %s: %w", domain.ErrRetrieval, r.handle.Name, err)
	}

	return MatchesToChunks(r.handle.Name, matches), nil
}

// MatchesToChunks converts vector matches to scored chunks, scoring each by
// Relevance of its distance.
func MatchesToChunks(collection string, matches []port.VectorMatch) []domain.ScoredChunk {
	chunks := make([]domain.ScoredChunk, 0, len(matches))
	for _, m := range matches {
		chunks = append(chunks, domain.ScoredChunk{
			Chunk: domain.Chunk{
				ID:         m.ID,
				Text:       m.Text,
				Metadata:   m.Metadata,
				Collection: collection,
			},
			Score:  Relevance(m.Distance),
			Source: domain.SourceVector,
		})
	}
	return chunks
}

// Relevance maps a cosine distance to a similarity in [0,1].
func Relevance(distance float64) float64 {
	s := 1 - distance
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
