package port

import (
	"context"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/domain"
)

// Retriever returns ranked chunks for a raw query.
type Retriever interface {
	// Name identifies the retriever in fusion diagnostics and logs.
	Name() string

	// Retrieve returns at most k chunks ordered by descending score.
	Retrieve(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error)
}
