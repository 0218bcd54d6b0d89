package port

import (
	"context"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/domain"
)

// CacheKey identifies a cached unfiltered result list.
type CacheKey struct {
	Collection string
	Query      string
	K          int
	Filters    domain.Filter
	Fusion     domain.FusionStrategy
}

type QueryCache interface {
	Get(ctx context.Context, key CacheKey) ([]domain.QueryResult, bool)
	Set(ctx context.Context, key CacheKey, results []domain.QueryResult)
}
