package port

import (
	"context"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/domain"
)

// VectorStoreDriver is the read side of the vector similarity store.
type VectorStoreDriver interface {
	ListCollections(ctx context.Context) ([]string, error)

	// GetCollection returns domain.ErrCollectionNotFound for unknown names.
	GetCollection(ctx context.Context, name string) (CollectionHandle, error)

	// QueryByVector returns up to limit matches ordered by ascending distance.
	QueryByVector(ctx context.Context, handle CollectionHandle, vector []float32, limit int, filter domain.Filter) ([]VectorMatch, error)

	// GetAllDocuments returns every stored record of the collection.
	GetAllDocuments(ctx context.Context, handle CollectionHandle) ([]domain.SourceDocument, error)
}

type CollectionHandle struct {
	Name  string
	Count int
}

// VectorMatch is a nearest-neighbor candidate. Distance is cosine distance.
type VectorMatch struct {
	ID       string
	Text     string
	Metadata map[string]any
	Distance float64
}

// VectorWriter is the ingestion side of the vector store.
type VectorWriter interface {
	Upsert(ctx context.Context, collection string, records []VectorRecord) error
}

type VectorRecord struct {
	ID       string
	Text     string
	Metadata map[string]any
	Vector   []float32
}
