package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/adapter/lexical"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/observability/logging"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/port"
)

// SyncUseCase keeps lexical indexes in step with the vector store.
type SyncUseCase struct {
	driver  port.VectorStoreDriver
	lexicon *lexical.Registry
	logger  *slog.Logger
}

func NewSyncUseCase(driver port.VectorStoreDriver, lexicon *lexical.Registry) *SyncUseCase {
	return &SyncUseCase{
		driver:  driver,
		lexicon: lexicon,
		logger:  logging.WithComponent("sync"),
	}
}

// SyncLexicalIndex rebuilds a collection's lexical index from the vector
// store's records. Call it after every bulk write to the vector store.
func (u *SyncUseCase) SyncLexicalIndex(ctx context.Context, collection string) (int, error) {
	handle, err := u.driver.GetCollection(ctx, collection)
	if err != nil {
		return 0, fmt.Errorf("sync %s: %w", collection, err)
	}

	docs, err := u.driver.GetAllDocuments(ctx, handle)
	if err != nil {
		return 0, fmt.Errorf("sync %s: read documents: %w", collection, err)
	}

	index := u.lexicon.Get(ctx, collection)
	if err := index.RebuildFromAuthoritative(ctx, docs); err != nil {
		return 0, fmt.Errorf("sync %s: %w", collection, err)
	}
	u.lexicon.Report(collection)

	u.logger.Info("lexical index synchronized", "collection", collection, "documents", index.Len())
	return index.Len(), nil
}

// SyncAll synchronizes every collection of the vector store. A failing
// collection is logged and does not stop the others.
func (u *SyncUseCase) SyncAll(ctx context.Context) (map[string]int, error) {
	names, err := u.driver.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	counts := make(map[string]int, len(names))
	for _, name := range names {
		n, err := u.SyncLexicalIndex(ctx, name)
		if err != nil {
			u.logger.Warn("sync failed", "collection", name, "error", err)
			continue
		}
		counts[name] = n
	}
	return counts, nil
}
