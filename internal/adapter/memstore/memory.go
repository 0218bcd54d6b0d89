package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/adapter/store"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/domain"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/port"
)

// MemoryStore is an ephemeral vector store for tests and dry runs.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]port.VectorRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]port.VectorRecord),
	}
}

// CreateCollection registers an empty collection.
func (s *MemoryStore) CreateCollection(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		s.collections[name] = make(map[string]port.VectorRecord)
	}
}

func (s *MemoryStore) Upsert(_ context.Context, collection string, records []port.VectorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collection]
	if !ok {
		c = make(map[string]port.VectorRecord)
		s.collections[collection] = c
	}
	for _, r := range records {
		r.Metadata = domain.FlattenMetadata(r.Metadata)
		c[r.ID] = r
	}
	return nil
}

func (s *MemoryStore) ListCollections(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) GetCollection(_ context.Context, name string) (port.CollectionHandle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return port.CollectionHandle{}, fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, name)
	}
	return port.CollectionHandle{Name: name, Count: len(c)}, nil
}

func (s *MemoryStore) QueryByVector(_ context.Context, handle port.CollectionHandle, vector []float32, limit int, filter domain.Filter) ([]port.VectorMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[handle.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, handle.Name)
	}
	if limit <= 0 {
		return nil, nil
	}

	matches := make([]port.VectorMatch, 0, len(c))
	for id, r := range c {
		if len(filter) > 0 && !filter.Matches(r.Metadata) {
			continue
		}
		matches = append(matches, port.VectorMatch{
			ID:       id,
			Text:     r.Text,
			Metadata: r.Metadata,
			Distance: store.CosineDistance(vector, r.Vector),
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *MemoryStore) GetAllDocuments(_ context.Context, handle port.CollectionHandle) ([]domain.SourceDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[handle.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, handle.Name)
	}
	docs := make([]domain.SourceDocument, 0, len(c))
	for id, r := range c {
		docs = append(docs, domain.SourceDocument{ID: id, Text: r.Text, Metadata: r.Metadata})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// BlobStore keeps blobs in memory.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string][]byte)}
}

func (b *BlobStore) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.blobs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrBlobNotFound, key)
	}
	return append([]byte(nil), data...), nil
}

func (b *BlobStore) Put(_ context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[key] = append([]byte(nil), data...)
	return nil
}
