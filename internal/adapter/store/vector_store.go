package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/domain"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/port"
)

// BoltVectorStore keeps one nested bucket per collection and mirrors every
// vector in memory. Search is brute-force cosine distance.
type BoltVectorStore struct {
	db        *bbolt.DB
	dimension int
	logger    *slog.Logger

	mu          sync.RWMutex
	collections map[string]map[string]vectorEntry
}

type vectorEntry struct {
	text     string
	vector   []float32
	metadata map[string]any
}

type storedVector struct {
	Vector   []float32      `json:"v"`
	Text     string         `json:"t"`
	Metadata map[string]any `json:"m,omitempty"`
}

// NewBoltVectorStore loads every collection into memory. A zero dimension
// accepts vectors of any length as long as each collection is consistent.
func NewBoltVectorStore(db *bbolt.DB, dimension int) (*BoltVectorStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCollections)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create collections bucket: %w", err)
	}

	s := &BoltVectorStore{
		db:          db,
		dimension:   dimension,
		logger:      slog.Default().With("component", "bolt_vector_store"),
		collections: make(map[string]map[string]vectorEntry),
	}
	if err := s.loadVectors(); err != nil {
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}
	return s, nil
}

func (s *BoltVectorStore) loadVectors() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketCollections)
		return root.ForEach(func(name, v []byte) error {
			if v != nil {
				return nil
			}
			entries := make(map[string]vectorEntry)
			err := root.Bucket(name).ForEach(func(k, v []byte) error {
				var stored storedVector
				if err := json.Unmarshal(v, &stored); err != nil {
					s.logger.Warn("skipping corrupted vector", "collection", string(name), "id", string(k))
					return nil
				}
				entries[string(k)] = vectorEntry{
					text:     stored.Text,
					vector:   stored.Vector,
					metadata: stored.Metadata,
				}
				return nil
			})
			if err != nil {
				return err
			}
			s.collections[string(name)] = entries
			return nil
		})
	})
}

func (s *BoltVectorStore) ListCollections(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *BoltVectorStore) GetCollection(_ context.Context, name string) (port.CollectionHandle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, ok := s.collections[name]
	if !ok {
		return port.CollectionHandle{}, fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, name)
	}
	return port.CollectionHandle{Name: name, Count: len(entries)}, nil
}

// Upsert creates the collection on first write.
func (s *BoltVectorStore) Upsert(_ context.Context, collection string, records []port.VectorRecord) error {
	if collection == "" {
		return fmt.Errorf("collection name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.collections[collection]
	dim := s.dimension
	if dim == 0 {
		for _, e := range entries {
			dim = len(e.vector)
			break
		}
	}

	staged := make(map[string]vectorEntry, len(records))
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(bucketCollections).CreateBucketIfNotExists([]byte(collection))
		if err != nil {
			return err
		}

		for _, r := range records {
			if dim == 0 {
				dim = len(r.Vector)
			}
			if len(r.Vector) != dim {
				return fmt.Errorf("vector dimension mismatch: expected %d, got %d", dim, len(r.Vector))
			}
			meta := domain.FlattenMetadata(r.Metadata)
			data, err := json.Marshal(storedVector{Vector: r.Vector, Text: r.Text, Metadata: meta})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(r.ID), data); err != nil {
				return err
			}
			staged[r.ID] = vectorEntry{text: r.Text, vector: r.Vector, metadata: meta}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if entries == nil {
		entries = make(map[string]vectorEntry, len(staged))
		s.collections[collection] = entries
	}
	for id, e := range staged {
		entries[id] = e
	}
	return nil
}

func (s *BoltVectorStore) QueryByVector(_ context.Context, handle port.CollectionHandle, vector []float32, limit int, filter domain.Filter) ([]port.VectorMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, ok := s.collections[handle.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, handle.Name)
	}
	if s.dimension > 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", s.dimension, len(vector))
	}
	return nearest(entries, vector, limit, filter), nil
}

func (s *BoltVectorStore) GetAllDocuments(_ context.Context, handle port.CollectionHandle) ([]domain.SourceDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, ok := s.collections[handle.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, handle.Name)
	}
	return allDocuments(entries), nil
}

func nearest(entries map[string]vectorEntry, query []float32, limit int, filter domain.Filter) []port.VectorMatch {
	if limit <= 0 {
		return nil
	}

	matches := make([]port.VectorMatch, 0, len(entries))
	for id, e := range entries {
		if len(filter) > 0 && !filter.Matches(e.metadata) {
			continue
		}
		matches = append(matches, port.VectorMatch{
			ID:       id,
			Text:     e.text,
			Metadata: e.metadata,
			Distance: CosineDistance(query, e.vector),
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
	return matches
}

func allDocuments(entries map[string]vectorEntry) []domain.SourceDocument {
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	docs := make([]domain.SourceDocument, 0, len(ids))
	for _, id := range ids {
		e := entries[id]
		docs = append(docs, domain.SourceDocument{ID: id, Text: e.text, Metadata: e.metadata})
	}
	return docs
}

// CosineDistance returns 1 - cosine similarity. Zero vectors are at distance 1.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return 1
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 1
	}

	return 1 - dotProduct/(math.Sqrt(normA)*math.Sqrt(normB))
}
