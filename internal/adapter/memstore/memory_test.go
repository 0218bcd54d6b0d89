package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/domain"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/port"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.CreateCollection("empty")
	require.NoError(t, s.Upsert(ctx, "docs", []port.VectorRecord{
		{ID: "a", Text: "alpha", Vector: []float32{1, 0}},
		{ID: "b", Text: "bravo", Vector: []float32{0, 1}, Metadata: map[string]any{"lang": "de"}},
	}))

	names, err := s.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs", "empty"}, names)

	empty, err := s.GetCollection(ctx, "empty")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Count)

	_, err = s.GetCollection(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrCollectionNotFound)

	h, err := s.GetCollection(ctx, "docs")
	require.NoError(t, err)
	matches, err := s.QueryByVector(ctx, h, []float32{0, 1}, 1, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "b", matches[0].ID)

	matches, err = s.QueryByVector(ctx, h, []float32{1, 0}, 5, domain.Filter{"lang": "de"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "b", matches[0].ID)

	docs, err := s.GetAllDocuments(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, []string{docs[0].ID, docs[1].ID})
}

func TestBlobStore(t *testing.T) {
	ctx := context.Background()
	b := NewBlobStore()
	_, err := b.Get(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrBlobNotFound)
	require.NoError(t, b.Put(ctx, "k", []byte("v")))
	data, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), data)
}
