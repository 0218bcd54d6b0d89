package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/domain"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/port"
)

func openStore(t *testing.T) *BoltStore {
	t.Helper()
	st, err := NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func records() []port.VectorRecord {
	return []port.VectorRecord{
		{ID: "a", Text: "alpha", Vector: []float32{1, 0, 0}, Metadata: map[string]any{"source": "x.md", "tags": []string{"t1"}}},
		{ID: "b", Text: "bravo", Vector: []float32{0.8, 0.6, 0}, Metadata: map[string]any{"source": "y.md"}},
		{ID: "c", Text: "charlie", Vector: []float32{0, 0, 1}, Metadata: map[string]any{"source": "x.md"}},
	}
}

func TestBoltVectorStore_UpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	vs, err := NewBoltVectorStore(st.DB(), 3)
	require.NoError(t, err)

	_, err = vs.GetCollection(ctx, "docs")
	assert.ErrorIs(t, err, domain.ErrCollectionNotFound)

	require.NoError(t, vs.Upsert(ctx, "docs", records()))

	handle, err := vs.GetCollection(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 3, handle.Count)

	matches, err := vs.QueryByVector(ctx, handle, []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ID)
	assert.InDelta(t, 0.0, matches[0].Distance, 1e-9)
	assert.Equal(t, "b", matches[1].ID)
	assert.InDelta(t, 0.2, matches[1].Distance, 1e-6)
	assert.Equal(t, `["t1"]`, matches[0].Metadata["tags"], "metadata is flattened")

	filtered, err := vs.QueryByVector(ctx, handle, []float32{1, 0, 0}, 5, domain.Filter{"source": "x.md"})
	require.NoError(t, err)
	assert.Len(t, filtered, 2)
	for _, m := range filtered {
		assert.Equal(t, "x.md", m.Metadata["source"])
	}

	_, err = vs.QueryByVector(ctx, handle, []float32{1, 0}, 2, nil)
	assert.Error(t, err)
}

func TestBoltVectorStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	st, err := NewBoltStore(path)
	require.NoError(t, err)
	vs, err := NewBoltVectorStore(st.DB(), 0)
	require.NoError(t, err)
	require.NoError(t, vs.Upsert(ctx, "docs", records()))
	require.NoError(t, vs.Upsert(ctx, "law", records()[:1]))
	require.NoError(t, st.Close())

	st, err = NewBoltStore(path)
	require.NoError(t, err)
	defer st.Close()
	vs, err = NewBoltVectorStore(st.DB(), 0)
	require.NoError(t, err)

	names, err := vs.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs", "law"}, names)

	handle, err := vs.GetCollection(ctx, "docs")
	require.NoError(t, err)
	docs, err := vs.GetAllDocuments(ctx, handle)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "a", docs[0].ID)
	assert.Equal(t, "alpha", docs[0].Text)
	assert.Equal(t, "x.md", docs[0].Metadata["source"])
}

func TestBoltVectorStore_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	vs, err := NewBoltVectorStore(openStore(t).DB(), 0)
	require.NoError(t, err)

	require.NoError(t, vs.Upsert(ctx, "docs", records()[:1]))
	err = vs.Upsert(ctx, "docs", []port.VectorRecord{{ID: "z", Text: "z", Vector: []float32{1, 2}}})
	assert.Error(t, err)

	handle, err := vs.GetCollection(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 1, handle.Count, "failed batch leaves the collection untouched")
}

func TestBoltBlobStore(t *testing.T) {
	ctx := context.Background()
	bs, err := NewBoltBlobStore(openStore(t).DB())
	require.NoError(t, err)

	_, err = bs.Get(ctx, "docs")
	assert.ErrorIs(t, err, domain.ErrBlobNotFound)

	require.NoError(t, bs.Put(ctx, "docs", []byte("v1")))
	require.NoError(t, bs.Put(ctx, "docs", []byte("v2")))
	data, err := bs.Get(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)
}

func TestFileBlobStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	bs, err := NewFileBlobStore(dir)
	require.NoError(t, err)

	_, err = bs.Get(ctx, "my docs/2024")
	assert.ErrorIs(t, err, domain.ErrBlobNotFound)

	require.NoError(t, bs.Put(ctx, "my docs/2024", []byte(`{"a":1}`)))
	data, err := bs.Get(ctx, "my docs/2024")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(data))

	tmps, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, tmps)

	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "my%20docs%2F2024.json", filepath.Base(files[0]))
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0.0, CosineDistance([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 1.0, CosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 2.0, CosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 1.0, CosineDistance([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, 1.0, CosineDistance([]float32{1}, []float32{1, 0}))
}
