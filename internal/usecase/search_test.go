package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/domain"
)

func TestSearch_BlendsAcrossCollections(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	u := NewSearchUseCase(f.store, f.embedder, f.lexicon, nil)

	resp, err := u.Search(context.Background(), "zebrafish", []string{"alpha", "beta"}, 2, nil)
	require.NoError(t, err)

	require.Len(t, resp.Documents, 2)
	assert.Equal(t, 2, resp.TotalFound)
	assert.Equal(t, 6, resp.TotalCandidates)
	assert.Equal(t, "zebrafish", resp.Query)
	assert.Equal(t, "zebrafish live in rivers", resp.Documents[0].Content)
	assert.Equal(t, "beta", resp.Documents[0].CollectionName)
	assert.InDelta(t, 1.0, resp.Documents[0].RelevanceScore, 1e-9)
}

func TestSearch_SkipsMissingCollections(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	u := NewSearchUseCase(f.store, f.embedder, f.lexicon, nil)

	resp, err := u.Search(context.Background(), "fox", []string{"missing", "alpha"}, 3, nil)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Documents)
	for _, d := range resp.Documents {
		assert.Equal(t, "alpha", d.CollectionName)
	}
}

func TestSearch_RequiresCollections(t *testing.T) {
	f := newFixture(t)
	u := NewSearchUseCase(f.store, f.embedder, f.lexicon, nil)

	_, err := u.Search(context.Background(), "fox", nil, 3, nil)
	assert.ErrorIs(t, err, ErrNoCollections)
}

func TestSearch_AppliesFilters(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	u := NewSearchUseCase(f.store, f.embedder, f.lexicon, nil)

	resp, err := u.Search(context.Background(), "zebrafish", []string{"alpha", "beta"}, 5,
		domain.Filter{"source": "alpha.md"})
	require.NoError(t, err)
	for _, d := range resp.Documents {
		assert.Equal(t, "alpha", d.CollectionName)
	}
}
