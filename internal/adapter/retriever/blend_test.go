package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/domain"
)

func scored(id string, score float64, source domain.SourceType) domain.ScoredChunk {
	return domain.ScoredChunk{Chunk: domain.Chunk{ID: id, Text: id}, Score: score, Source: source}
}

func TestBlend_MinMaxAverage(t *testing.T) {
	vector := []domain.ScoredChunk{
		scored("a", 0.9, domain.SourceVector),
		scored("b", 0.5, domain.SourceVector),
	}
	lexical := []domain.ScoredChunk{
		scored("b", 4.0, domain.SourceLexical),
		scored("c", 2.0, domain.SourceLexical),
	}

	got := Blend(vector, lexical)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"b", "a", "c"}, ids(got))

	assert.InDelta(t, 0.5*(0.5/0.9)+0.5, got[0].Score, 1e-9)
	assert.Equal(t, domain.SourceHybrid, got[0].Source)
	assert.InDelta(t, 0.5, got[1].Score, 1e-9)
	assert.Equal(t, domain.SourceVector, got[1].Source)
	assert.InDelta(t, 0.25, got[2].Score, 1e-9)
	assert.Equal(t, domain.SourceLexical, got[2].Source)
}

func TestBlend_ConstantSignal(t *testing.T) {
	got := Blend([]domain.ScoredChunk{scored("a", 0.8, domain.SourceVector)}, nil)
	require.Len(t, got, 1)
	// vector constant and positive → 1, lexical constant zero → 0
	assert.InDelta(t, 0.5, got[0].Score, 1e-12)

	assert.Nil(t, Blend(nil, nil))
}

func TestBlend_DiffersFromRRF(t *testing.T) {
	vector := []domain.ScoredChunk{
		scored("a", 0.99, domain.SourceVector),
		scored("b", 0.98, domain.SourceVector),
		scored("c", 0.10, domain.SourceVector),
	}
	lexical := []domain.ScoredChunk{
		scored("c", 9.0, domain.SourceLexical),
		scored("b", 1.0, domain.SourceLexical),
	}

	blended := ids(Blend(vector, lexical))
	fused := ids(RRF([][]domain.ScoredChunk{vector, lexical}, []string{"vector", "lexical"}, []float64{0.5, 0.5}, 60))
	assert.NotEqual(t, blended, fused)
}

func TestBlendRetriever_ToleratesFailure(t *testing.T) {
	v := &stubRetriever{name: "vector", err: errors.New("down")}
	l := &stubRetriever{name: "lexical", results: []domain.ScoredChunk{
		scored("x", 3, domain.SourceLexical),
		scored("y", 1, domain.SourceLexical),
	}}
	b := NewBlendRetriever(v, l, 6)
	var failed []string
	b.OnFailure(func(name string) { failed = append(failed, name) })

	got, err := b.Retrieve(context.Background(), "q", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, ids(got))
	assert.Equal(t, 6, l.gotK)
	assert.Equal(t, []string{"vector"}, failed)
}

func TestRelevance(t *testing.T) {
	assert.InDelta(t, 0.8, Relevance(0.2), 1e-12)
	assert.Equal(t, 0.0, Relevance(1.7))
	assert.Equal(t, 1.0, Relevance(-0.3))
}
