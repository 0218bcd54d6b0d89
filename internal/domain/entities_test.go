package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter_Matches(t *testing.T) {
	meta := map[string]any{"source": "a.pdf", "page": 3}

	assert.True(t, Filter(nil).Matches(meta))
	assert.True(t, Filter{"source": "a.pdf"}.Matches(meta))
	assert.True(t, Filter{"page": "3"}.Matches(meta), "values compare by their printed form")
	assert.False(t, Filter{"source": "b.pdf"}.Matches(meta))
	assert.False(t, Filter{"missing": "x"}.Matches(meta))
}

func TestFlattenMetadata(t *testing.T) {
	flat := FlattenMetadata(map[string]any{
		"source": "a.pdf",
		"page":   2,
		"tags":   []string{"x", "y"},
		"nested": map[string]any{"k": "v"},
	})

	assert.Equal(t, "a.pdf", flat["source"])
	assert.Equal(t, 2, flat["page"])
	assert.Equal(t, `["x","y"]`, flat["tags"])
	assert.Equal(t, `{"k":"v"}`, flat["nested"])
	assert.Nil(t, FlattenMetadata(nil))
}
