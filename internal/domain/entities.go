package domain

import (
	"encoding/json"
	"fmt"
)

// Chunk is the smallest retrievable unit of indexed text.
type Chunk struct {
	ID         string         `json:"id"`
	Text       string         `json:"text"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Collection string         `json:"collection,omitempty"`
}

// SourceDocument is a record as held by the vector store, used to resynchronize
// the lexical index.
type SourceDocument struct {
	ID       string
	Text     string
	Metadata map[string]any
}

type SourceType string

const (
	SourceVector  SourceType = "vector"
	SourceLexical SourceType = "lexical"
	SourceHybrid  SourceType = "hybrid"
)

// Contribution records how one sub-retriever contributed to a fused result.
type Contribution struct {
	Retriever string  `json:"retriever"`
	Rank      int     `json:"rank"` // 1-based
	RawScore  float64 `json:"raw_score"`
	Weighted  float64 `json:"contribution"`
}

type ScoredChunk struct {
	Chunk         Chunk
	Score         float64
	Source        SourceType
	Contributions []Contribution
}

// QueryResult is a single ranked passage returned to callers.
type QueryResult struct {
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata"`
	RelevanceScore float64        `json:"relevance_score"`
	CollectionName string         `json:"collection_name"`
	SourceType     SourceType     `json:"source_type"`
	VectorScore    float64        `json:"_vector_score"`
	LexicalScore   float64        `json:"_lexical_score"`
	Contributions  []Contribution `json:"_contributions,omitempty"`
}

type MergeStrategy string

const (
	MergeInterleave MergeStrategy = "interleave"
	MergeBest       MergeStrategy = "best"
)

type FusionStrategy string

const (
	FusionRRF   FusionStrategy = "rrf"
	FusionBlend FusionStrategy = "blend"
)

// QueryConfig controls a single engine query.
type QueryConfig struct {
	ResultCount   int
	MinRelevance  float64
	MergeStrategy MergeStrategy
	Filters       Filter
	Fusion        FusionStrategy
}

// Filter is a flat metadata equality filter. Every key must match.
type Filter map[string]any

// Matches reports whether metadata satisfies every key of the filter.
func (f Filter) Matches(metadata map[string]any) bool {
	for k, want := range f {
		got, ok := metadata[k]
		if !ok {
			return false
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// FlattenMetadata returns a copy of metadata in which nested maps and slices
// are serialized to JSON strings, leaving scalars untouched.
func FlattenMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	flat := make(map[string]any, len(metadata))
	for k, v := range metadata {
		switch v.(type) {
		case nil, string, bool, int, int32, int64, float32, float64, json.Number:
			flat[k] = v
		default:
			data, err := json.Marshal(v)
			if err != nil {
				flat[k] = fmt.Sprint(v)
				continue
			}
			flat[k] = string(data)
		}
	}
	return flat
}
