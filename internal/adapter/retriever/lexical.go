package retriever

import (
	"context"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/adapter/analyzer"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/adapter/lexical"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/domain"
)

// LexicalRetriever ranks a collection's chunks with its BM25 index.
type LexicalRetriever struct {
	index  *lexical.Index
	filter domain.Filter
}

func NewLexicalRetriever(index *lexical.Index, filter domain.Filter) *LexicalRetriever {
	return &LexicalRetriever{index: index, filter: filter}
}

func (r *LexicalRetriever) Name() string { return string(domain.SourceLexical) }

func (r *LexicalRetriever) Retrieve(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.index == nil {
		return nil, nil
	}

	tokens := analyzer.Tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	return r.index.Search(tokens, k, r.filter), nil
}
