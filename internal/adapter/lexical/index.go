package lexical

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/adapter/analyzer"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/domain"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/port"
)

type Config struct {
	K1 float64
	B  float64
}

func DefaultConfig() Config {
	return Config{K1: DefaultK1, B: DefaultB}
}

// state is an immutable view of the corpus. Mutations build a new state and
// swap it in, so readers never see a half-built index.
type state struct {
	chunks    []domain.Chunk
	positions map[string]int
	scoring   *BM25
}

func emptyState(cfg Config) *state {
	return &state{
		positions: map[string]int{},
		scoring:   NewBM25(nil, cfg.K1, cfg.B),
	}
}

// Index is the BM25 index of one collection.
type Index struct {
	collection string
	store      port.BlobStore
	cfg        Config
	logger     *slog.Logger

	writeMu sync.Mutex // serializes mutations and persistence
	mu      sync.RWMutex
	state   *state
}

func NewIndex(collection string, store port.BlobStore, cfg Config) *Index {
	if cfg.K1 <= 0 {
		cfg.K1 = DefaultK1
	}
	if cfg.B < 0 || cfg.B > 1 {
		cfg.B = DefaultB
	}
	return &Index{
		collection: collection,
		store:      store,
		cfg:        cfg,
		logger:     slog.Default().With("component", "lexical_index", "collection", collection),
		state:      emptyState(cfg),
	}
}

func (idx *Index) Collection() string {
	return idx.collection
}

// Len returns the number of chunks in the index.
func (idx *Index) Len() int {
	return len(idx.current().chunks)
}

func (idx *Index) current() *state {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.state
}

func (idx *Index) swap(st *state) {
	idx.mu.Lock()
	idx.state = st
	idx.mu.Unlock()
}

// Add upserts chunks by ID, rebuilds scoring over the full corpus and persists.
func (idx *Index) Add(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	cur := idx.current()
	next := make([]domain.Chunk, len(cur.chunks), len(cur.chunks)+len(chunks))
	copy(next, cur.chunks)
	positions := make(map[string]int, len(cur.positions)+len(chunks))
	for id, pos := range cur.positions {
		positions[id] = pos
	}

	for _, c := range chunks {
		c.Collection = idx.collection
		if pos, ok := positions[c.ID]; ok {
			next[pos] = c
			continue
		}
		positions[c.ID] = len(next)
		next = append(next, c)
	}

	idx.swap(idx.build(next, positions))
	return idx.save(ctx)
}

// RebuildFromAuthoritative replaces the corpus with the vector store's
// contents. Documents with empty text are skipped.
func (idx *Index) RebuildFromAuthoritative(ctx context.Context, docs []domain.SourceDocument) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	chunks := make([]domain.Chunk, 0, len(docs))
	positions := make(map[string]int, len(docs))
	for _, d := range docs {
		if strings.TrimSpace(d.Text) == "" {
			idx.logger.Warn("skipping document with empty content", "doc_id", d.ID)
			continue
		}
		c := domain.Chunk{
			ID:         d.ID,
			Text:       d.Text,
			Metadata:   domain.FlattenMetadata(d.Metadata),
			Collection: idx.collection,
		}
		if pos, ok := positions[d.ID]; ok {
			chunks[pos] = c
			continue
		}
		positions[d.ID] = len(chunks)
		chunks = append(chunks, c)
	}

	if len(chunks) != len(docs) {
		idx.logger.Warn("document count mismatch after rebuild", "expected", len(docs), "actual", len(chunks))
	}

	idx.swap(idx.build(chunks, positions))
	idx.logger.Info("rebuilt lexical index", "documents", len(chunks))
	return idx.save(ctx)
}

func (idx *Index) build(chunks []domain.Chunk, positions map[string]int) *state {
	corpus := make([][]string, len(chunks))
	for i, c := range chunks {
		corpus[i] = analyzer.Tokenize(c.Text)
	}
	return &state{
		chunks:    chunks,
		positions: positions,
		scoring:   NewBM25(corpus, idx.cfg.K1, idx.cfg.B),
	}
}

// Score returns one BM25 score per chunk, in corpus order.
func (idx *Index) Score(queryTokens []string) []float64 {
	return idx.current().scoring.Scores(queryTokens)
}

// Search returns at most k chunks with a positive score that satisfy filter,
// ordered by descending score. Ties keep corpus order.
func (idx *Index) Search(queryTokens []string, k int, filter domain.Filter) []domain.ScoredChunk {
	st := idx.current()
	if k <= 0 || len(st.chunks) == 0 {
		return nil
	}

	scores := st.scoring.Scores(queryTokens)
	results := make([]domain.ScoredChunk, 0, k)
	for i, score := range scores {
		if score <= 0 {
			continue
		}
		c := st.chunks[i]
		if len(filter) > 0 && !filter.Matches(c.Metadata) {
			continue
		}
		results = append(results, domain.ScoredChunk{
			Chunk:  c,
			Score:  score,
			Source: domain.SourceLexical,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// Load replaces the in-memory index with the persisted one. A missing or
// unreadable snapshot leaves the index empty. Storage failures are returned
// and leave the in-memory index unchanged.
func (idx *Index) Load(ctx context.Context) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	data, err := idx.store.Get(ctx, idx.collection)
	if errors.Is(err, domain.ErrBlobNotFound) {
		idx.swap(emptyState(idx.cfg))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load lexical index %s: %w", idx.collection, err)
	}

	st, err := decodeSnapshot(data)
	if err != nil {
		idx.logger.Warn("discarding unreadable lexical index", "error", err)
		idx.swap(emptyState(idx.cfg))
		return nil
	}

	idx.swap(st)
	idx.logger.Info("loaded lexical index", "documents", len(st.chunks))
	return nil
}

func (idx *Index) save(ctx context.Context) error {
	data, err := encodeSnapshot(idx.current())
	if err != nil {
		return fmt.Errorf("encode lexical index %s: %w", idx.collection, err)
	}
	if err := idx.store.Put(ctx, idx.collection, data); err != nil {
		return fmt.Errorf("save lexical index %s: %w", idx.collection, err)
	}
	return nil
}
