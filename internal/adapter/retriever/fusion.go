package retriever

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/domain"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/port"
)

const (
	DefaultRRFK          = 60
	DefaultVectorWeight  = 0.7
	DefaultLexicalWeight = 0.3
)

// FusionRetriever merges the rankings of several retrievers with weighted
// Reciprocal Rank Fusion. A zero-based rank r contributes weight/(r+K).
type FusionRetriever struct {
	retrievers []port.Retriever
	weights    []float64
	rrfK       int
	candidates int
	onFailure  func(retriever string)
	logger     *slog.Logger
}

type FusionOption func(*FusionRetriever)

// WithRRFK sets the smoothing constant K. Non-positive values keep the default.
func WithRRFK(k int) FusionOption {
	return func(f *FusionRetriever) {
		if k > 0 {
			f.rrfK = k
		}
	}
}

// WithCandidatePool makes every sub-retriever fetch at least n candidates.
func WithCandidatePool(n int) FusionOption {
	return func(f *FusionRetriever) { f.candidates = n }
}

// WithFailureHook is called with the name of each sub-retriever that fails.
func WithFailureHook(fn func(retriever string)) FusionOption {
	return func(f *FusionRetriever) { f.onFailure = fn }
}

// NewFusionRetriever validates weights against retrievers. A nil weights
// slice weights every retriever equally.
func NewFusionRetriever(retrievers []port.Retriever, weights []float64, opts ...FusionOption) (*FusionRetriever, error) {
	if len(retrievers) == 0 {
		return nil, fmt.Errorf("%w: fusion needs at least one retriever", domain.ErrConfiguration)
	}
	if weights == nil {
		weights = make([]float64, len(retrievers))
		for i := range weights {
			weights[i] = 1.0 / float64(len(retrievers))
		}
	}
	if len(weights) != len(retrievers) {
		return nil, fmt.Errorf("%w: %d weights for %d retrievers", domain.ErrConfiguration, len(weights), len(retrievers))
	}
	total := 0.0
	for i, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("%w: negative weight %v for %s", domain.ErrConfiguration, w, retrievers[i].Name())
		}
		total += w
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: fusion weights sum to zero", domain.ErrConfiguration)
	}

	f := &FusionRetriever{
		retrievers: retrievers,
		weights:    append([]float64(nil), weights...),
		rrfK:       DefaultRRFK,
		logger:     slog.Default().With("component", "fusion_retriever"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *FusionRetriever) Name() string { return "fusion" }

// Retrieve runs all sub-retrievers concurrently and fuses what succeeded.
// Failed sub-retrievers count as empty; if all fail the result is empty.
func (f *FusionRetriever) Retrieve(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	fetch := k
	if f.candidates > fetch {
		fetch = f.candidates
	}

	lists := make([][]domain.ScoredChunk, len(f.retrievers))
	errs := make([]error, len(f.retrievers))

	g, gctx := errgroup.WithContext(ctx)
	for i, r := range f.retrievers {
		i, r := i, r
		g.Go(func() error {
			lists[i], errs[i] = r.Retrieve(gctx, query, fetch)
			return nil // failures are isolated per retriever
		})
	}
	_ = g.Wait()

	failed := 0
	for i, err := range errs {
		if err == nil {
			continue
		}
		failed++
		lists[i] = nil
		name := f.retrievers[i].Name()
		f.logger.Warn("sub-retriever failed", "retriever", name, "error", err)
		if f.onFailure != nil {
			f.onFailure(name)
		}
	}
	if failed == len(f.retrievers) {
		f.logger.Warn("all sub-retrievers failed", "retrievers", failed)
		return nil, nil
	}

	names := make([]string, len(f.retrievers))
	for i, r := range f.retrievers {
		names[i] = r.Name()
	}

	fused := RRF(lists, names, f.weights, f.rrfK)
	if len(fused) > k {
		fused = fused[:k]
	}
	return fused, nil
}

type fusedItem struct {
	chunk         domain.Chunk
	score         float64
	sources       map[domain.SourceType]struct{}
	contributions []domain.Contribution
}

// RRF fuses ranked lists. Items are matched by chunk ID, or by a hash of the
// text when the ID is empty. Scores are divided by the best attainable fused
// score, so an item ranked first by every list scores 1. Ties keep the order
// in which items were first seen.
func RRF(lists [][]domain.ScoredChunk, names []string, weights []float64, rrfK int) []domain.ScoredChunk {
	if rrfK <= 0 {
		rrfK = DefaultRRFK
	}
	K := float64(rrfK)

	maxScore := 0.0
	for _, w := range weights {
		maxScore += w / K
	}

	items := make(map[string]*fusedItem)
	var order []string

	for li, list := range lists {
		w := weights[li]
		for rank, sc := range list {
			id := Identity(sc.Chunk)
			item, ok := items[id]
			if !ok {
				item = &fusedItem{chunk: sc.Chunk, sources: map[domain.SourceType]struct{}{}}
				items[id] = item
				order = append(order, id)
			}
			contribution := w / (float64(rank) + K)
			item.score += contribution

			source := sc.Source
			if source == "" {
				source = domain.SourceType(names[li])
			}
			item.sources[source] = struct{}{}
			item.contributions = append(item.contributions, domain.Contribution{
				Retriever: names[li],
				Rank:      rank + 1,
				RawScore:  sc.Score,
				Weighted:  contribution,
			})
		}
	}

	fused := make([]domain.ScoredChunk, 0, len(order))
	for _, id := range order {
		item := items[id]
		score := item.score
		if maxScore > 0 {
			score /= maxScore
		}
		fused = append(fused, domain.ScoredChunk{
			Chunk:         item.chunk,
			Score:         score,
			Source:        provenance(item.sources),
			Contributions: item.contributions,
		})
	}

	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Score > fused[j].Score
	})
	return fused
}

func provenance(sources map[domain.SourceType]struct{}) domain.SourceType {
	if len(sources) > 1 {
		return domain.SourceHybrid
	}
	for s := range sources {
		return s
	}
	return domain.SourceHybrid
}

// Identity is the fusion key of a chunk.
func Identity(c domain.Chunk) string {
	if c.ID != "" {
		return c.ID
	}
	sum := sha256.Sum256([]byte(c.Text))
	return "sha256:" + hex.EncodeToString(sum[:])
}
