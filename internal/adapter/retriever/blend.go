package retriever

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/domain"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/port"
)

const blendWeight = 0.5

// BlendRetriever combines a vector and a lexical retriever by min-max
// normalizing each signal over the candidate set and averaging them.
type BlendRetriever struct {
	vector     port.Retriever
	lexical    port.Retriever
	candidates int
	onFailure  func(retriever string)
	logger     *slog.Logger
}

func NewBlendRetriever(vector, lexical port.Retriever, candidates int) *BlendRetriever {
	return &BlendRetriever{
		vector:     vector,
		lexical:    lexical,
		candidates: candidates,
		logger:     slog.Default().With("component", "blend_retriever"),
	}
}

// OnFailure registers a callback for failed sub-retrievers.
func (b *BlendRetriever) OnFailure(fn func(retriever string)) {
	b.onFailure = fn
}

func (b *BlendRetriever) Name() string { return "blend" }

func (b *BlendRetriever) Retrieve(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	all, err := b.Candidates(ctx, query, k)
	if err != nil {
		return nil, err
	}
	if len(all) > k {
		all = all[:k]
	}
	return all, nil
}

// Candidates returns every blended candidate, best first. Each signal fetches
// max(k, candidate pool) results.
func (b *BlendRetriever) Candidates(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	fetch := k
	if b.candidates > fetch {
		fetch = b.candidates
	}

	var vecResults, lexResults []domain.ScoredChunk
	var vecErr, lexErr error

	g, gctx := errgroup.WithContext(ctx)
	if b.vector != nil {
		g.Go(func() error {
			vecResults, vecErr = b.vector.Retrieve(gctx, query, fetch)
			return nil
		})
	}
	if b.lexical != nil {
		g.Go(func() error {
			lexResults, lexErr = b.lexical.Retrieve(gctx, query, fetch)
			return nil
		})
	}
	_ = g.Wait()

	if vecErr != nil {
		b.fail(b.vector.Name(), vecErr)
		vecResults = nil
	}
	if lexErr != nil {
		b.fail(b.lexical.Name(), lexErr)
		lexResults = nil
	}

	return Blend(vecResults, lexResults), nil
}

func (b *BlendRetriever) fail(name string, err error) {
	b.logger.Warn("sub-retriever failed", "retriever", name, "error", err)
	if b.onFailure != nil {
		b.onFailure(name)
	}
}

type blendItem struct {
	chunk   domain.Chunk
	vector  float64
	lexical float64
	vecRank int
	lexRank int
}

// Blend merges vector and lexical results by identity. A signal missing for a
// candidate counts as a raw score of 0. Each signal is min-max normalized over
// all candidates; a constant signal normalizes to 1 when positive, else 0.
// The final score is the mean of the two normalized signals.
func Blend(vector, lexical []domain.ScoredChunk) []domain.ScoredChunk {
	items := make(map[string]*blendItem)
	var order []string

	get := func(c domain.Chunk) *blendItem {
		id := Identity(c)
		item, ok := items[id]
		if !ok {
			item = &blendItem{chunk: c}
			items[id] = item
			order = append(order, id)
		}
		return item
	}
	for i, sc := range vector {
		item := get(sc.Chunk)
		item.vector = sc.Score
		item.vecRank = i + 1
	}
	for i, sc := range lexical {
		item := get(sc.Chunk)
		item.lexical = sc.Score
		item.lexRank = i + 1
	}
	if len(order) == 0 {
		return nil
	}

	vecNorm := newMinMax()
	lexNorm := newMinMax()
	for _, id := range order {
		vecNorm.observe(items[id].vector)
		lexNorm.observe(items[id].lexical)
	}

	blended := make([]domain.ScoredChunk, 0, len(order))
	for _, id := range order {
		item := items[id]
		nv := vecNorm.normalize(item.vector)
		nl := lexNorm.normalize(item.lexical)

		var source domain.SourceType
		switch {
		case item.vecRank > 0 && item.lexRank > 0:
			source = domain.SourceHybrid
		case item.vecRank > 0:
			source = domain.SourceVector
		default:
			source = domain.SourceLexical
		}

		var contributions []domain.Contribution
		if item.vecRank > 0 {
			contributions = append(contributions, domain.Contribution{
				Retriever: string(domain.SourceVector),
				Rank:      item.vecRank,
				RawScore:  item.vector,
				Weighted:  blendWeight * nv,
			})
		}
		if item.lexRank > 0 {
			contributions = append(contributions, domain.Contribution{
				Retriever: string(domain.SourceLexical),
				Rank:      item.lexRank,
				RawScore:  item.lexical,
				Weighted:  blendWeight * nl,
			})
		}

		blended = append(blended, domain.ScoredChunk{
			Chunk:         item.chunk,
			Score:         blendWeight*nv + blendWeight*nl,
			Source:        source,
			Contributions: contributions,
		})
	}

	sort.SliceStable(blended, func(i, j int) bool {
		return blended[i].Score > blended[j].Score
	})
	return blended
}

type minMax struct {
	min, max float64
	seen     bool
}

func newMinMax() *minMax { return &minMax{} }

func (m *minMax) observe(v float64) {
	if !m.seen {
		m.min, m.max, m.seen = v, v, true
		return
	}
	if v < m.min {
		m.min = v
	}
	if v > m.max {
		m.max = v
	}
}

func (m *minMax) normalize(v float64) float64 {
	if m.max > m.min {
		return (v - m.min) / (m.max - m.min)
	}
	if v > 0 {
		return 1
	}
	return 0
}
