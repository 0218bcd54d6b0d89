package lexical

import "math"

const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// BM25 is the Okapi BM25 scoring structure for a fixed corpus. It is never
// updated in place; every corpus mutation builds a new one.
type BM25 struct {
	K1        float64            `json:"k1"`
	B         float64            `json:"b"`
	DocLens   []int              `json:"doc_lens"`
	AvgDocLen float64            `json:"avg_doc_len"`
	TermFreqs []map[string]int   `json:"term_freqs"`
	IDF       map[string]float64 `json:"idf"`
}

// NewBM25 builds the scoring structure over tokenized documents.
func NewBM25(corpus [][]string, k1, b float64) *BM25 {
	m := &BM25{
		K1:        k1,
		B:         b,
		DocLens:   make([]int, len(corpus)),
		TermFreqs: make([]map[string]int, len(corpus)),
		IDF:       make(map[string]float64),
	}

	docFreq := make(map[string]int)
	total := 0
	for i, tokens := range corpus {
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		for term := range tf {
			docFreq[term]++
		}
		m.TermFreqs[i] = tf
		m.DocLens[i] = len(tokens)
		total += len(tokens)
	}
	if len(corpus) > 0 {
		m.AvgDocLen = float64(total) / float64(len(corpus))
	}

	N := float64(len(corpus))
	for term, df := range docFreq {
		n := float64(df)
		m.IDF[term] = math.Log((N-n+0.5)/(n+0.5) + 1)
	}

	return m
}

// Len returns the number of documents the structure was built over.
func (m *BM25) Len() int {
	return len(m.DocLens)
}

// Scores returns one score per document, in corpus order.
func (m *BM25) Scores(query []string) []float64 {
	scores := make([]float64, len(m.DocLens))
	if len(query) == 0 || len(scores) == 0 {
		return scores
	}

	avgDl := m.AvgDocLen
	if avgDl == 0 {
		avgDl = 1
	}

	for _, term := range query {
		idf, ok := m.IDF[term]
		if !ok {
			continue
		}
		for i, tfs := range m.TermFreqs {
			tf := float64(tfs[term])
			if tf == 0 {
				continue
			}
			dl := float64(m.DocLens[i])
			scores[i] += idf * (tf * (m.K1 + 1)) / (tf + m.K1*(1-m.B+m.B*dl/avgDl))
		}
	}

	return scores
}
