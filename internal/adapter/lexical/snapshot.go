package lexical

import (
	"encoding/json"
	"fmt"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/domain"
)

// snapshot is the persisted form of an index. Chunks, positions and scoring
// are written and read as one unit.
type snapshot struct {
	Version int            `json:"version"`
	Chunks  []domain.Chunk `json:"chunks"`
	IDMap   map[string]int `json:"id_map"`
	Scoring *BM25          `json:"scoring"`
}

const snapshotVersion = 1

func encodeSnapshot(st *state) ([]byte, error) {
	return json.Marshal(snapshot{
		Version: snapshotVersion,
		Chunks:  st.chunks,
		IDMap:   st.positions,
		Scoring: st.scoring,
	})
}

func decodeSnapshot(data []byte) (*state, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIndexCorrupt, err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", domain.ErrIndexCorrupt, snap.Version)
	}
	if snap.Scoring == nil {
		return nil, fmt.Errorf("%w: missing scoring structure", domain.ErrIndexCorrupt)
	}
	if snap.Scoring.Len() != len(snap.Chunks) || len(snap.Scoring.TermFreqs) != len(snap.Chunks) {
		return nil, fmt.Errorf("%w: scoring covers %d documents, corpus has %d",
			domain.ErrIndexCorrupt, snap.Scoring.Len(), len(snap.Chunks))
	}
	if len(snap.IDMap) != len(snap.Chunks) {
		return nil, fmt.Errorf("%w: id map has %d entries, corpus has %d",
			domain.ErrIndexCorrupt, len(snap.IDMap), len(snap.Chunks))
	}
	for id, pos := range snap.IDMap {
		if pos < 0 || pos >= len(snap.Chunks) || snap.Chunks[pos].ID != id {
			return nil, fmt.Errorf("%w: id %q maps to invalid position %d", domain.ErrIndexCorrupt, id, pos)
		}
	}
	if snap.Scoring.IDF == nil {
		snap.Scoring.IDF = map[string]float64{}
	}

	return &state{
		chunks:    snap.Chunks,
		positions: snap.IDMap,
		scoring:   snap.Scoring,
	}, nil
}
