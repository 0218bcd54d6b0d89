package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/domain"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/port"
)

type canonicalKey struct {
	Collection string                `json:"collection"`
	Query      string                `json:"query"`
	K          int                   `json:"k"`
	Filters    domain.Filter         `json:"filters"`
	Fusion     domain.FusionStrategy `json:"fusion"`
}

// Key hashes the canonical JSON form of key. Map keys marshal sorted, so
// equal filter sets always produce equal keys.
func Key(key port.CacheKey) string {
	filters := key.Filters
	if len(filters) == 0 {
		filters = nil
	}
	data, err := json.Marshal(canonicalKey{
		Collection: key.Collection,
		Query:      NormalizeQuery(key.Query),
		K:          key.K,
		Filters:    filters,
		Fusion:     key.Fusion,
	})
	if err != nil {
		// fmt prints maps with sorted keys
		data = fmt.Appendf(nil, "%s\x00%s\x00%d\x00%v\x00%s",
			key.Collection, NormalizeQuery(key.Query), key.K, filters, key.Fusion)
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// NormalizeQuery lowercases and collapses whitespace.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

func cloneResults(results []domain.QueryResult) []domain.QueryResult {
	if results == nil {
		return nil
	}
	out := make([]domain.QueryResult, len(results))
	copy(out, results)
	for i := range out {
		out[i].Metadata = maps.Clone(out[i].Metadata)
	}
	return out
}
