package port

import "github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/domain"

// Chunker splits one document into retrievable chunks. Every chunk carries a
// stable ID derived from source and position, and metadata["source"] is set
// to source so result attribution survives the vector store round trip.
// Blank content yields no chunks.
type Chunker interface {
	Chunk(source string, content string) ([]domain.Chunk, error)
}
