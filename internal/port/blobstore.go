package port

import "context"

// BlobStore holds one whole-object blob per key.
type BlobStore interface {
	// Get returns domain.ErrBlobNotFound when the key has never been written.
	Get(ctx context.Context, key string) ([]byte, error)

	Put(ctx context.Context, key string, data []byte) error
}
