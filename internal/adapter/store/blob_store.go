package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"go.etcd.io/bbolt"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/domain"
)

// BoltBlobStore keeps lexical index snapshots in the lexical_indexes bucket.
// A bbolt transaction makes every Put atomic.
type BoltBlobStore struct {
	db *bbolt.DB
}

func NewBoltBlobStore(db *bbolt.DB) (*BoltBlobStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketLexical)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create lexical bucket: %w", err)
	}
	return &BoltBlobStore{db: db}, nil
}

func (s *BoltBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketLexical).Get([]byte(key))
		if v == nil {
			return fmt.Errorf("%w: %s", domain.ErrBlobNotFound, key)
		}
		data = append([]byte(nil), v...)
		return nil
	})
	return data, err
}

func (s *BoltBlobStore) Put(_ context.Context, key string, data []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketLexical).Put([]byte(key), data)
	})
}

const lockRetryDelay = 50 * time.Millisecond

// FileBlobStore writes one file per key under dir. Writes go to a temp file
// that is renamed into place while holding an advisory lock on <key>.lock,
// so concurrent processes never observe a partial blob.
type FileBlobStore struct {
	dir string
}

func NewFileBlobStore(dir string) (*FileBlobStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob dir: %w", err)
	}
	return &FileBlobStore{dir: dir}, nil
}

func (s *FileBlobStore) path(key string) string {
	return filepath.Join(s.dir, sanitizeKey(key)+".json")
}

func (s *FileBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	unlock, err := s.lock(ctx, key, false)
	if err != nil {
		return nil, err
	}
	defer unlock()

	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrBlobNotFound, key)
	}
	return data, err
}

func (s *FileBlobStore) Put(ctx context.Context, key string, data []byte) error {
	unlock, err := s.lock(ctx, key, true)
	if err != nil {
		return err
	}
	defer unlock()

	tmp, err := os.CreateTemp(s.dir, sanitizeKey(key)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp blob: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename blob: %w", err)
	}
	return nil
}

func (s *FileBlobStore) lock(ctx context.Context, key string, exclusive bool) (func(), error) {
	fl := flock.New(filepath.Join(s.dir, sanitizeKey(key)+".lock"))

	var locked bool
	var err error
	if exclusive {
		locked, err = fl.TryLockContext(ctx, lockRetryDelay)
	} else {
		locked, err = fl.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		return nil, fmt.Errorf("lock blob %s: %w", key, err)
	}
	if !locked {
		return nil, fmt.Errorf("lock blob %s: not acquired", key)
	}
	return func() { _ = fl.Unlock() }, nil
}

// sanitizeKey maps a collection name to a safe file name.
func sanitizeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			fmt.Fprintf(&b, "%%%02X", r)
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}
