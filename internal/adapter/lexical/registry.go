package lexical

import (
	"context"
	"log/slog"
	"sync"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/port"
)

// Registry owns one lazily loaded Index per collection.
type Registry struct {
	store  port.BlobStore
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry

	observe func(collection string, documents int)
}

type entry struct {
	mu     sync.Mutex
	loaded bool
	index  *Index
}

func NewRegistry(store port.BlobStore, cfg Config) *Registry {
	return &Registry{
		store:   store,
		cfg:     cfg,
		logger:  slog.Default().With("component", "lexical_registry"),
		entries: make(map[string]*entry),
	}
}

// OnSize registers a callback invoked with the corpus size whenever an index
// is loaded or changed through the registry.
func (r *Registry) OnSize(fn func(collection string, documents int)) {
	r.observe = fn
}

// Get returns the index for collection, loading it from storage on first use.
// A failed load is logged, leaves the index empty and is retried by the next
// Get. The load ignores ctx cancellation so one caller's deadline does not
// decide the shared index.
func (r *Registry) Get(ctx context.Context, collection string) *Index {
	r.mu.Lock()
	e, ok := r.entries[collection]
	if !ok {
		e = &entry{index: NewIndex(collection, r.store, r.cfg)}
		r.entries[collection] = e
	}
	r.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		return e.index
	}
	if err := e.index.Load(context.WithoutCancel(ctx)); err != nil {
		r.logger.Error("failed to load lexical index", "collection", collection, "error", err)
		return e.index
	}
	e.loaded = true
	r.Report(collection)
	return e.index
}

// Report publishes the current corpus size of a loaded collection.
func (r *Registry) Report(collection string) {
	if r.observe == nil {
		return
	}
	r.mu.Lock()
	e, ok := r.entries[collection]
	r.mu.Unlock()
	if ok {
		r.observe(collection, e.index.Len())
	}
}
