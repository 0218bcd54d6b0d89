package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/adapter/fs"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/domain"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/observability/logging"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/observability/metrics"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/port"
)

const (
	DefaultIngestWorkers = 4
	DefaultEmbedBatch    = 32
)

// IngestUseCase loads files into a collection of the vector store and then
// resynchronizes the collection's lexical index.
type IngestUseCase struct {
	walker    port.FileWalker
	chunker   port.Chunker
	embedder  port.Embedder
	writer    port.VectorWriter
	sync      *SyncUseCase
	metrics   *metrics.Metrics
	pool      *ants.Pool
	batchSize int
	logger    *slog.Logger
}

// IngestResult contains the results of an ingestion run.
type IngestResult struct {
	FilesIndexed     int
	FilesSkipped     int
	ChunksCreated    int
	LexicalDocuments int
	Errors           []string
}

// ProgressFunc is called after each file is chunked.
type ProgressFunc func(done, total int)

func NewIngestUseCase(
	walker port.FileWalker,
	chunker port.Chunker,
	embedder port.Embedder,
	writer port.VectorWriter,
	syncer *SyncUseCase,
	m *metrics.Metrics,
	workers int,
	batchSize int,
) (*IngestUseCase, error) {
	if workers < 1 {
		workers = DefaultIngestWorkers
	}
	if batchSize < 1 {
		batchSize = DefaultEmbedBatch
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create embedding pool: %w", err)
	}
	return &IngestUseCase{
		walker:    walker,
		chunker:   chunker,
		embedder:  embedder,
		writer:    writer,
		sync:      syncer,
		metrics:   m,
		pool:      pool,
		batchSize: batchSize,
		logger:    logging.WithComponent("ingest"),
	}, nil
}

// Release stops the embedding workers.
func (u *IngestUseCase) Release() {
	u.pool.Release()
}

// Ingest chunks every matching file under root, embeds the chunks, writes
// them to collection and syncs its lexical index.
func (u *IngestUseCase) Ingest(ctx context.Context, collection, root string, progress ProgressFunc) (*IngestResult, error) {
	result := &IngestResult{}

	files, err := u.walker.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	var chunks []domain.Chunk
	for i, file := range files {
		fileChunks, err := u.chunkFile(root, file)
		switch {
		case err != nil:
			result.Errors = append(result.Errors, fmt.Sprintf("failed to index %s: %v", file.Path, err))
		case len(fileChunks) == 0:
			result.FilesSkipped++
		default:
			chunks = append(chunks, fileChunks...)
			result.FilesIndexed++
		}
		if progress != nil {
			progress(i+1, len(files))
		}
	}
	if len(chunks) == 0 {
		u.logger.Info("nothing to ingest", "collection", collection, "files", len(files))
		return result, nil
	}

	records, err := u.embed(ctx, chunks)
	if err != nil {
		return nil, err
	}
	if err := u.writer.Upsert(ctx, collection, records); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", collection, err)
	}
	result.ChunksCreated = len(records)
	u.metrics.ChunksIngested(collection, len(records))

	n, err := u.sync.SyncLexicalIndex(ctx, collection)
	if err != nil {
		return nil, err
	}
	result.LexicalDocuments = n

	u.logger.Info("ingest complete",
		"collection", collection,
		"files", result.FilesIndexed,
		"chunks", result.ChunksCreated,
		"errors", len(result.Errors),
	)
	return result, nil
}

func (u *IngestUseCase) chunkFile(root string, file port.FileInfo) ([]domain.Chunk, error) {
	content, err := fs.ReadFile(file.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	source := file.Path
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	if rel, err := filepath.Rel(root, file.Path); err == nil {
		source = filepath.ToSlash(rel)
	}
	return u.chunker.Chunk(source, content)
}

// embed runs one EmbedBatch call per batch on the worker pool. Records keep
// chunk order.
func (u *IngestUseCase) embed(ctx context.Context, chunks []domain.Chunk) ([]port.VectorRecord, error) {
	records := make([]port.VectorRecord, len(chunks))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for start := 0; start < len(chunks); start += u.batchSize {
		start := start
		end := min(start+u.batchSize, len(chunks))
		batch := chunks[start:end]

		wg.Add(1)
		err := u.pool.Submit(func() {
			defer wg.Done()
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Text
			}
			vectors, err := u.embedder.EmbedBatch(ctx, texts)
			if err != nil {
				fail(fmt.Errorf("failed to embed chunks %d-%d: %w", start, end, err))
				return
			}
			if len(vectors) != len(batch) {
				fail(fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch)))
				return
			}
			for i, c := range batch {
				records[start+i] = port.VectorRecord{
					ID:       c.ID,
					Text:     c.Text,
					Metadata: c.Metadata,
					Vector:   vectors[i],
				}
			}
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("submit embedding batch: %w", err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return records, nil
}
