package port

// FileWalker enumerates the files an ingest run should load into a
// collection. Results are ordered by path so repeated runs chunk files in the
// same order.
type FileWalker interface {
	Walk(root string) ([]FileInfo, error)
}

// FileInfo describes one ingestible file. Path is absolute; ingest derives the
// chunk source from it relative to the walk root.
type FileInfo struct {
	Path    string
	ModTime int64
	Size    int64
}
