package fs

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalker_IncludesAndExcludes(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"guide.md":                 "# guide",
		"notes/todo.txt":           "todo",
		"notes/image.png":          "png",
		"node_modules/pkg/read.md": "vendored",
		".rag/index.db":            "db",
	}
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}

	w := NewWalker([]string{"**/*.md", "**/*.txt"}, []string{"**/node_modules/**", "**/.rag/**"})
	found, err := w.Walk(root)
	require.NoError(t, err)

	var rels []string
	for _, f := range found {
		rel, err := filepath.Rel(root, f.Path)
		require.NoError(t, err)
		rels = append(rels, filepath.ToSlash(rel))
	}
	sort.Strings(rels)
	assert.Equal(t, []string{"guide.md", "notes/todo.txt"}, rels)

	content, err := ReadFile(filepath.Join(root, "guide.md"))
	require.NoError(t, err)
	assert.Equal(t, "# guide", content)
}

func TestWalker_OrderedAbsolutePaths(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{"b.md", "a/z.md", "a.md"} {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(rel), 0644))
	}

	found, err := NewWalker(nil, nil).Walk(root)
	require.NoError(t, err)
	require.Len(t, found, 3)

	var rels []string
	for _, f := range found {
		assert.True(t, filepath.IsAbs(f.Path))
		rel, _ := filepath.Rel(root, f.Path)
		rels = append(rels, filepath.ToSlash(rel))
	}
	assert.Equal(t, []string{"a/z.md", "a.md", "b.md"}, rels)
}

func TestWalker_MissingRoot(t *testing.T) {
	_, err := NewWalker(nil, nil).Walk(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
