package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func texts(items []Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Text
	}
	return out
}

func TestReadItems_Files(t *testing.T) {
	root := writeTree(t, map[string]string{
		"b.txt":         "second",
		"a.txt":         "first",
		"empty.txt":     "  \n",
		"sub/c.txt":     "third",
		".hidden":       "secret",
		".git/config":   "ignored",
		"sub/.skip.txt": "ignored",
	})

	items, err := ReadItems([]string{root}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, texts(items))
	assert.Equal(t, filepath.Join(root, "a.txt"), items[0].Metadata["source"])
}

func TestReadItems_Lines(t *testing.T) {
	root := writeTree(t, map[string]string{
		"zoo.txt": "The lion is the king of the jungle\n\nThe lion is a large cat\nThe lion is a carnivore\n",
	})
	path := filepath.Join(root, "zoo.txt")

	items, err := ReadItems([]string{path}, true)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "The lion is a large cat", items[1].Text)
	assert.Equal(t, 3, items[1].Metadata["line"])
	assert.Equal(t, path, items[1].Metadata["source"])
}

func TestReadItems_MultiplePaths(t *testing.T) {
	a := writeTree(t, map[string]string{"one.txt": "one"})
	b := writeTree(t, map[string]string{"two.txt": "two"})

	items, err := ReadItems([]string{filepath.Join(b, "two.txt"), a}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "one"}, texts(items))
}

func TestReadItems_Missing(t *testing.T) {
	_, err := ReadItems([]string{filepath.Join(t.TempDir(), "missing")}, false)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
