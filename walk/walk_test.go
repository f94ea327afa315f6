package walk

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cardinalsearch/cardinal/cancel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub", "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "top.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "leaf.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "nested", "deep.txt"), []byte("x"), 0o644))
	return root
}

func findChild(tree *Tree, name string) *Tree {
	for _, c := range tree.Children {
		if c != nil && c.Name == name {
			return c
		}
	}
	return nil
}

func TestWalkBuildsFullTree(t *testing.T) {
	root := buildTree(t)
	tree, data, ok := Walk(context.Background(), root, Options{CollectMetadata: true}, cancel.Noop())
	require.True(t, ok)
	require.NotNil(t, tree)

	sub := findChild(tree, "sub")
	require.NotNil(t, sub)
	require.NotNil(t, sub.Metadata)
	assert.True(t, sub.Metadata.IsDir)

	leaf := findChild(sub, "leaf.txt")
	require.NotNil(t, leaf)
	assert.EqualValues(t, 5, leaf.Metadata.Size)

	nested := findChild(sub, "nested")
	require.NotNil(t, nested)
	deep := findChild(nested, "deep.txt")
	require.NotNil(t, deep)

	assert.GreaterOrEqual(t, data.NumFiles.Load(), int64(3))
	assert.GreaterOrEqual(t, data.NumDirs.Load(), int64(2))
}

func TestWalkRespectsIgnoreList(t *testing.T) {
	root := buildTree(t)
	ignoredPath := filepath.Join(root, "sub")
	tree, _, ok := Walk(context.Background(), root, Options{CollectMetadata: true, Ignore: []string{ignoredPath}}, cancel.Noop())
	require.True(t, ok)
	assert.Nil(t, findChild(tree, "sub"))
}

func TestWalkCancellationReturnsFalse(t *testing.T) {
	root := buildTree(t)
	token := cancel.New()
	cancel.New() // cancels token
	_, _, ok := Walk(context.Background(), root, Options{}, token)
	assert.False(t, ok)
}

func TestWalkWithoutMetadataCollectionLeavesItNil(t *testing.T) {
	root := buildTree(t)
	tree, _, ok := Walk(context.Background(), root, Options{CollectMetadata: false}, cancel.Noop())
	require.True(t, ok)
	top := findChild(tree, "top.txt")
	require.NotNil(t, top)
	assert.Nil(t, top.Metadata)
}
