package cardinal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalsearch/cardinal/cancel"
	"github.com/cardinalsearch/cardinal/config"
)

func writeTestTree(t *testing.T, root string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "main.go"), []byte("package main"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "lib.go"), []byte("package lib"), 0o644))
}

func TestWalkFSBuildsSearchableCache(t *testing.T) {
	root := t.TempDir()
	writeTestTree(t, root)

	sc, err := WalkFS(context.Background(), root, config.Default())
	require.NoError(t, err)
	assert.Equal(t, int64(3), sc.Stats().NumFiles)
	assert.Equal(t, int64(2), sc.Stats().NumDirs) // root + src

	result, err := sc.Search("main")
	require.NoError(t, err)
	require.NotNil(t, result.Nodes)
	found := false
	for _, n := range result.Nodes {
		if filepath.Base(n.Path) == "main.go" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestSearchWithOptionsReturnsNilNodesOnCancellation(t *testing.T) {
	root := t.TempDir()
	writeTestTree(t, root)
	sc, err := WalkFS(context.Background(), root, config.Default())
	require.NoError(t, err)

	token := cancel.New()
	cancel.New() // cancels token
	result, err := sc.SearchWithOptions("main", SearchOptions{}, token)
	require.NoError(t, err)
	assert.Nil(t, result.Nodes)
}

func TestQueryFilesRestrictsToFileType(t *testing.T) {
	root := t.TempDir()
	writeTestTree(t, root)
	sc, err := WalkFS(context.Background(), root, config.Default())
	require.NoError(t, err)

	files, err := sc.QueryFiles("folder:", cancel.Noop())
	require.NoError(t, err)
	assert.Empty(t, files)

	files, err = sc.QueryFiles("go", cancel.Noop())
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestWriteToFileAndLoadFromFileRoundTrip(t *testing.T) {
	root := t.TempDir()
	writeTestTree(t, root)
	sc, err := WalkFS(context.Background(), root, config.Default())
	require.NoError(t, err)

	checkpointPath := filepath.Join(t.TempDir(), "cache.sc")
	require.NoError(t, sc.WriteToFile(checkpointPath))

	loaded, err := LoadFromFile(context.Background(), checkpointPath, root, config.Default())
	require.NoError(t, err)

	result, err := loaded.Search("README")
	require.NoError(t, err)
	require.NotNil(t, result.Nodes)
	assert.Len(t, result.Nodes, 1)
}
