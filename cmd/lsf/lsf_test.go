package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestTree(t *testing.T, root string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "main.go"), []byte("package main"), 0o644))
}

func TestWalkCmdWritesCheckpoint(t *testing.T) {
	root := t.TempDir()
	writeTestTree(t, root)
	cache := filepath.Join(root, "lsf.cache")

	walkCachePath = cache
	walkIgnore = nil
	walkFollowSymlinks = false
	walkCompression = 6

	require.NoError(t, walkCmd.RunE(walkCmd, []string{root}))

	info, err := os.Stat(cache)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestQueryCmdFindsWalkedFile(t *testing.T) {
	root := t.TempDir()
	writeTestTree(t, root)
	cache := filepath.Join(root, "lsf.cache")

	walkCachePath = cache
	walkIgnore = nil
	walkFollowSymlinks = false
	walkCompression = 6
	require.NoError(t, walkCmd.RunE(walkCmd, []string{root}))

	queryCachePath = cache
	queryRootPath = root
	queryCI = false
	queryFilesOnly = true

	require.NoError(t, queryCmd.RunE(queryCmd, []string{"main.go"}))
}

func TestQueryCmdErrorsWithoutCheckpoint(t *testing.T) {
	root := t.TempDir()
	writeTestTree(t, root)

	queryCachePath = filepath.Join(root, "missing.cache")
	queryRootPath = root
	queryCI = false
	queryFilesOnly = false

	err := queryCmd.RunE(queryCmd, []string{"main.go"})
	assert.Error(t, err)
}
