package cardinal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalsearch/cardinal/config"
	"github.com/cardinalsearch/cardinal/fsevent"
)

func TestMergeEventNopOnlyAdvancesLastEventID(t *testing.T) {
	root := t.TempDir()
	writeTestTree(t, root)
	sc, err := WalkFS(context.Background(), root, config.Default())
	require.NoError(t, err)

	err = sc.MergeEvent(context.Background(), fsevent.FsEvent{Path: root, Flag: fsevent.HistoryDone, ID: 42})
	require.NoError(t, err)
	assert.Equal(t, uint64(42), sc.lastEventID)
}

func TestMergeEventSingleNodeInsertsNewFile(t *testing.T) {
	root := t.TempDir()
	writeTestTree(t, root)
	sc, err := WalkFS(context.Background(), root, config.Default())
	require.NoError(t, err)

	newFile := filepath.Join(root, "src", "new.go")
	require.NoError(t, os.WriteFile(newFile, []byte("package new"), 0o644))

	err = sc.MergeEvent(context.Background(), fsevent.FsEvent{
		Path: newFile,
		Flag: fsevent.ItemCreated | fsevent.ItemIsFile,
		ID:   1,
	})
	require.NoError(t, err)

	result, err := sc.Search("new.go")
	require.NoError(t, err)
	require.NotNil(t, result.Nodes)
	assert.Len(t, result.Nodes, 1)
}

func TestMergeEventSingleNodeRemovesDeletedFile(t *testing.T) {
	root := t.TempDir()
	writeTestTree(t, root)
	sc, err := WalkFS(context.Background(), root, config.Default())
	require.NoError(t, err)

	target := filepath.Join(root, "README.md")
	require.NoError(t, os.Remove(target))

	err = sc.MergeEvent(context.Background(), fsevent.FsEvent{
		Path: target,
		Flag: fsevent.ItemRemoved | fsevent.ItemIsFile,
		ID:   2,
	})
	require.NoError(t, err)

	result, err := sc.Search("README")
	require.NoError(t, err)
	assert.Empty(t, result.Nodes)
}

func TestMergeEventSingleNodeRefreshesMetadata(t *testing.T) {
	root := t.TempDir()
	writeTestTree(t, root)
	sc, err := WalkFS(context.Background(), root, config.Default())
	require.NoError(t, err)

	target := filepath.Join(root, "README.md")
	require.NoError(t, os.WriteFile(target, []byte("hello, much longer content now"), 0o644))
	require.NoError(t, os.Chtimes(target, time.Now(), time.Now()))

	err = sc.MergeEvent(context.Background(), fsevent.FsEvent{
		Path: target,
		Flag: fsevent.ItemModified | fsevent.ItemIsFile,
		ID:   3,
	})
	require.NoError(t, err)

	h, found := sc.findHandle(target)
	require.True(t, found)
	n := sc.arena.Get(h)
	require.NotNil(t, n)
	assert.Equal(t, uint64(len("hello, much longer content now")), n.Metadata.Size())
}

func TestMergeEventFolderDiffsChildren(t *testing.T) {
	root := t.TempDir()
	writeTestTree(t, root)
	sc, err := WalkFS(context.Background(), root, config.Default())
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "src", "lib.go")))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "extra.go"), []byte("package extra"), 0o644))

	err = sc.MergeEvent(context.Background(), fsevent.FsEvent{
		Path: filepath.Join(root, "src"),
		Flag: fsevent.ItemModified | fsevent.ItemIsDir,
		ID:   4,
	})
	require.NoError(t, err)

	result, err := sc.Search("lib.go")
	require.NoError(t, err)
	assert.Empty(t, result.Nodes)

	result, err = sc.Search("extra.go")
	require.NoError(t, err)
	assert.Len(t, result.Nodes, 1)
}

func TestMergeEventRootChangeTriggersFullReload(t *testing.T) {
	root := t.TempDir()
	writeTestTree(t, root)
	sc, err := WalkFS(context.Background(), root, config.Default())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "another.txt"), []byte("x"), 0o644))

	err = sc.MergeEvent(context.Background(), fsevent.FsEvent{
		Path: root,
		Flag: fsevent.RootChanged,
		ID:   5,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), sc.lastEventID)

	result, err := sc.Search("another")
	require.NoError(t, err)
	assert.Len(t, result.Nodes, 1)
}
