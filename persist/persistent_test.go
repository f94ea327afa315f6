package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalsearch/cardinal/cache"
	"github.com/cardinalsearch/cardinal/cardinalerrors"
	"github.com/cardinalsearch/cardinal/namepool"
)

// buildTestArena assembles a small arena/index with one vacant slot, so a
// round trip must preserve handle numbering exactly (spec.md §4.9's "handle
// values decode back to the same integers").
func buildTestArena(t *testing.T) (*cache.FileNodes, *cache.NameIndex) {
	t.Helper()
	pool := namepool.New()
	arena := cache.NewFileNodes(pool)

	less := func(a, b cache.Handle) bool {
		pa, _ := arena.NodePath(a)
		pb, _ := arena.NodePath(b)
		return pa < pb
	}
	index := cache.NewNameIndex(less)

	insert := func(parent cache.Handle, name string) cache.Handle {
		h, err := arena.Insert(parent, name, cache.SomeMetadata(cache.NodeFile, 42, 1000, 2000))
		require.NoError(t, err)
		n := arena.Get(h)
		index.AddIndex(n.Name, h)
		return h
	}

	root, err := arena.Insert(cache.NoParent, "root", cache.SomeMetadata(cache.NodeDir, 0, 1000, 2000))
	require.NoError(t, err)
	arena.SetRoot(root)
	index.AddIndex(arena.Get(root).Name, root)

	doomed := insert(root, "deleted.tmp")
	insert(root, "keep.txt")

	arena.Remove(doomed)
	index.RemoveIndex(arena.Pool().Push("deleted.tmp"), doomed)
	arena.ReleaseHandle(doomed)

	return arena, index
}

func lessFor(arena *cache.FileNodes) func(a, b cache.Handle) bool {
	return func(a, b cache.Handle) bool {
		pa, _ := arena.NodePath(a)
		pb, _ := arena.NodePath(b)
		return pa < pb
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	arena, index := buildTestArena(t)
	storage := FromArena(arena, index, "/home/user/root", 7, []byte{1, 2, 3})

	path := filepath.Join(t.TempDir(), "checkpoint.sc")
	require.NoError(t, Write(path, storage, zstd.SpeedDefault))

	loaded, err := Read(path)
	require.NoError(t, err)

	assert.Equal(t, Version, loaded.Version)
	assert.Equal(t, uint64(7), loaded.LastEventID)
	assert.Equal(t, "/home/user/root", loaded.RootPath)
	assert.Equal(t, storage.SlabRoot, loaded.SlabRoot)
	assert.Equal(t, []byte{1, 2, 3}, loaded.MetadataCache)
	require.Len(t, loaded.Slab, len(storage.Slab))

	for i, rec := range storage.Slab {
		assert.Equal(t, rec.Live, loaded.Slab[i].Live, "slot %d liveness", i)
		if rec.Live {
			assert.Equal(t, rec.Name, loaded.Slab[i].Name, "slot %d name", i)
		}
	}
}

func TestToArenaPreservesHandleNumbering(t *testing.T) {
	arena, index := buildTestArena(t)
	storage := FromArena(arena, index, "/r", 0, nil)

	rebuilt, rebuiltIndex := storage.ToArena(lessFor)

	assert.Equal(t, arena.SlabLen(), rebuilt.SlabLen())
	for i := 0; i < arena.SlabLen(); i++ {
		_, live := arena.SlabNodeAt(i)
		_, rebuiltLive := rebuilt.SlabNodeAt(i)
		assert.Equal(t, live, rebuiltLive, "slot %d liveness mismatch", i)
	}

	keepHandle := cache.Handle(-1)
	for i := 0; i < arena.SlabLen(); i++ {
		n, live := arena.SlabNodeAt(i)
		if live && arena.Pool().Deref(n.Name) == "keep.txt" {
			keepHandle = cache.Handle(i)
		}
	}
	require.NotEqual(t, cache.Handle(-1), keepHandle)

	path, ok := rebuilt.NodePath(keepHandle)
	require.True(t, ok)
	assert.Equal(t, "root/keep.txt", path)

	nameHandle := rebuilt.Pool().Push("keep.txt")
	entry := rebuiltIndex.Get(nameHandle)
	require.NotNil(t, entry)
	assert.True(t, entry.Contains(keepHandle))
}

func TestReadRejectsVersionMismatch(t *testing.T) {
	arena, index := buildTestArena(t)
	storage := FromArena(arena, index, "/r", 0, nil)
	storage.Version = Version + 1

	path := filepath.Join(t.TempDir(), "checkpoint.sc")
	require.NoError(t, Write(path, storage, zstd.SpeedDefault))

	_, err := Read(path)
	require.Error(t, err)
	var persistErr *cardinalerrors.PersistenceError
	require.ErrorAs(t, err, &persistErr)
	assert.True(t, persistErr.VersionMismatch)
}

func TestWriteLeavesNoTempFileBehind(t *testing.T) {
	storage := &PersistentStorage{Version: Version, NameIndex: map[string][]cache.Handle{}}
	path := filepath.Join(t.TempDir(), "checkpoint.sc")

	require.NoError(t, Write(path, storage, zstd.SpeedDefault))
	_, statErr := os.Stat(path + tmpSuffix)
	assert.True(t, os.IsNotExist(statErr))
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "does-not-exist.sc"))
	require.Error(t, err)
	var persistErr *cardinalerrors.PersistenceError
	require.ErrorAs(t, err, &persistErr)
	assert.False(t, persistErr.VersionMismatch)
}
