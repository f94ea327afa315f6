package cache

import (
	"testing"

	"github.com/cardinalsearch/cardinal/namepool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pathLess builds a less-func over a fixed path table, standing in for
// arena.NodePath comparisons in isolation from a live FileNodes.
func pathLess(paths map[Handle]string) func(a, b Handle) bool {
	return func(a, b Handle) bool { return paths[a] < paths[b] }
}

func TestSortedSlabIndicesInsertKeepsOrder(t *testing.T) {
	paths := map[Handle]string{1: "a", 2: "b", 3: "c"}
	s := NewSortedSlabIndices(pathLess(paths))
	s.Insert(3)
	s.Insert(1)
	s.Insert(2)
	assert.Equal(t, []Handle{1, 2, 3}, s.Handles())
}

func TestSortedSlabIndicesInsertRejectsDuplicates(t *testing.T) {
	paths := map[Handle]string{1: "a"}
	s := NewSortedSlabIndices(pathLess(paths))
	s.Insert(1)
	s.Insert(1)
	assert.Equal(t, 1, s.Len())
}

func TestSortedSlabIndicesRemove(t *testing.T) {
	paths := map[Handle]string{1: "a", 2: "b"}
	s := NewSortedSlabIndices(pathLess(paths))
	s.Insert(1)
	s.Insert(2)
	s.Remove(1)
	assert.Equal(t, []Handle{2}, s.Handles())
	assert.True(t, s.Contains(2))
	assert.False(t, s.Contains(1))
}

func TestNameIndexAddAndRemoveErasesEmptyEntry(t *testing.T) {
	paths := map[Handle]string{10: "a/one", 11: "b/one"}
	idx := NewNameIndex(pathLess(paths))
	pool := namepool.New()
	nameHandle := pool.Push("one")

	idx.AddIndex(nameHandle, 10)
	idx.AddIndex(nameHandle, 11)
	require.NotNil(t, idx.Get(nameHandle))
	assert.Equal(t, 2, idx.Get(nameHandle).Len())

	idx.RemoveIndex(nameHandle, 10)
	assert.Equal(t, 1, idx.Get(nameHandle).Len())

	idx.RemoveIndex(nameHandle, 11)
	assert.Nil(t, idx.Get(nameHandle))
	assert.Equal(t, 0, idx.Len())
}

func TestNameIndexAddIndexOrderedPreservesCallerOrder(t *testing.T) {
	idx := NewNameIndex(func(a, b Handle) bool { return a < b })
	pool := namepool.New()
	nameHandle := pool.Push("bulk")

	idx.AddIndexOrdered(nameHandle, 5)
	idx.AddIndexOrdered(nameHandle, 2)
	assert.Equal(t, []Handle{5, 2}, idx.Get(nameHandle).Handles())
}
