package cache

import (
	"sort"

	"github.com/cardinalsearch/cardinal/namepool"
)

// SortedSlabIndices is an ordered, duplicate-free list of node Handles,
// kept sorted by each handle's full path (spec.md §4.3). Sorting by path
// rather than by raw handle value lets query evaluation merge-intersect
// and merge-union two index entries in O(n) without re-sorting. Grounded
// on original_source/search-cache/src/name_index.rs's SortedSlabIndices
// (a Vec<SlabIndex> kept sorted via binary_search + insert).
type SortedSlabIndices struct {
	handles []Handle
	less    func(a, b Handle) bool
}

// NewSortedSlabIndices creates an empty list ordered by less(a, b), which
// should compare the full paths of a and b (e.g. via arena.NodePath).
func NewSortedSlabIndices(less func(a, b Handle) bool) *SortedSlabIndices {
	return &SortedSlabIndices{less: less}
}

// Len reports the number of handles in the list.
func (s *SortedSlabIndices) Len() int { return len(s.handles) }

// IsEmpty reports whether the list has no handles.
func (s *SortedSlabIndices) IsEmpty() bool { return len(s.handles) == 0 }

// Handles returns the underlying sorted slice. Callers must not mutate it.
func (s *SortedSlabIndices) Handles() []Handle { return s.handles }

// Insert inserts h in sorted position, unless it is already present.
func (s *SortedSlabIndices) Insert(h Handle) {
	i := sort.Search(len(s.handles), func(i int) bool { return !s.less(s.handles[i], h) })
	if i < len(s.handles) && s.handles[i] == h {
		return
	}
	s.handles = append(s.handles, 0)
	copy(s.handles[i+1:], s.handles[i:])
	s.handles[i] = h
}

// InsertOrdered appends h without a sortedness check, for bulk-load paths
// (e.g. a full rescan) that already produce handles in path order. Callers
// that violate the ordering contract corrupt later merge operations.
func (s *SortedSlabIndices) InsertOrdered(h Handle) {
	s.handles = append(s.handles, h)
}

// Remove removes h from the list, if present.
func (s *SortedSlabIndices) Remove(h Handle) {
	i := sort.Search(len(s.handles), func(i int) bool { return !s.less(s.handles[i], h) })
	if i < len(s.handles) && s.handles[i] == h {
		s.handles = append(s.handles[:i], s.handles[i+1:]...)
	}
}

// Contains reports whether h is present in the list.
func (s *SortedSlabIndices) Contains(h Handle) bool {
	i := sort.Search(len(s.handles), func(i int) bool { return !s.less(s.handles[i], h) })
	return i < len(s.handles) && s.handles[i] == h
}

// NameIndex maps an interned name handle to the sorted list of node handles
// that carry that name, the inverted index used to resolve word/phrase
// terms during query evaluation (spec.md §4.3). Grounded on
// original_source/search-cache/src/name_index.rs's NameIndex
// (BTreeMap<NameHandle, SortedSlabIndices>); Go has no ordered map in the
// standard library, so we keep a plain map with no key ordering (AllIndices
// returns that map as is), which suits the access pattern the Rust BTreeMap
// actually sees (range scans are rare; point lookups by name handle
// dominate).
type NameIndex struct {
	byName map[namepool.Handle]*SortedSlabIndices
	less   func(a, b Handle) bool
}

// NewNameIndex creates an empty NameIndex. less should compare two node
// handles by full path, exactly as required by SortedSlabIndices.
func NewNameIndex(less func(a, b Handle) bool) *NameIndex {
	return &NameIndex{byName: make(map[namepool.Handle]*SortedSlabIndices), less: less}
}

// Get returns the sorted indices for name, or nil if name has no entries.
func (idx *NameIndex) Get(name namepool.Handle) *SortedSlabIndices {
	return idx.byName[name]
}

// AddIndex records that node h carries interned name, inserting in sorted
// position.
func (idx *NameIndex) AddIndex(name namepool.Handle, h Handle) {
	entry, ok := idx.byName[name]
	if !ok {
		entry = NewSortedSlabIndices(idx.less)
		idx.byName[name] = entry
	}
	entry.Insert(h)
}

// AddIndexOrdered is the bulk-load counterpart of AddIndex, for callers
// (e.g. a fresh directory walk) that add handles to a name's entry in path
// order already.
func (idx *NameIndex) AddIndexOrdered(name namepool.Handle, h Handle) {
	entry, ok := idx.byName[name]
	if !ok {
		entry = NewSortedSlabIndices(idx.less)
		idx.byName[name] = entry
	}
	entry.InsertOrdered(h)
}

// RemoveIndex removes h from name's entry, erasing the entry entirely once
// it becomes empty so Get(name) reliably returns nil for names with no
// remaining nodes.
func (idx *NameIndex) RemoveIndex(name namepool.Handle, h Handle) {
	entry, ok := idx.byName[name]
	if !ok {
		return
	}
	entry.Remove(h)
	if entry.IsEmpty() {
		delete(idx.byName, name)
	}
}

// Len reports the number of distinct interned names with at least one
// entry.
func (idx *NameIndex) Len() int { return len(idx.byName) }

// AllIndices returns every (name, indices) pair in the index. Used by
// persistence to serialize the full inverted index.
func (idx *NameIndex) AllIndices() map[namepool.Handle]*SortedSlabIndices {
	return idx.byName
}
