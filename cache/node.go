package cache

import "github.com/cardinalsearch/cardinal/namepool"

// Handle identifies a node within a FileNodes arena. It is stable across
// insertions and deletions of other nodes (spec.md §3, "Node handle").
// Handle values are non-negative; NoParent is the sentinel optional form
// used to mean "no parent" (reserved for the root).
type Handle int

// NoParent is the sentinel "optional Handle" meaning "no parent", used by
// the root node. Never a valid live handle.
const NoParent Handle = -1

// Node is one entry in the arena: an interned name, an optional parent, an
// ordered, duplicate-free list of children, and packed metadata (spec.md
// §3). Grounded on original_source/search-cache/src/slab_node.rs's SlabNode
// (NameAndParent + ThinVec<SlabIndex> children + SlabNodeMetadataCompact),
// translated into a plain Go struct since Go has no zero-copy 'static str
// views to hand-roll — namepool.Pool already gives us that via Handle.
type Node struct {
	Name     namepool.Handle
	Parent   Handle // NoParent for the root
	Children []Handle
	Metadata Metadata
	// live is false once Remove has been called; a removed slot is never
	// reused while any NameIndex entry might still reference its handle
	// (spec.md §4.2).
	live bool
}

// AddChild appends child to n's children if not already present, per the
// "duplicates are rejected" invariant (spec.md §3).
func (n *Node) AddChild(child Handle) {
	for _, c := range n.Children {
		if c == child {
			return
		}
	}
	n.Children = append(n.Children, child)
}

// RemoveChild removes child from n's children, if present.
func (n *Node) RemoveChild(child Handle) {
	for i, c := range n.Children {
		if c == child {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return
		}
	}
}
