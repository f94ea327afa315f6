package cache

import (
	"fmt"
	"strings"

	"github.com/cardinalsearch/cardinal/namepool"
)

// maxNameBytes is the name-length ceiling from spec.md §3: "File names are
// bounded at ≤ 256 bytes; implementations must reject longer names with an
// error rather than truncate" — matching
// original_source/search-cache/src/slab_node.rs's NameAndParent::new, which
// panics past 256 bytes; we return an error instead since the Go arena is
// not allowed to crash the process on attacker-controlled filenames.
const maxNameBytes = 256

// ErrNameTooLong is returned by Insert when name exceeds maxNameBytes.
type ErrNameTooLong struct{ Name string }

func (e *ErrNameTooLong) Error() string {
	return fmt.Sprintf("name %q exceeds %d bytes", e.Name, maxNameBytes)
}

// FileNodes is the dense, index-stable arena of filesystem nodes (spec.md
// §4.2, the "SlabArena" / cardinal's cache.FileNodes). Deletion leaves the
// slot vacant rather than compacting, so handles remain stable. It is not
// internally synchronized (spec.md §5): callers serialize mutation
// themselves (single-writer event-merge loop) while readers may share a
// snapshot freely.
type FileNodes struct {
	pool  *namepool.Pool
	nodes []Node // index i holds the node for Handle(i); nodes[h].live == false for vacant slots
	root  Handle
	free  []Handle // vacant slots that are safe to reuse (never referenced by a NameIndex)
}

// NewFileNodes creates an empty arena backed by pool.
func NewFileNodes(pool *namepool.Pool) *FileNodes {
	return &FileNodes{pool: pool, root: NoParent}
}

// Pool returns the arena's backing NamePool.
func (a *FileNodes) Pool() *namepool.Pool { return a.pool }

// Root returns the arena's distinguished root handle, or NoParent if the
// arena is empty.
func (a *FileNodes) Root() Handle { return a.root }

// SetRoot records h as the arena's root handle.
func (a *FileNodes) SetRoot(h Handle) { a.root = h }

// Insert allocates a slot for a new node, interning name, and — if parent is
// not NoParent — wires the child link into the parent. Returns
// ErrNameTooLong if name exceeds the 256-byte bound.
func (a *FileNodes) Insert(parent Handle, name string, metadata Metadata) (Handle, error) {
	if len(name) > maxNameBytes {
		return 0, &ErrNameTooLong{Name: name}
	}
	nameHandle := a.pool.Push(name)
	node := Node{
		Name:     nameHandle,
		Parent:   parent,
		Metadata: metadata,
		live:     true,
	}

	var h Handle
	if n := len(a.free); n > 0 {
		h = a.free[n-1]
		a.free = a.free[:n-1]
		a.nodes[h] = node
	} else {
		h = Handle(len(a.nodes))
		a.nodes = append(a.nodes, node)
	}

	if parent != NoParent {
		if p := a.GetMut(parent); p != nil {
			p.AddChild(h)
		}
	}
	return h, nil
}

// Get returns a read-only view of the node at h, or nil if h is vacant or
// out of range.
func (a *FileNodes) Get(h Handle) *Node {
	if h < 0 || int(h) >= len(a.nodes) || !a.nodes[h].live {
		return nil
	}
	return &a.nodes[h]
}

// GetMut returns a mutable view of the node at h, or nil if h is vacant or
// out of range.
func (a *FileNodes) GetMut(h Handle) *Node {
	if h < 0 || int(h) >= len(a.nodes) || !a.nodes[h].live {
		return nil
	}
	return &a.nodes[h]
}

// Remove removes the node at h. It does not recurse into descendants — the
// merge layer decides that policy (spec.md §4.2) — and it does not unlink h
// from its parent's children; callers that need that do it via
// RemoveChild explicitly (EventMerge always does both, see
// cardinal.mergeSingleNode).
//
// The slot is only returned to the free list by ReleaseHandle, once the
// caller has confirmed no NameIndex entry still references h (spec.md
// §4.2's "a removed handle must never be reused while any NameIndex entry
// might still reference it").
func (a *FileNodes) Remove(h Handle) {
	if a.Get(h) == nil {
		return
	}
	a.nodes[h] = Node{}
}

// ReleaseHandle returns h's slot to the free list for reuse. Call only
// after removing every NameIndex reference to h.
func (a *FileNodes) ReleaseHandle(h Handle) {
	a.free = append(a.free, h)
}

// NodePath reconstructs the full slash-separated path to h by walking
// parent links to the root (spec.md §4.2).
func (a *FileNodes) NodePath(h Handle) (string, bool) {
	var parts []string
	cur := h
	for cur != NoParent {
		n := a.Get(cur)
		if n == nil {
			return "", false
		}
		parts = append(parts, a.pool.Deref(n.Name))
		cur = n.Parent
	}
	// parts was built leaf-to-root; reverse it.
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/"), true
}

// Len reports the number of live nodes in the arena.
func (a *FileNodes) Len() int {
	n := 0
	for i := range a.nodes {
		if a.nodes[i].live {
			n++
		}
	}
	return n
}

// AllHandles returns every live handle in the arena, in slot order. Used by
// Not's set-complement and by full rescans.
func (a *FileNodes) AllHandles() []Handle {
	out := make([]Handle, 0, len(a.nodes))
	for i := range a.nodes {
		if a.nodes[i].live {
			out = append(out, Handle(i))
		}
	}
	return out
}

// SlabLen reports the total number of slots, live and vacant, for
// persistence's raw slab dump (spec.md §6's on-disk `slab: dense array of
// SlabNode`, which — like the Rust prototype's slab::Slab — must preserve
// vacant slots so handle values decode back to the same integers).
func (a *FileNodes) SlabLen() int { return len(a.nodes) }

// SlabNodeAt returns the raw node at slot i regardless of liveness, and
// whether that slot is live, for persistence's encoder.
func (a *FileNodes) SlabNodeAt(i int) (Node, bool) {
	return a.nodes[i], a.nodes[i].live
}

// NewFileNodesFromSlab rebuilds an arena directly from a raw slot slice
// (persistence's decoder): nodes[i] becomes the node at Handle(i) and is
// marked live iff live[i] is true; vacant slots are recovered onto the
// free list so handle reuse resumes exactly where the checkpoint left off.
// live must be the same length as nodes.
func NewFileNodesFromSlab(pool *namepool.Pool, nodes []Node, live []bool, root Handle) *FileNodes {
	a := &FileNodes{pool: pool, nodes: nodes, root: root}
	for i := range a.nodes {
		a.nodes[i].live = live[i]
		if !live[i] {
			a.free = append(a.free, Handle(i))
		}
	}
	return a
}
