package cardinal

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/cardinalsearch/cardinal/cache"
	"github.com/cardinalsearch/cardinal/cancel"
	"github.com/cardinalsearch/cardinal/cardinalerrors"
	"github.com/cardinalsearch/cardinal/fsevent"
	"github.com/cardinalsearch/cardinal/logging"
	"github.com/cardinalsearch/cardinal/namepool"
	"github.com/cardinalsearch/cardinal/walk"
)

// MergeEvent applies one filesystem-change notification to the cache,
// following the classify-then-act decision tree from spec.md §4.8.
// Grounded on original_source/search-cache/src/lib.rs's merge_event and
// fs_visit.rs's subtree-rewalk diff. A failure part-way through a subtree
// rewalk is reported and the merge abandoned: mergeFolder/insertNewEntry
// only start editing the arena (diffing or inserting children) after their
// rewalk has succeeded, never interleaving arena edits with a walk that
// might still fail.
func (sc *SearchCache) MergeEvent(ctx context.Context, e fsevent.FsEvent) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	scanType := e.Flag.Scan()
	if scanType == fsevent.ScanNop {
		sc.lastEventID = e.ID
		return nil
	}

	if e.ShouldRescan(sc.root) {
		if err := sc.reload(ctx); err != nil {
			return err
		}
		sc.lastEventID = e.ID
		return nil
	}

	var err error
	switch scanType {
	case fsevent.ScanSingleNode:
		err = sc.mergeSingleNode(ctx, e.Path)
	case fsevent.ScanFolder:
		err = sc.mergeFolder(ctx, e.Path)
	}
	if err != nil {
		return err
	}
	sc.lastEventID = e.ID
	return nil
}

// reload discards the current arena/index/pool and rebuilds them from a
// fresh walk of root (spec.md §4.8 step 3). Must be called with sc.mu held
// for writing.
func (sc *SearchCache) reload(ctx context.Context) error {
	tree, data, ok := walk.Walk(ctx, sc.root, walk.Options{
		Ignore:          sc.opts.Ignore,
		CollectMetadata: true,
		FollowSymlinks:  sc.opts.FollowSymlinks,
	}, cancel.Noop())
	if !ok {
		return cardinalerrors.NewMergeError(sc.root, nil, false, "rescan of root produced no tree")
	}

	pool := namepool.New()
	arena := cache.NewFileNodes(pool)
	index := cache.NewNameIndex(less(arena))
	insertTree(arena, index, cache.NoParent, tree, false)
	arena.SetRoot(cache.Handle(0))

	sc.pool = pool
	sc.arena = arena
	sc.index = index
	sc.stats = Stats{NumFiles: data.NumFiles.Load(), NumDirs: data.NumDirs.Load()}
	logging.Logf(sc, "reloaded cache from %s after rescan event", sc.root)
	return nil
}

// mergeSingleNode applies spec.md §4.8 step 4: refresh an existing node's
// metadata, remove one that disappeared, or insert one that newly appeared.
func (sc *SearchCache) mergeSingleNode(ctx context.Context, path string) error {
	info, statErr := os.Lstat(path)
	h, found := sc.findHandle(path)

	switch {
	case found && statErr != nil:
		sc.removeNode(h)
		return nil
	case found && statErr == nil:
		n := sc.arena.GetMut(h)
		if n != nil {
			n.Metadata = metadataFromInfo(info, sc.opts.FollowSymlinks)
		}
		return nil
	case !found && statErr == nil:
		return sc.insertNewEntry(ctx, path)
	default:
		return nil
	}
}

// mergeFolder applies spec.md §4.8 step 5: rewalk the subtree rooted at
// path and diff it against the existing children of the matching node.
func (sc *SearchCache) mergeFolder(ctx context.Context, path string) error {
	handle, found := sc.findHandle(path)
	if !found {
		return sc.insertNewEntry(ctx, path)
	}

	tree, _, ok := walk.Walk(ctx, path, walk.Options{
		Ignore:          sc.opts.Ignore,
		CollectMetadata: true,
		FollowSymlinks:  sc.opts.FollowSymlinks,
	}, cancel.Noop())
	if !ok {
		return cardinalerrors.NewMergeError(path, nil, false, "rewalk of folder produced no tree")
	}

	sc.diffChildren(handle, tree)
	return nil
}

// diffChildren reconciles the live children of parent against tree's
// freshly-walked children: matching names get a metadata refresh (and are
// diffed recursively, so renames/updates nested deeper than one level also
// surface), new names are inserted, and names no longer present are
// removed.
func (sc *SearchCache) diffChildren(parent cache.Handle, tree *walk.Tree) {
	node := sc.arena.Get(parent)
	if node == nil {
		return
	}

	existing := make(map[string]cache.Handle, len(node.Children))
	for _, h := range append([]cache.Handle(nil), node.Children...) {
		if child := sc.arena.Get(h); child != nil {
			existing[sc.pool.Deref(child.Name)] = h
		}
	}

	seen := make(map[string]struct{}, len(tree.Children))
	for _, childTree := range tree.Children {
		if childTree == nil {
			continue
		}
		seen[childTree.Name] = struct{}{}
		if h, ok := existing[childTree.Name]; ok {
			if n := sc.arena.GetMut(h); n != nil {
				n.Metadata = metadataOf(childTree)
			}
			sc.diffChildren(h, childTree)
		} else {
			insertTree(sc.arena, sc.index, parent, childTree, true)
		}
	}

	for name, h := range existing {
		if _, ok := seen[name]; !ok {
			sc.removeNode(h)
		}
	}
}

// insertNewEntry walks path (a file or a whole new subtree) and inserts it
// under the node found at its parent directory.
func (sc *SearchCache) insertNewEntry(ctx context.Context, path string) error {
	parentHandle, ok := sc.findHandle(filepath.Dir(path))
	if !ok {
		return cardinalerrors.NewMergeError(path, nil, false, "parent of new entry not found in cache")
	}

	tree, _, ok := walk.Walk(ctx, path, walk.Options{
		Ignore:          sc.opts.Ignore,
		CollectMetadata: true,
		FollowSymlinks:  sc.opts.FollowSymlinks,
	}, cancel.Noop())
	if !ok {
		return cardinalerrors.NewMergeError(path, nil, false, "walk of new entry produced no tree")
	}

	insertTree(sc.arena, sc.index, parentHandle, tree, true)
	return nil
}

// removeNode unlinks h from the index and its parent's children, then frees
// its slot (spec.md §4.2's "a removed handle must never be reused while any
// NameIndex entry might still reference it" — the index entry is dropped
// first). Arena.Remove doesn't recurse (spec.md §4.2 leaves descendant
// removal to the merge layer), so this walks h's children post-order first:
// otherwise a removed directory's grandchildren are left live, still
// pointing at h via Parent once h's slot is reused by a later Insert.
func (sc *SearchCache) removeNode(h cache.Handle) {
	n := sc.arena.Get(h)
	if n == nil {
		return
	}
	for _, child := range append([]cache.Handle(nil), n.Children...) {
		sc.removeNode(child)
	}

	sc.index.RemoveIndex(n.Name, h)
	if p := sc.arena.GetMut(n.Parent); p != nil {
		p.RemoveChild(h)
	}
	sc.arena.Remove(h)
	sc.arena.ReleaseHandle(h)
}

// findHandle resolves path to its node handle by walking name-component
// links down from the arena root, since the arena only stores parent
// pointers (spec.md §4.2) and has no reverse path index.
func (sc *SearchCache) findHandle(path string) (cache.Handle, bool) {
	rel, err := filepath.Rel(sc.root, path)
	if err != nil {
		return 0, false
	}
	cur := sc.arena.Root()
	if rel == "." || rel == "" {
		return cur, cur != cache.NoParent
	}

	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		node := sc.arena.Get(cur)
		if node == nil {
			return 0, false
		}
		next, ok := sc.childNamed(node, part)
		if !ok {
			return 0, false
		}
		cur = next
	}
	return cur, true
}

func (sc *SearchCache) childNamed(node *cache.Node, name string) (cache.Handle, bool) {
	for _, h := range node.Children {
		if child := sc.arena.Get(h); child != nil && sc.pool.Deref(child.Name) == name {
			return h, true
		}
	}
	return 0, false
}

// metadataFromInfo builds packed metadata from a raw os.Lstat result, for
// the single-node refresh path (which has no walk.Tree, only an
// os.FileInfo).
func metadataFromInfo(info os.FileInfo, followSymlinks bool) cache.Metadata {
	isSymlink := info.Mode()&os.ModeSymlink != 0
	typ := cache.NodeFile
	switch {
	case isSymlink && !followSymlinks:
		typ = cache.NodeSymlink
	case info.IsDir():
		typ = cache.NodeDir
	}
	var size uint64
	if !info.IsDir() {
		size = uint64(info.Size())
	}
	var mtime uint32
	if mt := info.ModTime(); !mt.IsZero() {
		mtime = uint32(mt.Unix())
	}
	return cache.SomeMetadata(typ, size, 0, mtime)
}
