// Package cardinal implements the SearchCache façade from spec.md §4.10: a
// bulk-built, checkpointable, incrementally-updated in-memory index over a
// filesystem subtree, queryable with cardinal's query language. It wires
// together namepool, cache, walk, fsevent, query and persist into the
// public surface described by original_source/search-cache/src/lib.rs and
// cardinal-sdk/src/main.rs, following the teacher's top-level fs.Fs
// constructor style (backend/local/local.go's NewFs building a concrete
// type from Options, then handing back a narrow interface-shaped handle).
package cardinal

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/cardinalsearch/cardinal/cache"
	"github.com/cardinalsearch/cardinal/cancel"
	"github.com/cardinalsearch/cardinal/cardinalerrors"
	"github.com/cardinalsearch/cardinal/config"
	"github.com/cardinalsearch/cardinal/logging"
	"github.com/cardinalsearch/cardinal/namepool"
	"github.com/cardinalsearch/cardinal/persist"
	"github.com/cardinalsearch/cardinal/query"
	"github.com/cardinalsearch/cardinal/walk"
)

// SearchCache binds one arena/name-index snapshot to the root path it was
// built from, and serializes every mutation through its own mutex (spec.md
// §5's "single-writer for all mutations... readers do not block the
// writer" — approximated here with a coarse RWMutex, the simplest of the
// two disciplines spec.md §5 permits, since cardinal has no separate
// reader-registration mechanism to make lock-free snapshots worthwhile).
type SearchCache struct {
	mu sync.RWMutex

	sessionID uuid.UUID
	root      string
	opts      config.Options

	pool        *namepool.Pool
	arena       *cache.FileNodes
	index       *cache.NameIndex
	lastEventID uint64

	stats Stats
}

// Stats mirrors the prototype's WalkData counters, surfaced for callers
// (notably lsf's CLI summary line) that want a quick sense of cache size
// without counting handles themselves.
type Stats struct {
	NumFiles int64
	NumDirs  int64
}

// SearchOptions extends spec.md §4.10's SearchOptions.
type SearchOptions struct {
	CaseInsensitive bool
}

// ResultSet is the outcome of a search: Nodes is nil iff the search
// observed cancellation (spec.md §4.10's "ResultSet.nodes is None iff
// cancelled").
type ResultSet struct {
	Nodes []SearchResultNode
}

// SearchResultNode is one matching entry, resolved to its full path and
// type so callers don't need to re-walk the arena themselves.
type SearchResultNode struct {
	Handle cache.Handle
	Path   string
	Type   cache.NodeFileType
	Size   uint64
}

func less(arena *cache.FileNodes) func(a, b cache.Handle) bool {
	return func(a, b cache.Handle) bool {
		pa, _ := arena.NodePath(a)
		pb, _ := arena.NodePath(b)
		return pa < pb
	}
}

// WalkFS performs a bulk walk of root and returns a freshly built
// SearchCache (spec.md §4.10's walk_fs).
func WalkFS(ctx context.Context, root string, opts config.Options) (*SearchCache, error) {
	tree, data, ok := walk.Walk(ctx, root, walk.Options{
		Ignore:          opts.Ignore,
		CollectMetadata: true,
		FollowSymlinks:  opts.FollowSymlinks,
	}, cancel.Noop())
	if !ok {
		return nil, cardinalerrors.NewMergeError(root, nil, false, "walk of root produced no tree")
	}

	pool := namepool.New()
	arena := cache.NewFileNodes(pool)
	index := cache.NewNameIndex(less(arena))
	insertTree(arena, index, cache.NoParent, tree, false)
	arena.SetRoot(cache.Handle(0))

	sc := &SearchCache{
		sessionID: uuid.New(),
		root:      root,
		opts:      opts,
		pool:      pool,
		arena:     arena,
		index:     index,
		stats: Stats{
			NumFiles: data.NumFiles.Load(),
			NumDirs:  data.NumDirs.Load(),
		},
	}
	logging.Logf(sc, "walked %s: %d files, %d dirs", root, sc.stats.NumFiles, sc.stats.NumDirs)
	return sc, nil
}

// insertTree recursively inserts t (and its children) under parent,
// matching cache.Insert's signature. The root of the very first call
// becomes handle 0, which WalkFS then records as the arena root.
//
// sorted selects which NameIndex insertion path to use: false is the
// unchecked append (spec.md §4.3's bulk-load fast path, valid only while
// insertion order already equals path order, e.g. a fresh top-to-bottom
// walk); true uses the sorted binary-search insert, required whenever a
// node can land anywhere in an existing index (any event-driven merge
// insert), since an out-of-order append would break the "each
// SortedSlabIndices is strictly sorted by full path" invariant.
func insertTree(arena *cache.FileNodes, index *cache.NameIndex, parent cache.Handle, t *walk.Tree, sorted bool) cache.Handle {
	h, err := arena.Insert(parent, t.Name, metadataOf(t))
	if err != nil {
		logging.Errorf(t.Name, "name exceeds arena limit, skipping entry: %s", err)
		return cache.NoParent
	}
	n := arena.Get(h)
	if sorted {
		index.AddIndex(n.Name, h)
	} else {
		index.AddIndexOrdered(n.Name, h)
	}
	for _, child := range t.Children {
		if child != nil {
			insertTree(arena, index, h, child, sorted)
		}
	}
	return h
}

func metadataOf(t *walk.Tree) cache.Metadata {
	if t.Metadata == nil {
		return cache.NoneMetadata()
	}
	typ := cache.NodeFile
	switch {
	case t.Metadata.IsSymlink:
		typ = cache.NodeSymlink
	case t.Metadata.IsDir:
		typ = cache.NodeDir
	}
	return cache.SomeMetadata(typ, t.Metadata.Size, t.Metadata.Ctime, t.Metadata.Mtime)
}

// LoadFromFile decodes a checkpoint written by WriteToFile (spec.md §4.10's
// load_from_file). A version mismatch triggers a fresh walk of root rather
// than surfacing an error, per spec.md §4.9.
func LoadFromFile(ctx context.Context, path string, root string, opts config.Options) (*SearchCache, error) {
	storage, err := persist.Read(path)
	if err != nil {
		var persistErr *cardinalerrors.PersistenceError
		if errors.As(err, &persistErr) && persistErr.VersionMismatch {
			logging.Logf(path, "checkpoint version mismatch, triggering fresh walk of %s", root)
			return WalkFS(ctx, root, opts)
		}
		return nil, err
	}

	arena, index := storage.ToArena(less)
	sc := &SearchCache{
		sessionID:   uuid.New(),
		root:        storage.RootPath,
		opts:        opts,
		pool:        arena.Pool(),
		arena:       arena,
		index:       index,
		lastEventID: storage.LastEventID,
	}
	logging.Logf(sc, "loaded checkpoint from %s (%d nodes)", path, arena.Len())
	return sc, nil
}

// WriteToFile snapshots the current arena/index into a checkpoint at path
// (spec.md §4.10's write_to_file).
func (sc *SearchCache) WriteToFile(path string) error {
	sc.mu.RLock()
	storage := persist.FromArena(sc.arena, sc.index, sc.root, sc.lastEventID, nil)
	sc.mu.RUnlock()

	level := zstdLevel(sc.opts.CompressionLevel)
	if err := persist.Write(path, storage, level); err != nil {
		return err
	}
	logging.Logf(sc, "wrote checkpoint to %s", path)
	return nil
}

// Checkpoint is an alias for WriteToFile, named to match the teacher's
// vfs cache's Checkpoint-style terminology for "persist current state".
func (sc *SearchCache) Checkpoint(path string) error { return sc.WriteToFile(path) }

// Root returns the filesystem path this cache indexes.
func (sc *SearchCache) Root() string { return sc.root }

// SessionID returns the façade instance's logging-correlation identifier.
func (sc *SearchCache) SessionID() uuid.UUID { return sc.sessionID }

// Stats returns a snapshot of the walk/merge counters.
func (sc *SearchCache) Stats() Stats {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.stats
}

// String names this SearchCache for logging, following the teacher's
// fs.Logf(f, ...)-with-a-subject convention.
func (sc *SearchCache) String() string { return "cardinal.SearchCache(" + sc.root + ")" }

// Search evaluates q against the current snapshot with default options
// (spec.md §4.10's search).
func (sc *SearchCache) Search(q string) (ResultSet, error) {
	return sc.SearchWithOptions(q, SearchOptions{CaseInsensitive: sc.opts.CaseInsensitive}, cancel.Noop())
}

// SearchWithOptions evaluates q with explicit options and cancellation
// token (spec.md §4.10's search_with_options). A cancelled evaluation
// yields a zero-value ResultSet with Nodes == nil and a nil error.
func (sc *SearchCache) SearchWithOptions(q string, opts SearchOptions, token cancel.Token) (ResultSet, error) {
	expr, err := query.Parse(q)
	if err != nil {
		return ResultSet{}, err
	}
	expr = query.Optimize(expr)

	sc.mu.RLock()
	ctx := query.NewEvalContext(sc.arena, sc.index, query.EvalOptions{CaseInsensitive: opts.CaseInsensitive})
	handles, ok, err := ctx.Evaluate(expr, token)
	result := sc.resolve(handles)
	sc.mu.RUnlock()

	if err != nil {
		return ResultSet{}, err
	}
	if !ok {
		return ResultSet{Nodes: nil}, nil
	}
	return ResultSet{Nodes: result}, nil
}

// QueryFiles restricts a search to file-typed nodes (spec.md §4.10's
// query_files), returning nil iff cancelled.
func (sc *SearchCache) QueryFiles(q string, token cancel.Token) ([]SearchResultNode, error) {
	result, err := sc.SearchWithOptions(q, SearchOptions{CaseInsensitive: sc.opts.CaseInsensitive}, token)
	if err != nil {
		return nil, err
	}
	if result.Nodes == nil {
		return nil, nil
	}
	files := make([]SearchResultNode, 0, len(result.Nodes))
	for _, n := range result.Nodes {
		if n.Type == cache.NodeFile {
			files = append(files, n)
		}
	}
	return files, nil
}

// zstdLevel mirrors the teacher's direct cast from its own CompressionLevel
// config field (backend/compress/zstd_handler.go:
// zstd.EncoderLevel(f.opt.CompressionLevel)), clamped to zstd's valid range
// so a misconfigured option never panics the encoder.
func zstdLevel(level int) zstd.EncoderLevel {
	if level < int(zstd.SpeedFastest) {
		return zstd.SpeedFastest
	}
	if level > int(zstd.SpeedBestCompression) {
		return zstd.SpeedBestCompression
	}
	return zstd.EncoderLevel(level)
}

// resolve must be called with sc.mu held (read or write).
func (sc *SearchCache) resolve(handles []cache.Handle) []SearchResultNode {
	out := make([]SearchResultNode, 0, len(handles))
	for _, h := range handles {
		n := sc.arena.Get(h)
		if n == nil {
			continue
		}
		path, _ := sc.arena.NodePath(h)
		out = append(out, SearchResultNode{
			Handle: h,
			Path:   path,
			Type:   n.Metadata.Type(),
			Size:   n.Metadata.Size(),
		})
	}
	return out
}
