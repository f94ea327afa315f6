// Package walk implements the parallel directory walker consumed by the
// cache layer (spec.md §5 "Walker domain", §6 "Walker interface").
// Grounded on original_source/cardinal-sdk/src/fs_visit.rs (the
// walk_it/walk recursive tree builder, its WalkData file/dir counters, and
// its Interrupted-retry policy) and on rclone's
// backend/local/parallel_stat.go (fan-out over directory entries) and
// backend/local/local.go's cleanRemote (NFC normalization of entry names).
// The Rust prototype fans out with rayon's ParallelBridge; Go has no direct
// analog, so recursion fans out with golang.org/x/sync/errgroup instead,
// which is the idiom the broader example pack (and rclone itself, in other
// packages) uses for bounded parallel recursion.
package walk

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/cardinalsearch/cardinal/cancel"
	"github.com/cardinalsearch/cardinal/logging"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"
)

// NodeMetadata mirrors spec.md §6's walker Tree.metadata shape: { type,
// size, ctime?, mtime? }. 0 for Ctime/Mtime means absent, matching
// cache.Metadata's convention (cache.Metadata is not reused directly here
// so that walk has no compile-time dependency on cache's packed on-disk
// representation — the arena builder converts one to the other).
type NodeMetadata struct {
	IsDir    bool
	IsSymlink bool
	Size     uint64
	Ctime    uint32
	Mtime    uint32
}

// Tree is one node of the walked filesystem tree (spec.md §6).
type Tree struct {
	Name     string
	Metadata *NodeMetadata // nil if the entry's metadata could not be read
	Children []*Tree // an ignored child leaves a nil entry in its slot
}

// Options configures a walk (spec.md §6's walk() parameters).
type Options struct {
	Ignore          []string // paths (absolute, as passed to Walk) to skip entirely
	CollectMetadata bool
	FollowSymlinks  bool
}

// Data accumulates counters across one walk, read concurrently by the many
// fan-out goroutines (spec.md's supplemented walk statistics, grounded on
// fs_visit.rs's WalkData).
type Data struct {
	NumFiles atomic.Int64
	NumDirs  atomic.Int64
}

const maxFanoutDepth = 32

// Walk walks the tree rooted at root, returning nil and false if token is
// cancelled before completion (spec.md §6: "None indicates cancellation").
// Metadata is only populated when opts.CollectMetadata is set.
func Walk(ctx context.Context, root string, opts Options, token cancel.Token) (*Tree, *Data, bool) {
	data := &Data{}
	ignore := make(map[string]struct{}, len(opts.Ignore))
	for _, p := range opts.Ignore {
		ignore[filepath.Clean(p)] = struct{}{}
	}

	g, gctx := errgroup.WithContext(ctx)
	tree, ok := walkDir(gctx, g, root, opts, ignore, data, token, 0)
	if err := g.Wait(); err != nil {
		logging.Errorf("walk", "walk of %s failed: %s", root, err)
		return nil, data, false
	}
	if !ok || token.IsCancelled() {
		return nil, data, false
	}
	return tree, data, true
}

func walkDir(ctx context.Context, g *errgroup.Group, path string, opts Options, ignore map[string]struct{}, data *Data, token cancel.Token, depth int) (*Tree, bool) {
	if token.IsCancelled() {
		return nil, false
	}
	if _, skip := ignore[filepath.Clean(path)]; skip {
		return nil, true
	}

	info, metaErr := lstatWithRetry(path)
	name := normalizeName(filepath.Base(path))

	if metaErr != nil {
		data.NumFiles.Add(1)
		return &Tree{Name: name}, true
	}

	if info.Mode()&os.ModeSymlink != 0 && !opts.FollowSymlinks {
		data.NumFiles.Add(1)
		return &Tree{Name: name, Metadata: buildMetadata(info, opts, true)}, true
	}

	if !info.IsDir() {
		data.NumFiles.Add(1)
		return &Tree{Name: name, Metadata: buildMetadata(info, opts, false)}, true
	}

	data.NumDirs.Add(1)

	entries, err := readDirWithRetry(path)
	if err != nil {
		logging.Errorf("walk", "failed to read %s: %s", path, err)
		return &Tree{Name: name, Metadata: buildMetadata(info, opts, false)}, true
	}

	children := make([]*Tree, len(entries))
	// Fan out over siblings in parallel, but cap recursion depth to avoid
	// unbounded goroutine growth on pathologically deep trees; beyond
	// maxFanoutDepth, entries are walked sequentially in the current
	// goroutine instead of spawning new ones.
	for i, entry := range entries {
		i, entry := i, entry
		childPath := filepath.Join(path, entry.Name())
		if depth < maxFanoutDepth {
			g.Go(func() error {
				child, ok := walkDir(ctx, g, childPath, opts, ignore, data, token, depth+1)
				if ok {
					children[i] = child
				}
				return nil
			})
		} else {
			child, ok := walkDir(ctx, g, childPath, opts, ignore, data, token, depth+1)
			if ok {
				children[i] = child
			}
		}
	}

	return &Tree{Name: name, Metadata: buildMetadata(info, opts, false), Children: children}, true
}

func buildMetadata(info fs.FileInfo, opts Options, isSymlink bool) *NodeMetadata {
	if !opts.CollectMetadata {
		return nil
	}
	m := &NodeMetadata{
		IsDir:     info.IsDir(),
		IsSymlink: isSymlink,
	}
	if !info.IsDir() {
		m.Size = uint64(info.Size())
	}
	if mt := info.ModTime(); !mt.IsZero() {
		m.Mtime = uint32(mt.Unix())
	}
	return m
}

// lstatWithRetry retries once on an Interrupted syscall error, per spec.md
// §7 ("Interrupted-I/O during walk retries the same directory once") and
// fs_visit.rs's handle_error_and_retry.
func lstatWithRetry(path string) (fs.FileInfo, error) {
	info, err := os.Lstat(path)
	if isInterrupted(err) {
		info, err = os.Lstat(path)
	}
	return info, err
}

func readDirWithRetry(path string) ([]os.DirEntry, error) {
	entries, err := os.ReadDir(path)
	if isInterrupted(err) {
		entries, err = os.ReadDir(path)
	}
	return entries, err
}

func isInterrupted(err error) bool {
	if err == nil {
		return false
	}
	var pathErr *fs.PathError
	return errors.As(err, &pathErr) && errors.Is(pathErr.Err, syscall.EINTR)
}

// normalizeName applies Unicode NFC normalization, matching rclone's
// cleanRemote (backend/local/local.go) so names compare consistently
// across filesystems that store filenames in NFD form (notably macOS).
func normalizeName(name string) string {
	return norm.NFC.String(name)
}
