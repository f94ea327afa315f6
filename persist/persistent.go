// Package persist implements the checkpoint codec and atomic writer/reader
// from spec.md §4.9: a fixed binary layout for PersistentStorage, wrapped
// in a streaming zstd encoder/decoder, written via a temp-file-then-rename
// sequence so a reader never observes a partial checkpoint. Grounded on
// original_source/search-cache/src/persistent.rs (PersistentStorage's
// field layout, the `.sctmp`-then-rename sequence, the multithreaded zstd
// encoder) and on the teacher's own little-endian binary.LittleEndian
// convention for fixed-width fields (backend/compress/compress.go's
// int64ToBase64/base64ToInt64).
package persist

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/klauspost/compress/zstd"

	"github.com/cardinalsearch/cardinal/cache"
	"github.com/cardinalsearch/cardinal/cardinalerrors"
	"github.com/cardinalsearch/cardinal/logging"
	"github.com/cardinalsearch/cardinal/namepool"
)

// Version is the expected PersistentStorage format version (spec.md §4.9's
// "version: i64 — must equal the current expected version, else discard").
// Bump it whenever the binary layout below changes incompatibly.
const Version int64 = 1

// tmpSuffix matches the prototype's ".sctmp" extension.
const tmpSuffix = ".sctmp"

// SlabRecord is the on-disk form of one cache.Node (spec.md §6's
// `SlabNode = { name_and_parent, children, metadata }`), including the
// Live flag needed to preserve vacant slots so handle values round-trip.
type SlabRecord struct {
	Live     bool
	Name     string
	HasParent bool
	Parent   cache.Handle
	Children []cache.Handle
	Metadata cache.Metadata
}

// PersistentStorage is the full checkpoint payload (spec.md §6).
type PersistentStorage struct {
	Version      int64
	LastEventID  uint64
	RootPath     string
	SlabRoot     cache.Handle
	Slab         []SlabRecord
	NameIndex    map[string][]cache.Handle
	MetadataCache []byte // opaque to the core, per spec.md §6
}

// FromArena snapshots arena/index/lastEventID/rootPath into a
// PersistentStorage ready for Write.
func FromArena(arena *cache.FileNodes, index *cache.NameIndex, rootPath string, lastEventID uint64, metadataCache []byte) *PersistentStorage {
	pool := arena.Pool()
	slab := make([]SlabRecord, arena.SlabLen())
	for i := range slab {
		node, live := arena.SlabNodeAt(i)
		if !live {
			continue
		}
		slab[i] = SlabRecord{
			Live:      true,
			Name:      pool.Deref(node.Name),
			HasParent: node.Parent != cache.NoParent,
			Parent:    node.Parent,
			Children:  append([]cache.Handle(nil), node.Children...),
			Metadata:  node.Metadata,
		}
	}

	nameIndex := make(map[string][]cache.Handle, index.Len())
	for name, indices := range index.AllIndices() {
		nameIndex[pool.Deref(name)] = indices.Handles()
	}

	return &PersistentStorage{
		Version:       Version,
		LastEventID:   lastEventID,
		RootPath:      rootPath,
		SlabRoot:      arena.Root(),
		Slab:          slab,
		NameIndex:     nameIndex,
		MetadataCache: metadataCache,
	}
}

// ToArena rebuilds an arena, name index and interning pool from a decoded
// PersistentStorage.
func (s *PersistentStorage) ToArena(lessFor func(arena *cache.FileNodes) func(a, b cache.Handle) bool) (*cache.FileNodes, *cache.NameIndex) {
	pool := namepool.New()
	nodes := make([]cache.Node, len(s.Slab))
	live := make([]bool, len(s.Slab))
	for i, rec := range s.Slab {
		if !rec.Live {
			continue
		}
		live[i] = true
		parent := cache.NoParent
		if rec.HasParent {
			parent = rec.Parent
		}
		nodes[i] = cache.Node{
			Name:     pool.Push(rec.Name),
			Parent:   parent,
			Children: append([]cache.Handle(nil), rec.Children...),
			Metadata: rec.Metadata,
		}
	}

	arena := cache.NewFileNodesFromSlab(pool, nodes, live, s.SlabRoot)
	less := lessFor(arena)
	index := cache.NewNameIndex(less)
	for name, handles := range s.NameIndex {
		nameHandle := pool.Push(name)
		for _, h := range handles {
			index.AddIndexOrdered(nameHandle, h)
		}
	}
	return arena, index
}

// Write encodes storage, compresses it with a streaming (multithreaded)
// zstd encoder, and atomically publishes it at path via the
// write-to-temp-then-rename sequence from spec.md §4.9. On any error the
// temp file is removed.
func Write(path string, storage *PersistentStorage, level zstd.EncoderLevel) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			return cardinalerrors.NewPersistenceError(mkErr, "create checkpoint directory")
		}
	}

	tmpPath := path + tmpSuffix
	f, err := os.Create(tmpPath)
	if err != nil {
		return cardinalerrors.NewPersistenceError(err, "create temp checkpoint file")
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	concurrency := runtime.GOMAXPROCS(0)
	if concurrency < 1 {
		concurrency = 1
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(level), zstd.WithEncoderConcurrency(concurrency))
	if err != nil {
		_ = f.Close()
		return cardinalerrors.NewPersistenceError(err, "create zstd encoder")
	}

	bw := bufio.NewWriter(enc)
	if err = encodeStorage(bw, storage); err != nil {
		_ = enc.Close()
		_ = f.Close()
		return cardinalerrors.NewPersistenceError(err, "encode checkpoint")
	}
	if err = bw.Flush(); err != nil {
		_ = enc.Close()
		_ = f.Close()
		return cardinalerrors.NewPersistenceError(err, "flush checkpoint")
	}
	if err = enc.Close(); err != nil {
		_ = f.Close()
		return cardinalerrors.NewPersistenceError(err, "close zstd encoder")
	}
	if err = f.Close(); err != nil {
		return cardinalerrors.NewPersistenceError(err, "close temp checkpoint file")
	}

	if err = os.Rename(tmpPath, path); err != nil {
		return cardinalerrors.NewPersistenceError(err, "rename checkpoint into place")
	}
	logging.Logf(path, "wrote checkpoint (%d nodes)", len(storage.Slab))
	return nil
}

// Read opens, stream-decompresses and decodes path. A version mismatch is
// reported via PersistenceError.VersionMismatch so callers can trigger a
// fresh walk instead of surfacing a hard error (spec.md §4.9).
func Read(path string) (*PersistentStorage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, cardinalerrors.NewPersistenceError(err, "open checkpoint file")
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, cardinalerrors.NewPersistenceError(err, "create zstd decoder")
	}
	defer dec.Close()

	storage, err := decodeStorage(bufio.NewReader(dec))
	if err != nil {
		return nil, cardinalerrors.NewPersistenceError(err, "decode checkpoint")
	}
	if storage.Version != Version {
		return nil, cardinalerrors.NewVersionMismatchError(storage.Version, Version)
	}
	return storage, nil
}

// --- fixed binary codec ---

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func writeInt64(w io.Writer, v int64) error { return writeUint64(w, uint64(v)) }

func readInt64(r io.Reader) (int64, error) {
	v, err := readUint64(r)
	return int64(v), err
}

func writeBool(w io.Writer, v bool) error {
	var b [1]byte
	if v {
		b[0] = 1
	}
	_, err := w.Write(b[:])
	return err
}

func readBool(r io.Reader) (bool, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

func writeString(w io.Writer, s string) error {
	if err := writeUint64(w, uint64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	n, err := readUint64(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeHandles(w io.Writer, hs []cache.Handle) error {
	if err := writeUint64(w, uint64(len(hs))); err != nil {
		return err
	}
	for _, h := range hs {
		if err := writeInt64(w, int64(h)); err != nil {
			return err
		}
	}
	return nil
}

func readHandles(r io.Reader) ([]cache.Handle, error) {
	n, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	out := make([]cache.Handle, n)
	for i := range out {
		v, err := readInt64(r)
		if err != nil {
			return nil, err
		}
		out[i] = cache.Handle(v)
	}
	return out, nil
}

func writeMetadata(w io.Writer, m cache.Metadata) error {
	if _, err := w.Write(m.StateTypeSize[:]); err != nil {
		return err
	}
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], m.Ctime)
	binary.LittleEndian.PutUint32(buf[4:8], m.Mtime)
	_, err := w.Write(buf[:])
	return err
}

func readMetadata(r io.Reader) (cache.Metadata, error) {
	var sts cache.StateTypeSize
	if _, err := io.ReadFull(r, sts[:]); err != nil {
		return cache.Metadata{}, err
	}
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return cache.Metadata{}, err
	}
	return cache.Metadata{
		StateTypeSize: sts,
		Ctime:         binary.LittleEndian.Uint32(buf[0:4]),
		Mtime:         binary.LittleEndian.Uint32(buf[4:8]),
	}, nil
}

func encodeStorage(w io.Writer, s *PersistentStorage) error {
	if err := writeInt64(w, s.Version); err != nil {
		return err
	}
	if err := writeUint64(w, s.LastEventID); err != nil {
		return err
	}
	if err := writeString(w, s.RootPath); err != nil {
		return err
	}
	if err := writeInt64(w, int64(s.SlabRoot)); err != nil {
		return err
	}

	if err := writeUint64(w, uint64(len(s.Slab))); err != nil {
		return err
	}
	for _, rec := range s.Slab {
		if err := writeBool(w, rec.Live); err != nil {
			return err
		}
		if !rec.Live {
			continue
		}
		if err := writeString(w, rec.Name); err != nil {
			return err
		}
		if err := writeBool(w, rec.HasParent); err != nil {
			return err
		}
		if err := writeInt64(w, int64(rec.Parent)); err != nil {
			return err
		}
		if err := writeHandles(w, rec.Children); err != nil {
			return err
		}
		if err := writeMetadata(w, rec.Metadata); err != nil {
			return err
		}
	}

	if err := writeUint64(w, uint64(len(s.NameIndex))); err != nil {
		return err
	}
	for name, handles := range s.NameIndex {
		if err := writeString(w, name); err != nil {
			return err
		}
		if err := writeHandles(w, handles); err != nil {
			return err
		}
	}

	if err := writeUint64(w, uint64(len(s.MetadataCache))); err != nil {
		return err
	}
	_, err := w.Write(s.MetadataCache)
	return err
}

func decodeStorage(r io.Reader) (*PersistentStorage, error) {
	s := &PersistentStorage{}

	var err error
	if s.Version, err = readInt64(r); err != nil {
		return nil, err
	}
	if s.LastEventID, err = readUint64(r); err != nil {
		return nil, err
	}
	if s.RootPath, err = readString(r); err != nil {
		return nil, err
	}
	root, err := readInt64(r)
	if err != nil {
		return nil, err
	}
	s.SlabRoot = cache.Handle(root)

	slabLen, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	s.Slab = make([]SlabRecord, slabLen)
	for i := range s.Slab {
		live, err := readBool(r)
		if err != nil {
			return nil, err
		}
		if !live {
			continue
		}
		rec := SlabRecord{Live: true}
		if rec.Name, err = readString(r); err != nil {
			return nil, err
		}
		if rec.HasParent, err = readBool(r); err != nil {
			return nil, err
		}
		parent, err := readInt64(r)
		if err != nil {
			return nil, err
		}
		rec.Parent = cache.Handle(parent)
		if rec.Children, err = readHandles(r); err != nil {
			return nil, err
		}
		if rec.Metadata, err = readMetadata(r); err != nil {
			return nil, err
		}
		s.Slab[i] = rec
	}

	nameCount, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	s.NameIndex = make(map[string][]cache.Handle, nameCount)
	for i := uint64(0); i < nameCount; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		handles, err := readHandles(r)
		if err != nil {
			return nil, err
		}
		s.NameIndex[name] = handles
	}

	metaLen, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	s.MetadataCache = make([]byte, metaLen)
	if _, err := io.ReadFull(r, s.MetadataCache); err != nil {
		return nil, err
	}

	return s, nil
}

