// Package cache implements the slab-backed tree of filesystem nodes, the
// name-interning-backed inverted index over it, and the compact on-disk
// metadata packing — spec.md §3 and §4.2-§4.3. Grounded on
// original_source/search-cache/src/{slab_node,type_and_size,name_index}.rs;
// translated from the Rust arena+handle design into a dense Go slice
// indexed by integer handle, following the teacher's dense in-memory
// directory-entry style (backend/local/local.go's Fs.List building
// fs.DirEntries from os.FileInfo in one pass).
package cache

// State is the 2-bit presence state of a node's metadata.
type State uint8

const (
	// StateUnaccessible means the filesystem entry exists but its metadata
	// could not be read (permission denied, I/O error).
	StateUnaccessible State = iota
	// StateSome means metadata was read successfully.
	StateSome
	// StateNone means no metadata was ever attempted for this node.
	StateNone
)

// NodeFileType is the 2-bit filesystem entry type.
type NodeFileType uint8

const (
	NodeFile NodeFileType = iota
	NodeDir
	NodeSymlink
	NodeUnknown
)

// maxSize is the saturating ceiling for the 44-bit size field: 2^44-1.
const maxSize uint64 = (1 << 44) - 1

// StateTypeSize is the compact 6-byte packed {state, type, size} triple from
// spec.md §3: "high byte holds state (bits 7-6) and type (bits 5-4); low 44
// bits hold size (saturating)". The layout matches
// original_source/search-cache/src/type_and_size.rs bit-for-bit so a
// checkpoint written by either implementation would decode identically.
type StateTypeSize [6]byte

// NewStateTypeSize packs state, typ and size (saturating at 2^44-1) into the
// compact representation.
func NewStateTypeSize(state State, typ NodeFileType, size uint64) StateTypeSize {
	if size > maxSize {
		size = maxSize
	}
	packed := size | (uint64(typ) << 44) | (uint64(state) << 46)
	var out StateTypeSize
	for i := 0; i < 6; i++ {
		out[i] = byte(packed >> (8 * i))
	}
	return out
}

// NoneStateTypeSize returns the packed value for a node that was never
// stat'd (State == StateNone).
func NoneStateTypeSize() StateTypeSize {
	return NewStateTypeSize(StateNone, NodeFile, 0)
}

// UnaccessibleStateTypeSize returns the packed value for a node whose
// metadata could not be read.
func UnaccessibleStateTypeSize() StateTypeSize {
	return NewStateTypeSize(StateUnaccessible, NodeFile, 0)
}

func (s StateTypeSize) packed() uint64 {
	var v uint64
	for i := 0; i < 6; i++ {
		v |= uint64(s[i]) << (8 * i)
	}
	return v
}

// State unpacks the state field.
func (s StateTypeSize) State() State {
	return State(s[5] >> 6)
}

// Type unpacks the type field.
func (s StateTypeSize) Type() NodeFileType {
	return NodeFileType(s[5] >> 4 & 0b11)
}

// Size unpacks the size field.
func (s StateTypeSize) Size() uint64 {
	return s.packed() & maxSize
}

// Metadata is the full 6-byte-packed metadata plus the two 32-bit
// timestamps from spec.md §3 ("0 encodes absent").
type Metadata struct {
	StateTypeSize StateTypeSize
	Ctime         uint32 // 0 means absent
	Mtime         uint32 // 0 means absent
}

// NoneMetadata is the metadata of a node that was never stat'd.
func NoneMetadata() Metadata {
	return Metadata{StateTypeSize: NoneStateTypeSize()}
}

// UnaccessibleMetadata is the metadata of a node whose stat failed.
func UnaccessibleMetadata() Metadata {
	return Metadata{StateTypeSize: UnaccessibleStateTypeSize()}
}

// SomeMetadata builds metadata for a successfully stat'd node. ctime/mtime
// are Unix seconds; 0 is reinterpreted as "absent" per the invariant in
// spec.md §3.
func SomeMetadata(typ NodeFileType, size uint64, ctime, mtime uint32) Metadata {
	return Metadata{
		StateTypeSize: NewStateTypeSize(StateSome, typ, size),
		Ctime:         ctime,
		Mtime:         mtime,
	}
}

// IsSome reports whether this node's metadata was read successfully.
func (m Metadata) IsSome() bool { return m.StateTypeSize.State() == StateSome }

// IsNone reports whether this node's metadata was never attempted.
func (m Metadata) IsNone() bool { return m.StateTypeSize.State() == StateNone }

// IsUnaccessible reports whether this node's metadata read failed.
func (m Metadata) IsUnaccessible() bool { return m.StateTypeSize.State() == StateUnaccessible }

// Type returns the node's type, or NodeUnknown if metadata is absent.
func (m Metadata) Type() NodeFileType {
	if !m.IsSome() {
		return NodeUnknown
	}
	return m.StateTypeSize.Type()
}

// Size returns the node's size, or 0 if metadata is absent.
func (m Metadata) Size() uint64 {
	if !m.IsSome() {
		return 0
	}
	return m.StateTypeSize.Size()
}
