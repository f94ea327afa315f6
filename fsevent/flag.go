// Package fsevent classifies raw filesystem-change notifications into the
// abstract event taxonomy consumed by the merge layer (spec.md §4.4,
// §6), and adapts OS-native notifications (via fsnotify) into that
// abstract form. Grounded on
// original_source/cardinal-sdk/src/event_flag.rs (the EventFlag bitset and
// its event_type/scan_type classification) and
// original_source/cardinal-sdk/src/event.rs (FsEvent.should_rescan) —
// translated from a macOS-only FSEvents bitset into a platform-neutral one,
// since the Go module targets fsnotify (inotify/kqueue/ReadDirectoryChanges)
// rather than raw Core Services callbacks.
package fsevent

// EventFlag is a bitmask of raw filesystem-event properties, platform
// neutral. Unknown bits are ignored by classification (spec.md §6).
type EventFlag uint32

const (
	None EventFlag = 0
	// MustScanSubDirs indicates the platform could not report every change
	// under a directory individually; the whole subtree must be rescanned.
	MustScanSubDirs EventFlag = 1 << iota
	// UserDropped/KernelDropped indicate the platform dropped events due to
	// a slow consumer or kernel buffer pressure.
	UserDropped
	KernelDropped
	// EventIdsWrapped indicates the event-id counter wrapped; any cached
	// ids are no longer comparable.
	EventIdsWrapped
	// HistoryDone marks the end of a historical replay; carries no new
	// information.
	HistoryDone
	// RootChanged indicates the watched root itself was replaced (e.g. the
	// mount point was unmounted and remounted); forces a full reload.
	RootChanged
	Mount
	Unmount
	ItemCreated
	ItemRemoved
	ItemInodeMetaMod
	ItemRenamed
	ItemModified
	ItemFinderInfoMod
	ItemChangeOwner
	ItemXattrMod
	ItemIsFile
	ItemIsDir
	ItemIsSymlink
	OwnEvent
	ItemIsHardlink
	ItemIsLastHardlink
	ItemCloned
)

// Has reports whether f has every bit of other set.
func (f EventFlag) Has(other EventFlag) bool { return f&other == other }

// EventType is the coarse filesystem-entry kind an event pertains to.
type EventType int

const (
	TypeUnknown EventType = iota
	TypeFile
	TypeDir
	TypeSymlink
	TypeHardlink
)

// ScanType says how the merge layer must react to an event.
type ScanType int

const (
	// ScanNop means the event carries no actionable information (history
	// replay marker, or an id-space wraparound already accounted for).
	ScanNop ScanType = iota
	// ScanReScan means the watched root itself changed identity; the whole
	// tree must be reloaded from scratch.
	ScanReScan
	// ScanFolder means a directory and (conservatively) its descendants
	// changed.
	ScanFolder
	// ScanSingleNode means exactly one non-directory entry changed.
	ScanSingleNode
)

// Type classifies f's event type: Hardlink if either hardlink bit is set,
// else Symlink, else Dir, else File, else Unknown (spec.md §4.4).
func (f EventFlag) Type() EventType {
	switch {
	case f.Has(ItemIsHardlink) || f.Has(ItemIsLastHardlink):
		return TypeHardlink
	case f.Has(ItemIsSymlink):
		return TypeSymlink
	case f.Has(ItemIsDir):
		return TypeDir
	case f.Has(ItemIsFile):
		return TypeFile
	default:
		return TypeUnknown
	}
}

// Scan classifies f's scan type (spec.md §4.4): Nop if HistoryDone or
// EventIdsWrapped is set; else ReScan if RootChanged is set; else Folder if
// the event type is Dir; else SingleNode.
func (f EventFlag) Scan() ScanType {
	switch {
	case f.Has(HistoryDone) || f.Has(EventIdsWrapped):
		return ScanNop
	case f.Has(RootChanged):
		return ScanReScan
	case f.Type() == TypeDir:
		return ScanFolder
	default:
		return ScanSingleNode
	}
}
