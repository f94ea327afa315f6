package fsevent

// FsEvent is one raw filesystem-change notification, after translation from
// a platform-specific event into cardinal's abstract (path, flag, id) shape
// (spec.md §6). Grounded on original_source/cardinal-sdk/src/event.rs's
// FsEvent.
type FsEvent struct {
	Path string
	Flag EventFlag
	ID   uint64
}

// ShouldRescan reports whether e forces the merge layer to reload root
// instead of applying a targeted single-node or folder update (spec.md
// §4.4): true iff its scan type is ReScan, or its scan type is SingleNode
// or Folder and the event path is exactly root.
func (e FsEvent) ShouldRescan(root string) bool {
	switch e.Flag.Scan() {
	case ScanReScan:
		return true
	case ScanSingleNode, ScanFolder:
		return e.Path == root
	default:
		return false
	}
}
