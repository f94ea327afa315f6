// Package config holds the tunables shared across cardinal's components,
// populated from CLI flags. Modeled in miniature on the teacher's
// fs/config/configstruct tag-driven Options convention (observed in
// backend/local's Options struct and its fs.Option flag definitions).
package config

import "time"

// Options are the cache-wide tunables.
type Options struct {
	// Ignore lists paths excluded from the walk and from subsequent
	// event-merge rewalks, mirroring the Walker interface's ignore set
	// (spec.md §6). Entries are matched as exact (cleaned) paths, not globs.
	Ignore []string

	// CaseInsensitive is the default for SearchOptions when a caller does
	// not specify one explicitly.
	CaseInsensitive bool

	// CheckpointInterval is carried in Options but no component reads it:
	// the façade never checkpoints on a timer, and checkpoints are written
	// only by explicit WriteToFile/Checkpoint calls.
	CheckpointInterval time.Duration

	// CompressionLevel is the zstd level used by the persistence writer.
	CompressionLevel int

	// FollowSymlinks mirrors the teacher's local backend's
	// --local-follow-symlinks option: when false (the default) symlinks are
	// recorded by type but never traversed, per spec.md §9. When true they
	// are recorded as plain files; they are not traversed either way.
	FollowSymlinks bool
}

// Default returns the baseline Options used when the CLI supplies none.
func Default() Options {
	return Options{
		Ignore:             nil,
		CaseInsensitive:    false,
		CheckpointInterval: 5 * time.Minute,
		CompressionLevel:   6,
		FollowSymlinks:     false,
	}
}
