// Package cancel implements the monotonic-version cancellation protocol
// from spec.md §5 and §3: issuing a new Token implicitly cancels every
// token issued before it. Grounded on
// original_source/search-cancel/tests/more.rs, which pins the exact
// semantics (ACTIVE_SEARCH_VERSION global counter, CancellationToken::new
// bumping it, is_cancelled comparing against the bumped value).
package cancel

import "sync/atomic"

// activeVersion is the process-wide monotonic counter. It is an atomic
// counter, not a lock: only "a later token observes an earlier bump" needs
// to hold, which plain atomic load/store on a single word provides.
var activeVersion int64

// Token is a cheap-to-copy, thread-safe handle marking a point in time.
// A Token is cancelled once a newer Token has been created via New.
type Token struct {
	version int64
	noop    bool
}

// New increments the process-wide version counter and returns a Token
// pinned to the new value, implicitly cancelling every Token returned by a
// prior call to New.
func New() Token {
	v := atomic.AddInt64(&activeVersion, 1)
	return Token{version: v}
}

// Noop returns a token that never reports cancelled, for callers (tests,
// one-shot CLI queries) that have no interactive cancellation source.
func Noop() Token {
	return Token{noop: true}
}

// IsCancelled reports whether a newer Token has been created since t.
func (t Token) IsCancelled() bool {
	if t.noop {
		return false
	}
	return atomic.LoadInt64(&activeVersion) > t.version
}
