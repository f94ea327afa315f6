// Package namepool implements an append-only string interner that hands out
// stable, process-lifetime handles (spec.md §3, §4.1). Grounded on
// original_source/search-cache/src/name_index.rs's use of a process-global
// NAME_POOL and on namepool/tests/fuzz_large.rs's search-helper contract
// (search_substr/prefix/suffix/exact/regex, each cancellable).
package namepool

import (
	"regexp"
	"strings"
	"sync"

	"github.com/cardinalsearch/cardinal/cancel"
)

// cancelCheckInterval is how often a scan checks the cancellation token,
// matching spec.md §4.1's "at least every 1,024 names" design target.
const cancelCheckInterval = 1024

// Handle identifies an interned name. It stays valid for the process
// lifetime once returned by Push; the zero Handle is never issued.
type Handle int

// Pool is a monotonically growing, thread-safe string interner. The zero
// value is not usable; construct with New.
type Pool struct {
	mu      sync.RWMutex
	byValue map[string]Handle
	names   []string // names[h-1] == the interned string for Handle h
	nbytes  int
}

// New returns an empty Pool.
func New() *Pool {
	return &Pool{byValue: make(map[string]Handle)}
}

// Push interns s, returning a Handle such that Deref(Push(s)) == s. Pushing
// the same string twice returns an equal handle (content-addressed); the
// pool never shrinks. Safe for concurrent use.
func (p *Pool) Push(s string) Handle {
	p.mu.RLock()
	if h, ok := p.byValue[s]; ok {
		p.mu.RUnlock()
		return h
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.byValue[s]; ok {
		return h
	}
	p.names = append(p.names, s)
	h := Handle(len(p.names))
	p.byValue[s] = h
	p.nbytes += len(s)
	return h
}

// Deref returns the string a Handle refers to. It panics on a zero or
// out-of-range handle, since such a handle indicates a programming error,
// not a runtime condition. A handle from a different pool is not detected:
// if it is in range it returns whatever name this pool holds at that slot.
func (p *Pool) Deref(h Handle) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.names[h-1]
}

// Len reports the number of bytes interned, for diagnostics (spec.md §4.1).
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nbytes
}

// Count reports the number of distinct interned names.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.names)
}

// snapshot copies the current name slice under the read lock so scans can
// run lock-free afterwards (mutation during a scan only appends, so a
// torn read of a name already captured is impossible).
func (p *Pool) snapshot() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

func foldCase(s string, caseInsensitive bool) string {
	if caseInsensitive {
		return strings.ToLower(s)
	}
	return s
}

// scan iterates the pool's names, calling match for each, respecting the
// cancellation token, and returns the Handles of every matching name.
// Returns (nil, false) — the cancellation sentinel — if the token observes
// cancellation before the scan completes.
func (p *Pool) scan(token cancel.Token, match func(name string) bool) ([]Handle, bool) {
	names := p.snapshot()
	var out []Handle
	for i, name := range names {
		if i%cancelCheckInterval == 0 && token.IsCancelled() {
			return nil, false
		}
		if match(name) {
			out = append(out, Handle(i+1))
		}
	}
	return out, true
}

// SearchSubstr returns the Handles of every interned name containing needle
// as a substring. ok is false iff the token observed cancellation mid-scan.
func (p *Pool) SearchSubstr(needle string, caseInsensitive bool, token cancel.Token) (handles []Handle, ok bool) {
	needle = foldCase(needle, caseInsensitive)
	return p.scan(token, func(name string) bool {
		return strings.Contains(foldCase(name, caseInsensitive), needle)
	})
}

// SearchPrefix returns the Handles of every interned name starting with needle.
func (p *Pool) SearchPrefix(needle string, caseInsensitive bool, token cancel.Token) (handles []Handle, ok bool) {
	needle = foldCase(needle, caseInsensitive)
	return p.scan(token, func(name string) bool {
		return strings.HasPrefix(foldCase(name, caseInsensitive), needle)
	})
}

// SearchSuffix returns the Handles of every interned name ending with needle.
func (p *Pool) SearchSuffix(needle string, caseInsensitive bool, token cancel.Token) (handles []Handle, ok bool) {
	needle = foldCase(needle, caseInsensitive)
	return p.scan(token, func(name string) bool {
		return strings.HasSuffix(foldCase(name, caseInsensitive), needle)
	})
}

// SearchExact returns the Handles of every interned name equal to needle.
func (p *Pool) SearchExact(needle string, caseInsensitive bool, token cancel.Token) (handles []Handle, ok bool) {
	needle = foldCase(needle, caseInsensitive)
	return p.scan(token, func(name string) bool {
		return foldCase(name, caseInsensitive) == needle
	})
}

// SearchRegex returns the Handles of every interned name accepted by re.
func (p *Pool) SearchRegex(re *regexp.Regexp, token cancel.Token) (handles []Handle, ok bool) {
	return p.scan(token, re.MatchString)
}

// SearchGlob returns the Handles of every interned name accepted by match,
// a compiled glob predicate (see query.compileWildcard). caseInsensitive
// lowercases each name before calling match; the pattern behind match is
// not touched here, so the caller compiles it from a lowercased pattern.
func (p *Pool) SearchGlob(match func(string) bool, caseInsensitive bool, token cancel.Token) (handles []Handle, ok bool) {
	return p.scan(token, func(name string) bool {
		return match(foldCase(name, caseInsensitive))
	})
}
