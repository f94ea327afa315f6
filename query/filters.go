package query

import (
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"

	"github.com/cardinalsearch/cardinal/cache"
	"github.com/cardinalsearch/cardinal/cardinalerrors"
)

// nodePredicate reports whether a single node matches a filter. Evaluating
// a FilterTerm scans the arena once, calling a nodePredicate for every live
// handle (evaluator.go's scanArena), rather than materializing an
// intermediate set for each filter kind.
type nodePredicate func(h cache.Handle) (bool, error)

// buildFilterPredicate dispatches on f.Kind, returning the nodePredicate
// that decides membership for that filter (spec.md §4.7's filter table).
func (ctx *EvalContext) buildFilterPredicate(f FilterTerm) (nodePredicate, error) {
	switch f.Kind {
	case FilterFile:
		return ctx.typePredicate(cache.NodeFile, f.Argument), nil
	case FilterFolder:
		return ctx.typePredicate(cache.NodeDir, f.Argument), nil
	case FilterAudio:
		return ctx.extensionClassPredicate(audioMIMEs), nil
	case FilterVideo:
		return ctx.extensionClassPredicate(videoMIMEs), nil
	case FilterDoc:
		return ctx.extensionClassPredicate(docMIMEs), nil
	case FilterExe:
		return ctx.extensionClassPredicate(exeMIMEs), nil
	case FilterExt:
		return ctx.extensionListPredicate(f.Argument), nil
	case FilterContent:
		return matchNothing, nil
	case FilterParent:
		return ctx.ancestorPredicate(f.Argument, false), nil
	case FilterInFolder:
		return ctx.ancestorPredicate(f.Argument, true), nil
	case FilterSize:
		return ctx.sizePredicate(f.Argument)
	case FilterWidth, FilterHeight, FilterDimensions:
		// No external image-metadata source is part of this core (spec.md
		// §4.7): these filters are recognized but never match.
		return matchNothing, nil
	case FilterDateCreated:
		return ctx.datePredicate(f.Argument, func(m cache.Metadata) (uint32, bool) {
			return m.Ctime, m.Ctime != 0
		})
	case FilterDateModified:
		return ctx.datePredicate(f.Argument, func(m cache.Metadata) (uint32, bool) {
			return m.Mtime, m.Mtime != 0
		})
	case FilterDateAccessed, FilterDateRun:
		// The arena only carries ctime/mtime (spec.md §3); access- and
		// run-time are not tracked, so these filters match nothing.
		return matchNothing, nil
	case FilterAttributeDuplicate:
		return ctx.duplicatePredicate(attributeFingerprint), nil
	case FilterDateModifiedDuplicate:
		return ctx.duplicatePredicate(mtimeFingerprint), nil
	case FilterDuplicate:
		return ctx.duplicatePredicate(nameSizeFingerprint), nil
	case FilterNamePartDuplicate:
		return ctx.duplicatePredicate(namePartFingerprint), nil
	case FilterSizeDuplicate:
		return ctx.duplicatePredicate(sizeFingerprint), nil
	case FilterNoWholeFilename:
		// A modifier, not itself a predicate (spec.md §4.7); it narrows how
		// an adjacent Word/Phrase is matched, which this flat evaluator
		// does not model, so on its own it excludes nothing.
		return matchEverything, nil
	default:
		// Custom(name): unrecognized identifier, matches nothing.
		return matchNothing, nil
	}
}

func matchNothing(cache.Handle) (bool, error)    { return false, nil }
func matchEverything(cache.Handle) (bool, error) { return true, nil }

func (ctx *EvalContext) typePredicate(want cache.NodeFileType, arg *FilterArgument) nodePredicate {
	return func(h cache.Handle) (bool, error) {
		n := ctx.Arena.Get(h)
		if n == nil || n.Metadata.Type() != want {
			return false, nil
		}
		if arg == nil {
			return true, nil
		}
		name := ctx.Arena.Pool().Deref(n.Name)
		return ctx.containsFold(name, arg.Raw), nil
	}
}

func (ctx *EvalContext) containsFold(haystack, needle string) bool {
	if ctx.Options.CaseInsensitive {
		return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
	}
	return strings.Contains(haystack, needle)
}

func (ctx *EvalContext) equalFold(a, b string) bool {
	if ctx.Options.CaseInsensitive {
		return strings.EqualFold(a, b)
	}
	return a == b
}

func extensionOf(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

// mimeExtensionSet seeds a set of file extensions from the MIME library's
// own declared extension for each member MIME type, so the audio/video/doc/
// exe classes are grounded in gabriel-vasile/mimetype's type tree (spec.md
// §4.7's "extension-class predicates") rather than a hand-maintained magic
// number table. No bytes are read from disk to do this — classification
// here never needs to sniff content, since the evaluator only ever sees
// a node's stored name and metadata (spec.md §5: evaluation is pure
// in-memory).
func mimeExtensionSet(mimeStrings ...string) map[string]bool {
	set := make(map[string]bool, len(mimeStrings))
	for _, s := range mimeStrings {
		m := mimetype.Lookup(s)
		if m == nil {
			continue
		}
		ext := strings.TrimPrefix(m.Extension(), ".")
		if ext != "" {
			set[strings.ToLower(ext)] = true
		}
	}
	return set
}

var (
	audioMIMEs = mimeExtensionSet("audio/mpeg", "audio/wav", "audio/flac", "audio/ogg", "audio/aac", "audio/midi", "audio/x-m4a")
	videoMIMEs = mimeExtensionSet("video/mp4", "video/webm", "video/x-matroska", "video/quicktime", "video/x-msvideo", "video/mpeg")
	docMIMEs   = mimeExtensionSet("application/pdf", "application/msword", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", "text/plain", "text/csv", "application/vnd.oasis.opendocument.text")
	exeMIMEs   = mimeExtensionSet("application/x-msdownload", "application/x-executable", "application/x-elf", "application/x-mach-binary", "application/vnd.microsoft.portable-executable")
)

func (ctx *EvalContext) extensionClassPredicate(class map[string]bool) nodePredicate {
	return func(h cache.Handle) (bool, error) {
		n := ctx.Arena.Get(h)
		if n == nil {
			return false, nil
		}
		name := ctx.Arena.Pool().Deref(n.Name)
		return class[extensionOf(name)], nil
	}
}

func (ctx *EvalContext) extensionListPredicate(arg *FilterArgument) nodePredicate {
	wanted := map[string]bool{}
	if arg != nil {
		items := arg.List
		if items == nil {
			items = []string{arg.Raw}
		}
		for _, it := range items {
			it = strings.ToLower(strings.TrimSpace(it))
			it = strings.TrimPrefix(it, ".")
			if it != "" {
				wanted[it] = true
			}
		}
	}
	return func(h cache.Handle) (bool, error) {
		n := ctx.Arena.Get(h)
		if n == nil {
			return false, nil
		}
		name := ctx.Arena.Pool().Deref(n.Name)
		return wanted[extensionOf(name)], nil
	}
}

func (ctx *EvalContext) ancestorPredicate(arg *FilterArgument, anyAncestor bool) nodePredicate {
	var want string
	if arg != nil {
		want = strings.TrimSuffix(arg.Raw, "/")
		if arg.Kind == ArgPhrase {
			want = strings.TrimSuffix(arg.Phrase, "/")
		}
		want = strings.TrimPrefix(want, "./")
	}
	return func(h cache.Handle) (bool, error) {
		n := ctx.Arena.Get(h)
		if n == nil {
			return false, nil
		}
		parent := n.Parent
		if parent == cache.NoParent {
			return false, nil
		}
		if !anyAncestor {
			return ctx.ancestorNameEquals(parent, want), nil
		}
		for cur := parent; cur != cache.NoParent; {
			if ctx.ancestorNameMatches(cur, want) {
				return true, nil
			}
			pn := ctx.Arena.Get(cur)
			if pn == nil {
				break
			}
			cur = pn.Parent
		}
		return false, nil
	}
}

// ancestorNameEquals implements parent:P's spec.md §4.7 contract — "direct
// parent equals P" — exactly: P matching the parent's bare name, or its full
// path if P itself looks like a path, with no substring leniency.
func (ctx *EvalContext) ancestorNameEquals(h cache.Handle, want string) bool {
	n := ctx.Arena.Get(h)
	if n == nil {
		return false
	}
	name := ctx.Arena.Pool().Deref(n.Name)
	if ctx.equalFold(name, want) {
		return true
	}
	path, ok := ctx.Arena.NodePath(h)
	return ok && ctx.equalFold(path, want)
}

func (ctx *EvalContext) ancestorNameMatches(h cache.Handle, want string) bool {
	n := ctx.Arena.Get(h)
	if n == nil {
		return false
	}
	name := ctx.Arena.Pool().Deref(n.Name)
	if path, ok := ctx.Arena.NodePath(h); ok && (path == want || ctx.containsFold(path, want)) {
		return true
	}
	return ctx.containsFold(name, want)
}

func (ctx *EvalContext) sizePredicate(arg *FilterArgument) (nodePredicate, error) {
	if arg == nil {
		return matchNothing, nil
	}
	switch arg.Kind {
	case ArgComparison:
		bound, err := humanize.ParseBytes(strings.TrimSpace(arg.ComparisonVal))
		if err != nil {
			return nil, cardinalerrors.NewEvaluateError(err, "invalid size value %q", arg.ComparisonVal)
		}
		op := arg.ComparisonOp
		return func(h cache.Handle) (bool, error) {
			n := ctx.Arena.Get(h)
			if n == nil {
				return false, nil
			}
			return compareUint(n.Metadata.Size(), op, bound), nil
		}, nil
	case ArgRange:
		lo, hi, err := parseSizeRange(arg)
		if err != nil {
			return nil, err
		}
		return func(h cache.Handle) (bool, error) {
			n := ctx.Arena.Get(h)
			if n == nil {
				return false, nil
			}
			sz := n.Metadata.Size()
			if lo != nil && sz < *lo {
				return false, nil
			}
			if hi != nil && sz > *hi {
				return false, nil
			}
			return true, nil
		}, nil
	default:
		exact, err := humanize.ParseBytes(strings.TrimSpace(arg.Raw))
		if err != nil {
			return nil, cardinalerrors.NewEvaluateError(err, "invalid size value %q", arg.Raw)
		}
		return func(h cache.Handle) (bool, error) {
			n := ctx.Arena.Get(h)
			if n == nil {
				return false, nil
			}
			return n.Metadata.Size() == exact, nil
		}, nil
	}
}

func parseSizeRange(arg *FilterArgument) (lo, hi *uint64, err error) {
	if arg.RangeStart != nil {
		v, perr := humanize.ParseBytes(strings.TrimSpace(*arg.RangeStart))
		if perr != nil {
			return nil, nil, cardinalerrors.NewEvaluateError(perr, "invalid size range start %q", *arg.RangeStart)
		}
		lo = &v
	}
	if arg.RangeEnd != nil {
		v, perr := humanize.ParseBytes(strings.TrimSpace(*arg.RangeEnd))
		if perr != nil {
			return nil, nil, cardinalerrors.NewEvaluateError(perr, "invalid size range end %q", *arg.RangeEnd)
		}
		hi = &v
	}
	return lo, hi, nil
}

func compareUint(v uint64, op ComparisonOp, bound uint64) bool {
	switch op {
	case OpLt:
		return v < bound
	case OpLe:
		return v <= bound
	case OpEq:
		return v == bound
	case OpNe:
		return v != bound
	case OpGe:
		return v >= bound
	case OpGt:
		return v > bound
	}
	return false
}

var dateLayouts = []string{"2006/1/2", "2006-1-2", "2006/01/02", "2006-01-02"}

// dateWindow returns the [start, end) instant bounds of the calendar day (or
// named period) raw refers to, evaluated relative to now.
func dateWindow(raw string, now time.Time) (start, end time.Time, ok bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch raw {
	case "today":
		return today, today.AddDate(0, 0, 1), true
	case "yesterday":
		y := today.AddDate(0, 0, -1)
		return y, today, true
	case "thisweek":
		weekday := int(today.Weekday())
		start := today.AddDate(0, 0, -weekday)
		return start, start.AddDate(0, 0, 7), true
	case "pastweek":
		return today.AddDate(0, 0, -7), today.AddDate(0, 0, 1), true
	case "pastmonth":
		return today.AddDate(0, -1, 0), today.AddDate(0, 0, 1), true
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, raw, now.Location()); err == nil {
			day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, now.Location())
			return day, day.AddDate(0, 0, 1), true
		}
	}
	return time.Time{}, time.Time{}, false
}

func (ctx *EvalContext) datePredicate(arg *FilterArgument, field func(cache.Metadata) (uint32, bool)) (nodePredicate, error) {
	if arg == nil {
		return matchNothing, nil
	}
	now := time.Now()

	check := func(h cache.Handle, want func(t time.Time) bool) (bool, error) {
		n := ctx.Arena.Get(h)
		if n == nil {
			return false, nil
		}
		secs, present := field(n.Metadata)
		if !present {
			return false, nil
		}
		return want(time.Unix(int64(secs), 0).UTC()), nil
	}

	switch arg.Kind {
	case ArgComparison:
		start, _, ok := dateWindow(arg.ComparisonVal, now)
		if !ok {
			return nil, cardinalerrors.NewEvaluateError(nil, "invalid date value %q", arg.ComparisonVal)
		}
		op := arg.ComparisonOp
		return func(h cache.Handle) (bool, error) {
			return check(h, func(t time.Time) bool {
				switch op {
				case OpLt:
					return t.Before(start)
				case OpLe:
					return !t.After(start)
				case OpEq:
					return t.Equal(start)
				case OpNe:
					return !t.Equal(start)
				case OpGe:
					return !t.Before(start)
				case OpGt:
					return t.After(start)
				}
				return false
			})
		}, nil
	case ArgRange:
		var lo, hi *time.Time
		if arg.RangeStart != nil {
			s, _, ok := dateWindow(*arg.RangeStart, now)
			if !ok {
				return nil, cardinalerrors.NewEvaluateError(nil, "invalid date range start %q", *arg.RangeStart)
			}
			lo = &s
		}
		if arg.RangeEnd != nil {
			_, e, ok := dateWindow(*arg.RangeEnd, now)
			if !ok {
				return nil, cardinalerrors.NewEvaluateError(nil, "invalid date range end %q", *arg.RangeEnd)
			}
			hi = &e
		}
		return func(h cache.Handle) (bool, error) {
			return check(h, func(t time.Time) bool {
				if lo != nil && t.Before(*lo) {
					return false
				}
				if hi != nil && !t.Before(*hi) {
					return false
				}
				return true
			})
		}, nil
	default:
		start, end, ok := dateWindow(arg.Raw, now)
		if !ok {
			return nil, cardinalerrors.NewEvaluateError(nil, "invalid date value %q", arg.Raw)
		}
		return func(h cache.Handle) (bool, error) {
			return check(h, func(t time.Time) bool {
				return !t.Before(start) && t.Before(end)
			})
		}, nil
	}
}

// fingerprint keys used by the duplicate-detection filters: two nodes are
// "duplicates" of each other under a given filter kind if their
// fingerprints collide (spec.md §4.7's attribdupe/dmdupe/dupe/
// namepartdupe/sizedupe). Hashing with cespare/xxhash/v2 keeps grouping
// O(n) instead of the naive O(n^2) pairwise comparison.
type fingerprintFn func(arena *cache.FileNodes, h cache.Handle) (uint64, bool)

func attributeFingerprint(arena *cache.FileNodes, h cache.Handle) (uint64, bool) {
	n := arena.Get(h)
	if n == nil || !n.Metadata.IsSome() {
		return 0, false
	}
	var buf [16]byte
	putUint32(buf[0:4], uint32(n.Metadata.Type()))
	putUint64(buf[4:12], n.Metadata.Size())
	putUint32(buf[12:16], n.Metadata.Mtime)
	return xxhash.Sum64(buf[:]), true
}

func mtimeFingerprint(arena *cache.FileNodes, h cache.Handle) (uint64, bool) {
	n := arena.Get(h)
	if n == nil || n.Metadata.Mtime == 0 {
		return 0, false
	}
	var buf [4]byte
	putUint32(buf[:], n.Metadata.Mtime)
	return xxhash.Sum64(buf[:]), true
}

func nameSizeFingerprint(arena *cache.FileNodes, h cache.Handle) (uint64, bool) {
	n := arena.Get(h)
	if n == nil {
		return 0, false
	}
	name := arena.Pool().Deref(n.Name)
	var buf [8]byte
	putUint64(buf[:], n.Metadata.Size())
	key := name + "\x00" + string(buf[:])
	return xxhash.Sum64String(key), true
}

func namePartFingerprint(arena *cache.FileNodes, h cache.Handle) (uint64, bool) {
	n := arena.Get(h)
	if n == nil {
		return 0, false
	}
	name := arena.Pool().Deref(n.Name)
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	return xxhash.Sum64String(strings.ToLower(name)), true
}

func sizeFingerprint(arena *cache.FileNodes, h cache.Handle) (uint64, bool) {
	n := arena.Get(h)
	if n == nil || !n.Metadata.IsSome() {
		return 0, false
	}
	var buf [8]byte
	putUint64(buf[:], n.Metadata.Size())
	return xxhash.Sum64(buf[:]), true
}

func putUint32(b []byte, v uint32) {
	b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func (ctx *EvalContext) duplicatePredicate(fp fingerprintFn) nodePredicate {
	groups := map[uint64]int{}
	for _, h := range ctx.Arena.AllHandles() {
		key, ok := fp(ctx.Arena, h)
		if !ok {
			continue
		}
		groups[key]++
	}
	return func(h cache.Handle) (bool, error) {
		key, ok := fp(ctx.Arena, h)
		if !ok {
			return false, nil
		}
		return groups[key] > 1, nil
	}
}
