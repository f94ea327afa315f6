package query

import (
	"regexp"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cardinalsearch/cardinal/cache"
	"github.com/cardinalsearch/cardinal/cancel"
	"github.com/cardinalsearch/cardinal/cardinalerrors"
	"github.com/cardinalsearch/cardinal/namepool"
)

// scanCheckInterval mirrors namepool's cancellation granularity (spec.md
// §4.7: "checks the token... within any scan that iterates more than
// ~1,024 nodes").
const scanCheckInterval = 1024

// EvalOptions mirrors the public SearchOptions from spec.md §4.10.
type EvalOptions struct {
	CaseInsensitive bool
}

// EvalContext binds an evaluation to one arena/name-index snapshot. It also
// owns a small LRU of compiled regex/glob matchers, so a pattern is compiled
// once per EvalContext. The LRU lives only as long as its EvalContext;
// SearchCache builds a new EvalContext for every search, so compiled
// patterns are not shared between searches.
type EvalContext struct {
	Arena   *cache.FileNodes
	Index   *cache.NameIndex
	Options EvalOptions

	compiled *lru.Cache[string, any]
}

// NewEvalContext builds an EvalContext over the given arena/index snapshot.
func NewEvalContext(arena *cache.FileNodes, index *cache.NameIndex, opts EvalOptions) *EvalContext {
	compiled, _ := lru.New[string, any](256)
	return &EvalContext{Arena: arena, Index: index, Options: opts, compiled: compiled}
}

func (ctx *EvalContext) less(a, b cache.Handle) bool {
	pa, _ := ctx.Arena.NodePath(a)
	pb, _ := ctx.Arena.NodePath(b)
	return pa < pb
}

func (ctx *EvalContext) sortByPath(handles []cache.Handle) {
	sort.Slice(handles, func(i, j int) bool { return ctx.less(handles[i], handles[j]) })
}

// Evaluate turns expr (already Optimize'd) into the sorted-by-path list of
// matching node handles. ok is false iff token observed cancellation
// mid-evaluation (spec.md §4.7); a non-nil err is a non-cancellation
// failure (bad regex, malformed comparison value) that the caller should
// surface and let the user correct (spec.md §7's EvaluateError).
func (ctx *EvalContext) Evaluate(expr Expr, token cancel.Token) (handles []cache.Handle, ok bool, err error) {
	if token.IsCancelled() {
		return nil, false, nil
	}

	switch e := expr.(type) {
	case Empty:
		all := append([]cache.Handle(nil), ctx.Arena.AllHandles()...)
		ctx.sortByPath(all)
		return all, true, nil
	case TermExpr:
		return ctx.evaluateTerm(e.Term, token)
	case NotExpr:
		inner, ok, err := ctx.Evaluate(e.Inner, token)
		if err != nil || !ok {
			return nil, ok, err
		}
		return ctx.complement(inner), true, nil
	case AndExpr:
		return ctx.evaluateAnd(e.Parts, token)
	case OrExpr:
		return ctx.evaluateOr(e.Parts, token)
	default:
		return nil, true, cardinalerrors.NewEvaluateError(nil, "unrecognized expression node %T", expr)
	}
}

func (ctx *EvalContext) evaluateAnd(parts []Expr, token cancel.Token) ([]cache.Handle, bool, error) {
	var acc []cache.Handle
	for i, part := range parts {
		if token.IsCancelled() {
			return nil, false, nil
		}
		res, ok, err := ctx.Evaluate(part, token)
		if err != nil || !ok {
			return nil, ok, err
		}
		if i == 0 {
			acc = res
			continue
		}
		acc = mergeIntersect(acc, res, ctx.less)
	}
	return acc, true, nil
}

func (ctx *EvalContext) evaluateOr(parts []Expr, token cancel.Token) ([]cache.Handle, bool, error) {
	var acc []cache.Handle
	for i, part := range parts {
		if token.IsCancelled() {
			return nil, false, nil
		}
		res, ok, err := ctx.Evaluate(part, token)
		if err != nil || !ok {
			return nil, ok, err
		}
		if i == 0 {
			acc = res
			continue
		}
		acc = mergeUnion(acc, res, ctx.less)
	}
	return acc, true, nil
}

// complement returns every live handle not in matched (Not's set
// complement, spec.md §4.7).
func (ctx *EvalContext) complement(matched []cache.Handle) []cache.Handle {
	in := make(map[cache.Handle]struct{}, len(matched))
	for _, h := range matched {
		in[h] = struct{}{}
	}
	all := ctx.Arena.AllHandles()
	out := make([]cache.Handle, 0, len(all))
	for _, h := range all {
		if _, found := in[h]; !found {
			out = append(out, h)
		}
	}
	ctx.sortByPath(out)
	return out
}

func (ctx *EvalContext) evaluateTerm(term Term, token cancel.Token) ([]cache.Handle, bool, error) {
	switch t := term.(type) {
	case Word:
		return ctx.evaluateWord(t, token)
	case Phrase:
		names, ok := ctx.Arena.Pool().SearchExact(t.Text, ctx.Options.CaseInsensitive, token)
		if !ok {
			return nil, false, nil
		}
		return ctx.handlesForNames(names), true, nil
	case Regex:
		re, err := ctx.compileRegex(t.Pattern)
		if err != nil {
			return nil, true, err
		}
		names, ok := ctx.Arena.Pool().SearchRegex(re, token)
		if !ok {
			return nil, false, nil
		}
		return ctx.handlesForNames(names), true, nil
	case FilterTerm:
		return ctx.evaluateFilter(t, token)
	default:
		return nil, true, cardinalerrors.NewEvaluateError(nil, "unrecognized term %T", term)
	}
}

func (ctx *EvalContext) evaluateWord(w Word, token cancel.Token) ([]cache.Handle, bool, error) {
	if containsWildcard(w.Text) {
		pattern := w.Text
		if ctx.Options.CaseInsensitive {
			// SearchGlob lowercases each name before matching, so the
			// pattern is lowercased too.
			pattern = strings.ToLower(pattern)
		}
		match, err := ctx.compileWildcard(pattern)
		if err != nil {
			return nil, true, err
		}
		names, ok := ctx.Arena.Pool().SearchGlob(match, ctx.Options.CaseInsensitive, token)
		if !ok {
			return nil, false, nil
		}
		return ctx.handlesForNames(names), true, nil
	}
	names, ok := ctx.Arena.Pool().SearchSubstr(w.Text, ctx.Options.CaseInsensitive, token)
	if !ok {
		return nil, false, nil
	}
	return ctx.handlesForNames(names), true, nil
}

func containsWildcard(s string) bool {
	for _, r := range s {
		if r == '*' {
			return true
		}
	}
	return false
}

// compileWildcard compiles a '*'-style word pattern into a glob match
// predicate over a single path segment (spec.md §4.7's "Word containing
// '*'"), cached in this EvalContext's LRU (shared with compileRegex) so the
// same pattern is not recompiled within one EvalContext.
func (ctx *EvalContext) compileWildcard(pattern string) (func(string) bool, error) {
	cacheKey := "glob:" + pattern
	if cached, ok := ctx.compiled.Get(cacheKey); ok {
		return cached.(glob.Glob).Match, nil
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, cardinalerrors.NewEvaluateError(err, "invalid wildcard pattern %q", pattern)
	}
	ctx.compiled.Add(cacheKey, g)
	return g.Match, nil
}

func (ctx *EvalContext) compileRegex(pattern string) (*regexp.Regexp, error) {
	cacheKey := "re:" + pattern
	if cached, ok := ctx.compiled.Get(cacheKey); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, cardinalerrors.NewEvaluateError(err, "invalid regex pattern %q", pattern)
	}
	ctx.compiled.Add(cacheKey, re)
	return re, nil
}

// handlesForNames collects every node handle carrying any of names (each
// name's entries are already path-sorted; since a node carries exactly one
// name, there is no cross-name overlap to dedupe) and returns them in path
// order so the result composes with mergeIntersect/mergeUnion.
func (ctx *EvalContext) handlesForNames(names []namepool.Handle) []cache.Handle {
	var out []cache.Handle
	for _, name := range names {
		entry := ctx.Index.Get(name)
		if entry == nil {
			continue
		}
		out = append(out, entry.Handles()...)
	}
	ctx.sortByPath(out)
	return out
}

func (ctx *EvalContext) evaluateFilter(f FilterTerm, token cancel.Token) ([]cache.Handle, bool, error) {
	pred, err := ctx.buildFilterPredicate(f)
	if err != nil {
		return nil, true, err
	}
	return ctx.scanArena(pred, token)
}

// scanArena applies pred to every live handle, checking cancellation every
// scanCheckInterval handles (spec.md §4.7), and returns matches in path
// order.
func (ctx *EvalContext) scanArena(pred nodePredicate, token cancel.Token) ([]cache.Handle, bool, error) {
	all := ctx.Arena.AllHandles()
	out := make([]cache.Handle, 0, len(all))
	for i, h := range all {
		if i%scanCheckInterval == 0 && token.IsCancelled() {
			return nil, false, nil
		}
		matched, err := pred(h)
		if err != nil {
			return nil, true, err
		}
		if matched {
			out = append(out, h)
		}
	}
	ctx.sortByPath(out)
	return out, true, nil
}

// mergeIntersect linearly merges two handle lists sorted by less into their
// intersection (spec.md §4.7's "intersection is a linear merge when both
// operands are materialized as sorted handle lists").
func mergeIntersect(a, b []cache.Handle, less func(x, y cache.Handle) bool) []cache.Handle {
	out := make([]cache.Handle, 0, minInt(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case less(a[i], b[j]):
			i++
		default:
			j++
		}
	}
	return out
}

// mergeUnion linearly merges two handle lists sorted by less into their
// union, preserving order and dropping duplicates.
func mergeUnion(a, b []cache.Handle, less func(x, y cache.Handle) bool) []cache.Handle {
	out := make([]cache.Handle, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case less(a[i], b[j]):
			out = append(out, a[i])
			i++
		default:
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
