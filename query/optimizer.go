package query

// Optimize rewrites expr bottom-up into canonical form (spec.md §4.6),
// grounded on original_source/cardinal-syntax's tests/{optimizer,
// optimizer_metadata_tail}.rs: Empty operands are elided from And;
// nested And/Or is flattened; And's operands are stable-partitioned so
// every non-filter term precedes every filter term, each group keeping its
// original relative order; Or collapses to Empty if any operand is Empty
// (not the classic identity — this matches the observed "a missing operand
// invalidates the disjunction" semantic); Not(Empty) is Empty and
// Not(Not(e)) is e.
func Optimize(expr Expr) Expr {
	switch e := expr.(type) {
	case Empty:
		return e
	case TermExpr:
		return e
	case NotExpr:
		inner := Optimize(e.Inner)
		if _, ok := inner.(Empty); ok {
			return Empty{}
		}
		if innerNot, ok := inner.(NotExpr); ok {
			return innerNot.Inner
		}
		return NotExpr{Inner: inner}
	case AndExpr:
		return optimizeAnd(e)
	case OrExpr:
		return optimizeOr(e)
	default:
		return expr
	}
}

func optimizeAnd(e AndExpr) Expr {
	var flat []Expr
	for _, child := range e.Parts {
		child = Optimize(child)
		if _, ok := child.(Empty); ok {
			continue
		}
		if nested, ok := child.(AndExpr); ok {
			flat = append(flat, nested.Parts...)
		} else {
			flat = append(flat, child)
		}
	}

	switch len(flat) {
	case 0:
		return Empty{}
	case 1:
		return flat[0]
	}

	var nonFilters, filters []Expr
	for _, child := range flat {
		if isFilterTerm(child) {
			filters = append(filters, child)
		} else {
			nonFilters = append(nonFilters, child)
		}
	}
	ordered := append(nonFilters, filters...)
	return AndExpr{Parts: ordered}
}

func isFilterTerm(e Expr) bool {
	t, ok := e.(TermExpr)
	if !ok {
		return false
	}
	_, isFilter := t.Term.(FilterTerm)
	return isFilter
}

func optimizeOr(e OrExpr) Expr {
	var flat []Expr
	anyEmpty := false
	for _, child := range e.Parts {
		child = Optimize(child)
		if _, ok := child.(Empty); ok {
			anyEmpty = true
			continue
		}
		if nested, ok := child.(OrExpr); ok {
			flat = append(flat, nested.Parts...)
		} else {
			flat = append(flat, child)
		}
	}

	if anyEmpty {
		return Empty{}
	}

	switch len(flat) {
	case 0:
		return Empty{}
	case 1:
		return flat[0]
	}
	return OrExpr{Parts: flat}
}
