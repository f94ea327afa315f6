package query

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/cardinalsearch/cardinal/cardinalerrors"
)

// Parse parses input into an (unoptimized) expression tree (spec.md §4.5).
// Call Optimize on the result before evaluation.
func Parse(input string) (Expr, error) {
	p := &parser{runes: []rune(input)}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	return expr, nil
}

type parser struct {
	runes []rune
	pos   int
}

func (p *parser) eof() bool { return p.pos >= len(p.runes) }

func (p *parser) peek() rune {
	if p.eof() {
		return 0
	}
	return p.runes[p.pos]
}

func (p *parser) peekAt(offset int) rune {
	i := p.pos + offset
	if i < 0 || i >= len(p.runes) {
		return 0
	}
	return p.runes[i]
}

const hardDelims = " \t\n\r()<>|\""

func isHardDelim(r rune) bool { return r != 0 && strings.ContainsRune(hardDelims, r) }

func isIdentChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func (p *parser) skipWhitespace() {
	for !p.eof() {
		switch p.peek() {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

// hasWhitespaceAhead reports whether skipping whitespace from the current
// position would actually advance — i.e. whether there is at least one
// whitespace character right here.
func (p *parser) hasWhitespaceAhead() bool {
	switch p.peek() {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}

// matchKeyword reports whether word (case-insensitive) appears at the
// current position with a proper trailing boundary (not followed by an
// ident char), and consumes it if so.
func (p *parser) matchKeyword(word string) bool {
	wr := []rune(word)
	if p.pos+len(wr) > len(p.runes) {
		return false
	}
	for i, r := range wr {
		if unicode.ToLower(p.runes[p.pos+i]) != unicode.ToLower(r) {
			return false
		}
	}
	after := p.peekAt(len(wr))
	if isIdentChar(after) {
		return false
	}
	p.pos += len(wr)
	return true
}

// matchKeywordColon reports whether word (case-insensitive) appears at the
// current position immediately followed by ':', consuming both if so.
func (p *parser) matchKeywordColon(word string) bool {
	wr := []rune(word)
	if p.pos+len(wr) >= len(p.runes) {
		return false
	}
	for i, r := range wr {
		if unicode.ToLower(p.runes[p.pos+i]) != unicode.ToLower(r) {
			return false
		}
	}
	if p.runes[p.pos+len(wr)] != ':' {
		return false
	}
	p.pos += len(wr) + 1
	return true
}

// parseOr implements: or := and ( ('|' | 'OR') and )*
func (p *parser) parseOr() (Expr, error) {
	parts := []Expr{}
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	parts = append(parts, first)

	for {
		save := p.pos
		p.skipWhitespace()
		if p.peek() == '|' {
			p.pos++
		} else if p.matchKeyword("OR") {
			// consumed
		} else {
			p.pos = save
			break
		}
		p.skipWhitespace()
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		parts = append(parts, next)
	}

	if len(parts) == 1 {
		return parts[0], nil
	}
	return OrExpr{Parts: parts}, nil
}

// parseAnd implements: and := term ( (ws | 'AND') term )*
func (p *parser) parseAnd() (Expr, error) {
	parts := []Expr{}
	first, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	parts = append(parts, first)

	for {
		save := p.pos
		sawWS := false
		for p.hasWhitespaceAhead() {
			p.pos++
			sawWS = true
		}

		if p.matchKeyword("AND") {
			p.skipWhitespace()
			next, err := p.parseNot()
			if err != nil {
				return nil, err
			}
			parts = append(parts, next)
			continue
		}

		if p.atOrBoundary() {
			p.pos = save
			break
		}

		if sawWS && !p.eof() {
			next, err := p.parseNot()
			if err != nil {
				return nil, err
			}
			parts = append(parts, next)
			continue
		}

		p.pos = save
		break
	}

	if len(parts) == 1 {
		return parts[0], nil
	}
	return AndExpr{Parts: parts}, nil
}

// atOrBoundary reports whether the current position is the start of an
// OR-separator, a group close, or end of input — all of which terminate an
// and-chain.
func (p *parser) atOrBoundary() bool {
	if p.eof() {
		return true
	}
	switch p.peek() {
	case '|', ')', '>':
		return true
	}
	save := p.pos
	isOr := p.matchKeyword("OR")
	p.pos = save
	return isOr
}

// atTermBoundary reports whether, at the current position (after skipping
// whitespace), no term can start here: end of input, a group-close
// delimiter, an OR-separator ('|'), or the AND/OR keyword. This is what
// lets an empty operand (e.g. the leading position of " AND ", or between
// consecutive '|' separators) parse as Expr::Empty rather than having the
// reserved keyword or delimiter misread as word text.
func (p *parser) atTermBoundary() bool {
	if p.eof() {
		return true
	}
	switch p.peek() {
	case '|', ')', '>':
		return true
	}
	save := p.pos
	isKeyword := p.matchKeyword("AND") || p.matchKeyword("OR")
	p.pos = save
	return isKeyword
}

// parseNot implements: not := ('!' | 'NOT') term, folding chains by parity.
func (p *parser) parseNot() (Expr, error) {
	p.skipWhitespace()
	if p.atTermBoundary() {
		return Empty{}, nil
	}

	negate := false
	for {
		if p.peek() == '!' {
			p.pos++
			negate = !negate
			p.skipWhitespace()
			continue
		}
		save := p.pos
		if p.matchKeyword("NOT") {
			negate = !negate
			p.skipWhitespace()
			continue
		}
		p.pos = save
		break
	}

	inner, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	if negate {
		return NotExpr{Inner: inner}, nil
	}
	return inner, nil
}

// parseAtom implements: atom := group | phrase | regex | filter | word
func (p *parser) parseAtom() (Expr, error) {
	p.skipWhitespace()

	if p.atTermBoundary() {
		return Empty{}, nil
	}

	switch p.peek() {
	case '(':
		return p.parseGroup('(', ')')
	case '<':
		return p.parseGroup('<', '>')
	case '"':
		text := p.readQuoted()
		return TermExpr{Term: Phrase{Text: text}}, nil
	}

	if p.matchKeywordColon("regex") {
		return p.parseRegex()
	}

	return p.parseFilterOrWord()
}

func (p *parser) parseGroup(open, close rune) (Expr, error) {
	p.pos++ // consume open
	inner, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	p.skipWhitespace()
	if p.peek() == close {
		p.pos++
	}
	return inner, nil
}

func (p *parser) parseRegex() (Expr, error) {
	p.skipWhitespace()
	var pattern string
	if p.peek() == '"' {
		pattern = p.readQuoted()
	} else {
		pattern = p.readRegexPattern()
	}
	if pattern == "" {
		return nil, cardinalerrors.NewParseError(p.pos, "regex filter requires a pattern")
	}
	return TermExpr{Term: Regex{Pattern: pattern}}, nil
}

// readRegexPattern reads an unquoted regex pattern, tracking '(' / ')'
// balance so a pattern containing its own parens (e.g. "foo(bar)") is read
// in full while the ')' or '>' closing an *enclosing* group is left
// unconsumed (original_source/cardinal-syntax's
// regex_term_respects_group_boundaries).
func (p *parser) readRegexPattern() string {
	var b strings.Builder
	depth := 0
	for !p.eof() {
		r := p.peek()
		switch {
		case r == '(':
			depth++
			b.WriteRune(r)
			p.pos++
		case r == ')':
			if depth > 0 {
				depth--
				b.WriteRune(r)
				p.pos++
			} else {
				return b.String()
			}
		case r == '>' && depth == 0:
			return b.String()
		case r == '|' && depth == 0:
			return b.String()
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			return b.String()
		default:
			b.WriteRune(r)
			p.pos++
		}
	}
	return b.String()
}

func (p *parser) readQuoted() string {
	p.pos++ // consume opening quote
	var b strings.Builder
	for !p.eof() && p.peek() != '"' {
		b.WriteRune(p.peek())
		p.pos++
	}
	if p.peek() == '"' {
		p.pos++
	}
	return b.String()
}

func (p *parser) parseFilterOrWord() (Expr, error) {
	start := p.pos
	for !p.eof() && isIdentChar(p.peek()) {
		p.pos++
	}
	ident := string(p.runes[start:p.pos])

	if !p.eof() && p.peek() == ':' && ident != "" {
		p.pos++ // consume ':'
		kind := NewFilterKind(ident)
		arg, err := p.parseFilterArgument(kind)
		if err != nil {
			return nil, err
		}
		return TermExpr{Term: FilterTerm{Kind: kind, Argument: arg}}, nil
	}

	// Not a filter: consume the rest of this word token.
	for !p.eof() && !isHardDelim(p.peek()) {
		p.pos++
	}
	word := string(p.runes[start:p.pos])
	if word == "" {
		// atTermBoundary guards every call site that reaches here, so an
		// empty word should not occur in practice; fall back to Empty
		// without consuming input rather than risk corrupting the stream.
		return Empty{}, nil
	}
	return TermExpr{Term: Word{Text: word}}, nil
}

func (p *parser) parseFilterArgument(kind FilterKind) (*FilterArgument, error) {
	// A leading '<' or '>' followed by more argument text is a comparison
	// operator (e.g. "size:>1gb"), not an angle-group delimiter.
	opStart := (p.peek() == '<' || p.peek() == '>') && p.peekAt(1) != 0 && !isHardDelim(p.peekAt(1))
	if p.eof() || (isHardDelim(p.peek()) && !opStart) {
		return nil, nil
	}

	if p.peek() == '"' {
		text := p.readQuoted()
		return &FilterArgument{Raw: text, Kind: ArgPhrase, Phrase: text}, nil
	}

	start := p.pos
	if opStart {
		p.pos++
	}
	for !p.eof() && !isHardDelim(p.peek()) {
		p.pos++
	}
	raw := string(p.runes[start:p.pos])
	return structureArgument(raw, kind), nil
}

func structureArgument(raw string, kind FilterKind) *FilterArgument {
	arg := &FilterArgument{Raw: raw}

	if strings.Contains(raw, ";") {
		arg.Kind = ArgList
		arg.List = strings.Split(raw, ";")
		return arg
	}

	if isDateFilterKind(kind) {
		if start, end, ok := detectHyphenDateRange(raw); ok {
			arg.Kind = ArgRange
			arg.RangeSep = RangeHyphen
			s, e := start, end
			arg.RangeStart, arg.RangeEnd = &s, &e
			return arg
		}
	}

	if strings.Contains(raw, "..") {
		arg.Kind = ArgRange
		arg.RangeSep = RangeDots
		idx := strings.Index(raw, "..")
		startStr := raw[:idx]
		endStr := raw[idx+2:]
		if startStr != "" {
			arg.RangeStart = &startStr
		}
		if endStr != "" {
			arg.RangeEnd = &endStr
		}
		return arg
	}

	for _, op := range []struct {
		prefix string
		op     ComparisonOp
	}{
		{"<=", OpLe}, {">=", OpGe}, {"!=", OpNe}, {"<", OpLt}, {"=", OpEq}, {">", OpGt},
	} {
		if strings.HasPrefix(raw, op.prefix) {
			arg.Kind = ArgComparison
			arg.ComparisonOp = op.op
			arg.ComparisonVal = raw[len(op.prefix):]
			return arg
		}
	}

	arg.Kind = ArgBare
	return arg
}

var dateTokenPattern = regexp.MustCompile(`(?i)^(?:\d{4}[/-]\d{1,2}[/-]\d{1,2}|today|yesterday|thisweek|pastweek|pastmonth)$`)

// detectHyphenDateRange tries every '-' position in raw (left to right) and
// accepts the first split where both halves fully match a recognized date
// token, so dates that themselves contain hyphens (e.g.
// "2022-01-01-2022-12-31") are split correctly (original_source/
// cardinal-syntax's date_filters_allow_hyphen_ranges_only_for_dates).
func detectHyphenDateRange(raw string) (start, end string, ok bool) {
	for i, r := range raw {
		if r != '-' {
			continue
		}
		left := raw[:i]
		right := raw[i+1:]
		if dateTokenPattern.MatchString(left) && dateTokenPattern.MatchString(right) {
			return left, right, true
		}
	}
	return "", "", false
}
