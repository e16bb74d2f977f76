package template

import (
	"fmt"
	"strconv"
	"strings"
)

// expr is an evaluable expression inside {{ }} or an if/for tag.
type expr interface {
	eval(s *state) (any, error)
	String() string
}

// pathExpr looks up a dotted name such as user.name or items.0.
type pathExpr struct {
	parts []string
}

func (e *pathExpr) eval(s *state) (any, error) {
	value, ok := s.lookup(e.parts[0])
	if !ok {
		return nil, nil
	}
	for _, part := range e.parts[1:] {
		next, err := resolve(value, part)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e, err)
		}
		if next == nil {
			return nil, nil
		}
		value = next
	}
	return value, nil
}

func (e *pathExpr) String() string { return strings.Join(e.parts, ".") }

type literalExpr struct {
	val any
	src string
}

func (e *literalExpr) eval(*state) (any, error) { return e.val, nil }
func (e *literalExpr) String() string         { return e.src }

type notExpr struct {
	x expr
}

func (e *notExpr) eval(s *state) (any, error) {
	v, err := e.x.eval(s)
	if err != nil {
		return nil, err
	}
	return !truthy(v), nil
}

func (e *notExpr) String() string { return "not " + e.x.String() }

type logicExpr struct {
	op   string // "and" or "or"
	l, r expr
}

func (e *logicExpr) eval(s *state) (any, error) {
	l, err := e.l.eval(s)
	if err != nil {
		return nil, err
	}
	if e.op == "and" && !truthy(l) {
		return false, nil
	}
	if e.op == "or" && truthy(l) {
		return true, nil
	}
	r, err := e.r.eval(s)
	if err != nil {
		return nil, err
	}
	return truthy(r), nil
}

func (e *logicExpr) String() string { return e.l.String() + " " + e.op + " " + e.r.String() }

type compareExpr struct {
	op   string
	l, r expr
}

func (e *compareExpr) eval(s *state) (any, error) {
	l, err := e.l.eval(s)
	if err != nil {
		return nil, err
	}
	r, err := e.r.eval(s)
	if err != nil {
		return nil, err
	}
	return compare(e.op, l, r)
}

func (e *compareExpr) String() string { return e.l.String() + " " + e.op + " " + e.r.String() }

// exprParser is a precedence-climbing parser over whitespace separated
// words: or < and < not < comparison < operand.
type exprParser struct {
	words []string
	pos   int
}

func parseExpr(src string) (expr, error) {
	words, err := splitWords(src)
	if err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("empty expression")
	}
	p := &exprParser{words: words}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.words) {
		return nil, fmt.Errorf("unexpected %q in expression %q", p.words[p.pos], src)
	}
	return e, nil
}

func (p *exprParser) peek() string {
	if p.pos < len(p.words) {
		return p.words[p.pos]
	}
	return ""
}

func (p *exprParser) next() string {
	w := p.peek()
	p.pos++
	return w
}

func (p *exprParser) parseOr() (expr, error) {
	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek() == "or" {
		p.next()
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = &logicExpr{op: "or", l: l, r: r}
	}
	return l, nil
}

func (p *exprParser) parseAnd() (expr, error) {
	l, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek() == "and" {
		p.next()
		r, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		l = &logicExpr{op: "and", l: l, r: r}
	}
	return l, nil
}

func (p *exprParser) parseNot() (expr, error) {
	if p.peek() == "not" {
		p.next()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &notExpr{x: x}, nil
	}
	return p.parseCompare()
}

func (p *exprParser) parseCompare() (expr, error) {
	l, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	switch op := p.peek(); op {
	case "==", "!=", "<", "<=", ">", ">=":
		p.next()
		r, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return &compareExpr{op: op, l: l, r: r}, nil
	}
	return l, nil
}

func (p *exprParser) parseOperand() (expr, error) {
	w := p.next()
	if w == "" {
		return nil, fmt.Errorf("missing operand")
	}
	return parseOperand(w)
}

// parseOperand parses a single literal or dotted path.
func parseOperand(w string) (expr, error) {
	switch {
	case len(w) >= 2 && (w[0] == '"' || w[0] == '\'') && w[len(w)-1] == w[0]:
		return &literalExpr{val: w[1 : len(w)-1], src: w}, nil
	case w == "true" || w == "True":
		return &literalExpr{val: true, src: w}, nil
	case w == "false" || w == "False":
		return &literalExpr{val: false, src: w}, nil
	case w == "none" || w == "None" || w == "nil":
		return &literalExpr{val: nil, src: w}, nil
	}

	if n, err := strconv.ParseInt(w, 10, 64); err == nil {
		return &literalExpr{val: n, src: w}, nil
	}
	if f, err := strconv.ParseFloat(w, 64); err == nil {
		return &literalExpr{val: f, src: w}, nil
	}

	if !validPath(w) {
		return nil, fmt.Errorf("invalid name %q", w)
	}
	return &pathExpr{parts: strings.Split(w, ".")}, nil
}

func validPath(w string) bool {
	for _, part := range strings.Split(w, ".") {
		if part == "" {
			return false
		}
		for i, c := range part {
			switch {
			case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
			case c >= '0' && c <= '9':
				if i == 0 && part == w {
					return false
				}
			default:
				return false
			}
		}
	}
	return true
}

// splitWords splits on whitespace, keeping quoted strings whole.
func splitWords(src string) ([]string, error) {
	var words []string
	var cur strings.Builder
	var quote byte

	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}

	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case quote != 0:
			cur.WriteByte(c)
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
			cur.WriteByte(c)
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated string in %q", src)
	}
	flush()
	return words, nil
}

// splitOutside splits s on sep, ignoring separators inside quotes.
func splitOutside(s string, sep byte) []string {
	var parts []string
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == sep:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}
