package template

import (
	"fmt"
	"strings"
)

type node interface {
	render(s *state) error
}

type textNode struct {
	text string
}

type outputNode struct {
	expr    expr
	filters []filterCall
	line    int
}

type forNode struct {
	keyVar string // empty for single-variable loops
	valVar string
	iter   expr
	body   []node
	empty  []node
	line   int
}

type ifBranch struct {
	cond expr
	body []node
}

type ifNode struct {
	branches []ifBranch
	orElse   []node
	line     int
}

type parser struct {
	name   string
	tokens []token
	pos    int
}

func (p *parser) errorf(line int, format string, args ...any) error {
	return &ParseError{Name: p.name, Line: line, Msg: fmt.Sprintf(format, args...)}
}

// parseList parses nodes until EOF or one of the stop keywords. It returns
// the keyword that ended the list and the tag token carrying it.
func (p *parser) parseList(stops ...string) ([]node, string, token, error) {
	var nodes []node

	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		p.pos++

		switch tok.kind {
		case tokenText:
			nodes = append(nodes, &textNode{text: tok.val})

		case tokenComment:

		case tokenOutput:
			n, err := p.parseOutput(tok)
			if err != nil {
				return nil, "", tok, err
			}
			nodes = append(nodes, n)

		case tokenTag:
			keyword, rest := splitKeyword(tok.val)
			for _, stop := range stops {
				if keyword == stop {
					return nodes, keyword, tok, nil
				}
			}

			switch keyword {
			case "for":
				n, err := p.parseFor(tok, rest)
				if err != nil {
					return nil, "", tok, err
				}
				nodes = append(nodes, n)
			case "if":
				n, err := p.parseIf(tok, rest)
				if err != nil {
					return nil, "", tok, err
				}
				nodes = append(nodes, n)
			case "endfor", "endif", "else", "elif", "empty":
				return nil, "", tok, p.errorf(tok.line, "unexpected {%% %s %%}", keyword)
			default:
				return nil, "", tok, p.errorf(tok.line, "unknown tag %q", keyword)
			}
		}
	}

	if len(stops) > 0 {
		return nil, "", token{}, p.errorf(p.lastLine(), "unexpected end of template, expected {%% %s %%}", stops[len(stops)-1])
	}
	return nodes, "", token{}, nil
}

func (p *parser) lastLine() int {
	if len(p.tokens) == 0 {
		return 1
	}
	last := p.tokens[len(p.tokens)-1]
	return last.line + strings.Count(last.val, "\n")
}

func (p *parser) parseOutput(tok token) (node, error) {
	if tok.val == "" {
		return nil, p.errorf(tok.line, "empty {{ }}")
	}

	parts := splitOutside(tok.val, '|')
	e, err := parseExpr(parts[0])
	if err != nil {
		return nil, p.errorf(tok.line, "%v", err)
	}

	n := &outputNode{expr: e, line: tok.line}
	for _, raw := range parts[1:] {
		call, err := parseFilter(strings.TrimSpace(raw))
		if err != nil {
			return nil, p.errorf(tok.line, "%v", err)
		}
		n.filters = append(n.filters, call)
	}
	return n, nil
}

// parseFor handles "for x in xs" and "for k, v in m".
func (p *parser) parseFor(tok token, rest string) (node, error) {
	head, iterSrc, ok := strings.Cut(rest, " in ")
	if !ok {
		return nil, p.errorf(tok.line, "malformed for tag %q", tok.val)
	}

	n := &forNode{line: tok.line}
	vars := strings.Split(head, ",")
	switch len(vars) {
	case 1:
		n.valVar = strings.TrimSpace(vars[0])
	case 2:
		n.keyVar = strings.TrimSpace(vars[0])
		n.valVar = strings.TrimSpace(vars[1])
	default:
		return nil, p.errorf(tok.line, "for tag takes one or two loop variables")
	}
	for _, v := range []string{n.keyVar, n.valVar} {
		if v != "" && (!validPath(v) || strings.Contains(v, ".")) {
			return nil, p.errorf(tok.line, "invalid loop variable %q", v)
		}
	}
	if n.valVar == "" {
		return nil, p.errorf(tok.line, "missing loop variable")
	}

	iter, err := parseExpr(iterSrc)
	if err != nil {
		return nil, p.errorf(tok.line, "%v", err)
	}
	n.iter = iter

	body, stop, _, err := p.parseList("empty", "endfor")
	if err != nil {
		return nil, err
	}
	n.body = body

	if stop == "empty" {
		n.empty, _, _, err = p.parseList("endfor")
		if err != nil {
			return nil, err
		}
	}

	return n, nil
}

func (p *parser) parseIf(tok token, rest string) (node, error) {
	n := &ifNode{line: tok.line}
	condSrc := rest

	for {
		cond, err := parseExpr(condSrc)
		if err != nil {
			return nil, p.errorf(tok.line, "%v", err)
		}

		body, stop, stopTok, err := p.parseList("elif", "else", "endif")
		if err != nil {
			return nil, err
		}
		n.branches = append(n.branches, ifBranch{cond: cond, body: body})

		switch stop {
		case "endif":
			return n, nil
		case "else":
			n.orElse, _, _, err = p.parseList("endif")
			if err != nil {
				return nil, err
			}
			return n, nil
		case "elif":
			_, condSrc = splitKeyword(stopTok.val)
			tok = stopTok
		}
	}
}

func splitKeyword(s string) (string, string) {
	keyword, rest, _ := strings.Cut(strings.TrimSpace(s), " ")
	return keyword, strings.TrimSpace(rest)
}

// ParseError describes a syntax error in a template.
type ParseError struct {
	Name string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Name, e.Line, e.Msg)
}
