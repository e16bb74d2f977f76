package template

import (
	"fmt"
	"io"

	"golang.org/x/net/html"
)

// state holds the scopes of one render. Loop scopes are pushed on top of the
// root data.
type state struct {
	t      *Template
	w      io.Writer
	root   any
	scopes []map[string]any
}

func (s *state) lookup(name string) (any, bool) {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if v, ok := s.scopes[i][name]; ok {
			return v, true
		}
	}
	v, err := resolve(s.root, name)
	if err != nil || v == nil {
		return nil, false
	}
	return v, true
}

func (s *state) errorf(line int, format string, args ...any) error {
	return &ExecError{Name: s.t.name, Line: line, Err: fmt.Errorf(format, args...)}
}

func (s *state) renderList(nodes []node) error {
	for _, n := range nodes {
		if err := n.render(s); err != nil {
			return err
		}
	}
	return nil
}

func (n *textNode) render(s *state) error {
	_, err := io.WriteString(s.w, n.text)
	return err
}

func (n *outputNode) render(s *state) error {
	value, err := n.expr.eval(s)
	if err != nil {
		return s.errorf(n.line, "%v", err)
	}

	for _, call := range n.filters {
		filter, ok := s.t.filters[call.name]
		if !ok {
			return s.errorf(n.line, "unknown filter %q", call.name)
		}
		var arg any
		if call.arg != nil {
			if arg, err = call.arg.eval(s); err != nil {
				return s.errorf(n.line, "%v", err)
			}
		}
		if value, err = filter(value, arg); err != nil {
			return s.errorf(n.line, "filter %s: %v", call.name, err)
		}
	}

	var out string
	if safe, ok := value.(safeString); ok {
		out = string(safe)
	} else if s.t.autoescape {
		out = html.EscapeString(toString(value))
	} else {
		out = toString(value)
	}

	_, err = io.WriteString(s.w, out)
	return err
}

func (n *forNode) render(s *state) error {
	iterValue, err := n.iter.eval(s)
	if err != nil {
		return s.errorf(n.line, "%v", err)
	}
	items, err := iterate(iterValue)
	if err != nil {
		return s.errorf(n.line, "%v", err)
	}

	if len(items) == 0 {
		return s.renderList(n.empty)
	}

	scope := make(map[string]any, 3)
	s.scopes = append(s.scopes, scope)
	defer func() { s.scopes = s.scopes[:len(s.scopes)-1] }()

	for i, item := range items {
		if n.keyVar != "" {
			scope[n.keyVar] = item.key
		}
		scope[n.valVar] = item.value
		scope["loop"] = map[string]any{
			"index":  i + 1,
			"index0": i,
			"first":  i == 0,
			"last":   i == len(items)-1,
			"length": len(items),
		}
		if err := s.renderList(n.body); err != nil {
			return err
		}
	}
	return nil
}

func (n *ifNode) render(s *state) error {
	for _, branch := range n.branches {
		v, err := branch.cond.eval(s)
		if err != nil {
			return s.errorf(n.line, "%v", err)
		}
		if truthy(v) {
			return s.renderList(branch.body)
		}
	}
	return s.renderList(n.orElse)
}

// ExecError describes a failure while rendering a parsed template.
type ExecError struct {
	Name string
	Line int
	Err  error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Name, e.Line, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }
