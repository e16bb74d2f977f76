// Package template implements Feasp's small template language.
//
// A template is HTML with three kinds of tags:
//
//	{{ user.name | upper }}            output, HTML-escaped unless | safe
//	{% for name in names %}...{% endfor %}
//	{% if logged_in %}...{% elif guest %}...{% else %}...{% endif %}
//	{# comment #}
//
// Names resolve against loop variables first and then the data passed to
// Execute. Dotted names look up map keys, struct fields, zero-argument
// methods and slice indices. A name that does not resolve renders as the
// empty string. Blocks nest to any depth.
package template

import (
	"io"
	"strings"
)

// Template is a parsed template. It is safe for concurrent use once parsed.
type Template struct {
	name       string
	root       []node
	filters    map[string]Filter
	autoescape bool
}

// Option configures a Template at parse time.
type Option func(*Template)

// WithFilter registers an additional filter, replacing a builtin of the same
// name.
func WithFilter(name string, f Filter) Option {
	return func(t *Template) {
		t.filters[name] = f
	}
}

// WithoutAutoescape disables HTML escaping of output tags.
func WithoutAutoescape() Option {
	return func(t *Template) {
		t.autoescape = false
	}
}

// Parse parses text into a template named name. The name only appears in
// error messages.
func Parse(name, text string, opts ...Option) (*Template, error) {
	t := &Template{
		name:       name,
		filters:    make(map[string]Filter, len(builtinFilters)),
		autoescape: true,
	}
	for k, f := range builtinFilters {
		t.filters[k] = f
	}
	for _, opt := range opts {
		opt(t)
	}

	tokens, err := lex(name, text)
	if err != nil {
		return nil, err
	}

	p := &parser{name: name, tokens: tokens}
	root, _, _, err := p.parseList()
	if err != nil {
		return nil, err
	}
	t.root = root

	return t, nil
}

// Must panics if err is non-nil.
func Must(t *Template, err error) *Template {
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the template's name.
func (t *Template) Name() string {
	return t.name
}

// Execute renders the template with data to w. data is usually a
// map[string]any or a struct.
func (t *Template) Execute(w io.Writer, data any) error {
	s := &state{t: t, w: w, root: data}
	return s.renderList(t.root)
}

// Render renders the template to a string.
func (t *Template) Render(data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Render parses and renders text in one step.
func Render(text string, data any) (string, error) {
	t, err := Parse("inline", text)
	if err != nil {
		return "", err
	}
	return t.Render(data)
}
