package feasp

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	ferrors "github.com/conneroisu/feasp/internal/errors"
	"github.com/conneroisu/feasp/pkg/template"
)

// Templates loads and caches templates from a file system. Cached entries
// stay until Invalidate is called.
type Templates struct {
	fsys fs.FS
	opts []template.Option

	mu    sync.RWMutex
	cache map[string]*template.Template
}

// NewTemplates returns a loader reading from fsys. A nil fsys has no
// templates.
func NewTemplates(fsys fs.FS, opts ...template.Option) *Templates {
	return &Templates{
		fsys:  fsys,
		opts:  opts,
		cache: make(map[string]*template.Template),
	}
}

func cleanTemplateName(name string) (string, bool) {
	name = path.Clean("/" + strings.TrimSpace(name))
	name = strings.TrimPrefix(name, "/")
	return name, name != "" && name != "." && fs.ValidPath(name)
}

// Get returns the parsed template, loading it on first use.
func (t *Templates) Get(name string) (*template.Template, error) {
	clean, ok := cleanTemplateName(name)
	if !ok {
		return nil, ferrors.NewTemplateError("TEMPLATE_NAME", fmt.Sprintf("invalid template name %q", name), nil)
	}

	t.mu.RLock()
	tpl, ok := t.cache[clean]
	t.mu.RUnlock()
	if ok {
		return tpl, nil
	}

	if t.fsys == nil {
		return nil, ferrors.NewTemplateError("TEMPLATE_NOT_FOUND", "no template directory configured", nil)
	}
	src, err := fs.ReadFile(t.fsys, clean)
	if err != nil {
		return nil, ferrors.NewTemplateError("TEMPLATE_NOT_FOUND", fmt.Sprintf("loading template %s", clean), err).
			WithLocation(clean, 0)
	}

	tpl, err = template.Parse(clean, string(src), t.opts...)
	if err != nil {
		return nil, templateError("TEMPLATE_PARSE", err)
	}

	t.mu.Lock()
	t.cache[clean] = tpl
	t.mu.Unlock()

	return tpl, nil
}

// Render renders the named template with data.
func (t *Templates) Render(name string, data any) (string, error) {
	tpl, err := t.Get(name)
	if err != nil {
		return "", err
	}
	out, err := tpl.Render(data)
	if err != nil {
		return "", templateError("TEMPLATE_EXEC", err)
	}
	return out, nil
}

// Invalidate drops cached templates. With no names the whole cache is
// cleared.
func (t *Templates) Invalidate(names ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(names) == 0 {
		clear(t.cache)
		return
	}
	for _, name := range names {
		if clean, ok := cleanTemplateName(name); ok {
			delete(t.cache, clean)
		}
	}
}

// Cached returns the number of parsed templates held.
func (t *Templates) Cached() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.cache)
}

// Names lists the .html files available to Get.
func (t *Templates) Names() ([]string, error) {
	if t.fsys == nil {
		return nil, nil
	}
	var names []string
	err := fs.WalkDir(t.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(p, ".html") {
			names = append(names, p)
		}
		return nil
	})
	sort.Strings(names)
	return names, err
}

// templateError converts a template package error into a FeaspError that
// remembers where it happened.
func templateError(code string, err error) error {
	var perr *template.ParseError
	if errors.As(err, &perr) {
		return ferrors.NewTemplateError(code, perr.Msg, err).WithLocation(perr.Name, perr.Line)
	}
	var eerr *template.ExecError
	if errors.As(err, &eerr) {
		return ferrors.NewTemplateError(code, eerr.Err.Error(), err).WithLocation(eerr.Name, eerr.Line)
	}
	return ferrors.NewTemplateError(code, "rendering template", err)
}
