// Package feasp is a small web framework: register views on paths, and the
// App turns each request into a Response.
//
//	app := feasp.New(os.DirFS("."))
//	app.GET("/", func(c *feasp.Context) (any, error) {
//		return "Hello Feasp !", nil
//	})
//	http.ListenAndServe(":8000", app)
//
// Views return a string (HTML), []byte, a *Response, nil, or any value that
// encodes as JSON. Paths may hold variables: <name>, <string:name>,
// <int:id> and <path:rest>. Requests for files ending in a static extension
// (.css, .js, .png, ...) are answered from the static directory before any
// route is consulted.
package feasp

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	ferrors "github.com/conneroisu/feasp/internal/errors"
	"github.com/conneroisu/feasp/internal/logging"
	"github.com/conneroisu/feasp/pkg/template"
)

// App is a route table plus the resources views use. Routes are registered
// before serving; the table is frozen on the first dispatch.
type App struct {
	templates *Templates
	static    fs.FS
	logger    logging.Logger
	sessions  SessionProvider
	maxBody   int64
	debug     bool

	templateDir string
	staticDir   string
	tplOpts     []template.Option

	mu        sync.Mutex
	frozen    atomic.Bool
	exact     map[string]*Route
	patterns  []*Route
	endpoints map[string]*Route
	order     []*Route
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the logger used for view failures.
func WithLogger(logger logging.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithSessions enables Context.Session.
func WithSessions(p SessionProvider) Option {
	return func(a *App) { a.sessions = p }
}

// WithMaxBodyBytes bounds request bodies read by ServeHTTP.
func WithMaxBodyBytes(n int64) Option {
	return func(a *App) {
		if n > 0 {
			a.maxBody = n
		}
	}
}

// WithDebug renders template failures as a detailed error page instead of
// the plain 500 page.
func WithDebug(debug bool) Option {
	return func(a *App) { a.debug = debug }
}

// WithTemplateDir changes the template directory below the root.
func WithTemplateDir(dir string) Option {
	return func(a *App) { a.templateDir = dir }
}

// WithStaticDir changes the static directory below the root.
func WithStaticDir(dir string) Option {
	return func(a *App) { a.staticDir = dir }
}

// WithTemplateOptions passes options to every template parse.
func WithTemplateOptions(opts ...template.Option) Option {
	return func(a *App) { a.tplOpts = append(a.tplOpts, opts...) }
}

// New creates an App whose templates and static files live below root in
// "templates" and "static". root may be nil for apps without either.
func New(root fs.FS, opts ...Option) *App {
	a := &App{
		logger:      logging.Nop(),
		maxBody:     DefaultMaxBodyBytes,
		templateDir: "templates",
		staticDir:   "static",
		exact:       make(map[string]*Route),
		endpoints:   make(map[string]*Route),
	}
	for _, opt := range opts {
		opt(a)
	}

	var tplFS fs.FS
	if root != nil {
		if sub, err := fs.Sub(root, a.templateDir); err == nil {
			tplFS = sub
		}
		if sub, err := fs.Sub(root, a.staticDir); err == nil {
			a.static = sub
		}
	}
	a.templates = NewTemplates(tplFS, a.tplOpts...)

	return a
}

// Templates returns the app's template loader.
func (a *App) Templates() *Templates {
	return a.templates
}

// Route registers handler for path. Methods default to GET. It panics on a
// malformed path, an unknown method, a duplicate path or endpoint, or when
// the app is already serving.
func (a *App) Route(path string, handler HandlerFunc, methods ...string) *Route {
	if handler == nil {
		panic("feasp: nil handler for " + path)
	}
	segments, err := parsePattern(path)
	if err != nil {
		panic("feasp: " + err.Error())
	}

	if len(methods) == 0 {
		methods = []string{http.MethodGet}
	}
	normalized := make([]string, 0, len(methods))
	for _, m := range methods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if !knownMethods[m] {
			panic(fmt.Sprintf("feasp: unknown method %q for %s", m, path))
		}
		normalized = append(normalized, m)
	}

	r := &Route{
		app:      a,
		path:     path,
		endpoint: defaultEndpoint(path),
		methods:  normalized,
		handler:  handler,
		segments: segments,
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.frozen.Load() {
		panic("feasp: route " + path + " registered after the app started serving")
	}
	for _, existing := range a.order {
		if existing.path == path {
			panic("feasp: duplicate route " + path)
		}
	}
	if _, taken := a.endpoints[r.endpoint]; taken {
		panic(fmt.Sprintf("feasp: endpoint %q for %s already registered; call Name", r.endpoint, path))
	}

	if segments == nil {
		a.exact[path] = r
	} else {
		a.patterns = append(a.patterns, r)
	}
	a.endpoints[r.endpoint] = r
	a.order = append(a.order, r)

	return r
}

// GET registers a GET view.
func (a *App) GET(path string, handler HandlerFunc) *Route {
	return a.Route(path, handler, http.MethodGet)
}

// POST registers a POST view.
func (a *App) POST(path string, handler HandlerFunc) *Route {
	return a.Route(path, handler, http.MethodPost)
}

func (a *App) renameEndpoint(r *Route, endpoint string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.frozen.Load() {
		panic("feasp: endpoint renamed after the app started serving")
	}
	if endpoint == "" {
		panic("feasp: empty endpoint name for " + r.path)
	}
	if other, taken := a.endpoints[endpoint]; taken && other != r {
		panic(fmt.Sprintf("feasp: endpoint %q already registered for %s", endpoint, other.path))
	}
	delete(a.endpoints, r.endpoint)
	r.endpoint = endpoint
	a.endpoints[endpoint] = r
}

// Freeze ends registration. Dispatch calls it on first use.
func (a *App) Freeze() {
	if a.frozen.Load() {
		return
	}
	a.mu.Lock()
	a.frozen.Store(true)
	a.mu.Unlock()
}

// Routes lists registered routes in registration order.
func (a *App) Routes() []RouteInfo {
	a.mu.Lock()
	defer a.mu.Unlock()

	infos := make([]RouteInfo, 0, len(a.order))
	for _, r := range a.order {
		infos = append(infos, RouteInfo{Path: r.path, Endpoint: r.endpoint, Methods: r.Methods()})
	}
	return infos
}

// lookup finds the route for path: exact paths first, then patterns in
// registration order.
func (a *App) lookup(path string) (*Route, map[string]string) {
	if r, ok := a.exact[path]; ok {
		return r, map[string]string{}
	}
	for _, r := range a.patterns {
		if params, ok := r.match(path); ok {
			return r, params
		}
	}
	return nil, nil
}

// Dispatch resolves req and runs its view. It never returns nil.
func (a *App) Dispatch(ctx context.Context, req *Request) *Response {
	a.Freeze()

	resp := a.dispatch(ctx, req)
	if req.Method == http.MethodHead {
		resp.Header.Set("Content-Length", strconv.Itoa(len(resp.Body)))
		resp.Body = nil
	}
	return resp
}

func (a *App) dispatch(ctx context.Context, req *Request) *Response {
	if mimetype, ok := staticMimetype(req.Path); ok {
		return a.serveStatic(req.Path, mimetype)
	}

	route, params := a.lookup(req.Path)
	if route == nil {
		return ErrorPage(http.StatusNotFound)
	}
	if !route.allows(req.Method) {
		resp := ErrorPage(http.StatusMethodNotAllowed)
		resp.Header.Set("Allow", route.allowHeader())
		return resp
	}
	req.Params = params

	c := newContext(ctx, a, req)
	value, err := a.call(route, c)

	var resp *Response
	if err != nil {
		resp = a.errorResponse(ctx, req, err)
	} else {
		resp = a.coerce(ctx, req, value)
	}
	resp.merge(c.Response)
	return resp
}

// call runs the view, turning a panic into an error.
func (a *App) call(route *Route, c *Context) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			a.logger.Error(c.ctx, fmt.Errorf("%v", rec), "view panicked",
				"path", c.Request.Path,
				"endpoint", route.endpoint,
				"stack", string(debug.Stack()))
			value = nil
			err = ferrors.NewInternal(fmt.Sprintf("view %s panicked", route.endpoint), fmt.Errorf("%v", rec))
		}
	}()
	return route.handler(c)
}

// coerce converts a view's return value into a Response.
func (a *App) coerce(ctx context.Context, req *Request, value any) *Response {
	switch v := value.(type) {
	case nil:
		return NewResponse(nil, "text/html", http.StatusNoContent)
	case *Response:
		if v == nil {
			return NewResponse(nil, "text/html", http.StatusNoContent)
		}
		if v.Header == nil {
			v.Header = make(http.Header)
		}
		return v
	case Response:
		if v.Header == nil {
			v.Header = make(http.Header)
		}
		return &v
	case string:
		return NewResponse([]byte(v), "text/html", http.StatusOK)
	case []byte:
		return NewResponse(v, "application/octet-stream", http.StatusOK)
	case error:
		return a.errorResponse(ctx, req, v)
	}

	resp, err := JSON(value, http.StatusOK)
	if err != nil {
		return a.errorResponse(ctx, req, err)
	}
	return resp
}

// errorResponse maps err to the canned page for its status.
func (a *App) errorResponse(ctx context.Context, req *Request, err error) *Response {
	status := ferrors.StatusOf(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error(ctx, err, "view failed", "path", req.Path, "method", req.Method)
		if a.debug && ferrors.IsType(err, ferrors.ErrorTypeTemplate) {
			return NewResponse([]byte(ferrors.Overlay(err)), "text/html", status)
		}
	} else {
		a.logger.Debug(ctx, "view returned error", "path", req.Path, "status", status, "error", err.Error())
	}
	return ErrorPage(status)
}

// ServeHTTP makes App an http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := newRequestLimit(r, a.maxBody)
	var resp *Response
	if err != nil {
		resp = ErrorPage(ferrors.StatusOf(err))
	} else {
		resp = a.Dispatch(r.Context(), req)
	}
	if err := resp.Write(w); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Debug(r.Context(), "writing response", "path", r.URL.Path, "error", err.Error())
	}
}

// URLFor builds the path of endpoint. params are key, value pairs filling
// the route's variables; leftovers become the query string.
func (a *App) URLFor(endpoint string, params ...string) (string, error) {
	if len(params)%2 != 0 {
		return "", ferrors.NewBadRequest("URL_PARAMS", "URLFor params must be key, value pairs", nil)
	}

	a.mu.Lock()
	r, ok := a.endpoints[endpoint]
	a.mu.Unlock()
	if !ok {
		return "", ferrors.NewNotFound(fmt.Sprintf("no endpoint named %q", endpoint))
	}

	values := make(map[string]string, len(params)/2)
	for i := 0; i < len(params); i += 2 {
		values[params[i]] = params[i+1]
	}
	return r.build(values)
}

// RedirectTo redirects to the path of endpoint.
func (a *App) RedirectTo(endpoint string, params ...string) (*Response, error) {
	location, err := a.URLFor(endpoint, params...)
	if err != nil {
		return nil, err
	}
	return Redirect(location), nil
}

// RenderTemplate renders a template from the template directory.
func (a *App) RenderTemplate(name string, data map[string]any) (string, error) {
	return a.templates.Render(name, data)
}
