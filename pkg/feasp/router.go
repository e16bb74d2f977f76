package feasp

import (
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	ferrors "github.com/conneroisu/feasp/internal/errors"
)

// HandlerFunc is a view. The returned value is converted into a Response:
// string becomes text/html, []byte application/octet-stream, *Response is
// used as-is, nil is 204 and anything else is encoded as JSON.
type HandlerFunc func(c *Context) (any, error)

var knownMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodConnect: true,
	http.MethodOptions: true,
	http.MethodTrace:   true,
}

type segmentKind int

const (
	segStatic segmentKind = iota
	segString
	segInt
	segPath
)

var segmentKinds = map[string]segmentKind{
	"":       segString,
	"string": segString,
	"int":    segInt,
	"path":   segPath,
}

type segment struct {
	kind  segmentKind
	value string // literal text or variable name
}

// Route is one registered view.
type Route struct {
	app      *App
	path     string
	endpoint string
	methods  []string
	handler  HandlerFunc
	segments []segment // nil for static paths
}

// RouteInfo describes a route for listings.
type RouteInfo struct {
	Path     string   `json:"path" yaml:"path"`
	Endpoint string   `json:"endpoint" yaml:"endpoint"`
	Methods  []string `json:"methods" yaml:"methods"`
}

// Name sets the endpoint name used by URLFor.
func (r *Route) Name(endpoint string) *Route {
	r.app.renameEndpoint(r, endpoint)
	return r
}

// Path returns the path pattern the route was registered with.
func (r *Route) Path() string { return r.path }

// Endpoint returns the route's endpoint name.
func (r *Route) Endpoint() string { return r.endpoint }

// Methods returns the allowed methods.
func (r *Route) Methods() []string { return slices.Clone(r.methods) }

func (r *Route) allows(method string) bool {
	if slices.Contains(r.methods, method) {
		return true
	}
	return method == http.MethodHead && slices.Contains(r.methods, http.MethodGet)
}

func (r *Route) allowHeader() string {
	methods := slices.Clone(r.methods)
	if slices.Contains(methods, http.MethodGet) && !slices.Contains(methods, http.MethodHead) {
		methods = append(methods, http.MethodHead)
	}
	return strings.Join(methods, ", ")
}

// parsePattern splits a path into segments. It returns nil when the path has
// no variables.
func parsePattern(path string) ([]segment, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("path %q must start with /", path)
	}
	if !strings.Contains(path, "<") {
		return nil, nil
	}

	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	segments := make([]segment, 0, len(parts))
	names := map[string]bool{}

	for i, part := range parts {
		if !strings.HasPrefix(part, "<") || !strings.HasSuffix(part, ">") {
			if strings.ContainsAny(part, "<>") {
				return nil, fmt.Errorf("path %q: variables must span a whole segment", path)
			}
			segments = append(segments, segment{kind: segStatic, value: part})
			continue
		}

		conv, name, ok := strings.Cut(part[1:len(part)-1], ":")
		if !ok {
			conv, name = "", conv
		}
		kind, known := segmentKinds[conv]
		if !known {
			return nil, fmt.Errorf("path %q: unknown converter %q", path, conv)
		}
		if name == "" || names[name] {
			return nil, fmt.Errorf("path %q: missing or repeated variable name", path)
		}
		if kind == segPath && i != len(parts)-1 {
			return nil, fmt.Errorf("path %q: <path:%s> must be the last segment", path, name)
		}
		names[name] = true
		segments = append(segments, segment{kind: kind, value: name})
	}

	return segments, nil
}

// match reports whether path fits the route's segments and returns the
// captured variables.
func (r *Route) match(path string) (map[string]string, bool) {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	params := make(map[string]string, len(r.segments))

	for i, seg := range r.segments {
		if i >= len(parts) {
			return nil, false
		}
		part := parts[i]
		switch seg.kind {
		case segStatic:
			if part != seg.value {
				return nil, false
			}
		case segString:
			if part == "" {
				return nil, false
			}
			params[seg.value] = part
		case segInt:
			if _, err := strconv.ParseInt(part, 10, 64); err != nil {
				return nil, false
			}
			params[seg.value] = part
		case segPath:
			rest := strings.Join(parts[i:], "/")
			if rest == "" {
				return nil, false
			}
			params[seg.value] = rest
			return params, true
		}
	}

	if len(parts) != len(r.segments) {
		return nil, false
	}
	return params, true
}

// build fills the route's variables from params. Unused params become the
// query string.
func (r *Route) build(params map[string]string) (string, error) {
	if r.segments == nil {
		return withQuery(r.path, params), nil
	}

	rest := make(map[string]string, len(params))
	for k, v := range params {
		rest[k] = v
	}

	var b strings.Builder
	for _, seg := range r.segments {
		b.WriteByte('/')
		if seg.kind == segStatic {
			b.WriteString(seg.value)
			continue
		}
		v, ok := rest[seg.value]
		if !ok || v == "" {
			return "", ferrors.NewBadRequest("MISSING_URL_PARAM",
				fmt.Sprintf("endpoint %s needs a value for %s", r.endpoint, seg.value), nil)
		}
		delete(rest, seg.value)

		switch seg.kind {
		case segInt:
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				return "", ferrors.NewBadRequest("BAD_URL_PARAM",
					fmt.Sprintf("endpoint %s: %s must be an integer", r.endpoint, seg.value), err)
			}
			b.WriteString(v)
		case segPath:
			parts := strings.Split(v, "/")
			for i, p := range parts {
				parts[i] = url.PathEscape(p)
			}
			b.WriteString(strings.Join(parts, "/"))
		default:
			b.WriteString(url.PathEscape(v))
		}
	}

	return withQuery(b.String(), rest), nil
}

func withQuery(path string, params map[string]string) string {
	if len(params) == 0 {
		return path
	}
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	return path + "?" + q.Encode()
}

// defaultEndpoint derives an endpoint name from a path: "/" is "index",
// "/user/<int:id>/edit" is "user_id_edit".
func defaultEndpoint(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "index"
	}
	parts := strings.Split(trimmed, "/")
	for i, part := range parts {
		if strings.HasPrefix(part, "<") && strings.HasSuffix(part, ">") {
			inner := part[1 : len(part)-1]
			if _, name, ok := strings.Cut(inner, ":"); ok {
				inner = name
			}
			part = inner
		}
		parts[i] = part
	}
	return strings.Join(parts, "_")
}
