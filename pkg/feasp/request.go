package feasp

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	ferrors "github.com/conneroisu/feasp/internal/errors"
)

// DefaultMaxBodyBytes bounds request bodies read by NewRequest.
const DefaultMaxBodyBytes int64 = 10 << 20

// Request is the normalised view of one HTTP request handed to views.
type Request struct {
	Method   string
	Path     string
	Protocol string
	Scheme   string
	Host     string
	// URL is scheme://host/path, empty when the scheme or host is unknown.
	URL string
	// Query is the raw query string without the leading '?'.
	Query  string
	Header http.Header
	// Form holds the first value of each urlencoded body field.
	Form       map[string]string
	Cookies    map[string]string
	Body       []byte
	Params     map[string]string
	RemoteAddr string
}

// NewRequest reads r, including its body, into a Request.
func NewRequest(r *http.Request) (*Request, error) {
	return newRequestLimit(r, DefaultMaxBodyBytes)
}

func newRequestLimit(r *http.Request, limit int64) (*Request, error) {
	var body []byte
	if r.Body != nil && r.Body != http.NoBody {
		var err error
		body, err = io.ReadAll(io.LimitReader(r.Body, limit+1))
		if err != nil {
			return nil, ferrors.NewBadRequest("BODY_READ", "reading request body", err)
		}
		if int64(len(body)) > limit {
			return nil, &ferrors.FeaspError{
				Type:    ferrors.ErrorTypeBadRequest,
				Code:    "BODY_TOO_LARGE",
				Message: fmt.Sprintf("request body exceeds %d bytes", limit),
				Status:  http.StatusRequestEntityTooLarge,
			}
		}
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	return RequestFromParts(r.Method, r.URL.RequestURI(), r.Proto, scheme, r.Host, r.Header, body, r.RemoteAddr), nil
}

// RequestFromParts builds a Request from an already parsed message. The raw
// socket server uses it; target is the request-target from the request line.
func RequestFromParts(method, target, proto, scheme, host string, header http.Header, body []byte, remoteAddr string) *Request {
	if method == "" {
		method = http.MethodGet
	}
	if header == nil {
		header = make(http.Header)
	}
	if host == "" {
		host = header.Get("Host")
	}

	path, query := target, ""
	if u, err := url.ParseRequestURI(target); err == nil {
		path, query = u.Path, u.RawQuery
		if u.Host != "" && host == "" {
			host = u.Host
		}
	} else if p, q, ok := strings.Cut(target, "?"); ok {
		path, query = p, q
	}
	if path == "" {
		path = "/"
	}

	req := &Request{
		Method:     strings.ToUpper(method),
		Path:       path,
		Protocol:   proto,
		Scheme:     scheme,
		Host:       host,
		Query:      query,
		Header:     header,
		Body:       body,
		Params:     map[string]string{},
		RemoteAddr: remoteAddr,
	}
	if scheme != "" && host != "" {
		req.URL = scheme + "://" + host + path
	}
	req.Form = parseForm(header.Get("Content-Type"), body)
	req.Cookies = parseCookies(header)
	return req
}

func parseForm(contentType string, body []byte) map[string]string {
	form := map[string]string{}
	if len(body) == 0 {
		return form
	}
	if contentType != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err != nil || mt != "application/x-www-form-urlencoded" {
			return form
		}
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return form
	}
	for k, v := range values {
		if len(v) > 0 {
			form[k] = v[0]
		}
	}
	return form
}

func parseCookies(header http.Header) map[string]string {
	cookies := map[string]string{}
	r := &http.Request{Header: header}
	for _, c := range r.Cookies() {
		if _, seen := cookies[c.Name]; !seen {
			cookies[c.Name] = c.Value
		}
	}
	return cookies
}

// QueryValues parses the query string.
func (r *Request) QueryValues() url.Values {
	values, _ := url.ParseQuery(r.Query)
	return values
}

// Param returns a captured path variable.
func (r *Request) Param(name string) string {
	return r.Params[name]
}

// Referer returns the Referer header.
func (r *Request) Referer() string {
	return r.Header.Get("Referer")
}

// Connection returns the Connection header.
func (r *Request) Connection() string {
	return r.Header.Get("Connection")
}

// Platform returns the client platform from the Sec-CH-UA-Platform hint.
func (r *Request) Platform() string {
	return strings.Trim(r.Header.Get("Sec-CH-UA-Platform"), `"`)
}

// UserAgent returns the User-Agent header.
func (r *Request) UserAgent() string {
	return r.Header.Get("User-Agent")
}

func (r *Request) String() string {
	return fmt.Sprintf("<Request %s %s />", r.Method, r.Protocol)
}
