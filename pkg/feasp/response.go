package feasp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	ferrors "github.com/conneroisu/feasp/internal/errors"
)

// Response is the value a view produces. Headers may be changed freely until
// it is written.
type Response struct {
	Body     []byte
	Status   int
	Mimetype string
	Header   http.Header
}

// NewResponse builds a response and sets its Content-Type from mimetype.
func NewResponse(body []byte, mimetype string, status int) *Response {
	if status == 0 {
		status = http.StatusOK
	}
	r := &Response{
		Body:   body,
		Status: status,
		Header: make(http.Header),
	}
	r.SetMimetype(mimetype)
	return r
}

// MakeResponse wraps a string or []byte body. Any other body yields the 500
// page, as does an unknown status.
func MakeResponse(body any, mimetype string, status int) *Response {
	if mimetype == "" {
		mimetype = "text/html"
	}
	switch b := body.(type) {
	case string:
		return NewResponse([]byte(b), mimetype, status)
	case []byte:
		return NewResponse(b, mimetype, status)
	}
	return ErrorPage(http.StatusInternalServerError)
}

// ErrorPage returns the canned page for status, e.g. <h1>NOT FOUND</h1>.
func ErrorPage(status int) *Response {
	body, mimetype, code := ferrors.Page(status)
	return NewResponse([]byte(body), mimetype, code)
}

// Redirect returns a 302 response pointing at location.
func Redirect(location string) *Response {
	escaped := html.EscapeString(location)
	r := NewResponse([]byte(`<a href="`+escaped+`">Redirecting to `+escaped+`</a>`), "text/html", http.StatusFound)
	r.Header.Set("Location", location)
	return r
}

// JSON encodes v as an application/json response.
func JSON(v any, status int) (*Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, ferrors.NewInternal("encoding JSON response", err)
	}
	return NewResponse(body, "application/json", status), nil
}

// SetMimetype changes the mimetype and the Content-Type header with it.
func (r *Response) SetMimetype(mimetype string) {
	if mimetype == "" {
		mimetype = "text/html"
	}
	r.Mimetype = mimetype
	r.Header.Set("Content-Type", contentType(mimetype))
}

// contentType appends the utf-8 charset to textual mimetypes.
func contentType(mimetype string) string {
	if strings.Contains(mimetype, "charset=") {
		return mimetype
	}
	lower := strings.ToLower(mimetype)
	switch {
	case strings.HasPrefix(lower, "text/"),
		lower == "application/json",
		lower == "application/javascript",
		lower == "application/xml",
		lower == "image/svg+xml":
		return mimetype + "; charset=utf-8"
	}
	return mimetype
}

// CookieOption customises a cookie set with SetCookie.
type CookieOption func(*http.Cookie)

// CookiePath overrides the default path of "/".
func CookiePath(path string) CookieOption {
	return func(c *http.Cookie) { c.Path = path }
}

// CookieMaxAge sets Max-Age in seconds. A negative value deletes the cookie.
func CookieMaxAge(seconds int) CookieOption {
	return func(c *http.Cookie) { c.MaxAge = seconds }
}

// CookieExpires sets an absolute expiry.
func CookieExpires(t time.Time) CookieOption {
	return func(c *http.Cookie) { c.Expires = t }
}

// CookieHTTPOnly hides the cookie from scripts.
func CookieHTTPOnly() CookieOption {
	return func(c *http.Cookie) { c.HttpOnly = true }
}

// CookieSecure restricts the cookie to HTTPS.
func CookieSecure() CookieOption {
	return func(c *http.Cookie) { c.Secure = true }
}

// CookieSameSite sets the SameSite attribute.
func CookieSameSite(mode http.SameSite) CookieOption {
	return func(c *http.Cookie) { c.SameSite = mode }
}

// SetCookie appends a Set-Cookie header. Invalid cookie names are dropped,
// matching http.SetCookie.
func (r *Response) SetCookie(name, value string, opts ...CookieOption) {
	c := &http.Cookie{Name: name, Value: value, Path: "/"}
	for _, opt := range opts {
		opt(c)
	}
	if v := c.String(); v != "" {
		r.Header.Add("Set-Cookie", v)
	}
}

// ReasonPhrase returns the upper-case reason phrase for status.
func ReasonPhrase(status int) string {
	return ferrors.ReasonPhrase(status)
}

// Write sends the response through w.
func (r *Response) Write(w http.ResponseWriter) error {
	r.finalize()
	header := w.Header()
	for k, values := range r.Header {
		for _, v := range values {
			header.Add(k, v)
		}
	}
	w.WriteHeader(r.Status)
	if len(r.Body) == 0 {
		return nil
	}
	_, err := w.Write(r.Body)
	return err
}

// WriteRaw serialises the response as an HTTP/1.x message.
func (r *Response) WriteRaw(w io.Writer, proto string) error {
	if proto == "" {
		proto = "HTTP/1.1"
	}
	r.finalize()

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s %d %s\r\n", proto, r.Status, ReasonPhrase(r.Status))
	if err := r.Header.Write(bw); err != nil {
		return err
	}
	bw.WriteString("\r\n")
	bw.Write(r.Body)
	return bw.Flush()
}

// finalize fills in the headers every response must carry.
func (r *Response) finalize() {
	if r.Status == 0 {
		r.Status = http.StatusOK
	}
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	if r.Header.Get("Content-Type") == "" {
		r.SetMimetype(r.Mimetype)
	}
	if !bodyAllowed(r.Status) {
		r.Body = nil
		r.Header.Del("Content-Length")
		return
	}
	if r.Header.Get("Content-Length") == "" {
		r.Header.Set("Content-Length", strconv.Itoa(len(r.Body)))
	}
}

// bodyAllowed reports whether a response with status may carry a body.
// 1xx, 204 and 304 responses end after the header section.
func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status < 200:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}

// merge copies cookies and headers staged on the request context into r.
// Headers already set on r win, Set-Cookie values accumulate.
func (r *Response) merge(staged *Response) {
	if staged == nil || staged == r {
		return
	}
	for k, values := range staged.Header {
		switch k {
		case "Set-Cookie":
			for _, v := range values {
				r.Header.Add(k, v)
			}
		case "Content-Type", "Content-Length":
		default:
			if _, ok := r.Header[k]; !ok {
				r.Header[k] = append([]string(nil), values...)
			}
		}
	}
}

func (r *Response) String() string {
	return fmt.Sprintf("<Response %s %d %s>", r.Mimetype, r.Status, ReasonPhrase(r.Status))
}
