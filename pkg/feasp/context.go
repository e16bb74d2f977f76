package feasp

import (
	"context"
	"net/http"
)

// Context carries one request through a view. Response holds headers and
// cookies the view wants on whatever it returns.
type Context struct {
	ctx      context.Context
	app      *App
	Request  *Request
	Response *Response

	session     Session
	sessionNew  bool
	sessionLoad bool
}

// Session is the per-client state a SessionProvider hands out.
type Session interface {
	ID() string
	Get(key string) (any, bool)
	Set(key string, value any)
	Delete(key string)
	// Update runs fn with exclusive access to the values so a
	// read-modify-write cannot interleave with another request.
	Update(fn func(values map[string]any))
}

// SessionProvider loads the session for a request, creating one when the
// request carries no valid session cookie. isNew reports creation.
type SessionProvider interface {
	LoadSession(req *Request) (s Session, isNew bool)
	CookieName() string
}

func newContext(ctx context.Context, app *App, req *Request) *Context {
	return &Context{
		ctx:      ctx,
		app:      app,
		Request:  req,
		Response: NewResponse(nil, "text/html", http.StatusOK),
	}
}

// Context returns the request's context.Context.
func (c *Context) Context() context.Context {
	return c.ctx
}

// App returns the application dispatching the request.
func (c *Context) App() *App {
	return c.app
}

// Param returns a captured path variable.
func (c *Context) Param(name string) string {
	return c.Request.Param(name)
}

// Form returns a form field.
func (c *Context) Form(name string) string {
	return c.Request.Form[name]
}

// Cookie returns a request cookie value.
func (c *Context) Cookie(name string) (string, bool) {
	v, ok := c.Request.Cookies[name]
	return v, ok
}

// SetCookie stages a cookie on the response.
func (c *Context) SetCookie(name, value string, opts ...CookieOption) {
	c.Response.SetCookie(name, value, opts...)
}

// Session returns the client's session. It is nil when the app has no
// session provider. A new session's cookie is staged on the response.
func (c *Context) Session() Session {
	if c.sessionLoad {
		return c.session
	}
	c.sessionLoad = true

	provider := c.app.sessions
	if provider == nil {
		return nil
	}
	c.session, c.sessionNew = provider.LoadSession(c.Request)
	if c.sessionNew && c.session != nil {
		c.Response.SetCookie(provider.CookieName(), c.session.ID(), CookieHTTPOnly())
	}
	return c.session
}

// UpdateSession runs fn on the session's values under the session's lock.
// It reports false when the app has no session provider.
func (c *Context) UpdateSession(fn func(values map[string]any)) bool {
	s := c.Session()
	if s == nil {
		return false
	}
	s.Update(fn)
	return true
}

// Render renders a template from the app's template directory into an HTML
// response.
func (c *Context) Render(name string, data map[string]any) (*Response, error) {
	out, err := c.app.RenderTemplate(name, data)
	if err != nil {
		return nil, err
	}
	return NewResponse([]byte(out), "text/html", http.StatusOK), nil
}

// URLFor is App.URLFor.
func (c *Context) URLFor(endpoint string, params ...string) (string, error) {
	return c.app.URLFor(endpoint, params...)
}

// RedirectTo is App.RedirectTo.
func (c *Context) RedirectTo(endpoint string, params ...string) (*Response, error) {
	return c.app.RedirectTo(endpoint, params...)
}
