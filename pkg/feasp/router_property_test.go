//go:build property
// +build property

package feasp

import (
	"context"
	"net/http"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestRouterProperties checks route resolution over generated paths.
func TestRouterProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// Property: a registered static path always reaches its own view
	properties.Property("static lookup", prop.ForAll(
		func(segments []string) bool {
			path := "/"
			for i, s := range segments {
				if i > 0 {
					path += "/"
				}
				path += s
			}

			app := New(nil)
			app.GET(path, func(*Context) (any, error) { return path, nil })
			resp := app.Dispatch(context.Background(), RequestFromParts(http.MethodGet, path, "HTTP/1.1", "http", "h", nil, nil, ""))
			return resp.Status == http.StatusOK && string(resp.Body) == path
		},
		gen.SliceOfN(3, gen.Identifier()),
	))

	// Property: URLFor and match are inverse for string variables
	properties.Property("reverse routing round trip", prop.ForAll(
		func(name string, id int) bool {
			app := New(nil)
			app.GET("/u/<string:name>/<int:id>", func(c *Context) (any, error) {
				return c.Param("name") + "#" + c.Param("id"), nil
			}).Name("user")

			u, err := app.URLFor("user", "name", name, "id", strconv.Itoa(id))
			if err != nil {
				return false
			}
			resp := app.Dispatch(context.Background(), RequestFromParts(http.MethodGet, u, "HTTP/1.1", "http", "h", nil, nil, ""))
			return string(resp.Body) == name+"#"+strconv.Itoa(id)
		},
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
		gen.IntRange(0, 1_000_000),
	))

	properties.TestingRun(t)
}
