package feasp

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResponse(t *testing.T) {
	resp := NewResponse([]byte("<h1>Hello World</h1>"), "text/html", 200)

	assert.Contains(t, string(resp.Body), "Hello World")
	assert.Equal(t, "text/html", resp.Mimetype)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))

	resp.SetCookie("name", "XueFeng")
	assert.Equal(t, []string{"name=XueFeng; Path=/"}, resp.Header.Values("Set-Cookie"))
	assert.Equal(t, "<Response text/html 200 OK>", resp.String())
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"text/css":                 "text/css; charset=utf-8",
		"application/json":         "application/json; charset=utf-8",
		"image/png":                "image/png",
		"application/octet-stream": "application/octet-stream",
		"text/plain; charset=gbk":  "text/plain; charset=gbk",
	}
	for mimetype, expected := range tests {
		assert.Equal(t, expected, contentType(mimetype), mimetype)
	}
}

func TestSetCookie_Options(t *testing.T) {
	resp := NewResponse(nil, "text/html", 200)
	resp.SetCookie("a", "1", CookiePath("/x"), CookieMaxAge(60), CookieHTTPOnly(), CookieSecure(),
		CookieSameSite(http.SameSiteLaxMode))
	resp.SetCookie("b", "two words")
	resp.SetCookie("bad name", "dropped")

	cookies := resp.Header.Values("Set-Cookie")
	require.Len(t, cookies, 2)
	assert.Equal(t, "a=1; Path=/x; Max-Age=60; HttpOnly; Secure; SameSite=Lax", cookies[0])
	assert.Equal(t, `b="two words"; Path=/`, cookies[1])
}

func TestMakeResponse(t *testing.T) {
	resp := MakeResponse("Hello MakeResponse", "", 201)
	assert.Equal(t, 201, resp.Status)
	assert.Equal(t, "text/html", resp.Mimetype)

	resp = MakeResponse([]byte{1, 2}, "application/octet-stream", 200)
	assert.Equal(t, []byte{1, 2}, resp.Body)

	resp = MakeResponse(42, "text/html", 200)
	assert.Equal(t, 500, resp.Status)
	assert.Equal(t, "<h1>INTERNAL SERVER ERROR</h1>", string(resp.Body))
}

func TestRedirect(t *testing.T) {
	resp := Redirect("/a?b=<c>")
	assert.Equal(t, http.StatusFound, resp.Status)
	assert.Equal(t, "/a?b=<c>", resp.Header.Get("Location"))
	assert.Contains(t, string(resp.Body), "&lt;c&gt;")
}

func TestJSON(t *testing.T) {
	resp, err := JSON(map[string]string{"P": "D", "H": "L"}, 200)
	require.NoError(t, err)
	assert.JSONEq(t, `{"H":"L","P":"D"}`, string(resp.Body))
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))

	_, err = JSON(make(chan int), 200)
	assert.Error(t, err)
}

func TestResponse_WriteRaw(t *testing.T) {
	resp := NewResponse([]byte("<h1>Hello World</h1>"), "text/html", 200)

	var buf bytes.Buffer
	require.NoError(t, resp.WriteRaw(&buf, ""))

	expected := "HTTP/1.1 200 OK\r\n" +
		"Content-Length: 20\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<h1>Hello World</h1>"
	assert.Equal(t, expected, buf.String())
}

func TestResponse_WriteRawUnknownStatus(t *testing.T) {
	resp := NewResponse(nil, "text/plain", 299)

	var buf bytes.Buffer
	require.NoError(t, resp.WriteRaw(&buf, "HTTP/1.0"))
	assert.Contains(t, buf.String(), "HTTP/1.0 299 UNKNOWN\r\n")
}

func TestResponse_WriteRawNoBodyStatus(t *testing.T) {
	for _, status := range []int{http.StatusNoContent, http.StatusNotModified} {
		resp := NewResponse([]byte("ignored"), "text/html", status)

		var buf bytes.Buffer
		require.NoError(t, resp.WriteRaw(&buf, ""))
		out := buf.String()
		assert.NotContains(t, out, "Content-Length", "status %d", status)
		assert.True(t, strings.HasSuffix(out, "\r\n\r\n"), "status %d carries no body", status)
	}

	resp := NewResponse(nil, "text/html", http.StatusOK)
	var buf bytes.Buffer
	require.NoError(t, resp.WriteRaw(&buf, ""))
	assert.Contains(t, buf.String(), "Content-Length: 0\r\n", "empty 200 still declares its length")
}

func TestResponse_Write(t *testing.T) {
	resp := NewResponse([]byte("hi"), "text/plain", http.StatusTeapot)
	resp.SetCookie("k", "v")

	rec := httptest.NewRecorder()
	require.NoError(t, resp.Write(rec))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "hi", rec.Body.String())
	assert.Equal(t, "2", rec.Header().Get("Content-Length"))
	assert.Equal(t, "k=v; Path=/", rec.Header().Get("Set-Cookie"))
}

func TestResponse_Merge(t *testing.T) {
	staged := NewResponse(nil, "text/html", 200)
	staged.SetCookie("a", "1")
	staged.Header.Set("X-Trace", "staged")
	staged.Header.Set("X-Keep", "staged")

	resp := NewResponse([]byte("{}"), "application/json", 200)
	resp.SetCookie("b", "2")
	resp.Header.Set("X-Keep", "view")

	resp.merge(staged)

	assert.ElementsMatch(t, []string{"a=1; Path=/", "b=2; Path=/"}, resp.Header.Values("Set-Cookie"))
	assert.Equal(t, "staged", resp.Header.Get("X-Trace"))
	assert.Equal(t, "view", resp.Header.Get("X-Keep"))
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))
}

func TestReasonPhrase(t *testing.T) {
	assert.Equal(t, "NOT FOUND", ReasonPhrase(404))
	assert.Equal(t, "REQUEST-URI TOO LONG", ReasonPhrase(414))
	assert.Equal(t, "I'M A TEAPOT", ReasonPhrase(418))
}
