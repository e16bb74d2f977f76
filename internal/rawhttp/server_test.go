package rawhttp

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/feasp/pkg/feasp"
)

func newTestApp() *feasp.App {
	app := feasp.New(nil)
	app.GET("/", func(*feasp.Context) (any, error) {
		return "Hello", nil
	})
	app.POST("/login", func(c *feasp.Context) (any, error) {
		return "Hello " + c.Form("username"), nil
	})
	app.GET("/variable/<string:name>", func(c *feasp.Context) (any, error) {
		return "Hello " + c.Param("name") + ", I love you", nil
	})
	return app
}

// startServer serves h on a loopback listener until the test ends.
func startServer(t *testing.T, h Handler) (*Server, string, chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &Server{Handler: h, ReadTimeout: 5 * time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return srv, ln.Addr().String(), done
}

func dial(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	return conn, bufio.NewReader(conn)
}

func readResponse(t *testing.T, br *bufio.Reader) (*http.Response, string) {
	t.Helper()
	resp, err := http.ReadResponse(br, nil)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, string(body)
}

func TestServer_KeepAlive(t *testing.T) {
	_, addr, _ := startServer(t, NewAppHandler(newTestApp()))
	conn, br := dial(t, addr)

	_, err := io.WriteString(conn, "GET / HTTP/1.1\r\nHost: localhost\r\n\r\n")
	require.NoError(t, err)
	resp, body := readResponse(t, br)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "200 OK", resp.Status)
	assert.Equal(t, "Hello", body)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "5", resp.Header.Get("Content-Length"))
	assert.False(t, resp.Close)

	form := "username=XueFeng&password=123456789"
	_, err = io.WriteString(conn, "POST /login HTTP/1.1\r\nHost: localhost\r\n"+
		"Content-Type: application/x-www-form-urlencoded\r\n"+
		"Content-Length: 35\r\nConnection: close\r\n\r\n"+form)
	require.NoError(t, err)
	resp, body = readResponse(t, br)
	assert.Equal(t, "Hello XueFeng", body)
	assert.True(t, resp.Close)

	_, err = br.ReadByte()
	assert.Equal(t, io.EOF, err)
}

func TestServer_HTTP10ClosesByDefault(t *testing.T) {
	_, addr, _ := startServer(t, NewAppHandler(newTestApp()))

	conn, br := dial(t, addr)
	io.WriteString(conn, "GET /variable/XueFeng HTTP/1.0\r\n\r\n")
	resp, body := readResponse(t, br)
	assert.Equal(t, "Hello XueFeng, I love you", body)
	assert.Equal(t, "close", resp.Header.Get("Connection"))
	_, err := br.ReadByte()
	assert.Equal(t, io.EOF, err)

	conn, br = dial(t, addr)
	io.WriteString(conn, "GET / HTTP/1.0\r\nConnection: keep-alive\r\n\r\n")
	resp, _ = readResponse(t, br)
	assert.Equal(t, "keep-alive", resp.Header.Get("Connection"))
	io.WriteString(conn, "GET /missing HTTP/1.0\r\nConnection: keep-alive\r\n\r\n")
	resp, body = readResponse(t, br)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "<h1>NOT FOUND</h1>", body)
}

func TestServer_MalformedRequest(t *testing.T) {
	_, addr, _ := startServer(t, NewAppHandler(newTestApp()))

	conn, br := dial(t, addr)
	io.WriteString(conn, "BROKEN\r\n\r\n")
	resp, body := readResponse(t, br)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "<h1>BAD REQUEST</h1>", body)
	assert.True(t, resp.Close)
}

func TestServer_HeadStripsBody(t *testing.T) {
	_, addr, _ := startServer(t, NewAppHandler(newTestApp()))

	conn, br := dial(t, addr)
	io.WriteString(conn, "HEAD / HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")
	raw, err := io.ReadAll(br)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "HTTP/1.1 200 OK\r\n"))
	assert.Contains(t, string(raw), "Content-Length: 5\r\n")
	assert.True(t, strings.HasSuffix(string(raw), "\r\n\r\n"))
}

func TestServer_HandlerPanic(t *testing.T) {
	h := HandlerFunc(func(context.Context, *Message) *feasp.Response {
		panic("boom")
	})
	_, addr, _ := startServer(t, h)

	conn, br := dial(t, addr)
	io.WriteString(conn, "GET / HTTP/1.1\r\nHost: x\r\n\r\n")
	resp, body := readResponse(t, br)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "<h1>INTERNAL SERVER ERROR</h1>", body)
}

func TestServer_ShutdownWaitsForInflight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	h := HandlerFunc(func(context.Context, *Message) *feasp.Response {
		close(entered)
		<-release
		return feasp.NewResponse([]byte("done"), "text/plain", http.StatusOK)
	})
	srv, addr, done := startServer(t, h)

	conn, br := dial(t, addr)
	io.WriteString(conn, "GET / HTTP/1.1\r\nHost: x\r\n\r\n")
	<-entered

	shutdownErr := make(chan error, 1)
	go func() { shutdownErr <- srv.Shutdown(context.Background()) }()

	select {
	case <-shutdownErr:
		t.Fatal("Shutdown returned while a request was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	resp, body := readResponse(t, br)
	assert.Equal(t, "done", body)
	assert.True(t, resp.Close)

	require.NoError(t, <-shutdownErr)
	assert.ErrorIs(t, <-done, ErrServerClosed)
	done <- nil

	assert.NoError(t, srv.Shutdown(context.Background()))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.ErrorIs(t, srv.Serve(context.Background(), ln), ErrServerClosed)
}

func TestServer_ShutdownClosesIdleConnections(t *testing.T) {
	srv, addr, _ := startServer(t, NewAppHandler(newTestApp()))

	conn, br := dial(t, addr)
	io.WriteString(conn, "GET / HTTP/1.1\r\nHost: x\r\n\r\n")
	readResponse(t, br)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	_, err := br.ReadByte()
	assert.Equal(t, io.EOF, err)
}

func TestServer_ContextCancelStopsServe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &Server{Handler: NewAppHandler(newTestApp())}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool { return srv.ListenAddr() == ln.Addr().String() }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
