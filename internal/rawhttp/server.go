package rawhttp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	ferrors "github.com/conneroisu/feasp/internal/errors"
	"github.com/conneroisu/feasp/internal/logging"
	"github.com/conneroisu/feasp/pkg/feasp"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("rawhttp: server closed")

const shutdownTimeout = 30 * time.Second

// Handler answers one parsed request.
type Handler interface {
	ServeRaw(ctx context.Context, msg *Message) *feasp.Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg *Message) *feasp.Response

func (f HandlerFunc) ServeRaw(ctx context.Context, msg *Message) *feasp.Response {
	return f(ctx, msg)
}

// Server accepts TCP connections and serves HTTP/1.x on each of them in its
// own goroutine.
type Server struct {
	Addr    string
	Handler Handler
	Limits  Limits
	// ReadTimeout bounds reading one request. Zero means no limit.
	ReadTimeout time.Duration
	// IdleTimeout bounds the wait for the next request on a kept-alive
	// connection. Zero falls back to ReadTimeout.
	IdleTimeout time.Duration
	Logger      logging.Logger

	mu         sync.Mutex
	listener   net.Listener
	conns      map[net.Conn]struct{}
	wg         sync.WaitGroup
	isShutdown bool
}

func (s *Server) logger() logging.Logger {
	if s.Logger == nil {
		return logging.Nop()
	}
	return s.Logger
}

// ListenAndServe listens on s.Addr and serves until ctx is cancelled or
// Shutdown is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := s.Addr
	if addr == "" {
		addr = ":8080"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rawhttp: listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln. When ctx is cancelled the server shuts
// down gracefully and Serve returns nil. After an explicit Shutdown it
// returns ErrServerClosed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if ctx == nil {
		return fmt.Errorf("rawhttp: context cannot be nil")
	}
	if s.Handler == nil {
		return fmt.Errorf("rawhttp: handler cannot be nil")
	}

	s.mu.Lock()
	if s.isShutdown {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	if s.conns == nil {
		s.conns = make(map[net.Conn]struct{})
	}
	s.mu.Unlock()

	s.logger().Info(ctx, "raw server listening", "addr", ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.acceptLoop(ctx, ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.shuttingDown() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if backoff == 0 {
					backoff = 5 * time.Millisecond
				} else if backoff *= 2; backoff > time.Second {
					backoff = time.Second
				}
				s.logger().Warn(ctx, err, "accept failed, retrying", "backoff", backoff.String())
				time.Sleep(backoff)
				continue
			}
			return fmt.Errorf("rawhttp: accept: %w", err)
		}
		backoff = 0

		if !s.track(conn) {
			conn.Close()
			return ErrServerClosed
		}
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isShutdown {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) shuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isShutdown
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer s.untrack(conn)
	defer conn.Close()

	log := s.logger().With("remote", conn.RemoteAddr().String())
	br := bufio.NewReader(conn)

	for first := true; ; first = false {
		if !first && s.shuttingDown() {
			return
		}
		timeout := s.ReadTimeout
		if !first && s.IdleTimeout > 0 {
			timeout = s.IdleTimeout
		}
		if timeout > 0 {
			conn.SetReadDeadline(time.Now().Add(timeout))
		}

		msg, err := ParseRequest(br, s.Limits)
		if err != nil {
			var fe *ferrors.FeaspError
			if errors.As(err, &fe) {
				log.Warn(ctx, err, "rejecting malformed request", "status", fe.Status)
				resp := feasp.ErrorPage(ferrors.StatusOf(err))
				resp.Header.Set("Connection", "close")
				resp.WriteRaw(conn, "HTTP/1.1")
			} else if !errors.Is(err, io.EOF) && !s.shuttingDown() {
				log.Debug(ctx, "connection closed while reading", "error", err.Error())
			}
			return
		}
		conn.SetReadDeadline(time.Time{})
		msg.RemoteAddr = conn.RemoteAddr().String()

		resp := s.handle(ctx, log, msg)

		keepAlive := msg.KeepAlive() && !s.shuttingDown() && !connectionTokens(resp.Header)["close"]
		if keepAlive {
			if msg.Proto == "HTTP/1.0" {
				resp.Header.Set("Connection", "keep-alive")
			}
		} else {
			resp.Header.Set("Connection", "close")
		}

		if err := resp.WriteRaw(conn, "HTTP/1.1"); err != nil {
			log.Warn(ctx, err, "failed to write response")
			return
		}
		if !keepAlive {
			return
		}
	}
}

func (s *Server) handle(ctx context.Context, log logging.Logger, msg *Message) (resp *feasp.Response) {
	op := logging.StartOperation(log, "raw_request")
	defer func() {
		if r := recover(); r != nil {
			err := ferrors.NewInternal(fmt.Sprintf("handler panic: %v", r), nil)
			op.EndWithError(ctx, err, "method", msg.Method, "target", msg.Target)
			resp = feasp.ErrorPage(http.StatusInternalServerError)
			return
		}
		op.End(ctx, "method", msg.Method, "target", msg.Target, "status", resp.Status)
	}()

	resp = s.Handler.ServeRaw(ctx, msg)
	if resp == nil {
		resp = feasp.ErrorPage(http.StatusInternalServerError)
	}
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	return resp
}

// Shutdown stops accepting connections, wakes idle ones and waits for
// in-flight requests to finish or ctx to expire. Remaining connections are
// then closed. It is safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("rawhttp: context cannot be nil")
	}

	s.mu.Lock()
	if !s.isShutdown {
		s.isShutdown = true
		if s.listener != nil {
			s.listener.Close()
		}
	}
	// Connections blocked reading the next request return immediately;
	// those inside a handler finish it and then close.
	for conn := range s.conns {
		conn.SetReadDeadline(time.Now())
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		return fmt.Errorf("rawhttp: shutdown: %w", ctx.Err())
	}
}

// ListenAddr returns the bound address, or s.Addr before Serve.
func (s *Server) ListenAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.Addr
}
