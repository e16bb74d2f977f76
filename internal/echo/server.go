// Package echo is a minimal TCP request/acknowledge pair used to exercise
// raw sockets: the server logs what it receives and acknowledges each read,
// the client sends lines typed by the user.
package echo

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/conneroisu/feasp/internal/logging"
)

const (
	// DefaultAddr is where the server listens and the client connects.
	DefaultAddr = "127.0.0.1:5000"

	// BufferSize is the most bytes read from a connection at once.
	BufferSize = 512

	// Ack is sent back for every read.
	Ack = "Server has received success"
)

// ErrServerClosed is returned by Serve after Close.
var ErrServerClosed = errors.New("echo: server closed")

// Server acknowledges everything sent to it.
type Server struct {
	Addr   string
	Logger logging.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	closed   bool
}

// ListenAndServe listens on s.Addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := s.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done or Close is called. It
// returns nil when ctx ends.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	logger := s.logger()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	if s.conns == nil {
		s.conns = make(map[net.Conn]struct{})
	}
	s.mu.Unlock()

	logger.Info(ctx, "echo server waiting for clients", "addr", ln.Addr().String())

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			if s.isClosed() {
				return ErrServerClosed
			}
			return err
		}

		if !s.track(conn) {
			conn.Close()
			continue
		}
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close()

	logger := s.logger().With("remote", conn.RemoteAddr().String())
	logger.Info(ctx, "accepted connection")

	buf := make([]byte, BufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			logger.Info(ctx, "received from client", "text", string(buf[:n]))
			if _, werr := io.WriteString(conn, Ack); werr != nil {
				logger.Warn(ctx, werr, "failed to acknowledge")
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Debug(ctx, "connection ended", "error", err.Error())
			}
			return
		}
	}
}

// Close stops accepting and closes every open connection.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	return err
}

// ListenAddr returns the bound address, or "" before Serve.
func (s *Server) ListenAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
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
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) logger() logging.Logger {
	if s.Logger == nil {
		return logging.Nop()
	}
	return s.Logger.WithComponent("echo")
}
