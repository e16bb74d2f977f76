// Package server runs a feasp App on net/http with request logging, panic
// recovery and, in development, live reload of templates and static files.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/feasp/internal/config"
	"github.com/conneroisu/feasp/internal/logging"
	"github.com/conneroisu/feasp/internal/middleware"
	"github.com/conneroisu/feasp/internal/version"
	"github.com/conneroisu/feasp/internal/watcher"
	"github.com/conneroisu/feasp/pkg/feasp"
)

// HealthPath reports server health as JSON.
const HealthPath = "/__feasp/health"

const shutdownTimeout = 30 * time.Second

// Server serves an App over HTTP.
type Server struct {
	config  *config.Config
	app     *feasp.App
	logger  logging.Logger
	hub     *Hub
	watcher *watcher.FileWatcher

	httpServer  *http.Server
	serverMutex sync.RWMutex
	listenAddr  string

	shutdownOnce sync.Once
	isShutdown   bool
}

// New builds a server for app. Hot reload is wired when enabled in cfg and
// the app is served from a directory on disk.
func New(cfg *config.Config, app *feasp.App, logger logging.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("server: config cannot be nil")
	}
	if app == nil {
		return nil, fmt.Errorf("server: app cannot be nil")
	}
	if logger == nil {
		logger = logging.Nop()
	}

	s := &Server{
		config: cfg,
		app:    app,
		logger: logger.WithComponent("server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(HealthPath, s.handleHealth)

	var appHandler http.Handler = app
	if s.hotReload() {
		s.hub = NewHub(logger, "localhost:*", "127.0.0.1:*", cfg.Server.Host+":*")
		mux.Handle(ReloadPath, s.hub)
		appHandler = injectReload(app)

		if cfg.App.Root != "" {
			fw, err := watcher.NewFileWatcher(cfg.Development.Debounce, logger)
			if err != nil {
				return nil, fmt.Errorf("failed to create file watcher: %w", err)
			}
			s.watcher = fw
		}
	}
	mux.Handle("/", appHandler)

	chain := middleware.NewMiddlewareChain(middleware.MiddlewareDependencies{
		Config: cfg,
		Logger: logger,
	})

	s.httpServer = &http.Server{
		Addr:           cfg.Addr(),
		Handler:        chain.Apply(mux),
		ReadTimeout:    cfg.Server.ReadTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}
	return s, nil
}

func (s *Server) hotReload() bool {
	return s.config.Development.HotReload && s.config.IsDevelopment()
}

// Start listens on the configured address and serves until ctx is
// cancelled or the server fails. On cancellation it shuts down gracefully
// and returns nil.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("server: context cannot be nil")
	}
	if s.IsShutdown() {
		return fmt.Errorf("server: already shut down")
	}
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener. The server owns ln afterwards.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if ctx == nil {
		return fmt.Errorf("server: context cannot be nil")
	}

	s.serverMutex.Lock()
	if s.isShutdown {
		s.serverMutex.Unlock()
		ln.Close()
		return fmt.Errorf("server: already shut down")
	}
	server := s.httpServer
	s.listenAddr = ln.Addr().String()
	s.serverMutex.Unlock()

	if s.hub != nil {
		go s.hub.Run(ctx)
	}
	if s.watcher != nil {
		s.setupFileWatcher(ctx)
	}

	s.logger.Info(ctx, "serving", "addr", s.Addr(), "hot_reload", s.hub != nil)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
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

// watchDirs returns the on-disk template and static directories.
func (s *Server) watchDirs() (templates, static string) {
	root := s.config.App.Root
	return filepath.Join(root, s.config.App.TemplateDir), filepath.Join(root, s.config.App.StaticDir)
}

func (s *Server) setupFileWatcher(ctx context.Context) {
	s.watcher.AddFilter(watcher.NoTempFilter)
	s.watcher.AddHandler(s.handleFileChange)

	templates, static := s.watchDirs()
	for _, dir := range []string{templates, static} {
		if err := s.watcher.AddRecursive(dir); err != nil {
			s.logger.Warn(ctx, err, "failed to watch directory", "path", dir)
		}
	}

	if err := s.watcher.Start(ctx); err != nil {
		s.logger.Error(ctx, err, "failed to start file watcher")
	}
}

// handleFileChange drops changed templates from the cache and tells
// browsers to reload.
func (s *Server) handleFileChange(events []watcher.ChangeEvent) error {
	templatesDir, _ := s.watchDirs()
	templatesDir, _ = filepath.Abs(templatesDir)

	paths := make([]string, 0, len(events))
	for _, event := range events {
		paths = append(paths, filepath.ToSlash(event.Path))

		rel, err := filepath.Rel(templatesDir, event.Path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		name := filepath.ToSlash(rel)
		s.app.Templates().Invalidate(name)
		s.logger.Debug(context.Background(), "template changed", "template", name, "change", event.Type.String())
	}

	if s.hub != nil {
		s.hub.Broadcast(ReloadMessage{Type: "reload", Paths: paths})
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   version.Short(),
		"routes":    len(s.app.Routes()),
		"engine":    config.EngineHTTP,
	}
	if s.hub != nil {
		health["reload_clients"] = s.hub.Clients()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Warn(r.Context(), err, "failed to encode health response")
	}
}

// Shutdown stops the watcher, disconnects reload clients and drains the
// HTTP server. Only the first call has an effect.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "shutting down")

		s.serverMutex.Lock()
		s.isShutdown = true
		server := s.httpServer
		s.serverMutex.Unlock()

		if s.watcher != nil {
			if err := s.watcher.Stop(); err != nil {
				s.logger.Warn(ctx, err, "failed to stop file watcher")
			}
		}
		if s.hub != nil {
			s.hub.Close()
		}
		if server != nil {
			if err := server.Shutdown(ctx); err != nil {
				shutdownErr = fmt.Errorf("server shutdown failed: %w", err)
			}
		}
	})

	return shutdownErr
}

// Addr returns the bound address once started, otherwise the configured
// one.
func (s *Server) Addr() string {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	if s.listenAddr != "" {
		return s.listenAddr
	}
	return s.config.Addr()
}

// IsShutdown reports whether Shutdown has been called.
func (s *Server) IsShutdown() bool {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	return s.isShutdown
}
