package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/feasp/internal/config"
	"github.com/conneroisu/feasp/internal/demo"
	"github.com/conneroisu/feasp/internal/logging"
	"github.com/conneroisu/feasp/internal/rawhttp"
	"github.com/conneroisu/feasp/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Serve the demo application",
	Long: `Serve the demo application until interrupted.

The http engine runs on net/http and, in development, reloads browsers when
templates or static files under --root change. The raw engine parses
HTTP/1.1 itself straight off the TCP connection.

Examples:
  feasp serve                          # http engine on 127.0.0.1:8000
  feasp serve --engine raw -p 9000     # raw engine on port 9000
  feasp serve --root ./site            # templates and static files from ./site`,
	RunE: runServe,
}

var serveFlags *StandardFlags

func init() {
	rootCmd.AddCommand(serveCmd)

	serveFlags = AddStandardFlags(serveCmd, "server", "root")

	if err := BindFlags(serveCmd, map[string]string{
		"host":       "server.host",
		"port":       "server.port",
		"engine":     "server.engine",
		"root":       "app.root",
		"hot-reload": "development.hot_reload",
	}); err != nil {
		panic(err)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Addr(), err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Starting Feasp (%s engine) at http://%s\n", cfg.Server.Engine, ln.Addr())
	return serve(ctx, cfg, logger, ln)
}

// serve runs the demo app on ln with the configured engine until ctx is
// done.
func serve(ctx context.Context, cfg *config.Config, logger logging.Logger, ln net.Listener) error {
	d, err := demo.New(cfg, logger)
	if err != nil {
		ln.Close()
		return fmt.Errorf("failed to build app: %w", err)
	}
	defer d.Close()

	go d.Run(ctx)

	switch cfg.Server.Engine {
	case config.EngineRaw:
		srv := &rawhttp.Server{
			Handler: rawhttp.NewAppHandler(d.App),
			Limits: rawhttp.Limits{
				MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
				MaxBodyBytes:   cfg.Server.MaxBodyBytes,
			},
			ReadTimeout: cfg.Server.ReadTimeout,
			Logger:      logger,
		}
		if err := srv.Serve(ctx, ln); err != nil && err != rawhttp.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	default:
		srv, err := server.New(cfg, d.App, logger)
		if err != nil {
			ln.Close()
			return fmt.Errorf("failed to create server: %w", err)
		}
		return srv.Serve(ctx, ln)
	}
}
