package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/feasp/internal/echo"
)

var echoCmd = &cobra.Command{
	Use:   "echo",
	Short: "Run the TCP echo server or client",
	Long: `A minimal TCP pair. The server logs what it receives and acknowledges
each read; the client sends each line typed until "exit".

Examples:
  feasp echo server                       # listen on 127.0.0.1:5000
  feasp echo client --addr 127.0.0.1:5000`,
}

var echoServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the echo server",
	RunE: func(cmd *cobra.Command, args []string) error {
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

		s := &echo.Server{Addr: echoAddr, Logger: logger}
		return s.ListenAndServe(ctx)
	},
}

var echoClientCmd = &cobra.Command{
	Use:   "client",
	Short: "Run the echo client",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c := &echo.Client{Addr: echoAddr, Prompt: ">>>"}
		return c.Run(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

var echoAddr string

func init() {
	rootCmd.AddCommand(echoCmd)
	echoCmd.AddCommand(echoServerCmd, echoClientCmd)

	echoCmd.PersistentFlags().StringVarP(&echoAddr, "addr", "a", echo.DefaultAddr, "Address to listen on or connect to")
}
