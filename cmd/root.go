// Package cmd provides the feasp command-line interface.
//
// Configuration is read from several sources. Highest priority first:
//
//  1. Command-line flags (--port, --engine, ...)
//  2. Environment variables FEASP_<SECTION>_<OPTION> (FEASP_SERVER_PORT, ...)
//  3. The config file: --config, else FEASP_CONFIG_FILE, else .feasp.yml
//     in the working directory
//  4. Built-in defaults
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/feasp/internal/config"
	"github.com/conneroisu/feasp/internal/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "feasp",
	Short: "A small web framework with its own HTTP server",
	Long: `Feasp routes requests to views, renders templates, manages cookies and
sessions, and serves the result either through net/http or its own raw
HTTP/1.1 server.

Quick Start:
  feasp serve                     Serve the demo app on 127.0.0.1:8000
  feasp serve --engine raw        Serve it with the raw socket server
  feasp routes                    List the demo app's routes
  feasp render index.html         Render a template to stdout

Documentation: https://github.com/conneroisu/feasp`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .feasp.yml, can also use FEASP_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig points viper at the config file and the FEASP_ environment.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("FEASP_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".feasp")
	}

	viper.SetEnvPrefix("FEASP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// A missing file is fine; defaults apply.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig loads the effective configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from the log section of cfg.
func newLogger(cfg *config.Config) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	}), nil
}
