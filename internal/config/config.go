// Package config provides configuration management for Feasp using Viper
// for loading from files, environment variables, and command-line flags.
//
// The configuration system supports YAML files, environment variable overrides
// with the FEASP_ prefix, defaults and validation. It covers server binding and
// limits, the application root with its template and static directories,
// sessions, development hot reload, the demo database and logging.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Server engines.
const (
	EngineHTTP = "http"
	EngineRaw  = "raw"
)

type Config struct {
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	App         AppConfig         `yaml:"app" mapstructure:"app"`
	Session     SessionConfig     `yaml:"session" mapstructure:"session"`
	Development DevelopmentConfig `yaml:"development" mapstructure:"development"`
	Database    DatabaseConfig    `yaml:"database" mapstructure:"database"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

type ServerConfig struct {
	Host           string        `yaml:"host" mapstructure:"host"`
	Port           int           `yaml:"port" mapstructure:"port"`
	Engine         string        `yaml:"engine" mapstructure:"engine"`
	Environment    string        `yaml:"environment" mapstructure:"environment"`
	ReadTimeout    time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	MaxHeaderBytes int           `yaml:"max_header_bytes" mapstructure:"max_header_bytes"`
}

type AppConfig struct {
	// Root is the directory holding templates/ and static/. Empty means the
	// embedded demo assets.
	Root        string `yaml:"root" mapstructure:"root"`
	TemplateDir string `yaml:"template_dir" mapstructure:"template_dir"`
	StaticDir   string `yaml:"static_dir" mapstructure:"static_dir"`
}

type SessionConfig struct {
	CookieName    string        `yaml:"cookie_name" mapstructure:"cookie_name"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	PurgeInterval time.Duration `yaml:"purge_interval" mapstructure:"purge_interval"`
}

type DevelopmentConfig struct {
	HotReload bool          `yaml:"hot_reload" mapstructure:"hot_reload"`
	Debounce  time.Duration `yaml:"debounce" mapstructure:"debounce"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// IsDevelopment reports whether the server runs in the development
// environment.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "" || c.Server.Environment == "development"
}

// Addr returns host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Load reads the configuration currently held by the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v, applies defaults and validates it.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// SetDefaults registers every configuration key on v with its default
// value. AutomaticEnv only resolves keys viper already knows, so a FEASP_*
// variable for a key missing from the config file needs this.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.engine", d.Server.Engine)
	v.SetDefault("server.environment", d.Server.Environment)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.max_body_bytes", d.Server.MaxBodyBytes)
	v.SetDefault("server.max_header_bytes", d.Server.MaxHeaderBytes)

	v.SetDefault("app.root", d.App.Root)
	v.SetDefault("app.template_dir", d.App.TemplateDir)
	v.SetDefault("app.static_dir", d.App.StaticDir)

	v.SetDefault("session.cookie_name", d.Session.CookieName)
	v.SetDefault("session.timeout", d.Session.Timeout)
	v.SetDefault("session.purge_interval", d.Session.PurgeInterval)

	v.SetDefault("development.hot_reload", d.Development.HotReload)
	v.SetDefault("development.debounce", d.Development.Debounce)

	v.SetDefault("database.dsn", d.Database.DSN)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Default returns a configuration holding only default values.
func Default() *Config {
	config := &Config{Development: DevelopmentConfig{HotReload: true}}
	applyDefaults(config)
	return config
}

func applyDefaults(config *Config) {
	if config.Server.Host == "" {
		config.Server.Host = "127.0.0.1"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8000
	}
	if config.Server.Engine == "" {
		config.Server.Engine = EngineHTTP
	}
	if config.Server.Environment == "" {
		config.Server.Environment = "development"
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = 30 * time.Second
	}
	if config.Server.MaxBodyBytes == 0 {
		config.Server.MaxBodyBytes = 10 << 20
	}
	if config.Server.MaxHeaderBytes == 0 {
		config.Server.MaxHeaderBytes = 64 << 10
	}

	if config.App.TemplateDir == "" {
		config.App.TemplateDir = "templates"
	}
	if config.App.StaticDir == "" {
		config.App.StaticDir = "static"
	}

	if config.Session.CookieName == "" {
		config.Session.CookieName = "feaspSessionId"
	}
	if config.Session.Timeout == 0 {
		config.Session.Timeout = time.Hour
	}
	if config.Session.PurgeInterval == 0 {
		config.Session.PurgeInterval = time.Minute
	}

	if config.Development.Debounce == 0 {
		config.Development.Debounce = 300 * time.Millisecond
	}

	if config.Database.DSN == "" {
		config.Database.DSN = ":memory:"
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateAppConfig(&config.App); err != nil {
		return fmt.Errorf("app config: %w", err)
	}

	if config.Session.Timeout < 0 || config.Session.PurgeInterval < 0 {
		return fmt.Errorf("session config: durations must not be negative")
	}

	switch config.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log config: unknown format %q", config.Log.Format)
	}

	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Allow 0 for system-assigned ports in testing
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\", " "}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %q", char)
			}
		}
	}

	switch config.Engine {
	case EngineHTTP, EngineRaw:
	default:
		return fmt.Errorf("unknown engine %q (want %s or %s)", config.Engine, EngineHTTP, EngineRaw)
	}

	if config.ReadTimeout < 0 {
		return fmt.Errorf("read_timeout must not be negative")
	}
	if config.MaxBodyBytes < 0 || config.MaxHeaderBytes < 0 {
		return fmt.Errorf("request limits must not be negative")
	}

	return nil
}

func validateAppConfig(config *AppConfig) error {
	if err := validateRelativeDir("template_dir", config.TemplateDir); err != nil {
		return err
	}
	return validateRelativeDir("static_dir", config.StaticDir)
}

// validateRelativeDir rejects directories that escape the app root.
func validateRelativeDir(name, dir string) error {
	if dir == "" {
		return fmt.Errorf("%s is empty", name)
	}

	cleanPath := filepath.Clean(dir)
	if filepath.IsAbs(cleanPath) {
		return fmt.Errorf("%s should be relative to the app root: %s", name, dir)
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%s contains path traversal: %s", name, dir)
	}

	return nil
}
