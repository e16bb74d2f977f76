package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
)

// FuzzLoadConfig checks that arbitrary YAML never panics the loader and that
// anything it accepts is valid.
func FuzzLoadConfig(f *testing.F) {
	f.Add(`server:
  port: 8080
  host: localhost`)
	f.Add(`server:
  port: "invalid_port"`)
	f.Add(`server:
  port: 65536`)
	f.Add(`app:
  template_dir: ../../etc`)
	f.Add(`malformed: yaml: content`)
	f.Add(``)
	f.Add(`session:
  timeout: 5m
development:
  hot_reload: false`)

	f.Fuzz(func(t *testing.T, doc string) {
		if len(doc) > 50000 {
			t.Skip("config too large")
		}

		v := viper.New()
		v.SetConfigType("yaml")
		if err := v.ReadConfig(strings.NewReader(doc)); err != nil {
			return
		}

		cfg, err := LoadFrom(v)
		if err != nil {
			return
		}
		if err := validateConfig(cfg); err != nil {
			t.Errorf("loaded config fails validation: %v", err)
		}
		if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
			t.Errorf("loaded invalid port %d", cfg.Server.Port)
		}
	})
}
