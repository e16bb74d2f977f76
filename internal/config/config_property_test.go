//go:build property
// +build property

package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestConfigurationProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("ports in range validate", prop.ForAll(
		func(port int, host string) bool {
			cfg := Default()
			cfg.Server.Port = port
			cfg.Server.Host = host
			return validateConfig(cfg) == nil
		},
		gen.IntRange(0, 65535),
		gen.Identifier(),
	))

	properties.Property("ports out of range are rejected", prop.ForAll(
		func(port int) bool {
			cfg := Default()
			cfg.Server.Port = port
			return validateConfig(cfg) != nil
		},
		gen.OneGenOf(gen.IntRange(-100000, -1), gen.IntRange(65536, 1000000)),
	))

	properties.Property("hosts with shell characters are rejected", prop.ForAll(
		func(prefix string, char string) bool {
			cfg := Default()
			cfg.Server.Host = prefix + char
			return validateConfig(cfg) != nil
		},
		gen.Identifier(),
		gen.OneConstOf(";", "&", "|", "$", "`", " ", "<", ">"),
	))

	properties.Property("directories escaping the root are rejected", prop.ForAll(
		func(depth int, name string) bool {
			cfg := Default()
			cfg.App.TemplateDir = strings.Repeat(".."+string(filepath.Separator), depth) + name
			return validateConfig(cfg) != nil
		},
		gen.IntRange(1, 5),
		gen.Identifier(),
	))

	properties.Property("relative directories validate", prop.ForAll(
		func(parts []string) bool {
			if len(parts) == 0 {
				return true
			}
			cfg := Default()
			cfg.App.StaticDir = filepath.Join(parts...)
			return validateConfig(cfg) == nil
		},
		gen.SliceOfN(3, gen.Identifier()),
	))

	properties.TestingRun(t)
}
