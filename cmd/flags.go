package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/feasp/internal/config"
)

// outputFormats are accepted by -o.
var outputFormats = []string{"table", "json", "yaml"}

// StandardFlags are the flags shared across commands.
type StandardFlags struct {
	// Server flags
	Host      string
	Port      int
	Engine    string
	Root      string
	HotReload bool

	// Output flags
	OutputFormat string
}

// AddStandardFlags adds the named flag groups ("server", "root", "output")
// to cmd.
func AddStandardFlags(cmd *cobra.Command, flagTypes ...string) *StandardFlags {
	flags := &StandardFlags{}

	for _, flagType := range flagTypes {
		switch flagType {
		case "server":
			addServerFlags(cmd, flags)
		case "root":
			addRootFlag(cmd, flags)
		case "output":
			addOutputFlags(cmd, flags)
		}
	}

	return flags
}

func addServerFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().StringVar(&flags.Host, "host", "127.0.0.1", "Host to bind to")
	cmd.Flags().IntVarP(&flags.Port, "port", "p", 8000, "Port to serve on")
	cmd.Flags().StringVarP(&flags.Engine, "engine", "e", config.EngineHTTP, "Server engine (http|raw)")
	cmd.Flags().BoolVar(&flags.HotReload, "hot-reload", true, "Reload browsers when templates or static files change")

	AddFlagValidation(cmd, "port", ValidatePort)
	AddFlagValidation(cmd, "engine", func(engine string) error {
		return ValidateChoice("engine", engine, []string{config.EngineHTTP, config.EngineRaw})
	})
}

func addRootFlag(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().StringVarP(&flags.Root, "root", "r", "", "Directory holding templates/ and static/ (default: embedded demo assets)")
	AddFlagValidation(cmd, "root", ValidateDirExists)
}

func addOutputFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().StringVarP(&flags.OutputFormat, "output", "o", "table", "Output format (table|json|yaml)")
	AddFlagValidation(cmd, "output", func(format string) error {
		return ValidateChoice("output format", format, outputFormats)
	})
}

// BindFlags binds flags of cmd to viper keys. Bound flags override the
// config file and environment only when set on the command line.
func BindFlags(cmd *cobra.Command, bindings map[string]string) error {
	for flagName, configKey := range bindings {
		flag := cmd.Flags().Lookup(flagName)
		if flag == nil {
			return fmt.Errorf("no flag %q to bind to %s", flagName, configKey)
		}
		if err := viper.BindPFlag(configKey, flag); err != nil {
			return fmt.Errorf("bind %s: %w", flagName, err)
		}
	}
	return nil
}

// AddFlagValidation runs validator on every value given to the flag.
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}

	flag.Value = &validatingValue{
		Value:     flag.Value,
		validator: validator,
	}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.Value.Set(val)
}

// ValidatePort accepts 0 (any free port) through 65535.
func ValidatePort(portStr string) error {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port number: %s", portStr)
	}

	if port < 0 || port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", port)
	}

	return nil
}

// ValidateChoice accepts one of choices.
func ValidateChoice(what, value string, choices []string) error {
	if slices.Contains(choices, value) {
		return nil
	}
	return fmt.Errorf("invalid %s %q, must be one of: %s", what, value, strings.Join(choices, ", "))
}

// ValidateDirExists accepts an existing directory or the empty string.
func ValidateDirExists(dir string) error {
	if dir == "" {
		return nil
	}

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("directory does not exist: %s", dir)
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", dir)
	}
	return nil
}

// ParseData parses template data given inline as JSON or, with a leading
// @, as the name of a JSON file.
func ParseData(data string) (map[string]any, error) {
	if data == "" {
		return map[string]any{}, nil
	}

	raw := []byte(data)
	if filename, ok := strings.CutPrefix(data, "@"); ok {
		b, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read data file %s: %w", filename, err)
		}
		raw = b
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("invalid JSON data: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
