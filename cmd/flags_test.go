package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePort(t *testing.T) {
	for _, ok := range []string{"0", "80", "8000", "65535"} {
		assert.NoError(t, ValidatePort(ok), ok)
	}
	for _, bad := range []string{"-1", "65536", "http", ""} {
		assert.Error(t, ValidatePort(bad), bad)
	}
}

func TestValidateChoice(t *testing.T) {
	assert.NoError(t, ValidateChoice("engine", "raw", []string{"http", "raw"}))
	err := ValidateChoice("engine", "tcp", []string{"http", "raw"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http, raw")
}

func TestValidateDirExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	assert.NoError(t, ValidateDirExists(""))
	assert.NoError(t, ValidateDirExists(dir))
	assert.Error(t, ValidateDirExists(file))
	assert.Error(t, ValidateDirExists(filepath.Join(dir, "missing")))
}

func TestParseData(t *testing.T) {
	data, err := ParseData("")
	require.NoError(t, err)
	assert.Empty(t, data)

	data, err = ParseData(`{"a":1,"b":["x"]}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1), "b": []any{"x"}}, data)

	file := filepath.Join(t.TempDir(), "d.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"k":"v"}`), 0o644))
	data, err = ParseData("@" + file)
	require.NoError(t, err)
	assert.Equal(t, "v", data["k"])

	_, err = ParseData("{")
	assert.Error(t, err)
	_, err = ParseData("@/does/not/exist.json")
	assert.Error(t, err)
	data, err = ParseData("null")
	require.NoError(t, err)
	assert.NotNil(t, data)
}

func TestAddFlagValidation(t *testing.T) {
	cmd := &cobra.Command{Use: "x"}
	flags := AddStandardFlags(cmd, "server", "output")

	assert.NoError(t, cmd.Flags().Set("port", "9000"))
	assert.Equal(t, 9000, flags.Port)
	assert.Error(t, cmd.Flags().Set("port", "99999"))
	assert.Equal(t, 9000, flags.Port, "rejected values leave the flag unchanged")

	assert.NoError(t, cmd.Flags().Set("output", "yaml"))
	assert.Equal(t, "yaml", flags.OutputFormat)
	assert.Error(t, cmd.Flags().Set("output", "csv"))

	assert.Equal(t, "int", cmd.Flags().Lookup("port").Value.Type())
}

func TestBindFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "x"}
	AddStandardFlags(cmd, "root")
	assert.NoError(t, BindFlags(cmd, map[string]string{"root": "test.bind_root"}))
	assert.Error(t, BindFlags(cmd, map[string]string{"nope": "test.nope"}))
}

func TestValidateTemplateName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"index.html", false},
		{"partials/nav.html", false},
		{"a..b.html", false},
		{"", true},
		{"../etc/passwd", true},
		{"partials/../../x.html", true},
		{"/etc/passwd", true},
		{`..\windows.html`, true},
		{"nul\x00.html", true},
	}
	for _, tt := range tests {
		err := validateTemplateName(tt.name)
		if tt.wantErr {
			assert.Error(t, err, tt.name)
		} else {
			assert.NoError(t, err, tt.name)
		}
	}
}
