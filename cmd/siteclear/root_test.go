package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siteclear/internal/siteclear"
)

func TestParseCookieArg(t *testing.T) {
	t.Parallel()
	c, err := parseCookieArg("session=abc=def")
	require.NoError(t, err)
	assert.Equal(t, "session", c.Name)
	assert.Equal(t, "abc=def", c.Value)

	for _, bad := range []string{"", "novalue", "=x"} {
		_, err := parseCookieArg(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func execute(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

// The commands share package-level flag state, so this test runs them in
// sequence instead of in parallel.
func TestCommandsAgainstProfile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "siteclear.yaml")
	cfg := "profile:\n  dir: " + filepath.Join(dir, "profile") + "\n  url: http://localhost/app/\nlogging:\n  level: error\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	execute(t, "", "--config", cfgPath, "set", "cookie", "session=abc")
	execute(t, "", "--config", cfgPath, "set", "local", "x", "1")
	execute(t, "", "--config", cfgPath, "set", "local", "y", "2")
	execute(t, "body", "--config", cfgPath, "set", "cache", "static-v1", "http://localhost/app.js")
	id := execute(t, "", "--config", cfgPath, "register-worker", "/app/", "/sw.js")
	assert.NotEmpty(t, strings.TrimSpace(id))

	var info siteclear.CacheInfo
	require.NoError(t, json.Unmarshal([]byte(execute(t, "", "--config", cfgPath, "info", "--json")), &info))
	assert.Equal(t, siteclear.CacheInfo{Cookies: 1, LocalStorage: 2}, info)

	execute(t, "", "--config", cfgPath, "clear", "--local")
	require.NoError(t, json.Unmarshal([]byte(execute(t, "", "--config", cfgPath, "info", "--json")), &info))
	assert.Equal(t, siteclear.CacheInfo{Cookies: 1}, info)

	out := execute(t, "", "--config", cfgPath, "--yes", "--no-reload", "clear-all")
	assert.Contains(t, out, "All caches cleared.")
	require.NoError(t, json.Unmarshal([]byte(execute(t, "", "--config", cfgPath, "info", "--json")), &info))
	assert.Equal(t, siteclear.CacheInfo{}, info)
}
