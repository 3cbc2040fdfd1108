package siteclear

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "siteclear.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
environment: production
profile:
  dir: /tmp/profile
  url: https://App.Example.com:8443/dashboard/events
storage:
  ram:
    max: 16mb
  disk:
    max: 1gb
  localStorage:
    disabled: true
cookies:
  auth: sid
events:
  origin: http://localhost:3000/
  prefetch: [/events/upcoming]
server:
  port: 9090
reload:
  url: http://localhost:3000/__reload
logging:
  level: debug
  logStatsEvery: 30s
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.True(t, cfg.Production())
	assert.Equal(t, "/tmp/profile", cfg.Profile.Dir)
	assert.Equal(t, "app.example.com", cfg.Hostname())
	assert.Equal(t, "https://app.example.com:8443", cfg.Origin())
	assert.Equal(t, "/dashboard/events", cfg.DocumentPath())
	assert.Equal(t, int64(16<<20), cfg.ramMax)
	assert.Equal(t, int64(1<<30), cfg.diskMax)
	assert.True(t, cfg.Storage.LocalStorage.Disabled)
	assert.Equal(t, "sid", cfg.Cookies.Auth)
	assert.Equal(t, "http://localhost:3000", cfg.Events.Origin)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel())
	assert.Equal(t, 30*time.Second, cfg.Logging.logStatsEveryDur)
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()

	assert.False(t, cfg.Production())
	assert.Equal(t, DefaultProfileDir(), cfg.Profile.Dir)
	assert.Equal(t, "localhost", cfg.Hostname())
	assert.Equal(t, "/", cfg.DocumentPath())
	assert.Equal(t, "token", cfg.Cookies.Auth)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr(), "admin server is loopback-only by default")
	assert.Equal(t, int64(64<<20), cfg.ramMax)
	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel())
	assert.Zero(t, cfg.Logging.logStatsEveryDur)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad environment", "environment: staging\n", "environment"},
		{"no host", "profile:\n  url: /relative\n", "profile.url"},
		{"bad ram size", "storage:\n  ram:\n    max: lots\n", "storage.ram.max"},
		{"bad prefetch", "events:\n  prefetch: [events]\n", "events.prefetch[0]"},
		{"bad level", "logging:\n  level: loud\n", "logging.level"},
		{"bad duration", "logging:\n  logStatsEvery: often\n", "logging.logStatsEvery"},
		{"bad yaml", "storage: [\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadConfig(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Parallel()
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseBytes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"512", 512, false},
		{"512b", 512, false},
		{"64kb", 64 << 10, false},
		{"1.5m", 3 << 19, false},
		{" 2GB ", 2 << 30, false},
		{"", 0, true},
		{"b", 0, true},
		{"kb", 0, true},
		{"-1mb", 0, true},
		{"ten", 0, true},
	}
	for _, tt := range tests {
		got, err := parseBytes(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestFormatBytes(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "512b", formatBytes(512))
	assert.Equal(t, "1kb", formatBytes(1024))
	assert.Equal(t, "1.5mb", formatBytes(3<<19))
	assert.Equal(t, "2gb", formatBytes(2<<30))
}
