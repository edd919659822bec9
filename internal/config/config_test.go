package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// newTestRootCmd mirrors the persistent and run flags of the real root
// command so that Load can bind them.
func newTestRootCmd() *cobra.Command {
	cmd := &cobra.Command{}
	pf := cmd.PersistentFlags()
	pf.String("config", "", "")
	pf.String("log-level", "info", "")
	pf.String("log-format", "text", "")
	pf.Bool("no-color", false, "")
	pf.BoolP("quiet", "q", false, "")

	f := cmd.Flags()
	f.StringSlice("load-path", nil, "")
	f.String("watch-backend", BackendFSNotify, "")
	f.Duration("debounce", DefaultDebounce, "")
	f.String("loader", LoaderExec, "")
	f.String("command", "", "")

	return cmd
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))

	return p
}

// chdirTemp runs the test inside an empty directory so auto-discovery cannot
// pick up a stray .again.yaml.
func chdirTemp(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)

	return dir
}

// ---------------------------------------------------------------------------
// Default / Validate
// ---------------------------------------------------------------------------

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, LogLevelInfo, cfg.LogLevel)
	assert.Equal(t, LogFormatText, cfg.LogFormat)
	assert.Equal(t, BackendFSNotify, cfg.WatchBackend)
	assert.Equal(t, LoaderExec, cfg.Loader)
	assert.Equal(t, DefaultDebounce, cfg.Debounce)
	assert.Equal(t, DefaultPollInterval, cfg.PollInterval)
	assert.Equal(t, DefaultJoinBackoff, cfg.JoinBackoff)
	assert.Equal(t, DefaultGracePeriod, cfg.GracePeriod)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"logfmt accepted", func(c *Config) { c.LogFormat = LogFormatLogfmt }, ""},
		{"poll accepted", func(c *Config) { c.WatchBackend = BackendPoll }, ""},
		{"service accepted", func(c *Config) { c.Loader = LoaderService }, ""},
		{"bad level", func(c *Config) { c.LogLevel = "verbose" }, `log level "verbose"`},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, `log format "xml"`},
		{"bad backend", func(c *Config) { c.WatchBackend = "inotify" }, `watch backend "inotify"`},
		{"bad loader", func(c *Config) { c.Loader = "fork" }, `loader "fork"`},
		{"negative debounce", func(c *Config) { c.Debounce = -time.Second }, "debounce must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, ErrInvalid)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestEffectiveLogLevel(t *testing.T) {
	assert.Equal(t, "debug", (&Config{LogLevel: "debug"}).EffectiveLogLevel())
	assert.Equal(t, "error", (&Config{LogLevel: "debug", Quiet: true}).EffectiveLogLevel())
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

func TestLoad_DefaultsOnly(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, LogLevelInfo, cfg.LogLevel)
	assert.Equal(t, BackendFSNotify, cfg.WatchBackend)
	assert.Equal(t, DefaultDebounce, cfg.Debounce)
	assert.Empty(t, cfg.LoadPath)
	assert.Empty(t, cfg.ConfigFile)
}

func TestLoad_Env(t *testing.T) {
	chdirTemp(t)
	t.Setenv("AGAIN_LOG_LEVEL", "debug")
	t.Setenv("AGAIN_WATCH_BACKEND", "poll")
	t.Setenv("AGAIN_POLL_INTERVAL", "250ms")
	t.Setenv("AGAIN_NO_COLOR", "true")

	cfg, err := Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, BackendPoll, cfg.WatchBackend)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.True(t, cfg.NoColor)
}

func TestLoad_ConfigFile(t *testing.T) {
	chdirTemp(t)

	p := writeTempConfig(t, `
log-format: json
load-path:
  - lib
  - vendor/lib
units:
  - handlers.sh
loader: service
command: "python3 {}"
grace-period: 2s
`)

	cfg, err := Load(nil, p)
	require.NoError(t, err)
	assert.Equal(t, LogFormatJSON, cfg.LogFormat)
	assert.Equal(t, []string{"lib", "vendor/lib"}, cfg.LoadPath)
	assert.Equal(t, []string{"handlers.sh"}, cfg.Units)
	assert.Equal(t, LoaderService, cfg.Loader)
	assert.Equal(t, "python3 {}", cfg.Command)
	assert.Equal(t, 2*time.Second, cfg.GracePeriod)
	assert.Equal(t, p, cfg.ConfigFile)
}

func TestLoad_AutoDiscoversDotfile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".again.yaml"), []byte("watch-backend: poll\n"), 0o600))

	cfg, err := Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, BackendPoll, cfg.WatchBackend)
	assert.Contains(t, cfg.ConfigFile, ".again.yaml")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(nil, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config file")
}

func TestLoad_MalformedFile(t *testing.T) {
	p := writeTempConfig(t, ": invalid yaml :")

	_, err := Load(nil, p)
	require.Error(t, err)
}

func TestLoad_Precedence(t *testing.T) {
	chdirTemp(t)
	t.Setenv("AGAIN_LOADER", "service")
	p := writeTempConfig(t, "loader: exec\ncommand: from-file\n")

	cfg, err := Load(nil, p)
	require.NoError(t, err)
	assert.Equal(t, LoaderService, cfg.Loader, "env beats file")
	assert.Equal(t, "from-file", cfg.Command)

	cmd := newTestRootCmd()
	require.NoError(t, cmd.Flags().Set("loader", "exec"))
	require.NoError(t, cmd.Flags().Set("command", "from-flag"))

	cfg, err = Load(cmd, p)
	require.NoError(t, err)
	assert.Equal(t, LoaderExec, cfg.Loader, "flag beats env")
	assert.Equal(t, "from-flag", cfg.Command, "flag beats file")
}

func TestLoad_SliceFlag(t *testing.T) {
	chdirTemp(t)

	cmd := newTestRootCmd()
	require.NoError(t, cmd.Flags().Set("load-path", "a,b"))

	cfg, err := Load(cmd, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, cfg.LoadPath)
}

func TestLoad_InvalidValue(t *testing.T) {
	chdirTemp(t)
	t.Setenv("AGAIN_WATCH_BACKEND", "kqueue")

	_, err := Load(nil, "")
	assert.ErrorIs(t, err, ErrInvalid)
}

// ---------------------------------------------------------------------------
// Context helpers
// ---------------------------------------------------------------------------

func TestContext_RoundTrip(t *testing.T) {
	cfg := &Config{LogLevel: "debug", LogFormat: "json"}
	assert.Equal(t, cfg, FromContext(NewContext(context.Background(), cfg)))
}

func TestFromContext_FallbackToDefault(t *testing.T) {
	assert.Equal(t, Default(), FromContext(context.Background()))
}
