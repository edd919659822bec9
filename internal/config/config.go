// Package config provides configuration management for again.
//
// Configuration is loaded from three sources with the following precedence
// (highest to lowest):
//  1. CLI flags
//  2. Environment variables (AGAIN_ prefix)
//  3. Config file (.again.yaml)
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Supported log levels.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Supported log formats.
const (
	LogFormatText   = "text"
	LogFormatLogfmt = "logfmt"
	LogFormatJSON   = "json"
)

// Supported watch backends.
const (
	BackendFSNotify = "fsnotify"
	BackendPoll     = "poll"
)

// Supported unit loaders.
const (
	LoaderExec    = "exec"
	LoaderService = "service"
)

// Default timings.
const (
	DefaultDebounce     = 100 * time.Millisecond
	DefaultPollInterval = time.Second
	DefaultJoinBackoff  = 500 * time.Millisecond
	DefaultGracePeriod  = 5 * time.Second
)

// ErrInvalid marks a configuration value outside its allowed range.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the global configuration for again.
type Config struct {
	// LogLevel controls the verbosity of log output.
	// Valid values: debug, info, warn, error.
	LogLevel string `mapstructure:"log-level" json:"logLevel"`

	// LogFormat controls the format of log output.
	// Valid values: text, logfmt, json.
	LogFormat string `mapstructure:"log-format" json:"logFormat"`

	// NoColor disables colored output.
	NoColor bool `mapstructure:"no-color" json:"noColor"`

	// Quiet suppresses all log output below error level.
	Quiet bool `mapstructure:"quiet" json:"quiet"`

	// LoadPath lists directories that relative unit ids resolve against.
	LoadPath []string `mapstructure:"load-path" json:"loadPath"`

	// Units lists additional loaded unit ids.
	Units []string `mapstructure:"units" json:"units"`

	// PseudoUnits lists unit ids that have no source file. Empty means the
	// built-in list.
	PseudoUnits []string `mapstructure:"pseudo-units" json:"pseudoUnits"`

	// WatchBackend selects the change notification mechanism.
	// Valid values: fsnotify, poll.
	WatchBackend string `mapstructure:"watch-backend" json:"watchBackend"`

	Debounce     time.Duration `mapstructure:"debounce" json:"debounce"`
	PollInterval time.Duration `mapstructure:"poll-interval" json:"pollInterval"`
	JoinBackoff  time.Duration `mapstructure:"join-backoff" json:"joinBackoff"`

	// Loader selects how units are re-executed.
	// Valid values: exec, service.
	Loader string `mapstructure:"loader" json:"loader"`

	// Command is the loader's command template; "{}" is replaced by the
	// path being loaded.
	Command string `mapstructure:"command" json:"command"`

	// GracePeriod bounds how long a service loader waits for the previous
	// process to exit before killing it.
	GracePeriod time.Duration `mapstructure:"grace-period" json:"gracePeriod"`

	// ConfigFile is the resolved path to the config file used.
	// Set after Load(), not read from config itself.
	ConfigFile string `mapstructure:"-" json:"-"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel:     LogLevelInfo,
		LogFormat:    LogFormatText,
		WatchBackend: BackendFSNotify,
		Debounce:     DefaultDebounce,
		PollInterval: DefaultPollInterval,
		JoinBackoff:  DefaultJoinBackoff,
		Loader:       LoaderExec,
		GracePeriod:  DefaultGracePeriod,
	}
}

// Validate checks that all config values are valid.
func (c *Config) Validate() error {
	checks := []struct {
		name    string
		value   string
		allowed []string
	}{
		{"log level", c.LogLevel, []string{LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError}},
		{"log format", c.LogFormat, []string{LogFormatText, LogFormatLogfmt, LogFormatJSON}},
		{"watch backend", c.WatchBackend, []string{BackendFSNotify, BackendPoll}},
		{"loader", c.Loader, []string{LoaderExec, LoaderService}},
	}

	for _, check := range checks {
		if !slices.Contains(check.allowed, check.value) {
			return fmt.Errorf("%w: %s %q must be one of %s",
				ErrInvalid, check.name, check.value, strings.Join(check.allowed, ", "))
		}
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"debounce", c.Debounce},
		{"poll-interval", c.PollInterval},
		{"join-backoff", c.JoinBackoff},
		{"grace-period", c.GracePeriod},
	}

	for _, d := range durations {
		if d.value < 0 {
			return fmt.Errorf("%w: %s must not be negative, got %s", ErrInvalid, d.name, d.value)
		}
	}

	return nil
}

// EffectiveLogLevel returns the log level to use. When Quiet is true the log
// level is overridden to "error" regardless of the configured LogLevel.
func (c *Config) EffectiveLogLevel() string {
	if c.Quiet {
		return LogLevelError
	}

	return c.LogLevel
}

// Load initialises configuration from flags, environment variables, and an
// optional config file. A fresh viper instance is used on every call so that
// Load is safe for concurrent tests.
func Load(cmd *cobra.Command, configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)
	configureEnv(v)

	if err := configureFile(v, configFile); err != nil {
		return nil, err
	}

	if err := bindFlags(v, cmd); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("log-format", d.LogFormat)
	v.SetDefault("no-color", false)
	v.SetDefault("quiet", false)
	v.SetDefault("load-path", []string{})
	v.SetDefault("units", []string{})
	v.SetDefault("pseudo-units", []string{})
	v.SetDefault("watch-backend", d.WatchBackend)
	v.SetDefault("debounce", d.Debounce)
	v.SetDefault("poll-interval", d.PollInterval)
	v.SetDefault("join-backoff", d.JoinBackoff)
	v.SetDefault("loader", d.Loader)
	v.SetDefault("command", "")
	v.SetDefault("grace-period", d.GracePeriod)
}

func configureEnv(v *viper.Viper) {
	v.SetEnvPrefix("AGAIN")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
}

func configureFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %q: %w", configFile, err)
		}

		return nil
	}

	v.SetConfigName(".again")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "again"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}

		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// bindFlags walks from cmd up to the root and binds all PersistentFlags.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	if cmd == nil {
		return nil
	}

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	for c := cmd; c != nil; c = c.Parent() {
		if err := v.BindPFlags(c.PersistentFlags()); err != nil {
			return fmt.Errorf("binding persistent flags: %w", err)
		}
	}

	return nil
}

// ---------------------------------------------------------------------------
// Context helpers
// ---------------------------------------------------------------------------

type ctxKey struct{}

// NewContext returns a child context carrying cfg.
func NewContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, ctxKey{}, cfg)
}

// FromContext extracts a Config from ctx, falling back to Default().
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(ctxKey{}).(*Config); ok {
		return cfg
	}

	return Default()
}
