// Package config loads sorbetd settings from a TOML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// Default values for settings left unset.
const (
	DefaultCommandPath = "srb"
	DefaultBundlerPath = "bundle"
)

// Settings holds the configuration consumed by the launcher and lifecycle
// manager. Zero values mean "use the default" where a default exists.
type Settings struct {
	// CommandPath is the Sorbet executable used when UseBundler is false.
	CommandPath string `toml:"command_path"`

	// UseBundler runs the analyzer through "bundle exec" instead of
	// invoking CommandPath directly.
	UseBundler bool `toml:"use_bundler"`

	// BundlerPath is the bundler executable used when UseBundler is set.
	BundlerPath string `toml:"bundler_path"`

	// UseWatchman enables the analyzer's own watchman integration.
	// When false, the launcher passes the disable flag.
	UseWatchman bool `toml:"use_watchman"`

	// CommandOptions is appended verbatim as a single argument when
	// non-empty after trimming.
	CommandOptions string `toml:"command_options"`

	// Workspace is the project root. Defaults to the working directory.
	Workspace string `toml:"workspace"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`
}

// DefaultSettings returns settings with all defaults applied.
func DefaultSettings() Settings {
	return Settings{
		CommandPath: DefaultCommandPath,
		BundlerPath: DefaultBundlerPath,
		UseWatchman: true,
		LogLevel:    "info",
	}
}

// Load reads settings from the given TOML path and applies SORBETD_*
// environment overrides on top. A missing file is not an error; the
// defaults are returned with environment overrides applied.
func Load(path string) (Settings, error) {
	cfg := DefaultSettings()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("reading config file %s: %w", path, err)
			}
		} else if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv layers SORBETD_* environment variables over file values.
// Empty string values are treated as valid values, not as unset.
func applyEnv(cfg *Settings) {
	if v, ok := os.LookupEnv("SORBETD_COMMAND_PATH"); ok {
		cfg.CommandPath = v
	}
	if v, ok := os.LookupEnv("SORBETD_BUNDLER_PATH"); ok {
		cfg.BundlerPath = v
	}
	if v, ok := os.LookupEnv("SORBETD_COMMAND_OPTIONS"); ok {
		cfg.CommandOptions = v
	}
	if v, ok := os.LookupEnv("SORBETD_WORKSPACE"); ok {
		cfg.Workspace = v
	}
	if v, ok := os.LookupEnv("SORBETD_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("SORBETD_USE_BUNDLER"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.UseBundler = b
		}
	}
	if v, ok := os.LookupEnv("SORBETD_USE_WATCHMAN"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.UseWatchman = b
		}
	}
}
