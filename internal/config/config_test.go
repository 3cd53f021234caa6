package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultSettings(t *testing.T) {
	cfg := DefaultSettings()

	if cfg.CommandPath != "srb" {
		t.Errorf("CommandPath = %q, want srb", cfg.CommandPath)
	}
	if cfg.BundlerPath != "bundle" {
		t.Errorf("BundlerPath = %q, want bundle", cfg.BundlerPath)
	}
	if !cfg.UseWatchman {
		t.Error("UseWatchman should default to true")
	}
	if cfg.UseBundler {
		t.Error("UseBundler should default to false")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load returned error for missing file: %v", err)
	}
	if cfg.CommandPath != "srb" {
		t.Errorf("CommandPath = %q, want default srb", cfg.CommandPath)
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sorbetd.toml")
	data := `
command_path = "/usr/local/bin/srb"
use_bundler = true
bundler_path = "/opt/bundle"
use_watchman = false
command_options = "--typed=strict"
log_level = "debug"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.CommandPath != "/usr/local/bin/srb" {
		t.Errorf("CommandPath = %q", cfg.CommandPath)
	}
	if !cfg.UseBundler {
		t.Error("UseBundler should be true")
	}
	if cfg.BundlerPath != "/opt/bundle" {
		t.Errorf("BundlerPath = %q", cfg.BundlerPath)
	}
	if cfg.UseWatchman {
		t.Error("UseWatchman should be false")
	}
	if cfg.CommandOptions != "--typed=strict" {
		t.Errorf("CommandOptions = %q", cfg.CommandOptions)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("command_path = ["), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sorbetd.toml")
	if err := os.WriteFile(path, []byte(`command_path = "from-file"`), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SORBETD_COMMAND_PATH", "from-env")
	t.Setenv("SORBETD_USE_BUNDLER", "true")
	t.Setenv("SORBETD_USE_WATCHMAN", "false")
	t.Setenv("SORBETD_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.CommandPath != "from-env" {
		t.Errorf("CommandPath = %q, want from-env", cfg.CommandPath)
	}
	if !cfg.UseBundler {
		t.Error("UseBundler should be overridden to true")
	}
	if cfg.UseWatchman {
		t.Error("UseWatchman should be overridden to false")
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
}

func TestLoad_BadBoolEnvIgnored(t *testing.T) {
	t.Setenv("SORBETD_USE_BUNDLER", "not-a-bool")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.UseBundler {
		t.Error("unparseable boolean override should be ignored")
	}
}
