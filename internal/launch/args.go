// Package launch builds the Sorbet server command line and spawns the
// server process, wrapping it in an interactive login shell where the
// user's toolchain version manager requires one.
package launch

import "strings"

// Fixed arguments selecting type-check mode with LSP output.
const (
	subcommandTypecheck = "tc"
	flagLSP             = "--lsp"

	// flagAllExperimental is appended when no explicit command options
	// are configured.
	flagAllExperimental = "--enable-all-experimental-lsp-features"

	// flagDisableWatchman is appended when watchman integration is off.
	flagDisableWatchman = "--disable-watchman"

	// analyzerName is the Sorbet executable invoked under "bundle exec".
	analyzerName = "srb"
)

// BuilderConfig holds the configuration values consumed by the command
// builder. It mirrors the launcher-relevant subset of config.Settings.
type BuilderConfig struct {
	CommandPath    string
	UseBundler     bool
	BundlerPath    string
	UseWatchman    bool
	CommandOptions string
}

// Spec is the ordered command token sequence for a single launch attempt.
// The first token is the resolved program name; the rest are arguments.
type Spec []string

// Program returns the executable token.
func (s Spec) Program() string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// Args returns the argument tokens following the program.
func (s Spec) Args() []string {
	if len(s) <= 1 {
		return nil
	}
	return s[1:]
}

// BuildSpec produces the launch spec for the given configuration.
// It is deterministic and performs no I/O.
func BuildSpec(cfg BuilderConfig) Spec {
	var spec Spec

	if cfg.UseBundler {
		bundler := cfg.BundlerPath
		if bundler == "" {
			bundler = "bundle"
		}
		spec = append(spec, bundler, "exec", analyzerName)
	} else {
		command := cfg.CommandPath
		if command == "" {
			command = analyzerName
		}
		spec = append(spec, command)
	}

	spec = append(spec, subcommandTypecheck, flagLSP)

	// Whitespace-only options are treated as absent; a non-empty value is
	// passed through verbatim as a single token.
	if strings.TrimSpace(cfg.CommandOptions) != "" {
		spec = append(spec, cfg.CommandOptions)
	} else {
		spec = append(spec, flagAllExperimental)
	}

	if !cfg.UseWatchman {
		spec = append(spec, flagDisableWatchman)
	}

	return spec
}
