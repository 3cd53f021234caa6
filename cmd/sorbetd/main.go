// Package main is the entry point for sorbetd, the Sorbet language-server
// launcher and supervisor.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dshills/sorbetd/internal/config"
	"github.com/dshills/sorbetd/internal/lifecycle"
	"github.com/dshills/sorbetd/internal/logging"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	settings, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		return 1
	}
	if opts.logLevel != "" {
		settings.LogLevel = opts.logLevel
	}
	if opts.workspace != "" {
		settings.Workspace = opts.workspace
	}

	workspace := settings.Workspace
	if workspace == "" {
		workspace, err = os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}
	workspace, err = filepath.Abs(workspace)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(settings.LogLevel),
		Output: os.Stderr,
		Prefix: "sorbetd",
	})

	manager := lifecycle.NewManager(settings, workspace,
		lifecycle.WithLogger(logger),
		lifecycle.WithNotifier(lifecycle.LogNotifier{Logger: logger}),
	)

	ctx := context.Background()
	if err := manager.Start(ctx); err != nil {
		logger.Error("start: %v", err)
		return 1
	}

	// SIGHUP is the restart command; it works whether or not a server is
	// currently running. SIGINT/SIGTERM shut down.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	for sig := range signals {
		switch sig {
		case syscall.SIGHUP:
			if err := manager.Restart(ctx); err != nil {
				logger.Error("restart: %v", err)
			}
		case syscall.SIGINT, syscall.SIGTERM:
			if err := manager.Stop(ctx); err != nil {
				logger.Error("stop: %v", err)
				return 1
			}
			return 0
		}
	}

	return 0
}

type options struct {
	configPath string
	workspace  string
	logLevel   string
}

func parseFlags() options {
	var opts options
	var showVersion bool

	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.configPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.workspace, "workspace", "", "Workspace/project directory")
	flag.StringVar(&opts.workspace, "w", "", "Workspace/project directory (shorthand)")
	flag.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "sorbetd - Sorbet language-server launcher and supervisor\n\n")
		fmt.Fprintf(os.Stderr, "Usage: sorbetd [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nSignals:\n")
		fmt.Fprintf(os.Stderr, "  SIGHUP             Restart the language server\n")
		fmt.Fprintf(os.Stderr, "  SIGINT, SIGTERM    Stop the language server and exit\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("sorbetd %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		os.Exit(0)
	}

	return opts
}
