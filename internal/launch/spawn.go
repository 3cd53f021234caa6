package launch

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"

	"github.com/dshills/sorbetd/internal/logging"
)

// defaultShell is used on Unix-like systems when $SHELL is unset.
const defaultShell = "/bin/bash"

// SpawnOptions carries the spawn-time environment for a launch attempt.
// Immutable once constructed.
type SpawnOptions struct {
	// Dir is the working directory, typically the workspace root.
	// Empty means the current directory.
	Dir string

	// Env is the process environment. Nil means the inherited environment.
	Env []string
}

// CommandLine is the resolved program invocation after shell wrapping has
// been decided: either the spec's program with its unmodified arguments,
// or a login shell with a quoted command string.
type CommandLine struct {
	Program string
	Args    []string
}

// isUnixLike reports whether the OS uses interactive-shell toolchain
// initialization (rvm, rbenv and similar source their setup from the
// user's shell init files).
func isUnixLike(goos string) bool {
	return goos == "darwin" || goos == "linux"
}

// wrapsInShell reports whether the resolved shell warrants login-shell
// wrapping. Only bash and zsh carry version-manager setup in their init
// files.
func wrapsInShell(shellPath string) bool {
	name := filepath.Base(shellPath)
	return strings.HasSuffix(name, "bash") || strings.HasSuffix(name, "zsh")
}

// shellCommandString builds the single command string passed to the login
// shell: every spec token quoted and space-joined, with a quoted
// "cd <dir> &&" segment prepended when a working directory is set.
func shellCommandString(spec Spec, dir string) string {
	cmd := shellquote.Join(spec...)
	if dir != "" {
		cmd = shellquote.Join("cd", dir) + " && " + cmd
	}
	return cmd
}

// ResolveCommandLine decides, for the given OS and shell, whether the spec
// is invoked directly or wrapped in a login, non-interactive shell.
func ResolveCommandLine(spec Spec, opts SpawnOptions, goos, shell string) CommandLine {
	if isUnixLike(goos) {
		if shell == "" {
			shell = defaultShell
		}
		if wrapsInShell(shell) {
			return CommandLine{
				Program: shell,
				Args:    []string{"-l", "-c", shellCommandString(spec, opts.Dir)},
			}
		}
	}
	return CommandLine{Program: spec.Program(), Args: spec.Args()}
}

// Spawn starts the analyzer server described by spec and returns a live
// process handle with piped standard streams. The process's stderr is
// forwarded to logger line-by-line as it arrives.
//
// An error is returned only when the OS-level start itself fails; a server
// that starts and then dies (missing gem, misconfigured toolchain) is
// observed through the handle's Done channel and exit code.
func Spawn(spec Spec, opts SpawnOptions, logger *logging.Logger) (*Process, error) {
	if len(spec) == 0 {
		return nil, ErrEmptySpec
	}
	if logger == nil {
		logger = logging.NullLogger
	}

	line := ResolveCommandLine(spec, opts, runtime.GOOS, os.Getenv("SHELL"))

	cmd := exec.Command(line.Program, line.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env

	proc := newProcess(uuid.New().String(), cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	proc.Stdin = stdin

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	proc.Stdout = stdout

	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}
	proc.Stderr = stderr

	if err := proc.start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, err
	}

	go proc.forwardStderr(logger.WithComponent("sorbet-stderr"))

	return proc, nil
}
