// Package lifecycle owns the single active connection between the editor
// integration and the analyzer server: starting it, restarting it, and
// tearing it down without leaking processes.
package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.lsp.dev/protocol"

	"github.com/dshills/sorbetd/internal/config"
	"github.com/dshills/sorbetd/internal/launch"
	"github.com/dshills/sorbetd/internal/logging"
	"github.com/dshills/sorbetd/internal/lsp"
	"github.com/dshills/sorbetd/internal/watch"
)

// markerRelPath is the project marker file, relative to the workspace
// root, whose presence opts the project in to the analyzer.
const markerRelPath = "sorbet/config"

// Grace periods applied during teardown.
const (
	terminateGrace = 5 * time.Second
	killGrace      = 2 * time.Second
)

// State represents the lifecycle state of the managed connection.
type State int32

const (
	// StateIdle means no connection is active.
	StateIdle State = iota
	// StateStarting means a spawn has been initiated and the protocol
	// handshake is in flight.
	StateStarting
	// StateRunning means the protocol client started successfully.
	StateRunning
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Notifier surfaces user-visible notices. The integration emits exactly
// two: the config-not-found notice and the restart confirmation.
type Notifier interface {
	Info(msg string)
}

// LogNotifier routes notices to the diagnostic log.
type LogNotifier struct {
	Logger *logging.Logger
}

// Info logs the notice at info level.
func (n LogNotifier) Info(msg string) {
	n.Logger.Info("%s", msg)
}

// ProtocolClient is the subset of the protocol client the manager drives.
type ProtocolClient interface {
	Initialize(ctx context.Context, rootPath string) (*protocol.InitializeResult, error)
	Shutdown(ctx context.Context) error
	NotifyWatchedFilesChanged(ctx context.Context, changes []*protocol.FileEvent) error
}

// ServerProcess is the subset of the process handle the manager drives.
type ServerProcess interface {
	Done() <-chan struct{}
	ExitCode() int
	ExitError() error
	Runtime() time.Duration
	PID() int
	Terminate() error
	Kill() error
	Close() error
}

// workspaceWatcher is the file-change subscription held by a connection.
type workspaceWatcher interface {
	Events() <-chan watch.Event
	Errors() <-chan error
	Close() error
}

// launchFunc spawns the server and binds a protocol client to it.
type launchFunc func(spec launch.Spec, opts launch.SpawnOptions) (ServerProcess, ProtocolClient, error)

// newWatcherFunc creates the file-change subscription for a workspace.
type newWatcherFunc func(root string) (workspaceWatcher, error)

// Connection is the active (client, process) pair plus its file-change
// subscription. Exactly one Connection is live at a time.
type Connection struct {
	ID      string
	Client  ProtocolClient
	Process ServerProcess
	watcher workspaceWatcher

	// stopping is closed when an explicit stop begins, so the exit
	// observer can tell a requested shutdown from a crash.
	stopping chan struct{}
	// observers are done when this is closed and drained.
	wg sync.WaitGroup
}

// Manager is the connection lifecycle state machine. It is safe for
// concurrent use, though start/restart are expected to be user-serial.
type Manager struct {
	mu sync.Mutex

	settings  config.Settings
	workspace string

	logger   *logging.Logger
	notifier Notifier

	// Single slot for the active connection; nil when Idle.
	conn *Connection

	state atomic.Int32

	launcher   launchFunc
	newWatcher newWatcherFunc
}

// Option configures the manager.
type Option func(*Manager)

// WithNotifier sets the notice sink.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) {
		m.notifier = n
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates a lifecycle manager for the given workspace root.
func NewManager(settings config.Settings, workspace string, opts ...Option) *Manager {
	m := &Manager{
		settings:  settings,
		workspace: workspace,
		logger:    logging.NullLogger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.notifier == nil {
		m.notifier = LogNotifier{Logger: m.logger}
	}
	m.launcher = m.spawnAndBind
	m.newWatcher = func(root string) (workspaceWatcher, error) {
		return watch.New(root)
	}
	m.state.Store(int32(StateIdle))
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Connection returns the active connection, or nil when Idle.
func (m *Manager) Connection() *Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// spawnAndBind is the production launcher: spawn the process and speak
// the protocol over its standard streams.
func (m *Manager) spawnAndBind(spec launch.Spec, opts launch.SpawnOptions) (ServerProcess, ProtocolClient, error) {
	proc, err := launch.Spawn(spec, opts, m.logger)
	if err != nil {
		return nil, nil, err
	}
	client := lsp.NewClient(lsp.NewStdioStream(proc.Stdout, proc.Stdin), m.logger)
	return proc, client, nil
}

// Start launches the analyzer server and brings the connection to Running.
//
// Start is only valid from Idle. When the workspace has no project marker
// file the launch is a deliberate no-op: one informational notice is
// emitted and the manager stays Idle with a nil error.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startLocked(ctx)
}

// startLocked implements Start (must hold mu).
func (m *Manager) startLocked(ctx context.Context) error {
	if m.State() != StateIdle {
		return ErrAlreadyRunning
	}
	if m.workspace == "" {
		return ErrNoWorkspace
	}

	marker := filepath.Join(m.workspace, filepath.FromSlash(markerRelPath))
	if _, err := os.Stat(marker); err != nil {
		m.notifier.Info("Sorbet config not found in workspace, not starting the language server")
		return nil
	}

	m.state.Store(int32(StateStarting))

	spec := launch.BuildSpec(launch.BuilderConfig{
		CommandPath:    m.settings.CommandPath,
		UseBundler:     m.settings.UseBundler,
		BundlerPath:    m.settings.BundlerPath,
		UseWatchman:    m.settings.UseWatchman,
		CommandOptions: m.settings.CommandOptions,
	})

	proc, client, err := m.launcher(spec, launch.SpawnOptions{Dir: m.workspace})
	if err != nil {
		m.state.Store(int32(StateIdle))
		return err
	}

	conn := &Connection{
		ID:       newConnectionID(),
		Client:   client,
		Process:  proc,
		stopping: make(chan struct{}),
	}

	if _, err := client.Initialize(ctx, m.workspace); err != nil {
		// The handshake failed; the process must not outlive it.
		close(conn.stopping)
		_ = client.Shutdown(ctx)
		m.reap(proc)
		m.state.Store(int32(StateIdle))
		return err
	}

	if w, werr := m.newWatcher(m.workspace); werr != nil {
		m.logger.Warn("file watcher unavailable: %v", werr)
	} else if w != nil {
		conn.watcher = w
		conn.wg.Add(1)
		go m.forwardFileEvents(conn)
	}

	conn.wg.Add(1)
	go m.observeExit(conn)

	m.conn = conn
	m.state.Store(int32(StateRunning))
	m.logger.Info("sorbet server started (pid %d)", proc.PID())

	return nil
}

// Restart stops the current connection, if any, and starts a new one.
// The old connection's stop handshake fully completes before the new
// start's spawn begins; two live server processes never coexist.
func (m *Manager) Restart(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.stopLocked(ctx); err != nil {
		return err
	}
	if err := m.startLocked(ctx); err != nil {
		return err
	}

	if m.State() == StateRunning {
		m.notifier.Info("Sorbet server restarted")
	}
	return nil
}

// Stop tears down the active connection. Calling Stop while Idle is a
// no-op returning immediately.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked(ctx)
}

// stopLocked implements Stop (must hold mu).
func (m *Manager) stopLocked(ctx context.Context) error {
	conn := m.conn
	if conn == nil {
		m.state.Store(int32(StateIdle))
		return nil
	}

	close(conn.stopping)

	if conn.watcher != nil {
		_ = conn.watcher.Close()
	}

	// Graceful protocol shutdown first; a dead server makes this a no-op.
	err := conn.Client.Shutdown(ctx)

	m.reap(conn.Process)
	conn.wg.Wait()

	m.conn = nil
	m.state.Store(int32(StateIdle))
	m.logger.Info("sorbet server stopped")

	return err
}

// reap waits for the process to exit, escalating from the shutdown
// handshake to SIGTERM and finally SIGKILL.
func (m *Manager) reap(proc ServerProcess) {
	select {
	case <-proc.Done():
	case <-time.After(terminateGrace):
		_ = proc.Terminate()
		select {
		case <-proc.Done():
		case <-time.After(killGrace):
			_ = proc.Kill()
			<-proc.Done()
		}
	}
	_ = proc.Close()
}

// observeExit logs abnormal server exits. The lifecycle does not restart
// automatically; recovery is the user's restart command.
func (m *Manager) observeExit(conn *Connection) {
	defer conn.wg.Done()

	select {
	case <-conn.stopping:
		return
	case <-conn.Process.Done():
	}

	select {
	case <-conn.stopping:
		// Stop raced the exit; not unexpected.
	default:
		m.logger.Error("sorbet server exited unexpectedly (code %d) after %s",
			conn.Process.ExitCode(), conn.Process.Runtime().Round(time.Millisecond))
		if err := conn.Process.ExitError(); err != nil {
			m.logger.Debug("server exit detail: %v", err)
		}
	}
}

// forwardFileEvents forwards debounced workspace changes to the server's
// synchronization channel while the connection is live.
func (m *Manager) forwardFileEvents(conn *Connection) {
	defer conn.wg.Done()

	for {
		select {
		case <-conn.stopping:
			return
		case ev, ok := <-conn.watcher.Events():
			if !ok {
				return
			}
			change := &protocol.FileEvent{
				URI:  protocol.DocumentURI(lsp.FilePathToURI(ev.Path)),
				Type: fileChangeType(ev.Op),
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := conn.Client.NotifyWatchedFilesChanged(ctx, []*protocol.FileEvent{change}); err != nil {
				m.logger.Warn("forwarding file change: %v", err)
			}
			cancel()
		case err, ok := <-conn.watcher.Errors():
			if !ok {
				return
			}
			m.logger.Warn("file watcher: %v", err)
		}
	}
}

// fileChangeType maps a watch operation onto the protocol's change types.
func fileChangeType(op watch.Op) protocol.FileChangeType {
	switch op {
	case watch.OpCreate:
		return protocol.FileChangeTypeCreated
	case watch.OpRemove:
		return protocol.FileChangeTypeDeleted
	default:
		return protocol.FileChangeTypeChanged
	}
}
