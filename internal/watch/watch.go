// Package watch monitors a workspace for changes to the analyzer's source
// and manifest files so they can be forwarded to the running server.
//
// Rapid changes to the same path are coalesced into one event. Only files
// matching the analyzer's patterns (*.rb, *.gemspec, Gemfile) are reported.
package watch

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrPathNotExist is returned when the workspace root does not exist.
var ErrPathNotExist = errors.New("path does not exist")

// Op represents the type of file system operation.
type Op uint32

const (
	// OpCreate indicates a file was created.
	OpCreate Op = 1 << iota
	// OpWrite indicates a file was written to.
	OpWrite
	// OpRemove indicates a file was removed or renamed away.
	OpRemove
)

// String returns a human-readable representation of the operation.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpWrite:
		return "WRITE"
	case OpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// Event represents a file system change event.
type Event struct {
	// Path is the absolute path of the affected file.
	Path string

	// Op is the operation that occurred.
	Op Op

	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// Watcher monitors a workspace tree for analyzer-relevant file changes.
type Watcher struct {
	mu sync.Mutex

	fsw   *fsnotify.Watcher
	delay time.Duration

	pending map[string]*pendingEvent

	events chan Event
	errs   chan error

	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// pendingEvent tracks a debounced event.
type pendingEvent struct {
	event Event
	timer *time.Timer
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the coalescing window for repeated events on one path.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.delay = d
	}
}

// New creates a watcher over the given workspace root, watching the root
// and all subdirectories. Directories created later are picked up as their
// create events arrive.
func New(root string, opts ...Option) (*Watcher, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPathNotExist
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("workspace root is not a directory")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:     fsw,
		delay:   100 * time.Millisecond,
		pending: make(map[string]*pendingEvent),
		events:  make(chan Event, 100),
		errs:    make(chan error, 100),
		closeCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}

	w.wg.Add(1)
	go w.processLoop()

	return w, nil
}

// addRecursive watches a directory and all subdirectories.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Skip unreadable entries, continue walking
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if p != root && (name == ".git" || name == "node_modules" || name == "vendor" || name == "tmp") {
			return filepath.SkipDir
		}
		return w.fsw.Add(p)
	})
}

// Matches reports whether the path is one of the analyzer's source or
// manifest files: *.rb, *.gemspec, or a Gemfile.
func Matches(path string) bool {
	switch filepath.Ext(path) {
	case ".rb", ".gemspec":
		return true
	}
	return filepath.Base(path) == "Gemfile"
}

// processLoop reads raw fsnotify events, filters, and debounces them.
func (w *Watcher) processLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleRawEvent(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
				// Error channel full, drop
			}
		}
	}
}

// handleRawEvent translates one fsnotify event.
func (w *Watcher) handleRawEvent(ev fsnotify.Event) {
	// New directories must be added to the watch set for recursion.
	// Walk rather than Add: children may exist before the event arrives.
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.addRecursive(ev.Name)
			return
		}
	}

	if !Matches(ev.Name) {
		return
	}

	var op Op
	switch {
	case ev.Op.Has(fsnotify.Create):
		op = OpCreate
	case ev.Op.Has(fsnotify.Write):
		op = OpWrite
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		op = OpRemove
	default:
		return // chmod and friends are not synchronization-relevant
	}

	w.debounce(Event{Path: ev.Name, Op: op, Timestamp: time.Now()})
}

// debounce coalesces rapid events on the same path. The last operation in
// the window wins, except that a create followed by writes stays a create.
func (w *Watcher) debounce(ev Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	if p, exists := w.pending[ev.Path]; exists {
		if p.event.Op == OpCreate && ev.Op == OpWrite {
			ev.Op = OpCreate
		}
		p.event = ev
		p.timer.Reset(w.delay)
		return
	}

	p := &pendingEvent{event: ev}
	p.timer = time.AfterFunc(w.delay, func() {
		w.flush(ev.Path)
	})
	w.pending[ev.Path] = p
}

// flush delivers a debounced event after its window elapses.
func (w *Watcher) flush(path string) {
	w.mu.Lock()
	p, exists := w.pending[path]
	if !exists || w.closed {
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	ev := p.event
	w.mu.Unlock()

	select {
	case w.events <- ev:
	case <-w.closeCh:
	}
}

// Events returns the channel of debounced file change events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)

	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	err := w.fsw.Close()
	w.wg.Wait()
	return err
}
