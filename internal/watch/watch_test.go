package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/proj/app/models/user.rb", true},
		{"/proj/mygem.gemspec", true},
		{"/proj/Gemfile", true},
		{"/proj/sub/Gemfile", true},
		{"/proj/Gemfile.lock", false},
		{"/proj/README.md", false},
		{"/proj/app.rbs", false},
		{"/proj/ruby", false},
	}

	for _, tt := range tests {
		if got := Matches(tt.path); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestOp_String(t *testing.T) {
	tests := []struct {
		op   Op
		want string
	}{
		{OpCreate, "CREATE"},
		{OpWrite, "WRITE"},
		{OpRemove, "REMOVE"},
		{Op(0), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Op.String() = %q, want %q", got, tt.want)
		}
	}
}

func TestNew_MissingRoot(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "nope")); err != ErrPathNotExist {
		t.Errorf("New = %v, want ErrPathNotExist", err)
	}
}

// receiveEvent waits for one event, failing the test on timeout.
func receiveEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case ev := <-w.Events():
		return ev
	case err := <-w.Errors():
		t.Fatalf("watcher error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestWatcher_ReportsRubyFileCreate(t *testing.T) {
	root := t.TempDir()

	w, err := New(root, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer w.Close()

	path := filepath.Join(root, "user.rb")
	if err := os.WriteFile(path, []byte("class User; end\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ev := receiveEvent(t, w)
	if ev.Path != path {
		t.Errorf("event path = %q, want %q", ev.Path, path)
	}
	if ev.Op != OpCreate {
		t.Errorf("event op = %v, want CREATE", ev.Op)
	}
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	root := t.TempDir()

	w, err := New(root, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-w.Events():
		t.Errorf("unexpected event for unrelated file: %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_DebouncesRapidWrites(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "app.rb")
	if err := os.WriteFile(path, []byte("# v0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := New(root, WithDebounce(150*time.Millisecond))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer w.Close()

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("# changed\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	ev := receiveEvent(t, w)
	if ev.Path != path {
		t.Errorf("event path = %q, want %q", ev.Path, path)
	}

	// The burst coalesces to a single delivery.
	select {
	case ev := <-w.Events():
		t.Errorf("expected one coalesced event, got extra: %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_PicksUpNewDirectories(t *testing.T) {
	root := t.TempDir()

	w, err := New(root, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer w.Close()

	sub := filepath.Join(root, "app", "models")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	// Give the watcher a moment to add the new directories.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(sub, "user.rb")
	if err := os.WriteFile(path, []byte("class User; end\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ev := receiveEvent(t, w)
	if ev.Path != path {
		t.Errorf("event path = %q, want %q", ev.Path, path)
	}
}

func TestWatcher_CloseIsIdempotent(t *testing.T) {
	w, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Errorf("Close returned error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close returned error: %v", err)
	}
}
