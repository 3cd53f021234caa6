package lifecycle

import (
	"errors"

	"github.com/google/uuid"
)

// Standard errors returned by the lifecycle manager.
var (
	// ErrAlreadyRunning indicates Start was called outside Idle.
	ErrAlreadyRunning = errors.New("sorbet server already running")

	// ErrNoWorkspace indicates no workspace root is known.
	ErrNoWorkspace = errors.New("no workspace root configured")
)

// newConnectionID returns a unique ID for a connection handle.
func newConnectionID() string {
	return uuid.New().String()
}
