package camera

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an operation references a recording id
	// that is not in the registry.
	ErrNotFound = errors.New("recording not found")

	// ErrStreamStartFailed is returned when the stream pipeline dies within
	// the settle window after launch.
	ErrStreamStartFailed = errors.New("stream failed to start")
)

// LaunchError reports that one side of a pipeline could not be spawned.
type LaunchError struct {
	Stage string // "remote" or "local"
	Err   error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %s process: %v", e.Stage, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// CaptureError reports a one-shot capture that exited non-zero, carrying the
// remote tool's diagnostic output.
type CaptureError struct {
	ExitCode int
	Stderr   string
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture failed with exit code %d: %s", e.ExitCode, e.Stderr)
}
