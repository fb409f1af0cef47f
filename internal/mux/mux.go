// Package mux controls a terminal multiplexer session through its CLI.
//
// The package is pure transport: it creates, checks, captures, types into and
// destroys sessions. It never interprets pane content; that is left to the
// processors driven by the monitor loop.
package mux

import (
	"context"
	"errors"
	"os/exec"
)

var (
	// ErrNoServer is returned when no multiplexer server is running.
	ErrNoServer = errors.New("no tmux server running")
	// ErrSessionNotFound is returned when the target session does not exist.
	ErrSessionNotFound = errors.New("session not found")
)

// Multiplexer abstracts the session operations the driver needs.
// All calls block until the underlying subprocess exits and none of them
// retry; retry policy belongs to the caller.
type Multiplexer interface {
	// Name returns the multiplexer name (e.g., "tmux").
	Name() string

	// HasSession reports whether a session with the given name exists.
	HasSession(ctx context.Context, name string) (bool, error)

	// EnsureSession creates a detached session running command unless a
	// session with that name already exists.
	EnsureSession(ctx context.Context, name, command string) error

	// CapturePane returns the last lines of the session's visible buffer.
	CapturePane(ctx context.Context, name string, lines int) (string, error)

	// SendKeys forwards literal text and control tokens (e.g., "Enter", "C-c").
	SendKeys(ctx context.Context, name string, keys ...string) error

	// SendTask types command followed by Enter.
	SendTask(ctx context.Context, name, command string) error

	// SendInterrupt sends C-c.
	SendInterrupt(ctx context.Context, name string) error

	// KillSession destroys the session unconditionally.
	KillSession(ctx context.Context, name string) error
}

// ExitCode returns the exit status carried by err: 0 for nil, the process
// exit code when err wraps an *exec.ExitError, and -1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
