package mux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes a command and returns its stdout.
// Failures are reported as *CommandError so callers can inspect stderr.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner implements Runner with os/exec. The context kills the child
// process when cancelled, so an interrupted call never leaks a subprocess.
type ExecRunner struct{}

// Run executes name with args, capturing stdout and stderr separately.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), &CommandError{Args: args, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return stdout.String(), nil
}

// CommandError describes a failed multiplexer invocation.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	sub := subcommand(e.Args)
	if e.Stderr != "" {
		return fmt.Sprintf("tmux %s: %s", sub, e.Stderr)
	}
	return fmt.Sprintf("tmux %s: %v", sub, e.Err)
}

// subcommand skips global flags such as "-L <socket>".
func subcommand(args []string) string {
	for i := 0; i < len(args); i++ {
		if args[i] == "-L" || args[i] == "-S" {
			i++
			continue
		}
		if !strings.HasPrefix(args[i], "-") {
			return args[i]
		}
	}
	return ""
}

func (e *CommandError) Unwrap() error { return e.Err }

// Is classifies tmux stderr into the package sentinel errors.
func (e *CommandError) Is(target error) bool {
	switch target {
	case ErrNoServer:
		return strings.Contains(e.Stderr, "no server running") ||
			strings.Contains(e.Stderr, "error connecting to") ||
			strings.Contains(e.Stderr, "server exited unexpectedly")
	case ErrSessionNotFound:
		return strings.Contains(e.Stderr, "session not found") ||
			strings.Contains(e.Stderr, "can't find session")
	}
	return false
}

// Tmux implements the Multiplexer interface for tmux.
type Tmux struct {
	// Socket selects a tmux server with -L. Empty uses the default server.
	Socket string
	Runner Runner
}

// NewTmuxWithSocket creates a tmux multiplexer bound to a named server socket.
// An empty socket uses the default server.
func NewTmuxWithSocket(socket string) *Tmux {
	return &Tmux{Socket: socket, Runner: ExecRunner{}}
}

// Name returns "tmux".
func (t *Tmux) Name() string {
	return "tmux"
}

// HasSession checks the session with has-session. A missing session or a
// missing server both report false without error.
func (t *Tmux) HasSession(ctx context.Context, name string) (bool, error) {
	_, err := t.run(ctx, "has-session", "-t", name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrNoServer) {
		return false, nil
	}
	// has-session exits 1 for any absent target.
	if ExitCode(err) > 0 {
		return false, nil
	}
	return false, err
}

// EnsureSession reuses a live session or creates a detached one running command.
// An empty command starts the default shell.
func (t *Tmux) EnsureSession(ctx context.Context, name, command string) error {
	exists, err := t.HasSession(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	args := []string{"new-session", "-d", "-s", name}
	if command != "" {
		args = append(args, command)
	}
	if _, err := t.run(ctx, args...); err != nil {
		return err
	}
	return nil
}

// CapturePane captures the last lines of the session's pane.
// Uses -p (stdout) and -S -N (start N lines back in history).
func (t *Tmux) CapturePane(ctx context.Context, name string, lines int) (string, error) {
	if lines <= 0 {
		lines = 1
	}
	out, err := t.run(ctx, "capture-pane", "-pS", fmt.Sprintf("-%d", lines), "-t", name)
	if err != nil {
		return "", err
	}
	return out, nil
}

// SendKeys forwards keys to the session as-is; tmux resolves key names.
func (t *Tmux) SendKeys(ctx context.Context, name string, keys ...string) error {
	args := append([]string{"send-keys", "-t", name}, keys...)
	_, err := t.run(ctx, args...)
	return err
}

// SendTask types command and presses Enter.
func (t *Tmux) SendTask(ctx context.Context, name, command string) error {
	return t.SendKeys(ctx, name, command, "Enter")
}

// SendInterrupt sends Ctrl-C.
func (t *Tmux) SendInterrupt(ctx context.Context, name string) error {
	return t.SendKeys(ctx, name, "C-c")
}

// KillSession destroys the session.
func (t *Tmux) KillSession(ctx context.Context, name string) error {
	_, err := t.run(ctx, "kill-session", "-t", name)
	return err
}

// run executes a tmux command and returns its stdout.
func (t *Tmux) run(ctx context.Context, args ...string) (string, error) {
	runner := t.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	var all []string
	if t.Socket != "" {
		all = append(all, "-L", t.Socket)
	}
	all = append(all, args...)
	return runner.Run(ctx, "tmux", all...)
}
