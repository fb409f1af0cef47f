package mux

import (
	"fmt"
	"os/exec"
)

// Detect returns the multiplexer available on this host.
// Unlike a pane monitor, the driver creates its own session, so a running
// server is not required: the tmux binary on PATH is enough.
func Detect(socket string) (Multiplexer, error) {
	if tmuxPath, err := exec.LookPath("tmux"); err == nil && tmuxPath != "" {
		return NewTmuxWithSocket(socket), nil
	}
	return nil, fmt.Errorf("no supported terminal multiplexer detected (install tmux)")
}

// FromName creates a Multiplexer by name.
func FromName(name, socket string) (Multiplexer, error) {
	switch name {
	case "tmux":
		return NewTmuxWithSocket(socket), nil
	case "zellij":
		return nil, fmt.Errorf("zellij support is not yet implemented")
	default:
		return nil, fmt.Errorf("unknown multiplexer: %q (supported: tmux)", name)
	}
}
