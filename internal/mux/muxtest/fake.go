// Package muxtest provides an in-memory Multiplexer for tests.
package muxtest

import (
	"context"
	"sync"

	"github.com/timvw/pane-driver/internal/mux"
)

// Call records a single operation against the fake.
type Call struct {
	Op      string // "has", "new", "capture", "send", "kill"
	Session string
	Args    []string
}

// Fake implements mux.Multiplexer in memory.
//
// Captures are returned in order, one per CapturePane call; once the script
// is exhausted the last entry repeats. CaptureFunc, when set, replaces the
// script entirely.
type Fake struct {
	mu sync.Mutex

	Sessions    map[string]bool
	Captures    []string
	CaptureFunc func(ctx context.Context, call int) (string, error)
	CreateErr   error
	SendErr     error
	KillErr     error

	calls    []Call
	captured int
}

// New returns a Fake with the given live sessions.
func New(sessions ...string) *Fake {
	f := &Fake{Sessions: make(map[string]bool)}
	for _, s := range sessions {
		f.Sessions[s] = true
	}
	return f
}

var _ mux.Multiplexer = (*Fake)(nil)

func (f *Fake) Name() string { return "fake" }

func (f *Fake) HasSession(_ context.Context, name string) (bool, error) {
	f.record(Call{Op: "has", Session: name})
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Sessions[name], nil
}

func (f *Fake) EnsureSession(ctx context.Context, name, command string) error {
	if ok, _ := f.HasSession(ctx, name); ok {
		return nil
	}
	f.record(Call{Op: "new", Session: name, Args: []string{command}})
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return f.CreateErr
	}
	if f.Sessions == nil {
		f.Sessions = make(map[string]bool)
	}
	f.Sessions[name] = true
	return nil
}

func (f *Fake) CapturePane(ctx context.Context, name string, lines int) (string, error) {
	f.record(Call{Op: "capture", Session: name})
	f.mu.Lock()
	n := f.captured
	f.captured++
	fn := f.CaptureFunc
	var out string
	if len(f.Captures) > 0 {
		if n < len(f.Captures) {
			out = f.Captures[n]
		} else {
			out = f.Captures[len(f.Captures)-1]
		}
	}
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, n)
	}
	return out, nil
}

func (f *Fake) SendKeys(_ context.Context, name string, keys ...string) error {
	f.record(Call{Op: "send", Session: name, Args: append([]string(nil), keys...)})
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.SendErr
}

func (f *Fake) SendTask(ctx context.Context, name, command string) error {
	return f.SendKeys(ctx, name, command, "Enter")
}

func (f *Fake) SendInterrupt(ctx context.Context, name string) error {
	return f.SendKeys(ctx, name, "C-c")
}

func (f *Fake) KillSession(_ context.Context, name string) error {
	f.record(Call{Op: "kill", Session: name})
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.KillErr != nil {
		return f.KillErr
	}
	if !f.Sessions[name] {
		return mux.ErrSessionNotFound
	}
	delete(f.Sessions, name)
	return nil
}

// Calls returns a copy of all recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Count returns how many calls of the given op were recorded.
func (f *Fake) Count(op string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Sent returns the key arguments of every send call, in order.
func (f *Fake) Sent() [][]string {
	var out [][]string
	for _, c := range f.Calls() {
		if c.Op == "send" {
			out = append(out, c.Args)
		}
	}
	return out
}

func (f *Fake) record(c Call) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}
