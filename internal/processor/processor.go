// Package processor defines the contract between the monitor loop and the
// pluggable handlers that react to a session's output.
//
// On every tick the monitor hands each processor, in registration order, the
// latest non-blank line of the pane together with the shared run State and a
// Capabilities value bound to the session. A processor returns false to stop
// the whole run. Processors execute sequentially on the monitor goroutine,
// so they may mutate State without locking.
package processor

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/timvw/pane-driver/internal/task"
)

// State is the run state shared by all processors.
type State struct {
	// Session is the multiplexer session name.
	Session string
	// Line is the last non-blank line of the latest capture.
	Line string
	// Queue holds the tasks not yet dispatched.
	Queue *task.Queue
	// Dispatched starts at 1 and is advanced only by processors.
	Dispatched int
	// Total is the number of tasks the run started with.
	Total int
	// LastTask is the most recently dispatched task.
	LastTask string
	// Printed guards the final pane print; whoever swaps it to true prints.
	Printed *atomic.Bool
}

// Capabilities are the session operations available to a processor.
type Capabilities interface {
	// SendTask types command into the session followed by Enter.
	SendTask(ctx context.Context, command string) error
	// CapturePane returns a fresh capture of the session.
	CapturePane(ctx context.Context) (string, error)
	// SendKeys forwards raw keys and control tokens.
	SendKeys(ctx context.Context, keys ...string) error
}

// Processor reacts to session output.
type Processor interface {
	// Name identifies the processor in diagnostics and metrics.
	Name() string
	// ProcessOutput returns false to halt the run. A non-nil error also
	// halts the run, as a monitoring error.
	ProcessOutput(ctx context.Context, st *State, caps Capabilities) (bool, error)
}

// DispatchNext pops the next task, sends it and advances Dispatched.
// It returns false when the queue was empty.
func (st *State) DispatchNext(ctx context.Context, caps Capabilities) (bool, error) {
	next, ok := st.Queue.Pop()
	if !ok {
		return false, nil
	}
	if err := caps.SendTask(ctx, next); err != nil {
		return false, fmt.Errorf("send task %q: %w", next, err)
	}
	st.LastTask = next
	st.Dispatched++
	return true, nil
}

// Remaining returns the number of queued tasks, tolerating a nil queue.
func (st *State) Remaining() int {
	if st.Queue == nil {
		return 0
	}
	return st.Queue.Len()
}
