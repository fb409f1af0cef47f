package processor

import (
	"context"
	"io"
	"regexp"
	"strings"
)

// Marker dispatches the next task each time a line containing Text appears.
// The same line seen on consecutive ticks triggers only once. When the marker
// shows up and the queue is empty, the run is complete and Marker halts it.
type Marker struct {
	Text string

	last string
}

func newMarker(_ io.Writer, opts Options) (Processor, error) {
	return &Marker{Text: opts.String("text", "DONE")}, nil
}

func (m *Marker) Name() string { return "marker" }

func (m *Marker) ProcessOutput(ctx context.Context, st *State, caps Capabilities) (bool, error) {
	seen := st.Line == m.last
	m.last = st.Line
	if seen || !strings.Contains(st.Line, m.Text) {
		return true, nil
	}
	return st.DispatchNext(ctx, caps)
}

// Prompt dispatches the next task when the session shows a fresh shell
// prompt. A prompt counts as fresh when the full capture differs from the
// one recorded at the previous dispatch, so a command that finishes
// between two ticks is still noticed.
type Prompt struct {
	Pattern *regexp.Regexp

	snapshot string
}

// DefaultPromptPattern matches a line ending in a typical shell prompt sigil.
const DefaultPromptPattern = `[$#%>]\s*$`

func newPrompt(_ io.Writer, opts Options) (Processor, error) {
	re, err := opts.Regexp("pattern", DefaultPromptPattern)
	if err != nil {
		return nil, err
	}
	return &Prompt{Pattern: re}, nil
}

func (p *Prompt) Name() string { return "prompt" }

func (p *Prompt) ProcessOutput(ctx context.Context, st *State, caps Capabilities) (bool, error) {
	if !p.Pattern.MatchString(st.Line) {
		return true, nil
	}
	capture, err := caps.CapturePane(ctx)
	if err != nil {
		return false, err
	}
	if capture == p.snapshot {
		return true, nil
	}
	p.snapshot = capture
	return st.DispatchNext(ctx, caps)
}
