package processor

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
)

// Progress prints a line each time Dispatched advances.
type Progress struct {
	Out io.Writer

	seen int
}

func newProgress(out io.Writer, _ Options) (Processor, error) {
	return &Progress{Out: out}, nil
}

func (p *Progress) Name() string { return "progress" }

func (p *Progress) ProcessOutput(_ context.Context, st *State, _ Capabilities) (bool, error) {
	if p.seen == 0 {
		p.seen = 1
	}
	if st.Dispatched > p.seen {
		p.seen = st.Dispatched
		fmt.Fprintf(p.Out, "[%d/%d] %s\n", st.Dispatched-1, st.Total, st.LastTask)
	}
	return true, nil
}

// Tail echoes every new last line, prefixed with the session name.
type Tail struct {
	Out io.Writer

	last string
}

func newTail(out io.Writer, _ Options) (Processor, error) {
	return &Tail{Out: out}, nil
}

func (t *Tail) Name() string { return "tail" }

func (t *Tail) ProcessOutput(_ context.Context, st *State, _ Capabilities) (bool, error) {
	if st.Line != t.last {
		t.last = st.Line
		fmt.Fprintf(t.Out, "%s| %s\n", st.Session, st.Line)
	}
	return true, nil
}

// Idle halts the run once the last line has stayed the same for After.
type Idle struct {
	Out   io.Writer
	After time.Duration
	Now   func() time.Time

	last  string
	since time.Time
}

func newIdle(out io.Writer, opts Options) (Processor, error) {
	after, err := opts.Duration("after", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	if after <= 0 {
		return nil, fmt.Errorf("option after must be positive")
	}
	return &Idle{Out: out, After: after}, nil
}

func (i *Idle) Name() string { return "idle" }

func (i *Idle) ProcessOutput(_ context.Context, st *State, _ Capabilities) (bool, error) {
	now := time.Now()
	if i.Now != nil {
		now = i.Now()
	}
	if st.Line != i.last || i.since.IsZero() {
		i.last = st.Line
		i.since = now
		return true, nil
	}
	if now.Sub(i.since) >= i.After {
		fmt.Fprintf(i.Out, "idle: no new output for %s, stopping\n", i.After)
		return false, nil
	}
	return true, nil
}

// Abort interrupts the session and halts the run when Pattern matches.
type Abort struct {
	Out     io.Writer
	Pattern *regexp.Regexp
	Keys    []string
}

func newAbort(out io.Writer, opts Options) (Processor, error) {
	re, err := opts.Regexp("pattern", `(?i)\b(fatal|panic):`)
	if err != nil {
		return nil, err
	}
	keys := strings.Fields(opts.String("keys", "C-c"))
	return &Abort{Out: out, Pattern: re, Keys: keys}, nil
}

func (a *Abort) Name() string { return "abort" }

func (a *Abort) ProcessOutput(ctx context.Context, st *State, caps Capabilities) (bool, error) {
	if !a.Pattern.MatchString(st.Line) {
		return true, nil
	}
	fmt.Fprintf(a.Out, "abort: %q matched %s\n", st.Line, a.Pattern)
	if len(a.Keys) > 0 {
		if err := caps.SendKeys(ctx, a.Keys...); err != nil {
			return false, err
		}
	}
	return false, nil
}
