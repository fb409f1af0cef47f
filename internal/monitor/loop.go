// Package monitor implements the polling loop that watches a session and
// drives the processor pipeline.
//
// The loop moves Idle → Polling → Dispatching → Polling until a processor
// asks to stop, an unrecoverable error occurs, or its context is cancelled;
// then it is Halted for good.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/timvw/pane-driver/internal/mux"
	telem "github.com/timvw/pane-driver/internal/otel"
	"github.com/timvw/pane-driver/internal/processor"
)

const (
	// DefaultInterval is the pause between two ticks.
	DefaultInterval = 100 * time.Millisecond
	// DefaultLines is how many lines back each capture reaches.
	DefaultLines = 100
)

// ErrAlreadyRun is returned when Run is called on a loop that has left Idle.
var ErrAlreadyRun = errors.New("monitor loop already started")

// Status is the loop's position in its state machine.
type Status int32

const (
	Idle Status = iota
	Polling
	Dispatching
	Halted
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Polling:
		return "polling"
	case Dispatching:
		return "dispatching"
	case Halted:
		return "halted"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// HaltReason tells why the loop stopped.
type HaltReason string

const (
	HaltStopped     HaltReason = "stopped"
	HaltError       HaltReason = "error"
	HaltInterrupted HaltReason = "interrupted"
)

// Options tune a Loop. Zero values select the defaults.
type Options struct {
	Interval time.Duration
	Lines    int
	Out      io.Writer // final pane print
	Warn     io.Writer // diagnostics
	Metrics  *telem.Metrics
	// Tracer records one span per dispatch. Nil uses the global provider.
	Tracer trace.Tracer
}

// Loop polls one session and dispatches processors on every non-blank capture.
type Loop struct {
	mux      mux.Multiplexer
	pipeline *processor.Pipeline
	interval time.Duration
	lines    int
	out      io.Writer
	warn     io.Writer
	metrics  *telem.Metrics
	tracer   trace.Tracer

	// mu guards state for the duration of one dispatching tick.
	mu    sync.Mutex
	state *processor.State

	status atomic.Int32
	// vanished is set while the session is missing so the warning is
	// printed once per disappearance.
	vanished bool
}

// New creates a loop for st.Session. st.Printed is created when nil.
func New(m mux.Multiplexer, st *processor.State, pipeline *processor.Pipeline, opts Options) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Lines <= 0 {
		opts.Lines = DefaultLines
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Warn == nil {
		opts.Warn = os.Stderr
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(telem.ServiceName)
	}
	if pipeline == nil {
		pipeline = processor.NewPipeline()
	}
	if st.Printed == nil {
		st.Printed = &atomic.Bool{}
	}
	return &Loop{
		mux:      m,
		pipeline: pipeline,
		interval: opts.Interval,
		lines:    opts.Lines,
		out:      opts.Out,
		warn:     opts.Warn,
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
		state:    st,
	}
}

// Status returns the current state machine position.
func (l *Loop) Status() Status {
	return Status(l.status.Load())
}

// Run polls until the loop halts. Cancellation of ctx is a normal halt
// (HaltInterrupted, nil error). A monitoring error is returned with HaltError.
func (l *Loop) Run(ctx context.Context) (HaltReason, error) {
	if !l.status.CompareAndSwap(int32(Idle), int32(Polling)) {
		return "", ErrAlreadyRun
	}
	defer l.status.Store(int32(Halted))

	timer := time.NewTimer(l.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return l.halt(ctx, HaltInterrupted, nil)
		case <-timer.C:
		}

		cont, err := l.tick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return l.halt(ctx, HaltInterrupted, nil)
			}
			return l.halt(ctx, HaltError, err)
		}
		if !cont {
			return l.halt(ctx, HaltStopped, nil)
		}
		timer.Reset(l.interval)
	}
}

// tick captures the pane and, when it has a non-blank line, runs the pipeline.
func (l *Loop) tick(ctx context.Context) (bool, error) {
	capture, err := l.mux.CapturePane(ctx, l.state.Session, l.lines)
	if err != nil {
		if !errors.Is(err, mux.ErrSessionNotFound) {
			return false, fmt.Errorf("capture pane: %w", err)
		}
		if !l.vanished {
			l.vanished = true
			fmt.Fprintf(l.warn, "warning: session %s is gone, treating pane as empty\n", l.state.Session)
		}
		capture = ""
	} else if l.vanished {
		l.vanished = false
		fmt.Fprintf(l.warn, "warning: session %s is back\n", l.state.Session)
	}

	line := LastLine(capture)
	if line == "" {
		l.metrics.RecordTick(ctx, "idle")
		return true, nil
	}
	l.metrics.RecordTick(ctx, "dispatch")
	return l.dispatch(ctx, line)
}

func (l *Loop) dispatch(ctx context.Context, line string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status.Store(int32(Dispatching))
	defer l.status.Store(int32(Polling))

	ctx, span := l.tracer.Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("session.name", l.state.Session),
			attribute.Int("processors", l.pipeline.Len()),
		))
	defer span.End()

	st := l.state
	st.Line = line
	before := st.Dispatched

	res, err := l.pipeline.Dispatch(ctx, st, &sessionCaps{mux: l.mux, session: st.Session, lines: l.lines})
	for _, name := range res.Invoked {
		l.metrics.RecordInvocation(ctx, name)
	}
	if st.Dispatched < before {
		err = errors.Join(err, fmt.Errorf("dispatched count went backwards (%d -> %d)", before, st.Dispatched))
	}
	l.metrics.RecordDispatched(ctx, st.Dispatched-before)

	span.SetAttributes(
		attribute.Int("tasks.dispatched", st.Dispatched),
		attribute.Int("tasks.remaining", st.Remaining()),
		attribute.Bool("pipeline.continue", res.Continue),
	)
	if res.StoppedBy != "" {
		span.SetAttributes(attribute.String("pipeline.stopped_by", res.StoppedBy))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	return res.Continue, nil
}

func (l *Loop) halt(ctx context.Context, reason HaltReason, err error) (HaltReason, error) {
	if err != nil {
		fmt.Fprintf(l.warn, "monitor: %v\n", err)
	}
	if reason != HaltStopped {
		l.PrintFinal(ctx)
	}
	l.metrics.RecordHalt(context.WithoutCancel(ctx), string(reason))
	return reason, err
}

// PrintFinal writes the current pane content to the output at most once per
// run, no matter how many exit paths race to call it. It reports whether this
// call did the printing.
func (l *Loop) PrintFinal(ctx context.Context) bool {
	if !l.state.Printed.CompareAndSwap(false, true) {
		return false
	}
	// The final capture must work after an interrupt cancelled ctx.
	content, err := l.mux.CapturePane(context.WithoutCancel(ctx), l.state.Session, l.lines)
	if err != nil {
		fmt.Fprintf(l.warn, "warning: final capture of %s failed: %v\n", l.state.Session, err)
		return true
	}
	content = strings.TrimRight(content, "\n")
	if content != "" {
		fmt.Fprintln(l.out, content)
	}
	return true
}

// Progress is a point-in-time view of the run.
type Progress struct {
	Status     Status
	Session    string
	Line       string
	Dispatched int
	Total      int
	Remaining  int
	Next       string
}

// Snapshot returns a consistent view of the run state. It waits for an
// in-flight dispatch to finish.
func (l *Loop) Snapshot() Progress {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.state
	p := Progress{
		Status:     l.Status(),
		Session:    st.Session,
		Line:       st.Line,
		Dispatched: st.Dispatched,
		Total:      st.Total,
		Remaining:  st.Remaining(),
	}
	if st.Queue != nil {
		p.Next, _ = st.Queue.Peek()
	}
	return p
}

// LastLine returns the last non-blank line of a capture with trailing
// whitespace removed, or "" when every line is blank.
func LastLine(capture string) string {
	lines := strings.Split(capture, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimRight(lines[i], " \t\r"); strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}

// sessionCaps binds processor capabilities to one session.
type sessionCaps struct {
	mux     mux.Multiplexer
	session string
	lines   int
}

func (c *sessionCaps) SendTask(ctx context.Context, command string) error {
	return c.mux.SendTask(ctx, c.session, command)
}

func (c *sessionCaps) CapturePane(ctx context.Context) (string, error) {
	return c.mux.CapturePane(ctx, c.session, c.lines)
}

func (c *sessionCaps) SendKeys(ctx context.Context, keys ...string) error {
	return c.mux.SendKeys(ctx, c.session, keys...)
}
