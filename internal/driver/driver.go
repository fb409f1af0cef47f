// Package driver owns the lifecycle of one driven session: it creates or
// reuses the multiplexer session, runs the monitor loop in the background and
// tears everything down exactly once, whichever exit path fires first.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/timvw/pane-driver/internal/monitor"
	"github.com/timvw/pane-driver/internal/mux"
	telem "github.com/timvw/pane-driver/internal/otel"
	"github.com/timvw/pane-driver/internal/processor"
	"github.com/timvw/pane-driver/internal/task"
)

const (
	// DefaultPrefix names generated sessions.
	DefaultPrefix = "pane-driver"
	// DefaultGrace is the pause between interrupting and killing the session.
	DefaultGrace = time.Second
)

var (
	// ErrSessionCreation wraps failures to create the session in Start.
	ErrSessionCreation = errors.New("session creation failed")
	// ErrAlreadyStarted is returned by Start and AddProcessor once the driver
	// has been started or cleaned up.
	ErrAlreadyStarted = errors.New("driver already started")
	// ErrNotStarted is returned by Wait when Start never succeeded.
	ErrNotStarted = errors.New("driver not started")
)

// State is the session lifecycle position.
type State int32

const (
	NotStarted State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Options configure a Driver. Zero values select the defaults.
type Options struct {
	// Command runs inside a newly created session. Empty starts a shell.
	Command string
	// Prefix names generated sessions as <prefix>-<id>.
	Prefix string
	// SessionID, when set, is used verbatim as the session name.
	SessionID    string
	Interval     time.Duration
	CaptureLines int
	Grace        time.Duration
	Out          io.Writer
	Warn         io.Writer
	Metrics      *telem.Metrics
	// Tracer records the run span and is handed to the loop. Nil uses the
	// global provider.
	Tracer trace.Tracer
	// Signals trigger Cleanup. Nil means SIGINT and SIGTERM; an empty
	// non-nil slice disables the hook.
	Signals []os.Signal
	// Sleep waits out the grace period. Defaults to time.Sleep.
	Sleep func(time.Duration)
}

// Driver drives a single session. It is not reusable after Cleanup.
type Driver struct {
	mux     mux.Multiplexer
	opts    Options
	session string

	mu       sync.Mutex
	pipeline *processor.Pipeline
	loop     *monitor.Loop
	cancel   context.CancelFunc
	span     trace.Span

	state   atomic.Int32
	printed atomic.Bool

	done     chan struct{}
	exit     chan struct{}
	exitOnce sync.Once
	stopSig  func()

	cleanupOnce sync.Once

	// Written by the loop goroutine before done is closed.
	reason monitor.HaltReason
	err    error
}

// New creates a driver; no session is touched until Start.
func New(m mux.Multiplexer, opts Options) *Driver {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Warn == nil {
		opts.Warn = os.Stderr
	}
	if opts.Signals == nil {
		opts.Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(telem.ServiceName)
	}
	return &Driver{
		mux:      m,
		opts:     opts,
		session:  SessionName(opts.Prefix, opts.SessionID),
		pipeline: processor.NewPipeline(),
		done:     make(chan struct{}),
		exit:     make(chan struct{}),
		stopSig:  func() {},
	}
}

// SessionName returns id when set, otherwise prefix plus a short random id.
func SessionName(prefix, id string) string {
	if id != "" {
		return id
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + "-" + uuid.NewString()[:8]
}

// AddProcessor appends p to the pipeline. Processors cannot be added once
// the driver has started.
func (d *Driver) AddProcessor(p processor.Processor) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.State() != NotStarted || d.loop != nil {
		return ErrAlreadyStarted
	}
	d.pipeline.Add(p)
	return nil
}

// Start ensures the session exists and launches the monitor loop. It does
// not block. Cancelling ctx interrupts the loop.
func (d *Driver) Start(ctx context.Context, q *task.Queue, total int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.State() != NotStarted || d.loop != nil {
		return ErrAlreadyStarted
	}

	err := d.mux.EnsureSession(ctx, d.session, d.opts.Command)
	d.opts.Metrics.RecordSessionOp(ctx, "ensure", err)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSessionCreation, d.session, err)
	}

	if q == nil {
		q = task.NewQueue()
	}
	st := &processor.State{
		Session:    d.session,
		Queue:      q,
		Dispatched: 1,
		Total:      total,
		Printed:    &d.printed,
	}
	d.loop = monitor.New(d.mux, st, d.pipeline, monitor.Options{
		Interval: d.opts.Interval,
		Lines:    d.opts.CaptureLines,
		Out:      d.opts.Out,
		Warn:     d.opts.Warn,
		Metrics:  d.opts.Metrics,
		Tracer:   d.opts.Tracer,
	})

	ctx, d.span = d.opts.Tracer.Start(ctx, "run", trace.WithAttributes(
		attribute.String("session.name", d.session),
		attribute.String("mux", d.mux.Name()),
		attribute.Int("tasks.total", total),
		attribute.StringSlice("processors", d.pipeline.Names()),
	))
	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.state.Store(int32(Running))
	d.installSignalHook()

	go func() {
		defer close(d.done)
		reason, err := d.loop.Run(loopCtx)
		d.reason, d.err = reason, err
		d.state.Store(int32(Stopped))
	}()
	return nil
}

func (d *Driver) installSignalHook() {
	if len(d.opts.Signals) == 0 {
		return
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, d.opts.Signals...)
	stop := make(chan struct{})
	var once sync.Once
	d.stopSig = func() {
		once.Do(func() {
			signal.Stop(ch)
			close(stop)
		})
	}
	go func() {
		select {
		case sig := <-ch:
			fmt.Fprintf(d.opts.Warn, "received %s, cleaning up session %s\n", sig, d.session)
			d.Cleanup()
		case <-stop:
		}
	}()
}

// Wait blocks until the loop halts on its own, ctx is cancelled or
// RequestExit is called, then runs Cleanup. It returns the loop's
// monitoring error, if any; an interrupt is not an error.
func (d *Driver) Wait(ctx context.Context) error {
	d.mu.Lock()
	started := d.loop != nil
	d.mu.Unlock()
	if !started {
		return ErrNotStarted
	}

	select {
	case <-d.done:
	case <-ctx.Done():
	case <-d.exit:
	}
	d.Cleanup()
	return d.err
}

// Run starts the driver and waits for it.
func (d *Driver) Run(ctx context.Context, q *task.Queue, total int) error {
	if err := d.Start(ctx, q, total); err != nil {
		return err
	}
	return d.Wait(ctx)
}

// RequestExit asks Wait to return and clean up. Safe to call repeatedly.
func (d *Driver) RequestExit() {
	d.exitOnce.Do(func() { close(d.exit) })
}

// Cleanup prints the final pane, stops the loop, interrupts the session and
// kills it after the grace period. Only the first call has any effect; later
// calls block until it has finished. Failures are reported, never returned.
func (d *Driver) Cleanup() {
	d.cleanupOnce.Do(d.cleanup)
}

func (d *Driver) cleanup() {
	d.mu.Lock()
	loop, cancel, span := d.loop, d.cancel, d.span
	d.mu.Unlock()

	d.state.Store(int32(Stopped))
	if loop == nil {
		return
	}
	ctx := context.Background()

	loop.PrintFinal(ctx)
	cancel()
	<-d.done
	d.stopSig()

	err := d.mux.SendInterrupt(ctx, d.session)
	d.opts.Metrics.RecordSessionOp(ctx, "interrupt", err)
	if err != nil && !errors.Is(err, mux.ErrSessionNotFound) {
		fmt.Fprintf(d.opts.Warn, "warning: interrupt %s: %v\n", d.session, err)
	}

	d.opts.Sleep(d.opts.Grace)

	err = d.mux.KillSession(ctx, d.session)
	d.opts.Metrics.RecordSessionOp(ctx, "kill", err)
	if err != nil && !errors.Is(err, mux.ErrSessionNotFound) {
		fmt.Fprintf(d.opts.Warn, "warning: kill %s: %v\n", d.session, err)
	}

	span.SetAttributes(attribute.String("halt.reason", string(d.reason)))
	if d.err != nil {
		span.RecordError(d.err)
		span.SetStatus(codes.Error, d.err.Error())
	}
	span.End()
}

// Session returns the session name.
func (d *Driver) Session() string { return d.session }

// State returns the lifecycle state.
func (d *Driver) State() State { return State(d.state.Load()) }

// Done is closed when the monitor loop has exited.
func (d *Driver) Done() <-chan struct{} { return d.done }

// HaltReason reports why the loop stopped. Valid once Done is closed.
func (d *Driver) HaltReason() monitor.HaltReason {
	select {
	case <-d.done:
		return d.reason
	default:
		return ""
	}
}

// Snapshot returns the current run progress.
func (d *Driver) Snapshot() monitor.Progress {
	d.mu.Lock()
	loop := d.loop
	d.mu.Unlock()
	if loop == nil {
		return monitor.Progress{Session: d.session}
	}
	return loop.Snapshot()
}
