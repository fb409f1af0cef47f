package monitor

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/timvw/pane-driver/internal/mux"
	"github.com/timvw/pane-driver/internal/mux/muxtest"
	"github.com/timvw/pane-driver/internal/processor"
	"github.com/timvw/pane-driver/internal/task"
)

type funcProcessor struct {
	name string
	fn   func(st *processor.State) (bool, error)
}

func (f *funcProcessor) Name() string { return f.name }

func (f *funcProcessor) ProcessOutput(_ context.Context, st *processor.State, _ processor.Capabilities) (bool, error) {
	return f.fn(st)
}

func newLoop(m mux.Multiplexer, q *task.Queue, procs ...processor.Processor) (*Loop, *processor.State, *bytes.Buffer, *bytes.Buffer) {
	st := &processor.State{Session: "s", Queue: q, Dispatched: 1, Total: q.Len()}
	var out, warn bytes.Buffer
	l := New(m, st, processor.NewPipeline(procs...), Options{
		Interval: time.Millisecond,
		Out:      &out,
		Warn:     &warn,
	})
	return l, st, &out, &warn
}

func TestLastLine(t *testing.T) {
	tests := []struct {
		name    string
		capture string
		want    string
	}{
		{"empty", "", ""},
		{"blank lines", "\n   \n\t\n", ""},
		{"single", "hello", "hello"},
		{"trailing blanks", "a\nb  \n\n  \n", "b"},
		{"keeps leading space", "x\n  indented\n", "  indented"},
		{"crlf", "one\r\ntwo\r\n", "two"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LastLine(tt.capture); got != tt.want {
				t.Errorf("LastLine(%q) = %q, want %q", tt.capture, got, tt.want)
			}
		})
	}
}

func TestLoop_MarkerScenario(t *testing.T) {
	fake := muxtest.New("s")
	fake.Captures = []string{"running", "DONE", "running", "DONE", "running", "DONE"}
	q := task.NewQueue()
	q.Push("echo A")
	q.Push("echo B")
	l, st, out, _ := newLoop(fake, q, &processor.Marker{Text: "DONE"})

	reason, err := l.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if reason != HaltStopped {
		t.Errorf("reason = %s, want stopped", reason)
	}
	want := [][]string{{"echo B", "Enter"}, {"echo A", "Enter"}}
	if got := fake.Sent(); !reflect.DeepEqual(got, want) {
		t.Errorf("sent = %v, want %v", got, want)
	}
	if st.Dispatched != 3 || !q.Empty() {
		t.Errorf("dispatched = %d, queue len = %d", st.Dispatched, q.Len())
	}
	// A stop leaves the final print to the orchestrator.
	if out.Len() != 0 || st.Printed.Load() {
		t.Errorf("stop must not print, got %q", out.String())
	}
	if l.Status() != Halted {
		t.Errorf("status = %s, want halted", l.Status())
	}
}

func TestLoop_BlankCapturesDoNotDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fake := muxtest.New("s")
	fake.CaptureFunc = func(_ context.Context, call int) (string, error) {
		if call >= 5 {
			cancel()
		}
		return "\n   \n", nil
	}
	var invoked atomic.Int32
	l, st, _, _ := newLoop(fake, task.NewQueue("a"), &funcProcessor{name: "p", fn: func(*processor.State) (bool, error) {
		invoked.Add(1)
		return false, nil
	}})

	reason, err := l.Run(ctx)
	if err != nil || reason != HaltInterrupted {
		t.Fatalf("Run() = %s, %v", reason, err)
	}
	if invoked.Load() != 0 {
		t.Errorf("processor invoked %d times on blank captures", invoked.Load())
	}
	if st.Dispatched != 1 || len(fake.Sent()) != 0 {
		t.Error("blank ticks must have no effect")
	}
}

func TestLoop_NoProcessorsPollsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fake := muxtest.New("s")
	fake.CaptureFunc = func(_ context.Context, call int) (string, error) {
		if call == 10 {
			cancel()
		}
		return "$ sleep 100", nil
	}
	l, _, out, _ := newLoop(fake, task.NewQueue("never"))

	reason, err := l.Run(ctx)
	if err != nil || reason != HaltInterrupted {
		t.Fatalf("Run() = %s, %v", reason, err)
	}
	if fake.Count("capture") < 10 {
		t.Errorf("captures = %d, want polling to continue", fake.Count("capture"))
	}
	if got := out.String(); got != "$ sleep 100\n" {
		t.Errorf("final print = %q", got)
	}
	if len(fake.Sent()) != 0 {
		t.Errorf("sent = %v, want nothing", fake.Sent())
	}
}

func TestLoop_ProcessorErrorHaltsAndPrintsOnce(t *testing.T) {
	fake := muxtest.New("s")
	fake.Captures = []string{"output"}
	boom := errors.New("boom")
	l, _, out, warn := newLoop(fake, task.NewQueue(), &funcProcessor{name: "bad", fn: func(*processor.State) (bool, error) {
		return true, boom
	}})

	reason, err := l.Run(context.Background())
	if reason != HaltError || !errors.Is(err, boom) {
		t.Fatalf("Run() = %s, %v", reason, err)
	}
	if l.PrintFinal(context.Background()) {
		t.Error("second PrintFinal must be a no-op")
	}
	if got := strings.Count(out.String(), "output"); got != 1 {
		t.Errorf("pane printed %d times, want 1", got)
	}
	if !strings.Contains(warn.String(), "boom") {
		t.Errorf("expected diagnostic, got %q", warn.String())
	}
}

func TestLoop_ShortCircuitStopsLaterProcessors(t *testing.T) {
	fake := muxtest.New("s")
	fake.Captures = []string{"line"}
	var order []string
	rec := func(name string, cont bool) processor.Processor {
		return &funcProcessor{name: name, fn: func(*processor.State) (bool, error) {
			order = append(order, name)
			return cont, nil
		}}
	}
	l, _, _, _ := newLoop(fake, task.NewQueue(), rec("p1", true), rec("p2", false), rec("p3", true))

	if reason, _ := l.Run(context.Background()); reason != HaltStopped {
		t.Fatalf("reason = %s", reason)
	}
	if !reflect.DeepEqual(order, []string{"p1", "p2"}) {
		t.Errorf("order = %v", order)
	}
}

func TestLoop_VanishedSessionIsIdle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fake := muxtest.New("s")
	fake.CaptureFunc = func(_ context.Context, call int) (string, error) {
		if call >= 3 {
			cancel()
		}
		return "", mux.ErrSessionNotFound
	}
	l, _, _, warn := newLoop(fake, task.NewQueue(), &funcProcessor{name: "p", fn: func(*processor.State) (bool, error) {
		t.Error("processor must not run without output")
		return true, nil
	}})

	reason, err := l.Run(ctx)
	if err != nil || reason != HaltInterrupted {
		t.Fatalf("Run() = %s, %v", reason, err)
	}
	if got := strings.Count(warn.String(), "is gone"); got != 1 {
		t.Errorf("vanished warning printed %d times, want 1", got)
	}
}

func TestLoop_SessionVanishesTwice(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fake := muxtest.New("s")
	fake.CaptureFunc = func(_ context.Context, call int) (string, error) {
		switch {
		case call == 0 || call == 2:
			return "", mux.ErrSessionNotFound
		case call >= 3:
			cancel()
		}
		return "", nil
	}
	l, _, _, warn := newLoop(fake, task.NewQueue())

	if reason, err := l.Run(ctx); err != nil || reason != HaltInterrupted {
		t.Fatalf("Run() = %s, %v", reason, err)
	}
	if got := strings.Count(warn.String(), "is gone"); got != 2 {
		t.Errorf("vanished warning printed %d times, want 2:\n%s", got, warn.String())
	}
	if got := strings.Count(warn.String(), "is back"); got != 1 {
		t.Errorf("reappeared warning printed %d times, want 1:\n%s", got, warn.String())
	}
}

func TestLoop_DispatchSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	fake := muxtest.New("s")
	fake.Captures = []string{"$ ready"}
	st := &processor.State{Session: "s", Queue: task.NewQueue()}
	l := New(fake, st, processor.NewPipeline(&funcProcessor{name: "p", fn: func(*processor.State) (bool, error) {
		return false, nil
	}}), Options{
		Interval: time.Millisecond,
		Out:      &bytes.Buffer{},
		Warn:     &bytes.Buffer{},
		Tracer:   tp.Tracer("test"),
	})

	if reason, err := l.Run(context.Background()); err != nil || reason != HaltStopped {
		t.Fatalf("Run() = %s, %v", reason, err)
	}
	var names []string
	for _, span := range sr.Ended() {
		names = append(names, span.Name())
	}
	if !reflect.DeepEqual(names, []string{"dispatch"}) {
		t.Errorf("ended spans = %v, want [dispatch]", names)
	}
}

func TestLoop_CaptureFailureIsMonitoringError(t *testing.T) {
	fake := muxtest.New("s")
	fake.CaptureFunc = func(context.Context, int) (string, error) {
		return "", mux.ErrNoServer
	}
	l, _, _, _ := newLoop(fake, task.NewQueue())

	reason, err := l.Run(context.Background())
	if reason != HaltError || !errors.Is(err, mux.ErrNoServer) {
		t.Errorf("Run() = %s, %v", reason, err)
	}
}

func TestLoop_CancelDuringCapture(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fake := muxtest.New("s")
	fake.CaptureFunc = func(c context.Context, call int) (string, error) {
		if call == 0 {
			cancel()
			<-c.Done()
			return "", c.Err()
		}
		return "final", nil
	}
	l, _, out, _ := newLoop(fake, task.NewQueue())

	reason, err := l.Run(ctx)
	if err != nil || reason != HaltInterrupted {
		t.Fatalf("Run() = %s, %v", reason, err)
	}
	if out.String() != "final\n" {
		t.Errorf("final print = %q", out.String())
	}
}

func TestLoop_DispatchedMustNotDecrease(t *testing.T) {
	fake := muxtest.New("s")
	fake.Captures = []string{"x"}
	l, _, _, _ := newLoop(fake, task.NewQueue(), &funcProcessor{name: "rewind", fn: func(st *processor.State) (bool, error) {
		st.Dispatched--
		return true, nil
	}})

	if reason, err := l.Run(context.Background()); reason != HaltError || err == nil {
		t.Errorf("Run() = %s, %v; want error halt", reason, err)
	}
}

func TestLoop_RunTwice(t *testing.T) {
	fake := muxtest.New("s")
	fake.Captures = []string{"x"}
	l, _, _, _ := newLoop(fake, task.NewQueue(), &funcProcessor{name: "stop", fn: func(*processor.State) (bool, error) {
		return false, nil
	}})

	if _, err := l.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Run(context.Background()); !errors.Is(err, ErrAlreadyRun) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRun", err)
	}
}

func TestLoop_Snapshot(t *testing.T) {
	l, _, _, _ := newLoop(muxtest.New("s"), task.NewQueue("first", "second"))

	p := l.Snapshot()
	want := Progress{Status: Idle, Session: "s", Dispatched: 1, Total: 2, Remaining: 2, Next: "first"}
	if p != want {
		t.Errorf("Snapshot() = %+v, want %+v", p, want)
	}
}
