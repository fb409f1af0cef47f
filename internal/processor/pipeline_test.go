package processor

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/timvw/pane-driver/internal/task"
)

// fakeCaps records capability calls made by processors.
type fakeCaps struct {
	tasks      []string
	keys       [][]string
	capture    string
	captureErr error
	sendErr    error
}

func (c *fakeCaps) SendTask(_ context.Context, command string) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.tasks = append(c.tasks, command)
	return nil
}

func (c *fakeCaps) CapturePane(context.Context) (string, error) {
	return c.capture, c.captureErr
}

func (c *fakeCaps) SendKeys(_ context.Context, keys ...string) error {
	c.keys = append(c.keys, keys)
	return nil
}

// funcProcessor adapts a function to the Processor interface.
type funcProcessor struct {
	name string
	fn   func(st *State) (bool, error)
}

func (f *funcProcessor) Name() string { return f.name }

func (f *funcProcessor) ProcessOutput(_ context.Context, st *State, _ Capabilities) (bool, error) {
	return f.fn(st)
}

func newState(tasks ...string) *State {
	return &State{
		Session:    "s",
		Queue:      task.NewQueue(tasks...),
		Dispatched: 1,
		Total:      len(tasks),
		Printed:    &atomic.Bool{},
	}
}

func TestPipeline_RunsInRegistrationOrder(t *testing.T) {
	var order []string
	mk := func(name string) Processor {
		return &funcProcessor{name: name, fn: func(*State) (bool, error) {
			order = append(order, name)
			return true, nil
		}}
	}
	p := NewPipeline(mk("a"), mk("b"))
	p.Add(mk("c"))

	res, err := p.Dispatch(context.Background(), newState(), &fakeCaps{})
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if !res.Continue {
		t.Error("expected Continue")
	}
	if !reflect.DeepEqual(order, []string{"a", "b", "c"}) {
		t.Errorf("order = %v", order)
	}
	if !reflect.DeepEqual(p.Names(), []string{"a", "b", "c"}) {
		t.Errorf("Names() = %v", p.Names())
	}
}

func TestPipeline_ShortCircuitsOnStop(t *testing.T) {
	var calls []string
	p := NewPipeline(
		&funcProcessor{name: "p1", fn: func(st *State) (bool, error) {
			calls = append(calls, "p1")
			st.Queue.Pop()
			return true, nil
		}},
		&funcProcessor{name: "p2", fn: func(*State) (bool, error) {
			calls = append(calls, "p2")
			return false, nil
		}},
		&funcProcessor{name: "p3", fn: func(*State) (bool, error) {
			calls = append(calls, "p3")
			return true, nil
		}},
	)

	st := newState("x", "y")
	res, err := p.Dispatch(context.Background(), st, &fakeCaps{})
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if res.Continue || res.StoppedBy != "p2" {
		t.Errorf("result = %+v, want stop by p2", res)
	}
	if !reflect.DeepEqual(calls, []string{"p1", "p2"}) {
		t.Errorf("calls = %v, p3 must not run", calls)
	}
	// p1's mutation stands even though the tick stopped.
	if st.Queue.Len() != 1 {
		t.Errorf("queue len = %d, want 1", st.Queue.Len())
	}
}

func TestPipeline_ErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	ran := false
	p := NewPipeline(
		&funcProcessor{name: "bad", fn: func(*State) (bool, error) { return true, boom }},
		&funcProcessor{name: "after", fn: func(*State) (bool, error) { ran = true; return true, nil }},
	)

	_, err := p.Dispatch(context.Background(), newState(), &fakeCaps{})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
	if !strings.Contains(err.Error(), "processor bad") {
		t.Errorf("error should name the processor: %v", err)
	}
	if ran {
		t.Error("processors after a failure must not run")
	}
}

func TestPipeline_PanicBecomesError(t *testing.T) {
	p := NewPipeline(&funcProcessor{name: "panicky", fn: func(*State) (bool, error) {
		panic("nil map")
	}})

	res, err := p.Dispatch(context.Background(), newState(), &fakeCaps{})
	if err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("err = %v, want panic error", err)
	}
	if !res.Continue {
		// Continue is only cleared by an explicit stop.
		t.Error("panic should not look like a stop signal")
	}
}

func TestPipeline_CancelledBetweenProcessors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ran := false
	p := NewPipeline(
		&funcProcessor{name: "cancels", fn: func(*State) (bool, error) { cancel(); return true, nil }},
		&funcProcessor{name: "after", fn: func(*State) (bool, error) { ran = true; return true, nil }},
	)

	_, err := p.Dispatch(ctx, newState(), &fakeCaps{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if ran {
		t.Error("processor after cancellation must not run")
	}
}

func TestPipeline_Empty(t *testing.T) {
	res, err := NewPipeline().Dispatch(context.Background(), newState(), &fakeCaps{})
	if err != nil || !res.Continue || len(res.Invoked) != 0 {
		t.Errorf("empty pipeline: res=%+v err=%v", res, err)
	}
}

func TestState_DispatchNext(t *testing.T) {
	st := newState("first", "second")
	caps := &fakeCaps{}

	ok, err := st.DispatchNext(context.Background(), caps)
	if err != nil || !ok {
		t.Fatalf("DispatchNext() = %v, %v", ok, err)
	}
	if st.Dispatched != 2 || st.LastTask != "first" {
		t.Errorf("state = dispatched %d last %q", st.Dispatched, st.LastTask)
	}

	caps.sendErr = errors.New("pane gone")
	if _, err := st.DispatchNext(context.Background(), caps); err == nil {
		t.Fatal("expected send error")
	}
	if st.Dispatched != 2 {
		t.Errorf("failed send must not advance Dispatched, got %d", st.Dispatched)
	}

	ok, err = st.DispatchNext(context.Background(), caps)
	if ok || err != nil {
		t.Errorf("empty queue: got %v, %v; want false, nil", ok, err)
	}
}
