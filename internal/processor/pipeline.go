package processor

import (
	"context"
	"fmt"
)

// Pipeline is an ordered list of processors.
type Pipeline struct {
	processors []Processor
}

// NewPipeline creates a pipeline invoking processors in the given order.
func NewPipeline(processors ...Processor) *Pipeline {
	return &Pipeline{processors: append([]Processor(nil), processors...)}
}

// Add appends a processor to the end of the pipeline.
func (p *Pipeline) Add(proc Processor) {
	p.processors = append(p.processors, proc)
}

// Len returns the number of registered processors.
func (p *Pipeline) Len() int {
	return len(p.processors)
}

// Names returns processor names in invocation order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.processors))
	for i, proc := range p.processors {
		names[i] = proc.Name()
	}
	return names
}

// Result summarizes one Dispatch.
type Result struct {
	// Continue is false when a processor asked to stop.
	Continue bool
	// StoppedBy names the processor that returned false.
	StoppedBy string
	// Invoked lists the processors that ran, in order.
	Invoked []string
}

// Dispatch runs each processor in order until one returns false.
//
// Processors before the stopping one have already run and their effects on
// st stand. A processor error or panic aborts the tick and is returned.
// Context cancellation is checked between processors and returned as is.
func (p *Pipeline) Dispatch(ctx context.Context, st *State, caps Capabilities) (res Result, err error) {
	res.Continue = true
	for _, proc := range p.processors {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Invoked = append(res.Invoked, proc.Name())
		ok, err := invoke(ctx, proc, st, caps)
		if err != nil {
			return res, err
		}
		if !ok {
			res.Continue = false
			res.StoppedBy = proc.Name()
			return res, nil
		}
	}
	return res, nil
}

// invoke calls a single processor, converting a panic into an error.
func invoke(ctx context.Context, proc Processor, st *State, caps Capabilities) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("processor %s panicked: %v", proc.Name(), r)
		}
	}()
	ok, err = proc.ProcessOutput(ctx, st, caps)
	if err != nil {
		return false, fmt.Errorf("processor %s: %w", proc.Name(), err)
	}
	return ok, nil
}
