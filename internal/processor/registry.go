package processor

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Options are the string settings of a configured processor.
type Options map[string]string

// String returns the option value or def when unset.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok && v != "" {
		return v
	}
	return def
}

// Duration parses a Go duration option.
func (o Options) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := o[key]
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("option %s: %w", key, err)
	}
	return d, nil
}

// Regexp compiles a regular expression option.
func (o Options) Regexp(key, def string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(o.String(key, def))
	if err != nil {
		return nil, fmt.Errorf("option %s: %w", key, err)
	}
	return re, nil
}

// Spec names a processor to instantiate and its options.
type Spec struct {
	Name    string
	Options Options
}

// Factory builds a processor from its options.
type Factory func(out io.Writer, opts Options) (Processor, error)

// Registry maps processor names to factories.
type Registry struct {
	// Out receives output written by processors (progress lines, echoed output).
	Out io.Writer
	// Warn receives diagnostics for processors that fail to load.
	Warn io.Writer

	factories map[string]Factory
}

// NewRegistry creates a registry with the built-in processors.
func NewRegistry() *Registry {
	r := &Registry{
		Out:       os.Stdout,
		Warn:      os.Stderr,
		factories: make(map[string]Factory),
	}
	r.Register("marker", newMarker)
	r.Register("prompt", newPrompt)
	r.Register("progress", newProgress)
	r.Register("tail", newTail)
	r.Register("idle", newIdle)
	r.Register("abort", newAbort)
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Names returns the registered processor names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New instantiates a single processor.
func (r *Registry) New(spec Spec) (Processor, error) {
	f, ok := r.factories[strings.TrimSpace(spec.Name)]
	if !ok {
		return nil, fmt.Errorf("unknown processor %q (available: %s)", spec.Name, strings.Join(r.Names(), ", "))
	}
	p, err := f(r.Out, spec.Options)
	if err != nil {
		return nil, fmt.Errorf("processor %q: %w", spec.Name, err)
	}
	return p, nil
}

// Build instantiates specs in order. A spec that fails to load is reported
// to Warn and skipped; it never fails the whole build.
func (r *Registry) Build(specs []Spec) []Processor {
	var out []Processor
	for _, spec := range specs {
		p, err := r.New(spec)
		if err != nil {
			fmt.Fprintf(r.Warn, "warning: skipping %v\n", err)
			continue
		}
		out = append(out, p)
	}
	return out
}
