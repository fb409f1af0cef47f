package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/timvw/pane-driver/internal/config"
	"github.com/timvw/pane-driver/internal/console"
	"github.com/timvw/pane-driver/internal/driver"
	telem "github.com/timvw/pane-driver/internal/otel"
	"github.com/timvw/pane-driver/internal/processor"
	"github.com/timvw/pane-driver/internal/task"
)

var (
	flagCommand    string
	flagPrefix     string
	flagSession    string
	flagTasksFile  string
	flagTasks      []string
	flagProcessors []string
	flagInterval   time.Duration
	flagGrace      time.Duration
	flagLines      int
	flagConsole    bool
	flagTheme      string
)

var runCmd = &cobra.Command{
	Use:   "run [flags] [-- task...]",
	Short: "Start a session and feed it tasks until a processor ends the run",
	Long: `Start (or reuse) a tmux session running --command and poll it.

Tasks come from --tasks-file, the config file, --task flags and trailing
arguments, and are dispatched in the order given. Which processors run, and
in which order, is set by --processor (repeatable) or the config file:

  --processor marker                     dispatch when the line contains DONE
  --processor marker:text=READY          ... or a custom marker
  --processor prompt                     dispatch on a fresh shell prompt
  --processor idle:after=10m             stop after 10 minutes without change
  --processor abort:pattern=FATAL        send C-c and stop on a pattern

Run "pane-driver processors" for the full list. The final pane content is
printed to stdout when the run ends.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDriver(cmd, args)
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&flagCommand, "command", "", "command to start in a new session (default: login shell)")
	f.StringVar(&flagPrefix, "prefix", "", "prefix for generated session names (default: pane-driver)")
	f.StringVar(&flagSession, "session", "", "explicit session name; reused when it already exists")
	f.StringVar(&flagTasksFile, "tasks-file", "", "file with tasks: YAML list or one task per line")
	f.StringArrayVar(&flagTasks, "task", nil, "task to dispatch (repeatable)")
	f.StringArrayVar(&flagProcessors, "processor", nil, "processor as name[:key=value,...] (repeatable, replaces configured processors)")
	f.DurationVar(&flagInterval, "interval", 0, "poll interval (default: 100ms)")
	f.DurationVar(&flagGrace, "grace", 0, "pause between interrupt and kill on cleanup (default: 1s)")
	f.IntVar(&flagLines, "lines", 0, "how many lines back each capture reaches (default: 100)")
	f.BoolVar(&flagConsole, "console", false, "show a live status view on stderr")
	f.StringVar(&flagTheme, "theme", "", "console theme: dark, light")
	rootCmd.AddCommand(runCmd)
}

func runDriver(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}

	// Wire build version into OTEL service metadata
	telem.Version = Version

	// Initialize OTEL (no-op if no endpoint configured)
	tel, err := telem.Init(ctx, telem.Config{
		Endpoint: cfg.OTELEndpoint,
		Headers:  cfg.OTELHeaders,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: otel init failed: %v\n", err)
	}
	var (
		metrics *telem.Metrics
		tracer  trace.Tracer
	)
	if tel != nil {
		defer func() {
			// Flush even when the run was interrupted.
			if err := tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
				fmt.Fprintf(os.Stderr, "warning: otel shutdown: %v\n", err)
			}
		}()
		metrics = tel.Metrics
		tracer = tel.Tracer
	}

	m, err := getMultiplexer(cfg.Mux, cfg.Socket)
	if err != nil {
		return err
	}

	tasks, err := collectTasks(cfg, args)
	if err != nil {
		return err
	}

	registry := processor.NewRegistry()
	registry.Out = os.Stderr
	specs, err := processorSpecs(cfg)
	if err != nil {
		return err
	}
	procs := registry.Build(specs)

	d := driver.New(m, driver.Options{
		Command:      cfg.Command,
		Prefix:       cfg.Prefix,
		SessionID:    cfg.Session,
		Interval:     cfg.IntervalDuration,
		CaptureLines: cfg.CaptureLines,
		Grace:        cfg.GraceDuration,
		Out:          os.Stdout,
		Metrics:      metrics,
		Tracer:       tracer,
	})
	for _, p := range procs {
		if err := d.AddProcessor(p); err != nil {
			return err
		}
	}

	if err := d.Start(ctx, task.NewQueue(tasks...), len(tasks)); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "session: %s (%d tasks, processors: %s)\n",
		d.Session(), len(tasks), strings.Join(processorNames(procs), ", "))

	if cfg.Console {
		c := &console.Console{Source: d, Theme: console.ThemeByName(cfg.Theme)}
		if err := c.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "warning: console: %v\n", err)
		}
	}
	return d.Wait(ctx)
}

// applyRunFlags overrides configuration with explicitly set run flags.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("command") {
		cfg.Command = flagCommand
	}
	if f.Changed("prefix") {
		cfg.Prefix = flagPrefix
	}
	if f.Changed("session") {
		cfg.Session = flagSession
	}
	if f.Changed("tasks-file") {
		cfg.TasksFile = flagTasksFile
	}
	if f.Changed("task") {
		cfg.Tasks = flagTasks
	}
	if f.Changed("processor") {
		cfg.Processors = cfg.Processors[:0:0]
		for _, raw := range flagProcessors {
			pc, err := parseProcessorFlag(raw)
			if err != nil {
				return err
			}
			cfg.Processors = append(cfg.Processors, pc)
		}
	}
	if f.Changed("interval") {
		if flagInterval <= 0 {
			return fmt.Errorf("--interval must be positive")
		}
		cfg.IntervalDuration = flagInterval
	}
	if f.Changed("grace") {
		if flagGrace <= 0 {
			return fmt.Errorf("--grace must be positive")
		}
		cfg.GraceDuration = flagGrace
	}
	if f.Changed("lines") {
		if flagLines <= 0 {
			return fmt.Errorf("--lines must be positive")
		}
		cfg.CaptureLines = flagLines
	}
	if f.Changed("console") {
		cfg.Console = flagConsole
	}
	if f.Changed("theme") {
		cfg.Theme = flagTheme
	}
	return nil
}

// parseProcessorFlag parses "name" or "name:key=value,key2=value2".
func parseProcessorFlag(raw string) (config.ProcessorConfig, error) {
	name, rest, _ := strings.Cut(raw, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return config.ProcessorConfig{}, fmt.Errorf("invalid --processor %q: missing name", raw)
	}
	pc := config.ProcessorConfig{Name: name}
	if rest == "" {
		return pc, nil
	}
	pc.Options = make(map[string]string)
	for _, pair := range strings.Split(rest, ",") {
		key, val, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return config.ProcessorConfig{}, fmt.Errorf("invalid --processor %q: option %q is not key=value", raw, pair)
		}
		pc.Options[key] = val
	}
	return pc, nil
}

// collectTasks returns tasks in dispatch order: task file, configured or
// flag tasks, then trailing arguments.
func collectTasks(cfg *config.Config, args []string) ([]string, error) {
	var tasks []string
	if cfg.TasksFile != "" {
		loaded, err := task.Load(cfg.TasksFile)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, loaded...)
	}
	tasks = append(tasks, cfg.Tasks...)
	tasks = append(tasks, args...)
	return tasks, nil
}

func processorSpecs(cfg *config.Config) ([]processor.Spec, error) {
	specs := make([]processor.Spec, 0, len(cfg.Processors))
	for _, pc := range cfg.Processors {
		if pc.Name == "" {
			return nil, fmt.Errorf("processor without a name")
		}
		specs = append(specs, processor.Spec{Name: pc.Name, Options: processor.Options(pc.Options)})
	}
	return specs, nil
}

func processorNames(procs []processor.Processor) []string {
	names := make([]string, len(procs))
	for i, p := range procs {
		names[i] = p.Name()
	}
	return names
}
