// Package config loads pane-driver configuration from file and environment.
//
// Precedence (highest to lowest):
//  1. Environment variables (PANE_DRIVER_*)
//  2. Config file
//  3. Built-in defaults
//
// Config file search order:
//  1. The path given with --config, if any
//  2. .pane-driver.yaml in current directory
//  3. ~/.config/pane-driver/config.yaml
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ProcessorConfig selects a processor by registry name.
type ProcessorConfig struct {
	Name    string            `yaml:"name"`
	Options map[string]string `yaml:"options"`
}

// Config holds all pane-driver configuration.
type Config struct {
	// Session settings
	Command string `yaml:"command"` // command started in a new session; empty runs a shell
	Prefix  string `yaml:"prefix"`  // generated session names are <prefix>-<id>
	Session string `yaml:"session"` // explicit session name, used verbatim
	Mux     string `yaml:"mux"`     // multiplexer: "tmux" or empty to auto-detect
	Socket  string `yaml:"socket"`  // tmux -L socket name

	// Polling
	Interval     string `yaml:"interval"` // Go duration string, e.g. "100ms"
	Grace        string `yaml:"grace"`    // pause between interrupt and kill
	CaptureLines int    `yaml:"capture_lines"`

	// Work
	Tasks      []string          `yaml:"tasks"`
	TasksFile  string            `yaml:"tasks_file"`
	Processors []ProcessorConfig `yaml:"processors"`

	// Console
	Console bool   `yaml:"console"`
	Theme   string `yaml:"theme"` // "dark" (default) or "light"

	// OTEL
	OTELEndpoint string `yaml:"otel_endpoint"`
	OTELHeaders  string `yaml:"otel_headers"` // Comma-separated key=value pairs, e.g. "Authorization=Basic abc123"

	// Parsed durations (not from YAML, set after loading)
	IntervalDuration time.Duration `yaml:"-"`
	GraceDuration    time.Duration `yaml:"-"`

	// ConfigFile is the path to the config file that was loaded (empty if none).
	ConfigFile string `yaml:"-"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		Prefix:       "pane-driver",
		Interval:     "100ms",
		Grace:        "1s",
		CaptureLines: 100,
		Processors: []ProcessorConfig{
			{Name: "marker"},
			{Name: "progress"},
		},
		Theme: "dark",
	}
}

// Load reads configuration from file and environment variables.
// An explicit path must exist; otherwise the default locations are searched.
// Environment variables always override file values.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	path, data, err := findConfigFile(path)
	switch {
	case err == nil:
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		cfg.ConfigFile = path
		mergeFile(cfg, &fileCfg)
	case !errors.Is(err, errNoConfigFile):
		return nil, err
	}

	// Environment variables override everything
	if err := mergeEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.parse(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parse validates values and fills the parsed durations.
func (cfg *Config) parse() error {
	var err error
	cfg.IntervalDuration, err = parseDuration(cfg.Interval, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("invalid interval %q: %w", cfg.Interval, err)
	}
	cfg.GraceDuration, err = parseDuration(cfg.Grace, time.Second)
	if err != nil {
		return fmt.Errorf("invalid grace %q: %w", cfg.Grace, err)
	}
	if cfg.CaptureLines <= 0 {
		return fmt.Errorf("invalid capture_lines %d: must be positive", cfg.CaptureLines)
	}
	switch cfg.Theme {
	case "", "dark", "light":
	default:
		return fmt.Errorf("invalid theme %q: want dark or light", cfg.Theme)
	}
	for i, p := range cfg.Processors {
		if p.Name == "" {
			return fmt.Errorf("processors[%d]: missing name", i)
		}
	}
	return nil
}

var errNoConfigFile = errors.New("no config file found")

// findConfigFile returns the path and contents of the config file to load.
func findConfigFile(explicit string) (string, []byte, error) {
	if explicit != "" {
		data, err := os.ReadFile(explicit)
		if err != nil {
			return "", nil, fmt.Errorf("reading config file: %w", err)
		}
		return explicit, data, nil
	}

	// 1. Current directory
	if data, err := os.ReadFile(".pane-driver.yaml"); err == nil {
		return ".pane-driver.yaml", data, nil
	}

	// 2. XDG config dir / ~/.config
	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".config", "pane-driver", "config.yaml")
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}

	return "", nil, errNoConfigFile
}

// mergeFile applies non-zero file values onto cfg.
func mergeFile(cfg *Config, file *Config) {
	if file.Command != "" {
		cfg.Command = file.Command
	}
	if file.Prefix != "" {
		cfg.Prefix = file.Prefix
	}
	if file.Session != "" {
		cfg.Session = file.Session
	}
	if file.Mux != "" {
		cfg.Mux = file.Mux
	}
	if file.Socket != "" {
		cfg.Socket = file.Socket
	}
	if file.Interval != "" {
		cfg.Interval = file.Interval
	}
	if file.Grace != "" {
		cfg.Grace = file.Grace
	}
	if file.CaptureLines != 0 {
		cfg.CaptureLines = file.CaptureLines
	}
	if len(file.Tasks) > 0 {
		cfg.Tasks = file.Tasks
	}
	if file.TasksFile != "" {
		cfg.TasksFile = file.TasksFile
	}
	if len(file.Processors) > 0 {
		cfg.Processors = file.Processors
	}
	if file.Console {
		cfg.Console = file.Console
	}
	if file.Theme != "" {
		cfg.Theme = file.Theme
	}
	if file.OTELEndpoint != "" {
		cfg.OTELEndpoint = file.OTELEndpoint
	}
	if file.OTELHeaders != "" {
		cfg.OTELHeaders = file.OTELHeaders
	}
}

// mergeEnv applies environment variables onto cfg. Env always wins.
func mergeEnv(cfg *Config) error {
	if v := os.Getenv("PANE_DRIVER_COMMAND"); v != "" {
		cfg.Command = v
	}
	if v := os.Getenv("PANE_DRIVER_PREFIX"); v != "" {
		cfg.Prefix = v
	}
	if v := os.Getenv("PANE_DRIVER_SESSION"); v != "" {
		cfg.Session = v
	}
	if v := os.Getenv("PANE_DRIVER_MUX"); v != "" {
		cfg.Mux = v
	}
	if v := os.Getenv("PANE_DRIVER_SOCKET"); v != "" {
		cfg.Socket = v
	}
	if v := os.Getenv("PANE_DRIVER_INTERVAL"); v != "" {
		cfg.Interval = v
	}
	if v := os.Getenv("PANE_DRIVER_GRACE"); v != "" {
		cfg.Grace = v
	}
	if v := os.Getenv("PANE_DRIVER_CAPTURE_LINES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PANE_DRIVER_CAPTURE_LINES %q: %w", v, err)
		}
		cfg.CaptureLines = n
	}
	if v := os.Getenv("PANE_DRIVER_TASKS_FILE"); v != "" {
		cfg.TasksFile = v
	}
	if v := os.Getenv("PANE_DRIVER_CONSOLE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid PANE_DRIVER_CONSOLE %q: %w", v, err)
		}
		cfg.Console = b
	}
	if v := os.Getenv("PANE_DRIVER_THEME"); v != "" {
		cfg.Theme = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTELEndpoint = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"); v != "" {
		cfg.OTELHeaders = v
	}
	return nil
}

// parseDuration parses a positive duration string.
// Empty string returns the fallback value.
func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return d, nil
}
