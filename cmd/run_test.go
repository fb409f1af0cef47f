package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/timvw/pane-driver/internal/config"
)

func TestParseProcessorFlag(t *testing.T) {
	tests := []struct {
		raw     string
		want    config.ProcessorConfig
		wantErr bool
	}{
		{raw: "marker", want: config.ProcessorConfig{Name: "marker"}},
		{raw: "marker:text=READY", want: config.ProcessorConfig{Name: "marker", Options: map[string]string{"text": "READY"}}},
		{raw: "abort:pattern=FATAL,keys=C-c", want: config.ProcessorConfig{Name: "abort", Options: map[string]string{"pattern": "FATAL", "keys": "C-c"}}},
		{raw: "prompt:pattern=a=b", want: config.ProcessorConfig{Name: "prompt", Options: map[string]string{"pattern": "a=b"}}},
		{raw: "", wantErr: true},
		{raw: ":text=x", wantErr: true},
		{raw: "idle:after", wantErr: true},
		{raw: "idle:=5m", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseProcessorFlag(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseProcessorFlag(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseProcessorFlag(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCollectTasks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.txt")
	if err := os.WriteFile(path, []byte("# setup\nmake deps\n\nmake build\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{TasksFile: path, Tasks: []string{"make test"}}
	got, err := collectTasks(cfg, []string{"make release"})
	if err != nil {
		t.Fatalf("collectTasks() error: %v", err)
	}
	want := []string{"make deps", "make build", "make test", "make release"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("collectTasks() = %v, want %v", got, want)
	}

	cfg.TasksFile = filepath.Join(dir, "missing.txt")
	if _, err := collectTasks(cfg, nil); err == nil {
		t.Error("missing task file should be an error")
	}
}

func TestProcessorSpecs(t *testing.T) {
	cfg := &config.Config{Processors: []config.ProcessorConfig{
		{Name: "marker", Options: map[string]string{"text": "OK"}},
		{Name: "progress"},
	}}
	specs, err := processorSpecs(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(specs) != 2 || specs[0].Options.String("text", "") != "OK" || specs[1].Name != "progress" {
		t.Errorf("specs = %+v", specs)
	}
}

func TestProcessorsCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"processors"})
	defer rootCmd.SetArgs(nil)
	defer rootCmd.SetOut(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	got := strings.Fields(out.String())
	want := []string{"abort", "idle", "marker", "progress", "prompt", "tail"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("processors output = %v, want %v", got, want)
	}
}
