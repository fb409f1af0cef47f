package task

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// taskFile is the YAML layout of a task file.
type taskFile struct {
	Tasks []string `yaml:"tasks"`
}

// Load reads tasks from path in file order.
//
// YAML files (.yaml, .yml) hold either a "tasks:" list or a bare list.
// Any other file is read one task per line; blank lines and lines starting
// with '#' are skipped.
func Load(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading task file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		tasks, err := parseYAML(data)
		if err != nil {
			return nil, fmt.Errorf("parsing task file %s: %w", path, err)
		}
		return tasks, nil
	default:
		tasks, err := parseLines(data)
		if err != nil {
			return nil, fmt.Errorf("reading task file %s: %w", path, err)
		}
		return tasks, nil
	}
}

func parseYAML(data []byte) ([]string, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	root := node.Content[0]
	if root.Kind == yaml.SequenceNode {
		var tasks []string
		if err := root.Decode(&tasks); err != nil {
			return nil, err
		}
		return tasks, nil
	}
	var f taskFile
	if err := root.Decode(&f); err != nil {
		return nil, err
	}
	return f.Tasks, nil
}

func parseLines(data []byte) ([]string, error) {
	var tasks []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tasks = append(tasks, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}
