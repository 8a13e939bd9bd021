// Package scenario runs scripted checks against extension commands: a
// scenario opens one session, then each step searches, filters or performs
// an action on it and asserts on the resulting snapshot.
package scenario

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario is a complete check loaded from a JSON or YAML file.
type Scenario struct {
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description"`
	Extension   string            `json:"extension" yaml:"extension"`
	Command     string            `json:"command" yaml:"command"`
	Args        map[string]string `json:"args,omitempty" yaml:"args"`
	Variables   map[string]string `json:"variables,omitempty" yaml:"variables"`
	Steps       []Step            `json:"steps" yaml:"steps"`
}

// Step applies at most one search, filter and action, in that order, then
// captures and asserts. A step with no input asserts on the current view.
type Step struct {
	Name    string            `json:"name" yaml:"name"`
	Search  *string           `json:"search,omitempty" yaml:"search"`
	Filter  *string           `json:"filter,omitempty" yaml:"filter"`
	Action  string            `json:"action,omitempty" yaml:"action"`
	Input   map[string]string `json:"input,omitempty" yaml:"input"`
	Capture map[string]string `json:"capture,omitempty" yaml:"capture"`
	Assert  *Assert           `json:"assert,omitempty" yaml:"assert"`
}

// Assert defines the expected outcome of a step. Snapshot keys are JSONPath
// expressions evaluated against the session snapshot.
type Assert struct {
	Error    string         `json:"error,omitempty" yaml:"error"`
	Toasts   []string       `json:"toasts,omitempty" yaml:"toasts"`
	Snapshot map[string]any `json:"snapshot,omitempty" yaml:"snapshot"`
}

// Load parses a scenario file. The format follows the extension.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario %s: %w", path, err)
	}

	var s Scenario
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, &s)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &s)
	default:
		return nil, fmt.Errorf("scenario %s: unsupported format %q", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
	}

	if s.Name == "" {
		return nil, fmt.Errorf("scenario %s: name is required", path)
	}
	if s.Extension == "" || s.Command == "" {
		return nil, fmt.Errorf("scenario %s: extension and command are required", path)
	}
	if len(s.Steps) == 0 {
		return nil, fmt.Errorf("scenario %s: at least one step is required", path)
	}
	return &s, nil
}

// LoadDir loads every scenario file in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading scenario directory %s: %w", dir, err)
	}

	var scenarios []*Scenario
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}
		s, err := Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// LoadPath loads a single file or every scenario in a directory.
func LoadPath(path string) ([]*Scenario, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	return []*Scenario{s}, nil
}
