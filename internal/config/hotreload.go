package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// HotReloadFileName is the default hot-reload rule file inside a server root
const HotReloadFileName = "hotreload.yml"

// ActionKind is the kind of reaction to a changed file
type ActionKind string

const (
	ActionReload       ActionKind = "reload"
	ActionRestart      ActionKind = "restart"
	ActionReloadPlugin ActionKind = "reload-plugin"
	ActionRunCommand   ActionKind = "run"
)

// Action is what happens when a hot-reload rule matches. Arg carries the
// plugin name for reload-plugin and the command line for run.
type Action struct {
	Kind ActionKind
	Arg  string
}

func (a Action) String() string {
	if a.Arg == "" {
		return string(a.Kind)
	}
	return fmt.Sprintf("%s(%s)", a.Kind, a.Arg)
}

// UnmarshalYAML accepts either a bare scalar ("reload", "restart") or a
// single-key mapping ({reload-plugin: Name}, {run: "say hi"}).
func (a *Action) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		kind := ActionKind(node.Value)
		switch kind {
		case ActionReload, ActionRestart:
			*a = Action{Kind: kind}
			return nil
		case ActionReloadPlugin, ActionRunCommand:
			return fmt.Errorf("line %d: action %q needs an argument", node.Line, kind)
		}
		return fmt.Errorf("line %d: unknown action %q", node.Line, node.Value)

	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return fmt.Errorf("line %d: action mapping must have exactly one key", node.Line)
		}
		key, val := node.Content[0], node.Content[1]
		if val.Kind != yaml.ScalarNode || strings.TrimSpace(val.Value) == "" {
			return fmt.Errorf("line %d: action %q needs a non-empty string argument", node.Line, key.Value)
		}
		kind := ActionKind(key.Value)
		switch kind {
		case ActionReloadPlugin, ActionRunCommand:
			*a = Action{Kind: kind, Arg: val.Value}
			return nil
		}
		return fmt.Errorf("line %d: unknown action %q", node.Line, key.Value)
	}

	return fmt.Errorf("line %d: action must be a string or a mapping", node.Line)
}

// HotReloadFile is one watch rule as written in hotreload.yml
type HotReloadFile struct {
	Path   string `yaml:"path"`
	Action Action `yaml:"action"`
}

// ControllerConfig describes how actions reach the running server
type ControllerConfig struct {
	Unit    string `yaml:"unit"`
	Console string `yaml:"console"`
}

// HotReload is the development-time watch configuration
type HotReload struct {
	Files      []HotReloadFile  `yaml:"files"`
	Controller ControllerConfig `yaml:"controller"`
}

// LoadHotReload reads and parses a hotreload.yml file
func LoadHotReload(path string) (*HotReload, error) {
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read hot-reload file: %w", err)
	}

	var hr HotReload
	if err := yaml.Unmarshal(data, &hr); err != nil {
		return nil, fmt.Errorf("failed to parse hot-reload file %s: %w", path, err)
	}

	hr.Controller.Console = os.ExpandEnv(hr.Controller.Console)

	if err := hr.Validate(); err != nil {
		return nil, fmt.Errorf("invalid hot-reload configuration: %w", err)
	}

	return &hr, nil
}

// Validate checks the hot-reload configuration for errors
func (h *HotReload) Validate() error {
	for i, f := range h.Files {
		if strings.TrimSpace(f.Path) == "" {
			return fmt.Errorf("files[%d].path is required", i)
		}
		if f.Action.Kind == "" {
			return fmt.Errorf("files[%d].action is required", i)
		}
	}
	return nil
}
