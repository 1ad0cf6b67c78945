package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"flowline/internal/domain"
)

// Config models flowline.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Workflow struct {
		Statuses []StatusConfig     `yaml:"statuses"`
		Defaults []TransitionConfig `yaml:"defaults"`
	} `yaml:"workflow"`
	Permissions struct {
		Project map[string][]string `yaml:"project"`
		Team    map[string][]string `yaml:"team"`
	} `yaml:"permissions"`
}

type StatusConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
}

// TransitionConfig is one edge of the default workflow applied to projects
// that have none. The default set is policy, kept in config on purpose.
type TransitionConfig struct {
	From        string `yaml:"from"`
	To          string `yaml:"to"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the built-in defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Workflow.Statuses) == 0 {
		return fmt.Errorf("config.workflow.statuses is required")
	}
	known := map[string]bool{}
	hasTodo := false
	for _, s := range c.Workflow.Statuses {
		if s.ID == "" {
			return fmt.Errorf("config.workflow.statuses contains empty id")
		}
		if known[s.ID] {
			return fmt.Errorf("status %s declared twice", s.ID)
		}
		known[s.ID] = true
		cat, ok := domain.ParseStatusCategory(s.Category)
		if !ok {
			return fmt.Errorf("status %s has unknown category %q", s.ID, s.Category)
		}
		if cat == domain.StatusCategoryTodo {
			hasTodo = true
		}
	}
	if !hasTodo {
		return fmt.Errorf("config.workflow.statuses needs at least one todo-category status")
	}
	if len(c.Workflow.Defaults) == 0 {
		return fmt.Errorf("config.workflow.defaults is required")
	}
	for i, t := range c.Workflow.Defaults {
		if t.Name == "" {
			return fmt.Errorf("default transition %d has empty name", i)
		}
		if !known[t.From] {
			return fmt.Errorf("default transition %q references unknown from status %s", t.Name, t.From)
		}
		if !known[t.To] {
			return fmt.Errorf("default transition %q references unknown to status %s", t.Name, t.To)
		}
	}
	for role, perms := range c.Permissions.Project {
		if _, ok := domain.ParseProjectRole(role); !ok {
			return fmt.Errorf("config.permissions.project has unknown role %q", role)
		}
		for _, p := range perms {
			if p == "" {
				return fmt.Errorf("project role %s has empty permission", role)
			}
		}
	}
	for role, perms := range c.Permissions.Team {
		if _, ok := domain.ParseTeamRole(role); !ok {
			return fmt.Errorf("config.permissions.team has unknown role %q", role)
		}
		for _, p := range perms {
			if p == "" {
				return fmt.Errorf("team role %s has empty permission", role)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "flowline.yml")
}

// Default returns the built-in default Config.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("built-in default config invalid: %v", err))
	}
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0

workflow:
  statuses:
    - id: todo
      name: "To Do"
      category: todo
    - id: in_progress
      name: "In Progress"
      category: in_progress
    - id: done
      name: "Done"
      category: done

  defaults:
    - from: todo
      to: in_progress
      name: "Start Progress"
    - from: in_progress
      to: done
      name: "Finish"
    - from: in_progress
      to: todo
      name: "Stop Progress"
    - from: done
      to: todo
      name: "Reopen"
      description: "Reopen a finished issue"

permissions:
  project:
    admin:
      - project.read
      - project.update
      - project.delete
      - project.members.manage
      - issue.create
      - issue.read
      - issue.update
      - issue.delete
      - label.manage
      - workflow.view
      - workflow.manage
      - workflow.transition
    manager:
      - project.read
      - project.update
      - issue.create
      - issue.read
      - issue.update
      - issue.delete
      - label.manage
      - workflow.view
      - workflow.manage
      - workflow.transition
    contributor:
      - project.read
      - issue.create
      - issue.read
      - issue.update
      - workflow.view
      - workflow.transition
    viewer:
      - project.read
      - issue.read
      - workflow.view
  team:
    owner:
      - team.read
      - team.update
      - team.delete
      - team.members.manage
    admin:
      - team.read
      - team.update
      - team.members.manage
    member:
      - team.read
    viewer:
      - team.read
`
