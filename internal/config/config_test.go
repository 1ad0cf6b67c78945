package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"flowline/internal/config"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("built-in defaults must validate: %v", err)
	}
	if len(cfg.Workflow.Statuses) != 3 {
		t.Fatalf("expected 3 default statuses, got %d", len(cfg.Workflow.Statuses))
	}
	if len(cfg.Workflow.Defaults) != 4 {
		t.Fatalf("expected 4 default transitions, got %d", len(cfg.Workflow.Defaults))
	}
	if cfg.Server.BasePath != "/v0" {
		t.Fatalf("unexpected base path %s", cfg.Server.BasePath)
	}
}

func TestLoadOptionalFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if len(cfg.Workflow.Statuses) == 0 {
		t.Fatalf("expected default statuses")
	}
	if _, err := config.Load(dir); err == nil {
		t.Fatalf("strict load should fail without flowline.yml")
	}
}

func TestLoadReadsWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	data := `workflow:
  statuses:
    - id: open
      name: Open
      category: todo
    - id: closed
      name: Closed
      category: done
  defaults:
    - from: open
      to: closed
      name: Close
permissions:
  project:
    viewer:
      - issue.read
`
	if err := os.WriteFile(filepath.Join(dir, "flowline.yml"), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Workflow.Statuses) != 2 || cfg.Workflow.Statuses[0].ID != "open" {
		t.Fatalf("unexpected statuses %v", cfg.Workflow.Statuses)
	}
}

func TestValidateRejectsBrokenConfigs(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"no statuses", `workflow:
  defaults:
    - from: a
      to: b
      name: x
`},
		{"unknown category", `workflow:
  statuses:
    - id: open
      name: Open
      category: pending
  defaults:
    - from: open
      to: open
      name: loop
`},
		{"no todo status", `workflow:
  statuses:
    - id: closed
      name: Closed
      category: done
  defaults:
    - from: closed
      to: closed
      name: loop
`},
		{"default references unknown status", `workflow:
  statuses:
    - id: open
      name: Open
      category: todo
  defaults:
    - from: open
      to: ghost
      name: vanish
`},
		{"duplicate status id", `workflow:
  statuses:
    - id: open
      name: Open
      category: todo
    - id: open
      name: Also Open
      category: todo
  defaults:
    - from: open
      to: open
      name: loop
`},
		{"unknown project role", `workflow:
  statuses:
    - id: open
      name: Open
      category: todo
  defaults:
    - from: open
      to: open
      name: loop
permissions:
  project:
    emperor:
      - everything
`},
	}
	for _, tc := range cases {
		if _, err := config.FromYAML([]byte(tc.yaml)); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}
