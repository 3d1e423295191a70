package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/codexswarm/agentctl/internal/config"
	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
)

func writeTestConfig(t *testing.T, root string, extra map[string]any) *config.Config {
	t.Helper()
	data := map[string]any{
		"schema_version": 1,
		"paths": map[string]any{
			"tasks_path":         ".codex-swarm/tasks.json",
			"agents_dir":         ".codex-swarm/agents",
			"agentctl_docs_path": ".codex-swarm/AGENTCTL.md",
			"workflow_dir":       ".codex-swarm/workflow",
		},
	}
	for k, v := range extra {
		data[k] = v
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, ".codex-swarm"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(config.ConfigPath(root), raw, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(root)
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestOpenBackendDefaultsToLocal(t *testing.T) {
	root := t.TempDir()
	cfg := writeTestConfig(t, root, nil)

	backend, err := openBackend(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if backend.Name() != "local" {
		t.Errorf("backend name = %q, want local", backend.Name())
	}
}

func TestOpenBackendMissingDescriptor(t *testing.T) {
	root := t.TempDir()
	cfg := writeTestConfig(t, root, map[string]any{
		"tasks_backend": map[string]any{"config_path": ".codex-swarm/backends/nope.json"},
	})

	_, err := openBackend(cfg)
	e := swarmerrors.As(err)
	if e == nil || e.Code != swarmerrors.CodeConfigMissing {
		t.Fatalf("err = %v", err)
	}
}

func TestOpenBackendDescriptorValidation(t *testing.T) {
	root := t.TempDir()
	cfg := writeTestConfig(t, root, map[string]any{
		"tasks_backend": map[string]any{"config_path": ".codex-swarm/backends/backend.json"},
	})
	descriptor := filepath.Join(root, ".codex-swarm", "backends", "backend.json")
	if err := os.MkdirAll(filepath.Dir(descriptor), 0o755); err != nil {
		t.Fatal(err)
	}

	write := func(body string) {
		t.Helper()
		if err := os.WriteFile(descriptor, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write(`{"version": 1}`)
	if _, err := openBackend(cfg); swarmerrors.As(err) == nil {
		t.Error("expected error for missing id")
	}

	write(`{"id": "local"}`)
	if _, err := openBackend(cfg); swarmerrors.As(err) == nil {
		t.Error("expected error for missing version")
	}

	write(`{"id": "local", "version": 1, "settings": {"dir": ".codex-swarm/tasks"}}`)
	backend, err := openBackend(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if backend.Name() != "local" {
		t.Errorf("backend name = %q", backend.Name())
	}
}
