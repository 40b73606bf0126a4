package projectconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAllowMissing(t *testing.T) {
	workDir := t.TempDir()
	path := filepath.Join(workDir, "missing.yaml")

	configuration, err := Load(path, true)
	if err != nil {
		t.Fatalf("Load allow missing: %v", err)
	}
	if configuration.Workspace.StateDir != "" {
		t.Fatalf("expected empty configuration, got state_dir %q", configuration.Workspace.StateDir)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	workDir := t.TempDir()
	path := filepath.Join(workDir, "missing.yaml")

	if _, err := Load(path, false); err == nil {
		t.Fatal("expected missing required config error")
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	workDir := t.TempDir()
	path := filepath.Join(workDir, "config.yaml")
	content := []byte(`
workspace:
  state_dir: " state "
  schema_dir: " schemas/custom "
  registry_path: " /etc/tend/commands.jsonl "
output:
  json: true
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	configuration, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load parse: %v", err)
	}
	if configuration.Workspace.StateDir != "state" {
		t.Fatalf("unexpected state_dir %q", configuration.Workspace.StateDir)
	}
	if configuration.Workspace.SchemaDir != "schemas/custom" {
		t.Fatalf("unexpected schema_dir %q", configuration.Workspace.SchemaDir)
	}
	if configuration.Workspace.RegistryPath != "/etc/tend/commands.jsonl" {
		t.Fatalf("unexpected registry_path %q", configuration.Workspace.RegistryPath)
	}
	if !configuration.Output.JSON {
		t.Fatal("expected output.json=true")
	}
}

func TestResolvedAppliesDefaults(t *testing.T) {
	paths := Config{}.Resolved(".tend")
	if paths.StateDir != ".tend" {
		t.Fatalf("unexpected state dir %q", paths.StateDir)
	}
	if paths.SchemaDir != filepath.Join(".tend", "schemas") {
		t.Fatalf("unexpected schema dir %q", paths.SchemaDir)
	}
	if paths.RegistryPath != filepath.Join(".tend", "commands.jsonl") {
		t.Fatalf("unexpected registry path %q", paths.RegistryPath)
	}
	if paths.JournalPath != filepath.Join(".tend", "journal.jsonl") {
		t.Fatalf("unexpected journal path %q", paths.JournalPath)
	}
}

func TestResolvedKeepsAbsoluteAndJoinsRelative(t *testing.T) {
	configuration := Config{Workspace: WorkspaceDefaults{
		StateDir:     "state",
		RegistryPath: "/etc/tend/commands.jsonl",
	}}
	paths := configuration.Resolved(".tend")
	if paths.StateDir != filepath.Join(".tend", "state") {
		t.Fatalf("relative state_dir should join the workspace, got %q", paths.StateDir)
	}
	if paths.RegistryPath != "/etc/tend/commands.jsonl" {
		t.Fatalf("absolute registry_path should be kept, got %q", paths.RegistryPath)
	}
	if paths.JournalPath != filepath.Join(".tend", "state", "journal.jsonl") {
		t.Fatalf("journal should live in the state dir, got %q", paths.JournalPath)
	}
}

func TestLoadWorkspaceToleratesMissingConfig(t *testing.T) {
	workspace := filepath.Join(t.TempDir(), ".tend")
	_, paths, err := LoadWorkspace(workspace)
	if err != nil {
		t.Fatalf("LoadWorkspace: %v", err)
	}
	if paths.StateDir != workspace {
		t.Fatalf("unexpected state dir %q", paths.StateDir)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	workDir := t.TempDir()
	path := filepath.Join(workDir, "config.yaml")
	if err := os.WriteFile(path, []byte("workspace: [\n"), 0o600); err != nil {
		t.Fatalf("write invalid config: %v", err)
	}

	if _, err := Load(path, false); err == nil {
		t.Fatal("expected parse error for invalid yaml")
	}
}
