package projectconfig

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"

	coreerrors "github.com/davidahmann/tend/core/errors"
)

const (
	DefaultWorkspace = ".tend"
	ConfigFileName   = "config.yaml"
)

type Config struct {
	Workspace WorkspaceDefaults `yaml:"workspace"`
	Output    OutputDefaults    `yaml:"output"`
}

// WorkspaceDefaults override where records live. Relative paths are resolved
// against the workspace directory.
type WorkspaceDefaults struct {
	StateDir     string `yaml:"state_dir"`
	SchemaDir    string `yaml:"schema_dir"`
	RegistryPath string `yaml:"registry_path"`
}

type OutputDefaults struct {
	JSON bool `yaml:"json"`
}

// Paths are the effective workspace locations after defaults are applied.
type Paths struct {
	StateDir     string
	SchemaDir    string
	RegistryPath string
	JournalPath  string
}

func Load(path string, allowMissing bool) (Config, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return Config{}, coreerrors.New(coreerrors.CategoryInvalidInput, "config_path_required", "pass the workspace config path", false, "project config path is required")
	}

	// #nosec G304 -- project config path is explicit local user input.
	content, err := os.ReadFile(trimmedPath)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			return Config{}, nil
		}
		return Config{}, coreerrors.Wrap(err, coreerrors.CategoryIOFailure, "config_read_failed", "check the workspace directory", false)
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		return Config{}, nil
	}

	var configuration Config
	if err := yaml.Unmarshal(content, &configuration); err != nil {
		return Config{}, coreerrors.Wrap(err, coreerrors.CategoryInvalidInput, "config_invalid", "fix the YAML in "+trimmedPath, false)
	}
	configuration.normalize()
	return configuration, nil
}

// LoadWorkspace reads <workspace>/config.yaml, tolerating its absence, and
// returns the effective paths alongside the raw configuration.
func LoadWorkspace(workspace string) (Config, Paths, error) {
	workspace = strings.TrimSpace(workspace)
	if workspace == "" {
		workspace = DefaultWorkspace
	}
	configuration, err := Load(filepath.Join(workspace, ConfigFileName), true)
	if err != nil {
		return Config{}, Paths{}, err
	}
	return configuration, configuration.Resolved(workspace), nil
}

// Resolved applies defaults: records live directly under the workspace,
// descriptors under <workspace>/schemas, and the command registry at
// <workspace>/commands.jsonl.
func (configuration Config) Resolved(workspace string) Paths {
	resolve := func(value, fallback string) string {
		if value == "" {
			return fallback
		}
		if filepath.IsAbs(value) {
			return value
		}
		return filepath.Join(workspace, value)
	}
	stateDir := resolve(configuration.Workspace.StateDir, workspace)
	return Paths{
		StateDir:     stateDir,
		SchemaDir:    resolve(configuration.Workspace.SchemaDir, filepath.Join(workspace, "schemas")),
		RegistryPath: resolve(configuration.Workspace.RegistryPath, filepath.Join(workspace, "commands.jsonl")),
		JournalPath:  filepath.Join(stateDir, "journal.jsonl"),
	}
}

func (configuration *Config) normalize() {
	configuration.Workspace.StateDir = strings.TrimSpace(configuration.Workspace.StateDir)
	configuration.Workspace.SchemaDir = strings.TrimSpace(configuration.Workspace.SchemaDir)
	configuration.Workspace.RegistryPath = strings.TrimSpace(configuration.Workspace.RegistryPath)
}
