package main

import (
	"os"
	"strings"

	"github.com/davidahmann/tend/core/journal"
	"github.com/davidahmann/tend/core/projectconfig"
	"github.com/davidahmann/tend/core/schema/descriptor"
	"github.com/davidahmann/tend/core/schema/validate"
)

// workspaceEnv bundles everything a command needs once the workspace is
// resolved: paths, config defaults, the compiled validator, and the journal.
type workspaceEnv struct {
	config    projectconfig.Config
	paths     projectconfig.Paths
	validator *validate.Validator
	journal   *journal.Journal
}

func defaultWorkspace() string {
	if fromEnv := strings.TrimSpace(os.Getenv("TEND_WORKSPACE")); fromEnv != "" {
		return fromEnv
	}
	return projectconfig.DefaultWorkspace
}

func openWorkspace(workspace string) (workspaceEnv, error) {
	config, paths, err := projectconfig.LoadWorkspace(workspace)
	if err != nil {
		return workspaceEnv{}, err
	}
	schemas, err := descriptor.Resolve(paths.SchemaDir)
	if err != nil {
		return workspaceEnv{}, err
	}
	return workspaceEnv{
		config:    config,
		paths:     paths,
		validator: validate.New(schemas),
		journal:   journal.New(paths.JournalPath, journal.Options{ProducerVersion: version}),
	}, nil
}

// jsonMode resolves the effective output mode: the flag switches JSON on, and
// the workspace config can make JSON the default for every command.
func (env workspaceEnv) jsonMode(jsonFlag bool) bool {
	return jsonFlag || env.config.Output.JSON
}
