package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/davidahmann/tend/core/registry"
	schemacommand "github.com/davidahmann/tend/core/schema/v1/command"
)

type registryOutput struct {
	OK bool `json:"ok"`
	errorDetail
	Path     string                     `json:"path,omitempty"`
	Commands []schemacommand.Descriptor `json:"commands,omitempty"`
	Command  *schemacommand.Descriptor  `json:"command,omitempty"`
	Warnings []string                   `json:"warnings,omitempty"`
}

func runRegistry(arguments []string) int {
	if len(arguments) == 0 {
		printRegistryUsage()
		return exitInvalidInput
	}
	switch strings.TrimSpace(arguments[0]) {
	case "list":
		return runRegistryList(arguments[1:])
	case "resolve":
		return runRegistryResolve(arguments[1:])
	default:
		printRegistryUsage()
		return exitInvalidInput
	}
}

func runRegistryList(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Print the external command registry sorted by trigger, with per-line diagnostics for malformed entries.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"workspace": true,
	})
	flagSet := flag.NewFlagSet("registry-list", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var workspace string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&workspace, "workspace", defaultWorkspace(), "workspace directory")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeRegistryOutput(jsonOutput, "list", registryOutput{errorDetail: errorDetail{Error: err.Error()}}, exitCodeForError(err, exitInvalidInput))
	}
	if helpFlag {
		printRegistryUsage()
		return exitOK
	}
	if len(flagSet.Args()) > 0 {
		return writeRegistryOutput(jsonOutput, "list", registryOutput{errorDetail: errorDetail{Error: "unexpected positional arguments"}}, exitInvalidInput)
	}

	env, err := openWorkspace(workspace)
	if err != nil {
		return writeRegistryOutput(jsonOutput, "list", registryOutput{errorDetail: describeError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	jsonOutput = env.jsonMode(jsonOutput)

	reg, err := registry.Load(env.paths.RegistryPath)
	if err != nil {
		return writeRegistryOutput(jsonOutput, "list", registryOutput{errorDetail: describeError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	return writeRegistryOutput(jsonOutput, "list", registryOutput{
		OK:       true,
		Path:     reg.Path(),
		Commands: reg.List(),
		Warnings: reg.Warnings(),
	}, exitOK)
}

func runRegistryResolve(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Resolve a trigger phrase to one registered command: exact match first, then a unique case-insensitive substring match.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"trigger":   true,
		"workspace": true,
	})
	flagSet := flag.NewFlagSet("registry-resolve", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var trigger string
	var workspace string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&trigger, "trigger", "", "trigger phrase to resolve")
	flagSet.StringVar(&workspace, "workspace", defaultWorkspace(), "workspace directory")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeRegistryOutput(jsonOutput, "resolve", registryOutput{errorDetail: errorDetail{Error: err.Error()}}, exitCodeForError(err, exitInvalidInput))
	}
	if helpFlag {
		printRegistryUsage()
		return exitOK
	}
	if len(flagSet.Args()) > 0 {
		return writeRegistryOutput(jsonOutput, "resolve", registryOutput{errorDetail: errorDetail{Error: "unexpected positional arguments"}}, exitInvalidInput)
	}
	if strings.TrimSpace(trigger) == "" {
		return writeRegistryOutput(jsonOutput, "resolve", registryOutput{errorDetail: errorDetail{Error: "missing required --trigger <text>"}}, exitInvalidInput)
	}

	env, err := openWorkspace(workspace)
	if err != nil {
		return writeRegistryOutput(jsonOutput, "resolve", registryOutput{errorDetail: describeError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	jsonOutput = env.jsonMode(jsonOutput)

	reg, err := registry.Load(env.paths.RegistryPath)
	if err != nil {
		return writeRegistryOutput(jsonOutput, "resolve", registryOutput{errorDetail: describeError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	descriptor, err := reg.Resolve(trigger)
	if err != nil {
		return writeRegistryOutput(jsonOutput, "resolve", registryOutput{errorDetail: describeError(err), Warnings: reg.Warnings()}, exitCodeForError(err, exitInternalFailure))
	}
	return writeRegistryOutput(jsonOutput, "resolve", registryOutput{
		OK:       true,
		Path:     reg.Path(),
		Command:  &descriptor,
		Warnings: reg.Warnings(),
	}, exitOK)
}

func writeRegistryOutput(jsonOutput bool, verb string, output registryOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}

	if output.Error != "" {
		fmt.Printf("registry %s error: %s\n", verb, output.Error)
		if output.Hint != "" {
			fmt.Printf("hint: %s\n", output.Hint)
		}
		return exitCode
	}
	if output.Command != nil {
		fmt.Printf("registry %s: id=%s trigger=%q script=%s\n", verb, output.Command.ID, output.Command.Trigger, output.Command.Script)
	} else {
		fmt.Printf("registry %s: %d command(s)\n", verb, len(output.Commands))
		for _, descriptor := range output.Commands {
			line := fmt.Sprintf("- %q -> %s (%s)", descriptor.Trigger, descriptor.ID, descriptor.Script)
			if descriptor.Description != "" {
				line += ": " + descriptor.Description
			}
			fmt.Println(line)
		}
	}
	for _, warning := range output.Warnings {
		fmt.Printf("warning: %s\n", warning)
	}
	return exitCode
}

func printRegistryUsage() {
	fmt.Println("Usage:")
	fmt.Println("  tend registry list [--workspace <dir>] [--json] [--explain]")
	fmt.Println("  tend registry resolve --trigger <text> [--workspace <dir>] [--json] [--explain]")
}
