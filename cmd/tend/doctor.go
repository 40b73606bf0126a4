package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/davidahmann/tend/core/doctor"
)

type doctorOutput struct {
	OK bool `json:"ok"`
	errorDetail
	SummaryMode     bool           `json:"summary_mode,omitempty"`
	SchemaID        string         `json:"schema_id,omitempty"`
	SchemaVersion   string         `json:"schema_version,omitempty"`
	CreatedAt       string         `json:"created_at,omitempty"`
	ProducerVersion string         `json:"producer_version,omitempty"`
	Status          string         `json:"status,omitempty"`
	NonFixable      bool           `json:"non_fixable,omitempty"`
	Summary         string         `json:"summary,omitempty"`
	FixCommands     []string       `json:"fix_commands,omitempty"`
	Checks          []doctor.Check `json:"checks,omitempty"`
}

func runDoctor(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Inspect a workspace without mutating it: state dir, schema descriptors, registry, records, journal, and stale locks.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"workspace": true,
	})
	flagSet := flag.NewFlagSet("doctor", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var workspace string
	var summaryMode bool
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&workspace, "workspace", defaultWorkspace(), "workspace directory")
	flagSet.BoolVar(&summaryMode, "summary", false, "emit concise summary output")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeDoctorOutput(jsonOutput, doctorOutput{errorDetail: errorDetail{Error: err.Error()}}, exitCodeForError(err, exitInvalidInput))
	}
	if helpFlag {
		printDoctorUsage()
		return exitOK
	}
	if len(flagSet.Args()) > 0 {
		return writeDoctorOutput(jsonOutput, doctorOutput{errorDetail: errorDetail{Error: "unexpected positional arguments"}}, exitInvalidInput)
	}

	env, err := openWorkspace(workspace)
	if err != nil {
		return writeDoctorOutput(jsonOutput, doctorOutput{errorDetail: describeError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	jsonOutput = env.jsonMode(jsonOutput)

	result := doctor.Run(doctor.Options{
		Paths:           env.paths,
		ProducerVersion: version,
	})

	exitCode := exitOK
	if result.Status == "fail" {
		exitCode = exitInternalFailure
	}
	return writeDoctorOutput(jsonOutput, doctorOutput{
		OK:              result.Status != "fail",
		SummaryMode:     summaryMode,
		SchemaID:        result.SchemaID,
		SchemaVersion:   result.SchemaVersion,
		CreatedAt:       result.CreatedAt,
		ProducerVersion: result.ProducerVersion,
		Status:          result.Status,
		NonFixable:      result.NonFixable,
		Summary:         result.Summary,
		FixCommands:     result.FixCommands,
		Checks:          result.Checks,
	}, exitCode)
}

func writeDoctorOutput(jsonOutput bool, output doctorOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}

	if output.Error != "" {
		fmt.Printf("doctor error: %s\n", output.Error)
		return exitCode
	}
	fmt.Println(output.Summary)
	for _, check := range output.Checks {
		if output.SummaryMode && check.Status == "pass" {
			continue
		}
		fmt.Printf("- %s: %s (%s)\n", check.Name, check.Status, check.Message)
		if check.FixCommand != "" {
			fmt.Printf("  fix: %s\n", check.FixCommand)
		}
	}
	return exitCode
}

func printDoctorUsage() {
	fmt.Println("Usage:")
	fmt.Println("  tend doctor [--summary] [--workspace <dir>] [--json] [--explain]")
}
