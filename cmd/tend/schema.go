package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	coreerrors "github.com/davidahmann/tend/core/errors"
	"github.com/davidahmann/tend/core/schema/validate"
)

type schemaCheckOutput struct {
	OK bool `json:"ok"`
	errorDetail
	SchemaRef  string               `json:"schema_ref,omitempty"`
	RecordPath string               `json:"record_path,omitempty"`
	Violations []validate.Violation `json:"violations,omitempty"`
}

func runSchema(arguments []string) int {
	if len(arguments) == 0 {
		printSchemaUsage()
		return exitInvalidInput
	}
	switch strings.TrimSpace(arguments[0]) {
	case "check":
		return runSchemaCheck(arguments[1:])
	default:
		printSchemaUsage()
		return exitInvalidInput
	}
}

func runSchemaCheck(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Validate a JSON record file against a schema descriptor and report every violation with its path.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"schema":    true,
		"record":    true,
		"workspace": true,
	})
	flagSet := flag.NewFlagSet("schema-check", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var schemaRef string
	var recordPath string
	var workspace string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&schemaRef, "schema", "", "schema ref, e.g. session@v1")
	flagSet.StringVar(&recordPath, "record", "", "path to the JSON record to check")
	flagSet.StringVar(&workspace, "workspace", defaultWorkspace(), "workspace directory")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeSchemaCheckOutput(jsonOutput, schemaCheckOutput{errorDetail: errorDetail{Error: err.Error()}}, exitCodeForError(err, exitInvalidInput))
	}
	if helpFlag {
		printSchemaUsage()
		return exitOK
	}
	if len(flagSet.Args()) > 0 {
		return writeSchemaCheckOutput(jsonOutput, schemaCheckOutput{errorDetail: errorDetail{Error: "unexpected positional arguments"}}, exitInvalidInput)
	}
	if strings.TrimSpace(schemaRef) == "" {
		return writeSchemaCheckOutput(jsonOutput, schemaCheckOutput{errorDetail: errorDetail{Error: "missing required --schema <ref>"}}, exitInvalidInput)
	}
	if strings.TrimSpace(recordPath) == "" {
		return writeSchemaCheckOutput(jsonOutput, schemaCheckOutput{errorDetail: errorDetail{Error: "missing required --record <file.json>"}}, exitInvalidInput)
	}

	env, err := openWorkspace(workspace)
	if err != nil {
		return writeSchemaCheckOutput(jsonOutput, schemaCheckOutput{errorDetail: describeError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	jsonOutput = env.jsonMode(jsonOutput)

	record, err := readJSONRecord(recordPath)
	if err != nil {
		return writeSchemaCheckOutput(jsonOutput, schemaCheckOutput{errorDetail: describeError(err), SchemaRef: schemaRef, RecordPath: recordPath}, exitCodeForError(err, exitInternalFailure))
	}

	violations, err := env.validator.ValidateRecord(schemaRef, record)
	if err != nil {
		return writeSchemaCheckOutput(jsonOutput, schemaCheckOutput{
			errorDetail: describeError(err),
			SchemaRef:   schemaRef,
			RecordPath:  recordPath,
		}, exitCodeForError(err, exitInvalidInput))
	}
	if len(violations) > 0 {
		err := validate.AsError(schemaRef, violations)
		return writeSchemaCheckOutput(jsonOutput, schemaCheckOutput{
			errorDetail: describeError(err),
			SchemaRef:   schemaRef,
			RecordPath:  recordPath,
			Violations:  violations,
		}, exitCodeForError(err, exitInvalidInput))
	}
	return writeSchemaCheckOutput(jsonOutput, schemaCheckOutput{OK: true, SchemaRef: schemaRef, RecordPath: recordPath}, exitOK)
}

func readJSONRecord(path string) (any, error) {
	// #nosec G304 -- record path is explicit local user input.
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, coreerrors.Wrap(err, coreerrors.CategoryNotFound, "record_file_missing", "check the --record path", false)
		}
		return nil, coreerrors.Wrap(err, coreerrors.CategoryIOFailure, "record_read_failed", "check permissions on the record file", true)
	}
	var record any
	if err := json.Unmarshal(content, &record); err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CategoryInvalidInput, "record_parse_failed", "the record file must contain one JSON document", false)
	}
	if _, ok := record.(map[string]any); !ok {
		return nil, coreerrors.New(coreerrors.CategoryInvalidInput, "record_not_object", "the record file must contain one JSON object", false, "record in %s is not a JSON object", path)
	}
	return record, nil
}

func writeSchemaCheckOutput(jsonOutput bool, output schemaCheckOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}

	if output.Error != "" {
		fmt.Printf("schema check error: %s\n", output.Error)
		for _, violation := range output.Violations {
			fmt.Printf("- %s: %s\n", violation.Path, violation.Reason)
		}
		if output.Hint != "" {
			fmt.Printf("hint: %s\n", output.Hint)
		}
		return exitCode
	}
	fmt.Printf("schema check: ok schema=%s record=%s\n", output.SchemaRef, output.RecordPath)
	return exitCode
}

func printSchemaUsage() {
	fmt.Println("Usage:")
	fmt.Println("  tend schema check --schema <ref> --record <file.json> [--workspace <dir>] [--json] [--explain]")
}
