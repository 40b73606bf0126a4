package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/davidahmann/tend/core/gate"
	"github.com/davidahmann/tend/core/journal"
	schemasession "github.com/davidahmann/tend/core/schema/v1/session"
	"github.com/davidahmann/tend/core/schema/validate"
	"github.com/davidahmann/tend/core/session"
)

type sessionOutput struct {
	OK bool `json:"ok"`
	errorDetail
	State        string                `json:"state,omitempty"`
	DryRun       bool                  `json:"dry_run,omitempty"`
	Verdict      string                `json:"verdict,omitempty"`
	ReasonCodes  []string              `json:"reason_codes,omitempty"`
	ConfirmToken string                `json:"confirm_token,omitempty"`
	Preview      *gate.Preview         `json:"preview,omitempty"`
	Violations   []validate.Violation  `json:"violations,omitempty"`
	Record       *schemasession.Record `json:"record,omitempty"`
	Entries      []journal.Entry       `json:"entries,omitempty"`
	Warnings     []string              `json:"warnings,omitempty"`
}

func runSession(arguments []string) int {
	if len(arguments) == 0 {
		printSessionUsage()
		return exitInvalidInput
	}
	switch strings.TrimSpace(arguments[0]) {
	case "init":
		return runSessionInit(arguments[1:])
	case "update":
		return runSessionUpdate(arguments[1:])
	case "terminate":
		return runSessionTerminate(arguments[1:])
	case "status":
		return runSessionStatus(arguments[1:])
	case "log":
		return runSessionLog(arguments[1:])
	default:
		printSessionUsage()
		return exitInvalidInput
	}
}

func runSessionInit(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Create a session record at version 1, derive its mode from the type, and seed history when system context is loaded.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"conversation": true,
		"type":         true,
		"workspace":    true,
	})
	flagSet := flag.NewFlagSet("session-init", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var conversationID string
	var sessionType string
	var loadSystem bool
	var workspace string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&conversationID, "conversation", "", "conversation identifier")
	flagSet.StringVar(&sessionType, "type", "", "session type: build|research|discussion|planning")
	flagSet.BoolVar(&loadSystem, "load-system", false, "record that system context was loaded")
	flagSet.StringVar(&workspace, "workspace", defaultWorkspace(), "workspace directory")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeSessionMutationOutput(jsonOutput, "init", sessionOutput{errorDetail: errorDetail{Error: err.Error()}}, exitCodeForError(err, exitInvalidInput))
	}
	if helpFlag {
		printSessionUsage()
		return exitOK
	}
	if len(flagSet.Args()) > 0 {
		return writeSessionMutationOutput(jsonOutput, "init", sessionOutput{errorDetail: errorDetail{Error: "unexpected positional arguments"}}, exitInvalidInput)
	}
	if strings.TrimSpace(conversationID) == "" {
		return writeSessionMutationOutput(jsonOutput, "init", sessionOutput{errorDetail: errorDetail{Error: "missing required --conversation <id>"}}, exitInvalidInput)
	}
	if strings.TrimSpace(sessionType) == "" {
		return writeSessionMutationOutput(jsonOutput, "init", sessionOutput{errorDetail: errorDetail{Error: "missing required --type <type>"}}, exitInvalidInput)
	}

	env, err := openWorkspace(workspace)
	if err != nil {
		return writeSessionMutationOutput(jsonOutput, "init", sessionOutput{errorDetail: describeError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	jsonOutput = env.jsonMode(jsonOutput)

	store := session.NewStore(env.paths.StateDir, session.Options{Validator: env.validator, Journal: env.journal})
	result, err := store.Init(conversationID, sessionType, loadSystem)
	return writeSessionMutationOutput(jsonOutput, "init", sessionMutationOutput(result, err), exitCodeForError(err, exitInternalFailure))
}

func runSessionUpdate(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Append notes, decisions, phase changes, and objective edits to a session; every update bumps the record version.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"conversation":   true,
		"note":           true,
		"decision":       true,
		"phase":          true,
		"objective-add":  true,
		"objective-done": true,
		"version":        true,
		"workspace":      true,
	})
	flagSet := flag.NewFlagSet("session-update", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var conversationID string
	var note string
	var decision string
	var phase string
	var addObjectives stringListFlag
	var doneObjectives stringListFlag
	var expectedVersion int64
	var workspace string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&conversationID, "conversation", "", "conversation identifier")
	flagSet.StringVar(&note, "note", "", "progress note to append")
	flagSet.StringVar(&decision, "decision", "", "decision to append")
	flagSet.StringVar(&phase, "phase", "", "phase transition to append")
	flagSet.Var(&addObjectives, "objective-add", "objective to add (repeatable)")
	flagSet.Var(&doneObjectives, "objective-done", "objective to mark done (repeatable)")
	flagSet.Int64Var(&expectedVersion, "version", 0, "expected record version, 0 skips the check")
	flagSet.StringVar(&workspace, "workspace", defaultWorkspace(), "workspace directory")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeSessionMutationOutput(jsonOutput, "update", sessionOutput{errorDetail: errorDetail{Error: err.Error()}}, exitCodeForError(err, exitInvalidInput))
	}
	if helpFlag {
		printSessionUsage()
		return exitOK
	}
	if len(flagSet.Args()) > 0 {
		return writeSessionMutationOutput(jsonOutput, "update", sessionOutput{errorDetail: errorDetail{Error: "unexpected positional arguments"}}, exitInvalidInput)
	}
	if strings.TrimSpace(conversationID) == "" {
		return writeSessionMutationOutput(jsonOutput, "update", sessionOutput{errorDetail: errorDetail{Error: "missing required --conversation <id>"}}, exitInvalidInput)
	}

	env, err := openWorkspace(workspace)
	if err != nil {
		return writeSessionMutationOutput(jsonOutput, "update", sessionOutput{errorDetail: describeError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	jsonOutput = env.jsonMode(jsonOutput)

	store := session.NewStore(env.paths.StateDir, session.Options{Validator: env.validator, Journal: env.journal})
	result, err := store.Update(conversationID, session.UpdateRequest{
		ExpectedVersion: expectedVersion,
		Note:            note,
		Decision:        decision,
		Phase:           phase,
		AddObjectives:   addObjectives,
		DoneObjectives:  doneObjectives,
	})
	return writeSessionMutationOutput(jsonOutput, "update", sessionMutationOutput(result, err), exitCodeForError(err, exitInternalFailure))
}

func runSessionTerminate(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Archive a session: preview with --dry-run to earn a confirm token, then re-run with --confirm to commit.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"conversation": true,
		"confirm":      true,
		"version":      true,
		"workspace":    true,
	})
	flagSet := flag.NewFlagSet("session-terminate", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var conversationID string
	var dryRun bool
	var confirmToken string
	var expectedVersion int64
	var workspace string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&conversationID, "conversation", "", "conversation identifier")
	flagSet.BoolVar(&dryRun, "dry-run", false, "preview the archive without committing")
	flagSet.StringVar(&confirmToken, "confirm", "", "confirm token from a prior dry run")
	flagSet.Int64Var(&expectedVersion, "version", 0, "expected record version, 0 skips the check")
	flagSet.StringVar(&workspace, "workspace", defaultWorkspace(), "workspace directory")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeSessionMutationOutput(jsonOutput, "terminate", sessionOutput{errorDetail: errorDetail{Error: err.Error()}}, exitCodeForError(err, exitInvalidInput))
	}
	if helpFlag {
		printSessionUsage()
		return exitOK
	}
	if len(flagSet.Args()) > 0 {
		return writeSessionMutationOutput(jsonOutput, "terminate", sessionOutput{errorDetail: errorDetail{Error: "unexpected positional arguments"}}, exitInvalidInput)
	}
	if strings.TrimSpace(conversationID) == "" {
		return writeSessionMutationOutput(jsonOutput, "terminate", sessionOutput{errorDetail: errorDetail{Error: "missing required --conversation <id>"}}, exitInvalidInput)
	}

	env, err := openWorkspace(workspace)
	if err != nil {
		return writeSessionMutationOutput(jsonOutput, "terminate", sessionOutput{errorDetail: describeError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	jsonOutput = env.jsonMode(jsonOutput)

	store := session.NewStore(env.paths.StateDir, session.Options{Validator: env.validator, Journal: env.journal})
	result, err := store.Terminate(conversationID, expectedVersion, gate.Options{DryRun: dryRun, Confirm: confirmToken})
	return writeSessionMutationOutput(jsonOutput, "terminate", sessionMutationOutput(result, err), exitCodeForError(err, exitInternalFailure))
}

func runSessionStatus(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Print the current session record without mutating it.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"conversation": true,
		"workspace":    true,
	})
	flagSet := flag.NewFlagSet("session-status", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var conversationID string
	var workspace string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&conversationID, "conversation", "", "conversation identifier")
	flagSet.StringVar(&workspace, "workspace", defaultWorkspace(), "workspace directory")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeSessionStatusOutput(jsonOutput, sessionOutput{errorDetail: errorDetail{Error: err.Error()}}, exitCodeForError(err, exitInvalidInput))
	}
	if helpFlag {
		printSessionUsage()
		return exitOK
	}
	if len(flagSet.Args()) > 0 {
		return writeSessionStatusOutput(jsonOutput, sessionOutput{errorDetail: errorDetail{Error: "unexpected positional arguments"}}, exitInvalidInput)
	}
	if strings.TrimSpace(conversationID) == "" {
		return writeSessionStatusOutput(jsonOutput, sessionOutput{errorDetail: errorDetail{Error: "missing required --conversation <id>"}}, exitInvalidInput)
	}

	env, err := openWorkspace(workspace)
	if err != nil {
		return writeSessionStatusOutput(jsonOutput, sessionOutput{errorDetail: describeError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	jsonOutput = env.jsonMode(jsonOutput)

	store := session.NewStore(env.paths.StateDir, session.Options{Validator: env.validator, Journal: env.journal})
	record, err := store.Status(conversationID)
	if err != nil {
		return writeSessionStatusOutput(jsonOutput, sessionOutput{errorDetail: describeError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	return writeSessionStatusOutput(jsonOutput, sessionOutput{OK: true, Record: &record}, exitOK)
}

func runSessionLog(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Print the journal entries recorded for one conversation, oldest first.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"conversation": true,
		"workspace":    true,
	})
	flagSet := flag.NewFlagSet("session-log", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var conversationID string
	var workspace string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&conversationID, "conversation", "", "conversation identifier")
	flagSet.StringVar(&workspace, "workspace", defaultWorkspace(), "workspace directory")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeSessionLogOutput(jsonOutput, sessionOutput{errorDetail: errorDetail{Error: err.Error()}}, exitCodeForError(err, exitInvalidInput))
	}
	if helpFlag {
		printSessionUsage()
		return exitOK
	}
	if len(flagSet.Args()) > 0 {
		return writeSessionLogOutput(jsonOutput, sessionOutput{errorDetail: errorDetail{Error: "unexpected positional arguments"}}, exitInvalidInput)
	}
	if strings.TrimSpace(conversationID) == "" {
		return writeSessionLogOutput(jsonOutput, sessionOutput{errorDetail: errorDetail{Error: "missing required --conversation <id>"}}, exitInvalidInput)
	}

	env, err := openWorkspace(workspace)
	if err != nil {
		return writeSessionLogOutput(jsonOutput, sessionOutput{errorDetail: describeError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	jsonOutput = env.jsonMode(jsonOutput)

	store := session.NewStore(env.paths.StateDir, session.Options{Validator: env.validator, Journal: env.journal})
	entries, warnings, err := store.Log(conversationID)
	if err != nil {
		return writeSessionLogOutput(jsonOutput, sessionOutput{errorDetail: describeError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	return writeSessionLogOutput(jsonOutput, sessionOutput{OK: true, Entries: entries, Warnings: warnings}, exitOK)
}

func sessionMutationOutput(result session.Result, err error) sessionOutput {
	output := sessionOutput{
		OK:           err == nil,
		errorDetail:  describeError(err),
		State:        string(result.Outcome.State),
		DryRun:       result.Outcome.DryRun,
		Verdict:      string(result.Outcome.Decision.Verdict),
		ReasonCodes:  result.Outcome.Decision.ReasonCodes,
		ConfirmToken: result.Outcome.Decision.ConfirmToken,
		Preview:      result.Outcome.Decision.Preview,
		Violations:   result.Outcome.Violations,
		Warnings:     result.Warnings,
	}
	if result.Record.ID != "" {
		record := result.Record
		output.Record = &record
	}
	return output
}

func writeSessionMutationOutput(jsonOutput bool, verb string, output sessionOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}

	if output.Error != "" {
		fmt.Printf("session %s error: %s\n", verb, output.Error)
		if len(output.ReasonCodes) > 0 {
			fmt.Printf("reasons: %s\n", joinCSV(output.ReasonCodes))
		}
		for _, violation := range output.Violations {
			fmt.Printf("- %s: %s\n", violation.Path, violation.Reason)
		}
		if output.Hint != "" {
			fmt.Printf("hint: %s\n", output.Hint)
		}
		return exitCode
	}
	if output.DryRun {
		fmt.Printf("session %s: state=%s dry_run=true\n", verb, output.State)
		if output.ConfirmToken != "" {
			fmt.Printf("confirm: %s\n", output.ConfirmToken)
		}
		writePreviewLines(output.Preview)
	} else if output.Record != nil {
		fmt.Printf("session %s: state=%s conversation=%s version=%d status=%s\n", verb, output.State, output.Record.ID, output.Record.Version, output.Record.Status)
	} else {
		fmt.Printf("session %s: state=%s\n", verb, output.State)
	}
	for _, warning := range output.Warnings {
		fmt.Printf("warning: %s\n", warning)
	}
	return exitCode
}

func writeSessionStatusOutput(jsonOutput bool, output sessionOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}

	if output.Error != "" {
		fmt.Printf("session status error: %s\n", output.Error)
		return exitCode
	}
	record := output.Record
	if record == nil {
		fmt.Println("session status error: missing record")
		return exitInternalFailure
	}
	fmt.Printf("session status: conversation=%s type=%s mode=%s status=%s version=%d\n", record.ID, record.Type, record.Mode, record.Status, record.Version)
	if len(record.Objectives) > 0 {
		fmt.Printf("objectives: %s\n", strings.Join(record.Objectives, "; "))
	}
	fmt.Printf("history: %d entr(ies)\n", len(record.History))
	return exitCode
}

func writeSessionLogOutput(jsonOutput bool, output sessionOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}

	if output.Error != "" {
		fmt.Printf("session log error: %s\n", output.Error)
		return exitCode
	}
	fmt.Printf("session log: %d entr(ies)\n", len(output.Entries))
	for _, entry := range output.Entries {
		fmt.Printf("- %s %s v%d %s\n", entry.At.Format(time.RFC3339), entry.Intent, entry.Version, entry.Outcome)
	}
	for _, warning := range output.Warnings {
		fmt.Printf("warning: %s\n", warning)
	}
	return exitCode
}

func writePreviewLines(preview *gate.Preview) {
	if preview == nil {
		return
	}
	fmt.Printf("preview: changed=%t\n", preview.Changed)
	for _, line := range preview.Summary {
		fmt.Printf("- %s\n", line)
	}
}

func printSessionUsage() {
	fmt.Println("Usage:")
	fmt.Println("  tend session init --conversation <id> --type build|research|discussion|planning [--load-system] [--workspace <dir>] [--json] [--explain]")
	fmt.Println("  tend session update --conversation <id> [--note <text>] [--decision <text>] [--phase <name>] [--objective-add <text>]... [--objective-done <text>]... [--version <n>] [--workspace <dir>] [--json] [--explain]")
	fmt.Println("  tend session terminate --conversation <id> [--dry-run | --confirm <token>] [--version <n>] [--workspace <dir>] [--json] [--explain]")
	fmt.Println("  tend session status --conversation <id> [--workspace <dir>] [--json] [--explain]")
	fmt.Println("  tend session log --conversation <id> [--workspace <dir>] [--json] [--explain]")
}
