package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/davidahmann/tend/core/gate"
	"github.com/davidahmann/tend/core/list"
	schemalist "github.com/davidahmann/tend/core/schema/v1/list"
	"github.com/davidahmann/tend/core/schema/validate"
)

type listOutput struct {
	OK bool `json:"ok"`
	errorDetail
	State        string               `json:"state,omitempty"`
	DryRun       bool                 `json:"dry_run,omitempty"`
	Verdict      string               `json:"verdict,omitempty"`
	ReasonCodes  []string             `json:"reason_codes,omitempty"`
	ConfirmToken string               `json:"confirm_token,omitempty"`
	Preview      *gate.Preview        `json:"preview,omitempty"`
	Violations   []validate.Violation `json:"violations,omitempty"`
	Record       *schemalist.Record   `json:"record,omitempty"`
	Warnings     []string             `json:"warnings,omitempty"`
}

func runList(arguments []string) int {
	if len(arguments) == 0 {
		printListUsage()
		return exitInvalidInput
	}
	switch strings.TrimSpace(arguments[0]) {
	case "create":
		return runListCreate(arguments[1:])
	case "add":
		return runListAdd(arguments[1:])
	case "move":
		return runListMove(arguments[1:])
	case "delete":
		return runListDelete(arguments[1:])
	case "remove-stage":
		return runListRemoveStage(arguments[1:])
	case "show":
		return runListShow(arguments[1:])
	default:
		printListUsage()
		return exitInvalidInput
	}
}

func runListCreate(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Create a staged list at version 1; the slug is derived from the display name and every item must live in a declared stage.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"name":      true,
		"stages":    true,
		"workspace": true,
	})
	flagSet := flag.NewFlagSet("list-create", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var name string
	var stagesCSV string
	var workspace string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&name, "name", "", "display name for the list")
	flagSet.StringVar(&stagesCSV, "stages", "", "comma-separated stage names, in order")
	flagSet.StringVar(&workspace, "workspace", defaultWorkspace(), "workspace directory")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeListMutationOutput(jsonOutput, "create", listOutput{errorDetail: errorDetail{Error: err.Error()}}, exitCodeForError(err, exitInvalidInput))
	}
	if helpFlag {
		printListUsage()
		return exitOK
	}
	if len(flagSet.Args()) > 0 {
		return writeListMutationOutput(jsonOutput, "create", listOutput{errorDetail: errorDetail{Error: "unexpected positional arguments"}}, exitInvalidInput)
	}
	if strings.TrimSpace(name) == "" {
		return writeListMutationOutput(jsonOutput, "create", listOutput{errorDetail: errorDetail{Error: "missing required --name <display name>"}}, exitInvalidInput)
	}
	if strings.TrimSpace(stagesCSV) == "" {
		return writeListMutationOutput(jsonOutput, "create", listOutput{errorDetail: errorDetail{Error: "missing required --stages <csv>"}}, exitInvalidInput)
	}

	env, err := openWorkspace(workspace)
	if err != nil {
		return writeListMutationOutput(jsonOutput, "create", listOutput{errorDetail: describeError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	jsonOutput = env.jsonMode(jsonOutput)

	store := list.NewStore(env.paths.StateDir, list.Options{Validator: env.validator, Journal: env.journal})
	result, err := store.Create(name, splitCSV(stagesCSV))
	return writeListMutationOutput(jsonOutput, "create", listMutationOutput(result, err), exitCodeForError(err, exitInternalFailure))
}

func runListAdd(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Add an item to a declared stage of a list; the item id is generated and the list version bumps.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"list":      true,
		"stage":     true,
		"content":   true,
		"meta":      true,
		"workspace": true,
	})
	flagSet := flag.NewFlagSet("list-add", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var listRef string
	var stage string
	var content string
	var metaPairs stringListFlag
	var workspace string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&listRef, "list", "", "list name or slug")
	flagSet.StringVar(&stage, "stage", "", "stage to add the item to")
	flagSet.StringVar(&content, "content", "", "item content")
	flagSet.Var(&metaPairs, "meta", "metadata key=value (repeatable)")
	flagSet.StringVar(&workspace, "workspace", defaultWorkspace(), "workspace directory")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeListMutationOutput(jsonOutput, "add", listOutput{errorDetail: errorDetail{Error: err.Error()}}, exitCodeForError(err, exitInvalidInput))
	}
	if helpFlag {
		printListUsage()
		return exitOK
	}
	if len(flagSet.Args()) > 0 {
		return writeListMutationOutput(jsonOutput, "add", listOutput{errorDetail: errorDetail{Error: "unexpected positional arguments"}}, exitInvalidInput)
	}
	if strings.TrimSpace(listRef) == "" {
		return writeListMutationOutput(jsonOutput, "add", listOutput{errorDetail: errorDetail{Error: "missing required --list <ref>"}}, exitInvalidInput)
	}
	if strings.TrimSpace(stage) == "" {
		return writeListMutationOutput(jsonOutput, "add", listOutput{errorDetail: errorDetail{Error: "missing required --stage <stage>"}}, exitInvalidInput)
	}
	if strings.TrimSpace(content) == "" {
		return writeListMutationOutput(jsonOutput, "add", listOutput{errorDetail: errorDetail{Error: "missing required --content <text>"}}, exitInvalidInput)
	}
	metadata, err := parseMetadataPairs(metaPairs)
	if err != nil {
		return writeListMutationOutput(jsonOutput, "add", listOutput{errorDetail: errorDetail{Error: err.Error()}}, exitInvalidInput)
	}

	env, err := openWorkspace(workspace)
	if err != nil {
		return writeListMutationOutput(jsonOutput, "add", listOutput{errorDetail: describeError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	jsonOutput = env.jsonMode(jsonOutput)

	store := list.NewStore(env.paths.StateDir, list.Options{Validator: env.validator, Journal: env.journal})
	result, err := store.AddItem(listRef, stage, content, metadata)
	return writeListMutationOutput(jsonOutput, "add", listMutationOutput(result, err), exitCodeForError(err, exitInternalFailure))
}

func runListMove(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Move an item between declared stages; --from must match where the item currently is.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"list":      true,
		"item":      true,
		"from":      true,
		"to":        true,
		"workspace": true,
	})
	flagSet := flag.NewFlagSet("list-move", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var listRef string
	var itemID string
	var fromStage string
	var toStage string
	var workspace string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&listRef, "list", "", "list name or slug")
	flagSet.StringVar(&itemID, "item", "", "item identifier")
	flagSet.StringVar(&fromStage, "from", "", "stage the item is expected in")
	flagSet.StringVar(&toStage, "to", "", "stage to move the item to")
	flagSet.StringVar(&workspace, "workspace", defaultWorkspace(), "workspace directory")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeListMutationOutput(jsonOutput, "move", listOutput{errorDetail: errorDetail{Error: err.Error()}}, exitCodeForError(err, exitInvalidInput))
	}
	if helpFlag {
		printListUsage()
		return exitOK
	}
	if len(flagSet.Args()) > 0 {
		return writeListMutationOutput(jsonOutput, "move", listOutput{errorDetail: errorDetail{Error: "unexpected positional arguments"}}, exitInvalidInput)
	}
	if strings.TrimSpace(listRef) == "" {
		return writeListMutationOutput(jsonOutput, "move", listOutput{errorDetail: errorDetail{Error: "missing required --list <ref>"}}, exitInvalidInput)
	}
	if strings.TrimSpace(itemID) == "" {
		return writeListMutationOutput(jsonOutput, "move", listOutput{errorDetail: errorDetail{Error: "missing required --item <id>"}}, exitInvalidInput)
	}
	if strings.TrimSpace(fromStage) == "" || strings.TrimSpace(toStage) == "" {
		return writeListMutationOutput(jsonOutput, "move", listOutput{errorDetail: errorDetail{Error: "missing required --from <stage> and --to <stage>"}}, exitInvalidInput)
	}

	env, err := openWorkspace(workspace)
	if err != nil {
		return writeListMutationOutput(jsonOutput, "move", listOutput{errorDetail: describeError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	jsonOutput = env.jsonMode(jsonOutput)

	store := list.NewStore(env.paths.StateDir, list.Options{Validator: env.validator, Journal: env.journal})
	result, err := store.MoveItem(listRef, itemID, fromStage, toStage)
	return writeListMutationOutput(jsonOutput, "move", listMutationOutput(result, err), exitCodeForError(err, exitInternalFailure))
}

func runListDelete(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Archive a whole list: preview with --dry-run to earn a confirm token, then re-run with --confirm to commit.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"list":      true,
		"confirm":   true,
		"version":   true,
		"workspace": true,
	})
	flagSet := flag.NewFlagSet("list-delete", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var listRef string
	var dryRun bool
	var confirmToken string
	var expectedVersion int64
	var workspace string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&listRef, "list", "", "list name or slug")
	flagSet.BoolVar(&dryRun, "dry-run", false, "preview the archive without committing")
	flagSet.StringVar(&confirmToken, "confirm", "", "confirm token from a prior dry run")
	flagSet.Int64Var(&expectedVersion, "version", 0, "expected record version, 0 skips the check")
	flagSet.StringVar(&workspace, "workspace", defaultWorkspace(), "workspace directory")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeListMutationOutput(jsonOutput, "delete", listOutput{errorDetail: errorDetail{Error: err.Error()}}, exitCodeForError(err, exitInvalidInput))
	}
	if helpFlag {
		printListUsage()
		return exitOK
	}
	if len(flagSet.Args()) > 0 {
		return writeListMutationOutput(jsonOutput, "delete", listOutput{errorDetail: errorDetail{Error: "unexpected positional arguments"}}, exitInvalidInput)
	}
	if strings.TrimSpace(listRef) == "" {
		return writeListMutationOutput(jsonOutput, "delete", listOutput{errorDetail: errorDetail{Error: "missing required --list <ref>"}}, exitInvalidInput)
	}

	env, err := openWorkspace(workspace)
	if err != nil {
		return writeListMutationOutput(jsonOutput, "delete", listOutput{errorDetail: describeError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	jsonOutput = env.jsonMode(jsonOutput)

	store := list.NewStore(env.paths.StateDir, list.Options{Validator: env.validator, Journal: env.journal})
	result, err := store.Delete(listRef, expectedVersion, gate.Options{DryRun: dryRun, Confirm: confirmToken})
	return writeListMutationOutput(jsonOutput, "delete", listMutationOutput(result, err), exitCodeForError(err, exitInternalFailure))
}

func runListRemoveStage(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Remove a declared stage: items left behind surface a stage_not_empty hazard, or move them with --reassign.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"list":      true,
		"stage":     true,
		"reassign":  true,
		"confirm":   true,
		"version":   true,
		"workspace": true,
	})
	flagSet := flag.NewFlagSet("list-remove-stage", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var listRef string
	var stage string
	var reassignTo string
	var dryRun bool
	var confirmToken string
	var expectedVersion int64
	var workspace string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&listRef, "list", "", "list name or slug")
	flagSet.StringVar(&stage, "stage", "", "stage to remove")
	flagSet.StringVar(&reassignTo, "reassign", "", "stage to move stranded items to")
	flagSet.BoolVar(&dryRun, "dry-run", false, "preview the removal without committing")
	flagSet.StringVar(&confirmToken, "confirm", "", "confirm token from a prior dry run")
	flagSet.Int64Var(&expectedVersion, "version", 0, "expected record version, 0 skips the check")
	flagSet.StringVar(&workspace, "workspace", defaultWorkspace(), "workspace directory")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeListMutationOutput(jsonOutput, "remove-stage", listOutput{errorDetail: errorDetail{Error: err.Error()}}, exitCodeForError(err, exitInvalidInput))
	}
	if helpFlag {
		printListUsage()
		return exitOK
	}
	if len(flagSet.Args()) > 0 {
		return writeListMutationOutput(jsonOutput, "remove-stage", listOutput{errorDetail: errorDetail{Error: "unexpected positional arguments"}}, exitInvalidInput)
	}
	if strings.TrimSpace(listRef) == "" {
		return writeListMutationOutput(jsonOutput, "remove-stage", listOutput{errorDetail: errorDetail{Error: "missing required --list <ref>"}}, exitInvalidInput)
	}
	if strings.TrimSpace(stage) == "" {
		return writeListMutationOutput(jsonOutput, "remove-stage", listOutput{errorDetail: errorDetail{Error: "missing required --stage <stage>"}}, exitInvalidInput)
	}

	env, err := openWorkspace(workspace)
	if err != nil {
		return writeListMutationOutput(jsonOutput, "remove-stage", listOutput{errorDetail: describeError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	jsonOutput = env.jsonMode(jsonOutput)

	store := list.NewStore(env.paths.StateDir, list.Options{Validator: env.validator, Journal: env.journal})
	result, err := store.RemoveStage(listRef, stage, reassignTo, expectedVersion, gate.Options{DryRun: dryRun, Confirm: confirmToken})
	return writeListMutationOutput(jsonOutput, "remove-stage", listMutationOutput(result, err), exitCodeForError(err, exitInternalFailure))
}

func runListShow(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Print a list grouped by stage, optionally narrowed to one stage.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"list":      true,
		"stage":     true,
		"workspace": true,
	})
	flagSet := flag.NewFlagSet("list-show", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var listRef string
	var stageFilter string
	var workspace string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&listRef, "list", "", "list name or slug")
	flagSet.StringVar(&stageFilter, "stage", "", "only show items in this stage")
	flagSet.StringVar(&workspace, "workspace", defaultWorkspace(), "workspace directory")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeListShowOutput(jsonOutput, listOutput{errorDetail: errorDetail{Error: err.Error()}}, exitCodeForError(err, exitInvalidInput))
	}
	if helpFlag {
		printListUsage()
		return exitOK
	}
	if len(flagSet.Args()) > 0 {
		return writeListShowOutput(jsonOutput, listOutput{errorDetail: errorDetail{Error: "unexpected positional arguments"}}, exitInvalidInput)
	}
	if strings.TrimSpace(listRef) == "" {
		return writeListShowOutput(jsonOutput, listOutput{errorDetail: errorDetail{Error: "missing required --list <ref>"}}, exitInvalidInput)
	}

	env, err := openWorkspace(workspace)
	if err != nil {
		return writeListShowOutput(jsonOutput, listOutput{errorDetail: describeError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	jsonOutput = env.jsonMode(jsonOutput)

	store := list.NewStore(env.paths.StateDir, list.Options{Validator: env.validator, Journal: env.journal})
	record, err := store.Show(listRef, stageFilter)
	if err != nil {
		return writeListShowOutput(jsonOutput, listOutput{errorDetail: describeError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	return writeListShowOutput(jsonOutput, listOutput{OK: true, Record: &record}, exitOK)
}

func listMutationOutput(result list.Result, err error) listOutput {
	output := listOutput{
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
	if result.Record.Slug != "" {
		record := result.Record
		output.Record = &record
	}
	return output
}

func writeListMutationOutput(jsonOutput bool, verb string, output listOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}

	if output.Error != "" {
		fmt.Printf("list %s error: %s\n", verb, output.Error)
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
		fmt.Printf("list %s: state=%s dry_run=true\n", verb, output.State)
		if output.ConfirmToken != "" {
			fmt.Printf("confirm: %s\n", output.ConfirmToken)
		}
		writePreviewLines(output.Preview)
	} else if output.Record != nil {
		fmt.Printf("list %s: state=%s list=%s version=%d items=%d\n", verb, output.State, output.Record.Slug, output.Record.Version, len(output.Record.Items))
	} else {
		fmt.Printf("list %s: state=%s\n", verb, output.State)
	}
	for _, warning := range output.Warnings {
		fmt.Printf("warning: %s\n", warning)
	}
	return exitCode
}

func writeListShowOutput(jsonOutput bool, output listOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}

	if output.Error != "" {
		fmt.Printf("list show error: %s\n", output.Error)
		return exitCode
	}
	record := output.Record
	if record == nil {
		fmt.Println("list show error: missing record")
		return exitInternalFailure
	}
	fmt.Printf("list show: %s (%s) version=%d items=%d\n", record.Name, record.Slug, record.Version, len(record.Items))
	for _, stage := range record.Stages {
		count := 0
		for _, item := range record.Items {
			if item.Stage == stage {
				count++
			}
		}
		fmt.Printf("%s (%d)\n", stage, count)
		for _, item := range record.Items {
			if item.Stage == stage {
				fmt.Printf("- %s %s\n", item.ID, item.Content)
			}
		}
	}
	return exitCode
}

func printListUsage() {
	fmt.Println("Usage:")
	fmt.Println("  tend list create --name <display name> --stages <csv> [--workspace <dir>] [--json] [--explain]")
	fmt.Println("  tend list add --list <ref> --stage <stage> --content <text> [--meta <k=v>]... [--workspace <dir>] [--json] [--explain]")
	fmt.Println("  tend list move --list <ref> --item <id> --from <stage> --to <stage> [--workspace <dir>] [--json] [--explain]")
	fmt.Println("  tend list delete --list <ref> [--dry-run | --confirm <token>] [--version <n>] [--workspace <dir>] [--json] [--explain]")
	fmt.Println("  tend list remove-stage --list <ref> --stage <stage> [--reassign <stage>] [--dry-run | --confirm <token>] [--version <n>] [--workspace <dir>] [--json] [--explain]")
	fmt.Println("  tend list show --list <ref> [--stage <stage>] [--workspace <dir>] [--json] [--explain]")
}
