package main

import (
	"strings"
	"testing"
)

const hiringStagesCSV = "Sourcing,Screening,Interview,Offer,Hired,Rejected"

func createHiringList(t *testing.T, workspace string) {
	t.Helper()
	raw, code := runCLI(t, "list", "create", "--name", "Hiring Pipeline", "--stages", hiringStagesCSV, "--workspace", workspace, "--json")
	if code != exitOK {
		t.Fatalf("list create: expected %d got %d (%s)", exitOK, code, raw)
	}
}

func addHiringItem(t *testing.T, workspace, stage, content string) string {
	t.Helper()
	raw, code := runCLI(t, "list", "add", "--list", "hiring-pipeline", "--stage", stage, "--content", content, "--workspace", workspace, "--json")
	if code != exitOK {
		t.Fatalf("list add: expected %d got %d (%s)", exitOK, code, raw)
	}
	var output listOutput
	decodeOutput(t, raw, &output)
	if output.Record == nil {
		t.Fatalf("add output missing record: %s", raw)
	}
	for _, item := range output.Record.Items {
		if item.Content == content {
			return item.ID
		}
	}
	t.Fatalf("added item %q not found in record", content)
	return ""
}

func TestListCreateThroughCLI(t *testing.T) {
	workspace := t.TempDir()

	raw, code := runCLI(t, "list", "create", "--name", "Hiring Pipeline", "--stages", hiringStagesCSV, "--workspace", workspace, "--json")
	if code != exitOK {
		t.Fatalf("list create: expected %d got %d (%s)", exitOK, code, raw)
	}
	var output listOutput
	decodeOutput(t, raw, &output)
	if !output.OK || output.State != "persisted" {
		t.Fatalf("unexpected create output: %+v", output)
	}
	record := output.Record
	if record == nil || record.Slug != "hiring-pipeline" || record.Version != 1 {
		t.Fatalf("unexpected record: %s", raw)
	}
	if len(record.Stages) != 6 || record.Stages[0] != "Sourcing" {
		t.Fatalf("stages should keep declared order and casing: %v", record.Stages)
	}

	raw, code = runCLI(t, "list", "create", "--name", "hiring  PIPELINE!", "--stages", hiringStagesCSV, "--workspace", workspace, "--json")
	if code != exitInvalidInput {
		t.Fatalf("duplicate slug: expected %d got %d (%s)", exitInvalidInput, code, raw)
	}
	decodeOutput(t, raw, &output)
	if output.ErrorCategory != "already_exists" {
		t.Fatalf("duplicate slug classification: %+v", output.errorDetail)
	}
}

func TestListAddAndMoveThroughCLI(t *testing.T) {
	workspace := t.TempDir()
	createHiringList(t, workspace)

	itemID := addHiringItem(t, workspace, "sourcing", "Jordan Diaz")
	if !strings.HasPrefix(itemID, "itm_") {
		t.Fatalf("item id should carry the itm_ prefix, got %q", itemID)
	}

	raw, code := runCLI(t, "list", "move", "--list", "hiring-pipeline", "--item", itemID, "--from", "Sourcing", "--to", "Screening", "--workspace", workspace, "--json")
	if code != exitOK {
		t.Fatalf("move: expected %d got %d (%s)", exitOK, code, raw)
	}
	var output listOutput
	decodeOutput(t, raw, &output)
	if output.Record == nil || output.Record.Version != 3 {
		t.Fatalf("move should bump to version 3: %s", raw)
	}
	if output.Record.Items[0].Stage != "Screening" {
		t.Fatalf("item should be in Screening, got %q", output.Record.Items[0].Stage)
	}
}

func TestListMoveStaleFromStageThroughCLI(t *testing.T) {
	workspace := t.TempDir()
	createHiringList(t, workspace)
	itemID := addHiringItem(t, workspace, "Sourcing", "Sam Ruiz")

	if raw, code := runCLI(t, "list", "move", "--list", "hiring-pipeline", "--item", itemID, "--from", "Sourcing", "--to", "Screening", "--workspace", workspace, "--json"); code != exitOK {
		t.Fatalf("first move: expected %d got %d (%s)", exitOK, code, raw)
	}

	raw, code := runCLI(t, "list", "move", "--list", "hiring-pipeline", "--item", itemID, "--from", "Sourcing", "--to", "Interview", "--workspace", workspace, "--json")
	if code != exitSafetyBlocked {
		t.Fatalf("stale move: expected %d got %d (%s)", exitSafetyBlocked, code, raw)
	}
	var output listOutput
	decodeOutput(t, raw, &output)
	if output.ErrorCategory != "state_conflict" || output.ErrorCode != "item_stage_conflict" {
		t.Fatalf("stale move classification: %+v", output.errorDetail)
	}
	if output.Retryable == nil || !*output.Retryable {
		t.Fatalf("stale move should be retryable: %+v", output.errorDetail)
	}

	raw, code = runCLI(t, "list", "show", "--list", "hiring-pipeline", "--workspace", workspace, "--json")
	if code != exitOK {
		t.Fatalf("show: expected %d got %d (%s)", exitOK, code, raw)
	}
	decodeOutput(t, raw, &output)
	if output.Record.Items[0].Stage != "Screening" {
		t.Fatalf("failed move must not change the record, item in %q", output.Record.Items[0].Stage)
	}
}

func TestListMoveUnknownItemThroughCLI(t *testing.T) {
	workspace := t.TempDir()
	createHiringList(t, workspace)

	raw, code := runCLI(t, "list", "move", "--list", "hiring-pipeline", "--item", "itm_00000000-0000-0000-0000-000000000000", "--from", "Sourcing", "--to", "Screening", "--workspace", workspace, "--json")
	if code != exitNotFound {
		t.Fatalf("unknown item: expected %d got %d (%s)", exitNotFound, code, raw)
	}
	var output listOutput
	decodeOutput(t, raw, &output)
	if output.ErrorCode != "item_not_found" {
		t.Fatalf("unknown item classification: %+v", output.errorDetail)
	}
}

func TestListDeleteConfirmFlowThroughCLI(t *testing.T) {
	workspace := t.TempDir()
	createHiringList(t, workspace)
	addHiringItem(t, workspace, "Sourcing", "Avery Chen")

	raw, code := runCLI(t, "list", "delete", "--list", "hiring-pipeline", "--workspace", workspace, "--json")
	if code != exitSafetyBlocked {
		t.Fatalf("bare delete: expected %d got %d (%s)", exitSafetyBlocked, code, raw)
	}
	var blocked listOutput
	decodeOutput(t, raw, &blocked)
	if !containsString(blocked.ReasonCodes, "confirmation_missing") || blocked.ConfirmToken != "" {
		t.Fatalf("bare delete should block without leaking a token: %+v", blocked)
	}

	raw, code = runCLI(t, "list", "delete", "--list", "hiring-pipeline", "--dry-run", "--workspace", workspace, "--json")
	if code != exitOK {
		t.Fatalf("dry run: expected %d got %d (%s)", exitOK, code, raw)
	}
	var preview listOutput
	decodeOutput(t, raw, &preview)
	if !preview.DryRun || !strings.HasPrefix(preview.ConfirmToken, "cfm_") {
		t.Fatalf("dry run should issue a token: %+v", preview)
	}
	if preview.Preview == nil || len(preview.Preview.Summary) == 0 || !strings.Contains(preview.Preview.Summary[0], "archived") {
		t.Fatalf("dry run preview should describe the archive: %+v", preview.Preview)
	}

	if raw, code := runCLI(t, "list", "show", "--list", "hiring-pipeline", "--workspace", workspace, "--json"); code != exitOK {
		t.Fatalf("show after dry run: expected %d got %d (%s)", exitOK, code, raw)
	}

	raw, code = runCLI(t, "list", "delete", "--list", "hiring-pipeline", "--confirm", preview.ConfirmToken, "--workspace", workspace, "--json")
	if code != exitOK {
		t.Fatalf("confirmed delete: expected %d got %d (%s)", exitOK, code, raw)
	}

	raw, code = runCLI(t, "list", "show", "--list", "hiring-pipeline", "--workspace", workspace, "--json")
	if code != exitNotFound {
		t.Fatalf("show after delete: expected %d got %d (%s)", exitNotFound, code, raw)
	}
}

func TestListRemoveStageHazardThroughCLI(t *testing.T) {
	workspace := t.TempDir()
	createHiringList(t, workspace)
	addHiringItem(t, workspace, "Screening", "Noor Haddad")

	raw, code := runCLI(t, "list", "remove-stage", "--list", "hiring-pipeline", "--stage", "Screening", "--workspace", workspace, "--json")
	if code != exitSafetyBlocked {
		t.Fatalf("remove occupied stage: expected %d got %d (%s)", exitSafetyBlocked, code, raw)
	}
	var blocked listOutput
	decodeOutput(t, raw, &blocked)
	if !containsString(blocked.ReasonCodes, "stage_not_empty") || !containsString(blocked.ReasonCodes, "confirmation_missing") {
		t.Fatalf("expected both hazard and confirmation reasons, got %v", blocked.ReasonCodes)
	}

	raw, code = runCLI(t, "list", "remove-stage", "--list", "hiring-pipeline", "--stage", "Screening", "--reassign", "Interview", "--dry-run", "--workspace", workspace, "--json")
	if code != exitOK {
		t.Fatalf("reassign dry run: expected %d got %d (%s)", exitOK, code, raw)
	}
	var preview listOutput
	decodeOutput(t, raw, &preview)
	if containsString(preview.ReasonCodes, "stage_not_empty") {
		t.Fatalf("reassign should clear the hazard, got %v", preview.ReasonCodes)
	}
	summary := strings.Join(preview.Preview.Summary, "\n")
	if !strings.Contains(summary, "would move to") {
		t.Fatalf("preview should describe the reassignment: %q", summary)
	}

	raw, code = runCLI(t, "list", "remove-stage", "--list", "hiring-pipeline", "--stage", "Screening", "--reassign", "Interview", "--confirm", preview.ConfirmToken, "--workspace", workspace, "--json")
	if code != exitOK {
		t.Fatalf("confirmed remove-stage: expected %d got %d (%s)", exitOK, code, raw)
	}
	var output listOutput
	decodeOutput(t, raw, &output)
	if len(output.Record.Stages) != 5 {
		t.Fatalf("stage should be removed, got %v", output.Record.Stages)
	}
	for _, stage := range output.Record.Stages {
		if stage == "Screening" {
			t.Fatalf("Screening should be gone: %v", output.Record.Stages)
		}
	}
	if output.Record.Items[0].Stage != "Interview" {
		t.Fatalf("item should be reassigned to Interview, got %q", output.Record.Items[0].Stage)
	}
}

func TestListAddValidationThroughCLI(t *testing.T) {
	workspace := t.TempDir()
	createHiringList(t, workspace)

	raw, code := runCLI(t, "list", "add", "--list", "hiring-pipeline", "--stage", "Limbo", "--content", "nobody", "--workspace", workspace, "--json")
	if code != exitNotFound {
		t.Fatalf("unknown stage: expected %d got %d (%s)", exitNotFound, code, raw)
	}
	var output listOutput
	decodeOutput(t, raw, &output)
	if output.ErrorCode != "stage_unknown" {
		t.Fatalf("unknown stage classification: %+v", output.errorDetail)
	}
	if !strings.Contains(output.Hint, "Sourcing") {
		t.Fatalf("hint should list declared stages: %q", output.Hint)
	}

	if raw, code := runCLI(t, "list", "add", "--list", "no-such-list", "--stage", "Sourcing", "--content", "x", "--workspace", workspace, "--json"); code != exitNotFound {
		t.Fatalf("unknown list: expected %d got %d (%s)", exitNotFound, code, raw)
	}
	if _, code := runCLI(t, "list", "add", "--list", "hiring-pipeline", "--stage", "Sourcing", "--workspace", workspace, "--json"); code != exitInvalidInput {
		t.Fatalf("missing content: expected %d got %d", exitInvalidInput, code)
	}
	if _, code := runCLI(t, "list", "add", "--list", "hiring-pipeline", "--stage", "Sourcing", "--content", "x", "--meta", "broken", "--workspace", workspace, "--json"); code != exitInvalidInput {
		t.Fatalf("malformed metadata: expected %d got %d", exitInvalidInput, code)
	}
}

func TestListAddWithMetadataThroughCLI(t *testing.T) {
	workspace := t.TempDir()
	createHiringList(t, workspace)

	raw, code := runCLI(t, "list", "add", "--list", "Hiring Pipeline", "--stage", "Sourcing", "--content", "Riley Park", "--meta", "source=referral", "--meta", "priority=high", "--workspace", workspace, "--json")
	if code != exitOK {
		t.Fatalf("add with metadata: expected %d got %d (%s)", exitOK, code, raw)
	}
	var output listOutput
	decodeOutput(t, raw, &output)
	item := output.Record.Items[0]
	if item.Metadata["source"] != "referral" || item.Metadata["priority"] != "high" {
		t.Fatalf("metadata should round-trip: %v", item.Metadata)
	}
}
