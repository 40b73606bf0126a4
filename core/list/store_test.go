package list

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	coreerrors "github.com/davidahmann/tend/core/errors"
	"github.com/davidahmann/tend/core/gate"
	"github.com/davidahmann/tend/core/journal"
	"github.com/davidahmann/tend/core/pipeline"
	"github.com/davidahmann/tend/core/schema/descriptor"
	"github.com/davidahmann/tend/core/schema/validate"
	schemalist "github.com/davidahmann/tend/core/schema/v1/list"
)

var hiringStages = []string{"Sourcing", "Screening", "Interview", "Offer", "Hired", "Rejected"}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	schemas, err := descriptor.Resolve("")
	if err != nil {
		t.Fatalf("resolve schemas: %v", err)
	}
	clock := time.Date(2026, 8, 25, 9, 30, 0, 0, time.UTC)
	store := NewStore(root, Options{
		Validator: validate.New(schemas),
		Journal:   journal.New(filepath.Join(root, "journal.jsonl"), journal.Options{ProducerVersion: "test"}),
		Now:       func() time.Time { return clock },
	})
	return store, root
}

func mustCreateHiring(t *testing.T, store *Store) {
	t.Helper()
	if _, err := store.Create("Hiring Pipeline", hiringStages); err != nil {
		t.Fatalf("create list: %v", err)
	}
}

func mustAddItem(t *testing.T, store *Store, stage, content string) string {
	t.Helper()
	result, err := store.AddItem("hiring-pipeline", stage, content, nil)
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	return result.Record.Items[len(result.Record.Items)-1].ID
}

func TestCreateDerivesSlugAndStartsAtVersionOne(t *testing.T) {
	store, root := newTestStore(t)
	result, err := store.Create("Hiring Pipeline", hiringStages)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.Outcome.State != pipeline.StatePersisted {
		t.Fatalf("expected persisted, got %s", result.Outcome.State)
	}
	record := result.Record
	if record.Slug != "hiring-pipeline" || record.Name != "Hiring Pipeline" {
		t.Fatalf("unexpected identity: %+v", record)
	}
	if record.Version != 1 || len(record.Stages) != 6 {
		t.Fatalf("unexpected record: version=%d stages=%v", record.Version, record.Stages)
	}
	if record.Items == nil || len(record.Items) != 0 {
		t.Fatalf("items must start as an empty slice, got %#v", record.Items)
	}
	if _, err := os.Stat(filepath.Join(root, "lists", "hiring-pipeline.json")); err != nil {
		t.Fatalf("record not on disk: %v", err)
	}
}

func TestCreateDuplicateSlugIsAlreadyExists(t *testing.T) {
	store, _ := newTestStore(t)
	mustCreateHiring(t, store)
	_, err := store.Create("hiring  PIPELINE!", []string{"Only"})
	if coreerrors.CategoryOf(err) != coreerrors.CategoryAlreadyExists {
		t.Fatalf("expected already_exists, got %v", err)
	}
}

func TestCreateRejectsBadStageSets(t *testing.T) {
	store, _ := newTestStore(t)
	cases := []struct {
		name   string
		stages []string
	}{
		{"no stages", nil},
		{"empty stage", []string{"Sourcing", "  "}},
		{"duplicate ignoring case", []string{"Sourcing", "sourcing"}},
	}
	for _, tc := range cases {
		if _, err := store.Create("Broken "+tc.name, tc.stages); coreerrors.CategoryOf(err) != coreerrors.CategoryInvalidInput {
			t.Fatalf("%s: expected invalid_input, got %v", tc.name, err)
		}
	}
}

func TestAddItemAppendsToDeclaredStage(t *testing.T) {
	store, _ := newTestStore(t)
	mustCreateHiring(t, store)
	result, err := store.AddItem("hiring-pipeline", "sourcing", "Jordan Diaz - referral", map[string]string{"source": "referral"})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	record := result.Record
	if record.Version != 2 || len(record.Items) != 1 {
		t.Fatalf("unexpected record: version=%d items=%d", record.Version, len(record.Items))
	}
	item := record.Items[0]
	if !strings.HasPrefix(item.ID, "itm_") {
		t.Fatalf("unexpected item id %q", item.ID)
	}
	if item.Stage != "Sourcing" {
		t.Fatalf("stage should resolve to the declared casing, got %q", item.Stage)
	}
	if item.List != "hiring-pipeline" || item.Metadata["source"] != "referral" {
		t.Fatalf("unexpected item: %+v", item)
	}
}

func TestAddItemUnknownStageIsNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	mustCreateHiring(t, store)
	_, err := store.AddItem("hiring-pipeline", "Onboarding", "x", nil)
	if coreerrors.CategoryOf(err) != coreerrors.CategoryNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
	if hint := coreerrors.HintOf(err); !strings.Contains(hint, "Sourcing") {
		t.Fatalf("hint should list declared stages: %q", hint)
	}
}

func TestAddItemUnknownListIsNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.AddItem("no-such-list", "Sourcing", "x", nil)
	if coreerrors.CategoryOf(err) != coreerrors.CategoryNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestMoveItemAdvancesStage(t *testing.T) {
	store, _ := newTestStore(t)
	mustCreateHiring(t, store)
	itemID := mustAddItem(t, store, "Sourcing", "Jordan Diaz - referral")

	result, err := store.MoveItem("hiring-pipeline", itemID, "Sourcing", "Screening")
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if result.Record.Version != 3 {
		t.Fatalf("expected version 3, got %d", result.Record.Version)
	}
	if result.Record.Items[0].Stage != "Screening" {
		t.Fatalf("item did not move: %+v", result.Record.Items[0])
	}
}

func TestMoveWithStaleFromStageConflicts(t *testing.T) {
	store, _ := newTestStore(t)
	mustCreateHiring(t, store)
	itemID := mustAddItem(t, store, "Sourcing", "Jordan Diaz - referral")
	if _, err := store.MoveItem("hiring-pipeline", itemID, "Sourcing", "Screening"); err != nil {
		t.Fatalf("first move: %v", err)
	}

	_, err := store.MoveItem("hiring-pipeline", itemID, "Sourcing", "Interview")
	if coreerrors.CategoryOf(err) != coreerrors.CategoryStateConflict {
		t.Fatalf("stale move must conflict, got %v", err)
	}
	if !coreerrors.RetryableOf(err) {
		t.Fatal("stage conflicts are retryable after a re-read")
	}

	record, err := store.Show("hiring-pipeline", "")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if record.Items[0].Stage != "Screening" || record.Version != 3 {
		t.Fatalf("failed move must not change the record: %+v", record)
	}
}

func TestMoveUnknownItemIsNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	mustCreateHiring(t, store)
	_, err := store.MoveItem("hiring-pipeline", "itm_00000000-0000-0000-0000-000000000000", "Sourcing", "Screening")
	if coreerrors.CategoryOf(err) != coreerrors.CategoryNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestMoveBetweenSameStageRejected(t *testing.T) {
	store, _ := newTestStore(t)
	mustCreateHiring(t, store)
	itemID := mustAddItem(t, store, "Sourcing", "x")
	_, err := store.MoveItem("hiring-pipeline", itemID, "Sourcing", "sourcing")
	if coreerrors.CategoryOf(err) != coreerrors.CategoryInvalidInput {
		t.Fatalf("expected invalid_input, got %v", err)
	}
}

func TestDeleteWithoutFlagsBlockedAndContentUntouched(t *testing.T) {
	store, root := newTestStore(t)
	mustCreateHiring(t, store)
	mustAddItem(t, store, "Sourcing", "Jordan Diaz - referral")
	path := filepath.Join(root, "lists", "hiring-pipeline.json")
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read record: %v", err)
	}

	result, err := store.Delete("hiring-pipeline", 0, gate.Options{})
	if coreerrors.CategoryOf(err) != coreerrors.CategorySafetyBlocked {
		t.Fatalf("expected safety_blocked, got %v", err)
	}
	if result.Outcome.Decision.ConfirmToken != "" {
		t.Fatal("blocked decision must not leak the confirmation token")
	}

	preview, err := store.Delete("hiring-pipeline", 0, gate.Options{DryRun: true})
	if err != nil {
		t.Fatalf("dry-run: %v", err)
	}
	if preview.Outcome.State != pipeline.StateSafetyChecked || !preview.Outcome.DryRun {
		t.Fatalf("dry-run should stop at safety_checked: %+v", preview.Outcome)
	}
	p := preview.Outcome.Decision.Preview
	if p == nil || p.BeforeDigest == "" || p.AfterDigest != "" || !p.Changed {
		t.Fatalf("delete preview should digest only the before side: %+v", p)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("re-read record: %v", err)
	}
	if string(before) != string(after) {
		t.Fatal("blocked and dry-run deletes must leave the record bytes unchanged")
	}
}

func TestDeleteConfirmedArchivesDocument(t *testing.T) {
	store, root := newTestStore(t)
	mustCreateHiring(t, store)
	mustAddItem(t, store, "Sourcing", "Jordan Diaz - referral")
	preview, err := store.Delete("hiring-pipeline", 0, gate.Options{DryRun: true})
	if err != nil {
		t.Fatalf("dry-run: %v", err)
	}

	result, err := store.Delete("hiring-pipeline", 0, gate.Options{Confirm: preview.Outcome.Decision.ConfirmToken})
	if err != nil {
		t.Fatalf("confirmed delete: %v", err)
	}
	if result.Outcome.State != pipeline.StatePersisted {
		t.Fatalf("expected persisted, got %s", result.Outcome.State)
	}

	if _, err := os.Stat(filepath.Join(root, "lists", "hiring-pipeline.json")); !os.IsNotExist(err) {
		t.Fatalf("live record should be gone, stat err=%v", err)
	}
	archived, err := os.ReadDir(filepath.Join(root, "lists", "archive"))
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if len(archived) != 1 || !strings.HasPrefix(archived[0].Name(), "hiring-pipeline-v2-") {
		t.Fatalf("unexpected archive contents: %v", archived)
	}
	if _, err := store.Show("hiring-pipeline", ""); coreerrors.CategoryOf(err) != coreerrors.CategoryNotFound {
		t.Fatalf("deleted list should be not_found, got %v", err)
	}
}

func TestRemoveEmptyStageWithConfirmation(t *testing.T) {
	store, _ := newTestStore(t)
	mustCreateHiring(t, store)
	preview, err := store.RemoveStage("hiring-pipeline", "Rejected", "", 0, gate.Options{DryRun: true})
	if err != nil {
		t.Fatalf("dry-run: %v", err)
	}
	for _, code := range preview.Outcome.Decision.ReasonCodes {
		if code == gate.ReasonStageNotEmpty {
			t.Fatal("empty stage must not raise the stranded-items hazard")
		}
	}

	result, err := store.RemoveStage("hiring-pipeline", "Rejected", "", 0, gate.Options{Confirm: preview.Outcome.Decision.ConfirmToken})
	if err != nil {
		t.Fatalf("confirmed remove: %v", err)
	}
	if len(result.Record.Stages) != 5 {
		t.Fatalf("expected five stages, got %v", result.Record.Stages)
	}
	for _, stage := range result.Record.Stages {
		if stage == "Rejected" {
			t.Fatal("removed stage still declared")
		}
	}
}

func TestRemoveStageWithItemsSurfacesHazard(t *testing.T) {
	store, _ := newTestStore(t)
	mustCreateHiring(t, store)
	mustAddItem(t, store, "Screening", "Jordan Diaz - referral")

	result, err := store.RemoveStage("hiring-pipeline", "Screening", "", 0, gate.Options{})
	if coreerrors.CategoryOf(err) != coreerrors.CategorySafetyBlocked {
		t.Fatalf("expected safety_blocked, got %v", err)
	}
	codes := strings.Join(result.Outcome.Decision.ReasonCodes, ",")
	if !strings.Contains(codes, gate.ReasonStageNotEmpty) || !strings.Contains(codes, gate.ReasonConfirmationMissing) {
		t.Fatalf("expected both hazard and confirmation reasons, got %q", codes)
	}
}

func TestRemoveStageReassignsItems(t *testing.T) {
	store, _ := newTestStore(t)
	mustCreateHiring(t, store)
	mustAddItem(t, store, "Screening", "Jordan Diaz - referral")
	mustAddItem(t, store, "Screening", "Sam Okafor - inbound")
	mustAddItem(t, store, "Offer", "Ada Ricci - agency")

	preview, err := store.RemoveStage("hiring-pipeline", "Screening", "Interview", 0, gate.Options{DryRun: true})
	if err != nil {
		t.Fatalf("dry-run: %v", err)
	}
	summary := strings.Join(preview.Outcome.Decision.Preview.Summary, "\n")
	if !strings.Contains(summary, `2 item(s) would move to "Interview"`) {
		t.Fatalf("summary should describe the reassignment: %q", summary)
	}

	result, err := store.RemoveStage("hiring-pipeline", "Screening", "Interview", 0, gate.Options{Confirm: preview.Outcome.Decision.ConfirmToken})
	if err != nil {
		t.Fatalf("confirmed remove: %v", err)
	}
	moved := 0
	for _, item := range result.Record.Items {
		if item.Stage == "Interview" {
			moved++
		}
		if strings.EqualFold(item.Stage, "Screening") {
			t.Fatalf("item left in removed stage: %+v", item)
		}
	}
	if moved != 2 || len(result.Record.Items) != 3 {
		t.Fatalf("expected two reassigned items of three, got %+v", result.Record.Items)
	}
	assertStageInvariant(t, result.Record.Stages, result.Record.Items)
}

func TestRemoveStageConfirmedDropsStrandedItems(t *testing.T) {
	store, _ := newTestStore(t)
	mustCreateHiring(t, store)
	mustAddItem(t, store, "Screening", "Jordan Diaz - referral")
	mustAddItem(t, store, "Sourcing", "Sam Okafor - inbound")

	preview, err := store.RemoveStage("hiring-pipeline", "Screening", "", 0, gate.Options{DryRun: true})
	if err != nil {
		t.Fatalf("dry-run: %v", err)
	}
	codes := strings.Join(preview.Outcome.Decision.ReasonCodes, ",")
	if !strings.Contains(codes, gate.ReasonStageNotEmpty) {
		t.Fatalf("dry-run should surface the hazard, got %q", codes)
	}
	summary := strings.Join(preview.Outcome.Decision.Preview.Summary, "\n")
	if !strings.Contains(summary, "would be dropped") {
		t.Fatalf("summary should warn about the drop: %q", summary)
	}

	result, err := store.RemoveStage("hiring-pipeline", "Screening", "", 0, gate.Options{Confirm: preview.Outcome.Decision.ConfirmToken})
	if err != nil {
		t.Fatalf("confirmed remove: %v", err)
	}
	if len(result.Record.Items) != 1 || result.Record.Items[0].Stage != "Sourcing" {
		t.Fatalf("expected only the sourcing item to survive: %+v", result.Record.Items)
	}
	assertStageInvariant(t, result.Record.Stages, result.Record.Items)
}

func TestRemoveStageReassignTargetMustRemain(t *testing.T) {
	store, _ := newTestStore(t)
	mustCreateHiring(t, store)
	_, err := store.RemoveStage("hiring-pipeline", "Screening", "screening", 0, gate.Options{DryRun: true})
	if coreerrors.CategoryOf(err) != coreerrors.CategoryInvalidInput {
		t.Fatalf("expected invalid_input, got %v", err)
	}
}

func TestRemoveLastStageFailsValidation(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.Create("Inbox", []string{"Triage"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := store.RemoveStage("inbox", "Triage", "", 0, gate.Options{DryRun: true})
	if coreerrors.CategoryOf(err) != coreerrors.CategoryInvalidInput {
		t.Fatalf("removing the last stage must fail validation, got %v", err)
	}
	if !strings.Contains(err.Error(), "stages") {
		t.Fatalf("violation should name the stages field: %v", err)
	}
}

func TestStageInvariantHoldsAcrossAddAndMoveSequences(t *testing.T) {
	store, _ := newTestStore(t)
	mustCreateHiring(t, store)
	a := mustAddItem(t, store, "Sourcing", "candidate a")
	b := mustAddItem(t, store, "Sourcing", "candidate b")
	c := mustAddItem(t, store, "Screening", "candidate c")

	moves := []struct{ id, from, to string }{
		{a, "Sourcing", "Screening"},
		{b, "Sourcing", "Interview"},
		{a, "Screening", "Interview"},
		{c, "Screening", "Offer"},
		{a, "Interview", "Hired"},
	}
	for _, move := range moves {
		if _, err := store.MoveItem("hiring-pipeline", move.id, move.from, move.to); err != nil {
			t.Fatalf("move %s %s->%s: %v", move.id, move.from, move.to, err)
		}
	}

	record, err := store.Show("hiring-pipeline", "")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	assertStageInvariant(t, record.Stages, record.Items)
	if record.Version != 1+3+int64(len(moves)) {
		t.Fatalf("every mutation must bump the version once, got %d", record.Version)
	}
}

func TestShowFiltersByStage(t *testing.T) {
	store, _ := newTestStore(t)
	mustCreateHiring(t, store)
	mustAddItem(t, store, "Sourcing", "candidate a")
	mustAddItem(t, store, "Screening", "candidate b")

	record, err := store.Show("Hiring Pipeline", "screening")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if len(record.Items) != 1 || record.Items[0].Content != "candidate b" {
		t.Fatalf("unexpected filtered items: %+v", record.Items)
	}

	if _, err := store.Show("hiring-pipeline", "Onboarding"); coreerrors.CategoryOf(err) != coreerrors.CategoryNotFound {
		t.Fatalf("unknown stage filter should be not_found, got %v", err)
	}
}

func TestSlugsListsLiveDocuments(t *testing.T) {
	store, _ := newTestStore(t)
	mustCreateHiring(t, store)
	if _, err := store.Create("Backlog", []string{"Todo", "Done"}); err != nil {
		t.Fatalf("create second: %v", err)
	}
	slugs, err := store.Slugs()
	if err != nil {
		t.Fatalf("slugs: %v", err)
	}
	if len(slugs) != 2 || slugs[0] != "backlog" || slugs[1] != "hiring-pipeline" {
		t.Fatalf("unexpected slugs: %v", slugs)
	}
}

func assertStageInvariant(t *testing.T, stages []string, items []schemalist.Item) {
	t.Helper()
	declared := make(map[string]struct{}, len(stages))
	for _, stage := range stages {
		declared[stage] = struct{}{}
	}
	for _, item := range items {
		if _, ok := declared[item.Stage]; !ok {
			t.Fatalf("item %s references undeclared stage %q", item.ID, item.Stage)
		}
	}
}
