// Package list owns stage-tracked work lists under <workspace>/lists. A list
// and its items live in one document sharing one version counter, so a stage
// move is a single compare-and-swap. Deleting archives the document; nothing
// under lists/ is ever removed outright.
package list

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	coreerrors "github.com/davidahmann/tend/core/errors"
	"github.com/davidahmann/tend/core/fsx"
	"github.com/davidahmann/tend/core/gate"
	"github.com/davidahmann/tend/core/journal"
	"github.com/davidahmann/tend/core/pipeline"
	"github.com/davidahmann/tend/core/schema/validate"
	schemalist "github.com/davidahmann/tend/core/schema/v1/list"
)

const SchemaRef = "list@v1"

var slugStripPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives the canonical list reference from a display name:
// lowercase, alphanumeric runs joined by single hyphens.
func Slugify(name string) string {
	slug := slugStripPattern.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(slug, "-")
}

type Store struct {
	root      string
	validator *validate.Validator
	journal   *journal.Journal
	now       func() time.Time
}

type Options struct {
	Validator *validate.Validator
	Journal   *journal.Journal
	Now       func() time.Time
}

func NewStore(root string, opts Options) *Store {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{root: root, validator: opts.Validator, journal: opts.Journal, now: now}
}

type Result struct {
	Outcome  pipeline.Outcome  `json:"outcome"`
	Record   schemalist.Record `json:"record"`
	Warnings []string          `json:"warnings,omitempty"`
}

// Create writes a fresh version-1 list. Stage names keep their casing but
// must be unique ignoring case; the derived slug must be free.
func (s *Store) Create(name string, stages []string) (Result, error) {
	name = strings.TrimSpace(name)
	slug := Slugify(name)
	if slug == "" {
		return Result{}, coreerrors.New(coreerrors.CategoryInvalidInput, "list_name_invalid", "use a name with at least one letter or digit", false, "list name %q yields an empty slug", name)
	}
	cleaned, err := cleanStages(stages)
	if err != nil {
		return Result{}, err
	}
	if _, exists, err := s.read(slug); err != nil {
		return Result{}, err
	} else if exists {
		return Result{}, coreerrors.New(coreerrors.CategoryAlreadyExists, "list_exists", "pick a different name or delete the existing list", false, "list %q already exists", slug)
	}

	now := s.clock()
	record := schemalist.Record{
		SchemaID:      schemalist.SchemaID,
		SchemaVersion: schemalist.SchemaVersion,
		Name:          name,
		Slug:          slug,
		Stages:        cleaned,
		Items:         []schemalist.Item{},
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var warnings []string
	outcome, err := pipeline.Run(s.validator, pipeline.Mutation{
		Operation: gate.Operation{Kind: gate.KindListCreate, Target: slug},
		SchemaRef: SchemaRef,
		Record:    record,
		Persist: func() error {
			if _, stillFree, readErr := s.read(slug); readErr != nil {
				return readErr
			} else if stillFree {
				return coreerrors.New(coreerrors.CategoryAlreadyExists, "list_exists", "pick a different name or delete the existing list", false, "list %q already exists", slug)
			}
			if writeErr := s.write(record); writeErr != nil {
				return writeErr
			}
			warnings = s.appendJournal(gate.KindListCreate, slug, record.Version)
			return nil
		},
	})
	return Result{Outcome: outcome, Record: record, Warnings: warnings}, err
}

// AddItem appends an item to a declared stage and bumps the list version.
func (s *Store) AddItem(listRef, stage, content string, metadata map[string]string) (Result, error) {
	current, err := s.load(listRef)
	if err != nil {
		return Result{}, err
	}
	declared, ok := resolveStage(current.Stages, stage)
	if !ok {
		return Result{}, unknownStage(current, stage)
	}

	now := s.clock()
	item := schemalist.Item{
		ID:        "itm_" + uuid.NewString(),
		List:      current.Slug,
		Stage:     declared,
		Content:   strings.TrimSpace(content),
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	record := current
	record.Items = append(append([]schemalist.Item{}, current.Items...), item)
	record.Version = current.Version + 1
	record.UpdatedAt = now

	var warnings []string
	outcome, err := pipeline.Run(s.validator, pipeline.Mutation{
		Operation: gate.Operation{Kind: gate.KindListAddItem, Target: current.Slug, CurrentVersion: current.Version},
		SchemaRef: SchemaRef,
		Record:    record,
		Persist: func() error {
			if err := s.casWrite(record, current.Version); err != nil {
				return err
			}
			warnings = s.appendJournal(gate.KindListAddItem, current.Slug, record.Version)
			return nil
		},
	})
	return Result{Outcome: outcome, Record: record, Warnings: warnings}, err
}

// MoveItem advances an item between stages. The caller states the stage it
// believes the item is in; a mismatch means the read was stale and the move
// conflicts instead of silently overwriting.
func (s *Store) MoveItem(listRef, itemID, from, to string) (Result, error) {
	current, err := s.load(listRef)
	if err != nil {
		return Result{}, err
	}
	fromStage, ok := resolveStage(current.Stages, from)
	if !ok {
		return Result{}, unknownStage(current, from)
	}
	toStage, ok := resolveStage(current.Stages, to)
	if !ok {
		return Result{}, unknownStage(current, to)
	}
	if strings.EqualFold(fromStage, toStage) {
		return Result{}, coreerrors.New(coreerrors.CategoryInvalidInput, "stage_same", "pick two different stages", false, "list %q: from and to are both %q", current.Slug, fromStage)
	}
	index := indexOfItem(current.Items, itemID)
	if index < 0 {
		return Result{}, coreerrors.New(coreerrors.CategoryNotFound, "item_not_found", "check `tend list show` for item ids", false, "item %q not found in list %q", itemID, current.Slug)
	}
	if !strings.EqualFold(current.Items[index].Stage, fromStage) {
		return Result{}, coreerrors.New(coreerrors.CategoryStateConflict, "item_stage_conflict", "re-read the list and retry from the item's current stage", true,
			"item %q is in stage %q, not %q", itemID, current.Items[index].Stage, fromStage)
	}

	now := s.clock()
	record := current
	record.Items = append([]schemalist.Item{}, current.Items...)
	record.Items[index].Stage = toStage
	record.Items[index].UpdatedAt = now
	record.Version = current.Version + 1
	record.UpdatedAt = now

	var warnings []string
	outcome, err := pipeline.Run(s.validator, pipeline.Mutation{
		Operation: gate.Operation{Kind: gate.KindListMoveItem, Target: current.Slug, CurrentVersion: current.Version},
		SchemaRef: SchemaRef,
		Record:    record,
		Persist: func() error {
			if err := s.casWrite(record, current.Version); err != nil {
				return err
			}
			warnings = s.appendJournal(gate.KindListMoveItem, current.Slug, record.Version)
			return nil
		},
	})
	return Result{Outcome: outcome, Record: record, Warnings: warnings}, err
}

// Delete archives the whole list document. Destructive: dry-run first or
// present the confirmation token.
func (s *Store) Delete(listRef string, expectedVersion int64, opts gate.Options) (Result, error) {
	current, err := s.load(listRef)
	if err != nil {
		return Result{}, err
	}

	var warnings []string
	outcome, err := pipeline.Run(s.validator, pipeline.Mutation{
		Operation: gate.Operation{
			Kind:            gate.KindListDelete,
			Target:          current.Slug,
			ObservedVersion: expectedVersion,
			CurrentVersion:  current.Version,
		},
		Options:   opts,
		SchemaRef: SchemaRef,
		Record:    current,
		Preview: &gate.PreviewInput{
			Before:  current,
			Summary: []string{fmt.Sprintf("list %q would be archived with %d item(s)", current.Slug, len(current.Items))},
		},
		Persist: func() error {
			if err := s.archiveRecordFile(current); err != nil {
				return err
			}
			warnings = s.appendJournal(gate.KindListDelete, current.Slug, current.Version)
			return nil
		},
	})
	return Result{Outcome: outcome, Record: current, Warnings: warnings}, err
}

// RemoveStage drops a declared stage. Items still in the stage either move
// to ReassignTo or, on an explicitly confirmed run, are dropped with it; the
// stranded-items hazard is surfaced on every decision either way.
func (s *Store) RemoveStage(listRef, stage, reassignTo string, expectedVersion int64, opts gate.Options) (Result, error) {
	current, err := s.load(listRef)
	if err != nil {
		return Result{}, err
	}
	declared, ok := resolveStage(current.Stages, stage)
	if !ok {
		return Result{}, unknownStage(current, stage)
	}

	reassign := ""
	if strings.TrimSpace(reassignTo) != "" {
		reassign, ok = resolveStage(current.Stages, reassignTo)
		if !ok {
			return Result{}, unknownStage(current, reassignTo)
		}
		if strings.EqualFold(reassign, declared) {
			return Result{}, coreerrors.New(coreerrors.CategoryInvalidInput, "reassign_into_removed_stage", "reassign to a stage that will remain", false, "list %q: cannot reassign items into the removed stage %q", current.Slug, declared)
		}
	}

	stranded := 0
	for _, item := range current.Items {
		if strings.EqualFold(item.Stage, declared) {
			stranded++
		}
	}

	now := s.clock()
	record := current
	record.Stages = make([]string, 0, len(current.Stages)-1)
	for _, name := range current.Stages {
		if !strings.EqualFold(name, declared) {
			record.Stages = append(record.Stages, name)
		}
	}
	record.Items = make([]schemalist.Item, 0, len(current.Items))
	for _, item := range current.Items {
		if !strings.EqualFold(item.Stage, declared) {
			record.Items = append(record.Items, item)
			continue
		}
		if reassign != "" {
			item.Stage = reassign
			item.UpdatedAt = now
			record.Items = append(record.Items, item)
		}
	}
	record.Version = current.Version + 1
	record.UpdatedAt = now

	var hazards []string
	summary := []string{fmt.Sprintf("stage %q would be removed", declared)}
	switch {
	case stranded > 0 && reassign != "":
		summary = append(summary, fmt.Sprintf("%d item(s) would move to %q", stranded, reassign))
	case stranded > 0:
		hazards = append(hazards, gate.ReasonStageNotEmpty)
		summary = append(summary, fmt.Sprintf("%d item(s) in %q would be dropped", stranded, declared))
	}
	summary = append(summary, fmt.Sprintf("version: %d -> %d", current.Version, record.Version))

	var warnings []string
	outcome, err := pipeline.Run(s.validator, pipeline.Mutation{
		Operation: gate.Operation{
			Kind:            gate.KindListRemoveStage,
			Target:          current.Slug,
			ObservedVersion: expectedVersion,
			CurrentVersion:  current.Version,
			Hazards:         hazards,
		},
		Options:   opts,
		SchemaRef: SchemaRef,
		Record:    record,
		Preview: &gate.PreviewInput{
			Before:  current,
			After:   record,
			Summary: summary,
		},
		Persist: func() error {
			if err := s.casWrite(record, current.Version); err != nil {
				return err
			}
			warnings = s.appendJournal(gate.KindListRemoveStage, current.Slug, record.Version)
			return nil
		},
	})
	if err != nil || outcome.DryRun {
		return Result{Outcome: outcome, Record: current, Warnings: warnings}, err
	}
	return Result{Outcome: outcome, Record: record, Warnings: warnings}, err
}

// Show returns the list, with items narrowed to one stage when stageFilter
// is non-empty.
func (s *Store) Show(listRef, stageFilter string) (schemalist.Record, error) {
	record, err := s.load(listRef)
	if err != nil {
		return schemalist.Record{}, err
	}
	if strings.TrimSpace(stageFilter) == "" {
		return record, nil
	}
	declared, ok := resolveStage(record.Stages, stageFilter)
	if !ok {
		return schemalist.Record{}, unknownStage(record, stageFilter)
	}
	filtered := make([]schemalist.Item, 0, len(record.Items))
	for _, item := range record.Items {
		if strings.EqualFold(item.Stage, declared) {
			filtered = append(filtered, item)
		}
	}
	record.Items = filtered
	return record, nil
}

// Slugs lists every live list reference, sorted.
func (s *Store) Slugs() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "lists"))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, coreerrors.Wrap(fmt.Errorf("read lists dir: %w", err), coreerrors.CategoryIOFailure, "list_read_failed", "check the state directory", true)
	}
	slugs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		slugs = append(slugs, strings.TrimSuffix(entry.Name(), ".json"))
	}
	return slugs, nil
}

func (s *Store) clock() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

func (s *Store) recordPath(slug string) string {
	return filepath.Join(s.root, "lists", slug+".json")
}

func (s *Store) archivePath(record schemalist.Record) string {
	name := fmt.Sprintf("%s-v%d-%d.json", record.Slug, record.Version, s.clock().Unix())
	return filepath.Join(s.root, "lists", "archive", name)
}

func (s *Store) read(slug string) (schemalist.Record, bool, error) {
	// #nosec G304 -- the path is derived from a slugified reference.
	raw, err := os.ReadFile(s.recordPath(slug))
	if err != nil {
		if os.IsNotExist(err) {
			return schemalist.Record{}, false, nil
		}
		return schemalist.Record{}, false, coreerrors.Wrap(fmt.Errorf("read list %s: %w", slug, err), coreerrors.CategoryIOFailure, "list_read_failed", "check the state directory", true)
	}
	var record schemalist.Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return schemalist.Record{}, false, coreerrors.Wrap(fmt.Errorf("parse list %s: %w", slug, err), coreerrors.CategoryIOFailure, "list_record_corrupt", "run `tend doctor` to inspect the record", false)
	}
	return record, true, nil
}

func (s *Store) load(listRef string) (schemalist.Record, error) {
	slug := Slugify(listRef)
	if slug == "" {
		return schemalist.Record{}, coreerrors.New(coreerrors.CategoryInvalidInput, "list_ref_invalid", "pass the list name or slug", false, "invalid list reference %q", listRef)
	}
	record, exists, err := s.read(slug)
	if err != nil {
		return schemalist.Record{}, err
	}
	if !exists {
		return schemalist.Record{}, coreerrors.New(coreerrors.CategoryNotFound, "list_not_found", "run `tend list create` first", false, "list %q not found", slug)
	}
	return record, nil
}

func (s *Store) write(record schemalist.Record) error {
	if err := fsx.WriteJSONAtomic(s.recordPath(record.Slug), record, 0o600); err != nil {
		return coreerrors.Wrap(fmt.Errorf("write list %s: %w", record.Slug, err), coreerrors.CategoryIOFailure, "list_write_failed", "check the state directory", true)
	}
	return nil
}

func (s *Store) casWrite(record schemalist.Record, expectedDiskVersion int64) error {
	current, exists, err := s.read(record.Slug)
	if err != nil {
		return err
	}
	if !exists {
		return coreerrors.New(coreerrors.CategoryNotFound, "list_not_found", "run `tend list create` first", false, "list %q not found", record.Slug)
	}
	if current.Version != expectedDiskVersion {
		return coreerrors.New(coreerrors.CategoryStateConflict, gate.ReasonVersionConflict, "re-read the list and retry with its current version", true,
			"list %q: version moved from %d to %d during the mutation", record.Slug, expectedDiskVersion, current.Version)
	}
	return s.write(record)
}

func (s *Store) archiveRecordFile(record schemalist.Record) error {
	target := s.archivePath(record)
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return coreerrors.Wrap(fmt.Errorf("create list archive dir: %w", err), coreerrors.CategoryIOFailure, "list_archive_failed", "check the state directory", true)
	}
	if err := os.Rename(s.recordPath(record.Slug), target); err != nil {
		return coreerrors.Wrap(fmt.Errorf("archive list %s: %w", record.Slug, err), coreerrors.CategoryIOFailure, "list_archive_failed", "check the state directory", true)
	}
	return nil
}

func (s *Store) appendJournal(intent, target string, version int64) []string {
	if s.journal == nil {
		return nil
	}
	err := s.journal.Record(journal.Entry{Intent: intent, Target: target, Version: version, Outcome: string(pipeline.StatePersisted)})
	if err != nil {
		return []string{fmt.Sprintf("journal append failed: %v", err)}
	}
	return nil
}

func cleanStages(stages []string) ([]string, error) {
	cleaned := make([]string, 0, len(stages))
	seen := make(map[string]struct{}, len(stages))
	for _, stage := range stages {
		stage = strings.TrimSpace(stage)
		if stage == "" {
			return nil, coreerrors.New(coreerrors.CategoryInvalidInput, "stage_name_empty", "stage names must be non-empty", false, "empty stage name")
		}
		key := strings.ToLower(stage)
		if _, duplicate := seen[key]; duplicate {
			return nil, coreerrors.New(coreerrors.CategoryInvalidInput, "stages_duplicate", "stage names must be unique ignoring case", false, "duplicate stage %q", stage)
		}
		seen[key] = struct{}{}
		cleaned = append(cleaned, stage)
	}
	if len(cleaned) == 0 {
		return nil, coreerrors.New(coreerrors.CategoryInvalidInput, "stages_missing", "declare at least one stage", false, "a list needs at least one stage")
	}
	return cleaned, nil
}

func resolveStage(stages []string, name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, stage := range stages {
		if strings.EqualFold(stage, name) {
			return stage, true
		}
	}
	return "", false
}

func unknownStage(record schemalist.Record, name string) error {
	return coreerrors.New(coreerrors.CategoryNotFound, "stage_unknown", "declared stages: "+strings.Join(record.Stages, ", "), false, "list %q has no stage %q", record.Slug, strings.TrimSpace(name))
}

func indexOfItem(items []schemalist.Item, itemID string) int {
	for i, item := range items {
		if item.ID == itemID {
			return i
		}
	}
	return -1
}
