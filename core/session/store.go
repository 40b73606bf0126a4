// Package session owns the per-conversation state records under
// <workspace>/sessions. Every mutation runs through the pipeline: the full
// would-be record is validated against session@v1, gated, and persisted with
// a compare-and-swap atomic write plus a journal line. Archived sessions are
// relocated, never deleted.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	coreerrors "github.com/davidahmann/tend/core/errors"
	"github.com/davidahmann/tend/core/fsx"
	"github.com/davidahmann/tend/core/gate"
	"github.com/davidahmann/tend/core/journal"
	"github.com/davidahmann/tend/core/pipeline"
	"github.com/davidahmann/tend/core/schema/validate"
	schemasession "github.com/davidahmann/tend/core/schema/v1/session"
)

const (
	SchemaRef = "session@v1"

	StatusActive   = "active"
	StatusArchived = "archived"

	HistoryNote     = "note"
	HistoryDecision = "decision"
	HistoryPhase    = "phase"
	HistorySystem   = "system"
)

var modeByType = map[string]string{
	"build":      "execution",
	"research":   "investigation",
	"discussion": "advisory",
	"planning":   "roadmap",
}

var conversationIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ModeFor maps a session type to its derived working mode.
func ModeFor(sessionType string) (string, error) {
	mode, ok := modeByType[sessionType]
	if !ok {
		return "", coreerrors.New(coreerrors.CategoryInvalidInput, "session_type_unknown", "use one of: build, research, discussion, planning", false, "unknown session type %q", sessionType)
	}
	return mode, nil
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

// Result is the uniform mutation outcome: the pipeline trace and decision,
// the record as the operation left it, and any advisory warnings (a failed
// journal append never fails a persisted mutation).
type Result struct {
	Outcome  pipeline.Outcome     `json:"outcome"`
	Record   schemasession.Record `json:"record"`
	Warnings []string             `json:"warnings,omitempty"`
}

type UpdateRequest struct {
	ExpectedVersion int64
	Note            string
	Decision        string
	Phase           string
	AddObjectives   []string
	DoneObjectives  []string
}

// Init creates a fresh session record for a conversation. A live record is
// AlreadyExists; an archived one is relocated into sessions/archive before
// the new version-1 record is written.
func (s *Store) Init(conversationID, sessionType string, loadSystem bool) (Result, error) {
	id, err := normalizeConversationID(conversationID)
	if err != nil {
		return Result{}, err
	}
	mode, err := ModeFor(sessionType)
	if err != nil {
		return Result{}, err
	}

	existing, exists, err := s.read(id)
	if err != nil {
		return Result{}, err
	}
	if exists && existing.Status != StatusArchived {
		return Result{}, coreerrors.New(coreerrors.CategoryAlreadyExists, "session_exists", "update the live session or terminate it first", false, "session %q already exists", id)
	}

	now := s.clock()
	record := schemasession.Record{
		SchemaID:      schemasession.SchemaID,
		SchemaVersion: schemasession.SchemaVersion,
		ID:            id,
		Type:          sessionType,
		Mode:          mode,
		LoadSystem:    loadSystem,
		Objectives:    []string{},
		History:       []schemasession.HistoryEntry{},
		Version:       1,
		Status:        StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if loadSystem {
		record.History = append(record.History, schemasession.HistoryEntry{
			Seq:  1,
			At:   now,
			Kind: HistorySystem,
			Text: "system context loaded",
		})
	}

	var warnings []string
	outcome, err := pipeline.Run(s.validator, pipeline.Mutation{
		Operation: gate.Operation{Kind: gate.KindSessionInit, Target: id},
		SchemaRef: SchemaRef,
		Record:    record,
		Persist: func() error {
			current, stillThere, readErr := s.read(id)
			if readErr != nil {
				return readErr
			}
			if stillThere {
				if current.Status != StatusArchived {
					return coreerrors.New(coreerrors.CategoryAlreadyExists, "session_exists", "update the live session or terminate it first", false, "session %q already exists", id)
				}
				if archiveErr := s.archiveRecordFile(current); archiveErr != nil {
					return archiveErr
				}
			}
			if writeErr := s.write(record); writeErr != nil {
				return writeErr
			}
			warnings = s.appendJournal(gate.KindSessionInit, id, record.Version)
			return nil
		},
	})
	return Result{Outcome: outcome, Record: record, Warnings: warnings}, err
}

// Update applies history and objective changes to a live session, bumping the
// version. ExpectedVersion of zero skips the caller-side check; the persist
// step still refuses to overwrite a record that moved underneath the read.
func (s *Store) Update(conversationID string, req UpdateRequest) (Result, error) {
	id, err := normalizeConversationID(conversationID)
	if err != nil {
		return Result{}, err
	}
	current, err := s.load(id)
	if err != nil {
		return Result{}, err
	}
	if current.Status == StatusArchived {
		return Result{}, coreerrors.New(coreerrors.CategoryStateConflict, "session_archived", "init a new session for this conversation", false, "session %q is archived", id)
	}

	record, err := s.applyUpdate(current, req)
	if err != nil {
		return Result{}, err
	}

	var warnings []string
	outcome, err := pipeline.Run(s.validator, pipeline.Mutation{
		Operation: gate.Operation{
			Kind:            gate.KindSessionUpdate,
			Target:          id,
			ObservedVersion: req.ExpectedVersion,
			CurrentVersion:  current.Version,
		},
		SchemaRef: SchemaRef,
		Record:    record,
		Persist: func() error {
			if err := s.casWrite(record, current.Version); err != nil {
				return err
			}
			warnings = s.appendJournal(gate.KindSessionUpdate, id, record.Version)
			return nil
		},
	})
	return Result{Outcome: outcome, Record: record, Warnings: warnings}, err
}

// Terminate archives a session in place. Destructive: callers either preview
// with DryRun or present the confirmation token from a previous preview.
func (s *Store) Terminate(conversationID string, expectedVersion int64, opts gate.Options) (Result, error) {
	id, err := normalizeConversationID(conversationID)
	if err != nil {
		return Result{}, err
	}
	current, err := s.load(id)
	if err != nil {
		return Result{}, err
	}
	if current.Status == StatusArchived {
		return Result{}, coreerrors.New(coreerrors.CategoryStateConflict, "session_archived", "the session is already archived", false, "session %q is archived", id)
	}

	now := s.clock()
	record := current
	record.History = append(append([]schemasession.HistoryEntry{}, current.History...), schemasession.HistoryEntry{
		Seq:  nextSeq(current.History),
		At:   now,
		Kind: HistorySystem,
		Text: "session terminated",
	})
	record.Status = StatusArchived
	record.Version = current.Version + 1
	record.UpdatedAt = now

	var warnings []string
	outcome, err := pipeline.Run(s.validator, pipeline.Mutation{
		Operation: gate.Operation{
			Kind:            gate.KindSessionTerminate,
			Target:          id,
			ObservedVersion: expectedVersion,
			CurrentVersion:  current.Version,
		},
		Options:   opts,
		SchemaRef: SchemaRef,
		Record:    record,
		Preview: &gate.PreviewInput{
			Before: current,
			After:  record,
			Summary: []string{
				fmt.Sprintf("status: %s -> %s", current.Status, StatusArchived),
				fmt.Sprintf("version: %d -> %d", current.Version, record.Version),
			},
		},
		Persist: func() error {
			if err := s.casWrite(record, current.Version); err != nil {
				return err
			}
			warnings = s.appendJournal(gate.KindSessionTerminate, id, record.Version)
			return nil
		},
	})
	if err != nil || outcome.DryRun {
		return Result{Outcome: outcome, Record: current, Warnings: warnings}, err
	}
	return Result{Outcome: outcome, Record: record, Warnings: warnings}, err
}

// Status returns the current record, archived or not.
func (s *Store) Status(conversationID string) (schemasession.Record, error) {
	id, err := normalizeConversationID(conversationID)
	if err != nil {
		return schemasession.Record{}, err
	}
	return s.load(id)
}

// Log returns the journal entries recorded for a conversation, oldest first.
func (s *Store) Log(conversationID string) ([]journal.Entry, []string, error) {
	id, err := normalizeConversationID(conversationID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.load(id); err != nil {
		return nil, nil, err
	}
	if s.journal == nil {
		return nil, nil, nil
	}
	return s.journal.EntriesFor(id)
}

func (s *Store) applyUpdate(current schemasession.Record, req UpdateRequest) (schemasession.Record, error) {
	note := strings.TrimSpace(req.Note)
	decision := strings.TrimSpace(req.Decision)
	phase := strings.TrimSpace(req.Phase)
	if note == "" && decision == "" && phase == "" && len(req.AddObjectives) == 0 && len(req.DoneObjectives) == 0 {
		return schemasession.Record{}, coreerrors.New(coreerrors.CategoryInvalidInput, "update_empty", "provide a note, decision, phase, or objective change", false, "session %q: update has no changes", current.ID)
	}

	record := current
	record.Objectives = append([]string{}, current.Objectives...)
	record.History = append([]schemasession.HistoryEntry{}, current.History...)
	now := s.clock()
	seq := nextSeq(current.History)

	appendEntry := func(kind, text string) {
		record.History = append(record.History, schemasession.HistoryEntry{Seq: seq, At: now, Kind: kind, Text: text})
		seq++
	}
	if note != "" {
		appendEntry(HistoryNote, note)
	}
	if decision != "" {
		appendEntry(HistoryDecision, decision)
	}
	if phase != "" {
		appendEntry(HistoryPhase, phase)
	}

	for _, objective := range req.AddObjectives {
		objective = strings.TrimSpace(objective)
		if objective == "" {
			return schemasession.Record{}, coreerrors.New(coreerrors.CategoryInvalidInput, "objective_empty", "objectives must be non-empty", false, "session %q: empty objective", current.ID)
		}
		if containsFold(record.Objectives, objective) {
			return schemasession.Record{}, coreerrors.New(coreerrors.CategoryAlreadyExists, "objective_exists", "the objective is already tracked", false, "session %q: objective %q already exists", current.ID, objective)
		}
		record.Objectives = append(record.Objectives, objective)
	}
	for _, objective := range req.DoneObjectives {
		objective = strings.TrimSpace(objective)
		index := indexFold(record.Objectives, objective)
		if index < 0 {
			return schemasession.Record{}, coreerrors.New(coreerrors.CategoryNotFound, "objective_unknown", "check `tend session status` for open objectives", false, "session %q: objective %q not found", current.ID, objective)
		}
		appendEntry(HistoryNote, "objective done: "+record.Objectives[index])
		record.Objectives = append(record.Objectives[:index], record.Objectives[index+1:]...)
	}

	record.Version = current.Version + 1
	record.UpdatedAt = now
	return record, nil
}

func (s *Store) clock() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

func (s *Store) recordPath(id string) string {
	return filepath.Join(s.root, "sessions", id+".json")
}

func (s *Store) archivePath(record schemasession.Record) string {
	name := fmt.Sprintf("%s-v%d-%d.json", record.ID, record.Version, s.clock().Unix())
	return filepath.Join(s.root, "sessions", "archive", name)
}

func (s *Store) read(id string) (schemasession.Record, bool, error) {
	// #nosec G304 -- the path is derived from a validated conversation id.
	raw, err := os.ReadFile(s.recordPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return schemasession.Record{}, false, nil
		}
		return schemasession.Record{}, false, coreerrors.Wrap(fmt.Errorf("read session %s: %w", id, err), coreerrors.CategoryIOFailure, "session_read_failed", "check the state directory", true)
	}
	var record schemasession.Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return schemasession.Record{}, false, coreerrors.Wrap(fmt.Errorf("parse session %s: %w", id, err), coreerrors.CategoryIOFailure, "session_record_corrupt", "run `tend doctor` to inspect the record", false)
	}
	return record, true, nil
}

func (s *Store) load(id string) (schemasession.Record, error) {
	record, exists, err := s.read(id)
	if err != nil {
		return schemasession.Record{}, err
	}
	if !exists {
		return schemasession.Record{}, coreerrors.New(coreerrors.CategoryNotFound, "session_not_found", "run `tend session init` first", false, "session %q not found", id)
	}
	return record, nil
}

func (s *Store) write(record schemasession.Record) error {
	if err := fsx.WriteJSONAtomic(s.recordPath(record.ID), record, 0o600); err != nil {
		return coreerrors.Wrap(fmt.Errorf("write session %s: %w", record.ID, err), coreerrors.CategoryIOFailure, "session_write_failed", "check the state directory", true)
	}
	return nil
}

// casWrite re-reads the on-disk record and replaces it only when its version
// still matches what the mutation was computed from.
func (s *Store) casWrite(record schemasession.Record, expectedDiskVersion int64) error {
	current, exists, err := s.read(record.ID)
	if err != nil {
		return err
	}
	if !exists {
		return coreerrors.New(coreerrors.CategoryNotFound, "session_not_found", "run `tend session init` first", false, "session %q not found", record.ID)
	}
	if current.Version != expectedDiskVersion {
		return coreerrors.New(coreerrors.CategoryStateConflict, gate.ReasonVersionConflict, "re-read the session and retry with its current version", true,
			"session %q: version moved from %d to %d during the mutation", record.ID, expectedDiskVersion, current.Version)
	}
	return s.write(record)
}

func (s *Store) archiveRecordFile(record schemasession.Record) error {
	target := s.archivePath(record)
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return coreerrors.Wrap(fmt.Errorf("create session archive dir: %w", err), coreerrors.CategoryIOFailure, "session_archive_failed", "check the state directory", true)
	}
	if err := os.Rename(s.recordPath(record.ID), target); err != nil {
		return coreerrors.Wrap(fmt.Errorf("archive session %s: %w", record.ID, err), coreerrors.CategoryIOFailure, "session_archive_failed", "check the state directory", true)
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

func normalizeConversationID(conversationID string) (string, error) {
	id := strings.TrimSpace(conversationID)
	if !conversationIDPattern.MatchString(id) {
		return "", coreerrors.New(coreerrors.CategoryInvalidInput, "conversation_id_invalid", "use lowercase letters, digits, underscores, and hyphens", false, "invalid conversation id %q", conversationID)
	}
	return id, nil
}

func nextSeq(history []schemasession.HistoryEntry) int64 {
	if len(history) == 0 {
		return 1
	}
	return history[len(history)-1].Seq + 1
}

func containsFold(values []string, needle string) bool {
	return indexFold(values, needle) >= 0
}

func indexFold(values []string, needle string) int {
	for i, value := range values {
		if strings.EqualFold(value, needle) {
			return i
		}
	}
	return -1
}
